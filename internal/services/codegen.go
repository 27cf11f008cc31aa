package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/filegate/backend/internal/metrics"
)

const shortCodeLength = 8

// CodeExister is the slice of the file store the generator needs.
type CodeExister interface {
	CodeExists(ctx context.Context, code string) (bool, error)
}

type CodeGenerator struct {
	Files CodeExister
	draw  func() (string, error)
}

func NewCodeGenerator(files CodeExister) *CodeGenerator {
	return &CodeGenerator{Files: files, draw: randomCode}
}

// Generate returns a code that no record, active or retired, carries yet.
// The result is only reserved once the caller inserts it; a concurrent
// insert of the same code surfaces as store.ErrDuplicateCode.
func (g *CodeGenerator) Generate(ctx context.Context) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		code, err := g.draw()
		if err != nil {
			return "", fmt.Errorf("draw short code: %w", err)
		}

		exists, err := g.Files.CodeExists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("check short code: %w", err)
		}
		if !exists {
			return code, nil
		}
		metrics.CodeCollisionsTotal.Inc()
	}
}

func randomCode() (string, error) {
	buf := make([]byte, shortCodeLength/2)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
