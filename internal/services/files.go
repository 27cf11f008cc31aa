package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/filegate/backend/internal/metrics"
	"github.com/filegate/backend/internal/models"
	"github.com/filegate/backend/internal/store"
	"github.com/filegate/backend/pkg/logger"
)

type FileService struct {
	Files       store.FileStore
	Users       store.UserStore
	Codes       *CodeGenerator
	Audit       Auditor
	BotUsername string
}

func NewFileService(files store.FileStore, users store.UserStore, codes *CodeGenerator, audit Auditor, botUsername string) *FileService {
	return &FileService{
		Files:       files,
		Users:       users,
		Codes:       codes,
		Audit:       audit,
		BotUsername: strings.TrimPrefix(botUsername, "@"),
	}
}

// Store registers an uploaded file under a fresh short code. Identical
// uploads get distinct codes.
func (s *FileService) Store(ctx context.Context, uploaderID int64, fileRef string, fileType models.FileType, caption string, size int64) (string, error) {
	if strings.TrimSpace(fileRef) == "" {
		return "", fmt.Errorf("file reference is required")
	}
	if !fileType.Valid() {
		return "", fmt.Errorf("unsupported file type %q", fileType)
	}

	var record *models.FileRecord
	for {
		code, err := s.Codes.Generate(ctx)
		if err != nil {
			return "", err
		}

		record = &models.FileRecord{
			ShortCode:  code,
			FileRef:    fileRef,
			FileType:   fileType,
			Caption:    caption,
			Size:       size,
			UploadedBy: uploaderID,
			IsActive:   true,
		}
		err = s.Files.CreateFileRecord(ctx, record)
		if err == nil {
			break
		}
		if errors.Is(err, store.ErrDuplicateCode) {
			// Another upload reserved the same code between draw and insert.
			metrics.CodeCollisionsTotal.Inc()
			continue
		}
		return "", fmt.Errorf("create file record: %w", err)
	}

	if err := s.Users.IncrementFilesShared(ctx, uploaderID); err != nil && !errors.Is(err, store.ErrNotFound) {
		s.Audit.Alert(ctx, "files_shared_counter_failed", err, map[string]interface{}{
			"user_id": uploaderID,
		})
	}

	metrics.UploadsTotal.Inc()
	logger.InfoWithUser(uploaderID, "file_stored", map[string]interface{}{
		"short_code": record.ShortCode,
		"file_type":  string(fileType),
		"size":       size,
	})
	s.Audit.LogAsync(AuditEntry{
		UserID:       userRef(uploaderID),
		Action:       "file.upload",
		ResourceType: "file",
		ResourceID:   record.ShortCode,
		Details: map[string]interface{}{
			"file_type": string(fileType),
			"size":      size,
		},
	})
	return record.ShortCode, nil
}

func (s *FileService) Get(ctx context.Context, code string) (*models.FileRecord, error) {
	record, err := s.Files.GetActiveFile(ctx, strings.ToLower(strings.TrimSpace(code)))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return record, nil
}

// ShareLink is the public link that redeems code.
func (s *FileService) ShareLink(code string) string {
	return DeepLink(s.BotUsername, code)
}
