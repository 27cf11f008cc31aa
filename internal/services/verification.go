package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/filegate/backend/internal/models"
	"github.com/filegate/backend/internal/store"
	"github.com/filegate/backend/pkg/logger"
)

const (
	// CallbackVerified acknowledges a followed verification link.
	CallbackVerified = "verified:"
	// CallbackCheck re-runs a redemption after joining channels.
	CallbackCheck = "check:"
)

type VerificationUsers interface {
	GetUser(ctx context.Context, telegramID int64) (*models.User, error)
	MarkVerified(ctx context.Context, telegramID int64, at time.Time) (bool, error)
}

// ChallengeLink is what a pending user is shown: the URL to follow and the
// callback data of the acknowledgement button.
type ChallengeLink struct {
	URL       string
	DeepLink  string
	Shortened bool
	AckData   string
}

type VerifiedResult struct {
	AlreadyVerified bool
	VerifiedAt      time.Time
}

// VerificationService tracks the one-time human verification of a user.
// A user moves UNVERIFIED -> PENDING (challenge issued, nothing stored) ->
// VERIFIED, and never leaves VERIFIED.
type VerificationService struct {
	Users       VerificationUsers
	Shortener   Shortener
	BotUsername string
	Timeout     time.Duration
	now         func() time.Time
}

func NewVerificationService(users VerificationUsers, shortener Shortener, botUsername string, timeout time.Duration) *VerificationService {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &VerificationService{
		Users:       users,
		Shortener:   shortener,
		BotUsername: strings.TrimPrefix(botUsername, "@"),
		Timeout:     timeout,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *VerificationService) IsVerified(ctx context.Context, userID int64) (bool, error) {
	user, err := s.Users.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("load user: %w", err)
	}
	return user.Verified, nil
}

// IssueChallenge builds the verification link for a redemption of
// shortCode. It never fails: when the shortener is unavailable the raw deep
// link is returned instead.
func (s *VerificationService) IssueChallenge(ctx context.Context, userID int64, shortCode string) ChallengeLink {
	link := ChallengeLink{
		DeepLink: DeepLink(s.BotUsername, shortCode),
		AckData:  CallbackVerified + shortCode,
	}
	link.URL = link.DeepLink

	if s.Shortener == nil {
		return link
	}

	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	shortURL, err := s.Shortener.Shorten(ctx, link.DeepLink)
	if err != nil {
		if !errors.Is(err, errShortenerNotConfigured) {
			logger.WarnWithUser(userID, "shortener_failed", map[string]interface{}{
				"short_code": shortCode,
				"error":      err.Error(),
			})
		}
		return link
	}

	link.URL = shortURL
	link.Shortened = true
	return link
}

// ConsumeChallenge marks the user verified. Calling it again is a no-op.
// Completion is taken on trust; it is not bound to an issued link.
func (s *VerificationService) ConsumeChallenge(ctx context.Context, userID int64) (VerifiedResult, error) {
	now := s.now()
	changed, err := s.Users.MarkVerified(ctx, userID, now)
	if err != nil {
		return VerifiedResult{}, fmt.Errorf("mark verified: %w", err)
	}
	if changed {
		logger.InfoWithUser(userID, "user_verified", nil)
		return VerifiedResult{VerifiedAt: now}, nil
	}

	user, err := s.Users.GetUser(ctx, userID)
	if err != nil {
		return VerifiedResult{}, fmt.Errorf("load user: %w", err)
	}
	result := VerifiedResult{AlreadyVerified: true}
	if user.VerifiedAt != nil {
		result.VerifiedAt = *user.VerifiedAt
	}
	return result, nil
}

// DeepLink is the bot URL that starts a redemption of code.
func DeepLink(botUsername, code string) string {
	return fmt.Sprintf("https://t.me/%s?start=%s", strings.TrimPrefix(botUsername, "@"), url.QueryEscape(code))
}
