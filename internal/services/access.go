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

type Outcome string

const (
	OutcomeNotFound            Outcome = "NOT_FOUND"
	OutcomeBlocked             Outcome = "BLOCKED"
	OutcomePendingSubscription Outcome = "PENDING_SUBSCRIPTION"
	OutcomePendingVerification Outcome = "PENDING_VERIFICATION"
	OutcomeDelivered           Outcome = "DELIVERED"
	OutcomeDeliveryFailed      Outcome = "DELIVERY_FAILED"
)

// RedeemResult is the terminal state of one redemption. Only the fields
// belonging to Outcome are set.
type RedeemResult struct {
	Outcome   Outcome
	ShortCode string
	File      *models.FileRecord

	Missing     []models.GateChannel
	RecheckData string

	Challenge *ChallengeLink
	Delivered *DeliveredMessage
}

// Err maps the outcome onto the error taxonomy; nil means delivered.
func (r RedeemResult) Err() error {
	switch r.Outcome {
	case OutcomeDelivered:
		return nil
	case OutcomeNotFound:
		return ErrNotFound
	case OutcomeBlocked:
		return ErrBlocked
	case OutcomePendingSubscription, OutcomePendingVerification:
		return ErrGateUnsatisfied
	case OutcomeDeliveryFailed:
		return ErrDeliveryFailed
	default:
		return fmt.Errorf("unknown redemption outcome %q", r.Outcome)
	}
}

type SubscriptionChecker interface {
	CheckSubscription(ctx context.Context, userID int64) (SubscriptionResult, error)
}

type VerificationGate interface {
	IsVerified(ctx context.Context, userID int64) (bool, error)
	IssueChallenge(ctx context.Context, userID int64, shortCode string) ChallengeLink
}

type Deliverer interface {
	Deliver(ctx context.Context, chatID int64, file *models.FileRecord, protectContent bool) (DeliveredMessage, error)
}

type Auditor interface {
	LogAsync(entry AuditEntry)
	Alert(ctx context.Context, action string, err error, details map[string]interface{})
}

// AccessService runs the redemption state machine:
// LOOKUP -> BAN_CHECK -> SUBSCRIPTION_CHECK -> VERIFICATION_CHECK -> DELIVER.
// Each call starts from LOOKUP; nothing resumes a previous attempt.
type AccessService struct {
	Users          store.UserStore
	Files          store.FileStore
	Subscription   SubscriptionChecker
	Verification   VerificationGate
	Delivery       Deliverer
	Settings       store.Settings
	Audit          Auditor
	DefaultProtect bool
}

func NewAccessService(
	users store.UserStore,
	files store.FileStore,
	subscription SubscriptionChecker,
	verification VerificationGate,
	delivery Deliverer,
	settings store.Settings,
	audit Auditor,
) *AccessService {
	return &AccessService{
		Users:        users,
		Files:        files,
		Subscription: subscription,
		Verification: verification,
		Delivery:     delivery,
		Settings:     settings,
		Audit:        audit,
	}
}

// Redeem decides whether userID may receive the file behind shortCode and
// delivers it when every gate passes. The error return is reserved for
// persistence failures; gate outcomes are reported in the result.
func (s *AccessService) Redeem(ctx context.Context, userID int64, shortCode string) (RedeemResult, error) {
	shortCode = strings.ToLower(strings.TrimSpace(shortCode))
	result, err := s.redeem(ctx, userID, shortCode)
	if err != nil {
		s.Audit.Alert(ctx, "redeem_persistence_failed", err, map[string]interface{}{
			"user_id":    userID,
			"short_code": shortCode,
		})
		return RedeemResult{}, err
	}

	metrics.RedemptionsTotal.WithLabelValues(string(result.Outcome)).Inc()
	logger.InfoWithUser(userID, "redeem_"+strings.ToLower(string(result.Outcome)), map[string]interface{}{
		"short_code": shortCode,
	})
	return result, nil
}

func (s *AccessService) redeem(ctx context.Context, userID int64, shortCode string) (RedeemResult, error) {
	result := RedeemResult{ShortCode: shortCode}

	file, err := s.Files.GetActiveFile(ctx, shortCode)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			result.Outcome = OutcomeNotFound
			return result, nil
		}
		return result, fmt.Errorf("lookup file: %w", err)
	}
	result.File = file

	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return result, err
	}
	if user.Banned {
		result.Outcome = OutcomeBlocked
		return result, nil
	}

	subscription, err := s.Subscription.CheckSubscription(ctx, userID)
	if err != nil {
		return result, fmt.Errorf("check subscription: %w", err)
	}
	if !subscription.Passed {
		result.Outcome = OutcomePendingSubscription
		result.Missing = subscription.Missing
		result.RecheckData = CallbackCheck + shortCode
		return result, nil
	}

	if s.Settings.GetBool(ctx, models.SettingVerificationEnabled, true) {
		verified, err := s.Verification.IsVerified(ctx, userID)
		if err != nil {
			return result, fmt.Errorf("check verification: %w", err)
		}
		if !verified {
			if err := s.Files.IncrementViews(ctx, shortCode); err != nil {
				return result, fmt.Errorf("increment views: %w", err)
			}
			challenge := s.Verification.IssueChallenge(ctx, userID, shortCode)
			result.Outcome = OutcomePendingVerification
			result.Challenge = &challenge
			return result, nil
		}
	}

	protect := s.Settings.GetBool(ctx, models.SettingProtectContent, s.DefaultProtect)
	delivered, err := s.Delivery.Deliver(ctx, userID, file, protect)
	if err != nil {
		s.Audit.Alert(ctx, "delivery_failed", err, map[string]interface{}{
			"user_id":    userID,
			"short_code": shortCode,
		})
		result.Outcome = OutcomeDeliveryFailed
		return result, nil
	}
	result.Outcome = OutcomeDelivered
	result.Delivered = &delivered

	// The file is already with the user; counter failures are escalated
	// without changing the outcome.
	if err := s.Files.IncrementDownloads(ctx, shortCode); err != nil {
		s.Audit.Alert(ctx, "download_counter_failed", err, map[string]interface{}{
			"short_code": shortCode,
		})
	}
	if err := s.Users.IncrementFilesAccessed(ctx, userID); err != nil {
		s.Audit.Alert(ctx, "files_accessed_counter_failed", err, map[string]interface{}{
			"user_id": userID,
		})
	}

	s.Audit.LogAsync(AuditEntry{
		UserID:       userRef(userID),
		Action:       "file.deliver",
		ResourceType: "file",
		ResourceID:   shortCode,
		Details: map[string]interface{}{
			"file_type":  string(file.FileType),
			"protected":  protect,
			"message_id": delivered.MessageID,
		},
	})
	return result, nil
}

func (s *AccessService) loadUser(ctx context.Context, userID int64) (*models.User, error) {
	user, err := s.Users.GetUser(ctx, userID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("load user: %w", err)
	}

	user, err = s.Users.TouchUser(ctx, store.UserProfile{TelegramID: userID})
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}
