package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/filegate/backend/internal/metrics"
	"github.com/filegate/backend/internal/transport"
	"github.com/filegate/backend/pkg/logger"
	"github.com/filegate/backend/pkg/ratelimit"
)

type RecipientLister interface {
	ListRecipients(ctx context.Context, afterTelegramID int64, limit int) ([]int64, error)
}

type BroadcastSender interface {
	SendText(ctx context.Context, chatID int64, text string, buttons [][]transport.Button) (int, error)
	ForwardMessage(ctx context.Context, toChatID int64, fromChatID int64, messageID int) (int, error)
}

// BroadcastMessage is either plain text or an existing message to forward.
type BroadcastMessage struct {
	Text       string
	FromChatID int64
	MessageID  int
}

func (m BroadcastMessage) isForward() bool {
	return m.MessageID != 0
}

type BroadcastResult struct {
	Total  int `json:"total"`
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

type BroadcastService struct {
	Users     RecipientLister
	Transport BroadcastSender
	Limiter   ratelimit.Limiter
	Audit     Auditor
	PageSize  int
}

func NewBroadcastService(users RecipientLister, sender BroadcastSender, limiter ratelimit.Limiter, audit Auditor, pageSize int) *BroadcastService {
	if pageSize <= 0 {
		pageSize = 500
	}
	return &BroadcastService{
		Users:     users,
		Transport: sender,
		Limiter:   limiter,
		Audit:     audit,
		PageSize:  pageSize,
	}
}

// Send delivers msg to every user who is not banned. A failed send is
// counted and skipped; only cancellation or a store error stops the run.
func (s *BroadcastService) Send(ctx context.Context, actorID int64, msg BroadcastMessage) (BroadcastResult, error) {
	var result BroadcastResult
	if !msg.isForward() && strings.TrimSpace(msg.Text) == "" {
		return result, fmt.Errorf("broadcast message is empty")
	}

	var after int64
	for {
		recipients, err := s.Users.ListRecipients(ctx, after, s.PageSize)
		if err != nil {
			return result, fmt.Errorf("list recipients: %w", err)
		}
		if len(recipients) == 0 {
			break
		}

		for _, chatID := range recipients {
			if s.Limiter != nil {
				if err := s.Limiter.Acquire(ctx); err != nil {
					s.finish(actorID, result, err)
					return result, err
				}
			}

			result.Total++
			if err := s.sendOne(ctx, chatID, msg); err != nil {
				result.Failed++
				metrics.BroadcastMessagesTotal.WithLabelValues("failed").Inc()
				logger.WarnWithUser(chatID, "broadcast_send_failed", map[string]interface{}{
					"error": err.Error(),
				})
				continue
			}
			result.Sent++
			metrics.BroadcastMessagesTotal.WithLabelValues("sent").Inc()
		}

		after = recipients[len(recipients)-1]
		if len(recipients) < s.PageSize {
			break
		}
	}

	s.finish(actorID, result, nil)
	return result, nil
}

func (s *BroadcastService) sendOne(ctx context.Context, chatID int64, msg BroadcastMessage) error {
	if msg.isForward() {
		_, err := s.Transport.ForwardMessage(ctx, chatID, msg.FromChatID, msg.MessageID)
		return err
	}
	_, err := s.Transport.SendText(ctx, chatID, msg.Text, nil)
	return err
}

func (s *BroadcastService) finish(actorID int64, result BroadcastResult, err error) {
	details := map[string]interface{}{
		"total":  result.Total,
		"sent":   result.Sent,
		"failed": result.Failed,
	}
	if err != nil {
		details["aborted"] = err.Error()
	}
	logger.InfoWithUser(actorID, "broadcast_finished", details)

	var actor *int64
	if actorID != 0 {
		actor = userRef(actorID)
	}
	s.Audit.LogAsync(AuditEntry{
		UserID:       actor,
		Action:       "admin.broadcast",
		ResourceType: "broadcast",
		Details:      details,
	})
}
