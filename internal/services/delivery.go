package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/filegate/backend/internal/metrics"
	"github.com/filegate/backend/internal/models"
	"github.com/filegate/backend/internal/store"
	"github.com/filegate/backend/internal/transport"
	"github.com/filegate/backend/pkg/logger"
)

type FileSender interface {
	SendFile(ctx context.Context, chatID int64, fileRef string, fileType models.FileType, caption string, protectContent bool) (int, error)
	SendText(ctx context.Context, chatID int64, text string, buttons [][]transport.Button) (int, error)
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
}

// DeliveredMessage identifies a sent file. PurgeAt is zero when no
// deletion was scheduled.
type DeliveredMessage struct {
	ChatID    int64
	MessageID int
	PurgeAt   time.Time
}

type DeliveryService struct {
	Transport         FileSender
	Settings          store.Settings
	DefaultAutoDelete int
	PurgeTimeout      time.Duration
	schedule          func(delay time.Duration, fn func())
}

func NewDeliveryService(sender FileSender, settings store.Settings, defaultAutoDelete int, purgeTimeout time.Duration) *DeliveryService {
	if purgeTimeout <= 0 {
		purgeTimeout = 10 * time.Second
	}
	return &DeliveryService{
		Transport:         sender,
		Settings:          settings,
		DefaultAutoDelete: defaultAutoDelete,
		PurgeTimeout:      purgeTimeout,
		schedule: func(delay time.Duration, fn func()) {
			time.AfterFunc(delay, fn)
		},
	}
}

// Deliver sends the file to chatID. When auto-delete is configured the
// message is removed after the delay; removal is best effort and never
// reported back to the caller.
func (s *DeliveryService) Deliver(ctx context.Context, chatID int64, file *models.FileRecord, protectContent bool) (DeliveredMessage, error) {
	messageID, err := s.Transport.SendFile(ctx, chatID, file.FileRef, file.FileType, file.Caption, protectContent)
	if err != nil {
		return DeliveredMessage{}, fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}

	delivered := DeliveredMessage{ChatID: chatID, MessageID: messageID}

	seconds := s.Settings.GetInt(ctx, models.SettingAutoDeleteSeconds, s.DefaultAutoDelete)
	if seconds <= 0 {
		return delivered, nil
	}

	delay := time.Duration(seconds) * time.Second
	delivered.PurgeAt = time.Now().UTC().Add(delay)

	messageIDs := []int{messageID}
	if noticeID, err := s.Transport.SendText(ctx, chatID, purgeNotice(delay), nil); err != nil {
		logger.Warn("purge_notice_failed", map[string]interface{}{
			"chat_id": chatID,
			"error":   err.Error(),
		})
	} else {
		messageIDs = append(messageIDs, noticeID)
	}

	s.schedule(delay, func() {
		for _, id := range messageIDs {
			s.purge(chatID, id)
		}
	})
	return delivered, nil
}

func (s *DeliveryService) purge(chatID int64, messageID int) {
	ctx, cancel := context.WithTimeout(context.Background(), s.PurgeTimeout)
	defer cancel()

	err := s.Transport.DeleteMessage(ctx, chatID, messageID)
	switch {
	case err == nil:
		metrics.PurgesTotal.WithLabelValues("deleted").Inc()
	case errors.Is(err, transport.ErrMessageNotFound):
		metrics.PurgesTotal.WithLabelValues("gone").Inc()
	default:
		metrics.PurgesTotal.WithLabelValues("failed").Inc()
		logger.Warn("purge_failed", map[string]interface{}{
			"chat_id":    chatID,
			"message_id": messageID,
			"error":      err.Error(),
		})
	}
}

func purgeNotice(delay time.Duration) string {
	if delay >= time.Minute && delay%time.Minute == 0 {
		minutes := int(delay / time.Minute)
		unit := "minutes"
		if minutes == 1 {
			unit = "minute"
		}
		return fmt.Sprintf("This file will be deleted in %d %s. Save it before then.", minutes, unit)
	}
	return fmt.Sprintf("This file will be deleted in %d seconds. Save it before then.", int(delay/time.Second))
}
