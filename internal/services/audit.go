package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/filegate/backend/internal/models"
	"github.com/filegate/backend/internal/transport"
	"github.com/filegate/backend/pkg/logger"
	"gorm.io/gorm"
)

type AuditEntry struct {
	UserID       *int64
	Action       string
	ResourceType string
	ResourceID   string
	Details      map[string]interface{}
}

// ObjectUploader is the object-storage capability the exporter needs.
type ObjectUploader interface {
	Upload(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error
}

type TextSender interface {
	SendText(ctx context.Context, chatID int64, text string, buttons [][]transport.Button) (int, error)
}

type AuditService struct {
	DB           *gorm.DB
	Storage      ObjectUploader
	Notifier     TextSender
	LogChannelID int64

	queue  chan models.AuditLog
	done   chan struct{}
	mu     sync.RWMutex
	closed bool
}

func NewAuditService(db *gorm.DB, storage ObjectUploader, queueSize int) *AuditService {
	if queueSize <= 0 {
		queueSize = 1000
	}
	s := &AuditService{
		DB:      db,
		Storage: storage,
		queue:   make(chan models.AuditLog, queueSize),
		done:    make(chan struct{}),
	}
	go s.processQueue()
	return s
}

// WithAlerts routes escalations to a Telegram chat in addition to the log.
func (s *AuditService) WithAlerts(notifier TextSender, chatID int64) *AuditService {
	s.Notifier = notifier
	s.LogChannelID = chatID
	return s
}

func (s *AuditService) LogAsync(entry AuditEntry) {
	row := models.AuditLog{
		UserID:       entry.UserID,
		Action:       entry.Action,
		ResourceType: entry.ResourceType,
		ResourceID:   entry.ResourceID,
		Details:      entry.Details,
		CreatedAt:    time.Now().UTC(),
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		logger.Warn("audit_queue_closed", map[string]interface{}{
			"action":  entry.Action,
			"dropped": true,
		})
		return
	}

	select {
	case s.queue <- row:
	default:
		logger.Warn("audit_queue_full", map[string]interface{}{
			"action":  entry.Action,
			"dropped": true,
		})
	}
}

// Close stops accepting entries and waits until queued rows are written.
func (s *AuditService) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()
	<-s.done
}

func (s *AuditService) processQueue() {
	defer close(s.done)
	for row := range s.queue {
		if err := s.DB.Create(&row).Error; err != nil {
			logger.Error("audit_log_insert_failed", err, map[string]interface{}{
				"action": row.Action,
			})
		}
	}
}

// Alert escalates a failure that needs operator attention: it is always
// logged, and posted to the log channel when one is configured.
func (s *AuditService) Alert(ctx context.Context, action string, err error, details map[string]interface{}) {
	logger.Error(action, err, details)

	if s.Notifier == nil || s.LogChannelID == 0 {
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "⚠️ %s", action)
	if err != nil {
		fmt.Fprintf(&b, "\nerror: %s", err.Error())
	}
	keys := make([]string, 0, len(details))
	for key := range details {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(&b, "\n%s: %v", key, details[key])
	}

	if _, sendErr := s.Notifier.SendText(ctx, s.LogChannelID, b.String(), nil); sendErr != nil {
		logger.Error("alert_send_failed", sendErr, map[string]interface{}{
			"action": action,
		})
	}
}

// StartExporter periodically ships new audit rows to object storage as
// NDJSON until ctx is cancelled.
func (s *AuditService) StartExporter(ctx context.Context, interval time.Duration) {
	if s.Storage == nil {
		logger.Info("audit_exporter_disabled", map[string]interface{}{
			"reason": "no storage client configured",
		})
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.exportToStorage(ctx)
			}
		}
	}()

	logger.Info("audit_exporter_started", map[string]interface{}{
		"interval": interval.String(),
	})
}

func (s *AuditService) exportToStorage(ctx context.Context) {
	var cursor models.AuditExportCursor
	err := s.DB.WithContext(ctx).First(&cursor).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			cursor = models.AuditExportCursor{
				LastExportAt: time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
			}
			if createErr := s.DB.WithContext(ctx).Create(&cursor).Error; createErr != nil {
				logger.Error("audit_export_cursor_create_failed", createErr, nil)
				return
			}
		} else {
			logger.Error("audit_export_cursor_load_failed", err, nil)
			return
		}
	}

	var logs []models.AuditLog
	if err := s.DB.WithContext(ctx).Where("created_at > ?", cursor.LastExportAt).
		Order("created_at ASC").
		Limit(10000).
		Find(&logs).Error; err != nil {
		logger.Error("audit_export_query_failed", err, nil)
		return
	}

	if len(logs) == 0 {
		return
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, log := range logs {
		if err := enc.Encode(log); err != nil {
			logger.Error("audit_export_encode_failed", err, map[string]interface{}{
				"log_id": log.ID.String(),
			})
			continue
		}
	}

	now := time.Now().UTC()
	objectName := fmt.Sprintf("audit-logs/%s/%s.ndjson",
		now.Format("2006/01/02"),
		now.Format("15-04-05"),
	)

	if err := s.Storage.Upload(ctx, objectName, &buf, int64(buf.Len()), "application/x-ndjson"); err != nil {
		logger.Error("audit_export_upload_failed", err, map[string]interface{}{
			"object_name": objectName,
			"count":       len(logs),
		})
		return
	}

	lastCreatedAt := logs[len(logs)-1].CreatedAt
	if err := s.DB.WithContext(ctx).Model(&cursor).Updates(map[string]interface{}{
		"last_export_at": lastCreatedAt,
		"exported_count": gorm.Expr("exported_count + ?", len(logs)),
	}).Error; err != nil {
		// The object is already uploaded; the next run re-ships these rows.
		logger.Error("audit_export_cursor_update_failed", err, map[string]interface{}{
			"object_name": objectName,
			"count":       len(logs),
		})
		return
	}

	logger.Info("audit_export_success", map[string]interface{}{
		"object_name": objectName,
		"count":       len(logs),
	})
}

func userRef(id int64) *int64 {
	return &id
}
