// Package store is the persistence contract of the gating engine: users,
// file records, gate channels and settings. It holds no policy.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/filegate/backend/internal/models"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrDuplicateCode = errors.New("short code already exists")
)

// UserProfile carries the identity fields refreshed on every interaction.
type UserProfile struct {
	TelegramID int64
	Username   string
	FirstName  string
}

type UserStore interface {
	TouchUser(ctx context.Context, profile UserProfile) (*models.User, error)
	GetUser(ctx context.Context, telegramID int64) (*models.User, error)
	// MarkVerified sets the verified flag once; it reports false when the
	// user was already verified.
	MarkVerified(ctx context.Context, telegramID int64, at time.Time) (bool, error)
	SetBanned(ctx context.Context, telegramID int64, banned bool) error
	IncrementFilesShared(ctx context.Context, telegramID int64) error
	IncrementFilesAccessed(ctx context.Context, telegramID int64) error
	ListRecipients(ctx context.Context, afterTelegramID int64, limit int) ([]int64, error)
}

type FileStore interface {
	// CodeExists includes inactive records.
	CodeExists(ctx context.Context, code string) (bool, error)
	// CreateFileRecord returns ErrDuplicateCode when the code is taken.
	CreateFileRecord(ctx context.Context, record *models.FileRecord) error
	// GetActiveFile returns ErrNotFound for unknown and inactive codes.
	GetActiveFile(ctx context.Context, code string) (*models.FileRecord, error)
	DeactivateFile(ctx context.Context, code string) error
	IncrementViews(ctx context.Context, code string) error
	IncrementDownloads(ctx context.Context, code string) error
}

type ChannelStore interface {
	ListGateChannels(ctx context.Context) ([]models.GateChannel, error)
	AddGateChannel(ctx context.Context, channel *models.GateChannel) error
	RemoveGateChannel(ctx context.Context, channelID int64) error
}

type Stats struct {
	Users          int64 `json:"users"`
	VerifiedUsers  int64 `json:"verifiedUsers"`
	BannedUsers    int64 `json:"bannedUsers"`
	Files          int64 `json:"files"`
	ActiveFiles    int64 `json:"activeFiles"`
	TotalViews     int64 `json:"totalViews"`
	TotalDownloads int64 `json:"totalDownloads"`
	GateChannels   int64 `json:"gateChannels"`
}

type StatsStore interface {
	Stats(ctx context.Context) (Stats, error)
}

// RecordStore is the full record contract implemented by GormStore.
type RecordStore interface {
	UserStore
	FileStore
	ChannelStore
	StatsStore
}
