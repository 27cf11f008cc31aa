package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/filegate/backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GormStore struct {
	DB *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{DB: db}
}

var _ RecordStore = (*GormStore)(nil)

func (s *GormStore) TouchUser(ctx context.Context, profile UserProfile) (*models.User, error) {
	now := time.Now().UTC()
	user := models.User{
		TelegramID: profile.TelegramID,
		Username:   profile.Username,
		FirstName:  profile.FirstName,
		LastActive: now,
	}

	updates := []string{"last_active", "updated_at"}
	if profile.Username != "" {
		updates = append(updates, "username")
	}
	if profile.FirstName != "" {
		updates = append(updates, "first_name")
	}

	err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "telegram_id"}},
		DoUpdates: clause.AssignmentColumns(updates),
	}).Create(&user).Error
	if err != nil {
		return nil, err
	}

	return s.GetUser(ctx, profile.TelegramID)
}

func (s *GormStore) GetUser(ctx context.Context, telegramID int64) (*models.User, error) {
	var user models.User
	if err := s.DB.WithContext(ctx).First(&user, "telegram_id = ?", telegramID).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (s *GormStore) MarkVerified(ctx context.Context, telegramID int64, at time.Time) (bool, error) {
	result := s.DB.WithContext(ctx).Model(&models.User{}).
		Where("telegram_id = ? AND verified = ?", telegramID, false).
		Updates(map[string]interface{}{
			"verified":    true,
			"verified_at": at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected > 0 {
		return true, nil
	}

	if _, err := s.GetUser(ctx, telegramID); err != nil {
		return false, err
	}
	return false, nil
}

func (s *GormStore) SetBanned(ctx context.Context, telegramID int64, banned bool) error {
	result := s.DB.WithContext(ctx).Model(&models.User{}).
		Where("telegram_id = ?", telegramID).
		Update("banned", banned)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) IncrementFilesShared(ctx context.Context, telegramID int64) error {
	return s.incrementUser(ctx, telegramID, "files_shared")
}

func (s *GormStore) IncrementFilesAccessed(ctx context.Context, telegramID int64) error {
	return s.incrementUser(ctx, telegramID, "files_accessed")
}

func (s *GormStore) incrementUser(ctx context.Context, telegramID int64, column string) error {
	result := s.DB.WithContext(ctx).Model(&models.User{}).
		Where("telegram_id = ?", telegramID).
		UpdateColumn(column, gorm.Expr(column+" + ?", 1))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) ListRecipients(ctx context.Context, afterTelegramID int64, limit int) ([]int64, error) {
	var ids []int64
	err := s.DB.WithContext(ctx).Model(&models.User{}).
		Where("banned = ? AND telegram_id > ?", false, afterTelegramID).
		Order("telegram_id ASC").
		Limit(limit).
		Pluck("telegram_id", &ids).Error
	return ids, err
}

func (s *GormStore) CodeExists(ctx context.Context, code string) (bool, error) {
	var count int64
	if err := s.DB.WithContext(ctx).Model(&models.FileRecord{}).
		Where("short_code = ?", code).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *GormStore) CreateFileRecord(ctx context.Context, record *models.FileRecord) error {
	if err := s.DB.WithContext(ctx).Create(record).Error; err != nil {
		if isDuplicate(err) {
			return ErrDuplicateCode
		}
		return err
	}
	return nil
}

func (s *GormStore) GetActiveFile(ctx context.Context, code string) (*models.FileRecord, error) {
	var record models.FileRecord
	err := s.DB.WithContext(ctx).
		Where("short_code = ? AND is_active = ?", code, true).
		First(&record).Error
	if err != nil {
		return nil, translate(err)
	}
	return &record, nil
}

func (s *GormStore) DeactivateFile(ctx context.Context, code string) error {
	result := s.DB.WithContext(ctx).Model(&models.FileRecord{}).
		Where("short_code = ? AND is_active = ?", code, true).
		Update("is_active", false)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) IncrementViews(ctx context.Context, code string) error {
	return s.incrementFile(ctx, code, "views")
}

func (s *GormStore) IncrementDownloads(ctx context.Context, code string) error {
	return s.incrementFile(ctx, code, "downloads")
}

func (s *GormStore) incrementFile(ctx context.Context, code string, column string) error {
	result := s.DB.WithContext(ctx).Model(&models.FileRecord{}).
		Where("short_code = ?", code).
		UpdateColumn(column, gorm.Expr(column+" + ?", 1))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) ListGateChannels(ctx context.Context) ([]models.GateChannel, error) {
	var channels []models.GateChannel
	err := s.DB.WithContext(ctx).Order("created_at ASC").Order("channel_id ASC").Find(&channels).Error
	return channels, err
}

func (s *GormStore) AddGateChannel(ctx context.Context, channel *models.GateChannel) error {
	return s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "channel_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"handle", "title", "updated_at"}),
	}).Create(channel).Error
}

func (s *GormStore) RemoveGateChannel(ctx context.Context, channelID int64) error {
	result := s.DB.WithContext(ctx).Where("channel_id = ?", channelID).Delete(&models.GateChannel{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	db := s.DB.WithContext(ctx)

	if err := db.Model(&models.User{}).Count(&stats.Users).Error; err != nil {
		return stats, err
	}
	if err := db.Model(&models.User{}).Where("verified = ?", true).Count(&stats.VerifiedUsers).Error; err != nil {
		return stats, err
	}
	if err := db.Model(&models.User{}).Where("banned = ?", true).Count(&stats.BannedUsers).Error; err != nil {
		return stats, err
	}
	if err := db.Model(&models.FileRecord{}).Count(&stats.Files).Error; err != nil {
		return stats, err
	}
	if err := db.Model(&models.FileRecord{}).Where("is_active = ?", true).Count(&stats.ActiveFiles).Error; err != nil {
		return stats, err
	}

	var totals struct {
		Views     int64
		Downloads int64
	}
	if err := db.Model(&models.FileRecord{}).
		Select("COALESCE(SUM(views), 0) AS views, COALESCE(SUM(downloads), 0) AS downloads").
		Scan(&totals).Error; err != nil {
		return stats, err
	}
	stats.TotalViews = totals.Views
	stats.TotalDownloads = totals.Downloads

	if err := db.Model(&models.GateChannel{}).Count(&stats.GateChannels).Error; err != nil {
		return stats, err
	}
	return stats, nil
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// Drivers without an error translator surface the raw message.
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate")
}
