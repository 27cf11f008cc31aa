package store

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/filegate/backend/internal/models"
	"github.com/filegate/backend/pkg/logger"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Settings is the typed key/value view consumed by the services. Every
// lookup takes the caller's default, returned when the key is unset or
// unparsable.
type Settings interface {
	GetString(ctx context.Context, key, fallback string) string
	GetInt(ctx context.Context, key string, fallback int) int
	GetBool(ctx context.Context, key string, fallback bool) bool
	Set(ctx context.Context, key, value string) error
	All(ctx context.Context) (map[string]string, error)
}

type cachedSetting struct {
	value string
	found bool
}

type SettingsStore struct {
	DB    *gorm.DB
	cache *expirable.LRU[string, cachedSetting]
}

func NewSettingsStore(db *gorm.DB, ttl time.Duration) *SettingsStore {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &SettingsStore{
		DB:    db,
		cache: expirable.NewLRU[string, cachedSetting](256, nil, ttl),
	}
}

var _ Settings = (*SettingsStore)(nil)

func (s *SettingsStore) lookup(ctx context.Context, key string) (string, bool) {
	if cached, ok := s.cache.Get(key); ok {
		return cached.value, cached.found
	}

	var setting models.Setting
	err := s.DB.WithContext(ctx).First(&setting, "setting_key = ?", key).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Error("setting_lookup_failed", err, map[string]interface{}{
				"key": key,
			})
			return "", false
		}
		s.cache.Add(key, cachedSetting{})
		return "", false
	}

	s.cache.Add(key, cachedSetting{value: setting.Value, found: true})
	return setting.Value, true
}

func (s *SettingsStore) GetString(ctx context.Context, key, fallback string) string {
	if value, ok := s.lookup(ctx, key); ok {
		return value
	}
	return fallback
}

func (s *SettingsStore) GetInt(ctx context.Context, key string, fallback int) int {
	if value, ok := s.lookup(ctx, key); ok {
		parsed, err := strconv.Atoi(strings.TrimSpace(value))
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func (s *SettingsStore) GetBool(ctx context.Context, key string, fallback bool) bool {
	if value, ok := s.lookup(ctx, key); ok {
		parsed, err := strconv.ParseBool(strings.TrimSpace(value))
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func (s *SettingsStore) Set(ctx context.Context, key, value string) error {
	setting := models.Setting{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "setting_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&setting).Error
	if err != nil {
		return err
	}
	s.cache.Remove(key)
	return nil
}

// SeedDefaults writes values for keys that have never been set. Existing
// rows are left untouched so admin changes survive restarts.
func (s *SettingsStore) SeedDefaults(ctx context.Context, defaults map[string]string) error {
	now := time.Now().UTC()
	for key, value := range defaults {
		setting := models.Setting{Key: key, Value: value, UpdatedAt: now}
		if err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&setting).Error; err != nil {
			return err
		}
		s.cache.Remove(key)
	}
	return nil
}

func (s *SettingsStore) All(ctx context.Context) (map[string]string, error) {
	var settings []models.Setting
	if err := s.DB.WithContext(ctx).Order("setting_key ASC").Find(&settings).Error; err != nil {
		return nil, err
	}
	result := make(map[string]string, len(settings))
	for _, setting := range settings {
		result[setting.Key] = setting.Value
	}
	return result, nil
}
