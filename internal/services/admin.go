package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/filegate/backend/internal/models"
	"github.com/filegate/backend/internal/store"
	"github.com/filegate/backend/internal/transport"
	"github.com/filegate/backend/pkg/logger"
)

type ChatResolver interface {
	GetChatInfo(ctx context.Context, handle string) (transport.ChatInfo, error)
}

// AdminService is the operator surface shared by bot commands and the HTTP
// admin API. Every mutation is audited with the acting admin.
type AdminService struct {
	Records  store.RecordStore
	Settings store.Settings
	Chats    ChatResolver
	Audit    Auditor
}

func NewAdminService(records store.RecordStore, settings store.Settings, chats ChatResolver, audit Auditor) *AdminService {
	return &AdminService{
		Records:  records,
		Settings: settings,
		Chats:    chats,
		Audit:    audit,
	}
}

func (s *AdminService) ListChannels(ctx context.Context) ([]models.GateChannel, error) {
	return s.Records.ListGateChannels(ctx)
}

// AddChannel resolves handle (an @username or a numeric chat id) and adds
// the channel to the subscription requirement.
func (s *AdminService) AddChannel(ctx context.Context, actorID int64, handle string) (*models.GateChannel, error) {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return nil, fmt.Errorf("channel handle is required")
	}

	info, err := s.Chats.GetChatInfo(ctx, handle)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve %s: %v", ErrUpstreamUnavailable, handle, err)
	}

	channel := &models.GateChannel{
		ChannelID: info.ID,
		Title:     info.Title,
	}
	if _, err := strconv.ParseInt(handle, 10, 64); err != nil {
		channel.Handle = strings.TrimPrefix(handle, "@")
	}
	if err := s.Records.AddGateChannel(ctx, channel); err != nil {
		return nil, fmt.Errorf("add gate channel: %w", err)
	}

	s.audit(actorID, "admin.channel_add", "channel", strconv.FormatInt(info.ID, 10), map[string]interface{}{
		"handle": channel.Handle,
		"title":  channel.Title,
	})
	return channel, nil
}

func (s *AdminService) RemoveChannel(ctx context.Context, actorID int64, channelID int64) error {
	if err := s.Records.RemoveGateChannel(ctx, channelID); err != nil {
		return err
	}
	s.audit(actorID, "admin.channel_remove", "channel", strconv.FormatInt(channelID, 10), nil)
	return nil
}

func (s *AdminService) SetAutoDelete(ctx context.Context, actorID int64, seconds int) error {
	return s.UpdateSetting(ctx, actorID, models.SettingAutoDeleteSeconds, strconv.Itoa(seconds))
}

func (s *AdminService) SetProtectContent(ctx context.Context, actorID int64, enabled bool) error {
	return s.UpdateSetting(ctx, actorID, models.SettingProtectContent, strconv.FormatBool(enabled))
}

func (s *AdminService) SetVerificationEnabled(ctx context.Context, actorID int64, enabled bool) error {
	return s.UpdateSetting(ctx, actorID, models.SettingVerificationEnabled, strconv.FormatBool(enabled))
}

func (s *AdminService) SetShortener(ctx context.Context, actorID int64, domain, apiKey string) error {
	if err := s.UpdateSetting(ctx, actorID, models.SettingShortenerDomain, domain); err != nil {
		return err
	}
	return s.UpdateSetting(ctx, actorID, models.SettingShortenerAPIKey, apiKey)
}

// UpdateSetting validates value for key and writes it.
func (s *AdminService) UpdateSetting(ctx context.Context, actorID int64, key, value string) error {
	normalized, err := normalizeSetting(key, value)
	if err != nil {
		return err
	}
	if err := s.Settings.Set(ctx, key, normalized); err != nil {
		return fmt.Errorf("write setting %s: %w", key, err)
	}

	details := map[string]interface{}{"key": key}
	if key != models.SettingShortenerAPIKey {
		details["value"] = normalized
	}
	s.audit(actorID, "admin.setting_update", "setting", key, details)
	return nil
}

func (s *AdminService) AllSettings(ctx context.Context) (map[string]string, error) {
	return s.Settings.All(ctx)
}

func (s *AdminService) DeleteFile(ctx context.Context, actorID int64, code string) error {
	code = strings.ToLower(strings.TrimSpace(code))
	if err := s.Records.DeactivateFile(ctx, code); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	s.audit(actorID, "admin.file_delete", "file", code, nil)
	return nil
}

// SetBanned flags userID. Users who never talked to the bot are created so
// the ban is in place before their first redemption.
func (s *AdminService) SetBanned(ctx context.Context, actorID int64, userID int64, banned bool) error {
	err := s.Records.SetBanned(ctx, userID, banned)
	if errors.Is(err, store.ErrNotFound) {
		if _, err = s.Records.TouchUser(ctx, store.UserProfile{TelegramID: userID}); err != nil {
			return fmt.Errorf("create user: %w", err)
		}
		err = s.Records.SetBanned(ctx, userID, banned)
	}
	if err != nil {
		return err
	}

	action := "admin.user_unban"
	if banned {
		action = "admin.user_ban"
	}
	s.audit(actorID, action, "user", strconv.FormatInt(userID, 10), nil)
	return nil
}

func (s *AdminService) Stats(ctx context.Context) (store.Stats, error) {
	return s.Records.Stats(ctx)
}

func (s *AdminService) audit(actorID int64, action, resourceType, resourceID string, details map[string]interface{}) {
	var actor *int64
	if actorID != 0 {
		actor = userRef(actorID)
	}
	s.Audit.LogAsync(AuditEntry{
		UserID:       actor,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Details:      details,
	})
	logger.Info(strings.ReplaceAll(action, ".", "_"), map[string]interface{}{
		"actor_id":    actorID,
		"resource_id": resourceID,
	})
}

func normalizeSetting(key, value string) (string, error) {
	value = strings.TrimSpace(value)
	switch key {
	case models.SettingAutoDeleteSeconds:
		seconds, err := strconv.Atoi(value)
		if err != nil || seconds < 0 {
			return "", fmt.Errorf("%w: %s must be a non-negative integer", ErrInvalidSetting, key)
		}
		return strconv.Itoa(seconds), nil
	case models.SettingProtectContent, models.SettingVerificationEnabled:
		enabled, ok := parseToggle(value)
		if !ok {
			return "", fmt.Errorf("%w: %s must be on or off", ErrInvalidSetting, key)
		}
		return strconv.FormatBool(enabled), nil
	case models.SettingShortenerDomain, models.SettingShortenerAPIKey:
		return value, nil
	case models.SettingStartMessage, models.SettingHelpMessage:
		if value == "" {
			return "", fmt.Errorf("%w: %s must not be empty", ErrInvalidSetting, key)
		}
		return value, nil
	default:
		return "", fmt.Errorf("%w: unknown key %q", ErrInvalidSetting, key)
	}
}

// parseToggle accepts on/off and the usual boolean spellings.
func parseToggle(value string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "on", "yes", "enable", "enabled":
		return true, true
	case "off", "no", "disable", "disabled":
		return false, true
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, false
	}
	return parsed, true
}
