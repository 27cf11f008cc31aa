package services

import (
	"context"
	"errors"
	"testing"

	"github.com/filegate/backend/internal/models"
	"github.com/filegate/backend/internal/store"
	"github.com/filegate/backend/internal/transport"
)

func TestAdminService_Channels(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.fake.Chats["@news"] = transport.ChatInfo{ID: -1001, Title: "News"}
	env.fake.Chats["-1002"] = transport.ChatInfo{ID: -1002, Title: "Private"}

	t.Run("adds by handle", func(t *testing.T) {
		channel, err := env.admin.AddChannel(ctx, 1, "@news")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if channel.ChannelID != -1001 || channel.Handle != "news" || channel.Title != "News" {
			t.Fatalf("unexpected channel %+v", channel)
		}
		if channel.JoinURL() != "https://t.me/news" {
			t.Fatalf("unexpected join url %s", channel.JoinURL())
		}
	})

	t.Run("adds by numeric id without handle", func(t *testing.T) {
		channel, err := env.admin.AddChannel(ctx, 1, "-1002")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if channel.Handle != "" {
			t.Fatalf("numeric id should not be stored as handle, got %q", channel.Handle)
		}
	})

	t.Run("unresolvable handle is an upstream error", func(t *testing.T) {
		_, err := env.admin.AddChannel(ctx, 1, "@ghost")
		if !errors.Is(err, ErrUpstreamUnavailable) {
			t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
		}
	})

	t.Run("adding twice keeps one row", func(t *testing.T) {
		if _, err := env.admin.AddChannel(ctx, 1, "@news"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		channels, err := env.admin.ListChannels(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(channels) != 2 {
			t.Fatalf("expected 2 channels, got %d", len(channels))
		}
	})

	t.Run("removes", func(t *testing.T) {
		if err := env.admin.RemoveChannel(ctx, 1, -1001); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := env.admin.RemoveChannel(ctx, 1, -1001); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestAdminService_Settings(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	t.Run("auto delete must be non-negative", func(t *testing.T) {
		if err := env.admin.SetAutoDelete(ctx, 1, -5); !errors.Is(err, ErrInvalidSetting) {
			t.Fatalf("expected ErrInvalidSetting, got %v", err)
		}
		if err := env.admin.SetAutoDelete(ctx, 1, 60); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := env.settings.GetInt(ctx, models.SettingAutoDeleteSeconds, 0); got != 60 {
			t.Fatalf("expected 60, got %d", got)
		}
	})

	t.Run("toggles accept on and off", func(t *testing.T) {
		if err := env.admin.UpdateSetting(ctx, 1, models.SettingProtectContent, "on"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !env.settings.GetBool(ctx, models.SettingProtectContent, false) {
			t.Fatal("expected protect content on")
		}
		if err := env.admin.UpdateSetting(ctx, 1, models.SettingProtectContent, "maybe"); !errors.Is(err, ErrInvalidSetting) {
			t.Fatalf("expected ErrInvalidSetting, got %v", err)
		}
	})

	t.Run("unknown keys are rejected", func(t *testing.T) {
		if err := env.admin.UpdateSetting(ctx, 1, "theme", "dark"); !errors.Is(err, ErrInvalidSetting) {
			t.Fatalf("expected ErrInvalidSetting, got %v", err)
		}
	})

	t.Run("shortener credentials are stored", func(t *testing.T) {
		if err := env.admin.SetShortener(ctx, 1, "sho.rt", "key123"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		all, err := env.admin.AllSettings(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if all[models.SettingShortenerDomain] != "sho.rt" || all[models.SettingShortenerAPIKey] != "key123" {
			t.Fatalf("unexpected settings %v", all)
		}
	})
}

func TestAdminService_Users(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	t.Run("ban creates unknown users", func(t *testing.T) {
		if err := env.admin.SetBanned(ctx, 1, 900, true); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		user, err := env.records.GetUser(ctx, 900)
		if err != nil {
			t.Fatalf("expected user to exist: %v", err)
		}
		if !user.Banned {
			t.Fatal("expected banned user")
		}
	})

	t.Run("unban clears the flag", func(t *testing.T) {
		if err := env.admin.SetBanned(ctx, 1, 900, false); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		user, _ := env.records.GetUser(ctx, 900)
		if user.Banned {
			t.Fatal("expected unbanned user")
		}
	})

	t.Run("deleting an unknown code is not found", func(t *testing.T) {
		if err := env.admin.DeleteFile(ctx, 1, "ffffffff"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("stats reflect the registry", func(t *testing.T) {
		code := env.storeFile(t, 1, "ref")
		env.storeFile(t, 1, "ref")
		if err := env.admin.DeleteFile(ctx, 1, code); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		stats, err := env.admin.Stats(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if stats.Files != 2 || stats.ActiveFiles != 1 || stats.Users != 1 {
			t.Fatalf("unexpected stats %+v", stats)
		}
	})
}
