package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/filegate/backend/internal/models"
	"github.com/filegate/backend/internal/transport"
)

func TestSubscriptionService_CheckSubscription(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	const userID int64 = 42

	t.Run("empty channel set passes", func(t *testing.T) {
		result, err := env.subscription.CheckSubscription(ctx, userID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.Passed || len(result.Missing) != 0 {
			t.Fatalf("expected trivial pass, got %+v", result)
		}
	})

	channels := []models.GateChannel{
		{ChannelID: -1001, Handle: "first", Title: "First"},
		{ChannelID: -1002, Handle: "second", Title: "Second"},
		{ChannelID: -1003, Handle: "third", Title: "Third"},
	}
	for i := range channels {
		if err := env.records.AddGateChannel(ctx, &channels[i]); err != nil {
			t.Fatalf("failed adding channel: %v", err)
		}
		// created_at ordering needs distinct timestamps
		time.Sleep(2 * time.Millisecond)
	}

	t.Run("missing channels keep configured order", func(t *testing.T) {
		env.fake.SetMembership(-1002, userID, transport.StatusMember)

		result, err := env.subscription.CheckSubscription(ctx, userID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Passed {
			t.Fatal("expected gate to fail")
		}
		if len(result.Missing) != 2 {
			t.Fatalf("expected 2 missing channels, got %d", len(result.Missing))
		}
		if result.Missing[0].ChannelID != -1001 || result.Missing[1].ChannelID != -1003 {
			t.Fatalf("unexpected missing order: %+v", result.Missing)
		}
	})

	t.Run("restricted and kicked do not satisfy", func(t *testing.T) {
		env.fake.SetMembership(-1001, userID, transport.StatusRestricted)
		env.fake.SetMembership(-1003, userID, transport.StatusKicked)

		result, err := env.subscription.CheckSubscription(ctx, userID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Passed || len(result.Missing) != 2 {
			t.Fatalf("expected 2 missing channels, got %+v", result)
		}
	})

	t.Run("query failure counts as missing", func(t *testing.T) {
		env.fake.SetMembership(-1001, userID, transport.StatusCreator)
		env.fake.SetMembership(-1003, userID, transport.StatusAdministrator)
		env.fake.MembershipErrors[-1002] = errors.New("bot is not a member of the channel")
		defer delete(env.fake.MembershipErrors, -1002)

		result, err := env.subscription.CheckSubscription(ctx, userID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Passed || len(result.Missing) != 1 || result.Missing[0].ChannelID != -1002 {
			t.Fatalf("expected only -1002 missing, got %+v", result)
		}
	})

	t.Run("all joined passes", func(t *testing.T) {
		result, err := env.subscription.CheckSubscription(ctx, userID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.Passed || len(result.Missing) != 0 {
			t.Fatalf("expected pass, got %+v", result)
		}
	})
}
