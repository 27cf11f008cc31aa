package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/filegate/backend/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
)

func TestBroadcastService_Send(t *testing.T) {
	ctx := context.Background()

	t.Run("skips banned users and survives failures", func(t *testing.T) {
		env := newTestEnv(t, nil)
		for _, id := range []int64{1, 2, 3, 4, 5} {
			env.touchUser(t, id)
		}
		if err := env.admin.SetBanned(ctx, 99, 2, true); err != nil {
			t.Fatalf("failed banning: %v", err)
		}
		env.fake.SendTextErr[4] = errors.New("bot was blocked by the user")

		service := NewBroadcastService(env.records, env.fake, ratelimit.NewIntervalLimiter(time.Millisecond), env.audit, 2)
		result, err := service.Send(ctx, 99, BroadcastMessage{Text: "maintenance tonight"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Total != 4 || result.Sent != 3 || result.Failed != 1 {
			t.Fatalf("unexpected result %+v", result)
		}
		for _, sent := range env.fake.SentTexts() {
			if sent.ChatID == 2 {
				t.Fatal("banned user received broadcast")
			}
		}
	})

	t.Run("forwards a message through the redis limiter", func(t *testing.T) {
		mr := miniredis.RunT(t)
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer rdb.Close()

		env := newTestEnv(t, nil)
		for _, id := range []int64{10, 11, 12} {
			env.touchUser(t, id)
		}

		limiter := ratelimit.NewRedisLimiter(rdb, "test:broadcast", 1000, 10)
		service := NewBroadcastService(env.records, env.fake, limiter, env.audit, 500)
		result, err := service.Send(ctx, 99, BroadcastMessage{FromChatID: 99, MessageID: 7})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Sent != 3 {
			t.Fatalf("expected 3 forwards, got %+v", result)
		}
		forwards := env.fake.Forwarded()
		if len(forwards) != 3 || forwards[0].FromChatID != 99 || forwards[0].MessageID != 7 {
			t.Fatalf("unexpected forwards %+v", forwards)
		}
	})

	t.Run("deadline stops the run", func(t *testing.T) {
		env := newTestEnv(t, nil)
		for _, id := range []int64{1, 2, 3} {
			env.touchUser(t, id)
		}
		cancelled, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
		defer cancel()

		service := NewBroadcastService(env.records, env.fake, ratelimit.NewIntervalLimiter(time.Hour), env.audit, 10)
		// the first slot is free, the second would wait an hour
		result, err := service.Send(cancelled, 99, BroadcastMessage{Text: "hi"})
		if !errors.Is(err, ratelimit.ErrWaitCancelled) || !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected cancelled slot wait, got %v", err)
		}
		if result.Sent != 1 {
			t.Fatalf("expected one send before cancellation, got %+v", result)
		}
	})

	t.Run("empty text is rejected", func(t *testing.T) {
		env := newTestEnv(t, nil)
		service := NewBroadcastService(env.records, env.fake, nil, env.audit, 10)
		if _, err := service.Send(ctx, 99, BroadcastMessage{Text: "  "}); err == nil {
			t.Fatal("expected error for empty broadcast")
		}
	})
}
