package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/filegate/backend/internal/models"
	"github.com/filegate/backend/internal/transport"
	"github.com/filegate/backend/internal/transport/transporttest"
)

func TestAccessService_Redeem(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown and soft-deleted codes are not found", func(t *testing.T) {
		env := newTestEnv(t, nil)
		code := env.storeFile(t, 1, "ref")
		if err := env.admin.DeleteFile(ctx, 1, code); err != nil {
			t.Fatalf("failed deleting file: %v", err)
		}

		env.verifiedUser(t, 2)
		if err := env.admin.SetBanned(ctx, 1, 3, true); err != nil {
			t.Fatalf("failed banning: %v", err)
		}

		for _, userID := range []int64{2, 3, 4} {
			for _, candidate := range []string{code, "deadbeef"} {
				result, err := env.access.Redeem(ctx, userID, candidate)
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if result.Outcome != OutcomeNotFound {
					t.Fatalf("user %d code %s: expected NOT_FOUND, got %s", userID, candidate, result.Outcome)
				}
				if !errors.Is(result.Err(), ErrNotFound) {
					t.Fatalf("expected ErrNotFound, got %v", result.Err())
				}
			}
		}
		if len(env.fake.SentFiles()) != 0 {
			t.Fatal("nothing should be delivered")
		}
	})

	t.Run("banned users are blocked before any gate", func(t *testing.T) {
		env := newTestEnv(t, nil)
		code := env.storeFile(t, 1, "ref")
		env.verifiedUser(t, 5)
		if err := env.admin.SetBanned(ctx, 1, 5, true); err != nil {
			t.Fatalf("failed banning: %v", err)
		}

		result, err := env.access.Redeem(ctx, 5, code)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Outcome != OutcomeBlocked || !errors.Is(result.Err(), ErrBlocked) {
			t.Fatalf("expected BLOCKED, got %s", result.Outcome)
		}
	})

	t.Run("first redemption creates the user lazily", func(t *testing.T) {
		env := newTestEnv(t, nil)
		code := env.storeFile(t, 1, "ref")

		result, err := env.access.Redeem(ctx, 77, code)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Outcome != OutcomePendingVerification {
			t.Fatalf("expected PENDING_VERIFICATION, got %s", result.Outcome)
		}
		if _, err := env.records.GetUser(ctx, 77); err != nil {
			t.Fatalf("expected user to exist: %v", err)
		}
	})

	t.Run("missing subscription stops before verification", func(t *testing.T) {
		env := newTestEnv(t, &stubShortener{url: "https://sho.rt/x"})
		code := env.storeFile(t, 1, "ref")
		channel := &models.GateChannel{ChannelID: -100, Handle: "news", Title: "News"}
		if err := env.records.AddGateChannel(ctx, channel); err != nil {
			t.Fatalf("failed adding channel: %v", err)
		}
		env.touchUser(t, 6)

		result, err := env.access.Redeem(ctx, 6, code)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Outcome != OutcomePendingSubscription {
			t.Fatalf("expected PENDING_SUBSCRIPTION, got %s", result.Outcome)
		}
		if len(result.Missing) != 1 || result.Missing[0].ChannelID != -100 {
			t.Fatalf("unexpected missing %+v", result.Missing)
		}
		if result.RecheckData != "check:"+code {
			t.Fatalf("unexpected recheck data %s", result.RecheckData)
		}
		if !errors.Is(result.Err(), ErrGateUnsatisfied) {
			t.Fatalf("expected ErrGateUnsatisfied, got %v", result.Err())
		}
		if views := env.fileRecord(t, code).Views; views != 0 {
			t.Fatalf("views should not move before verification check, got %d", views)
		}

		env.fake.SetMembership(-100, 6, transport.StatusMember)
		result, err = env.access.Redeem(ctx, 6, code)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Outcome != OutcomePendingVerification {
			t.Fatalf("expected PENDING_VERIFICATION after joining, got %s", result.Outcome)
		}
	})

	t.Run("verification disabled skips the challenge", func(t *testing.T) {
		env := newTestEnv(t, nil)
		code := env.storeFile(t, 1, "ref")
		if err := env.admin.SetVerificationEnabled(ctx, 1, false); err != nil {
			t.Fatalf("failed toggling verification: %v", err)
		}

		result, err := env.access.Redeem(ctx, 8, code)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Outcome != OutcomeDelivered {
			t.Fatalf("expected DELIVERED, got %s", result.Outcome)
		}
	})

	t.Run("protect content setting reaches the transport", func(t *testing.T) {
		env := newTestEnv(t, nil)
		code := env.storeFile(t, 1, "ref")
		env.verifiedUser(t, 10)
		if err := env.admin.SetProtectContent(ctx, 1, true); err != nil {
			t.Fatalf("failed setting protect: %v", err)
		}

		if _, err := env.access.Redeem(ctx, 10, code); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		sent := env.fake.SentFiles()
		if len(sent) != 1 || !sent[0].ProtectContent {
			t.Fatalf("expected protected send, got %+v", sent)
		}
	})

	t.Run("delivery failure leaves counters untouched and alerts", func(t *testing.T) {
		env := newTestEnv(t, nil)
		env.audit.WithAlerts(env.fake, -999)
		code := env.storeFile(t, 1, "ref")
		env.verifiedUser(t, 11)
		env.fake.SetSendFileErr(transporttest.ErrSendFailed)

		result, err := env.access.Redeem(ctx, 11, code)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Outcome != OutcomeDeliveryFailed || !errors.Is(result.Err(), ErrDeliveryFailed) {
			t.Fatalf("expected DELIVERY_FAILED, got %s", result.Outcome)
		}
		if record := env.fileRecord(t, code); record.Downloads != 0 {
			t.Fatalf("downloads should stay 0, got %d", record.Downloads)
		}
		user, _ := env.records.GetUser(ctx, 11)
		if user.FilesAccessed != 0 {
			t.Fatalf("files accessed should stay 0, got %d", user.FilesAccessed)
		}
		if _, ok := env.fake.LastText(-999); !ok {
			t.Fatal("expected an alert in the log channel")
		}
	})
}

func TestAccessService_UploadVerifyRedeemScenario(t *testing.T) {
	env := newTestEnv(t, &stubShortener{err: errors.New("shortener down")})
	env.codes.draw = sequence("a1b2c3d4")
	ctx := context.Background()

	code, err := env.files.Store(ctx, 1, "BQACAgQAAxkBAAI", models.FileTypeDocument, "report.pdf", 2048)
	if err != nil {
		t.Fatalf("failed storing: %v", err)
	}
	if code != "a1b2c3d4" {
		t.Fatalf("expected a1b2c3d4, got %s", code)
	}

	const userID int64 = 500
	env.touchUser(t, userID)

	result, err := env.access.Redeem(ctx, userID, code)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Outcome != OutcomePendingVerification {
		t.Fatalf("expected PENDING_VERIFICATION, got %s", result.Outcome)
	}
	if result.Challenge == nil || result.Challenge.URL != "https://t.me/filegate_bot?start=a1b2c3d4" {
		t.Fatalf("expected raw deep link to a1b2c3d4, got %+v", result.Challenge)
	}
	if result.Challenge.AckData != "verified:a1b2c3d4" {
		t.Fatalf("unexpected ack %s", result.Challenge.AckData)
	}
	if views := env.fileRecord(t, code).Views; views != 1 {
		t.Fatalf("expected views=1, got %d", views)
	}

	if _, err := env.verification.ConsumeChallenge(ctx, userID); err != nil {
		t.Fatalf("failed consuming challenge: %v", err)
	}

	result, err = env.access.Redeem(ctx, userID, code)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Outcome != OutcomeDelivered || result.Err() != nil {
		t.Fatalf("expected DELIVERED, got %s", result.Outcome)
	}
	record := env.fileRecord(t, code)
	if record.Downloads != 1 {
		t.Fatalf("expected downloads=1, got %d", record.Downloads)
	}
	user, err := env.records.GetUser(ctx, userID)
	if err != nil {
		t.Fatalf("failed loading user: %v", err)
	}
	if user.FilesAccessed != 1 {
		t.Fatalf("expected files accessed=1, got %d", user.FilesAccessed)
	}

	t.Run("verification carries over to later uploads", func(t *testing.T) {
		env.codes.draw = randomCode
		later := env.storeFile(t, 1, "ref-later")

		result, err := env.access.Redeem(ctx, userID, later)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Outcome != OutcomeDelivered {
			t.Fatalf("expected DELIVERED for later upload, got %s", result.Outcome)
		}
	})

	t.Run("delivery is audited", func(t *testing.T) {
		env.audit.Close()
		var count int64
		env.db.Model(&models.AuditLog{}).Where("action = ? AND resource_id = ?", "file.deliver", code).Count(&count)
		if count != 1 {
			t.Fatalf("expected one file.deliver audit row, got %d", count)
		}
	})
}

func TestAccessService_ConcurrentRedeem(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	code := env.storeFile(t, 1, "popular")
	env.verifiedUser(t, 21)
	env.verifiedUser(t, 22)

	var wg sync.WaitGroup
	results := make([]RedeemResult, 2)
	errs := make([]error, 2)
	for i, userID := range []int64{21, 22} {
		i, userID := i, userID
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = env.access.Redeem(ctx, userID, code)
		}()
	}
	wg.Wait()

	for i := range results {
		if errs[i] != nil {
			t.Fatalf("redeem %d failed: %v", i, errs[i])
		}
		if results[i].Outcome != OutcomeDelivered {
			t.Fatalf("redeem %d: expected DELIVERED, got %s", i, results[i].Outcome)
		}
	}
	if downloads := env.fileRecord(t, code).Downloads; downloads != 2 {
		t.Fatalf("expected downloads=2, got %d", downloads)
	}
}

func TestRedeemResult_Err(t *testing.T) {
	cases := map[Outcome]error{
		OutcomeDelivered:           nil,
		OutcomeNotFound:            ErrNotFound,
		OutcomeBlocked:             ErrBlocked,
		OutcomePendingSubscription: ErrGateUnsatisfied,
		OutcomePendingVerification: ErrGateUnsatisfied,
		OutcomeDeliveryFailed:      ErrDeliveryFailed,
	}
	for outcome, want := range cases {
		got := RedeemResult{Outcome: outcome}.Err()
		if !errors.Is(got, want) {
			t.Errorf("%s: expected %v, got %v", outcome, want, got)
		}
	}
	if (RedeemResult{Outcome: "BOGUS"}).Err() == nil {
		t.Error("unknown outcome should produce an error")
	}
}
