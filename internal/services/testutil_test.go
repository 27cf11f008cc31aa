package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/filegate/backend/internal/database"
	"github.com/filegate/backend/internal/models"
	"github.com/filegate/backend/internal/store"
	"github.com/filegate/backend/internal/transport/transporttest"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const testBotUsername = "filegate_bot"

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed opening in-memory sqlite database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed getting sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed migrating models: %v", err)
	}
	return db
}

type stubShortener struct {
	mu    sync.Mutex
	url   string
	err   error
	calls []string
}

func (s *stubShortener) Shorten(_ context.Context, longURL string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, longURL)
	if s.err != nil {
		return "", s.err
	}
	return s.url, nil
}

type scheduledPurge struct {
	delay time.Duration
	run   func()
}

type testEnv struct {
	db       *gorm.DB
	records  *store.GormStore
	settings *store.SettingsStore
	fake     *transporttest.Fake
	audit    *AuditService

	codes        *CodeGenerator
	files        *FileService
	subscription *SubscriptionService
	verification *VerificationService
	delivery     *DeliveryService
	access       *AccessService
	admin        *AdminService

	mu     sync.Mutex
	purges []scheduledPurge
}

func newTestEnv(t *testing.T, shortener Shortener) *testEnv {
	t.Helper()
	db := setupTestDB(t)

	env := &testEnv{
		db:       db,
		records:  store.NewGormStore(db),
		settings: store.NewSettingsStore(db, time.Minute),
		fake:     transporttest.New(),
	}
	env.audit = NewAuditService(db, nil, 100)
	t.Cleanup(env.audit.Close)

	env.codes = NewCodeGenerator(env.records)
	env.files = NewFileService(env.records, env.records, env.codes, env.audit, testBotUsername)
	env.subscription = NewSubscriptionService(env.records, env.fake, time.Second)
	env.verification = NewVerificationService(env.records, shortener, testBotUsername, time.Second)
	env.delivery = NewDeliveryService(env.fake, env.settings, 0, time.Second)
	env.delivery.schedule = func(delay time.Duration, fn func()) {
		env.mu.Lock()
		defer env.mu.Unlock()
		env.purges = append(env.purges, scheduledPurge{delay: delay, run: fn})
	}
	env.access = NewAccessService(env.records, env.records, env.subscription, env.verification, env.delivery, env.settings, env.audit)
	env.admin = NewAdminService(env.records, env.settings, env.fake, env.audit)
	return env
}

func (e *testEnv) scheduled() []scheduledPurge {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]scheduledPurge(nil), e.purges...)
}

func (e *testEnv) touchUser(t *testing.T, id int64) *models.User {
	t.Helper()
	user, err := e.records.TouchUser(context.Background(), store.UserProfile{TelegramID: id, FirstName: "User"})
	if err != nil {
		t.Fatalf("failed creating user %d: %v", id, err)
	}
	return user
}

func (e *testEnv) verifiedUser(t *testing.T, id int64) *models.User {
	t.Helper()
	e.touchUser(t, id)
	if _, err := e.verification.ConsumeChallenge(context.Background(), id); err != nil {
		t.Fatalf("failed verifying user %d: %v", id, err)
	}
	user, err := e.records.GetUser(context.Background(), id)
	if err != nil {
		t.Fatalf("failed reloading user %d: %v", id, err)
	}
	return user
}

func (e *testEnv) storeFile(t *testing.T, uploader int64, ref string) string {
	t.Helper()
	code, err := e.files.Store(context.Background(), uploader, ref, models.FileTypeDocument, "caption", 1024)
	if err != nil {
		t.Fatalf("failed storing file: %v", err)
	}
	return code
}

func (e *testEnv) fileRecord(t *testing.T, code string) models.FileRecord {
	t.Helper()
	var record models.FileRecord
	if err := e.db.First(&record, "short_code = ?", code).Error; err != nil {
		t.Fatalf("failed loading file %s: %v", code, err)
	}
	return record
}

// sequence returns a draw func that yields codes in order, then repeats
// the last one.
func sequence(codes ...string) func() (string, error) {
	var mu sync.Mutex
	i := 0
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		code := codes[i]
		if i < len(codes)-1 {
			i++
		}
		return code, nil
	}
}
