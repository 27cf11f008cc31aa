package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/filegate/backend/internal/bot"
	"github.com/filegate/backend/internal/config"
	"github.com/filegate/backend/internal/database"
	"github.com/filegate/backend/internal/handlers"
	"github.com/filegate/backend/internal/models"
	"github.com/filegate/backend/internal/server"
	"github.com/filegate/backend/internal/services"
	"github.com/filegate/backend/internal/storage"
	"github.com/filegate/backend/internal/store"
	"github.com/filegate/backend/internal/transport/telegram"
	"github.com/filegate/backend/pkg/logger"
	"github.com/filegate/backend/pkg/ratelimit"
	"github.com/filegate/backend/pkg/utils"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bot and the admin API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg)
	},
}

func serve(ctx context.Context, cfg *config.Config) error {
	utils.ConfigureJWT(cfg.JWT.Secret, cfg.JWT.ExpirationHours)

	db, err := database.Connect(cfg.DB)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}

	records := store.NewGormStore(db)
	settings := store.NewSettingsStore(db, 30*time.Second)
	if err := settings.SeedDefaults(ctx, seedSettings(cfg)); err != nil {
		return fmt.Errorf("seed settings: %w", err)
	}

	client, err := telegram.New(cfg.Telegram.Token, cfg.Telegram.RequestTimeout)
	if err != nil {
		return err
	}
	if cfg.Telegram.BotUsername == "" {
		username, err := client.Username(ctx)
		if err != nil {
			return fmt.Errorf("resolve bot username: %w", err)
		}
		cfg.Telegram.BotUsername = username
	}

	var objectStore services.ObjectUploader
	if cfg.MinIO.Enabled() {
		minioClient, err := storage.NewMinIOClient(cfg.MinIO)
		if err != nil {
			return fmt.Errorf("minio initialization failed: %w", err)
		}
		if err := minioClient.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("failed ensuring minio bucket: %w", err)
		}
		objectStore = minioClient
	}

	audit := services.NewAuditService(db, objectStore, cfg.Audit.QueueSize).
		WithAlerts(client, cfg.Telegram.LogChannelID)
	defer audit.Close()

	limiter, closeLimiter, err := broadcastLimiter(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeLimiter()

	var shortener services.Shortener = services.NewHTTPShortener(settings, cfg.Shortener.Domain, cfg.Shortener.APIKey, cfg.Shortener.Timeout)
	verification := services.NewVerificationService(records, shortener, cfg.Telegram.BotUsername, cfg.Shortener.Timeout)
	subscription := services.NewSubscriptionService(records, client, cfg.Telegram.RequestTimeout)
	delivery := services.NewDeliveryService(client, settings, cfg.Delivery.AutoDeleteSeconds, cfg.Delivery.PurgeTimeout)
	access := services.NewAccessService(records, records, subscription, verification, delivery, settings, audit)
	access.DefaultProtect = cfg.Delivery.ProtectContent
	files := services.NewFileService(records, records, services.NewCodeGenerator(records), audit, cfg.Telegram.BotUsername)
	admin := services.NewAdminService(records, settings, client, audit)
	broadcast := services.NewBroadcastService(records, client, limiter, audit, cfg.Broadcast.PageSize)

	dispatcher := bot.NewDispatcher(records, settings, access, verification, files, admin, broadcast, client, cfg.Telegram, cfg.Messages)
	client.SetHandler(dispatcher.Handle)

	app := server.New(cfg.Server, handlers.NewAdminHandler(db, admin, files, broadcast), handlers.NewAuditHandler(db))
	listenAddr := fmt.Sprintf(":%s", cfg.Server.Port)

	logger.Info("server_starting", map[string]interface{}{
		"address":      listenAddr,
		"bot_username": cfg.Telegram.BotUsername,
		"db_driver":    cfg.DB.Driver,
		"audit_export": objectStore != nil,
		"redis":        cfg.Redis.Enabled(),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		client.Start(gctx)
		return nil
	})
	if objectStore != nil {
		audit.StartExporter(gctx, cfg.Audit.ExportInterval)
	}
	g.Go(func() error {
		return app.Listen(listenAddr)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("server_shutting_down", nil)
		return app.ShutdownWithTimeout(10 * time.Second)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func seedSettings(cfg *config.Config) map[string]string {
	defaults := map[string]string{
		models.SettingAutoDeleteSeconds:   strconv.Itoa(cfg.Delivery.AutoDeleteSeconds),
		models.SettingProtectContent:      strconv.FormatBool(cfg.Delivery.ProtectContent),
		models.SettingVerificationEnabled: "true",
	}
	if cfg.Shortener.Domain != "" {
		defaults[models.SettingShortenerDomain] = cfg.Shortener.Domain
	}
	if cfg.Shortener.APIKey != "" {
		defaults[models.SettingShortenerAPIKey] = cfg.Shortener.APIKey
	}
	return defaults
}

// broadcastLimiter shares the send budget across replicas through Redis
// when it is configured, and paces in-process otherwise.
func broadcastLimiter(ctx context.Context, cfg *config.Config) (ratelimit.Limiter, func(), error) {
	if !cfg.Redis.Enabled() {
		return ratelimit.NewIntervalLimiter(cfg.Broadcast.Interval), func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("redis ping failed: %w", err)
	}
	limiter := ratelimit.NewRedisLimiter(rdb, "", cfg.Broadcast.Rate, cfg.Broadcast.Burst)
	return limiter, func() { _ = rdb.Close() }, nil
}
