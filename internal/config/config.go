package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	DB        DBConfig
	Redis     RedisConfig
	MinIO     MinIOConfig
	JWT       JWTConfig
	Server    ServerConfig
	Telegram  TelegramConfig
	Shortener ShortenerConfig
	Delivery  DeliveryConfig
	Audit     AuditConfig
	Broadcast BroadcastConfig
	Messages  MessagesConfig
}

type DBConfig struct {
	Driver   string
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
	Path     string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

func (m MinIOConfig) Enabled() bool {
	return m.Endpoint != ""
}

type JWTConfig struct {
	Secret          string
	ExpirationHours int
}

type ServerConfig struct {
	Port        string
	CORSOrigins string
}

type TelegramConfig struct {
	Token            string
	BotUsername      string
	AdminIDs         []int64
	LogChannelID     int64
	RequestTimeout   time.Duration
	UploadAdminsOnly bool
}

// IsAdmin reports whether id is one of the configured bot operators.
func (t TelegramConfig) IsAdmin(id int64) bool {
	for _, admin := range t.AdminIDs {
		if admin == id {
			return true
		}
	}
	return false
}

type ShortenerConfig struct {
	Domain  string
	APIKey  string
	Timeout time.Duration
}

type DeliveryConfig struct {
	AutoDeleteSeconds int
	ProtectContent    bool
	PurgeTimeout      time.Duration
}

type AuditConfig struct {
	ExportInterval time.Duration
	QueueSize      int
}

type BroadcastConfig struct {
	Rate     float64
	Burst    float64
	Interval time.Duration
	PageSize int
}

type MessagesConfig struct {
	Start string
	Help  string
}

const (
	defaultStartMessage = "Hello! Send me a file link to get the file."
	defaultHelpMessage  = "Open a shared link to receive its file. Join the required channels and verify once when asked."
)

// Load reads configuration from the environment and, when FILEGATE_CONFIG
// points at a file, from that file. Environment values win over the file.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if path := v.GetString("FILEGATE_CONFIG"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	adminIDs, err := parseIDList(getEnv(v, "TELEGRAM_ADMIN_IDS", ""))
	if err != nil {
		return nil, fmt.Errorf("TELEGRAM_ADMIN_IDS: %w", err)
	}

	return &Config{
		DB: DBConfig{
			Driver:   getEnv(v, "DB_DRIVER", "postgres"),
			Host:     getEnv(v, "DB_HOST", "localhost"),
			Port:     getEnv(v, "DB_PORT", "5432"),
			User:     getEnv(v, "DB_USER", "filegate"),
			Password: getEnv(v, "DB_PASSWORD", "filegate_secret"),
			Name:     getEnv(v, "DB_NAME", "filegate"),
			SSLMode:  getEnv(v, "DB_SSLMODE", "disable"),
			Path:     getEnv(v, "DB_PATH", "filegate.db"),
		},
		Redis: RedisConfig{
			Addr:     getEnv(v, "REDIS_ADDR", ""),
			Password: getEnv(v, "REDIS_PASSWORD", ""),
			DB:       getEnvAsInt(v, "REDIS_DB", 0),
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv(v, "MINIO_ENDPOINT", ""),
			AccessKey: getEnv(v, "MINIO_ACCESS_KEY", "filegate"),
			SecretKey: getEnv(v, "MINIO_SECRET_KEY", "filegate_secret"),
			Bucket:    getEnv(v, "MINIO_BUCKET", "filegate-audit"),
			UseSSL:    getEnvAsBool(v, "MINIO_USE_SSL", false),
		},
		JWT: JWTConfig{
			Secret:          getEnv(v, "JWT_SECRET", "change-me-in-production"),
			ExpirationHours: getEnvAsInt(v, "JWT_EXPIRATION_HOURS", 24),
		},
		Server: ServerConfig{
			Port:        getEnv(v, "SERVER_PORT", "8080"),
			CORSOrigins: getEnv(v, "CORS_ALLOWED_ORIGINS", "http://localhost:3001,http://127.0.0.1:3001"),
		},
		Telegram: TelegramConfig{
			Token:            getEnv(v, "TELEGRAM_TOKEN", ""),
			BotUsername:      strings.TrimPrefix(getEnv(v, "TELEGRAM_BOT_USERNAME", ""), "@"),
			AdminIDs:         adminIDs,
			LogChannelID:     getEnvAsInt64(v, "TELEGRAM_LOG_CHANNEL_ID", 0),
			RequestTimeout:   getEnvAsDuration(v, "TELEGRAM_REQUEST_TIMEOUT", 15*time.Second),
			UploadAdminsOnly: getEnvAsBool(v, "UPLOAD_ADMINS_ONLY", true),
		},
		Shortener: ShortenerConfig{
			Domain:  getEnv(v, "SHORTENER_DOMAIN", ""),
			APIKey:  getEnv(v, "SHORTENER_API_KEY", ""),
			Timeout: getEnvAsDuration(v, "SHORTENER_TIMEOUT", 10*time.Second),
		},
		Delivery: DeliveryConfig{
			AutoDeleteSeconds: getEnvAsInt(v, "AUTO_DELETE_SECONDS", 0),
			ProtectContent:    getEnvAsBool(v, "PROTECT_CONTENT", false),
			PurgeTimeout:      getEnvAsDuration(v, "PURGE_TIMEOUT", 10*time.Second),
		},
		Audit: AuditConfig{
			ExportInterval: getEnvAsDuration(v, "AUDIT_EXPORT_INTERVAL", 1*time.Hour),
			QueueSize:      getEnvAsInt(v, "AUDIT_QUEUE_SIZE", 1000),
		},
		Broadcast: BroadcastConfig{
			Rate:     getEnvAsFloat(v, "BROADCAST_RATE", 25),
			Burst:    getEnvAsFloat(v, "BROADCAST_BURST", 5),
			Interval: getEnvAsDuration(v, "BROADCAST_INTERVAL", 50*time.Millisecond),
			PageSize: getEnvAsInt(v, "BROADCAST_PAGE_SIZE", 500),
		},
		Messages: MessagesConfig{
			Start: getEnv(v, "START_MESSAGE", defaultStartMessage),
			Help:  getEnv(v, "HELP_MESSAGE", defaultHelpMessage),
		},
	}, nil
}

func getEnv(v *viper.Viper, key, fallback string) string {
	if v.IsSet(key) {
		return v.GetString(key)
	}
	return fallback
}

func getEnvAsInt(v *viper.Viper, key string, fallback int) int {
	if v.IsSet(key) {
		parsed, err := strconv.Atoi(strings.TrimSpace(v.GetString(key)))
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsInt64(v *viper.Viper, key string, fallback int64) int64 {
	if v.IsSet(key) {
		parsed, err := strconv.ParseInt(strings.TrimSpace(v.GetString(key)), 10, 64)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsFloat(v *viper.Viper, key string, fallback float64) float64 {
	if v.IsSet(key) {
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v.GetString(key)), 64)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsDuration(v *viper.Viper, key string, fallback time.Duration) time.Duration {
	if v.IsSet(key) {
		parsed, err := time.ParseDuration(strings.TrimSpace(v.GetString(key)))
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsBool(v *viper.Viper, key string, fallback bool) bool {
	if v.IsSet(key) {
		parsed, err := strconv.ParseBool(strings.TrimSpace(v.GetString(key)))
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func parseIDList(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
