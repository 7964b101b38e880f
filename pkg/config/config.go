package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	Bulk          BulkConfig
	Notifications NotificationsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// BulkConfig governs the bulk role-assignment engine.
type BulkConfig struct {
	Enabled        bool
	BatchSize      int
	MaxRows        int
	SyncThreshold  int
	MaxRetries     int
	RetryDelay     time.Duration
	StatusCacheTTL time.Duration
	PerItemLatency time.Duration
	WorkerBuffer   int
}

// NotificationsConfig controls post-run notification fan-out.
type NotificationsConfig struct {
	Enabled     bool
	Concurrency int
	Template    string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret: v.GetString("JWT_SECRET"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Bulk = BulkConfig{
		Enabled:        v.GetBool("ENABLE_BULK"),
		BatchSize:      v.GetInt("BULK_BATCH_SIZE"),
		MaxRows:        v.GetInt("BULK_MAX_ROWS"),
		SyncThreshold:  v.GetInt("BULK_SYNC_THRESHOLD"),
		MaxRetries:     v.GetInt("BULK_MAX_RETRIES"),
		RetryDelay:     parseDuration(v.GetString("BULK_RETRY_DELAY"), time.Second),
		StatusCacheTTL: parseDuration(v.GetString("BULK_STATUS_CACHE_TTL"), 5*time.Second),
		PerItemLatency: parseDuration(v.GetString("BULK_PER_ITEM_LATENCY"), 40*time.Millisecond),
		WorkerBuffer:   v.GetInt("BULK_WORKER_BUFFER"),
	}

	cfg.Notifications = NotificationsConfig{
		Enabled:     v.GetBool("ENABLE_NOTIFICATIONS"),
		Concurrency: v.GetInt("NOTIFICATIONS_CONCURRENCY"),
		Template:    v.GetString("NOTIFICATIONS_TEMPLATE"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "adp_bulkops")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ENABLE_BULK", true)
	v.SetDefault("BULK_BATCH_SIZE", 50)
	v.SetDefault("BULK_MAX_ROWS", 10000)
	v.SetDefault("BULK_SYNC_THRESHOLD", 100)
	v.SetDefault("BULK_MAX_RETRIES", 3)
	v.SetDefault("BULK_RETRY_DELAY", "1s")
	v.SetDefault("BULK_STATUS_CACHE_TTL", "5s")
	v.SetDefault("BULK_PER_ITEM_LATENCY", "40ms")
	v.SetDefault("BULK_WORKER_BUFFER", 16)

	v.SetDefault("ENABLE_NOTIFICATIONS", false)
	v.SetDefault("NOTIFICATIONS_CONCURRENCY", 2)
	v.SetDefault("NOTIFICATIONS_TEMPLATE", "role_changed")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
