package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName    string
	AppVersion string
	Port       string

	Environment   string
	AdminAPIToken string

	// Inbound webhook verification
	WebhookSecret       string
	WebhookReplayWindow time.Duration
	WebhookMaxBodyBytes int64

	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	// Fulfillment worker pool
	WorkerCount        int
	WorkerPollInterval time.Duration
	WorkerBatchSize    int
	WorkerMaxAttempts  int
	WorkerLease        time.Duration
	HandlerTimeout     time.Duration
	ReclaimInterval    time.Duration

	SnowflakeNodeID int64
}

// Load loads configuration from environment variables and .env file.
func Load() *Config {
	_ = godotenv.Load()
	environment := getenv("ENVIRONMENT", "development")

	cfg := Config{
		AppName:    getenv("APP_SERVICE", "ez-solutions"),
		AppVersion: getenv("APP_VERSION", "0.1.0"),
		Port:       getenv("PORT", "8081"),

		Environment:   environment,
		AdminAPIToken: strings.TrimSpace(getenv("ADMIN_API_TOKEN", "")),

		WebhookSecret:       strings.TrimSpace(getenv("PAYMENTS_WEBHOOK_SECRET", "")),
		WebhookReplayWindow: getenvDuration("PAYMENTS_WEBHOOK_REPLAY_WINDOW", 5*time.Minute),
		WebhookMaxBodyBytes: getenvInt64("PAYMENTS_WEBHOOK_MAX_BODY_BYTES", 1<<20),

		DBHost:            getenv("DB_HOST", "localhost"),
		DBPort:            getenv("DB_PORT", "5432"),
		DBName:            getenv("DB_NAME", "ezsolutions"),
		DBUser:            getenv("DB_USER", "postgres"),
		DBPassword:        getenv("DB_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DB_SSL_MODE", "disable"),
		DBMaxIdleConn:     getenvInt("DB_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DB_MAX_OPEN_CONN", 100),
		DBConnMaxLifetime: getenvInt("DB_CONN_MAX_LIFETIME", 3600),
		DBConnMaxIdleTime: getenvInt("DB_CONN_MAX_IDLE_TIME", 60),

		WorkerCount:        getenvInt("WORKER_COUNT", 4),
		WorkerPollInterval: getenvDuration("WORKER_POLL_INTERVAL", 2*time.Second),
		WorkerBatchSize:    getenvInt("WORKER_BATCH_SIZE", 5),
		WorkerMaxAttempts:  getenvInt("WORKER_MAX_ATTEMPTS", 8),
		WorkerLease:        getenvDuration("WORKER_LEASE", 2*time.Minute),
		HandlerTimeout:     getenvDuration("HANDLER_TIMEOUT", 30*time.Second),
		ReclaimInterval:    getenvDuration("RECLAIM_INTERVAL", 30*time.Second),

		SnowflakeNodeID: getenvInt64("SNOWFLAKE_NODE_ID", 1),
	}

	return &cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
