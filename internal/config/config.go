package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL   string
	DBHost        string
	DBPort        string
	DBUser        string
	DBPassword    string
	DBName        string
	DBSSLMode     string
	DBAutoMigrate bool

	ServerPort string

	JWTSecret string

	// RedisURL is optional. Without it the status cache, rate limiter and
	// request event stream are disabled.
	RedisURL string

	LogLevel string

	StatusCacheTTL time.Duration
	WorkerCount    int

	FCMProjectID   string
	FCMClientEmail string
	FCMPrivateKey  string

	MetricsEndpoint string
	MetricsStdout   bool
}

func LoadConfig() (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found or error loading it, relying on environment variables")
	}

	serverPort := os.Getenv("SERVER_PORT")
	if serverPort == "" {
		serverPort = "8080"
	}

	sslMode := os.Getenv("DB_SSLMODE")
	if sslMode == "" {
		sslMode = "require"
	}

	cacheTTL := 3 * time.Second
	if v := os.Getenv("STATUS_CACHE_TTL"); v != "" {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid STATUS_CACHE_TTL %q: %w", v, err)
		}
		cacheTTL = parsed
	}

	workerCount, err := strconv.Atoi(os.Getenv("WORKER_COUNT"))
	if err != nil || workerCount <= 0 {
		workerCount = 2
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	return &Config{
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		DBHost:        os.Getenv("DB_HOST"),
		DBPort:        os.Getenv("DB_PORT"),
		DBUser:        os.Getenv("DB_USER"),
		DBPassword:    os.Getenv("DB_PASSWORD"),
		DBName:        os.Getenv("DB_NAME"),
		DBSSLMode:     sslMode,
		DBAutoMigrate: os.Getenv("DB_AUTO_MIGRATE") == "true",

		ServerPort: serverPort,

		JWTSecret: jwtSecret,

		RedisURL: os.Getenv("REDIS_URL"),

		LogLevel: os.Getenv("LOG_LEVEL"),

		StatusCacheTTL: cacheTTL,
		WorkerCount:    workerCount,

		FCMProjectID:   os.Getenv("FCM_PROJECT_ID"),
		FCMClientEmail: os.Getenv("FCM_CLIENT_EMAIL"),
		FCMPrivateKey:  os.Getenv("FCM_PRIVATE_KEY"),

		MetricsEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT"),
		MetricsStdout:   os.Getenv("METRICS_STDOUT") == "true",
	}, nil
}

// DSN returns DATABASE_URL when set, otherwise a key/value DSN built from the
// individual DB_* variables.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort, c.DBSSLMode)
}

// PushEnabled reports whether FCM credentials are configured.
func (c *Config) PushEnabled() bool {
	return c.FCMProjectID != "" && c.FCMClientEmail != "" && c.FCMPrivateKey != ""
}
