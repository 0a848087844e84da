package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Supported backend names.
const (
	BackendOracle = "oracle"
	BackendGemini = "gemini"
	BackendQwen   = "qwen"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	LogLevel    string
	Port        string
	DatabaseURL string
	DBMaxConns  int
	AutoMigrate bool

	GenerationBackend   string
	VerificationBackend string
	InstructionsFile    string

	OracleBaseURL string
	OracleAPIKey  string

	GeminiAPIKey      string
	GeminiBaseURL     string
	GeminiImageModel  string
	GeminiVerifyModel string

	QwenAPIKey  string
	QwenBaseURL string
	QwenModel   string

	TransportMaxAttempts int
	TransportBaseDelay   time.Duration
	TransportTimeout     time.Duration

	RetryPause      time.Duration
	BatchSpacing    time.Duration
	VerifyCacheSize int
	AcceptExhausted bool

	StorageDriver  string
	StoragePath    string
	MinIOEndpoint  string
	MinIORegion    string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOBucket    string
	MinIOUseSSL    bool
	AzureAccount   string
	AzureKey       string
	AzureContainer string

	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	HTTPIdleTimeout    time.Duration
	RateLimitPerMin    int
	CORSAllowedOrigins []string

	WorkerPollInterval time.Duration
}

// LoadConfig loads configuration from environment variables and applies
// defaults where needed. Values from .env files never override the process
// environment.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load(".env", ".env.local")

	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", ""),
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		DBMaxConns:  getEnvInt("DB_MAX_CONNS", 10),
		AutoMigrate: getEnvBool("DB_AUTO_MIGRATE", false),

		GenerationBackend:   strings.ToLower(getEnv("GENERATION_BACKEND", BackendOracle)),
		VerificationBackend: strings.ToLower(getEnv("VERIFICATION_BACKEND", BackendOracle)),
		InstructionsFile:    os.Getenv("INSTRUCTIONS_FILE"),

		OracleBaseURL: os.Getenv("ORACLE_BASE_URL"),
		OracleAPIKey:  os.Getenv("ORACLE_API_KEY"),

		GeminiAPIKey:      os.Getenv("GEMINI_API_KEY"),
		GeminiBaseURL:     os.Getenv("GEMINI_BASE_URL"),
		GeminiImageModel:  getEnv("GEMINI_IMAGE_MODEL", "gemini-2.5-flash-image"),
		GeminiVerifyModel: getEnv("GEMINI_VERIFY_MODEL", "gemini-2.5-flash"),

		QwenAPIKey:  os.Getenv("QWEN_API_KEY"),
		QwenBaseURL: os.Getenv("QWEN_BASE_URL"),
		QwenModel:   getEnv("QWEN_MODEL", "qwen-image-edit-plus"),

		TransportMaxAttempts: getEnvInt("TRANSPORT_MAX_ATTEMPTS", 3),
		TransportBaseDelay:   getEnvDuration("TRANSPORT_BASE_DELAY_MS", time.Millisecond, 1000),
		TransportTimeout:     getEnvDuration("TRANSPORT_TIMEOUT_SECONDS", time.Second, 120),

		RetryPause:      getEnvDuration("RETRY_PAUSE_MS", time.Millisecond, 2000),
		BatchSpacing:    getEnvDuration("BATCH_SPACING_MS", time.Millisecond, 1000),
		VerifyCacheSize: getEnvInt("VERIFY_CACHE_SIZE", 256),
		AcceptExhausted: getEnvBool("ACCEPT_EXHAUSTED", false),

		StorageDriver:  strings.ToLower(getEnv("STORAGE_DRIVER", "fs")),
		StoragePath:    getEnv("STORAGE_PATH", "./storage"),
		MinIOEndpoint:  os.Getenv("MINIO_ENDPOINT"),
		MinIORegion:    os.Getenv("MINIO_REGION"),
		MinIOAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		MinIOSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinIOBucket:    getEnv("MINIO_BUCKET", "listingfix"),
		MinIOUseSSL:    getEnvBool("MINIO_USE_SSL", false),
		AzureAccount:   os.Getenv("AZURE_STORAGE_ACCOUNT"),
		AzureKey:       os.Getenv("AZURE_STORAGE_KEY"),
		AzureContainer: getEnv("AZURE_STORAGE_CONTAINER", "listingfix"),

		HTTPReadTimeout:    getEnvDuration("HTTP_READ_TIMEOUT_SECONDS", time.Second, 15),
		HTTPWriteTimeout:   getEnvDuration("HTTP_WRITE_TIMEOUT_SECONDS", time.Second, 180),
		HTTPIdleTimeout:    getEnvDuration("HTTP_IDLE_TIMEOUT_SECONDS", time.Second, 60),
		RateLimitPerMin:    getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		CORSAllowedOrigins: splitList(os.Getenv("CORS_ALLOWED_ORIGINS")),

		WorkerPollInterval: getEnvDuration("WORKER_POLL_INTERVAL_MS", time.Millisecond, 2000),
	}

	switch cfg.GenerationBackend {
	case BackendOracle, BackendGemini, BackendQwen:
	default:
		return nil, fmt.Errorf("GENERATION_BACKEND %q is not supported", cfg.GenerationBackend)
	}
	switch cfg.VerificationBackend {
	case BackendOracle, BackendGemini:
	default:
		return nil, fmt.Errorf("VERIFICATION_BACKEND %q is not supported", cfg.VerificationBackend)
	}
	if cfg.TransportMaxAttempts < 1 {
		return nil, fmt.Errorf("TRANSPORT_MAX_ATTEMPTS must be at least 1")
	}

	return cfg, nil
}

// RequireDatabase reports an error when no database is configured.
func (c *Config) RequireDatabase() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// getEnvDuration reads an integer count of unit.
func getEnvDuration(key string, unit time.Duration, fallback int) time.Duration {
	return unit * time.Duration(getEnvInt(key, fallback))
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
