package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string

	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Session registry
	SessionBackend string
	SessionTTL     time.Duration
	SessionMax     int

	// Completion backend
	LLMProvider        string
	GeminiAPIKey       string
	GeminiModel        string
	BedrockModelID     string
	CompletionTimeout  time.Duration
	CompletionMaxToken int
	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string

	// Tenancy
	DefaultWebTenant string
	TenantCacheTTL   time.Duration
	// TenantsJSON seeds a static tenant registry when no database is configured.
	TenantsJSON string

	// Appointments
	SlotLockEnabled bool
	SlotLockTTL     time.Duration

	// Channels
	TwilioAuthToken    string
	TwilioSkipVerify   bool
	CORSAllowedOrigins []string
	// Public chat endpoints are limited per client IP.
	PublicRateLimit float64
	PublicBurst     int

	// Staff tooling
	AdminJWTSecret string
	AdminTokenTTL  time.Duration

	// Spreadsheet mirror
	SheetsSpreadsheetID   string
	SheetsName            string
	GoogleCredentialsFile string
	OutboxInterval        time.Duration
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		SessionBackend: strings.ToLower(strings.TrimSpace(getEnv("SESSION_BACKEND", "memory"))),
		SessionTTL:     getEnvAsDuration("SESSION_TTL", 24*time.Hour),
		SessionMax:     getEnvAsInt("SESSION_MAX", 10000),

		LLMProvider:        strings.ToLower(strings.TrimSpace(getEnv("LLM_PROVIDER", "gemini"))),
		GeminiAPIKey:       getEnv("GEMINI_API_KEY", ""),
		GeminiModel:        getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		BedrockModelID:     getEnv("BEDROCK_MODEL_ID", ""),
		CompletionTimeout:  getEnvAsDuration("COMPLETION_TIMEOUT", 30*time.Second),
		CompletionMaxToken: getEnvAsInt("COMPLETION_MAX_TOKENS", 800),
		AWSRegion:          getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),

		DefaultWebTenant: getEnv("DEFAULT_WEB_TENANT", "demo"),
		TenantCacheTTL:   getEnvAsDuration("TENANT_CACHE_TTL", 5*time.Minute),
		TenantsJSON:      getEnv("TENANTS_JSON", ""),

		SlotLockEnabled: getEnvAsBool("SLOT_LOCK_ENABLED", false),
		SlotLockTTL:     getEnvAsDuration("SLOT_LOCK_TTL", 5*time.Second),

		TwilioAuthToken:    getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioSkipVerify:   getEnvAsBool("TWILIO_SKIP_VERIFY", false),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		PublicRateLimit:    getEnvAsFloat("PUBLIC_RATE_LIMIT", 2),
		PublicBurst:        getEnvAsInt("PUBLIC_RATE_BURST", 10),

		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),
		AdminTokenTTL:  getEnvAsDuration("ADMIN_TOKEN_TTL", 8*time.Hour),

		SheetsSpreadsheetID:   getEnv("SHEETS_SPREADSHEET_ID", ""),
		SheetsName:            getEnv("SHEETS_NAME", "Hoja 1"),
		GoogleCredentialsFile: getEnv("GOOGLE_CREDENTIALS_FILE", ""),
		OutboxInterval:        getEnvAsDuration("OUTBOX_INTERVAL", 2*time.Second),
	}
}

// LoadDotEnv merges a local .env file into the process environment.
// A missing file is not an error; variables already set are left alone.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
