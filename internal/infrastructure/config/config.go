package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig encapsulates all runtime configuration knobs.
type AppConfig struct {
	App      AppSettings
	HTTP     HTTPSettings
	Auth     AuthSettings
	Log      LogSettings
	Database DatabaseSettings
	Audit    AuditSettings
	Drive    DriveSettings
	Gemini   GeminiSettings
	Rates    RatesSettings
	Matching MatchingSettings
	Pipeline PipelineSettings
}

type AppSettings struct {
	Name        string
	Version     string
	Environment string
}

type HTTPSettings struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

type AuthSettings struct {
	Enabled     bool
	IssuerURI   string
	JWKSetURI   string
	APISecret   string
	ClockSkew   time.Duration
	BypassPaths []string
}

type LogSettings struct {
	Level string
}

type DatabaseSettings struct {
	Host            string
	Port            int
	Database        string
	User            string
	Password        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type AuditSettings struct {
	Enabled         bool
	LogRequestBody  bool
	LogResponseBody bool
	MaxBodySize     int
}

// DriveSettings points at the document store root and the ledger spreadsheet.
type DriveSettings struct {
	RootFolderID  string
	LedgerSheetID string
	WebhookURL    string
	// AccessToken is the bearer token for the Drive and Sheets APIs. Token
	// refresh is handled outside the service.
	AccessToken string
}

// GeminiSettings configures the vision LLM gateway.
type GeminiSettings struct {
	BaseURL     string
	APIKey      string
	Model       string
	RPMLimit    int
	MaxRetries  int
	APITimeout  time.Duration
	BackoffBase time.Duration
	BackoffCap  time.Duration
}

// RatesSettings configures the ARS/USD official quote source.
type RatesSettings struct {
	BaseURL    string
	APITimeout time.Duration
	CacheTTL   time.Duration
}

// MatchingSettings carries the matcher windows and tolerances.
type MatchingSettings struct {
	MatchDaysBefore        int
	MatchDaysAfter         int
	USDARSTolerancePercent float64
	MaxCascadeDepth        int
	CascadeTimeout         time.Duration
	KeywordDirectDebitOnly bool
}

// PipelineSettings contains configuration for concurrent document processing.
type PipelineSettings struct {
	Parallelism  int
	StoreTimeout time.Duration
}

// Load resolves the application configuration from environment variables.
// It first attempts to load variables from a .env file if it exists.
// Environment variables set in the system take precedence over .env file values.
func Load() (AppConfig, error) {
	// Try to load .env file (ignore error if file doesn't exist)
	// This allows the application to work both with .env files (local dev)
	// and environment variables (Docker, production)
	_ = godotenv.Load()

	cfg := AppConfig{
		App: AppSettings{
			Name:        getEnv("APP_NAME", "ms_conciliacion_core"),
			Version:     getEnv("APP_VERSION", "0.1.0"),
			Environment: getEnv("APP_ENV", "local"),
		},
		HTTP: HTTPSettings{
			Port:            getEnvAsInt("APP_PORT", 8080),
			ReadTimeout:     getEnvAsDuration("HTTP_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getEnvAsDuration("HTTP_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:     getEnvAsDuration("HTTP_IDLE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getEnvAsDuration("HTTP_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Auth: AuthSettings{
			Enabled:     getEnvAsBool("AUTH_ENABLED", false),
			IssuerURI:   strings.TrimSpace(os.Getenv("JWT_ISSUER_URI")),
			JWKSetURI:   strings.TrimSpace(os.Getenv("JWT_JWK_SET_URI")),
			APISecret:   strings.TrimSpace(os.Getenv("API_SECRET")),
			ClockSkew:   getEnvAsDuration("AUTH_CLOCK_SKEW", 2*time.Minute),
			BypassPaths: getEnvAsCSV("AUTH_BYPASS_PATHS", []string{"/health"}),
		},
		Log: LogSettings{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Database: DatabaseSettings{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvAsInt("DB_PORT", 5432),
			Database:        getEnv("DB_NAME", "ms_conciliacion_core"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", ""),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 2),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Audit: AuditSettings{
			Enabled:         getEnvAsBool("AUDIT_ENABLED", true),
			LogRequestBody:  getEnvAsBool("AUDIT_LOG_REQUEST_BODY", true),
			LogResponseBody: getEnvAsBool("AUDIT_LOG_RESPONSE_BODY", true),
			MaxBodySize:     getEnvAsInt("AUDIT_MAX_BODY_SIZE", 102400),
		},
		Drive: DriveSettings{
			RootFolderID:  strings.TrimSpace(os.Getenv("DRIVE_ROOT_FOLDER_ID")),
			LedgerSheetID: strings.TrimSpace(os.Getenv("LEDGER_SHEET_ID")),
			WebhookURL:    strings.TrimSpace(os.Getenv("WEBHOOK_URL")),
			AccessToken:   strings.TrimSpace(os.Getenv("DRIVE_ACCESS_TOKEN")),
		},
		Gemini: GeminiSettings{
			BaseURL:     getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"),
			APIKey:      strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
			Model:       getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
			RPMLimit:    getEnvAsInt("GEMINI_RPM_LIMIT", 150),
			MaxRetries:  getEnvAsInt("GEMINI_MAX_RETRIES", 3),
			APITimeout:  getEnvAsDuration("GEMINI_API_TIMEOUT", 120*time.Second),
			BackoffBase: getEnvAsDuration("GEMINI_BACKOFF_BASE", 1*time.Second),
			BackoffCap:  getEnvAsDuration("GEMINI_BACKOFF_CAP", 30*time.Second),
		},
		Rates: RatesSettings{
			BaseURL:    getEnv("RATES_BASE_URL", "https://api.argentinadatos.com/v1"),
			APITimeout: getEnvAsDuration("RATES_API_TIMEOUT", 10*time.Second),
			CacheTTL:   getEnvAsDuration("RATES_CACHE_TTL", 24*time.Hour),
		},
		Matching: MatchingSettings{
			MatchDaysBefore:        getEnvAsInt("MATCH_DAYS_BEFORE", 10),
			MatchDaysAfter:         getEnvAsInt("MATCH_DAYS_AFTER", 60),
			USDARSTolerancePercent: getEnvAsFloat("USD_ARS_TOLERANCE_PERCENT", 5),
			MaxCascadeDepth:        getEnvAsInt("MAX_CASCADE_DEPTH", 10),
			CascadeTimeout:         getEnvAsDuration("CASCADE_TIMEOUT", 30*time.Second),
			KeywordDirectDebitOnly: getEnvAsBool("BANK_KEYWORD_DIRECT_DEBIT_ONLY", false),
		},
		Pipeline: PipelineSettings{
			Parallelism:  getEnvAsInt("PIPELINE_PARALLELISM", 4),
			StoreTimeout: getEnvAsDuration("STORE_TIMEOUT", 30*time.Second),
		},
	}

	if cfg.Gemini.RPMLimit <= 0 {
		return cfg, errors.New("invalid config: GEMINI_RPM_LIMIT must be greater than 0")
	}
	if cfg.Gemini.MaxRetries < 0 {
		return cfg, errors.New("invalid config: GEMINI_MAX_RETRIES cannot be negative")
	}
	if cfg.Pipeline.Parallelism <= 0 {
		return cfg, errors.New("invalid config: PIPELINE_PARALLELISM must be greater than 0")
	}
	if cfg.Matching.MaxCascadeDepth <= 0 {
		return cfg, errors.New("invalid config: MAX_CASCADE_DEPTH must be greater than 0")
	}
	if cfg.Matching.USDARSTolerancePercent <= 0 || cfg.Matching.USDARSTolerancePercent > 100 {
		return cfg, errors.New("invalid config: USD_ARS_TOLERANCE_PERCENT must be between 0 and 100")
	}
	if cfg.Matching.MatchDaysBefore < 0 || cfg.Matching.MatchDaysAfter < 0 {
		return cfg, errors.New("invalid config: match windows cannot be negative")
	}

	production := cfg.App.Environment == "prod" || cfg.App.Environment == "production"
	if production {
		if cfg.Gemini.APIKey == "" {
			return cfg, errors.New("invalid config: GEMINI_API_KEY is required in production")
		}
		if cfg.Drive.RootFolderID == "" {
			return cfg, errors.New("invalid config: DRIVE_ROOT_FOLDER_ID is required in production")
		}
	}

	if cfg.Auth.Enabled {
		if cfg.Auth.APISecret == "" && cfg.Auth.JWKSetURI == "" {
			return cfg, errors.New("invalid config: API_SECRET or JWT_JWK_SET_URI is required when AUTH_ENABLED=true")
		}
		if cfg.Auth.JWKSetURI != "" && cfg.Auth.IssuerURI == "" {
			return cfg, errors.New("invalid config: JWT_ISSUER_URI is required when JWT_JWK_SET_URI is set")
		}
	}

	return cfg, nil
}

// Address returns the HTTP listen address in host:port form.
func (h HTTPSettings) Address() string {
	return fmt.Sprintf(":%d", h.Port)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsCSV(key string, fallback []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			values = append(values, trimmed)
		}
	}
	if len(values) == 0 {
		return fallback
	}
	return values
}
