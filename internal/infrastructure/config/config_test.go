package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_DefaultValues(t *testing.T) {
	envVars := []string{
		"APP_NAME", "APP_VERSION", "APP_ENV", "APP_PORT",
		"HTTP_READ_TIMEOUT", "HTTP_WRITE_TIMEOUT", "HTTP_IDLE_TIMEOUT", "HTTP_SHUTDOWN_TIMEOUT",
		"AUTH_ENABLED", "JWT_ISSUER_URI", "JWT_JWK_SET_URI", "API_SECRET",
		"LOG_LEVEL", "GEMINI_API_KEY", "GEMINI_RPM_LIMIT", "GEMINI_MAX_RETRIES",
		"MATCH_DAYS_BEFORE", "MATCH_DAYS_AFTER", "USD_ARS_TOLERANCE_PERCENT",
		"MAX_CASCADE_DEPTH", "CASCADE_TIMEOUT", "BANK_KEYWORD_DIRECT_DEBIT_ONLY",
		"PIPELINE_PARALLELISM",
	}

	for _, key := range envVars {
		os.Unsetenv(key)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.App.Name != "ms_conciliacion_core" {
		t.Errorf("expected default app name 'ms_conciliacion_core', got %q", cfg.App.Name)
	}

	if cfg.App.Environment != "local" {
		t.Errorf("expected default environment 'local', got %q", cfg.App.Environment)
	}

	if cfg.HTTP.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.HTTP.Port)
	}

	if cfg.Gemini.RPMLimit != 150 {
		t.Errorf("expected default GEMINI_RPM_LIMIT 150, got %d", cfg.Gemini.RPMLimit)
	}

	if cfg.Matching.MatchDaysBefore != 10 || cfg.Matching.MatchDaysAfter != 60 {
		t.Errorf("expected default match window 10/60, got %d/%d",
			cfg.Matching.MatchDaysBefore, cfg.Matching.MatchDaysAfter)
	}

	if cfg.Matching.USDARSTolerancePercent != 5 {
		t.Errorf("expected default USD_ARS_TOLERANCE_PERCENT 5, got %v", cfg.Matching.USDARSTolerancePercent)
	}

	if cfg.Matching.MaxCascadeDepth != 10 {
		t.Errorf("expected default MAX_CASCADE_DEPTH 10, got %d", cfg.Matching.MaxCascadeDepth)
	}

	if cfg.Matching.CascadeTimeout != 30*time.Second {
		t.Errorf("expected default CASCADE_TIMEOUT 30s, got %v", cfg.Matching.CascadeTimeout)
	}

	if cfg.Matching.KeywordDirectDebitOnly {
		t.Error("expected BANK_KEYWORD_DIRECT_DEBIT_ONLY to default to false")
	}
}

func TestLoad_WithCustomValues(t *testing.T) {
	os.Setenv("APP_NAME", "test-app")
	os.Setenv("APP_PORT", "9090")
	os.Setenv("GEMINI_RPM_LIMIT", "60")
	os.Setenv("MATCH_DAYS_BEFORE", "5")
	os.Setenv("USD_ARS_TOLERANCE_PERCENT", "2.5")
	os.Setenv("BANK_KEYWORD_DIRECT_DEBIT_ONLY", "true")
	defer func() {
		os.Unsetenv("APP_NAME")
		os.Unsetenv("APP_PORT")
		os.Unsetenv("GEMINI_RPM_LIMIT")
		os.Unsetenv("MATCH_DAYS_BEFORE")
		os.Unsetenv("USD_ARS_TOLERANCE_PERCENT")
		os.Unsetenv("BANK_KEYWORD_DIRECT_DEBIT_ONLY")
	}()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.App.Name != "test-app" {
		t.Errorf("expected app name 'test-app', got %q", cfg.App.Name)
	}

	if cfg.HTTP.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.HTTP.Port)
	}

	if cfg.Gemini.RPMLimit != 60 {
		t.Errorf("expected GEMINI_RPM_LIMIT 60, got %d", cfg.Gemini.RPMLimit)
	}

	if cfg.Matching.MatchDaysBefore != 5 {
		t.Errorf("expected MATCH_DAYS_BEFORE 5, got %d", cfg.Matching.MatchDaysBefore)
	}

	if cfg.Matching.USDARSTolerancePercent != 2.5 {
		t.Errorf("expected USD_ARS_TOLERANCE_PERCENT 2.5, got %v", cfg.Matching.USDARSTolerancePercent)
	}

	if !cfg.Matching.KeywordDirectDebitOnly {
		t.Error("expected BANK_KEYWORD_DIRECT_DEBIT_ONLY true")
	}
}

func TestLoad_InvalidRPMLimit(t *testing.T) {
	os.Setenv("GEMINI_RPM_LIMIT", "0")
	defer os.Unsetenv("GEMINI_RPM_LIMIT")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when GEMINI_RPM_LIMIT=0")
	}

	if err.Error() != "invalid config: GEMINI_RPM_LIMIT must be greater than 0" {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestLoad_InvalidTolerance(t *testing.T) {
	os.Setenv("USD_ARS_TOLERANCE_PERCENT", "150")
	defer os.Unsetenv("USD_ARS_TOLERANCE_PERCENT")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when USD_ARS_TOLERANCE_PERCENT=150")
	}
}

func TestLoad_ProductionRequiresGeminiKey(t *testing.T) {
	os.Setenv("APP_ENV", "production")
	os.Unsetenv("GEMINI_API_KEY")
	defer os.Unsetenv("APP_ENV")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when APP_ENV=production and GEMINI_API_KEY is missing")
	}

	if err.Error() != "invalid config: GEMINI_API_KEY is required in production" {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestLoad_AuthEnabled_MissingSecret(t *testing.T) {
	os.Setenv("AUTH_ENABLED", "true")
	os.Unsetenv("API_SECRET")
	os.Unsetenv("JWT_JWK_SET_URI")
	defer os.Unsetenv("AUTH_ENABLED")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when AUTH_ENABLED=true without API_SECRET or JWK set")
	}
}

func TestHTTPSettings_Address(t *testing.T) {
	settings := HTTPSettings{Port: 8080}
	if addr := settings.Address(); addr != ":8080" {
		t.Errorf("expected address ':8080', got %q", addr)
	}
}

func TestGetEnvAsBool(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		fallback bool
		expected bool
	}{
		{"true value", "true", false, true},
		{"false value", "false", true, false},
		{"True value", "True", false, true},
		{"invalid value", "invalid", true, true},
		{"missing key", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv("TEST_BOOL", tt.envValue)
				defer os.Unsetenv("TEST_BOOL")
			} else {
				os.Unsetenv("TEST_BOOL")
			}

			if result := getEnvAsBool("TEST_BOOL", tt.fallback); result != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}

func TestGetEnvAsFloat(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		fallback float64
		expected float64
	}{
		{"valid float", "2.5", 0, 2.5},
		{"integer", "5", 0, 5},
		{"invalid value", "not-a-number", 5, 5},
		{"missing key", "", 5, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv("TEST_FLOAT", tt.envValue)
				defer os.Unsetenv("TEST_FLOAT")
			} else {
				os.Unsetenv("TEST_FLOAT")
			}

			if result := getEnvAsFloat("TEST_FLOAT", tt.fallback); result != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}

func TestGetEnvAsDuration(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		fallback time.Duration
		expected time.Duration
	}{
		{"valid duration", "10s", 0, 10 * time.Second},
		{"minutes", "5m", 0, 5 * time.Minute},
		{"invalid value", "not-a-duration", 30 * time.Second, 30 * time.Second},
		{"missing key", "", 30 * time.Second, 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv("TEST_DURATION", tt.envValue)
				defer os.Unsetenv("TEST_DURATION")
			} else {
				os.Unsetenv("TEST_DURATION")
			}

			if result := getEnvAsDuration("TEST_DURATION", tt.fallback); result != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}

func TestGetEnvAsCSV(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		fallback []string
		expected []string
	}{
		{"single value", "value1", []string{"default"}, []string{"value1"}},
		{"multiple values", "a,b,c", []string{"default"}, []string{"a", "b", "c"}},
		{"with spaces", "a, b , c", []string{"default"}, []string{"a", "b", "c"}},
		{"empty values filtered", "a,,b, ,c", []string{"default"}, []string{"a", "b", "c"}},
		{"only spaces", " , , ", []string{"default"}, []string{"default"}},
		{"missing key", "", []string{"d1", "d2"}, []string{"d1", "d2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv("TEST_CSV", tt.envValue)
				defer os.Unsetenv("TEST_CSV")
			} else {
				os.Unsetenv("TEST_CSV")
			}

			result := getEnvAsCSV("TEST_CSV", tt.fallback)
			if len(result) != len(tt.expected) {
				t.Fatalf("expected %d values, got %d", len(tt.expected), len(result))
			}
			for i, expected := range tt.expected {
				if result[i] != expected {
					t.Errorf("expected[%d] %q, got %q", i, expected, result[i])
				}
			}
		})
	}
}
