package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadEnv(t *testing.T) {
	// LoadEnv returns nil when no .env file exists
	err := LoadEnv()
	if err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}

func TestValidateEnvAllSet(t *testing.T) {
	os.Setenv("JWT_SECRET", "test-secret")
	os.Setenv("DATABASE_URL", "test-db-url")
	defer os.Unsetenv("JWT_SECRET")
	defer os.Unsetenv("DATABASE_URL")

	err := ValidateEnv()
	if err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}

func TestValidateEnvMissingJWTSecret(t *testing.T) {
	os.Unsetenv("JWT_SECRET")
	os.Setenv("DATABASE_URL", "test-db-url")
	defer os.Unsetenv("DATABASE_URL")

	err := ValidateEnv()
	if err == nil {
		t.Error("expected error for missing JWT_SECRET")
	}
}

func TestValidateEnvMissingDatabaseURL(t *testing.T) {
	os.Setenv("JWT_SECRET", "test-secret")
	os.Unsetenv("DATABASE_URL")
	defer os.Unsetenv("JWT_SECRET")

	err := ValidateEnv()
	if err == nil {
		t.Error("expected error for missing DATABASE_URL")
	}
}

func TestValidateEnvMissingBoth(t *testing.T) {
	os.Unsetenv("JWT_SECRET")
	os.Unsetenv("DATABASE_URL")

	err := ValidateEnv()
	if err == nil {
		t.Error("expected error for missing both")
	}
}

func TestGetEnvExisting(t *testing.T) {
	os.Setenv("TEST_GET_ENV_KEY", "test-value")
	defer os.Unsetenv("TEST_GET_ENV_KEY")

	result := GetEnv("TEST_GET_ENV_KEY", "default")
	if result != "test-value" {
		t.Errorf("expected 'test-value', got '%s'", result)
	}
}

func TestGetEnvMissing(t *testing.T) {
	os.Unsetenv("TEST_GET_ENV_MISSING")
	result := GetEnv("TEST_GET_ENV_MISSING", "fallback")
	if result != "fallback" {
		t.Errorf("expected 'fallback', got '%s'", result)
	}
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("TEST_DURATION", "90s")
	if got := GetEnvDuration("TEST_DURATION", time.Minute); got != 90*time.Second {
		t.Errorf("expected 90s, got %s", got)
	}

	t.Setenv("TEST_DURATION", "soon")
	if got := GetEnvDuration("TEST_DURATION", time.Minute); got != time.Minute {
		t.Errorf("expected fallback on malformed value, got %s", got)
	}
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("TEST_INT", "45")
	if got := GetEnvInt("TEST_INT", 10); got != 45 {
		t.Errorf("expected 45, got %d", got)
	}
	for _, bad := range []string{"lots", "0", "-3"} {
		t.Setenv("TEST_INT", bad)
		if got := GetEnvInt("TEST_INT", 10); got != 10 {
			t.Errorf("%q: expected fallback 10, got %d", bad, got)
		}
	}
}

func TestGetEnvBool(t *testing.T) {
	t.Setenv("TEST_BOOL", "true")
	if !GetEnvBool("TEST_BOOL", false) {
		t.Error("expected true")
	}
	t.Setenv("TEST_BOOL", "nope")
	if GetEnvBool("TEST_BOOL", false) {
		t.Error("expected fallback false")
	}
}

func TestLoadMvolaConfigSandbox(t *testing.T) {
	t.Setenv("ENV_MODE", "sandbox")
	t.Setenv("SANDBOX_MVOLA_API_URL", "https://sandbox.example/merchantpay/")
	t.Setenv("SANDBOX_MVOLA_CLIENT_ID", "sandbox-id")
	t.Setenv("PRODUCTION_MVOLA_CLIENT_ID", "prod-id")
	t.Setenv("SANDBOX_MVOLA_SECRET_KEY", "secret")
	t.Setenv("SANDBOX_MVOLA_PARTNER_MSISDN", "0343500003")
	t.Setenv("MVOLA_PARTNER_NAME", " Biscuit Shop ")

	cfg := LoadMvolaConfig()
	if cfg.Mode != ModeSandbox {
		t.Errorf("expected sandbox mode, got %s", cfg.Mode)
	}
	if cfg.APIURL != "https://sandbox.example/merchantpay" {
		t.Errorf("expected trailing slash trimmed, got %s", cfg.APIURL)
	}
	if cfg.ClientID != "sandbox-id" {
		t.Errorf("expected sandbox client id, got %s", cfg.ClientID)
	}
	if cfg.PartnerName != "Biscuit Shop" {
		t.Errorf("expected trimmed partner name, got %q", cfg.PartnerName)
	}
	if cfg.Scope != "merchantpay" {
		t.Errorf("expected default scope, got %s", cfg.Scope)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}
}

func TestLoadMvolaConfigProduction(t *testing.T) {
	t.Setenv("ENV_MODE", "production")
	t.Setenv("PRODUCTION_MVOLA_CLIENT_ID", "prod-id")

	cfg := LoadMvolaConfig()
	if cfg.Mode != ModeProduction {
		t.Errorf("expected production mode, got %s", cfg.Mode)
	}
	if cfg.ClientID != "prod-id" {
		t.Errorf("expected production client id, got %s", cfg.ClientID)
	}
	if cfg.Validate() == nil {
		t.Error("expected missing secret to fail validation")
	}
}

func TestMvolaConfigRejectsPlainHTTP(t *testing.T) {
	cfg := MvolaConfig{
		APIURL:        "http://insecure.example",
		ClientID:      "id",
		SecretKey:     "secret",
		PartnerMSISDN: "0343500003",
		PartnerName:   "Shop",
	}
	if cfg.Validate() == nil {
		t.Error("expected http API URL to be rejected")
	}
}
