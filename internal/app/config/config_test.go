package config

import (
	"os"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	os.Clearenv()
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":5000" {
		t.Errorf("ListenAddr = %q, want :5000", cfg.ListenAddr)
	}
	if cfg.DefaultDemobankCurrency != "EUR" {
		t.Errorf("DefaultDemobankCurrency = %q, want EUR", cfg.DefaultDemobankCurrency)
	}
	if !cfg.IsDevelopment() {
		t.Errorf("expected development environment by default")
	}
}

func TestLoadReadsLibeufinEnvNames(t *testing.T) {
	os.Clearenv()
	os.Setenv("LIBEUFIN_SANDBOX_DB_CONNECTION", "postgres://custom/db")
	os.Setenv("LIBEUFIN_SANDBOX_ADMIN_PASSWORD", "s3cret")
	defer os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DatabaseDSN != "postgres://custom/db" {
		t.Errorf("DatabaseDSN = %q, want postgres://custom/db", cfg.DatabaseDSN)
	}
	if cfg.AdminPassword != "s3cret" {
		t.Errorf("AdminPassword = %q, want s3cret", cfg.AdminPassword)
	}
}

func TestValidateRequiresAdminPasswordInProduction(t *testing.T) {
	cfg := &Config{
		Env:            Production,
		ListenAddr:     ":5000",
		DatabaseDSN:    "postgres://x",
		DBMaxOpenConns: 5,
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing admin password in production")
	}
	cfg.AdminPassword = "secret"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestParseEnvironment(t *testing.T) {
	if ParseEnvironment("production") != Production {
		t.Error("expected production")
	}
	if ParseEnvironment("bogus") != Development {
		t.Error("expected development fallback")
	}
}
