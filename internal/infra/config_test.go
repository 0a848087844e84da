package infra

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("GENERATION_BACKEND", "")
	t.Setenv("VERIFICATION_BACKEND", "")
	t.Setenv("RETRY_PAUSE_MS", "")
	t.Setenv("TRANSPORT_BASE_DELAY_MS", "")
	t.Setenv("STORAGE_DRIVER", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.GenerationBackend != BackendOracle || cfg.VerificationBackend != BackendOracle {
		t.Fatalf("backends = %s/%s", cfg.GenerationBackend, cfg.VerificationBackend)
	}
	if cfg.RetryPause != 2*time.Second || cfg.TransportBaseDelay != time.Second || cfg.BatchSpacing != time.Second {
		t.Fatalf("timing defaults mismatch: pause=%s delay=%s spacing=%s", cfg.RetryPause, cfg.TransportBaseDelay, cfg.BatchSpacing)
	}
	if cfg.TransportMaxAttempts != 3 {
		t.Fatalf("TransportMaxAttempts = %d", cfg.TransportMaxAttempts)
	}
	if cfg.StorageDriver != "fs" {
		t.Fatalf("StorageDriver = %q", cfg.StorageDriver)
	}
}

func TestLoadConfigReadsOverrides(t *testing.T) {
	t.Setenv("GENERATION_BACKEND", "Gemini")
	t.Setenv("VERIFICATION_BACKEND", "gemini")
	t.Setenv("RETRY_PAUSE_MS", "50")
	t.Setenv("ACCEPT_EXHAUSTED", "true")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com ,")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.GenerationBackend != BackendGemini {
		t.Fatalf("GenerationBackend = %q", cfg.GenerationBackend)
	}
	if cfg.RetryPause != 50*time.Millisecond {
		t.Fatalf("RetryPause = %s", cfg.RetryPause)
	}
	if !cfg.AcceptExhausted {
		t.Fatalf("AcceptExhausted not parsed")
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example.com" {
		t.Fatalf("CORSAllowedOrigins = %#v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadConfigRejectsUnknownBackends(t *testing.T) {
	t.Setenv("GENERATION_BACKEND", "dalle")
	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error for unknown generation backend")
	}

	t.Setenv("GENERATION_BACKEND", "qwen")
	t.Setenv("VERIFICATION_BACKEND", "qwen")
	if _, err := LoadConfig(); err == nil {
		t.Fatalf("qwen cannot verify")
	}
}

func TestRequireDatabase(t *testing.T) {
	cfg := &Config{}
	if err := cfg.RequireDatabase(); err == nil {
		t.Fatalf("expected error without DATABASE_URL")
	}
	cfg.DatabaseURL = "postgres://example"
	if err := cfg.RequireDatabase(); err != nil {
		t.Fatalf("RequireDatabase: %v", err)
	}
}
