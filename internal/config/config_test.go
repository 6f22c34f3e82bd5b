package config_test

import (
	"testing"
	"time"

	"brewmate-engine/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.HTTP.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.HTTP.Port)
	}
	if cfg.Gemini.Model != "gemini-2.0-flash" {
		t.Errorf("unexpected default model: %q", cfg.Gemini.Model)
	}
	if cfg.Gemini.MaxRetries != 3 {
		t.Errorf("expected 3 retries, got %d", cfg.Gemini.MaxRetries)
	}
	if cfg.Redis.RunTTL != 6*time.Hour {
		t.Errorf("unexpected run TTL: %v", cfg.Redis.RunTTL)
	}
	if cfg.IsProduction() {
		t.Error("default environment must not be production")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("GEMINI_MODEL", "gemini-2.5-pro")
	t.Setenv("GEMINI_TIMEOUT", "45s")
	t.Setenv("REDIS_STREAM_MAX_LEN", "512")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.HTTP.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.HTTP.Port)
	}
	if !cfg.IsProduction() {
		t.Error("expected production environment")
	}
	if cfg.Gemini.Model != "gemini-2.5-pro" {
		t.Errorf("model override ignored: %q", cfg.Gemini.Model)
	}
	if cfg.Gemini.Timeout != 45*time.Second {
		t.Errorf("timeout override ignored: %v", cfg.Gemini.Timeout)
	}
	if cfg.Redis.StreamMaxLen != 512 {
		t.Errorf("stream max len override ignored: %d", cfg.Redis.StreamMaxLen)
	}
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("PORT", "not-a-number")
	t.Setenv("GEMINI_TEMPERATURE", "hot")
	t.Setenv("HTTP_READ_TIMEOUT", "soon")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.HTTP.Port != 8080 {
		t.Errorf("malformed port should fall back to default, got %d", cfg.HTTP.Port)
	}
	if cfg.Gemini.Temperature != 0.0 {
		t.Errorf("malformed temperature should fall back, got %f", cfg.Gemini.Temperature)
	}
	if cfg.HTTP.ReadTimeout != 30*time.Second {
		t.Errorf("malformed duration should fall back, got %v", cfg.HTTP.ReadTimeout)
	}
}

func TestValidateRejectsBadPort(t *testing.T) {
	t.Setenv("PORT", "70000")

	if _, err := config.Load(); err == nil {
		t.Fatal("expected validation error for out-of-range port")
	}
}

func TestValidateRejectsZeroRetries(t *testing.T) {
	t.Setenv("GEMINI_MAX_RETRIES", "0")

	if _, err := config.Load(); err == nil {
		t.Fatal("expected validation error for zero retries")
	}
}
