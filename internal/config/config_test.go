package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	return p
}

func TestLoadDefaults(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Server.Addr != ":8080" {
		t.Errorf("Server.Addr = %q", c.Server.Addr)
	}
	if c.Storage.Driver != "memory" || c.Cache.Kind != "memory" {
		t.Errorf("drivers default = %q/%q", c.Storage.Driver, c.Cache.Kind)
	}
	if c.Security.IVLength != 16 {
		t.Errorf("IVLength = %d", c.Security.IVLength)
	}
	if c.SessionTTL() != 30*time.Minute {
		t.Errorf("SessionTTL = %v", c.SessionTTL())
	}
	if c.DedupeTTL() != 24*time.Hour {
		t.Errorf("DedupeTTL = %v", c.DedupeTTL())
	}
	if c.Webhook.BaseURL != c.Server.BaseURL {
		t.Errorf("Webhook.BaseURL = %q, debería heredar de server", c.Webhook.BaseURL)
	}
}

func TestWebhookBaseURLOverride(t *testing.T) {
	p := writeYAML(t, `
server:
  base_url: "https://api.example.com"
webhook:
  base_url: "https://hooks.example.com"
`)
	c, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Webhook.BaseURL != "https://hooks.example.com" {
		t.Errorf("Webhook.BaseURL = %q", c.Webhook.BaseURL)
	}
	if c.Server.BaseURL != "https://api.example.com" {
		t.Errorf("Server.BaseURL = %q", c.Server.BaseURL)
	}

	t.Setenv("WEBHOOK_BASE_URL", "https://tunnel.example.com")
	c, err = Load(p)
	if err != nil {
		t.Fatalf("Load con env: %v", err)
	}
	if c.Webhook.BaseURL != "https://tunnel.example.com" {
		t.Errorf("Webhook.BaseURL con env = %q", c.Webhook.BaseURL)
	}
}

func TestLoadYAML(t *testing.T) {
	p := writeYAML(t, `
server:
  addr: ":9000"
  base_url: "https://api.example.com"
storage:
  driver: postgres
  dsn: "postgres://localhost/morph"
security:
  encryption_secret: "s3cret"
  iv_length: 12
session:
  ttl: "1h"
`)
	c, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Server.Addr != ":9000" || c.Server.BaseURL != "https://api.example.com" {
		t.Errorf("server = %+v", c.Server)
	}
	if c.Security.IVLength != 12 {
		t.Errorf("IVLength = %d", c.Security.IVLength)
	}
	if c.SessionTTL() != time.Hour {
		t.Errorf("SessionTTL = %v", c.SessionTTL())
	}
	if err := c.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_ADDR", ":7070")
	t.Setenv("MORPH_ENCRYPTION_SECRET", "env-secret")
	t.Setenv("STORAGE_DRIVER", "postgres")
	t.Setenv("STORAGE_DSN", "postgres://env")
	t.Setenv("WEBHOOK_RATE_LIMIT", "120")
	t.Setenv("WEBHOOK_RATE_WINDOW", "30s")

	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Server.Addr != ":7070" {
		t.Errorf("Server.Addr = %q", c.Server.Addr)
	}
	if c.Security.EncryptionSecret != "env-secret" {
		t.Errorf("EncryptionSecret = %q", c.Security.EncryptionSecret)
	}
	if c.Webhook.RateLimit != 120 || c.RateWindow() != 30*time.Second {
		t.Errorf("rate limit = %d/%v", c.Webhook.RateLimit, c.RateWindow())
	}
	if err := c.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestValidateErrors(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := c.Validate(); err == nil {
		t.Error("Validate sin secret: esperaba error")
	}

	c.Security.EncryptionSecret = "x"
	c.Storage.Driver = "postgres"
	if err := c.Validate(); err == nil {
		t.Error("Validate postgres sin dsn: esperaba error")
	}
}

func TestBadDurationRejected(t *testing.T) {
	p := writeYAML(t, "session:\n  ttl: \"nope\"\n")
	if _, err := Load(p); err == nil {
		t.Error("Load con ttl inválido: esperaba error")
	}
}
