package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Bloque app (opcional en YAML). Si no está, queda vacío.
	App struct {
		// dev | staging | prod
		Env string `yaml:"app_env"`
	} `yaml:"app"`

	Server struct {
		Addr string `yaml:"addr"`

		// BaseURL es la URL pública del runtime; arma el redirect de OAuth
		// (<base>/callback).
		BaseURL string `yaml:"base_url"`
	} `yaml:"server"`

	Storage struct {
		Driver string `yaml:"driver"` // memory | postgres
		DSN    string `yaml:"dsn"`
	} `yaml:"storage"`

	Cache struct {
		Kind  string `yaml:"kind"` // memory | redis
		Redis struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
	} `yaml:"cache"`

	Security struct {
		// EncryptionSecret deriva la key AES y la firma de sessions/webhooks.
		// Obligatorio; sin default.
		EncryptionSecret string `yaml:"encryption_secret"`
		// IVLength en bytes del nonce GCM. Default 16 por compatibilidad con
		// payloads ya cifrados; instalaciones nuevas pueden usar 12.
		IVLength int `yaml:"iv_length"`
	} `yaml:"security"`

	Session struct {
		TTL string `yaml:"ttl"` // duración de los session tokens
	} `yaml:"session"`

	Webhook struct {
		// BaseURL arma las callback URLs de webhooks; puede diferir de
		// server.base_url cuando los hooks entran por otro dominio (túnel en
		// desarrollo, ingress dedicado). Vacío usa server.base_url.
		BaseURL string `yaml:"base_url"`
		// DedupeTTL es la ventana de dedupe por idempotencyKey.
		DedupeTTL string `yaml:"dedupe_ttl"`
		// RateLimit es el máximo de requests entrantes por connector por
		// ventana. 0 desactiva el límite.
		RateLimit  int    `yaml:"rate_limit"`
		RateWindow string `yaml:"rate_window"`
	} `yaml:"webhook"`

	Log struct {
		Level string `yaml:"level"` // debug | info | warn | error
	} `yaml:"log"`
}

// Load lee el YAML, aplica defaults y pisa con variables de entorno.
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, err
		}
	}

	// sane defaults
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.BaseURL == "" {
		c.Server.BaseURL = "http://localhost:8080"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Security.IVLength == 0 {
		c.Security.IVLength = 16
	}
	if c.Session.TTL == "" {
		c.Session.TTL = "30m"
	}
	if c.Webhook.DedupeTTL == "" {
		c.Webhook.DedupeTTL = "24h"
	}
	if c.Webhook.RateWindow == "" {
		c.Webhook.RateWindow = "1m"
	}

	// validate string durations
	if _, err := time.ParseDuration(c.Session.TTL); err != nil {
		return nil, fmt.Errorf("session.ttl: %w", err)
	}
	if _, err := time.ParseDuration(c.Webhook.DedupeTTL); err != nil {
		return nil, fmt.Errorf("webhook.dedupe_ttl: %w", err)
	}
	if _, err := time.ParseDuration(c.Webhook.RateWindow); err != nil {
		return nil, fmt.Errorf("webhook.rate_window: %w", err)
	}

	c.applyEnvOverrides()
	// Después de los overrides: el default del webhook base depende del
	// server base final.
	if c.Webhook.BaseURL == "" {
		c.Webhook.BaseURL = c.Server.BaseURL
	}
	return &c, nil
}

// SessionTTL retorna la duración parseada; Load ya validó el string.
func (c *Config) SessionTTL() time.Duration {
	d, _ := time.ParseDuration(c.Session.TTL)
	return d
}

// DedupeTTL retorna la ventana de dedupe parseada.
func (c *Config) DedupeTTL() time.Duration {
	d, _ := time.ParseDuration(c.Webhook.DedupeTTL)
	return d
}

// RateWindow retorna la ventana de rate limit parseada.
func (c *Config) RateWindow() time.Duration {
	d, _ := time.ParseDuration(c.Webhook.RateWindow)
	return d
}

// Validate chequea los valores sin default razonable.
func (c *Config) Validate() error {
	if c.Security.EncryptionSecret == "" {
		return fmt.Errorf("security.encryption_secret es obligatorio (o MORPH_ENCRYPTION_SECRET)")
	}
	switch c.Storage.Driver {
	case "memory":
	case "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn es obligatorio con driver postgres")
		}
	default:
		return fmt.Errorf("storage.driver %q no soportado", c.Storage.Driver)
	}
	return nil
}

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}

func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}

// applyEnvOverrides: pisa config.yaml con variables de entorno.
func (c *Config) applyEnvOverrides() {
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}

	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvStr("SERVER_BASE_URL"); ok {
		c.Server.BaseURL = v
	}

	if v, ok := getEnvStr("STORAGE_DRIVER"); ok {
		c.Storage.Driver = v
	}
	if v, ok := getEnvStr("STORAGE_DSN"); ok {
		c.Storage.DSN = v
	}

	if v, ok := getEnvStr("CACHE_KIND"); ok {
		c.Cache.Kind = v
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Cache.Redis.Addr = v
	}
	if v, ok := getEnvStr("REDIS_PASSWORD"); ok {
		c.Cache.Redis.Password = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Cache.Redis.DB = v
	}
	if v, ok := getEnvStr("REDIS_PREFIX"); ok {
		c.Cache.Redis.Prefix = v
	}

	if v, ok := getEnvStr("MORPH_ENCRYPTION_SECRET"); ok {
		c.Security.EncryptionSecret = v
	}
	if v, ok := getEnvInt("MORPH_ENCRYPTION_IV_LENGTH"); ok {
		c.Security.IVLength = v
	}

	if v, ok := getEnvStr("SESSION_TTL"); ok {
		if _, err := time.ParseDuration(v); err == nil {
			c.Session.TTL = v
		}
	}
	if v, ok := getEnvStr("WEBHOOK_BASE_URL"); ok {
		c.Webhook.BaseURL = v
	}
	if v, ok := getEnvStr("WEBHOOK_DEDUPE_TTL"); ok {
		if _, err := time.ParseDuration(v); err == nil {
			c.Webhook.DedupeTTL = v
		}
	}
	if v, ok := getEnvInt("WEBHOOK_RATE_LIMIT"); ok {
		c.Webhook.RateLimit = v
	}
	if v, ok := getEnvStr("WEBHOOK_RATE_WINDOW"); ok {
		if _, err := time.ParseDuration(v); err == nil {
			c.Webhook.RateWindow = v
		}
	}

	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.Log.Level = v
	}
}
