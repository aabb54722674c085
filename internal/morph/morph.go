// Package morph arma el runtime completo: registry de connectors, clients de
// conexión y webhooks, router de eventos y firma de sessions. Todo se
// construye explícitamente acá y se inyecta — no hay singletons.
package morph

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dropDatabas3/morphcore/internal/adapter"
	adaptermem "github.com/dropDatabas3/morphcore/internal/adapter/memory"
	adapterpg "github.com/dropDatabas3/morphcore/internal/adapter/pg"
	"github.com/dropDatabas3/morphcore/internal/cache"
	"github.com/dropDatabas3/morphcore/internal/config"
	"github.com/dropDatabas3/morphcore/internal/connection"
	"github.com/dropDatabas3/morphcore/internal/connector"
	"github.com/dropDatabas3/morphcore/internal/rate"
	"github.com/dropDatabas3/morphcore/internal/security/cryptobox"
	"github.com/dropDatabas3/morphcore/internal/session"
	"github.com/dropDatabas3/morphcore/internal/webhook"
)

// Options permite inyectar colaboradores ya construidos (tests) o dejar que
// New los arme desde la config.
type Options struct {
	Config *config.Config

	// Adapter y Cache opcionales; si son nil se construyen según la config.
	Adapter adapter.Adapter
	Cache   cache.Client

	// HTTPClient para OAuth y proxy; nil usa el default del runtime.
	HTTPClient *http.Client

	// Retrieve materializa recursos referenciados en eventos de webhook.
	Retrieve webhook.ResourceRetriever
}

// Client es el objeto raíz del runtime.
type Client struct {
	Connectors  *connector.Registry
	Connections *connection.Client
	Webhooks    *webhook.Client
	Events      *webhook.Registry
	Sessions    *session.Signer

	// Limiter frena floods en los endpoints de webhooks entrantes; nil si el
	// rate limit está desactivado.
	Limiter rate.Limiter

	adapter adapter.Adapter
	cache   cache.Client
	cfg     *config.Config
}

// New construye el runtime desde la config.
func New(ctx context.Context, opts Options) (*Client, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, fmt.Errorf("morph: config nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	box, err := cryptobox.New(cfg.Security.EncryptionSecret, cfg.Security.IVLength)
	if err != nil {
		return nil, err
	}

	ad := opts.Adapter
	if ad == nil {
		switch cfg.Storage.Driver {
		case "postgres":
			ad, err = adapterpg.Connect(ctx, cfg.Storage.DSN)
			if err != nil {
				return nil, err
			}
		default:
			ad = adaptermem.New()
		}
	}

	kv := opts.Cache
	if kv == nil {
		kv, err = cache.New(cache.Config{
			Driver:   cfg.Cache.Kind,
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
			Prefix:   cfg.Cache.Redis.Prefix,
		})
		if err != nil {
			return nil, err
		}
	}

	registry := connector.NewRegistry()

	conns := connection.New(connection.Config{
		Adapter:    ad,
		Registry:   registry,
		Box:        box,
		BaseURL:    cfg.Server.BaseURL,
		HTTPClient: opts.HTTPClient,
	})

	signer, err := webhook.NewURLSigner(cfg.Security.EncryptionSecret)
	if err != nil {
		return nil, err
	}
	hooks := webhook.New(webhook.Config{
		Adapter:     ad,
		Registry:    registry,
		Connections: conns,
		Signer:      signer,
		BaseURL:     cfg.Webhook.BaseURL,
	})
	events := webhook.NewRegistry(webhook.RegistryConfig{
		Adapter:    ad,
		Connectors: registry,
		Signer:     signer,
		Cache:      kv,
		DedupeTTL:  cfg.DedupeTTL(),
		Retrieve:   opts.Retrieve,
	})

	sessions, err := session.NewSigner(cfg.Security.EncryptionSecret, cfg.SessionTTL())
	if err != nil {
		return nil, err
	}

	var limiter rate.Limiter
	if cfg.Webhook.RateLimit > 0 {
		limiter = rate.NewFixedWindow(kv, "rl:webhook:", int64(cfg.Webhook.RateLimit), cfg.RateWindow())
	}

	return &Client{
		Connectors:  registry,
		Connections: conns,
		Webhooks:    hooks,
		Events:      events,
		Sessions:    sessions,
		Limiter:     limiter,
		adapter:     ad,
		cache:       kv,
		cfg:         cfg,
	}, nil
}

// RegisterConnector valida y registra un descriptor de provider.
func (c *Client) RegisterConnector(cn *connector.Connector) error {
	return c.Connectors.Register(cn)
}

// CreateSession asegura la conexión (upsert idempotente) y emite un token
// firmado con sus operations.
func (c *Client) CreateSession(ctx context.Context, connectorID, ownerID string, operations []string) (string, error) {
	if _, err := c.Connections.UpdateOrCreate(ctx, connectorID, ownerID, operations); err != nil {
		return "", err
	}
	return c.Sessions.Sign(session.Claims{
		ConnectorID: connectorID,
		OwnerID:     ownerID,
		Operations:  operations,
	})
}

// VerifySession valida el token y, como efecto, reasegura la conexión que
// referencia — el provisioning desde un token firmado es idempotente.
func (c *Client) VerifySession(ctx context.Context, token string) (*session.Claims, error) {
	claims, err := c.Sessions.Verify(token)
	if err != nil {
		return nil, err
	}
	if _, err := c.Connections.UpdateOrCreate(ctx, claims.ConnectorID, claims.OwnerID, claims.Operations); err != nil {
		return nil, err
	}
	return claims, nil
}

// Close libera los recursos compartidos.
func (c *Client) Close() error {
	if c.cache != nil {
		return c.cache.Close()
	}
	return nil
}
