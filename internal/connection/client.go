// Package connection implementa el ciclo de vida de un vínculo tenant↔provider:
// CRUD, authorize/callback OAuth, refresh de tokens y proxy de requests.
package connection

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/dropDatabas3/morphcore/internal/adapter"
	"github.com/dropDatabas3/morphcore/internal/connector"
	merrors "github.com/dropDatabas3/morphcore/internal/errors"
	"github.com/dropDatabas3/morphcore/internal/security/cryptobox"
)

// Config arma un Client; todos los campos salvo HTTPClient son obligatorios.
type Config struct {
	Adapter  adapter.Adapter
	Registry *connector.Registry
	Box      *cryptobox.Box

	// BaseURL es la URL pública del runtime; el redirect_uri de OAuth es
	// BaseURL + "/callback".
	BaseURL string

	HTTPClient *http.Client
}

// Client opera conexiones. Es seguro para uso concurrente.
type Client struct {
	adapter  adapter.Adapter
	registry *connector.Registry
	box      *cryptobox.Box
	baseURL  string
	http     *http.Client

	// refresh locks por conexión; evita refreshes duplicados en proceso.
	mu    sync.Mutex
	locks map[adapter.ConnectionIDs]*sync.Mutex
}

// New crea el client de conexiones.
func New(cfg Config) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		adapter:  cfg.Adapter,
		registry: cfg.Registry,
		box:      cfg.Box,
		baseURL:  cfg.BaseURL,
		http:     hc,
		locks:    map[adapter.ConnectionIDs]*sync.Mutex{},
	}
}

// lockFor retorna el mutex de refresh de una conexión, creándolo si no existe.
func (c *Client) lockFor(ids adapter.ConnectionIDs) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[ids]
	if !ok {
		l = &sync.Mutex{}
		c.locks[ids] = l
	}
	return l
}

// Create registra una conexión nueva en estado unauthorized.
func (c *Client) Create(ctx context.Context, connectorID, ownerID string, operations []string) (*adapter.Connection, error) {
	cn, err := c.registry.Get(connectorID)
	if err != nil {
		return nil, merrors.ErrConnectionCreateFailed.WithCause(err)
	}
	conn, err := c.adapter.CreateConnection(ctx, &adapter.Connection{
		ConnectorID:       connectorID,
		OwnerID:           ownerID,
		Status:            adapter.StatusUnauthorized,
		Operations:        operations,
		AuthorizationType: string(cn.Auth.Type),
	})
	if err != nil {
		return nil, merrors.ErrConnectionCreateFailed.WithCause(err)
	}
	return conn, nil
}

// Retrieve carga una conexión; ErrConnectionNotFound si no existe.
func (c *Client) Retrieve(ctx context.Context, ids adapter.ConnectionIDs) (*adapter.Connection, error) {
	conn, err := c.adapter.RetrieveConnection(ctx, ids)
	if err != nil {
		return nil, merrors.ErrConnectionRetrieveFailed.WithCause(err)
	}
	if conn == nil {
		return nil, merrors.ErrConnectionNotFound
	}
	return conn, nil
}

// Update reemplaza las operations de una conexión existente.
func (c *Client) Update(ctx context.Context, ids adapter.ConnectionIDs, operations []string) (*adapter.Connection, error) {
	conn, err := c.adapter.UpdateConnection(ctx, ids, adapter.ConnectionUpdate{Operations: &operations})
	if err != nil {
		return nil, merrors.ErrConnectionUpdateFailed.WithCause(err)
	}
	if conn == nil {
		return nil, merrors.ErrConnectionNotFound
	}
	return conn, nil
}

// UpdateOrCreate hace el provisioning idempotente: crea la conexión si no
// existe, o actualiza sus operations si ya está.
func (c *Client) UpdateOrCreate(ctx context.Context, connectorID, ownerID string, operations []string) (*adapter.Connection, error) {
	ids := adapter.ConnectionIDs{ConnectorID: connectorID, OwnerID: ownerID}
	existing, err := c.adapter.RetrieveConnection(ctx, ids)
	if err != nil {
		return nil, merrors.ErrConnectionRetrieveFailed.WithCause(err)
	}
	if existing == nil {
		return c.Create(ctx, connectorID, ownerID, operations)
	}
	return c.Update(ctx, ids, operations)
}

// Delete elimina la conexión. Borrar una conexión inexistente no es error.
func (c *Client) Delete(ctx context.Context, ids adapter.ConnectionIDs) error {
	if err := c.adapter.DeleteConnection(ctx, ids); err != nil {
		return merrors.ErrConnectionDeleteFailed.WithCause(err)
	}
	return nil
}
