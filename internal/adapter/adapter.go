// Package adapter define el contrato de persistencia del runtime: CRUD
// angosto sobre registros de Connection y Webhook. Los drivers disponibles
// son memory (tests/dev) y postgres.
package adapter

import (
	"context"
	"time"
)

// Estados de una conexión.
const (
	StatusUnauthorized          = "unauthorized"
	StatusAwaitingAuthorization = "awaiting_authorization"
	StatusAuthorized            = "authorized"
)

// Connection es el registro persistido de un vínculo tenant↔provider.
// La clave compuesta es (ConnectorID, OwnerID): una conexión por tenant por
// provider. AuthorizationData es un blob JSON opaco con hojas cifradas; solo
// el runtime lo interpreta.
type Connection struct {
	ConnectorID       string    `json:"connectorId"`
	OwnerID           string    `json:"ownerId"`
	Status            string    `json:"status"`
	Operations        []string  `json:"operations"`
	AuthorizationType string    `json:"authorizationType"`
	AuthorizationData string    `json:"-"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// ConnectionIDs es la clave compuesta de una conexión.
type ConnectionIDs struct {
	ConnectorID string
	OwnerID     string
}

// ConnectionUpdate es un update parcial; campos nil no se tocan.
type ConnectionUpdate struct {
	Status            *string
	Operations        *[]string
	AuthorizationType *string
	AuthorizationData *string
}

// Webhook es el registro persistido de una suscripción. Invariante: a lo sumo
// una fila por (ConnectorID, OwnerID, Model, Trigger).
type Webhook struct {
	ConnectorID string            `json:"connectorId"`
	OwnerID     string            `json:"ownerId"`
	Model       string            `json:"model"`
	Trigger     string            `json:"trigger"`
	Type        string            `json:"type"` // subscription | global
	// IdentifierKey correlaciona requests multiplexadas (solo global).
	IdentifierKey string            `json:"identifierKey,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

// WebhookIDs es la clave compuesta de un webhook.
type WebhookIDs struct {
	ConnectorID string
	OwnerID     string
	Model       string
	Trigger     string
}

// WebhookUpdate es un update parcial de webhook.
type WebhookUpdate struct {
	IdentifierKey *string
	Metadata      *map[string]string
}

// Adapter es la frontera de persistencia. Los Retrieve retornan (nil, nil)
// cuando el registro no existe; error solo ante fallas del backend.
type Adapter interface {
	CreateConnection(ctx context.Context, c *Connection) (*Connection, error)
	RetrieveConnection(ctx context.Context, ids ConnectionIDs) (*Connection, error)
	UpdateConnection(ctx context.Context, ids ConnectionIDs, upd ConnectionUpdate) (*Connection, error)
	DeleteConnection(ctx context.Context, ids ConnectionIDs) error

	CreateWebhook(ctx context.Context, w *Webhook) (*Webhook, error)
	RetrieveWebhook(ctx context.Context, ids WebhookIDs) (*Webhook, error)
	RetrieveWebhookByIdentifierKey(ctx context.Context, key string) (*Webhook, error)
	UpdateWebhook(ctx context.Context, ids WebhookIDs, upd WebhookUpdate) (*Webhook, error)
	DeleteWebhook(ctx context.Context, ids WebhookIDs) error
}
