// Package pg implementa adapter.Adapter para PostgreSQL vía pgx.
package pg

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/morphcore/internal/adapter"
)

type store struct {
	pool *pgxpool.Pool
}

// New crea un adapter sobre un pool existente.
func New(pool *pgxpool.Pool) adapter.Adapter {
	return &store{pool: pool}
}

// Connect abre un pool con el DSN dado y verifica la conexión.
func Connect(ctx context.Context, dsn string) (adapter.Adapter, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &store{pool: pool}, nil
}

// ─── Connections ───

func (s *store) CreateConnection(ctx context.Context, c *adapter.Connection) (*adapter.Connection, error) {
	query := `
		INSERT INTO connections (connector_id, owner_id, status, operations, authorization_type, authorization_data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		ON CONFLICT (connector_id, owner_id) DO UPDATE
			SET status = EXCLUDED.status,
			    operations = EXCLUDED.operations,
			    updated_at = NOW()
		RETURNING connector_id, owner_id, status, operations, authorization_type, authorization_data, created_at, updated_at
	`
	ops, err := json.Marshal(c.Operations)
	if err != nil {
		return nil, fmt.Errorf("marshal operations: %w", err)
	}
	row := s.pool.QueryRow(ctx, query, c.ConnectorID, c.OwnerID, c.Status, ops, c.AuthorizationType, c.AuthorizationData)
	return scanConnection(row)
}

func (s *store) RetrieveConnection(ctx context.Context, ids adapter.ConnectionIDs) (*adapter.Connection, error) {
	query := `
		SELECT connector_id, owner_id, status, operations, authorization_type, authorization_data, created_at, updated_at
		FROM connections
		WHERE connector_id = $1 AND owner_id = $2
	`
	row := s.pool.QueryRow(ctx, query, ids.ConnectorID, ids.OwnerID)
	c, err := scanConnection(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return c, err
}

func (s *store) UpdateConnection(ctx context.Context, ids adapter.ConnectionIDs, upd adapter.ConnectionUpdate) (*adapter.Connection, error) {
	query := `
		UPDATE connections SET
			status = COALESCE($3, status),
			operations = COALESCE($4, operations),
			authorization_type = COALESCE($5, authorization_type),
			authorization_data = COALESCE($6, authorization_data),
			updated_at = NOW()
		WHERE connector_id = $1 AND owner_id = $2
		RETURNING connector_id, owner_id, status, operations, authorization_type, authorization_data, created_at, updated_at
	`
	var ops *string
	if upd.Operations != nil {
		b, err := json.Marshal(*upd.Operations)
		if err != nil {
			return nil, fmt.Errorf("marshal operations: %w", err)
		}
		str := string(b)
		ops = &str
	}
	row := s.pool.QueryRow(ctx, query, ids.ConnectorID, ids.OwnerID, upd.Status, ops, upd.AuthorizationType, upd.AuthorizationData)
	c, err := scanConnection(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return c, err
}

func (s *store) DeleteConnection(ctx context.Context, ids adapter.ConnectionIDs) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM connections WHERE connector_id = $1 AND owner_id = $2`, ids.ConnectorID, ids.OwnerID)
	if err != nil {
		return fmt.Errorf("delete connection: %w", err)
	}
	return nil
}

// ─── Webhooks ───

func (s *store) CreateWebhook(ctx context.Context, w *adapter.Webhook) (*adapter.Webhook, error) {
	query := `
		INSERT INTO webhooks (connector_id, owner_id, model, event_trigger, type, identifier_key, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		ON CONFLICT (connector_id, owner_id, model, event_trigger) DO UPDATE SET updated_at = NOW()
		RETURNING connector_id, owner_id, model, event_trigger, type, identifier_key, metadata, created_at, updated_at
	`
	meta, err := json.Marshal(w.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	row := s.pool.QueryRow(ctx, query, w.ConnectorID, w.OwnerID, w.Model, w.Trigger, w.Type, w.IdentifierKey, meta)
	return scanWebhook(row)
}

func (s *store) RetrieveWebhook(ctx context.Context, ids adapter.WebhookIDs) (*adapter.Webhook, error) {
	query := `
		SELECT connector_id, owner_id, model, event_trigger, type, identifier_key, metadata, created_at, updated_at
		FROM webhooks
		WHERE connector_id = $1 AND owner_id = $2 AND model = $3 AND event_trigger = $4
	`
	row := s.pool.QueryRow(ctx, query, ids.ConnectorID, ids.OwnerID, ids.Model, ids.Trigger)
	w, err := scanWebhook(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return w, err
}

func (s *store) RetrieveWebhookByIdentifierKey(ctx context.Context, key string) (*adapter.Webhook, error) {
	if key == "" {
		return nil, nil
	}
	query := `
		SELECT connector_id, owner_id, model, event_trigger, type, identifier_key, metadata, created_at, updated_at
		FROM webhooks
		WHERE identifier_key = $1
		LIMIT 1
	`
	row := s.pool.QueryRow(ctx, query, key)
	w, err := scanWebhook(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return w, err
}

func (s *store) UpdateWebhook(ctx context.Context, ids adapter.WebhookIDs, upd adapter.WebhookUpdate) (*adapter.Webhook, error) {
	query := `
		UPDATE webhooks SET
			identifier_key = COALESCE($5, identifier_key),
			metadata = COALESCE($6, metadata),
			updated_at = NOW()
		WHERE connector_id = $1 AND owner_id = $2 AND model = $3 AND event_trigger = $4
		RETURNING connector_id, owner_id, model, event_trigger, type, identifier_key, metadata, created_at, updated_at
	`
	var meta *string
	if upd.Metadata != nil {
		b, err := json.Marshal(*upd.Metadata)
		if err != nil {
			return nil, fmt.Errorf("marshal metadata: %w", err)
		}
		str := string(b)
		meta = &str
	}
	row := s.pool.QueryRow(ctx, query, ids.ConnectorID, ids.OwnerID, ids.Model, ids.Trigger, upd.IdentifierKey, meta)
	w, err := scanWebhook(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return w, err
}

func (s *store) DeleteWebhook(ctx context.Context, ids adapter.WebhookIDs) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM webhooks WHERE connector_id = $1 AND owner_id = $2 AND model = $3 AND event_trigger = $4`,
		ids.ConnectorID, ids.OwnerID, ids.Model, ids.Trigger)
	if err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}
	return nil
}

// ─── scan helpers ───

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConnection(row rowScanner) (*adapter.Connection, error) {
	var c adapter.Connection
	var ops []byte
	err := row.Scan(&c.ConnectorID, &c.OwnerID, &c.Status, &ops, &c.AuthorizationType, &c.AuthorizationData, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(ops) > 0 {
		if uerr := json.Unmarshal(ops, &c.Operations); uerr != nil {
			return nil, fmt.Errorf("unmarshal operations: %w", uerr)
		}
	}
	return &c, nil
}

func scanWebhook(row rowScanner) (*adapter.Webhook, error) {
	var w adapter.Webhook
	var meta []byte
	err := row.Scan(&w.ConnectorID, &w.OwnerID, &w.Model, &w.Trigger, &w.Type, &w.IdentifierKey, &meta, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		if uerr := json.Unmarshal(meta, &w.Metadata); uerr != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", uerr)
		}
	}
	return &w, nil
}
