// Package memory implementa adapter.Adapter en memoria, para tests y dev.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/dropDatabas3/morphcore/internal/adapter"
)

type Mem struct {
	mu          sync.RWMutex
	connections map[adapter.ConnectionIDs]*adapter.Connection
	webhooks    map[adapter.WebhookIDs]*adapter.Webhook
}

// New crea un adapter vacío.
func New() *Mem {
	return &Mem{
		connections: map[adapter.ConnectionIDs]*adapter.Connection{},
		webhooks:    map[adapter.WebhookIDs]*adapter.Webhook{},
	}
}

func (m *Mem) CreateConnection(_ context.Context, c *adapter.Connection) (*adapter.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := adapter.ConnectionIDs{ConnectorID: c.ConnectorID, OwnerID: c.OwnerID}
	now := time.Now().UTC()
	cp := *c
	cp.CreatedAt = now
	cp.UpdatedAt = now
	m.connections[ids] = &cp
	out := cp
	return &out, nil
}

func (m *Mem) RetrieveConnection(_ context.Context, ids adapter.ConnectionIDs) (*adapter.Connection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.connections[ids]
	if !ok {
		return nil, nil
	}
	out := *c
	return &out, nil
}

func (m *Mem) UpdateConnection(_ context.Context, ids adapter.ConnectionIDs, upd adapter.ConnectionUpdate) (*adapter.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.connections[ids]
	if !ok {
		return nil, nil
	}
	if upd.Status != nil {
		c.Status = *upd.Status
	}
	if upd.Operations != nil {
		c.Operations = append([]string{}, (*upd.Operations)...)
	}
	if upd.AuthorizationType != nil {
		c.AuthorizationType = *upd.AuthorizationType
	}
	if upd.AuthorizationData != nil {
		c.AuthorizationData = *upd.AuthorizationData
	}
	c.UpdatedAt = time.Now().UTC()
	out := *c
	return &out, nil
}

func (m *Mem) DeleteConnection(_ context.Context, ids adapter.ConnectionIDs) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.connections, ids)
	return nil
}

func (m *Mem) CreateWebhook(_ context.Context, w *adapter.Webhook) (*adapter.Webhook, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := adapter.WebhookIDs{ConnectorID: w.ConnectorID, OwnerID: w.OwnerID, Model: w.Model, Trigger: w.Trigger}
	now := time.Now().UTC()
	cp := *w
	cp.CreatedAt = now
	cp.UpdatedAt = now
	m.webhooks[ids] = &cp
	out := cp
	return &out, nil
}

func (m *Mem) RetrieveWebhook(_ context.Context, ids adapter.WebhookIDs) (*adapter.Webhook, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.webhooks[ids]
	if !ok {
		return nil, nil
	}
	out := *w
	return &out, nil
}

func (m *Mem) RetrieveWebhookByIdentifierKey(_ context.Context, key string) (*adapter.Webhook, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if key == "" {
		return nil, nil
	}
	for _, w := range m.webhooks {
		if w.IdentifierKey == key {
			out := *w
			return &out, nil
		}
	}
	return nil, nil
}

func (m *Mem) UpdateWebhook(_ context.Context, ids adapter.WebhookIDs, upd adapter.WebhookUpdate) (*adapter.Webhook, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.webhooks[ids]
	if !ok {
		return nil, nil
	}
	if upd.IdentifierKey != nil {
		w.IdentifierKey = *upd.IdentifierKey
	}
	if upd.Metadata != nil {
		w.Metadata = copyMeta(*upd.Metadata)
	}
	w.UpdatedAt = time.Now().UTC()
	out := *w
	return &out, nil
}

func (m *Mem) DeleteWebhook(_ context.Context, ids adapter.WebhookIDs) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.webhooks, ids)
	return nil
}

func copyMeta(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
