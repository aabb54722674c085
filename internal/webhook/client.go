package webhook

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dropDatabas3/morphcore/internal/adapter"
	"github.com/dropDatabas3/morphcore/internal/connection"
	"github.com/dropDatabas3/morphcore/internal/connector"
	merrors "github.com/dropDatabas3/morphcore/internal/errors"
	"github.com/dropDatabas3/morphcore/internal/observability/logger"
)

// ParseEvent separa un evento "<model>::<trigger>".
func ParseEvent(event string) (model, trigger string, err error) {
	parts := strings.SplitN(event, "::", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("evento %q inválido, se espera model::trigger", event)
	}
	return parts[0], parts[1], nil
}

// Config arma un Client de webhooks.
type Config struct {
	Adapter     adapter.Adapter
	Registry    *connector.Registry
	Connections *connection.Client
	Signer      *URLSigner

	// BaseURL pública para armar callback URLs:
	// <base>/webhooks/<connectorId>/subscription/<token>
	BaseURL string
}

// Client registra y da de baja webhooks de una conexión.
type Client struct {
	adapter     adapter.Adapter
	registry    *connector.Registry
	connections *connection.Client
	signer      *URLSigner
	baseURL     string
}

// New crea el client de webhooks.
func New(cfg Config) *Client {
	return &Client{
		adapter:     cfg.Adapter,
		registry:    cfg.Registry,
		connections: cfg.Connections,
		signer:      cfg.Signer,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
	}
}

// Subscribe registra los eventos pedidos. Es idempotente: si ya existe el
// registro para (conexión, model, trigger) lo devuelve sin tocar el provider.
// Prefiere la estrategia subscription; si su handler falla se loguea y se
// intenta la global. Recién agotadas ambas se reporta WEBHOOKS_NOT_SUPPORTED.
func (c *Client) Subscribe(ctx context.Context, connectorID, ownerID string, events []string) ([]*adapter.Webhook, error) {
	cn, err := c.registry.Get(connectorID)
	if err != nil {
		return nil, merrors.ErrWebhookCreateFailed.WithCause(err)
	}
	out := make([]*adapter.Webhook, 0, len(events))
	for _, event := range events {
		model, trigger, err := ParseEvent(event)
		if err != nil {
			return nil, merrors.ErrWebhookCreateFailed.WithCause(err)
		}
		w, err := c.subscribeOne(ctx, cn, connectorID, ownerID, model, trigger)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}

func (c *Client) subscribeOne(ctx context.Context, cn *connector.Connector, connectorID, ownerID, model, trigger string) (*adapter.Webhook, error) {
	ids := adapter.WebhookIDs{ConnectorID: connectorID, OwnerID: ownerID, Model: model, Trigger: trigger}
	existing, err := c.adapter.RetrieveWebhook(ctx, ids)
	if err != nil {
		return nil, merrors.ErrWebhookCreateFailed.WithCause(err)
	}
	if existing != nil {
		return existing, nil
	}
	if cn.Webhooks == nil {
		return nil, merrors.ErrWebhooksNotSupported.WithDetail(model + "::" + trigger)
	}

	params := connector.SubscribeParams{
		ConnectorID: connectorID,
		OwnerID:     ownerID,
		Model:       model,
		Trigger:     trigger,
	}
	connIDs := adapter.ConnectionIDs{ConnectorID: connectorID, OwnerID: ownerID}
	if settings, err := c.connections.Settings(ctx, connIDs); err == nil {
		params.Settings = settings
	}
	// Token best-effort: algunas rutas globales no necesitan API del provider.
	if token, err := c.connections.AccessToken(ctx, connIDs); err == nil {
		params.AccessToken = token
	} else if !errors.Is(err, merrors.ErrAccessTokenMissing) {
		return nil, err
	}

	log := logger.From(ctx).With(logger.ConnectorID(connectorID), logger.OwnerID(ownerID),
		logger.Model(model), logger.Trigger(trigger))

	// 1) Estrategia subscription.
	if sub := cn.Webhooks.Subscription; sub != nil && sub.Supports(model) {
		token, err := c.signer.Sign(Binding{ConnectorID: connectorID, OwnerID: ownerID, Model: model, Trigger: trigger})
		if err != nil {
			return nil, merrors.ErrWebhookCreateFailed.WithCause(err)
		}
		params.CallbackURL = fmt.Sprintf("%s/webhooks/%s/subscription/%s", c.baseURL, connectorID, token)
		res, err := sub.Subscribe(ctx, params)
		if err == nil {
			return c.createRecord(ctx, ids, string(connector.WebhookTypeSubscription), "", res.Metadata)
		}
		// Falla de subscription: se intenta la estrategia global.
		log.Warn("subscribe per-connection falló, probando estrategia global", logger.Err(err))
	}

	// 2) Estrategia global.
	if route := cn.Webhooks.GlobalRouteFor(model, trigger); route != nil {
		res, err := route.Subscribe(ctx, params)
		if err != nil {
			return nil, merrors.ErrWebhookCreateFailed.WithCause(err)
		}
		return c.createRecord(ctx, ids, string(connector.WebhookTypeGlobal), res.IdentifierKey, res.Metadata)
	}

	return nil, merrors.ErrWebhooksNotSupported.WithDetail(model + "::" + trigger)
}

func (c *Client) createRecord(ctx context.Context, ids adapter.WebhookIDs, typ, identifierKey string, metadata map[string]string) (*adapter.Webhook, error) {
	w, err := c.adapter.CreateWebhook(ctx, &adapter.Webhook{
		ConnectorID:   ids.ConnectorID,
		OwnerID:       ids.OwnerID,
		Model:         ids.Model,
		Trigger:       ids.Trigger,
		Type:          typ,
		IdentifierKey: identifierKey,
		Metadata:      metadata,
	})
	if err != nil {
		return nil, merrors.ErrWebhookCreateFailed.WithCause(err)
	}
	return w, nil
}

// Unsubscribe da de baja los eventos. Un registro inexistente es un no-op.
func (c *Client) Unsubscribe(ctx context.Context, connectorID, ownerID string, events []string) error {
	cn, err := c.registry.Get(connectorID)
	if err != nil {
		return merrors.ErrWebhookDeleteFailed.WithCause(err)
	}
	for _, event := range events {
		model, trigger, err := ParseEvent(event)
		if err != nil {
			return merrors.ErrWebhookDeleteFailed.WithCause(err)
		}
		if err := c.unsubscribeOne(ctx, cn, connectorID, ownerID, model, trigger); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) unsubscribeOne(ctx context.Context, cn *connector.Connector, connectorID, ownerID, model, trigger string) error {
	ids := adapter.WebhookIDs{ConnectorID: connectorID, OwnerID: ownerID, Model: model, Trigger: trigger}
	existing, err := c.adapter.RetrieveWebhook(ctx, ids)
	if err != nil {
		return merrors.ErrWebhookDeleteFailed.WithCause(err)
	}
	if existing == nil {
		return nil
	}

	params := connector.UnsubscribeParams{
		ConnectorID: connectorID,
		OwnerID:     ownerID,
		Model:       model,
		Trigger:     trigger,
		Metadata:    existing.Metadata,
	}
	connIDs := adapter.ConnectionIDs{ConnectorID: connectorID, OwnerID: ownerID}
	if settings, err := c.connections.Settings(ctx, connIDs); err == nil {
		params.Settings = settings
	}
	if token, err := c.connections.AccessToken(ctx, connIDs); err == nil {
		params.AccessToken = token
	}

	switch existing.Type {
	case string(connector.WebhookTypeSubscription):
		if sub := cn.Webhooks.Subscription; sub != nil && sub.Unsubscribe != nil {
			if err := sub.Unsubscribe(ctx, params); err != nil {
				return merrors.ErrWebhookDeleteFailed.WithCause(err)
			}
		}
	case string(connector.WebhookTypeGlobal):
		if route := cn.Webhooks.GlobalRouteFor(model, trigger); route != nil && route.Unsubscribe != nil {
			if err := route.Unsubscribe(ctx, params); err != nil {
				return merrors.ErrWebhookDeleteFailed.WithCause(err)
			}
		}
	}

	if err := c.adapter.DeleteWebhook(ctx, ids); err != nil {
		return merrors.ErrWebhookDeleteFailed.WithCause(err)
	}
	return nil
}
