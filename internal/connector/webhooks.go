package connector

import (
	"context"
	"net/http"
	"net/url"
)

// WebhookType distingue las dos estrategias de suscripción.
type WebhookType string

const (
	// WebhookTypeSubscription: el provider emite un webhook por conexión.
	WebhookTypeSubscription WebhookType = "subscription"
	// WebhookTypeGlobal: un endpoint compartido multiplexa muchos tenants.
	WebhookTypeGlobal WebhookType = "global"
)

// InboundRequest es la request cruda del provider, ya leída. Los mappers de
// webhook la inspeccionan sin tocar la conexión HTTP.
type InboundRequest struct {
	Headers http.Header
	Query   url.Values
	Body    []byte
	// Origin es el header Origin/Host útil para routing global.
	Origin string
}

// SubscribeParams es lo que recibe el handler de suscripción del connector.
type SubscribeParams struct {
	ConnectorID string
	OwnerID     string
	Model       string
	Trigger     string
	// CallbackURL es la URL firmada que el provider debe invocar
	// (solo estrategia subscription).
	CallbackURL string
	Settings    map[string]string
	// AccessToken para providers que registran el hook vía su API.
	AccessToken string
}

// UnsubscribeParams lleva la metadata guardada al crear la suscripción.
type UnsubscribeParams struct {
	ConnectorID string
	OwnerID     string
	Model       string
	Trigger     string
	Metadata    map[string]string
	Settings    map[string]string
	AccessToken string
}

// SubscriptionResult es lo que devuelve el handler subscribe de la estrategia
// per-connection: metadata específica (ej: signing secret, hook id remoto).
type SubscriptionResult struct {
	Metadata map[string]string
}

// GlobalResult agrega la identifier key con la que se correlacionan las
// requests multiplexadas (ej: dominio del workspace).
type GlobalResult struct {
	IdentifierKey string
	Metadata      map[string]string
}

// MappedEvent es un evento decodificado de la estrategia subscription.
// Model/Trigger vienen del token firmado de la URL, no del payload.
type MappedEvent struct {
	RawResource    map[string]any
	ResourceRef    string
	IdempotencyKey string
}

// GlobalEvent es una entrada decodificada de la estrategia global. Una sola
// request puede producir varias.
type GlobalEvent struct {
	Model          string
	Trigger        string
	RawResource    map[string]any
	ResourceRef    string
	IdentifierKey  string
	IdempotencyKey string
}

// SubscriptionMapper verifica la firma del request con la metadata del
// webhook almacenado y decodifica el payload.
type SubscriptionMapper func(req InboundRequest, metadata map[string]string) (*MappedEvent, error)

// GlobalMapper identifica ruta y modelo a partir de la forma del request y
// verifica el secreto compartido a nivel connector.
type GlobalMapper func(req InboundRequest) ([]GlobalEvent, error)

// SubscriptionStrategy es la estrategia per-connection.
type SubscriptionStrategy struct {
	// Models que la estrategia soporta.
	Models []string

	Subscribe   func(ctx context.Context, p SubscribeParams) (*SubscriptionResult, error)
	Unsubscribe func(ctx context.Context, p UnsubscribeParams) error
	Mapper      SubscriptionMapper
}

// Supports indica si la estrategia cubre el modelo.
func (s *SubscriptionStrategy) Supports(model string) bool {
	for _, m := range s.Models {
		if m == model {
			return true
		}
	}
	return false
}

// GlobalRoute es una ruta de la estrategia global: una tabla de eventos y sus
// handlers. Subscribe puede hacer setup multi-paso del lado del provider.
type GlobalRoute struct {
	Name string
	// Events: modelo -> triggers soportados.
	Events map[string][]string

	Subscribe   func(ctx context.Context, p SubscribeParams) (*GlobalResult, error)
	Unsubscribe func(ctx context.Context, p UnsubscribeParams) error
	Mapper      GlobalMapper
}

// Supports indica si la ruta cubre el par modelo/trigger.
func (r *GlobalRoute) Supports(model, trigger string) bool {
	triggers, ok := r.Events[model]
	if !ok {
		return false
	}
	for _, t := range triggers {
		if t == trigger {
			return true
		}
	}
	return false
}

// Webhooks agrupa ambas estrategias; cualquiera puede faltar.
type Webhooks struct {
	Subscription *SubscriptionStrategy
	Global       []GlobalRoute
}

// GlobalRouteFor encuentra la primera ruta global que soporte el evento.
func (w *Webhooks) GlobalRouteFor(model, trigger string) *GlobalRoute {
	if w == nil {
		return nil
	}
	for i := range w.Global {
		if w.Global[i].Supports(model, trigger) {
			return &w.Global[i]
		}
	}
	return nil
}
