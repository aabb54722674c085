package webhook

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/morphcore/internal/adapter"
	"github.com/dropDatabas3/morphcore/internal/cache"
	"github.com/dropDatabas3/morphcore/internal/connector"
	merrors "github.com/dropDatabas3/morphcore/internal/errors"
	"github.com/dropDatabas3/morphcore/internal/observability/logger"
	"github.com/dropDatabas3/morphcore/internal/observability/metrics"
)

// Wildcard suscribe un listener a todos los eventos.
const Wildcard = "*"

// Event es un evento de webhook ya normalizado, listo para los listeners.
type Event struct {
	ConnectorID string
	OwnerID     string
	Model       string
	Trigger     string
	Type        connector.WebhookType
	// Data es el recurso crudo del provider (ya materializado si el evento
	// traía solo una referencia).
	Data           map[string]any
	IdempotencyKey string
}

// Result es la respuesta opcional de un listener. Un listener que retorna nil
// cuenta como processed=true sin data.
type Result struct {
	Processed bool
	Data      map[string]any
}

// Listener procesa un evento. Puede devolver un Result para protocolos que
// esperan un body síncrono (ej: card views).
type Listener func(ctx context.Context, e Event) (*Result, error)

// ResourceRetriever materializa un recurso referenciado por el evento via la
// API unificada.
type ResourceRetriever func(ctx context.Context, connectorID, ownerID, model, ref string) (map[string]any, error)

// RegistryConfig arma el router de eventos entrantes.
type RegistryConfig struct {
	Adapter    adapter.Adapter
	Connectors *connector.Registry
	Signer     *URLSigner

	// Cache deduplica por idempotencyKey; nil desactiva el dedupe.
	Cache     cache.Client
	DedupeTTL time.Duration

	// Retrieve es opcional; sin él los eventos por referencia se despachan
	// con Data nil.
	Retrieve ResourceRetriever
}

// Registry rutea requests entrantes hacia los listeners. Se construye una vez
// y se inyecta: no hay instancia global.
type Registry struct {
	mu        sync.RWMutex
	listeners map[string][]Listener

	adapter    adapter.Adapter
	connectors *connector.Registry
	signer     *URLSigner
	cache      cache.Client
	dedupeTTL  time.Duration
	retrieve   ResourceRetriever
}

// NewRegistry crea el router.
func NewRegistry(cfg RegistryConfig) *Registry {
	ttl := cfg.DedupeTTL
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &Registry{
		listeners:  map[string][]Listener{},
		adapter:    cfg.Adapter,
		connectors: cfg.Connectors,
		signer:     cfg.Signer,
		cache:      cfg.Cache,
		dedupeTTL:  ttl,
		retrieve:   cfg.Retrieve,
	}
}

// OnEvents registra un listener para uno o más eventos "<model>::<trigger>",
// o el wildcard "*".
func (r *Registry) OnEvents(events []string, l Listener) error {
	for _, event := range events {
		if event != Wildcard {
			if _, _, err := ParseEvent(event); err != nil {
				return err
			}
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, event := range events {
		r.listeners[event] = append(r.listeners[event], l)
	}
	return nil
}

// HandleParams es una request entrante ya leída.
type HandleParams struct {
	ConnectorID string
	Type        connector.WebhookType
	// Token firmado de la callback URL (solo subscription).
	Token   string
	Request connector.InboundRequest
}

// HandleRequest verifica, decodifica y despacha una request de webhook.
func (r *Registry) HandleRequest(ctx context.Context, p HandleParams) (*Result, error) {
	cn, err := r.connectors.Get(p.ConnectorID)
	if err != nil {
		return nil, merrors.ErrWebhookValidationFailed.WithCause(err)
	}
	if cn.Webhooks == nil {
		return nil, merrors.ErrWebhooksNotSupported.WithDetail(p.ConnectorID)
	}

	switch p.Type {
	case connector.WebhookTypeSubscription:
		return r.handleSubscription(ctx, cn, p)
	case connector.WebhookTypeGlobal:
		return r.handleGlobal(ctx, cn, p)
	default:
		return nil, merrors.ErrWebhookValidationFailed.WithDetail(string(p.Type))
	}
}

// handleSubscription: la URL firmada ya dice model/trigger; el mapper del
// connector verifica la firma del provider con la metadata almacenada.
func (r *Registry) handleSubscription(ctx context.Context, cn *connector.Connector, p HandleParams) (*Result, error) {
	b, err := r.signer.Verify(p.Token)
	if err != nil {
		return nil, err
	}
	if b.ConnectorID != p.ConnectorID {
		return nil, merrors.ErrWebhookValidationFailed.WithDetail("connector mismatch")
	}
	sub := cn.Webhooks.Subscription
	if sub == nil {
		return nil, merrors.ErrWebhooksNotSupported.WithDetail(p.ConnectorID)
	}
	w, err := r.adapter.RetrieveWebhook(ctx, adapter.WebhookIDs{
		ConnectorID: b.ConnectorID, OwnerID: b.OwnerID, Model: b.Model, Trigger: b.Trigger,
	})
	if err != nil {
		return nil, merrors.ErrWebhookValidationFailed.WithCause(err)
	}
	if w == nil {
		return nil, merrors.ErrWebhookValidationFailed.WithDetail("webhook desconocido")
	}

	mapped, err := sub.Mapper(p.Request, w.Metadata)
	if err != nil {
		return nil, merrors.ErrWebhookValidationFailed.WithCause(err)
	}
	metrics.WebhookEvents.WithLabelValues(p.ConnectorID, string(connector.WebhookTypeSubscription)).Inc()

	e := Event{
		ConnectorID:    b.ConnectorID,
		OwnerID:        b.OwnerID,
		Model:          b.Model,
		Trigger:        b.Trigger,
		Type:           connector.WebhookTypeSubscription,
		Data:           mapped.RawResource,
		IdempotencyKey: mapped.IdempotencyKey,
	}
	if e.Data == nil && mapped.ResourceRef != "" && r.retrieve != nil {
		data, err := r.retrieve(ctx, e.ConnectorID, e.OwnerID, e.Model, mapped.ResourceRef)
		if err != nil {
			return nil, merrors.FromError(err)
		}
		e.Data = data
	}
	return r.dispatch(ctx, e)
}

// handleGlobal: el mapper del connector identifica la ruta y produce una o más
// entradas; cada una se resuelve a su conexión via identifierKey.
func (r *Registry) handleGlobal(ctx context.Context, cn *connector.Connector, p HandleParams) (*Result, error) {
	events, err := r.mapGlobal(cn, p.Request)
	if err != nil {
		return nil, err
	}

	agg := &Result{Processed: true}
	for _, ge := range events {
		w, err := r.adapter.RetrieveWebhookByIdentifierKey(ctx, ge.IdentifierKey)
		if err != nil {
			return nil, merrors.ErrWebhookValidationFailed.WithCause(err)
		}
		if w == nil {
			// Evento de un workspace sin conexión registrada: se ignora.
			logger.From(ctx).Debug("evento global sin webhook asociado",
				logger.ConnectorID(p.ConnectorID), logger.Key(ge.IdentifierKey))
			continue
		}
		metrics.WebhookEvents.WithLabelValues(p.ConnectorID, string(connector.WebhookTypeGlobal)).Inc()

		e := Event{
			ConnectorID:    w.ConnectorID,
			OwnerID:        w.OwnerID,
			Model:          ge.Model,
			Trigger:        ge.Trigger,
			Type:           connector.WebhookTypeGlobal,
			Data:           ge.RawResource,
			IdempotencyKey: ge.IdempotencyKey,
		}
		if e.Data == nil && ge.ResourceRef != "" && r.retrieve != nil {
			data, err := r.retrieve(ctx, e.ConnectorID, e.OwnerID, e.Model, ge.ResourceRef)
			if err != nil {
				return nil, merrors.FromError(err)
			}
			e.Data = data
		}

		res, err := r.dispatch(ctx, e)
		if err != nil {
			return nil, err
		}
		agg.Processed = agg.Processed && res.Processed
		if agg.Data == nil && len(res.Data) > 0 {
			agg.Data = res.Data
		}
	}
	return agg, nil
}

// mapGlobal prueba las rutas globales en orden; la primera cuyo mapper decanta
// la request sin error la atiende.
func (r *Registry) mapGlobal(cn *connector.Connector, req connector.InboundRequest) ([]connector.GlobalEvent, error) {
	var lastErr error
	for i := range cn.Webhooks.Global {
		events, err := cn.Webhooks.Global[i].Mapper(req)
		if err == nil {
			return events, nil
		}
		lastErr = err
	}
	if lastErr != nil {
		return nil, merrors.ErrWebhookValidationFailed.WithCause(lastErr)
	}
	return nil, merrors.ErrWebhooksNotSupported.WithDetail(cn.ID)
}

// dispatch entrega el evento a los listeners exactos y a los wildcard, en
// paralelo. processed agrega con AND; la primera data no vacía (en orden de
// registro) gana. Un panic o error de listener sale como UNKNOWN_ERROR.
func (r *Registry) dispatch(ctx context.Context, e Event) (*Result, error) {
	marked, dup := r.deduped(ctx, e)
	if dup {
		metrics.WebhookDedupeSkips.WithLabelValues(e.ConnectorID).Inc()
		logger.From(ctx).Debug("evento duplicado descartado",
			logger.ConnectorID(e.ConnectorID), logger.IdempotencyKey(e.IdempotencyKey))
		return &Result{Processed: true}, nil
	}

	r.mu.RLock()
	key := e.Model + "::" + e.Trigger
	ls := make([]Listener, 0, len(r.listeners[key])+len(r.listeners[Wildcard]))
	ls = append(ls, r.listeners[key]...)
	ls = append(ls, r.listeners[Wildcard]...)
	r.mu.RUnlock()

	if len(ls) == 0 {
		return &Result{Processed: true}, nil
	}

	start := time.Now()
	results := make([]*Result, len(ls))
	g, gctx := errgroup.WithContext(ctx)
	for i, l := range ls {
		i, l := i, l
		g.Go(func() (err error) {
			defer func() {
				if rec := recover(); rec != nil {
					err = merrors.ErrUnknown.WithCause(fmt.Errorf("listener panic: %v", rec))
				}
			}()
			res, lerr := l(gctx, e)
			if lerr != nil {
				return merrors.FromError(lerr)
			}
			results[i] = res
			return nil
		})
	}
	err := g.Wait()
	metrics.DispatchDuration.WithLabelValues(e.ConnectorID).Observe(time.Since(start).Seconds())
	if err != nil {
		// El provider va a recibir un 5xx y reintentar: la marca de dedupe no
		// puede quedar consumida por un dispatch fallido.
		if marked {
			r.releaseDedupe(ctx, e)
		}
		return nil, merrors.FromError(err)
	}

	out := &Result{Processed: true}
	for _, res := range results {
		if res == nil {
			continue
		}
		out.Processed = out.Processed && res.Processed
		if out.Data == nil && len(res.Data) > 0 {
			out.Data = res.Data
		}
	}
	return out, nil
}

// deduped marca la idempotencyKey en el cache. dup=true si ya estaba; marked
// indica que este dispatch escribió la marca y le toca liberarla si falla.
func (r *Registry) deduped(ctx context.Context, e Event) (marked, dup bool) {
	if r.cache == nil || e.IdempotencyKey == "" {
		return false, false
	}
	stored, err := r.cache.Add(ctx, dedupeKey(e), "1", r.dedupeTTL)
	if err != nil {
		// Cache caído: mejor entregar duplicados que perder eventos.
		logger.From(ctx).Warn("dedupe cache no disponible", logger.Err(err))
		return false, false
	}
	return stored, !stored
}

// releaseDedupe borra la marca para que el retry del provider re-entregue.
func (r *Registry) releaseDedupe(ctx context.Context, e Event) {
	if err := r.cache.Delete(ctx, dedupeKey(e)); err != nil {
		logger.From(ctx).Warn("no se pudo liberar la marca de dedupe",
			logger.Err(err), logger.ConnectorID(e.ConnectorID), logger.IdempotencyKey(e.IdempotencyKey))
	}
}

func dedupeKey(e Event) string {
	return "webhook:dedupe:" + e.ConnectorID + ":" + e.IdempotencyKey
}
