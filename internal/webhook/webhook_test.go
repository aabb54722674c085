package webhook

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dropDatabas3/morphcore/internal/adapter"
	"github.com/dropDatabas3/morphcore/internal/adapter/memory"
	"github.com/dropDatabas3/morphcore/internal/cache"
	"github.com/dropDatabas3/morphcore/internal/connection"
	"github.com/dropDatabas3/morphcore/internal/connector"
	merrors "github.com/dropDatabas3/morphcore/internal/errors"
	"github.com/dropDatabas3/morphcore/internal/security/cryptobox"
)

type fixture struct {
	client     *Client
	registry   *Registry
	adapter    *memory.Mem
	signer     *URLSigner
	connectors *connector.Registry

	subCalls    atomic.Int32
	globalCalls atomic.Int32
}

// newFixture arma un connector con ambas estrategias: subscription para
// "contact" y una ruta global para "message".
func newFixture(t *testing.T, mutate func(*connector.Connector)) *fixture {
	t.Helper()
	f := &fixture{}

	cn := &connector.Connector{
		ID:   "acme",
		Name: "Acme",
		Auth: connector.Auth{
			Type:           connector.AuthTypeOAuth2,
			AuthorizeURL:   func(map[string]string) string { return "https://acme/auth" },
			AccessTokenURL: func(map[string]string) string { return "https://acme/token" },
			ClientID:       "cid",
			ClientSecret:   "csec",
		},
		Proxy: connector.Proxy{
			BaseURL: func(map[string]string) (string, error) { return "https://api.acme", nil },
		},
		Webhooks: &connector.Webhooks{
			Subscription: &connector.SubscriptionStrategy{
				Models: []string{"contact"},
				Subscribe: func(ctx context.Context, p connector.SubscribeParams) (*connector.SubscriptionResult, error) {
					f.subCalls.Add(1)
					return &connector.SubscriptionResult{Metadata: map[string]string{"signing_key": "sk"}}, nil
				},
				Unsubscribe: func(ctx context.Context, p connector.UnsubscribeParams) error { return nil },
				Mapper: func(req connector.InboundRequest, metadata map[string]string) (*connector.MappedEvent, error) {
					if metadata["signing_key"] != "sk" {
						return nil, errors.New("firma inválida")
					}
					return &connector.MappedEvent{
						RawResource:    map[string]any{"id": "c-1"},
						IdempotencyKey: string(req.Body),
					}, nil
				},
			},
			Global: []connector.GlobalRoute{{
				Name:   "events",
				Events: map[string][]string{"message": {"created"}},
				Subscribe: func(ctx context.Context, p connector.SubscribeParams) (*connector.GlobalResult, error) {
					f.globalCalls.Add(1)
					return &connector.GlobalResult{IdentifierKey: "workspace-1"}, nil
				},
				Unsubscribe: func(ctx context.Context, p connector.UnsubscribeParams) error { return nil },
				Mapper: func(req connector.InboundRequest) ([]connector.GlobalEvent, error) {
					return []connector.GlobalEvent{{
						Model:          "message",
						Trigger:        "created",
						RawResource:    map[string]any{"id": "m-1"},
						IdentifierKey:  "workspace-1",
						IdempotencyKey: string(req.Body),
					}}, nil
				},
			}},
		},
	}
	if mutate != nil {
		mutate(cn)
	}

	reg := connector.NewRegistry()
	if err := reg.Register(cn); err != nil {
		t.Fatalf("register: %v", err)
	}
	f.connectors = reg
	box, err := cryptobox.New("test-secret", 16)
	if err != nil {
		t.Fatalf("cryptobox: %v", err)
	}
	f.adapter = memory.New()
	conns := connection.New(connection.Config{
		Adapter:  f.adapter,
		Registry: reg,
		Box:      box,
		BaseURL:  "https://runtime.example.com",
	})
	if _, err := conns.Create(context.Background(), "acme", "t1", nil); err != nil {
		t.Fatalf("create connection: %v", err)
	}

	f.signer, err = NewURLSigner("test-secret")
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	f.client = New(Config{
		Adapter:     f.adapter,
		Registry:    reg,
		Connections: conns,
		Signer:      f.signer,
		BaseURL:     "https://runtime.example.com",
	})
	f.registry = NewRegistry(RegistryConfig{
		Adapter:    f.adapter,
		Connectors: reg,
		Signer:     f.signer,
		Cache:      cache.NewMemory("test"),
		DedupeTTL:  time.Minute,
	})
	return f
}

func TestSubscribeIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, nil)

	first, err := f.client.Subscribe(ctx, "acme", "t1", []string{"contact::created"})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if len(first) != 1 || first[0].Type != "subscription" {
		t.Fatalf("first = %+v", first)
	}

	second, err := f.client.Subscribe(ctx, "acme", "t1", []string{"contact::created"})
	if err != nil {
		t.Fatalf("Subscribe 2: %v", err)
	}
	if f.subCalls.Load() != 1 {
		t.Errorf("provider registrado %d veces, esperaba 1", f.subCalls.Load())
	}
	if second[0].CreatedAt != first[0].CreatedAt {
		t.Error("segunda llamada no devolvió el mismo registro")
	}
}

func TestSubscribeGlobalFallback(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, nil)

	out, err := f.client.Subscribe(ctx, "acme", "t1", []string{"message::created"})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if out[0].Type != "global" || out[0].IdentifierKey != "workspace-1" {
		t.Errorf("webhook = %+v", out[0])
	}
	if f.globalCalls.Load() != 1 {
		t.Errorf("global subscribe llamado %d veces", f.globalCalls.Load())
	}
}

func TestSubscribeFallsBackWhenSubscriptionFails(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, func(cn *connector.Connector) {
		// La estrategia subscription cubre message pero falla; la ruta global
		// debe atajarlo.
		cn.Webhooks.Subscription.Models = []string{"contact", "message"}
		orig := cn.Webhooks.Subscription.Subscribe
		cn.Webhooks.Subscription.Subscribe = func(ctx context.Context, p connector.SubscribeParams) (*connector.SubscriptionResult, error) {
			if p.Model == "message" {
				return nil, errors.New("provider rechazó el hook")
			}
			return orig(ctx, p)
		}
	})

	out, err := f.client.Subscribe(ctx, "acme", "t1", []string{"message::created"})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if out[0].Type != "global" {
		t.Errorf("type = %q, esperaba fallback a global", out[0].Type)
	}
}

func TestSubscribeUnsupportedEvent(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	_, err := f.client.Subscribe(context.Background(), "acme", "t1", []string{"deal::created"})
	if !errors.Is(err, merrors.ErrWebhooksNotSupported) {
		t.Fatalf("err = %v, esperaba ErrWebhooksNotSupported", err)
	}
}

func TestUnsubscribeMissingIsNoop(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	if err := f.client.Unsubscribe(context.Background(), "acme", "t1", []string{"contact::created"}); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
}

func TestUnsubscribeDeletesRecord(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, nil)

	if _, err := f.client.Subscribe(ctx, "acme", "t1", []string{"contact::created"}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := f.client.Unsubscribe(ctx, "acme", "t1", []string{"contact::created"}); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	w, _ := f.adapter.RetrieveWebhook(ctx, adapter.WebhookIDs{
		ConnectorID: "acme", OwnerID: "t1", Model: "contact", Trigger: "created",
	})
	if w != nil {
		t.Errorf("registro sigue existiendo: %+v", w)
	}
}

func TestURLSignerRoundTrip(t *testing.T) {
	t.Parallel()
	s, err := NewURLSigner("secret")
	if err != nil {
		t.Fatalf("NewURLSigner: %v", err)
	}
	tok, err := s.Sign(Binding{ConnectorID: "acme", OwnerID: "t1", Model: "contact", Trigger: "created"})
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	b, err := s.Verify(tok)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if b.Model != "contact" || b.Trigger != "created" {
		t.Errorf("binding = %+v", b)
	}

	if _, err := s.Verify(tok + "x"); !errors.Is(err, merrors.ErrWebhookValidationFailed) {
		t.Fatalf("Verify manipulado: %v", err)
	}
}

func subscriptionRequest(t *testing.T, f *fixture, body string) HandleParams {
	t.Helper()
	tok, err := f.signer.Sign(Binding{ConnectorID: "acme", OwnerID: "t1", Model: "contact", Trigger: "created"})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return HandleParams{
		ConnectorID: "acme",
		Type:        connector.WebhookTypeSubscription,
		Token:       tok,
		Request:     connector.InboundRequest{Body: []byte(body)},
	}
}

func TestHandleSubscriptionDispatches(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, nil)
	if _, err := f.client.Subscribe(ctx, "acme", "t1", []string{"contact::created"}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	var got atomic.Int32
	err := f.registry.OnEvents([]string{"contact::created"}, func(ctx context.Context, e Event) (*Result, error) {
		got.Add(1)
		if e.Data["id"] != "c-1" || e.OwnerID != "t1" {
			t.Errorf("event = %+v", e)
		}
		return nil, nil
	})
	if err != nil {
		t.Fatalf("OnEvents: %v", err)
	}

	res, err := f.registry.HandleRequest(ctx, subscriptionRequest(t, f, "evt-1"))
	if err != nil {
		t.Fatalf("HandleRequest: %v", err)
	}
	if !res.Processed || got.Load() != 1 {
		t.Errorf("res = %+v, listeners = %d", res, got.Load())
	}
}

func TestHandleSubscriptionUnknownWebhook(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	// Sin Subscribe previo no hay registro en el adapter.
	_, err := f.registry.HandleRequest(context.Background(), subscriptionRequest(t, f, "evt-1"))
	if !errors.Is(err, merrors.ErrWebhookValidationFailed) {
		t.Fatalf("err = %v", err)
	}
}

func TestDispatchAggregation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, nil)
	if _, err := f.client.Subscribe(ctx, "acme", "t1", []string{"contact::created"}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	// Primer listener con data; segundo no procesado; wildcard también corre.
	_ = f.registry.OnEvents([]string{"contact::created"}, func(ctx context.Context, e Event) (*Result, error) {
		return &Result{Processed: true, Data: map[string]any{"card": "view"}}, nil
	})
	_ = f.registry.OnEvents([]string{"contact::created"}, func(ctx context.Context, e Event) (*Result, error) {
		return &Result{Processed: false}, nil
	})
	var wild atomic.Int32
	_ = f.registry.OnEvents([]string{Wildcard}, func(ctx context.Context, e Event) (*Result, error) {
		wild.Add(1)
		return nil, nil
	})

	res, err := f.registry.HandleRequest(ctx, subscriptionRequest(t, f, "evt-agg"))
	if err != nil {
		t.Fatalf("HandleRequest: %v", err)
	}
	if res.Processed {
		t.Error("processed debería ser AND=false")
	}
	if res.Data["card"] != "view" {
		t.Errorf("data = %v", res.Data)
	}
	if wild.Load() != 1 {
		t.Errorf("wildcard corrió %d veces", wild.Load())
	}
}

func TestDispatchListenerPanicIsUnknownError(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, nil)
	if _, err := f.client.Subscribe(ctx, "acme", "t1", []string{"contact::created"}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	_ = f.registry.OnEvents([]string{"contact::created"}, func(ctx context.Context, e Event) (*Result, error) {
		panic("boom")
	})

	_, err := f.registry.HandleRequest(ctx, subscriptionRequest(t, f, "evt-p"))
	if !errors.Is(err, merrors.ErrUnknown) {
		t.Fatalf("err = %v, esperaba ErrUnknown", err)
	}
}

func TestDispatchDedupe(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, nil)
	if _, err := f.client.Subscribe(ctx, "acme", "t1", []string{"contact::created"}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	var got atomic.Int32
	_ = f.registry.OnEvents([]string{"contact::created"}, func(ctx context.Context, e Event) (*Result, error) {
		got.Add(1)
		return nil, nil
	})

	// Mismo idempotencyKey dos veces: un solo dispatch.
	if _, err := f.registry.HandleRequest(ctx, subscriptionRequest(t, f, "same-key")); err != nil {
		t.Fatalf("HandleRequest 1: %v", err)
	}
	res, err := f.registry.HandleRequest(ctx, subscriptionRequest(t, f, "same-key"))
	if err != nil {
		t.Fatalf("HandleRequest 2: %v", err)
	}
	if !res.Processed {
		t.Error("el duplicado debe reportarse processed")
	}
	if got.Load() != 1 {
		t.Errorf("listener corrió %d veces, esperaba 1", got.Load())
	}
}

func TestDispatchErrorReleasesDedupe(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, nil)
	if _, err := f.client.Subscribe(ctx, "acme", "t1", []string{"contact::created"}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	// Primer intento falla; el provider reintenta con la misma key y el
	// evento debe entregarse de verdad, no descartarse como duplicado.
	var calls atomic.Int32
	_ = f.registry.OnEvents([]string{"contact::created"}, func(ctx context.Context, e Event) (*Result, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("destino caído")
		}
		return nil, nil
	})

	if _, err := f.registry.HandleRequest(ctx, subscriptionRequest(t, f, "retry-key")); err == nil {
		t.Fatal("primer intento debía fallar")
	}
	res, err := f.registry.HandleRequest(ctx, subscriptionRequest(t, f, "retry-key"))
	if err != nil {
		t.Fatalf("HandleRequest retry: %v", err)
	}
	if !res.Processed {
		t.Errorf("res = %+v", res)
	}
	if calls.Load() != 2 {
		t.Errorf("listener corrió %d veces, el retry no se re-entregó", calls.Load())
	}
}

func TestHandleGlobalResolvesConnection(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, nil)
	if _, err := f.client.Subscribe(ctx, "acme", "t1", []string{"message::created"}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	var gotOwner string
	_ = f.registry.OnEvents([]string{"message::created"}, func(ctx context.Context, e Event) (*Result, error) {
		gotOwner = e.OwnerID
		return nil, nil
	})

	res, err := f.registry.HandleRequest(ctx, HandleParams{
		ConnectorID: "acme",
		Type:        connector.WebhookTypeGlobal,
		Request:     connector.InboundRequest{Body: []byte("g-1")},
	})
	if err != nil {
		t.Fatalf("HandleRequest: %v", err)
	}
	if !res.Processed || gotOwner != "t1" {
		t.Errorf("res = %+v, owner = %q", res, gotOwner)
	}
}

func TestHandleGlobalUnknownIdentifierIgnored(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, func(cn *connector.Connector) {
		cn.Webhooks.Global[0].Mapper = func(req connector.InboundRequest) ([]connector.GlobalEvent, error) {
			return []connector.GlobalEvent{{
				Model: "message", Trigger: "created",
				IdentifierKey: "otro-workspace",
			}}, nil
		}
	})

	var got atomic.Int32
	_ = f.registry.OnEvents([]string{"message::created"}, func(ctx context.Context, e Event) (*Result, error) {
		got.Add(1)
		return nil, nil
	})

	res, err := f.registry.HandleRequest(ctx, HandleParams{
		ConnectorID: "acme",
		Type:        connector.WebhookTypeGlobal,
		Request:     connector.InboundRequest{Body: []byte("g-x")},
	})
	if err != nil {
		t.Fatalf("HandleRequest: %v", err)
	}
	if got.Load() != 0 {
		t.Errorf("listener corrió para un workspace desconocido")
	}
	if !res.Processed {
		t.Error("sin eventos ruteados igual se responde processed")
	}
}

func TestHandleGlobalMaterializesRef(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newFixture(t, func(cn *connector.Connector) {
		cn.Webhooks.Global[0].Mapper = func(req connector.InboundRequest) ([]connector.GlobalEvent, error) {
			return []connector.GlobalEvent{{
				Model: "message", Trigger: "created",
				ResourceRef:   "m-77",
				IdentifierKey: "workspace-1",
			}}, nil
		}
	})
	// Registry con retriever que materializa la referencia.
	f.registry = NewRegistry(RegistryConfig{
		Adapter:    f.adapter,
		Connectors: f.connectors,
		Signer:     f.signer,
		Retrieve: func(ctx context.Context, connectorID, ownerID, model, ref string) (map[string]any, error) {
			return map[string]any{"id": ref, "body": "hola"}, nil
		},
	})
	if _, err := f.client.Subscribe(ctx, "acme", "t1", []string{"message::created"}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	var gotID any
	_ = f.registry.OnEvents([]string{"message::created"}, func(ctx context.Context, e Event) (*Result, error) {
		gotID = e.Data["id"]
		return nil, nil
	})

	if _, err := f.registry.HandleRequest(ctx, HandleParams{
		ConnectorID: "acme",
		Type:        connector.WebhookTypeGlobal,
		Request:     connector.InboundRequest{Body: []byte("g-ref")},
	}); err != nil {
		t.Fatalf("HandleRequest: %v", err)
	}
	if gotID != "m-77" {
		t.Errorf("data.id = %v, la referencia no se materializó", gotID)
	}
}

func TestParseEvent(t *testing.T) {
	t.Parallel()
	m, tr, err := ParseEvent("contact::created")
	if err != nil || m != "contact" || tr != "created" {
		t.Fatalf("ParseEvent = (%q, %q, %v)", m, tr, err)
	}
	for _, bad := range []string{"", "contact", "::created", "contact::"} {
		if _, _, err := ParseEvent(bad); err == nil {
			t.Errorf("ParseEvent(%q): esperaba error", bad)
		}
	}
}
