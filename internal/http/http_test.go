package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/dropDatabas3/morphcore/internal/config"
	"github.com/dropDatabas3/morphcore/internal/connector"
	"github.com/dropDatabas3/morphcore/internal/morph"
	"github.com/dropDatabas3/morphcore/internal/webhook"
)

func newTestRuntime(t *testing.T) *morph.Client {
	t.Helper()
	t.Setenv("MORPH_ENCRYPTION_SECRET", "test-secret")
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	rt, err := morph.New(context.Background(), morph.Options{Config: cfg})
	if err != nil {
		t.Fatalf("morph.New: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })

	err = rt.RegisterConnector(&connector.Connector{
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
			Global: []connector.GlobalRoute{{
				Name:   "events",
				Events: map[string][]string{"message": {"created"}},
				Subscribe: func(ctx context.Context, p connector.SubscribeParams) (*connector.GlobalResult, error) {
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
	})
	if err != nil {
		t.Fatalf("RegisterConnector: %v", err)
	}
	return rt
}

func postJSON(t *testing.T, srv *httptest.Server, path, token string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, srv.URL+path, bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	return res
}

func decode[T any](t *testing.T, res *http.Response) T {
	t.Helper()
	defer res.Body.Close()
	var v T
	if err := json.NewDecoder(res.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

func createSession(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	res := postJSON(t, srv, "/sessions", "", map[string]any{
		"connectorId": "acme",
		"ownerId":     "tenant-1",
		"operations":  []string{"message::list"},
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("POST /sessions status = %d", res.StatusCode)
	}
	body := decode[map[string]string](t, res)
	if body["sessionToken"] == "" {
		t.Fatal("sessionToken vacío")
	}
	return body["sessionToken"]
}

func TestHealthz(t *testing.T) {
	srv := httptest.NewServer(NewServer(newTestRuntime(t)))
	defer srv.Close()

	res, err := srv.Client().Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", res.StatusCode)
	}
}

func TestSessionAndAuthorize(t *testing.T) {
	srv := httptest.NewServer(NewServer(newTestRuntime(t)))
	defer srv.Close()

	token := createSession(t, srv)

	res := postJSON(t, srv, "/connections/authorize", token, map[string]any{})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("POST /connections/authorize status = %d", res.StatusCode)
	}
	body := decode[map[string]string](t, res)
	u := body["authorizationUrl"]
	if !strings.HasPrefix(u, "https://acme/auth?") {
		t.Errorf("authorizationUrl = %q", u)
	}
	if !strings.Contains(u, "client_id=cid") {
		t.Errorf("authorizationUrl sin client_id: %q", u)
	}
}

func TestAuthorizeWithoutSession(t *testing.T) {
	srv := httptest.NewServer(NewServer(newTestRuntime(t)))
	defer srv.Close()

	res := postJSON(t, srv, "/connections/authorize", "", map[string]any{})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, esperaba 401", res.StatusCode)
	}
	body := decode[errorBody](t, res)
	if body.Error.Code != "MORPH_SESSION_EXPIRED" {
		t.Errorf("code = %q", body.Error.Code)
	}
}

func TestSubscribeAndGlobalHook(t *testing.T) {
	rt := newTestRuntime(t)
	srv := httptest.NewServer(NewServer(rt))
	defer srv.Close()

	var calls atomic.Int32
	err := rt.Events.OnEvents([]string{"message::created"}, func(ctx context.Context, ev webhook.Event) (*webhook.Result, error) {
		calls.Add(1)
		if ev.OwnerID != "tenant-1" {
			t.Errorf("ownerId = %q", ev.OwnerID)
		}
		return nil, nil
	})
	if err != nil {
		t.Fatalf("OnEvents: %v", err)
	}

	token := createSession(t, srv)

	res := postJSON(t, srv, "/connections/subscribe", token, map[string]any{
		"events": []string{"message::created"},
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("POST /connections/subscribe status = %d", res.StatusCode)
	}
	res.Body.Close()

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/webhooks/acme/global", strings.NewReader("evt-1"))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	res, err = srv.Client().Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if res.StatusCode != http.StatusOK {
		t.Fatalf("POST /webhooks/acme/global status = %d", res.StatusCode)
	}
	body := decode[map[string]bool](t, res)
	if !body["processed"] {
		t.Error("processed = false")
	}
	if calls.Load() != 1 {
		t.Errorf("listener corrió %d veces", calls.Load())
	}
}

func TestGlobalHookUnknownConnector(t *testing.T) {
	srv := httptest.NewServer(NewServer(newTestRuntime(t)))
	defer srv.Close()

	res, err := srv.Client().Post(srv.URL+"/webhooks/nadie/global", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, esperaba 403", res.StatusCode)
	}
}

func TestDeleteConnection(t *testing.T) {
	srv := httptest.NewServer(NewServer(newTestRuntime(t)))
	defer srv.Close()

	token := createSession(t, srv)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/connections", nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	res, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d", res.StatusCode)
	}
}

func TestWebhookRateLimit(t *testing.T) {
	t.Setenv("WEBHOOK_RATE_LIMIT", "2")
	t.Setenv("WEBHOOK_RATE_WINDOW", "1h")
	srv := httptest.NewServer(NewServer(newTestRuntime(t)))
	defer srv.Close()

	for i := 0; i < 2; i++ {
		res, err := srv.Client().Post(srv.URL+"/webhooks/acme/global", "application/json", strings.NewReader("{}"))
		if err != nil {
			t.Fatalf("do: %v", err)
		}
		res.Body.Close()
	}
	res, err := srv.Client().Post(srv.URL+"/webhooks/acme/global", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status = %d, esperaba 429", res.StatusCode)
	}
	if res.Header.Get("Retry-After") == "" {
		t.Error("falta header Retry-After")
	}
}

func TestProxyBadBody(t *testing.T) {
	srv := httptest.NewServer(NewServer(newTestRuntime(t)))
	defer srv.Close()

	token := createSession(t, srv)
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/connections/proxy", strings.NewReader("no-json"))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	res, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer func() { _, _ = io.Copy(io.Discard, res.Body); res.Body.Close() }()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", res.StatusCode)
	}
}
