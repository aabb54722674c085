package http

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/morphcore/internal/adapter"
	"github.com/dropDatabas3/morphcore/internal/connection"
	"github.com/dropDatabas3/morphcore/internal/connector"
	merrors "github.com/dropDatabas3/morphcore/internal/errors"
	"github.com/dropDatabas3/morphcore/internal/webhook"
)

// sessionClaims resuelve el token del header Authorization y reasegura la
// conexión. Toda la superficie /connections/* se autoriza así.
func (s *Server) sessionClaims(w http.ResponseWriter, r *http.Request) (connectorID, ownerID string, ok bool) {
	raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if raw == "" {
		WriteError(w, r, merrors.ErrSessionExpired)
		return "", "", false
	}
	claims, err := s.runtime.VerifySession(r.Context(), raw)
	if err != nil {
		WriteError(w, r, err)
		return "", "", false
	}
	return claims.ConnectorID, claims.OwnerID, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "body JSON inválido"})
		return false
	}
	return true
}

// ─── Sessions ───

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ConnectorID string   `json:"connectorId"`
		OwnerID     string   `json:"ownerId"`
		Operations  []string `json:"operations"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	token, err := s.runtime.CreateSession(r.Context(), req.ConnectorID, req.OwnerID, req.Operations)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, map[string]string{"sessionToken": token})
}

// ─── OAuth ───

func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	connectorID, ownerID, ok := s.sessionClaims(w, r)
	if !ok {
		return
	}
	var req struct {
		Settings             map[string]string `json:"settings"`
		Scopes               []string          `json:"scopes"`
		RedirectURL          string            `json:"redirectUrl"`
		SkipRequiredSettings bool              `json:"skipRequiredSettings"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	authorizeURL, err := s.runtime.Connections.Authorize(r.Context(), connection.AuthorizeParams{
		ConnectorID:          connectorID,
		OwnerID:              ownerID,
		Settings:             req.Settings,
		Scopes:               req.Scopes,
		RedirectURL:          req.RedirectURL,
		SkipRequiredSettings: req.SkipRequiredSettings,
	})
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"authorizationUrl": authorizeURL})
}

// handleOAuthCallback cierra el flujo y redirige a la UI. Sin redirectUrl
// responde la conexión en JSON.
func (s *Server) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	conn, redirectURL, err := s.runtime.Connections.Callback(r.Context(), code, state)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	if redirectURL != "" {
		u, perr := url.Parse(redirectURL)
		if perr == nil {
			q := u.Query()
			q.Set("status", conn.Status)
			u.RawQuery = q.Encode()
			http.Redirect(w, r, u.String(), http.StatusFound)
			return
		}
	}
	WriteJSON(w, http.StatusOK, conn)
}

// ─── Conexiones ───

func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	connectorID, ownerID, ok := s.sessionClaims(w, r)
	if !ok {
		return
	}
	var req struct {
		Method  string            `json:"method"`
		Path    string            `json:"path"`
		Query   map[string]any    `json:"query"`
		Headers map[string]string `json:"headers"`
		Body    any               `json:"body"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.runtime.Connections.Proxy(r.Context(), connection.ProxyParams{
		ConnectorID: connectorID,
		OwnerID:     ownerID,
		Method:      req.Method,
		Path:        req.Path,
		Query:       req.Query,
		Headers:     req.Headers,
		Body:        req.Body,
	})
	if err != nil {
		WriteError(w, r, err)
		return
	}
	if ct := res.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(res.Status)
	_, _ = w.Write(res.Body)
}

func (s *Server) handleDeleteConnection(w http.ResponseWriter, r *http.Request) {
	connectorID, ownerID, ok := s.sessionClaims(w, r)
	if !ok {
		return
	}
	err := s.runtime.Connections.Delete(r.Context(), adapter.ConnectionIDs{ConnectorID: connectorID, OwnerID: ownerID})
	if err != nil {
		WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ─── Webhooks: suscripción saliente ───

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	connectorID, ownerID, ok := s.sessionClaims(w, r)
	if !ok {
		return
	}
	var req struct {
		Events []string `json:"events"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	hooks, err := s.runtime.Webhooks.Subscribe(r.Context(), connectorID, ownerID, req.Events)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"webhooks": hooks})
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	connectorID, ownerID, ok := s.sessionClaims(w, r)
	if !ok {
		return
	}
	var req struct {
		Events []string `json:"events"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.runtime.Webhooks.Unsubscribe(r.Context(), connectorID, ownerID, req.Events); err != nil {
		WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ─── Webhooks: requests entrantes del provider ───

func (s *Server) inboundRequest(r *http.Request) (connector.InboundRequest, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return connector.InboundRequest{}, err
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		origin = r.Host
	}
	return connector.InboundRequest{
		Headers: r.Header,
		Query:   r.URL.Query(),
		Body:    body,
		Origin:  origin,
	}, nil
}

func (s *Server) handleSubscriptionHook(w http.ResponseWriter, r *http.Request) {
	req, err := s.inboundRequest(r)
	if err != nil {
		WriteError(w, r, merrors.ErrWebhookValidationFailed.WithCause(err))
		return
	}
	res, err := s.runtime.Events.HandleRequest(r.Context(), webhook.HandleParams{
		ConnectorID: chi.URLParam(r, "connectorID"),
		Type:        connector.WebhookTypeSubscription,
		Token:       chi.URLParam(r, "token"),
		Request:     req,
	})
	if err != nil {
		WriteError(w, r, err)
		return
	}
	s.writeHookResult(w, res)
}

func (s *Server) handleGlobalHook(w http.ResponseWriter, r *http.Request) {
	req, err := s.inboundRequest(r)
	if err != nil {
		WriteError(w, r, merrors.ErrWebhookValidationFailed.WithCause(err))
		return
	}
	res, err := s.runtime.Events.HandleRequest(r.Context(), webhook.HandleParams{
		ConnectorID: chi.URLParam(r, "connectorID"),
		Type:        connector.WebhookTypeGlobal,
		Request:     req,
	})
	if err != nil {
		WriteError(w, r, err)
		return
	}
	s.writeHookResult(w, res)
}

// writeHookResult responde al provider: la data del primer listener que
// produjo una (protocolos con respuesta síncrona) o un ack mínimo.
func (s *Server) writeHookResult(w http.ResponseWriter, res *webhook.Result) {
	if len(res.Data) > 0 {
		WriteJSON(w, http.StatusOK, res.Data)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]bool{"processed": res.Processed})
}
