// Package http expone la superficie del runtime: callback OAuth, endpoints de
// webhooks entrantes, sessions y operación de conexiones.
package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dropDatabas3/morphcore/internal/morph"
	"github.com/dropDatabas3/morphcore/internal/observability/logger"
)

// Server enruta las requests hacia el runtime.
type Server struct {
	runtime *morph.Client
	router  chi.Router
}

// NewServer arma el router.
func NewServer(rt *morph.Client) *Server {
	s := &Server{runtime: rt, router: chi.NewRouter()}
	s.router.Use(requestLogger)

	s.router.Get("/healthz", s.handleHealth)
	s.router.Method(http.MethodGet, "/metrics", promhttp.Handler())

	s.router.Get("/callback", s.handleOAuthCallback)

	s.router.Post("/sessions", s.handleCreateSession)
	s.router.Post("/connections/authorize", s.handleAuthorize)
	s.router.Post("/connections/subscribe", s.handleSubscribe)
	s.router.Post("/connections/unsubscribe", s.handleUnsubscribe)
	s.router.Post("/connections/proxy", s.handleProxy)
	s.router.Delete("/connections", s.handleDeleteConnection)

	s.router.Group(func(r chi.Router) {
		r.Use(s.rateLimitByConnector)
		r.Post("/webhooks/{connectorID}/subscription/{token}", s.handleSubscriptionHook)
		r.Post("/webhooks/{connectorID}/global", s.handleGlobalHook)
	})

	return s
}

// ServeHTTP implementa http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// rateLimitByConnector frena floods de webhooks por connector. Un provider
// ruidoso no puede hundir el dispatch de los demás.
func (s *Server) rateLimitByConnector(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.runtime.Limiter == nil {
			next.ServeHTTP(w, r)
			return
		}
		res, err := s.runtime.Limiter.Allow(r.Context(), chi.URLParam(r, "connectorID"))
		if err != nil {
			// Limiter caído: dejar pasar, el dedupe aguas abajo absorbe.
			logger.From(r.Context()).Warn("rate limiter no disponible", logger.Err(err))
			next.ServeHTTP(w, r)
			return
		}
		if !res.Allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(res.RetryAfter.Seconds())+1))
			WriteJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit excedido"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestLogger inyecta un logger scoped e informa la request al terminar.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		l := logger.L().With(logger.Method(r.Method), logger.Path(r.URL.Path))
		ctx := logger.ToContext(r.Context(), l)
		next.ServeHTTP(w, r.WithContext(ctx))
		l.Debug("request atendida", logger.Duration(time.Since(start)))
	})
}
