// Package metrics expone los contadores Prometheus del runtime.
// Las vars se registran via promauto en el registry default; el endpoint
// /metrics las sirve con promhttp.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var ProxyRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "morph_proxy_requests_total",
	Help: "Requests proxied al provider, por connector y status HTTP",
}, []string{"connector", "status"})

var TokenRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "morph_token_refresh_total",
	Help: "Refreshes de access token, por connector y resultado",
}, []string{"connector", "outcome"})

var WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "morph_webhook_events_total",
	Help: "Eventos de webhook recibidos, por connector y estrategia",
}, []string{"connector", "type"})

var WebhookDedupeSkips = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "morph_webhook_dedupe_skips_total",
	Help: "Eventos descartados por idempotencyKey repetida",
}, []string{"connector"})

var DispatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "morph_webhook_dispatch_seconds",
	Help:    "Duración del dispatch de un evento a todos los listeners",
	Buckets: prometheus.DefBuckets,
}, []string{"connector"})
