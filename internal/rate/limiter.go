// Package rate implementa rate limiting fixed-window sobre el cache del
// runtime. Con backend redis el límite es global entre réplicas; con memory
// es por proceso.
package rate

import (
	"context"
	"strings"
	"time"

	"github.com/dropDatabas3/morphcore/internal/cache"
)

type Result struct {
	Allowed     bool
	Remaining   int64
	RetryAfter  time.Duration
	CurrentHits int64
}

type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// FixedWindow: ventana fija simple (INCR + EXPIRE). Suficiente para frenar
// floods de webhooks; no pretende suavidad de token bucket.
type FixedWindow struct {
	kv     cache.Client
	prefix string
	max    int64
	window time.Duration
}

func NewFixedWindow(kv cache.Client, prefix string, max int64, window time.Duration) *FixedWindow {
	if prefix == "" {
		prefix = "rl:"
	}
	if window <= 0 {
		window = time.Minute
	}
	return &FixedWindow{kv: kv, prefix: prefix, max: max, window: window}
}

func (l *FixedWindow) Allow(ctx context.Context, key string) (Result, error) {
	now := time.Now().UTC()
	winStart := now.Truncate(l.window)
	winEnd := winStart.Add(l.window)
	counterKey := l.prefix + strings.ReplaceAll(key, " ", "_") + ":" + winStart.Format("20060102150405")

	hits, err := l.kv.Increment(ctx, counterKey, l.window)
	if err != nil {
		return Result{}, err
	}

	remaining := l.max - hits
	if remaining < 0 {
		remaining = 0
	}
	res := Result{
		Allowed:     hits <= l.max,
		Remaining:   remaining,
		CurrentHits: hits,
	}
	if !res.Allowed {
		res.RetryAfter = winEnd.Sub(now)
	}
	return res, nil
}
