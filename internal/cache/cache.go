// Package cache provee un KV efímero multi-backend. El runtime lo usa para
// deduplicar eventos de webhook por idempotencyKey.
//
// Drivers:
//   - memory (in-process, para desarrollo/testing)
//   - redis (distribuido, para producción multi-réplica)
package cache

import (
	"context"
	"time"
)

// Client define las operaciones de cache.
type Client interface {
	// Get obtiene un valor. Retorna ErrNotFound si no existe.
	Get(ctx context.Context, key string) (string, error)

	// Set guarda un valor con TTL. Si ttl es 0, no expira.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Add guarda solo si la key no existe (semántica SETNX). Retorna true si
	// escribió, false si la key ya estaba. Es la primitiva de dedupe.
	Add(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Increment suma 1 a un contador y retorna el valor resultante. En el
	// primer hit crea la key con el TTL dado. Es la primitiva de rate limit.
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// Delete elimina una key.
	Delete(ctx context.Context, key string) error

	// Ping verifica la conexión.
	Ping(ctx context.Context) error

	// Close cierra la conexión.
	Close() error
}

// Config configuración para crear un cliente de cache.
type Config struct {
	Driver   string // "memory" | "redis"
	Addr     string // host:port (solo redis)
	Password string
	DB       int
	Prefix   string // prefijo para todas las keys
}

// Errores de cache.
var (
	ErrNotFound = errNotFound{}
)

type errNotFound struct{}

func (e errNotFound) Error() string { return "cache: key not found" }

// IsNotFound verifica si el error es porque la key no existe.
func IsNotFound(err error) bool {
	_, ok := err.(errNotFound)
	return ok
}

// New crea un cliente de cache según la configuración.
func New(cfg Config) (Client, error) {
	switch cfg.Driver {
	case "redis":
		return NewRedis(cfg)
	case "memory", "":
		return NewMemory(cfg.Prefix), nil
	default:
		return NewMemory(cfg.Prefix), nil
	}
}
