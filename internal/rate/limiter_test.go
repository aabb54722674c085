package rate

import (
	"context"
	"testing"
	"time"

	"github.com/dropDatabas3/morphcore/internal/cache"
)

func TestFixedWindowAllowsUpToMax(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l := NewFixedWindow(cache.NewMemory("test-rl"), "rl:", 3, time.Hour)

	for i := 1; i <= 3; i++ {
		res, err := l.Allow(ctx, "acme")
		if err != nil {
			t.Fatalf("Allow %d: %v", i, err)
		}
		if !res.Allowed {
			t.Fatalf("hit %d bloqueado, esperaba permitido", i)
		}
	}

	res, err := l.Allow(ctx, "acme")
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if res.Allowed {
		t.Error("cuarto hit permitido, esperaba bloqueado")
	}
	if res.RetryAfter <= 0 {
		t.Errorf("RetryAfter = %v", res.RetryAfter)
	}
}

func TestFixedWindowKeysAreIndependent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l := NewFixedWindow(cache.NewMemory("test-rl2"), "rl:", 1, time.Hour)

	if res, _ := l.Allow(ctx, "acme"); !res.Allowed {
		t.Fatal("primer hit de acme bloqueado")
	}
	if res, _ := l.Allow(ctx, "acme"); res.Allowed {
		t.Fatal("segundo hit de acme permitido")
	}
	if res, _ := l.Allow(ctx, "otro"); !res.Allowed {
		t.Fatal("hit de otro connector bloqueado")
	}
}
