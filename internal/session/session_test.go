package session

import (
	"errors"
	"strings"
	"testing"
	"time"

	merrors "github.com/dropDatabas3/morphcore/internal/errors"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	t.Parallel()
	s, err := NewSigner("super-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}

	tok, err := s.Sign(Claims{
		ConnectorID: "slack",
		OwnerID:     "tenant-1",
		Operations:  []string{"proxy", "subscribe"},
	})
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	got, err := s.Verify(tok)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if got.ConnectorID != "slack" || got.OwnerID != "tenant-1" {
		t.Errorf("claims = %+v", got)
	}
	if len(got.Operations) != 2 || got.Operations[0] != "proxy" {
		t.Errorf("operations = %v", got.Operations)
	}
}

func TestVerifyExpired(t *testing.T) {
	t.Parallel()
	s, err := NewSigner("super-secret", -time.Hour)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	tok, err := s.Sign(Claims{ConnectorID: "slack", OwnerID: "t"})
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	_, err = s.Verify(tok)
	if !errors.Is(err, merrors.ErrSessionExpired) {
		t.Fatalf("Verify expirado: err = %v, esperaba ErrSessionExpired", err)
	}
}

func TestVerifyTampered(t *testing.T) {
	t.Parallel()
	s, _ := NewSigner("super-secret", time.Hour)
	tok, _ := s.Sign(Claims{ConnectorID: "slack", OwnerID: "t"})

	parts := strings.Split(tok, ".")
	parts[2] = strings.Repeat("A", len(parts[2]))
	if _, err := s.Verify(strings.Join(parts, ".")); !errors.Is(err, merrors.ErrSessionExpired) {
		t.Fatalf("Verify manipulado: err = %v", err)
	}
}

func TestVerifyWrongKey(t *testing.T) {
	t.Parallel()
	a, _ := NewSigner("secret-a", time.Hour)
	b, _ := NewSigner("secret-b", time.Hour)
	tok, _ := a.Sign(Claims{ConnectorID: "slack", OwnerID: "t"})
	if _, err := b.Verify(tok); err == nil {
		t.Fatal("Verify con otra key: esperaba error")
	}
}

func TestNearExpiryStillValid(t *testing.T) {
	t.Parallel()
	s, _ := NewSigner("super-secret", 5*time.Second)
	tok, _ := s.Sign(Claims{ConnectorID: "slack", OwnerID: "t"})
	time.Sleep(time.Second)
	if _, err := s.Verify(tok); err != nil {
		t.Fatalf("Verify antes de exp: %v", err)
	}
}

func TestEmptySecretRejected(t *testing.T) {
	t.Parallel()
	if _, err := NewSigner("", time.Hour); err == nil {
		t.Fatal("NewSigner(\"\"): esperaba error")
	}
}
