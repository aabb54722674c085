package cryptobox

import (
	"strings"
	"testing"
)

func newTestBox(t *testing.T) *Box {
	t.Helper()
	b, err := New("unit-test-secret", 0)
	if err != nil {
		t.Fatalf("New err: %v", err)
	}
	return b
}

func TestEncryptDecryptValue_RoundTrip(t *testing.T) {
	t.Parallel()
	b := newTestBox(t)

	for _, msg := range []string{"", "x", "hola mundo ✓ — secreto", strings.Repeat("a", 4096)} {
		ct, err := b.EncryptValue(msg)
		if err != nil {
			t.Fatalf("EncryptValue err: %v", err)
		}
		if parts := strings.Split(ct, ":"); len(parts) != 3 {
			t.Fatalf("formato inesperado: %q", ct)
		}
		pt, err := b.DecryptValue(ct)
		if err != nil {
			t.Fatalf("DecryptValue err: %v", err)
		}
		if pt != msg {
			t.Fatalf("plaintext mismatch: got %q want %q", pt, msg)
		}
	}
}

func TestDecryptValue_ToleratesPlaintext(t *testing.T) {
	t.Parallel()
	b := newTestBox(t)

	plains := []string{"hola", "a:b:c", "12:34:not-hex", ""}
	for _, p := range plains {
		got, err := b.DecryptValue(p)
		if err != nil {
			t.Fatalf("DecryptValue(%q) err: %v", p, err)
		}
		if got != p {
			t.Fatalf("plaintext alterado: got %q want %q", got, p)
		}
	}
}

func TestDecryptValue_Idempotent(t *testing.T) {
	t.Parallel()
	b := newTestBox(t)

	ct, err := b.EncryptValue("secreto")
	if err != nil {
		t.Fatal(err)
	}
	once, err := b.DecryptValue(ct)
	if err != nil {
		t.Fatal(err)
	}
	twice, err := b.DecryptValue(once)
	if err != nil {
		t.Fatalf("segundo decrypt err: %v", err)
	}
	if twice != "secreto" {
		t.Fatalf("got %q", twice)
	}
}

func TestDecryptValue_DetectsTamper(t *testing.T) {
	t.Parallel()
	b := newTestBox(t)

	ct, err := b.EncryptValue("top secret")
	if err != nil {
		t.Fatal(err)
	}
	parts := strings.Split(ct, ":")
	// flip de un nibble del ciphertext
	last := parts[2]
	var flipped byte = 'a'
	if last[0] == 'a' {
		flipped = 'b'
	}
	parts[2] = string(flipped) + last[1:]
	if _, err := b.DecryptValue(strings.Join(parts, ":")); err == nil {
		t.Fatalf("expected auth error, got nil")
	}
}

func TestEncryptJSON_SelectivePrefix(t *testing.T) {
	t.Parallel()
	b := newTestBox(t)

	obj := map[string]any{
		"scopes": []any{"read", "write"},
		"settings": map[string]any{
			"region": "eu",
		},
		"_oauth": map[string]any{
			"accessToken":  "tok-123",
			"refreshToken": "ref-456",
			"expiresAt":    "2026-01-02T15:04:05Z",
		},
		"_apiKey": "plain-key",
		"count":   float64(3),
	}

	enc, err := b.EncryptJSON(obj, nil)
	if err != nil {
		t.Fatalf("EncryptJSON err: %v", err)
	}

	// no-secretos pasan intactos
	if enc["settings"].(map[string]any)["region"] != "eu" {
		t.Fatalf("settings.region alterado")
	}
	if enc["count"] != float64(3) {
		t.Fatalf("count alterado")
	}

	// hojas bajo ancestro "_" quedan cifradas
	oauth := enc["_oauth"].(map[string]any)
	for _, k := range []string{"accessToken", "refreshToken", "expiresAt"} {
		v := oauth[k].(string)
		if !b.LooksEncrypted(v) {
			t.Fatalf("esperaba %s cifrado, got %q", k, v)
		}
	}
	if v := enc["_apiKey"].(string); !b.LooksEncrypted(v) {
		t.Fatalf("esperaba _apiKey cifrado, got %q", v)
	}

	dec, err := b.DecryptJSON(enc, nil)
	if err != nil {
		t.Fatalf("DecryptJSON err: %v", err)
	}
	if dec["_oauth"].(map[string]any)["accessToken"] != "tok-123" {
		t.Fatalf("round trip roto: %v", dec["_oauth"])
	}
	if dec["_apiKey"] != "plain-key" {
		t.Fatalf("round trip roto: %v", dec["_apiKey"])
	}
}

func TestEncryptJSON_ExplicitPredicate(t *testing.T) {
	t.Parallel()
	b := newTestBox(t)

	obj := map[string]any{"token": "abc", "name": "ada"}
	enc, err := b.EncryptJSON(obj, func(k string) bool { return k == "token" })
	if err != nil {
		t.Fatal(err)
	}
	if !b.LooksEncrypted(enc["token"].(string)) {
		t.Fatalf("token debería estar cifrado")
	}
	if enc["name"] != "ada" {
		t.Fatalf("name no debería tocarse")
	}
}

func TestEncryptPayload_RoundTrip(t *testing.T) {
	t.Parallel()
	b := newTestBox(t)

	in := map[string]any{"connectorId": "democrm", "ownerId": "tenant-1"}
	blob, err := b.EncryptPayload(in)
	if err != nil {
		t.Fatal(err)
	}
	var out map[string]any
	if err := b.DecryptPayload(blob, &out); err != nil {
		t.Fatal(err)
	}
	if out["connectorId"] != "democrm" || out["ownerId"] != "tenant-1" {
		t.Fatalf("payload mismatch: %v", out)
	}
}

func TestNew_RejectsEmptySecret(t *testing.T) {
	t.Parallel()
	if _, err := New("  ", 0); err == nil {
		t.Fatalf("expected error con secret vacío")
	}
}
