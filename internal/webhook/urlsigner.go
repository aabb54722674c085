// Package webhook implementa subscribe/unsubscribe contra los providers y el
// router de requests entrantes hacia los listeners registrados.
package webhook

import (
	"crypto/sha256"
	"fmt"
	"io"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"

	merrors "github.com/dropDatabas3/morphcore/internal/errors"
)

// Binding identifica qué conexión y evento atiende una callback URL firmada.
type Binding struct {
	ConnectorID string
	OwnerID     string
	Model       string
	Trigger     string
}

// URLSigner firma los tokens que viajan en las callback URLs de la estrategia
// subscription. Sin exp: la URL vive lo que viva la suscripción del provider.
type URLSigner struct {
	key []byte
}

// NewURLSigner deriva la signing key del secret maestro con info propia.
func NewURLSigner(secret string) (*URLSigner, error) {
	if secret == "" {
		return nil, fmt.Errorf("webhook: secret vacío")
	}
	key := make([]byte, 32)
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte("morphcore/webhook-callback"))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("webhook: derivar key: %w", err)
	}
	return &URLSigner{key: key}, nil
}

// Sign emite el token de una callback URL.
func (s *URLSigner) Sign(b Binding) (string, error) {
	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, jwtv5.MapClaims{
		"cid":     b.ConnectorID,
		"oid":     b.OwnerID,
		"model":   b.Model,
		"trigger": b.Trigger,
	})
	signed, err := tk.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("webhook: firmar token: %w", err)
	}
	return signed, nil
}

// Verify valida el token de una request entrante. Cualquier token inválido es
// CONNECTOR::WEBHOOK::VALIDATION_FAILED.
func (s *URLSigner) Verify(token string) (*Binding, error) {
	tok, err := jwtv5.Parse(token, func(t *jwtv5.Token) (any, error) {
		return s.key, nil
	}, jwtv5.WithValidMethods([]string{"HS256"}))
	if err != nil || !tok.Valid {
		return nil, merrors.ErrWebhookValidationFailed.WithCause(err)
	}
	claims, ok := tok.Claims.(jwtv5.MapClaims)
	if !ok {
		return nil, merrors.ErrWebhookValidationFailed
	}
	b := &Binding{}
	b.ConnectorID, _ = claims["cid"].(string)
	b.OwnerID, _ = claims["oid"].(string)
	b.Model, _ = claims["model"].(string)
	b.Trigger, _ = claims["trigger"].(string)
	if b.ConnectorID == "" || b.OwnerID == "" || b.Model == "" || b.Trigger == "" {
		return nil, merrors.ErrWebhookValidationFailed
	}
	return b, nil
}
