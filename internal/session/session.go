// Package session emite y verifica los session tokens que autorizan a un
// frontend a operar una conexión (proxy, subscribe) sin exponer credenciales.
package session

import (
	"crypto/sha256"
	"fmt"
	"io"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"

	merrors "github.com/dropDatabas3/morphcore/internal/errors"
)

// DefaultTTL es la vigencia de un session token si no se configura otra.
const DefaultTTL = 30 * time.Minute

// Claims es el contenido de un session token.
type Claims struct {
	ConnectorID string
	OwnerID     string
	Operations  []string
}

// Signer firma y verifica session tokens con HMAC-SHA256. La key se deriva
// del secret maestro con HKDF, con info propia para no compartir key con el
// cifrado de datos.
type Signer struct {
	key []byte
	ttl time.Duration
}

// NewSigner deriva la signing key del secret maestro.
func NewSigner(secret string, ttl time.Duration) (*Signer, error) {
	if secret == "" {
		return nil, fmt.Errorf("session: secret vacío")
	}
	if ttl == 0 {
		ttl = DefaultTTL
	}
	key := make([]byte, 32)
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte("morphcore/session-signing"))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("session: derivar key: %w", err)
	}
	return &Signer{key: key, ttl: ttl}, nil
}

// Sign emite un token para la conexión dada. jti permite revocación futura.
func (s *Signer) Sign(c Claims) (string, error) {
	now := time.Now().UTC()
	claims := jwtv5.MapClaims{
		"connectorId": c.ConnectorID,
		"ownerId":     c.OwnerID,
		"operations":  c.Operations,
		"jti":         uuid.NewString(),
		"iat":         now.Unix(),
		"nbf":         now.Unix(),
		"exp":         now.Add(s.ttl).Unix(),
	}
	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims)
	signed, err := tk.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("session: firmar: %w", err)
	}
	return signed, nil
}

// Verify valida firma y vigencia. Cualquier token inválido o vencido retorna
// ErrSessionExpired: el cliente debe crear una sesión nueva en ambos casos.
func (s *Signer) Verify(token string) (*Claims, error) {
	tok, err := jwtv5.Parse(token, func(t *jwtv5.Token) (any, error) {
		return s.key, nil
	}, jwtv5.WithValidMethods([]string{"HS256"}))
	if err != nil || !tok.Valid {
		return nil, merrors.ErrSessionExpired.WithCause(err)
	}
	claims, ok := tok.Claims.(jwtv5.MapClaims)
	if !ok {
		return nil, merrors.ErrSessionExpired
	}

	out := &Claims{}
	out.ConnectorID, _ = claims["connectorId"].(string)
	out.OwnerID, _ = claims["ownerId"].(string)
	if raw, ok := claims["operations"].([]any); ok {
		for _, v := range raw {
			if s, ok := v.(string); ok {
				out.Operations = append(out.Operations, s)
			}
		}
	}
	if out.ConnectorID == "" || out.OwnerID == "" {
		return nil, merrors.ErrSessionExpired
	}
	return out, nil
}
