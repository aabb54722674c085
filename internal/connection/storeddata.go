package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dropDatabas3/morphcore/internal/adapter"
	merrors "github.com/dropDatabas3/morphcore/internal/errors"
)

// StoredOAuth son los tokens vivos de la conexión. Viaja bajo la key "_oauth"
// para que el cifrado selectivo cubra todas sus hojas.
type StoredOAuth struct {
	AccessToken  string `json:"accessToken,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
	// ExpiresAt en RFC3339; vacío si el provider no reporta expiración.
	ExpiresAt string `json:"expiresAt,omitempty"`
}

// ExpiryTime parsea ExpiresAt; zero time si está vacío o malformado.
func (o *StoredOAuth) ExpiryTime() time.Time {
	if o == nil || o.ExpiresAt == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, o.ExpiresAt)
	if err != nil {
		return time.Time{}
	}
	return t
}

// StoredData es el blob de authorizationData ya descifrado.
type StoredData struct {
	Scopes   []string          `json:"scopes,omitempty"`
	Settings map[string]string `json:"settings,omitempty"`
	OAuth    *StoredOAuth      `json:"_oauth,omitempty"`
}

// encodeStored cifra las hojas secretas y serializa el blob.
func (c *Client) encodeStored(d *StoredData) (string, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("marshal stored data: %w", err)
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", fmt.Errorf("reshape stored data: %w", err)
	}
	enc, err := c.box.EncryptJSON(obj, nil)
	if err != nil {
		return "", err
	}
	out, err := json.Marshal(enc)
	if err != nil {
		return "", fmt.Errorf("marshal encrypted data: %w", err)
	}
	return string(out), nil
}

// decodeStored descifra el blob persistido. Un blob vacío es un StoredData
// vacío, no un error.
func (c *Client) decodeStored(blob string) (*StoredData, error) {
	if blob == "" {
		return &StoredData{}, nil
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(blob), &obj); err != nil {
		return nil, fmt.Errorf("unmarshal stored data: %w", err)
	}
	dec, err := c.box.DecryptJSON(obj, nil)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(dec)
	if err != nil {
		return nil, fmt.Errorf("marshal decrypted data: %w", err)
	}
	var out StoredData
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("reshape decrypted data: %w", err)
	}
	return &out, nil
}

// loadStored lee y descifra el blob de una conexión ya cargada.
func (c *Client) loadStored(conn *adapter.Connection) (*StoredData, error) {
	return c.decodeStored(conn.AuthorizationData)
}

// saveStored cifra y persiste el blob, opcionalmente junto a un cambio de
// status (status vacío = no tocar).
func (c *Client) saveStored(ctx context.Context, ids adapter.ConnectionIDs, d *StoredData, status string) (*adapter.Connection, error) {
	blob, err := c.encodeStored(d)
	if err != nil {
		return nil, merrors.ErrConnectionUpdateFailed.WithCause(err)
	}
	upd := adapter.ConnectionUpdate{AuthorizationData: &blob}
	if status != "" {
		upd.Status = &status
	}
	conn, err := c.adapter.UpdateConnection(ctx, ids, upd)
	if err != nil {
		return nil, merrors.ErrConnectionUpdateFailed.WithCause(err)
	}
	if conn == nil {
		return nil, merrors.ErrConnectionNotFound
	}
	return conn, nil
}
