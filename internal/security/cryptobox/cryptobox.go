// Package cryptobox implementa el cifrado selectivo de campos JSON.
//
// Cada valor cifrado es AES-256-GCM con IV aleatorio, serializado como
// ivHex:authTagHex:cipherHex. La clave se deriva del secret configurado vía
// HKDF-SHA256, así un solo secret alcanza para todo el runtime.
package cryptobox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	keyLength    = 32 // AES-256
	tagLength    = 16 // GCM auth tag
	DefaultIVLen = 16
	sep          = ":"
)

// Box cifra y descifra valores con una clave derivada de un secret.
type Box struct {
	key   []byte
	ivLen int
}

// New deriva la clave del secret y retorna un Box listo para usar.
// ivLen <= 0 usa DefaultIVLen.
func New(secret string, ivLen int) (*Box, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("cryptobox: secret vacío")
	}
	if ivLen <= 0 {
		ivLen = DefaultIVLen
	}
	key := make([]byte, keyLength)
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte("morphcore/cryptobox"))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("cryptobox: derivar clave: %w", err)
	}
	return &Box{key: key, ivLen: ivLen}, nil
}

// EncryptValue cifra un string y devuelve ivHex:authTagHex:cipherHex.
func (b *Box) EncryptValue(plain string) (string, error) {
	block, err := aes.NewCipher(b.key)
	if err != nil {
		return "", fmt.Errorf("aes.NewCipher: %w", err)
	}
	aesgcm, err := cipher.NewGCMWithNonceSize(block, b.ivLen)
	if err != nil {
		return "", fmt.Errorf("cipher.NewGCM: %w", err)
	}

	iv := make([]byte, b.ivLen)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("iv random: %w", err)
	}

	sealed := aesgcm.Seal(nil, iv, []byte(plain), nil)
	// Seal devuelve ciphertext||tag; el formato de wire separa el tag.
	ct := sealed[:len(sealed)-tagLength]
	tag := sealed[len(sealed)-tagLength:]

	return hex.EncodeToString(iv) + sep + hex.EncodeToString(tag) + sep + hex.EncodeToString(ct), nil
}

// DecryptValue descifra ivHex:authTagHex:cipherHex. Si el valor no tiene pinta
// de estar cifrado (heurística por segmentos) lo devuelve tal cual: eso hace
// seguras las llamadas repetidas a decrypt sobre el mismo blob.
func (b *Box) DecryptValue(value string) (string, error) {
	if !b.LooksEncrypted(value) {
		return value, nil
	}
	parts := strings.Split(value, sep)

	iv, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("decode iv: %w", err)
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("decode tag: %w", err)
	}
	ct, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	block, err := aes.NewCipher(b.key)
	if err != nil {
		return "", fmt.Errorf("aes.NewCipher: %w", err)
	}
	aesgcm, err := cipher.NewGCMWithNonceSize(block, b.ivLen)
	if err != nil {
		return "", fmt.Errorf("cipher.NewGCM: %w", err)
	}

	pt, err := aesgcm.Open(nil, iv, append(ct, tag...), nil)
	if err != nil {
		return "", fmt.Errorf("gcm auth/decrypt: %w", err)
	}
	return string(pt), nil
}

// LooksEncrypted aplica la heurística de formato: tres segmentos hex, el
// primero con la longitud exacta del IV y el segundo con la del auth tag.
func (b *Box) LooksEncrypted(value string) bool {
	parts := strings.Split(value, sep)
	if len(parts) != 3 {
		return false
	}
	if len(parts[0]) != b.ivLen*2 || len(parts[1]) != tagLength*2 {
		return false
	}
	for _, p := range parts {
		if _, err := hex.DecodeString(p); err != nil {
			return false
		}
	}
	return true
}

// EncryptPayload serializa un valor como JSON y cifra el blob completo.
// Usado para el parámetro `state` del flujo OAuth.
func (b *Box) EncryptPayload(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	return b.EncryptValue(string(raw))
}

// DecryptPayload descifra un blob producido por EncryptPayload.
func (b *Box) DecryptPayload(value string, out any) error {
	raw, err := b.DecryptValue(value)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	return nil
}
