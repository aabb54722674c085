package cryptobox

import (
	"fmt"
	"strings"
)

// SecretKeyFunc decide si una key de JSON marca contenido secreto.
// Es un parámetro explícito de Encrypt/DecryptJSON para que el criterio no
// quede implícito en la forma de los datos.
type SecretKeyFunc func(key string) bool

// PrefixSecretKey es el predicado por convención: keys que empiezan con "_".
func PrefixSecretKey(key string) bool {
	return strings.HasPrefix(key, "_")
}

// EncryptJSON recorre un objeto JSON y cifra cada hoja string cuya key (o la
// de un ancestro) sea secreta según isSecret. El resto pasa sin cambios.
// Si isSecret es nil usa PrefixSecretKey.
func (b *Box) EncryptJSON(obj map[string]any, isSecret SecretKeyFunc) (map[string]any, error) {
	if isSecret == nil {
		isSecret = PrefixSecretKey
	}
	out, err := b.walk(obj, isSecret, false, b.EncryptValue)
	if err != nil {
		return nil, err
	}
	m, _ := out.(map[string]any)
	return m, nil
}

// DecryptJSON es el espejo estructural de EncryptJSON. Tolera hojas en
// plaintext (ver DecryptValue), así descifrar dos veces no rompe nada.
func (b *Box) DecryptJSON(obj map[string]any, isSecret SecretKeyFunc) (map[string]any, error) {
	if isSecret == nil {
		isSecret = PrefixSecretKey
	}
	out, err := b.walk(obj, isSecret, false, b.DecryptValue)
	if err != nil {
		return nil, err
	}
	m, _ := out.(map[string]any)
	return m, nil
}

// walk aplica fn a cada hoja string alcanzable bajo una key secreta.
// inSecret indica que ya pasamos por un ancestro secreto.
func (b *Box) walk(v any, isSecret SecretKeyFunc, inSecret bool, fn func(string) (string, error)) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			res, err := b.walk(child, isSecret, inSecret || isSecret(k), fn)
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			out[k] = res
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			res, err := b.walk(child, isSecret, inSecret, fn)
			if err != nil {
				return nil, err
			}
			out[i] = res
		}
		return out, nil
	case string:
		if !inSecret {
			return t, nil
		}
		return fn(t)
	default:
		// números, bools, null: nunca se cifran
		return v, nil
	}
}
