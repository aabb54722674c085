package mapper

import (
	"fmt"
	"time"
)

// Resource es una instancia del modelo unificado producida por un read.
type Resource struct {
	ID        string         `json:"id"`
	Fields    map[string]any `json:"fields"`
	CreatedAt time.Time      `json:"createdAt,omitempty"`
	UpdatedAt time.Time      `json:"updatedAt,omitempty"`
}

// IDAttribute lee el identificador remoto de un recurso.
type IDAttribute struct {
	Path string
	Read ReadFunc
}

// TimestampAttribute lee createdAt/updatedAt del recurso remoto.
// Acepta RFC3339, epoch segundos y epoch milisegundos.
type TimestampAttribute struct {
	Path string
	Read ReadFunc
}

// ResourceMapper es la configuración declarativa completa para un par
// provider/modelo: id + campos + timestamps.
type ResourceMapper struct {
	Model     string
	ID        IDAttribute
	Fields    map[string]*Field
	CreatedAt TimestampAttribute
	UpdatedAt TimestampAttribute
}

// Read produce una instancia unificada a partir del valor remoto.
// Campos irresolubles se omiten; nunca retorna error por forma de datos.
func (m *ResourceMapper) Read(remote map[string]any) *Resource {
	res := &Resource{Fields: map[string]any{}}

	if v, ok := m.readAttr(m.ID.Path, m.ID.Read, remote, res.Fields); ok {
		res.ID = fmt.Sprint(v)
	}

	for name, f := range m.Fields {
		if v, ok := f.ReadValue(remote, res.Fields); ok {
			res.Fields[name] = v
		}
	}

	if t, ok := m.readTimestamp(m.CreatedAt, remote, res.Fields); ok {
		res.CreatedAt = t
	}
	if t, ok := m.readTimestamp(m.UpdatedAt, remote, res.Fields); ok {
		res.UpdatedAt = t
	}
	return res
}

// Write produce el payload remoto parcial para los campos unificados
// presentes. Campos sin transform de escritura se descartan en silencio:
// es política, no error.
func (m *ResourceMapper) Write(fields map[string]any) map[string]any {
	acc := map[string]any{}
	for name, value := range fields {
		f, ok := m.Fields[name]
		if !ok {
			continue
		}
		out, ok := f.WriteValue(value)
		if !ok {
			continue
		}
		setAtPath(acc, ParsePath(f.Path), out)
	}
	return acc
}

// FilterParams deriva los query params upstream para un set de filtros
// unificados. Filtros sin key nativa se ignoran.
func (m *ResourceMapper) FilterParams(filters map[string]any) map[string]string {
	out := map[string]string{}
	for name, value := range filters {
		f, ok := m.Fields[name]
		if !ok {
			continue
		}
		if kv, ok := f.BuildFilter(value); ok {
			for k, v := range kv {
				out[k] = v
			}
		}
	}
	return out
}

// Validate chequea todos los paths declarados. Se corre al registrar el
// connector; un mapper inválido es un error de integración y aborta temprano.
func (m *ResourceMapper) Validate() error {
	if m.Model == "" {
		return fmt.Errorf("mapper sin model")
	}
	if m.ID.Path == "" && m.ID.Read == nil {
		return fmt.Errorf("mapper %s: id attribute sin path ni read", m.Model)
	}
	for name, f := range m.Fields {
		if f == nil {
			return fmt.Errorf("mapper %s: field %q nil", m.Model, name)
		}
		if err := f.Validate(); err != nil {
			return fmt.Errorf("mapper %s: field %q: %w", m.Model, name, err)
		}
	}
	return nil
}

func (m *ResourceMapper) readAttr(path string, fn ReadFunc, remote map[string]any, siblings map[string]any) (any, bool) {
	resolved, ok := Resolve(any(remote), path)
	if fn == nil {
		return resolved, ok
	}
	if !ok {
		resolved = nil
	}
	return fn(ReadCtx{Value: resolved, Remote: remote, Fields: siblings})
}

func (m *ResourceMapper) readTimestamp(attr TimestampAttribute, remote map[string]any, siblings map[string]any) (time.Time, bool) {
	if attr.Path == "" && attr.Read == nil {
		return time.Time{}, false
	}
	v, ok := m.readAttr(attr.Path, attr.Read, remote, siblings)
	if !ok {
		return time.Time{}, false
	}
	return coerceTime(v)
}

// coerceTime interpreta los formatos de timestamp más comunes entre providers.
func coerceTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		if ts, err := time.Parse(time.RFC3339, t); err == nil {
			return ts, true
		}
		if ts, err := time.Parse("2006-01-02 15:04:05", t); err == nil {
			return ts, true
		}
		return time.Time{}, false
	case float64:
		return epochToTime(int64(t)), true
	case int64:
		return epochToTime(t), true
	case int:
		return epochToTime(int64(t)), true
	}
	return time.Time{}, false
}

func epochToTime(n int64) time.Time {
	// >1e12 es epoch en milisegundos
	if n > 1_000_000_000_000 {
		return time.UnixMilli(n).UTC()
	}
	return time.Unix(n, 0).UTC()
}
