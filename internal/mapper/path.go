// Package mapper implementa el motor de transformación bidireccional entre el
// modelo unificado de recursos y la forma JSON nativa de cada provider.
//
// El motor es puro: sin red, sin storage, sin estado mutable. Ante datos con
// forma inesperada omite el campo en vez de fallar.
package mapper

import (
	"strconv"
	"strings"
)

// Wildcard es el path que representa "el objeto remoto entero".
const Wildcard = "*"

// SegmentKind clasifica un segmento de path.
type SegmentKind int

const (
	// SegmentKey indexa un objeto por nombre.
	SegmentKey SegmentKind = iota
	// SegmentIndex indexa un array por posición (segmento puramente numérico).
	SegmentIndex
	// SegmentWildcard ("*") matchea el valor actual completo.
	SegmentWildcard
)

// Segment es un segmento parseado de un path tipo "values.name.0.value".
type Segment struct {
	Kind  SegmentKind
	Key   string
	Index int
}

// ParsePath tokeniza un path separado por puntos. Un segmento puramente
// numérico direcciona un índice de array; el literal "*" matchea todo el valor.
func ParsePath(path string) []Segment {
	if path == "" {
		return nil
	}
	parts := strings.Split(path, ".")
	segs := make([]Segment, 0, len(parts))
	for _, p := range parts {
		if p == Wildcard {
			segs = append(segs, Segment{Kind: SegmentWildcard})
			continue
		}
		if idx, err := strconv.Atoi(p); err == nil && idx >= 0 {
			segs = append(segs, Segment{Kind: SegmentIndex, Index: idx})
			continue
		}
		segs = append(segs, Segment{Kind: SegmentKey, Key: p})
	}
	return segs
}

// Resolve desciende depth-first por value siguiendo path. Retorna (nil, false)
// si cualquier segmento intermedio falta; nunca paniquea.
func Resolve(value any, path string) (any, bool) {
	return resolveSegments(value, ParsePath(path))
}

func resolveSegments(value any, segs []Segment) (any, bool) {
	cur := value
	for _, s := range segs {
		switch s.Kind {
		case SegmentWildcard:
			// "*" matchea el valor actual completo
			continue
		case SegmentKey:
			m, ok := cur.(map[string]any)
			if !ok {
				return nil, false
			}
			v, ok := m[s.Key]
			if !ok {
				return nil, false
			}
			cur = v
		case SegmentIndex:
			arr, ok := cur.([]any)
			if !ok || s.Index >= len(arr) {
				return nil, false
			}
			cur = arr[s.Index]
		}
	}
	if cur == nil {
		return nil, false
	}
	return cur, true
}

// setAtPath inserta value en acc siguiendo segs. Crea objetos intermedios y
// crea/extiende arrays para segmentos numéricos. Con path wildcard, value (si
// es objeto) se mergea en la raíz del accumulator.
func setAtPath(acc map[string]any, segs []Segment, value any) {
	if len(segs) == 0 {
		return
	}
	setSegments(acc, segs, value)
}

// setSegments retorna el contenedor (posiblemente nuevo) con value aplicado.
func setSegments(cur any, segs []Segment, value any) any {
	if len(segs) == 0 {
		return value
	}
	s := segs[0]
	switch s.Kind {
	case SegmentKey:
		m, ok := cur.(map[string]any)
		if !ok {
			m = map[string]any{}
		}
		if len(segs) == 1 {
			if dv, ok2 := m[s.Key].(map[string]any); ok2 {
				if sv, ok3 := value.(map[string]any); ok3 {
					deepMerge(dv, sv)
					return m
				}
			}
			m[s.Key] = value
			return m
		}
		m[s.Key] = setSegments(m[s.Key], segs[1:], value)
		return m
	case SegmentIndex:
		arr, _ := cur.([]any)
		for len(arr) <= s.Index {
			arr = append(arr, nil)
		}
		if len(segs) == 1 {
			arr[s.Index] = value
			return arr
		}
		arr[s.Index] = setSegments(arr[s.Index], segs[1:], value)
		return arr
	case SegmentWildcard:
		if len(segs) > 1 {
			return setSegments(cur, segs[1:], value)
		}
		if m, ok := cur.(map[string]any); ok {
			if sv, ok2 := value.(map[string]any); ok2 {
				deepMerge(m, sv)
				return m
			}
		}
		return value
	}
	return cur
}

// deepMerge mergea src dentro de dst recursivamente; los escalares de src
// pisan los de dst.
func deepMerge(dst, src map[string]any) {
	for k, v := range src {
		if sv, ok := v.(map[string]any); ok {
			if dv, ok2 := dst[k].(map[string]any); ok2 {
				deepMerge(dv, sv)
				continue
			}
		}
		dst[k] = v
	}
}
