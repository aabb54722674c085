package mapper

import (
	"fmt"
)

// ReadCtx es el contexto que recibe un transform de lectura.
type ReadCtx struct {
	// Value es el valor resuelto en el path del campo (nil si no existe).
	Value any
	// Remote es el objeto remoto completo, para composición cross-field
	// (ej: derivar type+format de un único enum del provider).
	Remote map[string]any
	// Fields contiene los campos unificados ya leídos del mismo recurso.
	Fields map[string]any
}

// ReadFunc transforma un valor remoto resuelto en su forma unificada.
// Retorna (v, false) para omitir el campo.
type ReadFunc func(ReadCtx) (any, bool)

// WriteFunc transforma un valor unificado en el valor remoto que se mergea en
// el path del campo. Retorna (v, false) para omitir.
type WriteFunc func(value any) (any, bool)

// Field describe cómo un campo unificado se lee y escribe contra la forma
// remota del provider. Las instancias son configuración declarativa sin estado:
// una sola se comparte entre todas las conexiones de un par provider/modelo.
type Field struct {
	// Path dentro del objeto remoto. Segmentos numéricos indexan arrays;
	// "*" entrega el objeto remoto completo al transform.
	Path string

	// Read transforma el valor resuelto. Si es nil, el valor resuelto pasa
	// tal cual.
	Read ReadFunc

	// Write transforma el valor unificado para el payload remoto. Si es nil
	// el campo es read-only y se omite silenciosamente de los writes.
	Write WriteFunc

	// FilterKey es la query key nativa del provider para filtrar por este
	// campo en un list. Vacío = el campo no es filtrable server-side.
	FilterKey string
}

// ReadValue resuelve el path del campo contra remote y aplica Read.
func (f *Field) ReadValue(remote map[string]any, siblings map[string]any) (any, bool) {
	resolved, ok := Resolve(any(remote), f.Path)
	if f.Read == nil {
		return resolved, ok
	}
	if !ok {
		resolved = nil
	}
	return f.Read(ReadCtx{Value: resolved, Remote: remote, Fields: siblings})
}

// WriteValue aplica Write. Campos sin Write son read-only: (nil, false).
func (f *Field) WriteValue(value any) (any, bool) {
	if f.Write == nil {
		return nil, false
	}
	return f.Write(value)
}

// Writable indica si el campo participa de payloads de escritura.
func (f *Field) Writable() bool {
	return f.Write != nil
}

// BuildFilter produce el mapa de query params de una sola entrada que un list
// debe mandar upstream para filtrar por este campo. Desacopla el vocabulario
// unificado de filtros de la query key nativa del provider.
func (f *Field) BuildFilter(value any) (map[string]string, bool) {
	if f.FilterKey == "" {
		return nil, false
	}
	return map[string]string{f.FilterKey: fmt.Sprint(value)}, true
}

// Validate verifica que el path del campo parsee. Se corre una vez al
// registrar el connector; un path vacío sin wildcard es un error de
// integración, no una condición de runtime.
func (f *Field) Validate() error {
	if f.Path == "" {
		return fmt.Errorf("field sin path")
	}
	segs := ParsePath(f.Path)
	// La raíz del objeto remoto siempre es un objeto: un path que arranca en
	// un índice no puede resolverse ni escribirse nunca.
	if segs[0].Kind == SegmentIndex {
		return fmt.Errorf("path %q arranca en un índice de array", f.Path)
	}
	for i, s := range segs {
		if s.Kind == SegmentWildcard && len(segs) > 1 {
			return fmt.Errorf("wildcard en path compuesto %q (segmento %d)", f.Path, i)
		}
		if s.Kind == SegmentKey && s.Key == "" {
			return fmt.Errorf("segmento vacío en path %q", f.Path)
		}
	}
	return nil
}
