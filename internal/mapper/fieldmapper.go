package mapper

// FieldDef describe la definición de un campo (no su valor) en el modelo
// unificado. Es lo que devuelve el discovery de campos de un connector.
type FieldDef struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Type        string `json:"type"`
	Required    bool   `json:"required"`
	ReadOnly    bool   `json:"readOnly"`
	Custom      bool   `json:"custom"`
}

// FieldMapper mapea los objetos "definición de campo" que expone un provider
// con API de custom fields hacia FieldDef unificados. Mismo contrato que
// ResourceMapper pero sobre metadatos: puro y tolerante a forma inesperada.
type FieldMapper struct {
	ID          IDAttribute
	Name        *Field
	Description *Field
	Type        *Field
	Required    *Field
	ReadOnly    *Field
}

// Read produce la definición unificada de un campo remoto.
func (fm *FieldMapper) Read(remote map[string]any) *FieldDef {
	def := &FieldDef{Custom: true}
	siblings := map[string]any{}

	if v, ok := readOptional(fm.ID.Path, fm.ID.Read, remote, siblings); ok {
		def.ID, _ = v.(string)
	}
	if v, ok := readOptionalField(fm.Name, remote, siblings); ok {
		def.Name, _ = v.(string)
	}
	if v, ok := readOptionalField(fm.Description, remote, siblings); ok {
		def.Description, _ = v.(string)
	}
	if v, ok := readOptionalField(fm.Type, remote, siblings); ok {
		def.Type, _ = v.(string)
	}
	if v, ok := readOptionalField(fm.Required, remote, siblings); ok {
		def.Required, _ = v.(bool)
	}
	if v, ok := readOptionalField(fm.ReadOnly, remote, siblings); ok {
		def.ReadOnly, _ = v.(bool)
	}
	return def
}

func readOptional(path string, fn ReadFunc, remote map[string]any, siblings map[string]any) (any, bool) {
	if path == "" && fn == nil {
		return nil, false
	}
	resolved, ok := Resolve(any(remote), path)
	if fn == nil {
		return resolved, ok
	}
	if !ok {
		resolved = nil
	}
	return fn(ReadCtx{Value: resolved, Remote: remote, Fields: siblings})
}

func readOptionalField(f *Field, remote map[string]any, siblings map[string]any) (any, bool) {
	if f == nil {
		return nil, false
	}
	return f.ReadValue(remote, siblings)
}

// DefaultFields es la tabla de campos sintéticos por modelo unificado, usada
// para responder discovery cuando el provider no declara custom fields.
type DefaultFields map[string][]FieldDef

// For retorna las definiciones default del modelo (nil si no hay).
func (d DefaultFields) For(model string) []FieldDef {
	return d[model]
}
