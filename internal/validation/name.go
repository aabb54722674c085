package validation

import "regexp"

// Reglas para ids de connector, models y triggers:
// - Solo minúsculas.
// - Empieza y termina con [a-z0-9].
// - En el medio admite [a-z0-9_.-].
// - Largo 1..64.
// - Sin ":" — el separador de eventos es "::" y no puede aparecer dentro de
//   un nombre.
//
// Válidos: acme, contact, message-v2, crm.deal
// Inválidos: Acme, -lead, trail-, "con tacto", a::b, "".
var nameRe = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9_.-]{0,62}[a-z0-9])?$`)

// ValidName reporta si el nombre cumple el patrón permitido.
func ValidName(name string) bool {
	return nameRe.MatchString(name)
}
