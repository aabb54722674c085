package util

// MaskToken acorta un secreto para logs: deja los primeros y últimos cuatro
// caracteres. Nunca loguear tokens completos.
func MaskToken(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "…" + s[len(s)-4:]
}
