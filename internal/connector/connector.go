// Package connector define el descriptor estático de un provider: auth, proxy,
// capacidades de webhooks y mappers por modelo. Los descriptors son
// configuración — una instancia compartida entre todas las conexiones.
package connector

import (
	"fmt"
	"os"
	"strings"

	merrors "github.com/dropDatabas3/morphcore/internal/errors"
	"github.com/dropDatabas3/morphcore/internal/mapper"
)

// AuthType identifica el esquema de autorización del connector.
type AuthType string

const (
	// AuthTypeOAuth2 es authorization-code OAuth2, el único flujo que el
	// runtime maneja end-to-end hoy.
	AuthTypeOAuth2 AuthType = "oauth2"
)

// SettingField declara un setting de conexión que el connector necesita
// (ej: subdomain, sandbox flag).
type SettingField struct {
	Key      string
	Label    string
	Required bool
	Default  string
}

// Auth describe los endpoints y credenciales OAuth del provider.
type Auth struct {
	Type AuthType

	// Settings son los campos que authorize valida y persiste.
	Settings []SettingField

	// AuthorizeURL y AccessTokenURL son templates dinámicos: pueden depender
	// de settings (ej: subdomain del workspace).
	AuthorizeURL   func(settings map[string]string) string
	AccessTokenURL func(settings map[string]string) string

	DefaultScopes []string

	// ClientID/ClientSecret programáticos. Si están vacíos se usa el
	// fallback por env MORPH_<ID>_CLIENT_ID / MORPH_<ID>_CLIENT_SECRET.
	ClientID     string
	ClientSecret string

	// OnTokenExchange se invoca con la respuesta cruda del token endpoint;
	// permite capturar settings derivados (ej: instance_url de Salesforce).
	// Retorna settings adicionales a mergear en la conexión.
	OnTokenExchange func(token map[string]any) map[string]string
}

// Proxy describe cómo armar la base URL de las llamadas al provider.
type Proxy struct {
	// BaseURL puede depender de settings almacenados (sandbox, instance).
	BaseURL func(settings map[string]string) (string, error)
}

// Connector es el descriptor completo de un provider.
type Connector struct {
	ID   string
	Name string

	Auth  Auth
	Proxy Proxy

	// Webhooks es nil si el provider no soporta webhooks.
	Webhooks *Webhooks

	// Mappers por modelo unificado ("contact", "opportunity", ...).
	Mappers map[string]*mapper.ResourceMapper

	// FieldMappers por modelo, para providers con discovery de custom fields.
	FieldMappers map[string]*mapper.FieldMapper

	// Defaults responde discovery cuando el provider no declara campos.
	Defaults mapper.DefaultFields
}

// ClientCredentials resuelve client_id/client_secret: valor programático o
// fallback por variables de entorno.
func (c *Connector) ClientCredentials() (string, string, error) {
	id := c.Auth.ClientID
	secret := c.Auth.ClientSecret
	envBase := "MORPH_" + strings.ToUpper(strings.ReplaceAll(c.ID, "-", "_"))
	if id == "" {
		id = os.Getenv(envBase + "_CLIENT_ID")
	}
	if secret == "" {
		secret = os.Getenv(envBase + "_CLIENT_SECRET")
	}
	if id == "" || secret == "" {
		return "", "", fmt.Errorf("connector %s: faltan client credentials (%s_CLIENT_ID/_CLIENT_SECRET)", c.ID, envBase)
	}
	return id, secret, nil
}

// ValidateSettings llena defaults y, en modo strict, exige los requeridos.
// El error nombra el setting faltante.
func (c *Connector) ValidateSettings(in map[string]string, strict bool) (map[string]string, error) {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	for _, sf := range c.Auth.Settings {
		if _, ok := out[sf.Key]; ok {
			continue
		}
		if sf.Default != "" {
			out[sf.Key] = sf.Default
			continue
		}
		if sf.Required && strict {
			return nil, merrors.ErrMissingRequiredSetting.WithDetail(sf.Key)
		}
	}
	return out, nil
}

// Scopes combina los scopes default del connector con los pedidos.
func (c *Connector) Scopes(requested []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(c.Auth.DefaultScopes)+len(requested))
	for _, s := range append(append([]string{}, c.Auth.DefaultScopes...), requested...) {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// Mapper retorna el ResourceMapper del modelo o nil.
func (c *Connector) Mapper(model string) *mapper.ResourceMapper {
	return c.Mappers[model]
}
