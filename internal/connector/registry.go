package connector

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dropDatabas3/morphcore/internal/validation"
)

// Registry mantiene los connectors registrados en el proceso. Se construye
// explícitamente y se inyecta en el runtime — no hay singleton.
type Registry struct {
	mu   sync.RWMutex
	byID map[string]*Connector
}

// NewRegistry crea un registry vacío.
func NewRegistry() *Registry {
	return &Registry{byID: map[string]*Connector{}}
}

// Register valida y registra un connector. Un descriptor malformado es un
// error de integración: se reporta acá, nunca en runtime.
func (r *Registry) Register(c *Connector) error {
	if err := validate(c); err != nil {
		return fmt.Errorf("register connector: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[c.ID]; exists {
		return fmt.Errorf("register connector: %q ya registrado", c.ID)
	}
	r.byID[c.ID] = c
	return nil
}

// MustRegister es Register que paniquea; para wiring en main.
func (r *Registry) MustRegister(c *Connector) {
	if err := r.Register(c); err != nil {
		panic(err)
	}
}

// Get retorna el connector o error si no existe.
func (r *Registry) Get(id string) (*Connector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("connector %q no registrado", id)
	}
	return c, nil
}

// IDs retorna los ids registrados, ordenados.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byID))
	for id := range r.byID {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// validate es el pase de validación schema-driven al momento del registro:
// reemplaza la verificación de paths que en otros stacks haría el compilador.
func validate(c *Connector) error {
	if c == nil || c.ID == "" {
		return fmt.Errorf("connector sin id")
	}
	if !validation.ValidName(c.ID) {
		return fmt.Errorf("id %q inválido", c.ID)
	}
	if c.Auth.Type == "" {
		return fmt.Errorf("%s: auth.type vacío", c.ID)
	}
	if c.Auth.Type == AuthTypeOAuth2 {
		if c.Auth.AuthorizeURL == nil || c.Auth.AccessTokenURL == nil {
			return fmt.Errorf("%s: oauth2 requiere AuthorizeURL y AccessTokenURL", c.ID)
		}
	}
	if c.Proxy.BaseURL == nil {
		return fmt.Errorf("%s: proxy.BaseURL nil", c.ID)
	}
	for model, m := range c.Mappers {
		if m == nil {
			return fmt.Errorf("%s: mapper %q nil", c.ID, model)
		}
		if !validation.ValidName(model) {
			return fmt.Errorf("%s: model %q inválido", c.ID, model)
		}
		if err := m.Validate(); err != nil {
			return fmt.Errorf("%s: %w", c.ID, err)
		}
	}
	if w := c.Webhooks; w != nil {
		if w.Subscription != nil {
			if w.Subscription.Subscribe == nil || w.Subscription.Mapper == nil {
				return fmt.Errorf("%s: estrategia subscription incompleta", c.ID)
			}
		}
		for i := range w.Global {
			g := &w.Global[i]
			if g.Subscribe == nil || g.Mapper == nil || len(g.Events) == 0 {
				return fmt.Errorf("%s: ruta global %q incompleta", c.ID, g.Name)
			}
		}
	}
	return nil
}
