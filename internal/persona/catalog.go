// Package persona serves the narrator catalogue: the built-in personas plus
// custom ones kept in the job store.
package persona

import (
	"context"
	"errors"
	"fmt"

	"github.com/cuongbtq/lecturecast/internal/domain"
	"github.com/cuongbtq/lecturecast/internal/jobstore"
)

// Catalog resolves persona ids
type Catalog struct {
	store jobstore.PersonaStore
}

// NewCatalog creates a Catalog backed by store
func NewCatalog(store jobstore.PersonaStore) *Catalog {
	return &Catalog{store: store}
}

// List returns built-in personas followed by custom ones
func (c *Catalog) List(ctx context.Context) ([]domain.Persona, error) {
	personas := domain.BuiltInPersonas()
	custom, err := c.store.ListPersonas(ctx)
	if err != nil {
		return nil, err
	}
	return append(personas, custom...), nil
}

// Get returns a persona by id
func (c *Catalog) Get(ctx context.Context, id string) (domain.Persona, error) {
	if p, ok := domain.BuiltInPersona(id); ok {
		return p, nil
	}
	return c.store.GetPersona(ctx, id)
}

// Resolve is Get with a fallback to the default persona for empty or unknown ids
func (c *Catalog) Resolve(ctx context.Context, id string) (domain.Persona, error) {
	if id == "" {
		id = domain.DefaultPersonaID
	}
	p, err := c.Get(ctx, id)
	if errors.Is(err, domain.ErrPersonaNotFound) {
		p, _ = domain.BuiltInPersona(domain.DefaultPersonaID)
		return p, nil
	}
	return p, err
}

// Put validates and stores a custom persona
func (c *Catalog) Put(ctx context.Context, p domain.Persona) (domain.Persona, error) {
	if _, ok := domain.BuiltInPersona(p.ID); ok {
		return domain.Persona{}, domain.ErrPersonaReadOnly
	}
	p.BuiltIn = false
	if p.Voice.SpeakingRate == 0 {
		p.Voice.SpeakingRate = 1.0
	}
	if p.Script == (domain.ScriptConfig{}) {
		p.Script = domain.DefaultScriptConfig()
	}
	if err := p.Validate(); err != nil {
		return domain.Persona{}, fmt.Errorf("%w: %v", domain.ErrInvalidPersona, err)
	}
	if err := c.store.PutPersona(ctx, p); err != nil {
		return domain.Persona{}, err
	}
	return p, nil
}

// Delete removes a custom persona
func (c *Catalog) Delete(ctx context.Context, id string) error {
	if _, ok := domain.BuiltInPersona(id); ok {
		return domain.ErrPersonaReadOnly
	}
	return c.store.DeletePersona(ctx, id)
}
