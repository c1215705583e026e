package entityconfig

import (
	"fmt"

	"github.com/pitabwire/entityconfig/model"
)

// EntitySource looks up entity definitions by class name.
type EntitySource interface {
	GetEntity(className string) (model.EntityDefinition, bool)
	Classes() []string
}

// ScopeProvider serves the configurations of a single scope. Every known
// entity and field has a configuration in every scope, possibly empty.
type ScopeProvider struct {
	scope  string
	source EntitySource
}

// NewScopeProvider creates a provider for scope over source.
func NewScopeProvider(scope string, source EntitySource) *ScopeProvider {
	return &ScopeProvider{scope: scope, source: source}
}

// Scope returns the scope name.
func (p *ScopeProvider) Scope() string { return p.scope }

// ID builds the ConfigID of className, or of its field when fieldName is not
// empty. The field type is filled in when the field is known.
func (p *ScopeProvider) ID(className, fieldName string) ConfigID {
	id := ConfigID{Scope: p.scope, ClassName: className, FieldName: fieldName}
	if fieldName == "" {
		return id
	}
	if def, ok := p.source.GetEntity(className); ok {
		if f, ok := def.Field(fieldName); ok {
			id.FieldType = f.Type
		}
	}
	return id
}

// HasConfig reports whether className (or its field fieldName) is configurable.
func (p *ScopeProvider) HasConfig(className, fieldName string) bool {
	_, ok := p.lookup(className, fieldName)
	return ok
}

// HasConfigByID is HasConfig for a ConfigID.
func (p *ScopeProvider) HasConfigByID(id ConfigID) bool {
	return p.HasConfig(id.ClassName, id.FieldName)
}

// GetConfig returns the configuration of className or of its field. A
// NOT_FOUND error is returned for unknown entities and fields.
func (p *ScopeProvider) GetConfig(className, fieldName string) (*Config, error) {
	values, ok := p.lookup(className, fieldName)
	if !ok {
		if fieldName != "" {
			return nil, model.NewNotFoundError(fmt.Sprintf("no %s config for field %q of %q", p.scope, fieldName, className))
		}
		return nil, model.NewNotFoundError(fmt.Sprintf("no %s config for %q", p.scope, className))
	}
	return NewConfig(p.ID(className, fieldName), values), nil
}

// GetConfigByID is GetConfig for a ConfigID.
func (p *ScopeProvider) GetConfigByID(id ConfigID) (*Config, error) {
	return p.GetConfig(id.ClassName, id.FieldName)
}

// Configs returns the entity configurations of every known class, ordered by
// class name.
func (p *ScopeProvider) Configs() []*Config {
	classes := p.source.Classes()
	out := make([]*Config, 0, len(classes))
	for _, c := range classes {
		if cfg, err := p.GetConfig(c, ""); err == nil {
			out = append(out, cfg)
		}
	}
	return out
}

func (p *ScopeProvider) lookup(className, fieldName string) (map[string]any, bool) {
	def, ok := p.source.GetEntity(className)
	if !ok {
		return nil, false
	}
	if fieldName == "" {
		return def.Scopes[p.scope], true
	}
	f, ok := def.Field(fieldName)
	if !ok {
		return nil, false
	}
	return f.Scopes[p.scope], true
}
