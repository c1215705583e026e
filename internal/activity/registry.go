package activity

import (
	"slices"

	"github.com/pitabwire/entityconfig/internal/entityconfig"
)

// Registry holds the activity providers in registration order.
type Registry struct {
	manager   ConfigManager
	providers []Provider
}

// NewRegistry creates a registry answering target checks with manager.
func NewRegistry(manager ConfigManager, providers ...Provider) *Registry {
	return &Registry{manager: manager, providers: slices.Clone(providers)}
}

// Providers returns all providers.
func (r *Registry) Providers() []Provider { return slices.Clone(r.providers) }

// ProviderFor returns the first provider that handles entityOrClass.
func (r *Registry) ProviderFor(entityOrClass any) (Provider, bool) {
	for _, p := range r.providers {
		if p.IsApplicable(entityOrClass) {
			return p, true
		}
	}
	return nil, false
}

// ApplicableActivities returns the providers whose activities can be attached
// to className.
func (r *Registry) ApplicableActivities(className string) []Provider {
	id := entityconfig.ConfigID{Scope: ScopeActivity, ClassName: className}
	var out []Provider
	for _, p := range r.providers {
		if p.IsApplicableTarget(id, r.manager) {
			out = append(out, p)
		}
	}
	return out
}
