package entityconfig

import (
	"fmt"
	"slices"
)

// Manager groups the scope providers in their configured order.
type Manager struct {
	order     []string
	providers map[string]*ScopeProvider
}

// NewManager creates one provider per scope. Duplicate or empty scope names
// are rejected.
func NewManager(source EntitySource, scopes []string) (*Manager, error) {
	m := &Manager{providers: make(map[string]*ScopeProvider, len(scopes))}
	for _, s := range scopes {
		if s == "" {
			return nil, fmt.Errorf("entityconfig: empty scope name")
		}
		if _, dup := m.providers[s]; dup {
			return nil, fmt.Errorf("entityconfig: duplicate scope %q", s)
		}
		m.providers[s] = NewScopeProvider(s, source)
		m.order = append(m.order, s)
	}
	return m, nil
}

// Provider returns the provider of scope.
func (m *Manager) Provider(scope string) (*ScopeProvider, bool) {
	p, ok := m.providers[scope]
	return p, ok
}

// HasProvider reports whether scope is managed.
func (m *Manager) HasProvider(scope string) bool {
	_, ok := m.providers[scope]
	return ok
}

// Providers returns all providers in configured order.
func (m *Manager) Providers() []*ScopeProvider {
	out := make([]*ScopeProvider, len(m.order))
	for i, s := range m.order {
		out[i] = m.providers[s]
	}
	return out
}

// Scopes returns the managed scope names in configured order.
func (m *Manager) Scopes() []string {
	return slices.Clone(m.order)
}
