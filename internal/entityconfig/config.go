// Package entityconfig exposes the scoped configuration attributes of entities
// and their fields. Each scope (entity, extend, importexport, activity, ...)
// is served by its own ScopeProvider; the Manager groups them.
package entityconfig

import (
	"maps"
	"slices"
)

// ConfigID identifies the configuration of an entity, or of one of its fields
// when FieldName is set, within a scope.
type ConfigID struct {
	Scope     string
	ClassName string
	FieldName string
	FieldType string
}

// IsField reports whether the id points at a field configuration.
func (id ConfigID) IsField() bool { return id.FieldName != "" }

func (id ConfigID) String() string {
	if id.IsField() {
		return id.Scope + ":" + id.ClassName + "::" + id.FieldName
	}
	return id.Scope + ":" + id.ClassName
}

// Config holds the attribute values of one ConfigID. A Config with no values
// is still a valid configuration.
type Config struct {
	id     ConfigID
	values map[string]any
}

// NewConfig returns a Config for id holding a copy of values.
func NewConfig(id ConfigID, values map[string]any) *Config {
	return &Config{id: id, values: maps.Clone(values)}
}

// ID returns the identifier of the configuration.
func (c *Config) ID() ConfigID { return c.id }

// Has reports whether code is set. A code set to nil counts as absent.
func (c *Config) Has(code string) bool {
	v, ok := c.values[code]
	return ok && v != nil
}

// Get returns the value of code, or nil.
func (c *Config) Get(code string) any { return c.values[code] }

// GetOr returns the value of code, or def when the code is absent.
func (c *Config) GetOr(code string, def any) any {
	if !c.Has(code) {
		return def
	}
	return c.values[code]
}

// All returns a copy of all attribute values.
func (c *Config) All() map[string]any {
	out := maps.Clone(c.values)
	if out == nil {
		out = map[string]any{}
	}
	return out
}

// Codes returns the attribute codes in sorted order.
func (c *Config) Codes() []string {
	return slices.Sorted(maps.Keys(c.values))
}
