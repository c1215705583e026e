package model

// Keys of a Config.
const (
	ConfigDefinition = "definition"
	ConfigFilters    = "filters"
	ConfigSorters    = "sorters"
)

// Config is the resolved API configuration of an entity. It holds at most the
// keys ConfigDefinition, ConfigFilters and ConfigSorters, each present only if
// the resolution pipeline produced it. An empty Config means the entity has
// no API configuration.
type Config map[string]any

// Definition returns the definition entry.
func (c Config) Definition() (any, bool) {
	v, ok := c[ConfigDefinition]
	return v, ok
}

// Filters returns the filters entry.
func (c Config) Filters() (any, bool) {
	v, ok := c[ConfigFilters]
	return v, ok
}

// Sorters returns the sorters entry.
func (c Config) Sorters() (any, bool) {
	v, ok := c[ConfigSorters]
	return v, ok
}

// EntityConfig is the definition produced for an entity.
type EntityConfig struct {
	ClassName       string                 `json:"class_name"`
	ExclusionPolicy string                 `json:"exclusion_policy"`
	Fields          map[string]FieldConfig `json:"fields"`
}

// FieldConfig is a single exposed field of an EntityConfig.
type FieldConfig struct {
	PropertyPath string `json:"property_path,omitempty"`
	DataType     string `json:"data_type,omitempty"`
	Description  string `json:"description,omitempty"`
}

// FiltersConfig lists the filters available for an entity.
type FiltersConfig struct {
	Fields map[string]FilterConfig `json:"fields"`
}

// FilterConfig describes one filter.
type FilterConfig struct {
	PropertyPath string   `json:"property_path,omitempty"`
	DataType     string   `json:"data_type"`
	AllowArray   bool     `json:"allow_array,omitempty"`
	Operators    []string `json:"operators,omitempty"`
	Description  string   `json:"description,omitempty"`
}

// SortersConfig lists the sorters available for an entity.
type SortersConfig struct {
	Fields map[string]SorterConfig `json:"fields"`
}

// SorterConfig describes one sorter.
type SorterConfig struct {
	PropertyPath string `json:"property_path,omitempty"`
	Default      string `json:"default,omitempty"`
}
