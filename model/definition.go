package model

// EntityDefinition is the root structure of a definition file. Each file
// declares one entity: its scoped configuration attributes, its fields and
// the versioned API configuration exposed for it.
type EntityDefinition struct {
	Class  string                    `yaml:"class"  json:"class"`
	ID     int64                     `yaml:"id"     json:"id"`
	Label  string                    `yaml:"label"  json:"label,omitempty"`
	Scopes map[string]map[string]any `yaml:"scopes" json:"scopes,omitempty"`
	Fields []FieldDefinition         `yaml:"fields" json:"fields,omitempty"`
	API    []APIDefinition           `yaml:"api"    json:"api,omitempty"`

	// Checksum is computed at load time and not part of the YAML.
	Checksum string `yaml:"-" json:"-"`
	// SourceFile records the originating file path.
	SourceFile string `yaml:"-" json:"-"`
}

// Field returns the field definition with the given name.
func (d EntityDefinition) Field(name string) (FieldDefinition, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDefinition{}, false
}

// FieldDefinition describes one entity field and its scoped attributes.
type FieldDefinition struct {
	ID     int64                     `yaml:"id"     json:"id"`
	Name   string                    `yaml:"name"   json:"name"`
	Type   string                    `yaml:"type"   json:"type"`
	Scopes map[string]map[string]any `yaml:"scopes" json:"scopes,omitempty"`
}

// Exclusion policies of an API definition.
const (
	ExclusionPolicyNone = "none"
	ExclusionPolicyAll  = "all"
)

// APIDefinition is the API configuration of an entity for one version.
type APIDefinition struct {
	Version         string                         `yaml:"version"          json:"version"`
	ExclusionPolicy string                         `yaml:"exclusion_policy" json:"exclusion_policy,omitempty"`
	Fields          map[string]APIFieldDefinition  `yaml:"fields"           json:"fields,omitempty"`
	Filters         map[string]APIFilterDefinition `yaml:"filters"          json:"filters,omitempty"`
	Sorters         map[string]APISorterDefinition `yaml:"sorters"          json:"sorters,omitempty"`
}

// APIFieldDefinition tunes how an entity field is exposed.
type APIFieldDefinition struct {
	Exclude      bool     `yaml:"exclude"       json:"exclude,omitempty"`
	PropertyPath string   `yaml:"property_path" json:"property_path,omitempty"`
	DataType     string   `yaml:"data_type"     json:"data_type,omitempty"`
	Description  string   `yaml:"description"   json:"description,omitempty"`
	RequestTypes []string `yaml:"request_types" json:"request_types,omitempty"`
}

// APIFilterDefinition declares a filter over an entity field.
type APIFilterDefinition struct {
	DataType    string   `yaml:"data_type"   json:"data_type,omitempty"`
	AllowArray  bool     `yaml:"allow_array" json:"allow_array,omitempty"`
	Operators   []string `yaml:"operators"   json:"operators,omitempty"`
	Description string   `yaml:"description" json:"description,omitempty"`
}

// APISorterDefinition declares a sorter over an entity field.
type APISorterDefinition struct {
	Exclude bool `yaml:"exclude" json:"exclude,omitempty"`
	// Default marks the sorter applied when the request names none. Value is
	// the direction, "asc" or "desc".
	Default string `yaml:"default" json:"default,omitempty"`
}
