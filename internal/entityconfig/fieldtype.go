package entityconfig

import (
	"maps"
	"slices"

	"github.com/pitabwire/entityconfig/internal/config"
)

// Property option types.
const (
	OptionBoolean = "boolean"
	OptionInteger = "integer"
	OptionString  = "string"
	OptionEnum    = "enum"
)

// FieldTypeProvider answers which field types can be configured and how the
// scoped properties of each type are coerced on import.
type FieldTypeProvider struct {
	supported  []string
	properties map[string]map[string]map[string]config.PropertyOption
}

// NewFieldTypeProvider creates a provider from the field type configuration.
func NewFieldTypeProvider(cfg config.FieldTypesConfig) *FieldTypeProvider {
	return &FieldTypeProvider{
		supported:  slices.Clone(cfg.Supported),
		properties: cfg.Properties,
	}
}

// SupportedFieldTypes returns the configurable field types.
func (p *FieldTypeProvider) SupportedFieldTypes() []string {
	return slices.Clone(p.supported)
}

// IsSupported reports whether fieldType is configurable.
func (p *FieldTypeProvider) IsSupported(fieldType string) bool {
	return slices.Contains(p.supported, fieldType)
}

// FieldProperties returns the scope → code → option map of fieldType. The
// result is empty for types without configured properties.
func (p *FieldTypeProvider) FieldProperties(fieldType string) map[string]map[string]config.PropertyOption {
	props := p.properties[fieldType]
	out := make(map[string]map[string]config.PropertyOption, len(props))
	for scope, codes := range props {
		out[scope] = maps.Clone(codes)
	}
	return out
}
