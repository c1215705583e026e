package definition

import (
	"fmt"

	"github.com/pitabwire/entityconfig/model"
)

// VError describes a single validation error in a definition.
type VError struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e VError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Validator validates entity definitions structurally and referentially.
type Validator struct{}

// NewValidator creates a new Validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks all definitions, including uniqueness across files.
func (v *Validator) Validate(defs []model.EntityDefinition) []VError {
	var errs []VError

	classes := make(map[string]string)
	ids := make(map[int64]string)

	for i, def := range defs {
		prefix := fmt.Sprintf("definitions[%d]", i)
		errs = append(errs, v.validateEntity(prefix, def)...)

		if def.Class != "" {
			if other, dup := classes[def.Class]; dup {
				errs = append(errs, VError{
					Path:    prefix + ".class",
					Code:    "DUPLICATE",
					Message: fmt.Sprintf("class %q is also declared in %s", def.Class, other),
				})
			}
			classes[def.Class] = def.SourceFile
		}
		if def.ID != 0 {
			if other, dup := ids[def.ID]; dup {
				errs = append(errs, VError{
					Path:    prefix + ".id",
					Code:    "DUPLICATE",
					Message: fmt.Sprintf("id %d is already used by %s", def.ID, other),
				})
			}
			ids[def.ID] = def.Class
		}
	}
	return errs
}

func (v *Validator) validateEntity(prefix string, def model.EntityDefinition) []VError {
	var errs []VError

	if def.Class == "" {
		errs = append(errs, VError{Path: prefix + ".class", Code: "REQUIRED", Message: "class is required"})
	}

	fieldNames := make(map[string]bool, len(def.Fields))
	for i, f := range def.Fields {
		fp := fmt.Sprintf("%s.fields[%d]", prefix, i)
		if f.Name == "" {
			errs = append(errs, VError{Path: fp + ".name", Code: "REQUIRED", Message: "name is required"})
			continue
		}
		if fieldNames[f.Name] {
			errs = append(errs, VError{Path: fp + ".name", Code: "DUPLICATE", Message: fmt.Sprintf("field %q is declared twice", f.Name)})
		}
		fieldNames[f.Name] = true
		if f.Type == "" {
			errs = append(errs, VError{Path: fp + ".type", Code: "REQUIRED", Message: "type is required"})
		}
	}

	versions := make(map[string]bool, len(def.API))
	for i, api := range def.API {
		ap := fmt.Sprintf("%s.api[%d]", prefix, i)
		if !ValidVersion(api.Version) {
			errs = append(errs, VError{Path: ap + ".version", Code: "INVALID_VERSION", Message: fmt.Sprintf("invalid version %q", api.Version)})
		} else if versions[api.Version] {
			errs = append(errs, VError{Path: ap + ".version", Code: "DUPLICATE", Message: fmt.Sprintf("version %q is declared twice", api.Version)})
		}
		versions[api.Version] = true
		errs = append(errs, v.validateAPI(ap, api, fieldNames)...)
	}

	return errs
}

var validExclusionPolicies = map[string]bool{
	"": true, model.ExclusionPolicyNone: true, model.ExclusionPolicyAll: true,
}

var validSortDirections = map[string]bool{"": true, "asc": true, "desc": true}

func (v *Validator) validateAPI(prefix string, api model.APIDefinition, fieldNames map[string]bool) []VError {
	var errs []VError

	if !validExclusionPolicies[api.ExclusionPolicy] {
		errs = append(errs, VError{
			Path:    prefix + ".exclusion_policy",
			Code:    "INVALID_ENUM",
			Message: fmt.Sprintf("invalid exclusion policy %q", api.ExclusionPolicy),
		})
	}

	// A field is known when the entity declares it or the API maps it to a
	// property path.
	known := func(name string) bool {
		if fieldNames[name] {
			return true
		}
		f, ok := api.Fields[name]
		return ok && f.PropertyPath != ""
	}

	for name, f := range api.Fields {
		if f.PropertyPath == "" && !fieldNames[name] {
			errs = append(errs, VError{
				Path:    prefix + ".fields." + name,
				Code:    "UNKNOWN_FIELD",
				Message: fmt.Sprintf("field %q is not declared and has no property_path", name),
			})
		}
	}
	for name, f := range api.Filters {
		if !known(name) {
			errs = append(errs, VError{
				Path:    prefix + ".filters." + name,
				Code:    "UNKNOWN_FIELD",
				Message: fmt.Sprintf("filter references unknown field %q", name),
			})
		}
		for _, op := range f.Operators {
			if op == "" {
				errs = append(errs, VError{Path: prefix + ".filters." + name + ".operators", Code: "REQUIRED", Message: "operator must not be empty"})
			}
		}
	}
	for name, s := range api.Sorters {
		if !known(name) {
			errs = append(errs, VError{
				Path:    prefix + ".sorters." + name,
				Code:    "UNKNOWN_FIELD",
				Message: fmt.Sprintf("sorter references unknown field %q", name),
			})
		}
		if !validSortDirections[s.Default] {
			errs = append(errs, VError{
				Path:    prefix + ".sorters." + name + ".default",
				Code:    "INVALID_ENUM",
				Message: fmt.Sprintf("invalid sort direction %q", s.Default),
			})
		}
	}

	return errs
}
