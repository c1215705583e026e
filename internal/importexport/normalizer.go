// Package importexport moves field configuration records in and out of CSV
// and XLSX files.
package importexport

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/pitabwire/entityconfig/internal/config"
	"github.com/pitabwire/entityconfig/internal/entityconfig"
	"github.com/pitabwire/entityconfig/model"
)

// Keys of a normalized field row.
const (
	KeyID        = "id"
	KeyFieldName = "fieldName"
	KeyType      = "type"
	KeyEntity    = "entity"
	KeyEntityID  = "entity.id"
)

// ScopeLister lists the configuration scopes in export order.
type ScopeLister interface {
	Scopes() []string
}

// FieldTypes answers which field types can be imported and how their
// properties are coerced.
type FieldTypes interface {
	SupportedFieldTypes() []string
	FieldProperties(fieldType string) map[string]map[string]config.PropertyOption
}

// EntityLoader loads entity records by ID.
type EntityLoader interface {
	GetEntity(ctx context.Context, id int64) (*model.EntityConfigModel, error)
}

// FieldNormalizer converts field configuration records to flat rows keyed by
// "scope.code" and back.
type FieldNormalizer struct {
	scopes     ScopeLister
	fieldTypes FieldTypes
	entities   EntityLoader
}

// NewFieldNormalizer creates a normalizer.
func NewFieldNormalizer(scopes ScopeLister, fieldTypes FieldTypes, entities EntityLoader) *FieldNormalizer {
	return &FieldNormalizer{scopes: scopes, fieldTypes: fieldTypes, entities: entities}
}

// SupportsNormalization reports whether v is a field configuration record.
func (n *FieldNormalizer) SupportsNormalization(v any) bool {
	_, ok := v.(*model.FieldConfigModel)
	return ok
}

// Normalize flattens field into id, fieldName, type and one "scope.code"
// entry per attribute of every managed scope the field carries.
func (n *FieldNormalizer) Normalize(field *model.FieldConfigModel) map[string]any {
	row := map[string]any{
		KeyID:        field.ID,
		KeyFieldName: field.FieldName,
		KeyType:      field.Type,
	}
	for _, scope := range n.scopes.Scopes() {
		values, ok := field.Scopes[scope]
		if !ok {
			continue
		}
		for code, v := range values {
			row[scope+"."+code] = v
		}
	}
	return row
}

// SupportsDenormalization reports whether data can be turned into a record of
// typ: typ must name the field config model and data must be a map with a
// non-empty fieldName and a supported type.
func (n *FieldNormalizer) SupportsDenormalization(data any, typ string) bool {
	if typ != model.FieldConfigModelClass {
		return false
	}
	row, ok := data.(map[string]any)
	if !ok {
		return false
	}
	fieldType := toString(row[KeyType])
	if fieldType == "" || toString(row[KeyFieldName]) == "" {
		return false
	}
	return slices.Contains(n.fieldTypes.SupportedFieldTypes(), fieldType)
}

// Denormalize builds a field record from a flat row. Values of known scope
// codes are coerced according to the field type's property options; unknown
// scopes and codes are ignored. The entity is loaded from "entity.id" (or a
// nested "entity" map). Invalid enum options yield a VALIDATION_ERROR.
func (n *FieldNormalizer) Denormalize(ctx context.Context, data map[string]any) (*model.FieldConfigModel, error) {
	field := &model.FieldConfigModel{
		FieldName: toString(data[KeyFieldName]),
		Type:      toString(data[KeyType]),
	}
	if v, ok := data[KeyID]; ok && v != nil && toString(v) != "" {
		field.ID = int64(toInt(v))
	}

	if id, ok := entityID(data); ok {
		entity, err := n.entities.GetEntity(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load entity %d: %w", id, err)
		}
		field.Entity = entity
	}

	var violations []model.FieldError
	props := n.fieldTypes.FieldProperties(field.Type)
	for _, scope := range slices.Sorted(maps.Keys(props)) {
		values := make(map[string]any)
		for _, code := range slices.Sorted(maps.Keys(props[scope])) {
			opt := props[scope][code]
			key := scope + "." + code
			if opt.Type == entityconfig.OptionEnum {
				rows, errs := enumRows(data, key)
				violations = append(violations, errs...)
				if rows != nil {
					values[code] = rows
				}
				continue
			}
			v, ok := data[key]
			if !ok {
				continue
			}
			values[code] = coerce(opt, v)
		}
		if len(values) > 0 {
			field.FromArray(scope, values)
		}
	}
	if len(violations) > 0 {
		return nil, model.NewValidationError(violations)
	}
	return field, nil
}

func coerce(opt config.PropertyOption, v any) any {
	if v == nil {
		v = opt.Default
	}
	switch opt.Type {
	case entityconfig.OptionBoolean:
		return toBool(v)
	case entityconfig.OptionInteger:
		return toInt(v)
	default:
		return toString(v)
	}
}

func entityID(data map[string]any) (int64, bool) {
	raw, ok := data[KeyEntityID]
	if !ok {
		if nested, isMap := data[KeyEntity].(map[string]any); isMap {
			raw, ok = nested[KeyID]
		}
	}
	if !ok || raw == nil || toString(raw) == "" {
		return 0, false
	}
	return int64(toInt(raw)), true
}

// enumRows collects "prefix.N.attr" keys into option rows ordered by N. Rows
// whose attributes are all empty are dropped.
func enumRows(data map[string]any, prefix string) ([]map[string]any, []model.FieldError) {
	grouped := make(map[int]map[string]any)
	filled := make(map[int]bool)
	for key, v := range data {
		rest, ok := strings.CutPrefix(key, prefix+".")
		if !ok {
			continue
		}
		idx, attr, ok := strings.Cut(rest, ".")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(idx)
		if err != nil || n < 0 {
			continue
		}
		if grouped[n] == nil {
			grouped[n] = make(map[string]any)
		}
		if v != nil && toString(v) != "" {
			filled[n] = true
		}
		switch attr {
		case "is_default":
			grouped[n][attr] = toBool(v)
		case "priority":
			grouped[n][attr] = toInt(v)
		default:
			grouped[n][attr] = toString(v)
		}
	}
	var violations []model.FieldError
	rows := make([]map[string]any, 0, len(grouped))
	for _, n := range slices.Sorted(maps.Keys(grouped)) {
		if !filled[n] {
			continue
		}
		row := grouped[n]
		ev := EnumValue{ID: toString(row["id"]), Label: toString(row["label"])}
		violations = append(violations, ValidateEnumValue(ev, fmt.Sprintf("%s.%d", prefix, n))...)
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, violations
	}
	return rows, violations
}
