// Package store persists the configuration records of entities and fields.
package store

import (
	"context"
	"fmt"
	"maps"

	"github.com/pitabwire/entityconfig/model"
)

// FieldStore persists entity and field configuration records.
type FieldStore interface {
	// GetEntity returns the entity record with the given ID, or NOT_FOUND.
	GetEntity(ctx context.Context, id int64) (*model.EntityConfigModel, error)

	// SaveEntity inserts or updates an entity record.
	SaveEntity(ctx context.Context, entity model.EntityConfigModel) error

	// SaveField inserts or updates a field record. Fields are matched by
	// entity and field name; a zero ID is assigned on insert. The entity
	// must exist.
	SaveField(ctx context.Context, field *model.FieldConfigModel) error

	// ListFields returns up to limit field records ordered by ID, starting
	// at offset. Each record carries its entity.
	ListFields(ctx context.Context, offset, limit int) ([]*model.FieldConfigModel, error)

	// CountFields returns the number of stored field records.
	CountFields(ctx context.Context) (int, error)
}

// Seed writes every entity of defs and its fields into s. Existing records
// are overwritten.
func Seed(ctx context.Context, s FieldStore, defs []model.EntityDefinition) (int, error) {
	fields := 0
	for _, def := range defs {
		if def.ID == 0 {
			continue
		}
		entity := model.EntityConfigModel{ID: def.ID, ClassName: def.Class}
		if err := s.SaveEntity(ctx, entity); err != nil {
			return fields, fmt.Errorf("seed entity %q: %w", def.Class, err)
		}
		for _, f := range def.Fields {
			field := &model.FieldConfigModel{
				ID:        f.ID,
				FieldName: f.Name,
				Type:      f.Type,
				Entity:    &entity,
				Scopes:    cloneScopes(f.Scopes),
			}
			if err := s.SaveField(ctx, field); err != nil {
				return fields, fmt.Errorf("seed field %q of %q: %w", f.Name, def.Class, err)
			}
			fields++
		}
	}
	if syncer, ok := s.(interface{ syncSequence(context.Context) error }); ok {
		if err := syncer.syncSequence(ctx); err != nil {
			return fields, err
		}
	}
	return fields, nil
}

func cloneScopes(in map[string]map[string]any) map[string]map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]map[string]any, len(in))
	for scope, values := range in {
		out[scope] = maps.Clone(values)
	}
	return out
}
