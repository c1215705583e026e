package store

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/pitabwire/entityconfig/model"
)

type fieldKey struct {
	entityID int64
	name     string
}

// MemoryFieldStore is an in-memory FieldStore.
type MemoryFieldStore struct {
	mu       sync.RWMutex
	entities map[int64]model.EntityConfigModel
	fields   map[int64]*model.FieldConfigModel
	byName   map[fieldKey]int64
	nextID   int64
}

// NewMemoryFieldStore creates an empty in-memory store.
func NewMemoryFieldStore() *MemoryFieldStore {
	return &MemoryFieldStore{
		entities: make(map[int64]model.EntityConfigModel),
		fields:   make(map[int64]*model.FieldConfigModel),
		byName:   make(map[fieldKey]int64),
	}
}

// GetEntity returns the entity record with the given ID.
func (s *MemoryFieldStore) GetEntity(_ context.Context, id int64) (*model.EntityConfigModel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entities[id]
	if !ok {
		return nil, model.NewNotFoundError(fmt.Sprintf("entity %d not found", id))
	}
	return &e, nil
}

// SaveEntity inserts or updates an entity record.
func (s *MemoryFieldStore) SaveEntity(_ context.Context, entity model.EntityConfigModel) error {
	if entity.ID == 0 || entity.ClassName == "" {
		return model.NewBadRequestError("entity id and class name are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, e := range s.entities {
		if e.ClassName == entity.ClassName && id != entity.ID {
			return model.NewConflictError(fmt.Sprintf("class %q is already stored as entity %d", entity.ClassName, id))
		}
	}
	s.entities[entity.ID] = entity
	return nil
}

// SaveField inserts or updates a field record.
func (s *MemoryFieldStore) SaveField(_ context.Context, field *model.FieldConfigModel) error {
	if field.Entity == nil || field.FieldName == "" {
		return model.NewBadRequestError("field entity and name are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entity, ok := s.entities[field.Entity.ID]
	if !ok {
		return model.NewNotFoundError(fmt.Sprintf("entity %d not found", field.Entity.ID))
	}

	key := fieldKey{entityID: entity.ID, name: field.FieldName}
	if id, exists := s.byName[key]; exists {
		field.ID = id
	} else if field.ID == 0 {
		s.nextID++
		for s.fields[s.nextID] != nil {
			s.nextID++
		}
		field.ID = s.nextID
	} else if other := s.fields[field.ID]; other != nil {
		return model.NewConflictError(fmt.Sprintf("field id %d is taken by %q", field.ID, other.FieldName))
	}
	s.nextID = max(s.nextID, field.ID)

	stored := &model.FieldConfigModel{
		ID:        field.ID,
		FieldName: field.FieldName,
		Type:      field.Type,
		Entity:    &entity,
		Scopes:    cloneScopes(field.Scopes),
	}
	s.fields[field.ID] = stored
	s.byName[key] = field.ID
	return nil
}

// ListFields returns a page of field records ordered by ID.
func (s *MemoryFieldStore) ListFields(_ context.Context, offset, limit int) ([]*model.FieldConfigModel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]int64, 0, len(s.fields))
	for id := range s.fields {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	if offset >= len(ids) || limit <= 0 {
		return nil, nil
	}
	ids = ids[offset:min(offset+limit, len(ids))]

	out := make([]*model.FieldConfigModel, len(ids))
	for i, id := range ids {
		f := *s.fields[id]
		e := *f.Entity
		f.Entity = &e
		f.Scopes = cloneScopes(f.Scopes)
		out[i] = &f
	}
	return out, nil
}

// CountFields returns the number of stored field records.
func (s *MemoryFieldStore) CountFields(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.fields), nil
}

// HealthCheck always succeeds.
func (s *MemoryFieldStore) HealthCheck(context.Context) error { return nil }
