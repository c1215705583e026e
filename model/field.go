package model

import "maps"

// EntityConfigModel is the stored configuration record of an entity.
type EntityConfigModel struct {
	ID        int64  `json:"id"`
	ClassName string `json:"class_name"`
}

// FieldConfigModel is the stored configuration record of an entity field.
// Scopes holds the scoped attribute values: scope → code → value.
type FieldConfigModel struct {
	ID        int64                     `json:"id"`
	FieldName string                    `json:"field_name"`
	Type      string                    `json:"type"`
	Entity    *EntityConfigModel        `json:"entity,omitempty"`
	Scopes    map[string]map[string]any `json:"scopes,omitempty"`
}

// FromArray merges values into the given scope.
func (f *FieldConfigModel) FromArray(scope string, values map[string]any) {
	if f.Scopes == nil {
		f.Scopes = make(map[string]map[string]any)
	}
	dst, ok := f.Scopes[scope]
	if !ok {
		dst = make(map[string]any, len(values))
		f.Scopes[scope] = dst
	}
	maps.Copy(dst, values)
}

// ToArray returns the values of scope, or an empty map.
func (f *FieldConfigModel) ToArray(scope string) map[string]any {
	if v, ok := f.Scopes[scope]; ok {
		return v
	}
	return map[string]any{}
}

// Note is a free-text activity attached to other entities.
type Note struct {
	ID      int64  `json:"id"`
	Message string `json:"message"`
}

// NoteClass is the class name under which notes are configured.
const NoteClass = `Oro\Bundle\NoteBundle\Entity\Note`

// FieldConfigModelClass names field configuration records in import/export
// jobs and reader options.
const FieldConfigModelClass = `Oro\Bundle\EntityConfigBundle\Entity\FieldConfigModel`

// EntityClass returns NoteClass.
func (n *Note) EntityClass() string { return NoteClass }

// EntityID returns the note's identifier.
func (n *Note) EntityID() int64 { return n.ID }
