package activity

import (
	"fmt"

	"github.com/pitabwire/entityconfig/internal/entityconfig"
	"github.com/pitabwire/entityconfig/model"
)

// NoteProvider lists notes as activities.
type NoteProvider struct{}

// NewNoteProvider creates the note activity provider.
func NewNoteProvider() *NoteProvider { return &NoteProvider{} }

// IsApplicableTarget reports whether the target's activity config declares
// an "activities" attribute.
func (NoteProvider) IsApplicableTarget(id entityconfig.ConfigID, manager ConfigManager) bool {
	p, ok := manager.Provider(ScopeActivity)
	if !ok || !p.HasConfigByID(id) {
		return false
	}
	cfg, err := p.GetConfigByID(id)
	return err == nil && cfg.Has("activities")
}

func (NoteProvider) Routes() map[string]string {
	return map[string]string{
		"itemEdit":   "oro_note_update",
		"itemDelete": "oro_api_delete_call",
	}
}

func (NoteProvider) ActivityClass() string { return model.NoteClass }

// Subject is always empty; notes have no title.
func (NoteProvider) Subject(any) string { return "" }

func (NoteProvider) Data(entity any) map[string]any {
	switch n := entity.(type) {
	case *model.Note:
		return map[string]any{"message": n.Message}
	case model.Note:
		return map[string]any{"message": n.Message}
	default:
		return map[string]any{}
	}
}

func (NoteProvider) Template() string {
	return "OroNoteBundle:Note:js/activityItemTemplate.js.twig"
}

func (NoteProvider) ActivityID(entity any) (int64, error) {
	switch n := entity.(type) {
	case Entity:
		return n.EntityID(), nil
	case model.Note:
		return n.ID, nil
	default:
		return 0, model.NewLogicError(fmt.Sprintf("cannot identify activity entity of type %T", entity))
	}
}

func (NoteProvider) IsApplicable(entityOrClass any) bool {
	return classOf(entityOrClass) == model.NoteClass
}

// TargetEntities is always empty; note targets are kept by the association
// itself.
func (NoteProvider) TargetEntities(any) []any { return []any{} }
