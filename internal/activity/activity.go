// Package activity describes the kinds of activity (notes and the like) that
// can be attached to configurable entities.
package activity

import (
	"github.com/pitabwire/entityconfig/internal/entityconfig"
	"github.com/pitabwire/entityconfig/model"
)

// ScopeActivity is the config scope listing the activities enabled on an
// entity.
const ScopeActivity = "activity"

// ConfigManager looks up scope providers.
type ConfigManager interface {
	Provider(scope string) (*entityconfig.ScopeProvider, bool)
}

// Provider describes one activity class.
type Provider interface {
	// IsApplicableTarget reports whether the activity can be attached to the
	// entity identified by id.
	IsApplicableTarget(id entityconfig.ConfigID, manager ConfigManager) bool
	// Routes maps UI actions to route names.
	Routes() map[string]string
	ActivityClass() string
	Subject(entity any) string
	Data(entity any) map[string]any
	Template() string
	ActivityID(entity any) (int64, error)
	// IsApplicable reports whether entityOrClass, an entity value or a class
	// name, is an activity of this provider.
	IsApplicable(entityOrClass any) bool
	TargetEntities(entity any) []any
}

// Entity is implemented by activity entities.
type Entity interface {
	EntityClass() string
	EntityID() int64
}

// Descriptor is the serialized form of a provider.
type Descriptor struct {
	ActivityClass string            `json:"activity_class"`
	Routes        map[string]string `json:"routes"`
	Template      string            `json:"template"`
}

// Describe returns the descriptor of p.
func Describe(p Provider) Descriptor {
	return Descriptor{ActivityClass: p.ActivityClass(), Routes: p.Routes(), Template: p.Template()}
}

func classOf(entityOrClass any) string {
	switch v := entityOrClass.(type) {
	case string:
		return v
	case Entity:
		return v.EntityClass()
	case model.Note:
		return model.NoteClass
	default:
		return ""
	}
}
