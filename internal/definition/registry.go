package definition

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/pitabwire/entityconfig/model"
)

// snapshot is an immutable collection of all entity definitions.
type snapshot struct {
	byClass  map[string]model.EntityDefinition
	byID     map[int64]string
	classes  []string
	checksum string
}

// Registry is a read-optimized, thread-safe store of all loaded entity
// definitions. It uses atomic pointer swap for lock-free concurrent reads.
type Registry struct {
	snap atomic.Pointer[snapshot]
}

// NewRegistry creates a Registry from the given definitions.
func NewRegistry(defs []model.EntityDefinition) *Registry {
	r := &Registry{}
	r.Replace(defs)
	return r
}

// Replace atomically swaps the registry contents with a new snapshot built
// from the given definitions.
func (r *Registry) Replace(defs []model.EntityDefinition) {
	s := &snapshot{
		byClass: make(map[string]model.EntityDefinition, len(defs)),
		byID:    make(map[int64]string, len(defs)),
		classes: make([]string, 0, len(defs)),
	}

	var checksumParts []string

	for _, def := range defs {
		if _, dup := s.byClass[def.Class]; !dup {
			s.classes = append(s.classes, def.Class)
		}
		s.byClass[def.Class] = def
		if def.ID != 0 {
			s.byID[def.ID] = def.Class
		}
		checksumParts = append(checksumParts, def.Checksum)
	}

	sort.Strings(s.classes)
	sort.Strings(checksumParts)
	combined := strings.Join(checksumParts, ":")
	s.checksum = fmt.Sprintf("%x", sha256.Sum256([]byte(combined)))

	r.snap.Store(s)
}

func (r *Registry) current() *snapshot {
	return r.snap.Load()
}

// GetEntity returns the definition of the entity with the given class name.
func (r *Registry) GetEntity(className string) (model.EntityDefinition, bool) {
	d, ok := r.current().byClass[className]
	return d, ok
}

// GetEntityByID returns the definition of the entity with the given ID.
func (r *Registry) GetEntityByID(id int64) (model.EntityDefinition, bool) {
	s := r.current()
	class, ok := s.byID[id]
	if !ok {
		return model.EntityDefinition{}, false
	}
	d, ok := s.byClass[class]
	return d, ok
}

// API returns the API definition of className serving version.
func (r *Registry) API(className, version string) (model.APIDefinition, bool) {
	d, ok := r.GetEntity(className)
	if !ok {
		return model.APIDefinition{}, false
	}
	return ResolveAPI(d.API, version)
}

// Classes returns all entity class names, sorted.
func (r *Registry) Classes() []string {
	return append([]string(nil), r.current().classes...)
}

// AllEntities returns all entity definitions ordered by class name.
func (r *Registry) AllEntities() []model.EntityDefinition {
	s := r.current()
	defs := make([]model.EntityDefinition, 0, len(s.classes))
	for _, c := range s.classes {
		defs = append(defs, s.byClass[c])
	}
	return defs
}

// Count returns the number of loaded entities.
func (r *Registry) Count() int {
	return len(r.current().classes)
}

// Checksum returns the combined checksum of all loaded definitions.
func (r *Registry) Checksum() string {
	return r.current().checksum
}
