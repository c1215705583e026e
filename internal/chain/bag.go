package chain

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
)

// Stage is one unit of work in a processing chain.
type Stage[C Context] interface {
	Process(ctx context.Context, c C) error
}

// StageFunc adapts a function to the Stage interface.
type StageFunc[C Context] func(ctx context.Context, c C) error

// Process calls f.
func (f StageFunc[C]) Process(ctx context.Context, c C) error { return f(ctx, c) }

// NamedStage is a stage as registered in a Bag.
type NamedStage[C Context] struct {
	Name     string
	Priority int
	Stage    Stage[C]
}

// Bag maps actions to their ordered stage lists. Stages are registered
// during startup; the first call to Stages freezes the bag, after which
// registration fails.
type Bag[C Context] struct {
	mu      sync.Mutex
	actions map[string][]NamedStage[C]
	sorted  map[string][]NamedStage[C]
	frozen  bool
}

// NewBag creates an empty Bag.
func NewBag[C Context]() *Bag[C] {
	return &Bag[C]{actions: make(map[string][]NamedStage[C])}
}

// Add registers a stage for action. Stages with a higher priority run first;
// stages with equal priority run in registration order. Names must be unique
// within an action.
func (b *Bag[C]) Add(action, name string, priority int, stage Stage[C]) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frozen {
		return fmt.Errorf("chain: cannot add stage %q to %q: bag is frozen", name, action)
	}
	if action == "" || name == "" {
		return fmt.Errorf("chain: action and stage name are required")
	}
	if stage == nil {
		return fmt.Errorf("chain: stage %q for %q is nil", name, action)
	}
	for _, s := range b.actions[action] {
		if s.Name == name {
			return fmt.Errorf("chain: duplicate stage %q for %q", name, action)
		}
	}
	b.actions[action] = append(b.actions[action], NamedStage[C]{Name: name, Priority: priority, Stage: stage})
	return nil
}

// MustAdd is like Add but panics on error. Intended for static wiring.
func (b *Bag[C]) MustAdd(action, name string, priority int, stage Stage[C]) {
	if err := b.Add(action, name, priority, stage); err != nil {
		panic(err)
	}
}

// Stages returns the ordered stages of action and freezes the bag.
// The returned slice must not be modified.
func (b *Bag[C]) Stages(action string) []NamedStage[C] {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.frozen {
		b.sorted = make(map[string][]NamedStage[C], len(b.actions))
		for a, stages := range b.actions {
			ordered := slices.Clone(stages)
			slices.SortStableFunc(ordered, func(x, y NamedStage[C]) int {
				return cmp.Compare(y.Priority, x.Priority)
			})
			b.sorted[a] = ordered
		}
		b.frozen = true
	}
	return b.sorted[action]
}

// Actions returns the registered action names, sorted.
func (b *Bag[C]) Actions() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	names := make([]string, 0, len(b.actions))
	for a := range b.actions {
		names = append(names, a)
	}
	slices.Sort(names)
	return names
}
