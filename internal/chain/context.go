package chain

// Context is the mutable state passed through the stages of one Process
// call. Every Context belongs to exactly one action.
type Context interface {
	// Action returns the action the context was created for.
	Action() string
	// Stop tells the processor to skip the remaining stages.
	Stop()
	// IsStopped reports whether Stop has been called.
	IsStopped() bool
}

// Base carries the bookkeeping shared by all contexts. Embed it in a
// concrete context type.
type Base struct {
	action  string
	stopped bool
}

// NewBase returns a Base tagged with action.
func NewBase(action string) Base {
	return Base{action: action}
}

// Action returns the action the context was created for.
func (b *Base) Action() string { return b.action }

// Stop marks the context as stopped.
func (b *Base) Stop() { b.stopped = true }

// IsStopped reports whether Stop has been called.
func (b *Base) IsStopped() bool { return b.stopped }

// Slot is an optional value that records whether it has been set, so that a
// value set to nil is still distinguishable from one never set.
type Slot[T any] struct {
	value T
	set   bool
}

// Set stores v and marks the slot as set.
func (s *Slot[T]) Set(v T) {
	s.value = v
	s.set = true
}

// Get returns the stored value, or the zero value if unset.
func (s *Slot[T]) Get() T { return s.value }

// Has reports whether Set was called.
func (s *Slot[T]) Has() bool { return s.set }
