package importexport

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// StepExecution tracks one run of an import or export step.
type StepExecution struct {
	id         string
	readCount  atomic.Int64
	writeCount atomic.Int64
}

// NewStepExecution starts a step with a random ID.
func NewStepExecution() *StepExecution {
	return &StepExecution{id: uuid.NewString()}
}

// ID returns the step identifier.
func (s *StepExecution) ID() string { return s.id }

// IncrementReadCount records one item read.
func (s *StepExecution) IncrementReadCount() { s.readCount.Add(1) }

// ReadCount returns the number of items read.
func (s *StepExecution) ReadCount() int { return int(s.readCount.Load()) }

// IncrementWriteCount records one item written.
func (s *StepExecution) IncrementWriteCount() { s.writeCount.Add(1) }

// WriteCount returns the number of items written.
func (s *StepExecution) WriteCount() int { return int(s.writeCount.Load()) }

// StepContext holds the options of a step.
type StepContext struct {
	mu      sync.RWMutex
	options map[string]any
}

// HasOption reports whether name is set.
func (c *StepContext) HasOption(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.options[name]
	return ok
}

// Option returns the value of name, or nil.
func (c *StepContext) Option(name string) any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.options[name]
}

// SetOption sets name to v.
func (c *StepContext) SetOption(name string, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.options == nil {
		c.options = make(map[string]any)
	}
	c.options[name] = v
}

// ContextRegistry hands out one StepContext per step execution.
type ContextRegistry struct {
	mu       sync.Mutex
	contexts map[string]*StepContext
}

// NewContextRegistry creates an empty registry.
func NewContextRegistry() *ContextRegistry {
	return &ContextRegistry{contexts: make(map[string]*StepContext)}
}

// ByStepExecution returns the context of step, creating it on first use.
func (r *ContextRegistry) ByStepExecution(step *StepExecution) *StepContext {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.contexts[step.ID()]
	if !ok {
		c = &StepContext{}
		r.contexts[step.ID()] = c
	}
	return c
}

// Release drops the context of step.
func (r *ContextRegistry) Release(step *StepExecution) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.contexts, step.ID())
}
