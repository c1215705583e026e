package importexport

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/pitabwire/entityconfig/model"
)

// Reader options.
const (
	OptionEntityName = "entityName"
	OptionQuery      = "query"
)

// Reader reads items of one entity class, or of a query, for a step.
type Reader struct {
	repositories map[string]Query
	contexts     *ContextRegistry
	pageSize     int

	source  Iterator
	rewound bool
}

// NewReader creates a reader. repositories maps entity class names to the
// query listing all their items.
func NewReader(repositories map[string]Query, contexts *ContextRegistry, pageSize int) *Reader {
	return &Reader{repositories: repositories, contexts: contexts, pageSize: pageSize}
}

// SetStepExecution configures the source from the step's context options:
// "entityName" selects a repository, "query" supplies a Query directly.
func (r *Reader) SetStepExecution(step *StepExecution) error {
	c := r.contexts.ByStepExecution(step)

	switch {
	case c.HasOption(OptionEntityName):
		name, _ := c.Option(OptionEntityName).(string)
		return r.SetSourceEntityName(name)
	case c.HasOption(OptionQuery):
		q, ok := c.Option(OptionQuery).(Query)
		if !ok || q == nil {
			return model.NewInvalidConfigurationError(`reader option "query" must be a query`)
		}
		r.SetSourceQuery(q)
		return nil
	default:
		return model.NewInvalidConfigurationError(
			`configuration of entity reader must contain either "entityName" or "query"`)
	}
}

// SetSourceEntityName reads every item of the named entity class.
func (r *Reader) SetSourceEntityName(name string) error {
	q, ok := r.repositories[name]
	if !ok {
		return model.NewInvalidConfigurationError(fmt.Sprintf(
			"no repository for entity %q (known: %s)", name, strings.Join(slices.Sorted(maps.Keys(r.repositories)), ", ")))
	}
	r.SetSourceQuery(q)
	return nil
}

// SetSourceQuery reads the items returned by q.
func (r *Reader) SetSourceQuery(q Query) {
	r.SetSourceIterator(NewBufferedIterator(q, r.pageSize))
}

// SetSourceIterator reads from it.
func (r *Reader) SetSourceIterator(it Iterator) {
	r.source = it
	r.rewound = false
}

// Read returns the next item, or nil once the source is exhausted. The first
// call rewinds the source. Every item returned increments the step's read
// count.
func (r *Reader) Read(ctx context.Context, step *StepExecution) (any, error) {
	if r.source == nil {
		return nil, model.NewLogicError("Reader must be configured with source")
	}
	if !r.rewound {
		if err := r.source.Rewind(ctx); err != nil {
			return nil, err
		}
		r.rewound = true
	}
	if !r.source.Valid() {
		return nil, nil
	}
	item := r.source.Current()
	step.IncrementReadCount()
	if err := r.source.Next(ctx); err != nil {
		return nil, err
	}
	return item, nil
}

// FieldQuery lists the field records of a store as a Query.
func FieldQuery(s interface {
	ListFields(ctx context.Context, offset, limit int) ([]*model.FieldConfigModel, error)
}) Query {
	return func(ctx context.Context, offset, limit int) ([]any, error) {
		fields, err := s.ListFields(ctx, offset, limit)
		if err != nil {
			return nil, err
		}
		items := make([]any, len(fields))
		for i, f := range fields {
			items[i] = f
		}
		return items, nil
	}
}
