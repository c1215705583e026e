package getconfig

import (
	"context"
	"fmt"
	"slices"

	"github.com/pitabwire/entityconfig/internal/chain"
	"github.com/pitabwire/entityconfig/internal/definition"
	"github.com/pitabwire/entityconfig/model"
)

// Stage names and priorities of the get-config chain.
const (
	StageValidateContext = "validate_context"
	StageLoadDefinition  = "load_definition"
	StageBuildDefinition = "build_definition"
	StageCompleteFilters = "complete_filters"
	StageCompleteSorters = "complete_sorters"
)

const defaultFilterOperator = "="

// DefinitionSource provides entity definitions to the chain.
type DefinitionSource interface {
	GetEntity(className string) (model.EntityDefinition, bool)
}

// RegisterStages adds the default get-config stages to bag.
func RegisterStages(bag *chain.Bag[*Context], source DefinitionSource) error {
	stages := []struct {
		name     string
		priority int
		stage    chain.Stage[*Context]
	}{
		{StageValidateContext, 250, chain.StageFunc[*Context](validateContext)},
		{StageLoadDefinition, 200, &loadDefinition{source: source}},
		{StageBuildDefinition, 150, chain.StageFunc[*Context](buildDefinition)},
		{StageCompleteFilters, 100, chain.StageFunc[*Context](completeFilters)},
		{StageCompleteSorters, 50, chain.StageFunc[*Context](completeSorters)},
	}
	for _, s := range stages {
		if err := bag.Add(Action, s.name, s.priority, s.stage); err != nil {
			return err
		}
	}
	return nil
}

// NewProcessor builds the get-config processor with the default stages.
func NewProcessor(source DefinitionSource, opts ...chain.Option) (*chain.Processor[*Context], error) {
	bag := chain.NewBag[*Context]()
	if err := RegisterStages(bag, source); err != nil {
		return nil, err
	}
	return chain.NewProcessor(Action, bag, NewContext, opts...), nil
}

func validateContext(_ context.Context, c *Context) error {
	if c.ClassName() == "" {
		return model.NewInvalidConfigurationError("the class name must be set in the context")
	}
	if c.RequestType() == "" {
		return model.NewInvalidConfigurationError("the request type must be set in the context")
	}
	if c.Version() == "" {
		c.SetVersion(definition.LatestVersion)
	}
	return nil
}

type loadDefinition struct {
	source DefinitionSource
}

// Process loads the entity and its API definition. An entity without an API
// definition for the requested version has no config: the chain stops with
// nothing set.
func (s *loadDefinition) Process(_ context.Context, c *Context) error {
	if c.entity != nil {
		return nil
	}
	def, ok := s.source.GetEntity(c.ClassName())
	if !ok {
		return model.NewNotFoundError(fmt.Sprintf("entity %q is not configurable", c.ClassName()))
	}
	c.entity = &def

	api, ok := definition.ResolveAPI(def.API, c.Version())
	if !ok {
		c.Stop()
		return nil
	}
	c.api = &api
	return nil
}

func buildDefinition(_ context.Context, c *Context) error {
	if c.HasResult() || c.api == nil {
		return nil
	}

	policy := c.api.ExclusionPolicy
	if policy == "" {
		policy = model.ExclusionPolicyNone
	}
	cfg := &model.EntityConfig{
		ClassName:       c.ClassName(),
		ExclusionPolicy: policy,
		Fields:          make(map[string]model.FieldConfig),
	}

	if policy == model.ExclusionPolicyNone {
		for _, f := range c.entity.Fields {
			cfg.Fields[f.Name] = model.FieldConfig{DataType: f.Type}
		}
	}
	for name, af := range c.api.Fields {
		if af.Exclude || !allowsRequestType(af.RequestTypes, c.RequestType()) {
			delete(cfg.Fields, name)
			continue
		}
		fc := cfg.Fields[name]
		if fc.DataType == "" {
			if f, ok := c.entity.Field(name); ok {
				fc.DataType = f.Type
			}
		}
		if af.DataType != "" {
			fc.DataType = af.DataType
		}
		fc.PropertyPath = af.PropertyPath
		fc.Description = af.Description
		cfg.Fields[name] = fc
	}

	c.SetResult(cfg)
	return nil
}

func completeFilters(_ context.Context, c *Context) error {
	if c.HasFilters() || c.api == nil || len(c.api.Filters) == 0 {
		return nil
	}

	filters := &model.FiltersConfig{Fields: make(map[string]model.FilterConfig, len(c.api.Filters))}
	for name, fd := range c.api.Filters {
		field, ok := exposedField(c, name)
		if !ok {
			continue
		}
		dataType := fd.DataType
		if dataType == "" {
			dataType = field.DataType
		}
		operators := slices.Clone(fd.Operators)
		if len(operators) == 0 {
			operators = []string{defaultFilterOperator}
		}
		filters.Fields[name] = model.FilterConfig{
			PropertyPath: field.PropertyPath,
			DataType:     dataType,
			AllowArray:   fd.AllowArray,
			Operators:    operators,
			Description:  fd.Description,
		}
	}

	c.SetFilters(filters)
	return nil
}

func completeSorters(_ context.Context, c *Context) error {
	if c.HasSorters() || c.api == nil || len(c.api.Sorters) == 0 {
		return nil
	}

	sorters := &model.SortersConfig{Fields: make(map[string]model.SorterConfig, len(c.api.Sorters))}
	for name, sd := range c.api.Sorters {
		if sd.Exclude {
			continue
		}
		field, ok := exposedField(c, name)
		if !ok {
			continue
		}
		sorters.Fields[name] = model.SorterConfig{
			PropertyPath: field.PropertyPath,
			Default:      sd.Default,
		}
	}

	c.SetSorters(sorters)
	return nil
}

// exposedField returns the config of a field visible in the resolved
// definition. Without a definition every declared or mapped field counts.
func exposedField(c *Context, name string) (model.FieldConfig, bool) {
	if c.HasResult() && c.Result() != nil {
		f, ok := c.Result().Fields[name]
		return f, ok
	}
	if f, ok := c.entity.Field(name); ok {
		return model.FieldConfig{DataType: f.Type}, true
	}
	if af, ok := c.api.Fields[name]; ok && af.PropertyPath != "" {
		return model.FieldConfig{PropertyPath: af.PropertyPath, DataType: af.DataType}, true
	}
	return model.FieldConfig{}, false
}

func allowsRequestType(types []string, requestType string) bool {
	return len(types) == 0 || slices.Contains(types, requestType)
}
