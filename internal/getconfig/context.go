// Package getconfig implements the "get_config" processing chain that
// resolves the API configuration of an entity.
package getconfig

import (
	"fmt"

	"github.com/pitabwire/entityconfig/internal/chain"
	"github.com/pitabwire/entityconfig/model"
)

// Action is the action served by the get-config chain.
const Action = "get_config"

// Context carries the request parameters and accumulated results of one
// config resolution.
type Context struct {
	chain.Base

	className     string
	version       string
	requestType   string
	requestAction string

	result  chain.Slot[*model.EntityConfig]
	filters chain.Slot[*model.FiltersConfig]
	sorters chain.Slot[*model.SortersConfig]

	// Filled by the load stage for the stages that follow it.
	entity *model.EntityDefinition
	api    *model.APIDefinition
}

// NewContext returns an empty context tagged with action.
func NewContext(action string) *Context {
	return &Context{Base: chain.NewBase(action)}
}

// ClassName returns the class name of the entity being resolved.
func (c *Context) ClassName() string { return c.className }

// SetClassName sets the class name. Once set, the class name cannot be
// changed to a different value.
func (c *Context) SetClassName(className string) error {
	if c.className != "" && c.className != className {
		return model.NewLogicError(fmt.Sprintf(
			"class name of the context is already %q and cannot be changed to %q", c.className, className))
	}
	c.className = className
	return nil
}

// Version returns the requested API version.
func (c *Context) Version() string { return c.version }

// SetVersion sets the requested API version.
func (c *Context) SetVersion(v string) { c.version = v }

// RequestType returns the request type, e.g. "rest".
func (c *Context) RequestType() string { return c.requestType }

// SetRequestType sets the request type.
func (c *Context) SetRequestType(v string) { c.requestType = v }

// RequestAction returns the request action, e.g. "get_list".
func (c *Context) RequestAction() string { return c.requestAction }

// SetRequestAction sets the request action.
func (c *Context) SetRequestAction(v string) { c.requestAction = v }

// Result slots. A slot set to nil still reports Has as true.

func (c *Context) HasResult() bool                   { return c.result.Has() }
func (c *Context) Result() *model.EntityConfig       { return c.result.Get() }
func (c *Context) SetResult(v *model.EntityConfig)   { c.result.Set(v) }
func (c *Context) HasFilters() bool                  { return c.filters.Has() }
func (c *Context) Filters() *model.FiltersConfig     { return c.filters.Get() }
func (c *Context) SetFilters(v *model.FiltersConfig) { c.filters.Set(v) }
func (c *Context) HasSorters() bool                  { return c.sorters.Has() }
func (c *Context) Sorters() *model.SortersConfig     { return c.sorters.Get() }
func (c *Context) SetSorters(v *model.SortersConfig) { c.sorters.Set(v) }

// Entity returns the loaded entity definition, or nil before loading.
func (c *Context) Entity() *model.EntityDefinition { return c.entity }

// API returns the resolved API definition, or nil before loading.
func (c *Context) API() *model.APIDefinition { return c.api }
