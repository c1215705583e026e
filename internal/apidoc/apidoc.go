// Package apidoc renders the resolved entity API configs of one request type
// and version as an OpenAPI 3 document.
package apidoc

import (
	"context"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"go.uber.org/zap"

	"github.com/pitabwire/entityconfig/model"
)

// RequestActionList is the request action used to resolve list configs.
const RequestActionList = "get_list"

// ConfigSource resolves entity configs.
type ConfigSource interface {
	GetConfig(ctx context.Context, className, version, requestType, requestAction string) (model.Config, error)
}

// ClassLister lists the known entity classes.
type ClassLister interface {
	Classes() []string
}

// Builder assembles API documents.
type Builder struct {
	configs ConfigSource
	classes ClassLister
	title   string
	logger  *zap.Logger
}

// NewBuilder creates a builder. title is the document title.
func NewBuilder(configs ConfigSource, classes ClassLister, title string, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{configs: configs, classes: classes, title: title, logger: logger}
}

type entityDoc struct {
	className string
	name      string
	config    model.Config
}

// Build resolves every entity for requestType and version and returns the
// validated document. Entities without an API config are left out.
func (b *Builder) Build(ctx context.Context, requestType, version string) (*openapi3.T, error) {
	var entities []entityDoc
	for _, class := range b.classes.Classes() {
		cfg, err := b.configs.GetConfig(ctx, class, version, requestType, RequestActionList)
		if err != nil {
			return nil, fmt.Errorf("apidoc: resolve %q: %w", class, err)
		}
		if _, ok := cfg.Definition(); !ok {
			continue
		}
		entities = append(entities, entityDoc{className: class, config: cfg})
	}
	assignNames(entities)

	doc := &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:       b.title,
			Version:     version,
			Description: fmt.Sprintf("Entity API for request type %q.", requestType),
		},
		Paths:      openapi3.NewPaths(),
		Components: &openapi3.Components{Schemas: openapi3.Schemas{}},
	}
	for _, e := range entities {
		def, _ := e.config[model.ConfigDefinition].(*model.EntityConfig)
		filters, _ := e.config[model.ConfigFilters].(*model.FiltersConfig)
		sorters, _ := e.config[model.ConfigSorters].(*model.SortersConfig)

		schema := entitySchema(e.className, def)
		doc.Components.Schemas[e.name] = openapi3.NewSchemaRef("", schema)
		ref := openapi3.NewSchemaRef("#/components/schemas/"+e.name, schema)

		doc.Tags = append(doc.Tags, &openapi3.Tag{Name: e.name, Description: e.className})
		base := "/" + strings.ToLower(e.name)
		doc.Paths.Set(base, &openapi3.PathItem{Get: listOperation(e.name, ref, filters, sorters)})
		doc.Paths.Set(base+"/{id}", &openapi3.PathItem{Get: getOperation(e.name, ref)})
	}

	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("apidoc: invalid document: %w", err)
	}
	b.logger.Debug("api document built",
		zap.String("request_type", requestType),
		zap.String("version", version),
		zap.Int("entities", len(entities)),
	)
	return doc, nil
}

// assignNames gives each entity the short name of its class, falling back to
// the dotted class name when two classes share a short name.
func assignNames(entities []entityDoc) {
	counts := make(map[string]int, len(entities))
	for _, e := range entities {
		counts[shortName(e.className)]++
	}
	for i := range entities {
		short := shortName(entities[i].className)
		if counts[short] > 1 {
			entities[i].name = sanitize(strings.ReplaceAll(entities[i].className, `\`, "."))
			continue
		}
		entities[i].name = short
	}
}

func shortName(className string) string {
	if i := strings.LastIndex(className, `\`); i >= 0 {
		className = className[i+1:]
	}
	return sanitize(className)
}

// sanitize keeps the characters allowed in component names.
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, s)
}

func entitySchema(className string, def *model.EntityConfig) *openapi3.Schema {
	s := openapi3.NewObjectSchema()
	s.Title = className
	if def == nil {
		return s
	}
	for _, name := range slices.Sorted(maps.Keys(def.Fields)) {
		f := def.Fields[name]
		prop := dataTypeSchema(f.DataType)
		prop.Description = f.Description
		s.WithProperty(name, prop)
	}
	return s
}

func dataTypeSchema(dataType string) *openapi3.Schema {
	switch dataType {
	case "integer", "smallint", "bigint":
		return openapi3.NewIntegerSchema()
	case "boolean":
		return openapi3.NewBoolSchema()
	case "float", "decimal", "money", "percent":
		return openapi3.NewFloat64Schema()
	case "date":
		return openapi3.NewStringSchema().WithFormat("date")
	case "datetime":
		return openapi3.NewDateTimeSchema()
	case "manyToOne", "oneToOne":
		return openapi3.NewIntegerSchema().WithFormat("int64")
	case "manyToMany", "oneToMany":
		return openapi3.NewArraySchema().WithItems(openapi3.NewIntegerSchema().WithFormat("int64"))
	default:
		return openapi3.NewStringSchema()
	}
}

func listOperation(name string, item *openapi3.SchemaRef, filters *model.FiltersConfig, sorters *model.SortersConfig) *openapi3.Operation {
	op := openapi3.NewOperation()
	op.OperationID = "list" + operationSuffix(name)
	op.Summary = "List " + name
	op.Tags = []string{name}

	if filters != nil {
		for _, field := range slices.Sorted(maps.Keys(filters.Fields)) {
			f := filters.Fields[field]
			schema := dataTypeSchema(f.DataType)
			if f.AllowArray {
				schema = openapi3.NewOneOfSchema(schema, openapi3.NewArraySchema().WithItems(dataTypeSchema(f.DataType)))
			}
			desc := f.Description
			if len(f.Operators) > 0 {
				desc = strings.TrimSpace(desc + " Operators: " + strings.Join(f.Operators, ", ") + ".")
			}
			op.AddParameter(openapi3.NewQueryParameter("filter[" + field + "]").
				WithSchema(schema).
				WithDescription(desc))
		}
	}
	if sorters != nil && len(sorters.Fields) > 0 {
		sort := openapi3.NewStringSchema()
		sort.Pattern = sortPattern(sorters)
		var defaults []string
		for _, field := range slices.Sorted(maps.Keys(sorters.Fields)) {
			switch sorters.Fields[field].Default {
			case "asc":
				defaults = append(defaults, field)
			case "desc":
				defaults = append(defaults, "-"+field)
			}
		}
		if len(defaults) > 0 {
			sort.Default = strings.Join(defaults, ",")
		}
		op.AddParameter(openapi3.NewQueryParameter("sort").
			WithSchema(sort).
			WithDescription("Comma-separated sort fields; prefix with - for descending order."))
	}

	list := openapi3.NewArraySchema()
	list.Items = item
	op.Responses = openapi3.NewResponses(
		openapi3.WithStatus(200, &openapi3.ResponseRef{Value: openapi3.NewResponse().
			WithDescription("Returns a list of " + name).
			WithJSONSchema(list)}),
	)
	return op
}

func getOperation(name string, item *openapi3.SchemaRef) *openapi3.Operation {
	op := openapi3.NewOperation()
	op.OperationID = "get" + operationSuffix(name)
	op.Summary = "Get " + name
	op.Tags = []string{name}
	op.AddParameter(openapi3.NewPathParameter("id").WithSchema(openapi3.NewStringSchema()))
	op.Responses = openapi3.NewResponses(
		openapi3.WithStatus(200, &openapi3.ResponseRef{Value: openapi3.NewResponse().
			WithDescription("Returns " + name).
			WithJSONSchemaRef(item)}),
		openapi3.WithStatus(404, &openapi3.ResponseRef{Value: openapi3.NewResponse().
			WithDescription(name + " not found")}),
	)
	return op
}

// sortPattern matches a comma-separated list of sort fields.
func sortPattern(sorters *model.SortersConfig) string {
	names := slices.Sorted(maps.Keys(sorters.Fields))
	for i, n := range names {
		names[i] = regexp.QuoteMeta(n)
	}
	field := "-?(" + strings.Join(names, "|") + ")"
	return "^" + field + "(," + field + ")*$"
}

func operationSuffix(name string) string {
	return strings.Map(func(r rune) rune {
		if r == '.' || r == '-' {
			return '_'
		}
		return r
	}, name)
}
