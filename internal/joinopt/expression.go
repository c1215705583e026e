// Package joinopt finds the fields of a filter expression that allow outer
// joins to be rewritten as inner joins, and applies that rewrite.
package joinopt

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/pitabwire/entityconfig/model"
)

// Comparison operators with special join semantics. Every other operator is
// passed through unchanged.
const (
	OpExists    = "EXISTS"
	OpNeqOrNull = "NEQ_OR_NULL"
)

// CompositeType is the logical connective of a Composite.
type CompositeType string

const (
	And CompositeType = "AND"
	Or  CompositeType = "OR"
	Not CompositeType = "NOT"
)

// Expression is a node of a boolean filter expression. The only node kinds
// are Comparison and Composite.
type Expression interface {
	expression()
}

// Comparison compares a field with a value.
type Comparison struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    any    `json:"value,omitempty"`
}

// Composite combines child expressions with a logical connective.
type Composite struct {
	Type        CompositeType `json:"type"`
	Expressions []Expression  `json:"expressions"`
}

func (Comparison) expression() {}
func (Composite) expression()  {}

// Cmp is shorthand for a Comparison.
func Cmp(field, operator string, value any) Comparison {
	return Comparison{Field: field, Operator: operator, Value: value}
}

// AndX, OrX and NotX build composites.
func AndX(exprs ...Expression) Composite { return Composite{Type: And, Expressions: exprs} }
func OrX(exprs ...Expression) Composite  { return Composite{Type: Or, Expressions: exprs} }
func NotX(expr Expression) Composite     { return Composite{Type: Not, Expressions: []Expression{expr}} }

// MaxDepth bounds composite nesting in decoded expressions.
const MaxDepth = 64

type rawNode struct {
	Field       string        `json:"field"`
	Operator    string        `json:"operator"`
	Value       any           `json:"value"`
	Type        CompositeType `json:"type"`
	Expressions []rawNode     `json:"expressions"`
}

// Decode parses an expression from JSON. A node with a "field" is a
// comparison; a node with a "type" is a composite. Composites nested deeper
// than MaxDepth are rejected.
//
//	{"type": "AND", "expressions": [{"field": "owner.id", "operator": "EQ", "value": 1}]}
func Decode(data []byte) (Expression, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var n rawNode
	if err := dec.Decode(&n); err != nil {
		return nil, model.NewBadRequestError(fmt.Sprintf("invalid expression: %v", err))
	}
	return n.expression(0)
}

func (n rawNode) expression(depth int) (Expression, error) {
	switch {
	case n.Field != "":
		if n.Operator == "" {
			return nil, model.NewBadRequestError(fmt.Sprintf("comparison on %q has no operator", n.Field))
		}
		return Comparison{Field: n.Field, Operator: n.Operator, Value: n.Value}, nil
	case n.Type != "":
		if depth >= MaxDepth {
			return nil, model.NewBadRequestError(fmt.Sprintf("expression nested deeper than %d composites", MaxDepth))
		}
		switch n.Type {
		case And, Or, Not:
		default:
			return nil, model.NewUnsupportedExpressionError(fmt.Sprintf("unknown composite type %q", n.Type))
		}
		c := Composite{Type: n.Type, Expressions: make([]Expression, 0, len(n.Expressions))}
		for _, child := range n.Expressions {
			e, err := child.expression(depth + 1)
			if err != nil {
				return nil, err
			}
			c.Expressions = append(c.Expressions, e)
		}
		return c, nil
	default:
		return nil, model.NewUnsupportedExpressionError("expression node is neither a comparison nor a composite")
	}
}
