package joinopt

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/pitabwire/entityconfig/model"
)

// FieldVisitor walks expressions and tracks, per field, whether every
// comparison on it allows an inner join. A field's flag is set by its first
// comparison and can only be lowered afterwards.
type FieldVisitor struct {
	flags map[string]bool
	order []string
}

// NewFieldVisitor returns a visitor with an empty accumulator.
func NewFieldVisitor() *FieldVisitor {
	return &FieldVisitor{flags: make(map[string]bool)}
}

// Walk visits e and its children in order.
func (v *FieldVisitor) Walk(e Expression) error {
	switch n := e.(type) {
	case Comparison:
		v.walkComparison(n)
	case *Comparison:
		if n == nil {
			return model.NewUnsupportedExpressionError("nil comparison node")
		}
		v.walkComparison(*n)
	case Composite:
		return v.walkComposite(n)
	case *Composite:
		if n == nil {
			return model.NewUnsupportedExpressionError("nil composite node")
		}
		return v.walkComposite(*n)
	default:
		return model.NewUnsupportedExpressionError(fmt.Sprintf("unsupported expression node %T", e))
	}
	return nil
}

func (v *FieldVisitor) walkComparison(c Comparison) {
	ok := optimizable(c)
	prev, seen := v.flags[c.Field]
	if !seen {
		v.flags[c.Field] = ok
		v.order = append(v.order, c.Field)
		return
	}
	if prev && !ok {
		v.flags[c.Field] = false
	}
}

func (v *FieldVisitor) walkComposite(c Composite) error {
	for _, child := range c.Expressions {
		if err := v.Walk(child); err != nil {
			return err
		}
	}
	return nil
}

// Fields returns the fields whose flag is still set, in first-seen order.
func (v *FieldVisitor) Fields() []string {
	fields := make([]string, 0, len(v.order))
	for _, f := range v.order {
		if v.flags[f] {
			fields = append(fields, f)
		}
	}
	return fields
}

// OptimizableFields walks e with a fresh visitor and returns its fields.
func OptimizableFields(e Expression) ([]string, error) {
	v := NewFieldVisitor()
	if err := v.Walk(e); err != nil {
		return nil, err
	}
	return v.Fields(), nil
}

func optimizable(c Comparison) bool {
	switch c.Operator {
	case OpExists:
		return truthy(c.Value)
	case OpNeqOrNull:
		return false
	default:
		return true
	}
}

// truthy converts a comparison value to a boolean. nil, false, zero numbers,
// empty lists and maps, "" and "0" are false.
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return x != "" && x != "0"
	case json.Number:
		f, err := x.Float64()
		return err != nil || f != 0
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return !rv.IsZero()
	case reflect.String:
		return truthy(rv.String())
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() > 0
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return false
		}
		return truthy(rv.Elem().Interface())
	default:
		return true
	}
}
