package joinopt

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"testing"

	"github.com/pitabwire/entityconfig/model"
)

type unknownNode struct{}

func (unknownNode) expression() {}

// visitedComparisons lists the fields of all comparisons in walk order.
func visitedComparisons(e Expression) []string {
	var out []string
	var walk func(Expression)
	walk = func(e Expression) {
		switch n := e.(type) {
		case Comparison:
			out = append(out, n.Field)
		case Composite:
			for _, c := range n.Expressions {
				walk(c)
			}
		}
	}
	walk(e)
	return out
}

func mustFields(t *testing.T, e Expression) []string {
	t.Helper()
	fields, err := OptimizableFields(e)
	if err != nil {
		t.Fatalf("OptimizableFields() error = %v", err)
	}
	return fields
}

func TestOptimizableFields_monotonicDowngrade(t *testing.T) {
	tests := []struct {
		name string
		expr Expression
	}{
		{"optimizable first", AndX(Cmp("status", "EQ", "open"), Cmp("status", OpNeqOrNull, "closed"))},
		{"non-optimizable first", AndX(Cmp("status", OpNeqOrNull, "closed"), Cmp("status", "EQ", "open"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if fields := mustFields(t, tt.expr); len(fields) != 0 {
				t.Errorf("fields = %v, want none", fields)
			}
		})
	}
}

type flag bool

func TestOptimizableFields_existsOperand(t *testing.T) {
	var nilMap map[string]any
	one := 1
	tests := []struct {
		value any
		want  bool
	}{
		{true, true},
		{false, false},
		{nil, false},
		{"", false},
		{"0", false},
		{"yes", true},
		{0, false},
		{1, true},
		{0.0, false},
		{json.Number("0"), false},
		{json.Number("2"), true},
		{[]any{}, false},
		{[]any{1}, true},
		{uint(0), false},
		{uint8(0), false},
		{uint64(3), true},
		{int8(0), false},
		{int32(0), false},
		{int32(-1), true},
		{float32(0), false},
		{float32(0.5), true},
		{flag(false), false},
		{flag(true), true},
		{[]string{}, false},
		{[]string{"x"}, true},
		{[0]int{}, false},
		{map[string]any{}, false},
		{nilMap, false},
		{map[string]any{"k": 1}, true},
		{(*int)(nil), false},
		{&one, true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%T(%v)", tt.value, tt.value), func(t *testing.T) {
			fields := mustFields(t, Cmp("deletedAt", OpExists, tt.value))
			if got := len(fields) == 1; got != tt.want {
				t.Errorf("EXISTS %#v optimizable = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestOptimizableFields_falsyExistsKeepsLeftJoin(t *testing.T) {
	joins := []Join{{Path: "deletedAt", Type: LeftJoin}}
	for _, v := range []any{uint(0), int32(0), float32(0), []string{}, map[string]any{}} {
		out, _, err := Optimize(joins, Cmp("deletedAt", OpExists, v))
		if err != nil {
			t.Fatal(err)
		}
		if out[0].Type != LeftJoin {
			t.Errorf("EXISTS %#v rewrote the join to %s", v, out[0].Type)
		}
	}
}

func TestOptimizableFields_compositeTraversal(t *testing.T) {
	cmp1 := Cmp("owner.name", "EQ", "x")
	cmp2 := Cmp("organization.id", OpNeqOrNull, 3)
	cmp3 := Cmp("createdAt", "GT", "2024-01-01")
	tree := AndX(OrX(cmp1, cmp2), cmp3)

	if got, want := visitedComparisons(tree), []string{"owner.name", "organization.id", "createdAt"}; !slices.Equal(got, want) {
		t.Errorf("walk order = %v, want %v", got, want)
	}

	nested := mustFields(t, tree)
	flat := mustFields(t, AndX(cmp3, cmp2, cmp1))

	if want := []string{"owner.name", "createdAt"}; !slices.Equal(nested, want) {
		t.Errorf("nested fields = %v, want %v", nested, want)
	}
	if !slices.Equal(slices.Sorted(slices.Values(nested)), slices.Sorted(slices.Values(flat))) {
		t.Errorf("nesting changed the result: %v vs %v", nested, flat)
	}
}

func TestOptimizableFields_notAndPointers(t *testing.T) {
	c := Cmp("email", "CONTAINS", "@acme")
	fields := mustFields(t, &Composite{Type: Not, Expressions: []Expression{&c}})
	if !slices.Equal(fields, []string{"email"}) {
		t.Errorf("fields = %v, want [email]", fields)
	}
}

func TestOptimizableFields_unsupportedNode(t *testing.T) {
	tests := map[string]Expression{
		"unknown kind":        AndX(Cmp("a", "EQ", 1), unknownNode{}),
		"nil":                 nil,
		"nil comparison":      AndX((*Comparison)(nil)),
		"nil composite":       OrX(Cmp("a", "EQ", 1), (*Composite)(nil)),
		"nil root composite":  (*Composite)(nil),
		"nil root comparison": (*Comparison)(nil),
	}
	for name, e := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := OptimizableFields(e)
			if code := model.CodeOf(err); code != model.ErrUnsupportedExpression {
				t.Errorf("code = %q, want %q (err %v)", code, model.ErrUnsupportedExpression, err)
			}
		})
	}
}

func TestFieldVisitor_accumulatesAcrossWalks(t *testing.T) {
	v := NewFieldVisitor()
	for _, c := range []Comparison{
		Cmp("a", "EQ", 1),
		Cmp("b", "EQ", 1),
		Cmp("a", OpNeqOrNull, 1),
		Cmp("a", "EQ", 1),
	} {
		if err := v.Walk(c); err != nil {
			t.Fatal(err)
		}
	}
	if got := v.Fields(); !slices.Equal(got, []string{"b"}) {
		t.Errorf("Fields() = %v, want [b]", got)
	}
}

func TestDecode(t *testing.T) {
	data := []byte(`{
		"type": "AND",
		"expressions": [
			{"type": "OR", "expressions": [
				{"field": "owner.name", "operator": "EQ", "value": "x"},
				{"field": "deletedAt", "operator": "EXISTS", "value": 0}
			]},
			{"field": "status", "operator": "NEQ_OR_NULL", "value": "closed"}
		]
	}`)

	e, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	root, ok := e.(Composite)
	if !ok || root.Type != And || len(root.Expressions) != 2 {
		t.Fatalf("root = %#v", e)
	}
	if fields := mustFields(t, e); !slices.Equal(fields, []string{"owner.name"}) {
		t.Errorf("fields = %v, want [owner.name]", fields)
	}
}

// nestedAnd builds depth AND composites around a single comparison.
func nestedAnd(depth int) []byte {
	leaf := `{"field":"a","operator":"EQ","value":1}`
	return []byte(strings.Repeat(`{"type":"AND","expressions":[`, depth) + leaf + strings.Repeat(`]}`, depth))
}

func TestDecode_depth(t *testing.T) {
	e, err := Decode(nestedAnd(MaxDepth))
	if err != nil {
		t.Fatalf("Decode at MaxDepth error = %v", err)
	}
	if fields := mustFields(t, e); !slices.Equal(fields, []string{"a"}) {
		t.Errorf("fields = %v, want [a]", fields)
	}

	for _, depth := range []int{MaxDepth + 1, 5000} {
		_, err := Decode(nestedAnd(depth))
		if code := model.CodeOf(err); code != model.ErrBadRequest {
			t.Errorf("depth %d: code = %q, want %q", depth, code, model.ErrBadRequest)
		}
	}
}

func TestDecode_errors(t *testing.T) {
	tests := []struct {
		name string
		data string
		code string
	}{
		{"malformed", `{"type":`, model.ErrBadRequest},
		{"no operator", `{"field": "a"}`, model.ErrBadRequest},
		{"unknown composite", `{"type": "XOR", "expressions": []}`, model.ErrUnsupportedExpression},
		{"empty node", `{}`, model.ErrUnsupportedExpression},
		{"bad child", `{"type": "AND", "expressions": [{}]}`, model.ErrUnsupportedExpression},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.data))
			if code := model.CodeOf(err); code != tt.code {
				t.Errorf("code = %q, want %q (err %v)", code, tt.code, err)
			}
		})
	}
}

func TestOptimize(t *testing.T) {
	joins := []Join{
		{Path: "owner", Type: LeftJoin},
		{Path: "owner.organization", Type: LeftJoin},
		{Path: "contacts", Type: LeftJoin},
		{Path: "tags", Type: InnerJoin},
		{Path: "status", Type: LeftJoin},
	}
	expr := AndX(
		Cmp("owner.organization.name", "EQ", "Acme"),
		Cmp("contacts.email", OpNeqOrNull, "x@acme.test"),
		Cmp("status", OpExists, true),
	)

	out, fields, err := Optimize(joins, expr)
	if err != nil {
		t.Fatal(err)
	}

	if want := []string{"owner.organization.name", "status"}; !slices.Equal(fields, want) {
		t.Errorf("fields = %v, want %v", fields, want)
	}
	want := []Join{
		{Path: "owner", Type: InnerJoin},
		{Path: "owner.organization", Type: InnerJoin},
		{Path: "contacts", Type: LeftJoin},
		{Path: "tags", Type: InnerJoin},
		{Path: "status", Type: InnerJoin},
	}
	if !slices.Equal(out, want) {
		t.Errorf("joins = %v, want %v", out, want)
	}
	if joins[0].Type != LeftJoin {
		t.Error("input joins were modified")
	}
}

func TestOptimize_error(t *testing.T) {
	if _, _, err := Optimize([]Join{{Path: "a", Type: LeftJoin}}, unknownNode{}); err == nil {
		t.Error("Optimize of an unsupported node should fail")
	}
}
