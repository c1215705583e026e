package importexport

import (
	"strings"
	"testing"
)

func TestValidateEnumValue(t *testing.T) {
	tests := []struct {
		name  string
		value EnumValue
		valid bool
	}{
		{"empty", EnumValue{}, true},
		{"filled", EnumValue{ID: "valId", Label: "valLabel"}, true},
		{"label only", EnumValue{Label: "Value 1"}, true},
		{"wrong", EnumValue{Label: "+"}, false},
		{"punctuation only", EnumValue{Label: " - "}, false},
		{"existing id keeps odd label", EnumValue{ID: "plus", Label: "+"}, true},
		{"too long", EnumValue{Label: strings.Repeat("a", 256)}, false},
		{"max length", EnumValue{Label: strings.Repeat("a", 255)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := ValidateEnumValue(tt.value, "enum.enum_options.0")
			if valid := len(errs) == 0; valid != tt.valid {
				t.Errorf("valid = %v, want %v (errors: %v)", valid, tt.valid, errs)
			}
		})
	}
}

func TestEnumValueID(t *testing.T) {
	tests := map[string]string{
		"Value 1":            "value_1",
		"  In -- Progress! ": "in_progress",
		"+":                  "",
		"Café":               "caf",
	}
	for label, want := range tests {
		if got := EnumValueID(label); got != want {
			t.Errorf("EnumValueID(%q) = %q, want %q", label, got, want)
		}
	}
}

func TestCoercions(t *testing.T) {
	ints := []struct {
		in   any
		want int
	}{
		{"4v", 4},
		{"v3", 0},
		{" -12abc", -12},
		{7.9, 7},
		{true, 1},
	}
	for _, tt := range ints {
		if got := toInt(tt.in); got != tt.want {
			t.Errorf("toInt(%#v) = %d, want %d", tt.in, got, tt.want)
		}
	}

	bools := []struct {
		in   any
		want bool
	}{
		{"No", false},
		{0, false},
		{"anything", true},
		{2.0, true},
	}
	for _, tt := range bools {
		if got := toBool(tt.in); got != tt.want {
			t.Errorf("toBool(%#v) = %v, want %v", tt.in, got, tt.want)
		}
	}

	strs := []struct {
		in   any
		want string
	}{
		{2, "2"},
		{2.5, "2.5"},
		{true, "1"},
		{false, ""},
	}
	for _, tt := range strs {
		if got := toString(tt.in); got != tt.want {
			t.Errorf("toString(%#v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
