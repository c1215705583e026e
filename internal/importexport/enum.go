package importexport

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/pitabwire/entityconfig/model"
)

// maxEnumLabelLength bounds the label of an enum option.
const maxEnumLabelLength = 255

// EnumValue is one option of an enum field.
type EnumValue struct {
	ID        string `json:"id,omitempty"`
	Label     string `json:"label"`
	IsDefault bool   `json:"is_default"`
	Priority  int    `json:"priority,omitempty"`
}

// EnumValueID derives the option identifier from a label: lower-cased, runs
// of characters other than ASCII letters and digits replaced by "_", and
// trimmed of leading and trailing "_".
func EnumValueID(label string) string {
	var b strings.Builder
	underscore := false
	for _, r := range strings.ToLower(label) {
		if r < utf8.RuneSelf && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
			underscore = false
			continue
		}
		if !underscore {
			b.WriteByte('_')
			underscore = true
		}
	}
	return strings.Trim(b.String(), "_")
}

// ValidateEnumValue checks that v can be stored. An empty option is valid,
// as is one that already has an ID. Otherwise the label must produce a
// non-empty identifier.
func ValidateEnumValue(v EnumValue, path string) []model.FieldError {
	if utf8.RuneCountInString(v.Label) > maxEnumLabelLength {
		return []model.FieldError{{
			Field:   path + ".label",
			Code:    "TOO_LONG",
			Message: "This value is too long. It should have 255 characters or less.",
		}}
	}
	if v.Label == "" || v.ID != "" {
		return nil
	}
	if EnumValueID(v.Label) == "" {
		return []model.FieldError{{
			Field:   path + ".label",
			Code:    "INVALID_ENUM_VALUE",
			Message: "This value should contain only alphabetic symbols, underscore, hyphen, spaces and numbers.",
		}}
	}
	return nil
}
