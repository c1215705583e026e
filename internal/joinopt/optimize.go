package joinopt

import "strings"

// JoinType is the kind of a join.
type JoinType string

const (
	LeftJoin  JoinType = "LEFT"
	InnerJoin JoinType = "INNER"
)

// Join is a join on an association path such as "owner" or
// "owner.organization".
type Join struct {
	Path string   `json:"path"`
	Type JoinType `json:"type"`
}

// Optimize returns a copy of joins where every LEFT join on the path of an
// optimizable field, or on any ancestor of that path, is turned into an
// INNER join. For the field "owner.organization.name" the joins on "owner",
// "owner.organization" and "owner.organization.name" qualify.
func Optimize(joins []Join, e Expression) ([]Join, []string, error) {
	fields, err := OptimizableFields(e)
	if err != nil {
		return nil, nil, err
	}

	paths := make(map[string]bool)
	for _, f := range fields {
		for i := range len(f) {
			if f[i] == '.' {
				paths[f[:i]] = true
			}
		}
		paths[f] = true
	}

	out := make([]Join, len(joins))
	for i, j := range joins {
		if strings.EqualFold(string(j.Type), string(LeftJoin)) && paths[j.Path] {
			j.Type = InnerJoin
		}
		out[i] = j
	}
	return out, fields, nil
}
