package importexport

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// toBool treats "no", "false", "0" and "" (case-insensitive) as false and any
// other string as true.
func toBool(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "no", "false", "0", "":
			return false
		}
		return true
	default:
		return toInt(v) != 0
	}
}

// toInt parses the leading integer of strings ("4v" is 4, "v3" is 0) and
// truncates floats.
func toInt(v any) int {
	switch x := v.(type) {
	case nil:
		return 0
	case bool:
		if x {
			return 1
		}
		return 0
	case int:
		return x
	case int32:
		return int(x)
	case int64:
		return int(x)
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0
		}
		return int(x)
	case json.Number:
		return leadingInt(x.String())
	case string:
		return leadingInt(x)
	default:
		return leadingInt(fmt.Sprint(v))
	}
}

func leadingInt(s string) int {
	s = strings.TrimLeft(s, " \t\n\r")
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		// Out of range: saturate like a numeric cast.
		if s[0] == '-' {
			return math.MinInt
		}
		return math.MaxInt
	}
	return n
}

// toString renders scalars the way they are written to export files:
// true is "1" and false is "".
func toString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		if x {
			return "1"
		}
		return ""
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
