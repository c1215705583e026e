package definition

import (
	"strconv"
	"strings"

	"github.com/pitabwire/entityconfig/model"
)

// LatestVersion selects the highest declared API version.
const LatestVersion = "latest"

// ResolveAPI picks the API definition serving the requested version: an exact
// match wins, otherwise the highest declared version not above the requested
// one. "latest" or an empty version selects the highest declared version.
func ResolveAPI(apis []model.APIDefinition, version string) (model.APIDefinition, bool) {
	latest := version == "" || version == LatestVersion

	best := -1
	for i, api := range apis {
		if !latest && api.Version == version {
			return api, true
		}
		if !latest && CompareVersions(api.Version, version) > 0 {
			continue
		}
		if best < 0 || CompareVersions(api.Version, apis[best].Version) > 0 {
			best = i
		}
	}
	if best < 0 {
		return model.APIDefinition{}, false
	}
	return apis[best], true
}

// CompareVersions compares dotted numeric versions segment by segment,
// treating missing segments as zero. Non-numeric segments compare as
// strings. It returns -1, 0 or 1.
func CompareVersions(a, b string) int {
	as := strings.Split(strings.TrimPrefix(a, "v"), ".")
	bs := strings.Split(strings.TrimPrefix(b, "v"), ".")

	for i := 0; i < max(len(as), len(bs)); i++ {
		x, y := segment(as, i), segment(bs, i)
		xn, xerr := strconv.Atoi(x)
		yn, yerr := strconv.Atoi(y)
		switch {
		case xerr == nil && yerr == nil:
			if xn != yn {
				if xn < yn {
					return -1
				}
				return 1
			}
		default:
			if c := strings.Compare(x, y); c != 0 {
				return c
			}
		}
	}
	return 0
}

func segment(parts []string, i int) string {
	if i < len(parts) && parts[i] != "" {
		return parts[i]
	}
	return "0"
}

// ValidVersion reports whether v is a dotted numeric version.
func ValidVersion(v string) bool {
	if v == "" {
		return false
	}
	for _, p := range strings.Split(strings.TrimPrefix(v, "v"), ".") {
		if _, err := strconv.Atoi(p); err != nil {
			return false
		}
	}
	return true
}
