package model

import "strings"

// Capabilities guarding the HTTP API.
const (
	CapConfigView   = "api:config:view"
	CapConfigManage = "api:config:manage"
	CapEntityView   = "entity:view"
	CapEntityExport = "entity:fields:export"
	CapEntityImport = "entity:fields:import"
)

// CapabilitySet is the set of capabilities granted to a caller. Keys are
// colon-separated capability strings and may end in a "*" wildcard segment
// (e.g. "api:*").
type CapabilitySet map[string]bool

// Has reports whether the set grants cap exactly or through a wildcard.
func (cs CapabilitySet) Has(cap string) bool {
	if cs[cap] {
		return true
	}
	for pattern := range cs {
		if matchWildcard(pattern, cap) {
			return true
		}
	}
	return false
}

// HasAll reports whether every capability in caps is granted.
func (cs CapabilitySet) HasAll(caps ...string) bool {
	for _, c := range caps {
		if !cs.Has(c) {
			return false
		}
	}
	return true
}

// matchWildcard reports whether pattern grants cap through a trailing "*".
//
//	"*"            matches anything
//	"api:*"        matches "api:config:view"
//	"api:config:*" matches "api:config:view"
//	"api:config"   matches nothing (exact keys are handled by the map lookup)
func matchWildcard(pattern, cap string) bool {
	if pattern == "*" {
		return true
	}
	prefix, ok := strings.CutSuffix(pattern, "*")
	if !ok || !strings.HasSuffix(prefix, ":") {
		return false
	}
	return strings.HasPrefix(cap, prefix)
}

// CapabilityResolver resolves the full capability set for a request context.
type CapabilityResolver interface {
	Resolve(rctx *RequestContext) (CapabilitySet, error)
	Invalidate(subjectID, tenantID string)
}

// PolicyEvaluator turns caller roles into capabilities.
type PolicyEvaluator interface {
	ResolveCapabilities(rctx *RequestContext) (CapabilitySet, error)
	Sync() error
}
