// Package capability resolves and caches caller capabilities from a static
// role policy.
package capability

import (
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/pitabwire/entityconfig/model"
)

// Observer counts capability cache hits and misses.
type Observer interface {
	RecordCapabilityCacheHit()
	RecordCapabilityCacheMiss()
}

// Resolver implements model.CapabilityResolver on top of a PolicyEvaluator,
// caching resolved sets per subject, tenant and role list.
type Resolver struct {
	evaluator model.PolicyEvaluator
	observer  Observer
	cache     *expirable.LRU[string, model.CapabilitySet] // nil disables caching
}

// NewResolver returns a Resolver caching results for ttl. maxEntries bounds
// the cache, least recently used first out; zero means unbounded. A
// non-positive ttl disables caching.
func NewResolver(evaluator model.PolicyEvaluator, ttl time.Duration, maxEntries int, observer Observer) *Resolver {
	r := &Resolver{evaluator: evaluator, observer: observer}
	if ttl > 0 {
		r.cache = expirable.NewLRU[string, model.CapabilitySet](max(maxEntries, 0), nil, ttl)
	}
	return r
}

// cacheKey includes the roles so a token carrying new roles is not served
// stale capabilities.
func cacheKey(rctx *model.RequestContext) string {
	return subjectPrefix(rctx.SubjectID, rctx.TenantID) + strings.Join(rctx.Roles, ",")
}

func subjectPrefix(subjectID, tenantID string) string {
	return subjectID + ":" + tenantID + ":"
}

func (r *Resolver) Resolve(rctx *model.RequestContext) (model.CapabilitySet, error) {
	if r.cache == nil {
		return r.evaluator.ResolveCapabilities(rctx)
	}

	key := cacheKey(rctx)
	if caps, ok := r.cache.Get(key); ok {
		r.record(true)
		return caps, nil
	}
	r.record(false)

	caps, err := r.evaluator.ResolveCapabilities(rctx)
	if err != nil {
		return nil, err
	}
	r.cache.Add(key, caps)
	return caps, nil
}

func (r *Resolver) record(hit bool) {
	switch {
	case r.observer == nil:
	case hit:
		r.observer.RecordCapabilityCacheHit()
	default:
		r.observer.RecordCapabilityCacheMiss()
	}
}

// Invalidate drops every cached set of the subject in tenant, whatever the
// roles it was resolved for.
func (r *Resolver) Invalidate(subjectID, tenantID string) {
	if r.cache == nil {
		return
	}
	prefix := subjectPrefix(subjectID, tenantID)
	for _, key := range r.cache.Keys() {
		if strings.HasPrefix(key, prefix) {
			r.cache.Remove(key)
		}
	}
}

// InvalidateAll clears the cache, e.g. after the policy is reloaded.
func (r *Resolver) InvalidateAll() {
	if r.cache != nil {
		r.cache.Purge()
	}
}
