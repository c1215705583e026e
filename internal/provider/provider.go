// Package provider serves resolved entity API configs from a cache, running
// the get-config chain on a miss.
package provider

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/pitabwire/entityconfig/internal/getconfig"
	"github.com/pitabwire/entityconfig/internal/observability"
	"github.com/pitabwire/entityconfig/model"
)

// Resolution outcomes reported to the Observer.
const (
	OutcomeResolved = "resolved"
	OutcomeEmpty    = "empty"
	OutcomeFailed   = "failed"
)

// Processor runs the get-config chain.
type Processor interface {
	CreateContext() *getconfig.Context
	Process(ctx context.Context, c *getconfig.Context) error
}

// Observer receives cache and resolution events.
type Observer interface {
	ObserveCacheLookup(cache string, hit bool)
	ObserveResolution(outcome string, duration time.Duration)
}

// CacheKey derives the cache key of a config. Each part is length-prefixed
// so distinct triples never produce the same key. The request action is not
// part of the key.
func CacheKey(requestType, version, className string) string {
	var b strings.Builder
	for _, part := range []string{requestType, version, className} {
		b.WriteString(strconv.Itoa(len(part)))
		b.WriteByte(':')
		b.WriteString(part)
	}
	return b.String()
}

// Provider returns entity configs, resolving each (requestType, version,
// className) at most once per cache lifetime. Concurrent callers asking for
// the same key share a single resolution. Failed resolutions are not cached.
type Provider struct {
	processor  Processor
	cache      Cache
	group      singleflight.Group
	generation atomic.Uint64
	// resetMu orders cache writes against Reset: writers hold it shared
	// across their generation check and Set, Reset holds it exclusively.
	resetMu  sync.RWMutex
	logger   *zap.Logger
	observer Observer
}

// Option configures optional Provider dependencies.
type Option func(*Provider)

// WithCache sets the cache policy. The default is a MemoryCache.
func WithCache(c Cache) Option {
	return func(p *Provider) { p.cache = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

// WithObserver sets the cache and resolution observer.
func WithObserver(obs Observer) Option {
	return func(p *Provider) { p.observer = obs }
}

// New creates a Provider running processor on cache misses.
func New(processor Processor, opts ...Option) *Provider {
	p := &Provider{
		processor: processor,
		cache:     NewMemoryCache(),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Cache returns the cache policy in use.
func (p *Provider) Cache() Cache { return p.cache }

// GetConfig returns the config of className for the given version and
// request type. The result holds "definition", "filters" and "sorters" only
// when the chain produced them; an empty result is a valid, cached answer.
func (p *Provider) GetConfig(ctx context.Context, className, version, requestType, requestAction string) (model.Config, error) {
	ctx, span := observability.StartSpan(ctx, "provider.GetConfig",
		observability.AttrClassName.String(className),
		observability.AttrVersion.String(version),
		observability.AttrRequestType.String(requestType),
	)

	entry, hit, err := p.get(ctx, className, version, requestType, requestAction)
	span.SetAttributes(observability.AttrCacheHit.Bool(hit))
	observability.EndSpanWithError(span, err)
	if err != nil {
		return nil, err
	}
	return entry.Config(), nil
}

func (p *Provider) get(ctx context.Context, className, version, requestType, requestAction string) (*Entry, bool, error) {
	key := CacheKey(requestType, version, className)
	logger := observability.ClassLogger(ctx, p.logger, className)

	if e, ok := p.lookup(ctx, logger, key); ok {
		logger.Debug("config cache hit", zap.String("cache", p.cache.Name()))
		return e, true, nil
	}

	gen := p.generation.Load()
	flight := key + "#" + strconv.FormatUint(gen, 10)
	v, err, _ := p.group.Do(flight, func() (any, error) {
		// A flight that finished just before this one started may have
		// filled the slot.
		if e, ok, err := p.cache.Get(ctx, key); err == nil && ok {
			return e, nil
		}

		e, err := p.resolve(context.WithoutCancel(ctx), className, version, requestType, requestAction)
		if err != nil {
			return nil, err
		}
		p.store(ctx, logger, gen, key, e)
		return e, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*Entry), false, nil
}

// store caches e unless Reset ran since the resolution started.
func (p *Provider) store(ctx context.Context, logger *zap.Logger, gen uint64, key string, e *Entry) {
	p.resetMu.RLock()
	defer p.resetMu.RUnlock()

	if p.generation.Load() != gen {
		return
	}
	if err := p.cache.Set(ctx, key, e); err != nil {
		logger.Warn("config cache write failed",
			zap.String("cache", p.cache.Name()),
			zap.Error(err),
		)
	}
}

func (p *Provider) lookup(ctx context.Context, logger *zap.Logger, key string) (*Entry, bool) {
	e, ok, err := p.cache.Get(ctx, key)
	if err != nil {
		logger.Warn("config cache read failed, resolving without cache",
			zap.String("cache", p.cache.Name()),
			zap.Error(err),
		)
		ok = false
	}
	if p.observer != nil {
		p.observer.ObserveCacheLookup(p.cache.Name(), ok)
	}
	return e, ok
}

func (p *Provider) resolve(ctx context.Context, className, version, requestType, requestAction string) (*Entry, error) {
	start := time.Now()

	c := p.processor.CreateContext()
	if err := c.SetClassName(className); err != nil {
		return nil, err
	}
	c.SetVersion(version)
	c.SetRequestType(requestType)
	c.SetRequestAction(requestAction)

	err := p.processor.Process(ctx, c)
	duration := time.Since(start)
	if err != nil {
		p.observe(OutcomeFailed, duration)
		return nil, fmt.Errorf("resolve config of %q: %w", className, err)
	}

	e := entryFromContext(c)
	if e.Empty() {
		p.observe(OutcomeEmpty, duration)
	} else {
		p.observe(OutcomeResolved, duration)
	}
	p.logger.Debug("config resolved",
		zap.String("class", className),
		zap.String("version", version),
		zap.String("request_type", requestType),
		zap.Strings("keys", e.Present),
		zap.Duration("duration", duration),
	)
	return e, nil
}

func (p *Provider) observe(outcome string, d time.Duration) {
	if p.observer != nil {
		p.observer.ObserveResolution(outcome, d)
	}
}

// Reset drops every cached config. Resolutions in flight when Reset is
// called are returned to their callers but not cached.
func (p *Provider) Reset(ctx context.Context) error {
	p.resetMu.Lock()
	defer p.resetMu.Unlock()

	p.generation.Add(1)
	if err := p.cache.Reset(ctx); err != nil {
		return fmt.Errorf("reset %s config cache: %w", p.cache.Name(), err)
	}
	p.logger.Info("config cache reset", zap.String("cache", p.cache.Name()))
	return nil
}
