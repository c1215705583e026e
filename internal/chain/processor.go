package chain

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pitabwire/entityconfig/internal/observability"
	"github.com/pitabwire/entityconfig/model"
)

// StageError reports the failure of one stage. Err is the error returned by
// the stage and stays reachable through errors.Is and errors.As.
type StageError struct {
	Action string
	Stage  string
	Err    error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: stage %s: %v", e.Action, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// StageObserver is notified after every stage execution.
type StageObserver interface {
	ObserveStage(action, stage string, duration time.Duration, err error)
}

// Processor runs the stages registered for a single action.
type Processor[C Context] struct {
	action     string
	stages     []NamedStage[C]
	newContext func(action string) C
	logger     *zap.Logger
	observer   StageObserver
}

// Option configures optional Processor dependencies.
type Option func(*options)

type options struct {
	logger   *zap.Logger
	observer StageObserver
}

// WithLogger sets the logger used for stage debug output.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithObserver sets the stage observer.
func WithObserver(obs StageObserver) Option {
	return func(o *options) { o.observer = obs }
}

// NewProcessor resolves the stages of action from bag. The stage list is
// fixed from this point on. newContext builds an empty context for the
// action and is used by CreateContext.
func NewProcessor[C Context](action string, bag *Bag[C], newContext func(action string) C, opts ...Option) *Processor[C] {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Processor[C]{
		action:     action,
		stages:     bag.Stages(action),
		newContext: newContext,
		logger:     o.logger,
		observer:   o.observer,
	}
}

// Action returns the action this processor serves.
func (p *Processor[C]) Action() string { return p.action }

// StageNames returns the names of the stages in execution order.
func (p *Processor[C]) StageNames() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name
	}
	return names
}

// CreateContext returns a fresh context tagged with the processor's action.
func (p *Processor[C]) CreateContext() C {
	return p.newContext(p.action)
}

// Process runs the stages in order against c. It stops early when a stage
// calls Stop on the context or returns an error. Errors are returned as
// *StageError.
func (p *Processor[C]) Process(ctx context.Context, c C) error {
	if c.Action() != p.action {
		return model.NewLogicError(fmt.Sprintf(
			"context for action %q cannot be processed by %q processor", c.Action(), p.action))
	}

	for _, s := range p.stages {
		if c.IsStopped() {
			p.logger.Debug("chain stopped", zap.String("action", p.action), zap.String("skipped_from", s.Name))
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.run(ctx, s, c); err != nil {
			return &StageError{Action: p.action, Stage: s.Name, Err: err}
		}
	}
	return nil
}

func (p *Processor[C]) run(ctx context.Context, s NamedStage[C], c C) error {
	ctx, span := observability.StartSpan(ctx, "chain."+p.action+"."+s.Name,
		observability.AttrAction.String(p.action),
		observability.AttrStage.String(s.Name),
	)

	start := time.Now()
	err := s.Stage.Process(ctx, c)
	duration := time.Since(start)

	observability.EndSpanWithError(span, err)
	if p.observer != nil {
		p.observer.ObserveStage(p.action, s.Name, duration, err)
	}
	p.logger.Debug("stage executed",
		zap.String("action", p.action),
		zap.String("stage", s.Name),
		zap.Duration("duration", duration),
		zap.Error(err),
	)
	return err
}
