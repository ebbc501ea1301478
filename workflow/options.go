package workflow

import (
	"time"

	"github.com/nbaghiro/flowmaestro/workflow/credit"
	"github.com/nbaghiro/flowmaestro/workflow/emit"
	"github.com/nbaghiro/flowmaestro/workflow/store"
)

// Option is a functional option for configuring an Engine.
//
// Example:
//
//	engine, err := workflow.NewEngine(
//	    executor,
//	    workflow.WithEmitter(emit.NewLogEmitter(os.Stderr, true)),
//	    workflow.WithSnapshotStore(snapStore),
//	    workflow.WithCreditService(credits),
//	    workflow.WithMaxConcurrent(16),
//	)
type Option func(*engineConfig) error

// engineConfig collects options before they are applied to an Engine.
type engineConfig struct {
	emitter            emit.Emitter
	metrics            *PrometheusMetrics
	creditService      credit.Service
	skipCreditCheck    bool
	snapshotStore      store.SnapshotStore
	maxSteps           int
	maxConcurrent      int
	defaultNodeTimeout time.Duration
	now                func() time.Time
}

// defaultMaxSteps bounds the scheduler loop. Each step dispatches at least one
// node, so the bound is generous for any workflow the builder accepts.
const defaultMaxSteps = 10000

func defaultEngineConfig() engineConfig {
	return engineConfig{
		emitter:  emit.NewNullEmitter(),
		maxSteps: defaultMaxSteps,
		now:      time.Now,
	}
}

// WithEmitter sets the event sink for all executions. Defaults to a null
// emitter. Use emit.Multi to fan out to several sinks.
func WithEmitter(e emit.Emitter) Option {
	return func(cfg *engineConfig) error {
		if e == nil {
			e = emit.NewNullEmitter()
		}
		cfg.emitter = e
		return nil
	}
}

// WithMetrics enables Prometheus metrics collection.
//
// Example:
//
//	registry := prometheus.NewRegistry()
//	metrics := workflow.NewPrometheusMetrics(registry)
//	engine, err := workflow.NewEngine(executor, workflow.WithMetrics(metrics))
func WithMetrics(metrics *PrometheusMetrics) Option {
	return func(cfg *engineConfig) error {
		cfg.metrics = metrics
		return nil
	}
}

// WithCreditService attaches a credit backend. When set (and the execution
// carries a workspace ID), every run performs pre-flight estimation and
// reservation, per-node accrual, and finalization on exit.
func WithCreditService(svc credit.Service) Option {
	return func(cfg *engineConfig) error {
		cfg.creditService = svc
		return nil
	}
}

// WithSkipCreditCheck disables the pre-flight credit check and reservation
// while keeping accrual accounting. Intended for internal and administrative
// executions.
func WithSkipCreditCheck(skip bool) Option {
	return func(cfg *engineConfig) error {
		cfg.skipCreditCheck = skip
		return nil
	}
}

// WithSnapshotStore attaches snapshot persistence. When set, the engine saves
// a snapshot on pause, on failure, and on completion, and Resume can restore
// from the latest stored snapshot.
func WithSnapshotStore(st store.SnapshotStore) Option {
	return func(cfg *engineConfig) error {
		cfg.snapshotStore = st
		return nil
	}
}

// WithMaxSteps bounds the scheduler loop. Exceeding the bound fails the
// execution with ErrMaxStepsExceeded. Default: 10000.
func WithMaxSteps(n int) Option {
	return func(cfg *engineConfig) error {
		if n <= 0 {
			return &EngineError{Message: "max steps must be positive", Code: "INVALID_OPTION"}
		}
		cfg.maxSteps = n
		return nil
	}
}

// WithMaxConcurrent overrides the per-workflow concurrency cap for every
// execution on this engine. Zero (the default) defers to each workflow's own
// MaxConcurrentNodes.
func WithMaxConcurrent(n int) Option {
	return func(cfg *engineConfig) error {
		if n < 0 {
			return &EngineError{Message: "max concurrent must be non-negative", Code: "INVALID_OPTION"}
		}
		cfg.maxConcurrent = n
		return nil
	}
}

// WithDefaultNodeTimeout bounds individual node executions that do not carry
// their own timeoutMs config. Zero (the default) disables the bound.
//
// When exceeded, the node's context is cancelled and the node is marked
// failed; independent branches continue.
func WithDefaultNodeTimeout(d time.Duration) Option {
	return func(cfg *engineConfig) error {
		if d < 0 {
			return &EngineError{Message: "node timeout must be non-negative", Code: "INVALID_OPTION"}
		}
		cfg.defaultNodeTimeout = d
		return nil
	}
}

// WithClock replaces the wall-clock source used for execution metadata and
// snapshot timestamps. Test hook; defaults to time.Now.
func WithClock(now func() time.Time) Option {
	return func(cfg *engineConfig) error {
		if now == nil {
			now = time.Now
		}
		cfg.now = now
		return nil
	}
}
