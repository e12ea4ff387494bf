// Package watcher drives the resolve, poll, diff and emit cycle.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"cwstate/internal/diff"
	"cwstate/internal/metrics"
	"cwstate/internal/model"
	"cwstate/internal/resolver"
	"cwstate/internal/storage"
)

const defaultFailureThreshold = 3

// EndpointResolver chooses the endpoint to poll.
type EndpointResolver interface {
	Resolve(ctx context.Context, address, override string) (model.ResolvedEndpoint, error)
	Failover(ctx context.Context, address string, failed []resolver.Attempt) (model.ResolvedEndpoint, error)
}

// StateFetcher reads a full snapshot of contract state.
type StateFetcher interface {
	FetchState(ctx context.Context, baseURL, contract string) (model.Snapshot, error)
}

// Config holds runtime settings for the watcher.
type Config struct {
	Address          string
	Override         string
	PollInterval     time.Duration
	FailureThreshold int
	MaxRetries       int
	RetryBackoff     time.Duration
}

// Watcher polls a contract and reports state changes to a sink. Run must be
// called at most once.
type Watcher struct {
	cfg      Config
	resolver EndpointResolver
	fetcher  StateFetcher
	sinks    []storage.Sink
	metrics  *metrics.Metrics
	logger   *zap.Logger
	runID    uuid.UUID

	state atomic.Int32

	// Owned by the Run goroutine.
	endpoint model.ResolvedEndpoint
	previous *model.Snapshot
	failures int
	lastErr  error
	failed   []resolver.Attempt
}

// New builds a Watcher with its dependencies.
func New(cfg Config, res EndpointResolver, fetcher StateFetcher, sink storage.Sink, m *metrics.Metrics, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = defaultFailureThreshold
	}
	w := &Watcher{
		cfg:      cfg,
		resolver: res,
		fetcher:  fetcher,
		sinks:    storage.Split(sink),
		metrics:  m,
		runID:    uuid.New(),
	}
	w.logger = logger.With(zap.String("contract", cfg.Address), zap.String("run_id", w.runID.String()))
	return w
}

// State reports the current phase. Safe to call from any goroutine.
func (w *Watcher) State() State {
	return State(w.state.Load())
}

// RunID identifies this watcher's run in emitted batches.
func (w *Watcher) RunID() uuid.UUID {
	return w.runID
}

// Endpoint returns the endpoint in use. Only meaningful once Run has returned.
func (w *Watcher) Endpoint() model.ResolvedEndpoint {
	return w.endpoint
}

// Run resolves an endpoint and polls until ctx is cancelled or a fatal error
// occurs. Cancellation returns nil.
func (w *Watcher) Run(ctx context.Context) error {
	if w.resolver == nil {
		return fmt.Errorf("resolver is nil")
	}
	if w.fetcher == nil {
		return fmt.Errorf("fetcher is nil")
	}
	if len(w.sinks) == 0 {
		return fmt.Errorf("sink is nil")
	}
	if w.cfg.Address == "" {
		return fmt.Errorf("contract address is required")
	}
	if w.cfg.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be greater than zero")
	}
	defer w.setState(StateStopped)

	w.setState(StateResolving)
	endpoint, err := w.resolver.Resolve(ctx, w.cfg.Address, w.cfg.Override)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("resolve endpoint: %w", err)
	}
	w.endpoint = endpoint
	w.setState(StatePolling)
	w.logger.Info("watch start",
		zap.String("endpoint", endpoint.BaseURL),
		zap.Stringer("source", endpoint.Source),
		zap.Duration("poll_interval", w.cfg.PollInterval),
	)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watch stopped")
			return nil
		case <-timer.C:
		}

		started := time.Now()
		if err := w.tick(ctx); err != nil {
			if ctx.Err() != nil {
				w.logger.Info("watch stopped")
				return nil
			}
			return err
		}

		wait := w.cfg.PollInterval - time.Since(started)
		if wait < 0 {
			wait = 0
		}
		timer.Reset(wait)
	}
}

// tick runs one poll cycle and the transitions it triggers. A returned error is
// fatal.
func (w *Watcher) tick(ctx context.Context) error {
	started := time.Now()
	snapshot, err := w.fetcher.FetchState(ctx, w.endpoint.BaseURL, w.cfg.Address)
	w.metrics.ObservePoll(err, time.Since(started))
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return w.onFailure(ctx, err)
	}

	w.failures = 0
	w.lastErr = nil
	w.metrics.SetConsecutiveFailures(0)
	w.metrics.SetStateEntries(snapshot.Len())

	events := diff.Diff(w.previous, snapshot)
	if w.previous == nil {
		w.logger.Info("baseline snapshot", zap.Int("entries", snapshot.Len()))
	}
	if len(events) > 0 {
		if err := w.emit(ctx, snapshot.FetchedAt, events); err != nil {
			return err
		}
	}
	w.previous = &snapshot
	return nil
}

func (w *Watcher) onFailure(ctx context.Context, err error) error {
	w.failures++
	w.lastErr = err
	w.metrics.SetConsecutiveFailures(w.failures)
	w.logger.Warn("poll failed",
		zap.Error(err),
		zap.String("endpoint", w.endpoint.BaseURL),
		zap.Int("consecutive_failures", w.failures),
		zap.Int("threshold", w.cfg.FailureThreshold),
	)

	if w.failures < w.cfg.FailureThreshold {
		return nil
	}

	if w.endpoint.Source == model.SourceOverride {
		return &PersistentFailureError{URL: w.endpoint.BaseURL, Failures: w.failures, LastErr: err}
	}
	return w.failover(ctx)
}

func (w *Watcher) failover(ctx context.Context) error {
	w.setState(StateFailover)
	w.failed = append(w.failed, resolver.Attempt{URL: w.endpoint.BaseURL, Err: w.lastErr})
	w.logger.Warn("endpoint failover", zap.String("from", w.endpoint.BaseURL), zap.Int("failures", w.failures))

	endpoint, err := w.resolver.Failover(ctx, w.cfg.Address, w.failed)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("failover: %w", err)
	}

	w.metrics.IncFailover()
	w.logger.Info("failover complete", zap.String("endpoint", endpoint.BaseURL))
	w.endpoint = endpoint
	w.failures = 0
	w.lastErr = nil
	w.metrics.SetConsecutiveFailures(0)
	w.setState(StatePolling)
	return nil
}

func (w *Watcher) emit(ctx context.Context, observedAt time.Time, events []model.ChangeEvent) error {
	batch := model.ChangeBatch{
		RunID:      w.runID,
		Contract:   w.cfg.Address,
		Endpoint:   w.endpoint.BaseURL,
		ObservedAt: observedAt,
		Events:     events,
	}

	// Sinks retry independently; a sink that accepted the batch is not called again.
	var errs []error
	for i, sink := range w.sinks {
		policy := retryPolicy{
			maxRetries: w.cfg.MaxRetries,
			baseDelay:  w.cfg.RetryBackoff,
			onRetry: func(attempt int, delay time.Duration, err error) {
				w.logger.Warn("emit changes failed, retrying",
					zap.Error(err),
					zap.Int("sink", i),
					zap.Int("attempt", attempt),
					zap.Duration("delay", delay),
					zap.Int("events", len(events)),
				)
			},
		}
		sink := sink
		err := policy.do(ctx, func(ctx context.Context) error {
			return sink.PutChanges(ctx, batch)
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			errs = append(errs, fmt.Errorf("sink %d: %w", i, err))
		}
	}
	if len(errs) > 0 {
		return &EmitError{ObservedAt: observedAt, Events: len(events), Err: errors.Join(errs...)}
	}

	for _, ev := range events {
		w.metrics.IncChange(ev.Kind.String())
	}
	w.logger.Info("changes emitted", zap.Int("events", len(events)))
	return nil
}

func (w *Watcher) setState(s State) {
	w.state.Store(int32(s))
}
