// Package resolver picks a working LCD endpoint for a contract address.
package resolver

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"cwstate/internal/lcd"
	"cwstate/internal/metrics"
	"cwstate/internal/model"
	"cwstate/internal/registry"
)

const (
	defaultProbeTimeout = 5 * time.Second
	defaultConcurrency  = 4
)

// Prober checks whether an LCD endpoint is healthy.
type Prober interface {
	NodeInfo(ctx context.Context, baseURL string) (lcd.NodeInfo, error)
}

// Config controls probing.
type Config struct {
	ProbeTimeout time.Duration
	Concurrency  int
}

// Resolver selects an endpoint from an override or the chain registry.
type Resolver struct {
	cfg      Config
	registry *registry.Registry
	prober   Prober
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// New builds a Resolver.
func New(cfg Config, reg *registry.Registry, prober Prober, m *metrics.Metrics, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = defaultProbeTimeout
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	return &Resolver{
		cfg:      cfg,
		registry: reg,
		prober:   prober,
		metrics:  m,
		logger:   logger,
	}
}

// Resolve returns override untouched when set. Otherwise it probes the registry
// candidates for the address prefix and returns the first healthy one in
// registry order.
func (r *Resolver) Resolve(ctx context.Context, address, override string) (model.ResolvedEndpoint, error) {
	if override = strings.TrimSpace(override); override != "" {
		r.logger.Info("using endpoint override", zap.String("endpoint", override))
		return model.ResolvedEndpoint{BaseURL: override, Source: model.SourceOverride}, nil
	}
	return r.Failover(ctx, address, nil)
}

// Failover probes the registry candidates for address, skipping every URL in
// failed. On exhaustion the returned error lists failed followed by the newly
// probed candidates.
func (r *Resolver) Failover(ctx context.Context, address string, failed []Attempt) (model.ResolvedEndpoint, error) {
	profile, err := r.profileFor(address)
	if err != nil {
		return model.ResolvedEndpoint{}, err
	}

	skip := make(map[string]struct{}, len(failed))
	for _, a := range failed {
		skip[a.URL] = struct{}{}
	}
	candidates := make([]string, 0, len(profile.Endpoints))
	for _, url := range profile.Endpoints {
		if _, ok := skip[url]; !ok {
			candidates = append(candidates, url)
		}
	}

	attempts := append([]Attempt(nil), failed...)
	if len(candidates) == 0 {
		return model.ResolvedEndpoint{}, &AllEndpointsFailedError{Prefix: profile.Prefix, Attempts: attempts}
	}

	idx, probeErrs, err := r.probe(ctx, profile, candidates)
	if err != nil {
		return model.ResolvedEndpoint{}, err
	}
	if idx < 0 {
		for i, url := range candidates {
			attempts = append(attempts, Attempt{URL: url, Err: probeErrs[i]})
		}
		return model.ResolvedEndpoint{}, &AllEndpointsFailedError{Prefix: profile.Prefix, Attempts: attempts}
	}

	r.logger.Info("endpoint selected",
		zap.String("chain", profile.Name),
		zap.String("endpoint", candidates[idx]),
		zap.Int("candidate", idx),
	)
	return model.ResolvedEndpoint{BaseURL: candidates[idx], Source: model.SourceRegistry}, nil
}

func (r *Resolver) profileFor(address string) (registry.ChainProfile, error) {
	prefix, err := registry.Prefix(address)
	if err != nil {
		return registry.ChainProfile{}, &UnsupportedChainError{Address: address, Prefix: prefix}
	}
	profile, err := r.registry.Lookup(prefix)
	if err != nil {
		return registry.ChainProfile{}, &UnsupportedChainError{Address: address, Prefix: prefix}
	}
	return profile, nil
}

// probe checks every candidate once, concurrently, and returns the lowest index
// that answered, or -1. Once every lower index has finished and one succeeded,
// the probes above it are cancelled. A cancelled ctx aborts the probes and is
// returned as err.
func (r *Resolver) probe(ctx context.Context, profile registry.ChainProfile, candidates []string) (int, []error, error) {
	errs := make([]error, len(candidates))
	networks := make([]string, len(candidates))
	done := make([]bool, len(candidates))
	cancels := make([]context.CancelFunc, len(candidates))
	probeCtxs := make([]context.Context, len(candidates))
	for i := range candidates {
		probeCtxs[i], cancels[i] = context.WithCancel(ctx)
	}
	defer func() {
		for _, cancel := range cancels {
			cancel()
		}
	}()

	var mu sync.Mutex
	winner := -1
	finish := func(i int) {
		mu.Lock()
		defer mu.Unlock()
		done[i] = true
		if winner >= 0 {
			return
		}
		for j := range candidates {
			if !done[j] {
				return
			}
			if errs[j] == nil {
				winner = j
				for k := j + 1; k < len(candidates); k++ {
					cancels[k]()
				}
				return
			}
		}
	}
	decided := func() bool {
		mu.Lock()
		defer mu.Unlock()
		return winner >= 0
	}

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)
	for i, url := range candidates {
		if decided() {
			break
		}
		i, url := i, url
		g.Go(func() error {
			probeCtx, cancel := context.WithTimeout(probeCtxs[i], r.cfg.ProbeTimeout)
			defer cancel()

			info, err := r.prober.NodeInfo(probeCtx, url)
			if err != nil && ctx.Err() == nil && probeCtxs[i].Err() != nil {
				// A lower index already won.
				return nil
			}
			r.metrics.ObserveProbe(err)
			mu.Lock()
			if err != nil {
				errs[i] = fmt.Errorf("probe: %w", err)
			} else {
				networks[i] = info.Network
			}
			mu.Unlock()
			if err != nil {
				r.logger.Warn("endpoint probe failed", zap.String("endpoint", url), zap.Error(err))
			}
			finish(i)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return -1, errs, err
	}

	for i := range candidates {
		if errs[i] != nil {
			continue
		}
		if profile.ChainID != "" && networks[i] != "" && networks[i] != profile.ChainID {
			r.logger.Warn("endpoint reports unexpected network",
				zap.String("endpoint", candidates[i]),
				zap.String("expected", profile.ChainID),
				zap.String("network", networks[i]),
			)
		}
		return i, errs, nil
	}
	return -1, errs, nil
}
