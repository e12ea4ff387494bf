// Package fetcher reads the complete raw state of a contract as one snapshot.
package fetcher

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"cwstate/internal/lcd"
	"cwstate/internal/metrics"
	"cwstate/internal/model"
)

const (
	defaultPageLimit   = 100
	defaultPageTimeout = 10 * time.Second
	defaultMaxPages    = 10000
)

// StateQuerier fetches one page of raw contract state.
type StateQuerier interface {
	ContractState(ctx context.Context, baseURL, contract string, pageKey []byte, limit int) (lcd.StatePage, error)
}

// Config controls pagination.
type Config struct {
	PageLimit   int
	PageTimeout time.Duration
	MaxPages    int
}

// Fetcher builds snapshots from paginated state queries.
type Fetcher struct {
	cfg     Config
	querier StateQuerier
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// New builds a Fetcher.
func New(cfg Config, querier StateQuerier, m *metrics.Metrics, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = defaultPageLimit
	}
	if cfg.PageTimeout <= 0 {
		cfg.PageTimeout = defaultPageTimeout
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = defaultMaxPages
	}
	return &Fetcher{
		cfg:     cfg,
		querier: querier,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// FetchState reads every page of the contract state. Any failed page discards the
// whole fetch and returns a *FetchError. A cancelled ctx returns ctx.Err().
func (f *Fetcher) FetchState(ctx context.Context, baseURL, contract string) (model.Snapshot, error) {
	p := &pager{
		querier:  f.querier,
		baseURL:  baseURL,
		contract: contract,
		limit:    f.cfg.PageLimit,
		timeout:  f.cfg.PageTimeout,
		maxPages: f.cfg.MaxPages,
	}

	entries := make(map[string][]byte)
	for {
		page, ok, err := p.Next(ctx)
		if err != nil {
			f.metrics.AddPages(p.Index())
			if ctxErr := ctx.Err(); ctxErr != nil {
				return model.Snapshot{}, ctxErr
			}
			return model.Snapshot{}, classify(err, p.Index())
		}
		if !ok {
			break
		}
		for _, e := range page.Entries {
			entries[string(e.Key)] = e.Value
		}
	}

	f.metrics.AddPages(p.Index())
	f.logger.Debug("state fetched",
		zap.String("endpoint", baseURL),
		zap.Int("pages", p.Index()),
		zap.Int("entries", len(entries)),
	)
	return model.NewSnapshot(entries, f.now().UTC()), nil
}

func classify(err error, page int) *FetchError {
	kind := Transport
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = Timeout
	case page > 0:
		kind = Partial
	}
	return &FetchError{Kind: kind, Page: page, Err: err}
}
