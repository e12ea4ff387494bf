package watcher

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"cwstate/internal/fetcher"
	"cwstate/internal/model"
	"cwstate/internal/resolver"
	"cwstate/internal/storage"
)

const contract = "juno14hj2tavq8fpesdwxxcu44rty3hh90vhujrvcmstl4zr3txmfvw9skjuwg8"

var errBlip = &fetcher.FetchError{Kind: fetcher.Timeout, Err: context.DeadlineExceeded}

func snap(pairs ...string) model.Snapshot {
	entries := make(map[string][]byte, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		entries[pairs[i]] = []byte(pairs[i+1])
	}
	return model.NewSnapshot(entries, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
}

type result struct {
	snap model.Snapshot
	err  error
}

// scriptedFetcher replays results per endpoint; the last result repeats.
type scriptedFetcher struct {
	mu      sync.Mutex
	scripts map[string][]result
	calls   []string
}

func (f *scriptedFetcher) FetchState(ctx context.Context, baseURL, contract string) (model.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, baseURL)
	script := f.scripts[baseURL]
	if len(script) == 0 {
		return model.Snapshot{}, errors.New("no script")
	}
	r := script[0]
	if len(script) > 1 {
		f.scripts[baseURL] = script[1:]
	}
	return r.snap, r.err
}

func (f *scriptedFetcher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeResolver struct {
	mu          sync.Mutex
	resolved    model.ResolvedEndpoint
	resolveErr  error
	failovers   []model.ResolvedEndpoint
	failoverErr error
	failedSeen  [][]resolver.Attempt
}

func (r *fakeResolver) Resolve(ctx context.Context, address, override string) (model.ResolvedEndpoint, error) {
	return r.resolved, r.resolveErr
}

func (r *fakeResolver) Failover(ctx context.Context, address string, failed []resolver.Attempt) (model.ResolvedEndpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failedSeen = append(r.failedSeen, append([]resolver.Attempt(nil), failed...))
	if r.failoverErr != nil {
		return model.ResolvedEndpoint{}, r.failoverErr
	}
	if len(r.failovers) == 0 {
		return model.ResolvedEndpoint{}, &resolver.AllEndpointsFailedError{Prefix: "juno", Attempts: failed}
	}
	next := r.failovers[0]
	r.failovers = r.failovers[1:]
	return next, nil
}

func (r *fakeResolver) FailoverCalls() [][]resolver.Attempt {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]resolver.Attempt(nil), r.failedSeen...)
}

type chanSink struct {
	batches chan model.ChangeBatch
	fails   atomic.Int32
}

func newChanSink() *chanSink {
	return &chanSink{batches: make(chan model.ChangeBatch, 16)}
}

func (s *chanSink) PutChanges(ctx context.Context, batch model.ChangeBatch) error {
	if s.fails.Load() > 0 {
		s.fails.Add(-1)
		return errors.New("sink unavailable")
	}
	s.batches <- batch
	return nil
}

func registryEndpoint(url string) model.ResolvedEndpoint {
	return model.ResolvedEndpoint{BaseURL: url, Source: model.SourceRegistry}
}

func testConfig() Config {
	return Config{
		Address:          contract,
		PollInterval:     time.Millisecond,
		FailureThreshold: 3,
		MaxRetries:       2,
		RetryBackoff:     time.Millisecond,
	}
}

func runAsync(t *testing.T, w *Watcher) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx)
	}()
	t.Cleanup(cancel)
	return cancel, done
}

func waitBatch(t *testing.T, sink *chanSink) model.ChangeBatch {
	t.Helper()
	select {
	case b := <-sink.batches:
		return b
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for change batch")
		return model.ChangeBatch{}
	}
}

func waitDone(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for watcher to exit")
		return nil
	}
}

func TestWatcherEmitsOrderedChanges(t *testing.T) {
	f := &scriptedFetcher{scripts: map[string][]result{
		"http://a": {
			{snap: snap("a", "1", "b", "2")},
			{snap: snap("a", "1", "b", "3", "c", "4")},
		},
	}}
	res := &fakeResolver{resolved: registryEndpoint("http://a")}
	sink := newChanSink()
	w := New(testConfig(), res, f, sink, nil, nil)

	cancel, done := runAsync(t, w)
	batch := waitBatch(t, sink)

	require.Len(t, batch.Events, 2)
	assert.Equal(t, model.ModifiedEvent([]byte("b"), []byte("2"), []byte("3")), batch.Events[0])
	assert.Equal(t, model.AddedEvent([]byte("c"), []byte("4")), batch.Events[1])
	assert.Equal(t, contract, batch.Contract)
	assert.Equal(t, "http://a", batch.Endpoint)
	assert.Equal(t, w.RunID(), batch.RunID)

	cancel()
	require.NoError(t, waitDone(t, done))
	assert.Equal(t, StateStopped, w.State())

	select {
	case extra := <-sink.batches:
		t.Fatalf("unexpected extra batch: %+v", extra)
	default:
	}
}

func TestWatcherBaselineIsSilent(t *testing.T) {
	f := &scriptedFetcher{scripts: map[string][]result{
		"http://a": {{snap: snap("a", "1")}},
	}}
	sink := newChanSink()
	w := New(testConfig(), &fakeResolver{resolved: registryEndpoint("http://a")}, f, sink, nil, nil)

	cancel, done := runAsync(t, w)
	require.Eventually(t, func() bool { return len(f.Calls()) >= 5 }, 2*time.Second, time.Millisecond)
	cancel()
	require.NoError(t, waitDone(t, done))
	assert.Empty(t, sink.batches)
}

func TestWatcherTransientFailuresAreSilent(t *testing.T) {
	f := &scriptedFetcher{scripts: map[string][]result{
		"http://a": {
			{snap: snap("a", "1")},
			{err: errBlip},
			{err: errBlip},
			{snap: snap("a", "2")},
		},
	}}
	res := &fakeResolver{resolved: registryEndpoint("http://a")}
	sink := newChanSink()
	w := New(testConfig(), res, f, sink, nil, nil)

	cancel, done := runAsync(t, w)
	batch := waitBatch(t, sink)
	require.Len(t, batch.Events, 1)
	assert.Equal(t, model.Modified, batch.Events[0].Kind)

	cancel()
	require.NoError(t, waitDone(t, done))
	assert.Empty(t, res.FailoverCalls())
}

func TestWatcherFailoverResetsCounter(t *testing.T) {
	f := &scriptedFetcher{scripts: map[string][]result{
		"http://a": {
			{snap: snap("a", "1")},
			{err: errBlip},
			{err: errBlip},
			{err: errBlip},
		},
		"http://b": {
			{err: errBlip},
			{err: errBlip},
			{snap: snap("a", "1")},
			{err: errBlip},
			{err: errBlip},
			{snap: snap("a", "2")},
		},
	}}
	res := &fakeResolver{
		resolved:  registryEndpoint("http://a"),
		failovers: []model.ResolvedEndpoint{registryEndpoint("http://b")},
	}
	sink := newChanSink()
	w := New(testConfig(), res, f, sink, nil, nil)

	cancel, done := runAsync(t, w)
	batch := waitBatch(t, sink)
	assert.Equal(t, "http://b", batch.Endpoint)
	require.Len(t, batch.Events, 1)
	assert.Equal(t, model.ModifiedEvent([]byte("a"), []byte("1"), []byte("2")), batch.Events[0])

	cancel()
	require.NoError(t, waitDone(t, done))

	calls := res.FailoverCalls()
	require.Len(t, calls, 1)
	require.Len(t, calls[0], 1)
	assert.Equal(t, "http://a", calls[0][0].URL)
	assert.ErrorIs(t, calls[0][0].Err, context.DeadlineExceeded)
	assert.Equal(t, "http://b", w.Endpoint().BaseURL)
}

func TestWatcherSecondFailoverExcludesBoth(t *testing.T) {
	f := &scriptedFetcher{scripts: map[string][]result{
		"http://a": {{err: errBlip}},
		"http://b": {{err: errBlip}},
	}}
	res := &fakeResolver{
		resolved:  registryEndpoint("http://a"),
		failovers: []model.ResolvedEndpoint{registryEndpoint("http://b")},
	}
	w := New(testConfig(), res, f, newChanSink(), nil, nil)

	err := w.Run(context.Background())
	require.Error(t, err)

	var allFailed *resolver.AllEndpointsFailedError
	require.True(t, errors.As(err, &allFailed))
	require.Len(t, allFailed.Attempts, 2)
	assert.Equal(t, "http://a", allFailed.Attempts[0].URL)
	assert.Equal(t, "http://b", allFailed.Attempts[1].URL)
	assert.Equal(t, StateStopped, w.State())
}

func TestWatcherOverridePersistentFailure(t *testing.T) {
	f := &scriptedFetcher{scripts: map[string][]result{
		"http://pinned": {{err: errBlip}},
	}}
	res := &fakeResolver{resolved: model.ResolvedEndpoint{BaseURL: "http://pinned", Source: model.SourceOverride}}
	w := New(testConfig(), res, f, newChanSink(), nil, nil)

	err := w.Run(context.Background())

	var persistent *PersistentFailureError
	require.True(t, errors.As(err, &persistent))
	assert.Equal(t, "http://pinned", persistent.URL)
	assert.Equal(t, 3, persistent.Failures)
	assert.Len(t, f.Calls(), 3)
	assert.Empty(t, res.FailoverCalls())
}

func TestWatcherResolveErrorIsFatal(t *testing.T) {
	f := &scriptedFetcher{}
	res := &fakeResolver{resolveErr: &resolver.UnsupportedChainError{Address: "cosmos1x", Prefix: "cosmos"}}
	w := New(testConfig(), res, f, newChanSink(), nil, nil)

	err := w.Run(context.Background())

	var unsupported *resolver.UnsupportedChainError
	require.True(t, errors.As(err, &unsupported))
	assert.Empty(t, f.Calls())
}

type blockingFetcher struct {
	started chan struct{}
}

func (f *blockingFetcher) FetchState(ctx context.Context, baseURL, contract string) (model.Snapshot, error) {
	close(f.started)
	<-ctx.Done()
	return model.Snapshot{}, ctx.Err()
}

func TestWatcherCancelMidFetch(t *testing.T) {
	f := &blockingFetcher{started: make(chan struct{})}
	w := New(testConfig(), &fakeResolver{resolved: registryEndpoint("http://a")}, f, newChanSink(), nil, nil)

	cancel, done := runAsync(t, w)
	select {
	case <-f.started:
	case <-time.After(2 * time.Second):
		t.Fatal("fetch never started")
	}
	cancel()
	require.NoError(t, waitDone(t, done))
}

func TestWatcherCancelBetweenTicks(t *testing.T) {
	f := &scriptedFetcher{scripts: map[string][]result{"http://a": {{snap: snap("a", "1")}}}}
	cfg := testConfig()
	cfg.PollInterval = time.Hour
	w := New(cfg, &fakeResolver{resolved: registryEndpoint("http://a")}, f, newChanSink(), nil, nil)

	cancel, done := runAsync(t, w)
	require.Eventually(t, func() bool { return len(f.Calls()) == 1 }, 2*time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return w.State() == StatePolling }, 2*time.Second, time.Millisecond)
	cancel()
	require.NoError(t, waitDone(t, done))
	assert.Len(t, f.Calls(), 1)
}

type slowFetcher struct {
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	calls    atomic.Int32
}

func (f *slowFetcher) FetchState(ctx context.Context, baseURL, contract string) (model.Snapshot, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	if n > f.maxSeen.Load() {
		f.maxSeen.Store(n)
	}
	f.calls.Add(1)
	time.Sleep(5 * time.Millisecond)
	return snap("a", "1"), nil
}

func TestWatcherNeverOverlapsFetches(t *testing.T) {
	f := &slowFetcher{}
	w := New(testConfig(), &fakeResolver{resolved: registryEndpoint("http://a")}, f, newChanSink(), nil, nil)

	cancel, done := runAsync(t, w)
	require.Eventually(t, func() bool { return f.calls.Load() >= 5 }, 2*time.Second, time.Millisecond)
	cancel()
	require.NoError(t, waitDone(t, done))
	assert.Equal(t, int32(1), f.maxSeen.Load())
}

func TestWatcherRetriesSink(t *testing.T) {
	f := &scriptedFetcher{scripts: map[string][]result{
		"http://a": {{snap: snap("a", "1")}, {snap: snap()}},
	}}
	sink := newChanSink()
	sink.fails.Store(2)
	core, recorded := observer.New(zap.WarnLevel)
	w := New(testConfig(), &fakeResolver{resolved: registryEndpoint("http://a")}, f, sink, nil, zap.New(core))

	cancel, done := runAsync(t, w)
	batch := waitBatch(t, sink)
	require.Len(t, batch.Events, 1)
	assert.Equal(t, model.RemovedEvent([]byte("a"), []byte("1")), batch.Events[0])

	cancel()
	require.NoError(t, waitDone(t, done))
	assert.Equal(t, 2, recorded.FilterMessage("emit changes failed, retrying").Len())
}

func TestWatcherSinkFailureIsFatal(t *testing.T) {
	f := &scriptedFetcher{scripts: map[string][]result{
		"http://a": {{snap: snap("a", "1")}, {snap: snap("a", "2")}},
	}}
	sink := newChanSink()
	sink.fails.Store(100)
	w := New(testConfig(), &fakeResolver{resolved: registryEndpoint("http://a")}, f, sink, nil, nil)

	err := w.Run(context.Background())

	var emitErr *EmitError
	require.True(t, errors.As(err, &emitErr))
	assert.Equal(t, 1, emitErr.Events)
}

func TestWatcherValidatesDependencies(t *testing.T) {
	assert.Error(t, New(testConfig(), nil, &scriptedFetcher{}, newChanSink(), nil, nil).Run(context.Background()))
	assert.Error(t, New(testConfig(), &fakeResolver{}, nil, newChanSink(), nil, nil).Run(context.Background()))
	assert.Error(t, New(testConfig(), &fakeResolver{}, &scriptedFetcher{}, nil, nil, nil).Run(context.Background()))

	cfg := testConfig()
	cfg.PollInterval = 0
	assert.Error(t, New(cfg, &fakeResolver{}, &scriptedFetcher{}, newChanSink(), nil, nil).Run(context.Background()))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "resolving", StateResolving.String())
	assert.Equal(t, "polling", StatePolling.String())
	assert.Equal(t, "failover", StateFailover.String())
	assert.Equal(t, "stopped", StateStopped.String())
}

// flakySink fails its first n writes, then records how many batches it accepted.
type flakySink struct {
	fails    atomic.Int32
	accepted atomic.Int32
}

func (s *flakySink) PutChanges(ctx context.Context, batch model.ChangeBatch) error {
	if s.fails.Load() > 0 {
		s.fails.Add(-1)
		return errors.New("sink unavailable")
	}
	s.accepted.Add(1)
	return nil
}

// lockedBuffer is a bytes.Buffer safe for the watcher goroutine and the test.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestWatcherRetriesOnlyFailedSink(t *testing.T) {
	f := &scriptedFetcher{scripts: map[string][]result{
		"http://a": {{snap: snap("a", "1")}, {snap: snap("a", "2")}},
	}}
	var out lockedBuffer
	flaky := &flakySink{}
	flaky.fails.Store(1)
	sinks := storage.Multi{storage.NewTextSink(&out), flaky}
	w := New(testConfig(), &fakeResolver{resolved: registryEndpoint("http://a")}, f, sinks, nil, nil)

	cancel, done := runAsync(t, w)
	require.Eventually(t, func() bool { return flaky.accepted.Load() == 1 }, 2*time.Second, time.Millisecond)
	cancel()
	require.NoError(t, waitDone(t, done))

	assert.Equal(t, "2024-01-01T00:00:00Z ~ a: 1 -> 2\n", out.String())
	assert.Equal(t, int32(1), flaky.accepted.Load())
}

func TestWatcherReportsEveryFailedSink(t *testing.T) {
	f := &scriptedFetcher{scripts: map[string][]result{
		"http://a": {{snap: snap("a", "1")}, {snap: snap("a", "2")}},
	}}
	healthy := &flakySink{}
	broken := &flakySink{}
	broken.fails.Store(100)
	w := New(testConfig(), &fakeResolver{resolved: registryEndpoint("http://a")}, f, storage.Multi{broken, healthy}, nil, nil)

	err := w.Run(context.Background())

	var emitErr *EmitError
	require.ErrorAs(t, err, &emitErr)
	assert.Contains(t, emitErr.Error(), "sink 0")
	assert.Equal(t, int32(1), healthy.accepted.Load())
}
