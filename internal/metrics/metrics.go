package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	Namespace = "cwstate"

	StatusSuccess = "success"
	StatusError   = "error"
)

// Labels holds constant labels applied to all metrics.
type Labels struct {
	Chain    string
	Contract string
}

func (l Labels) toPrometheusLabels() prometheus.Labels {
	labels := prometheus.Labels{}
	if l.Chain != "" {
		labels["chain"] = l.Chain
	}
	if l.Contract != "" {
		labels["contract"] = l.Contract
	}
	return labels
}

// Metrics instruments the watcher. A nil *Metrics is a valid no-op.
type Metrics struct {
	polls               *prometheus.CounterVec
	pollDuration        prometheus.Histogram
	pagesFetched        prometheus.Counter
	stateEntries        prometheus.Gauge
	changes             *prometheus.CounterVec
	failovers           prometheus.Counter
	consecutiveFailures prometheus.Gauge
	probes              *prometheus.CounterVec
}

// New registers all metrics with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	return NewWithLabels(reg, Labels{})
}

// NewWithLabels registers all metrics with reg, applying labels to each.
func NewWithLabels(reg prometheus.Registerer, labels Labels) (*Metrics, error) {
	promLabels := labels.toPrometheusLabels()
	if len(promLabels) > 0 {
		reg = prometheus.WrapRegistererWith(promLabels, reg)
	}

	m := &Metrics{
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "polls_total",
			Help:      "Total state polls by status",
		}, []string{"status"}),
		pollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "poll_duration_seconds",
			Help:      "Time to fetch and diff the full contract state",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}),
		pagesFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "pages_fetched_total",
			Help:      "Total state pages fetched from the LCD",
		}),
		stateEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "state_entries",
			Help:      "Number of entries in the latest snapshot",
		}),
		changes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "changes_total",
			Help:      "Total state changes by kind",
		}, []string{"kind"}),
		failovers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "failovers_total",
			Help:      "Total endpoint failovers",
		}),
		consecutiveFailures: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "consecutive_failures",
			Help:      "Current number of consecutive failed polls",
		}),
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "probes_total",
			Help:      "Total endpoint health probes by status",
		}, []string{"status"}),
	}

	err := errors.Join(
		reg.Register(m.polls),
		reg.Register(m.pollDuration),
		reg.Register(m.pagesFetched),
		reg.Register(m.stateEntries),
		reg.Register(m.changes),
		reg.Register(m.failovers),
		reg.Register(m.consecutiveFailures),
		reg.Register(m.probes),
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ObservePoll records the outcome of one poll cycle.
func (m *Metrics) ObservePoll(err error, duration time.Duration) {
	if m == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.polls.WithLabelValues(status).Inc()
	m.pollDuration.Observe(duration.Seconds())
}

// AddPages counts fetched state pages.
func (m *Metrics) AddPages(n int) {
	if m == nil {
		return
	}
	m.pagesFetched.Add(float64(n))
}

// SetStateEntries records the size of the latest snapshot.
func (m *Metrics) SetStateEntries(n int) {
	if m == nil {
		return
	}
	m.stateEntries.Set(float64(n))
}

// IncChange counts one change of the given kind.
func (m *Metrics) IncChange(kind string) {
	if m == nil {
		return
	}
	m.changes.WithLabelValues(kind).Inc()
}

// IncFailover counts one endpoint failover.
func (m *Metrics) IncFailover() {
	if m == nil {
		return
	}
	m.failovers.Inc()
}

// SetConsecutiveFailures records the failure counter.
func (m *Metrics) SetConsecutiveFailures(n int) {
	if m == nil {
		return
	}
	m.consecutiveFailures.Set(float64(n))
}

// ObserveProbe records the outcome of one endpoint probe.
func (m *Metrics) ObserveProbe(err error) {
	if m == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.probes.WithLabelValues(status).Inc()
}
