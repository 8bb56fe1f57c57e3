// Package metrics exports sandbox and dispatcher observations to Prometheus.
package metrics

import (
	"context"
	"time"

	"judgehost/internal/judge/dispatcher"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "judgehost"

var (
	// 1ms -> 30s
	timeBuckets = []float64{
		0.001, 0.002, 0.005, 0.010, 0.025, 0.050, 0.1, 0.2, 0.4,
		0.8, 1.0, 1.5, 2, 5, 10, 30,
	}
	// 4k (1<<12) -> 4g (1<<32)
	memoryBuckets = prometheus.ExponentialBuckets(1<<12, 2, 21)
	// 10ms -> ~5m
	finalizeBuckets = prometheus.ExponentialBuckets(0.01, 2, 15)
)

// StatsSource exposes the dispatcher counters sampled at scrape time.
type StatsSource interface {
	Stats() dispatcher.Stats
}

// Metrics implements both the sandbox observer and the dispatcher recorder.
type Metrics struct {
	compileTime   *prometheus.HistogramVec
	runTime       *prometheus.HistogramVec
	runMemory     *prometheus.HistogramVec
	sandboxErrors *prometheus.CounterVec
	discards      *prometheus.CounterVec
	defers        prometheus.Counter
	finalizes     *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		compileTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sandbox",
			Name:      "compile_seconds",
			Help:      "Histogram for compile container time",
			Buckets:   timeBuckets,
		}, []string{"language", "status"}),
		runTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sandbox",
			Name:      "run_seconds",
			Help:      "Histogram for test case CPU time",
			Buckets:   timeBuckets,
		}, []string{"language", "status"}),
		runMemory: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sandbox",
			Name:      "run_memory_bytes",
			Help:      "Histogram for test case peak memory",
			Buckets:   memoryBuckets,
		}, []string{"language", "status"}),
		sandboxErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sandbox",
			Name:      "errors_total",
			Help:      "Number of sandbox failures by stage",
		}, []string{"stage"}),
		discards: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "discarded_jobs_total",
			Help:      "Number of jobs dropped by the dispatch loop",
		}, []string{"reason"}),
		defers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "deferred_jobs_total",
			Help:      "Number of jobs deferred behind a busy submission",
		}),
		finalizes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "submission_seconds",
			Help:      "Time from registration to finalization",
			Buckets:   finalizeBuckets,
		}, []string{"outcome"}),
	}
	for _, c := range []prometheus.Collector{
		m.compileTime, m.runTime, m.runMemory, m.sandboxErrors,
		m.discards, m.defers, m.finalizes,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) ObserveCompile(ctx context.Context, languageID string, status string, timeMs int64, memoryKB int64) {
	if timeMs < 0 {
		return
	}
	m.compileTime.WithLabelValues(languageID, status).Observe(millis(timeMs))
}

func (m *Metrics) ObserveRun(ctx context.Context, languageID string, status string, timeMs int64, memoryKB int64) {
	if timeMs >= 0 {
		m.runTime.WithLabelValues(languageID, status).Observe(millis(timeMs))
	}
	if memoryKB >= 0 {
		m.runMemory.WithLabelValues(languageID, status).Observe(float64(memoryKB) * 1024)
	}
}

func (m *Metrics) ObserveSandboxError(ctx context.Context, stage string) {
	m.sandboxErrors.WithLabelValues(stage).Inc()
}

func (m *Metrics) ObserveDiscard(reason string) {
	m.discards.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveDefer() {
	m.defers.Inc()
}

func (m *Metrics) ObserveFinalize(outcome string, elapsed time.Duration) {
	m.finalizes.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func millis(ms int64) float64 {
	return float64(ms) / 1000
}

// StatsCollector samples dispatcher gauges on every scrape.
type StatsCollector struct {
	src StatsSource

	queueLength *prometheus.Desc
	queueCap    *prometheus.Desc
	deferred    *prometheus.Desc
	containers  *prometheus.Desc
	maxCont     *prometheus.Desc
	tracked     *prometheus.Desc
	running     *prometheus.Desc
}

// NewStatsCollector wraps src as a prometheus.Collector.
func NewStatsCollector(src StatsSource) *StatsCollector {
	name := func(n string) string { return prometheus.BuildFQName(namespace, "dispatcher", n) }
	return &StatsCollector{
		src:         src,
		queueLength: prometheus.NewDesc(name("queue_length"), "Jobs waiting in the queue", nil, nil),
		queueCap:    prometheus.NewDesc(name("queue_capacity"), "Queue capacity", nil, nil),
		deferred:    prometheus.NewDesc(name("deferred_jobs"), "Jobs held back behind a busy submission", nil, nil),
		containers:  prometheus.NewDesc(name("running_containers"), "Containers currently running", nil, nil),
		maxCont:     prometheus.NewDesc(name("max_containers"), "Container limit", nil, nil),
		tracked:     prometheus.NewDesc(name("tracked_submissions"), "Submissions awaiting finalization", nil, nil),
		running:     prometheus.NewDesc(name("running"), "Whether the dispatch loop is running", nil, nil),
	}
}

func (c *StatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.queueLength
	ch <- c.queueCap
	ch <- c.deferred
	ch <- c.containers
	ch <- c.maxCont
	ch <- c.tracked
	ch <- c.running
}

func (c *StatsCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.src.Stats()
	running := 0.0
	if s.Running {
		running = 1
	}
	ch <- prometheus.MustNewConstMetric(c.queueLength, prometheus.GaugeValue, float64(s.QueueLength))
	ch <- prometheus.MustNewConstMetric(c.queueCap, prometheus.GaugeValue, float64(s.QueueCapacity))
	ch <- prometheus.MustNewConstMetric(c.deferred, prometheus.GaugeValue, float64(s.Deferred))
	ch <- prometheus.MustNewConstMetric(c.containers, prometheus.GaugeValue, float64(s.RunningContainers))
	ch <- prometheus.MustNewConstMetric(c.maxCont, prometheus.GaugeValue, float64(s.MaxContainers))
	ch <- prometheus.MustNewConstMetric(c.tracked, prometheus.GaugeValue, float64(s.TrackedSubmissions))
	ch <- prometheus.MustNewConstMetric(c.running, prometheus.GaugeValue, running)
}
