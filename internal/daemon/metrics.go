package daemon

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"curator/internal/jobs"
	"curator/internal/ledger"
)

// metrics exposes curator state to Prometheus. Sample and job gauges are
// collected live from the stores on each scrape.
type metrics struct {
	registry     *prometheus.Registry
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

func newMetrics(ledgerStore *ledger.Store, jobStore *jobs.Store) *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &metrics{
		registry: registry,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "curator_http_requests_total",
			Help: "HTTP requests served, by route and status code.",
		}, []string{"route", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "curator_http_request_duration_seconds",
			Help:    "HTTP request latency, by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
	registry.MustRegister(m.httpRequests, m.httpDuration)

	registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "curator_samples_total",
		Help: "Samples registered in the ledger.",
	}, func() float64 {
		count, err := ledgerStore.Count(context.Background())
		if err != nil {
			return 0
		}
		return float64(count)
	}))
	registry.MustRegister(&jobStatusCollector{store: jobStore})

	return m
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *metrics) observe(route, code string, elapsed time.Duration) {
	m.httpRequests.WithLabelValues(route, code).Inc()
	m.httpDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// jobStatusCollector reports job counts per status on each scrape.
type jobStatusCollector struct {
	store *jobs.Store
}

var jobStatusDesc = prometheus.NewDesc(
	"curator_jobs_total",
	"Jobs in the job store, by status.",
	[]string{"status"}, nil,
)

func (c *jobStatusCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- jobStatusDesc
}

func (c *jobStatusCollector) Collect(ch chan<- prometheus.Metric) {
	counts, err := c.store.CountByStatus(context.Background())
	if err != nil {
		return
	}
	for status, count := range counts {
		ch <- prometheus.MustNewConstMetric(jobStatusDesc, prometheus.GaugeValue, float64(count), string(status))
	}
}
