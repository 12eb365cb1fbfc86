// Package metrics exposes Prometheus collectors fed by bus events.
package metrics

import (
	"context"
	"net/http"
	"strconv"

	eventbus "github.com/keywordwei/graphql-loader/internal/eventbus"
	events "github.com/keywordwei/graphql-loader/internal/events"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "graphql_loader"

// Metrics holds the collectors of the loader. Labels never carry document
// ids, which come from requests.
type Metrics struct {
	Registry *prometheus.Registry

	Specializations  *prometheus.CounterVec
	SpecializeTime   prometheus.Histogram
	SchemaBuilds     *prometheus.CounterVec
	SchemaBuildTime  prometheus.Histogram
	DuplicateImports prometheus.Counter
	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
}

// New creates the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Specializations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "specializations_total",
			Help:      "Specialization requests by result and schema cache outcome.",
		}, []string{"result", "cache"}),
		SpecializeTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "specialize_duration_seconds",
			Help:      "Time to specialize a document, schema build included.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 9),
		}),
		SchemaBuilds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schema_builds_total",
			Help:      "Full schema builds by result.",
		}, []string{"result"}),
		SchemaBuildTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "schema_build_duration_seconds",
			Help:      "Time to read, flatten and normalize a document.",
			Buckets:   prometheus.DefBuckets,
		}),
		DuplicateImports: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_imports_total",
			Help:      "Fragment file imports skipped because the file was already loaded.",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Specializations,
		m.SpecializeTime,
		m.SchemaBuilds,
		m.SchemaBuildTime,
		m.DuplicateImports,
		m.HTTPRequests,
		m.HTTPDuration,
	)
	return m
}

// Subscribe updates m from events of the global bus.
func (m *Metrics) Subscribe() (unsubscribe func()) {
	unsubs := []func(){
		eventbus.Subscribe(func(_ context.Context, e events.SpecializeFinish) {
			cache := "miss"
			if e.Cached {
				cache = "hit"
			}
			m.Specializations.WithLabelValues(result(e.Err), cache).Inc()
			m.SpecializeTime.Observe(e.Duration.Seconds())
		}),
		eventbus.Subscribe(func(_ context.Context, e events.SchemaBuildFinish) {
			m.SchemaBuilds.WithLabelValues(result(e.Err)).Inc()
			m.SchemaBuildTime.Observe(e.Duration.Seconds())
		}),
		eventbus.Subscribe(func(context.Context, events.ImportSkipped) {
			m.DuplicateImports.Inc()
		}),
		eventbus.Subscribe(func(_ context.Context, e events.HTTPFinish) {
			m.HTTPRequests.WithLabelValues(e.Route, strconv.Itoa(e.Status)).Inc()
			m.HTTPDuration.WithLabelValues(e.Route).Observe(e.Duration.Seconds())
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
