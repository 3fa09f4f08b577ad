package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bookcal/internal/calendar"
	"bookcal/internal/observe"
	"bookcal/internal/session"
	"bookcal/internal/supabase"
	"bookcal/internal/tz"
)

// Metrics counts what the calendar core reports. It implements
// observe.Observer so it can sit next to the log observer.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	reloadsTotal      *prometheus.CounterVec
	fetchDuration     prometheus.Histogram
	rowsDropped       prometheus.Counter
	tzDegraded        prometheus.Gauge
	lastReload        prometheus.Gauge
}

// New registers the collectors on a private registry. Process and Go
// runtime collectors are included.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bookcal_http_requests_total",
			Help: "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bookcal_http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		reloadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bookcal_reloads_total",
			Help: "Reloads by outcome (applied, stale, failed).",
		}, []string{"outcome"}),
		fetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bookcal_backend_fetch_duration_seconds",
			Help:    "Histogram of booking fetch durations.",
			Buckets: prometheus.DefBuckets,
		}),
		rowsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bookcal_rows_dropped_total",
			Help: "Backend rows rejected while building bookings.",
		}),
		tzDegraded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bookcal_timezone_degraded",
			Help: "1 when the display timezone fell back to an alias or identity.",
		}),
		lastReload: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bookcal_last_reload_timestamp_seconds",
			Help: "Unix time of the last applied reload.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpDuration,
		m.reloadsTotal,
		m.fetchDuration,
		m.rowsDropped,
		m.tzDegraded,
		m.lastReload,
	)

	for _, outcome := range []string{"applied", "stale", "failed"} {
		m.reloadsTotal.WithLabelValues(outcome)
	}

	return m
}

func (m *Metrics) Observe(ev observe.Event) {
	if m == nil {
		return
	}
	switch ev.Name {
	case session.EventReloadApplied:
		m.reloadsTotal.WithLabelValues("applied").Inc()
		m.lastReload.SetToCurrentTime()
	case session.EventReloadStale:
		m.reloadsTotal.WithLabelValues("stale").Inc()
	case session.EventReloadFailed:
		m.reloadsTotal.WithLabelValues("failed").Inc()
	case calendar.EventRowDropped:
		m.rowsDropped.Inc()
	case tz.EventDegraded:
		m.tzDegraded.Set(1)
	case supabase.EventFetch:
		if v, ok := ev.Attr("elapsed"); ok {
			if d, ok := v.(time.Duration); ok {
				m.fetchDuration.Observe(d.Seconds())
			}
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// WrapHandler records request count and latency for route.
func (m *Metrics) WrapHandler(route string, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		m.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the private registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
