// Package metrics holds the Prometheus collectors for the rally overlay.
// Every recording method is safe to call on a nil *Metrics so components
// can run without instrumentation in tests.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/abrezinsky/rallyoverlay/internal/models"
)

// Metrics is one registry and its collectors
type Metrics struct {
	registry *prometheus.Registry

	// HTTP
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Store
	MutationsTotal *prometheus.CounterVec
	DataVersion    prometheus.Gauge

	// Sync
	PublishesTotal     *prometheus.CounterVec
	RemoteAppliesTotal *prometheus.CounterVec
	HeartbeatReloads   prometheus.Counter
	SyncStatus         *prometheus.GaugeVec

	// Standings cache
	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter

	// Overlay clients
	WebSocketClients prometheus.Gauge
}

// New creates a registry with Go runtime collectors and all rally metrics
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rally_http_requests_total",
				Help: "HTTP requests by route pattern, method and status code",
			},
			[]string{"route", "method", "status_code"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rally_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"route", "method"},
		),
		MutationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rally_store_mutations_total",
				Help: "Committed store changes by origin",
			},
			[]string{"origin"},
		),
		DataVersion: f.NewGauge(prometheus.GaugeOpts{
			Name: "rally_store_data_version",
			Help: "Current data version of the rally store",
		}),
		PublishesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rally_sync_publishes_total",
				Help: "Outbound sync publishes by result (ok, failed, suppressed)",
			},
			[]string{"result"},
		),
		RemoteAppliesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rally_sync_remote_applies_total",
				Help: "Inbound sync snapshots by result (ok, rejected)",
			},
			[]string{"result"},
		),
		HeartbeatReloads: f.NewCounter(prometheus.CounterOpts{
			Name: "rally_sync_heartbeat_reloads_total",
			Help: "Reloads triggered by the storage heartbeat",
		}),
		SyncStatus: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "rally_sync_status",
				Help: "1 for the current sync status, 0 for the others",
			},
			[]string{"status"},
		),
		CacheHitsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "rally_standings_cache_hits_total",
			Help: "Standings served from cache",
		}),
		CacheMissesTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "rally_standings_cache_misses_total",
			Help: "Standings computed on request",
		}),
		WebSocketClients: f.NewGauge(prometheus.GaugeOpts{
			Name: "rally_websocket_clients",
			Help: "Connected overlay websocket clients",
		}),
	}
}

// Registry exposes the underlying registry, mainly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware records count and latency per chi route pattern
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.HTTPRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

// ObserveMutation records a committed store change
func (m *Metrics) ObserveMutation(origin string, version int64) {
	if m == nil {
		return
	}
	m.MutationsTotal.WithLabelValues(origin).Inc()
	m.DataVersion.Set(float64(version))
}

// ObservePublish records an outbound publish result
func (m *Metrics) ObservePublish(result string) {
	if m == nil {
		return
	}
	m.PublishesTotal.WithLabelValues(result).Inc()
}

// ObserveRemoteApply records an inbound snapshot result
func (m *Metrics) ObserveRemoteApply(result string) {
	if m == nil {
		return
	}
	m.RemoteAppliesTotal.WithLabelValues(result).Inc()
}

// ObserveHeartbeatReload counts a reload triggered by the heartbeat
func (m *Metrics) ObserveHeartbeatReload() {
	if m == nil {
		return
	}
	m.HeartbeatReloads.Inc()
}

// SetSyncStatus marks status as current
func (m *Metrics) SetSyncStatus(status models.SyncStatus) {
	if m == nil {
		return
	}
	for _, s := range []models.SyncStatus{models.SyncDisconnected, models.SyncConnecting, models.SyncConnected, models.SyncError} {
		v := 0.0
		if s == status {
			v = 1
		}
		m.SyncStatus.WithLabelValues(string(s)).Set(v)
	}
}

// ObserveCache records a standings cache lookup
func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHitsTotal.Inc()
	} else {
		m.CacheMissesTotal.Inc()
	}
}

// SetWebSocketClients records the current overlay client count
func (m *Metrics) SetWebSocketClients(n int) {
	if m == nil {
		return
	}
	m.WebSocketClients.Set(float64(n))
}
