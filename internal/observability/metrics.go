package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequests counts served requests by route template and status code
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "labspace_http_requests_total",
		Help: "HTTP requests by method, route and status",
	}, []string{"method", "route", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "labspace_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
	}, []string{"method", "route"})

	// FeedEvents counts change notifications published per channel and op
	FeedEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "labspace_feed_events_total",
		Help: "Change feed events published by channel and operation",
	}, []string{"channel", "op"})

	FeedOverflows = promauto.NewCounter(prometheus.CounterOpts{
		Name: "labspace_feed_overflows_total",
		Help: "Subscriber buffers that overflowed and were forced to resync",
	})

	LiveViews = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "labspace_live_views",
		Help: "Open live session views",
	})

	PresenceReloads = promauto.NewCounter(prometheus.CounterOpts{
		Name: "labspace_presence_reloads_total",
		Help: "Full presence reloads performed by live views",
	})

	// MessageFetchFallbacks counts inserts rendered from the raw event after
	// the follow-up fetch failed
	MessageFetchFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "labspace_message_fetch_fallbacks_total",
		Help: "Message inserts reconstructed without denormalized fields",
	})

	PresenceExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "labspace_presence_expired_total",
		Help: "Sessions whose stale presence records were marked offline by the sweep",
	})

	// StoreOperationDuration times repository transactions by operation and result
	StoreOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "labspace_store_operation_duration_seconds",
		Help:    "Repository transaction latency in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
	}, []string{"operation", "result"})

	LiveSockets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "labspace_live_sockets",
		Help: "Open live websocket connections",
	})

	AssistantTurns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "labspace_assistant_turns_total",
		Help: "Assistant turns by result",
	}, []string{"result"})
)

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
