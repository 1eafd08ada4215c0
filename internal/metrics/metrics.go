package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Callbacks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "yanbot_callbacks_total",
		Help: "Inbound analysis callbacks by outcome",
	}, []string{"outcome"})
	Dispatches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "yanbot_dispatches_total",
		Help: "Outbound task dispatches by kind and outcome",
	}, []string{"task_kind", "outcome"})
	Deliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "yanbot_deliveries_total",
		Help: "Messages delivered to users by outcome",
	}, []string{"outcome"})
	Updates = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "yanbot_updates_total",
		Help: "Chat updates received by outcome",
	}, []string{"outcome"})
	RewriteRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "yanbot_rewrite_retries_total",
		Help: "Rewrite attempts that were retried",
	})
)

func init() {
	prometheus.MustRegister(Callbacks, Dispatches, Deliveries, Updates, RewriteRetries)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// IncCallback counts a callback outcome: ok, forbidden, invalid, not_found, error.
func IncCallback(outcome string) { Callbacks.WithLabelValues(outcome).Inc() }

// IncDispatch counts a dispatch attempt for a task kind.
func IncDispatch(kind, outcome string) { Dispatches.WithLabelValues(kind, outcome).Inc() }

// IncDelivery counts a delivery outcome: ok or error.
func IncDelivery(outcome string) { Deliveries.WithLabelValues(outcome).Inc() }

// IncUpdate counts a chat update outcome: queued, forbidden, invalid, error.
func IncUpdate(outcome string) { Updates.WithLabelValues(outcome).Inc() }
