package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry groups the group order sync metrics. A nil *Registry is valid and records nothing.
type Registry struct {
	reg *prometheus.Registry

	StoreWrites      *prometheus.CounterVec
	SnapshotsApplied prometheus.Counter
	Rejections       *prometheus.CounterVec
	ActiveSessions   prometheus.Gauge
	OrdersHandedOff  *prometheus.CounterVec
	SessionsVanished *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	storeWrites := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "grouporder_store_writes_total",
		Help: "Document store writes issued by client sessions",
	}, []string{"result"})
	snapshots := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "grouporder_snapshots_applied_total",
		Help: "Remote snapshots applied to client session caches",
	})
	rejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "grouporder_mutations_rejected_total",
		Help: "Mutations rejected locally before reaching the store",
	}, []string{"op", "reason"})
	active := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "grouporder_active_sessions",
		Help: "Connected client sessions",
	})
	handedOff := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "grouporder_orders_handed_off_total",
		Help: "Placed orders handed to order creation",
	}, []string{"result"})
	vanished := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "grouporder_sessions_vanished_total",
		Help: "Client sessions closed because the document vanished or the subscription failed",
	}, []string{"cause"})

	httpDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "grouporder_http_request_duration_seconds",
		Help:    "HTTP request latency by route",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	r.MustRegister(storeWrites, snapshots, rejections, active, handedOff, vanished, httpDuration)
	return &Registry{
		reg:              r,
		StoreWrites:      storeWrites,
		SnapshotsApplied: snapshots,
		Rejections:       rejections,
		ActiveSessions:   active,
		OrdersHandedOff:  handedOff,
		SessionsVanished: vanished,
		HTTPDuration:     httpDuration,
	}
}

func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

func (r *Registry) Write(result string) {
	if r == nil {
		return
	}
	r.StoreWrites.WithLabelValues(result).Inc()
}

func (r *Registry) Snapshot() {
	if r == nil {
		return
	}
	r.SnapshotsApplied.Inc()
}

func (r *Registry) Rejected(op, reason string) {
	if r == nil {
		return
	}
	r.Rejections.WithLabelValues(op, reason).Inc()
}

func (r *Registry) SessionOpened() {
	if r == nil {
		return
	}
	r.ActiveSessions.Inc()
}

func (r *Registry) SessionClosed() {
	if r == nil {
		return
	}
	r.ActiveSessions.Dec()
}

func (r *Registry) HandedOff(result string) {
	if r == nil {
		return
	}
	r.OrdersHandedOff.WithLabelValues(result).Inc()
}

func (r *Registry) Vanished(cause string) {
	if r == nil {
		return
	}
	r.SessionsVanished.WithLabelValues(cause).Inc()
}

func (r *Registry) ObserveHTTP(method, route string, status int, d time.Duration) {
	if r == nil {
		return
	}
	r.HTTPDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}
