// Package observability exports arcgo heap metrics to Prometheus.
package observability

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/arcgo"
)

// PrometheusObserver implements arcgo.MetricsObserver.
//
// One observer may be shared by several heaps; their events are summed.
type PrometheusObserver struct {
	allocs      prometheus.Counter
	allocErrors *prometheus.CounterVec
	drops       prometheus.Counter
	frees       prometheus.Counter
	upgrades    *prometheus.CounterVec
	getMuts     *prometheus.CounterVec
	grows       prometheus.Counter
	bytes       prometheus.Gauge
	live        prometheus.Gauge
	payloads    prometheus.Gauge
}

var _ arcgo.MetricsObserver = (*PrometheusObserver)(nil)

// NewPrometheusObserver creates the collectors under namespace and
// registers them with reg. A nil reg uses prometheus.DefaultRegisterer.
func NewPrometheusObserver(reg prometheus.Registerer, namespace string) (*PrometheusObserver, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	o := &PrometheusObserver{
		allocs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "allocs_total",
			Help:      "Blocks constructed",
		}),
		allocErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alloc_errors_total",
			Help:      "Failed allocations by reason",
		}, []string{"reason"}),
		drops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drops_total",
			Help:      "Payloads destroyed",
		}),
		frees: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frees_total",
			Help:      "Blocks returned to the arena",
		}),
		upgrades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upgrades_total",
			Help:      "Weak upgrades by result",
		}, []string{"result"}),
		getMuts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "get_mut_total",
			Help:      "Exclusive access attempts by result",
		}, []string{"result"}),
		grows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "arena_grows_total",
			Help:      "Chunks reserved by the arena",
		}),
		bytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "arena_reserved_bytes",
			Help:      "Memory currently reserved for arena chunks",
		}),
		live: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_blocks",
			Help:      "Blocks with at least one handle",
		}),
		payloads: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_payloads",
			Help:      "Payloads with at least one strong handle",
		}),
	}

	for _, c := range []prometheus.Collector{
		o.allocs, o.allocErrors, o.drops, o.frees, o.upgrades,
		o.getMuts, o.grows, o.bytes, o.live, o.payloads,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return o, nil
}

// OnAlloc implements arcgo.MetricsObserver.
func (o *PrometheusObserver) OnAlloc() {
	o.allocs.Inc()
	o.live.Inc()
	o.payloads.Inc()
}

// OnDrop implements arcgo.MetricsObserver.
func (o *PrometheusObserver) OnDrop() {
	o.drops.Inc()
	o.payloads.Dec()
}

// OnFree implements arcgo.MetricsObserver.
func (o *PrometheusObserver) OnFree() {
	o.frees.Inc()
	o.live.Dec()
}

// OnUpgrade implements arcgo.MetricsObserver.
func (o *PrometheusObserver) OnUpgrade(ok bool) {
	o.upgrades.WithLabelValues(result(ok)).Inc()
}

// OnGetMut implements arcgo.MetricsObserver.
func (o *PrometheusObserver) OnGetMut(ok bool) {
	o.getMuts.WithLabelValues(result(ok)).Inc()
}

// OnGrow implements arcgo.MetricsObserver.
func (o *PrometheusObserver) OnGrow(bytes int64) {
	o.grows.Inc()
	o.bytes.Add(float64(bytes))
}

// OnRelease implements arcgo.MetricsObserver.
func (o *PrometheusObserver) OnRelease(bytes int64) {
	o.bytes.Sub(float64(bytes))
}

// OnAllocError implements arcgo.MetricsObserver.
func (o *PrometheusObserver) OnAllocError(err error) {
	o.allocErrors.WithLabelValues(reason(err)).Inc()
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

func reason(err error) string {
	switch {
	case errors.Is(err, arcgo.ErrMemoryLimitExceeded):
		return "memory_limit"
	case errors.Is(err, arcgo.ErrArenaFull):
		return "arena_full"
	default:
		return "other"
	}
}
