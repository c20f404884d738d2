// Package metrics exposes agent activity as Prometheus metrics.
//
// Agent satisfies the observer interfaces of the request handler, the
// transport, the monitor and the notification dispatcher, so one value
// can be wired into all four.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/minimib/internal/mib"
)

const namespace = "minimib"

type Agent struct {
	requests       *prometheus.CounterVec
	dropped        *prometheus.CounterVec
	samples        prometheus.Counter
	sampleFailures prometheus.Counter
	alerts         prometheus.Counter
	deliveries     *prometheus.CounterVec
	deliveryTime   *prometheus.HistogramVec
	value          prometheus.Gauge
	threshold      prometheus.Gauge
}

// New creates the metrics and registers them on reg.
func New(reg prometheus.Registerer) *Agent {
	a := &Agent{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Requests handled, by verb and status.",
		}, []string{"verb", "status"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_dropped_total",
			Help:      "Datagrams dropped without a reply, by reason.",
		}, []string{"reason"}),
		samples: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_total",
			Help:      "Metric samples recorded by the monitor.",
		}),
		sampleFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sample_failures_total",
			Help:      "Monitor ticks that produced no usable sample.",
		}),
		alerts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Threshold crossings that raised an alert.",
		}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_deliveries_total",
			Help:      "Alert delivery attempts, by sink and status.",
		}, []string{"sink", "status"}),
		deliveryTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "alert_delivery_seconds",
			Help:      "Time spent delivering an alert, by sink.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"sink"}),
		value: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sampled_value",
			Help:      "Most recent monitored value.",
		}),
		threshold: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "threshold",
			Help:      "Threshold in force at the most recent sample.",
		}),
	}

	reg.MustRegister(
		a.requests, a.dropped,
		a.samples, a.sampleFailures, a.alerts,
		a.deliveries, a.deliveryTime,
		a.value, a.threshold,
	)
	return a
}

func (a *Agent) ObserveRequest(verb string, status mib.Status) {
	a.requests.WithLabelValues(verb, status.String()).Inc()
}

func (a *Agent) ObservePacketDropped(reason string) {
	a.dropped.WithLabelValues(reason).Inc()
}

func (a *Agent) ObserveSample(value, threshold int64) {
	a.samples.Inc()
	a.value.Set(float64(value))
	a.threshold.Set(float64(threshold))
}

func (a *Agent) ObserveSampleFailure() {
	a.sampleFailures.Inc()
}

func (a *Agent) ObserveAlert() {
	a.alerts.Inc()
}

func (a *Agent) ObserveDelivery(sink, status string, elapsed time.Duration) {
	a.deliveries.WithLabelValues(sink, status).Inc()
	a.deliveryTime.WithLabelValues(sink).Observe(elapsed.Seconds())
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
