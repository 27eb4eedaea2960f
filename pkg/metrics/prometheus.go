package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	signalsTotal    *prometheus.CounterVec
	tradesTotal     *prometheus.CounterVec
	rejectionsTotal *prometheus.CounterVec
	alertsTotal     *prometheus.CounterVec
	errorsTotal     *prometheus.CounterVec
	observers       prometheus.Gauge
	lastPrice       *prometheus.GaugeVec
	latency         *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		signalsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "whalepulse_signals_total",
				Help: "Total signals generated by kind",
			},
			[]string{"kind"},
		),
		tradesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "whalepulse_trades_total",
				Help: "Total paper trades executed by side",
			},
			[]string{"side"},
		),
		rejectionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "whalepulse_rejections_total",
				Help: "Total rejected signals by reason",
			},
			[]string{"reason"},
		),
		alertsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "whalepulse_alert_deliveries_total",
				Help: "Alert delivery attempts by channel and outcome",
			},
			[]string{"channel", "outcome"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "whalepulse_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		observers: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "whalepulse_observers",
				Help: "Currently connected websocket observers",
			},
		),
		lastPrice: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "whalepulse_last_price",
				Help: "Last recorded price for an asset",
			},
			[]string{"asset"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "whalepulse_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordSignal records a generated signal.
func (r *Recorder) RecordSignal(kind string) {
	r.signalsTotal.WithLabelValues(kind).Inc()
}

// RecordTrade records an executed trade.
func (r *Recorder) RecordTrade(side string) {
	r.tradesTotal.WithLabelValues(side).Inc()
}

// RecordRejection records a rejected signal.
func (r *Recorder) RecordRejection(reason string) {
	r.rejectionsTotal.WithLabelValues(reason).Inc()
}

// RecordAlertDelivery records one delivery attempt outcome.
func (r *Recorder) RecordAlertDelivery(channel string, ok bool) {
	outcome := "failure"
	if ok {
		outcome = "success"
	}
	r.alertsTotal.WithLabelValues(channel, outcome).Inc()
}

// RecordObserverCount tracks connected websocket observers.
func (r *Recorder) RecordObserverCount(n int) {
	r.observers.Set(float64(n))
}

// RecordLastPrice records the last price for an asset.
func (r *Recorder) RecordLastPrice(asset string, price float64) {
	r.lastPrice.WithLabelValues(asset).Set(price)
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
