package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pipeline counters and gauges; gauges are refreshed by the housekeeper tick
type Metrics struct {
	EventsTotal    prometheus.Counter
	DropsTotal     *prometheus.CounterVec
	BuysTotal      prometheus.Counter
	TriggersTotal  *prometheus.CounterVec
	SafetyOutcomes *prometheus.CounterVec
	AlertsEnqueued prometheus.Counter
	EvalDuration   prometheus.Histogram

	QueueDepth    prometheus.Gauge
	TrackedTokens prometheus.Gauge
	DedupeSize    prometheus.Gauge
}

// New registers collectors on reg; nil -> default registerer
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	const ns = "whalewatch"

	return &Metrics{
		EventsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "events_total",
			Help:      "Raw swap events received from all sources",
		}),
		DropsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "drops_total",
			Help:      "Events dropped during normalization by reason",
		}, []string{"reason"}),
		BuysTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "buys_total",
			Help:      "Whale buys recorded into windows",
		}),
		TriggersTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "triggers_total",
			Help:      "Window triggers fired by reason",
		}, []string{"reason"}),
		SafetyOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "safety_outcomes_total",
			Help:      "Safety cascade verdicts by outcome",
		}, []string{"outcome"}),
		AlertsEnqueued: f.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "alerts_enqueued_total",
			Help:      "Alerts accepted into the delivery queue",
		}),
		EvalDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "eval_duration_seconds",
			Help:      "Safety evaluation duration",
			Buckets:   prometheus.DefBuckets,
		}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "alert_queue_depth",
			Help:      "Alerts waiting for delivery",
		}),
		TrackedTokens: f.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "tracked_tokens",
			Help:      "Tokens with a live buy window",
		}),
		DedupeSize: f.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "dedupe_size",
			Help:      "Entries in the alert dedupe set",
		}),
	}
}

func Handler() http.Handler {
	h := promhttp.Handler()
	return h
}
