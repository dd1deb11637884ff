// Package metrics holds the Prometheus collectors of the crawler and the API.
package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/maltedev/catalog-crawler/internal/repair"
)

const namespace = "catalog"

// Metrics is safe to use through a nil pointer; every method is then a no-op.
type Metrics struct {
	RepairsTotal    *prometheus.CounterVec
	RepairAttempts  prometheus.Histogram
	ItemsTotal      *prometheus.CounterVec
	StageErrors     *prometheus.CounterVec
	LLMRequests     *prometheus.CounterVec
	LLMDuration     prometheus.Histogram
	RelayPublished  *prometheus.CounterVec
	HTTPRequests    *prometheus.CounterVec
	HTTPDuration    *prometheus.HistogramVec
	RecordsAppended *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RepairsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "json_repairs_total",
			Help:      "JSON repairs by outcome.",
		}, []string{"outcome"}),
		RepairAttempts: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "json_repair_attempts",
			Help:      "Parse attempts used per repair.",
			Buckets:   []float64{1, 2, 3, 4, 5, 8},
		}),
		ItemsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_items_total",
			Help:      "Worklist items by final status.",
		}, []string{"status"}),
		StageErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_stage_errors_total",
			Help:      "Pipeline errors by stage.",
		}, []string{"stage"}),
		LLMRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Model requests by outcome.",
		}, []string{"outcome"}),
		LLMDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "Duration of model requests.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
		RelayPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_relay_published_total",
			Help:      "Outbox events relayed to Redis by event type and status.",
		}, []string{"event_type", "status"}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		RecordsAppended: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_appended_total",
			Help:      "Catalog records by sink result.",
		}, []string{"result"}),
	}
}

// ObserveRepair records the outcome of one repair. attempts is ignored when
// the input never reached the parser.
func (m *Metrics) ObserveRepair(attempts int, err error) {
	if m == nil {
		return
	}
	outcome := repairOutcome(err)
	m.RepairsTotal.WithLabelValues(outcome).Inc()
	if attempts > 0 {
		m.RepairAttempts.Observe(float64(attempts))
	}
}

func repairOutcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, repair.ErrEmptyInput):
		return "empty_input"
	case errors.Is(err, repair.ErrNoJSONObject):
		return "no_object"
	case errors.Is(err, repair.ErrUnparseable):
		return "unparseable"
	default:
		return "error"
	}
}

func (m *Metrics) IncItem(status string) {
	if m == nil {
		return
	}
	m.ItemsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) IncStageError(stage string) {
	if m == nil {
		return
	}
	m.StageErrors.WithLabelValues(stage).Inc()
}

func (m *Metrics) ObserveLLM(d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.LLMRequests.WithLabelValues(outcome).Inc()
	m.LLMDuration.Observe(d.Seconds())
}

// ObserveRelay matches database.RelayConfig.OnPublish.
func (m *Metrics) ObserveRelay(eventType string, err error) {
	if m == nil {
		return
	}
	status := "published"
	if err != nil {
		status = "failed"
	}
	m.RelayPublished.WithLabelValues(eventType, status).Inc()
}

func (m *Metrics) ObserveAppend(inserted bool) {
	if m == nil {
		return
	}
	result := "duplicate"
	if inserted {
		result = "inserted"
	}
	m.RecordsAppended.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveHTTP(method, path string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, path).Observe(d.Seconds())
}
