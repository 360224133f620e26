package services

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService collects indexing metrics on a private registry and
// exposes them over the API's /metrics endpoint.
type MetricsService struct {
	eventsProcessedTotal  *prometheus.CounterVec
	processingErrorsTotal *prometheus.CounterVec
	queueDepth            prometheus.Gauge
	intentsByStatus       *prometheus.GaugeVec

	registry *prometheus.Registry
}

// NewMetricsService creates the metric set and registers it.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	eventsProcessedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_events_processed_total",
			Help: "Events indexed from the ledger feed, by chain and event name",
		},
		[]string{"chain_id", "event"},
	)

	processingErrorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_processing_errors_total",
			Help: "Events that failed to persist, by chain",
		},
		[]string{"chain_id"},
	)

	queueDepth := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "portal_indexer_queue_depth",
			Help: "Events waiting in the indexer queue",
		},
	)

	intentsByStatus := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "portal_intents_by_status",
			Help: "Intent records observed, by lifecycle status",
		},
		[]string{"status"},
	)

	registry.MustRegister(eventsProcessedTotal, processingErrorsTotal, queueDepth, intentsByStatus)

	return &MetricsService{
		eventsProcessedTotal:  eventsProcessedTotal,
		processingErrorsTotal: processingErrorsTotal,
		queueDepth:            queueDepth,
		intentsByStatus:       intentsByStatus,
		registry:              registry,
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *MetricsService) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *MetricsService) RecordEvent(chainID, event string) {
	m.eventsProcessedTotal.WithLabelValues(chainID, event).Inc()
}

func (m *MetricsService) RecordError(chainID string) {
	m.processingErrorsTotal.WithLabelValues(chainID).Inc()
}

func (m *MetricsService) SetQueueDepth(depth int) {
	m.queueDepth.Set(float64(depth))
}

func (m *MetricsService) RecordStatus(status string) {
	m.intentsByStatus.WithLabelValues(status).Inc()
}
