package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeApplied   = "applied"
	OutcomeDuplicate = "duplicate"
	OutcomeDropped   = "dropped"
	OutcomeFailed    = "failed"
)

// PipelineMetrics covers the outbox relay, the event channel and the membership handlers.
type PipelineMetrics struct {
	outboxPublished *prometheus.CounterVec
	outboxFailures  *prometheus.CounterVec
	outboxBacklog   prometheus.Gauge
	deliveries      *prometheus.CounterVec
	redeliveries    *prometheus.CounterVec
	handled         *prometheus.CounterVec
}

var (
	pipelineMetricsOnce sync.Once
	pipelineMetrics     *PipelineMetrics
)

func Pipeline() *PipelineMetrics {
	return PipelineWithConfig(Config{})
}

func PipelineWithConfig(cfg Config) *PipelineMetrics {
	pipelineMetricsOnce.Do(func() {
		pipelineMetrics = newPipelineMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return pipelineMetrics
}

// ResetPipelineMetricsForTest resets the pipeline metrics singleton for tests.
func ResetPipelineMetricsForTest() {
	pipelineMetricsOnce = sync.Once{}
	pipelineMetrics = nil
}

func newPipelineMetrics(registerer prometheus.Registerer, cfg Config) *PipelineMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	labels := constLabels(cfg)

	m := &PipelineMetrics{
		outboxPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "orgsync_outbox_published_total",
			Help:        "Outbox records handed to the event channel.",
			ConstLabels: labels,
		}, []string{"routing_key"}),
		outboxFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "orgsync_outbox_publish_failures_total",
			Help:        "Outbox publish attempts that failed and will be retried.",
			ConstLabels: labels,
		}, []string{"routing_key"}),
		outboxBacklog: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "orgsync_outbox_backlog",
			Help:        "Unpublished outbox records seen by the last relay poll.",
			ConstLabels: labels,
		}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "orgsync_event_deliveries_total",
			Help:        "Event deliveries dispatched to consumers.",
			ConstLabels: labels,
		}, []string{"queue"}),
		redeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "orgsync_event_redeliveries_total",
			Help:        "Event deliveries retried after a consumer error.",
			ConstLabels: labels,
		}, []string{"queue"}),
		handled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "orgsync_membership_events_handled_total",
			Help:        "Membership sync events by queue and outcome.",
			ConstLabels: labels,
		}, []string{"queue", "outcome"}),
	}

	registerer.MustRegister(
		m.outboxPublished,
		m.outboxFailures,
		m.outboxBacklog,
		m.deliveries,
		m.redeliveries,
		m.handled,
	)
	return m
}

func (m *PipelineMetrics) IncOutboxPublished(routingKey string) {
	if m == nil {
		return
	}
	m.outboxPublished.WithLabelValues(routingKey).Inc()
}

func (m *PipelineMetrics) IncOutboxFailure(routingKey string) {
	if m == nil {
		return
	}
	m.outboxFailures.WithLabelValues(routingKey).Inc()
}

func (m *PipelineMetrics) SetOutboxBacklog(count int) {
	if m == nil {
		return
	}
	m.outboxBacklog.Set(float64(count))
}

func (m *PipelineMetrics) IncDelivery(queue string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(queue).Inc()
}

func (m *PipelineMetrics) IncRedelivery(queue string) {
	if m == nil {
		return
	}
	m.redeliveries.WithLabelValues(queue).Inc()
}

func (m *PipelineMetrics) IncHandled(queue, outcome string) {
	if m == nil {
		return
	}
	m.handled.WithLabelValues(queue, outcome).Inc()
}
