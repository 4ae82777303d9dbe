package metrics

import "github.com/prometheus/client_golang/prometheus"

// SchedulingMetrics exposes counters/histograms for the booking engine.
// A nil *SchedulingMetrics is valid and records nothing.
type SchedulingMetrics struct {
	bookingsTotal      *prometheus.CounterVec
	transitionsTotal   *prometheus.CounterVec
	notificationsTotal *prometheus.CounterVec
	unitOfWorkLatency  *prometheus.HistogramVec
	queueDepth         prometheus.Gauge
}

func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "bookings_total",
			Help:      "Booking attempts by outcome",
		}, []string{"outcome"}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "status_transitions_total",
			Help:      "Appointment status transition attempts by target status and outcome",
		}, []string{"status", "outcome"}),
		notificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "notifications",
			Name:      "total",
			Help:      "Appointment notifications by event and result",
		}, []string{"event", "result"}),
		unitOfWorkLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "unit_of_work_seconds",
			Help:      "Latency of booking and transition transactions",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "clinic",
			Subsystem: "notifications",
			Name:      "queue_depth",
			Help:      "Notifications waiting for a worker",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingsTotal, m.transitionsTotal, m.notificationsTotal, m.unitOfWorkLatency, m.queueDepth)
	return m
}

func (m *SchedulingMetrics) ObserveBooking(outcome string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(outcome).Inc()
}

func (m *SchedulingMetrics) ObserveTransition(status, outcome string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(status, outcome).Inc()
}

func (m *SchedulingMetrics) ObserveNotification(event, result string) {
	if m == nil {
		return
	}
	m.notificationsTotal.WithLabelValues(event, result).Inc()
}

func (m *SchedulingMetrics) ObserveUnitOfWork(operation string, seconds float64) {
	if m == nil {
		return
	}
	m.unitOfWorkLatency.WithLabelValues(operation).Observe(seconds)
}

func (m *SchedulingMetrics) SetQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(depth))
}
