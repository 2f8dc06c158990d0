package metrics

import "github.com/prometheus/client_golang/prometheus"

// SchedulingMetrics exposes counters and histograms for the booking core.
type SchedulingMetrics struct {
	bookingsTotal    *prometheus.CounterVec
	transitionsTotal *prometheus.CounterVec
	reviewsTotal     *prometheus.CounterVec
	slotsCreated     *prometheus.CounterVec
	eventsDelivered  *prometheus.CounterVec
	httpLatency      *prometheus.HistogramVec
}

func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telemed",
			Subsystem: "booking",
			Name:      "attempts_total",
			Help:      "Booking attempts by outcome",
		}, []string{"outcome"}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telemed",
			Subsystem: "booking",
			Name:      "transitions_total",
			Help:      "Appointment state transitions",
		}, []string{"from", "to"}),
		reviewsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telemed",
			Subsystem: "credential",
			Name:      "reviews_total",
			Help:      "Document reviews by decision and resulting physician state",
		}, []string{"decision", "physician_state"}),
		slotsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telemed",
			Subsystem: "slots",
			Name:      "created_total",
			Help:      "Slots created",
		}, []string{"outcome"}),
		eventsDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telemed",
			Subsystem: "events",
			Name:      "delivered_total",
			Help:      "Outbox events handed to the delivery handler",
		}, []string{"event_type", "status"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "telemed",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency of HTTP requests by route pattern",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingsTotal, m.transitionsTotal, m.reviewsTotal, m.slotsCreated, m.eventsDelivered, m.httpLatency)
	return m
}

func (m *SchedulingMetrics) ObserveBooking(outcome string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(outcome).Inc()
}

func (m *SchedulingMetrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(from, to).Inc()
}

func (m *SchedulingMetrics) ObserveReview(decision, physicianState string) {
	if m == nil {
		return
	}
	m.reviewsTotal.WithLabelValues(decision, physicianState).Inc()
}

func (m *SchedulingMetrics) ObserveSlotsCreated(outcome string, n int) {
	if m == nil {
		return
	}
	m.slotsCreated.WithLabelValues(outcome).Add(float64(n))
}

func (m *SchedulingMetrics) ObserveEventDelivery(eventType, status string) {
	if m == nil {
		return
	}
	m.eventsDelivered.WithLabelValues(eventType, status).Inc()
}

func (m *SchedulingMetrics) ObserveHTTP(method, route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.httpLatency.WithLabelValues(method, route, status).Observe(seconds)
}
