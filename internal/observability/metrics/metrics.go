package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for wizard transitions.
type BookingMetrics struct {
	transitionsTotal  *prometheus.CounterVec
	backTotal         *prometheus.CounterVec
	transitionLatency *prometheus.HistogramVec
	sessionsCreated   *prometheus.CounterVec
	appointmentsTotal prometheus.Counter
	slotQueries       *prometheus.CounterVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "praxis",
			Subsystem: "booking",
			Name:      "transitions_total",
			Help:      "Wizard operations by operation and outcome",
		}, []string{"operation", "outcome"}),
		backTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "praxis",
			Subsystem: "booking",
			Name:      "back_navigations_total",
			Help:      "Back navigations by origin step and outcome",
		}, []string{"step", "outcome"}),
		transitionLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "praxis",
			Subsystem: "booking",
			Name:      "transition_latency_seconds",
			Help:      "Latency of wizard operations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		sessionsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "praxis",
			Subsystem: "booking",
			Name:      "sessions_created_total",
			Help:      "Sessions started, split by whether an active one was reused",
		}, []string{"reused"}),
		appointmentsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "praxis",
			Subsystem: "booking",
			Name:      "appointments_booked_total",
			Help:      "Appointments created by completed sessions",
		}),
		slotQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "praxis",
			Subsystem: "booking",
			Name:      "slot_queries_total",
			Help:      "Slot engine queries by outcome",
		}, []string{"outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.transitionsTotal, m.backTotal, m.transitionLatency, m.sessionsCreated, m.appointmentsTotal, m.slotQueries)
	return m
}

func (m *BookingMetrics) ObserveTransition(operation, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(operation, outcome).Inc()
	m.transitionLatency.WithLabelValues(operation).Observe(seconds)
}

func (m *BookingMetrics) ObserveBack(step, outcome string) {
	if m == nil {
		return
	}
	m.backTotal.WithLabelValues(step, outcome).Inc()
}

func (m *BookingMetrics) ObserveSessionCreated(reused bool) {
	if m == nil {
		return
	}
	label := "false"
	if reused {
		label = "true"
	}
	m.sessionsCreated.WithLabelValues(label).Inc()
}

func (m *BookingMetrics) ObserveAppointmentBooked() {
	if m == nil {
		return
	}
	m.appointmentsTotal.Inc()
}

func (m *BookingMetrics) ObserveSlotQuery(outcome string) {
	if m == nil {
		return
	}
	m.slotQueries.WithLabelValues(outcome).Inc()
}

// SweeperMetrics exposes counters for the expiry sweeper.
type SweeperMetrics struct {
	runsTotal      *prometheus.CounterVec
	deletedTotal   *prometheus.CounterVec
	lastRunSeconds prometheus.Gauge
}

func NewSweeperMetrics(reg prometheus.Registerer) *SweeperMetrics {
	m := &SweeperMetrics{
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "praxis",
			Subsystem: "sweeper",
			Name:      "runs_total",
			Help:      "Sweeper runs by outcome",
		}, []string{"outcome"}),
		deletedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "praxis",
			Subsystem: "sweeper",
			Name:      "deleted_total",
			Help:      "Rows removed by the sweeper",
		}, []string{"kind"}),
		lastRunSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "praxis",
			Subsystem: "sweeper",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time of the last successful sweep",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.runsTotal, m.deletedTotal, m.lastRunSeconds)
	return m
}

func (m *SweeperMetrics) ObserveRun(outcome string, sessions, records int64, unixSeconds float64) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(outcome).Inc()
	if sessions > 0 {
		m.deletedTotal.WithLabelValues("session").Add(float64(sessions))
	}
	if records > 0 {
		m.deletedTotal.WithLabelValues("step_record").Add(float64(records))
	}
	if outcome == "ok" {
		m.lastRunSeconds.Set(unixSeconds)
	}
}
