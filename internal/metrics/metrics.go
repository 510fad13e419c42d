package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the service's Prometheus collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	RegistrationsCreated            *prometheus.CounterVec
	RegistrationTransitions         *prometheus.CounterVec
	RegistrationTransitionsRejected prometheus.Counter
	InvitesIssued                   prometheus.Counter
	InviteClaims                    *prometheus.CounterVec
	InviteSubmissions               prometheus.Counter
	InviteEmailFailures             prometheus.Counter
	ActiveStreams                   *prometheus.GaugeVec
	HTTPRequests                    *prometheus.CounterVec
	HTTPRequestDuration             *prometheus.HistogramVec
}

// New registers every collector with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RegistrationsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "yx_registrations_created_total",
			Help: "Registrations created, by source (admin or invite)",
		}, []string{"source"}),
		RegistrationTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "yx_registration_transitions_total",
			Help: "Registration status changes applied",
		}, []string{"from", "to"}),
		RegistrationTransitionsRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "yx_registration_transitions_rejected_total",
			Help: "Registration status changes refused by the transition policy",
		}),
		InvitesIssued: factory.NewCounter(prometheus.CounterOpts{
			Name: "yx_invites_issued_total",
			Help: "Invites issued",
		}),
		InviteClaims: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "yx_invite_claims_total",
			Help: "Invite claim attempts, by result",
		}, []string{"result"}),
		InviteSubmissions: factory.NewCounter(prometheus.CounterOpts{
			Name: "yx_invite_submissions_total",
			Help: "Guest registration forms submitted",
		}),
		InviteEmailFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "yx_invite_email_failures_total",
			Help: "Invite emails that could not be sent",
		}),
		ActiveStreams: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "yx_active_streams",
			Help: "Open server-sent event streams",
		}, []string{"stream"}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "yx_http_requests_total",
			Help: "HTTP requests served",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "yx_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"method", "route"}),
	}
}

func (m *Metrics) RegistrationCreated(source string) {
	if m == nil {
		return
	}
	m.RegistrationsCreated.WithLabelValues(source).Inc()
}

func (m *Metrics) Transition(from, to string) {
	if m == nil {
		return
	}
	m.RegistrationTransitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) TransitionRejected() {
	if m == nil {
		return
	}
	m.RegistrationTransitionsRejected.Inc()
}

func (m *Metrics) InviteIssued() {
	if m == nil {
		return
	}
	m.InvitesIssued.Inc()
}

func (m *Metrics) InviteClaim(result string) {
	if m == nil {
		return
	}
	m.InviteClaims.WithLabelValues(result).Inc()
}

func (m *Metrics) InviteSubmitted() {
	if m == nil {
		return
	}
	m.InviteSubmissions.Inc()
}

func (m *Metrics) InviteEmailFailed() {
	if m == nil {
		return
	}
	m.InviteEmailFailures.Inc()
}

// StreamOpened increments the open stream gauge and returns the matching decrement.
func (m *Metrics) StreamOpened(stream string) (closed func()) {
	if m == nil {
		return func() {}
	}
	g := m.ActiveStreams.WithLabelValues(stream)
	g.Inc()
	return g.Dec
}

// ObserveRequest records one served request. Call with time.Now() taken when it started.
func (m *Metrics) ObserveRequest(method, route string, status int, start time.Time) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
}
