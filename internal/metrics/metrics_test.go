package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RegistrationCreated("invite")
	m.RegistrationCreated("invite")
	m.Transition("applied", "approved")
	m.TransitionRejected()
	m.InviteClaim("claimed")
	m.ObserveRequest("GET", "", 200, time.Now())

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RegistrationsCreated.WithLabelValues("invite")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RegistrationTransitions.WithLabelValues("applied", "approved")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RegistrationTransitionsRejected))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InviteClaims.WithLabelValues("claimed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "unmatched", "200")))
}

func TestMetrics_StreamGauge(t *testing.T) {
	m := New(prometheus.NewRegistry())
	done := m.StreamOpened("registrations")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveStreams.WithLabelValues("registrations")))
	done()
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ActiveStreams.WithLabelValues("registrations")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RegistrationCreated("admin")
		m.Transition("a", "b")
		m.InviteIssued()
		m.StreamOpened("x")()
		m.ObserveRequest("GET", "/", 200, time.Now())
	})
}
