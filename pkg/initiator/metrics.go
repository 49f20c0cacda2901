package initiator

import (
	"github.com/backkem/fix/pkg/session"
	"github.com/backkem/fix/pkg/sessionid"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors of an initiator.
type Metrics struct {
	connectAttempts *prometheus.CounterVec // Connect dispatches by session
	sessions        *prometheus.GaugeVec   // Managed sessions by connection state
	disconnects     *prometheus.CounterVec // Connections lost by session
}

// newMetrics creates the collectors and registers them on r. A nil r
// disables metrics.
func newMetrics(r prometheus.Registerer) (*Metrics, error) {
	if r == nil {
		return nil, nil
	}

	m := &Metrics{
		connectAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fix",
			Subsystem: "initiator",
			Name:      "connect_attempts_total",
			Help:      "Total connection attempts dispatched to the connector",
		}, []string{"session"}),

		sessions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "fix",
			Subsystem: "initiator",
			Name:      "sessions",
			Help:      "Managed sessions by connection state",
		}, []string{"state"}),

		disconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fix",
			Subsystem: "initiator",
			Name:      "disconnects_total",
			Help:      "Total transport disconnections",
		}, []string{"session"}),
	}

	for _, c := range []prometheus.Collector{m.connectAttempts, m.sessions, m.disconnects} {
		if err := r.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) connectAttempt(id sessionid.ID) {
	if m == nil {
		return
	}
	m.connectAttempts.WithLabelValues(id.String()).Inc()
}

func (m *Metrics) disconnect(id sessionid.ID) {
	if m == nil {
		return
	}
	m.disconnects.WithLabelValues(id.String()).Inc()
}

// transition moves one session between state gauges. StateNone is not
// tracked.
func (m *Metrics) transition(from, to session.ConnectionState) {
	if m == nil || from == to {
		return
	}
	if from != session.StateNone {
		m.sessions.WithLabelValues(from.String()).Dec()
	}
	if to != session.StateNone {
		m.sessions.WithLabelValues(to.String()).Inc()
	}
}
