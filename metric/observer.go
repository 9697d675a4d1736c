package metric

import (
	"github.com/tr-sdv-sandbox/vsslink/pkg/fsm"
)

// FSMObserver adapts the core metrics to the fsm.Observer interface so
// every state machine transition is counted.
type FSMObserver struct {
	metrics *Metrics
}

// NewFSMObserver returns an observer recording into m.
func NewFSMObserver(m *Metrics) *FSMObserver {
	return &FSMObserver{metrics: m}
}

// OnTransition records a fired transition or an ignored trigger.
func (o *FSMObserver) OnTransition(obs fsm.Observation) {
	if obs.Fired {
		o.metrics.StateTransitions.WithLabelValues(obs.Machine, obs.From, obs.To, obs.Trigger).Inc()
		return
	}
	o.metrics.TriggersIgnored.WithLabelValues(obs.Machine, obs.Trigger).Inc()
}
