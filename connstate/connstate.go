// Package connstate implements the connection lifecycle shared by the
// provider and subscriber loops: a five state machine tracking the path
// from a cold start to an active stream, with error capture and blocking
// waits for readiness.
package connstate

import (
	"log/slog"
	"sync"
	"time"

	"github.com/tr-sdv-sandbox/vsslink/errors"
	"github.com/tr-sdv-sandbox/vsslink/metric"
	"github.com/tr-sdv-sandbox/vsslink/pkg/fsm"
)

// State is one of the five connection lifecycle states.
type State int

const (
	// Disconnected means not started or stopped.
	Disconnected State = iota
	// Connecting means the broker connection is being established.
	Connecting
	// Establishing means the connection is up and the stream or
	// subscription is being set up.
	Establishing
	// Active means the stream is operational.
	Active
	// Failed means the connection or stream failed and a retry is pending.
	Failed
)

// String returns the canonical state name. Role-specific display names are
// applied by the Machine, not here.
func (s State) String() string {
	switch s {
	case Disconnected:
		return "DISCONNECTED"
	case Connecting:
		return "CONNECTING"
	case Establishing:
		return "ESTABLISHING"
	case Active:
		return "ACTIVE"
	case Failed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Trigger names fired by the client loops.
const (
	TriggerStart         = "start"
	TriggerChannelReady  = "channel_ready"
	TriggerConnectFailed = "connect_failed"
	TriggerStreamReady   = "stream_ready"
	TriggerStreamFailed  = "stream_failed"
	TriggerStreamEnded   = "stream_ended"
	TriggerRetry         = "retry"
	TriggerStop          = "stop"
)

// Role selects the display names used for the Establishing and Active
// states in logs and metrics.
type Role struct {
	Name         string
	Establishing string
	Active       string
}

// RoleProvider is the lifecycle of a provider registering actuators and
// streaming values.
var RoleProvider = Role{Name: "provider", Establishing: "REGISTERING", Active: "STREAMING"}

// RoleSubscriber is the lifecycle of a subscriber setting up a value
// subscription.
var RoleSubscriber = Role{Name: "subscriber", Establishing: "SUBSCRIBING", Active: "STREAMING"}

// Machine is the connection lifecycle state machine. All methods are safe
// for concurrent use.
//
// State flow:
//
//	DISCONNECTED --start--> CONNECTING
//	CONNECTING --channel_ready--> ESTABLISHING
//	CONNECTING --connect_failed--> FAILED
//	ESTABLISHING --stream_ready--> ACTIVE
//	ESTABLISHING --stream_failed--> FAILED
//	ACTIVE --stream_ended--> FAILED
//	FAILED --retry--> CONNECTING
//	any non-DISCONNECTED --stop--> DISCONNECTED
type Machine struct {
	clientName string
	role       Role
	sm         *fsm.Machine[State]
	logger     *slog.Logger
	observer   fsm.Observer
	metrics    *metric.Metrics

	errMu       sync.Mutex
	lastErr     error
	isTransport bool
}

// Option configures a Machine.
type Option func(*Machine)

// WithLogger sets the structured logger. Defaults to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Machine) { m.logger = logger }
}

// WithObserver forwards every transition to the given observer.
func WithObserver(obs fsm.Observer) Option {
	return func(m *Machine) { m.observer = obs }
}

// WithMetrics reports the current lifecycle state on the connection state
// gauge, labelled with the client name and role.
func WithMetrics(metrics *metric.Metrics) Option {
	return func(m *Machine) { m.metrics = metrics }
}

// New creates a lifecycle machine for the named client in the given role,
// starting Disconnected.
func New(clientName string, role Role, opts ...Option) *Machine {
	m := &Machine{
		clientName: clientName,
		role:       role,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.init()
	return m
}

func (m *Machine) stateName(s State) string {
	switch s {
	case Establishing:
		return m.role.Establishing
	case Active:
		return m.role.Active
	default:
		return s.String()
	}
}

func (m *Machine) init() {
	smOpts := []fsm.Option[State]{
		fsm.WithName[State](m.clientName),
		fsm.WithLogger[State](m.logger),
		fsm.WithStateNames[State](m.stateName),
	}
	if m.observer != nil {
		smOpts = append(smOpts, fsm.WithObserver[State](m.observer))
	}
	sm := fsm.New(Disconnected, smOpts...)

	sm.DefineState(Disconnected).OnEntry(func() {
		m.recordState(Disconnected)
	})
	sm.DefineState(Connecting).OnEntry(func() {
		m.recordState(Connecting)
		m.logger.Info("connecting to databroker", "client", m.clientName)
	})
	sm.DefineState(Establishing).OnEntry(func() {
		m.recordState(Establishing)
		m.logger.Info("setting up stream", "client", m.clientName, "phase", m.role.Establishing)
	})
	sm.DefineState(Active).OnEntry(func() {
		m.recordState(Active)
		m.logger.Info("fully operational", "client", m.clientName, "phase", m.role.Active)
	})
	sm.DefineState(Failed).OnEntry(func() {
		m.recordState(Failed)
		m.logger.Warn("connection failed", "client", m.clientName, "error", m.LastError())
	})

	sm.AddTransition(Disconnected, Connecting, TriggerStart)
	sm.AddTransition(Connecting, Establishing, TriggerChannelReady)
	sm.AddTransition(Connecting, Failed, TriggerConnectFailed)
	sm.AddTransition(Establishing, Active, TriggerStreamReady)
	sm.AddTransition(Establishing, Failed, TriggerStreamFailed)
	sm.AddTransition(Active, Failed, TriggerStreamEnded)
	sm.AddTransition(Failed, Connecting, TriggerRetry)

	for _, s := range []State{Connecting, Establishing, Active, Failed} {
		sm.AddTransition(s, Disconnected, TriggerStop)
	}

	m.sm = sm
	// Entry callbacks only fire on transitions, so the initial state is
	// recorded here.
	m.recordState(Disconnected)
}

func (m *Machine) recordState(s State) {
	if m.metrics == nil {
		return
	}
	m.metrics.ConnectionState.WithLabelValues(m.clientName, m.role.Name).Set(float64(s))
}

// Current returns the current lifecycle state.
func (m *Machine) Current() State {
	return m.sm.Current()
}

// IsActive reports whether the machine is in the Active state.
func (m *Machine) IsActive() bool {
	return m.sm.Current() == Active
}

// Status maps the current state to an operational error: nil when Active,
// FailedPrecondition when not started, Unavailable while in progress, and
// the recorded error when Failed.
func (m *Machine) Status() error {
	switch m.sm.Current() {
	case Disconnected:
		return errors.FailedPrecondition(m.clientName + " not started")
	case Connecting:
		return errors.Unavailable("connecting to databroker", nil)
	case Establishing:
		return errors.Unavailable(m.role.Establishing+" in progress", nil)
	case Active:
		return nil
	case Failed:
		if err := m.LastError(); err != nil {
			return err
		}
		return errors.Unavailable("connection failed", nil)
	default:
		return errors.Internal("Status", "unknown connection state")
	}
}

// WaitUntilActive blocks until the machine reaches Active, the machine
// fails, or the timeout elapses. A Failed state returns the recorded error
// immediately rather than waiting out the timeout.
func (m *Machine) WaitUntilActive(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		switch m.sm.Current() {
		case Active:
			return nil
		case Failed:
			if err := m.LastError(); err != nil {
				return err
			}
			return errors.Unavailable("connection failed", nil)
		}
		time.Sleep(50 * time.Millisecond)
	}
	return errors.DeadlineExceeded("waiting for " + m.clientName + " to become active")
}

// LastError returns the most recently recorded failure, or nil.
func (m *Machine) LastError() error {
	m.errMu.Lock()
	defer m.errMu.Unlock()
	return m.lastErr
}

// IsTransportError reports whether the recorded failure came from the
// connection rather than the stream setup.
func (m *Machine) IsTransportError() bool {
	m.errMu.Lock()
	defer m.errMu.Unlock()
	return m.isTransport
}

func (m *Machine) recordError(err error, isTransport bool) {
	m.errMu.Lock()
	defer m.errMu.Unlock()
	m.lastErr = err
	m.isTransport = isTransport
}

// Start fires the start trigger.
func (m *Machine) Start() bool {
	fired, _ := m.sm.Fire(TriggerStart)
	return fired
}

// ChannelReady fires the channel_ready trigger.
func (m *Machine) ChannelReady() bool {
	fired, _ := m.sm.Fire(TriggerChannelReady)
	return fired
}

// ConnectFailed records err as a transport failure and fires
// connect_failed.
func (m *Machine) ConnectFailed(err error) bool {
	m.recordError(err, true)
	fired, _ := m.sm.Fire(TriggerConnectFailed)
	return fired
}

// StreamReady clears any recorded error and fires stream_ready.
func (m *Machine) StreamReady() bool {
	m.recordError(nil, false)
	fired, _ := m.sm.Fire(TriggerStreamReady)
	return fired
}

// StreamFailed records err and fires stream_failed. isTransport marks the
// failure as a connection problem rather than a setup problem.
func (m *Machine) StreamFailed(err error, isTransport bool) bool {
	m.recordError(err, isTransport)
	fired, _ := m.sm.Fire(TriggerStreamFailed)
	return fired
}

// StreamEnded records err as a transport failure and fires stream_ended.
func (m *Machine) StreamEnded(err error) bool {
	m.recordError(err, true)
	fired, _ := m.sm.Fire(TriggerStreamEnded)
	return fired
}

// Retry fires the retry trigger.
func (m *Machine) Retry() bool {
	fired, _ := m.sm.Fire(TriggerRetry)
	return fired
}

// Stop fires the stop trigger.
func (m *Machine) Stop() bool {
	fired, _ := m.sm.Fire(TriggerStop)
	return fired
}
