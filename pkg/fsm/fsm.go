// Package fsm provides a small generic state machine engine. States are any
// comparable type, triggers are strings, and transitions carry optional
// guards and actions. Trigger dispatch is thread safe; callbacks run outside
// the machine's lock so they may fire further triggers.
package fsm

import (
	"fmt"
	"log/slog"
	"sync"
)

// Observation describes one trigger dispatch, fired or not. State names are
// rendered through the machine's name function so observers stay independent
// of the state type.
type Observation struct {
	Machine string
	From    string
	To      string
	Trigger string
	Fired   bool
	Err     error
}

// Observer receives an Observation after every trigger dispatch.
type Observer interface {
	OnTransition(obs Observation)
}

// Result is the outcome of an asynchronous trigger dispatch.
type Result struct {
	Fired bool
	Err   error
}

// GuardFunc is evaluated under the machine lock and must not block or call
// back into the machine.
type GuardFunc func() bool

// ActionFunc runs outside the machine lock between exit and entry callbacks.
// A non-nil error aborts the transition and the machine stays in the source
// state.
type ActionFunc func() error

// StateFunc is an entry or exit callback. It runs outside the machine lock.
type StateFunc func()

type transition[S comparable] struct {
	to      S
	trigger string
	guard   GuardFunc
	action  ActionFunc
}

type stateConfig struct {
	onEntry StateFunc
	onExit  StateFunc
}

// Machine is a finite state machine over states of type S.
//
// Transition order within a Fire call: the source state's exit callback,
// then the transition action, then the state swap, then the target state's
// entry callback. An action error aborts the swap, but exit effects are not
// rolled back. A trigger with no matching transition from the current state
// is a no-op returning (false, nil).
type Machine[S comparable] struct {
	mu          sync.Mutex
	name        string
	current     S
	states      map[S]*stateConfig
	transitions map[S][]transition[S]
	stateName   func(S) string
	logger      *slog.Logger
	observer    Observer
}

// Option configures a Machine.
type Option[S comparable] func(*Machine[S])

// WithName sets the machine name used in logs and observations.
func WithName[S comparable](name string) Option[S] {
	return func(m *Machine[S]) { m.name = name }
}

// WithLogger sets the structured logger. Defaults to slog.Default.
func WithLogger[S comparable](logger *slog.Logger) Option[S] {
	return func(m *Machine[S]) { m.logger = logger }
}

// WithObserver sets the transition observer.
func WithObserver[S comparable](obs Observer) Option[S] {
	return func(m *Machine[S]) { m.observer = obs }
}

// WithStateNames sets the function used to render states for logs and
// observations. Defaults to fmt.Sprintf with %v.
func WithStateNames[S comparable](fn func(S) string) Option[S] {
	return func(m *Machine[S]) { m.stateName = fn }
}

// New creates a Machine in the given initial state.
func New[S comparable](initial S, opts ...Option[S]) *Machine[S] {
	m := &Machine[S]{
		name:        "fsm",
		current:     initial,
		states:      make(map[S]*stateConfig),
		transitions: make(map[S][]transition[S]),
		stateName:   func(s S) string { return fmt.Sprintf("%v", s) },
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// StateBuilder configures entry and exit callbacks for one state.
type StateBuilder[S comparable] struct {
	cfg *stateConfig
}

// OnEntry sets the callback run after the machine has committed a
// transition into the state.
func (b *StateBuilder[S]) OnEntry(fn StateFunc) *StateBuilder[S] {
	b.cfg.onEntry = fn
	return b
}

// OnExit sets the callback run when the machine leaves the state, before
// the transition action.
func (b *StateBuilder[S]) OnExit(fn StateFunc) *StateBuilder[S] {
	b.cfg.onExit = fn
	return b
}

// DefineState returns a builder for the state's callbacks. Defining a state
// twice returns the same underlying configuration.
func (m *Machine[S]) DefineState(s S) *StateBuilder[S] {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg, ok := m.states[s]
	if !ok {
		cfg = &stateConfig{}
		m.states[s] = cfg
	}
	return &StateBuilder[S]{cfg: cfg}
}

// TransitionOption configures one transition.
type TransitionOption func(*transitionOpts)

type transitionOpts struct {
	guard  GuardFunc
	action ActionFunc
}

// WithGuard attaches a guard. Transitions for the same (state, trigger)
// pair are tried in definition order and the first passing guard wins.
func WithGuard(fn GuardFunc) TransitionOption {
	return func(t *transitionOpts) { t.guard = fn }
}

// WithAction attaches an action run between exit and entry callbacks.
func WithAction(fn ActionFunc) TransitionOption {
	return func(t *transitionOpts) { t.action = fn }
}

// AddTransition registers a transition from one state to another on a
// trigger.
func (m *Machine[S]) AddTransition(from, to S, trigger string, opts ...TransitionOption) {
	var cfg transitionOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	t := transition[S]{to: to, trigger: trigger, guard: cfg.guard, action: cfg.action}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions[from] = append(m.transitions[from], t)
}

// Current returns the machine's current state.
func (m *Machine[S]) Current() S {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// AvailableTriggers returns the triggers that have at least one transition
// defined from the current state. Guards are not evaluated; a listed
// trigger may still be a no-op when fired. The result preserves definition
// order and contains no duplicates.
func (m *Machine[S]) AvailableTriggers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var triggers []string
	seen := make(map[string]bool)
	for _, t := range m.transitions[m.current] {
		if seen[t.trigger] {
			continue
		}
		seen[t.trigger] = true
		triggers = append(triggers, t.trigger)
	}
	return triggers
}

// Fire dispatches a trigger synchronously. It returns (true, nil) when a
// transition fired, (false, nil) when no transition matched, and
// (false, err) when the selected transition's action failed, in which case
// the machine stays in the source state.
func (m *Machine[S]) Fire(trigger string) (bool, error) {
	m.mu.Lock()
	from := m.current
	var sel *transition[S]
	for i := range m.transitions[from] {
		t := &m.transitions[from][i]
		if t.trigger != trigger {
			continue
		}
		if t.guard != nil && !t.guard() {
			continue
		}
		sel = t
		break
	}
	if sel == nil {
		m.mu.Unlock()
		m.logger.Debug("trigger ignored",
			"machine", m.name,
			"state", m.stateName(from),
			"trigger", trigger)
		m.observe(from, from, trigger, false, nil)
		return false, nil
	}
	to := sel.to
	exitFn := m.callback(from, func(c *stateConfig) StateFunc { return c.onExit })
	entryFn := m.callback(to, func(c *stateConfig) StateFunc { return c.onEntry })
	action := sel.action
	m.mu.Unlock()

	if exitFn != nil {
		exitFn()
	}
	if action != nil {
		if err := action(); err != nil {
			m.logger.Warn("transition aborted",
				"machine", m.name,
				"from", m.stateName(from),
				"to", m.stateName(to),
				"trigger", trigger,
				"error", err)
			m.observe(from, to, trigger, false, err)
			return false, err
		}
	}

	m.mu.Lock()
	if m.current != from {
		// A re-entrant or concurrent fire moved the machine while the
		// action ran. The later transition wins and this one is dropped.
		superseded := m.current
		m.mu.Unlock()
		m.logger.Debug("transition superseded",
			"machine", m.name,
			"from", m.stateName(from),
			"trigger", trigger,
			"current", m.stateName(superseded))
		m.observe(from, to, trigger, false, nil)
		return false, nil
	}
	m.current = to
	m.mu.Unlock()

	m.logger.Debug("transition",
		"machine", m.name,
		"from", m.stateName(from),
		"to", m.stateName(to),
		"trigger", trigger)

	if entryFn != nil {
		entryFn()
	}
	m.observe(from, to, trigger, true, nil)
	return true, nil
}

// FireAsync dispatches a trigger on a new goroutine and returns a channel
// that receives the single Result.
func (m *Machine[S]) FireAsync(trigger string) <-chan Result {
	ch := make(chan Result, 1)
	go func() {
		fired, err := m.Fire(trigger)
		ch <- Result{Fired: fired, Err: err}
	}()
	return ch
}

// callback must be called with the lock held.
func (m *Machine[S]) callback(s S, pick func(*stateConfig) StateFunc) StateFunc {
	if cfg, ok := m.states[s]; ok {
		return pick(cfg)
	}
	return nil
}

func (m *Machine[S]) observe(from, to S, trigger string, fired bool, err error) {
	if m.observer == nil {
		return
	}
	m.observer.OnTransition(Observation{
		Machine: m.name,
		From:    m.stateName(from),
		To:      m.stateName(to),
		Trigger: trigger,
		Fired:   fired,
		Err:     err,
	})
}
