package fsm

import "sync"

// HierarchicalMachine extends Machine with composite states. A composite
// state groups substates under a parent: firing a transition into the
// parent automatically descends to its initial substate, and ancestry
// queries (IsIn, ActiveStates, Depth) treat the parent as active while any
// of its substates is current. Composite nesting is allowed.
type HierarchicalMachine[S comparable] struct {
	*Machine[S]

	hmu     sync.RWMutex
	parent  map[S]S
	initial map[S]S
}

// NewHierarchical creates a HierarchicalMachine in the given initial state.
func NewHierarchical[S comparable](initial S, opts ...Option[S]) *HierarchicalMachine[S] {
	return &HierarchicalMachine[S]{
		Machine: New(initial, opts...),
		parent:  make(map[S]S),
		initial: make(map[S]S),
	}
}

// AddCompositeState declares parent as a composite state containing the
// given substates. Entering parent through a fired transition immediately
// descends to initialSubstate, running its entry callback.
func (h *HierarchicalMachine[S]) AddCompositeState(parent S, substates []S, initialSubstate S) {
	h.hmu.Lock()
	defer h.hmu.Unlock()
	for _, s := range substates {
		h.parent[s] = parent
	}
	h.initial[parent] = initialSubstate
}

// Fire dispatches a trigger and, when the fired transition lands on a
// composite state, descends to its initial substate.
func (h *HierarchicalMachine[S]) Fire(trigger string) (bool, error) {
	fired, err := h.Machine.Fire(trigger)
	if fired {
		h.descend()
	}
	return fired, err
}

// FireAsync dispatches a trigger on a new goroutine, descending into
// composite states like Fire.
func (h *HierarchicalMachine[S]) FireAsync(trigger string) <-chan Result {
	ch := make(chan Result, 1)
	go func() {
		fired, err := h.Fire(trigger)
		ch <- Result{Fired: fired, Err: err}
	}()
	return ch
}

// IsIn reports whether the machine is in the given state, either exactly
// or through a substate of it.
func (h *HierarchicalMachine[S]) IsIn(state S) bool {
	cur := h.Current()
	h.hmu.RLock()
	defer h.hmu.RUnlock()
	for {
		if cur == state {
			return true
		}
		p, ok := h.parent[cur]
		if !ok {
			return false
		}
		cur = p
	}
}

// ActiveStates returns the current state and its ancestor composite
// states, innermost first.
func (h *HierarchicalMachine[S]) ActiveStates() []S {
	cur := h.Current()
	h.hmu.RLock()
	defer h.hmu.RUnlock()

	active := []S{cur}
	for {
		p, ok := h.parent[cur]
		if !ok {
			return active
		}
		active = append(active, p)
		cur = p
	}
}

// Depth returns how many composite states enclose the current state. A
// top-level state has depth zero.
func (h *HierarchicalMachine[S]) Depth() int {
	return len(h.ActiveStates()) - 1
}

// descend walks from the current state into composite initial substates
// until it reaches a leaf.
func (h *HierarchicalMachine[S]) descend() {
	for {
		cur := h.Current()
		h.hmu.RLock()
		sub, ok := h.initial[cur]
		h.hmu.RUnlock()
		if !ok {
			return
		}
		if !h.enterSubstate(cur, sub) {
			return
		}
	}
}

// enterSubstate moves the machine from a composite state to a substate,
// running the substate's entry callback. A concurrent fire that already
// moved the machine wins and the descent stops.
func (h *HierarchicalMachine[S]) enterSubstate(from, to S) bool {
	m := h.Machine
	m.mu.Lock()
	if m.current != from {
		m.mu.Unlock()
		return false
	}
	entryFn := m.callback(to, func(c *stateConfig) StateFunc { return c.onEntry })
	m.current = to
	m.mu.Unlock()

	m.logger.Debug("entered substate",
		"machine", m.name,
		"composite", m.stateName(from),
		"substate", m.stateName(to))

	if entryFn != nil {
		entryFn()
	}
	return true
}
