// Package graphstate is the run/pause/stop state machine of a capture graph
//
// Every transition invokes a runtime control primitive first and commits the
// new state only when the primitive succeeds. A rejected transition (wrong
// from-state) or a failed primitive leaves the state untouched.
package graphstate

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"

	"github.com/e7canasta/orion-care-sensor/modules/capture-graph/media"
)

// State is the lifecycle state of a graph
type State string

const (
	Stopped State = "stopped"
	Paused  State = "paused"
	Running State = "running"
)

// Event is a control request
type Event string

const (
	Start  Event = "start"
	Stop   Event = "stop"
	Pause  Event = "pause"
	Resume Event = "resume"
)

// ErrTransitionInProgress is returned when a transition is requested while
// another one is still waiting for its primitive
var ErrTransitionInProgress = errors.New("graphstate: transition in progress")

// Control is the set of runtime primitives the machine drives
type Control interface {
	Run() error
	Pause() error
	Stop() error
}

// ControlError reports a failed runtime primitive. State is unchanged.
type ControlError struct {
	Op    Event
	State State
	Err   error
}

func (e *ControlError) Error() string {
	return fmt.Sprintf("graph control %s (from %s): %v", e.Op, e.State, e.Err)
}

// Unwrap returns the primitive's error
func (e *ControlError) Unwrap() error { return e.Err }

// Transition is one edge of the machine
type Transition struct {
	From  State
	Event Event
	To    State
	// Action is the runtime primitive, executed before the state commits
	Action func(Control) error
}

// Transitions is the edge table
//
//	Start:  stopped → running  (Run)
//	Stop:   paused  → stopped  (Stop)
//	Stop:   running → stopped  (Stop)
//	Pause:  running → paused   (Pause)
//	Resume: paused  → running  (Run)
var Transitions = []Transition{
	{From: Stopped, Event: Start, To: Running, Action: Control.Run},
	{From: Paused, Event: Stop, To: Stopped, Action: Control.Stop},
	{From: Running, Event: Stop, To: Stopped, Action: Control.Stop},
	{From: Running, Event: Pause, To: Paused, Action: Control.Pause},
	{From: Paused, Event: Resume, To: Running, Action: Control.Run},
}

type key struct {
	from  State
	event Event
}

// Machine applies Transitions to a Control
type Machine struct {
	ctl   Control
	index map[key]Transition

	mu       sync.Mutex
	state    State
	inFlight bool
	onCommit func(from, to State, ev Event)
}

// New creates a machine in the Stopped state
func New(ctl Control) *Machine {
	idx := make(map[key]Transition, len(Transitions))
	for _, t := range Transitions {
		idx[key{t.From, t.Event}] = t
	}
	return &Machine{ctl: ctl, index: idx, state: Stopped}
}

// OnCommit registers a hook called after every committed transition
func (m *Machine) OnCommit(fn func(from, to State, ev Event)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onCommit = fn
}

// State returns the current state
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Can reports whether ev is valid from the current state
func (m *Machine) Can(ev Event) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.index[key{m.state, ev}]
	return ok
}

// Fire applies ev
//
// Returns media.ErrInvalidStateTransition (wrapped) when ev is not valid from
// the current state and *ControlError when the primitive fails. In both cases
// the state is unchanged.
func (m *Machine) Fire(ev Event) (State, error) {
	m.mu.Lock()
	from := m.state
	t, ok := m.index[key{from, ev}]
	if !ok {
		m.mu.Unlock()
		return from, errors.Wrapf(media.ErrInvalidStateTransition, "graphstate: %s from %s", ev, from)
	}
	if m.inFlight {
		m.mu.Unlock()
		return from, ErrTransitionInProgress
	}
	m.inFlight = true
	m.mu.Unlock()

	// Primitives may block on the runtime, run them outside the lock.
	err := t.Action(m.ctl)

	m.mu.Lock()
	m.inFlight = false
	if err != nil {
		m.mu.Unlock()
		return from, &ControlError{Op: ev, State: from, Err: err}
	}
	m.state = t.To
	hook := m.onCommit
	m.mu.Unlock()

	if hook != nil {
		hook(from, t.To, ev)
	}
	return t.To, nil
}
