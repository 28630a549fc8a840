// Package fsm provides a small finite state machine wrapper over looplab/fsm.
// Machines are declared with AddTransition, finalized with Build, and then driven
// with Transition. Every visited state is recorded for inspection.
// file: internal/fsm/fsm.go
package fsm

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/dkoosis/toolrelay/internal/logging"
	lfsm "github.com/looplab/fsm"
)

// State represents a state in the FSM.
type State string

// Event represents an event that can trigger a state transition.
type Event string

// TransitionAction runs after the machine enters the destination state.
type TransitionAction func(ctx context.Context, event Event, data interface{}) error

// GuardCondition is checked before the transition; returning false cancels it.
type GuardCondition func(ctx context.Context, event Event, data interface{}) bool

// Transition defines a transition rule between states.
type Transition struct {
	From      []State
	To        State
	Event     Event
	Action    TransitionAction
	Condition GuardCondition
}

// FSM is a finite state machine built from Transition definitions.
type FSM interface {
	// AddTransition stores a transition definition. Call Build() after adding all transitions.
	AddTransition(transition Transition) FSM
	// Build finalizes the configuration. Transitions added afterwards are rejected.
	Build() error
	// CurrentState returns the current state, or "" before Build.
	CurrentState() State
	// CanTransition reports whether event is valid from the current state.
	CanTransition(event Event) bool
	// Transition fires event. Action errors are returned after the state change.
	Transition(ctx context.Context, event Event, data interface{}) error
	// History lists every state entered, starting with the initial state.
	History() []State
}

type transitionKey struct {
	event Event
	from  State
}

// loopFSM implements FSM using looplab/fsm.
type loopFSM struct {
	initialState State
	logger       logging.Logger

	mu          sync.RWMutex
	transitions []Transition
	byKey       map[transitionKey]*Transition
	fsm         *lfsm.FSM
	buildErr    error
	history     []State
	actionErr   error
}

// NewFSM creates a new FSM builder with the given initial state.
func NewFSM(initialState State, logger logging.Logger) FSM {
	if logger == nil {
		logger = logging.GetNoopLogger()
	}
	return &loopFSM{
		initialState: initialState,
		logger:       logger.WithField("component", "fsm"),
	}
}

// AddTransition stores a transition definition to be used during Build().
func (l *loopFSM) AddTransition(t Transition) FSM {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch {
	case l.fsm != nil:
		l.setBuildErr(errors.New("cannot AddTransition after Build"))
	case len(t.From) == 0:
		l.setBuildErr(errors.Newf("transition for event '%s' is missing 'From' states", t.Event))
	default:
		l.transitions = append(l.transitions, t)
	}
	return l
}

func (l *loopFSM) setBuildErr(err error) {
	l.logger.Error("Invalid FSM configuration.", "error", err)
	if l.buildErr == nil {
		l.buildErr = err
	}
}

// Build creates the underlying looplab/fsm instance. Calling it again is a no-op.
func (l *loopFSM) Build() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.fsm != nil || l.buildErr != nil {
		return l.buildErr
	}

	descs := make(map[string]*lfsm.EventDesc)
	order := make([]string, 0, len(l.transitions))
	l.byKey = make(map[transitionKey]*Transition)
	callbacks := lfsm.Callbacks{}

	for i := range l.transitions {
		t := &l.transitions[i]
		name := string(t.Event)
		desc, ok := descs[name]
		if !ok {
			desc = &lfsm.EventDesc{Name: name, Dst: string(t.To)}
			descs[name] = desc
			order = append(order, name)
		} else if desc.Dst != string(t.To) {
			l.buildErr = errors.Newf("conflicting destinations ('%s' and '%s') for event '%s'", desc.Dst, t.To, name)
			return l.buildErr
		}
		for _, from := range t.From {
			key := transitionKey{event: t.Event, from: from}
			if _, dup := l.byKey[key]; dup {
				l.buildErr = errors.Newf("duplicate transition for event '%s' from state '%s'", t.Event, from)
				return l.buildErr
			}
			l.byKey[key] = t
			desc.Src = append(desc.Src, string(from))
		}
		if t.Condition != nil {
			callbacks["before_"+name] = l.guardCallback
		}
	}

	events := make([]lfsm.EventDesc, 0, len(order))
	for _, name := range order {
		events = append(events, *descs[name])
	}
	callbacks["enter_state"] = l.enterCallback

	l.fsm = lfsm.NewFSM(string(l.initialState), events, callbacks)
	l.history = []State{l.initialState}
	l.logger.Debug("FSM built.", "initialState", l.initialState, "eventCount", len(events))
	return nil
}

func eventData(e *lfsm.Event) interface{} {
	if len(e.Args) > 0 {
		return e.Args[0]
	}
	return nil
}

// guardCallback runs under looplab's event lock, before the state changes.
func (l *loopFSM) guardCallback(ctx context.Context, e *lfsm.Event) {
	t := l.byKey[transitionKey{event: Event(e.Event), from: State(e.Src)}]
	if t == nil || t.Condition == nil {
		return
	}
	if !t.Condition(ctx, t.Event, eventData(e)) {
		e.Cancel(errors.Newf("guard condition for event '%s' from state '%s' failed", t.Event, e.Src))
	}
}

func (l *loopFSM) enterCallback(ctx context.Context, e *lfsm.Event) {
	l.history = append(l.history, State(e.Dst))
	t := l.byKey[transitionKey{event: Event(e.Event), from: State(e.Src)}]
	if t == nil || t.Action == nil {
		return
	}
	if err := t.Action(ctx, t.Event, eventData(e)); err != nil {
		l.logger.Debug("Transition action failed.", "event", t.Event, "toState", t.To, "error", err)
		l.actionErr = err
	}
}

// CurrentState returns the current state of the FSM.
func (l *loopFSM) CurrentState() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.fsm == nil {
		return ""
	}
	return State(l.fsm.Current())
}

// CanTransition checks if the given event can fire from the current state.
func (l *loopFSM) CanTransition(event Event) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.fsm == nil {
		return false
	}
	return l.fsm.Can(string(event))
}

// Transition triggers a state transition based on the event.
func (l *loopFSM) Transition(ctx context.Context, event Event, data interface{}) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fsm == nil {
		if l.buildErr != nil {
			return l.buildErr
		}
		return errors.New("fsm: Transition called before Build")
	}

	from := l.fsm.Current()
	var args []interface{}
	if data != nil {
		args = append(args, data)
	}
	l.actionErr = nil
	if err := l.fsm.Event(ctx, string(event), args...); err != nil {
		l.logger.Debug("FSM transition rejected.", "event", event, "fromState", from, "error", err)
		return err
	}
	return l.actionErr
}

// History returns a copy of the visited states.
func (l *loopFSM) History() []State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]State(nil), l.history...)
}

// IsNoTransition reports whether err means the event was valid but the state did not change.
func IsNoTransition(err error) bool {
	var nt lfsm.NoTransitionError
	return errors.As(err, &nt)
}

// IsInvalidEvent reports whether err means the event is not allowed from the current state.
func IsInvalidEvent(err error) bool {
	var ie lfsm.InvalidEventError
	return errors.As(err, &ie)
}
