// file: internal/dispatch/lifecycle.go
package dispatch

import (
	"context"

	"github.com/dkoosis/toolrelay/internal/fsm"
	"github.com/dkoosis/toolrelay/internal/logging"
)

// Request lifecycle states.
const (
	StateReceived  fsm.State = "received"
	StateParsed    fsm.State = "parsed"
	StateValidated fsm.State = "validated"
	StateExecuted  fsm.State = "executed"
	StateFailed    fsm.State = "failed"
	StateResponded fsm.State = "responded"
)

// Request lifecycle events.
const (
	EventParse    fsm.Event = "parse"
	EventValidate fsm.Event = "validate"
	EventExecute  fsm.Event = "execute"
	EventFail     fsm.Event = "fail"
	EventRespond  fsm.Event = "respond"
)

// lifecycle tracks one request through received → parsed → validated → executed → responded.
// Any failure short-circuits through failed to responded.
type lifecycle struct {
	machine fsm.FSM
	logger  logging.Logger
}

func newLifecycle(logger logging.Logger) *lifecycle {
	m := fsm.NewFSM(StateReceived, logger)
	m.AddTransition(fsm.Transition{From: []fsm.State{StateReceived}, Event: EventParse, To: StateParsed})
	m.AddTransition(fsm.Transition{From: []fsm.State{StateParsed}, Event: EventValidate, To: StateValidated})
	m.AddTransition(fsm.Transition{From: []fsm.State{StateValidated}, Event: EventExecute, To: StateExecuted})
	m.AddTransition(fsm.Transition{
		From:  []fsm.State{StateReceived, StateParsed, StateValidated, StateExecuted},
		Event: EventFail,
		To:    StateFailed,
	})
	m.AddTransition(fsm.Transition{From: []fsm.State{StateExecuted, StateFailed}, Event: EventRespond, To: StateResponded})
	if err := m.Build(); err != nil {
		// The table above is static; a build error is a programming mistake.
		panic(err)
	}
	return &lifecycle{machine: m, logger: logger}
}

// advance fires event. It reports whether the request moved to a new state;
// out-of-order events are logged and leave the state unchanged.
func (l *lifecycle) advance(ctx context.Context, event fsm.Event) bool {
	err := l.machine.Transition(ctx, event, nil)
	switch {
	case err == nil:
		return true
	case fsm.IsNoTransition(err):
		return false
	case fsm.IsInvalidEvent(err):
		l.logger.Warn("Out-of-order request lifecycle event.",
			"event", event, "state", l.machine.CurrentState())
	default:
		l.logger.Warn("Request lifecycle transition failed.",
			"event", event, "state", l.machine.CurrentState(), "error", err)
	}
	return false
}

// fail moves to failed unless the request already failed or was answered.
func (l *lifecycle) fail(ctx context.Context) {
	if l.machine.CanTransition(EventFail) {
		l.advance(ctx, EventFail)
	}
}

func (l *lifecycle) history() []fsm.State {
	return l.machine.History()
}
