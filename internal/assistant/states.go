package assistant

// State is a step of the per-turn state machine:
// Idle → ContextAssembled → AwaitingProvider → Completed | Failed.
type State string

// Turn states
const (
	StateIdle             State = "idle"
	StateContextAssembled State = "context_assembled"
	StateAwaitingProvider State = "awaiting_provider"
	StateCompleted        State = "completed"
	StateFailed           State = "failed"
)

// TurnObserver is notified of every state transition. Calls happen on the
// turn's goroutine and must not block.
type TurnObserver interface {
	TurnTransition(conversationID string, from, to State)
}

// ObserverFunc adapts a function to TurnObserver.
type ObserverFunc func(conversationID string, from, to State)

// TurnTransition implements TurnObserver.
func (f ObserverFunc) TurnTransition(conversationID string, from, to State) {
	f(conversationID, from, to)
}

// turn tracks the current state of one Send call.
type turn struct {
	o              *Orchestrator
	conversationID string
	state          State
}

func (t *turn) to(next State) {
	prev := t.state
	t.state = next
	if t.o.observer != nil {
		t.o.observer.TurnTransition(t.conversationID, prev, next)
	}
	if next == StateCompleted || next == StateFailed {
		t.o.metrics.RecordTurn(string(next))
	}
}
