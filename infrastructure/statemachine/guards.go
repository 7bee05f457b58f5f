package statemachine

import (
	"github.com/felixgeelhaar/statekit"

	"github.com/felixgeelhaar/clitool-registry/domain/clitool"
)

// guardStateChanged rejects events that would not change the detection state.
// Guards receive the context by value; ours is a pointer.
func guardStateChanged(ctx *Context, event statekit.Event) bool {
	if ctx == nil {
		return false
	}
	return targetState(event) != ctx.Current
}

// targetState derives the state an event moves into.
func targetState(event statekit.Event) clitool.State {
	if payload, ok := event.Payload.(TransitionPayload); ok {
		return payload.ToState
	}
	switch event.Type {
	case EventFound:
		return clitool.StateFound
	case EventMissing:
		return clitool.StateMissing
	default:
		return clitool.State(event.Type)
	}
}
