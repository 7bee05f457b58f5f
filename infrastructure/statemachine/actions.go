package statemachine

import (
	"time"

	"github.com/felixgeelhaar/statekit"
)

// recordTransition updates the context after a detection state change.
// Actions receive a pointer to the context, so **Context here.
func recordTransition(ctx **Context, event statekit.Event) {
	if ctx == nil || *ctx == nil {
		return
	}

	c := *ctx
	c.Current = targetState(event)
	c.Transitions++
	c.LastChanged = time.Now()
	if payload, ok := event.Payload.(TransitionPayload); ok {
		c.LastReason = payload.Reason
	}
}
