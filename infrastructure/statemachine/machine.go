// Package statemachine provides the statekit integration for the tool detection lifecycle.
package statemachine

import (
	"time"

	"github.com/felixgeelhaar/statekit"

	"github.com/felixgeelhaar/clitool-registry/domain/clitool"
)

// Context carries detection state through the state machine.
type Context struct {
	ToolID      string
	Current     clitool.State
	Transitions int
	LastReason  string
	LastChanged time.Time
}

// NewContext creates a new machine context for a tool.
func NewContext(toolID string) *Context {
	return &Context{
		ToolID:  toolID,
		Current: clitool.StateRegistered,
	}
}

// State IDs as StateID type for statekit.
const (
	stateRegistered statekit.StateID = statekit.StateID(clitool.StateRegistered)
	stateFound      statekit.StateID = statekit.StateID(clitool.StateFound)
	stateMissing    statekit.StateID = statekit.StateID(clitool.StateMissing)
)

// Event types understood by the detection machine.
const (
	EventFound   statekit.EventType = "FOUND"
	EventMissing statekit.EventType = "MISSING"
)

// allowed lists the transitions defined by NewToolMachine.
var allowed = map[clitool.State][]clitool.State{
	clitool.StateRegistered: {clitool.StateFound, clitool.StateMissing},
	clitool.StateFound:      {clitool.StateMissing},
	clitool.StateMissing:    {clitool.StateFound},
}

// NewToolMachine creates the detection statechart. A tool starts registered
// and moves between found and missing as its binary appears and disappears.
func NewToolMachine() (*statekit.MachineConfig[*Context], error) {
	return statekit.NewMachine[*Context]("clitool").
		WithInitial(stateRegistered).
		WithContext(&Context{}).
		WithAction("recordTransition", recordTransition).
		WithGuard("stateChanged", guardStateChanged).
		State(stateRegistered).
			On(EventFound).Target(stateFound).Guard("stateChanged").Do("recordTransition").
			On(EventMissing).Target(stateMissing).Guard("stateChanged").Do("recordTransition").
			Done().
		State(stateFound).
			On(EventMissing).Target(stateMissing).Guard("stateChanged").Do("recordTransition").
			Done().
		State(stateMissing).
			On(EventFound).Target(stateFound).Guard("stateChanged").Do("recordTransition").
			Done().
		Build()
}

// EventForState returns the event that moves the machine into to.
func EventForState(to clitool.State) statekit.EventType {
	switch to {
	case clitool.StateFound:
		return EventFound
	case clitool.StateMissing:
		return EventMissing
	default:
		return statekit.EventType(to)
	}
}

// StateFromMachine converts the machine state ID to domain State.
func StateFromMachine(stateID statekit.StateID) clitool.State {
	return clitool.State(stateID)
}

// CanTransition reports whether the machine defines a transition from one state to another.
func CanTransition(from, to clitool.State) bool {
	for _, s := range allowed[from] {
		if s == to {
			return true
		}
	}
	return false
}
