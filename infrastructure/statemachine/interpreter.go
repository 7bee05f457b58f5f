package statemachine

import (
	"fmt"
	"sync"

	"github.com/felixgeelhaar/statekit"

	"github.com/felixgeelhaar/clitool-registry/domain/clitool"
)

// TransitionPayload carries additional data with a transition event.
type TransitionPayload struct {
	ToState clitool.State
	Reason  string
}

// Interpreter wraps the statekit interpreter for one tool.
type Interpreter struct {
	mu     sync.Mutex
	interp *statekit.Interpreter[*Context]
	ctx    *Context
}

// NewInterpreter creates a new interpreter for the detection machine.
func NewInterpreter(machine *statekit.MachineConfig[*Context], ctx *Context) *Interpreter {
	interp := statekit.NewInterpreter(machine)
	interp.UpdateContext(func(c **Context) {
		*c = ctx
	})
	return &Interpreter{
		interp: interp,
		ctx:    ctx,
	}
}

// Start enters the initial state.
func (i *Interpreter) Start() {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.interp.Start()
	i.ctx.Current = StateFromMachine(i.interp.State().Value)
}

// Stop stops the interpreter.
func (i *Interpreter) Stop() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.interp.Stop()
}

// State returns the current state.
func (i *Interpreter) State() clitool.State {
	i.mu.Lock()
	defer i.mu.Unlock()
	return StateFromMachine(i.interp.State().Value)
}

// Transition moves the machine to the target state. It reports false when the
// tool is already in that state.
func (i *Interpreter) Transition(to clitool.State, reason string) (bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	from := StateFromMachine(i.interp.State().Value)
	if from == to {
		return false, nil
	}
	if !CanTransition(from, to) {
		return false, fmt.Errorf("transition from %s to %s not allowed", from, to)
	}

	i.interp.Send(statekit.Event{
		Type:    EventForState(to),
		Payload: TransitionPayload{ToState: to, Reason: reason},
	})

	i.ctx.Current = StateFromMachine(i.interp.State().Value)
	return i.ctx.Current == to, nil
}

// Matches checks if the current state matches the given state.
func (i *Interpreter) Matches(state clitool.State) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.interp.Matches(statekit.StateID(state))
}

// Context returns the interpreter context.
func (i *Interpreter) Context() *Context {
	return i.ctx
}
