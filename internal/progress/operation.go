// Package progress tracks per-operation step state machines and fans state
// changes out to registered observers.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OperationState is the lifecycle state of a tracked operation.
type OperationState string

// Operation states. Completed, Failed, and Cancelled are terminal.
const (
	OpNotStarted OperationState = "NOT_STARTED"
	OpInProgress OperationState = "IN_PROGRESS"
	OpCompleted  OperationState = "COMPLETED"
	OpFailed     OperationState = "FAILED"
	OpCancelled  OperationState = "CANCELLED"
)

// Terminal reports whether the state admits no further transitions.
func (s OperationState) Terminal() bool {
	switch s {
	case OpCompleted, OpFailed, OpCancelled:
		return true
	}
	return false
}

// StepState is the lifecycle state of one step inside an operation.
type StepState string

// Step states.
const (
	StepNotStarted StepState = "NOT_STARTED"
	StepInProgress StepState = "IN_PROGRESS"
	StepCompleted  StepState = "COMPLETED"
	StepFailed     StepState = "FAILED"
)

// Step is one named unit of work inside an operation.
type Step struct {
	Name        string
	State       StepState
	StartedAt   time.Time
	CompletedAt time.Time
	Err         error
}

// Operation is a tracked unit of work with an ordered list of steps.
type Operation struct {
	ID        uuid.UUID
	Name      string
	Owner     string
	State     OperationState
	Steps     []Step
	StartedAt time.Time
	EndedAt   time.Time

	current int
}

var errTerminal = errors.New("operation is in a terminal state")

func newOperation(name, owner string, steps []string) *Operation {
	op := &Operation{
		ID:    uuid.New(),
		Name:  name,
		Owner: owner,
		State: OpNotStarted,
		Steps: make([]Step, len(steps)),
	}
	for i, s := range steps {
		op.Steps[i] = Step{Name: s, State: StepNotStarted}
	}
	return op
}

// Percent returns completed-step progress in [0,100].
func (o *Operation) Percent() float64 {
	if len(o.Steps) == 0 {
		return 0
	}
	done := 0
	for _, s := range o.Steps {
		if s.State == StepCompleted {
			done++
		}
	}
	return float64(done) / float64(len(o.Steps)) * 100
}

// CurrentStep returns the step currently in progress, or nil.
func (o *Operation) CurrentStep() *Step {
	if o.current < 0 || o.current >= len(o.Steps) {
		return nil
	}
	return &o.Steps[o.current]
}

func (o *Operation) start(now time.Time) error {
	if o.State != OpNotStarted {
		return fmt.Errorf("start operation in state %s", o.State)
	}
	o.State = OpInProgress
	o.StartedAt = now
	o.current = -1
	return nil
}

func (o *Operation) startStep(name string, now time.Time) (int, error) {
	if o.State.Terminal() {
		return -1, errTerminal
	}
	for i := range o.Steps {
		if o.Steps[i].Name != name {
			continue
		}
		if o.Steps[i].State != StepNotStarted {
			return -1, fmt.Errorf("step %q already %s", name, o.Steps[i].State)
		}
		o.Steps[i].State = StepInProgress
		o.Steps[i].StartedAt = now
		o.current = i
		return i, nil
	}
	return -1, fmt.Errorf("unknown step %q", name)
}

func (o *Operation) finishStep(name string, stepErr error, now time.Time) (int, error) {
	if o.State.Terminal() {
		return -1, errTerminal
	}
	for i := range o.Steps {
		if o.Steps[i].Name != name {
			continue
		}
		if o.Steps[i].State != StepInProgress {
			return -1, fmt.Errorf("step %q is %s, not in progress", name, o.Steps[i].State)
		}
		o.Steps[i].CompletedAt = now
		if stepErr != nil {
			o.Steps[i].State = StepFailed
			o.Steps[i].Err = stepErr
		} else {
			o.Steps[i].State = StepCompleted
		}
		return i, nil
	}
	return -1, fmt.Errorf("unknown step %q", name)
}

func (o *Operation) finish(state OperationState, now time.Time) error {
	if o.State.Terminal() {
		return errTerminal
	}
	if !state.Terminal() {
		return fmt.Errorf("%s is not a terminal state", state)
	}
	o.State = state
	o.EndedAt = now
	return nil
}

// clone copies the operation so observers never see live mutable state.
func (o *Operation) clone() Operation {
	cp := *o
	cp.Steps = append([]Step(nil), o.Steps...)
	return cp
}
