package progress

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Observer receives operation state changes. Implementations may be slow or
// faulty; the tracker isolates each call so one observer cannot block or
// poison delivery to the others.
type Observer interface {
	OnProgress(op Operation, percent float64)
	OnStepComplete(op Operation, step Step)
	OnOperationComplete(op Operation)
	OnOperationFailed(op Operation, err error)
}

// Tracker owns the live operations table and observer fan-out.
type Tracker struct {
	logger *zap.Logger
	now    func() time.Time

	mu        sync.RWMutex
	ops       map[uuid.UUID]*Operation
	observers []Observer
}

// NewTracker builds a tracker with the given observers. A nil logger is
// replaced with a nop logger.
func NewTracker(logger *zap.Logger, observers ...Observer) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		ops:       make(map[uuid.UUID]*Operation),
		observers: append([]Observer(nil), observers...),
	}
}

// AddObserver registers an observer at runtime.
func (t *Tracker) AddObserver(obs Observer) {
	if obs == nil {
		return
	}
	t.mu.Lock()
	t.observers = append(t.observers, obs)
	t.mu.Unlock()
}

// Begin creates and starts an operation with the given ordered steps.
func (t *Tracker) Begin(name, owner string, steps []string) (*Operation, error) {
	op := newOperation(name, owner, steps)
	t.mu.Lock()
	if err := op.start(t.now()); err != nil {
		t.mu.Unlock()
		return nil, err
	}
	t.ops[op.ID] = op
	snapshot := op.clone()
	t.mu.Unlock()

	t.notify(func(obs Observer) { obs.OnProgress(snapshot, snapshot.Percent()) })
	return op, nil
}

// StartStep transitions the named step to in-progress.
func (t *Tracker) StartStep(id uuid.UUID, step string) error {
	t.mu.Lock()
	op, ok := t.ops[id]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("unknown operation %s", id)
	}
	if _, err := op.startStep(step, t.now()); err != nil {
		t.mu.Unlock()
		return err
	}
	snapshot := op.clone()
	t.mu.Unlock()

	t.notify(func(obs Observer) { obs.OnProgress(snapshot, snapshot.Percent()) })
	return nil
}

// CompleteStep finishes the named step; a non-nil stepErr marks it failed.
func (t *Tracker) CompleteStep(id uuid.UUID, step string, stepErr error) error {
	t.mu.Lock()
	op, ok := t.ops[id]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("unknown operation %s", id)
	}
	idx, err := op.finishStep(step, stepErr, t.now())
	if err != nil {
		t.mu.Unlock()
		return err
	}
	snapshot := op.clone()
	completed := snapshot.Steps[idx]
	t.mu.Unlock()

	t.notify(func(obs Observer) {
		obs.OnStepComplete(snapshot, completed)
		obs.OnProgress(snapshot, snapshot.Percent())
	})
	return nil
}

// Complete moves the operation to its terminal COMPLETED state.
func (t *Tracker) Complete(id uuid.UUID) error {
	return t.finish(id, OpCompleted, nil)
}

// Fail moves the operation to FAILED, carrying the causal error.
func (t *Tracker) Fail(id uuid.UUID, cause error) error {
	return t.finish(id, OpFailed, cause)
}

// Cancel moves the operation to CANCELLED.
func (t *Tracker) Cancel(id uuid.UUID) error {
	return t.finish(id, OpCancelled, nil)
}

func (t *Tracker) finish(id uuid.UUID, state OperationState, cause error) error {
	t.mu.Lock()
	op, ok := t.ops[id]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("unknown operation %s", id)
	}
	if err := op.finish(state, t.now()); err != nil {
		t.mu.Unlock()
		return err
	}
	delete(t.ops, id)
	snapshot := op.clone()
	t.mu.Unlock()

	t.notify(func(obs Observer) {
		switch state {
		case OpCompleted:
			obs.OnOperationComplete(snapshot)
		case OpFailed:
			obs.OnOperationFailed(snapshot, cause)
		case OpCancelled:
			obs.OnOperationFailed(snapshot, cause)
		}
	})
	return nil
}

// Get returns a snapshot of a live operation.
func (t *Tracker) Get(id uuid.UUID) (Operation, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	op, ok := t.ops[id]
	if !ok {
		return Operation{}, false
	}
	return op.clone(), true
}

// Active reports the number of live (non-terminal) operations.
func (t *Tracker) Active() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.ops)
}

// notify delivers to every observer, recovering panics per observer so a
// broken observer cannot stop delivery to the rest.
func (t *Tracker) notify(deliver func(Observer)) {
	t.mu.RLock()
	observers := t.observers
	t.mu.RUnlock()
	for _, obs := range observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.logger.Warn("progress observer panicked", zap.Any("panic", r))
				}
			}()
			deliver(obs)
		}()
	}
}

// LogObserver is the default observer: structured logs only.
type LogObserver struct {
	logger *zap.Logger
}

// NewLogObserver wires a zap logger to the Observer interface.
func NewLogObserver(logger *zap.Logger) *LogObserver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogObserver{logger: logger}
}

// OnProgress logs the running percentage.
func (l *LogObserver) OnProgress(op Operation, percent float64) {
	l.logger.Debug("operation progress",
		zap.String("operation", op.Name),
		zap.String("id", op.ID.String()),
		zap.Float64("percent", percent),
	)
}

// OnStepComplete logs the finished step.
func (l *LogObserver) OnStepComplete(op Operation, step Step) {
	l.logger.Debug("step complete",
		zap.String("operation", op.Name),
		zap.String("step", step.Name),
		zap.String("state", string(step.State)),
	)
}

// OnOperationComplete logs the terminal success.
func (l *LogObserver) OnOperationComplete(op Operation) {
	l.logger.Info("operation complete",
		zap.String("operation", op.Name),
		zap.String("id", op.ID.String()),
		zap.Duration("elapsed", op.EndedAt.Sub(op.StartedAt)),
	)
}

// OnOperationFailed logs the terminal failure.
func (l *LogObserver) OnOperationFailed(op Operation, err error) {
	l.logger.Warn("operation failed",
		zap.String("operation", op.Name),
		zap.String("id", op.ID.String()),
		zap.Error(err),
	)
}
