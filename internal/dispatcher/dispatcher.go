// Package dispatcher routes classified failures to the right recovery path:
// retry for transient errors, the fallback chain when retries are spent or
// pointless, terminal failure otherwise. Every dispatched error is logged at
// its severity and recorded for health scoring.
package dispatcher

import (
	"context"

	"go.uber.org/zap"

	"github.com/hewell/mediafetch/internal/fallback"
	"github.com/hewell/mediafetch/internal/faults"
	"github.com/hewell/mediafetch/internal/metrics"
)

// Action is the recovery path chosen for a dispatched failure.
type Action int

// Recovery actions.
const (
	ActionRetry Action = iota
	ActionFallback
	ActionFail
)

// String returns the lowercase label used in logs.
func (a Action) String() string {
	switch a {
	case ActionRetry:
		return "retry"
	case ActionFallback:
		return "fallback"
	case ActionFail:
		return "fail"
	default:
		return "unknown"
	}
}

// Dispatcher is the central error sink for the fetch pipeline.
type Dispatcher struct {
	logger    *zap.Logger
	collector *metrics.Collector
	chain     *fallback.Chain
}

// New creates a Dispatcher. The collector and chain are required; a nil
// logger falls back to a no-op.
func New(logger *zap.Logger, collector *metrics.Collector, chain *fallback.Chain) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{logger: logger, collector: collector, chain: chain}
}

// Dispatch classifies a raw failure, logs it at its severity, and picks the
// recovery action. Callers that have already exhausted their retry budget
// pass retriesSpent so a retryable error still routes to fallback. The
// failure is not recorded here; that happens in Recover or Report once the
// final outcome is known.
func (d *Dispatcher) Dispatch(err error, errCtx map[string]any, retriesSpent bool) (*faults.FetchError, Action) {
	fe := faults.Classify(err, errCtx)
	d.log(fe)

	switch {
	case fe.Retryable && !retriesSpent:
		return fe, ActionRetry
	case fe.FallbackAvailable:
		return fe, ActionFallback
	default:
		return fe, ActionFail
	}
}

// Report records a classified failure for health scoring and Prometheus.
func (d *Dispatcher) Report(fe *faults.FetchError, retryCount int, fallbackUsed bool) {
	d.collector.Record(fe, retryCount, fallbackUsed)
	metrics.ObserveError(fe)
	metrics.SetHealthScore(d.collector.HealthScore())
}

// Recover runs the fallback chain for a dispatched failure and records the
// outcome. The trigger in req must be the error Dispatch returned.
func (d *Dispatcher) Recover(ctx context.Context, req fallback.Request) (*fallback.Result, error) {
	result, err := d.chain.Execute(ctx, req)
	if err != nil {
		d.logger.Warn("fallback chain exhausted",
			zap.String("url", req.URL),
			zap.Error(err),
		)
		d.Report(req.Trigger, 0, false)
		return nil, err
	}
	d.Report(req.Trigger, result.RetryCount, true)
	return result, nil
}

func (d *Dispatcher) log(fe *faults.FetchError) {
	fields := []zap.Field{
		zap.String("code", fe.Code),
		zap.String("category", string(fe.Category)),
		zap.String("severity", fe.Severity.String()),
		zap.Bool("retryable", fe.Retryable),
		zap.Bool("fallback_available", fe.FallbackAvailable),
	}
	if fe.Cause != nil {
		fields = append(fields, zap.NamedError("cause", fe.Cause))
	}
	for k, v := range fe.Context {
		fields = append(fields, zap.Any(k, v))
	}
	switch fe.Severity {
	case faults.SeverityCritical, faults.SeverityError:
		d.logger.Error(fe.Message, fields...)
	default:
		d.logger.Warn(fe.Message, fields...)
	}
}
