package council

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quorumworks/conclave/internal/backend"
)

// Request names one backend invocation for the dispatcher. Timeout overrides
// the dispatcher's per-backend policy when positive.
type Request struct {
	Backend string
	Prompt  string
	Timeout time.Duration
}

// Dispatcher fans a set of backend invocations out concurrently and joins on
// all of them. One request's failure or timeout never disturbs its siblings:
// every request resolves to its own Outcome slot.
type Dispatcher struct {
	caller         backend.Caller
	defaultTimeout time.Duration
	timeouts       map[string]time.Duration
	clock          func() time.Time
}

// DispatcherOption customizes dispatcher construction.
type DispatcherOption func(*Dispatcher)

// WithTimeouts installs per-backend timeout overrides.
func WithTimeouts(timeouts map[string]time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if len(timeouts) > 0 {
			d.timeouts = timeouts
		}
	}
}

// WithDispatchClock injects a deterministic clock (primarily for tests).
func WithDispatchClock(clock func() time.Time) DispatcherOption {
	return func(d *Dispatcher) {
		if clock != nil {
			d.clock = clock
		}
	}
}

// NewDispatcher wires a dispatcher to a model caller.
func NewDispatcher(caller backend.Caller, defaultTimeout time.Duration, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		caller:         caller,
		defaultTimeout: defaultTimeout,
		clock:          time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Dispatch issues every request concurrently and returns once all of them
// have completed, failed, or timed out. The returned map holds exactly one
// Outcome per requested backend. An empty request set returns an empty map
// immediately. Canceling ctx aborts the in-flight calls; each aborted call
// is recorded as its own failure outcome.
func (d *Dispatcher) Dispatch(ctx context.Context, requests []Request) map[string]Outcome {
	results := make(map[string]Outcome, len(requests))
	if len(requests) == 0 {
		return results
	}
	if ctx == nil {
		ctx = context.Background()
	}

	outcomes := make([]Outcome, len(requests))
	var group errgroup.Group
	for i := range requests {
		i := i
		req := requests[i]
		group.Go(func() error {
			outcomes[i] = d.call(ctx, req)
			return nil
		})
	}
	// Goroutines only ever return nil; Wait is purely the join point.
	_ = group.Wait()

	for i, req := range requests {
		results[req.Backend] = outcomes[i]
	}
	return results
}

func (d *Dispatcher) call(ctx context.Context, req Request) Outcome {
	timeout := req.Timeout
	if timeout <= 0 {
		if override, ok := d.timeouts[req.Backend]; ok {
			timeout = override
		} else {
			timeout = d.defaultTimeout
		}
	}
	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := d.clock()
	text, err := d.caller.Call(callCtx, req.Backend, req.Prompt)
	latency := d.clock().Sub(start)
	if err != nil {
		return Outcome{Latency: latency, Failure: classifyCallError(callCtx, err)}
	}
	return Outcome{Text: text, Latency: latency}
}

func classifyCallError(ctx context.Context, err error) *Failure {
	var typed *backend.Error
	if errors.As(err, &typed) {
		return &Failure{Kind: typed.Kind, Detail: typed.Detail}
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return &Failure{Kind: backend.KindTimeout, Detail: "call exceeded deadline"}
	case errors.Is(err, context.Canceled):
		return &Failure{Kind: backend.KindUnavailable, Detail: "call canceled"}
	default:
		return &Failure{Kind: backend.KindUnavailable, Detail: err.Error()}
	}
}
