// Package backend defines the model-caller boundary: the ability to send one
// prompt to one configured model endpoint and get back either text or a typed
// failure. The deliberation engine treats everything behind this boundary as
// a black box.
package backend

import (
	"context"
	"fmt"
)

// FailureKind classifies why a backend invocation produced no usable text.
type FailureKind string

const (
	// KindTimeout marks a call that exceeded its deadline.
	KindTimeout FailureKind = "timeout"
	// KindAuthError marks a rejected credential (401/403).
	KindAuthError FailureKind = "auth_error"
	// KindRateLimited marks a throttled call (429).
	KindRateLimited FailureKind = "rate_limited"
	// KindUnavailable marks transport or server-side failures.
	KindUnavailable FailureKind = "unavailable"
	// KindProtocolError marks a response the client could not interpret.
	KindProtocolError FailureKind = "protocol_error"
	// KindParseFailure marks ranking text with no recognizable labels. It is
	// recorded by the engine, never produced by a Caller.
	KindParseFailure FailureKind = "parse_failure"
)

// Error is the typed failure a Caller returns. Kind drives the engine's
// degradation policy; Detail is for logs and the audit trail.
type Error struct {
	Kind   FailureKind
	Detail string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Detail == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// Caller invokes one configured backend with a prompt. Implementations must
// honor ctx cancellation and deadlines, and should return *Error so the
// dispatcher can record the failure kind.
type Caller interface {
	Call(ctx context.Context, backendID, prompt string) (string, error)
}

// CallerFunc adapts a function to the Caller interface.
type CallerFunc func(ctx context.Context, backendID, prompt string) (string, error)

// Call implements Caller.
func (f CallerFunc) Call(ctx context.Context, backendID, prompt string) (string, error) {
	return f(ctx, backendID, prompt)
}
