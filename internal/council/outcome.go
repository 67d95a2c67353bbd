package council

import (
	"time"

	"github.com/quorumworks/conclave/internal/backend"
)

// Failure records why one backend invocation produced no usable text.
type Failure struct {
	Kind   backend.FailureKind `json:"kind"`
	Detail string              `json:"detail,omitempty"`
}

// Outcome is the result of one backend invocation. Exactly one of Text or
// Failure is meaningful: a nil Failure means the call succeeded.
type Outcome struct {
	Text    string        `json:"text,omitempty"`
	Latency time.Duration `json:"latency_ns,omitempty"`
	Failure *Failure      `json:"failure,omitempty"`
}

// OK reports whether the invocation succeeded.
func (o Outcome) OK() bool {
	return o.Failure == nil
}
