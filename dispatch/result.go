package dispatch

import (
	stderrors "errors"
	"time"

	"github.com/c360/unigate/errors"
)

// ResultEntry is the outcome of one backend call: a resolved response tree
// or an error marker, never both.
type ResultEntry struct {
	Value    any
	Err      error
	Duration time.Duration
}

// Failed reports whether the entry carries an error marker
func (e ResultEntry) Failed() bool {
	return e.Err != nil
}

// ExecutionResult maps each service definition ID to its entry. Every
// service in the route gets exactly one entry - partial results are a
// valid, expected outcome.
type ExecutionResult map[string]ResultEntry

// Partial reports whether at least one entry failed
func (r ExecutionResult) Partial() bool {
	for _, entry := range r {
		if entry.Failed() {
			return true
		}
	}
	return false
}

// MergedTree flattens the result into the keyed tree handed to the
// route-level transform. Failed entries become {"error": <kind>} markers:
// declarative mappings that address into them find nothing and map to
// null, while untransformed responses surface the marker to the caller.
func (r ExecutionResult) MergedTree() map[string]any {
	out := make(map[string]any, len(r))
	for id, entry := range r {
		if entry.Failed() {
			out[id] = map[string]any{"error": errorKind(entry.Err)}
			continue
		}
		out[id] = entry.Value
	}
	return out
}

// errorKind maps a per-service error to its stable marker string
func errorKind(err error) string {
	switch {
	case stderrors.Is(err, errors.ErrServiceTimeout):
		return "timeout"
	case stderrors.Is(err, errors.ErrCredentialMissing):
		return "credential_missing"
	case stderrors.Is(err, errors.ErrTransformFailed):
		return "transform_failed"
	case stderrors.Is(err, errors.ErrEventPublish):
		return "publish_failed"
	default:
		return "call_failed"
	}
}
