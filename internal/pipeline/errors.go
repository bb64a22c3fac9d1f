package pipeline

import (
	"errors"
	"fmt"
)

// ConsistencyError marks an invariant violation (an impossible status
// transition, aggregation before quiescence). It is never retried and
// never silently absorbed; callers log it at error level and stop the
// affected unit of work.
type ConsistencyError struct {
	Op     string
	Reason string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("consistency violation in %s: %s", e.Op, e.Reason)
}

func IsConsistency(err error) bool {
	var ce *ConsistencyError
	return errors.As(err, &ce)
}

// IsRetryable reports whether a collaborator error may be retried.
// Collaborators classify their own failures via a Retryable() method
// (see pkg/extract); anything unclassified is treated as transient.
func IsRetryable(err error) bool {
	var r interface{ Retryable() bool }
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return true
}
