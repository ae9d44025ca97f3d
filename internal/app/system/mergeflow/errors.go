// internal/app/system/mergeflow/errors.go
package mergeflow

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dalemusser/reviewhub/internal/domain/models"
)

var (
	// ErrForbidden is returned when the actor may not perform the operation.
	ErrForbidden = errors.New("not authorized")
	// ErrStaleStatus is returned when another request changed the pull
	// request's status first.
	ErrStaleStatus = errors.New("pull request status changed concurrently")
	// ErrReasonTooShort is returned for a force-merge justification under
	// MinForceMergeReason characters.
	ErrReasonTooShort     = fmt.Errorf("force merge reason must be at least %d characters", MinForceMergeReason)
	ErrInvalidMergeMethod = errors.New("mergeMethod must be one of merge, squash, rebase")
	ErrInvalidDecision    = errors.New("decision must be one of approved, rejected, changes_requested")
	ErrSelfReview         = errors.New("authors cannot review their own pull request")
	ErrEmptyComment       = errors.New("comment text is required")
)

// TransitionError reports a status change the state machine does not allow.
type TransitionError struct {
	From models.PRStatus
	To   models.PRStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move pull request from %s to %s", e.From, e.To)
}

// PolicyViolationError is returned when branch protection blocks a merge.
type PolicyViolationError struct {
	Violations []string
}

func (e *PolicyViolationError) Error() string {
	return "merge blocked by branch protection: " + strings.Join(e.Violations, "; ")
}
