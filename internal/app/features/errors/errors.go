// internal/app/features/errors/errors.go
// Package errors maps domain errors to JSON error responses for the API
// features and logs the ones that are the server's fault.
package errors

import (
	"context"
	stderrors "errors"
	"net/http"

	notificationstore "github.com/dalemusser/reviewhub/internal/app/store/notifications"
	protectionstore "github.com/dalemusser/reviewhub/internal/app/store/protection"
	prstore "github.com/dalemusser/reviewhub/internal/app/store/pullrequests"
	checkstore "github.com/dalemusser/reviewhub/internal/app/store/statuschecks"
	"github.com/dalemusser/reviewhub/internal/app/system/auth"
	"github.com/dalemusser/reviewhub/internal/app/system/mergeflow"
	"github.com/dalemusser/reviewhub/internal/app/system/respond"
	"go.uber.org/zap"
)

// ErrorLogger writes error responses and logs unexpected failures.
type ErrorLogger struct {
	Log *zap.Logger
}

// NewErrorLogger constructs an ErrorLogger.
func NewErrorLogger(logger *zap.Logger) *ErrorLogger {
	return &ErrorLogger{Log: logger}
}

// Write responds to r with the status and code that err maps to. op names
// the failed operation in the log.
func (el *ErrorLogger) Write(w http.ResponseWriter, r *http.Request, op string, err error) {
	var pv *mergeflow.PolicyViolationError
	var te *mergeflow.TransitionError

	switch {
	case stderrors.Is(err, auth.ErrUnauthenticated), stderrors.Is(err, auth.ErrRevoked):
		respond.Unauthorized(w)

	case stderrors.As(err, &pv):
		respond.Error(w, http.StatusBadRequest, "policy_violation", "merge blocked by branch protection", pv.Violations)

	case stderrors.Is(err, mergeflow.ErrForbidden), stderrors.Is(err, mergeflow.ErrSelfReview):
		respond.Forbidden(w, err.Error())

	case stderrors.Is(err, prstore.ErrNotFound),
		stderrors.Is(err, prstore.ErrCommentNotFound),
		stderrors.Is(err, protectionstore.ErrNotFound),
		stderrors.Is(err, notificationstore.ErrNotFound):
		respond.NotFound(w, err.Error())

	case stderrors.As(err, &te):
		respond.Error(w, http.StatusConflict, "invalid_transition", err.Error(), map[string]string{
			"from": string(te.From),
			"to":   string(te.To),
		})

	case stderrors.Is(err, protectionstore.ErrConflict),
		stderrors.Is(err, mergeflow.ErrStaleStatus):
		respond.Error(w, http.StatusConflict, "conflict", err.Error(), nil)

	case stderrors.Is(err, mergeflow.ErrReasonTooShort),
		stderrors.Is(err, mergeflow.ErrInvalidMergeMethod),
		stderrors.Is(err, mergeflow.ErrInvalidDecision),
		stderrors.Is(err, mergeflow.ErrEmptyComment),
		stderrors.Is(err, checkstore.ErrInvalidState),
		stderrors.Is(err, checkstore.ErrInvalidContext),
		stderrors.Is(err, notificationstore.ErrInvalidType):
		respond.Error(w, http.StatusBadRequest, "validation", err.Error(), nil)

	case stderrors.Is(err, context.DeadlineExceeded):
		el.Log.Warn(op+" timed out", zap.String("path", r.URL.Path), zap.Error(err))
		respond.Error(w, http.StatusServiceUnavailable, "timeout", "the request timed out", nil)

	default:
		el.Log.Error(op+" failed", zap.String("path", r.URL.Path), zap.Error(err))
		respond.Internal(w)
	}
}
