package errors_test

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	apierrors "github.com/dalemusser/reviewhub/internal/app/features/errors"
	protectionstore "github.com/dalemusser/reviewhub/internal/app/store/protection"
	prstore "github.com/dalemusser/reviewhub/internal/app/store/pullrequests"
	"github.com/dalemusser/reviewhub/internal/app/system/auth"
	"github.com/dalemusser/reviewhub/internal/app/system/mergeflow"
	"github.com/dalemusser/reviewhub/internal/domain/models"
	"github.com/dalemusser/reviewhub/internal/testutil"
	"go.uber.org/zap"
)

func TestWrite_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"unauthenticated", fmt.Errorf("%w: bad token", auth.ErrUnauthenticated), http.StatusUnauthorized, "unauthenticated"},
		{"not found", prstore.ErrNotFound, http.StatusNotFound, "not_found"},
		{"rule not found", protectionstore.ErrNotFound, http.StatusNotFound, "not_found"},
		{"policy", &mergeflow.PolicyViolationError{Violations: []string{"Requires 2 approvals, has 0"}}, http.StatusBadRequest, "policy_violation"},
		{"conflict", protectionstore.ErrConflict, http.StatusConflict, "conflict"},
		{"stale", mergeflow.ErrStaleStatus, http.StatusConflict, "conflict"},
		{"transition", &mergeflow.TransitionError{From: models.StatusOpen, To: models.StatusMerged}, http.StatusConflict, "invalid_transition"},
		{"forbidden", mergeflow.ErrForbidden, http.StatusForbidden, "forbidden"},
		{"validation", mergeflow.ErrReasonTooShort, http.StatusBadRequest, "validation"},
		{"timeout", context.DeadlineExceeded, http.StatusServiceUnavailable, "timeout"},
		{"other", fmt.Errorf("boom"), http.StatusInternalServerError, "internal"},
	}

	el := apierrors.NewErrorLogger(zap.NewNop())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := testutil.NewRecorder()
			el.Write(rec, testutil.NewRequest("GET", "/x"), "test", tt.err)
			rec.AssertStatus(t, tt.status)
			if got := rec.ErrorCode(t); got != tt.code {
				t.Errorf("code = %q, want %q", got, tt.code)
			}
		})
	}
}

func TestWrite_PolicyViolationDetails(t *testing.T) {
	rec := testutil.NewRecorder()
	apierrors.NewErrorLogger(zap.NewNop()).Write(rec, testutil.NewRequest("POST", "/merge"), "merge",
		&mergeflow.PolicyViolationError{Violations: []string{"a", "b"}})

	var body struct {
		Details []string `json:"details"`
	}
	rec.DecodeJSON(t, &body)
	if len(body.Details) != 2 || body.Details[1] != "b" {
		t.Errorf("details = %v", body.Details)
	}
}
