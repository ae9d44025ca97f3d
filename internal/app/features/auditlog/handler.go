// internal/app/features/auditlog/handler.go
package auditlog

import (
	apierrors "github.com/dalemusser/reviewhub/internal/app/features/errors"
	"github.com/dalemusser/reviewhub/internal/app/store/audit"
	"go.uber.org/zap"
)

// Handler serves the project-wide audit trail to administrators.
type Handler struct {
	Store  *audit.Store
	Log    *zap.Logger
	ErrLog *apierrors.ErrorLogger
}

// NewHandler constructs an audit log Handler.
func NewHandler(store *audit.Store, logger *zap.Logger) *Handler {
	return &Handler{
		Store:  store,
		Log:    logger,
		ErrLog: apierrors.NewErrorLogger(logger),
	}
}
