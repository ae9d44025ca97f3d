// internal/app/features/pullrequests/handler.go
package pullrequests

import (
	"net/http"

	apierrors "github.com/dalemusser/reviewhub/internal/app/features/errors"
	"github.com/dalemusser/reviewhub/internal/app/store/audit"
	roomstore "github.com/dalemusser/reviewhub/internal/app/store/rooms"
	checkstore "github.com/dalemusser/reviewhub/internal/app/store/statuschecks"
	"github.com/dalemusser/reviewhub/internal/app/system/mergeflow"
	"github.com/dalemusser/reviewhub/internal/app/system/presence"
	"github.com/dalemusser/reviewhub/internal/app/system/respond"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Handler serves the pull request endpoints: protection status, merges,
// reviews, comments, status checks and the per-PR audit trail.
type Handler struct {
	Flow     *mergeflow.Service
	Checks   *checkstore.Store
	Audit    *audit.Store
	Rooms    *roomstore.Store
	Presence *presence.Registry
	ErrLog   *apierrors.ErrorLogger
	Log      *zap.Logger
}

// NewHandler constructs a pull request Handler.
func NewHandler(flow *mergeflow.Service, checks *checkstore.Store, auditStore *audit.Store, rooms *roomstore.Store, reg *presence.Registry, logger *zap.Logger) *Handler {
	return &Handler{
		Flow:     flow,
		Checks:   checks,
		Audit:    auditStore,
		Rooms:    rooms,
		Presence: reg,
		ErrLog:   apierrors.NewErrorLogger(logger),
		Log:      logger,
	}
}

// objectIDParam parses a hex id URL parameter, writing a 400 when it is
// malformed.
func objectIDParam(w http.ResponseWriter, r *http.Request, name string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, name))
	if err != nil {
		respond.BadRequest(w, "invalid "+name)
		return primitive.NilObjectID, false
	}
	return id, true
}
