// internal/app/store/statuschecks/checkstore.go
package checkstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dalemusser/reviewhub/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	ErrInvalidState   = errors.New("invalid status check state")
	ErrInvalidContext = errors.New("status check context is required")
)

// ValidState reports whether state is one of the known check states.
func ValidState(state string) bool {
	switch state {
	case models.CheckSuccess, models.CheckFailure, models.CheckPending, models.CheckError:
		return true
	}
	return false
}

// Store holds the latest state per (pull request, context).
type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("status_checks")}
}

// Report records the latest state of one context, replacing any earlier report.
func (s *Store) Report(ctx context.Context, check models.StatusCheck) (models.StatusCheck, error) {
	check.Context = strings.TrimSpace(check.Context)
	if check.Context == "" {
		return models.StatusCheck{}, ErrInvalidContext
	}
	if !ValidState(check.State) {
		return models.StatusCheck{}, ErrInvalidState
	}
	if check.ReportedAt.IsZero() {
		check.ReportedAt = time.Now().UTC()
	}

	out, err := s.report(ctx, check)
	if wafflemongo.IsDup(err) {
		// Lost an upsert race on the unique (pr, context) index; the row exists now.
		out, err = s.report(ctx, check)
	}
	return out, err
}

func (s *Store) report(ctx context.Context, check models.StatusCheck) (models.StatusCheck, error) {
	filter := bson.M{"pull_request_id": check.PullRequestID, "context": check.Context}
	update := bson.M{
		"$set": bson.M{
			"state":       check.State,
			"description": check.Description,
			"reported_by": check.ReportedBy,
			"reported_at": check.ReportedAt,
		},
		"$setOnInsert": bson.M{"_id": primitive.NewObjectID()},
	}
	var out models.StatusCheck
	err := s.c.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&out)
	return out, err
}

// ListForPR returns the latest reports for a pull request ordered by context.
func (s *Store) ListForPR(ctx context.Context, prID primitive.ObjectID) ([]models.StatusCheck, error) {
	cur, err := s.c.Find(ctx, bson.M{"pull_request_id": prID},
		options.Find().SetSort(bson.D{{Key: "context", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []models.StatusCheck{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// States returns context -> state for a pull request.
func (s *Store) States(ctx context.Context, prID primitive.ObjectID) (map[string]string, error) {
	checks, err := s.ListForPR(ctx, prID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(checks))
	for _, c := range checks {
		out[c.Context] = c.State
	}
	return out, nil
}
