// internal/app/store/audit/store.go
package audit

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Event categories
const (
	CategoryMerge = "merge"
	CategoryAdmin = "admin"
)

// Merge event types
const (
	EventMerged           = "pull_request_merged"
	EventForceMerged      = "pull_request_force_merged"
	EventForceMergeDenied = "force_merge_denied"
	EventMergeBlocked     = "merge_blocked_by_policy"
	EventStatusTransition = "pull_request_status_changed"
)

// Admin event types
const (
	EventRuleCreated     = "protection_rule_created"
	EventRuleUpdated     = "protection_rule_updated"
	EventRuleDeactivated = "protection_rule_deactivated"
)

// Event represents an audit event.
type Event struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Timestamp time.Time          `bson:"timestamp" json:"timestamp"`

	// Event classification
	Category  string `bson:"category" json:"category"`
	EventType string `bson:"event_type" json:"eventType"`

	// Who
	ActorID   string `bson:"actor_id" json:"actorId"`
	ActorName string `bson:"actor_name,omitempty" json:"actorName,omitempty"`
	ActorRole string `bson:"actor_role,omitempty" json:"actorRole,omitempty"`

	// What
	PullRequestID *primitive.ObjectID `bson:"pull_request_id,omitempty" json:"pullRequestId,omitempty"`
	ProjectID     *primitive.ObjectID `bson:"project_id,omitempty" json:"projectId,omitempty"`

	// Context
	IP        string `bson:"ip" json:"ip"`
	UserAgent string `bson:"user_agent,omitempty" json:"userAgent,omitempty"`

	// Outcome
	Success       bool   `bson:"success" json:"success"`
	FailureReason string `bson:"failure_reason,omitempty" json:"failureReason,omitempty"`

	// Force merge justification, stored verbatim, and the policy
	// violations that were bypassed at the time of the merge.
	Reason             string   `bson:"reason,omitempty" json:"reason,omitempty"`
	BypassedViolations []string `bson:"bypassed_violations,omitempty" json:"bypassedViolations,omitempty"`

	// Additional details (varies by event type)
	Details map[string]string `bson:"details,omitempty" json:"details,omitempty"`
}

// QueryFilter defines filters for querying audit events.
type QueryFilter struct {
	PullRequestID *primitive.ObjectID
	ProjectID     *primitive.ObjectID
	ActorID       string
	Category      string
	EventType     string
	StartTime     *time.Time
	EndTime       *time.Time
	Limit         int64
	Offset        int64
}

// Store manages audit event records.
type Store struct {
	c *mongo.Collection
}

// New creates a new audit Store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("audit_events")}
}

// Log records an audit event. When ctx is a mongo.SessionContext the insert
// joins the session's transaction.
func (s *Store) Log(ctx context.Context, event Event) error {
	_, err := s.Insert(ctx, event)
	return err
}

// Insert records an audit event and returns its id.
func (s *Store) Insert(ctx context.Context, event Event) (primitive.ObjectID, error) {
	if event.ID.IsZero() {
		event.ID = primitive.NewObjectID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if _, err := s.c.InsertOne(ctx, event); err != nil {
		return primitive.NilObjectID, err
	}
	return event.ID, nil
}

// Delete removes an audit event. Only used to compensate a force merge
// whose status update failed after the record was written.
func (s *Store) Delete(ctx context.Context, id primitive.ObjectID) error {
	_, err := s.c.DeleteOne(ctx, bson.M{"_id": id})
	return err
}

func buildQuery(filter QueryFilter) bson.M {
	query := bson.M{}

	if filter.PullRequestID != nil {
		query["pull_request_id"] = filter.PullRequestID
	}
	if filter.ProjectID != nil {
		query["project_id"] = filter.ProjectID
	}
	if filter.ActorID != "" {
		query["actor_id"] = filter.ActorID
	}
	if filter.Category != "" {
		query["category"] = filter.Category
	}
	if filter.EventType != "" {
		query["event_type"] = filter.EventType
	}

	// Time range
	if filter.StartTime != nil || filter.EndTime != nil {
		timeQuery := bson.M{}
		if filter.StartTime != nil {
			timeQuery["$gte"] = *filter.StartTime
		}
		if filter.EndTime != nil {
			timeQuery["$lte"] = *filter.EndTime
		}
		query["timestamp"] = timeQuery
	}
	return query
}

// Query retrieves audit events matching the given filter.
func (s *Store) Query(ctx context.Context, filter QueryFilter) ([]Event, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(limit).
		SetSkip(filter.Offset)

	cursor, err := s.c.Find(ctx, buildQuery(filter), opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var events []Event
	if err := cursor.All(ctx, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// CountByFilter returns the count of events matching the filter.
func (s *Store) CountByFilter(ctx context.Context, filter QueryFilter) (int64, error) {
	return s.c.CountDocuments(ctx, buildQuery(filter))
}

// GetByPullRequest retrieves recent audit events for a pull request.
func (s *Store) GetByPullRequest(ctx context.Context, prID primitive.ObjectID, limit int64) ([]Event, error) {
	return s.Query(ctx, QueryFilter{
		PullRequestID: &prID,
		Limit:         limit,
	})
}

// GetByActor retrieves recent audit events performed by a user.
func (s *Store) GetByActor(ctx context.Context, actorID string, limit int64) ([]Event, error) {
	return s.Query(ctx, QueryFilter{
		ActorID: actorID,
		Limit:   limit,
	})
}

// GetRecent retrieves the most recent audit events.
func (s *Store) GetRecent(ctx context.Context, limit int64) ([]Event, error) {
	return s.Query(ctx, QueryFilter{
		Limit: limit,
	})
}

// GetForceMerges retrieves force merges since the given time.
func (s *Store) GetForceMerges(ctx context.Context, since time.Time, limit int64) ([]Event, error) {
	return s.Query(ctx, QueryFilter{
		Category:  CategoryMerge,
		EventType: EventForceMerged,
		StartTime: &since,
		Limit:     limit,
	})
}
