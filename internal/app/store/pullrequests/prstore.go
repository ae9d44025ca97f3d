// internal/app/store/pullrequests/prstore.go
package prstore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/reviewhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	// ErrNotFound is returned when the pull request (or comment) does not exist.
	ErrNotFound = errors.New("pull request not found")
	// ErrCommentNotFound is returned when the comment does not exist on the pull request.
	ErrCommentNotFound = errors.New("comment not found")
	// ErrStaleStatus is returned when a compare-and-swap status update finds
	// the pull request in a status other than the expected ones.
	ErrStaleStatus = errors.New("pull request status changed concurrently")
)

// Store provides access to the pull_requests collection. Documents are
// created by the project CRUD layer; this store only updates them.
type Store struct {
	c *mongo.Collection
}

// New creates a new pull request store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("pull_requests")}
}

// GetByID returns a pull request.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.PullRequest, error) {
	var pr models.PullRequest
	err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&pr)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.PullRequest{}, ErrNotFound
	}
	return pr, err
}

func after() *options.FindOneAndUpdateOptions {
	return options.FindOneAndUpdate().SetReturnDocument(options.After)
}

// casUpdate applies update only when the pull request's status is one of
// from. It distinguishes a missing pull request from a lost race.
func (s *Store) casUpdate(ctx context.Context, id primitive.ObjectID, from []models.PRStatus, update any) (models.PullRequest, error) {
	filter := bson.M{"_id": id, "status": bson.M{"$in": from}}

	var pr models.PullRequest
	err := s.c.FindOneAndUpdate(ctx, filter, update, after()).Decode(&pr)
	if errors.Is(err, mongo.ErrNoDocuments) {
		n, cerr := s.c.CountDocuments(ctx, bson.M{"_id": id})
		if cerr != nil {
			return models.PullRequest{}, cerr
		}
		if n == 0 {
			return models.PullRequest{}, ErrNotFound
		}
		return models.PullRequest{}, ErrStaleStatus
	}
	if err != nil {
		return models.PullRequest{}, err
	}
	return pr, nil
}

// SetStatus moves the pull request to status to if its current status is one
// of from.
func (s *Store) SetStatus(ctx context.Context, id primitive.ObjectID, from []models.PRStatus, to models.PRStatus) (models.PullRequest, error) {
	return s.casUpdate(ctx, id, from, bson.M{"$set": bson.M{
		"status":     to,
		"updated_at": time.Now().UTC(),
	}})
}

// MergeInfo describes a completed merge.
type MergeInfo struct {
	MergedBy string
	Method   models.MergeMethod
	Force    bool
	At       time.Time
}

// MarkMerged records a merge if the pull request's status is one of from.
func (s *Store) MarkMerged(ctx context.Context, id primitive.ObjectID, from []models.PRStatus, info MergeInfo) (models.PullRequest, error) {
	at := info.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return s.casUpdate(ctx, id, from, bson.M{"$set": bson.M{
		"status":       models.StatusMerged,
		"merged_at":    at,
		"merged_by":    info.MergedBy,
		"merge_method": info.Method,
		"force_merged": info.Force,
		"updated_at":   at,
	}})
}

// RecordReview stores decision as the reviewer's live decision, replacing
// any earlier one by the same reviewer. The replacement is a single
// pipeline update, so concurrent reviews by different reviewers never
// overwrite each other.
func (s *Store) RecordReview(ctx context.Context, id primitive.ObjectID, decision models.ReviewDecision) (models.PullRequest, error) {
	if decision.CreatedAt.IsZero() {
		decision.CreatedAt = time.Now().UTC()
	}
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"review_decisions": bson.M{"$concatArrays": bson.A{
				bson.M{"$filter": bson.M{
					"input": bson.M{"$ifNull": bson.A{"$review_decisions", bson.A{}}},
					"cond":  bson.M{"$ne": bson.A{"$$this.reviewer_id", bson.M{"$literal": decision.ReviewerID}}},
				}},
				bson.M{"$literal": bson.A{decision}},
			}},
			"updated_at": decision.CreatedAt,
		}}},
	}

	var pr models.PullRequest
	err := s.c.FindOneAndUpdate(ctx, bson.M{"_id": id}, pipeline, after()).Decode(&pr)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.PullRequest{}, ErrNotFound
	}
	return pr, err
}

// AssignReviewers adds reviewers not already assigned.
func (s *Store) AssignReviewers(ctx context.Context, id primitive.ObjectID, reviewers []models.AssignedReviewer) (models.PullRequest, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"assigned_reviewers": bson.M{"$let": bson.M{
				"vars": bson.M{
					"cur": bson.M{"$ifNull": bson.A{"$assigned_reviewers", bson.A{}}},
					"add": bson.M{"$literal": reviewers},
				},
				"in": bson.M{"$concatArrays": bson.A{
					"$$cur",
					bson.M{"$filter": bson.M{
						"input": "$$add",
						"cond":  bson.M{"$not": bson.A{bson.M{"$in": bson.A{"$$this.user_id", "$$cur.user_id"}}}},
					}},
				}},
			}},
			"updated_at": time.Now().UTC(),
		}}},
	}

	var pr models.PullRequest
	err := s.c.FindOneAndUpdate(ctx, bson.M{"_id": id}, pipeline, after()).Decode(&pr)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.PullRequest{}, ErrNotFound
	}
	return pr, err
}

// AddComment appends a comment and returns it with its id and timestamps set.
func (s *Store) AddComment(ctx context.Context, id primitive.ObjectID, c models.Comment) (models.Comment, error) {
	now := time.Now().UTC()
	c.ID = primitive.NewObjectID()
	c.CreatedAt = now
	c.UpdatedAt = now

	res, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$push": bson.M{"comments": c},
		"$set":  bson.M{"updated_at": now},
	})
	if err != nil {
		return models.Comment{}, err
	}
	if res.MatchedCount == 0 {
		return models.Comment{}, ErrNotFound
	}
	return c, nil
}

// CommentUpdate carries the editable fields of a comment. Nil fields are
// left unchanged.
type CommentUpdate struct {
	Text     *string
	Resolved *bool
}

// UpdateComment edits a comment in place.
func (s *Store) UpdateComment(ctx context.Context, prID, commentID primitive.ObjectID, upd CommentUpdate) (models.Comment, error) {
	now := time.Now().UTC()
	set := bson.M{"comments.$.updated_at": now, "updated_at": now}
	if upd.Text != nil {
		set["comments.$.text"] = *upd.Text
	}
	if upd.Resolved != nil {
		set["comments.$.resolved"] = *upd.Resolved
	}

	var pr models.PullRequest
	err := s.c.FindOneAndUpdate(ctx,
		bson.M{"_id": prID, "comments._id": commentID},
		bson.M{"$set": set},
		after().SetProjection(bson.M{"comments": bson.M{"$elemMatch": bson.M{"_id": commentID}}}),
	).Decode(&pr)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Comment{}, ErrCommentNotFound
	}
	if err != nil {
		return models.Comment{}, err
	}
	if len(pr.Comments) == 0 {
		return models.Comment{}, ErrCommentNotFound
	}
	return pr.Comments[0], nil
}

// DeleteComment removes a comment.
func (s *Store) DeleteComment(ctx context.Context, prID, commentID primitive.ObjectID) error {
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": prID, "comments._id": commentID},
		bson.M{
			"$pull": bson.M{"comments": bson.M{"_id": commentID}},
			"$set":  bson.M{"updated_at": time.Now().UTC()},
		})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrCommentNotFound
	}
	return nil
}

// FindComment returns one comment of a pull request.
func FindComment(pr models.PullRequest, commentID primitive.ObjectID) (models.Comment, bool) {
	for _, c := range pr.Comments {
		if c.ID == commentID {
			return c, true
		}
	}
	return models.Comment{}, false
}
