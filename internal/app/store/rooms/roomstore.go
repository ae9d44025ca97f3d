// internal/app/store/rooms/roomstore.go
package roomstore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/reviewhub/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrNotFound is returned when no room exists for a pull request.
var ErrNotFound = errors.New("room not found")

// Store provides access to the rooms collection.
type Store struct {
	c *mongo.Collection
}

// New creates a new room store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("rooms")}
}

// AddParticipant records userID as a participant of the pull request's room,
// creating the room if needed, and marks it active. Participants are added
// with $addToSet in a single upsert, so concurrent joins never lose a
// member. Two first-joins racing on the unique pull_request_id index make
// one upsert fail with a duplicate key; that one is retried once and then
// takes the update path.
func (s *Store) AddParticipant(ctx context.Context, prID, projectID primitive.ObjectID, userID string) (models.Room, error) {
	room, err := s.addParticipant(ctx, prID, projectID, userID)
	if err != nil && wafflemongo.IsDup(err) {
		room, err = s.addParticipant(ctx, prID, projectID, userID)
	}
	return room, err
}

func (s *Store) addParticipant(ctx context.Context, prID, projectID primitive.ObjectID, userID string) (models.Room, error) {
	now := time.Now().UTC()
	update := bson.M{
		"$addToSet": bson.M{"participants": userID},
		"$set": bson.M{
			"is_active":  true,
			"updated_at": now,
		},
		"$setOnInsert": bson.M{
			"_id":        primitive.NewObjectID(),
			"project_id": projectID,
			"created_at": now,
		},
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var room models.Room
	err := s.c.FindOneAndUpdate(ctx, bson.M{"pull_request_id": prID}, update, opts).Decode(&room)
	return room, err
}

// GetByPullRequest returns the room for a pull request.
func (s *Store) GetByPullRequest(ctx context.Context, prID primitive.ObjectID) (models.Room, error) {
	var room models.Room
	err := s.c.FindOne(ctx, bson.M{"pull_request_id": prID}).Decode(&room)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Room{}, ErrNotFound
	}
	return room, err
}

// Touch bumps updated_at on the given rooms so they are not considered idle.
func (s *Store) Touch(ctx context.Context, prIDs []primitive.ObjectID) error {
	if len(prIDs) == 0 {
		return nil
	}
	_, err := s.c.UpdateMany(ctx,
		bson.M{"pull_request_id": bson.M{"$in": prIDs}},
		bson.M{"$set": bson.M{"is_active": true, "updated_at": time.Now().UTC()}},
	)
	return err
}

// MarkIdle clears is_active on active rooms not updated since cutoff,
// skipping rooms listed in live. Returns the number of rooms changed.
func (s *Store) MarkIdle(ctx context.Context, cutoff time.Time, live []primitive.ObjectID) (int64, error) {
	filter := bson.M{
		"is_active":  true,
		"updated_at": bson.M{"$lt": cutoff},
	}
	if len(live) > 0 {
		filter["pull_request_id"] = bson.M{"$nin": live}
	}
	res, err := s.c.UpdateMany(ctx, filter, bson.M{"$set": bson.M{"is_active": false}})
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

// CountActive returns the number of active rooms.
func (s *Store) CountActive(ctx context.Context) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{"is_active": true})
}
