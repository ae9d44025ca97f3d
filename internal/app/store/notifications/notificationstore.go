// internal/app/store/notifications/notificationstore.go
package notificationstore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/reviewhub/internal/app/system/paging"
	"github.com/dalemusser/reviewhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrNotFound is returned when the notification does not exist or belongs to
// another recipient. The two cases are not distinguished.
var ErrNotFound = errors.New("notification not found")

// ErrInvalidType is returned by Create for an unknown notification type.
var ErrInvalidType = errors.New("invalid notification type")

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("notifications")}
}

// Create persists n and returns it with id and timestamps set.
func (s *Store) Create(ctx context.Context, n models.Notification) (models.Notification, error) {
	if !n.Type.Valid() {
		return models.Notification{}, ErrInvalidType
	}
	now := time.Now().UTC()
	n.ID = primitive.NewObjectID()
	n.IsRead = false
	n.ReadAt = nil
	n.CreatedAt = now
	n.UpdatedAt = now
	if _, err := s.c.InsertOne(ctx, n); err != nil {
		return models.Notification{}, err
	}
	return n, nil
}

// Page is one page of a recipient's notifications.
type Page struct {
	Items       []models.Notification
	Total       int64
	UnreadCount int64
	HasMore     bool
}

// ListForUser returns a newest-first page of recipient's notifications along
// with the unread count read in the same call.
func (s *Store) ListForUser(ctx context.Context, recipient string, p paging.Page) (Page, error) {
	filter := bson.M{"recipient": recipient}
	find := p.Apply(options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}))

	cur, err := s.c.Find(ctx, filter, find)
	if err != nil {
		return Page{}, err
	}
	defer cur.Close(ctx)

	items := make([]models.Notification, 0, p.Limit)
	if err := cur.All(ctx, &items); err != nil {
		return Page{}, err
	}

	total, err := s.c.CountDocuments(ctx, filter)
	if err != nil {
		return Page{}, err
	}
	unread, err := s.UnreadCount(ctx, recipient)
	if err != nil {
		return Page{}, err
	}
	return Page{
		Items:       items,
		Total:       total,
		UnreadCount: unread,
		HasMore:     p.Skip()+int64(len(items)) < total,
	}, nil
}

// UnreadCount counts recipient's unread notifications.
func (s *Store) UnreadCount(ctx context.Context, recipient string) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{"recipient": recipient, "is_read": false})
}

// MarkRead marks one notification read. Marking an already-read notification
// succeeds and keeps its original read time.
func (s *Store) MarkRead(ctx context.Context, id primitive.ObjectID, recipient string) (models.Notification, error) {
	now := time.Now().UTC()
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"read_at":    bson.M{"$ifNull": bson.A{"$read_at", now}},
			"is_read":    true,
			"updated_at": now,
		}}},
	}
	var n models.Notification
	err := s.c.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "recipient": recipient},
		pipeline,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&n)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Notification{}, ErrNotFound
	}
	return n, err
}

// MarkAllRead marks every unread notification of recipient read and returns
// how many changed.
func (s *Store) MarkAllRead(ctx context.Context, recipient string) (int64, error) {
	now := time.Now().UTC()
	res, err := s.c.UpdateMany(ctx,
		bson.M{"recipient": recipient, "is_read": false},
		bson.M{"$set": bson.M{"is_read": true, "read_at": now, "updated_at": now}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

// Delete removes one of recipient's notifications.
func (s *Store) Delete(ctx context.Context, id primitive.ObjectID, recipient string) error {
	res, err := s.c.DeleteOne(ctx, bson.M{"_id": id, "recipient": recipient})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteOlderThan removes read notifications created before cutoff.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.c.DeleteMany(ctx, bson.M{"is_read": true, "created_at": bson.M{"$lt": cutoff}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
