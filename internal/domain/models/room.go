// internal/domain/models/room.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Room is the durable record of who has taken part in a pull request's
// live collaboration session.
//
// NOTE:
//   - Participants is a set. It is only ever grown with $addToSet, never
//     rewritten from a value read earlier, and never shrinks on leave.
//   - Rooms are never deleted; IsActive is cleared by the idle-room worker.
type Room struct {
	ID            primitive.ObjectID `bson:"_id" json:"id"`
	PullRequestID primitive.ObjectID `bson:"pull_request_id" json:"pullRequestId"`
	ProjectID     primitive.ObjectID `bson:"project_id" json:"projectId"`
	Participants  []string           `bson:"participants" json:"participants"`
	IsActive      bool               `bson:"is_active" json:"isActive"`

	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time `bson:"updated_at" json:"updatedAt"`
}
