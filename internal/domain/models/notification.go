// internal/domain/models/notification.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// NotificationType classifies a notification.
type NotificationType string

const (
	NotifyReviewerAssigned NotificationType = "reviewer_assigned"
	NotifyPRUpdated        NotificationType = "pr_updated"
	NotifyCommentAdded     NotificationType = "comment_added"
	NotifyPRApproved       NotificationType = "pr_approved"
	NotifyPRRejected       NotificationType = "pr_rejected"
)

// Valid reports whether t is a known notification type.
func (t NotificationType) Valid() bool {
	switch t {
	case NotifyReviewerAssigned, NotifyPRUpdated, NotifyCommentAdded, NotifyPRApproved, NotifyPRRejected:
		return true
	}
	return false
}

// Notification is a durable message for one recipient. Only the recipient may
// mark it read or delete it.
type Notification struct {
	ID             primitive.ObjectID  `bson:"_id" json:"id"`
	Recipient      string              `bson:"recipient" json:"recipient"`
	Sender         string              `bson:"sender" json:"sender"`
	Type           NotificationType    `bson:"type" json:"type"`
	Title          string              `bson:"title" json:"title"`
	Message        string              `bson:"message" json:"message"`
	RelatedPR      *primitive.ObjectID `bson:"related_pr,omitempty" json:"relatedPR,omitempty"`
	RelatedProject *primitive.ObjectID `bson:"related_project,omitempty" json:"relatedProject,omitempty"`
	IsRead         bool                `bson:"is_read" json:"isRead"`
	ReadAt         *time.Time          `bson:"read_at,omitempty" json:"readAt,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time `bson:"updated_at" json:"updatedAt"`
}
