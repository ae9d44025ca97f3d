// internal/app/system/notify/notify.go
// Package notify persists notifications and pushes them to recipients who
// are connected. The durable record is written first; the push is best
// effort and a disconnected recipient reads it on the next list.
package notify

import (
	"context"
	"fmt"
	"time"

	notificationstore "github.com/dalemusser/reviewhub/internal/app/store/notifications"
	"github.com/dalemusser/reviewhub/internal/app/system/paging"
	"github.com/dalemusser/reviewhub/internal/app/system/presence"
	"github.com/dalemusser/reviewhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Pusher delivers a live event to a user if connected.
type Pusher interface {
	SendToUser(userID string, ev presence.Event) bool
}

// Payload is the data of the notification event.
type Payload struct {
	ID        string                  `json:"id"`
	Type      models.NotificationType `json:"type"`
	Title     string                  `json:"title"`
	Message   string                  `json:"message"`
	Sender    string                  `json:"sender"`
	RelatedPR string                  `json:"relatedPR,omitempty"`
	IsRead    bool                    `json:"isRead"`
	CreatedAt time.Time               `json:"createdAt"`
}

// PayloadFor converts a stored notification to its wire form.
func PayloadFor(n models.Notification) Payload {
	p := Payload{
		ID:        n.ID.Hex(),
		Type:      n.Type,
		Title:     n.Title,
		Message:   n.Message,
		Sender:    n.Sender,
		IsRead:    n.IsRead,
		CreatedAt: n.CreatedAt,
	}
	if n.RelatedPR != nil {
		p.RelatedPR = n.RelatedPR.Hex()
	}
	return p
}

// Dispatcher creates, lists and updates notifications.
type Dispatcher struct {
	store *notificationstore.Store
	push  Pusher
	log   *zap.Logger
}

// New creates a Dispatcher. push may be nil, in which case notifications are
// only stored.
func New(store *notificationstore.Store, push Pusher, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{store: store, push: push, log: logger}
}

// Create persists n and then pushes it to the recipient. A persistence
// failure is returned; a push failure is not.
func (d *Dispatcher) Create(ctx context.Context, n models.Notification) (models.Notification, error) {
	saved, err := d.store.Create(ctx, n)
	if err != nil {
		return models.Notification{}, err
	}
	if d.push != nil {
		delivered := d.push.SendToUser(saved.Recipient, presence.Event{
			Name: presence.EventNotification,
			Data: PayloadFor(saved),
		})
		d.log.Debug("notification created",
			zap.String("notification_id", saved.ID.Hex()),
			zap.String("recipient", saved.Recipient),
			zap.String("type", string(saved.Type)),
			zap.Bool("pushed", delivered))
	}
	return saved, nil
}

// ListForUser returns a newest-first page for recipient.
func (d *Dispatcher) ListForUser(ctx context.Context, recipient string, p paging.Page) (notificationstore.Page, error) {
	return d.store.ListForUser(ctx, recipient, p)
}

// UnreadCount counts recipient's unread notifications.
func (d *Dispatcher) UnreadCount(ctx context.Context, recipient string) (int64, error) {
	return d.store.UnreadCount(ctx, recipient)
}

// MarkRead marks one notification read. Another user's notification is
// reported as not found.
func (d *Dispatcher) MarkRead(ctx context.Context, id primitive.ObjectID, recipient string) (models.Notification, error) {
	return d.store.MarkRead(ctx, id, recipient)
}

// MarkAllRead marks all of recipient's notifications read.
func (d *Dispatcher) MarkAllRead(ctx context.Context, recipient string) (int64, error) {
	return d.store.MarkAllRead(ctx, recipient)
}

// Delete removes one of recipient's notifications.
func (d *Dispatcher) Delete(ctx context.Context, id primitive.ObjectID, recipient string) error {
	return d.store.Delete(ctx, id, recipient)
}

// --- Pull request events ---

// fanout creates one notification per recipient, skipping the sender and
// duplicates. Failures are logged and do not stop the remaining recipients.
func (d *Dispatcher) fanout(ctx context.Context, recipients []string, tmpl models.Notification) int {
	seen := make(map[string]bool, len(recipients))
	n := 0
	for _, r := range recipients {
		if r == "" || r == tmpl.Sender || seen[r] {
			continue
		}
		seen[r] = true
		note := tmpl
		note.Recipient = r
		if _, err := d.Create(ctx, note); err != nil {
			d.log.Error("failed to create notification",
				zap.String("recipient", r),
				zap.String("type", string(tmpl.Type)),
				zap.Error(err))
			continue
		}
		n++
	}
	return n
}

func prTemplate(pr *models.PullRequest, sender string, t models.NotificationType, title, msg string) models.Notification {
	prID, projectID := pr.ID, pr.ProjectID
	return models.Notification{
		Sender:         sender,
		Type:           t,
		Title:          title,
		Message:        msg,
		RelatedPR:      &prID,
		RelatedProject: &projectID,
	}
}

// ReviewersAssigned tells each newly assigned reviewer.
func (d *Dispatcher) ReviewersAssigned(ctx context.Context, pr *models.PullRequest, sender string, reviewers []models.AssignedReviewer) int {
	ids := make([]string, 0, len(reviewers))
	for _, r := range reviewers {
		ids = append(ids, r.UserID)
	}
	return d.fanout(ctx, ids, prTemplate(pr, sender, models.NotifyReviewerAssigned,
		"Review requested",
		fmt.Sprintf("You were asked to review %q", pr.Title)))
}

// CommentAdded tells the author and the assigned reviewers, except the
// commenter.
func (d *Dispatcher) CommentAdded(ctx context.Context, pr *models.PullRequest, c models.Comment) int {
	recipients := []string{pr.AuthorID}
	for _, r := range pr.AssignedReviewers {
		recipients = append(recipients, r.UserID)
	}
	return d.fanout(ctx, recipients, prTemplate(pr, c.AuthorID, models.NotifyCommentAdded,
		"New comment",
		fmt.Sprintf("%s commented on %q", c.AuthorName, pr.Title)))
}

// StatusChanged tells the author about a status transition they did not
// make themselves.
func (d *Dispatcher) StatusChanged(ctx context.Context, pr *models.PullRequest, actorID string, to models.PRStatus) int {
	t := models.NotifyPRUpdated
	title := "Pull request updated"
	switch to {
	case models.StatusApproved:
		t, title = models.NotifyPRApproved, "Pull request approved"
	case models.StatusRejected:
		t, title = models.NotifyPRRejected, "Pull request rejected"
	}
	return d.fanout(ctx, []string{pr.AuthorID}, prTemplate(pr, actorID, t, title,
		fmt.Sprintf("%q is now %s", pr.Title, to)))
}
