// internal/app/system/mergeflow/comments.go
package mergeflow

import (
	"context"
	"strings"

	prstore "github.com/dalemusser/reviewhub/internal/app/store/pullrequests"
	"github.com/dalemusser/reviewhub/internal/app/system/auditlog"
	"github.com/dalemusser/reviewhub/internal/app/system/authz"
	"github.com/dalemusser/reviewhub/internal/app/system/htmlsanitize"
	"github.com/dalemusser/reviewhub/internal/app/system/presence"
	"github.com/dalemusser/reviewhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CommentInput is a new comment. FilePath and LineNumber make it a line
// comment.
type CommentInput struct {
	Text       string
	FilePath   string
	LineNumber *int
}

// AddComment stores a comment, relays it to the other viewers of the pull
// request and notifies the author and reviewers. The store write must
// succeed; relay and notification are best effort.
func (s *Service) AddComment(ctx context.Context, actor auditlog.Actor, id primitive.ObjectID, in CommentInput) (models.Comment, error) {
	text := htmlsanitize.Sanitize(in.Text)
	if text == "" {
		return models.Comment{}, ErrEmptyComment
	}
	pr, err := s.prs.GetByID(ctx, id)
	if err != nil {
		return models.Comment{}, err
	}

	c, err := s.prs.AddComment(ctx, id, models.Comment{
		AuthorID:   actor.ID,
		AuthorName: actor.Name,
		Text:       text,
		FilePath:   strings.TrimSpace(in.FilePath),
		LineNumber: in.LineNumber,
	})
	if err != nil {
		return models.Comment{}, err
	}

	s.relayComment(id, presence.EventCommentAdded, actor, c)
	if s.notes != nil {
		s.notes.CommentAdded(ctx, &pr, c)
	}
	return c, nil
}

// UpdateComment edits or resolves a comment. Only the comment's author may
// change its text. The comment author, the pull request author and
// maintainers may resolve it.
func (s *Service) UpdateComment(ctx context.Context, actor auditlog.Actor, prID, commentID primitive.ObjectID, upd prstore.CommentUpdate) (models.Comment, error) {
	pr, err := s.prs.GetByID(ctx, prID)
	if err != nil {
		return models.Comment{}, err
	}
	existing, ok := prstore.FindComment(pr, commentID)
	if !ok {
		return models.Comment{}, prstore.ErrCommentNotFound
	}

	if upd.Text != nil {
		if existing.AuthorID != actor.ID {
			return models.Comment{}, ErrForbidden
		}
		text := htmlsanitize.Sanitize(*upd.Text)
		if text == "" {
			return models.Comment{}, ErrEmptyComment
		}
		upd.Text = &text
	}
	if upd.Resolved != nil {
		if existing.AuthorID != actor.ID && pr.AuthorID != actor.ID && !authz.CanManageProtection(actor.Role) {
			return models.Comment{}, ErrForbidden
		}
	}

	c, err := s.prs.UpdateComment(ctx, prID, commentID, upd)
	if err != nil {
		return models.Comment{}, err
	}
	s.relayComment(prID, presence.EventCommentUpdated, actor, c)
	return c, nil
}

// DeleteComment removes a comment. Its author and admins may delete it.
func (s *Service) DeleteComment(ctx context.Context, actor auditlog.Actor, prID, commentID primitive.ObjectID) error {
	pr, err := s.prs.GetByID(ctx, prID)
	if err != nil {
		return err
	}
	existing, ok := prstore.FindComment(pr, commentID)
	if !ok {
		return prstore.ErrCommentNotFound
	}
	if existing.AuthorID != actor.ID && !authz.CanModerate(actor.Role) {
		return ErrForbidden
	}
	if err := s.prs.DeleteComment(ctx, prID, commentID); err != nil {
		return err
	}
	s.relayComment(prID, presence.EventCommentDeleted, actor, existing)
	return nil
}

func (s *Service) relayComment(prID primitive.ObjectID, event string, actor auditlog.Actor, c models.Comment) {
	if s.rooms == nil {
		return
	}
	s.rooms.BroadcastComment(prID, event, presence.CommentPayload{
		Comment:    c,
		LineNumber: c.LineNumber,
		FilePath:   c.FilePath,
		Author:     presence.Participant{UserID: actor.ID, Username: actor.Name},
	})
}
