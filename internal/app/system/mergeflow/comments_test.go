package mergeflow_test

import (
	"testing"

	prstore "github.com/dalemusser/reviewhub/internal/app/store/pullrequests"
	"github.com/dalemusser/reviewhub/internal/app/system/mergeflow"
	"github.com/dalemusser/reviewhub/internal/app/system/paging"
	"github.com/dalemusser/reviewhub/internal/app/system/presence"
	"github.com/dalemusser/reviewhub/internal/domain/models"
	"github.com/dalemusser/reviewhub/internal/testutil"
)

func defaultPage() paging.Page { return paging.Page{Page: 1, Limit: paging.DefaultLimit} }

func TestComments_Lifecycle(t *testing.T) {
	e := setup(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	author := testutil.MemberUser("author")
	rev := testutil.MemberUser("rev")
	pr := e.fixtures.CreatePullRequest(ctx, author.ID, author.Name,
		testutil.WithReviewers(models.AssignedReviewer{UserID: rev.ID, Username: rev.Name}))

	if _, err := e.svc.AddComment(ctx, actor(rev), pr.ID, mergeflow.CommentInput{Text: "<script>x</script>"}); err != mergeflow.ErrEmptyComment {
		t.Errorf("script-only comment should be empty after sanitizing, got %v", err)
	}

	line := 12
	c, err := e.svc.AddComment(ctx, actor(rev), pr.ID, mergeflow.CommentInput{
		Text: "Consider <b>renaming</b> this", FilePath: "main.go", LineNumber: &line,
	})
	if err != nil {
		t.Fatalf("AddComment failed: %v", err)
	}
	if c.Text != "Consider <b>renaming</b> this" {
		t.Errorf("text = %q", c.Text)
	}
	if len(e.rooms.comments) != 1 || e.rooms.comments[0] != presence.EventCommentAdded {
		t.Errorf("comment not relayed: %v", e.rooms.comments)
	}
	if n, _ := e.notes.UnreadCount(ctx, author.ID); n != 1 {
		t.Errorf("author unread = %d, want 1", n)
	}

	text := "edited"
	if _, err := e.svc.UpdateComment(ctx, actor(author), pr.ID, c.ID, prstore.CommentUpdate{Text: &text}); err != mergeflow.ErrForbidden {
		t.Errorf("only the comment author edits text, got %v", err)
	}
	resolved := true
	got, err := e.svc.UpdateComment(ctx, actor(author), pr.ID, c.ID, prstore.CommentUpdate{Resolved: &resolved})
	if err != nil {
		t.Fatalf("UpdateComment failed: %v", err)
	}
	if !got.Resolved {
		t.Error("PR author should be able to resolve")
	}

	if err := e.svc.DeleteComment(ctx, actor(author), pr.ID, c.ID); err != mergeflow.ErrForbidden {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
	if err := e.svc.DeleteComment(ctx, actor(testutil.AdminUser()), pr.ID, c.ID); err != nil {
		t.Fatalf("admin DeleteComment failed: %v", err)
	}
	if err := e.svc.DeleteComment(ctx, actor(rev), pr.ID, c.ID); err != prstore.ErrCommentNotFound {
		t.Errorf("expected ErrCommentNotFound, got %v", err)
	}
}

func TestAssignReviewers(t *testing.T) {
	e := setup(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	author := testutil.MemberUser("author")
	pr := e.fixtures.CreatePullRequest(ctx, author.ID, author.Name,
		testutil.WithReviewers(models.AssignedReviewer{UserID: "r1", Username: "rev1"}))

	if _, err := e.svc.AssignReviewers(ctx, actor(testutil.MemberUser("x")), pr.ID, nil); err != mergeflow.ErrForbidden {
		t.Errorf("expected ErrForbidden, got %v", err)
	}

	got, err := e.svc.AssignReviewers(ctx, actor(author), pr.ID, []models.AssignedReviewer{
		{UserID: "r1", Username: "rev1"},
		{UserID: "r2", Username: "rev2"},
		{UserID: author.ID, Username: author.Name},
		{UserID: "r2", Username: "rev2"},
	})
	if err != nil {
		t.Fatalf("AssignReviewers failed: %v", err)
	}
	if len(got.AssignedReviewers) != 2 {
		t.Errorf("reviewers = %v, want r1 and r2", got.AssignedReviewers)
	}
	if n, _ := e.notes.UnreadCount(ctx, "r2"); n != 1 {
		t.Errorf("r2 unread = %d, want 1", n)
	}
	if n, _ := e.notes.UnreadCount(ctx, "r1"); n != 0 {
		t.Errorf("already-assigned r1 should not be notified again, got %d", n)
	}
}
