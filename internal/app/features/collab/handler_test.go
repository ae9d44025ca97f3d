package collab_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dalemusser/reviewhub/internal/app/features/collab"
	prstore "github.com/dalemusser/reviewhub/internal/app/store/pullrequests"
	"github.com/dalemusser/reviewhub/internal/app/system/auditlog"
	"github.com/dalemusser/reviewhub/internal/app/system/auth"
	"github.com/dalemusser/reviewhub/internal/app/system/mergeflow"
	"github.com/dalemusser/reviewhub/internal/app/system/presence"
	"github.com/dalemusser/reviewhub/internal/domain/models"
	"github.com/gorilla/websocket"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const testSecret = "collab-test-secret-0123456789abcdef"

// fakePullRequests knows the pull requests registered with add and records
// every comment it is asked to store.
type fakePullRequests struct {
	mu       sync.Mutex
	projects map[primitive.ObjectID]primitive.ObjectID
	actors   []auditlog.Actor
	inputs   []mergeflow.CommentInput
}

func (f *fakePullRequests) add() (prID, projectID primitive.ObjectID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	prID, projectID = primitive.NewObjectID(), primitive.NewObjectID()
	f.projects[prID] = projectID
	return prID, projectID
}

func (f *fakePullRequests) PullRequest(_ context.Context, id primitive.ObjectID) (models.PullRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	projectID, ok := f.projects[id]
	if !ok {
		return models.PullRequest{}, prstore.ErrNotFound
	}
	return models.PullRequest{ID: id, ProjectID: projectID, Status: models.StatusOpen}, nil
}

func (f *fakePullRequests) AddComment(_ context.Context, actor auditlog.Actor, _ primitive.ObjectID, in mergeflow.CommentInput) (models.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if strings.TrimSpace(in.Text) == "" {
		return models.Comment{}, mergeflow.ErrEmptyComment
	}
	f.actors = append(f.actors, actor)
	f.inputs = append(f.inputs, in)
	return models.Comment{ID: primitive.NewObjectID(), AuthorID: actor.ID, Text: in.Text}, nil
}

func (f *fakePullRequests) calls() ([]auditlog.Actor, []mergeflow.CommentInput) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]auditlog.Actor(nil), f.actors...), append([]mergeflow.CommentInput(nil), f.inputs...)
}

// recordingRooms stands in for the durable room store.
type recordingRooms struct {
	mu       sync.Mutex
	projects map[primitive.ObjectID]primitive.ObjectID
}

func (r *recordingRooms) AddParticipant(_ context.Context, prID, projectID primitive.ObjectID, userID string) (models.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.projects[prID]; !ok {
		r.projects[prID] = projectID
	}
	return models.Room{PullRequestID: prID, ProjectID: r.projects[prID], Participants: []string{userID}, IsActive: true}, nil
}

func (r *recordingRooms) project(prID primitive.ObjectID) (primitive.ObjectID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.projects[prID]
	return id, ok
}

type testServer struct {
	srv   *httptest.Server
	authn *auth.Authenticator
	reg   *presence.Registry
	prs   *fakePullRequests
	rooms *recordingRooms
}

func newTestServer(t *testing.T, opts collab.Options) *testServer {
	t.Helper()
	logger := zap.NewNop()
	authn, err := auth.NewAuthenticator(auth.Config{JWTSecret: testSecret}, logger)
	if err != nil {
		t.Fatalf("NewAuthenticator failed: %v", err)
	}
	rooms := &recordingRooms{projects: map[primitive.ObjectID]primitive.ObjectID{}}
	reg := presence.New(rooms, logger, presence.Options{})
	prs := &fakePullRequests{projects: map[primitive.ObjectID]primitive.ObjectID{}}
	h := collab.NewHandler(authn, reg, prs, opts, logger)

	srv := httptest.NewServer(collab.Routes(h))
	t.Cleanup(func() {
		srv.Close()
		reg.Close()
		h.Close()
	})
	return &testServer{srv: srv, authn: authn, reg: reg, prs: prs, rooms: rooms}
}

func (s *testServer) wsURL() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/"
}

func (s *testServer) dial(t *testing.T, id, name string) *websocket.Conn {
	t.Helper()
	tok, err := s.authn.IssueToken(auth.User{ID: id, Name: name, Role: "member"}, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}
	ws, resp, err := websocket.DefaultDialer.Dial(s.wsURL(), http.Header{"Authorization": {"Bearer " + tok}})
	if err != nil {
		t.Fatalf("dial failed: %v (resp %v)", err, resp)
	}
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func send(t *testing.T, ws *websocket.Conn, event string, data any) {
	t.Helper()
	if err := ws.WriteJSON(map[string]any{"event": event, "data": data}); err != nil {
		t.Fatalf("write %s failed: %v", event, err)
	}
}

// expect reads frames until one named event arrives.
func expect(t *testing.T, ws *websocket.Conn, event string) inbound {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var f inbound
		if err := ws.ReadJSON(&f); err != nil {
			t.Fatalf("waiting for %s: %v", event, err)
		}
		if f.Event == event {
			return f
		}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestServeWS_RejectsUnauthenticated(t *testing.T) {
	s := newTestServer(t, collab.Options{})

	_, resp, err := websocket.DefaultDialer.Dial(s.wsURL(), nil)
	if err == nil {
		t.Fatal("expected handshake to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", resp)
	}

	_, resp, err = websocket.DefaultDialer.Dial(s.wsURL()+"?token=not-a-jwt", nil)
	if err == nil || resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a bad token, got %v / %v", resp, err)
	}

	if got := s.reg.Stats().Connections; got != 0 {
		t.Errorf("connections: got %d, want 0", got)
	}
}

func TestServeWS_RoomFlow(t *testing.T) {
	s := newTestServer(t, collab.Options{})
	pr, _ := s.prs.add()
	prID := pr.Hex()

	alice := s.dial(t, "u-alice", "alice")
	send(t, alice, collab.EventJoinRoom, map[string]string{"pullRequestId": prID})

	var parts presence.ParticipantsPayload
	if err := json.Unmarshal(expect(t, alice, presence.EventRoomParticipants).Data, &parts); err != nil {
		t.Fatalf("decode participants: %v", err)
	}
	if parts.Count != 1 {
		t.Errorf("alice participants: got %d, want 1", parts.Count)
	}

	bob := s.dial(t, "u-bob", "bob")
	send(t, bob, collab.EventJoinRoom, map[string]string{"pullRequestId": prID})
	if err := json.Unmarshal(expect(t, bob, presence.EventRoomParticipants).Data, &parts); err != nil {
		t.Fatalf("decode participants: %v", err)
	}
	if parts.Count != 2 {
		t.Errorf("bob participants: got %d, want 2", parts.Count)
	}

	var joined struct {
		UserID   string `json:"userId"`
		Username string `json:"username"`
	}
	if err := json.Unmarshal(expect(t, alice, presence.EventUserJoined).Data, &joined); err != nil {
		t.Fatalf("decode joined: %v", err)
	}
	if joined.UserID != "u-bob" || joined.Username != "bob" {
		t.Errorf("joined: got %+v", joined)
	}

	line := 12
	send(t, bob, collab.EventTypingStart, map[string]any{"pullRequestId": prID, "lineNumber": line})
	var typing presence.TypingPayload
	if err := json.Unmarshal(expect(t, alice, presence.EventUserTyping).Data, &typing); err != nil {
		t.Fatalf("decode typing: %v", err)
	}
	if typing.UserID != "u-bob" || typing.LineNumber == nil || *typing.LineNumber != line {
		t.Errorf("typing: got %+v", typing)
	}

	send(t, alice, collab.EventNewComment, map[string]any{
		"pullRequestId": prID, "comment": "looks good", "lineNumber": 3, "fileId": "main.go",
	})
	waitFor(t, "comment", func() bool {
		actors, _ := s.prs.calls()
		return len(actors) == 1
	})
	actors, inputs := s.prs.calls()
	if actors[0].ID != "u-alice" || actors[0].Name != "alice" {
		t.Errorf("actor: got %+v", actors[0])
	}
	if inputs[0].Text != "looks good" || inputs[0].FilePath != "main.go" || *inputs[0].LineNumber != 3 {
		t.Errorf("input: got %+v", inputs[0])
	}

	send(t, bob, collab.EventLeaveRoom, map[string]string{"pullRequestId": prID})
	expect(t, alice, presence.EventUserLeft)
}

func TestServeWS_ErrorsGoBackToSender(t *testing.T) {
	s := newTestServer(t, collab.Options{})
	ws := s.dial(t, "u-carol", "carol")

	send(t, ws, "dance", map[string]string{})
	var e struct {
		Event string `json:"event"`
		Code  string `json:"code"`
	}
	if err := json.Unmarshal(expect(t, ws, presence.EventError).Data, &e); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if e.Code != "unknown_event" || e.Event != "dance" {
		t.Errorf("error: got %+v", e)
	}

	send(t, ws, collab.EventJoinRoom, map[string]string{"pullRequestId": "nope"})
	if err := json.Unmarshal(expect(t, ws, presence.EventError).Data, &e); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if e.Code != "bad_request" {
		t.Errorf("code: got %q, want bad_request", e.Code)
	}

	send(t, ws, collab.EventNewComment, map[string]any{"pullRequestId": primitive.NewObjectID().Hex(), "comment": "  "})
	if err := json.Unmarshal(expect(t, ws, presence.EventError).Data, &e); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if e.Code != "validation" {
		t.Errorf("code: got %q, want validation", e.Code)
	}
}

func TestServeWS_RateLimited(t *testing.T) {
	s := newTestServer(t, collab.Options{EventsPerSecond: 2})
	ws := s.dial(t, "u-dave", "dave")

	for i := 0; i < 3; i++ {
		send(t, ws, collab.EventLeaveRoom, map[string]string{"pullRequestId": primitive.NewObjectID().Hex()})
	}
	var e struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(expect(t, ws, presence.EventError).Data, &e); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if e.Code != "rate_limited" {
		t.Errorf("code: got %q, want rate_limited", e.Code)
	}
}

func TestServeWS_CloseDisconnects(t *testing.T) {
	s := newTestServer(t, collab.Options{})
	ws := s.dial(t, "u-erin", "erin")

	waitFor(t, "connect", func() bool { return s.reg.IsOnline("u-erin") })
	_ = ws.Close()
	waitFor(t, "disconnect", func() bool { return !s.reg.IsOnline("u-erin") })
}

func TestServeWS_SecondConnectionReplacesFirst(t *testing.T) {
	s := newTestServer(t, collab.Options{})
	first := s.dial(t, "u-finn", "finn")
	waitFor(t, "connect", func() bool { return s.reg.IsOnline("u-finn") })

	_ = s.dial(t, "u-finn", "finn")

	_ = first.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		if _, _, err := first.ReadMessage(); err != nil {
			break
		}
	}
	if got := s.reg.Stats().Connections; got != 1 {
		t.Errorf("connections: got %d, want 1", got)
	}
}

func TestServeWS_JoinUsesStoredProject(t *testing.T) {
	s := newTestServer(t, collab.Options{})
	ws := s.dial(t, "u-dave", "dave")

	prID, projectID := s.prs.add()
	send(t, ws, collab.EventJoinRoom, map[string]string{
		"pullRequestId": prID.Hex(),
		"projectId":     primitive.NewObjectID().Hex(),
	})
	expect(t, ws, presence.EventRoomParticipants)

	got, ok := s.rooms.project(prID)
	if !ok {
		t.Fatal("room was not recorded")
	}
	if got != projectID {
		t.Errorf("room project: got %s, want the pull request's %s", got.Hex(), projectID.Hex())
	}
}

func TestServeWS_JoinUnknownPullRequest(t *testing.T) {
	s := newTestServer(t, collab.Options{})
	ws := s.dial(t, "u-erin", "erin")

	unknown := primitive.NewObjectID()
	send(t, ws, collab.EventJoinRoom, map[string]string{"pullRequestId": unknown.Hex()})

	var e struct {
		Event string `json:"event"`
		Code  string `json:"code"`
	}
	if err := json.Unmarshal(expect(t, ws, presence.EventError).Data, &e); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if e.Code != "not_found" || e.Event != collab.EventJoinRoom {
		t.Errorf("error: got %+v", e)
	}
	if _, ok := s.rooms.project(unknown); ok {
		t.Error("no room should be created for an unknown pull request")
	}
	if n := len(s.reg.Participants(unknown)); n != 0 {
		t.Errorf("participants: got %d, want 0", n)
	}
}
