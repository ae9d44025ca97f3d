// internal/app/system/presence/registry.go
// Package presence tracks which users are connected and which pull-request
// rooms they are viewing, and fans events out to them. State is local to the
// process; durable room membership lives in the rooms store.
package presence

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/dalemusser/reviewhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Server-to-client event names.
const (
	EventUserJoined        = "user-joined-room"
	EventUserLeft          = "user-left-room"
	EventRoomParticipants  = "room-participants"
	EventCommentAdded      = "comment-added"
	EventCommentUpdated    = "comment-updated"
	EventCommentDeleted    = "comment-deleted"
	EventUserTyping        = "user-typing"
	EventUserStoppedTyping = "user-stopped-typing"
	EventNotification      = "notification"
	EventStatusChanged     = "status-changed"
	EventError             = "error"
)

// DefaultSendBuffer is the outbound queue length per connection.
const DefaultSendBuffer = 64

// ErrNotConnected is returned by Join for a user with no live connection.
var ErrNotConnected = errors.New("user is not connected")

// RoomStore persists room membership.
type RoomStore interface {
	AddParticipant(ctx context.Context, prID, projectID primitive.ObjectID, userID string) (models.Room, error)
}

// Participant identifies a live room member.
type Participant struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// ParticipantsPayload is sent to a user after they join.
type ParticipantsPayload struct {
	PullRequestID string        `json:"pullRequestId"`
	Count         int           `json:"count"`
	Participants  []Participant `json:"participants"`
}

// CommentPayload is the data of the comment-* events.
type CommentPayload struct {
	PullRequestID string      `json:"pullRequestId"`
	Comment       any         `json:"comment"`
	LineNumber    *int        `json:"lineNumber,omitempty"`
	FilePath      string      `json:"filePath,omitempty"`
	Author        Participant `json:"author"`
}

// TypingPayload is the data of the typing events.
type TypingPayload struct {
	PullRequestID string `json:"pullRequestId"`
	UserID        string `json:"userId"`
	Username      string `json:"username"`
	LineNumber    *int   `json:"lineNumber,omitempty"`
}

type presencePayload struct {
	PullRequestID string `json:"pullRequestId"`
	UserID        string `json:"userId"`
	Username      string `json:"username"`
}

// Options configures a Registry.
type Options struct {
	SendBuffer int
}

// Registry is safe for concurrent use. Mutations take the write lock; fan-out
// snapshots its targets under the read lock and enqueues after releasing it.
type Registry struct {
	store RoomStore
	log   *zap.Logger
	buf   int

	mu       sync.RWMutex
	conns    map[string]*Conn                           // userID -> live connection
	rooms    map[primitive.ObjectID]map[string]*Conn    // pull request -> userID -> conn
	memberOf map[string]map[primitive.ObjectID]struct{} // userID -> rooms
	closed   bool

	// wg counts pending disconnect notifications. Add happens under mu so
	// it can never race the Wait in Close.
	wg sync.WaitGroup
}

// New creates an empty registry.
func New(store RoomStore, logger *zap.Logger, opts Options) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	buf := opts.SendBuffer
	if buf <= 0 {
		buf = DefaultSendBuffer
	}
	return &Registry{
		store:    store,
		log:      logger,
		buf:      buf,
		conns:    make(map[string]*Conn),
		rooms:    make(map[primitive.ObjectID]map[string]*Conn),
		memberOf: make(map[string]map[primitive.ObjectID]struct{}),
	}
}

// Connect registers a new connection for userID. An existing connection for
// the same user is dropped from every room and closed.
func (r *Registry) Connect(userID, username string) *Conn {
	c := newConn(userID, username, r.buf)

	r.mu.Lock()
	old := r.conns[userID]
	var left map[primitive.ObjectID][]*Conn
	notify := false
	if old != nil {
		left = r.removeLocked(old)
		notify = r.trackLocked(left)
	}
	r.conns[userID] = c
	r.mu.Unlock()

	if old != nil {
		old.close()
		if notify {
			r.notifyLeft(old, left)
		}
		r.log.Info("connection replaced",
			zap.String("user_id", userID),
			zap.String("old_conn_id", old.ID),
			zap.String("conn_id", c.ID))
	}
	return c
}

// Join records userID in the pull request's room, durably first and then in
// memory. Peers get user-joined-room only if the user was not already live in
// the room; the caller always gets room-participants. The returned list is
// the live participants after the join.
func (r *Registry) Join(ctx context.Context, userID string, prID, projectID primitive.ObjectID) ([]Participant, error) {
	if r.store != nil {
		if _, err := r.store.AddParticipant(ctx, prID, projectID, userID); err != nil {
			return nil, err
		}
	}

	r.mu.Lock()
	c := r.conns[userID]
	if c == nil {
		r.mu.Unlock()
		return nil, ErrNotConnected
	}
	members := r.rooms[prID]
	if members == nil {
		members = make(map[string]*Conn)
		r.rooms[prID] = members
	}
	_, already := members[userID]
	members[userID] = c
	if r.memberOf[userID] == nil {
		r.memberOf[userID] = make(map[primitive.ObjectID]struct{})
	}
	r.memberOf[userID][prID] = struct{}{}

	peers := peersOf(members, userID)
	participants := participantsOf(members)
	r.mu.Unlock()

	if !already {
		r.fanOut(peers, Event{Name: EventUserJoined, Data: presencePayload{
			PullRequestID: prID.Hex(), UserID: c.UserID, Username: c.Username,
		}})
	}
	r.deliver(c, Event{Name: EventRoomParticipants, Data: ParticipantsPayload{
		PullRequestID: prID.Hex(),
		Count:         len(participants),
		Participants:  participants,
	}})
	return participants, nil
}

// Leave removes userID from the room in memory and tells the remaining
// members. The durable room record keeps the user. Leaving a room with no
// live members, including one that was never joined, is a no-op: no room
// record is created, since a leave carries no project id to create it with.
// Rooms are created durably only by Join.
func (r *Registry) Leave(userID string, prID primitive.ObjectID) {
	r.mu.Lock()
	members := r.rooms[prID]
	c, ok := members[userID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(members, userID)
	if len(members) == 0 {
		delete(r.rooms, prID)
	}
	if rooms := r.memberOf[userID]; rooms != nil {
		delete(rooms, prID)
		if len(rooms) == 0 {
			delete(r.memberOf, userID)
		}
	}
	peers := peersOf(members, userID)
	r.mu.Unlock()

	r.fanOut(peers, Event{Name: EventUserLeft, Data: presencePayload{
		PullRequestID: prID.Hex(), UserID: c.UserID, Username: c.Username,
	}})
}

// Disconnect drops c from every room. Peers are told asynchronously. A
// connection that was already replaced is ignored.
func (r *Registry) Disconnect(c *Conn) {
	r.mu.Lock()
	if r.conns[c.UserID] != c {
		r.mu.Unlock()
		c.close()
		return
	}
	left := r.removeLocked(c)
	notify := r.trackLocked(left)
	r.mu.Unlock()

	c.close()
	if notify {
		r.notifyLeft(c, left)
	}
}

// removeLocked drops c from all maps and returns, per room, the peers that
// remain. Caller holds the write lock.
func (r *Registry) removeLocked(c *Conn) map[primitive.ObjectID][]*Conn {
	left := make(map[primitive.ObjectID][]*Conn)
	for prID := range r.memberOf[c.UserID] {
		members := r.rooms[prID]
		if members[c.UserID] != c {
			continue
		}
		delete(members, c.UserID)
		if len(members) == 0 {
			delete(r.rooms, prID)
			continue
		}
		left[prID] = peersOf(members, c.UserID)
	}
	delete(r.memberOf, c.UserID)
	delete(r.conns, c.UserID)
	return left
}

// trackLocked reserves a wait-group slot for notifying the peers in left.
// Caller holds the write lock. Nothing is reserved once the registry is
// closed.
func (r *Registry) trackLocked(left map[primitive.ObjectID][]*Conn) bool {
	if len(left) == 0 || r.closed {
		return false
	}
	r.wg.Add(1)
	return true
}

// notifyLeft tells the peers in left that c is gone. The caller must have
// reserved a slot with trackLocked.
func (r *Registry) notifyLeft(c *Conn, left map[primitive.ObjectID][]*Conn) {
	go func() {
		defer r.wg.Done()
		for prID, peers := range left {
			r.fanOut(peers, Event{Name: EventUserLeft, Data: presencePayload{
				PullRequestID: prID.Hex(), UserID: c.UserID, Username: c.Username,
			}})
		}
	}()
}

// BroadcastComment sends a comment event to everyone in the room except
// the author. It returns the number of peers the event was queued for.
// Broadcasts touch only live members; like Leave, they never create a room
// record.
func (r *Registry) BroadcastComment(prID primitive.ObjectID, event string, p CommentPayload) int {
	p.PullRequestID = prID.Hex()
	return r.fanOut(r.peers(prID, p.Author.UserID), Event{Name: event, Data: p})
}

// BroadcastTyping relays a typing hint to the other room members.
func (r *Registry) BroadcastTyping(prID primitive.ObjectID, userID, username string, line *int, typing bool) int {
	name := EventUserStoppedTyping
	if typing {
		name = EventUserTyping
	}
	return r.fanOut(r.peers(prID, userID), Event{Name: name, Data: TypingPayload{
		PullRequestID: prID.Hex(), UserID: userID, Username: username, LineNumber: line,
	}})
}

// BroadcastRoom sends ev to every member of the room.
func (r *Registry) BroadcastRoom(prID primitive.ObjectID, ev Event) int {
	return r.fanOut(r.peers(prID, ""), ev)
}

// SendToUser queues ev for userID's live connection. It reports whether the
// user was connected and the event was queued.
func (r *Registry) SendToUser(userID string, ev Event) bool {
	r.mu.RLock()
	c := r.conns[userID]
	r.mu.RUnlock()
	if c == nil {
		return false
	}
	return r.deliver(c, ev)
}

// Deliver queues ev for c alone, e.g. an error frame for the sender.
func (r *Registry) Deliver(c *Conn, ev Event) bool {
	return r.deliver(c, ev)
}

// Participants returns the live members of a room ordered by user id.
func (r *Registry) Participants(prID primitive.ObjectID) []Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return participantsOf(r.rooms[prID])
}

// IsOnline reports whether userID has a live connection.
func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[userID]
	return ok
}

// LiveRooms returns the pull requests with at least one live member.
func (r *Registry) LiveRooms() []primitive.ObjectID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]primitive.ObjectID, 0, len(r.rooms))
	for id := range r.rooms {
		out = append(out, id)
	}
	return out
}

// Stats is a point-in-time count of live state.
type Stats struct {
	Connections int `json:"connections"`
	Rooms       int `json:"rooms"`
}

func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Stats{Connections: len(r.conns), Rooms: len(r.rooms)}
}

// Close drops every connection and waits for pending disconnect
// notifications.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	conns := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.conns = make(map[string]*Conn)
	r.rooms = make(map[primitive.ObjectID]map[string]*Conn)
	r.memberOf = make(map[string]map[primitive.ObjectID]struct{})
	r.mu.Unlock()

	for _, c := range conns {
		c.close()
	}
	r.wg.Wait()
}

// Wait blocks until asynchronous disconnect notifications have been sent.
func (r *Registry) Wait() { r.wg.Wait() }

func (r *Registry) peers(prID primitive.ObjectID, except string) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return peersOf(r.rooms[prID], except)
}

// fanOut queues ev for each target independently. A failed target is logged
// and skipped.
func (r *Registry) fanOut(targets []*Conn, ev Event) int {
	n := 0
	for _, c := range targets {
		if r.deliver(c, ev) {
			n++
		}
	}
	return n
}

func (r *Registry) deliver(c *Conn, ev Event) bool {
	if err := c.enqueue(ev); err != nil {
		r.log.Warn("presence delivery failed",
			zap.String("event", ev.Name),
			zap.String("user_id", c.UserID),
			zap.String("conn_id", c.ID),
			zap.Error(err))
		return false
	}
	return true
}

func peersOf(members map[string]*Conn, except string) []*Conn {
	out := make([]*Conn, 0, len(members))
	for uid, c := range members {
		if uid != except {
			out = append(out, c)
		}
	}
	return out
}

func participantsOf(members map[string]*Conn) []Participant {
	out := make([]Participant, 0, len(members))
	for _, c := range members {
		out = append(out, c.participant())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}
