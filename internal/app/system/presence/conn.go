// internal/app/system/presence/conn.go
package presence

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrDeliveryFailed wraps every per-peer send failure. It is logged and
	// never returned to the originator of a broadcast.
	ErrDeliveryFailed = errors.New("delivery failed")
	errQueueFull      = fmt.Errorf("%w: send queue full", ErrDeliveryFailed)
	errConnClosed     = fmt.Errorf("%w: connection closed", ErrDeliveryFailed)
)

// Event is one server-to-client frame.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data"`
}

// Conn is the registry's handle on one live client connection. The
// transport drains Send and exits when Done is closed.
type Conn struct {
	ID          string
	UserID      string
	Username    string
	ConnectedAt time.Time

	send      chan Event
	done      chan struct{}
	closeOnce sync.Once
}

func newConn(userID, username string, buffer int) *Conn {
	return &Conn{
		ID:          uuid.NewString(),
		UserID:      userID,
		Username:    username,
		ConnectedAt: time.Now().UTC(),
		send:        make(chan Event, buffer),
		done:        make(chan struct{}),
	}
}

// Send is the outbound queue.
func (c *Conn) Send() <-chan Event { return c.send }

// Done is closed when the registry drops the connection.
func (c *Conn) Done() <-chan struct{} { return c.done }

func (c *Conn) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// enqueue never blocks.
func (c *Conn) enqueue(ev Event) error {
	select {
	case <-c.done:
		return errConnClosed
	default:
	}
	select {
	case c.send <- ev:
		return nil
	default:
		return errQueueFull
	}
}

func (c *Conn) participant() Participant {
	return Participant{UserID: c.UserID, Username: c.Username}
}
