// internal/app/features/collab/client.go
package collab

import (
	"time"

	"github.com/dalemusser/reviewhub/internal/app/system/auditlog"
	"github.com/dalemusser/reviewhub/internal/app/system/presence"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// client pumps one websocket. readPump owns reads and writePump owns writes;
// gorilla/websocket allows one of each concurrently.
type client struct {
	h     *Handler
	ws    *websocket.Conn
	conn  *presence.Conn
	actor auditlog.Actor
}

func (c *client) pongWait() time.Duration {
	return c.h.opts.PingInterval * 2
}

// readPump decodes inbound frames until the peer goes away, then drops the
// connection from the registry.
func (c *client) readPump() {
	defer func() {
		c.h.Presence.Disconnect(c.conn)
		c.h.Limiter.Forget(c.conn.ID)
		_ = c.ws.Close()
		c.h.Log.Info("websocket disconnected",
			zap.String("user_id", c.conn.UserID),
			zap.String("conn_id", c.conn.ID))
	}()

	c.ws.SetReadLimit(c.h.opts.ReadLimit)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.pongWait()))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.pongWait()))
	})

	for {
		var f frame
		if err := c.ws.ReadJSON(&f); err != nil {
			if isDecodeError(err) {
				c.sendError("", "bad_frame", "frame is not valid JSON")
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.h.Log.Debug("websocket read failed",
					zap.String("conn_id", c.conn.ID),
					zap.Error(err))
			}
			return
		}
		c.dispatch(f)
	}
}

// writePump drains the outbound queue and keeps the connection alive with
// pings. It closes the socket when the registry drops the connection.
func (c *client) writePump() {
	ticker := time.NewTicker(c.h.opts.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case ev := <-c.conn.Send():
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.h.opts.WriteWait))
			if err := c.ws.WriteJSON(ev); err != nil {
				c.h.Log.Warn("websocket write failed",
					zap.String("conn_id", c.conn.ID),
					zap.String("event", ev.Name),
					zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.h.opts.WriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.conn.Done():
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "connection replaced"),
				time.Now().Add(c.h.opts.WriteWait))
			return
		}
	}
}

func (c *client) sendError(event, code, message string) {
	c.h.Presence.Deliver(c.conn, presence.Event{Name: presence.EventError, Data: errorPayload{
		Event:   event,
		Code:    code,
		Message: message,
	}})
}
