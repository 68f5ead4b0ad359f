package session

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rayberirondelsol/card-game-engine-sub000/internal/protocol"
	"github.com/rayberirondelsol/card-game-engine-sub000/internal/room"
	"go.uber.org/zap"
)

const (
	// writeWait bounds a single frame write to a slow socket.
	writeWait = 10 * time.Second

	// maxFrameSize caps inbound frames; board actions are small.
	maxFrameSize = 64 * 1024

	// sendBuffer is the per-connection outbound queue. A full buffer means
	// the client is too slow and the frame is dropped; the welcome snapshot
	// on reconnect is the recovery path.
	sendBuffer = 256
)

// client is one live websocket binding of a player to a room. It implements
// room.Connection.
type client struct {
	manager  *Manager
	room     *room.Room
	playerID string
	conn     *websocket.Conn

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	logger    *zap.Logger
}

func newClient(m *Manager, r *room.Room, playerID string, conn *websocket.Conn) *client {
	return &client{
		manager:  m,
		room:     r,
		playerID: playerID,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		done:     make(chan struct{}),
		logger: m.logger.With(
			zap.String("room_code", r.Code),
			zap.String("player_id", playerID),
		),
	}
}

// PlayerID implements room.Connection.
func (c *client) PlayerID() string { return c.playerID }

// Send queues a frame without blocking. Frames for a closed or saturated
// connection are dropped rather than queued further.
func (c *client) Send(msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// Close terminates the transport. Safe to call from any goroutine and more
// than once.
func (c *client) Close(reason string) {
	c.closeOnce.Do(func() {
		close(c.done)
		deadline := time.Now().Add(writeWait)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, deadline)
		_ = c.conn.Close()
	})
}

// readPump relays inbound frames to the action processor until the
// connection dies. Malformed frames are dropped without ending the session.
// The read deadline is refreshed by pong responses; one missed heartbeat
// interval kills the connection.
func (c *client) readPump() {
	defer c.teardown()

	pongWait := c.manager.heartbeat * 2
	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("connection read failed", zap.Error(err))
			}
			return
		}

		env, err := protocol.Decode(raw)
		if err != nil || env.Type == "" {
			c.logger.Debug("dropping malformed frame", zap.Error(err))
			continue
		}

		c.manager.processor.Apply(c.room, c.playerID, env)
	}
}

// writePump drains the send queue and emits heartbeat pings.
func (c *client) writePump() {
	ticker := time.NewTicker(c.manager.heartbeat)
	defer func() {
		ticker.Stop()
		c.Close("")
	}()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// teardown unbinds the connection and announces the disconnect. If the
// departing player was host, the migration grace timer starts.
func (c *client) teardown() {
	c.Close("")

	// A replacement connection may already hold the binding; only the
	// current holder unbinds.
	if !c.room.ClearConnection(c.playerID, c) {
		return
	}

	c.logger.Info("player disconnected")

	wasHost := false
	var departed *room.Player
	c.room.Lock()
	if p, ok := c.room.Players[c.playerID]; ok {
		copied := *p
		departed = &copied
		wasHost = c.room.HostPlayerID == c.playerID
	}
	c.room.Unlock()

	if departed == nil {
		return
	}

	if msg, err := protocol.Encode(protocol.TypePlayerDisconnected, protocol.PlayerEvent{
		Player: playerInfo(*departed),
	}); err == nil {
		c.room.Broadcast(msg, c.playerID)
	}

	if wasHost {
		c.manager.supervisor.Schedule(c.room.Code)
	}
}
