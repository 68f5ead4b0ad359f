package session

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rayberirondelsol/card-game-engine-sub000/internal/engine"
	"github.com/rayberirondelsol/card-game-engine-sub000/internal/protocol"
	"github.com/rayberirondelsol/card-game-engine-sub000/internal/room"
	"go.uber.org/zap"
)

// Close codes sent when a connection is rejected at bind time.
const (
	CloseRoomNotFound  = 4004
	ClosePlayerUnknown = 4001
)

// Manager accepts live connections, binds them to a (room, player) pair,
// sends the welcome snapshot, and relays inbound frames to the action
// processor.
type Manager struct {
	registry   *room.Registry
	processor  *engine.Processor
	supervisor *room.HostSupervisor
	heartbeat  time.Duration
	logger     *zap.Logger
	upgrader   websocket.Upgrader
}

// NewManager creates a session manager. heartbeat is the ping interval; a
// connection missing one interval's worth of pongs is terminated.
func NewManager(registry *room.Registry, processor *engine.Processor, supervisor *room.HostSupervisor, heartbeat time.Duration, logger *zap.Logger) *Manager {
	return &Manager{
		registry:   registry,
		processor:  processor,
		supervisor: supervisor,
		heartbeat:  heartbeat,
		logger:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Browser clients connect from the game's own origin; the
			// lifecycle API already gates membership by player id.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeWS upgrades an HTTP request addressed by ?room=CODE&player=ID into a
// live session. Unknown rooms and non-member players are rejected with
// distinguishing close codes after the upgrade so browser clients can tell
// the cases apart.
func (m *Manager) ServeWS(w http.ResponseWriter, r *http.Request) {
	roomCode := r.URL.Query().Get("room")
	playerID := r.URL.Query().Get("player")

	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	rm, ok := m.registry.GetRoom(roomCode)
	if !ok {
		m.reject(conn, CloseRoomNotFound, "room not found")
		return
	}
	if _, ok := rm.GetPlayer(playerID); !ok {
		m.reject(conn, ClosePlayerUnknown, "player is not a member of this room")
		return
	}

	c := newClient(m, rm, playerID, conn)

	// A fresh connection for an already-connected player replaces the old
	// binding; the stale transport is closed out from under it.
	old, err := rm.SetConnection(playerID, c)
	if err != nil {
		m.reject(conn, ClosePlayerUnknown, "player is not a member of this room")
		return
	}
	if old != nil {
		old.Close("replaced by a newer connection")
	}

	m.logger.Info("player connected",
		zap.String("room_code", roomCode),
		zap.String("player_id", playerID),
	)

	go c.writePump()

	m.announceConnected(rm, playerID)
	m.sendWelcome(rm, c)
	m.supervisor.Reevaluate(rm, playerID)

	go c.readPump()
}

func (m *Manager) reject(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(writeWait)
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
	_ = conn.Close()
}

func (m *Manager) announceConnected(rm *room.Room, playerID string) {
	player, ok := rm.GetPlayer(playerID)
	if !ok {
		return
	}
	msg, err := protocol.Encode(protocol.TypePlayerConnected, protocol.PlayerEvent{
		Player: playerInfo(*player),
	})
	if err != nil {
		return
	}
	rm.Broadcast(msg, playerID)
}

// sendWelcome unicasts the full room snapshot to a freshly bound
// connection. This snapshot is what makes late joiners and reconnecting
// players consistent; no message history is ever replayed.
func (m *Manager) sendWelcome(rm *room.Room, c *client) {
	rm.Lock()
	welcome := protocol.Welcome{
		RoomCode:     rm.Code,
		GameID:       rm.GameID,
		Status:       string(rm.Status),
		HostPlayerID: rm.HostPlayerID,
		Zones:        rm.Zones,
		Board:        rm.Board,
	}
	players := make([]room.Player, 0, len(rm.SeatOrder))
	for _, id := range rm.SeatOrder {
		if p, ok := rm.Players[id]; ok {
			players = append(players, *p)
		}
	}
	welcome.Players = engine.PlayerInfos(players)
	msg, err := protocol.Encode(protocol.TypeWelcome, welcome)
	rm.Unlock()

	if err != nil {
		m.logger.Error("failed to encode welcome snapshot",
			zap.String("room_code", rm.Code),
			zap.Error(err),
		)
		return
	}
	c.Send(msg)
}

// CloseAll terminates every live connection; used during shutdown.
func (m *Manager) CloseAll() {
	for _, rm := range m.registry.Rooms() {
		for _, conn := range rm.Connections() {
			conn.Close("server shutting down")
		}
	}
}

func playerInfo(p room.Player) protocol.PlayerInfo {
	return protocol.PlayerInfo{
		ID:            p.ID,
		Name:          p.Name,
		Color:         p.Color,
		Seat:          p.Seat,
		IsHost:        p.IsHost,
		IsConnected:   p.IsConnected,
		HandCardCount: p.HandCardCount,
	}
}
