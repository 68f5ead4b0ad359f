package room

import (
	"fmt"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rayberirondelsol/card-game-engine-sub000/internal/board"
)

// Status represents the lifecycle state of a room.
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusActive   Status = "active"
	StatusFinished Status = "finished"
)

// MaxPlayers is the seat cap per room.
const MaxPlayers = 6

// Palette is the fixed set of player colors; each color is unique per room
// and ties a player to their zone.
var Palette = []string{"red", "blue", "green", "yellow", "purple", "orange"}

// Connection is one live transport binding for a player. Implementations
// must make Send non-blocking: a message that cannot be delivered right away
// is dropped, never queued, and the welcome snapshot on reconnect is the
// recovery path.
type Connection interface {
	PlayerID() string
	Send(msg []byte) bool
	Close(reason string)
}

// Player is a seat holder in a room. Players outlive individual connections;
// only an explicit leave removes them.
type Player struct {
	ID            string
	Name          string
	Color         string
	Seat          int
	IsHost        bool
	IsConnected   bool
	HandCardCount int
}

// Room is one authoritative play session. All board mutation runs under the
// room's lock; callers that take Lock directly must not call the
// self-locking methods until they release it.
type Room struct {
	ID         string
	Code       string
	GameID     string
	SetupID    string
	CreateTime time.Time

	// Guarded by mu.
	Status         Status
	HostPlayerID   string
	Zones          []board.Zone
	Board          *board.State
	Players        map[string]*Player
	SeatOrder      []string
	LastSnapshotAt time.Time

	conns           map[string]Connection
	lastConnectedAt time.Time
	mu              sync.RWMutex
}

// NewRoom creates a waiting room with an empty board.
func NewRoom(code, gameID, setupID string) *Room {
	return &Room{
		ID:              uuid.NewString(),
		Code:            code,
		GameID:          gameID,
		SetupID:         setupID,
		CreateTime:      time.Now(),
		Status:          StatusWaiting,
		Board:           board.NewState(),
		Players:         make(map[string]*Player),
		SeatOrder:       make([]string, 0, MaxPlayers),
		conns:           make(map[string]Connection),
		lastConnectedAt: time.Now(),
	}
}

// Lock acquires the room's write lock for a multi-step mutation.
func (r *Room) Lock() { r.mu.Lock() }

// Unlock releases the room's write lock.
func (r *Room) Unlock() { r.mu.Unlock() }

// Join validates and seats a new player. The first player to join becomes
// host and always occupies seat 1.
func (r *Room) Join(name, color string) (*Player, error) {
	if n := utf8.RuneCountInString(name); n < 2 || n > 20 {
		return nil, fmt.Errorf("display name must be 2-20 characters")
	}
	if !validColor(color) {
		return nil, fmt.Errorf("unknown color %q", color)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.Players) > 0 && r.Status != StatusWaiting {
		return nil, fmt.Errorf("room is not accepting players")
	}
	if len(r.Players) >= MaxPlayers {
		return nil, fmt.Errorf("room is full")
	}
	for _, p := range r.Players {
		if p.Color == color {
			return nil, fmt.Errorf("color %s already taken", color)
		}
	}

	player := &Player{
		ID:    uuid.NewString(),
		Name:  name,
		Color: color,
		Seat:  r.nextSeatLocked(),
	}
	if len(r.Players) == 0 {
		player.IsHost = true
		r.HostPlayerID = player.ID
	}

	r.Players[player.ID] = player
	r.SeatOrder = append(r.SeatOrder, player.ID)
	return player, nil
}

func (r *Room) nextSeatLocked() int {
	taken := make(map[int]bool, len(r.Players))
	for _, p := range r.Players {
		taken[p.Seat] = true
	}
	for seat := 1; seat <= MaxPlayers; seat++ {
		if !taken[seat] {
			return seat
		}
	}
	return len(r.Players) + 1
}

func validColor(color string) bool {
	for _, c := range Palette {
		if c == color {
			return true
		}
	}
	return false
}

// RemovePlayer permanently removes a player and their connection. If the
// departing player was host, the first remaining connected player (falling
// back to any remaining player) is promoted immediately. Returns the removed
// player, the connection that was still bound (so the caller can close it
// outside the lock), the new host id if one was promoted, and whether the
// room is now empty.
func (r *Room) RemovePlayer(playerID string) (*Player, Connection, string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	player, ok := r.Players[playerID]
	if !ok {
		return nil, nil, "", len(r.Players) == 0
	}

	conn := r.conns[playerID]
	delete(r.Players, playerID)
	delete(r.conns, playerID)
	for i, id := range r.SeatOrder {
		if id == playerID {
			r.SeatOrder = append(r.SeatOrder[:i], r.SeatOrder[i+1:]...)
			break
		}
	}

	newHost := ""
	if r.HostPlayerID == playerID {
		r.HostPlayerID = ""
		if next := r.promoteLocked(); next != nil {
			newHost = next.ID
		}
	}

	return player, conn, newHost, len(r.Players) == 0
}

// promoteLocked picks the first connected player in seat order, or the first
// seated player if nobody is connected, and makes them host.
func (r *Room) promoteLocked() *Player {
	var fallback *Player
	for _, id := range r.SeatOrder {
		p, ok := r.Players[id]
		if !ok {
			continue
		}
		if fallback == nil {
			fallback = p
		}
		if p.IsConnected {
			fallback = p
			break
		}
	}
	if fallback == nil {
		return nil
	}
	for _, p := range r.Players {
		p.IsHost = false
	}
	fallback.IsHost = true
	r.HostPlayerID = fallback.ID
	return fallback
}

// GetPlayer returns the player with the given id.
func (r *Room) GetPlayer(playerID string) (*Player, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.Players[playerID]
	return p, ok
}

// PlayerList returns copies of all players in seat order.
func (r *Room) PlayerList() []Player {
	r.mu.RLock()
	defer r.mu.RUnlock()

	players := make([]Player, 0, len(r.SeatOrder))
	for _, id := range r.SeatOrder {
		if p, ok := r.Players[id]; ok {
			players = append(players, *p)
		}
	}
	return players
}

// SetConnection binds a live connection to a player and marks them
// connected. A previous binding for the same player is returned so the
// caller can close it; a new connection always replaces the old one.
func (r *Room) SetConnection(playerID string, conn Connection) (Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	player, ok := r.Players[playerID]
	if !ok {
		return nil, fmt.Errorf("player %s is not a member of room %s", playerID, r.Code)
	}

	old := r.conns[playerID]
	r.conns[playerID] = conn
	player.IsConnected = true
	r.lastConnectedAt = time.Now()
	return old, nil
}

// ClearConnection unbinds a connection, keeping the player record. The clear
// is skipped when the player has already been rebound to a different
// connection. Reports whether the binding was cleared.
func (r *Room) ClearConnection(playerID string, conn Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.conns[playerID]
	if !ok || (conn != nil && current != conn) {
		return false
	}

	delete(r.conns, playerID)
	if player, ok := r.Players[playerID]; ok {
		player.IsConnected = false
	}
	r.lastConnectedAt = time.Now()
	return true
}

// CountPlayers returns the number of seated players.
func (r *Room) CountPlayers() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.Players)
}

// CountConnected returns the number of players with a live connection.
func (r *Room) CountConnected() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// IdleSince reports the last time the room had connection activity; used by
// the abandoned-room janitor.
func (r *Room) IdleSince() (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastConnectedAt, len(r.conns) == 0
}

// Connections returns a copy of the current connection set.
func (r *Room) Connections() []Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]Connection, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	return conns
}

// Broadcast fans a message out to every live connection except the excluded
// player. The connection set is copied out before sending so a slow socket
// never stalls the room's lock.
func (r *Room) Broadcast(msg []byte, excludePlayerID string) {
	r.mu.RLock()
	conns := make([]Connection, 0, len(r.conns))
	for id, c := range r.conns {
		if id == excludePlayerID {
			continue
		}
		conns = append(conns, c)
	}
	r.mu.RUnlock()

	for _, c := range conns {
		c.Send(msg)
	}
}

// SendTo unicasts a message to one player. A missing or dead connection is
// a silent no-op; the player catches up via the welcome snapshot on
// reconnect.
func (r *Room) SendTo(playerID string, msg []byte) bool {
	r.mu.RLock()
	conn, ok := r.conns[playerID]
	r.mu.RUnlock()

	if !ok {
		return false
	}
	return conn.Send(msg)
}

// Restore repopulates a freshly created room from a persisted snapshot.
// Every restored player starts disconnected; they rebind over the live
// channel with their original player id. The host is taken from the player
// records.
func (r *Room) Restore(status Status, players []Player, zones []board.Zone, b *board.State) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Status = status
	r.Zones = zones
	if b != nil {
		r.Board = b
	}

	sorted := append([]Player(nil), players...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Seat < sorted[j].Seat })

	r.Players = make(map[string]*Player, len(sorted))
	r.SeatOrder = r.SeatOrder[:0]
	r.HostPlayerID = ""
	for i := range sorted {
		p := sorted[i]
		p.IsConnected = false
		r.Players[p.ID] = &p
		r.SeatOrder = append(r.SeatOrder, p.ID)
		if p.IsHost {
			r.HostPlayerID = p.ID
		}
	}
}

// Start loads the setup layout into the board, transitions the room to
// active, and returns an error if the caller is not the current host or the
// room already started.
func (r *Room) Start(playerID string, zones []board.Zone, layout *board.State) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Status != StatusWaiting {
		return fmt.Errorf("room already started")
	}
	if r.HostPlayerID != playerID {
		return fmt.Errorf("only the host may start the room")
	}

	if zones != nil {
		r.Zones = zones
	}
	if layout != nil {
		r.Board = layout
	}
	if r.Board == nil {
		r.Board = board.NewState()
	}
	r.Status = StatusActive
	return nil
}
