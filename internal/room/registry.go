package room

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Registry owns the set of live rooms keyed by room code. It is created at
// process start and passed to the components that need it.
type Registry struct {
	rooms  map[string]*Room
	mu     sync.RWMutex
	logger *zap.Logger
}

// NewRegistry creates an empty room registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		rooms:  make(map[string]*Room),
		logger: logger,
	}
}

// CreateRoom creates a room under a freshly generated unique code.
func (reg *Registry) CreateRoom(gameID, setupID string) *Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	code := newCode()
	for _, exists := reg.rooms[code]; exists; _, exists = reg.rooms[code] {
		code = newCode()
	}

	r := NewRoom(code, gameID, setupID)
	reg.rooms[code] = r

	reg.logger.Info("room created",
		zap.String("room_code", code),
		zap.String("game_id", gameID),
		zap.String("setup_id", setupID),
	)
	return r
}

// CreateRoomWithCode registers a room under an explicit code, failing if the
// code is already in use. Used when rehydrating a room from a cold snapshot.
func (reg *Registry) CreateRoomWithCode(code, gameID, setupID string) (*Room, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if _, exists := reg.rooms[code]; exists {
		return nil, fmt.Errorf("room code %s already exists", code)
	}

	r := NewRoom(code, gameID, setupID)
	reg.rooms[code] = r

	reg.logger.Info("room created",
		zap.String("room_code", code),
		zap.String("game_id", gameID),
	)
	return r, nil
}

// GetRoom looks a room up by code.
func (reg *Registry) GetRoom(code string) (*Room, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	r, ok := reg.rooms[code]
	return r, ok
}

// DeleteRoom removes a room from the registry.
func (reg *Registry) DeleteRoom(code string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if _, ok := reg.rooms[code]; !ok {
		return
	}
	delete(reg.rooms, code)
	reg.logger.Info("room deleted", zap.String("room_code", code))
}

// SetConnection binds or clears a player's connection in a room. A nil
// connection marks the player disconnected but keeps the player record.
func (reg *Registry) SetConnection(code, playerID string, conn Connection) error {
	r, ok := reg.GetRoom(code)
	if !ok {
		return fmt.Errorf("room %s not found", code)
	}
	if conn == nil {
		r.ClearConnection(playerID, nil)
		return nil
	}
	_, err := r.SetConnection(playerID, conn)
	return err
}

// CountPlayers returns the seated player count for a room, zero if the room
// does not exist.
func (reg *Registry) CountPlayers(code string) int {
	if r, ok := reg.GetRoom(code); ok {
		return r.CountPlayers()
	}
	return 0
}

// CountConnected returns the live connection count for a room.
func (reg *Registry) CountConnected(code string) int {
	if r, ok := reg.GetRoom(code); ok {
		return r.CountConnected()
	}
	return 0
}

// Rooms returns all registered rooms.
func (reg *Registry) Rooms() []*Room {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	rooms := make([]*Room, 0, len(reg.rooms))
	for _, r := range reg.rooms {
		rooms = append(rooms, r)
	}
	return rooms
}

// CleanupAbandonedRooms deletes rooms whose players have all been
// disconnected for longer than ttl. Runs until the context is canceled;
// started as a goroutine from main.
func (reg *Registry) CleanupAbandonedRooms(ctx context.Context, interval, ttl time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, r := range reg.Rooms() {
				idleSince, idle := r.IdleSince()
				if idle && time.Since(idleSince) > ttl {
					reg.logger.Info("garbage-collecting abandoned room",
						zap.String("room_code", r.Code),
						zap.Duration("idle", time.Since(idleSince)),
					)
					reg.DeleteRoom(r.Code)
				}
			}
		}
	}
}
