package snapshot

import (
	"context"
	"time"

	"github.com/rayberirondelsol/card-game-engine-sub000/internal/board"
	"github.com/rayberirondelsol/card-game-engine-sub000/internal/repository"
	"github.com/rayberirondelsol/card-game-engine-sub000/internal/room"
	"go.uber.org/zap"
)

// Store persists room snapshots. *repository.SnapshotRepository implements it.
type Store interface {
	Save(ctx context.Context, snap repository.RoomSnapshot) error
}

// Scheduler periodically persists the board of every active room so a
// restarted server can rehydrate rooms instead of losing tables mid-game.
type Scheduler struct {
	registry *room.Registry
	store    Store
	interval time.Duration
	logger   *zap.Logger
}

// NewScheduler creates a snapshot scheduler.
func NewScheduler(registry *room.Registry, store Store, interval time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		registry: registry,
		store:    store,
		interval: interval,
		logger:   logger,
	}
}

// Run snapshots all active rooms on every tick until the context is
// cancelled. A failed save is logged and retried on the next tick; it never
// interrupts play.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SnapshotAll(ctx)
		}
	}
}

// SnapshotAll persists every active room once.
func (s *Scheduler) SnapshotAll(ctx context.Context) {
	for _, r := range s.registry.Rooms() {
		s.SnapshotRoom(ctx, r)
	}
}

// SnapshotRoom persists one room if it is active. The board is deep-copied
// under the room's lock; the database write happens outside it.
func (s *Scheduler) SnapshotRoom(ctx context.Context, r *room.Room) {
	r.Lock()
	if r.Status != room.StatusActive {
		r.Unlock()
		return
	}
	players := make([]room.Player, 0, len(r.SeatOrder))
	for _, id := range r.SeatOrder {
		if p, ok := r.Players[id]; ok {
			players = append(players, *p)
		}
	}
	snap := repository.RoomSnapshot{
		RoomCode: r.Code,
		RoomID:   r.ID,
		GameID:   r.GameID,
		Status:   string(r.Status),
		Players:  players,
		Zones:    append([]board.Zone(nil), r.Zones...),
		Board:    r.Board.Clone(),
	}
	r.LastSnapshotAt = time.Now()
	r.Unlock()

	if err := s.store.Save(ctx, snap); err != nil {
		s.logger.Warn("failed to persist room snapshot",
			zap.String("room_code", snap.RoomCode),
			zap.Error(err),
		)
	}
}

// Drain takes a final snapshot of every active room; called during graceful
// shutdown after connections are closed.
func (s *Scheduler) Drain(ctx context.Context) {
	s.SnapshotAll(ctx)
}
