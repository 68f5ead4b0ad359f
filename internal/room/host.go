package room

import (
	"sync"
	"time"

	"github.com/rayberirondelsol/card-game-engine-sub000/internal/protocol"
	"go.uber.org/zap"
)

// HostSupervisor owns the per-room grace timers that drive host migration.
// When a host disconnects a timer starts; if the host is still gone at the
// deadline the first connected player in seat order is promoted. Timers are
// tracked by room code so deleting a room cannot leak one.
type HostSupervisor struct {
	registry *Registry
	grace    time.Duration
	logger   *zap.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewHostSupervisor creates a supervisor with the given grace window.
func NewHostSupervisor(registry *Registry, grace time.Duration, logger *zap.Logger) *HostSupervisor {
	return &HostSupervisor{
		registry: registry,
		grace:    grace,
		logger:   logger,
		timers:   make(map[string]*time.Timer),
	}
}

// Schedule starts (or restarts) the migration timer for a room.
func (h *HostSupervisor) Schedule(code string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if t, ok := h.timers[code]; ok {
		t.Stop()
	}
	h.timers[code] = time.AfterFunc(h.grace, func() {
		h.promote(code)
	})

	h.logger.Info("host migration scheduled",
		zap.String("room_code", code),
		zap.Duration("grace", h.grace),
	)
}

// Cancel stops a pending migration, typically because the host reconnected.
func (h *HostSupervisor) Cancel(code string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if t, ok := h.timers[code]; ok {
		t.Stop()
		delete(h.timers, code)
		h.logger.Info("host migration canceled", zap.String("room_code", code))
	}
}

// Reevaluate is called whenever a player connects. A returning host cancels
// the pending migration; any connection into a room whose host is absent
// re-arms the timer, which covers rooms left host-less after an expiry with
// no candidates.
func (h *HostSupervisor) Reevaluate(r *Room, playerID string) {
	r.Lock()
	hostID := r.HostPlayerID
	hostConnected := false
	if host, ok := r.Players[hostID]; ok {
		hostConnected = host.IsConnected
	}
	r.Unlock()

	if hostConnected {
		h.Cancel(r.Code)
		return
	}

	h.mu.Lock()
	_, pending := h.timers[r.Code]
	h.mu.Unlock()
	if !pending {
		h.Schedule(r.Code)
	}
}

// Shutdown stops every pending timer.
func (h *HostSupervisor) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for code, t := range h.timers {
		t.Stop()
		delete(h.timers, code)
	}
}

// promote runs at deadline expiry. If the host returned in the meantime the
// migration is dropped; otherwise the first connected player in seat order
// becomes host. A room with nobody connected is left host-less and a later
// reconnect re-triggers evaluation.
func (h *HostSupervisor) promote(code string) {
	h.mu.Lock()
	delete(h.timers, code)
	h.mu.Unlock()

	r, ok := h.registry.GetRoom(code)
	if !ok {
		return
	}

	r.Lock()
	if host, ok := r.Players[r.HostPlayerID]; ok && host.IsConnected {
		r.Unlock()
		return
	}

	var promoted *Player
	for _, id := range r.SeatOrder {
		if p, ok := r.Players[id]; ok && p.IsConnected {
			promoted = p
			break
		}
	}
	if promoted == nil {
		r.Unlock()
		h.logger.Info("host migration expired with no connected players",
			zap.String("room_code", code),
		)
		return
	}

	for _, p := range r.Players {
		p.IsHost = false
	}
	promoted.IsHost = true
	r.HostPlayerID = promoted.ID
	r.Unlock()

	msg, err := protocol.Encode(protocol.TypeHostChanged, protocol.HostChanged{PlayerID: promoted.ID})
	if err != nil {
		h.logger.Error("failed to encode host_changed", zap.Error(err))
		return
	}
	r.Broadcast(msg, "")

	h.logger.Info("host migrated",
		zap.String("room_code", code),
		zap.String("new_host", promoted.ID),
	)
}
