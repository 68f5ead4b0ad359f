package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rayberirondelsol/card-game-engine-sub000/internal/board"
	"github.com/rayberirondelsol/card-game-engine-sub000/internal/engine"
	"github.com/rayberirondelsol/card-game-engine-sub000/internal/protocol"
	"github.com/rayberirondelsol/card-game-engine-sub000/internal/repository"
	"github.com/rayberirondelsol/card-game-engine-sub000/internal/room"
	"github.com/rayberirondelsol/card-game-engine-sub000/internal/session"
	"github.com/rayberirondelsol/card-game-engine-sub000/internal/snapshot"
	"go.uber.org/zap"
)

// SetupStore loads stored board setups. *repository.SetupRepository
// implements it; a nil store means rooms start from an empty board.
type SetupStore interface {
	GetByID(ctx context.Context, id string) (*repository.Setup, error)
}

// Server carries the JSON lifecycle API (create/join/start/leave) and the
// websocket entry point. Everything after join happens over the socket.
type Server struct {
	registry   *room.Registry
	processor  *engine.Processor
	sessions   *session.Manager
	supervisor *room.HostSupervisor
	setups     SetupStore
	snapshots  *snapshot.Scheduler
	handSize   int
	logger     *zap.Logger
}

// NewServer wires the lifecycle API. setups and snapshots may be nil when
// the server runs without a database.
func NewServer(
	registry *room.Registry,
	processor *engine.Processor,
	sessions *session.Manager,
	supervisor *room.HostSupervisor,
	setups SetupStore,
	snapshots *snapshot.Scheduler,
	handSize int,
	logger *zap.Logger,
) *Server {
	return &Server{
		registry:   registry,
		processor:  processor,
		sessions:   sessions,
		supervisor: supervisor,
		setups:     setups,
		snapshots:  snapshots,
		handSize:   handSize,
		logger:     logger,
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/rooms", s.handleCreateRoom)
	mux.HandleFunc("POST /api/rooms/join", s.handleJoinRoom)
	mux.HandleFunc("POST /api/rooms/start", s.handleStartRoom)
	mux.HandleFunc("POST /api/rooms/leave", s.handleLeaveRoom)
	mux.HandleFunc("GET /ws", s.sessions.ServeWS)
	return mux
}

type createRoomRequest struct {
	GameID      string `json:"gameId"`
	SetupID     string `json:"setupId"`
	DisplayName string `json:"displayName"`
	Color       string `json:"color"`
}

type joinRoomRequest struct {
	RoomCode    string `json:"roomCode"`
	DisplayName string `json:"displayName"`
	Color       string `json:"color"`
}

type roomPlayerRequest struct {
	RoomCode string `json:"roomCode"`
	PlayerID string `json:"playerId"`
}

type seatResponse struct {
	RoomCode string `json:"roomCode"`
	RoomID   string `json:"roomId"`
	GameID   string `json:"gameId"`
	PlayerID string `json:"playerId"`
	Seat     int    `json:"seat"`
}

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.GameID == "" {
		writeError(w, http.StatusBadRequest, "gameId is required")
		return
	}

	rm := s.registry.CreateRoom(req.GameID, req.SetupID)
	player, err := rm.Join(req.DisplayName, req.Color)
	if err != nil {
		s.registry.DeleteRoom(rm.Code)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, seatResponse{
		RoomCode: rm.Code,
		RoomID:   rm.ID,
		GameID:   rm.GameID,
		PlayerID: player.ID,
		Seat:     player.Seat,
	})
}

func (s *Server) handleJoinRoom(w http.ResponseWriter, r *http.Request) {
	var req joinRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rm, ok := s.registry.GetRoom(req.RoomCode)
	if !ok {
		writeError(w, http.StatusNotFound, "room not found")
		return
	}

	player, err := rm.Join(req.DisplayName, req.Color)
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	s.broadcastPlayerEvent(rm, protocol.TypePlayerJoined, *player)

	writeJSON(w, http.StatusOK, seatResponse{
		RoomCode: rm.Code,
		RoomID:   rm.ID,
		GameID:   rm.GameID,
		PlayerID: player.ID,
		Seat:     player.Seat,
	})
}

func (s *Server) handleStartRoom(w http.ResponseWriter, r *http.Request) {
	var req roomPlayerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rm, ok := s.registry.GetRoom(req.RoomCode)
	if !ok {
		writeError(w, http.StatusNotFound, "room not found")
		return
	}

	zones, layout, handSize, err := s.loadSetup(r.Context(), rm)
	if err != nil {
		writeError(w, http.StatusBadGateway, "failed to load setup")
		return
	}

	if err := s.processor.StartRoom(rm, req.PlayerID, zones, layout, handSize); err != nil {
		writeError(w, http.StatusForbidden, err.Error())
		return
	}

	// First persisted image; later ones come from the periodic scheduler.
	if s.snapshots != nil {
		s.snapshots.SnapshotRoom(r.Context(), rm)
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": string(room.StatusActive)})
}

func (s *Server) handleLeaveRoom(w http.ResponseWriter, r *http.Request) {
	var req roomPlayerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rm, ok := s.registry.GetRoom(req.RoomCode)
	if !ok {
		writeError(w, http.StatusNotFound, "room not found")
		return
	}

	player, conn, newHostID, empty := rm.RemovePlayer(req.PlayerID)
	if player == nil {
		writeError(w, http.StatusNotFound, "player is not a member of this room")
		return
	}
	if conn != nil {
		conn.Close("you left the room")
	}

	if empty {
		s.supervisor.Cancel(rm.Code)
		s.registry.DeleteRoom(rm.Code)
		writeJSON(w, http.StatusOK, map[string]bool{"roomClosed": true})
		return
	}

	s.broadcastPlayerEvent(rm, protocol.TypePlayerLeft, *player)
	if newHostID != "" {
		if msg, err := protocol.Encode(protocol.TypeHostChanged, protocol.HostChanged{PlayerID: newHostID}); err == nil {
			rm.Broadcast(msg, "")
		}
	}

	writeJSON(w, http.StatusOK, map[string]bool{"roomClosed": false})
}

// loadSetup resolves the room's stored setup, falling back to an empty board
// when no setup store is configured or the room was created without one.
func (s *Server) loadSetup(ctx context.Context, rm *room.Room) ([]board.Zone, *board.State, int, error) {
	if s.setups == nil || rm.SetupID == "" {
		return nil, nil, s.handSize, nil
	}

	setup, err := s.setups.GetByID(ctx, rm.SetupID)
	if errors.Is(err, repository.ErrNotFound) {
		s.logger.Warn("setup not found, starting with empty board",
			zap.String("room_code", rm.Code),
			zap.String("setup_id", rm.SetupID),
		)
		return nil, nil, s.handSize, nil
	}
	if err != nil {
		return nil, nil, 0, err
	}

	handSize := setup.HandSize
	if handSize <= 0 {
		handSize = s.handSize
	}
	return setup.Zones, setup.Board, handSize, nil
}

func (s *Server) broadcastPlayerEvent(rm *room.Room, kind protocol.MessageType, player room.Player) {
	msg, err := protocol.Encode(kind, protocol.PlayerEvent{Player: engine.PlayerInfos([]room.Player{player})[0]})
	if err != nil {
		return
	}
	rm.Broadcast(msg, player.ID)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
