package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rayberirondelsol/card-game-engine-sub000/internal/board"
	"github.com/rayberirondelsol/card-game-engine-sub000/internal/room"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// RoomSnapshot is one persisted room image, keyed by room code. Only the
// latest image per room is kept; snapshots are overwritten in place. Player
// hand contents are not part of the board and are lost across a restart;
// the hand count survives so the public view stays honest.
type RoomSnapshot struct {
	RoomCode  string
	RoomID    string
	GameID    string
	Status    string
	Players   []room.Player
	Zones     []board.Zone
	Board     *board.State
	UpdatedAt time.Time
}

// SnapshotRepository persists room snapshots.
type SnapshotRepository struct {
	db *DB
}

// NewSnapshotRepository creates a snapshot repository.
func NewSnapshotRepository(db *DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Save upserts the snapshot for a room, replacing any previous image.
func (r *SnapshotRepository) Save(ctx context.Context, snap RoomSnapshot) error {
	boardBlob, err := json.Marshal(snap.Board)
	if err != nil {
		return fmt.Errorf("encoding board: %w", err)
	}
	playersBlob, err := json.Marshal(snap.Players)
	if err != nil {
		return fmt.Errorf("encoding players: %w", err)
	}
	zonesBlob, err := json.Marshal(snap.Zones)
	if err != nil {
		return fmt.Errorf("encoding zones: %w", err)
	}

	_, err = r.db.Pool.Exec(ctx, `
		INSERT INTO room_snapshots (room_code, room_id, game_id, status, players, zones, board, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (room_code) DO UPDATE SET
			room_id = EXCLUDED.room_id,
			game_id = EXCLUDED.game_id,
			status = EXCLUDED.status,
			players = EXCLUDED.players,
			zones = EXCLUDED.zones,
			board = EXCLUDED.board,
			updated_at = now()
	`, snap.RoomCode, snap.RoomID, snap.GameID, snap.Status, playersBlob, zonesBlob, boardBlob)
	if err != nil {
		return fmt.Errorf("saving snapshot for room %s: %w", snap.RoomCode, err)
	}
	return nil
}

// Load returns the latest snapshot for a room code, or ErrNotFound.
func (r *SnapshotRepository) Load(ctx context.Context, roomCode string) (*RoomSnapshot, error) {
	row := r.db.Pool.QueryRow(ctx, `
		SELECT room_code, room_id, game_id, status, players, zones, board, updated_at
		FROM room_snapshots
		WHERE room_code = $1
	`, roomCode)

	snap, err := scanSnapshot(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading snapshot for room %s: %w", roomCode, err)
	}
	return snap, nil
}

// ListActive returns the snapshots of every room that was active when last
// persisted; used to rehydrate rooms at process start.
func (r *SnapshotRepository) ListActive(ctx context.Context) ([]*RoomSnapshot, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT room_code, room_id, game_id, status, players, zones, board, updated_at
		FROM room_snapshots
		WHERE status = 'active'
		ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("listing active snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []*RoomSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// Delete removes the snapshot for a room; missing rows are not an error.
func (r *SnapshotRepository) Delete(ctx context.Context, roomCode string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM room_snapshots WHERE room_code = $1`, roomCode)
	if err != nil {
		return fmt.Errorf("deleting snapshot for room %s: %w", roomCode, err)
	}
	return nil
}

func scanSnapshot(row pgx.Row) (*RoomSnapshot, error) {
	var (
		snap        RoomSnapshot
		playersBlob []byte
		zonesBlob   []byte
		boardBlob   []byte
	)
	err := row.Scan(&snap.RoomCode, &snap.RoomID, &snap.GameID, &snap.Status,
		&playersBlob, &zonesBlob, &boardBlob, &snap.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(playersBlob, &snap.Players); err != nil {
		return nil, fmt.Errorf("decoding players: %w", err)
	}
	if err := json.Unmarshal(zonesBlob, &snap.Zones); err != nil {
		return nil, fmt.Errorf("decoding zones: %w", err)
	}
	snap.Board = board.NewState()
	if err := json.Unmarshal(boardBlob, snap.Board); err != nil {
		return nil, fmt.Errorf("decoding board: %w", err)
	}
	return &snap, nil
}
