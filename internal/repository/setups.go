package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rayberirondelsol/card-game-engine-sub000/internal/board"
)

// Setup is a stored board template: the zones and initial layout a room is
// dealt from when the host starts it.
type Setup struct {
	ID       string
	GameID   string
	Name     string
	HandSize int
	Zones    []board.Zone
	Board    *board.State
}

// SetupRepository reads stored board setups.
type SetupRepository struct {
	db *DB
}

// NewSetupRepository creates a setup repository.
func NewSetupRepository(db *DB) *SetupRepository {
	return &SetupRepository{db: db}
}

// GetByID returns the setup with the given id, or ErrNotFound.
func (r *SetupRepository) GetByID(ctx context.Context, id string) (*Setup, error) {
	var (
		setup     Setup
		zonesBlob []byte
		boardBlob []byte
	)
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, game_id, name, hand_size, zones, board
		FROM setups
		WHERE id = $1
	`, id).Scan(&setup.ID, &setup.GameID, &setup.Name, &setup.HandSize, &zonesBlob, &boardBlob)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading setup %s: %w", id, err)
	}

	if err := json.Unmarshal(zonesBlob, &setup.Zones); err != nil {
		return nil, fmt.Errorf("decoding zones for setup %s: %w", id, err)
	}
	setup.Board = board.NewState()
	if err := json.Unmarshal(boardBlob, setup.Board); err != nil {
		return nil, fmt.Errorf("decoding board for setup %s: %w", id, err)
	}
	return &setup, nil
}
