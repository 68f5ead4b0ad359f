package snapshot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rayberirondelsol/card-game-engine-sub000/internal/board"
	"github.com/rayberirondelsol/card-game-engine-sub000/internal/repository"
	"github.com/rayberirondelsol/card-game-engine-sub000/internal/room"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeStore struct {
	mu    sync.Mutex
	saved []repository.RoomSnapshot
	err   error
}

func (f *fakeStore) Save(_ context.Context, snap repository.RoomSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, snap)
	return nil
}

func (f *fakeStore) snapshots() []repository.RoomSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]repository.RoomSnapshot(nil), f.saved...)
}

func TestSnapshotAllSkipsWaitingRooms(t *testing.T) {
	registry := room.NewRegistry(zap.NewNop())
	store := &fakeStore{}
	sched := NewScheduler(registry, store, time.Minute, zap.NewNop())

	waiting := registry.CreateRoom("game-1", "")
	_, err := waiting.Join("Alice", "red")
	require.NoError(t, err)

	active := registry.CreateRoom("game-1", "")
	host, err := active.Join("Bobby", "blue")
	require.NoError(t, err)
	require.NoError(t, active.Start(host.ID, nil, board.NewState()))

	sched.SnapshotAll(context.Background())

	saved := store.snapshots()
	require.Len(t, saved, 1)
	assert.Equal(t, active.Code, saved[0].RoomCode)
	assert.Equal(t, string(room.StatusActive), saved[0].Status)
	assert.NotNil(t, saved[0].Board)
}

func TestSnapshotRoomCopiesBoard(t *testing.T) {
	registry := room.NewRegistry(zap.NewNop())
	store := &fakeStore{}
	sched := NewScheduler(registry, store, time.Minute, zap.NewNop())

	r := registry.CreateRoom("game-1", "")
	host, err := r.Join("Alice", "red")
	require.NoError(t, err)

	layout := board.NewState()
	layout.Cards = append(layout.Cards, board.Card{ID: "c1", X: 10})
	require.NoError(t, r.Start(host.ID, nil, layout))

	sched.SnapshotRoom(context.Background(), r)
	require.Len(t, store.snapshots(), 1)

	// Mutating the live board after the snapshot must not affect the copy.
	r.Lock()
	r.Board.Cards[0].X = 99
	r.Unlock()

	assert.Equal(t, float64(10), store.snapshots()[0].Board.Cards[0].X)

	r.Lock()
	assert.False(t, r.LastSnapshotAt.IsZero())
	r.Unlock()
}

func TestSnapshotFailureDoesNotPanic(t *testing.T) {
	registry := room.NewRegistry(zap.NewNop())
	store := &fakeStore{err: errors.New("db down")}
	sched := NewScheduler(registry, store, time.Minute, zap.NewNop())

	r := registry.CreateRoom("game-1", "")
	host, err := r.Join("Alice", "red")
	require.NoError(t, err)
	require.NoError(t, r.Start(host.ID, nil, board.NewState()))

	sched.SnapshotAll(context.Background())
	assert.Empty(t, store.snapshots())
}
