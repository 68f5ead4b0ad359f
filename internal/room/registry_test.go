package room

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewCodeShape(t *testing.T) {
	for i := 0; i < 100; i++ {
		code := newCode()
		require.Len(t, code, codeLength)
		for _, ch := range code {
			assert.True(t, strings.ContainsRune(codeAlphabet, ch),
				"code %s contains character outside the alphabet", code)
		}
	}
}

func TestRegistryCreateAndLookup(t *testing.T) {
	reg := NewRegistry(zap.NewNop())

	r := reg.CreateRoom("game-1", "setup-1")
	require.NotNil(t, r)
	assert.Equal(t, StatusWaiting, r.Status)

	got, ok := reg.GetRoom(r.Code)
	require.True(t, ok)
	assert.Same(t, r, got)

	_, ok = reg.GetRoom("NOPE42")
	assert.False(t, ok)
}

func TestRegistryCreateRoomWithCode(t *testing.T) {
	reg := NewRegistry(zap.NewNop())

	r, err := reg.CreateRoomWithCode("ABC234", "game-1", "")
	require.NoError(t, err)
	require.NotNil(t, r)

	_, err = reg.CreateRoomWithCode("ABC234", "game-2", "")
	assert.Error(t, err, "duplicate code must be rejected")
}

func TestRegistryDeleteRoom(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	r := reg.CreateRoom("game-1", "")

	reg.DeleteRoom(r.Code)
	_, ok := reg.GetRoom(r.Code)
	assert.False(t, ok)

	// Deleting twice is harmless.
	reg.DeleteRoom(r.Code)
}

func TestRegistrySetConnectionAndCounts(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	r := reg.CreateRoom("game-1", "")
	alice, err := r.Join("Alice", "red")
	require.NoError(t, err)

	require.NoError(t, reg.SetConnection(r.Code, alice.ID, &fakeConn{playerID: alice.ID}))
	assert.Equal(t, 1, reg.CountPlayers(r.Code))
	assert.Equal(t, 1, reg.CountConnected(r.Code))

	// Nil connection marks the player disconnected but keeps the seat.
	require.NoError(t, reg.SetConnection(r.Code, alice.ID, nil))
	assert.Equal(t, 1, reg.CountPlayers(r.Code))
	assert.Equal(t, 0, reg.CountConnected(r.Code))

	assert.Error(t, reg.SetConnection("NOPE42", alice.ID, nil))
	assert.Equal(t, 0, reg.CountPlayers("NOPE42"))
}
