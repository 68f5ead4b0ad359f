package room

import (
	"sync"
	"testing"

	"github.com/rayberirondelsol/card-game-engine-sub000/internal/board"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn records sent frames for assertions.
type fakeConn struct {
	playerID string
	mu       sync.Mutex
	sent     [][]byte
	closed   bool
}

func (f *fakeConn) PlayerID() string { return f.playerID }

func (f *fakeConn) Send(msg []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	f.sent = append(f.sent, msg)
	return true
}

func (f *fakeConn) Close(reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeConn) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func TestJoinAssignsSeatsAndHost(t *testing.T) {
	r := NewRoom("ABC234", "game-1", "")

	alice, err := r.Join("Alice", "red")
	require.NoError(t, err)
	assert.Equal(t, 1, alice.Seat)
	assert.True(t, alice.IsHost)
	assert.Equal(t, alice.ID, r.HostPlayerID)

	bob, err := r.Join("Bob", "blue")
	require.NoError(t, err)
	assert.Equal(t, 2, bob.Seat)
	assert.False(t, bob.IsHost)
}

func TestJoinValidation(t *testing.T) {
	r := NewRoom("ABC234", "game-1", "")
	_, err := r.Join("Alice", "red")
	require.NoError(t, err)

	_, err = r.Join("A", "blue")
	assert.Error(t, err, "name too short")

	_, err = r.Join("this name is far too long for a seat", "blue")
	assert.Error(t, err, "name too long")

	_, err = r.Join("七海千秋", "blue")
	require.NoError(t, err, "multi-byte names are measured in runes, not bytes")
	removed, _, _, _ := r.RemovePlayer(r.SeatOrder[1])
	require.NotNil(t, removed)

	_, err = r.Join("Bob", "chartreuse")
	assert.Error(t, err, "color outside palette")

	_, err = r.Join("Bob", "red")
	assert.Error(t, err, "color already taken")
	assert.Equal(t, 1, r.CountPlayers(), "rejected join must not alter the player list")
}

func TestJoinRespectsCapAndStatus(t *testing.T) {
	r := NewRoom("ABC234", "game-1", "")
	names := []string{"Alice", "Bobby", "Carol", "David", "Erica", "Frank"}
	for i, name := range names {
		_, err := r.Join(name, Palette[i])
		require.NoError(t, err)
	}

	_, err := r.Join("Grace", "red")
	assert.Error(t, err, "seventh player must be rejected")

	r2 := NewRoom("DEF234", "game-1", "")
	host, err := r2.Join("Alice", "red")
	require.NoError(t, err)
	require.NoError(t, r2.Start(host.ID, nil, nil))

	_, err = r2.Join("Late", "blue")
	assert.Error(t, err, "active room must reject joins")
}

func TestSeatReuseAfterLeave(t *testing.T) {
	r := NewRoom("ABC234", "game-1", "")
	alice, _ := r.Join("Alice", "red")
	bob, _ := r.Join("Bobby", "blue")
	_ = bob

	r.RemovePlayer(alice.ID)
	carol, err := r.Join("Carol", "green")
	require.NoError(t, err)
	assert.Equal(t, 1, carol.Seat, "freed seat should be reused")
}

func TestRemovePlayerPromotesHost(t *testing.T) {
	r := NewRoom("ABC234", "game-1", "")
	alice, _ := r.Join("Alice", "red")
	bob, _ := r.Join("Bobby", "blue")

	_, err := r.SetConnection(bob.ID, &fakeConn{playerID: bob.ID})
	require.NoError(t, err)

	removed, _, newHost, empty := r.RemovePlayer(alice.ID)
	require.NotNil(t, removed)
	assert.Equal(t, bob.ID, newHost)
	assert.False(t, empty)
	assert.Equal(t, bob.ID, r.HostPlayerID)

	p, _ := r.GetPlayer(bob.ID)
	assert.True(t, p.IsHost)
}

func TestRemovePlayerReturnsBoundConnection(t *testing.T) {
	r := NewRoom("ABC234", "game-1", "")
	alice, _ := r.Join("Alice", "red")
	bob, _ := r.Join("Bobby", "blue")

	aliceConn := &fakeConn{playerID: alice.ID}
	_, err := r.SetConnection(alice.ID, aliceConn)
	require.NoError(t, err)

	_, conn, _, _ := r.RemovePlayer(alice.ID)
	assert.Same(t, aliceConn, conn)

	// A player who was never connected yields no connection.
	_, conn, _, _ = r.RemovePlayer(bob.ID)
	assert.Nil(t, conn)
}

func TestRemoveLastPlayerReportsEmpty(t *testing.T) {
	r := NewRoom("ABC234", "game-1", "")
	alice, _ := r.Join("Alice", "red")

	_, _, _, empty := r.RemovePlayer(alice.ID)
	assert.True(t, empty)
}

func TestSetConnectionReplacesBinding(t *testing.T) {
	r := NewRoom("ABC234", "game-1", "")
	alice, _ := r.Join("Alice", "red")

	first := &fakeConn{playerID: alice.ID}
	old, err := r.SetConnection(alice.ID, first)
	require.NoError(t, err)
	assert.Nil(t, old)

	second := &fakeConn{playerID: alice.ID}
	old, err = r.SetConnection(alice.ID, second)
	require.NoError(t, err)
	assert.Same(t, first, old, "previous binding must be handed back for closing")

	// Clearing the stale connection must not unbind the replacement.
	assert.False(t, r.ClearConnection(alice.ID, first))
	assert.Equal(t, 1, r.CountConnected())

	assert.True(t, r.ClearConnection(alice.ID, second))
	p, _ := r.GetPlayer(alice.ID)
	assert.False(t, p.IsConnected)
	assert.Equal(t, 1, r.CountPlayers(), "disconnect keeps the player record")
}

func TestSetConnectionUnknownPlayer(t *testing.T) {
	r := NewRoom("ABC234", "game-1", "")
	_, err := r.SetConnection("nobody", &fakeConn{})
	assert.Error(t, err)
}

func TestBroadcastExcludesSender(t *testing.T) {
	r := NewRoom("ABC234", "game-1", "")
	alice, _ := r.Join("Alice", "red")
	bob, _ := r.Join("Bobby", "blue")

	aliceConn := &fakeConn{playerID: alice.ID}
	bobConn := &fakeConn{playerID: bob.ID}
	_, _ = r.SetConnection(alice.ID, aliceConn)
	_, _ = r.SetConnection(bob.ID, bobConn)

	r.Broadcast([]byte(`{"type":"cursor"}`), alice.ID)

	assert.Equal(t, 0, aliceConn.sentCount())
	assert.Equal(t, 1, bobConn.sentCount())
}

func TestSendToMissingConnectionIsNoop(t *testing.T) {
	r := NewRoom("ABC234", "game-1", "")
	alice, _ := r.Join("Alice", "red")
	assert.False(t, r.SendTo(alice.ID, []byte("hi")))
}

func TestStartRequiresHostAndWaiting(t *testing.T) {
	r := NewRoom("ABC234", "game-1", "")
	alice, _ := r.Join("Alice", "red")
	bob, _ := r.Join("Bobby", "blue")

	assert.Error(t, r.Start(bob.ID, nil, nil), "non-host must not start the room")
	require.NoError(t, r.Start(alice.ID, nil, nil))
	assert.Equal(t, StatusActive, r.Status)
	assert.Error(t, r.Start(alice.ID, nil, nil), "double start must fail")
}

func TestRestoreRebuildsSeatsAndHost(t *testing.T) {
	r := NewRoom("ABC234", "game-1", "")

	layout := board.NewState()
	layout.Cards = append(layout.Cards, board.Card{ID: "c1"})

	r.Restore(StatusActive, []Player{
		{ID: "p2", Name: "Bobby", Color: "blue", Seat: 2, IsConnected: true},
		{ID: "p1", Name: "Alice", Color: "red", Seat: 1, IsHost: true, IsConnected: true},
	}, []board.Zone{{Width: 10, Height: 10}}, layout)

	assert.Equal(t, StatusActive, r.Status)
	assert.Equal(t, "p1", r.HostPlayerID)
	assert.Equal(t, []string{"p1", "p2"}, r.SeatOrder, "seat order rebuilt from seats")
	assert.Len(t, r.Zones, 1)
	assert.Len(t, r.Board.Cards, 1)

	for _, p := range r.PlayerList() {
		assert.False(t, p.IsConnected, "restored players start disconnected")
	}

	// Restored players can rebind with their original id.
	conn := &fakeConn{playerID: "p2"}
	_, err := r.SetConnection("p2", conn)
	require.NoError(t, err)
	assert.Equal(t, 1, r.CountConnected())
}
