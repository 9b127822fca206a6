package coordinator

import (
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/BioHazard786/linkdrop/internal/signaling"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestHub(store Store) (*Hub, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	return NewHub(store, HubOptions{
		ShareURL: "https://send.example/",
		RoomTTL:  time.Minute,
		Now:      clock.Now,
	}), clock
}

var offer = signaling.Signal(`{"type":"offer","sdp":"v=0"}`)

func TestGenerateRoomID(t *testing.T) {
	pattern := regexp.MustCompile(`^[A-Za-z0-9]{7}$`)
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		id, err := generateRoomID()
		require.NoError(t, err)
		assert.Regexp(t, pattern, id)
		seen[id] = true
	}
	assert.Greater(t, len(seen), 190)
}

func TestHubCreateAndStatus(t *testing.T) {
	ctx := context.Background()
	hub, _ := newTestHub(NewMemoryStore())

	resp, err := hub.CreateRoom(ctx, signaling.CreateRoomRequest{Signal: offer, FileName: "a.txt", FileSize: 3})
	require.NoError(t, err)
	assert.Len(t, resp.RoomID, 7)
	assert.Equal(t, "https://send.example/?room="+resp.RoomID, resp.ShareLink)

	st, err := hub.Status(ctx, resp.RoomID)
	require.NoError(t, err)
	assert.Equal(t, signaling.RoomStatus{Exists: true, CanJoin: true}, *st)

	sig, err := hub.Signal(ctx, resp.RoomID)
	require.NoError(t, err)
	assert.JSONEq(t, string(offer), string(sig.Signal))

	st, err = hub.Status(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, st.Exists)
}

func TestHubCreateRejectsEmptySignal(t *testing.T) {
	hub, _ := newTestHub(NewMemoryStore())
	for _, sig := range []signaling.Signal{nil, signaling.Signal(`null`), signaling.Signal(`{}`)} {
		_, err := hub.CreateRoom(context.Background(), signaling.CreateRoomRequest{Signal: sig})
		assert.ErrorIs(t, err, ErrInvalidRequest)
	}
	_, err := hub.CreateRoom(context.Background(), signaling.CreateRoomRequest{Signal: offer, FileSize: -1})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestHubJoin(t *testing.T) {
	ctx := context.Background()
	hub, _ := newTestHub(NewMemoryStore())
	resp, err := hub.CreateRoom(ctx, signaling.CreateRoomRequest{Signal: offer})
	require.NoError(t, err)

	answer := signaling.Signal(`{"type":"answer","sdp":"v=0"}`)
	assert.ErrorIs(t, hub.Join(ctx, resp.RoomID, signaling.JoinRoomRequest{Signal: answer, Role: "sender"}), ErrInvalidRequest)
	assert.ErrorIs(t, hub.Join(ctx, resp.RoomID, signaling.JoinRoomRequest{Role: signaling.RoleReceiver}), ErrInvalidRequest)
	require.NoError(t, hub.Join(ctx, resp.RoomID, signaling.JoinRoomRequest{Signal: answer, Role: signaling.RoleReceiver}))
	assert.ErrorIs(t, hub.Join(ctx, resp.RoomID, signaling.JoinRoomRequest{Signal: answer}), ErrRoomUnavailable)
	assert.ErrorIs(t, hub.Join(ctx, "missing", signaling.JoinRoomRequest{Signal: answer}), ErrRoomNotFound)

	st, err := hub.Status(ctx, resp.RoomID)
	require.NoError(t, err)
	assert.True(t, st.HasReceiver)
	assert.False(t, st.CanJoin)
	assert.True(t, st.HasReceiverSignal())
	assert.JSONEq(t, string(answer), string(st.ReceiverSignal))
}

func TestHubSweep(t *testing.T) {
	ctx := context.Background()
	hub, clock := newTestHub(NewMemoryStore())
	resp, err := hub.CreateRoom(ctx, signaling.CreateRoomRequest{Signal: offer})
	require.NoError(t, err)

	clock.Advance(30 * time.Second)
	require.NoError(t, hub.Sweep(ctx))
	st, err := hub.Status(ctx, resp.RoomID)
	require.NoError(t, err)
	assert.True(t, st.CanJoin, "room is still inside its TTL")

	clock.Advance(time.Minute)
	require.NoError(t, hub.Sweep(ctx))
	st, err = hub.Status(ctx, resp.RoomID)
	require.NoError(t, err)
	assert.True(t, st.Exists)
	assert.False(t, st.CanJoin)
	_, err = hub.Signal(ctx, resp.RoomID)
	assert.ErrorIs(t, err, ErrRoomNotFound)

	clock.Advance(3 * time.Minute)
	require.NoError(t, hub.Sweep(ctx))
	st, err = hub.Status(ctx, resp.RoomID)
	require.NoError(t, err)
	assert.False(t, st.Exists)
}

func TestHubRunStopsWithContext(t *testing.T) {
	hub, _ := newTestHub(NewMemoryStore())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx, time.Millisecond)
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
