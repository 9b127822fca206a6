package coordinator

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Store persists rooms. Join must be atomic: of two concurrent joins on an
// open room exactly one succeeds.
type Store interface {
	Create(ctx context.Context, room *Room) error
	Get(ctx context.Context, id string) (*Room, error)
	Join(ctx context.Context, id string, signal json.RawMessage) error
	// ExpireBefore closes every room created before t and reports how many.
	ExpireBefore(ctx context.Context, t time.Time) (int, error)
	// DeleteBefore drops every room created before t.
	DeleteBefore(ctx context.Context, t time.Time) (int, error)
	Close() error
}

// MemoryStore keeps rooms in a map. Rooms are lost on restart.
type MemoryStore struct {
	mu    sync.Mutex
	rooms map[string]*Room
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rooms: make(map[string]*Room)}
}

// Create stores a copy of room. It fails with ErrRoomExists on an id clash.
func (m *MemoryStore) Create(_ context.Context, room *Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[room.ID]; ok {
		return ErrRoomExists
	}
	m.rooms[room.ID] = room.clone()
	return nil
}

// Get returns a copy of the room.
func (m *MemoryStore) Get(_ context.Context, id string) (*Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[id]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return r.clone(), nil
}

// Join records the receiver's signal if the room is still open.
func (m *MemoryStore) Join(_ context.Context, id string, signal json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[id]
	if !ok {
		return ErrRoomNotFound
	}
	if !r.CanJoin() {
		return ErrRoomUnavailable
	}
	r.ReceiverSignal = append(json.RawMessage(nil), signal...)
	r.State = RoomJoined
	return nil
}

// ExpireBefore closes open rooms created before t.
func (m *MemoryStore) ExpireBefore(_ context.Context, t time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.rooms {
		if r.State != RoomClosed && r.CreatedAt.Before(t) {
			r.State = RoomClosed
			n++
		}
	}
	return n, nil
}

// DeleteBefore removes rooms created before t, whatever their state.
func (m *MemoryStore) DeleteBefore(_ context.Context, t time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, r := range m.rooms {
		if r.CreatedAt.Before(t) {
			delete(m.rooms, id)
			n++
		}
	}
	return n, nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }
