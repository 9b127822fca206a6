package rendezvous

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/BioHazard786/linkdrop/internal/signaling"
)

// manualTicker delivers ticks only when the test calls tick.
type manualTicker struct {
	ch      chan time.Time
	mu      sync.Mutex
	stopped bool
}

func (m *manualTicker) C() <-chan time.Time { return m.ch }

func (m *manualTicker) Stop() {
	m.mu.Lock()
	m.stopped = true
	m.mu.Unlock()
}

func (m *manualTicker) isStopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

// tick hands one tick to the wait loop and reports whether it was taken.
func (m *manualTicker) tick() bool {
	select {
	case m.ch <- time.Time{}:
		return true
	case <-time.After(200 * time.Millisecond):
		return false
	}
}

type mockTimeProvider struct {
	created chan *manualTicker
}

func newMockTimeProvider() *mockTimeProvider {
	return &mockTimeProvider{created: make(chan *manualTicker, 4)}
}

func (m *mockTimeProvider) NewTicker(time.Duration) Ticker {
	t := &manualTicker{ch: make(chan time.Time)}
	m.created <- t
	return t
}

func (m *mockTimeProvider) ticker(t *testing.T) *manualTicker {
	t.Helper()
	select {
	case tk := <-m.created:
		return tk
	case <-time.After(2 * time.Second):
		t.Fatal("ticker never created")
		return nil
	}
}

// mockTransport connects as soon as a remote signal is applied.
type mockTransport struct {
	initiator bool
	local     json.RawMessage
	applyErr  error
	noConnect bool

	mu        sync.Mutex
	applied   []json.RawMessage
	closed    bool
	connected chan struct{}
	failed    chan error
	done      chan struct{}
	doneOnce  sync.Once
}

func newMockTransport(initiator bool) *mockTransport {
	local := json.RawMessage(`{"type":"answer","sdp":"receiver"}`)
	if initiator {
		local = json.RawMessage(`{"type":"offer","sdp":"sender"}`)
	}
	return &mockTransport{
		initiator: initiator,
		local:     local,
		connected: make(chan struct{}),
		failed:    make(chan error, 1),
		done:      make(chan struct{}),
	}
}

func (m *mockTransport) LocalSignal(context.Context) (json.RawMessage, error) {
	return m.local, nil
}

func (m *mockTransport) ApplyRemoteSignal(sig json.RawMessage) error {
	if m.applyErr != nil {
		return m.applyErr
	}
	m.mu.Lock()
	m.applied = append(m.applied, sig)
	m.mu.Unlock()
	if !m.noConnect {
		close(m.connected)
	}
	return nil
}

func (m *mockTransport) Connected() <-chan struct{} { return m.connected }
func (m *mockTransport) Failed() <-chan error       { return m.failed }
func (m *mockTransport) Closed() <-chan struct{}    { return m.done }

func (m *mockTransport) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.hangUp()
	return nil
}

// hangUp ends the connection from the remote side.
func (m *mockTransport) hangUp() {
	m.doneOnce.Do(func() { close(m.done) })
}

func (m *mockTransport) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *mockTransport) appliedSignals() []json.RawMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]json.RawMessage(nil), m.applied...)
}

type transportLog struct {
	mu    sync.Mutex
	made  []*mockTransport
	setup func(*mockTransport)
}

func (l *transportLog) factory(initiator bool) (Transport, error) {
	t := newMockTransport(initiator)
	if l.setup != nil {
		l.setup(t)
	}
	l.mu.Lock()
	l.made = append(l.made, t)
	l.mu.Unlock()
	return t, nil
}

func (l *transportLog) all() []*mockTransport {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*mockTransport(nil), l.made...)
}

// mockCoordinator scripts the coordination service.
type mockCoordinator struct {
	mu sync.Mutex

	createErr error
	creates   int

	// status answers poll n (1-based).
	status func(n int) (*signaling.RoomStatus, error)
	polls  int

	signal    signaling.Signal
	signalErr error

	joinErr error
	joins   []signaling.Signal
}

func (m *mockCoordinator) CreateRoom(ctx context.Context, sig signaling.Signal, name string, size int64) (*signaling.CreateRoomResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	if m.createErr != nil {
		return nil, m.createErr
	}
	return &signaling.CreateRoomResponse{RoomID: "Ab3dE5f", ShareLink: "https://send.example/?room=Ab3dE5f"}, nil
}

func (m *mockCoordinator) GetRoomStatus(ctx context.Context, roomID string) (*signaling.RoomStatus, error) {
	m.mu.Lock()
	m.polls++
	n := m.polls
	fn := m.status
	m.mu.Unlock()
	if fn == nil {
		return &signaling.RoomStatus{Exists: true, CanJoin: true}, nil
	}
	return fn(n)
}

func (m *mockCoordinator) JoinRoom(ctx context.Context, roomID string, sig signaling.Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.joins = append(m.joins, sig)
	return m.joinErr
}

func (m *mockCoordinator) GetSignal(ctx context.Context, roomID string) (*signaling.SignalResponse, error) {
	if m.signalErr != nil {
		return nil, m.signalErr
	}
	return &signaling.SignalResponse{Signal: m.signal}, nil
}

func (m *mockCoordinator) pollCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.polls
}

var errFlaky = errors.New("flaky network")

var receiverAnswer = signaling.Signal(`{"type":"answer","sdp":"receiver"}`)

// signalAt answers with a receiver signal from poll n onwards.
func signalAt(n int) func(int) (*signaling.RoomStatus, error) {
	return func(poll int) (*signaling.RoomStatus, error) {
		if poll >= n {
			return &signaling.RoomStatus{Exists: true, HasReceiver: true, ReceiverSignal: receiverAnswer}, nil
		}
		return &signaling.RoomStatus{Exists: true, CanJoin: true}, nil
	}
}
