package rendezvous

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/BioHazard786/linkdrop/internal/signaling"
	"github.com/sirupsen/logrus"
)

// ReceiverPhase is the receiver-side rendezvous lifecycle.
type ReceiverPhase int

const (
	ReceiverIdle ReceiverPhase = iota
	ReceiverCheckingRoom
	ReceiverFetchingSignal
	ReceiverConnecting
	ReceiverConnected
	ReceiverError
)

func (p ReceiverPhase) String() string {
	switch p {
	case ReceiverIdle:
		return "idle"
	case ReceiverCheckingRoom:
		return "checking room"
	case ReceiverFetchingSignal:
		return "fetching signal"
	case ReceiverConnecting:
		return "connecting"
	case ReceiverConnected:
		return "connected"
	case ReceiverError:
		return "error"
	}
	return "unknown"
}

// ReceiverState is a snapshot of a Receiver.
type ReceiverState struct {
	Phase  ReceiverPhase
	RoomID string
	Err    error
}

// ReceiverOptions configures a Receiver.
type ReceiverOptions struct {
	Coordinator    Coordinator
	NewTransport   TransportFactory
	ConnectTimeout time.Duration
	OnPhase        func(ReceiverPhase)
}

// Receiver joins an existing room. It makes a single join attempt; any
// failure is terminal for that attempt.
type Receiver struct {
	opts ReceiverOptions

	mu        sync.Mutex
	phase     ReceiverPhase
	roomID    string
	lastErr   error
	transport Transport
	gen       uint64
	cancel    context.CancelFunc
}

// NewReceiver returns an idle receiver.
func NewReceiver(opts ReceiverOptions) *Receiver {
	return &Receiver{opts: opts}
}

func (r *Receiver) State() ReceiverState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return ReceiverState{Phase: r.phase, RoomID: r.roomID, Err: r.lastErr}
}

// LastError is the error that moved the receiver into ReceiverError.
func (r *Receiver) LastError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

// Join resolves ref to a room, checks it, fetches the sender's signal,
// answers it and registers the answer with the coordinator.
func (r *Receiver) Join(ctx context.Context, ref string) (Transport, error) {
	r.mu.Lock()
	if r.phase != ReceiverIdle && r.phase != ReceiverError {
		r.mu.Unlock()
		return nil, ErrBusy
	}
	r.gen++
	gen := r.gen
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.lastErr = nil
	r.mu.Unlock()
	defer cancel()

	roomID, err := ExtractRoomID(ref)
	if err != nil {
		return nil, r.fail(gen, nil, err)
	}

	log := logrus.WithFields(logrus.Fields{
		"function": "Receiver.Join",
		"room":     roomID,
	})

	if !r.update(gen, func() { r.roomID = roomID; r.phase = ReceiverCheckingRoom }) {
		return nil, ErrClosed
	}
	r.emitPhase(gen, ReceiverCheckingRoom)

	st, err := r.opts.Coordinator.GetRoomStatus(ctx, roomID)
	if err != nil {
		return nil, r.fail(gen, nil, err)
	}
	if !st.Exists {
		return nil, r.fail(gen, nil, ErrRoomNotFound)
	}
	if st.HasReceiver || !st.CanJoin {
		return nil, r.fail(gen, nil, ErrRoomFull)
	}

	if !r.setPhase(gen, ReceiverFetchingSignal) {
		return nil, ErrClosed
	}
	resp, err := r.opts.Coordinator.GetSignal(ctx, roomID)
	if err != nil {
		return nil, r.fail(gen, nil, errors.Join(ErrSignalUnavailable, err))
	}
	if signaling.IsEmpty(resp.Signal) {
		return nil, r.fail(gen, nil, ErrSignalUnavailable)
	}

	t, err := r.opts.NewTransport(false)
	if err != nil {
		return nil, r.fail(gen, nil, errors.Join(ErrTransportError, err))
	}
	if !r.update(gen, func() { r.transport = t }) {
		_ = t.Close()
		return nil, ErrClosed
	}
	if err := t.ApplyRemoteSignal(resp.Signal); err != nil {
		return nil, r.fail(gen, t, errors.Join(ErrTransportError, err))
	}

	if !r.setPhase(gen, ReceiverConnecting) {
		return nil, ErrClosed
	}
	local, err := t.LocalSignal(ctx)
	if err != nil {
		return nil, r.fail(gen, t, errors.Join(ErrTransportError, err))
	}

	log.Debug("Answer ready, joining room")
	if err := r.opts.Coordinator.JoinRoom(ctx, roomID, local); err != nil {
		return nil, r.fail(gen, t, errors.Join(ErrJoinRejected, err))
	}

	if err := awaitConnected(ctx, t, r.opts.ConnectTimeout); err != nil {
		return nil, r.fail(gen, t, err)
	}
	if !r.setPhase(gen, ReceiverConnected) {
		return nil, ErrClosed
	}
	log.Debug("Connected to sender")
	go r.watch(gen, t)
	return t, nil
}

// watch follows a connected transport. A failure moves the receiver to
// ReceiverError with ErrTransportError; the sender hanging up returns it
// to idle, which is how a finished session ends.
func (r *Receiver) watch(gen uint64, t Transport) {
	err := awaitLoss(t)
	next := ReceiverIdle
	if !errors.Is(err, ErrPeerClosed) {
		next = ReceiverError
	}

	r.mu.Lock()
	if r.gen != gen || r.transport != t {
		r.mu.Unlock()
		return
	}
	r.transport = nil
	r.phase = next
	if next == ReceiverError {
		r.lastErr = err
	} else {
		r.roomID = ""
	}
	r.mu.Unlock()

	_ = t.Close()
	logrus.WithFields(logrus.Fields{
		"function": "Receiver.watch",
		"error":    err.Error(),
	}).Debug("Connection ended")
	r.emitPhase(gen, next)
}

// Close tears down the transport and returns to idle.
func (r *Receiver) Close() error {
	r.mu.Lock()
	r.gen++
	t, cancel := r.transport, r.cancel
	r.transport = nil
	r.cancel = nil
	r.roomID = ""
	r.phase = ReceiverIdle
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if t != nil {
		return t.Close()
	}
	return nil
}

func (r *Receiver) fail(gen uint64, t Transport, err error) error {
	r.mu.Lock()
	current := r.gen == gen
	if current {
		r.phase = ReceiverError
		r.lastErr = err
		r.transport = nil
	}
	r.mu.Unlock()

	if t != nil {
		_ = t.Close()
	}
	if !current {
		return ErrClosed
	}
	logrus.WithFields(logrus.Fields{
		"function": "Receiver.fail",
		"error":    err.Error(),
	}).Debug("Join failed")
	r.emitPhase(gen, ReceiverError)
	return err
}

func (r *Receiver) update(gen uint64, fn func()) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gen != gen {
		return false
	}
	fn()
	return true
}

func (r *Receiver) setPhase(gen uint64, p ReceiverPhase) bool {
	if !r.update(gen, func() { r.phase = p }) {
		return false
	}
	r.emitPhase(gen, p)
	return true
}

func (r *Receiver) emitPhase(gen uint64, p ReceiverPhase) {
	r.mu.Lock()
	current := r.gen == gen
	r.mu.Unlock()
	if current && r.opts.OnPhase != nil {
		r.opts.OnPhase(p)
	}
}
