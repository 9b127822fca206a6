package rendezvous

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// SenderPhase is the sender-side rendezvous lifecycle.
type SenderPhase int

const (
	SenderIdle SenderPhase = iota
	SenderCreatingRoom
	SenderWaitingForReceiver
	SenderConnecting
	SenderConnected
	SenderTimedOut
	SenderFailed
)

func (p SenderPhase) String() string {
	switch p {
	case SenderIdle:
		return "idle"
	case SenderCreatingRoom:
		return "creating room"
	case SenderWaitingForReceiver:
		return "waiting for receiver"
	case SenderConnecting:
		return "connecting"
	case SenderConnected:
		return "connected"
	case SenderTimedOut:
		return "timed out"
	case SenderFailed:
		return "failed"
	}
	return "unknown"
}

// SenderState is a snapshot of a Sender.
type SenderState struct {
	Phase     SenderPhase
	RoomID    string
	ShareLink string
	Countdown int
	Err       error
}

// SenderObserver receives state changes. Callbacks run on the goroutine
// driving Open, except the SenderFailed that reports a lost connection,
// which runs on the goroutine watching it. None is delivered once Reset or
// Close has returned for the attempt it describes.
type SenderObserver struct {
	OnPhase     func(SenderPhase)
	OnRoom      func(roomID, shareLink string)
	OnCountdown func(remaining int)
}

// SenderOptions configures a Sender. Coordinator and NewTransport are required.
type SenderOptions struct {
	Coordinator    Coordinator
	NewTransport   TransportFactory
	TimeProvider   TimeProvider
	PollInterval   time.Duration
	TimeoutTicks   int
	ConnectTimeout time.Duration
	// ShareLink builds a link when the coordinator does not return one.
	ShareLink func(roomID string) string
	Observer  SenderObserver
}

// Sender drives room creation and the wait for a receiver. It holds at
// most one transport, which is reused by later Open calls while connected.
type Sender struct {
	opts SenderOptions

	mu        sync.Mutex
	phase     SenderPhase
	roomID    string
	shareLink string
	countdown int
	transport Transport
	lastErr   error
	gen       uint64
	cancel    context.CancelFunc
	closed    bool
}

// NewSender returns an idle sender. A zero PollInterval polls every second
// and a zero TimeoutTicks gives up after sixty polls.
func NewSender(opts SenderOptions) *Sender {
	if opts.TimeProvider == nil {
		opts.TimeProvider = RealTimeProvider{}
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.TimeoutTicks <= 0 {
		opts.TimeoutTicks = 60
	}
	return &Sender{opts: opts}
}

// State returns a snapshot of the sender.
func (s *Sender) State() SenderState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SenderState{
		Phase:     s.phase,
		RoomID:    s.roomID,
		ShareLink: s.shareLink,
		Countdown: s.countdown,
		Err:       s.lastErr,
	}
}

// Open returns a connected transport. If one is already connected it is
// returned as is; otherwise a room is created for fileName and the call
// blocks until a receiver joins, the timeout elapses or ctx ends.
func (s *Sender) Open(ctx context.Context, fileName string, fileSize int64) (Transport, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if s.phase == SenderConnected && s.transport != nil {
		t, gen := s.transport, s.gen
		s.mu.Unlock()
		if err := checkLoss(t); err != nil {
			return nil, s.lose(gen, t, err)
		}
		return t, nil
	}
	if s.phase != SenderIdle {
		err := s.lastErr
		s.mu.Unlock()
		if err != nil {
			return nil, errors.Join(ErrBusy, err)
		}
		return nil, ErrBusy
	}
	s.gen++
	gen := s.gen
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.phase = SenderCreatingRoom
	s.lastErr = nil
	s.mu.Unlock()
	defer cancel()

	s.emitPhase(gen, SenderCreatingRoom)

	t, err := s.opts.NewTransport(true)
	if err != nil {
		return nil, s.fail(gen, nil, errors.Join(ErrTransportError, err))
	}
	sig, err := t.LocalSignal(ctx)
	if err != nil {
		return nil, s.fail(gen, t, errors.Join(ErrTransportError, err))
	}

	resp, err := s.opts.Coordinator.CreateRoom(ctx, sig, fileName, fileSize)
	if err != nil {
		return nil, s.fail(gen, t, errors.Join(ErrRoomCreationFailed, err))
	}

	link := resp.ShareLink
	if link == "" && s.opts.ShareLink != nil {
		link = s.opts.ShareLink(resp.RoomID)
	}

	ok := s.update(gen, func() {
		s.roomID = resp.RoomID
		s.shareLink = link
		s.transport = t
		s.countdown = s.opts.TimeoutTicks
		s.phase = SenderWaitingForReceiver
	})
	if !ok {
		_ = t.Close()
		return nil, ErrClosed
	}

	logrus.WithFields(logrus.Fields{
		"function": "Sender.Open",
		"room":     resp.RoomID,
		"file":     fileName,
	}).Debug("Room created, waiting for receiver")

	s.emit(gen, func(o SenderObserver) {
		if o.OnRoom != nil {
			o.OnRoom(resp.RoomID, link)
		}
	})
	s.emitPhase(gen, SenderWaitingForReceiver)
	s.emitCountdown(gen, s.opts.TimeoutTicks)

	remote, err := s.waitForReceiver(ctx, gen, resp.RoomID)
	if err != nil {
		return nil, err
	}

	if !s.setPhase(gen, SenderConnecting) {
		return nil, ErrClosed
	}
	if err := t.ApplyRemoteSignal(remote); err != nil {
		return nil, s.fail(gen, t, errors.Join(ErrTransportError, err))
	}
	if err := awaitConnected(ctx, t, s.opts.ConnectTimeout); err != nil {
		return nil, s.fail(gen, t, err)
	}
	if !s.setPhase(gen, SenderConnected) {
		return nil, ErrClosed
	}
	go s.watch(gen, t)
	return t, nil
}

// watch reports a connected transport that fails or closes underneath the
// sender. Reset and Close supersede it by closing the transport.
func (s *Sender) watch(gen uint64, t Transport) {
	_ = s.lose(gen, t, awaitLoss(t))
}

// lose moves the sender from connected to SenderFailed once per transport
// and returns the error it recorded.
func (s *Sender) lose(gen uint64, t Transport, err error) error {
	if errors.Is(err, ErrPeerClosed) {
		err = errors.Join(ErrTransportError, err)
	}

	s.mu.Lock()
	if s.gen != gen || s.transport != t {
		s.mu.Unlock()
		return err
	}
	s.clearLocked()
	s.phase = SenderFailed
	s.lastErr = err
	s.mu.Unlock()

	_ = t.Close()
	logrus.WithFields(logrus.Fields{
		"function": "Sender.lose",
		"error":    err.Error(),
	}).Debug("Connection lost")
	s.emitPhase(gen, SenderFailed)
	return err
}

// waitForReceiver polls the room once per tick. A tick first counts down,
// then polls; a receiver signal seen on the last tick still wins over the
// timeout. Poll failures are retried on the next tick.
func (s *Sender) waitForReceiver(ctx context.Context, gen uint64, roomID string) ([]byte, error) {
	ticker := s.opts.TimeProvider.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	timeout := s.opts.TimeoutTicks
	for tick := 1; ; tick++ {
		select {
		case <-ctx.Done():
			return nil, s.fail(gen, nil, ctx.Err())
		case <-ticker.C():
		}

		remaining := timeout - tick
		if !s.update(gen, func() { s.countdown = remaining }) {
			return nil, ErrClosed
		}
		s.emitCountdown(gen, remaining)

		st, err := s.opts.Coordinator.GetRoomStatus(ctx, roomID)
		switch {
		case err != nil:
			logrus.WithFields(logrus.Fields{
				"function": "Sender.waitForReceiver",
				"room":     roomID,
				"tick":     tick,
				"error":    err.Error(),
			}).Debug("Room status poll failed")
		case st.HasReceiverSignal():
			ticker.Stop()
			return st.ReceiverSignal, nil
		}

		if tick >= timeout {
			ticker.Stop()
			return nil, s.timeout(gen)
		}
	}
}

func (s *Sender) timeout(gen uint64) error {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return ErrClosed
	}
	t := s.transport
	s.clearLocked()
	s.phase = SenderTimedOut
	s.lastErr = ErrRendezvousTimeout
	s.mu.Unlock()

	if t != nil {
		_ = t.Close()
	}
	logrus.WithField("function", "Sender.timeout").Debug("No receiver joined in time")
	s.emitPhase(gen, SenderTimedOut)
	return ErrRendezvousTimeout
}

// fail closes t (and any held transport) and records err. When the attempt
// was superseded by Reset or Close it returns ErrClosed instead.
func (s *Sender) fail(gen uint64, t Transport, err error) error {
	s.mu.Lock()
	current := s.gen == gen
	held := s.transport
	if current {
		s.clearLocked()
		s.phase = SenderFailed
		s.lastErr = err
	}
	s.mu.Unlock()

	if t != nil {
		_ = t.Close()
	}
	if current && held != nil && held != t {
		_ = held.Close()
	}
	if !current {
		return ErrClosed
	}

	logrus.WithFields(logrus.Fields{
		"function": "Sender.fail",
		"error":    err.Error(),
	}).Debug("Rendezvous failed")
	s.emitPhase(gen, SenderFailed)
	return err
}

// Reset tears down any attempt or connection and returns to idle. It is
// the recovery path after a timeout or failure.
func (s *Sender) Reset() {
	s.mu.Lock()
	s.gen++
	t, cancel := s.transport, s.cancel
	s.clearLocked()
	s.phase = SenderIdle
	s.lastErr = nil
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if t != nil {
		_ = t.Close()
	}
}

// Close is Reset that also refuses further Open calls.
func (s *Sender) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.Reset()
	return nil
}

func (s *Sender) clearLocked() {
	s.roomID = ""
	s.shareLink = ""
	s.countdown = 0
	s.transport = nil
}

func (s *Sender) update(gen uint64, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return false
	}
	fn()
	return true
}

func (s *Sender) setPhase(gen uint64, p SenderPhase) bool {
	if !s.update(gen, func() { s.phase = p }) {
		return false
	}
	s.emitPhase(gen, p)
	return true
}

func (s *Sender) emit(gen uint64, fn func(SenderObserver)) {
	s.mu.Lock()
	current := s.gen == gen
	s.mu.Unlock()
	if current {
		fn(s.opts.Observer)
	}
}

func (s *Sender) emitPhase(gen uint64, p SenderPhase) {
	s.emit(gen, func(o SenderObserver) {
		if o.OnPhase != nil {
			o.OnPhase(p)
		}
	})
}

func (s *Sender) emitCountdown(gen uint64, remaining int) {
	s.emit(gen, func(o SenderObserver) {
		if o.OnCountdown != nil {
			o.OnCountdown(remaining)
		}
	})
}

func awaitConnected(ctx context.Context, t Transport, timeout time.Duration) error {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-t.Connected():
		return nil
	case err := <-t.Failed():
		return errors.Join(ErrTransportError, err)
	case <-expired:
		return errors.Join(ErrTransportError, errors.New("peer did not connect in time"))
	case <-ctx.Done():
		return ctx.Err()
	}
}
