package session

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"github.com/BioHazard786/linkdrop/internal/rendezvous"
	"github.com/BioHazard786/linkdrop/internal/transfer"
	"github.com/sirupsen/logrus"
)

type SendOptions struct {
	Coordinator    rendezvous.Coordinator
	NewPeer        PeerFactory
	TimeProvider   rendezvous.TimeProvider
	PollInterval   time.Duration
	TimeoutTicks   int
	ConnectTimeout time.Duration
	ShareLink      func(roomID string) string
	Observer       rendezvous.SenderObserver
}

// SendSession sends files one after another over a single connection. The
// first Send creates the room; later ones reuse the connected peer.
type SendSession struct {
	rdv       *rendezvous.Sender
	newPeer   PeerFactory
	completed *transfer.CompletedList

	mu     sync.Mutex
	peer   Peer
	sender *transfer.Sender
}

func NewSendSession(opts SendOptions) *SendSession {
	s := &SendSession{
		newPeer:   opts.NewPeer,
		completed: transfer.NewCompletedList(),
	}
	s.rdv = rendezvous.NewSender(rendezvous.SenderOptions{
		Coordinator:    opts.Coordinator,
		NewTransport:   s.newTransport,
		TimeProvider:   opts.TimeProvider,
		PollInterval:   opts.PollInterval,
		TimeoutTicks:   opts.TimeoutTicks,
		ConnectTimeout: opts.ConnectTimeout,
		ShareLink:      opts.ShareLink,
		Observer:       opts.Observer,
	})
	return s
}

func (s *SendSession) newTransport(initiator bool) (rendezvous.Transport, error) {
	return s.newPeer(initiator)
}

// State is the rendezvous state.
func (s *SendSession) State() rendezvous.SenderState {
	return s.rdv.State()
}

// Completed lists every file fully handed to the channel.
func (s *SendSession) Completed() *transfer.CompletedList {
	return s.completed
}

// Send connects if needed and streams size bytes of r as name.
func (s *SendSession) Send(ctx context.Context, name string, size int64, r io.Reader, onProgress func(transfer.Progress)) error {
	sender, err := s.connect(ctx, name, size)
	if err != nil {
		return err
	}

	err = sender.SendFile(ctx, name, size, r, onProgress)
	if errors.Is(err, transfer.ErrChannelClosed) {
		logrus.WithFields(logrus.Fields{
			"function": "SendSession.Send",
			"file":     name,
		}).Debug("Channel closed mid-transfer, dropping connection")
		s.Reset()
	}
	return err
}

// SendPath sends the file at path under the given name.
func (s *SendSession) SendPath(ctx context.Context, path, name string, onProgress func(transfer.Progress)) error {
	f, err := os.Open(path)
	if err != nil {
		return transfer.NewFileError("open", path, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return transfer.NewFileError("stat", path, err)
	}
	return s.Send(ctx, name, st.Size(), f, onProgress)
}

func (s *SendSession) connect(ctx context.Context, name string, size int64) (*transfer.Sender, error) {
	t, err := s.rdv.Open(ctx, name, size)
	if err != nil {
		return nil, err
	}
	peer, ok := t.(Peer)
	if !ok {
		return nil, ErrUnsupportedTransport
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.peer != peer {
		s.peer = peer
		s.sender = transfer.NewSender(peer, s.completed)
	}
	return s.sender, nil
}

// Drain waits until the channel has flushed everything sent so far.
func (s *SendSession) Drain(ctx context.Context) error {
	s.mu.Lock()
	sender := s.sender
	s.mu.Unlock()
	if sender == nil {
		return nil
	}
	return sender.Drain(ctx)
}

// Reset drops the connection so the next Send starts a new room.
func (s *SendSession) Reset() {
	s.mu.Lock()
	s.peer = nil
	s.sender = nil
	s.mu.Unlock()
	s.rdv.Reset()
}

// Close drops the connection and refuses further sends.
func (s *SendSession) Close() error {
	s.mu.Lock()
	s.peer = nil
	s.sender = nil
	s.mu.Unlock()
	return s.rdv.Close()
}
