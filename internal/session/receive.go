package session

import (
	"context"
	"sync"
	"time"

	"github.com/BioHazard786/linkdrop/internal/rendezvous"
	"github.com/BioHazard786/linkdrop/internal/transfer"
	"github.com/sirupsen/logrus"
)

type ReceiveOptions struct {
	Coordinator    rendezvous.Coordinator
	NewPeer        PeerFactory
	ConnectTimeout time.Duration
	OnPhase        func(rendezvous.ReceiverPhase)
	Store          transfer.Store
	Hooks          transfer.ReceiverHooks
}

// ReceiveSession joins a room and writes every incoming file to a Store.
type ReceiveSession struct {
	rdv      *rendezvous.Receiver
	newPeer  PeerFactory
	receiver *transfer.Receiver

	mu   sync.Mutex
	peer Peer
}

func NewReceiveSession(opts ReceiveOptions) *ReceiveSession {
	store := opts.Store
	if store == nil {
		store = transfer.NewDiskStore(nil)
	}
	rs := &ReceiveSession{
		newPeer:  opts.NewPeer,
		receiver: transfer.NewReceiver(store, nil, opts.Hooks),
	}
	rs.rdv = rendezvous.NewReceiver(rendezvous.ReceiverOptions{
		Coordinator:    opts.Coordinator,
		NewTransport:   rs.newTransport,
		ConnectTimeout: opts.ConnectTimeout,
		OnPhase:        opts.OnPhase,
	})
	return rs
}

// newTransport wires the frame handler before the rendezvous applies any
// signal, so the first frame cannot be missed.
func (rs *ReceiveSession) newTransport(initiator bool) (rendezvous.Transport, error) {
	p, err := rs.newPeer(initiator)
	if err != nil {
		return nil, err
	}
	p.OnData(rs.handleFrame)

	rs.mu.Lock()
	rs.peer = p
	rs.mu.Unlock()
	return p, nil
}

func (rs *ReceiveSession) handleFrame(raw []byte) {
	err := rs.receiver.HandleFrame(raw)
	if err != nil && !transfer.IsProtocolNoise(err) {
		logrus.WithFields(logrus.Fields{
			"function": "ReceiveSession.handleFrame",
			"error":    err.Error(),
		}).Error("Failed to handle frame")
	}
}

// Join runs the receiver rendezvous for ref, a share link or bare code.
func (rs *ReceiveSession) Join(ctx context.Context, ref string) error {
	_, err := rs.rdv.Join(ctx, ref)
	return err
}

func (rs *ReceiveSession) State() rendezvous.ReceiverState {
	return rs.rdv.State()
}

// Current is the in-flight file, if any.
func (rs *ReceiveSession) Current() (transfer.Progress, bool) {
	return rs.receiver.Current()
}

func (rs *ReceiveSession) Completed() *transfer.CompletedList {
	return rs.receiver.Completed()
}

// Wait blocks until the sender goes away or ctx ends. A connection that
// failed rather than closed is reported as the rendezvous error.
func (rs *ReceiveSession) Wait(ctx context.Context) error {
	rs.mu.Lock()
	p := rs.peer
	rs.mu.Unlock()
	if p == nil {
		return rendezvous.ErrClosed
	}

	select {
	case <-p.Closed():
		if st := rs.rdv.State(); st.Phase == rendezvous.ReceiverError {
			return st.Err
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close tears down the connection, then aborts any unfinished file.
func (rs *ReceiveSession) Close() error {
	rs.mu.Lock()
	rs.peer = nil
	rs.mu.Unlock()
	closeErr := rs.rdv.Close()
	if err := rs.receiver.Close(); err != nil {
		return err
	}
	return closeErr
}
