package rendezvous

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/BioHazard786/linkdrop/internal/signaling"
)

// Transport is the peer connection as seen by the rendezvous: it produces a
// local signal, consumes the remote one and reports when it is usable and
// when it is gone. Close must close the Closed channel.
type Transport interface {
	LocalSignal(ctx context.Context) (json.RawMessage, error)
	ApplyRemoteSignal(sig json.RawMessage) error
	Connected() <-chan struct{}
	Failed() <-chan error
	Closed() <-chan struct{}
	Close() error
}

// TransportFactory builds a fresh transport for one rendezvous attempt.
type TransportFactory func(initiator bool) (Transport, error)

// Coordinator is the room coordination service. *signaling.Client
// implements it.
type Coordinator interface {
	CreateRoom(ctx context.Context, signal signaling.Signal, fileName string, fileSize int64) (*signaling.CreateRoomResponse, error)
	GetRoomStatus(ctx context.Context, roomID string) (*signaling.RoomStatus, error)
	JoinRoom(ctx context.Context, roomID string, signal signaling.Signal) error
	GetSignal(ctx context.Context, roomID string) (*signaling.SignalResponse, error)
}

// awaitLoss blocks until a connected transport fails or closes. A failure
// is reported as ErrTransportError, a plain close as ErrPeerClosed.
func awaitLoss(t Transport) error {
	select {
	case err := <-t.Failed():
		return errors.Join(ErrTransportError, err)
	case <-t.Closed():
		return lostOrClosed(t)
	}
}

// checkLoss is the non-blocking form of awaitLoss; nil means still usable.
func checkLoss(t Transport) error {
	select {
	case err := <-t.Failed():
		return errors.Join(ErrTransportError, err)
	case <-t.Closed():
		return lostOrClosed(t)
	default:
		return nil
	}
}

// lostOrClosed prefers a pending failure over the close it caused.
func lostOrClosed(t Transport) error {
	select {
	case err := <-t.Failed():
		return errors.Join(ErrTransportError, err)
	default:
		return ErrPeerClosed
	}
}
