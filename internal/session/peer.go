// Package session joins a rendezvous to the transfer engine: the sender
// side streams files over whatever connection the rendezvous produced,
// the receiver side feeds every incoming frame to a transfer.Receiver.
package session

import (
	"errors"

	"github.com/BioHazard786/linkdrop/internal/config"
	"github.com/BioHazard786/linkdrop/internal/rendezvous"
	"github.com/BioHazard786/linkdrop/internal/transfer"
	"github.com/BioHazard786/linkdrop/internal/webrtc"
)

// ErrUnsupportedTransport is returned when a rendezvous hands back a
// transport that cannot carry files.
var ErrUnsupportedTransport = errors.New("transport has no data channel")

// Peer is a rendezvous transport that also carries the file channel.
type Peer interface {
	rendezvous.Transport
	transfer.Channel
	OnData(f func([]byte))
}

// PeerFactory builds one peer per rendezvous attempt.
type PeerFactory func(initiator bool) (Peer, error)

// WebRTCPeers builds pion-backed peers from cfg.
func WebRTCPeers(cfg *config.Config, opts ...webrtc.Option) PeerFactory {
	return func(initiator bool) (Peer, error) {
		p, err := webrtc.NewPeer(cfg, initiator, opts...)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}
