package webrtc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/BioHazard786/linkdrop/internal/config"
	"github.com/BioHazard786/linkdrop/internal/utils"
	pion "github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"
)

// DataChannelLabel names the single channel files travel over.
const DataChannelLabel = "file-transfer"

var (
	ErrInvalidSignal  = errors.New("invalid signal")
	ErrNoRemoteSignal = errors.New("remote signal required before answering")
	ErrNotConnected   = errors.New("data channel not open")
	ErrPeerFailed     = errors.New("peer connection failed")
)

// Option tweaks peer construction.
type Option func(*pion.SettingEngine)

// WithLoopback gathers loopback candidates so two peers in one process can
// connect without any network.
func WithLoopback() Option {
	return func(se *pion.SettingEngine) {
		se.SetIncludeLoopbackCandidate(true)
	}
}

// Peer wraps a pion PeerConnection with one ordered data channel. Signals
// are complete session descriptions; ICE candidates are gathered before a
// signal is produced, so nothing trickles.
type Peer struct {
	pc        *pion.PeerConnection
	initiator bool

	mu           sync.Mutex
	dc           *pion.DataChannel
	local        json.RawMessage
	handlers     []func([]byte)
	lowThreshold uint64
	onLow        func()

	connected     chan struct{}
	connectedOnce sync.Once
	failed        chan error
	failedOnce    sync.Once
	closed        chan struct{}
	closedOnce    sync.Once
}

// NewPeer creates a peer. The initiator opens the data channel; the other
// side adopts it when negotiation completes.
func NewPeer(cfg *config.Config, initiator bool, opts ...Option) (*Peer, error) {
	var iceServers []pion.ICEServer
	if stun := cfg.GetSTUNServers(); len(stun) > 0 {
		iceServers = append(iceServers, pion.ICEServer{URLs: stun})
	}

	turnServers := cfg.GetTURNServers()
	if turnServers != nil {
		username, password := cfg.GetTURNCredentials()
		iceServers = append(iceServers, pion.ICEServer{
			URLs:       turnServers,
			Username:   username,
			Credential: password,
		})
	}

	policy := pion.ICETransportPolicyAll
	if turnServers != nil && (cfg.ForceRelay || utils.ShouldForceRelay()) {
		policy = pion.ICETransportPolicyRelay
	}

	var se pion.SettingEngine
	for _, opt := range opts {
		opt(&se)
	}
	api := pion.NewAPI(pion.WithSettingEngine(se))

	pc, err := api.NewPeerConnection(pion.Configuration{
		ICEServers:         iceServers,
		ICETransportPolicy: policy,
	})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	p := &Peer{
		pc:        pc,
		initiator: initiator,
		connected: make(chan struct{}),
		failed:    make(chan error, 1),
		closed:    make(chan struct{}),
	}

	pc.OnConnectionStateChange(func(state pion.PeerConnectionState) {
		logrus.WithFields(logrus.Fields{
			"function":  "Peer.OnConnectionStateChange",
			"initiator": initiator,
			"state":     state.String(),
		}).Debug("Peer connection state changed")

		switch state {
		case pion.PeerConnectionStateFailed:
			p.fail(ErrPeerFailed)
		case pion.PeerConnectionStateClosed:
			p.markClosed()
		}
	})

	if initiator {
		ordered := true
		dc, err := pc.CreateDataChannel(DataChannelLabel, &pion.DataChannelInit{Ordered: &ordered})
		if err != nil {
			_ = pc.Close()
			return nil, fmt.Errorf("create data channel: %w", err)
		}
		p.attach(dc)
	} else {
		pc.OnDataChannel(func(dc *pion.DataChannel) {
			if dc.Label() != DataChannelLabel {
				logrus.WithField("label", dc.Label()).Warn("Ignoring unexpected data channel")
				return
			}
			p.attach(dc)
		})
	}

	return p, nil
}

func (p *Peer) attach(dc *pion.DataChannel) {
	p.mu.Lock()
	p.dc = dc
	if p.lowThreshold > 0 {
		dc.SetBufferedAmountLowThreshold(p.lowThreshold)
	}
	if p.onLow != nil {
		dc.OnBufferedAmountLow(p.onLow)
	}
	p.mu.Unlock()

	dc.OnOpen(func() {
		p.connectedOnce.Do(func() { close(p.connected) })
	})
	dc.OnClose(p.markClosed)
	dc.OnMessage(func(msg pion.DataChannelMessage) {
		p.mu.Lock()
		handlers := p.handlers
		p.mu.Unlock()
		for _, h := range handlers {
			h(msg.Data)
		}
	})
}

// LocalSignal returns this side's session description once ICE gathering
// has finished. The answering side needs ApplyRemoteSignal first. Later
// calls return the same payload.
func (p *Peer) LocalSignal(ctx context.Context) (json.RawMessage, error) {
	p.mu.Lock()
	if p.local != nil {
		sig := p.local
		p.mu.Unlock()
		return sig, nil
	}
	p.mu.Unlock()

	var (
		desc pion.SessionDescription
		err  error
	)
	if p.initiator {
		desc, err = p.pc.CreateOffer(nil)
	} else {
		if p.pc.RemoteDescription() == nil {
			return nil, ErrNoRemoteSignal
		}
		desc, err = p.pc.CreateAnswer(nil)
	}
	if err != nil {
		return nil, fmt.Errorf("create description: %w", err)
	}

	gathered := pion.GatheringCompletePromise(p.pc)
	if err := p.pc.SetLocalDescription(desc); err != nil {
		return nil, fmt.Errorf("set local description: %w", err)
	}

	select {
	case <-gathered:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.closed:
		return nil, ErrNotConnected
	}

	sig, err := json.Marshal(p.pc.LocalDescription())
	if err != nil {
		return nil, fmt.Errorf("encode local description: %w", err)
	}

	p.mu.Lock()
	p.local = sig
	p.mu.Unlock()
	return sig, nil
}

// ApplyRemoteSignal installs the other side's session description. The
// initiator accepts only an answer, the other side only an offer.
func (p *Peer) ApplyRemoteSignal(sig json.RawMessage) error {
	var desc pion.SessionDescription
	if err := json.Unmarshal(sig, &desc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignal, err)
	}
	if desc.SDP == "" {
		return fmt.Errorf("%w: empty sdp", ErrInvalidSignal)
	}

	want := pion.SDPTypeOffer
	if p.initiator {
		want = pion.SDPTypeAnswer
	}
	if desc.Type != want {
		return fmt.Errorf("%w: expected %s, got %s", ErrInvalidSignal, want, desc.Type)
	}

	if err := p.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	return nil
}

// Connected is closed once the data channel is open.
func (p *Peer) Connected() <-chan struct{} { return p.connected }

// Failed delivers the first transport failure.
func (p *Peer) Failed() <-chan error { return p.failed }

// Closed is closed when the channel or connection goes away.
func (p *Peer) Closed() <-chan struct{} { return p.closed }

// OnData registers a handler for incoming messages. Register before
// signalling so no message is missed.
func (p *Peer) OnData(f func([]byte)) {
	p.mu.Lock()
	p.handlers = append(append([]func([]byte){}, p.handlers...), f)
	p.mu.Unlock()
}

func (p *Peer) Send(data []byte) error {
	dc := p.channel()
	if dc == nil {
		return ErrNotConnected
	}
	return dc.Send(data)
}

func (p *Peer) BufferedAmount() uint64 {
	dc := p.channel()
	if dc == nil {
		return 0
	}
	return dc.BufferedAmount()
}

func (p *Peer) SetBufferedAmountLowThreshold(th uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lowThreshold = th
	if p.dc != nil {
		p.dc.SetBufferedAmountLowThreshold(th)
	}
}

func (p *Peer) OnBufferedAmountLow(f func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onLow = f
	if p.dc != nil {
		p.dc.OnBufferedAmountLow(f)
	}
}

// Close tears the connection down. It is safe to call more than once.
func (p *Peer) Close() error {
	err := p.pc.Close()
	p.markClosed()
	return err
}

func (p *Peer) channel() *pion.DataChannel {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dc
}

func (p *Peer) fail(err error) {
	p.failedOnce.Do(func() { p.failed <- err })
}

func (p *Peer) markClosed() {
	p.closedOnce.Do(func() { close(p.closed) })
}
