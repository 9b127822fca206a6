package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/BioHazard786/linkdrop/internal/transfer/transfertest"
)

// fakeNetwork pairs peers through their signals: an offer names the pair,
// the answerer picks the other endpoint of that pair.
type fakeNetwork struct {
	mu    sync.Mutex
	pairs map[string]*fakePair
	next  int
	peers []*fakePeer
}

type fakePair struct {
	a, b          *transfertest.Endpoint
	offer, answer *fakePeer
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{pairs: make(map[string]*fakePair)}
}

func (n *fakeNetwork) factory(initiator bool) (Peer, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	p := &fakePeer{
		net:       n,
		initiator: initiator,
		connected: make(chan struct{}),
		failed:    make(chan error, 1),
		closed:    make(chan struct{}),
	}
	if initiator {
		n.next++
		id := fmt.Sprintf("pair-%d", n.next)
		a, b := transfertest.NewPair()
		n.pairs[id] = &fakePair{a: a, b: b, offer: p}
		p.pairID = id
		p.ep = a
	}
	n.peers = append(n.peers, p)
	return p, nil
}

func (n *fakeNetwork) all() []*fakePeer {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*fakePeer(nil), n.peers...)
}

type fakeSignal struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

type fakePeer struct {
	net       *fakeNetwork
	initiator bool

	mu       sync.Mutex
	pairID   string
	ep       *transfertest.Endpoint
	pending  []func([]byte)
	th       uint64
	onLow    func()
	isClosed bool

	connected     chan struct{}
	connectedOnce sync.Once
	failed        chan error
	closed        chan struct{}
	closedOnce    sync.Once
}

func (p *fakePeer) LocalSignal(context.Context) (json.RawMessage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pairID == "" {
		return nil, errors.New("no remote signal yet")
	}
	typ := "answer"
	if p.initiator {
		typ = "offer"
	}
	return json.Marshal(fakeSignal{Type: typ, SDP: p.pairID})
}

func (p *fakePeer) ApplyRemoteSignal(raw json.RawMessage) error {
	var sig fakeSignal
	if err := json.Unmarshal(raw, &sig); err != nil {
		return err
	}
	p.net.mu.Lock()
	pair, ok := p.net.pairs[sig.SDP]
	if ok && !p.initiator {
		pair.answer = p
	}
	p.net.mu.Unlock()
	if !ok {
		return errors.New("unknown pair")
	}

	if !p.initiator {
		p.mu.Lock()
		p.pairID = sig.SDP
		p.ep = pair.b
		for _, h := range p.pending {
			pair.b.OnData(h)
		}
		p.pending = nil
		if p.onLow != nil {
			pair.b.OnBufferedAmountLow(p.onLow)
		}
		if p.th > 0 {
			pair.b.SetBufferedAmountLowThreshold(p.th)
		}
		p.mu.Unlock()
	}
	p.connectedOnce.Do(func() { close(p.connected) })
	return nil
}

func (p *fakePeer) Connected() <-chan struct{} { return p.connected }
func (p *fakePeer) Failed() <-chan error       { return p.failed }
func (p *fakePeer) Closed() <-chan struct{}    { return p.closed }

func (p *fakePeer) endpoint() *transfertest.Endpoint {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ep
}

func (p *fakePeer) OnData(f func([]byte)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ep == nil {
		p.pending = append(p.pending, f)
		return
	}
	p.ep.OnData(f)
}

func (p *fakePeer) Send(data []byte) error {
	ep := p.endpoint()
	if ep == nil {
		return errors.New("not connected")
	}
	return ep.Send(data)
}

func (p *fakePeer) BufferedAmount() uint64 {
	ep := p.endpoint()
	if ep == nil {
		return 0
	}
	return ep.BufferedAmount()
}

func (p *fakePeer) SetBufferedAmountLowThreshold(th uint64) {
	p.mu.Lock()
	p.th = th
	ep := p.ep
	p.mu.Unlock()
	if ep != nil {
		ep.SetBufferedAmountLowThreshold(th)
	}
}

func (p *fakePeer) OnBufferedAmountLow(f func()) {
	p.mu.Lock()
	p.onLow = f
	ep := p.ep
	p.mu.Unlock()
	if ep != nil {
		ep.OnBufferedAmountLow(f)
	}
}

// Close closes this peer and, like a real data channel, its remote side.
func (p *fakePeer) Close() error {
	p.mu.Lock()
	id := p.pairID
	p.isClosed = true
	p.mu.Unlock()
	p.markClosed()

	if id == "" {
		return nil
	}
	p.net.mu.Lock()
	pair := p.net.pairs[id]
	p.net.mu.Unlock()

	_ = pair.a.Close()
	_ = pair.b.Close()
	for _, other := range []*fakePeer{pair.offer, pair.answer} {
		if other != nil && other != p {
			other.markClosed()
		}
	}
	return nil
}

func (p *fakePeer) markClosed() {
	p.closedOnce.Do(func() { close(p.closed) })
}

func (p *fakePeer) wasClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.isClosed
}
