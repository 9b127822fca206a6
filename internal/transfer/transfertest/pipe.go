// Package transfertest provides an in-memory data channel for tests.
package transfertest

import (
	"errors"
	"sync"
)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("transfertest: endpoint closed")

// Endpoint is one side of an in-memory ordered channel. Frames sent on one
// endpoint are delivered, in order, to the OnData handlers of its peer by a
// pump goroutine. BufferedAmount counts frames not yet delivered, and the
// low callback fires when it falls to the threshold from above, the way a
// WebRTC data channel behaves.
type Endpoint struct {
	peer *Endpoint

	mu          sync.Mutex
	cond        *sync.Cond
	queue       [][]byte
	buffered    uint64
	maxBuffered uint64
	threshold   uint64
	onLow       func()
	handlers    []func([]byte)
	closed      bool
	sent        int

	gate    chan struct{}
	closing chan struct{}
	done    chan struct{}
}

// NewPair returns two connected endpoints. Call Close on both when done.
func NewPair() (*Endpoint, *Endpoint) {
	a, b := newEndpoint(), newEndpoint()
	a.peer, b.peer = b, a
	go a.pump()
	go b.pump()
	return a, b
}

func newEndpoint() *Endpoint {
	e := &Endpoint{closing: make(chan struct{}), done: make(chan struct{})}
	e.cond = sync.NewCond(&e.mu)
	return e
}

func (e *Endpoint) Send(data []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	frame := append([]byte(nil), data...)
	e.queue = append(e.queue, frame)
	e.buffered += uint64(len(frame))
	if e.buffered > e.maxBuffered {
		e.maxBuffered = e.buffered
	}
	e.sent++
	e.cond.Broadcast()
	return nil
}

func (e *Endpoint) BufferedAmount() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buffered
}

func (e *Endpoint) SetBufferedAmountLowThreshold(th uint64) {
	e.mu.Lock()
	e.threshold = th
	e.mu.Unlock()
}

func (e *Endpoint) OnBufferedAmountLow(f func()) {
	e.mu.Lock()
	e.onLow = f
	e.mu.Unlock()
}

// SetGate makes the pump receive from gate before each delivery, holding
// frames in the buffer until the test releases them. nil removes the gate.
func (e *Endpoint) SetGate(gate chan struct{}) {
	e.mu.Lock()
	e.gate = gate
	e.mu.Unlock()
}

// OnData registers a handler for frames arriving from the peer.
func (e *Endpoint) OnData(f func([]byte)) {
	e.mu.Lock()
	e.handlers = append(e.handlers, f)
	e.mu.Unlock()
}

// MaxBuffered is the highest BufferedAmount observed.
func (e *Endpoint) MaxBuffered() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.maxBuffered
}

// Sent is the number of frames accepted by Send.
func (e *Endpoint) Sent() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sent
}

// Close stops outbound delivery and drops queued frames.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	close(e.closing)
	e.cond.Broadcast()
	e.mu.Unlock()
	<-e.done
	return nil
}

// Done is closed after the endpoint's pump exits.
func (e *Endpoint) Done() <-chan struct{} {
	return e.done
}

func (e *Endpoint) pump() {
	defer close(e.done)
	for {
		e.mu.Lock()
		for len(e.queue) == 0 && !e.closed {
			e.cond.Wait()
		}
		if e.closed {
			e.mu.Unlock()
			return
		}
		frame := e.queue[0]
		gate := e.gate
		e.mu.Unlock()

		if gate != nil {
			select {
			case <-gate:
			case <-e.closing:
				return
			}
		}

		e.peer.deliver(frame)

		e.mu.Lock()
		e.queue = e.queue[1:]
		before := e.buffered
		e.buffered -= uint64(len(frame))
		fire := before > e.threshold && e.buffered <= e.threshold
		onLow := e.onLow
		e.mu.Unlock()

		if fire && onLow != nil {
			onLow()
		}
	}
}

func (e *Endpoint) deliver(frame []byte) {
	e.mu.Lock()
	handlers := append([]func([]byte){}, e.handlers...)
	e.mu.Unlock()
	for _, h := range handlers {
		h(frame)
	}
}
