package rendezvous

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/BioHazard786/linkdrop/internal/signaling"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu        sync.Mutex
	phases    []SenderPhase
	countdown []int
	rooms     []string
}

func (r *recorder) observer() SenderObserver {
	return SenderObserver{
		OnPhase: func(p SenderPhase) {
			r.mu.Lock()
			r.phases = append(r.phases, p)
			r.mu.Unlock()
		},
		OnCountdown: func(n int) {
			r.mu.Lock()
			r.countdown = append(r.countdown, n)
			r.mu.Unlock()
		},
		OnRoom: func(id, link string) {
			r.mu.Lock()
			r.rooms = append(r.rooms, id+" "+link)
			r.mu.Unlock()
		},
	}
}

func (r *recorder) snapshot() ([]SenderPhase, []int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]SenderPhase(nil), r.phases...), append([]int(nil), r.countdown...)
}

type senderFixture struct {
	sender     *Sender
	coord      *mockCoordinator
	transports *transportLog
	clock      *mockTimeProvider
	rec        *recorder
}

func newSenderFixture(coord *mockCoordinator) *senderFixture {
	f := &senderFixture{
		coord:      coord,
		transports: &transportLog{},
		clock:      newMockTimeProvider(),
		rec:        &recorder{},
	}
	f.sender = NewSender(SenderOptions{
		Coordinator:    coord,
		NewTransport:   f.transports.factory,
		TimeProvider:   f.clock,
		PollInterval:   time.Second,
		TimeoutTicks:   60,
		ConnectTimeout: time.Second,
		Observer:       f.rec.observer(),
	})
	return f
}

type openResult struct {
	t   Transport
	err error
}

func (f *senderFixture) openAsync(ctx context.Context) <-chan openResult {
	out := make(chan openResult, 1)
	go func() {
		t, err := f.sender.Open(ctx, "report.pdf", 1024)
		out <- openResult{t, err}
	}()
	return out
}

func waitResult(t *testing.T, ch <-chan openResult) openResult {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("Open did not return")
		return openResult{}
	}
}

func TestSenderConnectsOnTickOfFirstSignal(t *testing.T) {
	f := newSenderFixture(&mockCoordinator{status: signalAt(5)})
	res := f.openAsync(context.Background())

	tk := f.clock.ticker(t)
	for i := 0; i < 5; i++ {
		require.True(t, tk.tick(), "tick %d", i+1)
	}
	r := waitResult(t, res)
	require.NoError(t, r.err)

	st := f.sender.State()
	assert.Equal(t, SenderConnected, st.Phase)
	assert.Equal(t, "Ab3dE5f", st.RoomID)
	assert.Equal(t, 55, st.Countdown)
	assert.Equal(t, 5, f.coord.pollCount())
	assert.True(t, tk.isStopped())
	assert.False(t, tk.tick(), "ticker is inert after success")

	phases, countdown := f.rec.snapshot()
	assert.Equal(t, []SenderPhase{SenderCreatingRoom, SenderWaitingForReceiver, SenderConnecting, SenderConnected}, phases)
	assert.Equal(t, []int{60, 59, 58, 57, 56, 55}, countdown)

	made := f.transports.all()
	require.Len(t, made, 1)
	assert.Equal(t, []byte(receiverAnswer), []byte(made[0].appliedSignals()[0]))
	assert.False(t, made[0].isClosed())
}

func TestSenderTimesOutExactlyOnce(t *testing.T) {
	f := newSenderFixture(&mockCoordinator{})
	res := f.openAsync(context.Background())

	tk := f.clock.ticker(t)
	for i := 0; i < 60; i++ {
		require.True(t, tk.tick(), "tick %d", i+1)
	}
	r := waitResult(t, res)
	assert.ErrorIs(t, r.err, ErrRendezvousTimeout)
	assert.Nil(t, r.t)

	assert.True(t, tk.isStopped())
	assert.False(t, tk.tick(), "no tick is consumed after timeout")
	assert.Equal(t, 60, f.coord.pollCount())

	st := f.sender.State()
	assert.Equal(t, SenderTimedOut, st.Phase)
	assert.Empty(t, st.RoomID)
	assert.Empty(t, st.ShareLink)
	assert.Zero(t, st.Countdown)
	assert.ErrorIs(t, st.Err, ErrRendezvousTimeout)

	made := f.transports.all()
	require.Len(t, made, 1)
	assert.True(t, made[0].isClosed())
	assert.Empty(t, made[0].appliedSignals())

	phases, countdown := f.rec.snapshot()
	timedOut := 0
	for _, p := range phases {
		assert.NotEqual(t, SenderConnecting, p)
		if p == SenderTimedOut {
			timedOut++
		}
	}
	assert.Equal(t, 1, timedOut)
	assert.Equal(t, 0, countdown[len(countdown)-1])
}

func TestSenderSignalOnLastTickWins(t *testing.T) {
	f := newSenderFixture(&mockCoordinator{status: signalAt(60)})
	res := f.openAsync(context.Background())

	tk := f.clock.ticker(t)
	for i := 0; i < 60; i++ {
		require.True(t, tk.tick())
	}
	r := waitResult(t, res)
	require.NoError(t, r.err)
	assert.Equal(t, SenderConnected, f.sender.State().Phase)

	phases, _ := f.rec.snapshot()
	assert.NotContains(t, phases, SenderTimedOut)
}

func TestSenderSwallowsPollErrors(t *testing.T) {
	coord := &mockCoordinator{status: func(n int) (*signaling.RoomStatus, error) {
		if n < 4 {
			return nil, errFlaky
		}
		return signalAt(4)(n)
	}}
	f := newSenderFixture(coord)
	res := f.openAsync(context.Background())

	tk := f.clock.ticker(t)
	for i := 0; i < 4; i++ {
		require.True(t, tk.tick())
	}
	r := waitResult(t, res)
	require.NoError(t, r.err)
	assert.Equal(t, 4, coord.pollCount())
}

func TestSenderResetAfterTimeout(t *testing.T) {
	f := newSenderFixture(&mockCoordinator{})
	res := f.openAsync(context.Background())
	tk := f.clock.ticker(t)
	for i := 0; i < 60; i++ {
		require.True(t, tk.tick())
	}
	require.ErrorIs(t, waitResult(t, res).err, ErrRendezvousTimeout)

	_, err := f.sender.Open(context.Background(), "again", 1)
	assert.ErrorIs(t, err, ErrBusy, "timed out sessions need a reset first")

	f.sender.Reset()
	assert.Equal(t, SenderIdle, f.sender.State().Phase)

	f.coord.mu.Lock()
	f.coord.status = signalAt(1)
	f.coord.mu.Unlock()

	res = f.openAsync(context.Background())
	require.True(t, f.clock.ticker(t).tick())
	require.NoError(t, waitResult(t, res).err)
	assert.Equal(t, 2, f.coord.creates)
}

func TestSenderReusesConnection(t *testing.T) {
	f := newSenderFixture(&mockCoordinator{status: signalAt(1)})
	res := f.openAsync(context.Background())
	require.True(t, f.clock.ticker(t).tick())
	first := waitResult(t, res)
	require.NoError(t, first.err)

	second, err := f.sender.Open(context.Background(), "next.txt", 10)
	require.NoError(t, err)
	assert.Same(t, first.t, second)
	assert.Equal(t, 1, f.coord.creates)
	assert.Len(t, f.transports.all(), 1)
}

func connectedFixture(t *testing.T) (*senderFixture, *mockTransport) {
	t.Helper()
	f := newSenderFixture(&mockCoordinator{status: signalAt(1)})
	res := f.openAsync(context.Background())
	require.True(t, f.clock.ticker(t).tick())
	require.NoError(t, waitResult(t, res).err)
	made := f.transports.all()
	require.Len(t, made, 1)
	return f, made[0]
}

func (r *recorder) count(p SenderPhase) int {
	phases, _ := r.snapshot()
	n := 0
	for _, got := range phases {
		if got == p {
			n++
		}
	}
	return n
}

func TestSenderDoesNotReuseFailedConnection(t *testing.T) {
	f, tr := connectedFixture(t)
	tr.failed <- errors.New("ice failed")

	_, err := f.sender.Open(context.Background(), "next.txt", 10)
	assert.ErrorIs(t, err, ErrTransportError)

	st := f.sender.State()
	assert.Equal(t, SenderFailed, st.Phase)
	assert.ErrorIs(t, st.Err, ErrTransportError)
	assert.Empty(t, st.RoomID)
	require.Eventually(t, tr.isClosed, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return f.rec.count(SenderFailed) == 1 }, time.Second, time.Millisecond)

	_, err = f.sender.Open(context.Background(), "next.txt", 10)
	assert.ErrorIs(t, err, ErrBusy)
	assert.ErrorIs(t, err, ErrTransportError)
	assert.Equal(t, 1, f.coord.creates)
}

func TestSenderNoticesPeerHangUp(t *testing.T) {
	f, tr := connectedFixture(t)
	tr.hangUp()

	require.Eventually(t, func() bool { return f.sender.State().Phase == SenderFailed }, time.Second, time.Millisecond)
	st := f.sender.State()
	assert.ErrorIs(t, st.Err, ErrTransportError)
	assert.ErrorIs(t, st.Err, ErrPeerClosed)
	require.Eventually(t, tr.isClosed, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return f.rec.count(SenderFailed) == 1 }, time.Second, time.Millisecond)

	f.sender.Reset()
	f.coord.mu.Lock()
	f.coord.status = signalAt(f.coord.polls + 1)
	f.coord.mu.Unlock()

	res := f.openAsync(context.Background())
	require.True(t, f.clock.ticker(t).tick())
	r := waitResult(t, res)
	require.NoError(t, r.err)
	assert.NotSame(t, tr, r.t)
	assert.Equal(t, 2, f.coord.creates)
}

func TestSenderResetSilencesWatcher(t *testing.T) {
	f, tr := connectedFixture(t)
	f.sender.Reset()
	assert.True(t, tr.isClosed())

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, SenderIdle, f.sender.State().Phase)
	assert.Zero(t, f.rec.count(SenderFailed))
}

func TestSenderRoomCreationFailure(t *testing.T) {
	boom := errors.New("http 500")
	f := newSenderFixture(&mockCoordinator{createErr: boom})

	_, err := f.sender.Open(context.Background(), "a", 1)
	assert.ErrorIs(t, err, ErrRoomCreationFailed)
	assert.ErrorIs(t, err, boom)

	st := f.sender.State()
	assert.Equal(t, SenderFailed, st.Phase)
	assert.True(t, f.transports.all()[0].isClosed())
}

func TestSenderCloseDuringWaitIsSilent(t *testing.T) {
	f := newSenderFixture(&mockCoordinator{})
	res := f.openAsync(context.Background())
	tk := f.clock.ticker(t)
	require.True(t, tk.tick())
	require.Eventually(t, func() bool { return f.coord.pollCount() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, f.sender.Close())
	phasesAtClose, countdownAtClose := f.rec.snapshot()

	r := waitResult(t, res)
	assert.ErrorIs(t, r.err, ErrClosed)
	assert.True(t, f.transports.all()[0].isClosed())
	assert.False(t, tk.tick())

	phases, countdown := f.rec.snapshot()
	assert.Equal(t, phasesAtClose, phases, "no phase events after close")
	assert.Equal(t, countdownAtClose, countdown, "no countdown events after close")

	_, err := f.sender.Open(context.Background(), "a", 1)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSenderContextCancel(t *testing.T) {
	f := newSenderFixture(&mockCoordinator{})
	ctx, cancel := context.WithCancel(context.Background())
	res := f.openAsync(ctx)
	tk := f.clock.ticker(t)
	require.True(t, tk.tick())

	cancel()
	r := waitResult(t, res)
	assert.ErrorIs(t, r.err, context.Canceled)
	assert.Equal(t, SenderFailed, f.sender.State().Phase)
	assert.True(t, f.transports.all()[0].isClosed())
}

func TestSenderConnectFailure(t *testing.T) {
	f := newSenderFixture(&mockCoordinator{status: signalAt(1)})
	f.transports.setup = func(m *mockTransport) {
		m.noConnect = true
		m.failed <- errors.New("ice failed")
	}

	res := f.openAsync(context.Background())
	require.True(t, f.clock.ticker(t).tick())
	r := waitResult(t, res)
	assert.ErrorIs(t, r.err, ErrTransportError)
	assert.Equal(t, SenderFailed, f.sender.State().Phase)
}

func TestSenderPhaseStrings(t *testing.T) {
	assert.Equal(t, "waiting for receiver", SenderWaitingForReceiver.String())
	assert.Equal(t, "timed out", SenderTimedOut.String())
	assert.Equal(t, "unknown", SenderPhase(99).String())
}
