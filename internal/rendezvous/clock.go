package rendezvous

import "time"

// Ticker is the part of *time.Ticker the wait loop uses.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TimeProvider creates tickers. Tests inject a manual one for
// deterministic countdowns.
type TimeProvider interface {
	NewTicker(d time.Duration) Ticker
}

// RealTimeProvider implements TimeProvider with the standard library.
type RealTimeProvider struct{}

func (RealTimeProvider) NewTicker(d time.Duration) Ticker {
	return realTicker{time.NewTicker(d)}
}

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }
