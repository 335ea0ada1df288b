package device

import "time"

// timerSet tracks every timer and ticker a session has armed, so CLOSING
// can release all of them atomically. This is the mechanism behind
// spec §3's central leak-prevention invariant: every timer handle is
// either pending or has been removed from the set before being cleared.
type timerSet struct {
	tickers map[string]*time.Ticker
	timers  map[string]*time.Timer
}

func newTimerSet() *timerSet {
	return &timerSet{
		tickers: make(map[string]*time.Ticker),
		timers:  make(map[string]*time.Timer),
	}
}

// armTicker starts (or restarts) a named, repeating timer and returns its
// fire channel.
func (t *timerSet) armTicker(name string, d time.Duration) <-chan time.Time {
	t.stopTicker(name)
	ticker := time.NewTicker(d)
	t.tickers[name] = ticker
	return ticker.C
}

// stopTicker cancels a named ticker. Idempotent: stopping an
// already-cleared ticker is a no-op.
func (t *timerSet) stopTicker(name string) {
	if ticker, ok := t.tickers[name]; ok {
		ticker.Stop()
		delete(t.tickers, name)
	}
}

// armTimer starts (or restarts) a named, one-shot timer and returns its
// fire channel.
func (t *timerSet) armTimer(name string, d time.Duration) <-chan time.Time {
	t.stopTimer(name)
	timer := time.NewTimer(d)
	t.timers[name] = timer
	return timer.C
}

// stopTimer cancels a named timer. Idempotent.
func (t *timerSet) stopTimer(name string) {
	if timer, ok := t.timers[name]; ok {
		timer.Stop()
		delete(t.timers, name)
	}
}

// stopAll releases every timer and ticker currently tracked.
func (t *timerSet) stopAll() {
	for name := range t.tickers {
		t.stopTicker(name)
	}
	for name := range t.timers {
		t.stopTimer(name)
	}
}

// len reports the number of live timers/tickers, used by the leak test.
func (t *timerSet) len() int {
	return len(t.tickers) + len(t.timers)
}
