package agent

import "time"

// ReconnectPolicy decides whether and when to re-dial the notifier channel
// after it closed unexpectedly. attempt starts at 0.
type ReconnectPolicy interface {
	Next(attempt int) (delay time.Duration, ok bool)
}

// NoReconnect never re-dials. The operator reconnects by hand.
type NoReconnect struct{}

func (NoReconnect) Next(int) (time.Duration, bool) { return 0, false }

// Backoff re-dials with exponential delays capped at Max. Attempts <= 0
// retries forever.
type Backoff struct {
	Initial  time.Duration
	Max      time.Duration
	Attempts int
}

func (b Backoff) Next(attempt int) (time.Duration, bool) {
	if b.Attempts > 0 && attempt >= b.Attempts {
		return 0, false
	}
	d := b.Initial
	if d <= 0 {
		d = time.Second
	}
	for i := 0; i < attempt; i++ {
		d *= 2
		if b.Max > 0 && d >= b.Max {
			return b.Max, true
		}
	}
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}
	return d, true
}
