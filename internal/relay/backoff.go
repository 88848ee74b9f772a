package relay

import "time"

// Backoff yields reconnect delays that double from a floor up to a ceiling.
// It is not safe for concurrent use; the Manager guards it with its mutex.
type Backoff struct {
	floor   time.Duration
	ceiling time.Duration
	next    time.Duration
}

// NewBackoff creates a Backoff starting at floor. A ceiling below the floor
// is raised to the floor.
func NewBackoff(floor, ceiling time.Duration) *Backoff {
	if floor <= 0 {
		floor = time.Millisecond
	}
	if ceiling < floor {
		ceiling = floor
	}
	return &Backoff{floor: floor, ceiling: ceiling, next: floor}
}

// Next returns the current delay and advances to the following one.
func (b *Backoff) Next() time.Duration {
	d := b.next
	// compare against half the ceiling so doubling cannot overflow
	if b.next > b.ceiling/2 {
		b.next = b.ceiling
	} else {
		b.next *= 2
	}
	return d
}

// Peek returns the delay the next call to Next will yield.
func (b *Backoff) Peek() time.Duration {
	return b.next
}

// Reset returns the delay to the floor.
func (b *Backoff) Reset() {
	b.next = b.floor
}
