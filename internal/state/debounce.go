package state

import (
	"context"
	"sync"
	"time"
)

const DefaultSearchDebounce = 500 * time.Millisecond

// Debouncer lets only the last of a burst of calls through.
type Debouncer struct {
	delay time.Duration

	mu  sync.Mutex
	gen uint64
}

func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{delay: max(delay, 0)}
}

// Settle waits out the delay and reports whether no newer call arrived meanwhile.
func (d *Debouncer) Settle(ctx context.Context) bool {
	d.mu.Lock()
	d.gen++
	mine := d.gen
	d.mu.Unlock()

	if d.delay > 0 {
		t := time.NewTimer(d.delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return false
		case <-t.C:
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	return mine == d.gen
}
