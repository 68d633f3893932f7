package ledger

import (
	"sync"
	"time"
)

// =============================================================================
// CLOCK - Injected time source
// =============================================================================

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// ManualClock returns a fixed time that only moves when told to.
// Step, when set, is added after every Now call so consecutive records
// get distinct timestamps.
type ManualClock struct {
	mu   sync.Mutex
	now  time.Time
	Step time.Duration
}

func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start.UTC()}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.Step)
	return t
}

func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t.UTC()
}

func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// =============================================================================
// DATE RANGE - Optional history bounds
// =============================================================================

// DefaultHistoryFloor is the lower bound used when a history request omits dateInit.
var DefaultHistoryFloor = time.Date(1999, time.January, 1, 0, 0, 0, 0, time.UTC)

// DateRange bounds a history query. Nil bounds fall back to the floor and now.
type DateRange struct {
	From *time.Time
	To   *time.Time
}

// resolve fills missing bounds. Both bounds are inclusive.
func (r DateRange) resolve(floor, now time.Time) (time.Time, time.Time) {
	from, to := floor, now
	if r.From != nil {
		from = r.From.UTC()
	}
	if r.To != nil {
		to = r.To.UTC()
	}
	return from, to
}

func within(t, from, to time.Time) bool {
	return !t.Before(from) && !t.After(to)
}
