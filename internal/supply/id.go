package supply

import (
	"strconv"
	"sync"
	"time"
)

// IDGenerator hands out ids derived from the creation time in
// milliseconds. When the clock has not moved past the last id the next
// id is the last one plus one, so ids stay unique and time-ordered.
type IDGenerator struct {
	mu   sync.Mutex
	now  func() time.Time
	last int64
}

// NewIDGenerator creates a generator reading the given clock.
// A nil clock means time.Now.
func NewIDGenerator(now func() time.Time) *IDGenerator {
	if now == nil {
		now = time.Now
	}
	return &IDGenerator{now: now}
}

// Next returns a fresh id.
func (g *IDGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := g.now().UnixMilli()
	if id <= g.last {
		id = g.last + 1
	}
	g.last = id
	return strconv.FormatInt(id, 10)
}

// Observe raises the generator's floor above every existing id so that
// records loaded from storage can never collide with new ones.
func (g *IDGenerator) Observe(records []Record) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, r := range records {
		if n := NumericID(r.ID); n > g.last {
			g.last = n
		}
	}
}
