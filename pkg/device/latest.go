package device

import (
	"sync"
	"time"
)

// minHistory is the smallest number of generation ticks latest remembers.
const minHistory = 16

// entry is one generation tick: the value produced at its nominal time, or the end of
// the run when live is false.
type entry struct {
	at   time.Time
	v    float32
	live bool
}

// latest holds the most recent generated value, indexed by the nominal time it was
// produced. A reader asking about time t sees the value of the last generation tick at
// or before t, so a resampler that wakes late still reads what it would have read on time.
type latest struct {
	mu      sync.Mutex
	ring    []entry
	head    int // next write position
	n       int
	last    float32
	hasLast bool
}

func newLatest(size int) *latest {
	if size < minHistory {
		size = minHistory
	}
	return &latest{ring: make([]entry, size)}
}

// store publishes v for the generation tick at t.
func (l *latest) store(t time.Time, v float32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.push(entry{at: t, v: v, live: true})
	l.last, l.hasLast = v, true
}

// end marks the run as finished at t. The last value is kept for status reporting.
func (l *latest) end(t time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.push(entry{at: t})
}

func (l *latest) push(e entry) {
	l.ring[l.head] = e
	l.head = (l.head + 1) % len(l.ring)
	if l.n < len(l.ring) {
		l.n++
	}
}

// reset forgets everything.
func (l *latest) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.head, l.n = 0, 0
	l.last, l.hasLast = 0, false
}

// at returns the value to sample at t, or false when no run was producing at t.
func (l *latest) at(t time.Time) (float32, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := 1; i <= l.n; i++ {
		e := l.ring[(l.head-i+len(l.ring))%len(l.ring)]
		if !e.at.After(t) {
			return e.v, e.live
		}
	}
	return 0, false
}

// lastValue returns the most recently stored value, even after its run ended.
func (l *latest) lastValue() (float32, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last, l.hasLast
}
