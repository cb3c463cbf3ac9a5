package device

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// maxBacklog is how far a stage may fall behind before it drops missed ticks.
const maxBacklog = time.Second

// cadence is an exact nominal schedule: tick n happens at anchor + n/hz seconds.
// Integer arithmetic keeps non-integer periods (e.g. 30 Hz) from drifting.
type cadence struct {
	hz     int
	anchor time.Time
	n      int64
}

func newCadence(hz int, start time.Time) cadence {
	return cadence{hz: hz, anchor: start}
}

func (c *cadence) next() time.Time {
	return c.anchor.Add(time.Duration(c.n * int64(time.Second) / int64(c.hz)))
}

func (c *cadence) advance() {
	c.n++
	if c.n >= int64(c.hz) {
		c.anchor = c.anchor.Add(time.Second)
		c.n -= int64(c.hz)
	}
}

func (c *cadence) restart(t time.Time) {
	c.anchor = t
	c.n = 0
}

// retune switches to hz. The pending tick is kept unless one period of the new rate
// from now comes sooner.
func (c *cadence) retune(hz int, now time.Time) {
	next := c.next()
	if alt := now.Add(period(hz)); alt.Before(next) {
		next = alt
	}
	c.hz = hz
	c.restart(next)
}

func period(hz int) time.Duration {
	return time.Second / time.Duration(hz)
}

// schedule is a stage driven by drive.
type schedule interface {
	// due returns the nominal time of the next tick, or false while idle.
	due() (time.Time, bool)
	// fire runs the tick due at t. Stale t values are ignored.
	fire(t time.Time)
}

// resyncer is implemented by stages that drop their backlog instead of catching up.
type resyncer interface {
	resync(now time.Time)
}

// pipeline serializes periodic stages that hand data to one another. A stage firing at t
// first runs every earlier tick of its peers, so the order in which the stages observe
// shared state depends only on nominal tick times, not on which goroutine woke first.
type pipeline struct {
	mu     sync.Mutex
	stages []*periodic // earlier stages win ties
}

// add appends a stage running tick at hz, starting at start.
func (pl *pipeline) add(hz int, start time.Time, tick func(time.Time)) *periodic {
	p := &periodic{
		wake: make(chan struct{}, 1),
		tick: tick,
		pipe: pl,
		cad:  newCadence(hz, start),
	}
	pl.stages = append(pl.stages, p)
	return p
}

// do runs fn with the pipeline locked.
func (pl *pipeline) do(fn func()) {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	fn()
}

// runUntil fires every tick due at or before t in nominal order. Called with mu held.
func (pl *pipeline) runUntil(t time.Time) {
	for {
		var next *periodic
		var at time.Time
		for _, p := range pl.stages {
			n := p.cad.next()
			if n.After(t) {
				continue
			}
			if next == nil || n.Before(at) {
				next, at = p, n
			}
		}
		if next == nil {
			return
		}
		next.cad.advance()
		next.tick(at)
	}
}

// periodic is a free-running stage calling tick on every nominal tick.
type periodic struct {
	wake chan struct{}
	tick func(t time.Time)
	pipe *pipeline

	cad cadence // guarded by pipe.mu
}

func (p *periodic) due() (time.Time, bool) {
	p.pipe.mu.Lock()
	defer p.pipe.mu.Unlock()
	return p.cad.next(), true
}

func (p *periodic) fire(t time.Time) {
	p.pipe.mu.Lock()
	defer p.pipe.mu.Unlock()
	if !p.cad.next().Equal(t) {
		return
	}
	p.pipe.runUntil(t)
}

func (p *periodic) resync(now time.Time) {
	p.rephase(now)
}

// setRate changes the tick rate, effective no later than the pending tick.
func (p *periodic) setRate(hz int, now time.Time) {
	p.pipe.do(func() { p.cad.retune(hz, now) })
	notify(p.wake)
}

// rephase makes the next tick happen at t and the following ones one period apart.
func (p *periodic) rephase(t time.Time) {
	p.pipe.do(func() { p.cad.restart(t) })
	notify(p.wake)
}

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// drive runs s on the wall clock until ctx is cancelled. Late ticks are fired back to back
// with their nominal times so the stage output does not depend on scheduling jitter.
func drive(ctx context.Context, s schedule, wake <-chan struct{}, now func() time.Time, log *zap.Logger) error {
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		t, ok := s.due()
		if !ok {
			select {
			case <-ctx.Done():
				return nil
			case <-wake:
				continue
			}
		}

		current := now()
		if wait := t.Sub(current); wait > 0 {
			timer.Reset(wait)
			select {
			case <-ctx.Done():
				return nil
			case <-wake:
				timer.Stop()
				continue
			case <-timer.C:
			}
		} else if lag := -wait; lag > maxBacklog {
			if r, ok := s.(resyncer); ok {
				log.Warn("Stage fell behind, dropping missed ticks", zap.Duration("lag", lag))
				r.resync(current)
				continue
			}
		}

		if ctx.Err() != nil {
			return nil
		}
		s.fire(t)
	}
}
