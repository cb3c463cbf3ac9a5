package device

import (
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/itohio/simsensor/pkg/pattern"
)

// generator is the generation clock. While a run is active it evaluates the pattern at
// every data tick and records the value in latest under the tick's nominal time.
type generator struct {
	wake    chan struct{}
	latest  *latest
	log     *zap.Logger
	metrics *Metrics

	mu  sync.Mutex
	cad cadence
	run pattern.Pattern // nil while idle
	k   int
	rnd *rand.Rand
}

func newGenerator(hz int, start time.Time, rnd *rand.Rand, l *latest, log *zap.Logger, m *Metrics) *generator {
	return &generator{
		wake:    make(chan struct{}, 1),
		latest:  l,
		log:     log,
		metrics: m,
		cad:     newCadence(hz, start),
		rnd:     rnd,
	}
}

func (g *generator) due() (time.Time, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.run == nil {
		return time.Time{}, false
	}
	return g.cad.next(), true
}

func (g *generator) fire(t time.Time) {
	g.catchUp(t)
}

// catchUp applies every generation tick due at or before t.
func (g *generator) catchUp(t time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for g.run != nil && !g.cad.next().After(t) {
		g.step()
	}
}

// step applies one generation tick. Called with g.mu held.
func (g *generator) step() {
	t := g.cad.next()
	v, ok := g.run.At(g.k, g.rnd)
	if !ok {
		g.latest.end(t)
		g.log.Info("Simulation ended",
			zap.String("pattern", pattern.Describe(g.run)),
			zap.Int("samples", g.k))
		g.run = nil
		return
	}
	g.latest.store(t, v)
	g.k++
	g.cad.advance()
	g.metrics.Generated.Inc()
}

// observe returns the value visible at t. Generation ticks due at t are applied first;
// ticks the generator already ran past t do not affect the result.
func (g *generator) observe(t time.Time) (float32, bool) {
	g.catchUp(t)
	return g.latest.at(t)
}

// start replaces any active run with p; tick 0 happens at t.
func (g *generator) start(p pattern.Pattern, t time.Time) {
	g.mu.Lock()
	if g.run != nil {
		g.log.Info("Replacing active simulation",
			zap.String("pattern", pattern.Describe(g.run)),
			zap.Int("samples", g.k))
	}
	g.run = p
	g.k = 0
	g.cad.restart(t)
	g.mu.Unlock()
	notify(g.wake)
}

func (g *generator) setRate(hz int, now time.Time) {
	g.mu.Lock()
	if g.run != nil {
		g.cad.retune(hz, now)
	} else {
		g.cad.hz = hz
	}
	g.mu.Unlock()
	notify(g.wake)
}

func (g *generator) state() (run pattern.Pattern, k int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.run, g.k
}
