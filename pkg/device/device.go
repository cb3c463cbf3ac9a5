// Package device implements the simulated sensor: a generation clock evaluating a pattern,
// a resampler holding the latest value into a drop-oldest ring buffer, and a sender
// draining that buffer onto the link.
package device

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/itohio/simsensor/pkg/command"
	"github.com/itohio/simsensor/pkg/config"
	"github.com/itohio/simsensor/pkg/pattern"
	"github.com/itohio/simsensor/pkg/ringbuf"
)

const (
	// DefaultMaxRate is the rate ceiling used when none is configured.
	DefaultMaxRate = 1000
	// DefaultTxQueue is the transmit queue length used when none is configured.
	DefaultTxQueue = 64
)

// ErrInvalidRate is returned for a rate that is not a positive integer.
var ErrInvalidRate = errors.New("rate must be positive")

// Rates holds the three clock rates in Hz.
type Rates struct {
	Data int `json:"data"`
	Read int `json:"read"`
	Send int `json:"send"`
}

// Status is a point-in-time snapshot of the device state.
type Status struct {
	Rates    Rates     `json:"rates"`
	Buffered int       `json:"buffered"`
	Capacity int       `json:"capacity"`
	Running  bool      `json:"running"`
	Pattern  string    `json:"pattern,omitempty"`
	Tick     int       `json:"tick"` // generation ticks completed in the current or last run
	Last     float32   `json:"last"`
	HasLast  bool      `json:"has_last"`
	Pending  []float32 `json:"pending"` // buffered values, oldest first
}

// Option configures a Device.
type Option func(*Device)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(d *Device) { d.log = l }
}

// WithMetrics sets the metrics instruments. The default is an unregistered set.
func WithMetrics(m *Metrics) Option {
	return func(d *Device) { d.metrics = m }
}

// WithClock replaces the wall clock. Run still sleeps on real timers, so a custom clock is
// only useful when ticks are fired by hand.
func WithClock(now func() time.Time) Option {
	return func(d *Device) { d.now = now }
}

// Device is a simulated sensor.
type Device struct {
	log     *zap.Logger
	metrics *Metrics
	now     func() time.Time
	maxRate int

	buf    *ringbuf.Buffer
	latest *latest
	gen    *generator
	pipe   pipeline
	reader *periodic
	sender *periodic
	tx     *transmitter
	out    func(float32)

	mu    sync.Mutex
	rates Rates
}

// New creates a device from cfg. Missing values fall back to defaults.
func New(cfg config.DeviceConfig, opts ...Option) *Device {
	d := &Device{
		log:     zap.NewNop(),
		now:     time.Now,
		maxRate: cfg.MaxRate,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.metrics == nil {
		d.metrics = NewMetrics(nil)
	}
	if d.maxRate <= 0 {
		d.maxRate = DefaultMaxRate
	}
	txQueue := cfg.TxQueue
	if txQueue <= 0 {
		txQueue = DefaultTxQueue
	}

	d.rates = Rates{
		Data: d.clamp("data", cfg.DataRate),
		Read: d.clamp("read", cfg.ReadRate),
		Send: d.clamp("send", cfg.SendRate),
	}

	start := d.now()
	d.buf = ringbuf.New(cfg.BufferSize)
	// Enough history for a resampler lagging up to maxBacklog behind the fastest generator.
	d.latest = newLatest(2 * d.maxRate)
	d.gen = newGenerator(d.rates.Data, start, newRand(cfg.Seed), d.latest, d.log.Named("generator"), d.metrics)
	d.reader = d.pipe.add(d.rates.Read, start, d.readTick)
	d.sender = d.pipe.add(d.rates.Send, start, d.sendTick)
	d.tx = newTransmitter(txQueue, d.log.Named("sender"), d.metrics)
	d.out = d.tx.enqueue

	d.publishRates(d.rates)
	return d
}

func newRand(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewPCG(uint64(seed), uint64(seed)>>1))
}

// Run drives the clocks and the transmitter until ctx is cancelled.
func (d *Device) Run(ctx context.Context) error {
	now := d.now()
	d.pipe.do(func() {
		// A run started before Run keeps the resampler in phase with it.
		if run, _ := d.gen.state(); run == nil {
			d.reader.cad.restart(now)
		}
		d.sender.cad.restart(now)
	})

	r := d.Rates()
	d.log.Info("Device running",
		zap.Int("data_rate", r.Data),
		zap.Int("read_rate", r.Read),
		zap.Int("send_rate", r.Send),
		zap.Int("buffer_size", d.buf.Cap()))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return drive(ctx, d.gen, d.gen.wake, d.now, d.log.Named("generator")) })
	g.Go(func() error { return drive(ctx, d.reader, d.reader.wake, d.now, d.log.Named("resampler")) })
	g.Go(func() error { return drive(ctx, d.sender, d.sender.wake, d.now, d.log.Named("sender")) })
	g.Go(func() error { return d.tx.run(ctx) })

	err := g.Wait()
	d.log.Info("Device stopped")
	return err
}

// SetDataRate changes the generation rate. An active run keeps its tick index.
func (d *Device) SetDataRate(hz int) error {
	hz, err := d.checkRate("data", hz)
	if err != nil {
		return err
	}
	d.gen.setRate(hz, d.now())
	d.updateRates(func(r *Rates) { r.Data = hz })
	return nil
}

// SetReadRate changes the resampling rate.
func (d *Device) SetReadRate(hz int) error {
	hz, err := d.checkRate("read", hz)
	if err != nil {
		return err
	}
	d.reader.setRate(hz, d.now())
	d.updateRates(func(r *Rates) { r.Read = hz })
	return nil
}

// SetSendRate changes the transmission rate.
func (d *Device) SetSendRate(hz int) error {
	hz, err := d.checkRate("send", hz)
	if err != nil {
		return err
	}
	d.sender.setRate(hz, d.now())
	d.updateRates(func(r *Rates) { r.Send = hz })
	return nil
}

// Start begins a new run of p, replacing any active one. Buffered samples of a previous
// run are not discarded.
func (d *Device) Start(p pattern.Pattern) error {
	if p == nil {
		return fmt.Errorf("%w: no pattern", command.ErrMalformed)
	}
	t := d.now()
	// Install the run and resample in phase with it as one step, so no resampler tick
	// sees the new run on the old phase.
	d.pipe.do(func() {
		d.gen.start(p, t)
		d.reader.cad.restart(t)
	})
	notify(d.reader.wake)

	d.metrics.Runs.WithLabelValues(p.Kind().String()).Inc()
	d.log.Info("Simulation started", zap.String("pattern", pattern.Describe(p)))
	return nil
}

// Clear discards buffered samples and the latest value. An active run keeps going.
func (d *Device) Clear() {
	d.latest.reset()
	d.buf.Clear()
	d.metrics.Buffered.Set(0)
	d.log.Debug("Buffers cleared")
}

// Apply executes a parsed command.
func (d *Device) Apply(cmd command.Command) error {
	switch cmd.Type {
	case command.SetDataRate:
		return d.SetDataRate(cmd.Rate)
	case command.SetReadRate:
		return d.SetReadRate(cmd.Rate)
	case command.SetSendRate:
		return d.SetSendRate(cmd.Rate)
	case command.StartPattern:
		return d.Start(cmd.Pattern)
	default:
		return fmt.Errorf("%w: %s", command.ErrUnknownCommand, cmd.Type)
	}
}

// Rates returns the current clock rates.
func (d *Device) Rates() Rates {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rates
}

// Status returns a snapshot of the device state.
func (d *Device) Status() Status {
	run, k := d.gen.state()
	last, hasLast := d.latest.lastValue()
	pending := d.buf.Snapshot()
	s := Status{
		Rates:    d.Rates(),
		Buffered: len(pending),
		Capacity: d.buf.Cap(),
		Running:  run != nil,
		Tick:     k,
		Last:     last,
		HasLast:  hasLast,
		Pending:  pending,
	}
	if run != nil {
		s.Pattern = pattern.Describe(run)
	}
	return s
}

// readTick samples the latest value into the ring buffer.
func (d *Device) readTick(t time.Time) {
	v, ok := d.gen.observe(t)
	if !ok {
		return
	}
	if d.buf.Push(v) {
		d.metrics.Evicted.Inc()
	}
	d.metrics.Sampled.Inc()
	d.metrics.Buffered.Set(float64(d.buf.Len()))
}

// sendTick moves at most one buffered value to the link.
func (d *Device) sendTick(time.Time) {
	v, ok := d.buf.Pop()
	if !ok {
		return
	}
	d.metrics.Buffered.Set(float64(d.buf.Len()))
	d.out(v)
}

func (d *Device) checkRate(clock string, hz int) (int, error) {
	if hz <= 0 {
		return 0, fmt.Errorf("%w: %s rate %d", ErrInvalidRate, clock, hz)
	}
	return d.clamp(clock, hz), nil
}

func (d *Device) clamp(clock string, hz int) int {
	switch {
	case hz <= 0:
		return 1
	case hz > d.maxRate:
		d.log.Warn("Rate above maximum, clamping",
			zap.String("clock", clock),
			zap.Int("requested", hz),
			zap.Int("max", d.maxRate))
		return d.maxRate
	}
	return hz
}

func (d *Device) updateRates(fn func(*Rates)) {
	d.mu.Lock()
	fn(&d.rates)
	r := d.rates
	d.mu.Unlock()

	d.publishRates(r)
	d.log.Info("Rates updated",
		zap.Int("data_rate", r.Data),
		zap.Int("read_rate", r.Read),
		zap.Int("send_rate", r.Send))
}

func (d *Device) publishRates(r Rates) {
	d.metrics.Rate.WithLabelValues("data").Set(float64(r.Data))
	d.metrics.Rate.WithLabelValues("read").Set(float64(r.Read))
	d.metrics.Rate.WithLabelValues("send").Set(float64(r.Send))
}
