// Package host is the host-side harness for the simulated sensor. It sends commands,
// paces them so the device can settle, and collects the streamed samples.
package host

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/itohio/simsensor/pkg/command"
	"github.com/itohio/simsensor/pkg/config"
	"github.com/itohio/simsensor/pkg/device"
	"github.com/itohio/simsensor/pkg/link"
	"github.com/itohio/simsensor/pkg/pattern"
)

// DefaultBufferSize is the default size for the samples channel buffer.
const DefaultBufferSize = 4096

var (
	// ErrNotConnected is returned when the client has no open connection.
	ErrNotConnected = errors.New("not connected")
	// ErrBadSample is returned when received lines could not be parsed as samples.
	ErrBadSample = errors.New("bad sample")
)

// Sample is one value received from the device.
type Sample struct {
	Timestamp time.Time
	Value     float32
}

// Client talks to a simulated sensor over a link.
type Client struct {
	open link.Opener
	cfg  config.HostConfig
	log  *zap.Logger
	pace *rate.Limiter
	bad  atomic.Int64

	mu        sync.RWMutex
	conn      io.ReadWriteCloser
	samples   chan Sample
	connected bool
	rates     device.Rates // last rates sent; zero means unknown
}

// New creates a client that connects through open.
func New(open link.Opener, cfg config.HostConfig, log *zap.Logger) *Client {
	if cfg.DefaultRate <= 0 {
		cfg.DefaultRate = config.Default().Host.DefaultRate
	}
	if cfg.CommandInterval <= 0 {
		cfg.CommandInterval = config.Default().Host.CommandInterval
	}
	if cfg.ReadIdle <= 0 {
		cfg.ReadIdle = config.Default().Host.ReadIdle
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Client{
		open:    open,
		cfg:     cfg,
		log:     log,
		pace:    rate.NewLimiter(rate.Every(cfg.CommandInterval), 1),
		samples: make(chan Sample, DefaultBufferSize),
	}
}

// Connect opens the link and starts reading samples.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return fmt.Errorf("already connected")
	}

	conn, err := c.open()
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.conn = conn
	c.connected = true
	c.samples = make(chan Sample, DefaultBufferSize)
	c.rates = device.Rates{}

	go c.readSamples(conn, c.samples)

	return nil
}

// Close closes the link. The samples channel is closed once the reader drains.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil
	}

	c.connected = false
	if err := c.conn.Close(); err != nil {
		return fmt.Errorf("failed to close link: %w", err)
	}
	return nil
}

// Samples returns the channel of received samples.
func (c *Client) Samples() <-chan Sample {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.samples
}

// IsConnected returns whether the link is open.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Send writes cmd. Consecutive commands are spaced by the command interval.
func (c *Client) Send(ctx context.Context, cmd command.Command) error {
	line := cmd.String()
	if line == "" {
		return fmt.Errorf("%w: %s", command.ErrMalformed, cmd.Type)
	}

	if err := c.pace.Wait(ctx); err != nil {
		return err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.connected {
		return ErrNotConnected
	}
	if _, err := io.WriteString(c.conn, line+"\n"); err != nil {
		return fmt.Errorf("failed to send %s command: %w", cmd.Type, err)
	}

	c.log.Debug("Command sent", zap.String("line", line))
	return nil
}

// Settle waits one command interval after the last command.
func (c *Client) Settle(ctx context.Context) error {
	return c.pace.Wait(ctx)
}

// Init connects if needed and sets the default rates.
func (c *Client) Init(ctx context.Context) error {
	if !c.IsConnected() {
		if err := c.Connect(); err != nil {
			return err
		}
	}
	return c.SetDefaultRates(ctx)
}

// SetDefaultRates sets all three clocks to the configured default rate.
func (c *Client) SetDefaultRates(ctx context.Context) error {
	hz := c.cfg.DefaultRate
	if err := c.SetDataRate(ctx, hz); err != nil {
		return err
	}
	if err := c.SetReadRate(ctx, hz); err != nil {
		return err
	}
	return c.SetSendRate(ctx, hz)
}

// SetDataRate sets the generation rate unless it is already set.
func (c *Client) SetDataRate(ctx context.Context, hz int) error {
	return c.setRate(ctx, command.DataRate(hz), func(r *device.Rates) *int { return &r.Data })
}

// SetReadRate sets the resampling rate unless it is already set.
func (c *Client) SetReadRate(ctx context.Context, hz int) error {
	return c.setRate(ctx, command.ReadRate(hz), func(r *device.Rates) *int { return &r.Read })
}

// SetSendRate sets the transmission rate unless it is already set.
func (c *Client) SetSendRate(ctx context.Context, hz int) error {
	return c.setRate(ctx, command.SendRate(hz), func(r *device.Rates) *int { return &r.Send })
}

func (c *Client) setRate(ctx context.Context, cmd command.Command, field func(*device.Rates) *int) error {
	c.mu.RLock()
	current := *field(&c.rates)
	c.mu.RUnlock()
	if current == cmd.Rate {
		return nil
	}

	if err := c.Send(ctx, cmd); err != nil {
		return err
	}

	c.mu.Lock()
	*field(&c.rates) = cmd.Rate
	c.mu.Unlock()
	return nil
}

// Rates returns the rates last sent to the device.
func (c *Client) Rates() device.Rates {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rates
}

// ClearBuffers discards samples received but not read yet, and flushes the serial
// buffers when the link is a serial port.
func (c *Client) ClearBuffers() {
	samples := c.Samples()
	for drained := false; !drained; {
		select {
		case _, ok := <-samples:
			drained = !ok
		default:
			drained = true
		}
	}
	c.bad.Store(0)

	c.mu.RLock()
	defer c.mu.RUnlock()
	if p, ok := c.conn.(interface {
		ResetInputBuffer() error
		ResetOutputBuffer() error
	}); ok {
		if err := p.ResetInputBuffer(); err != nil {
			c.log.Warn("Failed to reset input buffer", zap.Error(err))
		}
		if err := p.ResetOutputBuffer(); err != nil {
			c.log.Warn("Failed to reset output buffer", zap.Error(err))
		}
	}
}

// ReadData collects samples until the link stays silent for the idle timeout: the larger
// of the configured read idle and two send periods. Lines that failed to parse since the
// previous call are reported as ErrBadSample.
func (c *Client) ReadData(ctx context.Context) ([]float32, error) {
	idle := c.idleTimeout()
	samples := c.Samples()

	timer := time.NewTimer(idle)
	defer timer.Stop()

	var values []float32
	for {
		select {
		case <-ctx.Done():
			return values, ctx.Err()
		case s, ok := <-samples:
			if !ok {
				return values, link.ErrClosed
			}
			values = append(values, s.Value)
			timer.Reset(idle)
		case <-timer.C:
			if bad := c.bad.Swap(0); bad > 0 {
				return values, fmt.Errorf("%w: %d unparsable lines", ErrBadSample, bad)
			}
			return values, nil
		}
	}
}

// Simulate starts a run of p, lets the device settle and returns the samples it sends.
func (c *Client) Simulate(ctx context.Context, p pattern.Pattern) ([]float32, error) {
	if err := c.Send(ctx, command.Start(p)); err != nil {
		return nil, err
	}
	if err := c.Settle(ctx); err != nil {
		return nil, err
	}
	return c.ReadData(ctx)
}

func (c *Client) idleTimeout() time.Duration {
	idle := c.cfg.ReadIdle
	if hz := c.Rates().Send; hz > 0 {
		if twoPeriods := 2 * time.Second / time.Duration(hz); twoPeriods > idle {
			idle = twoPeriods
		}
	}
	return idle
}

// readSamples reads lines from the link and parses them into samples.
func (c *Client) readSamples(conn io.Reader, samples chan<- Sample) {
	defer close(samples)

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		sample, err := parseLine(line)
		if err != nil {
			c.bad.Add(1)
			c.log.Warn("Failed to parse line", zap.String("line", line), zap.Error(err))
			continue
		}

		// Send sample to channel (non-blocking)
		select {
		case samples <- sample:
		default:
			c.log.Warn("Samples channel full, dropping sample")
		}
	}

	if err := scanner.Err(); err != nil && c.IsConnected() {
		c.log.Warn("Error reading from link", zap.Error(err))
	}
}

// parseLine parses one sample line: a single decimal value.
func parseLine(line string) (Sample, error) {
	v, err := strconv.ParseFloat(line, 32)
	if err != nil {
		return Sample{}, fmt.Errorf("invalid value: %w", err)
	}
	return Sample{Timestamp: time.Now(), Value: float32(v)}, nil
}
