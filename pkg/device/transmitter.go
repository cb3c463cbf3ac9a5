package device

import (
	"context"
	"io"
	"strconv"
	"sync"

	"go.uber.org/zap"
)

// AppendSample appends the wire form of v: a decimal float followed by a newline.
// Integral values keep a ".0" suffix so every line reads as a float.
func AppendSample(dst []byte, v float32) []byte {
	start := len(dst)
	dst = strconv.AppendFloat(dst, float64(v), 'f', -1, 32)
	integral := true
	for _, c := range dst[start:] {
		if c == '.' {
			integral = false
			break
		}
	}
	if integral {
		dst = append(dst, '.', '0')
	}
	return append(dst, '\n')
}

// FormatSample returns the wire form of v without the trailing newline.
func FormatSample(v float32) string {
	b := AppendSample(make([]byte, 0, 24), v)
	return string(b[:len(b)-1])
}

// transmitter decouples the sender clock from link writes. Samples are queued without
// blocking and written by a single goroutine to the attached writer.
type transmitter struct {
	queue   chan float32
	log     *zap.Logger
	metrics *Metrics

	mu sync.RWMutex
	w  io.Writer
}

func newTransmitter(size int, log *zap.Logger, m *Metrics) *transmitter {
	return &transmitter{
		queue:   make(chan float32, size),
		log:     log,
		metrics: m,
	}
}

// enqueue queues v for writing; it never blocks.
func (tx *transmitter) enqueue(v float32) {
	select {
	case tx.queue <- v:
	default:
		tx.metrics.Dropped.Inc()
		tx.log.Debug("Transmit queue full, dropping sample", zap.Float32("value", v))
	}
}

func (tx *transmitter) attach(w io.Writer) {
	tx.mu.Lock()
	tx.w = w
	tx.mu.Unlock()
}

// detach removes w if it is still the attached writer.
func (tx *transmitter) detach(w io.Writer) {
	tx.mu.Lock()
	if tx.w == w {
		tx.w = nil
	}
	tx.mu.Unlock()
}

func (tx *transmitter) writer() io.Writer {
	tx.mu.RLock()
	defer tx.mu.RUnlock()
	return tx.w
}

func (tx *transmitter) run(ctx context.Context) error {
	buf := make([]byte, 0, 32)
	for {
		select {
		case <-ctx.Done():
			return nil
		case v := <-tx.queue:
			w := tx.writer()
			if w == nil {
				tx.metrics.Dropped.Inc()
				continue
			}
			buf = AppendSample(buf[:0], v)
			if _, err := w.Write(buf); err != nil {
				tx.metrics.Dropped.Inc()
				tx.log.Warn("Failed to write sample", zap.Error(err))
				continue
			}
			tx.metrics.Sent.Inc()
		}
	}
}
