package device

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/itohio/simsensor/pkg/config"
	"github.com/itohio/simsensor/pkg/pattern"
)

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("link down") }

func runTransmitter(t *testing.T, tx *transmitter) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tx.run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("transmitter did not stop")
		}
	})
}

func TestTransmitter_FullQueueDrops(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	tx := newTransmitter(2, zap.NewNop(), m)

	for i := 0; i < 5; i++ {
		tx.enqueue(float32(i))
	}
	assert.Len(t, tx.queue, 2)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Dropped))
}

func TestTransmitter_DetachedDrops(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	tx := newTransmitter(4, zap.NewNop(), m)
	runTransmitter(t, tx)

	tx.enqueue(1)
	tx.enqueue(2)
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.Dropped) == 2
	}, time.Second, 5*time.Millisecond)
	assert.Zero(t, testutil.ToFloat64(m.Sent))
}

func TestTransmitter_WriteErrorDrops(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	tx := newTransmitter(4, zap.NewNop(), m)
	tx.attach(failingWriter{})
	runTransmitter(t, tx)

	tx.enqueue(1)
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.Dropped) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Zero(t, testutil.ToFloat64(m.Sent))
}

// TestDevice_BlockedLinkKeepsClocksRunning writes to a link nobody reads. The sender must
// drop values while generation and resampling carry on, and shutdown must not hang on the
// stuck write.
func TestDevice_BlockedLinkKeepsClocksRunning(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	dev := New(config.DeviceConfig{DataRate: 200, ReadRate: 200, SendRate: 200, TxQueue: 2},
		WithMetrics(m))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deviceSide, hostSide := net.Pipe()
	defer hostSide.Close()

	runDone := make(chan error, 1)
	go func() { runDone <- dev.Run(ctx) }()
	serveDone := make(chan error, 1)
	go func() { serveDone <- dev.Serve(ctx, deviceSide) }()

	require.Eventually(t, func() bool {
		return dev.tx.writer() != nil
	}, time.Second, time.Millisecond)
	require.NoError(t, dev.Start(pattern.Increasing{Start: 0, Step: 1, Max: 1e6}))

	require.Eventually(t, func() bool {
		return dev.Status().Tick > 100 &&
			testutil.ToFloat64(m.Sampled) > 100 &&
			testutil.ToFloat64(m.Dropped) > 50
	}, 5*time.Second, 10*time.Millisecond)
	assert.Zero(t, testutil.ToFloat64(m.Sent), "nothing reads the link")
	assert.LessOrEqual(t, dev.Status().Buffered, dev.Status().Capacity)

	cancel()
	for name, done := range map[string]chan error{"Run": runDone, "Serve": serveDone} {
		select {
		case err := <-done:
			assert.NoError(t, err, name)
		case <-time.After(5 * time.Second):
			t.Fatalf("%s did not return after cancel", name)
		}
	}
}
