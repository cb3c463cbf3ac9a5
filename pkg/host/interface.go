package host

import (
	"context"

	"github.com/itohio/simsensor/pkg/command"
)

// Sensor defines the host view of a simulated sensor (over serial or in process).
type Sensor interface {
	Connect() error
	Close() error
	Samples() <-chan Sample
	Send(ctx context.Context, cmd command.Command) error
	IsConnected() bool
}

// Ensure Client implements Sensor.
var _ Sensor = (*Client)(nil)
