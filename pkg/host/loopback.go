package host

import (
	"context"
	"io"
	"net"

	"go.uber.org/zap"

	"github.com/itohio/simsensor/pkg/device"
	"github.com/itohio/simsensor/pkg/link"
)

// Loopback returns an Opener connecting to dev in process. Every connection starts a new
// device session, which ends when the host side is closed or ctx is cancelled. The caller
// runs dev.
func Loopback(ctx context.Context, dev *device.Device, log *zap.Logger) link.Opener {
	if log == nil {
		log = zap.NewNop()
	}
	return func() (io.ReadWriteCloser, error) {
		if ctx.Err() != nil {
			return nil, link.ErrClosed
		}

		hostSide, deviceSide := net.Pipe()
		go func() {
			defer deviceSide.Close()
			if err := dev.Serve(ctx, deviceSide); err != nil {
				log.Warn("Loopback session failed", zap.Error(err))
			}
		}()
		return hostSide, nil
	}
}
