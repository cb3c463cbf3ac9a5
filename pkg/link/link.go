// Package link manages the byte stream between the simulated sensor and its host: serial
// ports, stdio, and a reconnecting session loop shared by both ends.
package link

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"go.uber.org/zap"
)

// DefaultReconnectDelay is the wait between reopen attempts when none is configured.
const DefaultReconnectDelay = time.Second

// ErrClosed is returned when using a link that has been closed.
var ErrClosed = errors.New("link closed")

// Opener opens a fresh connection to the peer.
type Opener func() (io.ReadWriteCloser, error)

// Session serves one open connection. It returns when the connection fails or ctx is
// cancelled; the caller closes the connection afterwards.
type Session func(ctx context.Context, conn io.ReadWriteCloser) error

// Serve keeps a link up until ctx is cancelled: it opens a connection, runs session on
// it, and reopens after delay whenever the connection cannot be opened or ends.
func Serve(ctx context.Context, open Opener, session Session, delay time.Duration, log *zap.Logger) error {
	if delay <= 0 {
		delay = DefaultReconnectDelay
	}

	waiting := false
	for {
		conn, err := open()
		if err != nil {
			// Only the first failure of a streak is worth a warning.
			if !waiting {
				log.Warn("Waiting for connection", zap.Error(err))
				waiting = true
			} else {
				log.Debug("Connection attempt failed", zap.Error(err))
			}
			if !sleep(ctx, delay) {
				return nil
			}
			continue
		}

		waiting = false
		log.Info("Connected")
		err = session(ctx, conn)
		if cerr := conn.Close(); cerr != nil {
			log.Debug("Error closing connection", zap.Error(cerr))
		}
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			log.Warn("Disconnected", zap.Error(err))
		} else {
			log.Info("Disconnected")
		}

		if !sleep(ctx, delay) {
			return nil
		}
	}
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

type stdio struct {
	in  *os.File
	out *os.File
}

// Stdio returns a connection reading from stdin and writing to stdout. Closing it closes
// stdin only.
func Stdio() io.ReadWriteCloser {
	return &stdio{in: os.Stdin, out: os.Stdout}
}

func (s *stdio) Read(p []byte) (int, error)  { return s.in.Read(p) }
func (s *stdio) Write(p []byte) (int, error) { return s.out.Write(p) }
func (s *stdio) Close() error                { return s.in.Close() }
