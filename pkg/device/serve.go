package device

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/itohio/simsensor/pkg/command"
)

// maxLine bounds a single command line.
const maxLine = 4096

// Serve runs one link session over rw. It clears the buffers, streams sent samples to rw
// and applies command lines read from it. Serve returns nil when rw reaches EOF or ctx
// is cancelled; rw is closed on cancellation if it implements io.Closer.
func (d *Device) Serve(ctx context.Context, rw io.ReadWriter) error {
	d.Clear()
	d.tx.attach(rw)
	defer d.tx.detach(rw)

	if c, ok := rw.(io.Closer); ok {
		stop := context.AfterFunc(ctx, func() { _ = c.Close() })
		defer stop()
	}

	d.log.Info("Link session started")
	defer d.log.Info("Link session ended")

	scanner := bufio.NewScanner(rw)
	scanner.Buffer(make([]byte, 0, maxLine), maxLine)
	scanner.Split(scanCommandLines)
	for scanner.Scan() {
		d.HandleLine(scanner.Text())
	}

	if ctx.Err() != nil {
		return nil
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("link read failed: %w", err)
	}
	return nil
}

// HandleLine parses and applies one command line. Invalid lines are counted and ignored;
// the protocol has no negative acknowledgement.
func (d *Device) HandleLine(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}

	cmd, err := command.Parse(line)
	if err == nil {
		err = d.Apply(cmd)
	}
	if err != nil {
		d.metrics.Commands.WithLabelValues("ignored").Inc()
		d.log.Debug("Ignoring command", zap.String("line", line), zap.Error(err))
		return
	}
	d.metrics.Commands.WithLabelValues("applied").Inc()
	d.log.Debug("Command applied", zap.Stringer("command", cmd.Type))
}

// scanCommandLines splits input on LF, CR or CRLF.
func scanCommandLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
