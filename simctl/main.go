// Command simctl is an interactive console for the simulated sensor. Lines typed on stdin
// are sent as commands; lines received from the device are printed with a "> " prefix.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"github.com/itohio/simsensor/pkg/command"
	"github.com/itohio/simsensor/pkg/config"
	"github.com/itohio/simsensor/pkg/device"
	"github.com/itohio/simsensor/pkg/host"
	"github.com/itohio/simsensor/pkg/link"
	"github.com/itohio/simsensor/pkg/logging"
	"github.com/itohio/simsensor/pkg/pattern"
)

// maxExpected limits how many expected values -expect prints.
const maxExpected = 32

func main() {
	var (
		portFlag     = flag.String("p", "", "Serial port override (e.g., COM3 or /dev/ttyACM0)")
		configFlag   = flag.String("config", "config.yaml", "Configuration file path")
		portsFlag    = flag.Bool("ports", false, "List serial ports and exit")
		loopbackFlag = flag.Bool("loopback", false, "Talk to an in-process simulated sensor instead of a serial port")
		expectFlag   = flag.Bool("expect", false, "Print the values a start command should produce")
	)
	flag.Parse()

	if *portsFlag {
		if err := listPorts(os.Stdout); err != nil {
			log.Fatalf("Failed to list ports: %v", err)
		}
		return
	}

	// Load configuration
	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *portFlag != "" {
		cfg.Serial.Port = *portFlag
	}

	logger, err := logging.New(logging.FromConfig(cfg.Logging))
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	open := link.SerialOpener(cfg.Serial)
	if *loopbackFlag {
		dev := device.New(cfg.Device, device.WithLogger(logger.Named("device")))
		go warnOnError(logger, "Simulated sensor stopped", func() error { return dev.Run(ctx) })
		open = host.Loopback(ctx, dev, logger.Named("loopback"))
	}

	term := &terminal{out: os.Stdout, expect: *expectFlag}
	linkDone := make(chan struct{})
	go func() {
		defer close(linkDone)
		warnOnError(logger, "Link stopped", func() error {
			return link.Serve(ctx, open, term.session, cfg.Serial.ReconnectDelay, logger.Named("link"))
		})
	}()

	term.printf("Application started. Type 'exit', 'quit' or 'q' to exit.\n")
	term.printf("Waiting for a connection...\n")

	commands := make(chan error, 1)
	go func() { commands <- term.readCommands(os.Stdin) }()

	select {
	case err := <-commands:
		if err != nil {
			logger.Error("Failed to read commands", zap.Error(err))
		}
	case <-ctx.Done():
	}
	stop()
	<-linkDone
}

// warnOnError runs fn and logs a failure as a warning.
func warnOnError(logger *zap.Logger, msg string, fn func() error) {
	if err := fn(); err != nil {
		logger.Warn(msg, zap.Error(err))
	}
}

func listPorts(w io.Writer) error {
	ports, err := link.Ports()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Fprintln(w, "No serial ports found")
		return nil
	}
	for _, p := range ports {
		status := "available"
		if p.Busy {
			status = "busy"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", p.Name, p.Description, status)
	}
	return nil
}

// terminal bridges the console and the current device connection.
type terminal struct {
	out    io.Writer
	expect bool

	mu   sync.Mutex
	conn io.Writer
}

func (t *terminal) printf(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, format, args...)
}

func (t *terminal) setConn(w io.Writer) {
	t.mu.Lock()
	t.conn = w
	t.mu.Unlock()
}

// session prints every line received on conn until it fails or ctx ends.
func (t *terminal) session(ctx context.Context, conn io.ReadWriteCloser) error {
	t.setConn(conn)
	defer t.setConn(nil)

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	t.printf("Connected!\n")
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			t.printf("> %s\n", line)
		}
	}
	t.printf("Disconnected\n")
	if ctx.Err() != nil {
		return nil
	}
	return scanner.Err()
}

// readCommands forwards console lines to the device until EOF or a quit command.
func (t *terminal) readCommands(in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "q", "quit", "exit":
			return nil
		}

		if t.expect {
			t.printExpected(line)
		}
		if err := t.send(line); err != nil {
			t.printf("Send failed: %v\n", err)
		}
	}
	return scanner.Err()
}

func (t *terminal) send(line string) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return host.ErrNotConnected
	}
	_, err := io.WriteString(conn, line+"\n")
	return err
}

// printExpected validates line locally and, for start commands, prints the values the run
// generates. The device output equals this sequence only when all three rates are equal.
func (t *terminal) printExpected(line string) {
	cmd, err := command.Parse(line)
	if err != nil {
		t.printf("! %v (the device will ignore it)\n", err)
		return
	}
	if cmd.Type != command.StartPattern {
		return
	}

	values := pattern.Sequence(cmd.Pattern, nil, 0)
	if cmd.Pattern.Kind() == pattern.KindRandom {
		t.printf("= %d random values (%s)\n", len(values), pattern.Describe(cmd.Pattern))
		return
	}

	shown := values
	if len(shown) > maxExpected {
		shown = shown[:maxExpected]
	}
	parts := make([]string, len(shown))
	for i, v := range shown {
		parts[i] = device.FormatSample(v)
	}
	suffix := ""
	if len(values) > len(shown) {
		suffix = " ..."
	}
	t.printf("= %d values: %s%s\n", len(values), strings.Join(parts, " "), suffix)
}
