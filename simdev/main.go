// Command simdev runs the simulated sensor on a serial port (or stdin/stdout) and serves
// the command protocol to whatever host connects.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/itohio/simsensor/pkg/config"
	"github.com/itohio/simsensor/pkg/device"
	"github.com/itohio/simsensor/pkg/link"
	"github.com/itohio/simsensor/pkg/logging"
)

func main() {
	var (
		portFlag    = flag.String("p", "", "Serial port override (e.g., COM3 or /dev/ttyGS0)")
		configFlag  = flag.String("config", "config.yaml", "Configuration file path")
		stdioFlag   = flag.Bool("stdio", false, "Serve on stdin/stdout instead of a serial port")
		metricsFlag = flag.String("metrics", "", "Metrics listen address override (e.g., :9100)")
		levelFlag   = flag.String("log-level", "", "Log level override (debug, info, warn, error)")
	)
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if *portFlag != "" {
		cfg.Serial.Port = *portFlag
	}
	if *metricsFlag != "" {
		cfg.Metrics.Addr = *metricsFlag
	}
	if *levelFlag != "" {
		cfg.Logging.Level = *levelFlag
	}

	logger, err := logging.New(logging.FromConfig(cfg.Logging))
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *stdioFlag, logger); err != nil {
		logger.Fatal("Simulated sensor failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, stdio bool, logger *zap.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	dev := device.New(cfg.Device,
		device.WithLogger(logger.Named("device")),
		device.WithMetrics(device.NewMetrics(reg)),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return dev.Run(ctx) })

	if stdio {
		g.Go(func() error { return dev.Serve(ctx, link.Stdio()) })
	} else {
		logger.Info("Serving on serial port",
			zap.String("port", cfg.Serial.Port),
			zap.Int("baud_rate", cfg.Serial.BaudRate))
		session := func(ctx context.Context, conn io.ReadWriteCloser) error {
			return dev.Serve(ctx, conn)
		}
		g.Go(func() error {
			return link.Serve(ctx, link.SerialOpener(cfg.Serial), session, cfg.Serial.ReconnectDelay, logger.Named("link"))
		})
	}

	if cfg.Metrics.Addr != "" {
		srv := &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           newMux(reg, dev, logger.Named("http")),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("Serving metrics", zap.String("addr", cfg.Metrics.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

func newMux(reg *prometheus.Registry, dev *device.Device, logger *zap.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("/status", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(dev.Status()); err != nil {
			logger.Warn("Failed to write status", zap.Error(err))
		}
	})
	return mux
}
