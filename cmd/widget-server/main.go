// Command widget-server serves the customer assistant widget over
// WebSocket.
//
// Usage:
//
//	go run ./cmd/widget-server -config config.yaml
//
// Then open http://localhost:8080 or connect a client to
// ws://localhost:8080/v1/widget.
package main

import (
	"context"
	_ "embed"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/realtime-ai/assistant-widget/pkg/app"
	"github.com/realtime-ai/assistant-widget/pkg/config"
	"github.com/realtime-ai/assistant-widget/pkg/device"
	"github.com/realtime-ai/assistant-widget/pkg/logging"
	"github.com/realtime-ai/assistant-widget/pkg/metrics"
	"github.com/realtime-ai/assistant-widget/pkg/server"
	"github.com/realtime-ai/assistant-widget/pkg/trace"
	"github.com/realtime-ai/assistant-widget/pkg/widget"
)

//go:embed index.html
var indexHTML []byte

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config")
	envFile := flag.String("env", ".env", "dotenv file to load")
	flag.Parse()

	if err := run(*configPath, *envFile); err != nil {
		fmt.Fprintf(os.Stderr, "widget-server: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, envFile string) error {
	if err := config.LoadEnv(envFile); err != nil {
		return err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := trace.Initialize(ctx, traceConfig(cfg)); err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := trace.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("tracing shutdown")
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics(reg)

	if app.ChatAPIKey(cfg) == "" {
		logger.Warn().Str("provider", cfg.Chat.Provider).Msg("no chat api key set, widget will show a configuration notice")
	}

	srv := server.New(server.ConfigFrom(cfg), panelFactory(cfg, logger, m),
		server.WithLogger(logging.Component(logger, "server")),
		server.WithMetrics(m),
		server.WithGatherer(reg),
	)
	srv.RegisterHandler("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(indexHTML)
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})

	logger.Info().Str("addr", cfg.Addr()).Msg("widget server running, press Ctrl+C to stop")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

func panelFactory(cfg config.Config, logger zerolog.Logger, m *metrics.Metrics) server.PanelFactory {
	return func(ctx context.Context, peerID string, devices *device.Remote) (*widget.Panel, error) {
		deps := app.Deps{
			Log:     logger.With().Str("peer", peerID).Logger(),
			Metrics: m,
		}
		return app.NewPanel(cfg, deps, devices, nil), nil
	}
}

func traceConfig(cfg config.Config) *trace.Config {
	tc := trace.DefaultConfig()
	if cfg.Tracing.Exporter != "" {
		tc.ExporterType = cfg.Tracing.Exporter
	}
	if cfg.Tracing.Endpoint != "" {
		tc.OTLPEndpoint = cfg.Tracing.Endpoint
	}
	tc.SamplingRate = cfg.Tracing.SamplingRate
	return tc
}
