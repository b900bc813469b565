package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"kaspa-exporter/exporter/cache"
	"kaspa-exporter/exporter/config"
	"kaspa-exporter/exporter/handlers"
	"kaspa-exporter/exporter/health"
	"kaspa-exporter/exporter/kaspa"
	"kaspa-exporter/exporter/metrics"
	"kaspa-exporter/exporter/scrape"
	"kaspa-exporter/exporter/tracing"
	"kaspa-exporter/protocol"

	"github.com/rs/zerolog"
)

const serviceName = "kaspa-exporter"

// Log file rotation limits
const (
	logFileMaxSizeMB  = 100
	logFileMaxBackups = 3
	logFileMaxAgeDays = 28
)

// Exporter ties the snapshot cache to the HTTP surface
type Exporter struct {
	exporterID string
	target     metrics.Target
	startTime  time.Time
	cache      *cache.Cache
}

// Implement metrics.ExporterInfo interface
func (e *Exporter) ExporterID() string {
	return e.exporterID
}

func (e *Exporter) StartTime() time.Time {
	return e.startTime
}

func (e *Exporter) Target() metrics.Target {
	return e.target
}

func (e *Exporter) LastRefresh() (time.Time, string, bool) {
	return e.cache.LastRefresh()
}

func main() {
	// Load configuration (parses flags, env vars and the optional config file)
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	var baseLogger zerolog.Logger
	var logCloser io.Closer
	if cfg.LogFile != "" {
		baseLogger, logCloser = protocol.InitFileLogger(cfg.LogLevel, cfg.LogFormat, protocol.LogFile{
			Path:       cfg.LogFile,
			MaxSizeMB:  logFileMaxSizeMB,
			MaxBackups: logFileMaxBackups,
			MaxAgeDays: logFileMaxAgeDays,
		})
		defer logCloser.Close()
	} else {
		baseLogger = protocol.InitLogger(cfg.LogLevel, cfg.LogFormat)
	}
	logger := baseLogger.With().Str("exporterID", cfg.ExporterID).Logger()
	logger.Info().Fields(cfg.LogFields()).Msg("Configuration loaded")

	shutdownTracing, err := tracing.Setup(context.Background(), tracing.Config{
		Exporter:    cfg.TraceExporter,
		Endpoint:    cfg.TraceEndpoint,
		ServiceName: serviceName,
		ExporterID:  cfg.ExporterID,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to set up tracing")
	}
	if cfg.TraceExporter != config.TraceNone {
		logger.Info().Str("exporter", cfg.TraceExporter).Str("endpoint", cfg.TraceEndpoint).Msg("Tracing enabled")
	}

	m := metrics.New(cfg.ExporterID)

	prober := health.NewProber(health.Config{Timeout: cfg.ProbeTimeout}, nil, logger)
	factory := kaspa.NewClientFactory(protocol.ClientConfig{
		Host:        cfg.KaspaHost,
		Port:        cfg.JSONRPCPort,
		Path:        cfg.JSONRPCPath,
		CallTimeout: cfg.CallTimeout,
	}, nil, m, logger)
	poller := kaspa.NewPoller(factory, kaspa.DefaultOperations, logger)
	refresher := scrape.NewRefresher(scrape.Config{
		Host:        cfg.KaspaHost,
		GRPCPort:    cfg.GRPCPort,
		JSONRPCPort: cfg.JSONRPCPort,
	}, prober, poller, logger)
	snapshots := cache.New(refresher, cfg.CacheTTL, m, logger)
	m.ExposeSnapshots(snapshots)

	exp := &Exporter{
		exporterID: cfg.ExporterID,
		target: metrics.Target{
			Host:        cfg.KaspaHost,
			GRPCPort:    cfg.GRPCPort,
			JSONRPCPort: cfg.JSONRPCPort,
		},
		startTime: time.Now(),
		cache:     snapshots,
	}

	httpServer := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.ListenPort),
		Handler:           handlers.NewRouter(m.Handler(), metrics.HealthHandler(exp), logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info().
		Int("port", cfg.ListenPort).
		Str("kaspaHost", cfg.KaspaHost).
		Int("grpcPort", cfg.GRPCPort).
		Int("jsonRPCPort", cfg.JSONRPCPort).
		Dur("cacheTTL", cfg.CacheTTL).
		Msg("Exporter listening")

	// Start HTTP server in background
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigChan
	logger.Info().Str("signal", sig.String()).Msg("Received signal, initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	// Shutdown waits for in-flight scrapes; an active refresh is bounded by
	// the call and probe timeouts
	shutdownDone := make(chan struct{})
	go func() {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("HTTP server shutdown error")
		}
		close(shutdownDone)
	}()

	logger.Info().Msg("Waiting for in-flight requests to complete...")
	select {
	case <-shutdownDone:
		logger.Info().Msg("All HTTP handlers completed")
	case <-shutdownCtx.Done():
		logger.Warn().Dur("timeout", cfg.ShutdownTimeout).Msg("Shutdown timeout - closing remaining connections")
		httpServer.Close()
		<-shutdownDone
	}

	if err := shutdownTracing(context.Background()); err != nil {
		logger.Error().Err(err).Msg("Tracing shutdown error")
	}

	logger.Info().Msg("Graceful shutdown complete")
}
