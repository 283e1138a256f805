package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"melcloud-bridge/internal/engine"
	"melcloud-bridge/internal/events"
	"melcloud-bridge/internal/melcloud"
	"melcloud-bridge/internal/metrics"
	"melcloud-bridge/internal/normalize"
	"melcloud-bridge/internal/snapshot"
	"melcloud-bridge/internal/store"
	"melcloud-bridge/internal/telemetry"
	"melcloud-bridge/internal/transport"
	"melcloud-bridge/internal/web"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	// Temporary logger for config loading errors.
	bootLogger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfgPath := "config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		bootLogger.Error("load config", "err", err)
		os.Exit(1)
	}

	if err := cfg.validate(); err != nil {
		bootLogger.Error("invalid config", "err", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)
	logger.Info("melcloud-bridge starting", "version", version, "devices", len(cfg.Devices))

	bus := events.NewBus(logger)
	bus.On(events.KindDebugTrace, func(e events.Event) {
		ev := e.(events.DebugTrace)
		logger.Debug(ev.Message, "device", ev.DeviceID, "request", ev.RequestID)
	})

	db, err := store.NewBoltStore(cfg.Store.Path)
	if err != nil {
		logger.Error("open store", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	source := snapshot.NewFileSource(cfg.Account.DevicesFile, logger)
	writeTimeout, _ := time.ParseDuration(cfg.Account.WriteTimeout)
	client := transport.New(transport.Config{
		BaseURL:    cfg.Account.BaseURL,
		ContextKey: cfg.Account.ContextKey,
		Timeout:    writeTimeout,
	}, logger)

	m := metrics.New()
	unsubMetrics := m.Attach(bus)

	eng := newEngine(cfg, source, client, bus, db, m, logger)
	for _, d := range cfg.Devices {
		dc, _ := d.deviceConfig() // checked by validate
		if err := eng.AddDevice(dc); err != nil {
			logger.Error("add device", "device", d.ID, "err", err)
			os.Exit(1)
		}
	}
	eng.Restore()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sinks := startTelemetry(ctx, cfg, bus, logger)

	// Start automation engine (no-op when built with no_automation tag).
	auto, autoWebOpts := initAutomation(eng, bus, cfg, logger)

	// Start MQTT bridge (no-op when built with no_mqtt tag).
	mqtt := initMQTT(eng, bus, cfg, logger)

	eng.Start(ctx)

	webOpts := []web.ServerOption{
		web.WithVersion(version),
		web.WithMetrics(m.Handler()),
	}
	if cfg.Web.APIKey != "" {
		webOpts = append(webOpts, web.WithAPIKey(cfg.Web.APIKey))
	}
	if len(cfg.Web.AllowedOrigins) > 0 {
		webOpts = append(webOpts, web.WithAllowedOrigins(cfg.Web.AllowedOrigins))
	}
	webOpts = append(webOpts, autoWebOpts...)
	webServer := web.NewServer(eng, bus, logger, webOpts...)

	httpServer := &http.Server{
		Addr:         cfg.Web.Listen,
		Handler:      webServer,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("web server starting", "addr", cfg.Web.Listen)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", "err", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	signal.Stop(sigCh)
	logger.Info("shutting down", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown", "err", err)
	}
	webServer.Stop()
	auto.Stop()
	mqtt.Stop()
	cancel()
	eng.Stop()
	sinks.Stop()
	unsubMetrics()

	logger.Info("goodbye")
}

func newEngine(cfg *Config, source engine.Source, writer engine.Writer, bus *events.Bus, db store.Store, m *metrics.Metrics, logger *slog.Logger) *engine.Engine {
	variant, _ := melcloud.ParseVariant(cfg.Account.Variant)
	echoDelay, _ := time.ParseDuration(cfg.Engine.CommandEchoDelay)
	unit := normalize.Celsius
	if cfg.Account.UseFahrenheit {
		unit = normalize.Fahrenheit
	}
	return engine.New(source, writer, bus, logger,
		engine.WithStore(db),
		engine.WithMetrics(m),
		engine.WithEchoDelay(echoDelay),
		engine.WithVariant(variant),
		engine.WithUnit(unit),
	)
}

// telemetrySinks holds the optional InfluxDB and Kafka exporters.
type telemetrySinks struct {
	influx *telemetry.Influx
	kafka  *telemetry.Kafka
	unsubs []func()
	logger *slog.Logger
}

func startTelemetry(ctx context.Context, cfg *Config, bus *events.Bus, logger *slog.Logger) *telemetrySinks {
	s := &telemetrySinks{logger: logger}

	influx, err := telemetry.ConnectInflux(cfg.InfluxDB, logger)
	switch {
	case err == nil:
		s.influx = influx
		s.unsubs = append(s.unsubs, influx.Attach(bus))
	case !errors.Is(err, telemetry.ErrInfluxDisabled):
		logger.Error("influxdb", "err", err)
	}

	k, err := telemetry.NewKafka(cfg.Kafka, logger)
	switch {
	case err == nil:
		k.Start(ctx)
		s.kafka = k
		s.unsubs = append(s.unsubs, k.Attach(bus))
	case !errors.Is(err, telemetry.ErrKafkaDisabled):
		logger.Error("kafka", "err", err)
	}
	return s
}

func (s *telemetrySinks) Stop() {
	for _, unsub := range s.unsubs {
		unsub()
	}
	if s.influx != nil {
		s.influx.Close()
	}
	if s.kafka != nil {
		if n := s.kafka.Dropped(); n > 0 {
			s.logger.Warn("kafka dropped events", "count", n)
		}
		if err := s.kafka.Stop(); err != nil {
			s.logger.Error("kafka stop", "err", err)
		}
	}
}
