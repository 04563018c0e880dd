// udpmgrd -- UDP connection manager daemon.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"runtime/trace"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/dantte-lp/udpmgrd/internal/config"
	"github.com/dantte-lp/udpmgrd/internal/control"
	"github.com/dantte-lp/udpmgrd/internal/eventloop"
	udpmetrics "github.com/dantte-lp/udpmgrd/internal/metrics"
	"github.com/dantte-lp/udpmgrd/internal/netio"
	appversion "github.com/dantte-lp/udpmgrd/internal/version"
)

// shutdownTimeout is the maximum time to wait for HTTP servers to drain
// active connections during graceful shutdown.
const shutdownTimeout = 10 * time.Second

// flightRecorderMinAge is the minimum window age for the flight recorder.
const flightRecorderMinAge = 500 * time.Millisecond

// flightRecorderMaxBytes is the upper bound on flight recorder window size.
const flightRecorderMaxBytes = 2 * 1024 * 1024 // 2 MiB

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to configuration file (YAML)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("failed to load configuration",
			slog.String("error", err.Error()),
		)
		return 1
	}

	logLevel := new(slog.LevelVar)
	logLevel.Set(config.ParseLogLevel(cfg.Log.Level))
	logger := newLoggerWithLevel(cfg.Log, logLevel)

	logger.Info("udpmgrd starting",
		slog.String("version", appversion.Version),
		slog.String("control_addr", cfg.Control.Addr),
		slog.String("metrics_addr", cfg.Metrics.Addr),
	)

	fr := startFlightRecorder(logger)

	reg := prometheus.NewRegistry()
	collector := udpmetrics.NewCollector(reg)

	loop, err := eventloop.New(logger)
	if err != nil {
		logger.Error("failed to create event loop", slog.String("error", err.Error()))
		return 1
	}
	defer func() { _ = loop.Close() }()

	mgr := netio.NewManager(loop, logger, collector)

	if err := runServers(cfg, mgr, loop, reg, logger, *configPath, logLevel, fr); err != nil {
		logger.Error("udpmgrd exited with error", slog.String("error", err.Error()))
		return 1
	}

	logger.Info("udpmgrd stopped")
	return 0
}

// runServers wires the event loop, manager, control, and metrics HTTP
// servers together under an errgroup driven by a signal-aware context.
func runServers(
	cfg *config.Config,
	mgr *netio.Manager,
	loop *eventloop.Loop,
	reg *prometheus.Registry,
	logger *slog.Logger,
	configPath string,
	logLevel *slog.LevelVar,
	fr *trace.FlightRecorder,
) error {
	if err := mgr.Start(cfg.Manager.RecvBufSize); err != nil {
		return fmt.Errorf("start manager: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	controlSrv := newControlServer(cfg.Control, mgr, logger)
	metricsSrv := newMetricsServer(cfg.Metrics, reg)

	if err := openDeclaredEndpoints(cfg, mgr, logger); err != nil {
		return fmt.Errorf("open declared endpoints: %w", err)
	}

	g.Go(func() error {
		return loop.Run(gCtx)
	})

	startHTTPServers(gCtx, g, cfg, controlSrv, metricsSrv, logger)
	startDaemonGoroutines(gCtx, g, configPath, logLevel, logger)

	notifyReady(logger)

	g.Go(func() error {
		<-gCtx.Done()
		return gracefulShutdown(gCtx, mgr, loop, logger, fr, controlSrv, metricsSrv)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run servers: %w", err)
	}
	return nil
}

func startHTTPServers(
	ctx context.Context,
	g *errgroup.Group,
	cfg *config.Config,
	controlSrv *http.Server,
	metricsSrv *http.Server,
	logger *slog.Logger,
) {
	lc := net.ListenConfig{}

	g.Go(func() error {
		logger.Info("control server listening", slog.String("addr", cfg.Control.Addr))
		return listenAndServe(ctx, &lc, controlSrv, cfg.Control.Addr)
	})

	g.Go(func() error {
		logger.Info("metrics server listening",
			slog.String("addr", cfg.Metrics.Addr),
			slog.String("path", cfg.Metrics.Path),
		)
		return listenAndServe(ctx, &lc, metricsSrv, cfg.Metrics.Addr)
	})
}

func startDaemonGoroutines(
	ctx context.Context,
	g *errgroup.Group,
	configPath string,
	logLevel *slog.LevelVar,
	logger *slog.Logger,
) {
	g.Go(func() error {
		return runWatchdog(ctx, logger)
	})

	sigHUP := make(chan os.Signal, 1)
	signal.Notify(sigHUP, syscall.SIGHUP)
	g.Go(func() error {
		defer signal.Stop(sigHUP)
		handleSIGHUP(ctx, sigHUP, configPath, logLevel, logger)
		return nil
	})
}

// openDeclaredEndpoints opens every endpoint named in cfg.Endpoints,
// wiring each to a default callback that logs lifecycle transitions and
// echoes received payloads back to their sender.
func openDeclaredEndpoints(cfg *config.Config, mgr *netio.Manager, logger *slog.Logger) error {
	for _, ec := range cfg.Endpoints {
		p := netio.OpenParams{
			Port:        ec.Port,
			Address:     ec.Address,
			Listen:      ec.Listen,
			Interface:   ec.Interface,
			RecvBufSize: cfg.Manager.RecvBufSize,
			Validate:    ec.Validate,
		}
		if ec.TTL != 0 {
			p = p.WithTTL(ec.TTL)
		}
		p = p.WithLoopback(ec.Loopback)
		p = p.WithReuse(ec.Reuse)
		if ec.SockPriority != 0 {
			p = p.WithSockPriority(ec.SockPriority)
		}

		fd, err := mgr.Open(p, echoCallback(logger), ec.Key())
		if err != nil {
			return fmt.Errorf("open endpoint %s: %w", ec.Key(), err)
		}
		if !ec.Validate {
			logger.Info("endpoint opened", slog.Int("fd", fd), slog.String("key", ec.Key()))
		}
	}
	return nil
}

// echoCallback returns a netio.Callback that logs ESTABLISHED/CLOSING
// transitions and echoes any received datagram back to its sender on a
// listen endpoint.
func echoCallback(logger *slog.Logger) netio.Callback {
	return func(m *netio.Manager, fd int, app any, _ *any, state netio.CallbackState, meta map[string]any, payload []byte) {
		key, _ := app.(string)

		switch state {
		case netio.Closing:
			logger.Info("endpoint closing", slog.Int("fd", fd), slog.String("key", key))
		case netio.Established:
			if len(payload) == 0 {
				logger.Debug("endpoint established", slog.Int("fd", fd), slog.String("key", key))
				return
			}

			addrStr, _ := meta["remote-address"].(string)
			portVal, _ := meta["remote-port"].(uint16)
			logger.Debug("datagram received",
				slog.Int("fd", fd),
				slog.String("key", key),
				slog.String("remote", addrStr),
				slog.Int("bytes", len(payload)),
			)

			remote, err := netip.ParseAddr(addrStr)
			if err != nil {
				return
			}
			if err := m.SendTo(fd, netip.AddrPortFrom(remote, portVal), payload); err != nil {
				logger.Warn("echo reply failed", slog.Int("fd", fd), slog.String("error", err.Error()))
			}
		}
	}
}

// -------------------------------------------------------------------------
// systemd integration -- sd_notify + watchdog
// -------------------------------------------------------------------------

func notifyReady(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		logger.Warn("failed to notify systemd readiness", slog.String("error", err.Error()))
		return
	}
	if sent {
		logger.Info("notified systemd: READY")
	}
}

func notifyStopping(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyStopping)
	if err != nil {
		logger.Warn("failed to notify systemd stopping", slog.String("error", err.Error()))
		return
	}
	if sent {
		logger.Info("notified systemd: STOPPING")
	}
}

func runWatchdog(ctx context.Context, logger *slog.Logger) error {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		logger.Warn("failed to check systemd watchdog", slog.String("error", err.Error()))
		return nil
	}
	if interval == 0 {
		logger.Debug("systemd watchdog not configured, skipping keepalive")
		return nil
	}

	tickInterval := interval / 2
	logger.Info("systemd watchdog enabled",
		slog.Duration("watchdog_sec", interval),
		slog.Duration("keepalive_interval", tickInterval),
	)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, wdErr := daemon.SdNotify(false, daemon.SdNotifyWatchdog); wdErr != nil {
				logger.Warn("failed to send watchdog keepalive", slog.String("error", wdErr.Error()))
			}
		}
	}
}

// -------------------------------------------------------------------------
// SIGHUP reload -- log level only; endpoint topology is immutable post-start
// -------------------------------------------------------------------------

func handleSIGHUP(ctx context.Context, sigHUP <-chan os.Signal, configPath string, logLevel *slog.LevelVar, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sigHUP:
			logger.Info("received SIGHUP, reloading configuration")
			reloadConfig(configPath, logLevel, logger)
		}
	}
}

func reloadConfig(configPath string, logLevel *slog.LevelVar, logger *slog.Logger) {
	newCfg, err := loadConfig(configPath)
	if err != nil {
		logger.Error("failed to reload configuration, keeping current settings", slog.String("error", err.Error()))
		return
	}

	oldLevel := logLevel.Level()
	newLevel := config.ParseLogLevel(newCfg.Log.Level)
	logLevel.Set(newLevel)

	logger.Info("configuration reloaded",
		slog.String("old_log_level", oldLevel.String()),
		slog.String("new_log_level", newLevel.String()),
	)
}

// -------------------------------------------------------------------------
// graceful shutdown
// -------------------------------------------------------------------------

func gracefulShutdown(
	ctx context.Context,
	mgr *netio.Manager,
	loop *eventloop.Loop,
	logger *slog.Logger,
	fr *trace.FlightRecorder,
	servers ...*http.Server,
) error {
	logger.Info("initiating graceful shutdown")
	notifyStopping(logger)

	if err := mgr.Stop(); err != nil {
		logger.Warn("manager stop reported an error", slog.String("error", err.Error()))
	}
	loop.Stop()

	if fr != nil {
		fr.Stop()
		logger.Debug("flight recorder stopped")
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	var shutdownErr error
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("shutdown server: %w", err))
		}
	}
	return shutdownErr
}

// -------------------------------------------------------------------------
// flight recorder
// -------------------------------------------------------------------------

func startFlightRecorder(logger *slog.Logger) *trace.FlightRecorder {
	fr := trace.NewFlightRecorder(trace.FlightRecorderConfig{
		MinAge:   flightRecorderMinAge,
		MaxBytes: flightRecorderMaxBytes,
	})

	if err := fr.Start(); err != nil {
		logger.Warn("failed to start flight recorder", slog.String("error", err.Error()))
		return nil
	}

	logger.Info("flight recorder started",
		slog.Duration("min_age", flightRecorderMinAge),
		slog.Uint64("max_bytes", flightRecorderMaxBytes),
	)

	return fr
}

// -------------------------------------------------------------------------
// server setup
// -------------------------------------------------------------------------

func listenAndServe(ctx context.Context, lc *net.ListenConfig, srv *http.Server, addr string) error {
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve on %s: %w", addr, err)
	}
	return nil
}

func newMetricsServer(cfg config.MetricsConfig, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func newControlServer(cfg config.ControlConfig, mgr *netio.Manager, logger *slog.Logger) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           control.NewServer(mgr, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
		return cfg, nil
	}
	return config.DefaultConfig(), nil
}

func newLoggerWithLevel(cfg config.LogConfig, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
