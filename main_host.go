package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"rtcaps/app"
	"rtcaps/hal"
	"rtcaps/internal/buildinfo"
	"rtcaps/internal/config"
	"rtcaps/internal/logging"
)

func main() {
	var headless hal.HeadlessConfig
	var reportEvery uint64
	flag.BoolVar(&headless.Enabled, "headless", false, "Run without a window.")
	flag.IntVar(&headless.Hz, "hz", 60, "Step rate in headless mode.")
	flag.Uint64Var(&headless.Steps, "steps", 0, "Stop after N steps in headless mode (0 = run forever).")
	flag.Uint64Var(&reportEvery, "report-every", 600, "Write a heap report every N steps (0 = never).")
	flag.Parse()

	if err := run(headless, reportEvery); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(headless hal.HeadlessConfig, reportEvery uint64) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := logging.New(logging.Config{Level: cfg.LogLevel, Development: cfg.LogDev})
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	layout, err := cfg.Layout()
	if err != nil {
		return err
	}
	stackCaps, err := cfg.StackCaps()
	if err != nil {
		return err
	}
	objCaps, err := cfg.ObjCaps()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if cfg.MetricsAddr != "" {
		serveMetrics(ctx, logger, cfg.MetricsAddr, reg)
	}

	logger.Info("starting rtcaps",
		zap.String("build", buildinfo.String()),
		zap.Int("cores", cfg.Cores),
		zap.Duration("tick", cfg.TickPeriod()),
		zap.Bool("headless", headless.Enabled))

	host := hal.HostConfig{Width: 320, Height: 240, Tick: cfg.TickPeriod()}
	newApp := func(h hal.HAL) func() error {
		return app.New(h, app.Config{
			Cores:       cfg.Cores,
			Layout:      layout,
			StackCaps:   stackCaps,
			ObjectCaps:  objCaps,
			Logger:      logging.Tee(logger, h.Logger(), zapcore.WarnLevel),
			Registry:    reg,
			ReportEvery: reportEvery,
			CycleDelay:  10,
			ExitOnAbort: true,
		})
	}

	if headless.Enabled {
		headless.Host = host
		return hal.RunHeadless(ctx, newApp, headless)
	}
	return hal.RunWindow(newApp, host)
}

// serveMetrics exposes reg on /metrics until ctx is done.
func serveMetrics(ctx context.Context, logger *zap.Logger, addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("serving metrics", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}
