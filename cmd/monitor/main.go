package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hamed0406/servicemonitor/internal/config"
	"github.com/hamed0406/servicemonitor/internal/httpapi"
	"github.com/hamed0406/servicemonitor/internal/logging"
	"github.com/hamed0406/servicemonitor/internal/notify"
	"github.com/hamed0406/servicemonitor/internal/probe"
	"github.com/hamed0406/servicemonitor/internal/render"
	"github.com/hamed0406/servicemonitor/internal/repo/memory"
	"github.com/hamed0406/servicemonitor/internal/scheduler"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
	appName     = "Service Monitor"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stderr io.Writer) int {
	cfg, err := config.Parse(args)
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return exitUsage
	}
	if cfg.ShowHelp {
		config.Usage(stderr)
		return exitOK
	}

	logger, err := logging.NewLogger(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(stderr, "Error: create logger:", err)
		return exitFailure
	}
	defer logger.Sync()

	schedule, err := buildSchedule(cfg)
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return exitUsage
	}

	mode, err := scheduler.ParseAlertMode(cfg.AlertMode)
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return exitUsage
	}

	prober, closeProber := buildProber(cfg)
	defer closeProber()

	store := memory.New()
	alerter := scheduler.NewAlerter(logger, store, buildNotifier(cfg), scheduler.AlerterConfig{
		Mode:            mode,
		AlertOnRecovery: cfg.AlertOnRecovery,
	})
	runner := scheduler.NewRunner(logger, cfg.Servers, prober, render.NewTable(os.Stdout), alerter, schedule,
		scheduler.WithConcurrency(cfg.Concurrency),
		scheduler.WithResultStore(store),
	)

	if cfg.Once {
		if runner.RunOnce(ctx).AllActive() {
			return exitOK
		}
		return exitFailure
	}

	var ln net.Listener
	if cfg.ListenAddr != "" {
		ln, err = net.Listen("tcp", cfg.ListenAddr)
		if err != nil {
			logger.Error("api_listen_error", zap.String("addr", cfg.ListenAddr), zap.Error(err))
			fmt.Fprintln(stderr, "Error: status listener:", err)
			return exitFailure
		}
	}

	logger.Info("monitor_start",
		zap.Int("endpoints", len(cfg.Servers)),
		zap.Stringer("schedule", schedule),
		zap.String("probe", cfg.ProbeMode),
		zap.String("alert_mode", cfg.AlertMode),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return runner.Run(gctx)
	})
	if ln != nil {
		api := httpapi.NewServer(logger, cfg.Servers, store)
		g.Go(func() error {
			return api.Serve(gctx, ln, api.Router(cfg.APIKeys, httpapi.DefaultRPM, httpapi.DefaultBurst))
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("monitor_stopped", zap.Error(err))
		return exitFailure
	}
	logger.Info("monitor_stopped")
	return exitOK
}

func buildSchedule(cfg config.Config) (scheduler.Schedule, error) {
	if cfg.Schedule == "" {
		return scheduler.IntervalSchedule{Interval: cfg.Interval}, nil
	}
	s, err := scheduler.ParseCronSchedule(cfg.Schedule)
	if err != nil {
		return nil, fmt.Errorf("%w: --schedule: %v", config.ErrInvalidOption, err)
	}
	return s, nil
}

func buildProber(cfg config.Config) (probe.Prober, func()) {
	switch cfg.ProbeMode {
	case config.ProbeHTTP:
		return probe.NewHTTPProber(cfg.HTTPTimeout), func() {}
	case config.ProbePing:
		p := probe.NewPingProber(cfg.PingTimeout, cfg.Privileged)
		return p, p.Close
	default:
		p := probe.NewPingProber(cfg.PingTimeout, cfg.Privileged)
		return probe.NewAuto(probe.NewHTTPProber(cfg.HTTPTimeout), p), p.Close
	}
}

func buildNotifier(cfg config.Config) notify.Notifier {
	var m notify.Multi
	if cfg.Desktop {
		m = append(m, notify.NewDesktop(appName))
	}
	if s := notify.NewSlack(cfg.SlackWebhook); s != nil {
		m = append(m, s)
	}
	return m
}
