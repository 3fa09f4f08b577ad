package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"bookcal/internal/calendar"
	"bookcal/internal/capture"
	"bookcal/internal/config"
	appLog "bookcal/internal/log"
	"bookcal/internal/metrics"
	"bookcal/internal/observe"
	"bookcal/internal/refresh"
	"bookcal/internal/session"
	"bookcal/internal/supabase"
	"bookcal/internal/tz"
	"bookcal/internal/web"
)

const (
	version = "0.1.0"

	listenerWait = 5 * time.Second
)

type flagConfig struct {
	configPath string
	listen     string
	pretty     bool
	once       bool
	capture    bool
}

func main() {
	flags := parseFlags()
	appLog.SetOutput(os.Stderr, flags.pretty)
	appLog.Info("bookcal starting", "version", version)

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	if err := conf.Validate(); err != nil {
		appLog.Error("invalid config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"timezone_alias", conf.TimezoneAlias,
		"default_view", conf.DefaultView,
		"refresh", conf.RefreshCron,
		"capture", conf.Capture.Enabled || flags.capture,
		"once", flags.once,
	)

	m := metrics.New()
	obs := observe.Multi(appLog.Observer(), m)

	norm := tz.New(conf.Timezone, conf.TimezoneAlias, obs)
	mode, err := calendar.ParseMode(conf.DefaultView)
	if err != nil {
		appLog.Warn("unknown default view; using week", "default_view", conf.DefaultView)
	}

	client := supabase.NewClient(conf.Backend, nil, obs)
	sess := session.New(client, norm, session.Options{Mode: mode, Observer: obs})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if flags.once {
		if err := runOnce(ctx, conf, sess, flags.capture); err != nil {
			appLog.Error("single run failed", err)
			os.Exit(1)
		}
		return
	}

	scheduler, err := refresh.New(conf.RefreshCron, sess, obs)
	if err != nil {
		appLog.Error("invalid refresh schedule", err, "refresh", conf.RefreshCron)
		os.Exit(1)
	}

	// Capture after every applied reload so a failed first load is
	// retried on the next tick.
	if conf.Capture.Enabled || flags.capture {
		scheduler.OnSuccess(func(ctx context.Context, _ session.Snapshot) {
			captureOnce(ctx, conf)
		})
	}

	srv := web.NewServer(conf, sess, web.Options{Metrics: m, AccessLog: os.Stdout})

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.ListenAndServe(ctx)
	})

	g.Go(func() error {
		// The capture hook browses our own page, so serve before loading.
		if err := waitForListener(ctx, localAddr(conf.Listen), listenerWait); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		// Initial load; a failure leaves the empty grid up until the next tick.
		_ = scheduler.Tick(ctx)
		return scheduler.Run(ctx)
	})

	if err := g.Wait(); err != nil {
		appLog.Error("bookcal terminated with error", err)
		os.Exit(1)
	}
	appLog.Info("bookcal exiting")
}

// runOnce loads the current period, logs a summary and optionally captures
// the calendar page through a short-lived server.
func runOnce(ctx context.Context, conf *config.Config, sess *session.Session, withCapture bool) error {
	snap, err := sess.Reload(ctx)
	if err != nil {
		return err
	}

	placed := 0
	for _, day := range snap.Grid.Days {
		placed += len(day.Bookings)
	}
	appLog.Info("period loaded",
		"header", snap.Header,
		"timezone", snap.TimezoneLabel,
		"days", len(snap.Grid.Days),
		"placements", placed,
	)

	if !withCapture && !conf.Capture.Enabled {
		return nil
	}

	srvCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	srv := web.NewServer(conf, sess, web.Options{})
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(srvCtx) }()

	if err := waitForListener(srvCtx, localAddr(conf.Listen), listenerWait); err != nil {
		cancel()
		if srvErr := <-errCh; srvErr != nil {
			return fmt.Errorf("server: %w", srvErr)
		}
		return err
	}

	err = capturePage(ctx, conf)
	cancel()
	<-errCh
	return err
}

func captureOnce(ctx context.Context, conf *config.Config) {
	if err := capturePage(ctx, conf); err != nil {
		appLog.Error("calendar capture failed", err, "output", conf.Capture.Output)
	}
}

func capturePage(ctx context.Context, conf *config.Config) error {
	opts := capture.Options{
		URL:        "http://" + localAddr(conf.Listen) + "/calendar",
		OutputPath: conf.Capture.Output,
	}
	if conf.BasicAuth != nil {
		opts.Username = conf.BasicAuth.Username
		opts.Password = conf.BasicAuth.Password
	}
	if err := capture.CalendarPNG(ctx, opts); err != nil {
		return err
	}
	appLog.Info("calendar captured", "output", conf.Capture.Output)
	return nil
}

// waitForListener dials addr until a connection succeeds or timeout passes.
func waitForListener(ctx context.Context, addr string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var d net.Dialer
	for {
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err == nil {
			return conn.Close()
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("listener %s not ready: %w", addr, err)
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// localAddr rewrites wildcard listen hosts to loopback for the browser.
func localAddr(listen string) string {
	switch {
	case strings.HasPrefix(listen, ":"):
		return "127.0.0.1" + listen
	case strings.HasPrefix(listen, "0.0.0.0:"):
		return "127.0.0.1" + strings.TrimPrefix(listen, "0.0.0.0")
	default:
		return listen
	}
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/bookcal/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.pretty, "pretty", false, "Human-readable console logs instead of JSON")
	flag.BoolVar(&cfg.once, "once", false, "Load the current period once and exit")
	flag.BoolVar(&cfg.capture, "capture", false, "Capture a PNG of the calendar page after loading")

	flag.Parse()

	return cfg
}
