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

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/obsidianstack/logship/agent/internal/config"
	"github.com/obsidianstack/logship/agent/internal/dispatch"
	"github.com/obsidianstack/logship/agent/internal/format"
	"github.com/obsidianstack/logship/agent/internal/health"
	"github.com/obsidianstack/logship/agent/internal/metrics"
	"github.com/obsidianstack/logship/agent/internal/shipper"
	"github.com/obsidianstack/logship/agent/internal/source"
)

const (
	shutdownTimeout = 10 * time.Second
	healthInterval  = time.Minute
)

func main() {
	configPath := pflag.StringP("config", "c", "config.yaml", "path to config file")
	pflag.Parse()

	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("logship-agent starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	a := cfg.Agent
	setLevel(level, a.LogLevel)
	slog.Info("config loaded",
		"collector", shipper.Target{Host: a.Collector.Host, Port: a.Collector.Port}.Addr(),
		"pool_size", a.Collector.PoolSize,
		"sources", len(a.Sources),
		"max_batch_size", a.MaxBatchSize,
		"flush_interval", a.FlushInterval,
	)

	target, err := buildTarget(a)
	if err != nil {
		// target.Err is set: the pool keeps failing to connect until a
		// reload fixes it.
		slog.Error("collector tls config invalid", "err", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	m := metrics.New()
	queue := dispatch.NewQueue(a.QueueSize)
	pool := shipper.NewPool(a.Collector.PoolSize, target, shipper.Options{
		StaleAfter:   a.Connection.StaleAfter,
		RetryBackoff: a.Connection.RetryBackoff,
		DialTimeout:  a.Connection.DialTimeout,
		IOTimeout:    a.Connection.IOTimeout,
		Notifier:     shipper.LogNotifier{Logger: logger},
	})
	formatter := format.New(identity(a.Identity), "")
	sched := dispatch.New(queue, pool, m, dispatch.Settings{
		MaxBatchSize:  a.MaxBatchSize,
		FlushInterval: a.FlushInterval,
	})
	sources := source.NewGroup(a.Sources, formatter, queue, m, source.Settings{
		Tags:           a.Tags,
		MaxFieldLength: a.MaxFieldLength,
	})
	tracker := health.NewTracker()

	m.GaugeFunc("logship_queue_depth", "Records waiting to be batched.", func() float64 { return float64(queue.Len()) })
	m.CounterFunc("logship_queue_evicted_total", "Records evicted from a full queue.", func() float64 { return float64(queue.Dropped()) })
	m.GaugeFunc("logship_pool_in_use", "Connections checked out of the pool.", func() float64 { return float64(pool.InUse()) })
	m.GaugeFunc("logship_health_score", "Delivery health score (0-100).", func() float64 { return tracker.Last().Score })

	if len(a.Sources) == 0 {
		slog.Warn("no sources configured, agent will idle")
	}

	if err := sched.Start(ctx); err != nil {
		slog.Error("failed to start scheduler", "err", err)
		os.Exit(1)
	}

	eg, gctx := errgroup.WithContext(ctx)

	eg.Go(func() error { return sources.Run(gctx) })

	live := a
	eg.Go(func() error {
		return config.Watch(gctx, *configPath, func(updated *config.Config) {
			applyReload(live, updated.Agent, level, pool, sched, formatter, sources)
			live = updated.Agent
		})
	})

	eg.Go(func() error {
		tracker.Run(gctx, healthInterval, func() health.Sample {
			s := m.Snapshot()
			return health.Sample{
				BatchesSent:    s.BatchesSent,
				BatchesFailed:  s.BatchesFailed,
				RecordsSent:    s.RecordsSent,
				RecordsFailed:  s.RecordsFailed,
				RecordsEvicted: queue.Dropped(),
				QueueLen:       queue.Len(),
				QueueCap:       queue.Cap(),
			}
		})
		return nil
	})

	if a.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		srv := &http.Server{Addr: a.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		eg.Go(func() error {
			slog.Info("metrics listening", "addr", a.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		eg.Go(func() error {
			<-gctx.Done()
			shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutCtx)
		})
	}

	<-gctx.Done()
	slog.Info("logship-agent shutting down")

	// Sources stop with gctx. Stop the scheduler before closing the pool so
	// no batch is dispatched to a closing connection.
	sched.Stop()

	closeCtx, closeCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer closeCancel()
	if err := pool.Close(closeCtx); err != nil {
		slog.Warn("pool close reported errors", "err", err)
	}

	if err := eg.Wait(); err != nil {
		slog.Error("agent stopped with error", "err", err)
		os.Exit(1)
	}
}

// buildTarget resolves the collector endpoint and TLS configuration. On a
// TLS error the returned target carries the error in Err, so connections
// refuse it instead of dialing without TLS.
func buildTarget(a config.AgentConfig) (shipper.Target, error) {
	t := shipper.Target{Host: a.Collector.Host, Port: a.Collector.Port}
	tlsCfg, err := shipper.NewTLSConfig(a.Collector.TLS)
	if err != nil {
		t.Err = err
		return t, err
	}
	t.TLS = tlsCfg
	return t, nil
}

// applyReload pushes the hot-reloadable settings of next into the running
// components.
func applyReload(
	prev, next config.AgentConfig,
	level *slog.LevelVar,
	pool *shipper.Pool,
	sched *dispatch.Scheduler,
	formatter *format.Formatter,
	sources *source.Group,
) {
	setLevel(level, next.LogLevel)

	if prev.Collector.Host != next.Collector.Host ||
		prev.Collector.Port != next.Collector.Port ||
		prev.Collector.TLS != next.Collector.TLS {
		t, err := buildTarget(next)
		pool.SetTarget(t)
		if err != nil {
			slog.Error("collector tls config invalid, delivery paused until fixed", "err", err)
		} else {
			slog.Info("collector endpoint updated", "endpoint", t.Addr(), "tls", t.TLS != nil)
		}
	}

	if prev.Collector.PoolSize != next.Collector.PoolSize {
		slog.Warn("pool_size change requires a restart",
			"current", pool.Size(), "configured", next.Collector.PoolSize)
	}

	sched.Update(dispatch.Settings{MaxBatchSize: next.MaxBatchSize, FlushInterval: next.FlushInterval})
	formatter.SetIdentity(identity(next.Identity), "")
	sources.SetSettings(source.Settings{Tags: next.Tags, MaxFieldLength: next.MaxFieldLength})

	if len(prev.Sources) != len(next.Sources) {
		slog.Warn("source list changes require a restart")
	}
}

func identity(c config.IdentityConfig) format.Identity {
	r := c.Resolve()
	return format.Identity{ServerName: r.ServerName, ServerDir: r.ServerDir, HostName: r.HostName}
}

func setLevel(v *slog.LevelVar, s string) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		l = slog.LevelInfo
	}
	v.Set(l)
}
