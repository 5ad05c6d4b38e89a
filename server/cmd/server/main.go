package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/obsidianstack/logship/pkg/lumberjack"
	"github.com/obsidianstack/logship/pkg/types"
	"github.com/obsidianstack/logship/server/internal/alerts"
	"github.com/obsidianstack/logship/server/internal/api"
	"github.com/obsidianstack/logship/server/internal/auth"
	"github.com/obsidianstack/logship/server/internal/config"
	"github.com/obsidianstack/logship/server/internal/receiver"
	"github.com/obsidianstack/logship/server/internal/store"
	"github.com/obsidianstack/logship/server/internal/ws"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := pflag.StringP("config", "c", "config.yaml", "path to config file")
	uiDir := pflag.String("ui-dir", "", "serve dashboard static files from this directory; leave empty to disable")
	pflag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	slog.Info("logship-collector starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	s := cfg.Server
	slog.Info("config loaded",
		"port", s.Port,
		"http_port", s.HTTPPort,
		"tls", s.TLS.Enabled(),
		"mtls", s.TLS.ClientCAFile != "",
		"auth_mode", s.Auth.Mode,
		"peer_ttl", s.PeerTTL,
		"alert_rules", len(s.Alerts.Rules),
	)

	tc, err := receiver.NewTLSConfig(s.TLS)
	if err != nil {
		slog.Error("failed to build tls config", "err", err)
		os.Exit(1)
	}
	ln, err := receiver.Listen(fmt.Sprintf(":%d", s.Port), tc)
	if err != nil {
		slog.Error("failed to listen", "port", s.Port, "err", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st := store.New(s.PeerTTL)
	alertEngine := alerts.New(s.Alerts)
	hub := ws.New(st, s.StreamInterval)
	rec := receiver.New(st,
		lumberjack.ServeOptions{MaxPayload: s.MaxPayloadBytes, ReadTimeout: s.ReadTimeout},
		alertEngine.Evaluate,
		func(*store.Peer, types.Batch) { hub.Notify() },
	)

	withAuth := auth.APIKey(s.Auth.Mode, s.Auth.EffectiveHeader(), s.Auth.Key())
	httpMux := http.NewServeMux()
	httpMux.Handle("/api/", withAuth(api.New(st, alertEngine, rec.Active)))
	httpMux.Handle("/ws/peers", withAuth(hub))
	if *uiDir != "" {
		httpMux.Handle("/", spa(*uiDir))
		slog.Info("serving dashboard static files", "dir", *uiDir)
	}
	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.HTTPPort),
		Handler:           httpMux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		st.Run(egCtx)
		return nil
	})
	eg.Go(func() error {
		hub.Run(egCtx)
		return nil
	})
	eg.Go(func() error {
		return rec.Serve(egCtx, ln)
	})
	eg.Go(func() error {
		slog.Info("http server listening", "port", s.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		<-egCtx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
		defer done()
		return httpSrv.Shutdown(shutdownCtx)
	})

	if err := eg.Wait(); err != nil {
		slog.Error("logship-collector stopped with error", "err", err)
	}
	alertEngine.Wait()
	slog.Info("logship-collector stopped")
}

// spa serves static files from dir and falls back to index.html for
// unknown paths so client-side routing works.
func spa(dir string) http.Handler {
	fs := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := filepath.Join(dir, filepath.Clean("/"+r.URL.Path))
		if _, err := os.Stat(path); os.IsNotExist(err) {
			http.ServeFile(w, r, filepath.Join(dir, "index.html"))
			return
		}
		fs.ServeHTTP(w, r)
	})
}
