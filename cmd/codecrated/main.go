package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/codecrate/codecrate/internal/api"
	"github.com/codecrate/codecrate/internal/channel"
	"github.com/codecrate/codecrate/internal/config"
	"github.com/codecrate/codecrate/internal/engine"
	"github.com/codecrate/codecrate/internal/reaper"
	"github.com/codecrate/codecrate/internal/registry"
	"github.com/codecrate/codecrate/internal/session"
	"github.com/codecrate/codecrate/internal/store"
)

// reapTarget closes a session's live channels before the manager tears the
// container down, so reaped sessions do not leave dangling shells behind.
type reapTarget struct {
	mgr       *session.Manager
	terminals *channel.TerminalHub
	execs     *channel.ExecHub
}

func (r *reapTarget) Terminate(ctx context.Context, id string, deleteVolume bool) error {
	r.terminals.CloseSession(id)
	r.execs.Cancel(id)
	return r.mgr.Terminate(ctx, id, deleteVolume)
}

func (r *reapTarget) Remove(id string) {
	r.mgr.Remove(id)
}

func main() {
	cfgPath := flag.String("config", "", "path to codecrate.yaml")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}

	if cfg.APIKey == "" {
		logger.Warn("no API key configured, running in open access mode")
	}

	st, err := store.New(cfg.DBPath)
	if err != nil {
		logger.Error("open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	eng, err := engine.New()
	if err != nil {
		logger.Error("container engine client", "error", err)
		os.Exit(1)
	}
	defer eng.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := eng.Ping(ctx); err != nil {
		logger.Error("container engine ping failed, is Docker running?", "error", err)
		os.Exit(1)
	}
	logger.Info("container engine connection OK")

	reg := registry.New()
	mgr := session.NewManager(cfg, reg, st, eng, logger)

	terminals := channel.NewTerminalHub(eng, mgr, logger)
	execs := channel.NewExecHub(eng, mgr, cfg.MaxExecTimeoutMs, logger)

	rpr := reaper.New(reg,
		&reapTarget{mgr: mgr, terminals: terminals, execs: execs},
		st,
		eng,
		time.Duration(cfg.IdleReapSeconds)*time.Second,
		time.Duration(cfg.ReapIntervalSeconds)*time.Second,
		logger)
	go rpr.Run(ctx)

	srv := api.NewServer(cfg, mgr, terminals, execs, logger)

	httpServer := &http.Server{
		Addr:        cfg.Listen,
		Handler:     srv.Handler(),
		ReadTimeout: 30 * time.Second,
		// No write timeout: terminal and exec websockets stay open for
		// the session's lifetime.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		<-sigCh
		logger.Info("shutting down...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("listening", "addr", cfg.Listen)
	fmt.Fprintf(os.Stderr, "\n  codecrate daemon ready at http://%s\n\n", cfg.Listen)

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
