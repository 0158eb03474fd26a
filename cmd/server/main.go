package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"taskboard/internal/api"
	"taskboard/internal/config"
	"taskboard/internal/db"
	"taskboard/internal/logging"
	"taskboard/pkg/board"
	"taskboard/pkg/broadcast"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:           "taskboard-server",
		Short:         "Collaborative task board server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Init(cfgFile, cmd.Flags()); err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := run(ctx, cfg); err != nil {
				fmt.Fprintln(os.Stderr, "taskboard-server:", err)
				return err
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&cfgFile, "config", "c", "", "config file (default is $XDG_CONFIG_HOME/taskboard/config.yaml or ./config.yaml)")
	f.String("server.addr", "", "listen address")
	f.String("store.backend", "", "store backend: memory, postgres or sqlite")
	f.String("store.database_url", "", "postgres connection string")
	f.String("store.sqlite_path", "", "sqlite database file")
	f.String("logging.level", "", "log level: DEBUG, INFO, WARN, ERROR")
	f.String("logging.file", "", "append logs to this file instead of stderr")
	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	log, err := logging.Open(cfg.Logging.File, cfg.Logging.Level)
	if err != nil {
		return err
	}
	defer log.Close()
	config.Watch(log)

	backend, err := db.Open(ctx, cfg.Store, log)
	if err != nil {
		return err
	}
	defer backend.Close()

	hub := broadcast.New(broadcast.Config{
		Buffer:            cfg.Broadcast.Buffer,
		HeartbeatInterval: cfg.Broadcast.HeartbeatInterval,
		MaxMissed:         cfg.Broadcast.MaxMissed,
	}, log)
	svc := board.New(backend.Tasks, backend.Users, backend.Actions, hub, log, cfg.Balancer.MaxWorkers)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.New(svc, log, cfg.Activity.DefaultLimit),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slogErrorLog(log),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return hub.Run(gctx)
	})
	g.Go(func() error {
		log.Info("taskboard listening", "addr", cfg.Server.Addr, "backend", backend.Name)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down", "timeout", cfg.Server.ShutdownTimeout.String())
		// close streams first so Shutdown does not wait on them
		hub.Close()
		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server stopped", "error", err)
		return err
	}
	log.Info("server stopped")
	return nil
}
