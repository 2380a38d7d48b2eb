package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tbxark/formcopilot/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the form flow as a JSON HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := loadConfig(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		setupLogger(conf)
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runServer(ctx, conf)
	},
}

func runServer(ctx context.Context, conf *Config) error {
	flow, cleanup, err := buildFlow(ctx, conf)
	if err != nil {
		return err
	}
	defer cleanup()

	srv := &http.Server{
		Addr:              conf.ListenAddr,
		Handler:           server.New(flow, server.WithLogHandler(slog.Default().Handler())),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Listening", "addr", conf.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		slog.Info("Shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
