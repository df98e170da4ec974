package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ent0n29/roundtable/internal/app"
	"github.com/ent0n29/roundtable/internal/logging"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the discussion HTTP and websocket API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logging.New("server")

	built, err := app.Build(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := built.Cleanup(); err != nil {
			log.Warn("cleanup failed", "error", err)
		}
	}()

	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           built.API.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	built.Sessions.StartJanitor(runCtx, 5*time.Second)

	listenErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErr <- err
		}
		close(listenErr)
	}()

	select {
	case err := <-listenErr:
		if err != nil {
			return err
		}
	case <-runCtx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		_ = httpServer.Close()
	}
	log.Info("shutdown complete")
	return nil
}
