package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/c360studio/semdict/api"
	"github.com/c360studio/semdict/bootstrap"
)

const shutdownTimeout = 30 * time.Second

func (c *cli) serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the dictionary HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.serve(cmd.Context())
		},
	}
	cmd.Flags().String("addr", "", "HTTP listen address")
	cmd.Flags().Bool("watch", false, "Reload model files when they change")
	c.bindFlags(cmd.Flags(), map[string]string{
		"http.addr":        "addr",
		"dictionary.watch": "watch",
	})
	return cmd
}

func (c *cli) serve(ctx context.Context) error {
	cfg, logger := c.cfg, c.logger

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := newServices(ctx, cfg, logger, true)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		svc.Close(closeCtx)
	}()

	if err := svc.dict.Init(ctx); err != nil {
		return fmt.Errorf("initialize dictionary: %w", err)
	}

	if cfg.Dictionary.Watch && svc.dir != nil {
		watcher, err := bootstrap.NewWatcher(svc.dir, svc.dict, cfg.Dictionary.Debounce, logger)
		if err != nil {
			return fmt.Errorf("create model watcher: %w", err)
		}
		if err := watcher.Start(ctx); err != nil {
			return fmt.Errorf("start model watcher: %w", err)
		}
		defer watcher.Stop()
	}

	// A nil *storage.ModelStore must not become a non-nil api.Store.
	var store api.Store
	if svc.store != nil {
		store = svc.store
	}

	mux := http.NewServeMux()
	api.NewHandler(svc.dict, store, logger).RegisterHTTPHandlers(cfg.HTTP.Prefix, mux)
	mux.Handle("/metrics", promhttp.HandlerFor(svc.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	logger.Info("Semdict ready",
		"version", Version,
		"addr", cfg.HTTP.Addr,
		"prefix", cfg.HTTP.Prefix,
		"models_dir", cfg.Dictionary.ModelsDir)

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", "error", err)
	}

	logger.Info("Semdict shutdown complete")
	return nil
}
