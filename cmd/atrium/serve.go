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

	"github.com/atrium-sh/atrium/pkg/config"
	"github.com/atrium-sh/atrium/pkg/dashboard"
	"github.com/atrium-sh/atrium/pkg/filestore"
	"github.com/atrium-sh/atrium/pkg/logging"
	"github.com/atrium-sh/atrium/pkg/probe"
	"github.com/atrium-sh/atrium/pkg/server"
	"github.com/atrium-sh/atrium/pkg/sysmetrics"
)

func serveCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the dashboard server",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			return runServe(cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file (default: search standard locations)")

	return cmd
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func runServe(cfg *config.Config) error {
	logger := logging.New(cfg.Log, os.Stderr)

	store := filestore.New(cfg.Data)
	raw, err := store.Load()
	if err != nil {
		return fmt.Errorf("loading %s: %w", cfg.Data, err)
	}

	doc, dirty := dashboard.Reconcile(raw)
	saver := dashboard.SaverFunc(func(doc dashboard.Document) error {
		data, err := dashboard.Encode(doc)
		if err != nil {
			return err
		}
		return store.Save(data)
	})
	if dirty {
		// Write the canonical shape back so the next start skips migration.
		if err := saver.Save(doc); err != nil {
			logger.Warn().Err(err).Msg("could not persist migrated document")
		} else {
			logger.Info().Str("path", store.Path()).Msg("migrated document to current shape")
		}
	}

	docStore := dashboard.NewStore(doc, saver, logger)

	srv := server.New(server.Options{
		Store:            docStore,
		Metrics:          sysmetrics.NewCollector(cfg.Volume),
		Prober:           probe.New(cfg.Probe.Timeout),
		StaticDir:        cfg.Static,
		Logger:           logger,
		ProbeInterval:    cfg.Probe.Interval,
		WeatherRefresh:   cfg.Weather.Refresh,
		SearchDebounce:   cfg.Search.Debounce,
		SearchMinChars:   cfg.Search.MinChars,
		SearchMaxResults: cfg.Search.MaxResults,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv.Start(ctx)
	defer srv.Stop()

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", httpServer.Addr).Msg("listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
