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

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/gofhir/sdcforms/client"
	"github.com/gofhir/sdcforms/config"
	"github.com/gofhir/sdcforms/pack"
	"github.com/gofhir/sdcforms/server"
	"github.com/gofhir/sdcforms/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sdcforms HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		return serve(cfg)
	},
}

func serve(cfg *config.Config) error {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Level:           parseLevel(cfg.LogLevel),
	})

	store := client.New(cfg.FHIRBaseURL,
		client.WithTimeout(cfg.FHIRTimeout),
		client.WithLogger(logger.With("component", "fhir-client")))

	// Versioned canonical resolutions are immutable; cache them.
	packager := pack.NewService(service.NewCachedStore(store, 512),
		pack.WithLogger(logger.With("component", "packager")))

	api := server.New(store, packager,
		server.WithLogger(logger.With("component", "http")),
		server.WithCORSOrigins(cfg.CORSOrigins),
		server.WithPackageTimeout(cfg.PackageTimeout))

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Addr(), "fhir", cfg.FHIRBaseURL)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errc <- err
			return
		}
		errc <- nil
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errc:
		return err
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return <-errc
}

func parseLevel(level string) log.Level {
	parsed, err := log.ParseLevel(level)
	if err != nil {
		return log.InfoLevel
	}
	return parsed
}
