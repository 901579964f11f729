package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/desertthunder/spotify-backup/internal/repositories"
	"github.com/desertthunder/spotify-backup/internal/server"
	"github.com/desertthunder/spotify-backup/internal/services"
	"github.com/desertthunder/spotify-backup/internal/shared"
	"github.com/desertthunder/spotify-backup/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Serve starts the listener and blocks until SIGINT or SIGTERM, then waits for running backups.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd.String("config"))
	if err != nil {
		return err
	}

	if err := config.ApplyEnv(cmd.String("env")); err != nil {
		return err
	}
	if err := config.Validate(); err != nil {
		return err
	}

	shared.SetLogLevel(r.logger, config.Log.ParsedLevel())

	db, err := r.openDatabase(config)
	if err != nil {
		return err
	}
	defer db.Close()

	router, controller, err := r.newRouter(config, db)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	runURL := config.Server.BaseURL() + "/run"
	r.logger.Info("listening", "addr", config.Server.Address(), "routes", router.Patterns())
	r.writePlain("Run on %s\n", runURL)

	if cmd.Bool("open") {
		if err := r.openBrowser(runURL); err != nil {
			r.logger.Warn("failed to open browser", "error", err)
		}
	}

	srv := server.NewServer(config.Server.Address(), router, controller, r.logger)
	return srv.ListenAndServe(ctx)
}

// newRouter wires the Spotify client, backup pipeline and run history into the listener's routes.
func (r *Runner) newRouter(config *shared.Config, db *sql.DB) (*server.BasicRouter, *server.AuthFlowController, error) {
	httpClient := r.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Backup.RequestTimeout.Duration}
	}

	spotify, err := services.NewSpotifyService(config.Credentials.Spotify, httpClient)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create Spotify service: %w", err)
	}

	writer := tasks.NewSnapshotWriter(config.Backup.OutputDir)
	exporter := tasks.NewPlaylistExporter(spotify, writer, r.logger)
	backup := tasks.NewBackupOrchestrator(spotify, exporter, config.Backup.AllowList(), r.logger)
	tracker := tasks.NewRunTracker(repositories.NewRunRepository(db), r.logger)

	controller := server.NewAuthFlowController(server.ControllerOpts{
		Auth:    spotify,
		Backup:  backup,
		Tracker: tracker,
		Logger:  r.logger,
	})

	router := server.NewRouter(server.RouterOpts{
		Controller: controller,
		Runs:       tracker,
		RateLimit:  config.Server.RateLimit,
		RateBurst:  config.Server.RateBurst,
		Logger:     r.logger,
	})

	return router, controller, nil
}
