package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/spotify-backup/internal/formatter"
	"github.com/desertthunder/spotify-backup/internal/repositories"
	"github.com/desertthunder/spotify-backup/internal/shared"
	"github.com/desertthunder/spotify-backup/internal/ui"
	"github.com/urfave/cli/v3"
)

// RunsList prints recent runs as a table, JSON or CSV.
func (r *Runner) RunsList(ctx context.Context, cmd *cli.Command) error {
	limit := cmd.Int("limit")
	if limit < 0 {
		return fmt.Errorf("%w: --limit must not be negative", shared.ErrInvalidArgument)
	}
	if cmd.Bool("json") && cmd.Bool("csv") {
		return fmt.Errorf("%w: cannot specify both --json and --csv", shared.ErrInvalidArgument)
	}

	config, err := r.loadConfig(cmd.String("config"))
	if err != nil {
		return err
	}

	db, err := r.openDatabase(config)
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := repositories.NewRunRepository(db).List(ctx, limit)
	if err != nil {
		return err
	}

	switch {
	case cmd.Bool("json"):
		return r.writeJSON(runs, true)
	case cmd.Bool("csv"):
		data, err := formatter.RunsCSV(runs)
		if err != nil {
			return err
		}
		return r.writePlain("%s", data)
	default:
		return r.writePlain("%s\n", formatter.RunsTable(runs, ui.Styles))
	}
}

// RunsShow prints one run with its playlist outcomes.
func (r *Runner) RunsShow(ctx context.Context, cmd *cli.Command) error {
	id := cmd.String("id")
	if id == "" {
		return fmt.Errorf("%w: --id", shared.ErrMissingArgument)
	}

	config, err := r.loadConfig(cmd.String("config"))
	if err != nil {
		return err
	}

	db, err := r.openDatabase(config)
	if err != nil {
		return err
	}
	defer db.Close()

	run, err := repositories.NewRunRepository(db).Get(ctx, id)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(run, true)
	}
	return r.writePlain("%s", formatter.RunDetail(run, ui.Styles))
}
