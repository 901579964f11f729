// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}
}

// serveCommand starts the authorization listener
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the local listener; visit /run to authorize and back up playlists",
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{
				Name:  "env",
				Usage: "Path to a .env file with clientId, clientSecret and playlistsToBackup",
				Value: ".env",
			},
			&cli.BoolFlag{
				Name:  "open",
				Usage: "Open the /run URL in the default browser",
			},
		},
		Action: r.Serve,
	}
}

// runsCommand reads run history
func runsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "runs",
		Usage: "Inspect backup run history",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List recent runs, newest first",
				Flags: []cli.Flag{
					configFlag(),
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of runs to show (0 for all)",
						Value: 20,
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
					&cli.BoolFlag{
						Name:  "csv",
						Usage: "Output CSV",
					},
				},
				Action: r.RunsList,
			},
			{
				Name:  "show",
				Usage: "Show a run and its playlist outcomes",
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{
						Name:     "id",
						Usage:    "Run ID",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.RunsShow,
			},
		},
	}
}

// setupCommand prepares the configuration file and database
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Initialize configuration and database",
		Commands: []*cli.Command{
			{
				Name:   "database",
				Usage:  "Create the run history database and apply migrations",
				Flags:  []cli.Flag{configFlag()},
				Action: r.SetupDatabase,
			},
			{
				Name:  "config",
				Usage: "Write an example config.toml",
				Flags: []cli.Flag{
					configFlag(),
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Overwrite an existing file",
					},
				},
				Action: r.SetupConfig,
			},
		},
	}
}
