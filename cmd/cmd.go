// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

// setupCommand handles setup operations for the database and configuration file.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:  "database",
				Usage: "Initialize database and run migrations",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "rollback",
						Usage: "Roll back the most recent migration instead",
					},
				},
				Action: r.SetupDatabase,
			},
			{
				Name:   "config",
				Usage:  "Write an example configuration file",
				Action: r.SetupConfig,
			},
			{
				Name:   "status",
				Usage:  "Show configuration, applied migrations and catalog size",
				Action: r.SetupStatus,
			},
		},
	}
}

// syncCommand handles synchronization runs.
func syncCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Synchronize the catalog with the release spreadsheet",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Run a sync in the foreground with live progress",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "file",
						Usage: "Read the workbook from a local .xlsx file instead of the configured source",
					},
				},
				Action: r.SyncRun,
			},
			{
				Name:   "trigger",
				Usage:  "Ask a running server to start a sync",
				Flags:  []cli.Flag{serverFlag()},
				Action: r.SyncTrigger,
			},
			{
				Name:  "status",
				Usage: "Show the active or most recent sync",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Output format (text, json)",
						Value:   "text",
					},
					&cli.BoolFlag{
						Name:  "remote",
						Usage: "Query the server instead of the local database",
					},
					serverFlag(),
				},
				Action: r.SyncStatus,
			},
			{
				Name:  "cancel",
				Usage: "Request cancellation of the active sync",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "remote",
						Usage: "Cancel through the server instead of the local database",
					},
					serverFlag(),
				},
				Action: r.SyncCancel,
			},
			{
				Name:  "history",
				Usage: "List recent sync results",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"n"},
						Usage:   "Maximum number of records",
						Value:   10,
					},
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Output format (text, json, csv)",
						Value:   "text",
					},
				},
				Action: r.SyncHistory,
			},
			{
				Name:  "watch",
				Usage: "Interactive dashboard for starting and following syncs",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "local",
						Usage: "Run syncs in this process instead of through the server",
					},
					&cli.StringFlag{
						Name:  "file",
						Usage: "Workbook file for local runs",
					},
					&cli.StringFlag{
						Name:  "log-file",
						Usage: "Where to write logs while the dashboard is open",
						Value: "progdb.log",
					},
					serverFlag(),
				},
				Action: r.SyncWatch,
			},
		},
	}
}

// importCommand handles one-shot imports.
func importCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "Import albums from the release spreadsheet without recording a sync",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Import at most this many rows (0 for all)",
			},
			&cli.BoolFlag{
				Name:  "skip-existing",
				Usage: "Skip albums already in the catalog",
			},
			&cli.BoolFlag{
				Name:  "sync",
				Usage: "Run a recorded sync instead (same as 'sync run')",
			},
			&cli.StringFlag{
				Name:  "file",
				Usage: "Read the workbook from a local .xlsx file",
			},
		},
		Action: r.Import,
	}
}

// serveCommand runs the HTTP server.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the sync API and run scheduled syncs",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address (default: from [server] config)",
			},
			&cli.StringFlag{
				Name:  "file",
				Usage: "Read the workbook from a local .xlsx file",
			},
		},
		Action: r.Serve,
	}
}

// albumsCommand handles catalog queries.
func albumsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "albums",
		Usage: "Browse the album catalog",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List albums, newest release first",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"n"},
						Usage:   "Maximum number of albums",
						Value:   25,
					},
					&cli.IntFlag{
						Name:  "offset",
						Usage: "Number of albums to skip",
					},
					&cli.IntFlag{
						Name:  "year",
						Usage: "Only albums released in this year",
					},
					&cli.StringFlag{
						Name:  "genre",
						Usage: "Only albums tagged with this genre",
					},
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Output format (text, json, csv, markdown)",
						Value:   "text",
					},
				},
				Action: r.AlbumsList,
			},
			{
				Name:  "cover",
				Usage: "Show an album's cover art, fetching it on first use",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "id",
					},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "open",
						Usage: "Open the cover in a browser",
					},
				},
				Action: r.AlbumsCover,
			},
			{
				Name:  "open",
				Usage: "Open an album on Spotify",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "id",
					},
				},
				Action: r.AlbumsOpen,
			},
		},
	}
}

// sheetsCommand inspects the release spreadsheet.
func sheetsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "sheets",
		Usage: "Inspect the release spreadsheet",
		Commands: []*cli.Command{
			{
				Name:  "tabs",
				Usage: "List tabs with their classification and sync order",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "file",
						Usage: "Read the workbook from a local .xlsx file",
					},
					&cli.BoolFlag{
						Name:  "all",
						Usage: "Include out-of-scope tabs",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output JSON",
					},
				},
				Action: r.SheetsTabs,
			},
		},
	}
}

// serverFlag points remote commands at a server other than the configured one.
func serverFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "server",
		Usage: "Base URL of a running progdb server (default: from [server] config)",
	}
}
