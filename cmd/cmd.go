// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func runFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output directory (default: download.output_dir)",
		},
		&cli.IntFlag{
			Name:    "workers",
			Aliases: []string{"w"},
			Usage:   "Number of concurrent downloads",
		},
		&cli.StringFlag{
			Name:  "codec",
			Usage: "Target codec: flac, mp3, m4a, opus or ogg",
		},
		&cli.StringFlag{
			Name:    "quality",
			Aliases: []string{"q"},
			Usage:   "Requested quality: hires, lossless, high, medium or low",
		},
		&cli.StringFlag{
			Name:  "preferred",
			Usage: "Source tried first",
		},
		&cli.StringFlag{
			Name:  "secondary",
			Usage: "Source tried when the preferred one fails (empty disables)",
		},
		&cli.BoolFlag{
			Name:  "overwrite",
			Usage: "Replace files that already exist",
		},
		&cli.BoolFlag{
			Name:  "strict-isrc",
			Usage: "Skip fuzzy matching when a track has an ISRC",
		},
		&cli.BoolFlag{
			Name:  "no-video",
			Usage: "Never fall back to the video host",
		},
		&cli.BoolFlag{
			Name:  "no-tags",
			Usage: "Do not write catalog metadata into downloaded files",
		},
		&cli.BoolFlag{
			Name:  "no-transcode",
			Usage: "Keep downloads in the format the source delivered",
		},
		&cli.StringFlag{
			Name:  "report",
			Usage: "Write a run report (.csv, .md or .txt)",
		},
	}
}

// setupCommand handles setup operations for the config file and database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:  "config",
				Usage: "Write the example configuration file",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "print",
						Usage: "Print the effective configuration instead of writing a file",
					},
				},
				Action: r.SetupConfig,
			},
			{
				Name:   "database",
				Usage:  "Initialize database and run migrations",
				Action: r.SetupDatabase,
			},
		},
	}
}

// resolveCommand finds tracks from one catalog on the others without downloading.
func resolveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "resolve",
		Aliases:   []string{"find"},
		Usage:     "Match a track, album or playlist URL (or a search query) on other sources",
		ArgsUsage: "<url|query>",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "to",
				Usage: "Target sources (default: every registered catalog)",
			},
			&cli.BoolFlag{
				Name:  "strict-isrc",
				Usage: "Skip fuzzy matching when a track has an ISRC",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.Resolve,
	}
}

// downloadCommand runs the download orchestrator over one or more inputs.
func downloadCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "download",
		Aliases:   []string{"dl", "get"},
		Usage:     "Download tracks, albums or playlists",
		ArgsUsage: "<url|query>...",
		Flags:     runFlags(),
		Action:    r.Download,
	}
}

// convertCommand converts local files.
func convertCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "convert",
		Usage:     "Convert local audio files, keeping their tags",
		ArgsUsage: "<file>...",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output directory (default: next to each input)",
			},
			&cli.IntFlag{
				Name:    "workers",
				Aliases: []string{"w"},
				Usage:   "Number of concurrent conversions",
			},
			&cli.StringFlag{
				Name:  "codec",
				Usage: "Target codec (default: convert.codec)",
			},
			&cli.StringFlag{
				Name:    "quality",
				Aliases: []string{"q"},
				Usage:   "Target quality (default: convert.quality)",
			},
			&cli.BoolFlag{
				Name:  "overwrite",
				Usage: "Replace existing outputs",
			},
			&cli.StringFlag{
				Name:  "report",
				Usage: "Write a run report (.csv, .md or .txt)",
			},
		},
		Action: r.Convert,
	}
}

// tagsCommand rewrites the tags of an existing file from a catalog record.
func tagsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "tags",
		Aliases:   []string{"tag"},
		Usage:     "Write catalog metadata for a track URL into a local file",
		ArgsUsage: "<track-url> <file>",
		Action:    r.Tags,
	}
}

// queueCommand inspects and resumes persisted work items.
func queueCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "queue",
		Usage: "Inspect, resume or clear saved work items",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List saved work items",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.QueueList,
			},
			{
				Name:   "resume",
				Usage:  "Download saved items that are unfinished or failed",
				Flags:  runFlags(),
				Action: r.QueueResume,
			},
			{
				Name:   "clear",
				Usage:  "Remove every saved work item",
				Action: r.QueueClear,
			},
			{
				Name:  "runs",
				Usage: "Show run history",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of runs to show",
						Value: 20,
					},
				},
				Action: r.QueueRuns,
			},
		},
	}
}

// tuiCommand returns the top-level TUI command for monitoring a download run.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "tui",
		Aliases:   []string{"interactive", "ui"},
		Usage:     "Launch the interactive download monitor",
		ArgsUsage: "<url|query>...",
		Flags:     runFlags(),
		Action:    r.TUI,
	}
}
