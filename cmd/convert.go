package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/tunedl/internal/models"
	"github.com/desertthunder/tunedl/internal/repositories"
	"github.com/desertthunder/tunedl/internal/shared"
	"github.com/desertthunder/tunedl/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Convert re-encodes local files on the conversion pool.
func (r *Runner) Convert(ctx context.Context, cmd *cli.Command) error {
	paths := cmd.Args().Slice()
	if len(paths) == 0 {
		return fmt.Errorf("%w: at least one file", shared.ErrMissingArgument)
	}

	opts := tasks.ConvertOptions{
		Workers:   r.config.Convert.Workers,
		Format:    models.OutputFormat{Codec: r.config.Convert.Codec, Quality: r.config.Convert.Quality},
		OutputDir: cmd.String("output"),
		Overwrite: cmd.Bool("overwrite"),
	}
	if cmd.IsSet("workers") {
		opts.Workers = int(cmd.Int("workers"))
	}
	if cmd.IsSet("codec") {
		opts.Format.Codec = cmd.String("codec")
	}
	if cmd.IsSet("quality") {
		opts.Format.Quality = cmd.String("quality")
	}

	catalogs, err := r.services()
	if err != nil {
		return err
	}

	// Conversion does not need the queue, so a locked database only costs the history row.
	store, err := r.openStore(ctx)
	if err != nil {
		r.logger.Warn("run history unavailable", "error", err)
		store = nil
	} else {
		defer store.Close()
	}

	progress := make(chan tasks.ProgressUpdate, 64)
	go r.logProgress(progress)
	defer close(progress)

	converter := tasks.NewConverter(r.transcoder(), r.updater(catalogs), r.logger, progress)
	summary, runErr := converter.Run(ctx, paths, opts, consoleSink{r})
	r.recordRun(ctx, store, repositories.RunConvert, summary)
	if err := r.report(summary, cmd.String("report")); err != nil {
		return err
	}
	return runErr
}
