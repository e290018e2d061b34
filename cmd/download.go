package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/tunedl/internal/models"
	"github.com/desertthunder/tunedl/internal/repositories"
	"github.com/desertthunder/tunedl/internal/services"
	"github.com/desertthunder/tunedl/internal/shared"
	"github.com/desertthunder/tunedl/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Download loads every input and runs the orchestrator over the combined tracks.
func (r *Runner) Download(ctx context.Context, cmd *cli.Command) error {
	inputs := cmd.Args().Slice()
	if len(inputs) == 0 {
		return fmt.Errorf("%w: at least one url or query", shared.ErrMissingArgument)
	}
	opts, err := r.runOptions(cmd)
	if err != nil {
		return err
	}
	catalogs, err := r.services()
	if err != nil {
		return err
	}

	items, err := r.loadInputs(ctx, catalogs, inputs, consoleSink{r})
	if err != nil {
		return err
	}
	if items.Len() == 0 {
		return fmt.Errorf("%w: nothing to download", shared.ErrNotFound)
	}
	r.writePlain("Downloading %d tracks to %s\n\n", items.Len(), opts.OutputDir)

	return r.runDownload(ctx, catalogs, items, opts, cmd.String("report"))
}

// runDownload opens the queue, runs the orchestrator, then records and prints the result.
func (r *Runner) runDownload(ctx context.Context, catalogs *services.Catalogs, items *models.Collection[models.Track], opts tasks.RunOptions, reportPath string) error {
	store, err := r.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	progress := make(chan tasks.ProgressUpdate, 64)
	go r.logProgress(progress)
	defer close(progress)

	summary, runErr := r.orchestrator(catalogs, store, progress).Run(ctx, items, opts, consoleSink{r})
	r.recordRun(ctx, store, repositories.RunDownload, summary)
	if err := r.report(summary, reportPath); err != nil {
		return err
	}
	if runErr != nil {
		return runErr
	}
	if summary != nil && len(summary.Failed) == summary.Total && summary.Total > 0 {
		return fmt.Errorf("%w: every item failed", shared.ErrNotFound)
	}
	return nil
}

func (r *Runner) orchestrator(catalogs *services.Catalogs, store tasks.QueueSaver, progress chan<- tasks.ProgressUpdate) *tasks.Orchestrator {
	opts := []tasks.Option{
		tasks.WithLogger(r.logger),
		tasks.WithTagger(r.updater(catalogs)),
		tasks.WithTranscoder(r.transcoder()),
		tasks.WithProgress(progress),
	}
	if store != nil {
		opts = append(opts, tasks.WithStore(store))
	}
	return tasks.NewOrchestrator(catalogs, opts...)
}

// runOptions starts from the config and applies the flags that were set.
func (r *Runner) runOptions(cmd *cli.Command) (tasks.RunOptions, error) {
	if err := r.config.Validate(); err != nil {
		return tasks.RunOptions{}, err
	}
	opts := tasks.RunOptionsFromConfig(r.config)

	if cmd.IsSet("output") {
		opts.OutputDir = cmd.String("output")
	}
	if cmd.IsSet("workers") {
		if cmd.Int("workers") < 1 {
			return opts, fmt.Errorf("%w: --workers must be at least 1", shared.ErrInvalidArgument)
		}
		opts.Workers = int(cmd.Int("workers"))
	}
	if cmd.IsSet("codec") {
		codec, err := shared.ParseCodec(cmd.String("codec"))
		if err != nil {
			return opts, err
		}
		opts.Format.Codec = codec
	}
	if cmd.IsSet("quality") {
		opts.Format.Quality = cmd.String("quality")
	}
	if cmd.IsSet("preferred") {
		src, err := downloadSource(cmd.String("preferred"))
		if err != nil {
			return opts, err
		}
		opts.Preferred = src
	}
	if cmd.IsSet("secondary") {
		opts.Secondary = ""
		if v := cmd.String("secondary"); v != "" {
			src, err := downloadSource(v)
			if err != nil {
				return opts, err
			}
			opts.Secondary = src
		}
	}
	if opts.Secondary == opts.Preferred {
		opts.Secondary = ""
	}
	if cmd.IsSet("overwrite") {
		opts.Overwrite = cmd.Bool("overwrite")
	}
	if cmd.IsSet("strict-isrc") {
		opts.StrictISRC = cmd.Bool("strict-isrc")
	}
	if cmd.Bool("no-video") {
		opts.AllowVideoFallback = false
	}
	if cmd.Bool("no-tags") {
		opts.Tag = false
	}
	if cmd.Bool("no-transcode") {
		opts.Transcode = false
	}
	return opts, nil
}

// downloadSource parses a --preferred or --secondary value, which must name a catalog that can download.
func downloadSource(name string) (models.Source, error) {
	src, err := models.ParseSource(name)
	if err != nil {
		return "", err
	}
	if err := shared.CheckDownloadSource(string(src)); err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
	}
	return src, nil
}
