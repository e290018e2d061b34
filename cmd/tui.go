package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/adrg/xdg"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/tunedl/internal/models"
	"github.com/desertthunder/tunedl/internal/repositories"
	"github.com/desertthunder/tunedl/internal/shared"
	"github.com/desertthunder/tunedl/internal/tasks"
	"github.com/desertthunder/tunedl/internal/ui"
	"github.com/urfave/cli/v3"
)

// TUI launches the interactive run monitor for the given inputs.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	inputs := cmd.Args().Slice()
	if len(inputs) == 0 {
		return fmt.Errorf("%w: at least one url or query", shared.ErrMissingArgument)
	}
	opts, err := r.runOptions(cmd)
	if err != nil {
		return err
	}

	// Redirect logs to file to avoid interfering with TUI rendering
	logPath, err := xdg.StateFile("tunedl/tui.log")
	if err != nil {
		return fmt.Errorf("failed to resolve log path: %w", err)
	}
	fileLogger, err := shared.NewFileLogger(logPath)
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	r.SetLogger(fileLogger)

	catalogs, err := r.services()
	if err != nil {
		return err
	}

	load := func(ctx context.Context) (string, []models.Track, error) {
		var failures []string
		sink := models.SinkFunc(func(u models.Update) { failures = append(failures, u.Message) })
		items, err := r.loadInputs(ctx, catalogs, inputs, sink)
		if err != nil {
			return "", nil, err
		}
		if items.Len() == 0 {
			return "", nil, fmt.Errorf("%w: nothing to download: %s", shared.ErrNotFound, strings.Join(failures, "; "))
		}
		return strings.Join(inputs, ", "), items.Snapshot(), nil
	}

	run := func(ctx context.Context, tracks []models.Track, progress chan<- tasks.ProgressUpdate) (*tasks.Summary, error) {
		store, err := r.openStore(ctx)
		if err != nil {
			return nil, err
		}
		defer store.Close()

		summary, err := r.orchestrator(catalogs, store, progress).Run(ctx, models.NewCollection(tracks...), opts, nil)
		r.recordRun(ctx, store, repositories.RunDownload, summary)
		return summary, err
	}

	format := fmt.Sprintf("%s/%s → %s", opts.Format.Codec, opts.Format.Quality, opts.OutputDir)
	model := ui.NewModel(ctx, format, load, run)
	p := tea.NewProgram(model, tea.WithContext(ctx), tea.WithAltScreen())

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	if s := model.Summary(); s != nil {
		return r.report(s, cmd.String("report"))
	}
	if err := model.Err(); err != nil && !shared.IsCancelled(err) {
		return err
	}
	return nil
}
