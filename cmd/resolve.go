package main

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/desertthunder/tunedl/internal/formatter"
	"github.com/desertthunder/tunedl/internal/models"
	"github.com/desertthunder/tunedl/internal/resolver"
	"github.com/desertthunder/tunedl/internal/services"
	"github.com/desertthunder/tunedl/internal/shared"
	"github.com/urfave/cli/v3"
)

// Resolve loads the input and matches every track on each target source.
func (r *Runner) Resolve(ctx context.Context, cmd *cli.Command) error {
	input := strings.Join(cmd.Args().Slice(), " ")
	if input == "" {
		return fmt.Errorf("%w: url or query", shared.ErrMissingArgument)
	}

	catalogs, err := r.services()
	if err != nil {
		return err
	}
	targets, err := resolveTargets(catalogs, cmd.StringSlice("to"))
	if err != nil {
		return err
	}

	items, err := r.loadInputs(ctx, catalogs, []string{input}, consoleSink{r})
	if err != nil {
		return err
	}
	if items.Len() == 0 {
		return fmt.Errorf("%w: nothing loaded from %q", shared.ErrNotFound, input)
	}

	res := resolver.New(r.logger)
	opts := resolver.Options{StrictISRC: cmd.Bool("strict-isrc")}
	var rows []formatter.ResolutionRow
	for _, track := range items.Snapshot() {
		for _, target := range targets {
			if target == track.Source {
				continue
			}
			row, err := r.resolveOne(ctx, res, catalogs, track, target, opts)
			if err != nil {
				return err
			}
			rows = append(rows, row)
		}
	}

	if cmd.Bool("json") {
		return r.writeJSON(rows, true)
	}
	r.writePlain("%s\n", formatter.ResolutionTable(rows))
	return nil
}

func (r *Runner) resolveOne(ctx context.Context, res *resolver.Resolver, catalogs *services.Catalogs, track models.Track, target models.Source, opts resolver.Options) (formatter.ResolutionRow, error) {
	row := formatter.ResolutionRow{Track: track, Target: target}

	if target == models.SourceYouTube {
		host := catalogs.VideoHost()
		if host == nil {
			row.Severity, row.Reason = models.Error, "no video host"
			return row, nil
		}
		videos, err := host.Search(ctx, resolver.VideoQuery(track), 10)
		if err != nil {
			if shared.IsCancelled(err) {
				return row, err
			}
			row.Severity, row.Reason = models.Error, err.Error()
			return row, nil
		}
		v, tier, ok := resolver.SelectVideo(track, videos)
		if !ok {
			row.Severity, row.Reason = models.Error, "no video results"
			return row, nil
		}
		match := services.VideoTrack(v)
		row.Match, row.Severity, row.Reason = &match, tier.Severity(), tier.String()
		return row, nil
	}

	catalog, err := catalogs.Get(target)
	if err != nil {
		row.Severity, row.Reason = models.Error, err.Error()
		return row, nil
	}
	resolution, err := res.Resolve(ctx, track, catalog, opts)
	if err != nil {
		return row, err
	}
	row.Match, row.Severity, row.Reason = resolution.Track, resolution.Severity, resolution.Reason
	return row, nil
}

// resolveTargets parses --to, defaulting to every registered catalog plus the video host.
func resolveTargets(catalogs *services.Catalogs, names []string) ([]models.Source, error) {
	if len(names) == 0 {
		targets := catalogs.Sources()
		if catalogs.VideoHost() != nil {
			targets = append(targets, models.SourceYouTube)
		}
		return targets, nil
	}

	var targets []models.Source
	for _, n := range names {
		for _, part := range strings.Split(n, ",") {
			src, err := models.ParseSource(strings.TrimSpace(part))
			if err != nil {
				return nil, err
			}
			if !slices.Contains(targets, src) {
				targets = append(targets, src)
			}
		}
	}
	return targets, nil
}
