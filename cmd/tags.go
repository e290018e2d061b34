package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/tunedl/internal/models"
	"github.com/desertthunder/tunedl/internal/router"
	"github.com/desertthunder/tunedl/internal/shared"
	"github.com/urfave/cli/v3"
)

// Tags writes the catalog record for a track URL into an existing file.
func (r *Runner) Tags(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 2 {
		return fmt.Errorf("%w: expected <track-url> <file>", shared.ErrMissingArgument)
	}
	rawURL, path := cmd.Args().Get(0), cmd.Args().Get(1)

	catalogs, err := r.services()
	if err != nil {
		return err
	}

	cls, err := r.router(catalogs).Expand(ctx, router.Classify(rawURL))
	if err != nil {
		return err
	}
	if !cls.Recognized() || cls.Entity != router.EntityTrack {
		return fmt.Errorf("%w: %q is not a track URL", shared.ErrInvalidArgument, rawURL)
	}

	origin := models.Track{Source: cls.Source, ID: cls.ID}
	if err := r.updater(catalogs).Update(ctx, origin, path); err != nil {
		return err
	}
	r.logger.Info("tags written", "file", path, "source", cls.Source, "id", cls.ID)
	r.writePlain("✓ Tagged %s from %s\n", path, cls.Source)
	return nil
}
