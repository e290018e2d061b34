package tasks

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tunedl/internal/models"
	"github.com/desertthunder/tunedl/internal/shared"
)

// LocalTags reads and writes tags of audio files already on disk.
type LocalTags interface {
	ReadLocal(path string) (*models.LocalFile, error)
	WriteFile(path string, meta models.Metadata, cover []byte) error
}

// ConvertOptions configures a conversion run.
type ConvertOptions struct {
	Workers int
	Format  models.OutputFormat
	// OutputDir defaults to each input's directory.
	OutputDir string
	Overwrite bool
}

// Converter re-encodes local files on its own worker pool and carries their tags over.
type Converter struct {
	transcoder Transcoder
	tags       LocalTags
	logger     *log.Logger
	progress   chan<- ProgressUpdate
}

// NewConverter creates a [Converter]. tags may be nil, in which case tags are not carried over.
func NewConverter(transcoder Transcoder, tags LocalTags, logger *log.Logger, progress chan<- ProgressUpdate) *Converter {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Converter{transcoder: transcoder, tags: tags, logger: logger, progress: progress}
}

// Run converts every file in paths. Reporting and cancellation follow [Orchestrator.Run].
func (c *Converter) Run(ctx context.Context, paths []string, opts ConvertOptions, sink models.StatusSink) (*Summary, error) {
	if sink == nil {
		sink = models.DiscardSink
	}
	if c.transcoder == nil {
		return nil, fmt.Errorf("%w: no transcoder", shared.ErrMissingConfig)
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if _, err := shared.ParseCodec(opts.Format.Codec); err != nil {
		return nil, err
	}

	runID := shared.GenerateID()
	t := newTally(runID, len(paths))
	logger := shared.WithLogger(c.logger, "convert", runID[:8])
	logger.Info("starting conversion", "files", len(paths), "codec", opts.Format.Codec, "workers", opts.Workers)

	completed := runPool(ctx, len(paths), opts.Workers,
		func(ctx context.Context, idx int) bool {
			u, ok := c.convert(ctx, logger, idx, paths[idx], opts)
			if !ok {
				return false
			}
			sink.OnUpdate(u)
			step := t.add(u)
			sendProgress(c.progress, finishedUpdate(step, t.total(), idx, u))
			return true
		},
		func() {
			if obs, ok := sink.(CompletionObserver); ok {
				obs.OnComplete(t.snapshot())
			}
		},
	)

	summary := t.snapshot()
	summary.Completed = completed
	if err := ctx.Err(); err != nil {
		summary.Cancelled = true
		return &summary, err
	}
	return &summary, nil
}

// convert handles one file. ok is false when ctx was cancelled.
func (c *Converter) convert(ctx context.Context, logger *log.Logger, idx int, path string, opts ConvertOptions) (u models.Update, ok bool) {
	start := time.Now()
	track := models.Track{Source: models.SourceLocal, ID: path, Title: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))}

	defer func() {
		if p := recover(); p != nil {
			logger.Error("panic while converting", "path", path, "panic", p)
			u = c.result(track, models.Error, fmt.Sprintf("internal error: %v", p), start)
			ok = true
		}
	}()

	var local *models.LocalFile
	if c.tags != nil {
		lf, err := c.tags.ReadLocal(path)
		if err != nil {
			return c.result(track, models.Error, err.Error(), start), true
		}
		local = lf
		track = lf.Track
	} else if _, err := os.Stat(path); err != nil {
		return c.result(track, models.Error, fmt.Sprintf("%v: %v", shared.ErrNotFound, err), start), true
	}

	outDir := opts.OutputDir
	if outDir == "" {
		outDir = filepath.Dir(path)
	}
	target := filepath.Join(outDir, strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))+opts.Format.Extension())
	if !opts.Overwrite {
		if _, err := os.Stat(target); err == nil {
			return c.result(track, models.Error, fmt.Sprintf("%v: %s", shared.ErrAlreadyExists, target), start), true
		}
	}

	sendProgress(c.progress, convertUpdate(0, 0, idx, path, opts.Format.Codec))
	out, err := c.transcoder.Convert(ctx, path, opts.Format, outDir)
	if err != nil {
		if shared.IsCancelled(err) || ctx.Err() != nil {
			return models.Update{}, false
		}
		logger.Warn("conversion failed", "path", path, "error", err)
		return c.result(track, models.Error, err.Error(), start), true
	}
	track.LocalPath = out

	if local != nil {
		if err := c.tags.WriteFile(out, local.Metadata, local.Cover); err != nil {
			logger.Warn("failed to carry tags over", "path", out, "error", err)
			return c.result(track, models.Warning, fmt.Sprintf("%s (tagging failed: %v)", out, err), start), true
		}
	}
	return c.result(track, models.Success, out, start), true
}

func (c *Converter) result(track models.Track, sev models.Severity, msg string, start time.Time) models.Update {
	s := sev
	track.State = models.StateDone
	track.Result = &s
	return models.Update{Severity: sev, Track: track, Message: msg, Duration: time.Since(start), Attempts: 1}
}
