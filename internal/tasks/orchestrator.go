package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tunedl/internal/models"
	"github.com/desertthunder/tunedl/internal/resolver"
	"github.com/desertthunder/tunedl/internal/services"
	"github.com/desertthunder/tunedl/internal/shared"
)

const videoSearchLimit = 10

// Tagger writes canonical metadata into a downloaded file.
type Tagger interface {
	// Update fetches the record for origin from its catalog and writes it into path.
	Update(ctx context.Context, origin models.Track, path string) error
}

// Transcoder converts an audio file to another codec.
type Transcoder interface {
	// Convert writes input as format into outDir, returning the new path.
	Convert(ctx context.Context, input string, format models.OutputFormat, outDir string) (string, error)
}

// QueueSaver persists finished work items. Saves are best-effort and must not block a run.
type QueueSaver interface {
	QueueSave(key string, payload, image []byte)
}

// RunOptions configures a download run.
type RunOptions struct {
	Workers   int
	Preferred models.Source
	Secondary models.Source
	Format    models.OutputFormat
	// DegradedQuality is retried on the preferred source when the requested quality is restricted.
	DegradedQuality    string
	OutputDir          string
	Overwrite          bool
	StrictISRC         bool
	AllowVideoFallback bool
	// Transcode converts downloads whose extension differs from Format.
	Transcode bool
	Tag       bool
}

// RunOptionsFromConfig maps the download section of cfg to [RunOptions].
func RunOptionsFromConfig(cfg *shared.Config) RunOptions {
	d := cfg.Download
	return RunOptions{
		Workers:            d.Workers,
		Preferred:          models.Source(d.Preferred),
		Secondary:          models.Source(d.Secondary),
		Format:             models.OutputFormat{Codec: d.Codec, Quality: d.Quality},
		DegradedQuality:    d.DegradedQuality,
		OutputDir:          d.OutputDir,
		Overwrite:          d.Overwrite,
		StrictISRC:         d.StrictISRC,
		AllowVideoFallback: d.AllowVideoFallback,
		Transcode:          true,
		Tag:                true,
	}
}

func (o RunOptions) withDefaults() RunOptions {
	if o.Workers < 1 {
		o.Workers = 1
	}
	if o.OutputDir == "" {
		o.OutputDir = "."
	}
	if o.Format.Quality == "" {
		o.Format.Quality = "lossless"
	}
	if o.Format.Codec == "" {
		o.Format.Codec = "flac"
	}
	if o.Secondary == o.Preferred {
		o.Secondary = ""
	}
	return o
}

// Orchestrator runs a collection of tracks through resolution, download, conversion and tagging on a
// bounded worker pool.
type Orchestrator struct {
	catalogs   *services.Catalogs
	resolver   *resolver.Resolver
	tagger     Tagger
	transcoder Transcoder
	store      QueueSaver
	logger     *log.Logger
	progress   chan<- ProgressUpdate
}

// Option configures an [Orchestrator].
type Option func(*Orchestrator)

func WithTagger(t Tagger) Option         { return func(o *Orchestrator) { o.tagger = t } }
func WithTranscoder(t Transcoder) Option { return func(o *Orchestrator) { o.transcoder = t } }
func WithStore(s QueueSaver) Option      { return func(o *Orchestrator) { o.store = s } }
func WithLogger(l *log.Logger) Option    { return func(o *Orchestrator) { o.logger = l } }

// WithProgress sets a channel for progress updates. Sends never block; updates are dropped when it is full.
func WithProgress(ch chan<- ProgressUpdate) Option { return func(o *Orchestrator) { o.progress = ch } }

// NewOrchestrator creates an [Orchestrator] over catalogs.
func NewOrchestrator(catalogs *services.Catalogs, opts ...Option) *Orchestrator {
	o := &Orchestrator{catalogs: catalogs, logger: log.New(io.Discard)}
	for _, opt := range opts {
		opt(o)
	}
	o.resolver = resolver.New(o.logger)
	return o
}

// run is the per-call state shared by the workers of one [Orchestrator.Run].
type run struct {
	items  *models.Collection[models.Track]
	opts   RunOptions
	sink   models.StatusSink
	tally  *tally
	logger *log.Logger
}

// Run processes every track in items and returns once all workers have exited.
//
// items is frozen for the duration; each finished track is written back at its index with LocalPath, State
// and Result set. sink receives exactly one update per item that was not cancelled. When ctx is cancelled
// workers stop picking up items, in-flight items are abandoned without a report, and Run returns the partial
// summary together with ctx.Err().
func (o *Orchestrator) Run(ctx context.Context, items *models.Collection[models.Track], opts RunOptions, sink models.StatusSink) (*Summary, error) {
	if sink == nil {
		sink = models.DiscardSink
	}
	if !items.Freeze() {
		return nil, shared.ErrCollectionFrozen
	}
	defer items.Thaw()

	opts = opts.withDefaults()
	n := items.Len()
	runID := shared.GenerateID()
	r := &run{
		items:  items,
		opts:   opts,
		sink:   sink,
		tally:  newTally(runID, n),
		logger: shared.WithLogger(o.logger, "run", runID[:8]),
	}
	for i, t := range items.Snapshot() {
		t.State = models.StatePending
		o.save(opts, i, t)
	}
	r.logger.Info("starting run", "items", n, "workers", opts.Workers, "preferred", opts.Preferred, "secondary", opts.Secondary)

	completed := runPool(ctx, n, opts.Workers,
		func(ctx context.Context, idx int) bool { return o.process(ctx, r, idx) },
		func() {
			if c, ok := sink.(CompletionObserver); ok {
				c.OnComplete(r.tally.snapshot())
			}
		},
	)

	summary := r.tally.snapshot()
	summary.Completed = completed
	if err := ctx.Err(); err != nil {
		summary.Cancelled = true
		r.logger.Warn("run cancelled", "completed", completed, "total", n)
		return &summary, err
	}
	ok, warn, fail := summary.Counts()
	r.logger.Info("run finished", "succeeded", ok, "warned", warn, "failed", fail, "elapsed", summary.Elapsed.Round(time.Millisecond))
	return &summary, nil
}

// outcome is the result of walking the fallback chain for one item.
type outcome struct {
	severity models.Severity
	path     string
	// origin is the catalog record the file came from, used for tagging.
	origin   *models.Track
	message  string
	attempts int
}

// process handles a single item. It returns false when the item was abandoned because ctx was cancelled.
func (o *Orchestrator) process(ctx context.Context, r *run, idx int) (reported bool) {
	track, _ := r.items.Get(idx)
	start := time.Now()

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("panic while processing item", "index", idx, "track", track.String(), "panic", p)
			o.finish(r, idx, track, models.Update{
				Severity: models.Error,
				Track:    track,
				Message:  fmt.Sprintf("internal error: %v", p),
				Duration: time.Since(start),
			})
			reported = true
		}
	}()

	running := track
	running.State = models.StateRunning
	_ = r.items.Set(idx, running)

	out, err := o.acquire(ctx, r, idx, track)
	if err != nil {
		_ = r.items.Set(idx, track)
		return false
	}

	if out.severity != models.Error {
		out, err = o.postProcess(ctx, r, idx, track, out)
		if err != nil {
			_ = r.items.Set(idx, track)
			return false
		}
	}

	done := track
	done.LocalPath = out.path
	o.finish(r, idx, done, models.Update{
		Severity: out.severity,
		Track:    done,
		Message:  out.message,
		Duration: time.Since(start),
		Attempts: out.attempts,
	})
	return true
}

// finish records the terminal state of an item and emits its single update.
func (o *Orchestrator) finish(r *run, idx int, track models.Track, u models.Update) {
	sev := u.Severity
	track.State = models.StateDone
	track.Result = &sev
	u.Track = track
	_ = r.items.Set(idx, track)

	r.sink.OnUpdate(u)
	step := r.tally.add(u)
	sendProgress(o.progress, finishedUpdate(step, r.tally.total(), idx, u))

	if u.Severity == models.Error {
		r.logger.Warn("item failed", "index", idx, "track", track.String(), "reason", u.Message)
	} else {
		r.logger.Debug("item finished", "index", idx, "severity", u.Severity, "path", track.LocalPath)
	}

	o.save(r.opts, idx, track)
}

// save persists the work item for track. Items are saved as pending when a run starts and again when they
// finish, so an interrupted run can be resumed.
func (o *Orchestrator) save(opts RunOptions, idx int, track models.Track) {
	if o.store == nil {
		return
	}
	item := models.NewWorkItem(idx, track, opts.Preferred, opts.Format)
	if payload, err := json.Marshal(item); err == nil {
		o.store.QueueSave(track.Hash(), payload, nil)
	}
}

// acquire walks the fallback chain:
//
//  1. preferred source at the requested quality
//  2. secondary source, when configured
//  3. preferred source at the degraded quality, only if step 1 was quality-restricted
//  4. video host, when allowed
//
// An existing file or a source without a downloader fails the step and moves on. The returned error is
// non-nil only when ctx was cancelled.
func (o *Orchestrator) acquire(ctx context.Context, r *run, idx int, track models.Track) (outcome, error) {
	dest := filepath.Join(r.opts.OutputDir, destinationName(track))
	quality := r.opts.Format.Quality
	var reasons []string
	attempts := 0

	fail := func(src models.Source, q string, err error) {
		attempts++
		reasons = append(reasons, fmt.Sprintf("%s: %v", string(src), err))
		o.observe(r, Attempt{Index: idx, Track: track, Source: src, Quality: q, Severity: models.Error, Err: err})
	}
	succeed := func(src models.Source, q string, sev models.Severity, path string, origin *models.Track) outcome {
		attempts++
		o.observe(r, Attempt{Index: idx, Track: track, Source: src, Quality: q, Severity: sev})
		return outcome{severity: sev, path: path, origin: origin, message: path, attempts: attempts}
	}

	first, err := o.attempt(ctx, r, idx, track, r.opts.Preferred, quality, dest, nil)
	if err != nil {
		return outcome{}, err
	}
	if first.err == nil {
		return succeed(r.opts.Preferred, quality, first.severity, first.path, first.resolved), nil
	}
	fail(r.opts.Preferred, quality, first.err)

	if r.opts.Secondary != "" {
		second, err := o.attempt(ctx, r, idx, track, r.opts.Secondary, quality, dest, nil)
		if err != nil {
			return outcome{}, err
		}
		if second.err == nil {
			return succeed(r.opts.Secondary, quality, second.severity, second.path, second.resolved), nil
		}
		fail(r.opts.Secondary, quality, second.err)
	}

	degraded := r.opts.DegradedQuality
	if first.resolved != nil && errors.Is(first.err, shared.ErrQualityRestricted) && degraded != "" && degraded != quality {
		third, err := o.attempt(ctx, r, idx, track, r.opts.Preferred, degraded, dest, first.resolved)
		if err != nil {
			return outcome{}, err
		}
		if third.err == nil {
			return succeed(r.opts.Preferred, degraded, models.Warning, third.path, third.resolved), nil
		}
		fail(r.opts.Preferred, degraded, third.err)
	}

	if r.opts.AllowVideoFallback {
		path, err := o.video(ctx, r, idx, track, dest)
		if err != nil && (shared.IsCancelled(err) || ctx.Err() != nil) {
			return outcome{}, ctx.Err()
		}
		if err == nil {
			var origin *models.Track
			if track.Source.IsCatalog() {
				origin = &track
			}
			return succeed(models.SourceYouTube, "", models.Warning, path, origin), nil
		}
		fail(models.SourceYouTube, "", err)
	}

	return outcome{severity: models.Error, message: strings.Join(reasons, "; "), attempts: attempts}, nil
}

type stepResult struct {
	severity models.Severity
	path     string
	resolved *models.Track
	err      error
}

// attempt resolves track on src (unless resolved is given) and downloads it at quality.
// A non-nil error means ctx was cancelled; step failures are carried in stepResult.err.
func (o *Orchestrator) attempt(ctx context.Context, r *run, idx int, track models.Track, src models.Source, quality, dest string, resolved *models.Track) (stepResult, error) {
	if err := ctx.Err(); err != nil {
		return stepResult{}, err
	}

	dl, err := o.catalogs.Downloader(src)
	if err != nil {
		return stepResult{err: err}, nil
	}

	res := stepResult{severity: models.Success, resolved: resolved}
	if resolved == nil {
		catalog, err := o.catalogs.Get(src)
		if err != nil {
			return stepResult{err: err}, nil
		}
		step, total := r.tally.position()
		sendProgress(o.progress, resolveUpdate(step, total, idx, track, src))
		resolution, err := o.resolver.Resolve(ctx, track, catalog, resolver.Options{StrictISRC: r.opts.StrictISRC})
		if err != nil {
			return stepResult{}, err
		}
		if !resolution.Found() {
			return stepResult{err: fmt.Errorf("%w: %s", shared.ErrNotFound, resolution.Reason)}, nil
		}
		res.severity = resolution.Severity
		res.resolved = resolution.Track
		r.logger.Debug("resolved", "index", idx, "source", src, "id", resolution.Track.ID, "reason", resolution.Reason)
	}

	step, total := r.tally.position()
	sendProgress(o.progress, downloadUpdate(step, total, idx, track, src, quality))
	path, err := dl.Download(ctx, *res.resolved, services.Request{
		Destination: dest,
		Quality:     quality,
		Codec:       r.opts.Format.Codec,
		Overwrite:   r.opts.Overwrite,
	})
	if err != nil {
		if shared.IsCancelled(err) || ctx.Err() != nil {
			return stepResult{}, ctx.Err()
		}
		res.err = err
		return res, nil
	}
	res.path = path
	return res, nil
}

// video searches the video host and downloads the best-ranked result.
func (o *Orchestrator) video(ctx context.Context, r *run, idx int, track models.Track, dest string) (string, error) {
	host := o.catalogs.VideoHost()
	if host == nil {
		return "", fmt.Errorf("%w: no video host", shared.ErrNoDownloader)
	}

	videos, err := host.Search(ctx, resolver.VideoQuery(track), videoSearchLimit)
	if err != nil {
		return "", err
	}
	v, tier, ok := resolver.SelectVideo(track, videos)
	if !ok {
		return "", fmt.Errorf("%w: no video results", shared.ErrNotFound)
	}
	r.logger.Debug("selected video", "index", idx, "id", v.ID, "tier", tier)

	step, total := r.tally.position()
	sendProgress(o.progress, downloadUpdate(step, total, idx, track, models.SourceYouTube, tier.String()))
	return host.DownloadVideo(ctx, v, services.Request{
		Destination: dest,
		Codec:       r.opts.Format.Codec,
		Overwrite:   r.opts.Overwrite,
	})
}

// postProcess converts and tags a successful download. Failures in either step keep the file and degrade
// the item to a warning. The returned error is non-nil only when ctx was cancelled.
func (o *Orchestrator) postProcess(ctx context.Context, r *run, idx int, track models.Track, out outcome) (outcome, error) {
	if r.opts.Transcode && o.transcoder != nil && !strings.EqualFold(filepath.Ext(out.path), r.opts.Format.Extension()) {
		step, total := r.tally.position()
		sendProgress(o.progress, convertUpdate(step, total, idx, out.path, r.opts.Format.Codec))
		converted, err := o.transcoder.Convert(ctx, out.path, r.opts.Format, filepath.Dir(out.path))
		switch {
		case err != nil && (shared.IsCancelled(err) || ctx.Err() != nil):
			return out, ctx.Err()
		case err != nil:
			r.logger.Warn("conversion failed, keeping download", "index", idx, "path", out.path, "error", err)
			out.severity = out.severity.Worse(models.Warning)
			out.message = fmt.Sprintf("%s (conversion failed: %v)", out.path, err)
		default:
			if converted != out.path {
				_ = os.Remove(out.path)
			}
			out.path = converted
			out.message = converted
		}
	}

	if err := ctx.Err(); err != nil {
		return out, err
	}

	if r.opts.Tag && o.tagger != nil && out.origin != nil {
		step, total := r.tally.position()
		sendProgress(o.progress, tagUpdate(step, total, idx, out.path))
		if err := o.tag(ctx, *out.origin, out.path); err != nil {
			if shared.IsCancelled(err) || ctx.Err() != nil {
				return out, ctx.Err()
			}
			r.logger.Warn("failed to write tags", "index", idx, "path", out.path, "error", err)
			out.severity = out.severity.Worse(models.Warning)
			out.message = fmt.Sprintf("%s (tagging failed: %v)", out.path, err)
		}
	}
	return out, nil
}

// tag runs the tagger, turning a panic into an error so the download is kept.
func (o *Orchestrator) tag(ctx context.Context, origin models.Track, path string) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("tag writer panicked: %v", p)
		}
	}()
	return o.tagger.Update(ctx, origin, path)
}

func (o *Orchestrator) observe(r *run, a Attempt) {
	if obs, ok := r.sink.(AttemptObserver); ok {
		obs.OnAttempt(a)
	}
	if a.Err != nil {
		r.logger.Debug("attempt failed", "index", a.Index, "source", a.Source, "quality", a.Quality, "error", a.Err)
	}
}

// destinationName is the file name, without extension, a track is downloaded to.
func destinationName(t models.Track) string {
	var name string
	switch {
	case t.Artist() != "" && t.Title != "":
		name = t.Artist() + " - " + t.Title
	case t.Title != "":
		name = t.Title
	default:
		name = t.ID
	}
	return shared.SanitizeFileName(name)
}
