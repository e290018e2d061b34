package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tunedl/internal/formatter"
	"github.com/desertthunder/tunedl/internal/models"
	"github.com/desertthunder/tunedl/internal/repositories"
	"github.com/desertthunder/tunedl/internal/router"
	"github.com/desertthunder/tunedl/internal/services"
	"github.com/desertthunder/tunedl/internal/shared"
	"github.com/desertthunder/tunedl/internal/tagging"
	"github.com/desertthunder/tunedl/internal/tasks"
	"github.com/desertthunder/tunedl/internal/transcode"
	"github.com/urfave/cli/v3"
)

const version = "0.3.0"

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	catalogs   *services.Catalogs
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
	outputMu   sync.Mutex
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	// Catalogs replaces the services built from the config.
	Catalogs   *services.Catalogs
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Config.Network.Timeout.Duration}
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		catalogs:   opts.Catalogs,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
	}
}

func (r *Runner) app() *cli.Command {
	return &cli.Command{
		Name:    "tunedl",
		Usage:   "Find tracks across music catalogs, then download, convert and tag them",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file (default: ./config.toml, then the user config dir)",
				Sources: cli.EnvVars("TUNEDL_CONFIG"),
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Enable debug logging",
			},
		},
		Before:   r.configure,
		Commands: r.register(),
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, resolveCommand, downloadCommand, convertCommand, tagsCommand, queueCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// configure loads the config file named by --config, or the first default location that exists.
func (r *Runner) configure(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if cmd.Bool("verbose") {
		shared.SetLogLevel(r.logger, log.DebugLevel)
	}

	path := cmd.String("config")
	explicit := path != ""
	if !explicit {
		path = "config.toml"
		if _, err := os.Stat(path); err != nil {
			path = shared.DefaultConfigPath()
		}
	}
	r.configPath = path

	config, err := shared.LoadConfig(path)
	switch {
	case err == nil:
		r.config = config
		r.httpClient.Timeout = config.Network.Timeout.Duration
		r.logger.Debug("loaded config", "path", path)
	case errors.Is(err, os.ErrNotExist) && !explicit:
		r.logger.Debug("no config file, using defaults", "path", path)
	default:
		return ctx, err
	}
	return ctx, nil
}

// SetLogger replaces the logger used by commands and services created afterwards.
func (r *Runner) SetLogger(l *log.Logger) {
	r.logger = l
}

// Close releases the catalog clients. It is safe to call twice.
func (r *Runner) Close() {
	if r.catalogs != nil {
		if err := r.catalogs.Close(); err != nil {
			r.logger.Warn("failed to close services", "error", err)
		}
		r.catalogs = nil
	}
}

// services builds the catalog registry from the config on first use.
//
// Deezer needs no credentials and is always present; Spotify and Qobuz are registered when configured.
func (r *Runner) services() (*services.Catalogs, error) {
	if r.catalogs != nil {
		return r.catalogs, nil
	}

	opts := services.FetcherOptions{
		Client:            r.httpClient,
		RequestsPerSecond: r.config.Network.RequestsPerSecond,
		QuotaRetryDelay:   r.config.Network.QuotaRetryDelay.Duration,
		Logger:            r.logger,
	}

	catalogs := services.NewCatalogs()
	catalogs.Register(services.NewDeezerService(opts))

	if r.config.HasSpotify() {
		spotify, err := services.NewSpotifyService(r.config.Credentials.Spotify, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to create Spotify service: %w", err)
		}
		catalogs.Register(spotify)
	} else {
		r.logger.Debug("spotify credentials not configured")
	}

	if r.config.HasQobuz() {
		qobuz, err := services.NewQobuzService(r.config.Credentials.Qobuz, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to create Qobuz service: %w", err)
		}
		catalogs.Register(qobuz)
	} else {
		r.logger.Debug("qobuz credentials not configured")
	}

	catalogs.SetVideoHost(services.NewYouTubeService(r.logger))
	r.catalogs = catalogs
	return catalogs, nil
}

func (r *Runner) router(catalogs *services.Catalogs) *router.Router {
	return router.New(catalogs, router.Options{
		DefaultSource: models.SourceDeezer,
		Client:        r.httpClient,
		Logger:        r.logger,
	})
}

func (r *Runner) updater(catalogs *services.Catalogs) *tagging.Updater {
	return tagging.NewUpdater(catalogs, r.httpClient, r.logger)
}

func (r *Runner) transcoder() *transcode.Transcoder {
	return transcode.New(r.config.Convert.FFmpegPath, r.logger)
}

func (r *Runner) openStore(ctx context.Context) (*repositories.QueueStore, error) {
	store, err := repositories.OpenQueueStore(ctx, r.config.Database.Path, r.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open queue database: %w", err)
	}
	return store, nil
}

// loadInputs expands each input through the router and concatenates the results in input order.
//
// Inputs that fail to load are reported to sink and skipped. Only cancellation aborts.
func (r *Runner) loadInputs(ctx context.Context, catalogs *services.Catalogs, inputs []string, sink models.StatusSink) (*models.Collection[models.Track], error) {
	rt := r.router(catalogs)
	all := models.NewCollection[models.Track]()
	for _, in := range inputs {
		loaded := models.NewCollection[models.Track]()
		n, err := rt.Open(ctx, in, false, router.LoadTarget{Tracks: loaded}, sink)
		if err != nil {
			if shared.IsCancelled(err) {
				return nil, err
			}
			continue
		}
		r.logger.Debug("loaded input", "input", in, "tracks", n)
		if err := all.Append(loaded.Snapshot()...); err != nil {
			return nil, err
		}
	}
	return all, nil
}

// recordRun saves the summary to the run history. Failures are logged, never returned.
func (r *Runner) recordRun(ctx context.Context, store *repositories.QueueStore, kind string, s *tasks.Summary) {
	if store == nil || s == nil {
		return
	}
	ok, warned, failed := s.Counts()
	finished := s.StartedAt.Add(s.Elapsed)
	run := &repositories.Run{
		ID: s.RunID, Kind: kind, Total: s.Total,
		Succeeded: ok, Warned: warned, Failed: failed,
		StartedAt: s.StartedAt, FinishedAt: &finished,
	}
	if err := repositories.NewRunStore(store.DB()).Save(context.WithoutCancel(ctx), run); err != nil {
		r.logger.Warn("failed to record run", "error", err)
	}
}

// report prints the summary table and writes the optional report file.
func (r *Runner) report(s *tasks.Summary, path string) error {
	if s == nil {
		return nil
	}
	r.writePlain("\n%s\n", formatter.SummaryTable(*s))
	if path == "" {
		return nil
	}
	if err := formatter.WriteReport(*s, path); err != nil {
		return err
	}
	r.logger.Info("report written", "path", path)
	return nil
}

// consoleSink prints one line per finished item.
type consoleSink struct {
	r *Runner
}

func (s consoleSink) OnUpdate(u models.Update) {
	mark := "✓"
	switch u.Severity {
	case models.Warning:
		mark = "!"
	case models.Error:
		mark = "✗"
	}
	name := u.Track.Title
	if a := u.Track.Artist(); a != "" {
		name = a + " - " + name
	}
	s.r.writePlain("%s %s %s: %s\n", formatter.SeverityLabel(u.Severity), mark, name, u.Message)
}

// logProgress forwards in-flight progress to the debug log until ch is closed.
func (r *Runner) logProgress(ch <-chan tasks.ProgressUpdate) {
	for u := range ch {
		if u.Phase == tasks.PhaseDone || u.Phase == tasks.PhaseFailed {
			continue
		}
		r.logger.Debug(u.Message, "phase", u.Phase, "step", u.Step, "total", u.Total)
	}
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	r.outputMu.Lock()
	defer r.outputMu.Unlock()
	if _, err := r.output.Write(append(output, '\n')); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	r.outputMu.Lock()
	defer r.outputMu.Unlock()
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
