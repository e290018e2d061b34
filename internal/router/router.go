package router

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tunedl/internal/models"
	"github.com/desertthunder/tunedl/internal/services"
	"github.com/desertthunder/tunedl/internal/shared"
)

// LoadTarget holds the collections a load writes into. Albums is only needed in album mode.
type LoadTarget struct {
	Tracks *models.Collection[models.Track]
	Albums *models.Collection[models.Album]
}

// Options configures a [Router].
type Options struct {
	// DefaultSource is searched for input that matches no rule.
	DefaultSource models.Source
	// Client resolves short links. Redirects are never followed automatically.
	Client *http.Client
	Logger *log.Logger
}

// Router loads classified input through the registered catalogs.
type Router struct {
	catalogs      *services.Catalogs
	defaultSource models.Source
	client        *http.Client
	logger        *log.Logger
}

// New creates a [Router] over catalogs.
func New(catalogs *services.Catalogs, opts Options) *Router {
	client := &http.Client{Timeout: 15 * time.Second}
	if opts.Client != nil {
		c := *opts.Client
		client = &c
	}
	client.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }

	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	if opts.DefaultSource == "" {
		opts.DefaultSource = models.SourceDeezer
	}
	return &Router{catalogs: catalogs, defaultSource: opts.DefaultSource, client: client, logger: opts.Logger}
}

// Expand resolves a short link with a single no-redirect GET and re-classifies the Location header.
// Other classifications are returned unchanged.
func (r *Router) Expand(ctx context.Context, cls Classification) (Classification, error) {
	if !cls.ShortLink {
		return cls, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cls.Raw, nil)
	if err != nil {
		return cls, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return cls, ctx.Err()
		}
		return cls, fmt.Errorf("%w: short link: %v", shared.ErrNetworkFailure, err)
	}
	defer resp.Body.Close()

	location := resp.Header.Get("Location")
	if resp.StatusCode < 300 || resp.StatusCode >= 400 || location == "" {
		return cls, fmt.Errorf("%w: short link %s did not redirect (status %d)", shared.ErrNotFound, cls.Raw, resp.StatusCode)
	}
	if loc, err := req.URL.Parse(location); err == nil {
		location = loc.String()
	}

	resolved := Classify(location)
	if !resolved.Recognized() || resolved.ShortLink || resolved.Entity == EntityNone {
		return cls, fmt.Errorf("%w: short link %s resolved to unrecognized %s", shared.ErrNotFound, cls.Raw, location)
	}
	r.logger.Debug("expanded short link", "from", cls.Raw, "to", location)
	resolved.Raw = cls.Raw
	return resolved, nil
}

// Open classifies raw and loads it.
func (r *Router) Open(ctx context.Context, raw string, albumMode bool, target LoadTarget, sink models.StatusSink) (int, error) {
	return r.Load(ctx, Classify(raw), albumMode, target, sink)
}

// Load fetches what cls names and writes it into target, returning how many tracks (or albums in album
// mode) were loaded.
//
// Albums and playlists replace the track collection; a single track is appended. In album mode an album or
// playlist replaces the album collection with one composite record. Unrecognized input is searched as free
// text on the default catalog. Recognized input that fails to load is reported to sink with Error severity
// and is never searched. Cancellation returns ctx.Err() without a report.
func (r *Router) Load(ctx context.Context, cls Classification, albumMode bool, target LoadTarget, sink models.StatusSink) (int, error) {
	if sink == nil {
		sink = models.DiscardSink
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	if !cls.Recognized() {
		n, err := r.search(ctx, cls.Raw, albumMode, target)
		if err != nil {
			return 0, err
		}
		return n, nil
	}

	n, err := r.load(ctx, cls, albumMode, target)
	if err != nil {
		if shared.IsCancelled(err) || ctx.Err() != nil {
			return 0, ctx.Err()
		}
		r.logger.Warn("failed to load", "input", cls.Raw, "source", cls.Source, "error", err)
		sink.OnUpdate(models.Update{
			Severity: models.Error,
			Track:    models.Track{Source: cls.Source, ID: cls.ID, Title: cls.Raw},
			Message:  err.Error(),
		})
		return 0, err
	}
	return n, nil
}

func (r *Router) load(ctx context.Context, cls Classification, albumMode bool, target LoadTarget) (int, error) {
	cls, err := r.Expand(ctx, cls)
	if err != nil {
		return 0, err
	}
	if cls.Entity == EntityNone {
		return 0, fmt.Errorf("%w: %s is not a track, album or playlist URL", shared.ErrUnsupported, cls.Raw)
	}

	if cls.Source == models.SourceYouTube {
		if cls.Entity != EntityTrack {
			return 0, fmt.Errorf("%w: youtube %s", shared.ErrUnsupported, cls.Entity)
		}
		track := services.VideoTrack(services.Video{ID: cls.ID, URL: cls.Raw})
		track.Title = cls.ID
		return 1, target.Tracks.Append(track)
	}

	catalog, err := r.catalogs.Get(cls.Source)
	if err != nil {
		return 0, err
	}

	switch cls.Entity {
	case EntityTrack:
		track, err := catalog.TrackByID(ctx, cls.ID)
		if err != nil {
			return 0, err
		}
		return 1, target.Tracks.Append(*track)
	case EntityAlbum, EntityPlaylist:
		var album *models.Album
		if cls.Entity == EntityAlbum {
			album, err = catalog.AlbumByID(ctx, cls.ID)
		} else {
			album, err = catalog.PlaylistByID(ctx, cls.ID)
		}
		if err != nil {
			return 0, err
		}
		if albumMode {
			if target.Albums == nil {
				return 0, fmt.Errorf("%w: album mode needs an album collection", shared.ErrInvalidArgument)
			}
			return 1, target.Albums.Replace(*album)
		}
		return len(album.Tracks), target.Tracks.Replace(album.Tracks...)
	default:
		return 0, fmt.Errorf("%w: %s has no loadable entity", shared.ErrNotFound, cls.Raw)
	}
}

// search runs a free-text search on the default catalog and appends every result.
func (r *Router) search(ctx context.Context, query string, albumMode bool, target LoadTarget) (int, error) {
	if query == "" {
		return 0, fmt.Errorf("%w: empty query", shared.ErrMissingArgument)
	}
	catalog, err := r.catalogs.Get(r.defaultSource)
	if err != nil {
		return 0, err
	}

	if albumMode && target.Albums != nil {
		albums, err := catalog.SearchAlbums(ctx, query)
		if err != nil {
			return 0, err
		}
		return len(albums), target.Albums.Append(albums...)
	}

	tracks, err := catalog.SearchTracks(ctx, query)
	if err != nil {
		return 0, err
	}
	if len(tracks) == 0 {
		return 0, fmt.Errorf("%w: no results for %q", shared.ErrNotFound, query)
	}
	return len(tracks), target.Tracks.Append(tracks...)
}
