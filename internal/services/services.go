// package services defines the [Catalog] and [Downloader] capabilities and implements them for
// Spotify, Deezer, Qobuz and YouTube
package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/desertthunder/tunedl/internal/models"
	"github.com/desertthunder/tunedl/internal/shared"
)

// Catalog is a music service's searchable track and album database.
//
// Implementations must honor ctx on every call and return errors wrapping the sentinels in
// [shared] so callers can tell not-found from transient failures.
type Catalog interface {
	// Source identifies the catalog.
	Source() models.Source

	// Dialect returns the query syntax used for field-qualified searches.
	Dialect() Dialect

	// SearchTracks runs a free-text or dialect-formatted query and returns candidate tracks in service order.
	SearchTracks(ctx context.Context, query string) ([]models.Track, error)

	// SearchAlbums returns candidate albums without their child tracks.
	SearchAlbums(ctx context.Context, query string) ([]models.Album, error)

	// TrackByID returns the full record for a track.
	TrackByID(ctx context.Context, id string) (*models.Track, error)

	// TrackByISRC looks up a track by ISRC.
	// Returns [shared.ErrNotFound] when absent and [shared.ErrUnsupported] when the catalog cannot look up ISRCs.
	TrackByISRC(ctx context.Context, isrc string) (*models.Track, error)

	// AlbumByID returns an album with its ordered tracks.
	AlbumByID(ctx context.Context, id string) (*models.Album, error)

	// PlaylistByID returns a playlist as an [models.Album] with Playlist set.
	PlaylistByID(ctx context.Context, id string) (*models.Album, error)

	// Metadata returns the canonical tag record for a track.
	Metadata(ctx context.Context, id string) (*models.Metadata, error)
}

// Request describes where a download should land and at which quality.
type Request struct {
	// Destination is the path without extension; the downloader appends the one matching what it fetched.
	Destination string
	Quality     string
	Codec       string
	// Overwrite replaces an existing file instead of failing with [shared.ErrAlreadyExists].
	Overwrite bool
}

// Downloader fetches audio for tracks of one source.
type Downloader interface {
	Source() models.Source

	// Download writes the audio for track and returns the final path.
	// Returns [shared.ErrQualityRestricted] when only a lower quality than requested is available.
	Download(ctx context.Context, track models.Track, req Request) (string, error)
}

// Video is one video-host search result.
type Video struct {
	ID       string
	Title    string
	Author   string
	Duration int
	URL      string
}

// VideoHost searches and downloads from a video host, which has no structured catalog.
type VideoHost interface {
	Downloader
	Search(ctx context.Context, query string, limit int) ([]Video, error)
	DownloadVideo(ctx context.Context, video Video, req Request) (string, error)
}

// Dialect builds search queries in a catalog's syntax.
type Dialect int

const (
	// DialectFreeText joins terms with spaces.
	DialectFreeText Dialect = iota
	// DialectSpotify uses track:"t" artist:"a" album:"b".
	DialectSpotify
	// DialectDeezer uses artist:"a" track:"t" album:"b".
	DialectDeezer
)

// Query formats a search for title by artist, optionally restricted to album.
func (d Dialect) Query(title, artist, album string) string {
	quote := func(s string) string { return `"` + strings.ReplaceAll(s, `"`, "") + `"` }

	var parts []string
	switch d {
	case DialectSpotify:
		parts = append(parts, "track:"+quote(title))
		if artist != "" {
			parts = append(parts, "artist:"+quote(artist))
		}
		if album != "" {
			parts = append(parts, "album:"+quote(album))
		}
	case DialectDeezer:
		if artist != "" {
			parts = append(parts, "artist:"+quote(artist))
		}
		parts = append(parts, "track:"+quote(title))
		if album != "" {
			parts = append(parts, "album:"+quote(album))
		}
	default:
		for _, s := range []string{artist, title, album} {
			if s != "" {
				parts = append(parts, s)
			}
		}
	}
	return strings.Join(parts, " ")
}

// Catalogs maps sources to their [Catalog] and [Downloader] capability objects.
//
// Created at startup and passed explicitly to the resolver, router and orchestrator.
type Catalogs struct {
	mu          sync.RWMutex
	catalogs    map[models.Source]Catalog
	downloaders map[models.Source]Downloader
	video       VideoHost
}

// NewCatalogs creates an empty registry.
func NewCatalogs() *Catalogs {
	return &Catalogs{
		catalogs:    make(map[models.Source]Catalog),
		downloaders: make(map[models.Source]Downloader),
	}
}

// Register adds or replaces a catalog. If c also implements [Downloader] it is registered as one.
func (r *Catalogs) Register(c Catalog) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.catalogs[c.Source()] = c
	if d, ok := c.(Downloader); ok {
		r.downloaders[c.Source()] = d
	}
}

// RegisterDownloader adds or replaces the downloader for d.Source().
func (r *Catalogs) RegisterDownloader(d Downloader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.downloaders[d.Source()] = d
}

// SetVideoHost registers the last-resort video host.
func (r *Catalogs) SetVideoHost(v VideoHost) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.video = v
	if v != nil {
		r.downloaders[v.Source()] = v
	}
}

// Get returns the catalog for src.
func (r *Catalogs) Get(src models.Source) (Catalog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.catalogs[src]
	if !ok {
		return nil, fmt.Errorf("%w: no catalog for %s", shared.ErrUnrecognizedSource, src)
	}
	return c, nil
}

// Downloader returns the downloader for src.
func (r *Catalogs) Downloader(src models.Source) (Downloader, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.downloaders[src]
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrNoDownloader, src)
	}
	return d, nil
}

// VideoHost returns the registered video host, or nil.
func (r *Catalogs) VideoHost() VideoHost {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.video
}

// Sources lists the registered catalogs in name order.
func (r *Catalogs) Sources() []models.Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Source, 0, len(r.catalogs))
	for src := range r.catalogs {
		out = append(out, src)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Close tears down every registered capability that holds resources.
func (r *Catalogs) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []string
	closed := make(map[any]bool)
	closeOne := func(v any) {
		if closed[v] {
			return
		}
		closed[v] = true
		if c, ok := v.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err.Error())
			}
		}
	}
	for _, c := range r.catalogs {
		closeOne(c)
	}
	for _, d := range r.downloaders {
		closeOne(d)
	}
	r.catalogs = make(map[models.Source]Catalog)
	r.downloaders = make(map[models.Source]Downloader)
	r.video = nil
	if len(errs) > 0 {
		return fmt.Errorf("failed to close catalogs: %s", strings.Join(errs, "; "))
	}
	return nil
}
