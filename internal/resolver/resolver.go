// package resolver finds the equivalent of a track on another catalog: ISRC lookup first, then a two-pass
// fuzzy match over search results.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tunedl/internal/models"
	"github.com/desertthunder/tunedl/internal/services"
	"github.com/desertthunder/tunedl/internal/shared"
)

// Options tunes a single resolution.
type Options struct {
	// StrictISRC rejects anything but an ISRC hit.
	StrictISRC bool
}

// Resolution is the outcome of [Resolver.Resolve].
//
//   - None: the zero value, returned with a cancellation error
//   - Success: Track is the ISRC match (or the source track itself when it already lives on the target)
//   - Warning: Track is an approximate match, Reason says which pass produced it
//   - Error: Track is nil and Reason explains why
type Resolution struct {
	Severity models.Severity
	Track    *models.Track
	Reason   string
}

// Found reports whether a usable track was resolved.
func (r Resolution) Found() bool {
	return r.Track != nil && (r.Severity == models.Success || r.Severity == models.Warning)
}

func noMatch(reason string) Resolution {
	return Resolution{Severity: models.Error, Reason: reason}
}

// Resolver locates tracks across catalogs. Safe for concurrent use.
type Resolver struct {
	logger *log.Logger
}

// New creates a [Resolver]. A nil logger discards output.
func New(logger *log.Logger) *Resolver {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Resolver{logger: logger}
}

// candidate is a search result with its pruned comparison keys.
type candidate struct {
	track models.Track
	title string
	album string
}

// Resolve finds src on target.
//
// The returned error is non-nil only when ctx is cancelled; the [Resolution] is then empty and callers must
// not report anything for the track. Every other failure, including catalog errors, is an Error resolution.
func (r *Resolver) Resolve(ctx context.Context, src models.Track, target services.Catalog, opts Options) (Resolution, error) {
	if err := ctx.Err(); err != nil {
		return Resolution{}, err
	}
	if src.Source == target.Source() {
		t := src
		return Resolution{Severity: models.Success, Track: &t, Reason: "already on " + target.Source().String()}, nil
	}

	logger := r.logger.With("source", target.Source(), "track", src.String())

	if src.ISRC != "" {
		found, err := target.TrackByISRC(ctx, src.ISRC)
		switch {
		case err == nil && found != nil:
			logger.Debug("isrc match", "isrc", src.ISRC, "id", found.ID)
			return Resolution{Severity: models.Success, Track: found, Reason: "isrc " + src.ISRC}, nil
		case shared.IsCancelled(err) || ctx.Err() != nil:
			return Resolution{}, cancelled(ctx, err)
		case err != nil && !errors.Is(err, shared.ErrNotFound) && !errors.Is(err, shared.ErrUnsupported):
			logger.Warn("isrc lookup failed", "isrc", src.ISRC, "error", err)
		}
	}

	if opts.StrictISRC {
		return noMatch("no ISRC match on " + target.Source().String()), nil
	}

	candidates, err := r.search(ctx, src, target)
	if err != nil {
		if shared.IsCancelled(err) || ctx.Err() != nil {
			return Resolution{}, cancelled(ctx, err)
		}
		return noMatch(fmt.Sprintf("search failed: %v", err)), nil
	}
	candidates = filterArtists(src, candidates)
	if len(candidates) == 0 {
		return noMatch("no candidate by a matching artist"), nil
	}

	title := shared.PruneTitle(src.Title)
	album := shared.PruneTitle(src.AlbumName)

	if err := ctx.Err(); err != nil {
		return Resolution{}, err
	}
	if best, exact := passTitle(title, album, candidates); best != nil {
		reason := "title match, closest album"
		if exact {
			reason = "title and album match"
		}
		logger.Debug("title pass", "id", best.track.ID, "exact", exact)
		return r.approximate(ctx, target, best.track, reason)
	}

	if err := ctx.Err(); err != nil {
		return Resolution{}, err
	}
	if best := passAlbum(title, album, candidates); best != nil {
		logger.Debug("album pass", "id", best.track.ID)
		return r.approximate(ctx, target, best.track, "album match, closest title")
	}

	return noMatch(fmt.Sprintf("%d candidates, none matched title or album", len(candidates))), nil
}

// search runs the with-album and without-album queries in order and merges the results by id.
func (r *Resolver) search(ctx context.Context, src models.Track, target services.Catalog) ([]candidate, error) {
	title := shared.PruneTitleForSearch(src.Title)
	artist := ""
	if len(src.Artists) > 0 {
		artist = src.Artists[0]
	}

	queries := []string{target.Dialect().Query(title, artist, src.AlbumName)}
	if src.AlbumName != "" {
		queries = append(queries, target.Dialect().Query(title, artist, ""))
	}

	visited := make(map[string]bool)
	var out []candidate
	var lastErr error
	failures := 0
	for _, q := range queries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		results, err := target.SearchTracks(ctx, q)
		if err != nil {
			if shared.IsCancelled(err) {
				return nil, err
			}
			r.logger.Warn("search failed", "source", target.Source(), "query", q, "error", err)
			lastErr = err
			failures++
			continue
		}
		for _, t := range results {
			if visited[t.ID] {
				continue
			}
			visited[t.ID] = true
			out = append(out, candidate{track: t, title: shared.PruneTitle(t.Title), album: shared.PruneTitle(t.AlbumName)})
		}
	}
	if failures == len(queries) {
		return nil, lastErr
	}
	return out, nil
}

// filterArtists keeps candidates where any source artist close-matches any candidate artist.
func filterArtists(src models.Track, candidates []candidate) []candidate {
	var out []candidate
	for _, c := range candidates {
		if artistsMatch(src.Artists, c.track.Artists) {
			out = append(out, c)
		}
	}
	return out
}

func artistsMatch(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if shared.CloseMatch(x, y) {
				return true
			}
		}
	}
	return false
}

func titlesEqual(a, b string) bool {
	if a == b {
		return true
	}
	return strings.ReplaceAll(a, "radioedit", "") == strings.ReplaceAll(b, "radioedit", "")
}

// passTitle returns the first title match on the exact album, else the title match whose album is closest.
func passTitle(title, album string, candidates []candidate) (*candidate, bool) {
	var best *candidate
	bestDist := 0
	for i := range candidates {
		c := &candidates[i]
		if !titlesEqual(c.title, title) {
			continue
		}
		if c.album == album {
			return c, true
		}
		if d := shared.Levenshtein(album, c.album); best == nil || d < bestDist {
			best, bestDist = c, d
		}
	}
	return best, false
}

// passAlbum returns the candidate on the exact album whose title contains (or is contained in) the source
// title at the smallest edit distance.
func passAlbum(title, album string, candidates []candidate) *candidate {
	var best *candidate
	bestDist := 0
	for i := range candidates {
		c := &candidates[i]
		if c.album != album {
			continue
		}
		if !strings.Contains(c.title, title) && !strings.Contains(title, c.title) {
			continue
		}
		if d := shared.Levenshtein(title, c.title); best == nil || d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

// approximate fetches the full record for a fuzzy match. Search results are often partial; if the lookup
// fails the search record is used as is.
func (r *Resolver) approximate(ctx context.Context, target services.Catalog, t models.Track, reason string) (Resolution, error) {
	if err := ctx.Err(); err != nil {
		return Resolution{}, err
	}
	full, err := target.TrackByID(ctx, t.ID)
	switch {
	case err == nil && full != nil:
		t = *full
	case shared.IsCancelled(err) || ctx.Err() != nil:
		return Resolution{}, cancelled(ctx, err)
	default:
		r.logger.Debug("full record lookup failed, using search result", "source", target.Source(), "id", t.ID, "error", err)
	}
	return Resolution{Severity: models.Warning, Track: &t, Reason: reason}, nil
}

func cancelled(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}
