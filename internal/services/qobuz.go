// Qobuz API implementation of [Catalog] and [Downloader]
package services

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tunedl/internal/models"
	"github.com/desertthunder/tunedl/internal/shared"
)

const qobuzBaseURL = "https://www.qobuz.com/api.json/0.2"

// Qobuz stream format ids, highest first.
const (
	QobuzHiResMax = 27 // 24 bit up to 192 kHz FLAC
	QobuzHiRes    = 7  // 24 bit up to 96 kHz FLAC
	QobuzLossless = 6  // 16 bit 44.1 kHz FLAC
	QobuzMP3      = 5  // 320 kbps MP3
)

// QobuzFormat maps a quality name to a format id. Unknown names fall back to lossless.
func QobuzFormat(quality string) int {
	switch strings.ToLower(quality) {
	case "hires-max", "max", "27":
		return QobuzHiResMax
	case "hires", "7":
		return QobuzHiRes
	case "high", "mp3", "320", "5":
		return QobuzMP3
	default:
		return QobuzLossless
	}
}

type qobuzNamed struct {
	ID   any    `json:"id"`
	Name string `json:"name"`
}

type qobuzImage struct {
	Small     string `json:"small"`
	Thumbnail string `json:"thumbnail"`
	Large     string `json:"large"`
}

// QobuzAlbum represents a Qobuz album. Tracks is only present on album/get.
type QobuzAlbum struct {
	ID                  string     `json:"id"`
	Title               string     `json:"title"`
	Version             string     `json:"version"`
	UPC                 string     `json:"upc"`
	ReleaseDateOriginal string     `json:"release_date_original"`
	ParentalWarning     bool       `json:"parental_warning"`
	TracksCount         int        `json:"tracks_count"`
	MediaCount          int        `json:"media_count"`
	Artist              qobuzNamed `json:"artist"`
	Genre               qobuzNamed `json:"genre"`
	Label               qobuzNamed `json:"label"`
	Image               qobuzImage `json:"image"`
	Copyright           string     `json:"copyright"`
	Tracks              *struct {
		Items []QobuzTrack `json:"items"`
		Total int          `json:"total"`
	} `json:"tracks"`
}

// QobuzTrack represents a Qobuz track.
type QobuzTrack struct {
	ID              int64       `json:"id"`
	Title           string      `json:"title"`
	Version         string      `json:"version"`
	ISRC            string      `json:"isrc"`
	Duration        int         `json:"duration"`
	TrackNumber     int         `json:"track_number"`
	MediaNumber     int         `json:"media_number"`
	ParentalWarning bool        `json:"parental_warning"`
	Streamable      bool        `json:"streamable"`
	Performer       qobuzNamed  `json:"performer"`
	Composer        *qobuzNamed `json:"composer"`
	Album           *QobuzAlbum `json:"album"`
	Copyright       string      `json:"copyright"`
}

type qobuzPlaylist struct {
	ID     int64      `json:"id"`
	Name   string     `json:"name"`
	Owner  qobuzNamed `json:"owner"`
	Images []string   `json:"images300"`
	Tracks struct {
		Items []QobuzTrack `json:"items"`
		Total int          `json:"total"`
	} `json:"tracks"`
}

type qobuzStream struct {
	TrackID  int64  `json:"track_id"`
	URL      string `json:"url"`
	FormatID int    `json:"format_id"`
	MimeType string `json:"mime_type"`
	Sample   bool   `json:"sample"`
	BitDepth int    `json:"bit_depth"`
}

// QobuzService implements [Catalog] and [Downloader] for Qobuz.
type QobuzService struct {
	fetch  *Fetcher
	creds  shared.QobuzConfig
	now    func() time.Time
	logger *log.Logger
}

// NewQobuzService creates a Qobuz client. Searching needs only the app id; streaming needs the secret and a
// user token.
func NewQobuzService(creds shared.QobuzConfig, opts FetcherOptions) (*QobuzService, error) {
	if creds.AppID == "" {
		return nil, fmt.Errorf("%w: qobuz app_id", shared.ErrMissingCredentials)
	}
	if opts.BaseURL == "" {
		opts.BaseURL = qobuzBaseURL
	}
	header := opts.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	header.Set("X-App-Id", creds.AppID)
	if creds.UserToken != "" {
		header.Set("X-User-Auth-Token", creds.UserToken)
	}
	opts.Header = header

	f := NewFetcher(opts)
	return &QobuzService{fetch: f, creds: creds, now: time.Now, logger: f.logger}, nil
}

func (q *QobuzService) Source() models.Source { return models.SourceQobuz }

func (q *QobuzService) Dialect() Dialect { return DialectFreeText }

// Close releases idle connections.
func (q *QobuzService) Close() error {
	q.fetch.Client().CloseIdleConnections()
	return nil
}

func (q *QobuzService) get(ctx context.Context, endpoint string, query url.Values, result any) error {
	if err := q.fetch.GetJSON(ctx, endpoint, query, result); err != nil {
		return fmt.Errorf("qobuz: %w", err)
	}
	return nil
}

// SearchTracks runs a free-text track search.
func (q *QobuzService) SearchTracks(ctx context.Context, query string) ([]models.Track, error) {
	var resp struct {
		Tracks struct {
			Items []QobuzTrack `json:"items"`
		} `json:"tracks"`
	}
	if err := q.get(ctx, "/track/search", url.Values{"query": {query}, "limit": {"25"}}, &resp); err != nil {
		return nil, err
	}

	tracks := make([]models.Track, 0, len(resp.Tracks.Items))
	for _, item := range resp.Tracks.Items {
		tracks = append(tracks, item.toTrack(nil))
	}
	return tracks, nil
}

// SearchAlbums runs a free-text album search.
func (q *QobuzService) SearchAlbums(ctx context.Context, query string) ([]models.Album, error) {
	var resp struct {
		Albums struct {
			Items []QobuzAlbum `json:"items"`
		} `json:"albums"`
	}
	if err := q.get(ctx, "/album/search", url.Values{"query": {query}, "limit": {"25"}}, &resp); err != nil {
		return nil, err
	}

	albums := make([]models.Album, 0, len(resp.Albums.Items))
	for _, item := range resp.Albums.Items {
		albums = append(albums, item.toAlbum())
	}
	return albums, nil
}

// TrackByID retrieves a single track.
func (q *QobuzService) TrackByID(ctx context.Context, id string) (*models.Track, error) {
	var track QobuzTrack
	if err := q.get(ctx, "/track/get", url.Values{"track_id": {id}}, &track); err != nil {
		return nil, err
	}
	t := track.toTrack(nil)
	return &t, nil
}

// TrackByISRC searches for the code and keeps only an exact ISRC hit; Qobuz has no direct lookup.
func (q *QobuzService) TrackByISRC(ctx context.Context, isrc string) (*models.Track, error) {
	candidates, err := q.SearchTracks(ctx, isrc)
	if err != nil {
		return nil, err
	}
	for _, c := range candidates {
		if strings.EqualFold(c.ISRC, isrc) {
			return &c, nil
		}
	}
	return nil, fmt.Errorf("qobuz: %w: isrc %s", shared.ErrNotFound, isrc)
}

// AlbumByID retrieves an album with its tracks.
func (q *QobuzService) AlbumByID(ctx context.Context, id string) (*models.Album, error) {
	var qa QobuzAlbum
	if err := q.get(ctx, "/album/get", url.Values{"album_id": {id}}, &qa); err != nil {
		return nil, err
	}

	album := qa.toAlbum()
	if qa.Tracks != nil {
		for _, item := range qa.Tracks.Items {
			album.Tracks = append(album.Tracks, item.toTrack(&qa))
		}
	}
	album.TrackCount = max(album.TrackCount, len(album.Tracks))
	return &album, nil
}

// PlaylistByID retrieves a playlist with up to 500 tracks.
func (q *QobuzService) PlaylistByID(ctx context.Context, id string) (*models.Album, error) {
	var qp qobuzPlaylist
	query := url.Values{"playlist_id": {id}, "extra": {"tracks"}, "limit": {"500"}}
	if err := q.get(ctx, "/playlist/get", query, &qp); err != nil {
		return nil, err
	}

	album := models.Album{
		Source:   models.SourceQobuz,
		ID:       strconv.FormatInt(qp.ID, 10),
		Title:    qp.Name,
		Artists:  []string{qp.Owner.Name},
		Playlist: true,
	}
	if len(qp.Images) > 0 {
		album.ImageLocation = qp.Images[0]
	}
	for _, item := range qp.Tracks.Items {
		album.Tracks = append(album.Tracks, item.toTrack(nil))
	}
	album.TrackCount = len(album.Tracks)
	return &album, nil
}

// Metadata returns the tag record. track/get already embeds the album.
func (q *QobuzService) Metadata(ctx context.Context, id string) (*models.Metadata, error) {
	var track QobuzTrack
	if err := q.get(ctx, "/track/get", url.Values{"track_id": {id}}, &track); err != nil {
		return nil, err
	}

	meta := &models.Metadata{
		Title:       track.fullTitle(),
		Artists:     []string{track.Performer.Name},
		ISRC:        track.ISRC,
		TrackNumber: track.TrackNumber,
		DiscNumber:  track.MediaNumber,
		Explicit:    track.ParentalWarning,
		Copyright:   track.Copyright,
	}
	if a := track.Album; a != nil {
		meta.Album = a.Title
		meta.AlbumArtists = []string{a.Artist.Name}
		if a.Genre.Name != "" {
			meta.Genres = []string{a.Genre.Name}
		}
		meta.UPC = a.UPC
		meta.ReleaseDate = a.ReleaseDateOriginal
		meta.TrackTotal = a.TracksCount
		meta.DiscTotal = a.MediaCount
		meta.Label = a.Label.Name
		meta.CoverURL = a.Image.Large
		if meta.Copyright == "" {
			meta.Copyright = a.Copyright
		}
	}
	return meta, nil
}

// sign computes the track/getFileUrl request signature.
func (q *QobuzService) sign(trackID string, formatID int, ts string) string {
	raw := "trackgetFileUrlformat_id" + strconv.Itoa(formatID) + "intentstreamtrack_id" + trackID + ts + q.creds.AppSecret
	sum := md5.Sum([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// StreamURL resolves a signed stream URL for the track at formatID.
//
// A sample-only stream, or one in a lower format than requested, is [shared.ErrQualityRestricted].
func (q *QobuzService) StreamURL(ctx context.Context, trackID string, formatID int) (string, string, error) {
	if q.creds.AppSecret == "" || q.creds.UserToken == "" {
		return "", "", fmt.Errorf("qobuz: %w: app_secret and user_token are required to stream", shared.ErrMissingCredentials)
	}

	ts := strconv.FormatInt(q.now().Unix(), 10)
	query := url.Values{
		"request_ts":  {ts},
		"request_sig": {q.sign(trackID, formatID, ts)},
		"track_id":    {trackID},
		"format_id":   {strconv.Itoa(formatID)},
		"intent":      {"stream"},
	}

	var stream qobuzStream
	if err := q.get(ctx, "/track/getFileUrl", query, &stream); err != nil {
		return "", "", err
	}
	if stream.URL == "" {
		return "", "", fmt.Errorf("qobuz: %w: no stream for %s", shared.ErrNotFound, trackID)
	}
	if stream.Sample || stream.FormatID < formatID {
		return "", "", fmt.Errorf("qobuz: %w: format %d requested, got %d (sample=%v)",
			shared.ErrQualityRestricted, formatID, stream.FormatID, stream.Sample)
	}
	return stream.URL, stream.MimeType, nil
}

// Download streams the track to req.Destination plus the extension of the delivered format.
func (q *QobuzService) Download(ctx context.Context, track models.Track, req Request) (string, error) {
	if track.Source != models.SourceQobuz {
		return "", fmt.Errorf("qobuz: %w: cannot download %s track", shared.ErrUnsupported, track.Source)
	}

	formatID := QobuzFormat(req.Quality)
	ext := ".flac"
	if formatID == QobuzMP3 {
		ext = ".mp3"
	}
	path := req.Destination + ext
	if !req.Overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("%w: %s", shared.ErrAlreadyExists, path)
		}
	}

	streamURL, _, err := q.StreamURL(ctx, track.ID, formatID)
	if err != nil {
		return "", err
	}

	q.logger.Debug("streaming", "track", track.ID, "format", formatID, "path", path)
	if err := downloadFile(ctx, q.fetch.Client(), streamURL, path); err != nil {
		return "", fmt.Errorf("qobuz: %w", err)
	}
	return path, nil
}

// downloadFile GETs rawURL into a temp file next to path and renames it on success.
// The partial file is removed on failure or cancellation.
func downloadFile(ctx context.Context, client *http.Client, rawURL, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", shared.ErrNetworkFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: stream status %d", shared.ErrAPIRequest, resp.StatusCode)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tunedl-*.part")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	_, copyErr := io.Copy(tmp, resp.Body)
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil {
		os.Remove(tmpPath)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if copyErr != nil {
			return fmt.Errorf("%w: %v", shared.ErrNetworkFailure, copyErr)
		}
		return fmt.Errorf("failed to write file: %w", closeErr)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to move download into place: %w", err)
	}
	return nil
}

func (t QobuzTrack) fullTitle() string {
	if t.Version == "" || strings.Contains(strings.ToLower(t.Title), strings.ToLower(t.Version)) {
		return t.Title
	}
	return t.Title + " (" + t.Version + ")"
}

func (t QobuzTrack) toTrack(parent *QobuzAlbum) models.Track {
	album := t.Album
	if album == nil {
		album = parent
	}

	track := models.Track{
		Source:        models.SourceQobuz,
		ID:            strconv.FormatInt(t.ID, 10),
		Title:         t.fullTitle(),
		Artists:       []string{t.Performer.Name},
		ISRC:          t.ISRC,
		Duration:      t.Duration,
		TrackPosition: t.TrackNumber,
		Explicit:      t.ParentalWarning,
		AdditionalFields: map[string]any{
			"disc_number": strconv.Itoa(t.MediaNumber),
		},
	}
	if album != nil {
		track.AlbumName = album.Title
		track.ReleaseDate = album.ReleaseDateOriginal
		track.ImageLocation = album.Image.Large
		track.AdditionalFields["album_id"] = album.ID
		if t.Performer.Name == "" {
			track.Artists = []string{album.Artist.Name}
		}
	}
	return track
}

func (a QobuzAlbum) toAlbum() models.Album {
	title := a.Title
	if a.Version != "" && !strings.Contains(strings.ToLower(title), strings.ToLower(a.Version)) {
		title += " (" + a.Version + ")"
	}
	return models.Album{
		Source:        models.SourceQobuz,
		ID:            a.ID,
		Title:         title,
		Artists:       []string{a.Artist.Name},
		UPC:           a.UPC,
		ReleaseDate:   a.ReleaseDateOriginal,
		Explicit:      a.ParentalWarning,
		ImageLocation: a.Image.Large,
		TrackCount:    a.TracksCount,
	}
}
