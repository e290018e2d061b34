// Deezer public API implementation of [Catalog]
//
// Response types based on https://developers.deezer.com/api
package services

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/desertthunder/tunedl/internal/models"
	"github.com/desertthunder/tunedl/internal/shared"
)

const deezerBaseURL = "https://api.deezer.com"

// Deezer error codes returned inside 200 responses.
const (
	deezerQuotaCode    = 4
	deezerNotFoundCode = 800
)

type deezerError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

type deezerEnvelope struct {
	Error *deezerError `json:"error"`
}

type deezerArtist struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type deezerGenre struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// DeezerAlbum represents a Deezer album. Tracks and Genres are only present on /album/{id}.
type DeezerAlbum struct {
	ID          int64          `json:"id"`
	Title       string         `json:"title"`
	UPC         string         `json:"upc"`
	CoverXL     string         `json:"cover_xl"`
	ReleaseDate string         `json:"release_date"`
	Label       string         `json:"label"`
	NbTracks    int            `json:"nb_tracks"`
	Explicit    bool           `json:"explicit_lyrics"`
	Artist      *deezerArtist  `json:"artist"`
	Contributor []deezerArtist `json:"contributors"`
	Genres      struct {
		Data []deezerGenre `json:"data"`
	} `json:"genres"`
	Tracks *struct {
		Data []DeezerTrack `json:"data"`
	} `json:"tracks"`
}

// DeezerTrack represents a Deezer track.
type DeezerTrack struct {
	ID            int64          `json:"id"`
	Title         string         `json:"title"`
	ISRC          string         `json:"isrc"`
	Duration      int            `json:"duration"`
	Rank          int            `json:"rank"`
	TrackPosition int            `json:"track_position"`
	DiskNumber    int            `json:"disk_number"`
	ReleaseDate   string         `json:"release_date"`
	Explicit      bool           `json:"explicit_lyrics"`
	Readable      *bool          `json:"readable"`
	Artist        deezerArtist   `json:"artist"`
	Contributors  []deezerArtist `json:"contributors"`
	Album         *DeezerAlbum   `json:"album"`
}

type deezerPlaylist struct {
	ID      int64  `json:"id"`
	Title   string `json:"title"`
	Picture string `json:"picture_xl"`
	NbTrack int    `json:"nb_tracks"`
	Creator struct {
		Name string `json:"name"`
	} `json:"creator"`
	Tracks struct {
		Data []DeezerTrack `json:"data"`
	} `json:"tracks"`
}

type deezerList[T any] struct {
	Data  []T    `json:"data"`
	Total int    `json:"total"`
	Next  string `json:"next"`
}

// DeezerService implements [Catalog] for the unauthenticated Deezer API.
type DeezerService struct {
	fetch *Fetcher
}

// NewDeezerService creates a Deezer catalog client.
func NewDeezerService(opts FetcherOptions) *DeezerService {
	if opts.BaseURL == "" {
		opts.BaseURL = deezerBaseURL
	}
	return &DeezerService{fetch: NewFetcher(opts)}
}

func (d *DeezerService) Source() models.Source { return models.SourceDeezer }

func (d *DeezerService) Dialect() Dialect { return DialectDeezer }

// Close releases idle connections.
func (d *DeezerService) Close() error {
	d.fetch.Client().CloseIdleConnections()
	return nil
}

// get performs the request and unwraps the error envelope Deezer sends with a 200 status.
func (d *DeezerService) get(ctx context.Context, endpoint string, query url.Values, result any) error {
	resp, err := d.fetch.Get(ctx, endpoint, query)
	if err != nil {
		return fmt.Errorf("deezer: %w", err)
	}

	var env deezerEnvelope
	if err := resp.Decode(&env); err != nil {
		return fmt.Errorf("deezer: %w", err)
	}
	if env.Error != nil {
		switch env.Error.Code {
		case deezerNotFoundCode:
			return fmt.Errorf("deezer: %w: %s", shared.ErrNotFound, env.Error.Message)
		case deezerQuotaCode:
			return fmt.Errorf("deezer: %w: %s", shared.ErrRateLimited, env.Error.Message)
		default:
			return fmt.Errorf("deezer: %w: %s (%d)", shared.ErrAPIRequest, env.Error.Message, env.Error.Code)
		}
	}

	if err := resp.Decode(result); err != nil {
		return fmt.Errorf("deezer: %w", err)
	}
	return nil
}

// SearchTracks runs a track search. Deezer's advanced syntax is artist:"a" track:"t" album:"b".
func (d *DeezerService) SearchTracks(ctx context.Context, query string) ([]models.Track, error) {
	var resp deezerList[DeezerTrack]
	if err := d.get(ctx, "/search", url.Values{"q": {query}, "limit": {"25"}}, &resp); err != nil {
		return nil, err
	}

	tracks := make([]models.Track, 0, len(resp.Data))
	for _, item := range resp.Data {
		tracks = append(tracks, item.toTrack(nil))
	}
	return tracks, nil
}

// SearchAlbums runs an album search.
func (d *DeezerService) SearchAlbums(ctx context.Context, query string) ([]models.Album, error) {
	var resp deezerList[DeezerAlbum]
	if err := d.get(ctx, "/search/album", url.Values{"q": {query}, "limit": {"25"}}, &resp); err != nil {
		return nil, err
	}

	albums := make([]models.Album, 0, len(resp.Data))
	for _, item := range resp.Data {
		albums = append(albums, item.toAlbum())
	}
	return albums, nil
}

// TrackByID retrieves a single track.
func (d *DeezerService) TrackByID(ctx context.Context, id string) (*models.Track, error) {
	var track DeezerTrack
	if err := d.get(ctx, "/track/"+url.PathEscape(id), nil, &track); err != nil {
		return nil, err
	}
	t := track.toTrack(nil)
	return &t, nil
}

// TrackByISRC uses the /track/isrc:{code} lookup.
func (d *DeezerService) TrackByISRC(ctx context.Context, isrc string) (*models.Track, error) {
	var track DeezerTrack
	if err := d.get(ctx, "/track/isrc:"+url.PathEscape(isrc), nil, &track); err != nil {
		return nil, err
	}
	if track.ID == 0 {
		return nil, fmt.Errorf("deezer: %w: isrc %s", shared.ErrNotFound, isrc)
	}
	t := track.toTrack(nil)
	return &t, nil
}

// AlbumByID retrieves an album with its tracks.
func (d *DeezerService) AlbumByID(ctx context.Context, id string) (*models.Album, error) {
	var da DeezerAlbum
	if err := d.get(ctx, "/album/"+url.PathEscape(id), nil, &da); err != nil {
		return nil, err
	}

	album := da.toAlbum()
	if da.Tracks != nil {
		for _, item := range da.Tracks.Data {
			album.Tracks = append(album.Tracks, item.toTrack(&da))
		}
	}
	album.TrackCount = max(album.TrackCount, len(album.Tracks))
	return &album, nil
}

// PlaylistByID retrieves a playlist with its tracks.
func (d *DeezerService) PlaylistByID(ctx context.Context, id string) (*models.Album, error) {
	var dp deezerPlaylist
	if err := d.get(ctx, "/playlist/"+url.PathEscape(id), nil, &dp); err != nil {
		return nil, err
	}

	album := models.Album{
		Source:        models.SourceDeezer,
		ID:            strconv.FormatInt(dp.ID, 10),
		Title:         dp.Title,
		Artists:       []string{dp.Creator.Name},
		ImageLocation: dp.Picture,
		Playlist:      true,
	}
	for _, item := range dp.Tracks.Data {
		album.Tracks = append(album.Tracks, item.toTrack(nil))
	}
	album.TrackCount = len(album.Tracks)
	return &album, nil
}

// Metadata combines the track with its album record for genres, UPC and totals.
func (d *DeezerService) Metadata(ctx context.Context, id string) (*models.Metadata, error) {
	var track DeezerTrack
	if err := d.get(ctx, "/track/"+url.PathEscape(id), nil, &track); err != nil {
		return nil, err
	}

	meta := &models.Metadata{
		Title:       track.Title,
		Artists:     track.artistNames(),
		ISRC:        track.ISRC,
		ReleaseDate: track.ReleaseDate,
		TrackNumber: track.TrackPosition,
		DiscNumber:  track.DiskNumber,
		Explicit:    track.Explicit,
	}
	if track.Album == nil || track.Album.ID == 0 {
		return meta, nil
	}

	var album DeezerAlbum
	if err := d.get(ctx, "/album/"+strconv.FormatInt(track.Album.ID, 10), nil, &album); err != nil {
		return nil, err
	}

	meta.Album = album.Title
	if album.Artist != nil {
		meta.AlbumArtists = []string{album.Artist.Name}
	}
	for _, g := range album.Genres.Data {
		meta.Genres = append(meta.Genres, g.Name)
	}
	meta.UPC = album.UPC
	meta.TrackTotal = album.NbTracks
	meta.Label = album.Label
	meta.CoverURL = album.CoverXL
	if meta.ReleaseDate == "" {
		meta.ReleaseDate = album.ReleaseDate
	}
	return meta, nil
}

func (t DeezerTrack) artistNames() []string {
	if len(t.Contributors) == 0 {
		return []string{t.Artist.Name}
	}
	names := make([]string, 0, len(t.Contributors))
	for _, c := range t.Contributors {
		names = append(names, c.Name)
	}
	return names
}

func (t DeezerTrack) toTrack(parent *DeezerAlbum) models.Track {
	album := t.Album
	if album == nil {
		album = parent
	}

	track := models.Track{
		Source:        models.SourceDeezer,
		ID:            strconv.FormatInt(t.ID, 10),
		Title:         t.Title,
		Artists:       t.artistNames(),
		ISRC:          t.ISRC,
		Duration:      t.Duration,
		ReleaseDate:   t.ReleaseDate,
		Rank:          t.Rank,
		TrackPosition: t.TrackPosition,
		Explicit:      t.Explicit,
		AdditionalFields: map[string]any{
			"disc_number": strconv.Itoa(t.DiskNumber),
		},
	}
	if album != nil {
		track.AlbumName = album.Title
		track.ImageLocation = album.CoverXL
		track.AdditionalFields["album_id"] = strconv.FormatInt(album.ID, 10)
		if track.ReleaseDate == "" {
			track.ReleaseDate = album.ReleaseDate
		}
	}
	if t.Readable != nil && !*t.Readable {
		track.AdditionalFields["readable"] = "false"
	}
	return track
}

func (a DeezerAlbum) toAlbum() models.Album {
	album := models.Album{
		Source:        models.SourceDeezer,
		ID:            strconv.FormatInt(a.ID, 10),
		Title:         a.Title,
		UPC:           a.UPC,
		ReleaseDate:   a.ReleaseDate,
		Explicit:      a.Explicit,
		ImageLocation: a.CoverXL,
		TrackCount:    a.NbTracks,
	}
	switch {
	case len(a.Contributor) > 0:
		for _, c := range a.Contributor {
			album.Artists = append(album.Artists, c.Name)
		}
	case a.Artist != nil:
		album.Artists = []string{a.Artist.Name}
	}
	return album
}
