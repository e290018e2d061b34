// Spotify Web API implementation of [Catalog]
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/desertthunder/tunedl/internal/models"
	"github.com/desertthunder/tunedl/internal/shared"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"
	spotifyPageSize = 50
)

// SpotifyImage represents an image resource.
type SpotifyImage struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

type externalIDs struct {
	ISRC string `json:"isrc"`
	UPC  string `json:"upc"`
}

// SpotifyTrack represents a Spotify track. Album is absent on tracks nested in an album response.
type SpotifyTrack struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Artists     []SpotifyArtist `json:"artists"`
	Album       *SpotifyAlbum   `json:"album"`
	DurationMS  int             `json:"duration_ms"`
	Explicit    bool            `json:"explicit"`
	ExternalIDs externalIDs     `json:"external_ids"`
	Popularity  int             `json:"popularity"`
	TrackNumber int             `json:"track_number"`
	DiscNumber  int             `json:"disc_number"`
	URI         string          `json:"uri"`
}

// SpotifyArtist represents a Spotify artist.
type SpotifyArtist struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Genres []string `json:"genres"`
	URI    string   `json:"uri"`
}

type spotifyCopyright struct {
	Text string `json:"text"`
	Type string `json:"type"`
}

// SpotifyAlbum represents a Spotify album.
type SpotifyAlbum struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Artists     []SpotifyArtist    `json:"artists"`
	ReleaseDate string             `json:"release_date"`
	TotalTracks int                `json:"total_tracks"`
	Images      []SpotifyImage     `json:"images"`
	Genres      []string           `json:"genres"`
	Label       string             `json:"label"`
	Copyrights  []spotifyCopyright `json:"copyrights"`
	ExternalIDs externalIDs        `json:"external_ids"`
	Tracks      *spotifyTrackPage  `json:"tracks"`
	URI         string             `json:"uri"`
}

type spotifyTrackPage struct {
	Items []SpotifyTrack `json:"items"`
	Total int            `json:"total"`
	Next  *string        `json:"next"`
}

type spotifyAlbumPage struct {
	Items []SpotifyAlbum `json:"items"`
	Total int            `json:"total"`
	Next  *string        `json:"next"`
}

// SpotifyPlaylistTrack represents a track within a playlist context. Track is nil for removed items.
type SpotifyPlaylistTrack struct {
	AddedAt string        `json:"added_at"`
	Track   *SpotifyTrack `json:"track"`
}

type spotifyPlaylistPage struct {
	Items []SpotifyPlaylistTrack `json:"items"`
	Total int                    `json:"total"`
	Next  *string                `json:"next"`
}

type owner struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// SpotifyPlaylist represents a Spotify playlist.
type SpotifyPlaylist struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Owner       owner               `json:"owner"`
	Public      bool                `json:"public"`
	Tracks      spotifyPlaylistPage `json:"tracks"`
	Images      []SpotifyImage      `json:"images"`
	URI         string              `json:"uri"`
}

type spotifySearch struct {
	Tracks *spotifyTrackPage `json:"tracks"`
	Albums *spotifyAlbumPage `json:"albums"`
}

// SpotifyService implements [Catalog] for the Spotify Web API using the client-credentials grant.
type SpotifyService struct {
	mu       sync.RWMutex
	fetch    *Fetcher
	tokenURL string
	creds    shared.SpotifyConfig
}

// NewSpotifyService creates a Spotify catalog client. When opts.Client is nil an OAuth2 client-credentials
// client is built from creds.
func NewSpotifyService(creds shared.SpotifyConfig, opts FetcherOptions) (*SpotifyService, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = spotifyBaseURL
	}
	tokenURL := opts.TokenURL
	if tokenURL == "" {
		tokenURL = spotifyTokenURL
	}

	s := &SpotifyService{tokenURL: tokenURL}
	if opts.Client == nil {
		client, err := s.authClient(creds)
		if err != nil {
			return nil, err
		}
		opts.Client = client
	}
	s.creds = creds
	s.fetch = NewFetcher(opts)
	return s, nil
}

func (s *SpotifyService) authClient(creds shared.SpotifyConfig) (*http.Client, error) {
	if creds.ClientID == "" {
		return nil, fmt.Errorf("%w: spotify client_id", shared.ErrMissingCredentials)
	}
	if creds.ClientSecret == "" {
		return nil, fmt.Errorf("%w: spotify client_secret", shared.ErrMissingCredentials)
	}
	config := clientcredentials.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		TokenURL:     s.tokenURL,
	}
	return config.Client(context.Background()), nil
}

// Reconfigure swaps credentials and the authenticated client, e.g. after the user edits the config.
func (s *SpotifyService) Reconfigure(creds shared.SpotifyConfig) error {
	client, err := s.authClient(creds)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = creds
	s.fetch.SetClient(client)
	return nil
}

// Close releases idle connections.
func (s *SpotifyService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetch.Client().CloseIdleConnections()
	return nil
}

func (s *SpotifyService) Source() models.Source { return models.SourceSpotify }

func (s *SpotifyService) Dialect() Dialect { return DialectSpotify }

func (s *SpotifyService) get(ctx context.Context, endpoint string, query url.Values, result any) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fetch.GetJSON(ctx, endpoint, query, result); err != nil {
		return fmt.Errorf("spotify: %w", err)
	}
	return nil
}

// SearchTracks runs a track search.
func (s *SpotifyService) SearchTracks(ctx context.Context, query string) ([]models.Track, error) {
	var resp spotifySearch
	q := url.Values{"q": {query}, "type": {"track"}, "limit": {"20"}}
	if err := s.get(ctx, "/search", q, &resp); err != nil {
		return nil, err
	}
	if resp.Tracks == nil {
		return nil, nil
	}

	tracks := make([]models.Track, 0, len(resp.Tracks.Items))
	for _, item := range resp.Tracks.Items {
		tracks = append(tracks, item.toTrack(nil))
	}
	return tracks, nil
}

// SearchAlbums runs an album search.
func (s *SpotifyService) SearchAlbums(ctx context.Context, query string) ([]models.Album, error) {
	var resp spotifySearch
	q := url.Values{"q": {query}, "type": {"album"}, "limit": {"20"}}
	if err := s.get(ctx, "/search", q, &resp); err != nil {
		return nil, err
	}
	if resp.Albums == nil {
		return nil, nil
	}

	albums := make([]models.Album, 0, len(resp.Albums.Items))
	for _, item := range resp.Albums.Items {
		albums = append(albums, item.toAlbum())
	}
	return albums, nil
}

// TrackByID retrieves a single track by ID.
func (s *SpotifyService) TrackByID(ctx context.Context, id string) (*models.Track, error) {
	var track SpotifyTrack
	if err := s.get(ctx, "/tracks/"+url.PathEscape(id), nil, &track); err != nil {
		return nil, err
	}
	t := track.toTrack(nil)
	return &t, nil
}

// TrackByISRC uses the isrc: search filter.
func (s *SpotifyService) TrackByISRC(ctx context.Context, isrc string) (*models.Track, error) {
	var resp spotifySearch
	q := url.Values{"q": {"isrc:" + isrc}, "type": {"track"}, "limit": {"1"}}
	if err := s.get(ctx, "/search", q, &resp); err != nil {
		return nil, err
	}
	if resp.Tracks == nil || len(resp.Tracks.Items) == 0 {
		return nil, fmt.Errorf("%w: spotify isrc %s", shared.ErrNotFound, isrc)
	}
	t := resp.Tracks.Items[0].toTrack(nil)
	return &t, nil
}

// album fetches an album and all pages of its tracks.
func (s *SpotifyService) album(ctx context.Context, id string) (*SpotifyAlbum, []SpotifyTrack, error) {
	var album SpotifyAlbum
	if err := s.get(ctx, "/albums/"+url.PathEscape(id), nil, &album); err != nil {
		return nil, nil, err
	}

	var items []SpotifyTrack
	page := album.Tracks
	for page != nil {
		items = append(items, page.Items...)
		if page.Next == nil || *page.Next == "" {
			break
		}
		var next spotifyTrackPage
		if err := s.get(ctx, *page.Next, nil, &next); err != nil {
			return nil, nil, err
		}
		page = &next
	}
	return &album, items, nil
}

// AlbumByID retrieves an album with all its tracks.
func (s *SpotifyService) AlbumByID(ctx context.Context, id string) (*models.Album, error) {
	sa, items, err := s.album(ctx, id)
	if err != nil {
		return nil, err
	}

	album := sa.toAlbum()
	for _, item := range items {
		album.Tracks = append(album.Tracks, item.toTrack(sa))
	}
	album.TrackCount = len(album.Tracks)
	return &album, nil
}

// PlaylistByID retrieves a playlist with all its tracks.
func (s *SpotifyService) PlaylistByID(ctx context.Context, id string) (*models.Album, error) {
	var sp SpotifyPlaylist
	if err := s.get(ctx, "/playlists/"+url.PathEscape(id), nil, &sp); err != nil {
		return nil, err
	}

	album := models.Album{
		Source:   models.SourceSpotify,
		ID:       sp.ID,
		Title:    sp.Name,
		Artists:  []string{sp.Owner.DisplayName},
		Playlist: true,
	}
	if len(sp.Images) > 0 {
		album.ImageLocation = sp.Images[0].URL
	}

	page := &sp.Tracks
	for {
		for _, item := range page.Items {
			if item.Track == nil || item.Track.ID == "" {
				continue
			}
			album.Tracks = append(album.Tracks, item.Track.toTrack(nil))
		}
		if page.Next == nil || *page.Next == "" {
			break
		}
		var next spotifyPlaylistPage
		if err := s.get(ctx, *page.Next, nil, &next); err != nil {
			return nil, err
		}
		page = &next
	}
	album.TrackCount = len(album.Tracks)
	return &album, nil
}

// Metadata combines the track with its album record for genres, label and totals.
func (s *SpotifyService) Metadata(ctx context.Context, id string) (*models.Metadata, error) {
	var track SpotifyTrack
	if err := s.get(ctx, "/tracks/"+url.PathEscape(id), nil, &track); err != nil {
		return nil, err
	}

	meta := &models.Metadata{
		Title:       track.Name,
		Artists:     artistNames(track.Artists),
		ISRC:        track.ExternalIDs.ISRC,
		TrackNumber: track.TrackNumber,
		DiscNumber:  track.DiscNumber,
		Explicit:    track.Explicit,
	}
	if track.Album == nil {
		return meta, nil
	}

	album := track.Album
	full, _, err := s.album(ctx, album.ID)
	switch {
	case err == nil:
		album = full
	case shared.IsCancelled(err):
		return nil, err
	case !errors.Is(err, shared.ErrNotFound):
		return nil, err
	}

	meta.Album = album.Name
	meta.AlbumArtists = artistNames(album.Artists)
	meta.Genres = album.Genres
	meta.UPC = album.ExternalIDs.UPC
	meta.ReleaseDate = album.ReleaseDate
	meta.TrackTotal = album.TotalTracks
	meta.Label = album.Label
	if len(album.Copyrights) > 0 {
		meta.Copyright = album.Copyrights[0].Text
	}
	if len(album.Images) > 0 {
		meta.CoverURL = album.Images[0].URL
	}
	return meta, nil
}

func artistNames(artists []SpotifyArtist) []string {
	names := make([]string, 0, len(artists))
	for _, a := range artists {
		names = append(names, a.Name)
	}
	return names
}

// toTrack maps the response. parent fills album fields on tracks nested in an album response.
func (t SpotifyTrack) toTrack(parent *SpotifyAlbum) models.Track {
	album := t.Album
	if album == nil {
		album = parent
	}

	track := models.Track{
		Source:        models.SourceSpotify,
		ID:            t.ID,
		Title:         t.Name,
		Artists:       artistNames(t.Artists),
		ISRC:          t.ExternalIDs.ISRC,
		Duration:      t.DurationMS / 1000,
		Rank:          t.Popularity,
		TrackPosition: t.TrackNumber,
		Explicit:      t.Explicit,
		AdditionalFields: map[string]any{
			"disc_number": strconv.Itoa(t.DiscNumber),
			"uri":         t.URI,
		},
	}
	if album != nil {
		track.AlbumName = album.Name
		track.ReleaseDate = album.ReleaseDate
		track.AdditionalFields["album_id"] = album.ID
		if len(album.Images) > 0 {
			track.ImageLocation = album.Images[0].URL
		}
	}
	return track
}

func (a SpotifyAlbum) toAlbum() models.Album {
	album := models.Album{
		Source:      models.SourceSpotify,
		ID:          a.ID,
		Title:       a.Name,
		Artists:     artistNames(a.Artists),
		UPC:         a.ExternalIDs.UPC,
		ReleaseDate: a.ReleaseDate,
		TrackCount:  a.TotalTracks,
	}
	if len(a.Images) > 0 {
		album.ImageLocation = a.Images[0].URL
	}
	return album
}
