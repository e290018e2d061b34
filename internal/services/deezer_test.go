package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/desertthunder/tunedl/internal/models"
	"github.com/desertthunder/tunedl/internal/shared"
)

const deezerTrackJSON = `{
	"id": 908604612,
	"title": "Blinding Lights",
	"isrc": "USUG11904206",
	"duration": 200,
	"rank": 945000,
	"track_position": 9,
	"disk_number": 1,
	"release_date": "2020-03-20",
	"explicit_lyrics": false,
	"artist": {"id": 4050205, "name": "The Weeknd"},
	"contributors": [{"id": 4050205, "name": "The Weeknd"}],
	"album": {"id": 137217782, "title": "After Hours", "cover_xl": "https://e-cdns-images.dzcdn.net/cover.jpg"}
}`

const deezerAlbumJSON = `{
	"id": 137217782,
	"title": "After Hours",
	"upc": "602508904300",
	"label": "Republic Records",
	"nb_tracks": 14,
	"release_date": "2020-03-20",
	"cover_xl": "https://e-cdns-images.dzcdn.net/cover.jpg",
	"artist": {"id": 4050205, "name": "The Weeknd"},
	"genres": {"data": [{"id": 132, "name": "Pop"}, {"id": 116, "name": "R&B"}]},
	"tracks": {"data": [
		{"id": 1, "title": "Alone Again", "duration": 250, "artist": {"name": "The Weeknd"}},
		{"id": 2, "title": "Too Late", "duration": 239, "artist": {"name": "The Weeknd"}}
	]}
}`

func newDeezerTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") == "" {
			t.Error("expected a q parameter")
		}
		w.Write([]byte(`{"data": [` + deezerTrackJSON + `], "total": 1}`))
	})
	mux.HandleFunc("/search/album", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": [` + deezerAlbumJSON + `], "total": 1}`))
	})
	mux.HandleFunc("/track/isrc:USUG11904206", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(deezerTrackJSON))
	})
	mux.HandleFunc("/track/isrc:XX0000000000", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":{"type":"DataException","message":"no data","code":800}}`))
	})
	mux.HandleFunc("/track/908604612", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(deezerTrackJSON))
	})
	mux.HandleFunc("/track/500", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":{"type":"Exception","message":"boom","code":100}}`))
	})
	mux.HandleFunc("/album/137217782", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(deezerAlbumJSON))
	})
	mux.HandleFunc("/playlist/42", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id": 42, "title": "Hits", "creator": {"name": "deezer"}, "tracks": {"data": [` + deezerTrackJSON + `]}}`))
	})
	mux.HandleFunc("/quota", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":{"type":"Exception","message":"Quota limit exceeded","code":4}}`))
	})
	return httptest.NewServer(mux)
}

func TestDeezerService(t *testing.T) {
	ctx := context.Background()
	server := newDeezerTestServer(t)
	defer server.Close()

	srv := NewDeezerService(FetcherOptions{BaseURL: server.URL, RequestsPerSecond: 1000, QuotaRetryDelay: time.Millisecond})
	var _ Catalog = srv

	t.Run("Source and Dialect", func(t *testing.T) {
		if srv.Source() != models.SourceDeezer || srv.Dialect() != DialectDeezer {
			t.Error("unexpected source or dialect")
		}
	})

	t.Run("SearchTracks", func(t *testing.T) {
		tracks, err := srv.SearchTracks(ctx, DialectDeezer.Query("Blinding Lights", "The Weeknd", "After Hours"))
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(tracks) != 1 {
			t.Fatalf("expected 1 track, got %d", len(tracks))
		}
		tr := tracks[0]
		if tr.ID != "908604612" || tr.AlbumName != "After Hours" || tr.ISRC != "USUG11904206" {
			t.Errorf("unexpected mapping %+v", tr)
		}
		if tr.Field("album_id") != "137217782" || tr.Rank != 945000 {
			t.Errorf("unexpected mapping %+v", tr)
		}
	})

	t.Run("SearchAlbums", func(t *testing.T) {
		albums, err := srv.SearchAlbums(ctx, "After Hours")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(albums) != 1 || albums[0].Artist() != "The Weeknd" {
			t.Errorf("unexpected albums %+v", albums)
		}
	})

	t.Run("TrackByISRC", func(t *testing.T) {
		tr, err := srv.TrackByISRC(ctx, "USUG11904206")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if tr.Title != "Blinding Lights" {
			t.Errorf("unexpected track %+v", tr)
		}

		if _, err := srv.TrackByISRC(ctx, "XX0000000000"); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound for error code 800, got %v", err)
		}
	})

	t.Run("TrackByID error envelope", func(t *testing.T) {
		if _, err := srv.TrackByID(ctx, "500"); !errors.Is(err, shared.ErrAPIRequest) {
			t.Errorf("expected ErrAPIRequest, got %v", err)
		}
	})

	t.Run("AlbumByID", func(t *testing.T) {
		album, err := srv.AlbumByID(ctx, "137217782")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(album.Tracks) != 2 || album.TrackCount != 14 {
			t.Errorf("expected 2 tracks and count 14, got %d/%d", len(album.Tracks), album.TrackCount)
		}
		if album.Tracks[0].AlbumName != "After Hours" {
			t.Errorf("expected parent album on child tracks")
		}
	})

	t.Run("PlaylistByID", func(t *testing.T) {
		pl, err := srv.PlaylistByID(ctx, "42")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !pl.Playlist || pl.ID != "42" || len(pl.Tracks) != 1 {
			t.Errorf("unexpected playlist %+v", pl)
		}
	})

	t.Run("Metadata", func(t *testing.T) {
		meta, err := srv.Metadata(ctx, "908604612")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if meta.UPC != "602508904300" || meta.TrackTotal != 14 || len(meta.Genres) != 2 {
			t.Errorf("unexpected metadata %+v", meta)
		}
		if meta.CoverURL == "" || meta.TrackNumber != 9 || meta.AlbumArtists[0] != "The Weeknd" {
			t.Errorf("unexpected metadata %+v", meta)
		}
	})

	t.Run("quota body is rate limited", func(t *testing.T) {
		var out map[string]any
		if err := srv.get(ctx, "/quota", nil, &out); !errors.Is(err, shared.ErrRateLimited) {
			t.Errorf("expected ErrRateLimited, got %v", err)
		}
	})
}
