package services

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/desertthunder/tunedl/internal/models"
	"github.com/desertthunder/tunedl/internal/shared"
)

const qobuzTrackJSON = `{
	"id": 52151405,
	"title": "Blinding Lights",
	"version": "",
	"isrc": "USUG11904206",
	"duration": 200,
	"track_number": 9,
	"media_number": 1,
	"parental_warning": false,
	"performer": {"id": 1, "name": "The Weeknd"},
	"album": {
		"id": "ybsgagj3s6cxa",
		"title": "After Hours",
		"upc": "0602508904300",
		"release_date_original": "2020-03-20",
		"tracks_count": 14,
		"media_count": 1,
		"artist": {"id": 1, "name": "The Weeknd"},
		"genre": {"id": 2, "name": "Pop"},
		"label": {"id": 3, "name": "Republic Records"},
		"image": {"large": "https://static.qobuz.com/cover_600.jpg"}
	}
}`

const qobuzSecret = "s3cr3t"

func newQobuzTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	var serverURL string

	mux.HandleFunc("/track/search", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-App-Id") != "app" {
			t.Errorf("expected X-App-Id header")
		}
		other := `{"id": 1, "title": "Blinding Lights (Cover)", "isrc": "GBXXX2000001", "performer": {"name": "Someone"}}`
		w.Write([]byte(`{"tracks": {"items": [` + other + `,` + qobuzTrackJSON + `]}}`))
	})
	mux.HandleFunc("/album/search", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"albums": {"items": [{"id": "ybsgagj3s6cxa", "title": "After Hours", "version": "Deluxe", "artist": {"name": "The Weeknd"}}]}}`))
	})
	mux.HandleFunc("/track/get", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("track_id") != "52151405" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(qobuzTrackJSON))
	})
	mux.HandleFunc("/album/get", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id": "ybsgagj3s6cxa", "title": "After Hours", "tracks_count": 14, "artist": {"name": "The Weeknd"},
			"tracks": {"items": [{"id": 10, "title": "Alone Again", "performer": {"name": "The Weeknd"}}]}}`))
	})
	mux.HandleFunc("/track/getFileUrl", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		raw := "trackgetFileUrlformat_id" + q.Get("format_id") + "intentstreamtrack_id" + q.Get("track_id") + q.Get("request_ts") + qobuzSecret
		sum := md5.Sum([]byte(raw))
		if q.Get("request_sig") != hex.EncodeToString(sum[:]) {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"message":"Invalid Request Signature parameter (request_sig)"}`))
			return
		}
		if q.Get("request_ts") != "1700000000" {
			t.Errorf("expected fixed timestamp, got %s", q.Get("request_ts"))
		}
		switch q.Get("format_id") {
		case "27":
			w.Write([]byte(`{"track_id": 52151405, "url": "` + serverURL + `/stream", "format_id": 6, "sample": false}`))
		case "7":
			w.Write([]byte(`{"track_id": 52151405, "url": "` + serverURL + `/stream", "format_id": 7, "sample": true}`))
		default:
			w.Write([]byte(`{"track_id": 52151405, "url": "` + serverURL + `/stream", "format_id": ` + q.Get("format_id") + `, "mime_type": "audio/flac"}`))
		}
	})
	mux.HandleFunc("/stream", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("fLaC-audio-bytes"))
	})

	server := httptest.NewServer(mux)
	serverURL = server.URL
	return server
}

func TestQobuzService(t *testing.T) {
	ctx := context.Background()
	server := newQobuzTestServer(t)
	defer server.Close()

	creds := shared.QobuzConfig{AppID: "app", AppSecret: qobuzSecret, UserToken: "token"}
	srv, err := NewQobuzService(creds, FetcherOptions{BaseURL: server.URL, RequestsPerSecond: 1000})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	srv.now = func() time.Time { return time.Unix(1700000000, 0) }

	var _ Catalog = srv
	var _ Downloader = srv

	t.Run("requires app id", func(t *testing.T) {
		if _, err := NewQobuzService(shared.QobuzConfig{}, FetcherOptions{}); !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("expected ErrMissingCredentials, got %v", err)
		}
	})

	t.Run("QobuzFormat", func(t *testing.T) {
		tests := map[string]int{"hires-max": 27, "hires": 7, "lossless": 6, "high": 5, "": 6, "bogus": 6}
		for in, want := range tests {
			if got := QobuzFormat(in); got != want {
				t.Errorf("QobuzFormat(%q) = %d, want %d", in, got, want)
			}
		}
	})

	t.Run("SearchTracks", func(t *testing.T) {
		tracks, err := srv.SearchTracks(ctx, "The Weeknd Blinding Lights")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(tracks) != 2 {
			t.Fatalf("expected 2 tracks, got %d", len(tracks))
		}
		if tracks[1].AlbumName != "After Hours" || tracks[1].ImageLocation == "" {
			t.Errorf("unexpected mapping %+v", tracks[1])
		}
	})

	t.Run("SearchAlbums appends version", func(t *testing.T) {
		albums, err := srv.SearchAlbums(ctx, "After Hours")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if albums[0].Title != "After Hours (Deluxe)" {
			t.Errorf("expected versioned title, got %q", albums[0].Title)
		}
	})

	t.Run("TrackByISRC filters exact code", func(t *testing.T) {
		tr, err := srv.TrackByISRC(ctx, "USUG11904206")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if tr.ID != "52151405" {
			t.Errorf("expected the exact ISRC hit, got %s", tr.ID)
		}
		if _, err := srv.TrackByISRC(ctx, "ZZ0000000000"); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("TrackByID not found", func(t *testing.T) {
		if _, err := srv.TrackByID(ctx, "1"); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("AlbumByID", func(t *testing.T) {
		album, err := srv.AlbumByID(ctx, "ybsgagj3s6cxa")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(album.Tracks) != 1 || album.Tracks[0].AlbumName != "After Hours" || album.TrackCount != 14 {
			t.Errorf("unexpected album %+v", album)
		}
	})

	t.Run("Metadata", func(t *testing.T) {
		meta, err := srv.Metadata(ctx, "52151405")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if meta.Label != "Republic Records" || meta.Genres[0] != "Pop" || meta.TrackTotal != 14 || meta.DiscTotal != 1 {
			t.Errorf("unexpected metadata %+v", meta)
		}
	})

	t.Run("StreamURL", func(t *testing.T) {
		t.Run("signed request", func(t *testing.T) {
			u, mime, err := srv.StreamURL(ctx, "52151405", QobuzLossless)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if u != server.URL+"/stream" || mime != "audio/flac" {
				t.Errorf("unexpected stream %s %s", u, mime)
			}
		})

		t.Run("lower format is restricted", func(t *testing.T) {
			if _, _, err := srv.StreamURL(ctx, "52151405", QobuzHiResMax); !errors.Is(err, shared.ErrQualityRestricted) {
				t.Errorf("expected ErrQualityRestricted, got %v", err)
			}
		})

		t.Run("sample is restricted", func(t *testing.T) {
			if _, _, err := srv.StreamURL(ctx, "52151405", QobuzHiRes); !errors.Is(err, shared.ErrQualityRestricted) {
				t.Errorf("expected ErrQualityRestricted, got %v", err)
			}
		})

		t.Run("needs secret and token", func(t *testing.T) {
			bare, _ := NewQobuzService(shared.QobuzConfig{AppID: "app"}, FetcherOptions{BaseURL: server.URL})
			if _, _, err := bare.StreamURL(ctx, "52151405", QobuzLossless); !errors.Is(err, shared.ErrMissingCredentials) {
				t.Errorf("expected ErrMissingCredentials, got %v", err)
			}
		})
	})

	t.Run("Download", func(t *testing.T) {
		dir := t.TempDir()
		track := models.Track{Source: models.SourceQobuz, ID: "52151405"}
		req := Request{Destination: filepath.Join(dir, "The Weeknd - Blinding Lights"), Quality: "lossless"}

		path, err := srv.Download(ctx, track, req)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if filepath.Ext(path) != ".flac" {
			t.Errorf("expected .flac, got %s", path)
		}
		data, err := os.ReadFile(path)
		if err != nil || string(data) != "fLaC-audio-bytes" {
			t.Errorf("unexpected file contents %q (%v)", data, err)
		}

		entries, _ := os.ReadDir(dir)
		if len(entries) != 1 {
			t.Errorf("expected no leftover temp files, got %d entries", len(entries))
		}

		if _, err := srv.Download(ctx, track, req); !errors.Is(err, shared.ErrAlreadyExists) {
			t.Errorf("expected ErrAlreadyExists, got %v", err)
		}

		req.Overwrite = true
		if _, err := srv.Download(ctx, track, req); err != nil {
			t.Errorf("overwrite should succeed, got %v", err)
		}

		req.Quality = "high"
		path, err = srv.Download(ctx, track, req)
		if err != nil || filepath.Ext(path) != ".mp3" {
			t.Errorf("expected mp3 download, got %s (%v)", path, err)
		}
	})

	t.Run("Download rejects other sources", func(t *testing.T) {
		_, err := srv.Download(ctx, models.Track{Source: models.SourceDeezer, ID: "1"}, Request{Destination: t.TempDir() + "/x"})
		if !errors.Is(err, shared.ErrUnsupported) {
			t.Errorf("expected ErrUnsupported, got %v", err)
		}
	})
}
