package router

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/desertthunder/tunedl/internal/models"
	"github.com/desertthunder/tunedl/internal/services"
	"github.com/desertthunder/tunedl/internal/shared"
	tu "github.com/desertthunder/tunedl/internal/testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		source models.Source
		entity Entity
		id     string
		short  bool
	}{
		{"spotify track", "https://open.spotify.com/track/0VjIjW4GlUZAMYd2vXMi3b?si=abc", models.SourceSpotify, EntityTrack, "0VjIjW4GlUZAMYd2vXMi3b", false},
		{"spotify locale album", "https://open.spotify.com/intl-de/album/4yP0hdKOZPNshxUOjY0cZj/", models.SourceSpotify, EntityAlbum, "4yP0hdKOZPNshxUOjY0cZj", false},
		{"spotify playlist", "https://open.spotify.com/playlist/37i9dQZF1DXcBWIGoYBM5M", models.SourceSpotify, EntityPlaylist, "37i9dQZF1DXcBWIGoYBM5M", false},
		{"spotify uri", "spotify:track:0VjIjW4GlUZAMYd2vXMi3b", models.SourceSpotify, EntityTrack, "0VjIjW4GlUZAMYd2vXMi3b", false},
		{"deezer track", "https://www.deezer.com/track/908604612", models.SourceDeezer, EntityTrack, "908604612", false},
		{"deezer locale album", "https://www.deezer.com/fr/album/137217782?utm_source=x", models.SourceDeezer, EntityAlbum, "137217782", false},
		{"deezer bare host", "https://deezer.com/en/playlist/42/", models.SourceDeezer, EntityPlaylist, "42", false},
		{"qobuz open", "https://open.qobuz.com/track/52151405", models.SourceQobuz, EntityTrack, "52151405", false},
		{"qobuz play album", "https://play.qobuz.com/album/ybsgagj3s6cxa", models.SourceQobuz, EntityAlbum, "ybsgagj3s6cxa", false},
		{"qobuz store album", "https://www.qobuz.com/us-en/album/after-hours-the-weeknd/ybsgagj3s6cxa", models.SourceQobuz, EntityAlbum, "ybsgagj3s6cxa", false},
		{"youtube watch", "https://www.youtube.com/watch?v=4NRXx6U8ABQ&t=10", models.SourceYouTube, EntityTrack, "4NRXx6U8ABQ", false},
		{"youtube music", "https://music.youtube.com/watch?v=4NRXx6U8ABQ", models.SourceYouTube, EntityTrack, "4NRXx6U8ABQ", false},
		{"youtu.be", "https://youtu.be/4NRXx6U8ABQ?si=x", models.SourceYouTube, EntityTrack, "4NRXx6U8ABQ", false},
		{"youtube playlist", "https://www.youtube.com/playlist?list=PLx0sYbCqOb8TBPRdmBHs5Iftvv9TPboYG", models.SourceYouTube, EntityPlaylist, "PLx0sYbCqOb8TBPRdmBHs5Iftvv9TPboYG", false},
		{"spotify short link", "https://spotify.link/AbCdEf", models.SourceSpotify, EntityNone, "", true},
		{"deezer short link", "https://link.deezer.com/s/30de0NbmzCHJ", models.SourceDeezer, EntityNone, "", true},
		{"free text", "the weeknd blinding lights", "", EntityNone, "", false},
		{"unknown domain", "https://example.com/track/1", "", EntityNone, "", false},
		{"spotify artist is not loadable", "https://open.spotify.com/artist/1Xyo4u8uXC1ZmMpatF05PJ", models.SourceSpotify, EntityNone, "", false},
		{"deezer track with bad id", "https://www.deezer.com/us/track/notanumber", models.SourceDeezer, EntityNone, "", false},
		{"youtube channel", "https://www.youtube.com/channel/UC0WP5P-ufpRfjbNrmOWwLBQ", models.SourceYouTube, EntityNone, "", false},
		{"qobuz label page", "https://www.qobuz.com/us-en/label/republic-records/123", models.SourceQobuz, EntityNone, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.raw)
			if got.Source != tt.source || got.Entity != tt.entity || got.ID != tt.id || got.ShortLink != tt.short {
				t.Errorf("Classify(%q) = %+v", tt.raw, got)
			}
			if got.Raw != tt.raw {
				t.Errorf("expected raw input to be kept, got %q", got.Raw)
			}
		})
	}
}

// recordingSink collects router error reports.
type recordingSink struct {
	mu      sync.Mutex
	updates []models.Update
}

func (s *recordingSink) OnUpdate(u models.Update) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, u)
}

func (s *recordingSink) all() []models.Update {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Update(nil), s.updates...)
}

func redirectResponse(status int, location string) *http.Response {
	h := http.Header{}
	if location != "" {
		h.Set("Location", location)
	}
	return &http.Response{StatusCode: status, Header: h, Body: io.NopCloser(strings.NewReader(""))}
}

func newFixture(t *testing.T) (*services.Catalogs, *tu.MockCatalog, *tu.MockCatalog) {
	t.Helper()
	log := &tu.CallLog{}
	deezer := tu.NewMockCatalog(models.SourceDeezer, log,
		models.Track{Source: models.SourceDeezer, ID: "908604612", Title: "Blinding Lights", Artists: []string{"The Weeknd"}},
	)
	deezer.Albums = map[string]*models.Album{
		"137217782": {Source: models.SourceDeezer, ID: "137217782", Title: "After Hours", Tracks: []models.Track{
			{Source: models.SourceDeezer, ID: "1", Title: "Alone Again"},
			{Source: models.SourceDeezer, ID: "2", Title: "Too Late"},
		}},
	}
	deezer.Playlists = map[string]*models.Album{
		"42": {Source: models.SourceDeezer, ID: "42", Title: "Hits", Playlist: true, Tracks: []models.Track{
			{Source: models.SourceDeezer, ID: "3", Title: "Save Your Tears"},
		}},
	}
	spotify := tu.NewMockCatalog(models.SourceSpotify, log,
		models.Track{Source: models.SourceSpotify, ID: "0VjIjW4GlUZAMYd2vXMi3b", Title: "Blinding Lights"},
	)

	catalogs := services.NewCatalogs()
	catalogs.Register(deezer)
	catalogs.Register(spotify)
	return catalogs, deezer, spotify
}

func TestRouterLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("single track appends", func(t *testing.T) {
		catalogs, _, _ := newFixture(t)
		r := New(catalogs, Options{})
		tracks := models.NewCollection(models.Track{Source: models.SourceLocal, ID: "existing"})
		sink := &recordingSink{}

		n, err := r.Open(ctx, "https://www.deezer.com/track/908604612", false, LoadTarget{Tracks: tracks}, sink)
		if err != nil || n != 1 {
			t.Fatalf("expected 1 loaded track, got %d (%v)", n, err)
		}
		if tracks.Len() != 2 {
			t.Errorf("expected append, got %d tracks", tracks.Len())
		}
		if len(sink.all()) != 0 {
			t.Error("expected no reports on success")
		}
	})

	t.Run("album replaces", func(t *testing.T) {
		catalogs, _, _ := newFixture(t)
		r := New(catalogs, Options{})
		tracks := models.NewCollection(models.Track{Source: models.SourceLocal, ID: "existing"})

		n, err := r.Open(ctx, "https://www.deezer.com/album/137217782", false, LoadTarget{Tracks: tracks}, nil)
		if err != nil || n != 2 {
			t.Fatalf("expected 2 loaded tracks, got %d (%v)", n, err)
		}
		snap := tracks.Snapshot()
		if len(snap) != 2 || snap[0].ID != "1" || snap[1].ID != "2" {
			t.Errorf("expected clear-then-fill in album order, got %+v", snap)
		}
	})

	t.Run("playlist replaces", func(t *testing.T) {
		catalogs, _, _ := newFixture(t)
		r := New(catalogs, Options{})
		tracks := models.NewCollection(models.Track{ID: "a"}, models.Track{ID: "b"})

		if _, err := r.Open(ctx, "https://www.deezer.com/playlist/42", false, LoadTarget{Tracks: tracks}, nil); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if tracks.Len() != 1 {
			t.Errorf("expected 1 track, got %d", tracks.Len())
		}
	})

	t.Run("album mode yields one composite album", func(t *testing.T) {
		catalogs, _, _ := newFixture(t)
		r := New(catalogs, Options{})
		tracks := models.NewCollection[models.Track]()
		albums := models.NewCollection[models.Album]()

		n, err := r.Open(ctx, "https://www.deezer.com/album/137217782", true, LoadTarget{Tracks: tracks, Albums: albums}, nil)
		if err != nil || n != 1 {
			t.Fatalf("expected 1 album, got %d (%v)", n, err)
		}
		if tracks.Len() != 0 {
			t.Error("album mode must not expand into tracks")
		}
		a, ok := albums.Get(0)
		if !ok || len(a.Tracks) != 2 {
			t.Errorf("expected embedded tracks, got %+v", a)
		}
	})

	t.Run("unrecognized input falls through to search", func(t *testing.T) {
		catalogs, deezer, _ := newFixture(t)
		r := New(catalogs, Options{DefaultSource: models.SourceDeezer})
		tracks := models.NewCollection[models.Track]()

		n, err := r.Open(ctx, "the weeknd blinding lights", false, LoadTarget{Tracks: tracks}, nil)
		if err != nil || n != 1 {
			t.Fatalf("expected search results, got %d (%v)", n, err)
		}
		if deezer.Searches() != 1 || deezer.Log.Entries()[0] != "deezer.SearchTracks:the weeknd blinding lights" {
			t.Errorf("expected raw query search, got %v", deezer.Log.Entries())
		}
	})

	t.Run("recognized but missing reports Error and never searches", func(t *testing.T) {
		catalogs, deezer, _ := newFixture(t)
		r := New(catalogs, Options{})
		tracks := models.NewCollection[models.Track]()
		sink := &recordingSink{}

		_, err := r.Open(ctx, "https://www.deezer.com/track/1", false, LoadTarget{Tracks: tracks}, sink)
		if !errors.Is(err, shared.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		updates := sink.all()
		if len(updates) != 1 || updates[0].Severity != models.Error || updates[0].Track.ID != "1" {
			t.Errorf("expected one Error report, got %+v", updates)
		}
		if deezer.Searches() != 0 {
			t.Error("recognized input must not fall through to search")
		}
	})

	t.Run("known domain without an entity reports Error and never searches", func(t *testing.T) {
		inputs := []string{
			"https://open.spotify.com/artist/1Xyo4u8uXC1ZmMpatF05PJ",
			"https://www.deezer.com/us/track/notanumber",
			"https://www.youtube.com/channel/UC0WP5P-ufpRfjbNrmOWwLBQ",
		}
		for _, in := range inputs {
			catalogs, deezer, _ := newFixture(t)
			r := New(catalogs, Options{DefaultSource: models.SourceDeezer})
			sink := &recordingSink{}

			n, err := r.Open(ctx, in, false, LoadTarget{Tracks: models.NewCollection[models.Track]()}, sink)
			if !errors.Is(err, shared.ErrUnsupported) || n != 0 {
				t.Errorf("%s: expected ErrUnsupported, got %d (%v)", in, n, err)
			}
			if updates := sink.all(); len(updates) != 1 || updates[0].Severity != models.Error {
				t.Errorf("%s: expected one Error report, got %+v", in, updates)
			}
			if deezer.Searches() != 0 {
				t.Errorf("%s: must not fall through to search, got %v", in, deezer.Log.Entries())
			}
		}
	})

	t.Run("unregistered catalog reports Error", func(t *testing.T) {
		catalogs, _, _ := newFixture(t)
		r := New(catalogs, Options{})
		sink := &recordingSink{}

		_, err := r.Open(ctx, "https://open.qobuz.com/track/52151405", false, LoadTarget{Tracks: models.NewCollection[models.Track]()}, sink)
		if !errors.Is(err, shared.ErrUnrecognizedSource) || len(sink.all()) != 1 {
			t.Errorf("expected reported ErrUnrecognizedSource, got %v", err)
		}
	})

	t.Run("youtube track", func(t *testing.T) {
		catalogs, _, _ := newFixture(t)
		r := New(catalogs, Options{})
		tracks := models.NewCollection[models.Track]()

		if _, err := r.Open(ctx, "https://youtu.be/4NRXx6U8ABQ", false, LoadTarget{Tracks: tracks}, nil); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		tr, _ := tracks.Get(0)
		if tr.Source != models.SourceYouTube || tr.ID != "4NRXx6U8ABQ" {
			t.Errorf("unexpected track %+v", tr)
		}
	})

	t.Run("frozen collection", func(t *testing.T) {
		catalogs, _, _ := newFixture(t)
		r := New(catalogs, Options{})
		tracks := models.NewCollection[models.Track]()
		tracks.Freeze()
		sink := &recordingSink{}

		_, err := r.Open(ctx, "https://www.deezer.com/album/137217782", false, LoadTarget{Tracks: tracks}, sink)
		if !errors.Is(err, shared.ErrCollectionFrozen) {
			t.Errorf("expected ErrCollectionFrozen, got %v", err)
		}
	})

	t.Run("cancelled load reports nothing", func(t *testing.T) {
		catalogs, deezer, _ := newFixture(t)
		cctx, cancel := context.WithCancel(ctx)
		deezer.OnCall = func(string, string) { cancel() }
		r := New(catalogs, Options{})
		sink := &recordingSink{}

		_, err := r.Open(cctx, "https://www.deezer.com/track/908604612", false, LoadTarget{Tracks: models.NewCollection[models.Track]()}, sink)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if len(sink.all()) != 0 {
			t.Error("cancellation must not be reported")
		}
	})
}

func TestRouterShortLinks(t *testing.T) {
	ctx := context.Background()

	t.Run("expands once and re-classifies", func(t *testing.T) {
		catalogs, _, spotify := newFixture(t)
		rt := tu.NewMockRoundTripper(redirectResponse(http.StatusFound, "https://open.spotify.com/track/0VjIjW4GlUZAMYd2vXMi3b?si=1"), nil)
		r := New(catalogs, Options{Client: &http.Client{Transport: rt}})
		tracks := models.NewCollection[models.Track]()

		n, err := r.Open(ctx, "https://spotify.link/AbCdEf", false, LoadTarget{Tracks: tracks}, nil)
		if err != nil || n != 1 {
			t.Fatalf("expected the resolved track, got %d (%v)", n, err)
		}
		if spotify.Lookups("TrackByID") != 1 {
			t.Errorf("expected lookup on the resolved source, got %v", spotify.Log.Entries())
		}
	})

	t.Run("no redirect is a reported failure", func(t *testing.T) {
		catalogs, deezer, _ := newFixture(t)
		rt := tu.NewMockRoundTripper(redirectResponse(http.StatusOK, ""), nil)
		r := New(catalogs, Options{Client: &http.Client{Transport: rt}})
		sink := &recordingSink{}

		_, err := r.Open(ctx, "https://link.deezer.com/s/30de0NbmzCHJ", false, LoadTarget{Tracks: models.NewCollection[models.Track]()}, sink)
		if !errors.Is(err, shared.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if len(sink.all()) != 1 || sink.all()[0].Severity != models.Error {
			t.Errorf("expected an Error report, got %+v", sink.all())
		}
		if deezer.Searches() != 0 {
			t.Error("failed short link must not fall through to search")
		}
	})

	t.Run("redirect to unrecognized URL", func(t *testing.T) {
		catalogs, _, _ := newFixture(t)
		rt := tu.NewMockRoundTripper(redirectResponse(http.StatusMovedPermanently, "https://example.com/landing"), nil)
		r := New(catalogs, Options{Client: &http.Client{Transport: rt}})

		_, err := r.Expand(ctx, Classify("https://spotify.link/xyz"))
		if !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("transport failure", func(t *testing.T) {
		catalogs, _, _ := newFixture(t)
		rt := tu.NewMockRoundTripper(nil, errors.New("dial tcp: no route"))
		r := New(catalogs, Options{Client: &http.Client{Transport: rt}})

		_, err := r.Expand(ctx, Classify("https://spotify.link/xyz"))
		if !errors.Is(err, shared.ErrNetworkFailure) {
			t.Errorf("expected ErrNetworkFailure, got %v", err)
		}
	})
}
