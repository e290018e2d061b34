package services

import (
	"context"
	"errors"
	"testing"

	"github.com/desertthunder/tunedl/internal/models"
	"github.com/desertthunder/tunedl/internal/shared"
)

type stubCatalog struct {
	src    models.Source
	closes int
}

func (s *stubCatalog) Source() models.Source { return s.src }
func (s *stubCatalog) Dialect() Dialect      { return DialectFreeText }
func (s *stubCatalog) Close() error          { s.closes++; return nil }

func (s *stubCatalog) SearchTracks(context.Context, string) ([]models.Track, error) { return nil, nil }
func (s *stubCatalog) SearchAlbums(context.Context, string) ([]models.Album, error) { return nil, nil }
func (s *stubCatalog) TrackByID(context.Context, string) (*models.Track, error)     { return nil, nil }
func (s *stubCatalog) TrackByISRC(context.Context, string) (*models.Track, error)   { return nil, nil }
func (s *stubCatalog) AlbumByID(context.Context, string) (*models.Album, error)     { return nil, nil }
func (s *stubCatalog) PlaylistByID(context.Context, string) (*models.Album, error)  { return nil, nil }
func (s *stubCatalog) Metadata(context.Context, string) (*models.Metadata, error)   { return nil, nil }

type stubDownloadCatalog struct {
	stubCatalog
}

func (s *stubDownloadCatalog) Download(context.Context, models.Track, Request) (string, error) {
	return "", nil
}

func TestCatalogs(t *testing.T) {
	t.Run("Get unknown source", func(t *testing.T) {
		r := NewCatalogs()
		if _, err := r.Get(models.SourceDeezer); !errors.Is(err, shared.ErrUnrecognizedSource) {
			t.Errorf("expected ErrUnrecognizedSource, got %v", err)
		}
		if _, err := r.Downloader(models.SourceDeezer); !errors.Is(err, shared.ErrNoDownloader) {
			t.Errorf("expected ErrNoDownloader, got %v", err)
		}
		if r.VideoHost() != nil {
			t.Error("expected no video host")
		}
	})

	t.Run("Register", func(t *testing.T) {
		r := NewCatalogs()
		deezer := &stubCatalog{src: models.SourceDeezer}
		qobuz := &stubDownloadCatalog{stubCatalog{src: models.SourceQobuz}}
		r.Register(deezer)
		r.Register(qobuz)

		if c, err := r.Get(models.SourceDeezer); err != nil || c != deezer {
			t.Errorf("expected deezer catalog, got %v (%v)", c, err)
		}
		if _, err := r.Downloader(models.SourceDeezer); !errors.Is(err, shared.ErrNoDownloader) {
			t.Error("a plain catalog must not register as a downloader")
		}
		if d, err := r.Downloader(models.SourceQobuz); err != nil || d != qobuz {
			t.Errorf("expected qobuz downloader, got %v (%v)", d, err)
		}

		got := r.Sources()
		if len(got) != 2 || got[0] != models.SourceDeezer || got[1] != models.SourceQobuz {
			t.Errorf("expected sorted sources, got %v", got)
		}
	})

	t.Run("SetVideoHost", func(t *testing.T) {
		r := NewCatalogs()
		yt := NewYouTubeService(nil)
		r.SetVideoHost(yt)
		if r.VideoHost() != yt {
			t.Error("expected video host")
		}
		if d, err := r.Downloader(models.SourceYouTube); err != nil || d != yt {
			t.Errorf("expected youtube downloader, got %v (%v)", d, err)
		}
	})

	t.Run("Close closes each capability once", func(t *testing.T) {
		r := NewCatalogs()
		qobuz := &stubDownloadCatalog{stubCatalog{src: models.SourceQobuz}}
		r.Register(qobuz)
		r.RegisterDownloader(qobuz)

		if err := r.Close(); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if qobuz.closes != 1 {
			t.Errorf("expected 1 close, got %d", qobuz.closes)
		}
		if len(r.Sources()) != 0 {
			t.Error("expected registry to be empty after close")
		}
	})
}
