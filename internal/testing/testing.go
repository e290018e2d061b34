// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/desertthunder/tunedl/internal/models"
	"github.com/desertthunder/tunedl/internal/services"
	"github.com/desertthunder/tunedl/internal/shared"
)

// CallLog records calls across several mocks in the order they happened.
type CallLog struct {
	mu      sync.Mutex
	entries []string
}

// Add appends an entry.
func (l *CallLog) Add(format string, args ...any) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.entries = append(l.entries, fmt.Sprintf(format, args...))
	l.mu.Unlock()
}

// Entries returns a copy of the log.
func (l *CallLog) Entries() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.entries...)
}

// Count returns how many entries start with prefix.
func (l *CallLog) Count(prefix string) int {
	n := 0
	for _, e := range l.Entries() {
		if strings.HasPrefix(e, prefix) {
			n++
		}
	}
	return n
}

// MockCatalog is an in-memory [services.Catalog].
//
// Searches return SearchResults[query] when present, otherwise every track in Tracks.
// Every call is recorded in Log as "<source>.<Method>:<arg>".
type MockCatalog struct {
	Src             models.Source
	Dial            services.Dialect
	Tracks          []models.Track
	SearchResults   map[string][]models.Track
	Albums          map[string]*models.Album
	Playlists       map[string]*models.Album
	Meta            map[string]*models.Metadata
	ISRCUnsupported bool
	Err             error
	Log             *CallLog

	// OnCall runs before every call, e.g. to cancel a context mid-resolution.
	OnCall func(method, arg string)

	closed bool
}

// NewMockCatalog creates a mock catalog holding tracks.
func NewMockCatalog(src models.Source, log *CallLog, tracks ...models.Track) *MockCatalog {
	if log == nil {
		log = &CallLog{}
	}
	return &MockCatalog{Src: src, Tracks: tracks, Log: log}
}

func (m *MockCatalog) record(ctx context.Context, method, arg string) error {
	m.Log.Add("%s.%s:%s", string(m.Src), method, arg)
	if m.OnCall != nil {
		m.OnCall(method, arg)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.Err
}

func (m *MockCatalog) Source() models.Source {
	return m.Src
}

func (m *MockCatalog) Dialect() services.Dialect {
	return m.Dial
}

func (m *MockCatalog) Close() error {
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *MockCatalog) Closed() bool {
	return m.closed
}

// Searches counts SearchTracks calls on this catalog.
func (m *MockCatalog) Searches() int {
	return m.Lookups("SearchTracks")
}

// ISRCLookups counts TrackByISRC calls on this catalog.
func (m *MockCatalog) ISRCLookups() int {
	return m.Lookups("TrackByISRC")
}

// Lookups counts calls to method on this catalog.
func (m *MockCatalog) Lookups(method string) int {
	return m.Log.Count(string(m.Src) + "." + method + ":")
}

func (m *MockCatalog) SearchTracks(ctx context.Context, query string) ([]models.Track, error) {
	if err := m.record(ctx, "SearchTracks", query); err != nil {
		return nil, err
	}
	if r, ok := m.SearchResults[query]; ok {
		return append([]models.Track(nil), r...), nil
	}
	return append([]models.Track(nil), m.Tracks...), nil
}

func (m *MockCatalog) SearchAlbums(ctx context.Context, query string) ([]models.Album, error) {
	if err := m.record(ctx, "SearchAlbums", query); err != nil {
		return nil, err
	}
	var out []models.Album
	for _, a := range m.Albums {
		out = append(out, *a)
	}
	return out, nil
}

func (m *MockCatalog) TrackByID(ctx context.Context, id string) (*models.Track, error) {
	if err := m.record(ctx, "TrackByID", id); err != nil {
		return nil, err
	}
	for _, t := range m.Tracks {
		if t.ID == id {
			cp := t
			return &cp, nil
		}
	}
	for _, r := range m.SearchResults {
		for _, t := range r {
			if t.ID == id {
				cp := t
				return &cp, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: track %s", shared.ErrNotFound, id)
}

func (m *MockCatalog) TrackByISRC(ctx context.Context, isrc string) (*models.Track, error) {
	if err := m.record(ctx, "TrackByISRC", isrc); err != nil {
		return nil, err
	}
	if m.ISRCUnsupported {
		return nil, shared.ErrUnsupported
	}
	for _, t := range m.Tracks {
		if t.ISRC != "" && t.ISRC == isrc {
			cp := t
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: isrc %s", shared.ErrNotFound, isrc)
}

func (m *MockCatalog) AlbumByID(ctx context.Context, id string) (*models.Album, error) {
	if err := m.record(ctx, "AlbumByID", id); err != nil {
		return nil, err
	}
	if a, ok := m.Albums[id]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, fmt.Errorf("%w: album %s", shared.ErrNotFound, id)
}

func (m *MockCatalog) PlaylistByID(ctx context.Context, id string) (*models.Album, error) {
	if err := m.record(ctx, "PlaylistByID", id); err != nil {
		return nil, err
	}
	if a, ok := m.Playlists[id]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, fmt.Errorf("%w: playlist %s", shared.ErrNotFound, id)
}

func (m *MockCatalog) Metadata(ctx context.Context, id string) (*models.Metadata, error) {
	if err := m.record(ctx, "Metadata", id); err != nil {
		return nil, err
	}
	if md, ok := m.Meta[id]; ok {
		cp := *md
		return &cp, nil
	}
	for _, t := range m.Tracks {
		if t.ID == id {
			return &models.Metadata{Title: t.Title, Artists: t.Artists, Album: t.AlbumName, ISRC: t.ISRC}, nil
		}
	}
	return nil, fmt.Errorf("%w: metadata %s", shared.ErrNotFound, id)
}

// MockDownloader is a [services.Downloader] that writes a small file unless Fail returns an error.
//
// Calls are logged as "<source>.Download:<quality>".
type MockDownloader struct {
	Src models.Source
	Ext string
	Log *CallLog

	// Fail decides the outcome of each call; nil means success.
	Fail func(track models.Track, req services.Request) error
}

func (d *MockDownloader) Source() models.Source { return d.Src }

func (d *MockDownloader) Download(ctx context.Context, track models.Track, req services.Request) (string, error) {
	d.Log.Add("%s.Download:%s", string(d.Src), req.Quality)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if d.Fail != nil {
		if err := d.Fail(track, req); err != nil {
			return "", err
		}
	}
	ext := d.Ext
	if ext == "" {
		ext = ".flac"
	}
	return writeStub(req, ext)
}

func writeStub(req services.Request, ext string) (string, error) {
	path := req.Destination + ext
	if !req.Overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("%w: %s", shared.ErrAlreadyExists, path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", err
	}
	return path, os.WriteFile(path, []byte("audio"), 0644)
}

// MockVideoHost is a [services.VideoHost] with canned search results.
type MockVideoHost struct {
	Results   []services.Video
	SearchErr error
	Log       *CallLog
	Fail      func(v services.Video, req services.Request) error
}

func (v *MockVideoHost) Source() models.Source { return models.SourceYouTube }

func (v *MockVideoHost) Search(ctx context.Context, query string, limit int) ([]services.Video, error) {
	v.Log.Add("youtube.Search:%s", query)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if v.SearchErr != nil {
		return nil, v.SearchErr
	}
	return append([]services.Video(nil), v.Results...), nil
}

func (v *MockVideoHost) DownloadVideo(ctx context.Context, video services.Video, req services.Request) (string, error) {
	v.Log.Add("youtube.Download:%s", video.ID)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if v.Fail != nil {
		if err := v.Fail(video, req); err != nil {
			return "", err
		}
	}
	return writeStub(req, models.CodecExtension(req.Codec))
}

func (v *MockVideoHost) Download(ctx context.Context, track models.Track, req services.Request) (string, error) {
	return v.DownloadVideo(ctx, services.Video{ID: track.ID, Title: track.Title}, req)
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func AssertDirExists(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		t.Errorf("Directory does not exist: %s", path)
		return
	}
	if !info.IsDir() {
		t.Errorf("Path is not a directory: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
