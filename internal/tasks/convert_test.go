package tasks

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/desertthunder/tunedl/internal/models"
	"github.com/desertthunder/tunedl/internal/shared"
)

type stubTags struct {
	readErr  error
	writeErr error
	written  map[string]models.Metadata
}

func (s *stubTags) ReadLocal(path string) (*models.LocalFile, error) {
	if s.readErr != nil {
		return nil, s.readErr
	}
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return &models.LocalFile{
		Path:     path,
		Track:    models.Track{Source: models.SourceLocal, ID: path, Title: "Local Song", Artists: []string{"Artist"}},
		Metadata: models.Metadata{Title: "Local Song", Artists: []string{"Artist"}},
		Cover:    []byte("jpeg"),
	}, nil
}

func (s *stubTags) WriteFile(path string, meta models.Metadata, _ []byte) error {
	if s.writeErr != nil {
		return s.writeErr
	}
	if s.written == nil {
		s.written = make(map[string]models.Metadata)
	}
	s.written[path] = meta
	return nil
}

func writeInputs(t *testing.T, dir string, names ...string) []string {
	t.Helper()
	var paths []string
	for _, name := range names {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte("audio"), 0644); err != nil {
			t.Fatal(err)
		}
		paths = append(paths, p)
	}
	return paths
}

func TestConverterRun(t *testing.T) {
	mp3 := models.OutputFormat{Codec: "mp3", Quality: "high"}

	t.Run("converts and carries tags", func(t *testing.T) {
		dir := t.TempDir()
		paths := writeInputs(t, dir, "a.flac", "b.flac", "c.flac")
		tags := &stubTags{}
		sink := &recordingSink{}

		c := NewConverter(&stubTranscoder{}, tags, nil, nil)
		summary, err := c.Run(context.Background(), paths, ConvertOptions{Workers: 1, Format: mp3}, sink)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if len(summary.Succeeded) != 3 {
			t.Fatalf("expected 3 successes, got %+v", summary)
		}
		if len(tags.written) != 3 {
			t.Errorf("expected tags on 3 outputs, got %d", len(tags.written))
		}
		for _, u := range sink.Updates() {
			if filepath.Ext(u.Track.LocalPath) != ".mp3" || u.Track.Title != "Local Song" {
				t.Errorf("unexpected update %+v", u)
			}
		}
		if len(sink.completions) != 1 {
			t.Errorf("expected one completion, got %d", len(sink.completions))
		}
	})

	t.Run("output directory", func(t *testing.T) {
		dir, out := t.TempDir(), t.TempDir()
		paths := writeInputs(t, dir, "a.flac")
		sink := &recordingSink{}

		c := NewConverter(&stubTranscoder{}, nil, nil, nil)
		if _, err := c.Run(context.Background(), paths, ConvertOptions{Format: mp3, OutputDir: out}, sink); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if got := sink.Updates()[0].Track.LocalPath; got != filepath.Join(out, "a.mp3") {
			t.Errorf("LocalPath = %s", got)
		}
	})

	t.Run("existing output without overwrite", func(t *testing.T) {
		dir := t.TempDir()
		paths := writeInputs(t, dir, "a.flac", "a.mp3")
		sink := &recordingSink{}

		c := NewConverter(&stubTranscoder{}, nil, nil, nil)
		summary, err := c.Run(context.Background(), paths[:1], ConvertOptions{Format: mp3}, sink)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if len(summary.Failed) != 1 || !strings.Contains(sink.Updates()[0].Message, "already exists") {
			t.Errorf("expected already-exists failure, got %+v", sink.Updates())
		}
	})

	t.Run("failures are per file", func(t *testing.T) {
		dir := t.TempDir()
		paths := append(writeInputs(t, dir, "a.flac"), filepath.Join(dir, "missing.flac"))
		sink := &recordingSink{}

		c := NewConverter(&stubTranscoder{}, nil, nil, nil)
		summary, err := c.Run(context.Background(), paths, ConvertOptions{Workers: 2, Format: mp3}, sink)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if len(summary.Succeeded) != 1 || len(summary.Failed) != 1 {
			t.Errorf("expected one success and one failure, got %+v", summary)
		}
	})

	t.Run("tag write failure is a warning", func(t *testing.T) {
		dir := t.TempDir()
		paths := writeInputs(t, dir, "a.flac")
		sink := &recordingSink{}

		c := NewConverter(&stubTranscoder{}, &stubTags{writeErr: errors.New("no frames")}, nil, nil)
		if _, err := c.Run(context.Background(), paths, ConvertOptions{Format: mp3}, sink); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if u := sink.Updates()[0]; u.Severity != models.Warning {
			t.Errorf("expected warning, got %s", u.Severity)
		}
	})

	t.Run("transcoder failure", func(t *testing.T) {
		dir := t.TempDir()
		paths := writeInputs(t, dir, "a.flac")
		sink := &recordingSink{}

		c := NewConverter(&stubTranscoder{err: shared.ErrUnsupportedFormat}, nil, nil, nil)
		if _, err := c.Run(context.Background(), paths, ConvertOptions{Format: mp3}, sink); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if u := sink.Updates()[0]; u.Severity != models.Error {
			t.Errorf("expected error, got %s", u.Severity)
		}
	})

	t.Run("cancelled transcode is not reported", func(t *testing.T) {
		dir := t.TempDir()
		paths := writeInputs(t, dir, "a.flac")
		sink := &recordingSink{}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		c := NewConverter(&stubTranscoder{err: context.Canceled}, nil, nil, nil)
		summary, err := c.Run(ctx, paths, ConvertOptions{Format: mp3}, sink)
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if len(sink.Updates()) != 0 || !summary.Cancelled {
			t.Errorf("unexpected reports %v", sink.Updates())
		}
	})

	t.Run("rejects unknown codec", func(t *testing.T) {
		c := NewConverter(&stubTranscoder{}, nil, nil, nil)
		_, err := c.Run(context.Background(), nil, ConvertOptions{Format: models.OutputFormat{Codec: "wma"}}, nil)
		if !errors.Is(err, shared.ErrUnsupportedFormat) {
			t.Errorf("expected ErrUnsupportedFormat, got %v", err)
		}
	})

	t.Run("requires a transcoder", func(t *testing.T) {
		_, err := NewConverter(nil, nil, nil, nil).Run(context.Background(), nil, ConvertOptions{Format: mp3}, nil)
		if !errors.Is(err, shared.ErrMissingConfig) {
			t.Errorf("expected ErrMissingConfig, got %v", err)
		}
	})
}
