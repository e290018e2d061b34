package models

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/desertthunder/tunedl/internal/shared"
)

func TestTrack(t *testing.T) {
	t.Run("Equal uses source and id only", func(t *testing.T) {
		a := Track{Source: SourceSpotify, ID: "1", Title: "Blinding Lights", Artists: []string{"The Weeknd"}}
		b := Track{Source: SourceSpotify, ID: "1", Title: "Something Else"}
		c := Track{Source: SourceDeezer, ID: "1", Title: "Blinding Lights", Artists: []string{"The Weeknd"}}

		if !a.Equal(b) {
			t.Error("tracks with the same key should be equal regardless of text")
		}
		if a.Equal(c) {
			t.Error("tracks on different sources should not be equal")
		}
	})

	t.Run("Hash is stable per key", func(t *testing.T) {
		a := Track{Source: SourceQobuz, ID: "42", Title: "x"}
		b := Track{Source: SourceQobuz, ID: "42", Title: "y"}
		if a.Hash() != b.Hash() {
			t.Error("expected same hash for same key")
		}
		if a.Hash() == (Track{Source: SourceDeezer, ID: "42"}).Hash() {
			t.Error("expected different hash across sources")
		}
	})

	t.Run("Artist joins", func(t *testing.T) {
		tr := Track{Artists: []string{"Daft Punk", "Pharrell Williams"}}
		if got := tr.Artist(); got != "Daft Punk, Pharrell Williams" {
			t.Errorf("Artist() = %q", got)
		}
	})

	t.Run("Field", func(t *testing.T) {
		tr := Track{AdditionalFields: map[string]any{"genre": "Pop", "bpm": 171}}
		if tr.Field("genre") != "Pop" || tr.Field("bpm") != "171" || tr.Field("missing") != "" {
			t.Errorf("unexpected fields: %q %q", tr.Field("genre"), tr.Field("bpm"))
		}
	})
}

func TestParseSource(t *testing.T) {
	for _, in := range []string{"spotify", " Deezer ", "QOBUZ", "youtube", "local"} {
		if _, err := ParseSource(in); err != nil {
			t.Errorf("ParseSource(%q) failed: %v", in, err)
		}
	}
	if _, err := ParseSource("tidal"); !errors.Is(err, shared.ErrUnrecognizedSource) {
		t.Errorf("expected ErrUnrecognizedSource, got %v", err)
	}
}

func TestSeverity(t *testing.T) {
	if Success.Worse(Warning) != Warning || Error.Worse(Success) != Error {
		t.Error("Worse should pick the more severe value")
	}
	if Warning.String() != "warning" {
		t.Errorf("unexpected string %q", Warning.String())
	}

	t.Run("zero value is none", func(t *testing.T) {
		var sev Severity
		if sev != None || sev.String() != "none" {
			t.Errorf("zero Severity = %s", sev)
		}
		if None.Worse(Success) != Success {
			t.Error("any outcome is worse than none")
		}
	})

	t.Run("json as text", func(t *testing.T) {
		sev := Warning
		data, err := json.Marshal(Track{ID: "1", Result: &sev})
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(string(data), `"result":"warning"`) {
			t.Errorf("unexpected encoding %s", data)
		}
		var back Track
		if err := json.Unmarshal(data, &back); err != nil {
			t.Fatal(err)
		}
		if back.Result == nil || *back.Result != Warning {
			t.Errorf("Result = %v", back.Result)
		}
		if err := json.Unmarshal([]byte(`{"result":"fatal"}`), &back); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}

func TestCodecExtension(t *testing.T) {
	tc := map[string]string{"flac": ".flac", "MP3": ".mp3", "alac": ".m4a", "vorbis": ".ogg", "opus": ".opus"}
	for in, want := range tc {
		if got := CodecExtension(in); got != want {
			t.Errorf("CodecExtension(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCollection(t *testing.T) {
	t.Run("Append Replace Set", func(t *testing.T) {
		c := NewCollection(1, 2)
		if err := c.Append(3); err != nil {
			t.Fatal(err)
		}
		if c.Len() != 3 {
			t.Fatalf("expected 3 items, got %d", c.Len())
		}
		if err := c.Replace(9); err != nil {
			t.Fatal(err)
		}
		if got := c.Snapshot(); len(got) != 1 || got[0] != 9 {
			t.Fatalf("expected [9], got %v", got)
		}
		if err := c.Set(0, 7); err != nil {
			t.Fatal(err)
		}
		if v, ok := c.Get(0); !ok || v != 7 {
			t.Errorf("expected 7, got %v", v)
		}
		if err := c.Set(5, 1); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument for out of range, got %v", err)
		}
	})

	t.Run("Frozen blocks structural edits", func(t *testing.T) {
		c := NewCollection("a", "b")
		if !c.Freeze() {
			t.Fatal("first freeze should succeed")
		}
		if c.Freeze() {
			t.Error("second freeze should report the collection as owned")
		}

		if err := c.Append("c"); !errors.Is(err, shared.ErrCollectionFrozen) {
			t.Errorf("Append: expected ErrCollectionFrozen, got %v", err)
		}
		if err := c.Replace("c"); !errors.Is(err, shared.ErrCollectionFrozen) {
			t.Errorf("Replace: expected ErrCollectionFrozen, got %v", err)
		}
		if err := c.Clear(); !errors.Is(err, shared.ErrCollectionFrozen) {
			t.Errorf("Clear: expected ErrCollectionFrozen, got %v", err)
		}
		if err := c.Set(1, "z"); err != nil {
			t.Errorf("Set should be allowed while frozen: %v", err)
		}

		c.Thaw()
		if err := c.Append("c"); err != nil {
			t.Errorf("Append after thaw: %v", err)
		}
	})

	t.Run("Snapshot is a copy", func(t *testing.T) {
		c := NewCollection(1, 2, 3)
		snap := c.Snapshot()
		snap[0] = 100
		if v, _ := c.Get(0); v != 1 {
			t.Error("modifying a snapshot should not affect the collection")
		}
	})

	t.Run("Concurrent Set", func(t *testing.T) {
		c := NewCollection(make([]int, 100)...)
		c.Freeze()
		var wg sync.WaitGroup
		for i := range 100 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = c.Set(i, i)
			}()
		}
		wg.Wait()
		for i, v := range c.Snapshot() {
			if v != i {
				t.Fatalf("index %d = %d", i, v)
			}
		}
	})
}
