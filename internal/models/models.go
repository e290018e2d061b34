// package models defines the data model shared by the resolver, router and download orchestrator
package models

import (
	"fmt"
	"strings"

	"github.com/desertthunder/tunedl/internal/shared"
)

// Source names the catalog or store a [Track] came from.
type Source string

const (
	SourceSpotify Source = "spotify"
	SourceDeezer  Source = "deezer"
	SourceQobuz   Source = "qobuz"
	SourceYouTube Source = "youtube"
	SourceLocal   Source = "local"
)

// ParseSource maps a config or flag value to a [Source].
func ParseSource(s string) (Source, error) {
	switch src := Source(strings.ToLower(strings.TrimSpace(s))); src {
	case SourceSpotify, SourceDeezer, SourceQobuz, SourceYouTube, SourceLocal:
		return src, nil
	default:
		return "", fmt.Errorf("%w: %q", shared.ErrUnrecognizedSource, s)
	}
}

// String returns the display name.
func (s Source) String() string {
	switch s {
	case SourceSpotify:
		return "Spotify"
	case SourceDeezer:
		return "Deezer"
	case SourceQobuz:
		return "Qobuz"
	case SourceYouTube:
		return "YouTube"
	case SourceLocal:
		return "Local"
	default:
		return string(s)
	}
}

// IsCatalog reports whether the source has a structured catalog (search by field, lookup by id).
func (s Source) IsCatalog() bool {
	return s == SourceSpotify || s == SourceDeezer || s == SourceQobuz
}

// Severity is the outcome of a resolution or download attempt.
//
//   - None: no outcome yet, e.g. a cancelled resolution
//   - Success: authoritative identifier (ISRC) match
//   - Warning: approximate, fuzzy or fallback-quality result
//   - Error: no usable result
type Severity int

const (
	None Severity = iota
	Success
	Warning
	Error
)

func (s Severity) String() string {
	switch s {
	case None:
		return "none"
	case Success:
		return "success"
	case Warning:
		return "warning"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// MarshalText implements [encoding.TextMarshaler] so persisted items read "success" rather than 0.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (s *Severity) UnmarshalText(text []byte) error {
	switch string(text) {
	case "none":
		*s = None
	case "success":
		*s = Success
	case "warning":
		*s = Warning
	case "error":
		*s = Error
	default:
		return fmt.Errorf("%w: severity %q", shared.ErrInvalidInput, text)
	}
	return nil
}

// Worse returns the more severe of s and o.
func (s Severity) Worse(o Severity) Severity {
	return max(s, o)
}

// State tracks a work item through a run.
type State string

const (
	StatePending State = "pending"
	StateRunning State = "running"
	StateDone    State = "done"
)

// Track is a single recording on one source.
//
// (Source, ID) identifies a track. Constructed by a catalog response mapper and not modified afterwards,
// except for LocalPath, State and Result which are set once a run has processed it.
type Track struct {
	Source           Source         `json:"source"`
	ID               string         `json:"id"`
	Title            string         `json:"title"`
	Artists          []string       `json:"artists"`
	AlbumName        string         `json:"album"`
	ISRC             string         `json:"isrc,omitempty"`
	Duration         int            `json:"duration"` // seconds
	ReleaseDate      string         `json:"release_date,omitempty"`
	Rank             int            `json:"rank,omitempty"`
	TrackPosition    int            `json:"track_position,omitempty"`
	Explicit         bool           `json:"explicit,omitempty"`
	ImageLocation    string         `json:"image,omitempty"`
	AdditionalFields map[string]any `json:"additional,omitempty"`

	LocalPath string    `json:"local_path,omitempty"`
	State     State     `json:"state,omitempty"`
	Result    *Severity `json:"result,omitempty"`
}

// TrackKey is the identity of a [Track].
type TrackKey struct {
	Source Source
	ID     string
}

// Key returns the (Source, ID) pair.
func (t Track) Key() TrackKey {
	return TrackKey{Source: t.Source, ID: t.ID}
}

// Equal compares identity only; titles and artists are never considered.
func (t Track) Equal(o Track) bool {
	return t.Key() == o.Key()
}

// Hash is the stable persistence key for the track.
func (t Track) Hash() string {
	return shared.StableHash(string(t.Source), t.ID)
}

// Artist returns the artists joined for display.
func (t Track) Artist() string {
	return strings.Join(t.Artists, ", ")
}

// Field returns an entry from AdditionalFields as a string.
func (t Track) Field(name string) string {
	if t.AdditionalFields == nil {
		return ""
	}
	switch v := t.AdditionalFields[name].(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func (t Track) String() string {
	return fmt.Sprintf("%s - %s [%s:%s]", t.Artist(), t.Title, t.Source, t.ID)
}

// Album is an album or playlist expanded with its ordered tracks.
type Album struct {
	Source        Source   `json:"source"`
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Artists       []string `json:"artists"`
	UPC           string   `json:"upc,omitempty"`
	ReleaseDate   string   `json:"release_date,omitempty"`
	Explicit      bool     `json:"explicit,omitempty"`
	ImageLocation string   `json:"image,omitempty"`
	Tracks        []Track  `json:"tracks"`
	TrackCount    int      `json:"track_count"`
	Playlist      bool     `json:"playlist,omitempty"`
}

// Key returns the (Source, ID) pair.
func (a Album) Key() TrackKey {
	return TrackKey{Source: a.Source, ID: a.ID}
}

// Artist returns the artists joined for display.
func (a Album) Artist() string {
	return strings.Join(a.Artists, ", ")
}

// Metadata is the canonical record written into a downloaded file's tags.
type Metadata struct {
	Title        string
	Artists      []string
	Album        string
	AlbumArtists []string
	Genres       []string
	ISRC         string
	UPC          string
	ReleaseDate  string
	TrackNumber  int
	TrackTotal   int
	DiscNumber   int
	DiscTotal    int
	CoverURL     string
	Explicit     bool
	Label        string
	Copyright    string
}

// Year returns the leading four digits of ReleaseDate, or "".
func (m Metadata) Year() string {
	if len(m.ReleaseDate) >= 4 {
		return m.ReleaseDate[:4]
	}
	return ""
}

// OutputFormat is the desired codec and quality of a finished download.
type OutputFormat struct {
	Codec   string `json:"codec"`
	Quality string `json:"quality"`
}

// Extension returns the file extension for the codec, including the dot.
func (f OutputFormat) Extension() string {
	return CodecExtension(f.Codec)
}

// CodecExtension maps a codec name to its file extension.
func CodecExtension(codec string) string {
	switch strings.ToLower(codec) {
	case "flac":
		return ".flac"
	case "mp3":
		return ".mp3"
	case "m4a", "aac", "alac":
		return ".m4a"
	case "opus":
		return ".opus"
	case "ogg", "vorbis":
		return ".ogg"
	default:
		return "." + strings.ToLower(codec)
	}
}

// WorkItem is one entry of a run: a track at a stable index plus where and how it should land.
type WorkItem struct {
	ID     string       `json:"id"`
	Index  int          `json:"index"`
	Track  Track        `json:"track"`
	Target Source       `json:"target"`
	Format OutputFormat `json:"format"`
}

// NewWorkItem creates a [WorkItem] with a fresh id.
func NewWorkItem(index int, track Track, target Source, format OutputFormat) WorkItem {
	return WorkItem{ID: shared.GenerateID(), Index: index, Track: track, Target: target, Format: format}
}

// LocalFile is an audio file on disk together with the tags read from it.
type LocalFile struct {
	Path     string
	Track    Track
	Metadata Metadata
	Cover    []byte
}
