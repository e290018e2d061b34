package tagging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/desertthunder/tunedl/internal/models"
	"github.com/desertthunder/tunedl/internal/shared"
	"github.com/dhowden/tag"
)

// ReadLocal reads the tags of an audio file into a [models.SourceLocal] track.
//
// The track id is the path. Files without a title tag use their base name.
func ReadLocal(path string) (*models.LocalFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrNotFound, err)
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", shared.ErrUnsupportedFormat, filepath.Base(path), err)
	}

	title := m.Title()
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	var artists []string
	if m.Artist() != "" {
		artists = splitArtists(m.Artist())
	}
	var albumArtists []string
	if m.AlbumArtist() != "" {
		albumArtists = splitArtists(m.AlbumArtist())
	}
	var genres []string
	if m.Genre() != "" {
		genres = []string{m.Genre()}
	}
	trackN, trackTotal := m.Track()
	discN, discTotal := m.Disc()
	isrc := rawString(m.Raw(), "isrc", "TSRC", "ISRC")

	meta := models.Metadata{
		Title:        title,
		Artists:      artists,
		Album:        m.Album(),
		AlbumArtists: albumArtists,
		Genres:       genres,
		ISRC:         isrc,
		TrackNumber:  trackN,
		TrackTotal:   trackTotal,
		DiscNumber:   discN,
		DiscTotal:    discTotal,
	}
	if y := m.Year(); y > 0 {
		meta.ReleaseDate = fmt.Sprintf("%04d", y)
	}

	lf := &models.LocalFile{
		Path: path,
		Track: models.Track{
			Source:        models.SourceLocal,
			ID:            path,
			Title:         title,
			Artists:       artists,
			AlbumName:     m.Album(),
			ISRC:          isrc,
			ReleaseDate:   meta.ReleaseDate,
			TrackPosition: trackN,
			LocalPath:     path,
		},
		Metadata: meta,
	}
	if pic := m.Picture(); pic != nil {
		lf.Cover = pic.Data
	}
	return lf, nil
}

// splitArtists splits on the separators written by [WriteFile] and common tag editors.
func splitArtists(s string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' || r == '/' }) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func rawString(raw map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := raw[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}
