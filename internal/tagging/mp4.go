package tagging

import (
	"fmt"

	"github.com/desertthunder/tunedl/internal/models"
	"github.com/zhaarey/go-mp4tag"
)

func writeMP4(path string, meta models.Metadata, cover []byte) error {
	t := &mp4tag.MP4Tags{
		Title:       meta.Title,
		Artist:      joinArtists(meta.Artists),
		Album:       meta.Album,
		AlbumArtist: joinArtists(meta.AlbumArtists),
		Date:        meta.ReleaseDate,
		Copyright:   meta.Copyright,
		Publisher:   meta.Label,
		TrackNumber: int16(meta.TrackNumber),
		TrackTotal:  int16(meta.TrackTotal),
		DiscNumber:  int16(meta.DiscNumber),
		DiscTotal:   int16(meta.DiscTotal),
		Custom:      map[string]string{},
	}
	if len(meta.Genres) > 0 {
		t.CustomGenre = meta.Genres[0]
	}
	if meta.ISRC != "" {
		t.Custom["ISRC"] = meta.ISRC
	}
	if meta.UPC != "" {
		t.Custom["UPC"] = meta.UPC
	}
	if meta.Label != "" {
		t.Custom["LABEL"] = meta.Label
	}
	if meta.Explicit {
		t.ItunesAdvisory = mp4tag.ItunesAdvisoryExplicit
	} else {
		t.ItunesAdvisory = mp4tag.ItunesAdvisoryNone
	}
	if len(cover) > 0 {
		format := mp4tag.ImageTypeJPEG
		if imageMIME(cover) == "image/png" {
			format = mp4tag.ImageTypePNG
		}
		t.Pictures = []*mp4tag.MP4Picture{{Format: format, Data: cover}}
	}

	mp4, err := mp4tag.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open MP4 container: %w", err)
	}
	defer mp4.Close()

	if err := mp4.Write(t, []string{}); err != nil {
		return fmt.Errorf("failed to write MP4 tags: %w", err)
	}
	return nil
}
