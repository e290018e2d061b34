package tagging

import (
	"fmt"
	"strconv"

	"github.com/desertthunder/tunedl/internal/models"
	"github.com/desertthunder/tunedl/internal/shared"
	"github.com/go-flac/flacpicture"
	"github.com/go-flac/flacvorbis"
	"github.com/go-flac/go-flac"
)

// parseFLAC wraps [flac.ParseFile], which indexes into the audio frames without a length check.
func parseFLAC(path string) (f *flac.File, err error) {
	defer func() {
		if p := recover(); p != nil {
			f, err = nil, fmt.Errorf("%w: malformed FLAC stream: %v", shared.ErrUnsupportedFormat, p)
		}
	}()
	f, err = flac.ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse FLAC file: %w", err)
	}
	return f, nil
}

// writeFLAC replaces the Vorbis comment and picture blocks of a FLAC file.
func writeFLAC(path string, meta models.Metadata, cover []byte) error {
	f, err := parseFLAC(path)
	if err != nil {
		return err
	}

	kept := f.Meta[:0]
	for _, block := range f.Meta {
		if block.Type != flac.VorbisComment && block.Type != flac.Picture {
			kept = append(kept, block)
		}
	}
	f.Meta = kept

	comment := flacvorbis.New()
	add := func(field, value string) {
		if value != "" {
			_ = comment.Add(field, value)
		}
	}
	add(flacvorbis.FIELD_TITLE, meta.Title)
	for _, a := range meta.Artists {
		add(flacvorbis.FIELD_ARTIST, a)
	}
	add(flacvorbis.FIELD_ALBUM, meta.Album)
	add("ALBUMARTIST", joinArtists(meta.AlbumArtists))
	for _, g := range meta.Genres {
		add(flacvorbis.FIELD_GENRE, g)
	}
	add(flacvorbis.FIELD_DATE, meta.ReleaseDate)
	add(flacvorbis.FIELD_ISRC, meta.ISRC)
	add("UPC", meta.UPC)
	add(flacvorbis.FIELD_ORGANIZATION, meta.Label)
	add(flacvorbis.FIELD_COPYRIGHT, meta.Copyright)
	if meta.TrackNumber > 0 {
		add(flacvorbis.FIELD_TRACKNUMBER, strconv.Itoa(meta.TrackNumber))
	}
	if meta.TrackTotal > 0 {
		add("TRACKTOTAL", strconv.Itoa(meta.TrackTotal))
	}
	if meta.DiscNumber > 0 {
		add("DISCNUMBER", strconv.Itoa(meta.DiscNumber))
	}
	if meta.DiscTotal > 0 {
		add("DISCTOTAL", strconv.Itoa(meta.DiscTotal))
	}
	if meta.Explicit {
		add("ITUNESADVISORY", "1")
	}

	block := comment.Marshal()
	f.Meta = append(f.Meta, &block)

	if len(cover) > 0 {
		pic, err := flacpicture.NewFromImageData(flacpicture.PictureTypeFrontCover, "Front Cover", cover, imageMIME(cover))
		if err != nil {
			return fmt.Errorf("failed to create picture block: %w", err)
		}
		picBlock := pic.Marshal()
		f.Meta = append(f.Meta, &picBlock)
	}

	if err := f.Save(path); err != nil {
		return fmt.Errorf("failed to save FLAC file: %w", err)
	}
	return nil
}
