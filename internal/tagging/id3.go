package tagging

import (
	"fmt"

	"github.com/bogem/id3v2/v2"
	"github.com/desertthunder/tunedl/internal/models"
)

// writeID3 writes an ID3v2.4 tag, preserving frames it does not manage.
func writeID3(path string, meta models.Metadata, cover []byte) error {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return fmt.Errorf("failed to open ID3 tag: %w", err)
	}
	defer tag.Close()

	tag.SetVersion(4)
	tag.SetDefaultEncoding(id3v2.EncodingUTF8)

	set := func(id, value string) {
		tag.DeleteFrames(id)
		if value != "" {
			tag.AddTextFrame(id, tag.DefaultEncoding(), value)
		}
	}
	set("TIT2", meta.Title)
	set("TPE1", joinArtists(meta.Artists))
	set("TALB", meta.Album)
	set("TPE2", joinArtists(meta.AlbumArtists))
	set("TCON", joinArtists(meta.Genres))
	set("TDRC", meta.ReleaseDate)
	set("TRCK", numberPair(meta.TrackNumber, meta.TrackTotal))
	set("TPOS", numberPair(meta.DiscNumber, meta.DiscTotal))
	set("TSRC", meta.ISRC)
	set("TPUB", meta.Label)
	set("TCOP", meta.Copyright)

	if meta.UPC != "" {
		tag.AddUserDefinedTextFrame(id3v2.UserDefinedTextFrame{
			Encoding:    id3v2.EncodingUTF8,
			Description: "UPC",
			Value:       meta.UPC,
		})
	}

	if len(cover) > 0 {
		tag.DeleteFrames("APIC")
		tag.AddAttachedPicture(id3v2.PictureFrame{
			Encoding:    id3v2.EncodingUTF8,
			MimeType:    imageMIME(cover),
			PictureType: id3v2.PTFrontCover,
			Description: "Front Cover",
			Picture:     cover,
		})
	}

	if err := tag.Save(); err != nil {
		return fmt.Errorf("failed to save ID3 tag: %w", err)
	}
	return nil
}
