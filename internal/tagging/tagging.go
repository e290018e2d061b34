// package tagging writes canonical catalog metadata into downloaded audio files and reads the tags of local
// files for conversion runs.
package tagging

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tunedl/internal/models"
	"github.com/desertthunder/tunedl/internal/services"
	"github.com/desertthunder/tunedl/internal/shared"
)

// maxCoverSize caps cover art downloads.
const maxCoverSize = 10 << 20

// writer writes meta and an optional cover into the file at path.
type writer func(path string, meta models.Metadata, cover []byte) error

var writers = map[string]writer{
	".flac": writeFLAC,
	".mp3":  writeID3,
	".m4a":  writeMP4,
	".mp4":  writeMP4,
}

// Supported reports whether tags can be written to files with the extension of path.
func Supported(path string) bool {
	_, ok := writers[strings.ToLower(filepath.Ext(path))]
	return ok
}

// WriteFile writes meta and cover into path, choosing the tag format from the file extension.
// Existing title, artist, album, numbering and cover tags are replaced.
func WriteFile(path string, meta models.Metadata, cover []byte) error {
	w, ok := writers[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return fmt.Errorf("%w: cannot tag %s files", shared.ErrUnsupportedFormat, filepath.Ext(path))
	}
	if err := w(path, meta, cover); err != nil {
		return fmt.Errorf("failed to tag %s: %w", filepath.Base(path), err)
	}
	return nil
}

// Updater fetches canonical metadata from a track's origin catalog and writes it into files.
type Updater struct {
	catalogs *services.Catalogs
	client   *http.Client
	logger   *log.Logger
}

// NewUpdater creates an [Updater]. A nil client gets a default with a timeout.
func NewUpdater(catalogs *services.Catalogs, client *http.Client, logger *log.Logger) *Updater {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Updater{catalogs: catalogs, client: client, logger: logger}
}

// Update fetches the record for origin and writes it into path.
//
// Cover art is best effort: a failed download is logged and the tags are written without it.
func (u *Updater) Update(ctx context.Context, origin models.Track, path string) error {
	if !Supported(path) {
		return fmt.Errorf("%w: cannot tag %s files", shared.ErrUnsupportedFormat, filepath.Ext(path))
	}
	if !origin.Source.IsCatalog() {
		return fmt.Errorf("%w: %s has no metadata catalog", shared.ErrUnsupported, origin.Source)
	}

	catalog, err := u.catalogs.Get(origin.Source)
	if err != nil {
		return err
	}
	meta, err := catalog.Metadata(ctx, origin.ID)
	if err != nil {
		return err
	}

	coverURL := meta.CoverURL
	if coverURL == "" {
		coverURL = origin.ImageLocation
	}
	var cover []byte
	if coverURL != "" {
		cover, err = u.fetchCover(ctx, coverURL)
		if err != nil {
			if shared.IsCancelled(err) {
				return err
			}
			u.logger.Warn("failed to fetch cover art", "url", coverURL, "error", err)
		}
	}

	u.logger.Debug("writing tags", "path", path, "source", origin.Source, "id", origin.ID)
	return WriteFile(path, *meta, cover)
}

// WriteFile writes meta into path. It lets an [Updater] stand in wherever tags are carried between files.
func (u *Updater) WriteFile(path string, meta models.Metadata, cover []byte) error {
	return WriteFile(path, meta, cover)
}

// ReadLocal reads the tags of a file on disk. See [ReadLocal].
func (u *Updater) ReadLocal(path string) (*models.LocalFile, error) {
	return ReadLocal(path)
}

func (u *Updater) fetchCover(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	resp, err := u.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", shared.ErrNetworkFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: cover returned status %d", shared.ErrAPIRequest, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxCoverSize))
}

// imageMIME sniffs the image type of cover art.
func imageMIME(data []byte) string {
	if len(data) >= 4 && data[0] == 0x89 && data[1] == 'P' && data[2] == 'N' && data[3] == 'G' {
		return "image/png"
	}
	return "image/jpeg"
}

func joinArtists(artists []string) string {
	return strings.Join(artists, ", ")
}

// numberPair formats n/total the way tag readers expect, omitting the total when unknown.
func numberPair(n, total int) string {
	if n <= 0 {
		return ""
	}
	if total > 0 {
		return fmt.Sprintf("%d/%d", n, total)
	}
	return fmt.Sprintf("%d", n)
}
