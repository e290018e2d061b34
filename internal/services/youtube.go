// YouTube [VideoHost] implementation
//
// Search and audio extraction go through yt-dlp via go-ytdlp. The binary must be on PATH.
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tunedl/internal/models"
	"github.com/desertthunder/tunedl/internal/shared"
	"github.com/lrstanley/go-ytdlp"
)

const youtubeWatchURL = "https://www.youtube.com/watch?v="

// youtubeEntry is one element of a flat-playlist search dump.
type youtubeEntry struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Channel  string  `json:"channel"`
	Uploader string  `json:"uploader"`
	Duration float64 `json:"duration"`
	URL      string  `json:"url"`
}

type youtubeSearchDump struct {
	Entries []youtubeEntry `json:"entries"`
}

// YouTubeService implements [VideoHost] on top of yt-dlp.
type YouTubeService struct {
	logger *log.Logger

	// search and extract run yt-dlp. Replaced in tests.
	search  func(ctx context.Context, query string, limit int) (string, error)
	extract func(ctx context.Context, url, output, audioFormat string, overwrite bool) error
}

// NewYouTubeService creates a YouTube video host.
func NewYouTubeService(logger *log.Logger) *YouTubeService {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &YouTubeService{logger: logger, search: ytdlpSearch, extract: ytdlpExtract}
}

func ytdlpSearch(ctx context.Context, query string, limit int) (string, error) {
	res, err := ytdlp.New().
		FlatPlaylist().
		DumpSingleJSON().
		Run(ctx, fmt.Sprintf("ytsearch%d:%s", limit, query))
	if err != nil {
		return "", err
	}
	return res.Stdout, nil
}

func ytdlpExtract(ctx context.Context, url, output, audioFormat string, overwrite bool) error {
	dl := ytdlp.New().
		NoPlaylist().
		ExtractAudio().
		AudioFormat(audioFormat).
		AudioQuality("0").
		Output(output)
	if overwrite {
		dl = dl.ForceOverwrites()
	} else {
		dl = dl.NoOverwrites()
	}
	_, err := dl.Run(ctx, url)
	return err
}

func (y *YouTubeService) Source() models.Source { return models.SourceYouTube }

// Search runs a ytsearchN: query and returns results in host order.
func (y *YouTubeService) Search(ctx context.Context, query string, limit int) ([]Video, error) {
	if limit <= 0 {
		limit = 10
	}
	out, err := y.search(ctx, query, limit)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("youtube: %w: search: %v", shared.ErrNetworkFailure, err)
	}

	var dump youtubeSearchDump
	if err := json.Unmarshal([]byte(out), &dump); err != nil {
		return nil, fmt.Errorf("youtube: failed to decode search results: %w", err)
	}

	videos := make([]Video, 0, len(dump.Entries))
	for _, e := range dump.Entries {
		if e.ID == "" {
			continue
		}
		author := e.Channel
		if author == "" {
			author = e.Uploader
		}
		u := e.URL
		if u == "" || !strings.HasPrefix(u, "http") {
			u = youtubeWatchURL + e.ID
		}
		videos = append(videos, Video{ID: e.ID, Title: e.Title, Author: author, Duration: int(e.Duration), URL: u})
	}
	return videos, nil
}

// audioFormat maps a codec to the --audio-format value.
func audioFormat(codec string) (string, error) {
	switch strings.ToLower(codec) {
	case "", "m4a", "aac":
		return "m4a", nil
	case "mp3", "flac", "opus":
		return strings.ToLower(codec), nil
	case "ogg", "vorbis":
		return "vorbis", nil
	default:
		return "", fmt.Errorf("%w: %s", shared.ErrUnsupportedFormat, codec)
	}
}

// DownloadVideo extracts the audio of v into req.Destination with the requested codec's extension.
func (y *YouTubeService) DownloadVideo(ctx context.Context, v Video, req Request) (string, error) {
	format, err := audioFormat(req.Codec)
	if err != nil {
		return "", err
	}
	path := req.Destination + models.CodecExtension(req.Codec)
	if req.Codec == "" {
		path = req.Destination + ".m4a"
	}

	if !req.Overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("%w: %s", shared.ErrAlreadyExists, path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	u := v.URL
	if u == "" {
		u = youtubeWatchURL + v.ID
	}

	y.logger.Debug("extracting audio", "video", v.ID, "format", format, "path", path)
	if err := y.extract(ctx, u, req.Destination+".%(ext)s", format, req.Overwrite); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("youtube: %w: %v", shared.ErrNetworkFailure, err)
	}

	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("youtube: %w: expected output %s", shared.ErrNotFound, path)
	}
	return path, nil
}

// Download handles tracks that already live on YouTube.
func (y *YouTubeService) Download(ctx context.Context, track models.Track, req Request) (string, error) {
	if track.Source != models.SourceYouTube {
		return "", fmt.Errorf("youtube: %w: cannot download %s track directly", shared.ErrUnsupported, track.Source)
	}
	return y.DownloadVideo(ctx, Video{ID: track.ID, Title: track.Title, Author: track.Artist()}, req)
}

// VideoTrack converts a search result into a [models.Track].
func VideoTrack(v Video) models.Track {
	return models.Track{
		Source:   models.SourceYouTube,
		ID:       v.ID,
		Title:    v.Title,
		Artists:  []string{v.Author},
		Duration: v.Duration,
		AdditionalFields: map[string]any{
			"url": v.URL,
		},
	}
}
