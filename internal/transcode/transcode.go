// package transcode converts audio files between codecs by running ffmpeg.
package transcode

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tunedl/internal/models"
	"github.com/desertthunder/tunedl/internal/shared"
)

// Transcoder runs an ffmpeg binary.
type Transcoder struct {
	binary string
	logger *log.Logger
}

// New creates a [Transcoder] for the ffmpeg at binary, which may be a bare name looked up on PATH.
func New(binary string, logger *log.Logger) *Transcoder {
	if binary == "" {
		binary = "ffmpeg"
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Transcoder{binary: binary, logger: logger}
}

// OutputPath is where [Transcoder.Convert] writes input converted to format inside outDir.
func OutputPath(input string, format models.OutputFormat, outDir string) string {
	stem := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	return filepath.Join(outDir, stem+format.Extension())
}

// Convert encodes input as format into outDir and returns the new path.
//
// Output goes to a temporary name and is renamed on success, so a failed or cancelled run never leaves a
// partial file behind. An existing output is replaced.
func (t *Transcoder) Convert(ctx context.Context, input string, format models.OutputFormat, outDir string) (string, error) {
	if _, err := shared.ParseCodec(format.Codec); err != nil {
		return "", err
	}
	output := OutputPath(input, format, outDir)
	if filepath.Clean(output) == filepath.Clean(input) {
		return "", fmt.Errorf("%w: %s is already %s", shared.ErrInvalidArgument, filepath.Base(input), format.Codec)
	}
	if _, err := os.Stat(input); err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrNotFound, err)
	}

	binary, err := exec.LookPath(t.binary)
	if err != nil {
		return "", fmt.Errorf("%w: ffmpeg not found at %q", shared.ErrMissingConfig, t.binary)
	}

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	partial := strings.TrimSuffix(output, format.Extension()) + ".part" + format.Extension()

	args, err := Arguments(input, partial, format)
	if err != nil {
		return "", err
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Stderr = &stderr

	t.logger.Debug("running ffmpeg", "input", input, "output", output, "codec", format.Codec)
	if err := cmd.Run(); err != nil {
		_ = os.Remove(partial)
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		if i := strings.LastIndexByte(msg, '\n'); i >= 0 {
			msg = msg[i+1:]
		}
		return "", fmt.Errorf("ffmpeg failed on %s: %w: %s", filepath.Base(input), err, msg)
	}

	if err := os.Rename(partial, output); err != nil {
		_ = os.Remove(partial)
		return "", fmt.Errorf("failed to move converted file: %w", err)
	}
	return output, nil
}

// Arguments builds the ffmpeg command line for one conversion.
func Arguments(input, output string, format models.OutputFormat) ([]string, error) {
	codec, err := shared.ParseCodec(format.Codec)
	if err != nil {
		return nil, err
	}

	args := []string{"-hide_banner", "-loglevel", "error", "-nostdin", "-y", "-i", input, "-map", "0:a", "-map_metadata", "0"}
	switch codec {
	case "flac":
		args = append(args, "-c:a", "flac", "-compression_level", "8")
	case "mp3":
		args = append(args, "-c:a", "libmp3lame")
		if q := mp3Quality(format.Quality); q != "" {
			args = append(args, "-q:a", q)
		} else {
			args = append(args, "-b:a", "320k")
		}
	case "m4a":
		args = append(args, "-c:a", "aac", "-b:a", bitrate(format.Quality, "256k", "192k", "128k"), "-movflags", "+faststart")
	case "opus":
		args = append(args, "-c:a", "libopus", "-b:a", bitrate(format.Quality, "192k", "128k", "96k"))
	case "ogg":
		q := "5"
		if isHigh(format.Quality) {
			q = "8"
		}
		args = append(args, "-c:a", "libvorbis", "-q:a", q)
	}
	return append(args, output), nil
}

func isHigh(quality string) bool {
	switch strings.ToLower(quality) {
	case "", "lossless", "hires", "hi-res", "high":
		return true
	}
	return false
}

// mp3Quality maps quality names to LAME VBR levels. Lossless and unset use constant 320k.
func mp3Quality(quality string) string {
	switch strings.ToLower(quality) {
	case "high":
		return "0"
	case "medium":
		return "2"
	case "low":
		return "5"
	}
	return ""
}

func bitrate(quality, high, medium, low string) string {
	switch strings.ToLower(quality) {
	case "medium":
		return medium
	case "low":
		return low
	}
	return high
}
