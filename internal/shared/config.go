package shared

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/adrg/xdg"
)

//go:embed config.example.toml
var exampleConf []byte

// Codecs lists the output codecs the transcoder and tag writers understand.
var Codecs = []string{"flac", "mp3", "m4a", "opus", "ogg"}

// DownloadSources lists the catalogs that can deliver audio, the only valid preferred and secondary sources.
var DownloadSources = []string{"qobuz"}

// CheckDownloadSource reports an [ErrInvalidConfig] error when name is not in [DownloadSources].
func CheckDownloadSource(name string) error {
	if !slices.Contains(DownloadSources, strings.ToLower(strings.TrimSpace(name))) {
		return fmt.Errorf("%w: %q cannot download, use one of %v", ErrInvalidConfig, name, DownloadSources)
	}
	return nil
}

// ParseCodec normalizes a codec name and checks it against [Codecs].
func ParseCodec(s string) (string, error) {
	codec := strings.ToLower(strings.TrimSpace(s))
	if !slices.Contains(Codecs, codec) {
		return "", fmt.Errorf("%w: codec %q is not one of %v", ErrUnsupportedFormat, s, Codecs)
	}
	return codec, nil
}

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Database    DatabaseConfig    `toml:"database"`
	Download    DownloadConfig    `toml:"download"`
	Convert     ConvertConfig     `toml:"convert"`
	Network     NetworkConfig     `toml:"network"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
	Qobuz   QobuzConfig   `toml:"qobuz"`
}

// SpotifyConfig contains Spotify API client credentials.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
}

// QobuzConfig contains the Qobuz application id/secret pair and a user auth token.
type QobuzConfig struct {
	AppID     string `toml:"app_id"`
	AppSecret string `toml:"app_secret"`
	UserToken string `toml:"user_token"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// DownloadConfig controls download runs.
type DownloadConfig struct {
	OutputDir          string `toml:"output_dir"`
	Workers            int    `toml:"workers"`
	Preferred          string `toml:"preferred"`
	Secondary          string `toml:"secondary"`
	Codec              string `toml:"codec"`
	Quality            string `toml:"quality"`
	DegradedQuality    string `toml:"degraded_quality"`
	Overwrite          bool   `toml:"overwrite"`
	StrictISRC         bool   `toml:"strict_isrc"`
	AllowVideoFallback bool   `toml:"allow_video_fallback"`
}

// ConvertConfig controls local-file conversion runs.
type ConvertConfig struct {
	Workers    int    `toml:"workers"`
	Codec      string `toml:"codec"`
	Quality    string `toml:"quality"`
	FFmpegPath string `toml:"ffmpeg_path"`
}

// NetworkConfig controls outgoing catalog requests.
type NetworkConfig struct {
	RequestsPerSecond float64  `toml:"requests_per_second"`
	QuotaRetryDelay   Duration `toml:"quota_retry_delay"`
	Timeout           Duration `toml:"timeout"`
}

// Duration wraps [time.Duration] so it can be written as "5s" in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("%w: bad duration %q", ErrInvalidConfig, text)
	}
	d.Duration = v
	return nil
}

// MarshalText implements [encoding.TextMarshaler].
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Values missing from the file keep their defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	config.applyDefaults()

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	config.applyDefaults()
	return &config
}

func (c *Config) applyDefaults() {
	if c.Download.OutputDir == "" {
		c.Download.OutputDir = filepath.Join(xdg.UserDirs.Music, "tunedl")
	}
	if c.Convert.FFmpegPath == "" {
		c.Convert.FFmpegPath = "ffmpeg"
	}
}

// Validate checks ranges and enumerations, returning an error wrapping [ErrInvalidConfig].
func (c *Config) Validate() error {
	if c.Download.Workers < 1 {
		return fmt.Errorf("%w: download.workers must be at least 1", ErrInvalidConfig)
	}
	if c.Convert.Workers < 1 {
		return fmt.Errorf("%w: convert.workers must be at least 1", ErrInvalidConfig)
	}
	if err := CheckDownloadSource(c.Download.Preferred); err != nil {
		return fmt.Errorf("download.preferred: %w", err)
	}
	if c.Download.Secondary != "" {
		if err := CheckDownloadSource(c.Download.Secondary); err != nil {
			return fmt.Errorf("download.secondary: %w", err)
		}
		if c.Download.Secondary == c.Download.Preferred {
			return fmt.Errorf("%w: download.secondary repeats download.preferred", ErrInvalidConfig)
		}
	}
	if !slices.Contains(Codecs, c.Download.Codec) {
		return fmt.Errorf("%w: download.codec %q is not one of %v", ErrInvalidConfig, c.Download.Codec, Codecs)
	}
	if !slices.Contains(Codecs, c.Convert.Codec) {
		return fmt.Errorf("%w: convert.codec %q is not one of %v", ErrInvalidConfig, c.Convert.Codec, Codecs)
	}
	if c.Network.RequestsPerSecond <= 0 {
		return fmt.Errorf("%w: network.requests_per_second must be positive", ErrInvalidConfig)
	}
	return nil
}

// HasSpotify reports whether Spotify client credentials are present.
func (c *Config) HasSpotify() bool {
	s := c.Credentials.Spotify
	return s.ClientID != "" && s.ClientSecret != "" && s.ClientID != "your_spotify_client_id"
}

// HasQobuz reports whether a Qobuz app id is present. Streaming additionally needs the secret and token.
func (c *Config) HasQobuz() bool {
	q := c.Credentials.Qobuz
	return q.AppID != "" && q.AppID != "your_qobuz_app_id"
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// DefaultConfigPath returns the per-user config file location.
func DefaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, "tunedl", "config.toml")
}
