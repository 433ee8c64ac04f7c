package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Dirs contains the work-area directory layout. Relative entries are
// resolved against Base during normalization.
type Dirs struct {
	Base     string `toml:"base"`
	In       string `toml:"in"`
	Work     string `toml:"work"`
	Done     string `toml:"done"`
	Error    string `toml:"error"`
	Out      string `toml:"out"`
	Profiles string `toml:"profiles"`
	Logs     string `toml:"logs"`
	Run      string `toml:"run"`
}

// Tools contains the external binaries the pipeline shells out to.
type Tools struct {
	FFmpeg  string `toml:"ffmpeg"`
	FFprobe string `toml:"ffprobe"`
}

// Encoding contains profile selection and track selection defaults.
type Encoding struct {
	DefaultProfile string `toml:"default_profile"`
	AudioLanguage  string `toml:"audio_language"`
}

// Supervisor contains slot supervisor settings.
type Supervisor struct {
	Instances int    `toml:"instances"`
	Worker    string `toml:"worker"`
}

// History contains settings for the host-local finished-job ledger.
type History struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Tier describes a resolution class: the pixel ceiling that selects it and
// the video parameter overrides it applies on top of the active profile.
type Tier struct {
	MaxPixels    int64 `toml:"max_pixels"`
	VideoBitrate int   `toml:"video_bitrate"`
	VideoCRF     int   `toml:"video_crf"`
	VideoWidth   int   `toml:"video_width"`
	VideoHeight  int   `toml:"video_height"`
}

// Config encapsulates all configuration values for mmprocess.
//
// Sections:
//   - Dirs: pending/work/done/error/out layout plus profiles, logs, and run state
//   - Tools: ffmpeg and ffprobe binaries
//   - Encoding: default profile name
//   - Supervisor: desired instance count and worker binary
//   - History: host-local finished-job ledger
//   - Logging: log format and level
//   - Tiers: resolution classes applied after probing
type Config struct {
	Dirs       Dirs            `toml:"dirs"`
	Tools      Tools           `toml:"tools"`
	Encoding   Encoding        `toml:"encoding"`
	Supervisor Supervisor      `toml:"supervisor"`
	History    History         `toml:"history"`
	Logging    Logging         `toml:"logging"`
	Tiers      map[string]Tier `toml:"tiers"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/mmprocess/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. The boolean reports
// whether a file was actually read.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("mmprocess.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the work-area directories a worker needs.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{
		c.Dirs.In, c.Dirs.Work, c.Dirs.Done, c.Dirs.Error,
		c.Dirs.Out, c.Dirs.Profiles, c.Dirs.Logs, c.Dirs.Run,
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// FFmpegBinary returns the ffmpeg executable to invoke.
func (c *Config) FFmpegBinary() string {
	if bin := strings.TrimSpace(c.Tools.FFmpeg); bin != "" {
		return bin
	}
	return "ffmpeg"
}

// FFprobeBinary returns the ffprobe executable used for media inspection.
func (c *Config) FFprobeBinary() string {
	if bin := strings.TrimSpace(c.Tools.FFprobe); bin != "" {
		return bin
	}
	return "ffprobe"
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
