package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_profile.toml
var sampleProfile string

// Profile describes how a job should be transcoded. Profiles live as TOML
// files in dirs.profiles; a pending subdirectory named after one routes its
// files through that profile.
type Profile struct {
	Name          string      `toml:"-"`
	Container     string      `toml:"container"`
	VideoCodec    string      `toml:"video_codec"`
	VideoBitrate  int         `toml:"video_bitrate"`
	VideoCRF      int         `toml:"video_crf"`
	VideoWidth    int         `toml:"video_width"`
	VideoHeight   int         `toml:"video_height"`
	AudioCodec    string      `toml:"audio_codec"`
	AudioChannels int         `toml:"audio_channels"`
	AudioBitrate  int         `toml:"audio_bitrate"`
	MaxSizeMB     int         `toml:"max_size_mb"`
	Steps         []string    `toml:"steps"`
	ExtraArgs     []string    `toml:"extra_args"`
	Smart         SmartSizing `toml:"smart"`
}

// SmartSizing sizes the video bitrate from content duration and resolution
// instead of a fixed target. The bits-per-pixel budget shrinks as resolution
// rises: target_bpp = ref_bpp - (pixels - ref_pixels) * factor / 1000.
type SmartSizing struct {
	Enabled   bool    `toml:"enabled"`
	MBPS      float64 `toml:"mbps"`
	RefBPP    float64 `toml:"ref_bpp"`
	RefPixels int     `toml:"ref_pixels"`
	Factor    float64 `toml:"factor"`
	MinBPP    float64 `toml:"min_bpp"`
	MaxBPP    float64 `toml:"max_bpp"`
	CanGrow   bool    `toml:"can_grow"`
}

// ProfilePath returns where the named profile is stored.
func (c *Config) ProfilePath(name string) string {
	return filepath.Join(c.Dirs.Profiles, name+".toml")
}

// ProfileExists reports whether a profile file with the given name exists.
func (c *Config) ProfileExists(name string) bool {
	if strings.TrimSpace(name) == "" {
		return false
	}
	info, err := os.Stat(c.ProfilePath(name))
	return err == nil && !info.IsDir()
}

// LoadProfile reads, defaults, and validates the named profile.
func (c *Config) LoadProfile(name string) (*Profile, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = c.Encoding.DefaultProfile
	}

	path := c.ProfilePath(name)
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("profile %q not found at %s", name, path)
		}
		return nil, fmt.Errorf("open profile %q: %w", name, err)
	}
	defer file.Close()

	profile := Profile{}
	if err := toml.NewDecoder(file).Decode(&profile); err != nil {
		return nil, fmt.Errorf("parse profile %q: %w", name, err)
	}
	profile.Name = name
	profile.applyDefaults()
	if err := profile.validate(); err != nil {
		return nil, fmt.Errorf("profile %q: %w", name, err)
	}
	return &profile, nil
}

// ListProfiles returns the names of all profiles on disk, sorted.
func (c *Config) ListProfiles() ([]string, error) {
	entries, err := os.ReadDir(c.Dirs.Profiles)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read profiles directory: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".toml") {
			continue
		}
		names = append(names, strings.TrimSuffix(name, ".toml"))
	}
	sort.Strings(names)
	return names, nil
}

func (p *Profile) applyDefaults() {
	if strings.TrimSpace(p.Container) == "" {
		p.Container = "mkv"
	}
	p.Container = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(p.Container), "."))
	p.VideoCodec = strings.TrimSpace(p.VideoCodec)
	if p.VideoCodec == "" {
		p.VideoCodec = "libx264"
	}
	p.AudioCodec = strings.TrimSpace(p.AudioCodec)
	if p.AudioCodec == "" {
		p.AudioCodec = "aac"
	}
	if p.AudioChannels <= 0 {
		p.AudioChannels = 2
	}
	if p.AudioBitrate <= 0 {
		p.AudioBitrate = 160
	}
	if p.Smart.Enabled {
		if p.Smart.MBPS <= 0 {
			p.Smart.MBPS = 1.0
		}
		if p.Smart.RefBPP <= 0 {
			p.Smart.RefBPP = 0.225
		}
		if p.Smart.RefPixels <= 0 {
			p.Smart.RefPixels = 345600
		}
		if p.Smart.Factor <= 0 {
			p.Smart.Factor = 0.000061
		}
	}
	if p.VideoCodec != "copy" && p.VideoBitrate <= 0 && p.VideoCRF <= 0 && !p.Smart.Enabled {
		p.VideoCRF = 20
	}
}

func (p *Profile) validate() error {
	if p.VideoBitrate > 0 && p.VideoCRF > 0 {
		return errors.New("video_bitrate and video_crf are mutually exclusive")
	}
	if p.Smart.Enabled && (p.VideoBitrate > 0 || p.VideoCRF > 0) {
		return errors.New("smart sizing and video_bitrate/video_crf are mutually exclusive")
	}
	if p.VideoBitrate < 0 || p.VideoCRF < 0 || p.AudioBitrate < 0 {
		return errors.New("bitrates and crf must be >= 0")
	}
	if p.VideoWidth < 0 || p.VideoHeight < 0 {
		return errors.New("video dimensions must be >= 0")
	}
	if p.MaxSizeMB < 0 {
		return errors.New("max_size_mb must be >= 0")
	}
	for _, step := range p.Steps {
		switch strings.TrimSpace(step) {
		case "probe", "crop", "calculate", "encode", "mux", "move":
		default:
			return fmt.Errorf("unknown step %q", step)
		}
	}
	return nil
}

// Passes returns how many encode passes this profile requires: one for
// stream copy and CRF encodes, two for bitrate-targeted encodes (fixed or
// smart-sized).
func (p *Profile) Passes() int {
	if p.VideoCodec == "copy" {
		return 1
	}
	if p.VideoBitrate > 0 || p.Smart.Enabled {
		return 2
	}
	return 1
}

// ApplyTier overlays a tier's video parameter overrides on the profile.
// Zero-valued overrides leave the profile untouched. An explicit tier rate
// target replaces smart sizing for the job.
func (p *Profile) ApplyTier(tier Tier) {
	if tier.VideoBitrate > 0 {
		p.VideoBitrate = tier.VideoBitrate
		p.VideoCRF = 0
		p.Smart.Enabled = false
	}
	if tier.VideoCRF > 0 {
		p.VideoCRF = tier.VideoCRF
		p.VideoBitrate = 0
		p.Smart.Enabled = false
	}
	if tier.VideoWidth > 0 {
		p.VideoWidth = tier.VideoWidth
	}
	if tier.VideoHeight > 0 {
		p.VideoHeight = tier.VideoHeight
	}
}

// CreateSampleProfile writes the sample default profile into dir.
func CreateSampleProfile(dir, name string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create profiles directory: %w", err)
	}
	path := filepath.Join(dir, name+".toml")
	if err := os.WriteFile(path, []byte(sampleProfile), 0o644); err != nil {
		return fmt.Errorf("write sample profile: %w", err)
	}
	return nil
}
