package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateDirs(); err != nil {
		return err
	}
	if err := c.validateSupervisor(); err != nil {
		return err
	}
	if err := c.validateTiers(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateDirs() error {
	if strings.TrimSpace(c.Dirs.Base) == "" {
		return errors.New("dirs.base must be set")
	}
	seen := map[string]string{}
	for key, dir := range map[string]string{
		"in":    c.Dirs.In,
		"work":  c.Dirs.Work,
		"done":  c.Dirs.Done,
		"error": c.Dirs.Error,
		"out":   c.Dirs.Out,
	} {
		if strings.TrimSpace(dir) == "" {
			return fmt.Errorf("dirs.%s must be set", key)
		}
		if other, dup := seen[dir]; dup {
			return fmt.Errorf("dirs.%s and dirs.%s resolve to the same directory %q", key, other, dir)
		}
		seen[dir] = key
	}
	return nil
}

func (c *Config) validateSupervisor() error {
	if c.Supervisor.Instances <= 0 {
		return errors.New("supervisor.instances must be positive")
	}
	if strings.TrimSpace(c.Supervisor.Worker) == "" {
		return errors.New("supervisor.worker must be set")
	}
	return nil
}

func (c *Config) validateTiers() error {
	for name, tier := range c.Tiers {
		if tier.MaxPixels <= 0 {
			return fmt.Errorf("tiers.%s.max_pixels must be positive", name)
		}
		if tier.VideoBitrate < 0 {
			return fmt.Errorf("tiers.%s.video_bitrate must be >= 0", name)
		}
		if tier.VideoCRF < 0 {
			return fmt.Errorf("tiers.%s.video_crf must be >= 0", name)
		}
		if tier.VideoBitrate > 0 && tier.VideoCRF > 0 {
			return fmt.Errorf("tiers.%s: video_bitrate and video_crf are mutually exclusive", name)
		}
	}
	return nil
}
