package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizeDirs(); err != nil {
		return err
	}
	if err := c.normalizeHistory(); err != nil {
		return err
	}
	c.normalizeEncoding()
	c.normalizeSupervisor()
	c.normalizeLogging()
	c.normalizeTiers()
	return nil
}

func (c *Config) normalizeDirs() error {
	var err error
	if strings.TrimSpace(c.Dirs.Base) == "" {
		c.Dirs.Base = defaultBaseDir
	}
	if c.Dirs.Base, err = expandPath(c.Dirs.Base); err != nil {
		return fmt.Errorf("dirs.base: %w", err)
	}

	resolve := func(key string, value *string, fallback string) error {
		v := strings.TrimSpace(*value)
		if v == "" {
			v = fallback
		}
		if !filepath.IsAbs(v) && !strings.HasPrefix(v, "~") {
			*value = filepath.Join(c.Dirs.Base, v)
			return nil
		}
		expanded, err := expandPath(v)
		if err != nil {
			return fmt.Errorf("dirs.%s: %w", key, err)
		}
		*value = expanded
		return nil
	}

	for _, entry := range []struct {
		key      string
		value    *string
		fallback string
	}{
		{"in", &c.Dirs.In, "in"},
		{"work", &c.Dirs.Work, "work"},
		{"done", &c.Dirs.Done, "done"},
		{"error", &c.Dirs.Error, "error"},
		{"out", &c.Dirs.Out, "out"},
		{"profiles", &c.Dirs.Profiles, "profiles"},
		{"logs", &c.Dirs.Logs, "logs"},
		{"run", &c.Dirs.Run, "run"},
	} {
		if err := resolve(entry.key, entry.value, entry.fallback); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) normalizeHistory() error {
	var err error
	if strings.TrimSpace(c.History.Path) == "" {
		c.History.Path = defaultHistoryPath
	}
	if c.History.Path, err = expandPath(c.History.Path); err != nil {
		return fmt.Errorf("history.path: %w", err)
	}
	return nil
}

func (c *Config) normalizeEncoding() {
	c.Encoding.DefaultProfile = strings.TrimSpace(c.Encoding.DefaultProfile)
	if c.Encoding.DefaultProfile == "" {
		c.Encoding.DefaultProfile = defaultProfile
	}
	c.Encoding.AudioLanguage = strings.ToLower(strings.TrimSpace(c.Encoding.AudioLanguage))
	if c.Encoding.AudioLanguage == "" {
		c.Encoding.AudioLanguage = defaultAudioLanguage
	}
}

func (c *Config) normalizeSupervisor() {
	if c.Supervisor.Instances <= 0 {
		c.Supervisor.Instances = defaultInstances
	}
	c.Supervisor.Worker = strings.TrimSpace(c.Supervisor.Worker)
	if c.Supervisor.Worker == "" {
		c.Supervisor.Worker = defaultWorkerBinary
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (c *Config) normalizeTiers() {
	if len(c.Tiers) == 0 {
		c.Tiers = defaultTiers()
		return
	}
	normalized := make(map[string]Tier, len(c.Tiers))
	for name, tier := range c.Tiers {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" {
			continue
		}
		normalized[key] = tier
	}
	c.Tiers = normalized
}
