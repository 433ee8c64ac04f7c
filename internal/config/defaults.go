package config

const (
	defaultBaseDir       = "~/mmprocess"
	defaultHistoryPath   = "~/.local/state/mmprocess/history.db"
	defaultLogFormat     = "console"
	defaultLogLevel      = "info"
	defaultProfile       = "default"
	defaultAudioLanguage = "eng"
	defaultWorkerBinary  = "mmprocess"
	defaultInstances     = 1
	defaultTierSDPixels  = 921600
	defaultTierHDPixels  = 2073600
	defaultTierUHDPixels = 8294400
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Dirs: Dirs{
			Base:     defaultBaseDir,
			In:       "in",
			Work:     "work",
			Done:     "done",
			Error:    "error",
			Out:      "out",
			Profiles: "profiles",
			Logs:     "logs",
			Run:      "run",
		},
		Tools: Tools{
			FFmpeg:  "ffmpeg",
			FFprobe: "ffprobe",
		},
		Encoding: Encoding{
			DefaultProfile: defaultProfile,
			AudioLanguage:  defaultAudioLanguage,
		},
		Supervisor: Supervisor{
			Instances: defaultInstances,
			Worker:    defaultWorkerBinary,
		},
		History: History{
			Enabled: true,
			Path:    defaultHistoryPath,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Tiers: defaultTiers(),
	}
}

func defaultTiers() map[string]Tier {
	return map[string]Tier{
		"sd":  {MaxPixels: defaultTierSDPixels},
		"hd":  {MaxPixels: defaultTierHDPixels},
		"uhd": {MaxPixels: defaultTierUHDPixels},
	}
}
