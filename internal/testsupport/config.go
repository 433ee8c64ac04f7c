package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sshoecraft/mmprocess/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config rooted in a unique temp directory with the
// full work-area layout created and a default CRF profile installed. It
// applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Dirs.Base = base
	cfgVal.Dirs.In = filepath.Join(base, "in")
	cfgVal.Dirs.Work = filepath.Join(base, "work")
	cfgVal.Dirs.Done = filepath.Join(base, "done")
	cfgVal.Dirs.Error = filepath.Join(base, "error")
	cfgVal.Dirs.Out = filepath.Join(base, "out")
	cfgVal.Dirs.Profiles = filepath.Join(base, "profiles")
	cfgVal.Dirs.Logs = filepath.Join(base, "logs")
	cfgVal.Dirs.Run = filepath.Join(base, "run")
	cfgVal.History.Enabled = false
	cfgVal.History.Path = filepath.Join(base, "history.db")

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := cfgVal.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	if !cfgVal.ProfileExists(cfgVal.Encoding.DefaultProfile) {
		WriteProfile(t, &cfgVal, cfgVal.Encoding.DefaultProfile, "video_crf = 20\n")
	}

	return builder.cfg
}

// WithHistory enables the finished-job ledger on the test config.
func WithHistory() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.History.Enabled = true
	}
}

// WithInstances sets the supervisor's desired worker count.
func WithInstances(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Supervisor.Instances = n
	}
}

// WriteProfile installs a profile file under the config's profiles dir.
func WriteProfile(t testing.TB, cfg *config.Config, name, body string) {
	t.Helper()
	if err := os.MkdirAll(cfg.Dirs.Profiles, 0o755); err != nil {
		t.Fatalf("mkdir profiles: %v", err)
	}
	if err := os.WriteFile(cfg.ProfilePath(name), []byte(body), 0o644); err != nil {
		t.Fatalf("write profile %s: %v", name, err)
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, ffmpeg and ffprobe are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ffmpeg", "ffprobe"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			writeStub(b.t, binDir, name, script)
		}
		prependPath(b.t, binDir)
	}
}

// StubBinary writes an executable shell script with the given body into a
// bin directory on PATH, for tests that need tool output rather than a
// bare exit 0.
func StubBinary(t testing.TB, cfg *config.Config, name, body string) {
	t.Helper()
	binDir := filepath.Join(cfg.Dirs.Base, "bin")
	writeStub(t, binDir, name, []byte(body))
	prependPath(t, binDir)
}

func writeStub(t testing.TB, binDir, name string, script []byte) {
	t.Helper()
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		t.Fatalf("mkdir bin dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(binDir, name), script, 0o755); err != nil {
		t.Fatalf("write stub %s: %v", name, err)
	}
}

func prependPath(t testing.TB, binDir string) {
	t.Helper()
	oldPath := os.Getenv("PATH")
	if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
		t.Fatalf("set PATH: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Setenv("PATH", oldPath)
	})
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return cfg.Dirs.Base
}
