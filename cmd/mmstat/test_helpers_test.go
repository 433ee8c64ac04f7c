package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"github.com/sshoecraft/mmprocess/internal/config"
	"github.com/sshoecraft/mmprocess/internal/joblock"
	"github.com/sshoecraft/mmprocess/internal/jobstate"
	"github.com/sshoecraft/mmprocess/internal/logging"
	"github.com/sshoecraft/mmprocess/internal/testsupport"
)

// writeTestConfig serializes cfg to a file the CLI can load with -c.
func writeTestConfig(t *testing.T, cfg *config.Config) string {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func runCLI(t *testing.T, configPath string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", configPath}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

// seedActiveJob lays out a job directory under root with a source file and
// a saved state record, returning the job directory path.
func seedActiveJob(t *testing.T, cfg *config.Config, root, name string, mutate func(*jobstate.Job)) string {
	t.Helper()
	jobDir := filepath.Join(root, name)
	testsupport.WriteFile(t, filepath.Join(jobDir, name+".mkv"), 4096)
	job := jobstate.New(cfg.Encoding.DefaultProfile, nil)
	job.Input.Path = name + ".mkv"
	job.Input.Duration = 7200
	if mutate != nil {
		mutate(job)
	}
	if err := jobstate.Save(jobDir, job); err != nil {
		t.Fatalf("save state: %v", err)
	}
	return jobDir
}

// holdLock takes the job's lock for the remainder of the test, standing in
// for a worker mid-encode.
func holdLock(t *testing.T, jobDir string) {
	t.Helper()
	handle, err := joblock.New(logging.NewNop(), "mmstat-test").Acquire(jobDir)
	if err != nil {
		t.Fatalf("acquire lock: %v", err)
	}
	t.Cleanup(func() {
		if err := handle.Release(); err != nil {
			t.Errorf("release lock: %v", err)
		}
	})
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
