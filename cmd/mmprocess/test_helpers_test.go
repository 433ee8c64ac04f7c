package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"github.com/sshoecraft/mmprocess/internal/config"
	"github.com/sshoecraft/mmprocess/internal/jobstate"
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

// seedJob creates a work-area job directory with a source file and a saved
// state record, as a previous worker invocation would have left it.
func seedJob(t *testing.T, cfg *config.Config, root, name string, mutate func(*jobstate.Job)) string {
	t.Helper()
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	jobDir := filepath.Join(root, stem)
	testsupport.WriteFile(t, filepath.Join(jobDir, name), 4096)

	job := jobstate.New(cfg.Encoding.DefaultProfile, nil)
	job.Input.Path = name
	if mutate != nil {
		mutate(job)
	}
	if err := jobstate.Save(jobDir, job); err != nil {
		t.Fatalf("save job state: %v", err)
	}
	return jobDir
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
