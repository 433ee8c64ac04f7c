package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sshoecraft/mmprocess/internal/config"
	"github.com/sshoecraft/mmprocess/internal/jobstate"
	"github.com/sshoecraft/mmprocess/internal/status"
	"github.com/sshoecraft/mmprocess/internal/testsupport"
)

// progressLine is the shape ffmpeg writes while encoding. At 3600s into a
// 7200s source on pass 1 of 2 at realtime speed, the math below comes out
// to 50% done with three hours left.
const progressLine = "frame= 1000 fps= 25 q=28.0 size= 10240kB time=01:00:00.00 bitrate=1000.0kbits/s speed=1.0x\n"

func seedHalfwayJob(t *testing.T, cfg *config.Config, root string) string {
	t.Helper()
	jobDir := seedActiveJob(t, cfg, root, "movie", func(job *jobstate.Job) {
		job.Output.CurrentPass = 1
		job.Output.TotalPasses = 2
	})
	if err := os.WriteFile(filepath.Join(jobDir, "pass1.log"), []byte(progressLine), 0o644); err != nil {
		t.Fatalf("write pass log: %v", err)
	}
	return jobDir
}

func TestStatusNoActiveJobs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	configPath := writeTestConfig(t, cfg)

	out, _, err := runCLI(t, configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "No active encoding jobs.")
}

func TestStatusPlainOutput(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	configPath := writeTestConfig(t, cfg)

	jobDir := seedHalfwayJob(t, cfg, cfg.Dirs.Work)
	holdLock(t, jobDir)

	out, _, err := runCLI(t, configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	want := fmt.Sprintf("%-42s %-20s %-30s %s", "movie", "pass 1/2 50.0%", "[3 Hours, 0 Mins]", "25fps 1.0x")
	requireContains(t, out, want)
}

func TestStatusSkipsUnlockedJobs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	configPath := writeTestConfig(t, cfg)

	seedHalfwayJob(t, cfg, cfg.Dirs.Work)

	out, _, err := runCLI(t, configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "No active encoding jobs.")
}

func TestStatusJSONOutput(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	configPath := writeTestConfig(t, cfg)

	jobDir := seedHalfwayJob(t, cfg, cfg.Dirs.Work)
	holdLock(t, jobDir)

	out, _, err := runCLI(t, configPath, "--json")
	if err != nil {
		t.Fatalf("status --json: %v", err)
	}

	var jobs []activeJob
	if err := json.Unmarshal([]byte(out), &jobs); err != nil {
		t.Fatalf("unmarshal output: %v\n%s", err, out)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(jobs))
	}
	job := jobs[0]
	if job.Name != "movie" {
		t.Fatalf("name = %q", job.Name)
	}
	if job.Pass != 1 || job.TotalPasses != 2 {
		t.Fatalf("pass = %d/%d", job.Pass, job.TotalPasses)
	}
	if job.Percent != 50 {
		t.Fatalf("percent = %v", job.Percent)
	}
	if job.RemainingSeconds != 10800 {
		t.Fatalf("remaining_seconds = %v", job.RemainingSeconds)
	}
}

func TestStatusJSONEmptyRendersArray(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	configPath := writeTestConfig(t, cfg)

	out, _, err := runCLI(t, configPath, "--json")
	if err != nil {
		t.Fatalf("status --json: %v", err)
	}
	if strings.TrimSpace(out) != "[]" {
		t.Fatalf("expected empty JSON array, got %q", out)
	}
}

func TestStatusWorkdirOverride(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	configPath := writeTestConfig(t, cfg)

	altWork := t.TempDir()
	jobDir := seedHalfwayJob(t, cfg, altWork)
	holdLock(t, jobDir)

	out, _, err := runCLI(t, configPath, "-w", altWork)
	if err != nil {
		t.Fatalf("status -w: %v", err)
	}
	requireContains(t, out, "movie")
	requireContains(t, out, "pass 1/2 50.0%")

	out, _, err = runCLI(t, configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "No active encoding jobs.")
}

func TestRenderActiveTable(t *testing.T) {
	jobs := []status.JobStatus{{
		Name:        "movie",
		Pass:        2,
		TotalPasses: 2,
		Percent:     84.2,
		FPS:         120,
		Speed:       4.8,
		Remaining:   25 * time.Minute,
	}}

	rendered := renderActiveTable(jobs)
	requireContains(t, rendered, "NAME")
	requireContains(t, rendered, "movie")
	requireContains(t, rendered, "2/2")
	requireContains(t, rendered, "84.2%")
	requireContains(t, rendered, "[25 Mins]")
	requireContains(t, rendered, "120fps 4.8x")
}

func TestDisplayNameTruncation(t *testing.T) {
	long := strings.Repeat("a", 45)
	want := strings.Repeat("a", 37) + "..."
	if got := displayName(long); got != want {
		t.Fatalf("displayName(long) = %q, want %q", got, want)
	}
	if got := displayName("movie"); got != "movie" {
		t.Fatalf("displayName(short) = %q", got)
	}
}
