package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sshoecraft/mmprocess/internal/services"
	"github.com/sshoecraft/mmprocess/internal/supervisor"
	"github.com/sshoecraft/mmprocess/internal/testsupport"
)

func TestReconcileStartsWorkers(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithInstances(2))
	// A name no real process carries keeps the system-wide count at zero.
	cfg.Supervisor.Worker = "mmworker-stub"
	testsupport.StubBinary(t, cfg, "mmworker-stub", "#!/bin/sh\nexit 0\n")
	configPath := writeTestConfig(t, cfg)

	out, _, err := runCLI(t, configPath, "-v")
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	requireContains(t, out, "System: 0 mmworker-stub instance(s) running")
	requireContains(t, out, "Slots: 0/2 managed by mmrun")
	requireContains(t, out, "  Slot 1: free")
	requireContains(t, out, "  Slot 2: free")
	requireContains(t, out, "Started slot 1 (PID ")
	requireContains(t, out, "Started slot 2 (PID ")
	requireContains(t, out, "Started 2 instance(s)")

	for slot := 1; slot <= 2; slot++ {
		if _, err := os.Stat(filepath.Join(cfg.Dirs.Run, fmt.Sprintf("slot-%d.pid", slot))); err != nil {
			t.Fatalf("pid file for slot %d: %v", slot, err)
		}
	}
	if host, err := os.Hostname(); err == nil {
		logName := supervisor.WorkerLogName(host, 2, 1)
		if _, err := os.Stat(filepath.Join(cfg.Dirs.Logs, logName)); err != nil {
			t.Fatalf("slot 1 log: %v", err)
		}
	}
}

func TestReconcileQuietWhenNothingToStart(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithInstances(2))
	cfg.Supervisor.Worker = "mmworker-stub-absent"
	configPath := writeTestConfig(t, cfg)

	out, _, err := runCLI(t, configPath, "-i", "0")
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if out != "" {
		t.Fatalf("quiet reconcile wrote %q", out)
	}

	entries, err := os.ReadDir(cfg.Dirs.Run)
	if err != nil {
		t.Fatalf("read run dir: %v", err)
	}
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".pid") {
			t.Fatalf("unexpected pid file %s", entry.Name())
		}
	}
}

func TestReconcileReportsCapacityWithVerbose(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithInstances(2))
	cfg.Supervisor.Worker = "mmworker-stub-absent"
	configPath := writeTestConfig(t, cfg)

	out, _, err := runCLI(t, configPath, "-v", "-i", "0")
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	requireContains(t, out, "Slots: 0/0 managed by mmrun")
	requireContains(t, out, "Already 0 instance(s) running system-wide, target is 0")
}

func TestReconcileRejectsNegativeInstances(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	configPath := writeTestConfig(t, cfg)

	_, _, err := runCLI(t, configPath, "-i", "-3")
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("err = %v, want ErrConfiguration", err)
	}
}
