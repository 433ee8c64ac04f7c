package workarea_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sshoecraft/mmprocess/internal/jobstate"
	"github.com/sshoecraft/mmprocess/internal/logging"
	"github.com/sshoecraft/mmprocess/internal/services"
	"github.com/sshoecraft/mmprocess/internal/testsupport"
	"github.com/sshoecraft/mmprocess/internal/workarea"
)

func TestDiscoverPendingLooseAndProfiled(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteProfile(t, cfg, "anime", "video_crf = 18\n")

	loose := testsupport.PendingSource(t, cfg.Dirs.In, "", "Movie One.mkv", 64)
	profiled := testsupport.PendingSource(t, cfg.Dirs.In, "anime", "Show.mkv", 64)
	testsupport.PendingSource(t, cfg.Dirs.In, "nosuchprofile", "Orphan.mkv", 64)
	testsupport.PendingSource(t, cfg.Dirs.In, "", "notes.txt", 16)
	testsupport.PendingSource(t, cfg.Dirs.In, "", ".hidden.mkv", 16)

	manager := workarea.New(cfg, logging.NewNop())
	candidates, err := manager.DiscoverPending()
	if err != nil {
		t.Fatalf("DiscoverPending returned error: %v", err)
	}

	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d: %+v", len(candidates), candidates)
	}
	byPath := map[string]string{}
	for _, c := range candidates {
		byPath[c.Path] = c.Profile
	}
	if byPath[loose] != cfg.Encoding.DefaultProfile {
		t.Fatalf("loose file should use default profile, got %q", byPath[loose])
	}
	if byPath[profiled] != "anime" {
		t.Fatalf("profiled file should use subdirectory profile, got %q", byPath[profiled])
	}
}

func TestClaimNormalizesAndMovesSidecar(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	source := testsupport.PendingSource(t, cfg.Dirs.In, "", "My Movie (2020).MKV", 128)
	testsupport.WriteFile(t, filepath.Join(cfg.Dirs.In, "My Movie (2020).srt"), 16)

	manager := workarea.New(cfg, logging.NewNop())
	jobDir, err := manager.Claim(workarea.Candidate{Path: source, Profile: "default"})
	if err != nil {
		t.Fatalf("Claim returned error: %v", err)
	}

	if filepath.Base(jobDir) != "my_movie_2020" {
		t.Fatalf("unexpected job dir name: %q", jobDir)
	}
	if _, err := os.Stat(filepath.Join(jobDir, "my_movie_2020.mkv")); err != nil {
		t.Fatalf("expected normalized source in job dir: %v", err)
	}
	if _, err := os.Stat(filepath.Join(jobDir, "my_movie_2020.srt")); err != nil {
		t.Fatalf("expected sidecar in job dir: %v", err)
	}
	if _, err := os.Stat(source); !os.IsNotExist(err) {
		t.Fatalf("expected source removed from pending, stat err = %v", err)
	}
}

func TestClaimRefusesActiveDuplicate(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	source := testsupport.PendingSource(t, cfg.Dirs.In, "", "dup.mkv", 64)

	jobDir := filepath.Join(cfg.Dirs.Work, "dup")
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := jobstate.Save(jobDir, jobstate.New("default", nil)); err != nil {
		t.Fatalf("seed state: %v", err)
	}

	manager := workarea.New(cfg, logging.NewNop())
	_, err := manager.Claim(workarea.Candidate{Path: source, Profile: "default"})
	if !errors.Is(err, services.ErrClaim) {
		t.Fatalf("expected claim error, got %v", err)
	}
	if _, statErr := os.Stat(source); statErr != nil {
		t.Fatalf("source must stay pending after failed claim: %v", statErr)
	}
}

func TestDiscoverInProgressRequiresState(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	withState := filepath.Join(cfg.Dirs.Work, "resumable")
	if err := os.MkdirAll(withState, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := jobstate.Save(withState, jobstate.New("default", nil)); err != nil {
		t.Fatalf("seed state: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(cfg.Dirs.Work, "interrupted_claim"), 0o755); err != nil {
		t.Fatal(err)
	}

	manager := workarea.New(cfg, logging.NewNop())
	jobDirs, err := manager.DiscoverInProgress()
	if err != nil {
		t.Fatalf("DiscoverInProgress returned error: %v", err)
	}
	if len(jobDirs) != 1 || jobDirs[0] != withState {
		t.Fatalf("expected only the stateful dir, got %v", jobDirs)
	}
}

func TestFinalizeMovesWholeDirectory(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	source := testsupport.PendingSource(t, cfg.Dirs.In, "", "finish.mkv", 64)

	manager := workarea.New(cfg, logging.NewNop())
	jobDir, err := manager.Claim(workarea.Candidate{Path: source, Profile: "default"})
	if err != nil {
		t.Fatalf("Claim returned error: %v", err)
	}
	if err := jobstate.Save(jobDir, jobstate.New("default", nil)); err != nil {
		t.Fatalf("seed state: %v", err)
	}

	target, err := manager.Finalize(jobDir, workarea.OutcomeDone)
	if err != nil {
		t.Fatalf("Finalize returned error: %v", err)
	}
	if target != filepath.Join(cfg.Dirs.Done, "finish") {
		t.Fatalf("unexpected target: %q", target)
	}
	if _, err := os.Stat(filepath.Join(target, "finish.mkv")); err != nil {
		t.Fatalf("expected payload in done dir: %v", err)
	}
	if _, err := os.Stat(jobDir); !os.IsNotExist(err) {
		t.Fatalf("expected work dir gone, stat err = %v", err)
	}
}

func TestFinalizeRefusesClobber(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	jobDir := filepath.Join(cfg.Dirs.Work, "taken")
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(cfg.Dirs.Error, "taken"), 0o755); err != nil {
		t.Fatal(err)
	}

	manager := workarea.New(cfg, logging.NewNop())
	_, err := manager.Finalize(jobDir, workarea.OutcomeError)
	if !errors.Is(err, workarea.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	if _, statErr := os.Stat(jobDir); statErr != nil {
		t.Fatalf("job dir must survive refused finalize: %v", statErr)
	}
}

func TestRequeueFromErrorArea(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	failed := filepath.Join(cfg.Dirs.Error, "retry_me")
	testsupport.WriteFile(t, filepath.Join(failed, "retry_me.mkv"), 64)

	manager := workarea.New(cfg, logging.NewNop())
	target, err := manager.Requeue("retry_me")
	if err != nil {
		t.Fatalf("Requeue returned error: %v", err)
	}
	if target != filepath.Join(cfg.Dirs.Work, "retry_me") {
		t.Fatalf("unexpected target: %q", target)
	}

	if _, err := manager.Requeue("retry_me"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not-found for second requeue, got %v", err)
	}
}

func TestStopSentinel(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	manager := workarea.New(cfg, logging.NewNop())

	if manager.StopRequested() {
		t.Fatal("fresh work area must not request stop")
	}
	if err := manager.RequestStop(); err != nil {
		t.Fatalf("RequestStop returned error: %v", err)
	}
	if !manager.StopRequested() {
		t.Fatal("expected stop requested after sentinel creation")
	}
	if err := manager.ClearStop(); err != nil {
		t.Fatalf("ClearStop returned error: %v", err)
	}
	if manager.StopRequested() {
		t.Fatal("expected stop cleared")
	}
	if err := manager.ClearStop(); err != nil {
		t.Fatalf("ClearStop on missing sentinel returned error: %v", err)
	}
}
