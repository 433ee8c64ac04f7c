package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/sshoecraft/mmprocess/internal/config"
	"github.com/sshoecraft/mmprocess/internal/ffmpeg"
	"github.com/sshoecraft/mmprocess/internal/jobstate"
	"github.com/sshoecraft/mmprocess/internal/logging"
	"github.com/sshoecraft/mmprocess/internal/media/ffprobe"
	"github.com/sshoecraft/mmprocess/internal/services"
	"github.com/sshoecraft/mmprocess/internal/testsupport"
)

// movieProbe is a canned inspection result: one 1080p video track and one
// English 5.1 audio track.
func movieProbe() ffprobe.Result {
	return ffprobe.Result{
		Format: ffprobe.Format{
			FormatName: "matroska,webm",
			Duration:   "5400.000000",
			Size:       "734003200",
		},
		Streams: []ffprobe.Stream{
			{Index: 0, CodecType: "video", CodecName: "h264", Width: 1920, Height: 1080, AvgFrameRate: "24000/1001"},
			{Index: 1, CodecType: "audio", CodecName: "ac3", Channels: 6, BitRate: "384000", Tags: ffprobe.Tags{Language: "eng"}},
		},
	}
}

// fakeTools replaces the executor's external tool seams: probing returns
// movieProbe, crop detection finds nothing, and encode passes write the
// output file without running anything.
func fakeTools(t *testing.T, e *Executor) *passRecorder {
	t.Helper()
	rec := &passRecorder{t: t}
	e.probe = func(ctx context.Context, binary, path string) (ffprobe.Result, error) {
		return movieProbe(), nil
	}
	e.detectCrop = func(ctx context.Context, binary, path string, duration float64) (ffmpeg.Crop, bool, error) {
		return ffmpeg.Crop{}, false, nil
	}
	e.runPass = rec.run
	return rec
}

type passRecorder struct {
	t         *testing.T
	passes    []int
	logNames  []string
	persisted []int
	jobDir    string
	fail      error
	onPass    func(pass int)
}

func (r *passRecorder) run(ctx context.Context, req ffmpeg.Request, pass int, logPath string) error {
	r.passes = append(r.passes, pass)
	r.logNames = append(r.logNames, filepath.Base(logPath))
	if r.jobDir != "" {
		job, err := jobstate.Load(r.jobDir)
		if err != nil {
			r.t.Fatalf("load state during pass: %v", err)
		}
		r.persisted = append(r.persisted, job.Output.CurrentPass)
	}
	if r.onPass != nil {
		r.onPass(pass)
	}
	if r.fail != nil {
		return r.fail
	}
	if pass != 1 {
		testsupport.WriteFile(r.t, req.OutputPath, 1024)
	}
	return nil
}

// startJob lays out a claimed job directory with a source file and a saved
// state record, mirroring what a worker produces right after claiming.
func startJob(t *testing.T, cfg *config.Config, profileName, name string, steps []string) (string, *jobstate.Job) {
	t.Helper()
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	jobDir := filepath.Join(cfg.Dirs.Work, stem)
	testsupport.WriteFile(t, filepath.Join(jobDir, name), 4096)

	enabled, err := jobstate.EnabledFromNames(steps)
	if err != nil {
		t.Fatalf("enabled steps: %v", err)
	}
	job := jobstate.New(profileName, enabled)
	job.Input.Path = name
	if err := jobstate.Save(jobDir, job); err != nil {
		t.Fatalf("save job: %v", err)
	}
	return jobDir, job
}

func TestRunCompletesSinglePassJob(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	jobDir, job := startJob(t, cfg, cfg.Encoding.DefaultProfile, "movie.mkv", nil)

	e := New(cfg, logging.NewNop(), nil)
	rec := fakeTools(t, e)

	outcome, err := e.Run(context.Background(), jobDir, job)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if outcome != OutcomeCompleted {
		t.Fatalf("outcome = %s, want %s", outcome, OutcomeCompleted)
	}

	if want := []int{0}; len(rec.passes) != 1 || rec.passes[0] != want[0] {
		t.Fatalf("passes = %v, want %v", rec.passes, want)
	}
	if rec.logNames[0] != "pass1.log" {
		t.Fatalf("pass log = %s, want pass1.log", rec.logNames[0])
	}

	persisted, err := jobstate.Load(jobDir)
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	if !persisted.Terminal() {
		t.Fatal("expected all enabled steps done")
	}
	if persisted.Error != "" {
		t.Fatalf("unexpected error on record: %s", persisted.Error)
	}
	in := persisted.Input
	if in.VideoWidth != 1920 || in.VideoHeight != 1080 || in.VideoCodec != "h264" {
		t.Fatalf("video metadata not recorded: %+v", in)
	}
	if in.AudioChannels != 6 || in.AudioBitrate != 384000 || in.AudioStream != 1 {
		t.Fatalf("audio metadata not recorded: %+v", in)
	}
	if in.Duration != 5400 || in.Size != 734003200 {
		t.Fatalf("container metadata not recorded: %+v", in)
	}
	out := persisted.Output
	if out.Container != "mkv" || out.VideoCRF != 20 || out.VideoBitrate != 0 {
		t.Fatalf("output parameters = %+v", out)
	}
	if out.TotalPasses != 1 || out.CurrentPass != 1 {
		t.Fatalf("pass counters = %d/%d, want 1/1", out.CurrentPass, out.TotalPasses)
	}

	dest := filepath.Join(cfg.Dirs.Out, "movie.mkv")
	if _, err := os.Stat(dest); err != nil {
		t.Fatalf("final output missing: %v", err)
	}
	if out.Path != dest {
		t.Fatalf("output path = %s, want %s", out.Path, dest)
	}
}

func TestRunTwoPassPersistsPassProgress(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteProfile(t, cfg, "bitrate", "video_bitrate = 2500\n")
	jobDir, job := startJob(t, cfg, "bitrate", "movie.mkv", nil)

	e := New(cfg, logging.NewNop(), nil)
	rec := fakeTools(t, e)
	rec.jobDir = jobDir

	outcome, err := e.Run(context.Background(), jobDir, job)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if outcome != OutcomeCompleted {
		t.Fatalf("outcome = %s", outcome)
	}

	if len(rec.passes) != 2 || rec.passes[0] != 1 || rec.passes[1] != 2 {
		t.Fatalf("passes = %v, want [1 2]", rec.passes)
	}
	if rec.logNames[0] != "pass1.log" || rec.logNames[1] != "pass2.log" {
		t.Fatalf("pass logs = %v", rec.logNames)
	}
	// The record on disk names the running pass while it runs.
	if len(rec.persisted) != 2 || rec.persisted[0] != 1 || rec.persisted[1] != 2 {
		t.Fatalf("persisted pass during runs = %v, want [1 2]", rec.persisted)
	}

	persisted, err := jobstate.Load(jobDir)
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	if persisted.Output.TotalPasses != 2 || persisted.Output.CurrentPass != 2 {
		t.Fatalf("pass counters = %d/%d, want 2/2",
			persisted.Output.CurrentPass, persisted.Output.TotalPasses)
	}
	if persisted.Output.VideoBitrate != 2500 {
		t.Fatalf("video bitrate = %d, want 2500", persisted.Output.VideoBitrate)
	}
}

func TestRunResumesFromPersistedPass(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteProfile(t, cfg, "bitrate", "video_bitrate = 2500\n")
	jobDir, job := startJob(t, cfg, "bitrate", "movie.mkv", nil)

	job.MarkDone(jobstate.StepProbe)
	job.MarkDone(jobstate.StepCrop)
	job.MarkDone(jobstate.StepCalculate)
	job.Input.VideoWidth = 1920
	job.Input.VideoHeight = 1080
	job.Output.Container = "mkv"
	job.Output.VideoCodec = "libx264"
	job.Output.VideoBitrate = 2500
	job.Output.TotalPasses = 2
	job.Output.CurrentPass = 2
	if err := jobstate.Save(jobDir, job); err != nil {
		t.Fatalf("save job: %v", err)
	}

	e := New(cfg, logging.NewNop(), nil)
	rec := fakeTools(t, e)

	outcome, err := e.Run(context.Background(), jobDir, job)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if outcome != OutcomeCompleted {
		t.Fatalf("outcome = %s", outcome)
	}
	if len(rec.passes) != 1 || rec.passes[0] != 2 {
		t.Fatalf("passes = %v, want [2]", rec.passes)
	}
}

func TestRunMarksDisabledStepsDone(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	jobDir, job := startJob(t, cfg, cfg.Encoding.DefaultProfile, "movie.mkv", []string{"probe"})

	e := New(cfg, logging.NewNop(), nil)
	rec := fakeTools(t, e)

	outcome, err := e.Run(context.Background(), jobDir, job)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if outcome != OutcomeCompleted {
		t.Fatalf("outcome = %s", outcome)
	}
	if len(rec.passes) != 0 {
		t.Fatalf("encode ran for a probe-only job: %v", rec.passes)
	}

	persisted, err := jobstate.Load(jobDir)
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	for _, step := range jobstate.Order {
		if !persisted.IsDone(step) {
			t.Fatalf("step %s not marked done", step)
		}
	}
	if persisted.Output.Container != "" {
		t.Fatalf("calculate ran: %+v", persisted.Output)
	}
}

func TestRunStopsBetweenSteps(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	jobDir, job := startJob(t, cfg, cfg.Encoding.DefaultProfile, "movie.mkv", nil)

	var stop atomic.Bool
	e := New(cfg, logging.NewNop(), stop.Load)
	fakeTools(t, e)
	e.probe = func(ctx context.Context, binary, path string) (ffprobe.Result, error) {
		stop.Store(true)
		return movieProbe(), nil
	}

	outcome, err := e.Run(context.Background(), jobDir, job)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if outcome != OutcomeInterrupted {
		t.Fatalf("outcome = %s, want %s", outcome, OutcomeInterrupted)
	}

	persisted, err := jobstate.Load(jobDir)
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	if !persisted.IsDone(jobstate.StepProbe) {
		t.Fatal("probe result lost")
	}
	if persisted.IsDone(jobstate.StepCrop) {
		t.Fatal("crop ran after stop request")
	}
	if persisted.Error != "" {
		t.Fatalf("interruption recorded as failure: %s", persisted.Error)
	}
}

func TestRunStopsBetweenPassesThenResumes(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteProfile(t, cfg, "bitrate", "video_bitrate = 2500\n")
	jobDir, job := startJob(t, cfg, "bitrate", "movie.mkv", nil)

	var stop atomic.Bool
	e := New(cfg, logging.NewNop(), stop.Load)
	rec := fakeTools(t, e)
	rec.onPass = func(pass int) {
		if pass == 1 {
			stop.Store(true)
		}
	}

	outcome, err := e.Run(context.Background(), jobDir, job)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if outcome != OutcomeInterrupted {
		t.Fatalf("outcome = %s, want %s", outcome, OutcomeInterrupted)
	}
	if len(rec.passes) != 1 || rec.passes[0] != 1 {
		t.Fatalf("passes before stop = %v, want [1]", rec.passes)
	}

	persisted, err := jobstate.Load(jobDir)
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	if persisted.IsDone(jobstate.StepEncode) {
		t.Fatal("encode marked done before its second pass")
	}
	if persisted.Output.CurrentPass != 2 {
		t.Fatalf("current pass = %d, want 2", persisted.Output.CurrentPass)
	}

	resumer := New(cfg, logging.NewNop(), nil)
	resumeRec := fakeTools(t, resumer)
	outcome, err = resumer.Run(context.Background(), jobDir, persisted)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if outcome != OutcomeCompleted {
		t.Fatalf("resume outcome = %s", outcome)
	}
	if len(resumeRec.passes) != 1 || resumeRec.passes[0] != 2 {
		t.Fatalf("resume passes = %v, want [2]", resumeRec.passes)
	}
}

func TestRunCanceledContext(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	jobDir, job := startJob(t, cfg, cfg.Encoding.DefaultProfile, "movie.mkv", nil)

	e := New(cfg, logging.NewNop(), nil)
	fakeTools(t, e)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome, err := e.Run(ctx, jobDir, job)
	if outcome != OutcomeInterrupted {
		t.Fatalf("outcome = %s, want %s", outcome, OutcomeInterrupted)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}

	persisted, err := jobstate.Load(jobDir)
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	if persisted.IsDone(jobstate.StepProbe) {
		t.Fatal("probe ran on a canceled context")
	}
}

func TestRunRecordsStepFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	jobDir, job := startJob(t, cfg, cfg.Encoding.DefaultProfile, "movie.mkv", nil)

	e := New(cfg, logging.NewNop(), nil)
	fakeTools(t, e)
	e.probe = func(ctx context.Context, binary, path string) (ffprobe.Result, error) {
		return ffprobe.Result{}, errors.New("moov atom not found")
	}

	outcome, err := e.Run(context.Background(), jobDir, job)
	if outcome != OutcomeFailed {
		t.Fatalf("outcome = %s, want %s", outcome, OutcomeFailed)
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("err = %v, want ErrExternalTool", err)
	}

	persisted, loadErr := jobstate.Load(jobDir)
	if loadErr != nil {
		t.Fatalf("load state: %v", loadErr)
	}
	if persisted.FailedStep != jobstate.StepProbe {
		t.Fatalf("failed step = %s, want %s", persisted.FailedStep, jobstate.StepProbe)
	}
	if !strings.Contains(persisted.Error, "moov atom not found") {
		t.Fatalf("error not recorded: %q", persisted.Error)
	}
}

func TestRunMissingProfileFailsConfiguration(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	jobDir, job := startJob(t, cfg, "nonexistent", "movie.mkv", nil)

	e := New(cfg, logging.NewNop(), nil)
	fakeTools(t, e)

	outcome, err := e.Run(context.Background(), jobDir, job)
	if outcome != OutcomeFailed {
		t.Fatalf("outcome = %s, want %s", outcome, OutcomeFailed)
	}
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("err = %v, want ErrConfiguration", err)
	}

	persisted, loadErr := jobstate.Load(jobDir)
	if loadErr != nil {
		t.Fatalf("load state: %v", loadErr)
	}
	if persisted.Error == "" {
		t.Fatal("profile failure not recorded")
	}
}

func TestRunAppliesResolutionTier(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Tiers = map[string]config.Tier{
		"hd":  {MaxPixels: 1920 * 1080, VideoBitrate: 3000},
		"uhd": {MaxPixels: 3840 * 2160, VideoBitrate: 8000},
	}
	jobDir, job := startJob(t, cfg, cfg.Encoding.DefaultProfile, "movie.mkv", nil)

	e := New(cfg, logging.NewNop(), nil)
	rec := fakeTools(t, e)

	outcome, err := e.Run(context.Background(), jobDir, job)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if outcome != OutcomeCompleted {
		t.Fatalf("outcome = %s", outcome)
	}

	persisted, err := jobstate.Load(jobDir)
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	if persisted.Output.Tier != "hd" {
		t.Fatalf("tier = %q, want hd", persisted.Output.Tier)
	}
	if persisted.Output.VideoBitrate != 3000 || persisted.Output.VideoCRF != 0 {
		t.Fatalf("tier rate not applied: %+v", persisted.Output)
	}
	if persisted.Output.TotalPasses != 2 {
		t.Fatalf("total passes = %d, want 2", persisted.Output.TotalPasses)
	}
	if len(rec.passes) != 2 {
		t.Fatalf("passes = %v, want two", rec.passes)
	}
}
