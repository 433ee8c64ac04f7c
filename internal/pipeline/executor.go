// Package pipeline drives a claimed job through the fixed step order,
// persisting the job record after every transition so any instance can
// resume an interrupted job exactly where it stopped.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"

	"github.com/sshoecraft/mmprocess/internal/config"
	"github.com/sshoecraft/mmprocess/internal/ffmpeg"
	"github.com/sshoecraft/mmprocess/internal/jobstate"
	"github.com/sshoecraft/mmprocess/internal/logging"
	"github.com/sshoecraft/mmprocess/internal/media/ffprobe"
	"github.com/sshoecraft/mmprocess/internal/services"
)

// Outcome reports how a pipeline run ended.
type Outcome string

const (
	// OutcomeCompleted means every enabled step finished.
	OutcomeCompleted Outcome = "completed"
	// OutcomeFailed means a step failed; the failure is recorded in the
	// job record.
	OutcomeFailed Outcome = "failed"
	// OutcomeInterrupted means the run stopped at a step or pass boundary
	// with the job left resumable.
	OutcomeInterrupted Outcome = "interrupted"
)

// errStop signals a stop request observed between encode passes.
var errStop = errors.New("stop requested")

// Executor runs the pipeline steps for one job at a time. The external
// tool invocations are held as function fields so tests can substitute
// them.
type Executor struct {
	cfg    *config.Config
	logger *slog.Logger

	probe      func(ctx context.Context, binary, path string) (ffprobe.Result, error)
	detectCrop func(ctx context.Context, binary, path string, duration float64) (ffmpeg.Crop, bool, error)
	runPass    func(ctx context.Context, req ffmpeg.Request, pass int, logPath string) error
	stopped    func() bool
}

// New builds an Executor. stop is consulted between steps and between
// encode passes; nil means never stop.
func New(cfg *config.Config, logger *slog.Logger, stop func() bool) *Executor {
	if logger == nil {
		logger = logging.NewNop()
	}
	if stop == nil {
		stop = func() bool { return false }
	}
	runner := ffmpeg.NewRunner(cfg.FFmpegBinary(), logger)
	return &Executor{
		cfg:        cfg,
		logger:     logging.WithComponent(logger, "pipeline"),
		probe:      ffprobe.Inspect,
		detectCrop: ffmpeg.DetectCrop,
		runPass:    runner.RunPass,
		stopped:    stop,
	}
}

// execution carries everything the step functions share for one job.
type execution struct {
	jobDir  string
	job     *jobstate.Job
	profile *config.Profile
	logger  *slog.Logger
}

type step struct {
	name jobstate.Step
	run  func(ctx context.Context, ex *execution) error
}

func (e *Executor) steps() []step {
	return []step{
		{jobstate.StepProbe, e.runProbe},
		{jobstate.StepCrop, e.runCrop},
		{jobstate.StepCalculate, e.runCalculate},
		{jobstate.StepEncode, e.runEncode},
		{jobstate.StepMux, e.runMux},
		{jobstate.StepMove, e.runMove},
	}
}

// Run executes the job's pending steps in order. Done steps are skipped,
// disabled steps are marked done and persisted, and the first failure
// finalizes the run with the failing step recorded on the job. A stop
// request or context cancellation between steps or passes yields
// OutcomeInterrupted with the job left resumable.
func (e *Executor) Run(ctx context.Context, jobDir string, job *jobstate.Job) (Outcome, error) {
	logger := e.logger.With(logging.String(logging.FieldJob, filepath.Base(jobDir)))

	profile, err := e.cfg.LoadProfile(job.ProfileName)
	if err != nil {
		wrapped := services.Wrap(services.ErrConfiguration, "pipeline", "profile", job.ProfileName, err)
		job.RecordFailure("", wrapped)
		if saveErr := jobstate.Save(jobDir, job); saveErr != nil {
			logger.Warn("failure state not persisted", logging.Error(saveErr))
		}
		return OutcomeFailed, wrapped
	}

	ex := &execution{jobDir: jobDir, job: job, profile: profile, logger: logger}
	if job.IsDone(jobstate.StepProbe) {
		// The tier overlay lives only in memory; re-derive it from the
		// persisted input metadata on resume.
		e.applyTier(ex)
	}

	for _, st := range e.steps() {
		if job.IsDone(st.name) {
			continue
		}
		if e.stopped() {
			logger.Info("stop requested, leaving job resumable",
				logging.String(logging.FieldStep, string(st.name)))
			return OutcomeInterrupted, nil
		}
		if err := ctx.Err(); err != nil {
			return OutcomeInterrupted, err
		}
		if !job.IsEnabled(st.name) {
			job.MarkDone(st.name)
			if err := jobstate.Save(jobDir, job); err != nil {
				return e.fail(ex, st.name, err)
			}
			logger.Debug("step disabled", logging.String(logging.FieldStep, string(st.name)))
			continue
		}

		if err := st.run(ctx, ex); err != nil {
			if errors.Is(err, errStop) {
				logger.Info("stop requested, leaving job resumable",
					logging.String(logging.FieldStep, string(st.name)))
				return OutcomeInterrupted, nil
			}
			if ctx.Err() != nil {
				logger.Warn("step interrupted",
					logging.String(logging.FieldStep, string(st.name)),
					logging.Error(ctx.Err()))
				return OutcomeInterrupted, ctx.Err()
			}
			return e.fail(ex, st.name, err)
		}
		job.MarkDone(st.name)
		if err := jobstate.Save(jobDir, job); err != nil {
			return e.fail(ex, st.name, err)
		}
	}

	logger.Info("processing complete",
		logging.String(logging.FieldProfile, job.ProfileName))
	return OutcomeCompleted, nil
}

func (e *Executor) fail(ex *execution, failed jobstate.Step, err error) (Outcome, error) {
	ex.job.RecordFailure(failed, err)
	if saveErr := jobstate.Save(ex.jobDir, ex.job); saveErr != nil {
		ex.logger.Warn("failure state not persisted", logging.Error(saveErr))
	}
	ex.logger.Error("step failed",
		logging.String(logging.FieldStep, string(failed)),
		logging.Error(err))
	return OutcomeFailed, err
}
