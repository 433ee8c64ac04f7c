package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/sshoecraft/mmprocess/internal/config"
	"github.com/sshoecraft/mmprocess/internal/history"
	"github.com/sshoecraft/mmprocess/internal/joblock"
	"github.com/sshoecraft/mmprocess/internal/jobstate"
	"github.com/sshoecraft/mmprocess/internal/logging"
	"github.com/sshoecraft/mmprocess/internal/pipeline"
	"github.com/sshoecraft/mmprocess/internal/services"
	"github.com/sshoecraft/mmprocess/internal/workarea"
)

type workerOptions struct {
	file    string
	profile string
	output  string
	dryRun  bool
}

// worker drives one invocation: at most one job is claimed or resumed so
// several instances can drain the area side by side.
type worker struct {
	cfg    *config.Config
	logger *slog.Logger
	area   *workarea.Manager
	locks  *joblock.Manager
	out    io.Writer
}

func runWorker(cmd *cobra.Command, cctx *commandContext, opts workerOptions) error {
	cfg, err := cctx.ensureConfig()
	if err != nil {
		return err
	}
	if opts.profile != "" {
		cfg.Encoding.DefaultProfile = opts.profile
	}
	if opts.output != "" {
		expanded, err := config.ExpandPath(opts.output)
		if err != nil {
			return services.Wrap(services.ErrConfiguration, "worker", "output dir", opts.output, err)
		}
		cfg.Dirs.Out = expanded
	}

	logger, err := cctx.ensureLogger()
	if err != nil {
		return err
	}

	area := workarea.New(cfg, logger)
	if opts.dryRun {
		return dryRunReport(cmd.OutOrStdout(), cfg, area, opts)
	}

	if area.StopRequested() {
		logger.Info("stop sentinel present; not starting work",
			logging.String(logging.FieldPath, filepath.Join(cfg.Dirs.Work, workarea.StopFileName)))
		fmt.Fprintln(cmd.OutOrStdout(), "Stop requested; run \"mmprocess resume\" to accept work again.")
		return nil
	}

	w := &worker{
		cfg:    cfg,
		logger: logger,
		area:   area,
		locks:  joblock.New(logger, uuid.NewString()),
		out:    cmd.OutOrStdout(),
	}

	if opts.file != "" {
		return w.runSingle(cmd.Context(), opts.file)
	}
	return w.runBatch(cmd.Context())
}

// runBatch resumes the first lockable in-progress job, falling back to the
// first claimable pending source.
func (w *worker) runBatch(ctx context.Context) error {
	processed, err := w.resumeExisting(ctx)
	if processed || err != nil {
		return err
	}
	processed, err = w.claimPending(ctx)
	if processed || err != nil {
		return err
	}
	w.logger.Info("no work available")
	fmt.Fprintln(w.out, "No files to process.")
	return nil
}

// runSingle claims the named file into the work area and processes it.
func (w *worker) runSingle(ctx context.Context, file string) error {
	path, err := filepath.Abs(file)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", file, err)
	}
	if _, err := os.Stat(path); err != nil {
		return services.Wrap(services.ErrNotFound, "worker", "claim", path, err)
	}

	profileName := w.cfg.Encoding.DefaultProfile
	if _, err := w.cfg.LoadProfile(profileName); err != nil {
		return services.Wrap(services.ErrConfiguration, "worker", "profile", profileName, err)
	}

	jobDir, err := w.area.Claim(workarea.Candidate{Path: path, Profile: profileName})
	if err != nil {
		return err
	}
	handle, err := w.locks.Acquire(jobDir)
	if err != nil {
		return err
	}
	sourceName := workarea.Normalize(filepath.Base(path))
	job, err := w.createState(jobDir, sourceName, profileName)
	if err != nil {
		return w.failClaim(jobDir, handle, profileName, sourceName, err)
	}
	return w.runJob(ctx, jobDir, handle, job)
}

func (w *worker) resumeExisting(ctx context.Context) (bool, error) {
	jobDirs, err := w.area.DiscoverInProgress()
	if err != nil {
		return false, err
	}
	for _, jobDir := range jobDirs {
		handle, err := w.locks.Acquire(jobDir)
		if errors.Is(err, joblock.ErrBusy) {
			w.logger.Debug("job held by another instance",
				logging.String(logging.FieldJob, filepath.Base(jobDir)))
			continue
		}
		if err != nil {
			return false, err
		}

		job, err := jobstate.Load(jobDir)
		if err != nil {
			if errors.Is(err, services.ErrNotFound) {
				handle.Release()
				continue
			}
			w.logger.Error("unreadable job state",
				logging.String(logging.FieldJob, filepath.Base(jobDir)), logging.Error(err))
			if _, ferr := w.area.Finalize(jobDir, workarea.OutcomeError); ferr != nil {
				w.logger.Error("corrupt job not moved to error area", logging.Error(ferr))
			}
			handle.Release()
			return true, err
		}

		w.logger.Info("resuming job",
			logging.String(logging.FieldJob, filepath.Base(jobDir)),
			logging.String(logging.FieldProfile, job.ProfileName))
		return true, w.runJob(ctx, jobDir, handle, job)
	}
	return false, nil
}

func (w *worker) claimPending(ctx context.Context) (bool, error) {
	candidates, err := w.area.DiscoverPending()
	if err != nil {
		return false, err
	}
	for _, candidate := range candidates {
		jobDir, err := w.area.Claim(candidate)
		if errors.Is(err, services.ErrClaim) {
			w.logger.Debug("candidate not claimable",
				logging.String(logging.FieldPath, candidate.Path), logging.Error(err))
			continue
		}
		if err != nil {
			return false, err
		}
		handle, err := w.locks.Acquire(jobDir)
		if errors.Is(err, joblock.ErrBusy) {
			w.logger.Warn("claimed directory already locked",
				logging.String(logging.FieldJob, filepath.Base(jobDir)))
			continue
		}
		if err != nil {
			return false, err
		}

		sourceName := workarea.Normalize(filepath.Base(candidate.Path))
		job, err := w.createState(jobDir, sourceName, candidate.Profile)
		if err != nil {
			return true, w.failClaim(jobDir, handle, candidate.Profile, sourceName, err)
		}
		return true, w.runJob(ctx, jobDir, handle, job)
	}
	return false, nil
}

// createState writes the initial job record after a claim. The enabled
// step set comes from the profile; the recorded input path is the
// normalized source name inside the job directory, so the record stays
// valid when the directory moves.
func (w *worker) createState(jobDir, sourceName, profileName string) (*jobstate.Job, error) {
	profile, err := w.cfg.LoadProfile(profileName)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "worker", "profile", profileName, err)
	}
	enabled, err := jobstate.EnabledFromNames(profile.Steps)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "worker", "profile", profileName, err)
	}
	job := jobstate.New(profileName, enabled)
	job.Input.Path = sourceName
	if err := jobstate.Save(jobDir, job); err != nil {
		return nil, err
	}
	return job, nil
}

// failClaim parks a freshly claimed job in the error area when its state
// could not even be created, recording the cause for the operator.
func (w *worker) failClaim(jobDir string, handle *joblock.Handle, profileName, sourceName string, cause error) error {
	job := jobstate.New(profileName, nil)
	job.Input.Path = sourceName
	job.RecordFailure("", cause)
	if err := jobstate.Save(jobDir, job); err != nil {
		w.logger.Error("failure record not saved",
			logging.String(logging.FieldJob, filepath.Base(jobDir)), logging.Error(err))
	}
	if _, err := w.area.Finalize(jobDir, workarea.OutcomeError); err != nil {
		w.logger.Error("job not moved to error area",
			logging.String(logging.FieldJob, filepath.Base(jobDir)), logging.Error(err))
	}
	handle.Release()
	return cause
}

// runJob executes the pipeline for a locked job and finalizes the
// directory according to the outcome. Interrupted jobs stay in the work
// area for the next instance.
func (w *worker) runJob(ctx context.Context, jobDir string, handle *joblock.Handle, job *jobstate.Job) error {
	defer handle.Release()

	name := filepath.Base(jobDir)
	exec := pipeline.New(w.cfg, w.logger, w.area.StopRequested)
	started := time.Now()
	outcome, runErr := exec.Run(ctx, jobDir, job)
	elapsed := time.Since(started)

	switch outcome {
	case pipeline.OutcomeCompleted:
		if _, err := w.area.Finalize(jobDir, workarea.OutcomeDone); err != nil {
			return err
		}
		w.recordHistory(job, name, string(pipeline.OutcomeCompleted), elapsed)
		w.logger.Info("job completed",
			logging.String(logging.FieldJob, name),
			logging.Duration("wall_time", elapsed))
		fmt.Fprintf(w.out, "Completed %s\n", name)
		return nil
	case pipeline.OutcomeInterrupted:
		w.logger.Info("job interrupted; left in work area",
			logging.String(logging.FieldJob, name))
		return runErr
	default:
		if _, err := w.area.Finalize(jobDir, workarea.OutcomeError); err != nil {
			w.logger.Error("failed job not moved to error area",
				logging.String(logging.FieldJob, name), logging.Error(err))
		}
		w.recordHistory(job, name, string(pipeline.OutcomeFailed), elapsed)
		return runErr
	}
}

// recordHistory appends the finished job to the ledger. Failures here are
// logged and swallowed; the ledger never decides a job's fate.
func (w *worker) recordHistory(job *jobstate.Job, name, outcome string, wall time.Duration) {
	if !w.cfg.History.Enabled {
		return
	}
	store, err := history.Open(w.cfg)
	if err != nil {
		w.logger.Warn("history ledger unavailable", logging.Error(err))
		return
	}
	defer store.Close()

	rec := history.Record{
		Name:       name,
		Profile:    job.ProfileName,
		Outcome:    outcome,
		FailedStep: string(job.FailedStep),
		Duration:   job.Input.Duration,
		InputBytes: job.Input.Size,
		Passes:     job.Output.TotalPasses,
		WallTime:   wall,
	}
	if info, err := os.Stat(job.Output.Path); err == nil {
		rec.OutputBytes = info.Size()
	}
	if err := store.Add(context.Background(), rec); err != nil {
		w.logger.Warn("history not recorded",
			logging.String(logging.FieldJob, name), logging.Error(err))
	}
}

// dryRunReport lists what a real run would pick up without claiming,
// locking, or moving anything.
func dryRunReport(out io.Writer, cfg *config.Config, area *workarea.Manager, opts workerOptions) error {
	if opts.file != "" {
		fmt.Fprintf(out, "Would process %s with profile %q\n", opts.file, cfg.Encoding.DefaultProfile)
		return nil
	}

	jobDirs, err := area.DiscoverInProgress()
	if err != nil {
		return err
	}
	for _, jobDir := range jobDirs {
		name := filepath.Base(jobDir)
		if joblock.Held(jobDir) {
			fmt.Fprintf(out, "Would skip %s (locked)\n", name)
			continue
		}
		fmt.Fprintf(out, "Would resume %s\n", name)
	}

	candidates, err := area.DiscoverPending()
	if err != nil {
		return err
	}
	for _, candidate := range candidates {
		fmt.Fprintf(out, "Would claim %s with profile %q\n", filepath.Base(candidate.Path), candidate.Profile)
	}

	if len(jobDirs) == 0 && len(candidates) == 0 {
		fmt.Fprintln(out, "No files to process.")
	}
	return nil
}
