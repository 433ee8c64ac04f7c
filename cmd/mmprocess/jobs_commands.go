package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/sshoecraft/mmprocess/internal/joblock"
	"github.com/sshoecraft/mmprocess/internal/jobstate"
	"github.com/sshoecraft/mmprocess/internal/services"
	"github.com/sshoecraft/mmprocess/internal/workarea"
)

func newResetCommand(cctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset JOB",
		Short: "Clear a job's completed steps so it runs again from the start",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := cctx.ensureLogger()
			if err != nil {
				return err
			}

			name := filepath.Base(args[0])
			var jobDir string
			for _, root := range []string{cfg.Dirs.Work, cfg.Dirs.Error} {
				candidate := filepath.Join(root, name)
				if jobstate.Exists(candidate) {
					jobDir = candidate
					break
				}
			}
			if jobDir == "" {
				return services.Wrap(services.ErrNotFound, "worker", "reset", name, nil)
			}

			locks := joblock.New(logger, uuid.NewString())
			handle, err := locks.Acquire(jobDir)
			if errors.Is(err, joblock.ErrBusy) {
				return fmt.Errorf("job %s is being processed; stop the worker first", name)
			}
			if err != nil {
				return err
			}
			defer handle.Release()

			job, err := jobstate.Load(jobDir)
			if err != nil {
				return err
			}
			job.Reset()
			if err := jobstate.Save(jobDir, job); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reset %s\n", name)
			return nil
		},
	}
}

func newRequeueCommand(cctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "requeue JOB",
		Short: "Move a failed job from the error area back into the work area",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := cctx.ensureLogger()
			if err != nil {
				return err
			}

			name := filepath.Base(args[0])
			area := workarea.New(cfg, logger)
			jobDir, err := area.Requeue(name)
			if err != nil {
				return err
			}

			locks := joblock.New(logger, uuid.NewString())
			handle, err := locks.Acquire(jobDir)
			if errors.Is(err, joblock.ErrBusy) {
				// A worker claimed it the moment it landed; leave its state alone.
				fmt.Fprintf(cmd.OutOrStdout(), "Requeued %s\n", name)
				return nil
			}
			if err != nil {
				return err
			}
			defer handle.Release()

			job, err := jobstate.Load(jobDir)
			if err != nil {
				return err
			}
			job.Reset()
			if err := jobstate.Save(jobDir, job); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Requeued %s\n", name)
			return nil
		},
	}
}

func newStopCommand(cctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Pause the work area once current steps finish",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := cctx.ensureLogger()
			if err != nil {
				return err
			}
			if err := workarea.New(cfg, logger).RequestStop(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Stop requested; workers pause at the next step boundary.")
			return nil
		},
	}
}

func newResumeCommand(cctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Clear the stop sentinel so workers accept jobs again",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := cctx.ensureLogger()
			if err != nil {
				return err
			}
			if err := workarea.New(cfg, logger).ClearStop(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Stop cleared; workers may claim jobs again.")
			return nil
		},
	}
}
