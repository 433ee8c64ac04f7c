package main

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/sshoecraft/mmprocess/internal/services"
	"github.com/sshoecraft/mmprocess/internal/supervisor"
)

type reconcileOptions struct {
	instances    int
	instancesSet bool
	verbose      bool
}

// runReconcile tops the host up to the desired worker count and reports
// what happened. The launch summary always prints; the fleet view and
// per-slot detail only with --verbose.
func runReconcile(cmd *cobra.Command, cctx *commandContext, opts reconcileOptions) error {
	cfg, err := cctx.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := cctx.ensureLogger()
	if err != nil {
		return err
	}

	runCfg := *cfg
	if opts.instancesSet {
		if opts.instances < 0 {
			return services.Wrap(services.ErrConfiguration, "supervisor", "instances",
				strconv.Itoa(opts.instances), errors.New("must be zero or more"))
		}
		runCfg.Supervisor.Instances = opts.instances
	}

	sup := supervisor.New(&runCfg, cctx.configFlagValue(), logger)
	result, runErr := sup.Reconcile()

	out := cmd.OutOrStdout()
	if opts.verbose && (runErr == nil || len(result.Snapshot.Slots) > 0) {
		printSlotReport(out, filepath.Base(runCfg.Supervisor.Worker), runCfg.Dirs.Logs, result.Snapshot)
	}
	for _, slot := range result.Started {
		if opts.verbose {
			fmt.Fprintf(out, "Started slot %d (PID %d)\n", slot.Number, slot.PID)
		}
	}
	if len(result.Started) > 0 {
		fmt.Fprintf(out, "Started %d instance(s)\n", len(result.Started))
	} else if runErr == nil && opts.verbose {
		if result.Snapshot.SystemWide >= result.Snapshot.Desired {
			fmt.Fprintf(out, "Already %d instance(s) running system-wide, target is %d\n",
				result.Snapshot.SystemWide, result.Snapshot.Desired)
		} else {
			fmt.Fprintln(out, "No new instances needed")
		}
	}
	return runErr
}

// printSlotReport writes the pre-launch fleet view, one line per slot.
func printSlotReport(out io.Writer, workerName, logDir string, snap supervisor.Snapshot) {
	fmt.Fprintf(out, "System: %d %s instance(s) running\n", snap.SystemWide, workerName)
	fmt.Fprintf(out, "Slots: %d/%d managed by mmrun\n", snap.Running(), snap.Desired)
	for _, slot := range snap.Slots {
		switch {
		case slot.PID != 0:
			fmt.Fprintf(out, "  Slot %d: running (PID %d)\n", slot.Number, slot.PID)
		case slot.Stale:
			fmt.Fprintf(out, "  Slot %d: stale\n", slot.Number)
		default:
			fmt.Fprintf(out, "  Slot %d: free\n", slot.Number)
		}
	}
	fmt.Fprintf(out, "Log dir: %s\n", logDir)
}
