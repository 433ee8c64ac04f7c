package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sshoecraft/mmprocess/internal/config"
	"github.com/sshoecraft/mmprocess/internal/logging"
	"github.com/sshoecraft/mmprocess/internal/services"
	"github.com/sshoecraft/mmprocess/internal/status"
)

func newRootCommand() *cobra.Command {
	var configFlag string
	var jsonOut bool
	var workDir string

	cctx := newCommandContext(&configFlag)

	rootCmd := &cobra.Command{
		Use:   "mmstat",
		Short: "Show progress of active encoding jobs",
		Long: "mmstat reads each locked job's state record and the tail of its\n" +
			"current pass log. It takes no locks of its own, so it can run\n" +
			"anywhere the work area is mounted.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := cctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, cctx, statusOptions{json: jsonOut, workDir: workDir})
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.Flags().BoolVar(&jsonOut, "json", false, "Emit machine-readable JSON")
	rootCmd.Flags().StringVarP(&workDir, "workdir", "w", "", "Work directory to scan (overrides config)")

	rootCmd.AddCommand(newHistoryCommand(cctx))

	return rootCmd
}

type statusOptions struct {
	json    bool
	workDir string
}

func runStatus(cmd *cobra.Command, cctx *commandContext, opts statusOptions) error {
	cfg, err := cctx.ensureConfig()
	if err != nil {
		return err
	}

	runCfg := *cfg
	if trimmed := strings.TrimSpace(opts.workDir); trimmed != "" {
		expanded, err := config.ExpandPath(trimmed)
		if err != nil {
			return services.Wrap(services.ErrConfiguration, "status", "workdir", trimmed, err)
		}
		runCfg.Dirs.Work = expanded
	}

	reporter := status.New(&runCfg, logging.NewNop())
	jobs, err := reporter.Collect()
	if err != nil {
		return err
	}

	if opts.json {
		return writeJSON(cmd, activeJSON(jobs))
	}

	out := cmd.OutOrStdout()
	if len(jobs) == 0 {
		fmt.Fprintln(out, "No active encoding jobs.")
		return nil
	}
	if isTerminal(out) {
		fmt.Fprintln(out, renderActiveTable(jobs))
		return nil
	}
	printActivePlain(out, jobs)
	return nil
}
