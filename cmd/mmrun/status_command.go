package main

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/sshoecraft/mmprocess/internal/supervisor"
)

func newStatusCommand(cctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show slot status without starting anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := cctx.ensureLogger()
			if err != nil {
				return err
			}

			sup := supervisor.New(cfg, cctx.configFlagValue(), logger)
			snapshot, err := sup.Inspect()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "System: %d %s instance(s) running\n",
				snapshot.SystemWide, filepath.Base(cfg.Supervisor.Worker))
			fmt.Fprintf(out, "Slots: %d/%d managed by mmrun\n", snapshot.Running(), snapshot.Desired)

			rows := make([][]string, 0, len(snapshot.Slots))
			for _, slot := range snapshot.Slots {
				state := "free"
				pid := ""
				switch {
				case slot.PID != 0:
					state = "running"
					pid = strconv.Itoa(slot.PID)
				case slot.Stale:
					state = "stale"
				}
				rows = append(rows, []string{
					strconv.Itoa(slot.Number),
					state,
					pid,
					filepath.Base(sup.LogPath(slot.Number)),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"SLOT", "STATE", "PID", "LOG"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft},
			))
			fmt.Fprintf(out, "Log dir: %s\n", cfg.Dirs.Logs)
			return nil
		},
	}
}
