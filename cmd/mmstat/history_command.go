package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/sshoecraft/mmprocess/internal/history"
	"github.com/sshoecraft/mmprocess/internal/services"
)

func newHistoryCommand(cctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recently finished jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cctx.ensureConfig()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if _, err := os.Stat(cfg.History.Path); err != nil {
				if os.IsNotExist(err) {
					fmt.Fprintln(out, "No finished jobs recorded.")
					return nil
				}
				return services.Wrap(services.ErrTransient, "history", "ledger", cfg.History.Path, err)
			}

			store, err := history.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(out, "No finished jobs recorded.")
				return nil
			}

			rows := make([][]string, 0, len(records))
			for _, rec := range records {
				outcome := rec.Outcome
				if rec.FailedStep != "" {
					outcome = fmt.Sprintf("%s (%s)", rec.Outcome, rec.FailedStep)
				}
				rows = append(rows, []string{
					displayName(rec.Name),
					rec.Profile,
					outcome,
					sizeCell(rec.InputBytes),
					sizeCell(rec.OutputBytes),
					strconv.Itoa(rec.Passes),
					rec.WallTime.Round(time.Second).String(),
					humanize.Time(rec.FinishedAt),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"NAME", "PROFILE", "OUTCOME", "IN", "OUT", "PASSES", "WALL", "FINISHED"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of jobs to show")

	return cmd
}

func sizeCell(bytes int64) string {
	if bytes <= 0 {
		return "-"
	}
	return humanize.IBytes(uint64(bytes))
}
