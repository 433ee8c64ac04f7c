package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var configFlag string
	var verbose int
	var instances int

	cctx := newCommandContext(&configFlag, &verbose)

	rootCmd := &cobra.Command{
		Use:   "mmrun",
		Short: "Keep a target number of mmprocess workers running",
		Long: "mmrun tops the host up to the configured number of worker instances.\n" +
			"Each worker occupies a numbered slot with its own pid file and log.\n" +
			"Run it from cron to keep the fleet at strength.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := cctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(cmd, cctx, reconcileOptions{
				instances:    instances,
				instancesSet: cmd.Flags().Changed("instances"),
				verbose:      verbose > 0,
			})
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().CountVarP(&verbose, "verbose", "v", "Increase output and log verbosity")
	rootCmd.Flags().IntVarP(&instances, "instances", "i", 0, "Number of slots to maintain (overrides config)")

	rootCmd.AddCommand(newStatusCommand(cctx))
	rootCmd.AddCommand(newInitCommand())

	return rootCmd
}
