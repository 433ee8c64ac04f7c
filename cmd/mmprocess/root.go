package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var configFlag string
	var verbose int
	var profileFlag string
	var outputFlag string
	var dryRun bool

	cctx := newCommandContext(&configFlag, &verbose)

	rootCmd := &cobra.Command{
		Use:           "mmprocess [FILE]",
		Short:         "Claim and transcode one video job from the work area",
		Long: "mmprocess processes exactly one job per invocation. Without FILE it\n" +
			"resumes the first unlocked in-progress job, or claims the first pending\n" +
			"source. With FILE it claims that file directly.",
		Args:          cobra.MaximumNArgs(1),
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
			opts := workerOptions{
				profile: profileFlag,
				output:  outputFlag,
				dryRun:  dryRun,
			}
			if len(args) == 1 {
				opts.file = args[0]
			}
			return runWorker(cmd, cctx, opts)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().CountVarP(&verbose, "verbose", "v", "Increase log verbosity")
	rootCmd.Flags().StringVarP(&profileFlag, "profile", "p", "", "Encoding profile name")
	rootCmd.Flags().StringVarP(&outputFlag, "output", "o", "", "Override the final output directory")
	rootCmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "List what would be processed without claiming work")

	rootCmd.AddCommand(newResetCommand(cctx))
	rootCmd.AddCommand(newRequeueCommand(cctx))
	rootCmd.AddCommand(newStopCommand(cctx))
	rootCmd.AddCommand(newResumeCommand(cctx))
	rootCmd.AddCommand(newConfigCommand(cctx))

	return rootCmd
}
