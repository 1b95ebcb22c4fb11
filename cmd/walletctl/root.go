package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/The-Quan/atm-banking-2/internal/app"
	"github.com/The-Quan/atm-banking-2/internal/config"
	"github.com/The-Quan/atm-banking-2/internal/logging"
)

// session carries the application built before each command runs.
type session struct {
	app *app.App
}

func newRootCmd() *cobra.Command {
	s := &session{}
	var verbose bool

	rootCmd := &cobra.Command{
		Use:           "walletctl",
		Short:         "Operate the ATM ledger",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			level := "warn"
			if verbose {
				level = cfg.LogLevel
			}
			logging.Setup(os.Stderr, level, cfg.IsProd)
			s.app, err = app.New(cmd.Context(), cfg)
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if s.app == nil {
				return nil
			}
			return s.app.Close()
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at the configured LOG_LEVEL instead of warn")

	rootCmd.AddCommand(newVerifyCmd(s))
	rootCmd.AddCommand(newHistoryCmd(s))
	rootCmd.AddCommand(newWorkerCmd(s))
	return rootCmd
}
