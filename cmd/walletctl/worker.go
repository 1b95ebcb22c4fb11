package main

import (
	"errors"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func newWorkerCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Deliver queued notifications until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			if s.app.Redis == nil {
				return errors.New("worker needs REDIS_ADDR: the in-process queue is only visible to the server")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			pterm.Info.Println("Delivering notifications, press Ctrl+C to stop")
			return s.app.Worker.Run(ctx)
		},
	}
}
