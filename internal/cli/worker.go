package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newWorkerCmd(s *state) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume queued import jobs from Redis",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if s.app.Config.Dispatch.Mode != "redis" {
				return fmt.Errorf("worker requires dispatch.mode=redis, got %q", s.app.Config.Dispatch.Mode)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := s.app.Redis().Ping(ctx).Err(); err != nil {
				return fmt.Errorf("connect to redis: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Consuming %s on %s\n", s.app.Config.Dispatch.QueueKey, s.app.Config.Dispatch.RedisAddr)
			return s.app.Worker().Run(ctx)
		},
	}
}
