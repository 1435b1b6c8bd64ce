package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Poll continuously, one account per tick, until interrupted",
		Long: `Runs the polling loop. The first tick starts immediately and the next one
starts interval minutes after the previous tick finished. Accounts take turns
as the polling account. When server.enabled is set, the status API is served
alongside the loop.`,
		Annotations: needsApp(),
		RunE:        runLoop,
	}
	cmd.Flags().Bool(flagDryRun, false, "record notifications instead of sending them")
	return cmd
}

func runLoop(cmd *cobra.Command, _ []string) error {
	st, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	if err := st.app.Run(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run: %w", err)
	}
	if st.dryRun {
		st.logger.Info("dry run finished", zap.Int("notifications_recorded", len(st.app.Recorded())))
	}
	return nil
}
