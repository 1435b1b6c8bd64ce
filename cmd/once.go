package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newOnceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:         "once",
		Short:       "Run a single tick with the first account and exit",
		Annotations: needsApp(),
		RunE:        runOnce,
	}
	cmd.Flags().Bool(flagDryRun, false, "record notifications instead of sending them")
	return cmd
}

func runOnce(cmd *cobra.Command, _ []string) error {
	st, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	res, err := st.app.RunOnce(cmd.Context())
	if err != nil {
		return fmt.Errorf("once: %w", err)
	}
	out := cmd.OutOrStdout()
	renderTick(out, res)
	if st.dryRun {
		renderRecorded(out, st.app.Recorded())
	}
	return nil
}
