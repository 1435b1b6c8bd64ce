package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSlotsCmd() *cobra.Command {
	var account string
	cmd := &cobra.Command{
		Use:         "slots",
		Short:       "List released slots without booking anything",
		Annotations: needsApp(),
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			slots, err := st.app.Scan(cmd.Context(), account)
			if err != nil {
				return fmt.Errorf("slots: %w", err)
			}
			renderSlots(cmd.OutOrStdout(), slots, st.app.Users())
			return nil
		},
	}
	cmd.Flags().StringVar(&account, "account", "", "username to log in with (default: first configured account)")
	return cmd
}
