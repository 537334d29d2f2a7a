package cmds

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newHistoryCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show or clear the stored conversation",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the stored conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, closeFn, err := a.openState()
			if err != nil {
				return err
			}
			defer closeFn()

			msgs, err := st.History()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(msgs) == 0 {
				fmt.Fprintln(out, mutedStyle.Render("No messages yet."))
				return nil
			}
			for _, m := range msgs {
				printMessage(out, m)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete the stored conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, closeFn, err := a.openState()
			if err != nil {
				return err
			}
			defer closeFn()

			if err := st.ClearHistory(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Conversation cleared.")
			return nil
		},
	})

	return cmd
}
