package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var saveCmd = &cobra.Command{
	Use:   "save",
	Short: "Save the active universe to every enabled storage slot",
	Long: `save reloads the active universe's current document and re-persists it
across every enabled slot. Without --force this is the Manager's ordinary
fan-out save; with --force it goes through the Save Coordinator's
ForceSave, clearing any queued debounce and committing once immediately.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		u, ok := a.manager.ActiveUniverse()
		if !ok {
			return fmt.Errorf("no active universe")
		}
		s, err := a.manager.ReloadActiveUniverse(ctx)
		if err != nil {
			return fmt.Errorf("load current document: %w", err)
		}

		force, _ := cmd.Flags().GetBool("force")
		if force {
			co := a.coordinatorFor(ctx, &u)
			if err := co.ForceSave(ctx, s); err != nil {
				return fmt.Errorf("force save: %w", err)
			}
			fmt.Printf("force-saved %q\n", u.Slug)
			return nil
		}

		result, err := a.manager.SaveActiveUniverse(ctx, s)
		if err != nil {
			return err
		}
		fmt.Printf("saved %q via: %v\n", u.Slug, result.Succeeded)
		for _, f := range result.Failed {
			fmt.Printf("  %s failed: %v\n", f.Slot, f.Error)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(saveCmd)
	saveCmd.Flags().Bool("force", false, "bypass debounce, commit immediately via the Save Coordinator")
}
