package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the active universe's metadata and recent status events",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		u, ok := a.manager.ActiveUniverse()
		if !ok {
			return fmt.Errorf("no active universe")
		}

		fmt.Printf("active universe: %s (%s)\n", u.Name, u.Slug)
		fmt.Printf("  source of truth: %s\n", u.SourceOfTruth)
		fmt.Printf("  slots: local=%v git=%v browser=%v\n", u.LocalFile.Enabled, u.GitRepo.Enabled, u.BrowserStorage.Enabled)
		fmt.Printf("  sync status: %s (last modified %s)\n", u.Metadata.SyncStatus, u.Metadata.LastModified.Format("2006-01-02T15:04:05Z07:00"))

		fmt.Println("recent events:")
		for _, e := range a.sink.Recent() {
			fmt.Printf("  [%s] %s: %s\n", e.Type, e.Universe, e.Message)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
