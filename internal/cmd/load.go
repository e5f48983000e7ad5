package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Reload the active universe's document and summarize its contents",
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
		s, err := a.manager.ReloadActiveUniverse(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("%s: %d graphs, %d prototypes, %d edges\n", u.Slug, len(s.Graphs), len(s.NodePrototypes), len(s.Edges))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loadCmd)
}
