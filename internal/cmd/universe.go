package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/redstring/core/internal/universe"
)

var universeCmd = &cobra.Command{
	Use:   "universe",
	Short: "Manage the registry of cognitive universes",
}

func init() {
	rootCmd.AddCommand(universeCmd)

	universeCreateCmd.Flags().Bool("local", false, "enable the local-file slot")
	universeCreateCmd.Flags().String("git-repo", "", "owner/repo to enable the Git slot against")
	universeCmd.AddCommand(universeCreateCmd, universeListCmd, universeSwitchCmd, universeDeleteCmd, universeDiscoverCmd, universeLinkCmd)
}

var universeCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Register a new universe",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		opts := universe.CreateOptions{}
		opts.EnableLocalFile, _ = cmd.Flags().GetBool("local")
		if repo, _ := cmd.Flags().GetString("git-repo"); repo != "" {
			slot := universe.DefaultGitRepoSlot(universe.GenerateSlug(args[0]), repo)
			opts.GitRepo = &slot
		}

		u, err := a.manager.CreateUniverse(args[0], opts)
		if err != nil {
			return err
		}
		fmt.Printf("created universe %q (%s)\n", u.Name, u.Slug)
		return nil
	},
}

var universeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every registered universe",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		active, _ := a.manager.ActiveUniverse()
		for _, u := range a.manager.ListUniverses() {
			marker := "  "
			if u.Slug == active.Slug {
				marker = "* "
			}
			fmt.Printf("%s%-24s %-10s sync=%s\n", marker, u.Slug, u.SourceOfTruth, u.Metadata.SyncStatus)
		}
		return nil
	},
}

var universeSwitchCmd = &cobra.Command{
	Use:   "switch <slug>",
	Short: "Make a universe active and load its document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		_, _, err = a.manager.SwitchActiveUniverse(ctx, args[0], false, nil)
		if err != nil {
			return err
		}
		fmt.Printf("active universe is now %q\n", args[0])
		return nil
	},
}

var universeDeleteCmd = &cobra.Command{
	Use:   "delete <slug>",
	Short: "Remove a universe from the registry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.manager.DeleteUniverse(args[0]); err != nil {
			return err
		}
		fmt.Printf("deleted universe %q\n", args[0])
		return nil
	},
}

var universeDiscoverCmd = &cobra.Command{
	Use:   "discover <owner/repo> <folder>",
	Short: "List universe documents found in a Git repository",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		discoverer, ok := a.git.(interface {
			DiscoverUniverses(ctx context.Context, linkedRepo, path string) ([]string, error)
		})
		if !ok {
			return fmt.Errorf("the configured Git provider does not support discovery")
		}
		found, err := a.manager.DiscoverUniversesInRepository(cmd.Context(), discoverer, universe.GitRepoSlot{LinkedRepo: args[0], UniverseFolder: args[1]})
		if err != nil {
			return err
		}
		for _, path := range found {
			fmt.Println(path)
		}
		return nil
	},
}

var universeLinkCmd = &cobra.Command{
	Use:   "link <owner/repo> <path>",
	Short: "Link a discovered universe document and make it active",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		slot := universe.DefaultGitRepoSlot("", args[0])
		u, err := a.manager.LinkToDiscoveredUniverse(args[1], slot)
		if err != nil {
			return err
		}
		fmt.Printf("linked and activated universe %q (%s)\n", u.Name, u.Slug)
		return nil
	},
}
