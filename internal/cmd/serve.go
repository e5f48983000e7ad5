package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the save coordinator and Git sync watchdog in the foreground",
	Long:  `serve starts a sync engine for every universe with a Git slot enabled, watches their health, and blocks until interrupted.`,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	started := 0
	for _, u := range a.manager.ListUniverses() {
		if !u.GitRepo.Enabled {
			continue
		}
		u := u
		a.coordinatorFor(ctx, &u)
		started++
	}
	a.manager.StartWatchdog()
	fmt.Printf("Watching %d Git-linked universe(s). Press Ctrl+C to stop.\n", started)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Printf("[cmd] shutting down")
	a.manager.StopWatchdog()
	return nil
}
