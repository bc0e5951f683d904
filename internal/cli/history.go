package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var flagHistoryLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent search and download activity",
	RunE:  runHistory,
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete history entries older than 90 days",
	RunE:  runHistoryPrune,
}

func init() {
	historyCmd.Flags().IntVarP(&flagHistoryLimit, "limit", "l", 20, "Maximum entries per section")
	historyCmd.AddCommand(historyPruneCmd)
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	lib, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Close()
	defer lib.Close()

	store := lib.History()
	if store == nil {
		return fmt.Errorf("history is disabled in the configuration")
	}

	searches, err := store.RecentSearches(cmd.Context(), flagHistoryLimit)
	if err != nil {
		return err
	}
	downloads, err := store.RecentDownloads(cmd.Context(), flagHistoryLimit)
	if err != nil {
		return err
	}

	if jsonOutput() {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"searches":  searches,
			"downloads": downloads,
		})
	}

	fmt.Println("Recent searches:")
	if len(searches) == 0 {
		fmt.Println("  (none)")
	}
	for _, ev := range searches {
		fmt.Printf("  %s  %q  %d results\n",
			ev.CreatedAt.Local().Format(time.DateTime), ev.Query, ev.ResultCount)
	}

	fmt.Println("\nRecent downloads:")
	if len(downloads) == 0 {
		fmt.Println("  (none)")
	}
	for _, ev := range downloads {
		outcome := "ok"
		if !ev.Success {
			outcome = "failed"
		}
		fmt.Printf("  %s  [%s] %s  %s\n",
			ev.CreatedAt.Local().Format(time.DateTime), ev.Platform, ev.FilePath, outcome)
	}
	return nil
}

func runHistoryPrune(cmd *cobra.Command, args []string) error {
	lib, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Close()
	defer lib.Close()

	store := lib.History()
	if store == nil {
		return fmt.Errorf("history is disabled in the configuration")
	}

	deleted, err := store.Prune(cmd.Context(), 90*24*time.Hour)
	if err != nil {
		return err
	}
	fmt.Printf("Deleted %d entries.\n", deleted)
	return nil
}
