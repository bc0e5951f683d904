package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shelfstream/shelfstream/internal/books"
)

var (
	flagPlatforms []string
	flagLimit     int
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search for books across enabled platforms",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().StringSliceVarP(&flagPlatforms, "platforms", "p", nil,
		"Platforms to search (default: all enabled)")
	searchCmd.Flags().IntVarP(&flagLimit, "limit", "l", 20, "Maximum number of results")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")

	platforms, err := parsePlatforms(flagPlatforms)
	if err != nil {
		return err
	}

	lib, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Close()
	defer lib.Close()

	results, err := lib.Search(cmd.Context(), query, flagLimit, platforms...)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if jsonOutput() {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	if len(results) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	fmt.Printf("Found %d results for %q:\n\n", len(results), query)
	for i, result := range results {
		printResult(i+1, result)
	}
	return nil
}

func printResult(index int, result books.SearchResult) {
	fmt.Printf("%d. %s\n", index, result.Book.Title)
	if result.Book.Authors != "" {
		fmt.Printf("   Author: %s\n", result.Book.Authors)
	}
	fmt.Printf("   Platform: %s\n", result.Platform)
	if result.Book.Year != "" {
		fmt.Printf("   Year: %s\n", result.Book.Year)
	}
	if result.Book.FileType != "" {
		size := result.Book.FileSize
		if size == "" {
			size = "unknown size"
		}
		fmt.Printf("   Format: %s (%s)\n", result.Book.FileType, size)
	}
	if result.Download.BookID != "" {
		fmt.Printf("   Book ID: %s\n", result.Download.BookID)
	}
	if result.Download.HashID != "" {
		fmt.Printf("   Hash: %s\n", result.Download.HashID)
	}
	fmt.Println(strings.Repeat("-", 80))
}

func parsePlatforms(names []string) ([]books.Platform, error) {
	platforms := make([]books.Platform, 0, len(names))
	for _, name := range names {
		platform, ok := books.ParsePlatform(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s (valid: %s)",
				books.ErrPlatformUnknown, name, platformList())
		}
		platforms = append(platforms, platform)
	}
	return platforms, nil
}

func platformList() string {
	all := books.AllPlatforms()
	names := make([]string, len(all))
	for i, platform := range all {
		names[i] = string(platform)
	}
	return strings.Join(names, ", ")
}
