package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shelfstream/shelfstream/internal/books"
)

var testCmd = &cobra.Command{
	Use:   "test [platform...]",
	Short: "Test connectivity and credentials for platforms",
	RunE:  runTest,
}

func init() {
	rootCmd.AddCommand(testCmd)
}

func runTest(cmd *cobra.Command, args []string) error {
	lib, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Close()
	defer lib.Close()

	platforms := lib.EnabledPlatforms()
	if len(args) > 0 {
		platforms, err = parsePlatforms(args)
		if err != nil {
			return err
		}
	}

	failed := 0
	for _, platform := range platforms {
		if err := lib.TestPlatform(cmd.Context(), platform); err != nil {
			failed++
			reason := "unreachable"
			if books.IsAuthError(err) {
				reason = "authentication failed"
			}
			fmt.Printf("  %-15s FAIL (%s): %v\n", platform, reason, err)
			continue
		}
		fmt.Printf("  %-15s OK\n", platform)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d platforms failed", failed, len(platforms))
	}
	return nil
}
