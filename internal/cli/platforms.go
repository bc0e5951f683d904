package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shelfstream/shelfstream/internal/books"
)

var platformsCmd = &cobra.Command{
	Use:   "platforms",
	Short: "List enabled platforms and their capabilities",
	RunE:  runPlatforms,
}

func init() {
	rootCmd.AddCommand(platformsCmd)
}

type platformInfo struct {
	Platform     books.Platform     `json:"platform"`
	Capabilities books.Capabilities `json:"capabilities"`
	Disabled     bool               `json:"disabled"`
	LastError    string             `json:"lastError,omitempty"`
}

func runPlatforms(cmd *cobra.Command, args []string) error {
	lib, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Close()
	defer lib.Close()

	var infos []platformInfo
	for _, platform := range lib.EnabledPlatforms() {
		caps, err := lib.Capabilities(platform)
		if err != nil {
			continue
		}
		status := lib.PlatformStatus(platform)
		disabled := status.DisabledTill != nil
		infos = append(infos, platformInfo{
			Platform:     platform,
			Capabilities: caps,
			Disabled:     disabled,
			LastError:    status.LastError,
		})
	}

	if jsonOutput() {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(infos)
	}

	fmt.Println("Enabled platforms:")
	for _, info := range infos {
		notes := ""
		if info.Capabilities.RequiresAuth {
			notes += " [auth]"
		}
		if !info.Capabilities.DownloadSupported {
			notes += " [link-only]"
		}
		if info.Disabled {
			notes += " [temporarily disabled]"
		}
		fmt.Printf("  %s%s\n", info.Platform, notes)
	}
	return nil
}
