package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shelfstream/shelfstream/internal/books"
	"github.com/shelfstream/shelfstream/internal/download"
	"github.com/shelfstream/shelfstream/internal/library"
)

var (
	flagSavePath string
	flagPlatform string
	flagHash     string
	flagDryRun   bool
)

var downloadCmd = &cobra.Command{
	Use:   "download <identifier>",
	Short: "Download a book by URL or platform identifier",
	Long: `Download a book. The identifier may be a direct download URL, a
Z-Library numeric ID (pair it with --hash), a Liber3 book ID or an
Anna's Archive MD5. The platform is auto-detected from the identifier
shape; pass --platform to override.`,
	Args: cobra.ExactArgs(1),
	RunE: runDownload,
}

func init() {
	downloadCmd.Flags().StringVarP(&flagSavePath, "save-path", "s", "", "Directory to save the file")
	downloadCmd.Flags().StringVarP(&flagPlatform, "platform", "p", "", "Platform the identifier belongs to")
	downloadCmd.Flags().StringVar(&flagHash, "hash", "", "Book hash (Z-Library)")
	downloadCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "Fetch and discard, verifying downloadability")
	rootCmd.AddCommand(downloadCmd)
}

func runDownload(cmd *cobra.Command, args []string) error {
	identifier := args[0]

	var platform books.Platform
	if flagPlatform != "" {
		var ok bool
		platform, ok = books.ParsePlatform(flagPlatform)
		if !ok {
			return fmt.Errorf("%w: %s (valid: %s)",
				books.ErrPlatformUnknown, flagPlatform, platformList())
		}
	} else {
		var err error
		platform, err = detectPlatform(identifier)
		if err != nil {
			return err
		}
	}

	info := books.DownloadInfo{Platform: platform}
	if strings.HasPrefix(identifier, "http") {
		info.DownloadURL = identifier
	} else {
		info.BookID = identifier
		info.HashID = flagHash
		if platform == books.PlatformAnnasArchive {
			info.HashID = identifier
		}
	}

	lib, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Close()
	defer lib.Close()

	result, err := lib.Download(cmd.Context(), download.Request{
		Info:     info,
		SavePath: flagSavePath,
		Discard:  flagDryRun,
	})
	if err != nil {
		if books.IsDownloadError(err) && platform == books.PlatformAnnasArchive {
			return annasMirrorHint(cmd, lib, info, err)
		}
		return fmt.Errorf("download failed: %w", err)
	}

	if jsonOutput() {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	fmt.Printf("Successfully downloaded: %s\n", result.FileName)
	if result.FilePath != "" {
		fmt.Printf("Saved to: %s\n", result.FilePath)
	}
	fmt.Printf("File size: %d bytes\n", result.Size)
	return nil
}

// annasMirrorHint resolves the mirror links for a link-only platform so
// the failure still leaves the user with something actionable.
func annasMirrorHint(cmd *cobra.Command, lib *library.Library, info books.DownloadInfo, downloadErr error) error {
	resolved, err := lib.Resolve(cmd.Context(), info)
	if err != nil {
		return fmt.Errorf("download failed: %w", downloadErr)
	}

	fmt.Println("Anna's Archive does not host files directly. Mirror links:")
	for i := 1; ; i++ {
		mirror, ok := resolved.Extra[fmt.Sprintf("mirror_%d", i)]
		if !ok {
			break
		}
		fmt.Printf("  %d. %s\n", i, mirror)
	}
	if resolved.DownloadURL != "" {
		fmt.Printf("Detail page: %s\n", resolved.DownloadURL)
	}
	return fmt.Errorf("download failed: %w", downloadErr)
}

// detectPlatform guesses the owning platform from the identifier shape.
func detectPlatform(identifier string) (books.Platform, error) {
	if strings.HasPrefix(identifier, "http") {
		switch {
		case strings.Contains(identifier, "archive.org"):
			return books.PlatformArchiveOrg, nil
		case strings.Contains(identifier, "opds/download"):
			return books.PlatformCalibreWeb, nil
		default:
			return "", fmt.Errorf("%w: cannot detect platform from URL, pass --platform",
				books.ErrPlatformUnknown)
		}
	}
	switch {
	case len(identifier) == 32 && strings.HasPrefix(identifier, "L"):
		return books.PlatformLiber3, nil
	case len(identifier) == 32 && isHex(identifier):
		return books.PlatformAnnasArchive, nil
	case isDigits(identifier):
		return books.PlatformZLibrary, nil
	default:
		return "", fmt.Errorf("%w: cannot detect platform from identifier, pass --platform",
			books.ErrPlatformUnknown)
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isHex(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f':
		default:
			return false
		}
	}
	return s != ""
}
