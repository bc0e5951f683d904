package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shelfstream/shelfstream/internal/books"
)

var (
	flagInfoPlatform string
	flagInfoHash     string
)

var infoCmd = &cobra.Command{
	Use:   "info <identifier>",
	Short: "Show detailed metadata for a book",
	Args:  cobra.ExactArgs(1),
	RunE:  runInfo,
}

func init() {
	infoCmd.Flags().StringVarP(&flagInfoPlatform, "platform", "p", "", "Platform the identifier belongs to")
	infoCmd.Flags().StringVar(&flagInfoHash, "hash", "", "Book hash (Z-Library)")
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
	identifier := args[0]

	var platform books.Platform
	if flagInfoPlatform != "" {
		var ok bool
		platform, ok = books.ParsePlatform(flagInfoPlatform)
		if !ok {
			return fmt.Errorf("%w: %s (valid: %s)",
				books.ErrPlatformUnknown, flagInfoPlatform, platformList())
		}
	} else {
		var err error
		platform, err = detectPlatform(identifier)
		if err != nil {
			return err
		}
	}

	info := books.DownloadInfo{Platform: platform, BookID: identifier, HashID: flagInfoHash}
	if platform == books.PlatformAnnasArchive {
		info.HashID = identifier
	}

	lib, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Close()
	defer lib.Close()

	book, err := lib.GetBookInfo(cmd.Context(), info)
	if err != nil {
		return err
	}

	if jsonOutput() {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(book)
	}

	printField := func(label, value string) {
		if value != "" {
			fmt.Printf("%-12s %s\n", label+":", value)
		}
	}
	printField("Title", book.Title)
	printField("Author", book.Authors)
	printField("Year", book.Year)
	printField("Publisher", book.Publisher)
	printField("Language", book.Language)
	printField("Format", book.FileType)
	printField("Size", book.FileSize)
	printField("ISBN", book.ISBN)
	printField("Description", book.Description)
	return nil
}
