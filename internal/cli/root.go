// Package cli implements the shelfstream command-line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/shelfstream/shelfstream/internal/config"
	"github.com/shelfstream/shelfstream/internal/library"
	"github.com/shelfstream/shelfstream/internal/logger"
)

var (
	flagConfig string
	flagOutput string
	flagDebug  bool
)

var rootCmd = &cobra.Command{
	Use:   "shelfstream",
	Short: "Search and download ebooks across multiple platforms",
	Long: `Shelfstream searches Calibre-Web, Z-Library, Archive.org, Liber3 and
Anna's Archive in parallel and downloads books from whichever platform
has them.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "Path to the configuration file")
	rootCmd.PersistentFlags().StringVarP(&flagOutput, "output", "o", "text", "Output format: text or json")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	// A .env next to the binary is a convenience for secret material
	// like SHELFSTREAM_SECRET_KEY; absence is not an error.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// setup loads config, builds the logger and opens the library facade.
// The caller owns the returned closers.
func setup() (*library.Library, *logger.Logger, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("load configuration: %w", err)
	}

	logCfg := cfg.Logging
	if flagDebug {
		logCfg.Level = "debug"
	}
	log := logger.New(logger.Config{
		Level:  logCfg.Level,
		Format: logCfg.Format,
		Path:   logCfg.Path,
	})

	lib, err := library.New(cfg, log.Logger, library.Options{})
	if err != nil {
		log.Close()
		return nil, nil, err
	}
	return lib, log, nil
}

func jsonOutput() bool {
	return flagOutput == "json"
}
