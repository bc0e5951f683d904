package main

import (
	"os"

	"github.com/shelfstream/shelfstream/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
