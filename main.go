package main

import (
	"os"

	"github.com/dpshade/pocket-kb/internal/cli"
)

// Set at build time with -ldflags "-X main.version=..."
var version = "0.1.0"

func main() {
	os.Exit(cli.Execute(version))
}
