// cmd/helix/main.go
//
// Entry point for the helix CLI. Each command builds its configuration from
// the project file and flags, then hands records to the pipeline driver.

package main

import (
	"errors"
	"fmt"
	"os"
)

// version is stamped into archives; overridden at build time with
// -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errRunFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
