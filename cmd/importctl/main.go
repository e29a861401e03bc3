// Command importctl operates the bulk import pipeline from the shell.
package main

import (
	"fmt"
	"os"

	"github.com/rpattn/bulkimport/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
