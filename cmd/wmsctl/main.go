// Command wmsctl validates WMS source files and builds or issues requests
// against the configured sources.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}
