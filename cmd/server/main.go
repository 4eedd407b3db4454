// Command cms-admin runs the CMS admin authentication service.
package main

import (
	"fmt"
	"os"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	cmd := NewRootCmd()
	cmd.Version = fmt.Sprintf("%s (built: %s)", version, buildDate)

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
