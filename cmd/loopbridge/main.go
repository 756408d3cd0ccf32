// Command loopbridge hosts an application on a dedicated event-loop thread.
package main

import (
	"os"

	"github.com/Iron-Ham/loopbridge/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
