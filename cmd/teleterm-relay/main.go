// Command teleterm-relay runs the relay server: it accepts streamer and
// watcher connections, keeps the per-connection state machine and the
// connection table, and optionally terminates TLS itself.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "teleterm-relay",
		Short: "Terminal-sharing relay server",
	}
	root.AddCommand(serveCmd(), initConfigCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
