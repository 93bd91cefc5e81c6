// Command mongofacaded runs the facade as a standalone process: a wire
// listener speaking the BSON command protocol, an HTTP/JSON RPC surface,
// and a health endpoint, all dispatching through one executor.Engine.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mongofacaded",
		Short: "A MongoDB-wire-compatible database facade",
	}
	cmd.AddCommand(newServeCmd())
	return cmd
}
