// Command barreld is the Barrel daemon entrypoint: it loads the
// declared stores, opens a registry over them, and blocks until
// signaled to stop. Per spec.md §1 the HTTP surface is out of scope, so
// serve never opens a listener — it exists to prove the registry and
// store layers boot and shut down cleanly end to end.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "barreld",
		Short: "Barrel document database daemon",
	}
	root.AddCommand(newServeCmd())
	return root
}
