// cmd/hyphactl/root.go
// Root command for hyphactl. This tool is interactive and writes straight to
// stdout/stderr rather than through zap.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "hyphactl",
	Short: "hyphactl -- debug client for a running hyphagw router's control plane",
}

func init() {
	rootCmd.AddCommand(newStreamEventsCmd())
	rootCmd.AddCommand(newInvokeCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// Execute is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
