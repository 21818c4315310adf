// cmd/hyphactl/version.go
// Implements `hyphactl version`.
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Voskan/hyphagw/pkg/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print hyphactl version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(version.String())
			return nil
		},
	}
}
