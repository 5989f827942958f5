package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			for _, line := range []string{
				fmt.Sprintf("cowfork %s", version),
				fmt.Sprintf("  go:      %s", runtime.Version()),
				fmt.Sprintf("  os/arch: %s/%s", runtime.GOOS, runtime.GOARCH),
			} {
				if _, err := fmt.Fprintln(w, line); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
