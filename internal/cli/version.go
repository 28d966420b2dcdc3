package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Build information, overridden with -ldflags.
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// NewVersionCmd creates the version command.
func NewVersionCmd() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  "Display version and build information for fanfetch",
		Args:  cobra.NoArgs,
		Run: func(*cobra.Command, []string) {
			if short {
				_, _ = fmt.Fprintln(stdout(), Version)
				return
			}
			_, _ = fmt.Fprintf(stdout(), "fanfetch version %s (%s/%s, %s)\ncommit %s, built %s\n",
				Version, runtime.GOOS, runtime.GOARCH, runtime.Version(), GitCommit, BuildDate)
		},
	}

	cmd.Flags().BoolVar(&short, "short", false, "print only the version number")

	return cmd
}
