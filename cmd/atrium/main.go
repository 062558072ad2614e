package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/atrium-sh/atrium/internal/version"
)

var (
	// Build variables set by ldflags
	buildVersion string
	buildCommit  string
	buildTime    string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "atrium",
		Short: "Atrium - self-hosted start page",
		Long: `Atrium is a self-hosted start page: bookmarked app tiles with live
reachability, plus weather and host metric widgets.`,
		Version: version.GetVersion(buildVersion, buildCommit, buildTime),
	}

	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Println(version.GetDetailedVersion(buildVersion, buildCommit, buildTime))
		},
	}
}
