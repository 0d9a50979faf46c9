package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/greysana/kitchen-display-system/internal/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "kds",
		Short:   "Kitchen display sync core",
		Version: version.String(),
		Long: `kds runs the broadcast relay that backend publishers push order events
through, and the per-display board that keeps its order lanes in sync with
the collaborator API.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(relayCmd())
	rootCmd.AddCommand(boardCmd())
	rootCmd.AddCommand(tailCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
