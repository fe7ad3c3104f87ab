// Command railfeed runs the train-delay ingestion/enrichment pipeline:
// poll cycles, GTFS schedule refresh, and day feature-matrix builds, all
// driven from business/orchestrate. Subcommand shape follows tidbyt-gtfs's
// and the gtfs-validator's cobra trees; each subcommand's own flag/env
// struct is parsed with ardanlabs/conf the way every teacher main() does.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var build = "develop"

func main() {
	root := &cobra.Command{
		Use:          "railfeed",
		Short:        "Train-delay ingestion and enrichment pipeline",
		SilenceUsage: true,
	}
	root.AddCommand(newExtractCmd())
	root.AddCommand(newRefreshScheduleCmd())
	root.AddCommand(newBuildFeaturesCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "railfeed: %v\n", err)
		os.Exit(1)
	}
}
