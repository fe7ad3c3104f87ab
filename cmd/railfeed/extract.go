package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/leonardbinet/railfeed/business/orchestrate"
	"github.com/leonardbinet/railfeed/foundation/logger"
)

// defaultCyclePeriodSeconds is the default pacing between poll cycles
// (spec §5 "one cycle roughly every 60-90s").
const defaultCyclePeriodSeconds = 75

func newExtractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract [cycle_sec]",
		Short: "Run poll cycles against the vendor realtime API",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cyclePeriod := defaultCyclePeriodSeconds * time.Second
			if len(args) == 1 {
				secs, err := strconv.Atoi(args[0])
				if err != nil {
					return err
				}
				cyclePeriod = time.Duration(secs) * time.Second
			}

			// Only the environment drives commonCfg here -- cobra already
			// owns this command's own flags/positional args (cycle_sec).
			var cfg commonCfg
			if err := parseCommonCfg(nil, "RAILFEED_EXTRACT", &cfg); err != nil {
				return err
			}

			log := logger.New(os.Stdout, "RAILFEED_EXTRACT : ", logger.LevelInfo)
			deps, cleanup, err := buildDeps(log, cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			log.Infof("starting extract loop, cycle period %s, hard stop %ds", cyclePeriod, orchestrate.DefaultHardStopSeconds)
			return orchestrate.RunLoop(ctx, deps, cyclePeriod, orchestrate.DefaultHardStopSeconds*time.Second)
		},
	}
}
