package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/leonardbinet/railfeed/business/clock"
	"github.com/leonardbinet/railfeed/business/data/gtfs"
	"github.com/leonardbinet/railfeed/business/orchestrate"
	"github.com/leonardbinet/railfeed/foundation/logger"
)

func newBuildFeaturesCmd() *cobra.Command {
	var training bool

	cmd := &cobra.Command{
		Use:   "build-features <YYYYMMDD>",
		Short: "Sweep a service day and write feature matrices (spec C7-C10)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var cfg commonCfg
			if err := parseCommonCfg(nil, "RAILFEED_FEATURES", &cfg); err != nil {
				return err
			}

			log := logger.New(os.Stdout, "RAILFEED_FEATURES : ", logger.LevelInfo)
			deps, cleanup, err := buildDeps(log, cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			day, err := clock.ServiceDayFromYYYYMMDD(args[0], deps.Loc)
			if err != nil {
				return fmt.Errorf("parsing day %s: %w", args[0], err)
			}

			var labels func(tripID, stopID string) (int, bool)
			if training {
				stopTimes, err := deps.Resolver.StopTimesOn(day, gtfs.StopTimeFilter{})
				if err != nil {
					return fmt.Errorf("resolving stop times for labels: %w", err)
				}
				labels, err = orchestrate.LabelSourceFromRealtime(context.Background(), deps, day, time.Now(), stopTimes)
				if err != nil {
					return err
				}
			}

			log.Infof("building features for %s, training=%v", day, training)
			return orchestrate.BuildDayFeatures(context.Background(), deps, day, labels)
		},
	}
	cmd.Flags().BoolVar(&training, "training", false, "emit retroactive TrainingRows instead of inference FeatureVectors")
	return cmd
}
