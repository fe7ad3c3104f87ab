package main

import (
	"context"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/leonardbinet/railfeed/business/orchestrate"
	"github.com/leonardbinet/railfeed/foundation/logger"
)

func newRefreshScheduleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh-schedule",
		Short: "Fetch and load the latest GTFS schedule (spec C3+C1)",
		RunE: func(cmd *cobra.Command, args []string) error {
			var cfg commonCfg
			if err := parseCommonCfg(nil, "RAILFEED_REFRESH", &cfg); err != nil {
				return err
			}

			log := logger.New(os.Stdout, "RAILFEED_REFRESH : ", logger.LevelInfo)
			deps, cleanup, err := buildDeps(log, cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			log.Infof("refreshing schedule from %s", cfg.GTFS.IndexURL)
			return orchestrate.RefreshSchedule(context.Background(), deps, http.DefaultClient, cfg.GTFS.IndexURL, cfg.GTFS.WorkDir)
		},
	}
}
