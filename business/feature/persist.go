package feature

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/leonardbinet/railfeed/business/clock"
	"github.com/leonardbinet/railfeed/business/objectstore"
)

// csvRow is Row's on-disk shape. Spec §4.10 requires the identification
// columns {at_datetime, trip_id, stop_id, route_short_name, sequence_diff,
// stations_scheduled_trip_time} to appear twice -- once as "index" columns
// and once as ordinary value columns -- so downstream code can filter the
// matrix without reindexing. The idx_* columns below are that duplication.
type csvRow struct {
	IdxAtDatetime                string `csv:"idx_at_datetime"`
	IdxTripID                    string `csv:"idx_trip_id"`
	IdxStopID                    string `csv:"idx_stop_id"`
	IdxRouteShortName            string `csv:"idx_route_short_name"`
	IdxSequenceDiff              int    `csv:"idx_sequence_diff"`
	IdxStationsScheduledTripTime int    `csv:"idx_stations_scheduled_trip_time"`

	AtDatetime                string  `csv:"at_datetime"`
	TripID                    string  `csv:"trip_id"`
	StopID                    string  `csv:"stop_id"`
	RouteShortName            string  `csv:"route_short_name"`
	SequenceDiff              int     `csv:"sequence_diff"`
	StationsScheduledTripTime int     `csv:"stations_scheduled_trip_time"`
	LastObservedDelay         int     `csv:"last_observed_delay"`
	PredictedStationMedianDelay float64 `csv:"predicted_station_median_delay"`
	LineMedianDelay           float64 `csv:"line_median_delay"`
	RollingTripsOnLine        int     `csv:"rolling_trips_on_line"`
	BusinessDay               bool    `csv:"business_day"`

	Label        string `csv:"label"`
	LabelEV      string `csv:"label_ev"`
	NaivePredMAE string `csv:"naive_pred_mae"`
	NaivePredMSE string `csv:"naive_pred_mse"`
}

func toCSVRow(r Row) csvRow {
	at := r.AtDatetime.Format(time.RFC3339)
	c := csvRow{
		IdxAtDatetime:                at,
		IdxTripID:                    r.TripID,
		IdxStopID:                    r.StopID,
		IdxRouteShortName:            r.RouteShortName,
		IdxSequenceDiff:              r.SequenceDiff,
		IdxStationsScheduledTripTime: r.StationsScheduledTripTime,

		AtDatetime:                   at,
		TripID:                       r.TripID,
		StopID:                       r.StopID,
		RouteShortName:               r.RouteShortName,
		SequenceDiff:                 r.SequenceDiff,
		StationsScheduledTripTime:    r.StationsScheduledTripTime,
		LastObservedDelay:            r.LastObservedDelay,
		PredictedStationMedianDelay:  r.PredictedStationMedianDelay,
		LineMedianDelay:              r.LineMedianDelay,
		RollingTripsOnLine:           r.RollingTripsOnLine,
		BusinessDay:                  r.BusinessDay,
	}
	if r.Label != nil {
		c.Label = fmt.Sprintf("%d", *r.Label)
	}
	if r.LabelEV != nil {
		c.LabelEV = fmt.Sprintf("%d", *r.LabelEV)
	}
	if r.NaivePredMAE != nil {
		c.NaivePredMAE = fmt.Sprintf("%d", *r.NaivePredMAE)
	}
	if r.NaivePredMSE != nil {
		c.NaivePredMSE = fmt.Sprintf("%d", *r.NaivePredMSE)
	}
	return c
}

// MatrixKey returns the object-store key for day D's matrix at instant T,
// per spec §4.10/SPEC_FULL §9: "features/<day>/<instant>.csv".
func MatrixKey(day clock.ServiceDay, instant time.Time) string {
	return objectstore.JoinKey("features", day.String(), instant.Format("150405")+".csv")
}

// WriteDayMatrix serializes rows to CSV and writes them under
// MatrixKey(day, instant) in store (spec §4.10 persistence).
func WriteDayMatrix(ctx context.Context, store objectstore.Store, day clock.ServiceDay, instant time.Time, rows []Row) error {
	csvRows := make([]*csvRow, len(rows))
	for i, r := range rows {
		v := toCSVRow(r)
		csvRows[i] = &v
	}
	body, err := gocsv.MarshalString(&csvRows)
	if err != nil {
		return fmt.Errorf("feature: marshaling matrix for %s %s: %w", day, instant, err)
	}
	return store.Put(ctx, MatrixKey(day, instant), strings.NewReader(body))
}
