package feature

import (
	"testing"
	"time"

	"github.com/matryer/is"

	"github.com/leonardbinet/railfeed/business/tripstate"
)

func intp(v int) *int       { return &v }
func floatp(v float64) *float64 { return &v }

// TestNaiveBaselineScenario covers spec §8 scenario 5: label=180s,
// last_observed_delay=120s => label_ev=60, naive_pred_mae=60, naive_pred_mse=3600.
func TestNaiveBaselineScenario(t *testing.T) {
	is := is.New(t)

	result := tripstate.Result{
		Rows: []tripstate.RowState{
			{
				TripID: "TRIP_1", RouteShortName: "H", StopID: "StopArea:8775890",
				Predictable:               true,
				ObservedDelay:             intp(120),
				SequenceDiff:              intp(1),
				StationsScheduledTripTime: intp(300),
			},
		},
		Trips: map[string]tripstate.TripAggregate{
			"TRIP_1": {TripID: "TRIP_1", LastObservedDelay: intp(120)},
		},
		Lines: map[string]tripstate.LineAggregate{
			"H": {
				RouteShortName:     "H",
				LineMedianDelay:    floatp(90),
				StationMedianDelay: map[string]float64{"StopArea:8775890": 100},
				RollingTripsOnLine: 3,
			},
		},
	}

	labels := func(tripID, stopID string) (int, bool) {
		return 180, true
	}

	rows := BuildTraining(result, time.Now(), nil, labels)
	is.Equal(len(rows), 1)
	r := rows[0]
	is.True(r.Label != nil)
	is.Equal(*r.Label, 180)
	is.Equal(*r.LabelEV, 60)
	is.Equal(*r.NaivePredMAE, 60)
	is.Equal(*r.NaivePredMSE, 3600)
}

func TestBuildInferenceDropsIncompleteRows(t *testing.T) {
	is := is.New(t)

	result := tripstate.Result{
		Rows: []tripstate.RowState{
			{TripID: "TRIP_1", RouteShortName: "H", StopID: "missing-median", Predictable: true,
				ObservedDelay: intp(10), SequenceDiff: intp(1), StationsScheduledTripTime: intp(120)},
		},
		Trips: map[string]tripstate.TripAggregate{"TRIP_1": {TripID: "TRIP_1"}},
		Lines: map[string]tripstate.LineAggregate{
			"H": {RouteShortName: "H", LineMedianDelay: floatp(10), StationMedianDelay: map[string]float64{}},
		},
	}

	rows := BuildInference(result, time.Now(), nil)
	is.Equal(len(rows), 0)
}
