package loader

import (
	"testing"

	"github.com/matryer/is"
)

func TestBuildStopTimeParsesRow(t *testing.T) {
	is := is.New(t)
	headers := []string{"trip_id", "arrival_time", "departure_time", "stop_id", "stop_sequence", "shape_dist_traveled"}
	cols, err := resolveStopTimeColumns(headers)
	is.NoErr(err)

	record := []string{"TRIP_857421_1", "06:53:02", "06:53:02", "StopArea:8775890", "6", "5543.4"}
	st, err := buildStopTime(record, cols)
	is.NoErr(err)
	is.Equal(st.TripID, "TRIP_857421_1")
	is.Equal(st.StopID, "StopArea:8775890")
	is.Equal(st.StopSequence, 6)
	is.Equal(st.ArrivalTime, 6*3600+53*60+2)
	is.Equal(st.DepartureTime, 6*3600+53*60+2)
	is.True(st.ShapeDistTraveled != nil)
	is.Equal(*st.ShapeDistTraveled, 5543.4)
}

func TestBuildStopTimeExtendedClockPastMidnight(t *testing.T) {
	is := is.New(t)
	headers := []string{"trip_id", "arrival_time", "departure_time", "stop_id", "stop_sequence"}
	cols, err := resolveStopTimeColumns(headers)
	is.NoErr(err)

	record := []string{"TRIP_1", "25:05:00", "25:06:00", "StopArea:8775891", "1"}
	st, err := buildStopTime(record, cols)
	is.NoErr(err)
	is.Equal(st.ArrivalTime, 25*3600+5*60)
}

func TestResolveStopTimeColumnsMissingRequired(t *testing.T) {
	is := is.New(t)
	_, err := resolveStopTimeColumns([]string{"trip_id", "arrival_time", "stop_id"})
	is.True(err != nil)
}
