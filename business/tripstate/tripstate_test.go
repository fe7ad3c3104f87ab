package tripstate

import (
	"testing"
	"time"

	"github.com/matryer/is"

	"github.com/leonardbinet/railfeed/business/clock"
	"github.com/leonardbinet/railfeed/business/data/gtfs"
	"github.com/leonardbinet/railfeed/business/data/realtime"
	"github.com/leonardbinet/railfeed/business/join"
)

// TestTripStatusScenario covers spec §8 scenario 4: a 10-stop trip where
// stops 0-3 have already passed (schedule and realtime) and stops 4-9
// have not yet been observed.
func TestTripStatusScenario(t *testing.T) {
	is := is.New(t)
	loc, err := time.LoadLocation("Europe/Paris")
	is.NoErr(err)
	day := clock.NewServiceDay(2022, time.May, 22, loc)

	const tripID = "TRIP_857421_1"
	var joined []join.JoinedResult
	for seq := 0; seq < 10; seq++ {
		depSeconds := (8*3600) + seq*120
		st := gtfs.StopTime{
			TripID:        tripID,
			StopID:        "StopArea:877589" + string(rune('0'+seq)),
			StopSequence:  seq,
			DepartureTime: depSeconds,
		}
		st.DeriveKeys()
		jr := join.JoinedResult{Day: day, StopTime: st}
		if seq <= 3 {
			jr.HasRealtime = true
			jr.Passage = realtime.Passage{
				ExpectedPassageDay:  day.String(),
				ExpectedPassageTime: depSeconds, // on time
			}
		}
		joined = append(joined, jr)
	}

	// T is after stop 3's departure (8:06:00) but before stop 4's (8:08:00).
	tInstant := day.ToWallClock(8*3600 + 7*60)

	result := Compute(day, tInstant, joined, map[string]string{tripID: "H"}, 0)
	agg := result.Trips[tripID]

	is.Equal(agg.TripStatus, 0.4)
	is.True(agg.LastSequenceNumber != nil)
	is.Equal(*agg.LastSequenceNumber, 3)

	var stop7 RowState
	for _, r := range result.Rows {
		if r.StopSequence == 7 {
			stop7 = r
		}
	}
	is.True(stop7.SequenceDiff != nil)
	is.Equal(*stop7.SequenceDiff, 4)
}
