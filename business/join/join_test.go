package join

import (
	"context"
	"testing"
	"time"

	"github.com/matryer/is"

	"github.com/leonardbinet/railfeed/business/clock"
	"github.com/leonardbinet/railfeed/business/data/gtfs"
	"github.com/leonardbinet/railfeed/business/data/realtime"
)

func TestJoinPreservesOrderAndAttachesRealtime(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()
	loc, err := time.LoadLocation("Europe/Paris")
	is.NoErr(err)
	day := clock.NewServiceDay(2022, time.May, 22, loc)

	store := realtime.NewMemoryStore()
	st1 := gtfs.StopTime{TripID: "TRIP_857421_1", StopID: "StopArea:8775890"}
	st1.DeriveKeys()
	st2 := gtfs.StopTime{TripID: "TRIP_857999_1", StopID: "StopArea:8775891"}
	st2.DeriveKeys()

	is.NoErr(store.Put(ctx, []realtime.Passage{{
		StationID:   st1.StationID,
		DayTrainNum: day.String() + "_" + st1.TrainNum,
		WrittenAt:   time.Now(),
		Status:      "present",
	}}))

	results, err := Join(ctx, store, day, []gtfs.StopTime{st1, st2})
	is.NoErr(err)
	is.Equal(len(results), 2)
	is.Equal(results[0].StopTime.TripID, st1.TripID)
	is.True(results[0].HasRealtime)
	is.Equal(results[1].StopTime.TripID, st2.TripID)
	is.True(!results[1].HasRealtime)
}
