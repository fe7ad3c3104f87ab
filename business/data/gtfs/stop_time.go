package gtfs

import "github.com/leonardbinet/railfeed/business/clock"

// StopTime is one scheduled stop of a trip at a stop (spec §3). Arrival and
// departure are stored as raw extended-clock seconds (clock.ExtendedTime),
// the same representation the teacher stores for its own stop_time rows,
// just typed via business/clock instead of a bare int.
type StopTime struct {
	DatasetID         int64    `db:"dataset_id"`
	TripID            string   `db:"trip_id"`
	StopSequence      int      `db:"stop_sequence"`
	StopID            string   `db:"stop_id"`
	ArrivalTime       int      `db:"arrival_time"`
	DepartureTime     int      `db:"departure_time"`
	ShapeDistTraveled *float64 `db:"shape_dist_traveled"`

	// StationID and TrainNum are derived, not stored: station_id is the
	// last 7 characters of stop_id, train_num is trip_id[5:11] (spec §3,
	// matching original_source/api_etl/models.py's train_num = trip_id[5:11]).
	StationID string `db:"-"`
	TrainNum  string `db:"-"`
}

// DeriveKeys fills StationID/TrainNum from StopID/TripID per spec §3.
func (st *StopTime) DeriveKeys() {
	st.StationID = stationIDFromStopID(st.StopID)
	st.TrainNum = trainNumFromTripID(st.TripID)
}

func stationIDFromStopID(stopID string) string {
	if len(stopID) < 7 {
		return stopID
	}
	return stopID[len(stopID)-7:]
}

func trainNumFromTripID(tripID string) string {
	if len(tripID) < 11 {
		return ""
	}
	return tripID[5:11]
}

// ArrivalExtended/DepartureExtended expose the stored seconds as an
// ExtendedTime, the form business/resolve and business/tripstate consume.
func (st StopTime) ArrivalExtended() clock.ExtendedTime   { return clock.ExtendedTime{Seconds: st.ArrivalTime} }
func (st StopTime) DepartureExtended() clock.ExtendedTime { return clock.ExtendedTime{Seconds: st.DepartureTime} }

// RecordStopTimes bulk-inserts stopTimes under dsTx.DS, matching the
// teacher's RecordStopTime batching (one NamedExec per slice).
func RecordStopTimes(stopTimes []*StopTime, dsTx *DatasetTransaction) error {
	for _, st := range stopTimes {
		st.DatasetID = dsTx.DS.ID
	}
	stmt := "insert into stop_time ( " +
		"dataset_id, trip_id, stop_sequence, stop_id, arrival_time, departure_time, shape_dist_traveled) " +
		"values (" +
		":dataset_id, :trip_id, :stop_sequence, :stop_id, :arrival_time, :departure_time, :shape_dist_traveled)"
	stmt = dsTx.Tx.Rebind(stmt)
	_, err := dsTx.Tx.NamedExec(stmt, stopTimes)
	return err
}
