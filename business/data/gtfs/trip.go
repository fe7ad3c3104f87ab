package gtfs

// Trip is a single scheduled run of a route on a given service-id (spec
// §3). DirectionID and Headsign follow GTFS trips.txt; TripShortName
// commonly carries the human-facing train number on European networks,
// the same field the teacher's Trip already exposed.
type Trip struct {
	DatasetID     int64   `db:"dataset_id"`
	TripID        string  `db:"trip_id"`
	RouteID       string  `db:"route_id"`
	ServiceID     string  `db:"service_id"`
	TripHeadsign  *string `db:"trip_headsign"`
	TripShortName *string `db:"trip_short_name"`
	DirectionID   *int    `db:"direction_id"`
	BlockID       *string `db:"block_id"`
}

// TrainNum returns the derived train_num (trip_id[5:11], spec §3).
func (t Trip) TrainNum() string { return trainNumFromTripID(t.TripID) }

// RecordTrips bulk-inserts trips under dsTx.DS.
func RecordTrips(trips []*Trip, dsTx *DatasetTransaction) error {
	for _, trip := range trips {
		trip.DatasetID = dsTx.DS.ID
	}
	stmt := "insert into trip ( " +
		"dataset_id, trip_id, route_id, service_id, trip_headsign, trip_short_name, direction_id, block_id) " +
		"values (" +
		":dataset_id, :trip_id, :route_id, :service_id, :trip_headsign, :trip_short_name, :direction_id, :block_id)"
	stmt = dsTx.Tx.Rebind(stmt)
	_, err := dsTx.Tx.NamedExec(stmt, trips)
	return err
}
