package gtfs

// Stop is a row from stops.txt: a physical station or platform. Its
// StationID method derives the same key (stop_id's last 7 characters)
// StopTime carries, so callers can match a Stop against station ids (spec §3).
type Stop struct {
	DatasetID    int64   `db:"dataset_id"`
	StopID       string  `db:"stop_id"`
	StopName     string  `db:"stop_name"`
	StopLat      float64 `db:"stop_lat"`
	StopLon      float64 `db:"stop_lon"`
	LocationType int     `db:"location_type"`
	ParentStation *string `db:"parent_station"`
}

// StationID returns the derived station id (spec §3).
func (s Stop) StationID() string { return stationIDFromStopID(s.StopID) }

// RecordStops bulk-inserts stops under dsTx.DS.
func RecordStops(stops []*Stop, dsTx *DatasetTransaction) error {
	for _, s := range stops {
		s.DatasetID = dsTx.DS.ID
	}
	stmt := "insert into stop (dataset_id, stop_id, stop_name, stop_lat, stop_lon, location_type, parent_station) " +
		"values (:dataset_id, :stop_id, :stop_name, :stop_lat, :stop_lon, :location_type, :parent_station)"
	stmt = dsTx.Tx.Rebind(stmt)
	_, err := dsTx.Tx.NamedExec(stmt, stops)
	return err
}
