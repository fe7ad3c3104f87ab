package gtfs

// Route is a row from routes.txt. route_short_name is the identifier the
// spec's line aggregates (§4.9) group by, so it is kept non-pointer and
// indexed on for the query surface below.
type Route struct {
	DatasetID       int64  `db:"dataset_id"`
	RouteID         string `db:"route_id"`
	AgencyID        string `db:"agency_id"`
	RouteShortName  string `db:"route_short_name"`
	RouteLongName   string `db:"route_long_name"`
	RouteType       int    `db:"route_type"`
}

// RecordRoutes bulk-inserts routes under dsTx.DS.
func RecordRoutes(routes []*Route, dsTx *DatasetTransaction) error {
	for _, r := range routes {
		r.DatasetID = dsTx.DS.ID
	}
	stmt := "insert into route (dataset_id, route_id, agency_id, route_short_name, route_long_name, route_type) " +
		"values (:dataset_id, :route_id, :agency_id, :route_short_name, :route_long_name, :route_type)"
	stmt = dsTx.Tx.Rebind(stmt)
	_, err := dsTx.Tx.NamedExec(stmt, routes)
	return err
}
