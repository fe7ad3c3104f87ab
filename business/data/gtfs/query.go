package gtfs

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/leonardbinet/railfeed/business/clock"
	"github.com/leonardbinet/railfeed/foundation/database"
)

// QueryLevel names how much a query resolves beyond raw ids, per spec
// §4.1 ("ids only / entity / joined tuple"). No Store method takes a
// QueryLevel: each returns its own table's rows (StopTimesOn with derived
// keys filled in), and none returns bare ids or joined tuples.
type QueryLevel int

const (
	// IDOnly returns bare identifier strings, no row hydration.
	IDOnly QueryLevel = iota
	// Entity hydrates the queried table's own rows.
	Entity
	// Joined additionally hydrates related rows (StopTime joined with
	// Trip/Stop/Route/Calendar, as the query needs).
	Joined
)

// Store is the query surface C1 ScheduleStore exposes over a *sqlx.DB. All
// methods operate against whichever GTFSDataset is active at call time.
type Store struct {
	db *sqlx.DB
}

// NewStore wraps db as a Store.
func NewStore(db *sqlx.DB) *Store { return &Store{db: db} }

func (s *Store) activeDataset() (*GTFSDataset, error) {
	return GetLatestDataset(s.db)
}

// ListRoutes returns routes for the active dataset. When distinctByShortName
// is true, only the first route seen for each route_short_name is kept
// (spec §4.1 "list routes, optionally distinct by short name").
func (s *Store) ListRoutes(distinctByShortName bool) ([]Route, error) {
	ds, err := s.activeDataset()
	if err != nil {
		return nil, err
	}
	var all []Route
	stmt := s.db.Rebind("select * from route where dataset_id = ? order by route_short_name")
	if err := s.db.Select(&all, stmt, ds.ID); err != nil {
		return nil, fmt.Errorf("listing routes: %w", err)
	}
	if !distinctByShortName {
		return all, nil
	}
	seen := map[string]bool{}
	var out []Route
	for _, r := range all {
		if seen[r.RouteShortName] {
			continue
		}
		seen[r.RouteShortName] = true
		out = append(out, r)
	}
	return out, nil
}

// ListStops returns stops for the active dataset, optionally restricted to
// those touched by routeID via StopTime -> Trip -> Route (spec §4.1).
func (s *Store) ListStops(routeID string) ([]Stop, error) {
	ds, err := s.activeDataset()
	if err != nil {
		return nil, err
	}
	var stops []Stop
	if routeID == "" {
		stmt := s.db.Rebind("select * from stop where dataset_id = ?")
		if err := s.db.Select(&stops, stmt, ds.ID); err != nil {
			return nil, fmt.Errorf("listing stops: %w", err)
		}
		return stops, nil
	}
	stmt := s.db.Rebind(
		"select distinct s.* from stop s " +
			"join stop_time st on st.dataset_id = s.dataset_id and st.stop_id = s.stop_id " +
			"join trip t on t.dataset_id = st.dataset_id and t.trip_id = st.trip_id " +
			"where s.dataset_id = ? and t.route_id = ?")
	if err := s.db.Select(&stops, stmt, ds.ID, routeID); err != nil {
		return nil, fmt.Errorf("listing stops for route %s: %w", routeID, err)
	}
	return stops, nil
}

// ServicesOn returns the set of service-ids active on day, per spec §4.3:
// weekday calendars valid on day, plus per-date additions, minus per-date
// removals.
func (s *Store) ServicesOn(day clock.ServiceDay, loc *time.Location) (map[string]bool, error) {
	ds, err := s.activeDataset()
	if err != nil {
		return nil, err
	}
	dayT, err := time.ParseInLocation("20060102", day.String(), loc)
	if err != nil {
		return nil, err
	}

	var calendars []Calendar
	stmt := s.db.Rebind("select * from calendar where dataset_id = ? and start_date <= ? and end_date >= ?")
	if err := s.db.Select(&calendars, stmt, ds.ID, dayT, dayT); err != nil {
		return nil, fmt.Errorf("loading calendars: %w", err)
	}

	services := map[string]bool{}
	for _, c := range calendars {
		if c.RunsOn(dayT.Weekday()) {
			services[c.ServiceID] = true
		}
	}

	var exceptions []CalendarException
	stmt = s.db.Rebind("select * from calendar_date where dataset_id = ? and date = ?")
	if err := s.db.Select(&exceptions, stmt, ds.ID, dayT); err != nil {
		return nil, fmt.Errorf("loading calendar exceptions: %w", err)
	}
	for _, e := range exceptions {
		switch ExceptionType(e.ExceptionType) {
		case ExceptionAdded:
			services[e.ServiceID] = true
		case ExceptionRemoved:
			delete(services, e.ServiceID)
		}
	}
	return services, nil
}

// TripsOn returns trips whose service-id is active on day (spec §4.3).
func (s *Store) TripsOn(day clock.ServiceDay, loc *time.Location) ([]Trip, error) {
	ds, err := s.activeDataset()
	if err != nil {
		return nil, err
	}
	services, err := s.ServicesOn(day, loc)
	if err != nil {
		return nil, err
	}
	if len(services) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(services))
	for id := range services {
		ids = append(ids, id)
	}
	var trips []Trip
	stmt, args, err := database.PrepareNamedQueryFromMap(
		"select * from trip where dataset_id = :dataset_id and service_id in (:service_ids)",
		s.db,
		map[string]interface{}{"dataset_id": ds.ID, "service_ids": ids},
	)
	if err != nil {
		return nil, err
	}
	if err := s.db.Select(&trips, stmt, args...); err != nil {
		return nil, fmt.Errorf("listing trips on %s: %w", day, err)
	}
	return trips, nil
}

// StopTimeFilter narrows StopTimesOn per spec §4.3.
type StopTimeFilter struct {
	RouteShortName string
	StationID      string
	TripIDs        []string
	// ActiveAt, when non-nil, restricts to trips whose first stop
	// departure <= *ActiveAt and last stop departure >= *ActiveAt.
	ActiveAt *clock.ExtendedTime
	// DepartureFrom/DepartureTo, both optional, restrict departure_time
	// (extended-clock seconds) to [from, to].
	DepartureFrom *int
	DepartureTo   *int
}

// StopTimesOn returns stop_times for trips active on day, filtered per f,
// with the tie-break dedup rule from spec §4.3: among rows sharing
// (station_id, day_train_num), drop rows with empty derived keys first,
// then keep only the first remaining row.
func (s *Store) StopTimesOn(day clock.ServiceDay, loc *time.Location, f StopTimeFilter) ([]StopTime, error) {
	trips, err := s.TripsOn(day, loc)
	if err != nil {
		return nil, err
	}
	if len(trips) == 0 {
		return nil, nil
	}

	tripByID := map[string]Trip{}
	tripIDs := make([]string, 0, len(trips))
	for _, t := range trips {
		if len(f.TripIDs) > 0 && !containsStr(f.TripIDs, t.TripID) {
			continue
		}
		tripByID[t.TripID] = t
		tripIDs = append(tripIDs, t.TripID)
	}
	if len(tripIDs) == 0 {
		return nil, nil
	}

	if f.RouteShortName != "" {
		routes, err := s.ListRoutes(false)
		if err != nil {
			return nil, err
		}
		routeIDs := map[string]bool{}
		for _, r := range routes {
			if r.RouteShortName == f.RouteShortName {
				routeIDs[r.RouteID] = true
			}
		}
		filtered := tripIDs[:0]
		for _, id := range tripIDs {
			if routeIDs[tripByID[id].RouteID] {
				filtered = append(filtered, id)
			}
		}
		tripIDs = filtered
	}
	if len(tripIDs) == 0 {
		return nil, nil
	}

	ds, err := s.activeDataset()
	if err != nil {
		return nil, err
	}
	query := "select * from stop_time where dataset_id = ? and trip_id in (?)"
	args := []interface{}{ds.ID, tripIDs}
	if f.DepartureFrom != nil {
		query += " and departure_time >= ?"
		args = append(args, *f.DepartureFrom)
	}
	if f.DepartureTo != nil {
		query += " and departure_time <= ?"
		args = append(args, *f.DepartureTo)
	}
	query += " order by trip_id, stop_sequence"

	stmt, inArgs, err := sqlx.In(query, args...)
	if err != nil {
		return nil, err
	}
	stmt = s.db.Rebind(stmt)
	var rows []StopTime
	if err := s.db.Select(&rows, stmt, inArgs...); err != nil {
		return nil, fmt.Errorf("listing stop_times on %s: %w", day, err)
	}
	for i := range rows {
		rows[i].DeriveKeys()
	}

	if f.StationID != "" {
		filtered := rows[:0]
		for _, r := range rows {
			if r.StationID == f.StationID {
				filtered = append(filtered, r)
			}
		}
		rows = filtered
	}
	if f.ActiveAt != nil {
		rows = filterActiveAt(rows, *f.ActiveAt)
	}

	return dedupeStopTimes(rows), nil
}

func containsStr(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

// filterActiveAt keeps only stop_times belonging to trips whose first stop
// departure <= at and last stop departure >= at (spec §4.3).
func filterActiveAt(rows []StopTime, at clock.ExtendedTime) []StopTime {
	byTrip := map[string][]StopTime{}
	order := []string{}
	for _, r := range rows {
		if _, ok := byTrip[r.TripID]; !ok {
			order = append(order, r.TripID)
		}
		byTrip[r.TripID] = append(byTrip[r.TripID], r)
	}
	var out []StopTime
	for _, tripID := range order {
		trip := byTrip[tripID]
		first, last := trip[0].DepartureTime, trip[0].DepartureTime
		for _, r := range trip {
			if r.DepartureTime < first {
				first = r.DepartureTime
			}
			if r.DepartureTime > last {
				last = r.DepartureTime
			}
		}
		if first <= at.Seconds && last >= at.Seconds {
			out = append(out, trip...)
		}
	}
	return out
}

// dedupeStopTimes applies the spec §4.3 tie-break: rows with empty derived
// keys are un-joinable and dropped outright; among the remainder, rows
// sharing (station_id, day_train_num) keep only the first one seen.
func dedupeStopTimes(rows []StopTime) []StopTime {
	type key struct{ station, dayTrainNum string }
	seen := map[key]bool{}
	var out []StopTime
	for _, r := range rows {
		if r.StationID == "" || r.TrainNum == "" {
			continue
		}
		k := key{r.StationID, r.TrainNum}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, r)
	}
	return out
}
