// Package resolve implements C7 ScheduleResolver (spec §4.3): for a given
// service day, materialize the active service set and project it down to
// active trips and scheduled stop-times. The set-algebra itself
// (services_on/trips_on/stop_times_on) lives on business/data/gtfs.Store,
// which already needs it to answer C1's "list service-ids active on a
// day"/"list trips by day"/"list stop-times by day" query surface (spec
// §4.1); Resolver is the day-scoped facade business/orchestrate consumes,
// so it depends on "resolve a day's schedule" rather than reaching into
// the relational store directly.
package resolve

import (
	"time"

	"github.com/leonardbinet/railfeed/business/clock"
	"github.com/leonardbinet/railfeed/business/data/gtfs"
)

// Resolver resolves a service day against the active GTFSDataset.
type Resolver struct {
	store *gtfs.Store
	loc   *time.Location
}

// NewResolver builds a Resolver against store, resolving days in loc (the
// network's fixed local timezone, spec §3).
func NewResolver(store *gtfs.Store, loc *time.Location) *Resolver {
	return &Resolver{store: store, loc: loc}
}

// ServicesOn returns the set of service-ids active on day (spec §4.3).
func (r *Resolver) ServicesOn(day clock.ServiceDay) (map[string]bool, error) {
	return r.store.ServicesOn(day, r.loc)
}

// TripsOn returns trips whose service-id is active on day (spec §4.3).
func (r *Resolver) TripsOn(day clock.ServiceDay) ([]gtfs.Trip, error) {
	return r.store.TripsOn(day, r.loc)
}

// StopTimesOn returns scheduled stop-times for day, filtered per f (spec §4.3).
func (r *Resolver) StopTimesOn(day clock.ServiceDay, f gtfs.StopTimeFilter) ([]gtfs.StopTime, error) {
	return r.store.StopTimesOn(day, r.loc, f)
}

// RouteShortNamesByTrip builds a trip_id -> route_short_name lookup for
// every trip active on day, needed by business/tripstate to group rows
// into line aggregates (spec §4.9 step 7) without each caller re-deriving
// the trip->route->short-name join itself.
func (r *Resolver) RouteShortNamesByTrip(day clock.ServiceDay) (map[string]string, error) {
	trips, err := r.TripsOn(day)
	if err != nil {
		return nil, err
	}
	routes, err := r.store.ListRoutes(false)
	if err != nil {
		return nil, err
	}
	shortNameByRouteID := make(map[string]string, len(routes))
	for _, route := range routes {
		shortNameByRouteID[route.RouteID] = route.RouteShortName
	}

	out := make(map[string]string, len(trips))
	for _, trip := range trips {
		out[trip.TripID] = shortNameByRouteID[trip.RouteID]
	}
	return out, nil
}
