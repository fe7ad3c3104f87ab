// Package tripstate implements C9 TripStateEngine (spec §4.9): computes
// passed/delay flags per stop, aggregates per trip and per line, and
// back-propagates passed_realtime across a trip's stops. No equivalent
// exists in the teacher (its deviation model is GPS-distance-based, not
// schedule-vs-realtime-clock-based); built fresh in the teacher's plain
// struct + explicit-loop idiom (no reflection, no generic reduction
// library -- none is wired anywhere in the pack for this kind of
// streaming groupby).
package tripstate

import (
	"sort"
	"time"

	"github.com/leonardbinet/railfeed/business/clock"
	"github.com/leonardbinet/railfeed/business/join"
)

// DefaultWindowSeconds is the default W for line aggregates (spec §4.9.7).
const DefaultWindowSeconds = 1200

// RowState is one stop's computed state at instant T (spec §4.9 steps 1-4, 6, 9).
type RowState struct {
	Day            clock.ServiceDay
	TripID         string
	RouteShortName string
	StopID         string
	StopSequence   int
	ScheduledDeparture int

	PassedSchedule bool
	HasRealtime    bool
	PassedRealtime bool
	ObservedDelay  *int
	ExpectedDelay  *int
	// RealtimeDiff is T - realtime.expected (seconds), populated whenever
	// HasRealtime is true. computeLineAggregates uses it to restrict line
	// aggregates to the rolling window 0 <= diff < W (spec §4.9 step 7).
	RealtimeDiff *int

	SequenceDiff              *int
	StationsScheduledTripTime *int
	Predictable               bool
}

// TripAggregate is the per-trip summary from spec §4.9 step 5.
type TripAggregate struct {
	TripID                       string
	TotalSequence                int
	TripStatus                   float64
	LastSequenceNumber           *int
	LastObservedDelay            *int
	LastObservedScheduledDepTime *int
}

// LineAggregate is the per-route-short-name summary from spec §4.9 step 7.
type LineAggregate struct {
	RouteShortName     string
	LineMedianDelay    *float64
	RollingTripsOnLine int
	// StationMedianDelay maps stop_id -> median observed_delay for this line.
	StationMedianDelay map[string]float64
}

// Result is the full output of one TripStateEngine run.
type Result struct {
	Rows  []RowState
	Trips map[string]TripAggregate
	Lines map[string]LineAggregate
}

// Compute runs the full TripStateEngine pipeline (spec §4.9 steps 1-9) at
// wall-clock instant t, over joined results for service day day. routeOf
// maps trip_id to route short name (resolved by the caller via
// business/resolve + business/data/gtfs before calling Compute).
// windowSeconds is W for line aggregates; pass 0 for DefaultWindowSeconds.
func Compute(day clock.ServiceDay, t time.Time, joined []join.JoinedResult, routeOf map[string]string, windowSeconds int) Result {
	if windowSeconds <= 0 {
		windowSeconds = DefaultWindowSeconds
	}
	loc := day.Location()

	rows := make([]RowState, len(joined))
	byTrip := map[string][]int{}
	for i, jr := range joined {
		row := RowState{
			Day:                 day,
			TripID:              jr.StopTime.TripID,
			RouteShortName:      routeOf[jr.StopTime.TripID],
			StopID:              jr.StopTime.StopID,
			StopSequence:        jr.StopTime.StopSequence,
			ScheduledDeparture:  jr.StopTime.DepartureTime,
		}
		row.PassedSchedule = clock.SecondsSince(t, day, jr.StopTime.DepartureExtended()) >= 0

		if jr.HasRealtime {
			row.HasRealtime = true
			expectedDay, err := clock.ServiceDayFromYYYYMMDD(jr.Passage.ExpectedPassageDay, loc)
			if err == nil {
				expected := clock.ExtendedTime{Seconds: jr.Passage.ExpectedPassageTime}
				diff := clock.SecondsSince(t, expectedDay, expected)
				row.RealtimeDiff = intPtr(diff)
				row.PassedRealtime = diff >= 0
				delay := clock.Delay(day, jr.StopTime.DepartureExtended(), expectedDay, expected)
				if row.PassedRealtime {
					row.ObservedDelay = intPtr(delay)
				} else {
					row.ExpectedDelay = intPtr(delay)
				}
			}
		}

		rows[i] = row
		byTrip[row.TripID] = append(byTrip[row.TripID], i)
	}

	trips := computeTripAggregates(rows, byTrip)
	backPropagate(rows, byTrip)
	annotateSequenceDiff(rows, byTrip, trips)
	markPredictable(rows, trips)
	lines := computeLineAggregates(rows, trips, windowSeconds)

	return Result{Rows: rows, Trips: trips, Lines: lines}
}

func intPtr(v int) *int { return &v }

// computeTripAggregates implements spec §4.9 step 5.
func computeTripAggregates(rows []RowState, byTrip map[string][]int) map[string]TripAggregate {
	out := make(map[string]TripAggregate, len(byTrip))
	for tripID, idxs := range byTrip {
		agg := TripAggregate{TripID: tripID, TotalSequence: len(idxs)}
		passedCount := 0
		for _, i := range idxs {
			if rows[i].PassedSchedule {
				passedCount++
			}
		}
		agg.TripStatus = float64(passedCount) / float64(agg.TotalSequence)

		if agg.TripStatus > 0 && agg.TripStatus < 1 {
			maxSeq := -1
			lastIdx := -1
			for _, i := range idxs {
				if rows[i].PassedRealtime && rows[i].StopSequence > maxSeq {
					maxSeq = rows[i].StopSequence
					lastIdx = i
				}
			}
			if lastIdx >= 0 {
				agg.LastSequenceNumber = intPtr(maxSeq)
				agg.LastObservedDelay = rows[lastIdx].ObservedDelay
				agg.LastObservedScheduledDepTime = intPtr(rows[lastIdx].ScheduledDeparture)
			}
		}
		out[tripID] = agg
	}
	return out
}

// backPropagate implements spec §4.9 step 8: if a stop's realtime is
// absent but a later stop of the same trip is passed_realtime, mark it
// passed_realtime=true.
func backPropagate(rows []RowState, byTrip map[string][]int) {
	for _, idxs := range byTrip {
		sorted := append([]int(nil), idxs...)
		sort.Slice(sorted, func(a, b int) bool { return rows[sorted[a]].StopSequence < rows[sorted[b]].StopSequence })
		laterPassed := false
		for i := len(sorted) - 1; i >= 0; i-- {
			idx := sorted[i]
			if rows[idx].PassedRealtime {
				laterPassed = true
				continue
			}
			if !rows[idx].HasRealtime && laterPassed {
				rows[idx].PassedRealtime = true
			}
		}
	}
}

// annotateSequenceDiff implements spec §4.9 step 6's sequence_diff and
// stations_scheduled_trip_time.
func annotateSequenceDiff(rows []RowState, byTrip map[string][]int, trips map[string]TripAggregate) {
	for tripID, idxs := range byTrip {
		agg := trips[tripID]
		if agg.LastSequenceNumber == nil {
			continue
		}
		lastDep := 0
		if agg.LastObservedScheduledDepTime != nil {
			lastDep = *agg.LastObservedScheduledDepTime
		}
		for _, i := range idxs {
			diff := rows[i].StopSequence - *agg.LastSequenceNumber
			rows[i].SequenceDiff = intPtr(diff)
			tripTime := rows[i].ScheduledDeparture - lastDep
			rows[i].StationsScheduledTripTime = intPtr(tripTime)
		}
	}
}

// markPredictable implements spec §4.9 step 9.
func markPredictable(rows []RowState, trips map[string]TripAggregate) {
	for i := range rows {
		agg := trips[rows[i].TripID]
		rows[i].Predictable = agg.TripStatus > 0 && agg.TripStatus < 1 &&
			!rows[i].PassedSchedule && !rows[i].PassedRealtime && rows[i].SequenceDiff != nil
	}
}

// computeLineAggregates implements spec §4.9 step 7: line_median_delay and
// line_station_median_delay are medianed only over rows whose realtime
// observation falls in the rolling window 0 <= T-realtime.expected < W,
// i.e. rows with RealtimeDiff in [0, windowSeconds). A row observed hours
// earlier in the same service day no longer counts once it ages out.
func computeLineAggregates(rows []RowState, trips map[string]TripAggregate, windowSeconds int) map[string]LineAggregate {
	byLine := map[string][]int{}
	for i, r := range rows {
		if r.RouteShortName == "" {
			continue
		}
		byLine[r.RouteShortName] = append(byLine[r.RouteShortName], i)
	}

	out := make(map[string]LineAggregate, len(byLine))
	for line, idxs := range byLine {
		var windowDelays []float64
		byStop := map[string][]float64{}
		activeTrips := map[string]bool{}
		for _, i := range idxs {
			r := rows[i]
			inWindow := r.ObservedDelay != nil && r.RealtimeDiff != nil &&
				*r.RealtimeDiff >= 0 && *r.RealtimeDiff < windowSeconds
			if inWindow {
				windowDelays = append(windowDelays, float64(*r.ObservedDelay))
				byStop[r.StopID] = append(byStop[r.StopID], float64(*r.ObservedDelay))
			}
			if agg, ok := trips[r.TripID]; ok && agg.TripStatus > 0 && agg.TripStatus < 1 {
				activeTrips[r.TripID] = true
			}
		}
		stationMedians := make(map[string]float64, len(byStop))
		for stop, delays := range byStop {
			stationMedians[stop] = median(delays)
		}
		var lineMedian *float64
		if len(windowDelays) > 0 {
			m := median(windowDelays)
			lineMedian = &m
		}
		out[line] = LineAggregate{
			RouteShortName:     line,
			LineMedianDelay:    lineMedian,
			StationMedianDelay: stationMedians,
			RollingTripsOnLine: len(activeTrips),
		}
	}
	return out
}

func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
