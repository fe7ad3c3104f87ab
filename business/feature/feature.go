// Package feature implements C10 FeatureBuilder (spec §4.10): produces
// inference feature vectors and retroactive training rows from a
// TripStateEngine result, and persists day-partitioned matrices. The
// business_day feature is grounded on the teacher's
// app/gtfs-aggregator/aggregator/holidays.go transitHolidayCalendar,
// generalized from a single hard-coded field name into its own small
// exported type since two modes (training/inference) both need it.
package feature

import (
	"time"

	"github.com/rickar/cal/v2"
	"github.com/rickar/cal/v2/us"

	"github.com/leonardbinet/railfeed/business/clock"
	"github.com/leonardbinet/railfeed/business/tripstate"
)

// BusinessDayCalendar decides whether an instant falls on a business day.
// No French/European holiday calendar exists anywhere in the retrieval
// pack, so this keeps the teacher's us.* holiday set; swapping it for a
// network-local holiday set is a one-line change confined to this file.
type BusinessDayCalendar struct {
	calendar *cal.BusinessCalendar
}

// NewBusinessDayCalendar builds a BusinessDayCalendar with the teacher's
// holiday set.
func NewBusinessDayCalendar() *BusinessDayCalendar {
	c := cal.NewBusinessCalendar()
	c.AddHoliday(
		us.NewYear,
		us.MlkDay,
		us.MemorialDay,
		us.IndependenceDay,
		us.LaborDay,
		us.ThanksgivingDay,
		us.ChristmasDay,
		us.Juneteenth,
	)
	return &BusinessDayCalendar{calendar: c}
}

// IsBusinessDay reports whether at is a working day (not weekend, not a
// holiday the calendar observes).
func (b *BusinessDayCalendar) IsBusinessDay(at time.Time) bool {
	isBusiness, _ := b.calendar.IsBusinessDay(at)
	return isBusiness
}

// Row is one FeatureVector, optionally extended to a TrainingRow (spec
// §3). Training-only fields are nil in inference mode.
type Row struct {
	AtDatetime     time.Time
	TripID         string
	StopID         string
	RouteShortName string

	LastObservedDelay            int
	PredictedStationMedianDelay  float64
	LineMedianDelay              float64
	SequenceDiff                 int
	StationsScheduledTripTime    int
	RollingTripsOnLine           int
	BusinessDay                  bool

	// Training-only (spec §4.10 training mode); nil in inference rows.
	Label        *int
	LabelEV      *int
	NaivePredMAE *int
	NaivePredMSE *int
}

// rowComplete reports whether every required FeatureVector field is present
// (spec §3 "rows are complete only when every feature is non-missing").
func rowComplete(r tripstate.RowState, trip tripstate.TripAggregate, line tripstate.LineAggregate) bool {
	if r.ObservedDelay == nil && trip.LastObservedDelay == nil {
		return false
	}
	if r.SequenceDiff == nil || r.StationsScheduledTripTime == nil {
		return false
	}
	if line.LineMedianDelay == nil {
		return false
	}
	if _, ok := line.StationMedianDelay[r.StopID]; !ok {
		return false
	}
	return true
}

// BuildInference emits one Row per predictable stop in result (spec §4.10
// "Inference: T = N"). Rows missing a required feature are dropped, never
// filled with sentinels.
func BuildInference(result tripstate.Result, t time.Time, cal *BusinessDayCalendar) []Row {
	return build(result, t, cal, nil)
}

// LabelSource resolves the real observed delay at (tripID, stopID), known
// only as of a later wall-clock instant N (spec §4.10 training mode). It
// returns ok=false when no such observation exists yet.
type LabelSource func(tripID, stopID string) (delay int, ok bool)

// BuildTraining emits TrainingRows for result's predictable stops whose
// label is known as of N via labels (spec §4.10 "Training (retroactive)").
func BuildTraining(result tripstate.Result, t time.Time, cal *BusinessDayCalendar, labels LabelSource) []Row {
	return build(result, t, cal, labels)
}

func build(result tripstate.Result, t time.Time, bc *BusinessDayCalendar, labels LabelSource) []Row {
	businessDay := false
	if bc != nil {
		businessDay = bc.IsBusinessDay(t)
	}

	var rows []Row
	for _, r := range result.Rows {
		if !r.Predictable {
			continue
		}
		trip := result.Trips[r.TripID]
		line := result.Lines[r.RouteShortName]
		if !rowComplete(r, trip, line) {
			continue
		}

		lastDelay := 0
		if r.ObservedDelay != nil {
			lastDelay = *r.ObservedDelay
		} else if trip.LastObservedDelay != nil {
			lastDelay = *trip.LastObservedDelay
		}

		row := Row{
			AtDatetime:                  t,
			TripID:                      r.TripID,
			StopID:                      r.StopID,
			RouteShortName:              r.RouteShortName,
			LastObservedDelay:           lastDelay,
			PredictedStationMedianDelay: line.StationMedianDelay[r.StopID],
			LineMedianDelay:             *line.LineMedianDelay,
			SequenceDiff:                *r.SequenceDiff,
			StationsScheduledTripTime:   *r.StationsScheduledTripTime,
			RollingTripsOnLine:          line.RollingTripsOnLine,
			BusinessDay:                 businessDay,
		}

		if labels != nil {
			label, ok := labels(r.TripID, r.StopID)
			if !ok {
				continue
			}
			labelEV := label - lastDelay
			mae := abs(labelEV)
			mse := labelEV * labelEV
			row.Label = intPtr(label)
			row.LabelEV = intPtr(labelEV)
			row.NaivePredMAE = intPtr(mae)
			row.NaivePredMSE = intPtr(mse)
		}

		rows = append(rows, row)
	}
	return rows
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func intPtr(v int) *int { return &v }

// SweepInstants returns every T from startSeconds to endSeconds (inclusive,
// seconds since the start of day) on day, spaced deltaMinutes apart, with
// a non-positive deltaMinutes treated as 60 (spec §4.10 "iterate T
// across a business window, e.g. 05:00 to 23:45 at delta=60min").
func SweepInstants(day clock.ServiceDay, startSeconds, endSeconds, deltaMinutes int) []time.Time {
	var out []time.Time
	delta := deltaMinutes * 60
	if delta <= 0 {
		delta = 60 * 60
	}
	for s := startSeconds; s <= endSeconds; s += delta {
		out = append(out, day.ToWallClock(s))
	}
	return out
}

// DefaultSweepStartSeconds/DefaultSweepEndSeconds/DefaultSweepDeltaMinutes
// are the spec's example business window (§4.10).
const (
	DefaultSweepStartSeconds  = 5 * 3600
	DefaultSweepEndSeconds    = 23*3600 + 45*60
	DefaultSweepDeltaMinutes  = 60
)
