// Package clock implements the GTFS extended clock (spec §4.4) and the
// service-day arithmetic needed to reconcile schedule times against
// wall-clock observations. It generalizes the teacher's DST-aware
// schedule-second arithmetic (business/data/gtfs/scheduletime.go,
// MakeScheduleTime/getDLSTransitionSeconds) rather than replacing it: a
// service day's midnight is still resolved with time.Date, and seconds are
// still added with a DST correction, exactly as the teacher does for its
// own "add seconds since local midnight" primitive.
package clock

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MaxExtendedSeconds is 29:59:59 expressed in seconds, the spec's upper
// bound for the extended clock (service runs at most ~30h into a day).
const MaxExtendedSeconds = 29*3600 + 59*60 + 59

// ServiceDay is a calendar day (yyyymmdd) interpreted in a single fixed
// network-local time.Location, per spec §3.
type ServiceDay struct {
	loc  *time.Location
	date time.Time // always truncated to local midnight
}

// NewServiceDay builds a ServiceDay for the given y/m/d in loc.
func NewServiceDay(year int, month time.Month, day int, loc *time.Location) ServiceDay {
	return ServiceDay{loc: loc, date: time.Date(year, month, day, 0, 0, 0, 0, loc)}
}

// ServiceDayFromTime returns the ServiceDay containing t (t's own calendar
// date in loc, NOT adjusted for the extended-clock early-morning rule --
// callers with an observed wall-clock passage should use ReduceObservedPassage instead).
func ServiceDayFromTime(t time.Time, loc *time.Location) ServiceDay {
	lt := t.In(loc)
	return NewServiceDay(lt.Year(), lt.Month(), lt.Day(), loc)
}

// ServiceDayFromYYYYMMDD parses a GTFS-format date string ("20170202").
func ServiceDayFromYYYYMMDD(s string, loc *time.Location) (ServiceDay, error) {
	t, err := time.ParseInLocation("20060102", s, loc)
	if err != nil {
		return ServiceDay{}, fmt.Errorf("parsing service day %q: %w", s, err)
	}
	return NewServiceDay(t.Year(), t.Month(), t.Day(), loc), nil
}

// String renders the service day as yyyymmdd.
func (d ServiceDay) String() string {
	return d.date.Format("20060102")
}

// Add returns the ServiceDay n calendar days away.
func (d ServiceDay) Add(days int) ServiceDay {
	next := d.date.AddDate(0, 0, days)
	return NewServiceDay(next.Year(), next.Month(), next.Day(), d.loc)
}

// Before, After, Equal compare service days by calendar date.
func (d ServiceDay) Before(other ServiceDay) bool { return d.date.Before(other.date) }
func (d ServiceDay) After(other ServiceDay) bool  { return d.date.After(other.date) }
func (d ServiceDay) Equal(other ServiceDay) bool  { return d.date.Equal(other.date) }

// Weekday returns the day-of-week this service day falls on.
func (d ServiceDay) Weekday() time.Weekday { return d.date.Weekday() }

// Location returns the time.Location this service day is anchored in.
func (d ServiceDay) Location() *time.Location { return d.loc }

// midnight returns the wall-clock instant of local midnight for this
// service day, taking into account that midnight() itself is the anchor
// DST corrections are measured from (mirrors scheduletime.Get12AmTime).
func (d ServiceDay) midnight() time.Time { return d.date }

// ToWallClock converts (this service day, seconds-since-midnight) to an
// absolute time.Time, correcting for a DST transition occurring between
// midnight and the target instant -- the same correction the teacher's
// MakeScheduleTime applies.
func (d ServiceDay) ToWallClock(seconds int) time.Time {
	return addScheduleSeconds(d.midnight(), seconds)
}

// addScheduleSeconds adds seconds to a midnight anchor, shifting by the
// change in UTC offset between midnight and ~5am so that a spring-forward
// or fall-back transition doesn't shift scheduled times by an hour.
// Ported from the teacher's getDLSTransitionSeconds/MakeScheduleTime pair.
func addScheduleSeconds(midnight time.Time, seconds int) time.Time {
	before := midnight
	after := time.Date(midnight.Year(), midnight.Month(), midnight.Day(), 5, 0, 0, 0, midnight.Location())
	_, beforeOffset := before.Zone()
	_, afterOffset := after.Zone()
	dstCorrection := afterOffset - beforeOffset
	return midnight.Add(time.Duration(seconds-dstCorrection) * time.Second)
}

// ExtendedTime is a GTFS extended-clock time-of-day: seconds since the
// start of its service day, in [0, MaxExtendedSeconds]. Hours >= 24
// represent the early-morning continuation of the previous service day's
// schedule (spec §3/§4.4).
type ExtendedTime struct {
	Seconds int
}

// ParseExtendedTime parses "HH:MM:SS" (H may be 1 or 2 digits, 0-28).
// Rejects malformed strings per spec §4.4.
func ParseExtendedTime(s string) (ExtendedTime, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 3 {
		return ExtendedTime{}, fmt.Errorf("extended clock time must have 3 colon-separated parts: %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return ExtendedTime{}, fmt.Errorf("invalid hour in %q: %w", s, err)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return ExtendedTime{}, fmt.Errorf("invalid minute in %q: %w", s, err)
	}
	sec, err := strconv.Atoi(parts[2])
	if err != nil {
		return ExtendedTime{}, fmt.Errorf("invalid second in %q: %w", s, err)
	}
	if h < 0 || h > 28 || m < 0 || m > 59 || sec < 0 || sec > 59 {
		return ExtendedTime{}, fmt.Errorf("extended clock time out of range: %q", s)
	}
	total := h*3600 + m*60 + sec
	return ExtendedTime{Seconds: total}, nil
}

// String renders back to "HH:MM:SS" form, preserving hours >= 24.
func (e ExtendedTime) String() string {
	h := e.Seconds / 3600
	rem := e.Seconds % 3600
	m := rem / 60
	s := rem % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// ToWallClock resolves this extended time against service day d into an
// absolute instant.
func (e ExtendedTime) ToWallClock(d ServiceDay) time.Time {
	return d.ToWallClock(e.Seconds)
}

// reinterpretHourThreshold is the spec §4.4 rule: an observed hour in
// {0,1,2} is reinterpreted onto the previous service day with 24h added.
// §9 Open Question (2) notes the source codes this twice with thresholds
// "hour in {0,1,2}" and "hour < 3" -- they are equivalent; this is the
// single, unified implementation.
const reinterpretHourThreshold = 3

// ReduceObservedPassage takes a wall-clock observation (as produced by the
// vendor feed's "DD/MM/YYYY HH:MM" field, already split into its calendar
// date and hour/minute/second) and reduces it to (ServiceDay, ExtendedTime)
// per spec §4.4: if the observed hour is < 3, the passage belongs to the
// PREVIOUS service day and the hour is shifted by +24.
func ReduceObservedPassage(observedDate time.Time, hour, minute, second int, loc *time.Location) (ServiceDay, ExtendedTime) {
	day := ServiceDayFromTime(observedDate, loc)
	if hour < reinterpretHourThreshold {
		day = day.Add(-1)
		hour += 24
	}
	return day, ExtendedTime{Seconds: hour*3600 + minute*60 + second}
}

// SecondsSince returns the signed seconds between an absolute wall-clock
// instant dt and an extended (day, time) pair, positive when dt is later
// than schedule. Used for T-vs-schedule and T-vs-realtime comparisons
// (passed_schedule, passed_realtime) where dt is an unambiguous instant --
// no wraparound correction is needed since ToWallClock already resolves
// the extended time to its true absolute instant.
func SecondsSince(dt time.Time, day ServiceDay, extended ExtendedTime) int {
	scheduled := extended.ToWallClock(day)
	return int(dt.Sub(scheduled).Seconds())
}

// Delay computes the signed seconds between a scheduled extended time and
// an observed/predicted extended time, positive when the observation is
// later than schedule (spec §4.4, §4.9 step 3, §8 property 2).
//
// Schedule and observation are both nominal clock values anchored to their
// own service days; a plain difference of "day-offset + seconds" can land
// up to 24h off when the pair straddles a service-day boundary (e.g.
// sched="23:59:00" vs real="00:01:00" naively differ by -86280s, not the
// intended +120s). The spec's worked examples (§8 property 2) resolve this
// by reinterpreting any difference whose magnitude exceeds 12h as having
// wrapped a day -- this is that reinterpretation, applied uniformly.
func Delay(schedDay ServiceDay, sched ExtendedTime, realDay ServiceDay, real ExtendedTime) int {
	schedAbs := schedDay.midnight().Unix() + int64(sched.Seconds)
	realAbs := realDay.midnight().Unix() + int64(real.Seconds)
	seconds := int(realAbs - schedAbs)
	const halfDay = 12 * 3600
	if seconds > halfDay {
		seconds -= 24 * 3600
	} else if seconds < -halfDay {
		seconds += 24 * 3600
	}
	return seconds
}
