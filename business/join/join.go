// Package join implements C8 Joiner (spec §4.8): attaches a RealtimePassage
// to every scheduled StopTime for a service day, via a batched multi-get
// against business/data/realtime.Store.
package join

import (
	"context"
	"fmt"

	"github.com/leonardbinet/railfeed/business/clock"
	"github.com/leonardbinet/railfeed/business/data/gtfs"
	"github.com/leonardbinet/railfeed/business/data/realtime"
)

// JoinedResult pairs one StopTime with at most one RealtimePassage for a
// given service day (spec §3).
type JoinedResult struct {
	Day         clock.ServiceDay
	StopTime    gtfs.StopTime
	Passage     realtime.Passage
	HasRealtime bool
}

// Join builds keys from stopTimes and attaches realtime passages, preserving
// input order. Keys the store reports as not found are treated as
// realtime-absent (spec §4.8 partial-failure policy).
func Join(ctx context.Context, store realtime.Store, day clock.ServiceDay, stopTimes []gtfs.StopTime) ([]JoinedResult, error) {
	keys := make([]realtime.Key, len(stopTimes))
	for i, st := range stopTimes {
		keys[i] = realtime.Key{StationID: st.StationID, DayTrainNum: day.String() + "_" + st.TrainNum}
	}

	found, _, err := store.MultiGet(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("joining stop times for %s: %w", day, err)
	}

	results := make([]JoinedResult, len(stopTimes))
	for i, st := range stopTimes {
		results[i].Day = day
		results[i].StopTime = st
		if p, ok := found[keys[i]]; ok {
			results[i].Passage = p
			results[i].HasRealtime = true
		}
	}
	return results, nil
}
