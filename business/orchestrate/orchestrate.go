// Package orchestrate implements C11 Orchestrator (spec §4.11): composes
// C5->C6->C2 (one poll cycle) and C7->C8->C9->C10 (daily feature build),
// and drives single/multi-cycle runs plus periodic schedule refresh.
// Concurrency/shutdown shape grounded on the teacher's
// app/gtfs-aggregator/aggregator.go (sync.WaitGroup + shutdown channels).
package orchestrate

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/nats-io/nats.go"

	"github.com/leonardbinet/railfeed/business/clock"
	"github.com/leonardbinet/railfeed/business/data/gtfs"
	"github.com/leonardbinet/railfeed/business/data/gtfs/loader"
	"github.com/leonardbinet/railfeed/business/data/realtime"
	"github.com/leonardbinet/railfeed/business/feature"
	"github.com/leonardbinet/railfeed/business/gtfsfetch"
	"github.com/leonardbinet/railfeed/business/join"
	"github.com/leonardbinet/railfeed/business/normalize"
	"github.com/leonardbinet/railfeed/business/objectstore"
	"github.com/leonardbinet/railfeed/business/poller"
	"github.com/leonardbinet/railfeed/business/resolve"
	"github.com/leonardbinet/railfeed/business/tripstate"
	"github.com/leonardbinet/railfeed/foundation/logger"
)

// cycleCompletedSubject/featuresBuiltSubject are the NATS subjects the
// orchestrator publishes to, mirroring the teacher's
// predictionPublisher/PredictionSubject wiring (aggregator.go,
// prediction_publisher.go) generalized from "one subject per prediction"
// to "one event per cycle/build boundary" (spec §2 table).
const (
	cycleCompletedSubject = "railfeed.cycle.completed"
	featuresBuiltSubject  = "railfeed.features.built"
)

// DefaultHardStopSeconds bounds a multi-cycle run (spec §5).
const DefaultHardStopSeconds = 3500

// Deps bundles every collaborator an orchestrator run needs, lifted out of
// global state per §9's design note ("explicit configuration structs
// passed down from the orchestrator").
type Deps struct {
	DB            *sqlx.DB
	GTFSStore     *gtfs.Store
	Resolver      *resolve.Resolver
	RealtimeStore realtime.Store
	ObjectStore   objectstore.Store
	Poller        *poller.Poller
	Loc           *time.Location
	Log           *logger.Logger
	Nats          *nats.Conn // nil disables event publishing
	Calendar      *feature.BusinessDayCalendar
	Diagnostics   *DiagnosticsServer // nil disables /cycles/last tracking
}

// publish sends a small JSON-free event marker to subject if Nats is
// configured; failures are logged, never fatal (spec §7 policy: never
// fail the outer cycle over ancillary I/O).
func (d *Deps) publish(subject, payload string) {
	if d.Nats == nil {
		return
	}
	if err := d.Nats.Publish(subject, []byte(payload)); err != nil && d.Log != nil {
		d.Log.Warnf("orchestrate: publishing to %s: %v", subject, err)
	}
}

// RunOnce executes one poll cycle (spec §4.11 "One poll cycle"): select
// station list -> partition -> rate-paced concurrent poll -> normalize ->
// write to RealtimeStore. Normalized passages are written as they are;
// they are not joined with or extended by schedule data.
func RunOnce(ctx context.Context, d *Deps) error {
	stations, err := stationList(d.GTFSStore)
	if err != nil {
		return fmt.Errorf("orchestrate: listing stations: %w", err)
	}

	results := d.Poller.PollCycle(ctx, stations)

	requestedAt := time.Now()
	var passages []realtime.Passage
	for _, r := range results {
		if r.Err != nil {
			if d.Log != nil {
				d.Log.Warnf("orchestrate: station %s poll failed: %v", r.StationID, r.Err)
			}
			continue
		}
		payload, err := normalize.ParsePayload(r.StationID, r.Body)
		if err != nil {
			if d.Log != nil {
				d.Log.Debugf("orchestrate: station %s payload parse error: %v", r.StationID, err)
			}
			continue
		}
		passages = append(passages, normalize.Normalize(payload, requestedAt, d.Loc, d.Log)...)
	}

	if len(passages) > 0 {
		if err := d.RealtimeStore.Put(ctx, passages); err != nil {
			if d.Diagnostics != nil {
				d.Diagnostics.recordCycle(CycleStatus{CompletedAt: requestedAt, Stations: len(stations), Passages: len(passages), Err: err.Error()})
			}
			return fmt.Errorf("orchestrate: writing realtime passages: %w", err)
		}
	}

	if d.Diagnostics != nil {
		d.Diagnostics.recordCycle(CycleStatus{CompletedAt: requestedAt, Stations: len(stations), Passages: len(passages)})
	}
	d.publish(cycleCompletedSubject, fmt.Sprintf("stations=%d passages=%d at=%s", len(stations), len(passages), requestedAt.Format(time.RFC3339)))
	return nil
}

// RunLoop runs RunOnce every cyclePeriod until hardStop elapses or ctx is
// done (spec §4.11 "Multi cycle"). A cycle that runs long simply delays
// the next one rather than overlapping it.
func RunLoop(ctx context.Context, d *Deps, cyclePeriod time.Duration, hardStop time.Duration) error {
	if hardStop <= 0 {
		hardStop = DefaultHardStopSeconds * time.Second
	}
	deadline := time.Now().Add(hardStop)

	for time.Now().Before(deadline) {
		cycleStart := time.Now()
		if err := RunOnce(ctx, d); err != nil {
			if d.Log != nil {
				d.Log.Errorf("orchestrate: cycle failed: %v", err)
			}
		}
		elapsed := time.Since(cycleStart)
		sleep := cyclePeriod - elapsed
		if sleep < 0 {
			sleep = 0
		}
		select {
		case <-time.After(sleep):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// RefreshSchedule runs GTFSFetcher then loads the result into the
// relational store (spec §4.11 "Schedule refresh").
func RefreshSchedule(ctx context.Context, d *Deps, client *http.Client, indexURL, workDir string) error {
	now := time.Now()
	result, err := gtfsfetch.Fetch(ctx, client, indexURL, workDir, d.ObjectStore, now, d.Log)
	if err != nil {
		return fmt.Errorf("orchestrate: fetching gtfs: %w", err)
	}

	meta := gtfs.GTFSDataset{URL: indexURL}
	if _, err := loader.Load(d.DB, result.CanonicalDirPath, meta, now); err != nil {
		return fmt.Errorf("orchestrate: loading gtfs: %w", err)
	}
	return nil
}

// BuildDayFeatures computes TripStateEngine + FeatureBuilder at every swept
// instant of day and writes one matrix per instant (spec §4.11
// "Feature-set build"). labels resolves a row's training label; pass nil
// for inference-only sweeps.
func BuildDayFeatures(ctx context.Context, d *Deps, day clock.ServiceDay, labels feature.LabelSource) error {
	routeOf, err := d.Resolver.RouteShortNamesByTrip(day)
	if err != nil {
		return fmt.Errorf("orchestrate: resolving routes for %s: %w", day, err)
	}
	stopTimes, err := d.Resolver.StopTimesOn(day, gtfs.StopTimeFilter{})
	if err != nil {
		return fmt.Errorf("orchestrate: resolving stop times for %s: %w", day, err)
	}

	instants := feature.SweepInstants(day, feature.DefaultSweepStartSeconds, feature.DefaultSweepEndSeconds, feature.DefaultSweepDeltaMinutes)
	written := 0
	for _, at := range instants {
		joined, err := join.Join(ctx, d.RealtimeStore, day, stopTimes)
		if err != nil {
			return fmt.Errorf("orchestrate: joining for %s at %s: %w", day, at, err)
		}
		state := tripstate.Compute(day, at, joined, routeOf, tripstate.DefaultWindowSeconds)

		var rows []feature.Row
		if labels != nil {
			rows = feature.BuildTraining(state, at, d.Calendar, labels)
		} else {
			rows = feature.BuildInference(state, at, d.Calendar)
		}
		if len(rows) == 0 {
			continue
		}
		if err := feature.WriteDayMatrix(ctx, d.ObjectStore, day, at, rows); err != nil {
			return fmt.Errorf("orchestrate: writing matrix for %s at %s: %w", day, at, err)
		}
		written++
	}

	d.publish(featuresBuiltSubject, fmt.Sprintf("day=%s instants_written=%d", day, written))
	return nil
}

// LabelSourceFromRealtime builds a feature.LabelSource by joining stopTimes
// against the realtime store as it stands "now" (the caller's wall-clock at
// build time) and reading each row's observed_delay, so a training sweep
// can resolve what actually happened at (trip, stop) as of N (spec §4.10
// training mode) without BuildDayFeatures callers hand-rolling the lookup.
func LabelSourceFromRealtime(ctx context.Context, d *Deps, day clock.ServiceDay, now time.Time, stopTimes []gtfs.StopTime) (feature.LabelSource, error) {
	routeOf, err := d.Resolver.RouteShortNamesByTrip(day)
	if err != nil {
		return nil, fmt.Errorf("orchestrate: resolving routes for labels on %s: %w", day, err)
	}
	joined, err := join.Join(ctx, d.RealtimeStore, day, stopTimes)
	if err != nil {
		return nil, fmt.Errorf("orchestrate: joining for labels on %s: %w", day, err)
	}
	state := tripstate.Compute(day, now, joined, routeOf, tripstate.DefaultWindowSeconds)

	delays := make(map[string]int, len(state.Rows))
	for _, r := range state.Rows {
		if r.ObservedDelay == nil {
			continue
		}
		delays[r.TripID+"\x00"+r.StopID] = *r.ObservedDelay
	}
	return func(tripID, stopID string) (int, bool) {
		delay, ok := delays[tripID+"\x00"+stopID]
		return delay, ok
	}, nil
}

// stationList derives the poll station list from every stop in the active
// schedule (spec §4.11 "select station list").
func stationList(store *gtfs.Store) ([]string, error) {
	stops, err := store.ListStops("")
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var stations []string
	for _, s := range stops {
		id := s.StationID()
		if seen[id] || id == "" {
			continue
		}
		seen[id] = true
		stations = append(stations, id)
	}
	return stations, nil
}
