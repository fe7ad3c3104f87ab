// Package realtime implements C2 RealtimeStore (spec §4.2): a key-value
// store for observed/predicted passages keyed by (station_id,
// day_train_num), with batched put/get shaped to mirror a hosted KV
// service's per-call limits. Grounded on tidbyt-gtfs's storage.Storage
// interface (same "one interface, swappable backend" shape) and on the
// teacher's sqlx/pgx stack for the SQL-backed implementation; no
// AWS SDK/DynamoDB client exists anywhere in the retrieved example
// repositories, so Store's default production backend is Postgres rather
// than a hosted document store (documented in DESIGN.md).
package realtime

import (
	"context"
	"fmt"
	"time"

	"github.com/leonardbinet/railfeed/foundation/httpclient"
)

// Key is the (station_id, day_train_num) composite primary key spec §3
// defines for RealtimePassage.
type Key struct {
	StationID   string
	DayTrainNum string
}

// Passage is one observed/predicted realtime passage at a station (spec §3).
type Passage struct {
	StationID            string `db:"station_id"`
	DayTrainNum          string `db:"day_train_num"`
	ExpectedPassageDay   string `db:"expected_passage_day"`
	ExpectedPassageTime  int    `db:"expected_passage_time"`
	RequestDay           string `db:"request_day"`
	RequestTime          int    `db:"request_time"`
	DataFreshness        int    `db:"data_freshness"`
	MissionCode          string `db:"mission_code"`
	Terminus             string `db:"terminus"`
	Status               string `db:"status"`
	WrittenAt            time.Time `db:"written_at"`
}

// Key returns p's composite primary key.
func (p Passage) Key() Key { return Key{StationID: p.StationID, DayTrainNum: p.DayTrainNum} }

// ErrItemNotFound is returned by Get when no passage exists for key (spec §4.2).
var ErrItemNotFound = fmt.Errorf("realtime: item not found")

// maxPutBatch and maxGetBatch are the per-call limits spec §4.2 assumes a
// hosted KV backend would impose; the Postgres-backed Store still chunks
// to these sizes so swapping backends later changes nothing upstream.
const (
	maxPutBatch = 25
	maxGetBatch = 100
)

// Store is the C2 RealtimeStore contract: batch upsert, single get, and
// batched multi-get with retry-on-batch-error (spec §4.2).
type Store interface {
	Put(ctx context.Context, passages []Passage) error
	Get(ctx context.Context, key Key) (Passage, error)
	// MultiGet returns found passages keyed by Key, plus the subset of
	// requested keys genuinely absent from the store. A batch-level
	// failure (not a missing key) is retried up to a small bound with
	// exponential backoff (spec §4.2). Partial success is not an error.
	MultiGet(ctx context.Context, keys []Key) (map[Key]Passage, []Key, error)
}

// chunkKeys splits keys into groups of at most size.
func chunkKeys(keys []Key, size int) [][]Key {
	var out [][]Key
	for size > 0 && len(keys) > 0 {
		n := size
		if n > len(keys) {
			n = len(keys)
		}
		out = append(out, keys[:n])
		keys = keys[n:]
	}
	return out
}

func chunkPassages(passages []Passage, size int) [][]Passage {
	var out [][]Passage
	for size > 0 && len(passages) > 0 {
		n := size
		if n > len(passages) {
			n = len(passages)
		}
		out = append(out, passages[:n])
		passages = passages[n:]
	}
	return out
}

// retryOnError calls fetch against the same batch up to maxAttempts times in
// total, waiting between attempts with the same backoff curve httpclient.BackoffSeconds uses for HTTP
// retries. A key genuinely absent from the store is not an error -- fetch
// returns it missing from found on its very first, successful call, and no
// retry is spent on it. Only a real fetch failure (query build error,
// connection error, ...) triggers a retry of the whole batch.
func retryOnError(ctx context.Context, maxAttempts int, keys []Key,
	fetch func(ctx context.Context, keys []Key) (map[Key]Passage, error)) (map[Key]Passage, error) {

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		found, err := fetch(ctx, keys)
		if err == nil {
			return found, nil
		}
		lastErr = err
		if attempt < maxAttempts {
			select {
			case <-time.After(httpclient.BackoffSeconds(attempt)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, lastErr
}
