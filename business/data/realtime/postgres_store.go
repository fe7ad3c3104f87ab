package realtime

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// PostgresStore is the default production Store backend, using the same
// sqlx/pgx stack C1 ScheduleStore uses. Chunks writes/reads to the same
// maxPutBatch/maxGetBatch boundaries a hosted KV store would enforce, so
// the call shape upstream code depends on doesn't change if that backend
// is swapped in later (DESIGN.md: no AWS SDK/DynamoDB client is available
// anywhere in the retrieved example repositories, so this interface has
// one concrete backend today).
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore wraps db as a Store.
func NewPostgresStore(db *sqlx.DB) *PostgresStore { return &PostgresStore{db: db} }

// Put upserts passages in batches of at most maxPutBatch, "last writer
// wins" on conflict per (station_id, day_train_num) (spec §3 lifecycle).
func (s *PostgresStore) Put(ctx context.Context, passages []Passage) error {
	for _, batch := range chunkPassages(passages, maxPutBatch) {
		if err := s.putBatch(ctx, batch); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) putBatch(ctx context.Context, batch []Passage) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	stmt := tx.Rebind("insert into realtime_passage (" +
		"station_id, day_train_num, expected_passage_day, expected_passage_time, " +
		"request_day, request_time, data_freshness, mission_code, terminus, status, written_at) " +
		"values (" +
		":station_id, :day_train_num, :expected_passage_day, :expected_passage_time, " +
		":request_day, :request_time, :data_freshness, :mission_code, :terminus, :status, :written_at) " +
		"on conflict (station_id, day_train_num) do update set " +
		"expected_passage_day = excluded.expected_passage_day, " +
		"expected_passage_time = excluded.expected_passage_time, " +
		"request_day = excluded.request_day, request_time = excluded.request_time, " +
		"data_freshness = excluded.data_freshness, mission_code = excluded.mission_code, " +
		"terminus = excluded.terminus, status = excluded.status, written_at = excluded.written_at " +
		"where realtime_passage.written_at < excluded.written_at")
	for i := range batch {
		if _, err := tx.NamedExecContext(ctx, stmt, batch[i]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("putting realtime passage %s/%s: %w", batch[i].StationID, batch[i].DayTrainNum, err)
		}
	}
	return tx.Commit()
}

// Get retrieves a single passage, returning ErrItemNotFound if absent.
func (s *PostgresStore) Get(ctx context.Context, key Key) (Passage, error) {
	var p Passage
	stmt := s.db.Rebind("select * from realtime_passage where station_id = ? and day_train_num = ?")
	err := s.db.GetContext(ctx, &p, stmt, key.StationID, key.DayTrainNum)
	if errors.Is(err, sql.ErrNoRows) {
		return Passage{}, ErrItemNotFound
	}
	if err != nil {
		return Passage{}, err
	}
	return p, nil
}

// MultiGet fetches keys in batches of at most maxGetBatch. A key absent
// from the store is a normal, immediate result -- the common case in a
// join -- and costs no retry. Only a batch-level fetch failure (a real
// query/connection error) is retried, with up to 3 attempts in total and
// backoff between them (spec §4.2).
func (s *PostgresStore) MultiGet(ctx context.Context, keys []Key) (map[Key]Passage, []Key, error) {
	found := map[Key]Passage{}
	var notFound []Key
	for _, batch := range chunkKeys(keys, maxGetBatch) {
		batchFound, err := retryOnError(ctx, 3, batch, s.fetchBatch)
		if err != nil {
			return found, notFound, err
		}
		for k, v := range batchFound {
			found[k] = v
		}
		for _, k := range batch {
			if _, ok := batchFound[k]; !ok {
				notFound = append(notFound, k)
			}
		}
	}
	return found, notFound, nil
}

// fetchBatch runs one query for the whole batch. Its error return is
// reserved for genuine fetch failures; a key with no matching row is
// simply absent from the returned map, not an error.
func (s *PostgresStore) fetchBatch(ctx context.Context, keys []Key) (map[Key]Passage, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	query, args, err := sqlxIn(s.db, keys)
	if err != nil {
		return nil, err
	}
	var rows []Passage
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	found := make(map[Key]Passage, len(rows))
	for _, r := range rows {
		found[r.Key()] = r
	}
	return found, nil
}

// sqlxIn builds a "station_id, day_train_num in (VALUES ...)"-style query.
// Postgres doesn't support a tuple-IN with sqlx.In directly, so this binds
// one OR-chain of (station_id = ? and day_train_num = ?) pairs -- fine at
// the maxGetBatch=100 scale this is always called at.
func sqlxIn(db *sqlx.DB, keys []Key) (string, []interface{}, error) {
	query := "select * from realtime_passage where "
	args := make([]interface{}, 0, len(keys)*2)
	for i, k := range keys {
		if i > 0 {
			query += " or "
		}
		query += "(station_id = ? and day_train_num = ?)"
		args = append(args, k.StationID, k.DayTrainNum)
	}
	return db.Rebind(query), args, nil
}
