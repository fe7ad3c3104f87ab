// Package gtfs implements C1 ScheduleStore: GTFS entities, bulk loading,
// and the relational query surface spec §4.1 describes. Grounded on the
// teacher's business/data/gtfs package (gtfs.go's DataSet type and its
// sqlx/Tx save/replace functions), generalized from "one gtfs.DataSet"
// into "GTFSDataset" -- the same weekly-replace-without-downtime shape,
// renamed to match this system's vocabulary.
package gtfs

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// ErrScheduleNotLoaded is returned when a schedule-dependent query is run
// against a store with no active GTFSDataset (spec §7 ScheduleNotLoaded).
var ErrScheduleNotLoaded = fmt.Errorf("gtfs: schedule not loaded")

// GTFSDataset identifies one GTFS schedule snapshot loaded at a point in
// time. Every row from a given load shares GTFSDataset.ID as part of its
// primary key, exactly as the teacher's DataSet does for its gtfs tables.
type GTFSDataset struct {
	ID                    int64      `db:"id"`
	URL                   string     `db:"url"`
	ETag                  string     `db:"e_tag"`
	LastModifiedTimestamp int64      `db:"last_modified_timestamp"`
	DownloadedAt          time.Time  `db:"downloaded_at"`
	SavedAt               *time.Time `db:"saved_at"`
	ReplacedAt            *time.Time `db:"replaced_at"`
}

func (d GTFSDataset) String() string {
	return fmt.Sprintf("GTFSDataset id:%d url:%s eTag:%s lastModified:%d savedAt:%s replacedAt:%s",
		d.ID, d.URL, d.ETag, d.LastModifiedTimestamp, formatTime(d.SavedAt), formatTime(d.ReplacedAt))
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02T15:04:05")
}

// DatasetTransaction bundles the dataset being loaded with the sqlx.Tx its
// rows are recorded in, mirroring the teacher's DataSetTransaction.
type DatasetTransaction struct {
	DS GTFSDataset
	Tx *sqlx.Tx
}

const farFutureDate = "9999-12-31"

// SaveAndTerminateReplacedDataset closes out whatever GTFSDataset is
// currently active as of now and saves ds as its replacement, exactly as
// the teacher's SaveAndTerminateReplacedDataSet does -- this is how a
// weekly bulk GTFS refresh (spec §3 Lifecycles) avoids a window with no
// queryable schedule.
func SaveAndTerminateReplacedDataset(tx *sqlx.Tx, ds *GTFSDataset, now time.Time) error {
	endDate, err := time.Parse("2006-01-02", farFutureDate)
	if err != nil {
		return err
	}
	justBefore := now.Add(-time.Microsecond)
	stmt := tx.Rebind("update gtfs_dataset set replaced_at = ? where ? between saved_at and replaced_at")
	if _, err := tx.Exec(stmt, justBefore, now); err != nil {
		return err
	}
	ds.SavedAt = &now
	ds.ReplacedAt = &endDate
	return SaveDataset(tx, ds)
}

// SaveDataset inserts a new GTFSDataset or updates an existing one.
func SaveDataset(tx *sqlx.Tx, ds *GTFSDataset) error {
	stmt := "insert into gtfs_dataset (url, e_tag, last_modified_timestamp, downloaded_at, saved_at, replaced_at) " +
		"values (:url, :e_tag, :last_modified_timestamp, :downloaded_at, :saved_at, :replaced_at)"
	if ds.ID != 0 {
		stmt = "update gtfs_dataset set url = :url, e_tag = :e_tag, " +
			"last_modified_timestamp = :last_modified_timestamp, downloaded_at = :downloaded_at, " +
			"saved_at = :saved_at, replaced_at = :replaced_at where id = :id"
	}
	stmt = tx.Rebind(stmt)
	if _, err := tx.NamedExec(stmt, ds); err != nil {
		return err
	}
	if ds.ID == 0 {
		stmt = tx.Rebind("select id from gtfs_dataset where e_tag = ? and last_modified_timestamp = ? " +
			"and downloaded_at = ? limit 1")
		if err := tx.Get(&ds.ID, stmt, ds.ETag, ds.LastModifiedTimestamp, ds.DownloadedAt); err != nil {
			return err
		}
	}
	return nil
}

// GetLatestDataset retrieves whichever GTFSDataset is active right now.
func GetLatestDataset(db *sqlx.DB) (*GTFSDataset, error) {
	return GetDatasetAt(db, time.Now())
}

// GetDatasetAt retrieves whichever GTFSDataset was active at the given instant.
func GetDatasetAt(db *sqlx.DB, at time.Time) (*GTFSDataset, error) {
	query := db.Rebind("select * from gtfs_dataset where ? between saved_at and replaced_at order by saved_at desc limit 1")
	ds := GTFSDataset{}
	if err := db.Get(&ds, query, at); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrScheduleNotLoaded, err)
	}
	return &ds, nil
}

// GetAllDatasets lists every GTFSDataset ever loaded.
func GetAllDatasets(db *sqlx.DB) ([]GTFSDataset, error) {
	var results []GTFSDataset
	if err := db.Select(&results, "select * from gtfs_dataset"); err != nil {
		return nil, fmt.Errorf("unable to retrieve gtfs_dataset rows: %w", err)
	}
	return results, nil
}

// DeleteDataset removes every row owned by datasetID across all GTFS
// tables, then the dataset record itself, all inside one transaction --
// mirrors the teacher's gtfsmanager.DeleteGTFSSchedule.
func DeleteDataset(db *sqlx.DB, datasetID int64) error {
	tx, err := db.Beginx()
	if err != nil {
		return err
	}
	tables := []string{"stop_time", "trip", "stop", "route", "agency", "calendar", "calendar_date"}
	for _, table := range tables {
		stmt := tx.Rebind(fmt.Sprintf("delete from %s where dataset_id = ?", table))
		if _, err := tx.Exec(stmt, datasetID); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("deleting from %s: %w", table, err)
		}
	}
	if _, err := tx.Exec(tx.Rebind("delete from gtfs_dataset where id = ?"), datasetID); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
