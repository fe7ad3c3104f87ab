package gtfs

import "time"

// Calendar is a row from calendar.txt: the weekday pattern a service-id
// runs on, valid within [StartDate, EndDate].
type Calendar struct {
	DatasetID int64  `db:"dataset_id"`
	ServiceID string `db:"service_id"`
	Monday    int
	Tuesday   int
	Wednesday int
	Thursday  int
	Friday    int
	Saturday  int
	Sunday    int
	StartDate *time.Time `db:"start_date"`
	EndDate   *time.Time `db:"end_date"`
}

// RunsOn reports whether this calendar's weekday pattern covers weekday wd.
func (c Calendar) RunsOn(wd time.Weekday) bool {
	switch wd {
	case time.Monday:
		return c.Monday != 0
	case time.Tuesday:
		return c.Tuesday != 0
	case time.Wednesday:
		return c.Wednesday != 0
	case time.Thursday:
		return c.Thursday != 0
	case time.Friday:
		return c.Friday != 0
	case time.Saturday:
		return c.Saturday != 0
	case time.Sunday:
		return c.Sunday != 0
	}
	return false
}

// ExceptionType mirrors GTFS calendar_dates.txt exception_type: 1 adds
// service on that date, 2 removes it (spec §4.3 services_on).
type ExceptionType int

const (
	ExceptionAdded   ExceptionType = 1
	ExceptionRemoved ExceptionType = 2
)

// CalendarException is a row from calendar_dates.txt: a per-date override
// of a service-id's normal Calendar pattern. Named per spec §3 (the
// teacher calls the same concept CalendarDate).
type CalendarException struct {
	DatasetID     int64     `db:"dataset_id"`
	ServiceID     string    `db:"service_id"`
	Date          time.Time `db:"date"`
	ExceptionType int       `db:"exception_type"`
}

// RecordCalendars bulk-inserts calendars under dsTx.DS.
func RecordCalendars(calendars []*Calendar, dsTx *DatasetTransaction) error {
	for _, c := range calendars {
		c.DatasetID = dsTx.DS.ID
	}
	stmt := "insert into calendar ( " +
		"dataset_id, service_id, monday, tuesday, wednesday, thursday, friday, saturday, sunday, start_date, end_date) " +
		"values (" +
		":dataset_id, :service_id, :monday, :tuesday, :wednesday, :thursday, :friday, :saturday, :sunday, :start_date, :end_date)"
	stmt = dsTx.Tx.Rebind(stmt)
	_, err := dsTx.Tx.NamedExec(stmt, calendars)
	return err
}

// RecordCalendarExceptions bulk-inserts calendar_date exceptions under dsTx.DS.
func RecordCalendarExceptions(exceptions []*CalendarException, dsTx *DatasetTransaction) error {
	for _, e := range exceptions {
		e.DatasetID = dsTx.DS.ID
	}
	stmt := "insert into calendar_date ( " +
		"dataset_id, service_id, date, exception_type) " +
		"values (" +
		":dataset_id, :service_id, :date, :exception_type)"
	stmt = dsTx.Tx.Rebind(stmt)
	_, err := dsTx.Tx.NamedExec(stmt, exceptions)
	return err
}
