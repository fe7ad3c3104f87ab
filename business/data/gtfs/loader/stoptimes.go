package loader

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/leonardbinet/railfeed/business/data/gtfs"
)

// stopTimeColumns are the header names loadStopTimes looks up by name,
// tolerating any column order/extra columns the source table carries.
type stopTimeColumns struct {
	tripID, stopSequence, stopID, arrivalTime, departureTime, shapeDistTraveled int
}

func resolveStopTimeColumns(headers []string) (stopTimeColumns, error) {
	index := make(map[string]int, len(headers))
	for i, h := range headers {
		index[h] = i
	}
	cols := stopTimeColumns{shapeDistTraveled: -1}
	required := map[string]*int{
		"trip_id":        &cols.tripID,
		"stop_sequence":  &cols.stopSequence,
		"stop_id":        &cols.stopID,
		"arrival_time":   &cols.arrivalTime,
		"departure_time": &cols.departureTime,
	}
	for name, dst := range required {
		i, ok := index[name]
		if !ok {
			return cols, fmt.Errorf("stop_times.txt missing column %q", name)
		}
		*dst = i
	}
	if i, ok := index["shape_dist_traveled"]; ok {
		cols.shapeDistTraveled = i
	}
	return cols, nil
}

// loadStopTimes streams stop_times.txt, recording batches of
// batchedStopTimeCount rows at a time (teacher's stopTimeRowReader
// shape), since this table routinely runs into the millions of rows for a
// full network schedule and must never be buffered whole.
func loadStopTimes(dir string, dsTx *gtfs.DatasetTransaction) error {
	f, err := openTable(dir, "stop_times.txt")
	if err != nil {
		return err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.ReuseRecord = false
	headers, err := reader.Read()
	if err != nil {
		return fmt.Errorf("reading stop_times.txt header: %w", err)
	}
	cols, err := resolveStopTimeColumns(headers)
	if err != nil {
		return err
	}

	var batch []*gtfs.StopTime
	line := 1
	for {
		record, err := reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("reading stop_times.txt line %d: %w", line+1, err)
		}
		line++

		st, err := buildStopTime(record, cols)
		if err != nil {
			return fmt.Errorf("stop_times.txt line %d: %w", line, err)
		}
		batch = append(batch, st)

		if len(batch) == batchedStopTimeCount {
			if err := gtfs.RecordStopTimes(batch, dsTx); err != nil {
				return fmt.Errorf("recording stop_times batch ending line %d: %w", line, err)
			}
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		if err := gtfs.RecordStopTimes(batch, dsTx); err != nil {
			return fmt.Errorf("recording final stop_times batch: %w", err)
		}
	}
	return nil
}

func buildStopTime(record []string, cols stopTimeColumns) (*gtfs.StopTime, error) {
	stopSequence, err := strconv.Atoi(record[cols.stopSequence])
	if err != nil {
		return nil, fmt.Errorf("invalid stop_sequence %q: %w", record[cols.stopSequence], err)
	}
	arrival, err := parseGTFSTime(record[cols.arrivalTime])
	if err != nil {
		return nil, fmt.Errorf("invalid arrival_time %q: %w", record[cols.arrivalTime], err)
	}
	departure, err := parseGTFSTime(record[cols.departureTime])
	if err != nil {
		return nil, fmt.Errorf("invalid departure_time %q: %w", record[cols.departureTime], err)
	}

	st := &gtfs.StopTime{
		TripID:        record[cols.tripID],
		StopID:        record[cols.stopID],
		StopSequence:  stopSequence,
		ArrivalTime:   arrival,
		DepartureTime: departure,
	}
	if cols.shapeDistTraveled >= 0 && record[cols.shapeDistTraveled] != "" {
		d, err := strconv.ParseFloat(record[cols.shapeDistTraveled], 64)
		if err == nil {
			st.ShapeDistTraveled = &d
		}
	}
	return st, nil
}

// parseGTFSTime parses an extended-clock "HH:MM:SS" field (hours may
// exceed 23) directly into seconds, without going through
// clock.ParseExtendedTime's 0-28 range validation -- raw GTFS tables are
// occasionally sloppier than the spec's extended-clock range and the
// loader should keep ingesting rather than abort the whole table over one
// row. Hours are not range-checked here or downstream; only a field
// shorter than 7 characters or not of the form H:M:S is rejected.
func parseGTFSTime(s string) (int, error) {
	if len(s) < 7 {
		return 0, fmt.Errorf("too short")
	}
	var h, m, sec int
	_, err := fmt.Sscanf(s, "%d:%d:%d", &h, &m, &sec)
	if err != nil {
		return 0, err
	}
	return h*3600 + m*60 + sec, nil
}
