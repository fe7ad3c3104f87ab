// Package predictors persists the trained regressor pipeline the engine
// treats as opaque (spec §1, §6: "the regressor training loop itself" is
// out of scope -- the engine only persists/retrieves the trained pipeline
// opaquely). Adapted from the teacher's business/data/mlmodels package: the
// same versioned, time-windowed, "currently relevant" record shape, renamed
// to this system's vocabulary and generalized from a fixed stop-sequence
// model to a per-line regressor keyed by route short name.
package predictors

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// farFuture closes the validity window of a currently-relevant predictor
// the same way the teacher's MLModel.EndTimestamp does.
var farFuture = time.Date(3000, 12, 31, 23, 59, 59, 0, time.UTC)

// Predictor is one trained regressor pipeline, opaque to this engine apart
// from its metadata (spec §3 "predictors table holding opaque serialized
// regressor blobs with metadata: line, features, training-set window,
// version tag, score narrative").
type Predictor struct {
	PredictorID       int64      `db:"predictor_id" json:"predictor_id"`
	RouteShortName    string     `db:"route_short_name" json:"route_short_name"`
	Version           int        `db:"version" json:"version"`
	Features          []string   `db:"-" json:"features"`
	FeaturesCSV       string     `db:"features" json:"-"`
	TrainingSetStart  time.Time  `db:"training_set_start" json:"training_set_start"`
	TrainingSetEnd    time.Time  `db:"training_set_end" json:"training_set_end"`
	ScoreNarrative    string     `db:"score_narrative" json:"score_narrative"`
	TrainedAt         *time.Time `db:"trained_at" json:"trained_at"`
	ValidFrom         time.Time  `db:"valid_from" json:"valid_from"`
	ValidUntil        time.Time  `db:"valid_until" json:"valid_until"`
	CurrentlyRelevant bool       `db:"currently_relevant" json:"currently_relevant"`

	// Metadata is an arbitrary training-run metadata bag (hyperparameters,
	// naive-baseline comparisons, anything the training loop wants to
	// hand back) encoded as a protobuf Struct so storage never needs to
	// know its shape -- this is the "opaque blob" half of the table.
	Metadata *structpb.Struct `db:"-" json:"-"`
	// MetadataBytes is Metadata marshaled with proto.Marshal, the column
	// actually persisted.
	MetadataBytes []byte `db:"metadata" json:"-"`

	// Blob is the serialized regressor pipeline itself, entirely opaque
	// to this package -- whatever bytes the training loop produced.
	Blob []byte `db:"blob" json:"-"`
}

// EncodeMetadata marshals p.Metadata into p.MetadataBytes, to be called
// before a save.
func (p *Predictor) EncodeMetadata() error {
	if p.Metadata == nil {
		p.MetadataBytes = nil
		return nil
	}
	b, err := proto.Marshal(p.Metadata)
	if err != nil {
		return fmt.Errorf("encoding predictor metadata: %w", err)
	}
	p.MetadataBytes = b
	return nil
}

// DecodeMetadata unmarshals p.MetadataBytes into p.Metadata, to be called
// after a load.
func (p *Predictor) DecodeMetadata() error {
	if len(p.MetadataBytes) == 0 {
		p.Metadata = nil
		return nil
	}
	s := &structpb.Struct{}
	if err := proto.Unmarshal(p.MetadataBytes, s); err != nil {
		return fmt.Errorf("decoding predictor metadata: %w", err)
	}
	p.Metadata = s
	return nil
}

func joinFeatures(features []string) string {
	out := ""
	for i, f := range features {
		if i > 0 {
			out += ","
		}
		out += f
	}
	return out
}

func splitFeatures(csv string) []string {
	if csv == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(csv); i++ {
		if i == len(csv) || csv[i] == ',' {
			out = append(out, csv[start:i])
			start = i + 1
		}
	}
	return out
}

// NewPredictor builds a Predictor ready to be saved as the new current
// version for routeShortName, mirroring the teacher's MakeMLModel factory.
func NewPredictor(routeShortName string, version int, features []string, trainingStart, trainingEnd time.Time) *Predictor {
	return &Predictor{
		RouteShortName:    routeShortName,
		Version:           version,
		Features:          features,
		FeaturesCSV:       joinFeatures(features),
		TrainingSetStart:  trainingStart,
		TrainingSetEnd:    trainingEnd,
		ValidFrom:         trainingEnd,
		ValidUntil:        farFuture,
		CurrentlyRelevant: true,
	}
}

// Save inserts a new Predictor or updates an existing one by PredictorID,
// following the teacher's RecordNewMLModel/UpdateMLModel insert-then-update
// shape.
func Save(db *sqlx.DB, p *Predictor) error {
	if err := p.EncodeMetadata(); err != nil {
		return err
	}
	p.FeaturesCSV = joinFeatures(p.Features)

	stmt := "insert into predictors (" +
		"route_short_name, version, features, training_set_start, training_set_end, " +
		"score_narrative, trained_at, valid_from, valid_until, currently_relevant, metadata, blob) " +
		"values (" +
		":route_short_name, :version, :features, :training_set_start, :training_set_end, " +
		":score_narrative, :trained_at, :valid_from, :valid_until, :currently_relevant, :metadata, :blob)"
	if p.PredictorID != 0 {
		stmt = "update predictors set route_short_name = :route_short_name, version = :version, " +
			"features = :features, training_set_start = :training_set_start, training_set_end = :training_set_end, " +
			"score_narrative = :score_narrative, trained_at = :trained_at, valid_from = :valid_from, " +
			"valid_until = :valid_until, currently_relevant = :currently_relevant, metadata = :metadata, blob = :blob " +
			"where predictor_id = :predictor_id"
	}
	stmt = db.Rebind(stmt)
	if _, err := db.NamedExec(stmt, p); err != nil {
		return fmt.Errorf("saving predictor for route %s: %w", p.RouteShortName, err)
	}
	if p.PredictorID == 0 {
		stmt = db.Rebind("select predictor_id from predictors where route_short_name = ? and version = ? limit 1")
		if err := db.Get(&p.PredictorID, stmt, p.RouteShortName, p.Version); err != nil {
			return err
		}
	}
	return nil
}

// RetireCurrentAndSave closes out whatever Predictor is currently relevant
// for routeShortName as of at, then saves next as its replacement --
// mirrors SaveAndTerminateReplacedDataset's weekly-refresh shape, applied
// to the predictors table instead of the schedule.
func RetireCurrentAndSave(db *sqlx.DB, routeShortName string, next *Predictor, at time.Time) error {
	tx, err := db.Beginx()
	if err != nil {
		return err
	}
	stmt := tx.Rebind("update predictors set valid_until = ?, currently_relevant = false " +
		"where route_short_name = ? and currently_relevant = true")
	if _, err := tx.Exec(stmt, at.Add(-time.Microsecond), routeShortName); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := saveTx(tx, next); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func saveTx(tx *sqlx.Tx, p *Predictor) error {
	if err := p.EncodeMetadata(); err != nil {
		return err
	}
	p.FeaturesCSV = joinFeatures(p.Features)
	stmt := tx.Rebind("insert into predictors (" +
		"route_short_name, version, features, training_set_start, training_set_end, " +
		"score_narrative, trained_at, valid_from, valid_until, currently_relevant, metadata, blob) " +
		"values (" +
		":route_short_name, :version, :features, :training_set_start, :training_set_end, " +
		":score_narrative, :trained_at, :valid_from, :valid_until, :currently_relevant, :metadata, :blob)")
	_, err := tx.NamedExec(stmt, p)
	return err
}

// CurrentByRoute returns the currently-relevant Predictor for each route
// short name that has one, analogous to the teacher's
// GetAllCurrentMLModelsByName.
func CurrentByRoute(db *sqlx.DB) (map[string]*Predictor, error) {
	var rows []Predictor
	if err := db.Select(&rows, "select * from predictors where currently_relevant = true"); err != nil {
		return nil, fmt.Errorf("loading current predictors: %w", err)
	}
	out := make(map[string]*Predictor, len(rows))
	for i := range rows {
		rows[i].Features = splitFeatures(rows[i].FeaturesCSV)
		if err := rows[i].DecodeMetadata(); err != nil {
			return nil, err
		}
		out[rows[i].RouteShortName] = &rows[i]
	}
	return out, nil
}
