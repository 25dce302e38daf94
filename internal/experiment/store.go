// Package experiment implements A/B experiment lifecycle persistence (spec
// §4.6), deterministic arm assignment, and the statistical readout engine
// (§4.6.1) that turns raw per-arm metrics into a significance verdict.
package experiment

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/flapjack/flapjack/internal/apperr"
	"github.com/flapjack/flapjack/internal/model"
)

// Open opens a PostgreSQL connection using the pgx stdlib driver and
// verifies connectivity, mirroring the teacher's store/postgres.Open.
func Open(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("experiment: postgres DSN is empty")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Bootstrap creates the experiments table if it does not already exist.
// Unlike the teacher's ping-only bootstrap, this store owns a schema that
// isn't provisioned by any external migration tool.
func Bootstrap(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
        CREATE TABLE IF NOT EXISTS experiments (
            id                  TEXT PRIMARY KEY,
            name                TEXT NOT NULL,
            target_index        TEXT NOT NULL,
            status              TEXT NOT NULL,
            traffic_split       DOUBLE PRECISION NOT NULL,
            control_arm         JSONB NOT NULL,
            variant_arm         JSONB NOT NULL,
            primary_metric      TEXT NOT NULL,
            minimum_days        INTEGER NOT NULL,
            winsorization_cap   DOUBLE PRECISION,
            conclusion          JSONB,
            creation_time       TIMESTAMPTZ NOT NULL,
            start_time          TIMESTAMPTZ,
            stop_time           TIMESTAMPTZ
        )
    `)
	if err != nil {
		return err
	}
	// Enforces spec §3's "at most one experiment per target index has
	// status=running" invariant at the database level, backstopping the
	// transition() check below against concurrent Start calls.
	_, err = db.ExecContext(ctx, `
        CREATE UNIQUE INDEX IF NOT EXISTS experiments_one_running_per_index
            ON experiments (target_index) WHERE status = 'running'
    `)
	return err
}

// Store is the Postgres-backed CRUD and lifecycle store for experiments.
type Store struct{ db *sql.DB }

// New constructs a Store over an already-open, already-bootstrapped DB.
func New(db *sql.DB) *Store { return &Store{db: db} }

// Close closes the underlying database connection pool.
func (s *Store) Close() error { return s.db.Close() }

// Create inserts a new experiment in StatusDraft.
func (s *Store) Create(ctx context.Context, req CreateRequest) (*model.Experiment, error) {
	if !req.ControlArm.Valid() || !req.VariantArm.Valid() {
		return nil, apperr.InvalidQuery("arm must not set both queryOverrides and indexName")
	}
	if req.TrafficSplit <= 0 || req.TrafficSplit >= 1 {
		return nil, apperr.InvalidQuery("trafficSplit must be in (0, 1), got %v", req.TrafficSplit)
	}

	exp := &model.Experiment{
		ID:               uuid.New().String(),
		Name:             req.Name,
		TargetIndex:      req.TargetIndex,
		Status:           model.StatusDraft,
		TrafficSplit:     req.TrafficSplit,
		ControlArm:       req.ControlArm,
		VariantArm:       req.VariantArm,
		PrimaryMetric:    req.PrimaryMetric,
		MinimumDays:      req.MinimumDays,
		WinsorizationCap: req.WinsorizationCap,
	}

	controlJSON, err := json.Marshal(exp.ControlArm)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	variantJSON, err := json.Marshal(exp.VariantArm)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	row := s.db.QueryRowContext(ctx, `
        INSERT INTO experiments (id, name, target_index, status, traffic_split, control_arm, variant_arm,
                                  primary_metric, minimum_days, winsorization_cap, creation_time)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10, now())
        RETURNING creation_time
    `, exp.ID, exp.Name, exp.TargetIndex, exp.Status, exp.TrafficSplit, controlJSON, variantJSON,
		exp.PrimaryMetric, exp.MinimumDays, exp.WinsorizationCap)
	if err := row.Scan(&exp.CreationTime); err != nil {
		return nil, apperr.Internal(err)
	}
	return exp, nil
}

// Get fetches an experiment by ID.
func (s *Store) Get(ctx context.Context, id string) (*model.Experiment, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT id, name, target_index, status, traffic_split, control_arm, variant_arm,
               primary_metric, minimum_days, winsorization_cap, conclusion, creation_time, start_time, stop_time
        FROM experiments WHERE id=$1
    `, id)
	exp, err := scanExperiment(row)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("experiment %q not found", id)
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return exp, nil
}

// List returns experiments, optionally filtered by status, newest first.
func (s *Store) List(ctx context.Context, status model.ExperimentStatus) ([]*model.Experiment, error) {
	query := `SELECT id, name, target_index, status, traffic_split, control_arm, variant_arm,
               primary_metric, minimum_days, winsorization_cap, conclusion, creation_time, start_time, stop_time
        FROM experiments`
	args := []interface{}{}
	if status != "" {
		query += ` WHERE status=$1`
		args = append(args, status)
	}
	query += ` ORDER BY creation_time DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	defer func() { _ = rows.Close() }()

	var out []*model.Experiment
	for rows.Next() {
		exp, err := scanExperiment(rows)
		if err != nil {
			return nil, apperr.Internal(err)
		}
		out = append(out, exp)
	}
	return out, rows.Err()
}

// Update edits a draft experiment's definition. Running, stopped, and
// concluded experiments are immutable: their arm assignment and metric
// definition must stay fixed for the lifetime of the test, so mutating them
// is rejected the same way an invalid lifecycle transition is.
func (s *Store) Update(ctx context.Context, id string, req CreateRequest) (*model.Experiment, error) {
	if !req.ControlArm.Valid() || !req.VariantArm.Valid() {
		return nil, apperr.InvalidQuery("arm must not set both queryOverrides and indexName")
	}
	if req.TrafficSplit <= 0 || req.TrafficSplit >= 1 {
		return nil, apperr.InvalidQuery("trafficSplit must be in (0, 1), got %v", req.TrafficSplit)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
        SELECT id, name, target_index, status, traffic_split, control_arm, variant_arm,
               primary_metric, minimum_days, winsorization_cap, conclusion, creation_time, start_time, stop_time
        FROM experiments WHERE id=$1 FOR UPDATE
    `, id)
	exp, err := scanExperiment(row)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("experiment %q not found", id)
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if exp.Status != model.StatusDraft {
		return nil, apperr.InvalidStatus("cannot update experiment %q: only draft experiments are editable", id)
	}

	exp.Name = req.Name
	exp.TargetIndex = req.TargetIndex
	exp.TrafficSplit = req.TrafficSplit
	exp.ControlArm = req.ControlArm
	exp.VariantArm = req.VariantArm
	exp.PrimaryMetric = req.PrimaryMetric
	exp.MinimumDays = req.MinimumDays
	exp.WinsorizationCap = req.WinsorizationCap

	controlJSON, err := json.Marshal(exp.ControlArm)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	variantJSON, err := json.Marshal(exp.VariantArm)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	if _, err := tx.ExecContext(ctx, `
        UPDATE experiments SET name=$1, target_index=$2, traffic_split=$3, control_arm=$4, variant_arm=$5,
               primary_metric=$6, minimum_days=$7, winsorization_cap=$8
        WHERE id=$9
    `, exp.Name, exp.TargetIndex, exp.TrafficSplit, controlJSON, variantJSON,
		exp.PrimaryMetric, exp.MinimumDays, exp.WinsorizationCap, id); err != nil {
		return nil, apperr.Internal(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, apperr.Internal(err)
	}
	return exp, nil
}

// Delete removes an experiment permanently. Concluded experiments cannot be
// deleted: their readout is a historical record of a decision made.
func (s *Store) Delete(ctx context.Context, id string) error {
	exp, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if exp.Status == model.StatusConcluded {
		return apperr.InvalidStatus("cannot delete concluded experiment %q: it is a permanent record", id)
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM experiments WHERE id=$1`, id)
	if err != nil {
		return apperr.Internal(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("experiment %q not found", id)
	}
	return nil
}

// RunningForIndex returns the single running experiment targeting index, if
// any, implementing search.ExperimentLookup. At most one experiment can be
// running against a given index at a time (an experiment's target index can
// change only while it is a draft, and running is a one-shot transition), so
// the first match is the only match.
func (s *Store) RunningForIndex(ctx context.Context, index string) (*model.Experiment, bool, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT id, name, target_index, status, traffic_split, control_arm, variant_arm,
               primary_metric, minimum_days, winsorization_cap, conclusion, creation_time, start_time, stop_time
        FROM experiments WHERE target_index=$1 AND status=$2
        ORDER BY start_time DESC LIMIT 1
    `, index, model.StatusRunning)
	exp, err := scanExperiment(row)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperr.Internal(err)
	}
	return exp, true, nil
}

// allowedTransitions enforces the lifecycle invariant from spec §4.6:
// draft -> running (once) -> stopped -> concluded, nothing else.
var allowedTransitions = map[model.ExperimentStatus]model.ExperimentStatus{
	model.StatusDraft:   model.StatusRunning,
	model.StatusRunning: model.StatusStopped,
	model.StatusStopped: model.StatusConcluded,
}

// Start transitions an experiment from draft to running.
func (s *Store) Start(ctx context.Context, id string) (*model.Experiment, error) {
	return s.transition(ctx, id, model.StatusRunning, func(exp *model.Experiment) {
		now := time.Now()
		exp.StartTime = &now
	})
}

// Stop transitions an experiment from running to stopped.
func (s *Store) Stop(ctx context.Context, id string) (*model.Experiment, error) {
	return s.transition(ctx, id, model.StatusStopped, func(exp *model.Experiment) {
		now := time.Now()
		exp.StopTime = &now
	})
}

// Conclude transitions an experiment from stopped to concluded, recording
// the winner decision made by the caller (typically based on a readout).
func (s *Store) Conclude(ctx context.Context, id string, req ConcludeRequest) (*model.Experiment, error) {
	return s.transition(ctx, id, model.StatusConcluded, func(exp *model.Experiment) {
		exp.Conclusion = &model.Conclusion{
			Winner:    req.Winner,
			Notes:     req.Notes,
			Timestamp: time.Now(),
		}
	})
}

func (s *Store) transition(ctx context.Context, id string, target model.ExperimentStatus, mutate func(*model.Experiment)) (*model.Experiment, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
        SELECT id, name, target_index, status, traffic_split, control_arm, variant_arm,
               primary_metric, minimum_days, winsorization_cap, conclusion, creation_time, start_time, stop_time
        FROM experiments WHERE id=$1 FOR UPDATE
    `, id)
	exp, err := scanExperiment(row)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("experiment %q not found", id)
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}

	if allowedTransitions[exp.Status] != target {
		return nil, apperr.InvalidStatus("cannot transition experiment from %q to %q", exp.Status, target)
	}

	if target == model.StatusRunning {
		var other string
		err := tx.QueryRowContext(ctx, `
            SELECT id FROM experiments WHERE target_index=$1 AND status=$2 AND id<>$3 LIMIT 1
        `, exp.TargetIndex, model.StatusRunning, id).Scan(&other)
		if err != nil && err != sql.ErrNoRows {
			return nil, apperr.Internal(err)
		}
		if err == nil {
			return nil, apperr.AlreadyExists("experiment %q is already running against index %q", other, exp.TargetIndex)
		}
	}

	exp.Status = target
	mutate(exp)

	conclusionJSON, err := nullableJSON(exp.Conclusion)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	if _, err := tx.ExecContext(ctx, `
        UPDATE experiments SET status=$1, conclusion=$2, start_time=$3, stop_time=$4 WHERE id=$5
    `, exp.Status, conclusionJSON, exp.StartTime, exp.StopTime, id); err != nil {
		return nil, apperr.Internal(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, apperr.Internal(err)
	}
	return exp, nil
}

// CreateRequest is the input to Store.Create, mirroring the original
// implementation's CreateExperimentRequest.
type CreateRequest struct {
	Name             string
	TargetIndex      string
	TrafficSplit     float64
	ControlArm       model.Arm
	VariantArm       model.Arm
	PrimaryMetric    model.PrimaryMetric
	MinimumDays      int
	WinsorizationCap *float64
}

// ConcludeRequest is the input to Store.Conclude.
type ConcludeRequest struct {
	Winner string
	Notes  string
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanExperiment(row scanner) (*model.Experiment, error) {
	var exp model.Experiment
	var controlJSON, variantJSON []byte
	var conclusionJSON []byte
	var startTime, stopTime sql.NullTime
	var winsorCap sql.NullFloat64

	if err := row.Scan(&exp.ID, &exp.Name, &exp.TargetIndex, &exp.Status, &exp.TrafficSplit,
		&controlJSON, &variantJSON, &exp.PrimaryMetric, &exp.MinimumDays, &winsorCap,
		&conclusionJSON, &exp.CreationTime, &startTime, &stopTime); err != nil {
		return nil, err
	}
	if winsorCap.Valid {
		exp.WinsorizationCap = &winsorCap.Float64
	}
	if err := json.Unmarshal(controlJSON, &exp.ControlArm); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(variantJSON, &exp.VariantArm); err != nil {
		return nil, err
	}
	if len(conclusionJSON) > 0 {
		var c model.Conclusion
		if err := json.Unmarshal(conclusionJSON, &c); err != nil {
			return nil, err
		}
		exp.Conclusion = &c
	}
	if startTime.Valid {
		exp.StartTime = &startTime.Time
	}
	if stopTime.Valid {
		exp.StopTime = &stopTime.Time
	}
	return &exp, nil
}

func nullableJSON(v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return b, nil
}
