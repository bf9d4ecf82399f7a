package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	StatusOK     = "ok"
	StatusFailed = "failed"

	timeLayout = "2006-01-02T15:04:05.000000Z"

	// DefaultListLimit caps ListRuns when no limit is given.
	DefaultListLimit = 20
)

var (
	insertRun = `INSERT INTO run (id, stage, status, started_at, duration_ms, inputs, outputs, metrics, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectRuns = `SELECT id, stage, status, started_at, duration_ms, inputs, outputs, metrics, error
		FROM run ORDER BY started_at DESC, id LIMIT ?`

	selectRun = `SELECT id, stage, status, started_at, duration_ms, inputs, outputs, metrics, error
		FROM run WHERE id = ?`
)

// Run is one executed pipeline stage.
type Run struct {
	ID         string             `json:"id" yaml:"id"`
	Stage      string             `json:"stage" yaml:"stage"`
	Status     string             `json:"status" yaml:"status"`
	StartedAt  time.Time          `json:"started_at" yaml:"startedAt"`
	DurationMS int64              `json:"duration_ms" yaml:"durationMs"`
	Inputs     map[string]string  `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Outputs    map[string]string  `json:"outputs,omitempty" yaml:"outputs,omitempty"`
	Metrics    map[string]float64 `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Error      string             `json:"error,omitempty" yaml:"error,omitempty"`
}

// NewRun starts a run record for stage.
func NewRun(stage string) *Run {
	return &Run{
		Stage:     stage,
		StartedAt: time.Now().UTC(),
		Inputs:    map[string]string{},
		Outputs:   map[string]string{},
	}
}

// Finish sets status and duration from err and the elapsed time.
func (r *Run) Finish(err error) {
	r.DurationMS = time.Since(r.StartedAt).Milliseconds()
	r.Status = StatusOK
	if err != nil {
		r.Status = StatusFailed
		r.Error = err.Error()
	}
}

// SaveRun inserts r, assigning an ID when it has none.
func (s *Store) SaveRun(ctx context.Context, r *Run) error {
	if s == nil || s.db == nil {
		return errDBNotInitialized
	}
	if r == nil || r.Stage == "" {
		return errors.New("run stage is required")
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Status == "" {
		r.Status = StatusOK
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now().UTC()
	}

	inputs, err := encodeJSON(r.Inputs)
	if err != nil {
		return err
	}
	outputs, err := encodeJSON(r.Outputs)
	if err != nil {
		return err
	}
	metrics, err := encodeJSON(r.Metrics)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, s.rebind(insertRun),
		r.ID, r.Stage, r.Status, r.StartedAt.UTC().Format(timeLayout), r.DurationMS,
		inputs, outputs, metrics, r.Error)
	if err != nil {
		return errors.Wrapf(err, "failed to insert run %s", r.ID)
	}
	return nil
}

// ListRuns returns the most recent runs first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if s == nil || s.db == nil {
		return nil, errDBNotInitialized
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(selectRuns), limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query runs")
	}
	defer rows.Close()

	list := make([]*Run, 0)
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate runs")
	}
	return list, nil
}

// GetRun returns the run with id.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	if s == nil || s.db == nil {
		return nil, errDBNotInitialized
	}

	r, err := scanRun(s.db.QueryRowContext(ctx, s.rebind(selectRun), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(ErrRunNotFound, "id: %s", id)
		}
		return nil, err
	}
	return r, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var (
		r                        Run
		started                  string
		inputs, outputs, metrics string
	)
	if err := sc.Scan(&r.ID, &r.Stage, &r.Status, &started, &r.DurationMS,
		&inputs, &outputs, &metrics, &r.Error); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, errors.Wrap(err, "failed to scan run")
	}

	t, err := time.Parse(timeLayout, started)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid started_at on run %s", r.ID)
	}
	r.StartedAt = t

	if err := decodeJSON(inputs, &r.Inputs); err != nil {
		return nil, err
	}
	if err := decodeJSON(outputs, &r.Outputs); err != nil {
		return nil, err
	}
	if err := decodeJSON(metrics, &r.Metrics); err != nil {
		return nil, err
	}
	return &r, nil
}

func encodeJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", errors.Wrap(err, "failed to encode run field")
	}
	return string(b), nil
}

func decodeJSON(s string, v any) error {
	if s == "" || s == "null" {
		return nil
	}
	if err := json.Unmarshal([]byte(s), v); err != nil {
		return errors.Wrap(err, "failed to decode run field")
	}
	return nil
}
