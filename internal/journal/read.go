package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/incr/internal/canonical"
)

// ErrRunNotFound is returned for unknown run ids.
var ErrRunNotFound = errors.New("run not found")

// Run is one journaled scenario run.
type Run struct {
	Seq      int64  `json:"seq"`
	ID       string `json:"id"`
	Scenario string `json:"scenario"`
	Status   string `json:"status"`
	Digest   string `json:"digest"`
}

// Cycle is one journaled driver cycle.
type Cycle struct {
	Cycle   int64
	Changes canonical.Object
	Total   int
	Digest  string
}

// Runs returns every run in creation order.
// Returns an empty slice (not nil) for an empty journal.
func (j *Journal) Runs(ctx context.Context) ([]Run, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT seq, id, scenario, status, digest
		FROM runs
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.Seq, &r.ID, &r.Scenario, &r.Status, &r.Digest); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// Run returns one run by id.
func (j *Journal) Run(ctx context.Context, id string) (Run, error) {
	var r Run
	err := j.db.QueryRowContext(ctx, `
		SELECT seq, id, scenario, status, digest
		FROM runs
		WHERE id = ?
	`, id).Scan(&r.Seq, &r.ID, &r.Scenario, &r.Status, &r.Digest)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return Run{}, fmt.Errorf("query run: %w", err)
	}
	return r, nil
}

// LatestRun returns the most recently started run.
func (j *Journal) LatestRun(ctx context.Context) (Run, error) {
	var r Run
	err := j.db.QueryRowContext(ctx, `
		SELECT seq, id, scenario, status, digest
		FROM runs
		ORDER BY seq DESC
		LIMIT 1
	`).Scan(&r.Seq, &r.ID, &r.Scenario, &r.Status, &r.Digest)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrRunNotFound
	}
	if err != nil {
		return Run{}, fmt.Errorf("query latest run: %w", err)
	}
	return r, nil
}

// Cycles returns the cycles of a run in cycle order.
func (j *Journal) Cycles(ctx context.Context, runID string) ([]Cycle, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT cycle, changes, total, digest
		FROM cycles
		WHERE run_id = ?
		ORDER BY cycle ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query cycles: %w", err)
	}
	defer rows.Close()

	cycles := []Cycle{}
	for rows.Next() {
		var (
			c       Cycle
			payload []byte
		)
		if err := rows.Scan(&c.Cycle, &payload, &c.Total, &c.Digest); err != nil {
			return nil, fmt.Errorf("scan cycle: %w", err)
		}
		if c.Changes, err = decodePayload(payload); err != nil {
			return nil, fmt.Errorf("cycle %d: %w", c.Cycle, err)
		}
		cycles = append(cycles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cycles: %w", err)
	}
	return cycles, nil
}
