package journal

import (
	"context"
	"fmt"

	"github.com/roach88/incr/internal/canonical"
)

// Run statuses.
const (
	StatusRunning = "running"
	StatusPassed  = "passed"
	StatusFailed  = "failed"
)

// BeginRun creates a run row for scenario and returns its id.
func (j *Journal) BeginRun(ctx context.Context, scenario string) (string, error) {
	id := j.ids.Generate()
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO runs (id, scenario, status)
		VALUES (?, ?, ?)
	`, id, scenario, StatusRunning)
	if err != nil {
		return "", fmt.Errorf("begin run: %w", err)
	}
	return id, nil
}

// RecordCycle stores the changes observed in one cycle. changes maps root
// names to their rendered batch. Recording the same cycle twice is a no-op.
func (j *Journal) RecordCycle(ctx context.Context, runID string, cycle int64, changes canonical.Object) error {
	payload, err := encodePayload(changes)
	if err != nil {
		return fmt.Errorf("record cycle %d: %w", cycle, err)
	}
	digest, err := canonical.Digest(canonical.DomainCycle, changes)
	if err != nil {
		return fmt.Errorf("record cycle %d: %w", cycle, err)
	}

	_, err = j.db.ExecContext(ctx, `
		INSERT INTO cycles (run_id, cycle, changes, total, digest)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id, cycle) DO NOTHING
	`, runID, cycle, payload, countChanges(changes), digest)
	if err != nil {
		return fmt.Errorf("record cycle %d: %w", cycle, err)
	}
	return nil
}

// FinishRun stores the final status and the digest of the whole trace.
func (j *Journal) FinishRun(ctx context.Context, runID, status, digest string) error {
	res, err := j.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, digest = ? WHERE id = ?
	`, status, digest, runID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finish run: %w: %s", ErrRunNotFound, runID)
	}
	return nil
}

// countChanges counts the keys of every root batch.
func countChanges(changes canonical.Object) int {
	n := 0
	for _, v := range changes {
		if batch, ok := v.(canonical.Object); ok {
			n += len(batch)
		}
	}
	return n
}
