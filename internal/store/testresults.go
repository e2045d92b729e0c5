package store

import (
	"context"
	"fmt"

	"muninn/internal/merrors"
)

// RecordTestResult logs one test run against a file within a session, feeding
// the decision-outcome auto-tracker's negative signal (§4.9: "a test failure
// recorded against an overlapping file within the session").
func (a *SQLiteAdapter) RecordTestResult(ctx context.Context, sessionID int64, filePath string, passed bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	p := 0
	if passed {
		p = 1
	}
	_, err := a.db.ExecContext(ctx, `INSERT INTO test_results (session_id, file_path, passed) VALUES (?,?,?)`,
		sessionID, filePath, p)
	if err != nil {
		return fmt.Errorf("%w: record test result: %v", merrors.ErrDBWriteFailed, err)
	}
	return nil
}

// FailedTestFilesForSession returns the distinct files with at least one
// failing test result recorded during sessionID, used by the decision-outcome
// auto-tracker to detect a negative signal (§4.9).
func (a *SQLiteAdapter) FailedTestFilesForSession(ctx context.Context, sessionID int64) ([]string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	rows, err := a.db.QueryContext(ctx, `SELECT DISTINCT file_path FROM test_results
		WHERE session_id=? AND passed=0 AND file_path IS NOT NULL AND file_path != ''`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("store: failed test files: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
