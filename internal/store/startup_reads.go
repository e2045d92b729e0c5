package store

import (
	"context"
	"fmt"

	"muninn/internal/types"
)

// CountOngoingSession reports whether a project currently has an active
// (unended) session, used by the startup planner to detect a crashed or
// abandoned session from a prior run (§4.11).
func (a *SQLiteAdapter) CountOngoingSession(ctx context.Context, projectID int64) (bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var n int
	err := a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions
		WHERE project_id=? AND ended_at IS NULL`, projectID).Scan(&n)
	return n > 0, err
}

// RecentObservations returns the most recent free-form observations recorded
// for a project, newest first, capped at limit (§4.11 resume context).
func (a *SQLiteAdapter) RecentObservations(ctx context.Context, projectID int64, limit int) ([]string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	rows, err := a.db.QueryContext(ctx, `SELECT content FROM observations
		WHERE project_id=? ORDER BY created_at DESC LIMIT ?`, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: recent observations: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			continue
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// TechDebtList returns open tech-debt issues, most severe first, capped at
// limit (§4.11 startup planner's tech-debt digest).
func (a *SQLiteAdapter) TechDebtList(ctx context.Context, projectID int64, limit int) ([]*types.Issue, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	rows, err := a.db.QueryContext(ctx, `SELECT `+issueColumns+` FROM issues
		WHERE project_id=? AND type='tech-debt' AND status IN ('open','in-progress')
		ORDER BY severity DESC LIMIT ?`, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: tech debt list: %w", err)
	}
	defer rows.Close()
	var out []*types.Issue
	for rows.Next() {
		i, err := scanIssue(rows)
		if err != nil {
			continue
		}
		out = append(out, i)
	}
	return out, rows.Err()
}
