package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"muninn/internal/merrors"
	"muninn/internal/types"
)

// UpsertInsight inserts a new insight or, if one with the same title already
// exists, bumps shown_count and refreshes its evidence/confidence (§4.10:
// repeated detections reinforce rather than duplicate).
func (a *SQLiteAdapter) UpsertInsight(ctx context.Context, i *types.Insight) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO insights (project_id, title, type, content, evidence, confidence, status, shown_count)
		VALUES (?,?,?,?,?,?,?,1)
		ON CONFLICT(project_id, title) DO UPDATE SET
			content=excluded.content, evidence=excluded.evidence, confidence=excluded.confidence,
			shown_count=insights.shown_count+1, updated_at=CURRENT_TIMESTAMP`,
		i.ProjectID, i.Title, i.Type, i.Content, toJSON(i.Evidence), i.Confidence, i.Status)
	if err != nil {
		return fmt.Errorf("%w: upsert insight: %v", merrors.ErrDBWriteFailed, err)
	}
	return nil
}

// ListNewInsights returns unacknowledged insights, highest confidence first.
func (a *SQLiteAdapter) ListNewInsights(ctx context.Context, projectID int64) ([]*types.Insight, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	rows, err := a.db.QueryContext(ctx, `SELECT id, project_id, title, type, content, evidence,
		confidence, status, shown_count, created_at, updated_at FROM insights
		WHERE project_id=? AND status='new' ORDER BY confidence DESC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("store: list new insights: %w", err)
	}
	defer rows.Close()
	var out []*types.Insight
	for rows.Next() {
		var i types.Insight
		var evidence sql.NullString
		if err := rows.Scan(&i.ID, &i.ProjectID, &i.Title, &i.Type, &i.Content, &evidence,
			&i.Confidence, &i.Status, &i.ShownCount, &i.CreatedAt, &i.UpdatedAt); err != nil {
			continue
		}
		i.Evidence = fromJSONStrings(evidence)
		out = append(out, &i)
	}
	return out, rows.Err()
}

// AutoDismissStaleInsights dismisses "new" insights shown at least
// shownCountThreshold times without acknowledgement (§4.10).
func (a *SQLiteAdapter) AutoDismissStaleInsights(ctx context.Context, projectID int64, shownCountThreshold int) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	res, err := a.db.ExecContext(ctx, `UPDATE insights SET status='dismissed', updated_at=CURRENT_TIMESTAMP
		WHERE project_id=? AND status='new' AND shown_count>=?`, projectID, shownCountThreshold)
	if err != nil {
		return 0, fmt.Errorf("%w: auto-dismiss insights: %v", merrors.ErrDBWriteFailed, err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// LastInsightGeneratedAt returns the most recent insight creation time, or nil
// if none exist yet (§4.10 insight-due check).
func (a *SQLiteAdapter) LastInsightGeneratedAt(ctx context.Context, projectID int64) (*time.Time, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var t sql.NullTime
	err := a.db.QueryRowContext(ctx, `SELECT MAX(created_at) FROM insights WHERE project_id=?`, projectID).Scan(&t)
	if err != nil {
		return nil, fmt.Errorf("store: last insight generated: %w", err)
	}
	return nullTimeToPtr(t), nil
}

// CountEndedSessionsSince counts sessions ended after since (or all, if since
// is nil) for the insight-due check's "sessions_since_due" trigger.
func (a *SQLiteAdapter) CountEndedSessionsSince(ctx context.Context, projectID int64, since *time.Time) (int, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var n int
	var err error
	if since == nil {
		err = a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions
			WHERE project_id=? AND ended_at IS NOT NULL`, projectID).Scan(&n)
	} else {
		err = a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions
			WHERE project_id=? AND ended_at > ?`, projectID, *since).Scan(&n)
	}
	return n, err
}

// CountNewDecisionsSince counts decisions decided after since for the
// insight-due check's "new_decisions_due" trigger.
func (a *SQLiteAdapter) CountNewDecisionsSince(ctx context.Context, projectID int64, since *time.Time) (int, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var n int
	var err error
	if since == nil {
		err = a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM decisions WHERE project_id=?`, projectID).Scan(&n)
	} else {
		err = a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM decisions
			WHERE project_id=? AND decided_at > ?`, projectID, *since).Scan(&n)
	}
	return n, err
}

// RecentSessionsTouchedFiles returns, for the most recent limit sessions, the
// files touched and whether the session also logged any issues found
// (scope-creep detector input, §4.10: sessions with >=5 files touched where
// >=2 also have issues found drive the report).
func (a *SQLiteAdapter) RecentSessionsTouchedFiles(ctx context.Context, projectID int64, limit int) ([][]string, []bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	rows, err := a.db.QueryContext(ctx, `SELECT files_touched, issues_found FROM sessions
		WHERE project_id=? ORDER BY started_at DESC LIMIT ?`, projectID, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("store: recent sessions touched files: %w", err)
	}
	defer rows.Close()
	var files [][]string
	var hasIssues []bool
	for rows.Next() {
		var raw, issues sql.NullString
		if err := rows.Scan(&raw, &issues); err != nil {
			continue
		}
		files = append(files, fromJSONStrings(raw))
		hasIssues = append(hasIssues, len(fromJSONInt64s(issues)) > 0)
	}
	return files, hasIssues, rows.Err()
}

// WorkflowsStaleOrUnused returns workflow pattern names unused for staleDays
// or used fewer than minUses times overall (§4.10 workflow-deviation detector).
func (a *SQLiteAdapter) WorkflowsStaleOrUnused(ctx context.Context, projectID int64, staleDays, minUses int) ([]string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	rows, err := a.db.QueryContext(ctx, `SELECT name FROM workflow_patterns
		WHERE project_id=? AND (times_used < ? OR last_used_at < datetime('now', ?))`,
		projectID, minUses, fmt.Sprintf("-%d days", staleDays))
	if err != nil {
		return nil, fmt.Errorf("store: stale workflows: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			continue
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// ReviewedDecisionOutcomeCounts tallies outcome statuses for decisions whose
// auto-tracker has already run at least once (§4.10 decision-outcome detector).
func (a *SQLiteAdapter) ReviewedDecisionOutcomeCounts(ctx context.Context, projectID int64) (succeeded, failed, reviewed int, err error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	err = a.db.QueryRowContext(ctx, `SELECT
		COALESCE(SUM(CASE WHEN outcome_status='succeeded' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN outcome_status='failed' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN outcome_status IN ('succeeded','failed','revised') THEN 1 ELSE 0 END), 0)
		FROM decisions WHERE project_id=?`, projectID).Scan(&succeeded, &failed, &reviewed)
	return succeeded, failed, reviewed, err
}
