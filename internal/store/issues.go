package store

import (
	"context"
	"database/sql"
	"fmt"

	"muninn/internal/merrors"
	"muninn/internal/types"
)

const issueColumns = `id, project_id, title, type, severity, status, affected_files,
	related_symbols, created_at, updated_at, resolved_at`

func scanIssue(row interface{ Scan(dest ...any) error }) (*types.Issue, error) {
	var i types.Issue
	var affected, symbols sql.NullString
	var resolvedAt sql.NullTime
	err := row.Scan(&i.ID, &i.ProjectID, &i.Title, &i.Type, &i.Severity, &i.Status,
		&affected, &symbols, &i.CreatedAt, &i.UpdatedAt, &resolvedAt)
	if err != nil {
		return nil, err
	}
	i.AffectedFiles = fromJSONStrings(affected)
	i.RelatedSymbols = fromJSONStrings(symbols)
	i.ResolvedAt = nullTimeToPtr(resolvedAt)
	return &i, nil
}

// SaveIssue inserts a new issue, or updates an existing one by ID.
func (a *SQLiteAdapter) SaveIssue(ctx context.Context, i *types.Issue) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if i.ID == 0 {
		res, err := a.db.ExecContext(ctx, `INSERT INTO issues (project_id, title, type, severity,
			status, affected_files, related_symbols, resolved_at)
			VALUES (?,?,?,?,?,?,?,?)`,
			i.ProjectID, i.Title, i.Type, i.Severity, i.Status, toJSON(i.AffectedFiles),
			toJSON(i.RelatedSymbols), ptrToNullTime(i.ResolvedAt))
		if err != nil {
			return fmt.Errorf("%w: insert issue: %v", merrors.ErrDBWriteFailed, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("%w: insert issue id: %v", merrors.ErrDBWriteFailed, err)
		}
		i.ID = id
		return nil
	}

	_, err := a.db.ExecContext(ctx, `UPDATE issues SET title=?, type=?, severity=?, status=?,
		affected_files=?, related_symbols=?, updated_at=CURRENT_TIMESTAMP, resolved_at=?
		WHERE id=?`, i.Title, i.Type, i.Severity, i.Status, toJSON(i.AffectedFiles),
		toJSON(i.RelatedSymbols), ptrToNullTime(i.ResolvedAt), i.ID)
	if err != nil {
		return fmt.Errorf("%w: update issue: %v", merrors.ErrDBWriteFailed, err)
	}
	return nil
}

// ListOpenIssuesForFiles returns open issues whose affected_files intersects
// paths, most recently updated first, capped at limit (§4.4 known-issues enricher).
func (a *SQLiteAdapter) ListOpenIssuesForFiles(ctx context.Context, projectID int64, paths []string, limit int) ([]*types.Issue, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	rows, err := a.db.QueryContext(ctx, `SELECT `+issueColumns+` FROM issues
		WHERE project_id=? AND status IN ('open', 'in-progress')
		ORDER BY updated_at DESC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("store: list issues: %w", err)
	}
	defer rows.Close()

	pathSet := make(map[string]bool, len(paths))
	for _, p := range paths {
		pathSet[p] = true
	}

	var out []*types.Issue
	for rows.Next() {
		i, err := scanIssue(rows)
		if err != nil {
			continue
		}
		matched := false
		for _, f := range i.AffectedFiles {
			if pathSet[f] {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		out = append(out, i)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, rows.Err()
}

// CountOpenIssues counts all open/in-progress issues in a project.
func (a *SQLiteAdapter) CountOpenIssues(ctx context.Context, projectID int64) (int, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var n int
	err := a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM issues
		WHERE project_id=? AND status IN ('open', 'in-progress')`, projectID).Scan(&n)
	return n, err
}

// CountCriticalIssues counts open issues at or above minSeverity.
func (a *SQLiteAdapter) CountCriticalIssues(ctx context.Context, projectID int64, minSeverity int) (int, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var n int
	err := a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM issues
		WHERE project_id=? AND status IN ('open', 'in-progress') AND severity>=?`, projectID, minSeverity).Scan(&n)
	return n, err
}

// ArchiveResolvedIssuesOlderThan moves resolved issues older than days into
// archived_knowledge (§4.7 archival sweep); since issues have no archived_at
// column, archival deletes the row after snapshotting it.
func (a *SQLiteAdapter) ArchiveResolvedIssuesOlderThan(ctx context.Context, projectID int64, days int) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	rows, err := a.db.QueryContext(ctx, `SELECT id, title, type FROM issues
		WHERE project_id=? AND status='resolved' AND resolved_at < datetime('now', ?)`,
		projectID, fmt.Sprintf("-%d days", days))
	if err != nil {
		return 0, fmt.Errorf("store: find stale issues: %w", err)
	}
	type row struct {
		id          int64
		title, kind string
	}
	var toArchive []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.title, &r.kind); err != nil {
			rows.Close()
			return 0, err
		}
		toArchive = append(toArchive, r)
	}
	rows.Close()

	for _, r := range toArchive {
		if _, err := a.db.ExecContext(ctx, `INSERT INTO archived_knowledge (source_table, source_id, title, content, reason)
			VALUES ('issues', ?, ?, ?, 'resolved, past retention window')`, r.id, r.title, r.kind); err != nil {
			return 0, fmt.Errorf("store: archive issue %d: %w", r.id, err)
		}
		if _, err := a.db.ExecContext(ctx, `DELETE FROM issues WHERE id=?`, r.id); err != nil {
			return 0, fmt.Errorf("store: delete archived issue %d: %w", r.id, err)
		}
	}
	return len(toArchive), nil
}

// DecayIssueTemperatures is a no-op placeholder satisfying the interface;
// issues carry no temperature column in this schema -- severity and status
// alone drive their surfacing (§4.1 issues are not part of the temperature
// decay family, unlike files/decisions/learnings).
func (a *SQLiteAdapter) DecayIssueTemperatures(ctx context.Context, projectID int64, coldThreshold, warmLow, warmHigh int) error {
	return nil
}
