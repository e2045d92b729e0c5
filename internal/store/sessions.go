package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"muninn/internal/merrors"
	"muninn/internal/types"
)

const sessionColumns = `id, project_id, session_number, goal, outcome, started_at, ended_at,
	success, next_steps, files_read, queries_made, files_touched, decisions_made,
	issues_found, issues_resolved, learnings`

func scanSession(row interface{ Scan(dest ...any) error }) (*types.Session, error) {
	var s types.Session
	var outcome, nextSteps, learnings sql.NullString
	var filesRead, queriesMade, filesTouched, decisionsMade, issuesFound, issuesResolved sql.NullString
	var endedAt sql.NullTime
	var success sql.NullInt64
	err := row.Scan(&s.ID, &s.ProjectID, &s.SessionNumber, &s.Goal, &outcome, &s.StartedAt,
		&endedAt, &success, &nextSteps, &filesRead, &queriesMade, &filesTouched,
		&decisionsMade, &issuesFound, &issuesResolved, &learnings)
	if err != nil {
		return nil, err
	}
	s.Outcome = outcome.String
	s.NextSteps = nextSteps.String
	s.Learnings = learnings.String
	s.EndedAt = nullTimeToPtr(endedAt)
	if success.Valid {
		v := int(success.Int64)
		s.Success = &v
	}
	s.FilesRead = fromJSONStrings(filesRead)
	s.QueriesMade = fromJSONStrings(queriesMade)
	s.FilesTouched = fromJSONStrings(filesTouched)
	s.DecisionsMade = fromJSONInt64s(decisionsMade)
	s.IssuesFound = fromJSONInt64s(issuesFound)
	s.IssuesResolved = fromJSONInt64s(issuesResolved)
	return &s, nil
}

// NextSessionNumber returns the next 1-based session_number for a project.
func (a *SQLiteAdapter) NextSessionNumber(ctx context.Context, projectID int64) (int, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var max sql.NullInt64
	err := a.db.QueryRowContext(ctx, `SELECT MAX(session_number) FROM sessions WHERE project_id=?`, projectID).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("store: next session number: %w", err)
	}
	return int(max.Int64) + 1, nil
}

// InsertSession creates a new session row and returns its ID.
func (a *SQLiteAdapter) InsertSession(ctx context.Context, s *types.Session) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	res, err := a.db.ExecContext(ctx, `INSERT INTO sessions (project_id, session_number, goal,
		started_at, files_read, queries_made, files_touched, decisions_made, issues_found, issues_resolved)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		s.ProjectID, s.SessionNumber, s.Goal, s.StartedAt, toJSON(s.FilesRead),
		toJSON(s.QueriesMade), toJSON(s.FilesTouched), toJSON(s.DecisionsMade),
		toJSON(s.IssuesFound), toJSON(s.IssuesResolved))
	if err != nil {
		return 0, fmt.Errorf("%w: insert session: %v", merrors.ErrDBWriteFailed, err)
	}
	return res.LastInsertId()
}

// GetActiveSession returns the one session for projectID with no ended_at, or
// ErrNoActiveSession if none is active (§4.9 one active session per project).
func (a *SQLiteAdapter) GetActiveSession(ctx context.Context, projectID int64) (*types.Session, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	row := a.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions
		WHERE project_id=? AND ended_at IS NULL ORDER BY started_at DESC LIMIT 1`, projectID)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, merrors.ErrNoActiveSession
	}
	if err != nil {
		return nil, fmt.Errorf("store: get active session: %w", err)
	}
	return s, nil
}

// GetSession fetches a session by ID.
func (a *SQLiteAdapter) GetSession(ctx context.Context, id int64) (*types.Session, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	row := a.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id=?`, id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, merrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get session: %w", err)
	}
	return s, nil
}

// GetLastSession returns the most recently started session for a project,
// active or not.
func (a *SQLiteAdapter) GetLastSession(ctx context.Context, projectID int64) (*types.Session, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	row := a.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions
		WHERE project_id=? ORDER BY started_at DESC LIMIT 1`, projectID)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, merrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get last session: %w", err)
	}
	return s, nil
}

// GetLastEndedSession returns the most recently ended session, used by the
// startup planner to build the resume summary (§4.11).
func (a *SQLiteAdapter) GetLastEndedSession(ctx context.Context, projectID int64) (*types.Session, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	row := a.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions
		WHERE project_id=? AND ended_at IS NOT NULL ORDER BY ended_at DESC LIMIT 1`, projectID)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, merrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get last ended session: %w", err)
	}
	return s, nil
}

// UpdateSessionTracking persists the append-only tracking lists during an
// active session (§4.9 files_read/queries_made/files_touched etc.).
func (a *SQLiteAdapter) UpdateSessionTracking(ctx context.Context, s *types.Session) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, err := a.db.ExecContext(ctx, `UPDATE sessions SET goal=?, files_read=?, queries_made=?,
		files_touched=?, decisions_made=?, issues_found=?, issues_resolved=? WHERE id=?`,
		s.Goal, toJSON(s.FilesRead), toJSON(s.QueriesMade), toJSON(s.FilesTouched),
		toJSON(s.DecisionsMade), toJSON(s.IssuesFound), toJSON(s.IssuesResolved), s.ID)
	if err != nil {
		return fmt.Errorf("%w: update session tracking: %v", merrors.ErrDBWriteFailed, err)
	}
	return nil
}

// EndSession stamps ended_at plus the final outcome fields (§4.9 session end).
func (a *SQLiteAdapter) EndSession(ctx context.Context, s *types.Session) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	var success sql.NullInt64
	if s.Success != nil {
		success = sql.NullInt64{Int64: int64(*s.Success), Valid: true}
	}
	_, err := a.db.ExecContext(ctx, `UPDATE sessions SET ended_at=CURRENT_TIMESTAMP, outcome=?,
		success=?, next_steps=?, learnings=? WHERE id=?`, s.Outcome, success, s.NextSteps, s.Learnings, s.ID)
	if err != nil {
		return fmt.Errorf("%w: end session: %v", merrors.ErrDBWriteFailed, err)
	}
	return nil
}

// LinkSessionLearning records that a learning surfaced (and whether it was
// auto-applied) during a session (§4.9 impact tracking input).
func (a *SQLiteAdapter) LinkSessionLearning(ctx context.Context, sessionID, learningID int64, autoApplied bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	applied := 0
	if autoApplied {
		applied = 1
	}
	_, err := a.db.ExecContext(ctx, `INSERT INTO session_learnings (session_id, learning_id, auto_applied)
		VALUES (?,?,?)`, sessionID, learningID, applied)
	return err
}

// LinkDecisionLearning records that a learning contributed to a decision.
func (a *SQLiteAdapter) LinkDecisionLearning(ctx context.Context, decisionID, learningID int64, contribution string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, err := a.db.ExecContext(ctx, `INSERT INTO decision_learnings (decision_id, learning_id, contribution)
		VALUES (?,?,?)`, decisionID, learningID, contribution)
	return err
}

// ListInfluencedLearnings returns the learning IDs linked to a decision.
func (a *SQLiteAdapter) ListInfluencedLearnings(ctx context.Context, decisionID int64) ([]int64, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	rows, err := a.db.QueryContext(ctx, `SELECT learning_id FROM decision_learnings WHERE decision_id=?`, decisionID)
	if err != nil {
		return nil, fmt.Errorf("store: list influenced learnings: %w", err)
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			continue
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ToolCallFilesInvolved returns the union of files touched by tool calls
// recorded for a session, used to cross-check files_touched at session end.
func (a *SQLiteAdapter) ToolCallFilesInvolved(ctx context.Context, sessionID int64) ([]string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	rows, err := a.db.QueryContext(ctx, `SELECT files_involved FROM tool_calls WHERE session_id=?`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("store: tool call files: %w", err)
	}
	defer rows.Close()

	seen := map[string]bool{}
	var out []string
	for rows.Next() {
		var raw sql.NullString
		if err := rows.Scan(&raw); err != nil {
			continue
		}
		var files []string
		if raw.Valid {
			_ = json.Unmarshal([]byte(raw.String), &files)
		}
		for _, f := range files {
			if !seen[f] {
				seen[f] = true
				out = append(out, f)
			}
		}
	}
	return out, rows.Err()
}
