package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"muninn/internal/merrors"
	"muninn/internal/types"
)

const decisionColumns = `id, project_id, title, decision, reasoning, affects, status,
	outcome_status, outcome_notes, check_after_sessions, sessions_since,
	temperature, last_referenced_at, archived_at, decided_at`

func scanDecision(row interface{ Scan(dest ...any) error }) (*types.Decision, error) {
	var d types.Decision
	var affects, notes sql.NullString
	var lastRef, archivedAt sql.NullTime
	err := row.Scan(&d.ID, &d.ProjectID, &d.Title, &d.Decision, &d.Reasoning, &affects,
		&d.Status, &d.OutcomeStatus, &notes, &d.CheckAfterSessions, &d.SessionsSince,
		&d.Temperature, &lastRef, &archivedAt, &d.DecidedAt)
	if err != nil {
		return nil, err
	}
	d.Affects = fromJSONStrings(affects)
	d.LastReferencedAt = nullTimeToPtr(lastRef)
	d.ArchivedAt = nullTimeToPtr(archivedAt)
	if notes.Valid && notes.String != "" {
		_ = json.Unmarshal([]byte(notes.String), &d.OutcomeNotes)
	}
	return &d, nil
}

// GetDecisionByTitle returns the decision with the given title, or ErrNotFound.
func (a *SQLiteAdapter) GetDecisionByTitle(ctx context.Context, projectID int64, title string) (*types.Decision, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	row := a.db.QueryRowContext(ctx, `SELECT `+decisionColumns+` FROM decisions
		WHERE project_id=? AND title=? AND archived_at IS NULL`, projectID, title)
	d, err := scanDecision(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, merrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get decision: %w", err)
	}
	return d, nil
}

// SaveDecision upserts a decision by (project_id, title).
func (a *SQLiteAdapter) SaveDecision(ctx context.Context, d *types.Decision) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	notes, _ := json.Marshal(d.OutcomeNotes)
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO decisions (project_id, title, decision, reasoning, affects, status,
			outcome_status, outcome_notes, check_after_sessions, sessions_since,
			temperature, last_referenced_at, archived_at, decided_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(project_id, title) DO UPDATE SET
			decision=excluded.decision, reasoning=excluded.reasoning, affects=excluded.affects,
			status=excluded.status, outcome_status=excluded.outcome_status,
			outcome_notes=excluded.outcome_notes, check_after_sessions=excluded.check_after_sessions,
			sessions_since=excluded.sessions_since, temperature=excluded.temperature,
			last_referenced_at=excluded.last_referenced_at, archived_at=excluded.archived_at`,
		d.ProjectID, d.Title, d.Decision, d.Reasoning, toJSON(d.Affects), d.Status,
		d.OutcomeStatus, string(notes), d.CheckAfterSessions, d.SessionsSince, d.Temperature,
		ptrToNullTime(d.LastReferencedAt), ptrToNullTime(d.ArchivedAt), d.DecidedAt)
	if err != nil {
		return fmt.Errorf("%w: save decision: %v", merrors.ErrDBWriteFailed, err)
	}
	return nil
}

// ListActiveDecisionsAffecting returns active decisions whose Affects overlaps
// paths, most recently decided first, capped at limit (§4.4 relevant-decisions
// enricher input).
func (a *SQLiteAdapter) ListActiveDecisionsAffecting(ctx context.Context, projectID int64, paths []string, limit int) ([]*types.Decision, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	rows, err := a.db.QueryContext(ctx, `SELECT `+decisionColumns+` FROM decisions
		WHERE project_id=? AND archived_at IS NULL AND status='active'
		ORDER BY decided_at DESC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("store: list decisions: %w", err)
	}
	defer rows.Close()

	pathSet := make(map[string]bool, len(paths))
	for _, p := range paths {
		pathSet[p] = true
	}

	var out []*types.Decision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			continue
		}
		if !decisionAffectsAny(d, pathSet) {
			continue
		}
		out = append(out, d)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, rows.Err()
}

func decisionAffectsAny(d *types.Decision, pathSet map[string]bool) bool {
	for _, affected := range d.Affects {
		if pathSet[affected] {
			return true
		}
		for p := range pathSet {
			if strings.HasPrefix(p, affected) || strings.HasPrefix(affected, p) {
				return true
			}
		}
	}
	return false
}

// ListDecisionsDue returns pending-outcome decisions whose sessions_since has
// reached check_after_sessions (§4.2 decision outcome auto-tracker).
func (a *SQLiteAdapter) ListDecisionsDue(ctx context.Context, projectID int64) ([]*types.Decision, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	rows, err := a.db.QueryContext(ctx, `SELECT `+decisionColumns+` FROM decisions
		WHERE project_id=? AND archived_at IS NULL AND outcome_status='pending'
			AND sessions_since >= check_after_sessions`, projectID)
	if err != nil {
		return nil, fmt.Errorf("store: list decisions due: %w", err)
	}
	defer rows.Close()
	var out []*types.Decision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			continue
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// IncrementSessionsSinceOnPendingDecisions bumps sessions_since for every
// pending-outcome decision, called once per session start.
func (a *SQLiteAdapter) IncrementSessionsSinceOnPendingDecisions(ctx context.Context, projectID int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, err := a.db.ExecContext(ctx, `UPDATE decisions SET sessions_since=sessions_since+1
		WHERE project_id=? AND archived_at IS NULL AND outcome_status='pending'`, projectID)
	return err
}

// UpdateDecisionOutcome records the auto-tracker's verdict and resets the
// check-after window (§4.2).
func (a *SQLiteAdapter) UpdateDecisionOutcome(ctx context.Context, id int64, notes types.OutcomeNotes, status types.OutcomeStatus, checkAfterSessions int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	b, _ := json.Marshal(notes)
	_, err := a.db.ExecContext(ctx, `UPDATE decisions SET outcome_notes=?, outcome_status=?,
		check_after_sessions=?, sessions_since=0 WHERE id=?`, string(b), status, checkAfterSessions, id)
	return err
}

// DecayDecisionTemperatures applies §4.7 temperature decay to decisions.
func (a *SQLiteAdapter) DecayDecisionTemperatures(ctx context.Context, projectID int64, coldThreshold, warmLow, warmHigh int) error {
	return decayTemperature(ctx, a, "decisions", projectID, coldThreshold, warmLow, warmHigh)
}

// ArchiveFailedDecisionsOlderThan moves failed decisions older than days into
// archived_knowledge and marks them archived (§4.7 archival sweep).
func (a *SQLiteAdapter) ArchiveFailedDecisionsOlderThan(ctx context.Context, projectID int64, days int) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	rows, err := a.db.QueryContext(ctx, `SELECT id, title, decision FROM decisions
		WHERE project_id=? AND archived_at IS NULL AND outcome_status='failed'
			AND decided_at < datetime('now', ?)`, projectID, fmt.Sprintf("-%d days", days))
	if err != nil {
		return 0, fmt.Errorf("store: find stale failed decisions: %w", err)
	}
	type row struct {
		id            int64
		title, detail string
	}
	var toArchive []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.title, &r.detail); err != nil {
			rows.Close()
			return 0, err
		}
		toArchive = append(toArchive, r)
	}
	rows.Close()

	for _, r := range toArchive {
		if _, err := a.db.ExecContext(ctx, `INSERT INTO archived_knowledge (source_table, source_id, title, content, reason)
			VALUES ('decisions', ?, ?, ?, 'failed outcome, past review window')`, r.id, r.title, r.detail); err != nil {
			return 0, fmt.Errorf("store: archive decision %d: %w", r.id, err)
		}
		if _, err := a.db.ExecContext(ctx, `UPDATE decisions SET archived_at=CURRENT_TIMESTAMP WHERE id=?`, r.id); err != nil {
			return 0, fmt.Errorf("store: mark decision %d archived: %w", r.id, err)
		}
	}
	return len(toArchive), nil
}

// RestoreDecision clears archived_at, used only for whitelisted restore
// targets per §4.7.
func (a *SQLiteAdapter) RestoreDecision(ctx context.Context, id int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, err := a.db.ExecContext(ctx, `UPDATE decisions SET archived_at=NULL WHERE id=?`, id)
	return err
}
