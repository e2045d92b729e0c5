package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"muninn/internal/merrors"
	"muninn/internal/obslog"
	"muninn/internal/types"
)

const learningColumns = `id, project_id, title, content, context, category, confidence,
	times_applied, times_confirmed, last_reinforced_at, last_applied, decay_rate,
	temperature, review_status, sessions_since_review, review_after_sessions,
	foundational, promotion_status, auto_reinforcement_count, created_at, updated_at,
	archived_at, source`

func scanLearning(row interface{ Scan(dest ...any) error }) (*types.Learning, error) {
	var l types.Learning
	var projectID sql.NullInt64
	var lastReinforced, lastApplied, archivedAt sql.NullTime
	var foundational int
	err := row.Scan(&l.ID, &projectID, &l.Title, &l.Content, &l.Context, &l.Category,
		&l.Confidence, &l.TimesApplied, &l.TimesConfirmed, &lastReinforced, &lastApplied,
		&l.DecayRate, &l.Temperature, &l.ReviewStatus, &l.SessionsSinceReview,
		&l.ReviewAfterSessions, &foundational, &l.PromotionStatus, &l.AutoReinforcementCnt,
		&l.CreatedAt, &l.UpdatedAt, &archivedAt, &l.Source)
	if err != nil {
		return nil, err
	}
	l.ProjectID = projectID.Int64
	l.LastReinforcedAt = nullTimeToPtr(lastReinforced)
	l.LastApplied = nullTimeToPtr(lastApplied)
	l.ArchivedAt = nullTimeToPtr(archivedAt)
	l.Foundational = foundational != 0
	return &l, nil
}

// SaveLearning inserts a new learning, or updates an existing one by ID.
func (a *SQLiteAdapter) SaveLearning(ctx context.Context, l *types.Learning) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	foundational := 0
	if l.Foundational {
		foundational = 1
	}

	if l.ID == 0 {
		res, err := a.db.ExecContext(ctx, `INSERT INTO learnings (project_id, title, content,
			context, category, confidence, times_applied, times_confirmed, last_reinforced_at,
			last_applied, decay_rate, temperature, review_status, sessions_since_review,
			review_after_sessions, foundational, promotion_status, auto_reinforcement_count, source)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			intPtrToNull(projectIDPtr(l.ProjectID)), l.Title, l.Content, l.Context, l.Category,
			l.Confidence, l.TimesApplied, l.TimesConfirmed, ptrToNullTime(l.LastReinforcedAt),
			ptrToNullTime(l.LastApplied), l.DecayRate, l.Temperature, l.ReviewStatus,
			l.SessionsSinceReview, l.ReviewAfterSessions, foundational, l.PromotionStatus,
			l.AutoReinforcementCnt, l.Source)
		if err != nil {
			return fmt.Errorf("%w: insert learning: %v", merrors.ErrDBWriteFailed, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("%w: insert learning id: %v", merrors.ErrDBWriteFailed, err)
		}
		l.ID = id
		if err := a.syncFTSLearning(l.ID); err != nil {
			obslog.Get(obslog.CategoryStore).Sugar().Debugf("fts sync skipped: %v", err)
		}
		return nil
	}

	_, err := a.db.ExecContext(ctx, `UPDATE learnings SET title=?, content=?, context=?,
		category=?, confidence=?, times_applied=?, times_confirmed=?, last_reinforced_at=?,
		last_applied=?, decay_rate=?, temperature=?, review_status=?, sessions_since_review=?,
		review_after_sessions=?, foundational=?, promotion_status=?, auto_reinforcement_count=?,
		updated_at=CURRENT_TIMESTAMP WHERE id=?`,
		l.Title, l.Content, l.Context, l.Category, l.Confidence, l.TimesApplied,
		l.TimesConfirmed, ptrToNullTime(l.LastReinforcedAt), ptrToNullTime(l.LastApplied),
		l.DecayRate, l.Temperature, l.ReviewStatus, l.SessionsSinceReview,
		l.ReviewAfterSessions, foundational, l.PromotionStatus, l.AutoReinforcementCnt, l.ID)
	if err != nil {
		return fmt.Errorf("%w: update learning: %v", merrors.ErrDBWriteFailed, err)
	}
	if err := a.syncFTSLearning(l.ID); err != nil {
		obslog.Get(obslog.CategoryStore).Sugar().Debugf("fts sync skipped: %v", err)
	}
	return nil
}

func projectIDPtr(id int64) *int {
	if id == 0 {
		return nil
	}
	v := int(id)
	return &v
}

// syncFTSLearning re-indexes one row in fts_learnings, tolerating a missing
// FTS5 module (§7 FTS unavailable).
func (a *SQLiteAdapter) syncFTSLearning(id int64) error {
	_, err := a.db.Exec(`INSERT INTO fts_learnings(rowid, title, content, context)
		SELECT id, title, content, context FROM learnings WHERE id=?
		ON CONFLICT(rowid) DO UPDATE SET title=excluded.title, content=excluded.content, context=excluded.context`, id)
	return err
}

// GetLearning fetches one learning by ID.
func (a *SQLiteAdapter) GetLearning(ctx context.Context, id int64) (*types.Learning, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	row := a.db.QueryRowContext(ctx, `SELECT `+learningColumns+` FROM learnings WHERE id=?`, id)
	l, err := scanLearning(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, merrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get learning: %w", err)
	}
	return l, nil
}

// SearchLearnings ranks active learnings by relevance to terms, preferring
// FTS5 and falling back to a LIKE scan when the module is unavailable
// (§7 FTS unavailable).
func (a *SQLiteAdapter) SearchLearnings(ctx context.Context, projectID int64, terms []string, limit int) ([]*types.Learning, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if len(terms) == 0 {
		return nil, nil
	}

	if rows, err := a.searchLearningsFTS(ctx, projectID, terms, limit); err == nil {
		return rows, nil
	}
	return a.searchLearningsLike(ctx, projectID, terms, limit)
}

func (a *SQLiteAdapter) searchLearningsFTS(ctx context.Context, projectID int64, terms []string, limit int) ([]*types.Learning, error) {
	query := strings.Join(sanitizeFTSTerms(terms), " OR ")
	rows, err := a.db.QueryContext(ctx, `SELECT `+prefixColumns("l", learningColumns)+` FROM learnings l
		JOIN fts_learnings f ON f.rowid = l.id
		WHERE l.archived_at IS NULL AND (l.project_id=? OR l.project_id IS NULL) AND fts_learnings MATCH ?
		ORDER BY rank LIMIT ?`, projectID, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLearnings(rows)
}

func (a *SQLiteAdapter) searchLearningsLike(ctx context.Context, projectID int64, terms []string, limit int) ([]*types.Learning, error) {
	clauses := make([]string, 0, len(terms))
	args := []any{projectID}
	for _, t := range terms {
		clauses = append(clauses, `(title LIKE ? OR content LIKE ? OR context LIKE ?)`)
		like := "%" + t + "%"
		args = append(args, like, like, like)
	}
	args = append(args, limit)

	q := `SELECT ` + learningColumns + ` FROM learnings
		WHERE archived_at IS NULL AND (project_id=? OR project_id IS NULL) AND (` +
		strings.Join(clauses, " OR ") + `) ORDER BY confidence DESC LIMIT ?`

	rows, err := a.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: search learnings (like fallback): %w", err)
	}
	defer rows.Close()
	return scanLearnings(rows)
}

func scanLearnings(rows *sql.Rows) ([]*types.Learning, error) {
	var out []*types.Learning
	for rows.Next() {
		l, err := scanLearning(rows)
		if err != nil {
			continue
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func sanitizeFTSTerms(terms []string) []string {
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		t = strings.Map(func(r rune) rune {
			if r == '"' || r == '*' {
				return -1
			}
			return r
		}, t)
		out = append(out, `"`+t+`"`)
	}
	return out
}

func prefixColumns(alias, cols string) string {
	parts := strings.Split(cols, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

// GetGotchaLearnings returns active gotcha-category learnings, highest
// confidence first (§4.4 gotchas are always surfaced regardless of query).
func (a *SQLiteAdapter) GetGotchaLearnings(ctx context.Context, projectID int64, limit int) ([]*types.Learning, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	rows, err := a.db.QueryContext(ctx, `SELECT `+learningColumns+` FROM learnings
		WHERE archived_at IS NULL AND (project_id=? OR project_id IS NULL) AND category='gotcha'
		ORDER BY confidence DESC LIMIT ?`, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list gotchas: %w", err)
	}
	defer rows.Close()
	return scanLearnings(rows)
}

// ListFoundationalDue returns foundational learnings whose periodic review is
// due (§4.1 promotion lifecycle).
func (a *SQLiteAdapter) ListFoundationalDue(ctx context.Context, projectID int64) ([]*types.Learning, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	rows, err := a.db.QueryContext(ctx, `SELECT `+learningColumns+` FROM learnings
		WHERE archived_at IS NULL AND (project_id=? OR project_id IS NULL) AND foundational=1
			AND sessions_since_review >= review_after_sessions`, projectID)
	if err != nil {
		return nil, fmt.Errorf("store: list foundational due: %w", err)
	}
	defer rows.Close()
	return scanLearnings(rows)
}

// ReinforceLearning bumps times_applied/times_confirmed and stamps
// last_reinforced_at/last_applied (§4.1 reinforcement on successful use).
func (a *SQLiteAdapter) ReinforceLearning(ctx context.Context, id int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, err := a.db.ExecContext(ctx, `UPDATE learnings SET times_applied=times_applied+1,
		times_confirmed=times_confirmed+1, auto_reinforcement_count=auto_reinforcement_count+1,
		last_reinforced_at=CURRENT_TIMESTAMP, last_applied=CURRENT_TIMESTAMP WHERE id=?`, id)
	return err
}

// ReduceLearningConfidence lowers confidence by one point, floored at 1
// (§4.1 contradicted learnings lose confidence).
func (a *SQLiteAdapter) ReduceLearningConfidence(ctx context.Context, id int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, err := a.db.ExecContext(ctx, `UPDATE learnings SET confidence=MAX(1, confidence-1) WHERE id=?`, id)
	return err
}

// FlagLearningForReview marks a learning pending review with a fresh window.
func (a *SQLiteAdapter) FlagLearningForReview(ctx context.Context, id int64, reviewAfterSessions int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, err := a.db.ExecContext(ctx, `UPDATE learnings SET review_status='pending',
		sessions_since_review=0, review_after_sessions=? WHERE id=?`, reviewAfterSessions, id)
	return err
}

// ConfirmFoundationalLearning marks a foundational learning confirmed and
// extends its review window by step, capped (§4.1 promotion lifecycle).
func (a *SQLiteAdapter) ConfirmFoundationalLearning(ctx context.Context, id int64, reviewAfterCap, reviewAfterStep int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, err := a.db.ExecContext(ctx, `UPDATE learnings SET review_status='confirmed',
		sessions_since_review=0, review_after_sessions=MIN(?, review_after_sessions+?) WHERE id=?`,
		reviewAfterCap, reviewAfterStep, id)
	return err
}

// DemoteOnRevision marks a foundational learning revised and resets its
// review window down to reviewAfterReset.
func (a *SQLiteAdapter) DemoteOnRevision(ctx context.Context, id int64, reviewAfterReset int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, err := a.db.ExecContext(ctx, `UPDATE learnings SET review_status='revised',
		sessions_since_review=0, review_after_sessions=? WHERE id=?`, reviewAfterReset, id)
	return err
}

// InsertLearningVersion snapshots a learning's content/confidence before a
// revision, preserving history (§4.1).
func (a *SQLiteAdapter) InsertLearningVersion(ctx context.Context, l *types.Learning) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, err := a.db.ExecContext(ctx, `INSERT INTO learning_versions (learning_id, confidence, content)
		VALUES (?,?,?)`, l.ID, l.Confidence, l.Content)
	return err
}

// DecayLearningTemperatures applies §4.7 temperature decay to learnings.
func (a *SQLiteAdapter) DecayLearningTemperatures(ctx context.Context, projectID int64, coldThreshold, warmLow, warmHigh int) error {
	return decayTemperature(ctx, a, "learnings", projectID, coldThreshold, warmLow, warmHigh)
}

// ArchiveStaleLearnings archives learnings whose confidence has been stale for
// confidenceAgeDays, or that are simply untouched for staleAgeDays (§4.7).
func (a *SQLiteAdapter) ArchiveStaleLearnings(ctx context.Context, projectID int64, confidenceAgeDays, staleAgeDays int) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	rows, err := a.db.QueryContext(ctx, `SELECT id, title, content FROM learnings
		WHERE archived_at IS NULL AND (project_id=? OR project_id IS NULL) AND confidence <= 1
			AND (last_reinforced_at IS NULL OR last_reinforced_at < datetime('now', ?))`,
		projectID, fmt.Sprintf("-%d days", confidenceAgeDays))
	if err != nil {
		return 0, fmt.Errorf("store: find low-confidence learnings: %w", err)
	}
	type row struct {
		id             int64
		title, content string
	}
	var toArchive []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.title, &r.content); err != nil {
			rows.Close()
			return 0, err
		}
		toArchive = append(toArchive, r)
	}
	rows.Close()

	rows2, err := a.db.QueryContext(ctx, `SELECT id, title, content FROM learnings
		WHERE archived_at IS NULL AND (project_id=? OR project_id IS NULL)
			AND (last_applied IS NULL OR last_applied < datetime('now', ?))
			AND created_at < datetime('now', ?)`,
		projectID, fmt.Sprintf("-%d days", staleAgeDays), fmt.Sprintf("-%d days", staleAgeDays))
	if err != nil {
		return 0, fmt.Errorf("store: find stale learnings: %w", err)
	}
	seen := make(map[int64]bool, len(toArchive))
	for _, r := range toArchive {
		seen[r.id] = true
	}
	for rows2.Next() {
		var r row
		if err := rows2.Scan(&r.id, &r.title, &r.content); err != nil {
			rows2.Close()
			return 0, err
		}
		if !seen[r.id] {
			toArchive = append(toArchive, r)
			seen[r.id] = true
		}
	}
	rows2.Close()

	for _, r := range toArchive {
		if _, err := a.db.ExecContext(ctx, `INSERT INTO archived_knowledge (source_table, source_id, title, content, reason)
			VALUES ('learnings', ?, ?, ?, 'low confidence or unused, past retention window')`, r.id, r.title, r.content); err != nil {
			return 0, fmt.Errorf("store: archive learning %d: %w", r.id, err)
		}
		if _, err := a.db.ExecContext(ctx, `UPDATE learnings SET archived_at=CURRENT_TIMESTAMP WHERE id=?`, r.id); err != nil {
			return 0, fmt.Errorf("store: mark learning %d archived: %w", r.id, err)
		}
	}
	return len(toArchive), nil
}

// RestoreLearning clears archived_at for a whitelisted restore target.
func (a *SQLiteAdapter) RestoreLearning(ctx context.Context, id int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, err := a.db.ExecContext(ctx, `UPDATE learnings SET archived_at=NULL WHERE id=?`, id)
	return err
}

// IncrementSessionsSinceReviewOnFoundational bumps the review counter for
// every foundational learning, called once per session start.
func (a *SQLiteAdapter) IncrementSessionsSinceReviewOnFoundational(ctx context.Context, projectID int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, err := a.db.ExecContext(ctx, `UPDATE learnings SET sessions_since_review=sessions_since_review+1
		WHERE archived_at IS NULL AND (project_id=? OR project_id IS NULL) AND foundational=1`, projectID)
	return err
}
