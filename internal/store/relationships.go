package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"muninn/internal/merrors"
	"muninn/internal/types"
)

// InsertRelationship records one typed edge (§3 relationships).
func (a *SQLiteAdapter) InsertRelationship(ctx context.Context, r *types.Relationship) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, err := a.db.ExecContext(ctx, `INSERT INTO relationships (project_id, source_type, source_id,
		relationship, target_type, target_id, strength) VALUES (?,?,?,?,?,?,?)`,
		r.ProjectID, r.SourceType, r.SourceID, r.Relationship, r.TargetType, r.TargetID, r.Strength)
	if err != nil {
		return fmt.Errorf("%w: insert relationship: %v", merrors.ErrDBWriteFailed, err)
	}
	return nil
}

// UpsertFileCorrelation bumps the co-change counter for an unordered file
// pair, stored lexicographically (fileA < fileB) per §4.8, and recomputes
// correlation_strength as cochange_count / (1 + days_since(created_at)) per
// §3/§4.8.
func (a *SQLiteAdapter) UpsertFileCorrelation(ctx context.Context, projectID int64, fileA, fileB string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if fileA == fileB {
		return nil
	}
	if fileA > fileB {
		fileA, fileB = fileB, fileA
	}

	_, err := a.db.ExecContext(ctx, `
		INSERT INTO file_correlations (project_id, file_a, file_b, cochange_count, last_cochange, correlation_strength)
		VALUES (?,?,?,1,CURRENT_TIMESTAMP,0)
		ON CONFLICT(project_id, file_a, file_b) DO UPDATE SET
			cochange_count=cochange_count+1, last_cochange=CURRENT_TIMESTAMP`,
		projectID, fileA, fileB)
	if err != nil {
		return fmt.Errorf("%w: upsert correlation: %v", merrors.ErrDBWriteFailed, err)
	}

	_, err = a.db.ExecContext(ctx, `
		UPDATE file_correlations SET correlation_strength = CAST(cochange_count AS REAL) /
			(1 + (julianday('now') - julianday(created_at)))
		WHERE project_id=? AND file_a=? AND file_b=?`,
		projectID, fileA, fileB)
	if err != nil {
		return fmt.Errorf("%w: recompute correlation strength: %v", merrors.ErrDBWriteFailed, err)
	}
	return nil
}

// TopCorrelatedFiles returns files most strongly correlated with any of
// files, excluding files themselves, strongest first, capped at limit
// (§4.4 related-files enricher).
func (a *SQLiteAdapter) TopCorrelatedFiles(ctx context.Context, projectID int64, files []string, limit int) ([]string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if len(files) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(files))
	for i := range files {
		placeholders[i] = "?"
	}
	in := strings.Join(placeholders, ",")

	// Three IN(...) clauses below, each over the same file list, plus project_id.
	args := make([]any, 0, len(files)*3+1)
	args = append(args, toAnySlice(files)...)
	args = append(args, projectID)
	args = append(args, toAnySlice(files)...)
	args = append(args, toAnySlice(files)...)

	rows, err := a.db.QueryContext(ctx, `
		SELECT CASE WHEN file_a IN (`+in+`) THEN file_b ELSE file_a END AS other, correlation_strength
		FROM file_correlations
		WHERE project_id=? AND (file_a IN (`+in+`) OR file_b IN (`+in+`))
		ORDER BY correlation_strength DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("store: top correlated files: %w", err)
	}
	defer rows.Close()

	excluded := make(map[string]bool, len(files))
	for _, f := range files {
		excluded[f] = true
	}
	seen := map[string]bool{}
	var out []string
	for rows.Next() {
		var other string
		var strength float64
		if err := rows.Scan(&other, &strength); err != nil {
			continue
		}
		if excluded[other] || seen[other] {
			continue
		}
		seen[other] = true
		out = append(out, other)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, rows.Err()
}

func toAnySlice(files []string) []any {
	out := make([]any, len(files))
	for i, f := range files {
		out[i] = f
	}
	return out
}

// CorrelationsAboveThreshold returns every file-pair correlation with
// cochange_count at or above threshold (§4.10 co-change insight detector).
func (a *SQLiteAdapter) CorrelationsAboveThreshold(ctx context.Context, projectID int64, threshold int) ([]*types.FileCorrelation, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	rows, err := a.db.QueryContext(ctx, `SELECT id, project_id, file_a, file_b, cochange_count,
		last_cochange, correlation_strength, created_at FROM file_correlations
		WHERE project_id=? AND cochange_count>=? ORDER BY cochange_count DESC`, projectID, threshold)
	if err != nil {
		return nil, fmt.Errorf("store: correlations above threshold: %w", err)
	}
	defer rows.Close()
	var out []*types.FileCorrelation
	for rows.Next() {
		var c types.FileCorrelation
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.FileA, &c.FileB, &c.CochangeCount,
			&c.LastCochange, &c.CorrelationStrength, &c.CreatedAt); err != nil {
			continue
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

// CountCorrelationUpdatesSince counts correlation rows touched since a
// timestamp, used by the insight-due check (§4.10).
func (a *SQLiteAdapter) CountCorrelationUpdatesSince(ctx context.Context, projectID int64, since time.Time) (int, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var n int
	err := a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM file_correlations
		WHERE project_id=? AND last_cochange > ?`, projectID, since).Scan(&n)
	return n, err
}
