package store

import (
	"context"
	"fmt"

	"muninn/internal/merrors"
	"muninn/internal/types"
)

// SaveBlastRadius replaces every precomputed blast edge for a project with
// rows (§4.8: blast radius is recomputed wholesale on each relationship-engine
// pass, not incrementally).
func (a *SQLiteAdapter) SaveBlastRadius(ctx context.Context, projectID int64, rows []*types.BlastRadius) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin blast radius tx: %v", merrors.ErrDBWriteFailed, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM blast_radius WHERE project_id=?`, projectID); err != nil {
		return fmt.Errorf("%w: clear blast radius: %v", merrors.ErrDBWriteFailed, err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO blast_radius (project_id, source_file,
		affected_file, distance, is_test) VALUES (?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("%w: prepare blast radius insert: %v", merrors.ErrDBWriteFailed, err)
	}
	defer stmt.Close()

	for _, r := range rows {
		isTest := 0
		if r.IsTest {
			isTest = 1
		}
		if _, err := stmt.ExecContext(ctx, projectID, r.SourceFile, r.AffectedFile, r.Distance, isTest); err != nil {
			return fmt.Errorf("%w: insert blast edge: %v", merrors.ErrDBWriteFailed, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit blast radius: %v", merrors.ErrDBWriteFailed, err)
	}
	return nil
}

// GetBlastSummary aggregates blast_radius rows for one source file into the
// §4.8 scoring inputs. The caller (internal/relate) applies the
// 4·direct + 2·transitive + 5·tests + 3·routes formula and clamps to [0,100];
// this method only reports the raw counts.
func (a *SQLiteAdapter) GetBlastSummary(ctx context.Context, projectID int64, file string) (*types.BlastSummary, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	summary := &types.BlastSummary{SourceFile: file}

	row := a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM blast_radius
		WHERE project_id=? AND source_file=? AND distance=1`, projectID, file)
	if err := row.Scan(&summary.DirectDependents); err != nil {
		return nil, fmt.Errorf("store: blast direct count: %w", err)
	}

	row = a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM blast_radius
		WHERE project_id=? AND source_file=? AND distance>1`, projectID, file)
	if err := row.Scan(&summary.TransitiveDependents); err != nil {
		return nil, fmt.Errorf("store: blast transitive count: %w", err)
	}

	row = a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM blast_radius
		WHERE project_id=? AND source_file=? AND is_test=1`, projectID, file)
	if err := row.Scan(&summary.AffectedTests); err != nil {
		return nil, fmt.Errorf("store: blast test count: %w", err)
	}

	row = a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM blast_radius br
		JOIN files f ON f.project_id=br.project_id AND f.path=br.affected_file
		WHERE br.project_id=? AND br.source_file=? AND f.type='route'`, projectID, file)
	if err := row.Scan(&summary.AffectedRoutes); err != nil {
		return nil, fmt.Errorf("store: blast route count: %w", err)
	}

	return summary, nil
}

// TestEdgeFor returns the mapped test file for a source file, if one exists
// (§4.4 blast-radius enricher / test-impact line).
func (a *SQLiteAdapter) TestEdgeFor(ctx context.Context, projectID int64, file string) (string, bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var test string
	err := a.db.QueryRowContext(ctx, `SELECT test_file FROM test_source_map
		WHERE project_id=? AND source_file=? LIMIT 1`, projectID, file).Scan(&test)
	if err != nil {
		return "", false, nil
	}
	return test, true, nil
}

// BlastTestFiles returns the test files reachable from file in the
// precomputed blast_radius graph (is_test=1), nearest first (§4.5 tests
// enricher tier (b): unmapped-but-blast-reachable tests).
func (a *SQLiteAdapter) BlastTestFiles(ctx context.Context, projectID int64, file string, limit int) ([]string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	rows, err := a.db.QueryContext(ctx, `SELECT affected_file FROM blast_radius
		WHERE project_id=? AND source_file=? AND is_test=1
		ORDER BY distance ASC LIMIT ?`, projectID, file, limit)
	if err != nil {
		return nil, fmt.Errorf("store: blast test files: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			continue
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
