package store

import (
	"context"
	"fmt"
)

// SymbolExportCount counts exported symbols declared in file (§4.8 fragility
// signal input; populated externally per §1 Non-goals -- this package only
// reads rows some other process wrote into symbols).
func (a *SQLiteAdapter) SymbolExportCount(ctx context.Context, projectID int64, file string) (int, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var n int
	err := a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM symbols
		WHERE project_id=? AND file_path=? AND exported_flag=1`, projectID, file).Scan(&n)
	return n, err
}

// CallerStats returns the number of distinct caller files and their paths for
// callees declared in file (§4.8 blast-radius direct-dependent seed).
func (a *SQLiteAdapter) CallerStats(ctx context.Context, projectID int64, file string) (int, []string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	rows, err := a.db.QueryContext(ctx, `SELECT DISTINCT caller_file FROM call_graph
		WHERE project_id=? AND callee_file=?`, projectID, file)
	if err != nil {
		return 0, nil, fmt.Errorf("store: caller stats: %w", err)
	}
	defer rows.Close()
	var files []string
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			continue
		}
		files = append(files, f)
	}
	return len(files), files, rows.Err()
}

// MappedTestCount counts test files mapped to a source file.
func (a *SQLiteAdapter) MappedTestCount(ctx context.Context, projectID int64, file string) (int, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var n int
	err := a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM test_source_map
		WHERE project_id=? AND source_file=?`, projectID, file).Scan(&n)
	return n, err
}
