package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"muninn/internal/merrors"
	"muninn/internal/types"
)

func scanFile(row interface {
	Scan(dest ...any) error
}) (*types.File, error) {
	var f types.File
	var signals, deps, dependents sql.NullString
	var lastAnalyzed, lastRef, archivedAt sql.NullTime
	err := row.Scan(&f.ID, &f.ProjectID, &f.Path, &f.Type, &f.Purpose, &f.Fragility,
		&f.FragilityReason, &signals, &f.ContentHash, &lastAnalyzed, &deps, &dependents,
		&f.VelocityScore, &f.ChangeCount, &f.Temperature, &lastRef, &f.Status, &archivedAt)
	if err != nil {
		return nil, err
	}
	f.Dependencies = fromJSONStrings(deps)
	f.Dependents = fromJSONStrings(dependents)
	f.LastAnalyzed = nullTimeToPtr(lastAnalyzed)
	f.LastReferencedAt = nullTimeToPtr(lastRef)
	f.ArchivedAt = nullTimeToPtr(archivedAt)
	if signals.Valid && signals.String != "" {
		var fs types.FragilitySignals
		if json.Unmarshal([]byte(signals.String), &fs) == nil {
			f.FragilitySignals = &fs
		}
	}
	return &f, nil
}

const fileColumns = `id, project_id, path, type, purpose, fragility, fragility_reason,
	fragility_signals, content_hash, last_analyzed, dependencies, dependents,
	velocity_score, change_count, temperature, last_referenced_at, status, archived_at`

// GetFile returns the file at path, or ErrNotFound.
func (a *SQLiteAdapter) GetFile(ctx context.Context, projectID int64, path string) (*types.File, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	row := a.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM files WHERE project_id=? AND path=? AND archived_at IS NULL`, projectID, path)
	f, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, merrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get file: %w", err)
	}
	return f, nil
}

// SaveFile upserts a file by (project_id, path).
func (a *SQLiteAdapter) SaveFile(ctx context.Context, f *types.File) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var signals string
	if f.FragilitySignals != nil {
		b, _ := json.Marshal(f.FragilitySignals)
		signals = string(b)
	}

	_, err := a.db.ExecContext(ctx, `
		INSERT INTO files (project_id, path, type, purpose, fragility, fragility_reason,
			fragility_signals, content_hash, last_analyzed, dependencies, dependents,
			velocity_score, change_count, temperature, last_referenced_at, status, archived_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(project_id, path) DO UPDATE SET
			type=excluded.type, purpose=excluded.purpose, fragility=excluded.fragility,
			fragility_reason=excluded.fragility_reason, fragility_signals=excluded.fragility_signals,
			content_hash=excluded.content_hash, last_analyzed=excluded.last_analyzed,
			dependencies=excluded.dependencies, dependents=excluded.dependents,
			velocity_score=excluded.velocity_score, change_count=excluded.change_count,
			temperature=excluded.temperature, last_referenced_at=excluded.last_referenced_at,
			status=excluded.status, archived_at=excluded.archived_at`,
		f.ProjectID, f.Path, f.Type, f.Purpose, f.Fragility, f.FragilityReason, signals,
		f.ContentHash, ptrToNullTime(f.LastAnalyzed), toJSON(f.Dependencies), toJSON(f.Dependents),
		f.VelocityScore, f.ChangeCount, f.Temperature, ptrToNullTime(f.LastReferencedAt), f.Status,
		ptrToNullTime(f.ArchivedAt))
	if err != nil {
		return fmt.Errorf("%w: save file: %v", merrors.ErrDBWriteFailed, err)
	}
	return nil
}

func (a *SQLiteAdapter) listFiles(ctx context.Context, query string, args ...any) ([]*types.File, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list files: %w", err)
	}
	defer rows.Close()
	var out []*types.File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			continue
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// ListFragileHotFiles returns active files at or above minFragility that are
// currently hot (used by the startup planner's warning block, §4.11).
func (a *SQLiteAdapter) ListFragileHotFiles(ctx context.Context, projectID int64, minFragility int) ([]*types.File, error) {
	return a.listFiles(ctx, `SELECT `+fileColumns+` FROM files
		WHERE project_id=? AND archived_at IS NULL AND fragility>=? AND temperature='hot'
		ORDER BY fragility DESC`, projectID, minFragility)
}

// ListAllFragileFiles returns every active file at or above minFragility.
func (a *SQLiteAdapter) ListAllFragileFiles(ctx context.Context, projectID int64, minFragility int) ([]*types.File, error) {
	return a.listFiles(ctx, `SELECT `+fileColumns+` FROM files
		WHERE project_id=? AND archived_at IS NULL AND fragility>=?
		ORDER BY fragility DESC`, projectID, minFragility)
}

// CountStaleFiles counts files not referenced in staleDays.
func (a *SQLiteAdapter) CountStaleFiles(ctx context.Context, projectID int64, staleDays int) (int, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	cutoff := time.Now().AddDate(0, 0, -staleDays)
	var n int
	err := a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM files
		WHERE project_id=? AND archived_at IS NULL AND (last_referenced_at IS NULL OR last_referenced_at < ?)`,
		projectID, cutoff).Scan(&n)
	return n, err
}

// CountHighFragility counts active files at or above minFragility.
func (a *SQLiteAdapter) CountHighFragility(ctx context.Context, projectID int64, minFragility int) (int, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var n int
	err := a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM files
		WHERE project_id=? AND archived_at IS NULL AND fragility>=?`, projectID, minFragility).Scan(&n)
	return n, err
}

// DecayFileTemperatures applies §4.7 temperature decay to all files in a project.
func (a *SQLiteAdapter) DecayFileTemperatures(ctx context.Context, projectID int64, coldThreshold, warmLow, warmHigh int) error {
	return decayTemperature(ctx, a, "files", projectID, coldThreshold, warmLow, warmHigh)
}

// HeatFile sets a file hot and bumps last_referenced_at (§4.7 heat()).
func (a *SQLiteAdapter) HeatFile(ctx context.Context, projectID int64, path string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, err := a.db.ExecContext(ctx, `UPDATE files SET temperature='hot', last_referenced_at=CURRENT_TIMESTAMP
		WHERE project_id=? AND path=?`, projectID, path)
	return err
}

// IncrementFileChangeCount bumps change_count, used by the relationship engine
// when a file participates in a co-change.
func (a *SQLiteAdapter) IncrementFileChangeCount(ctx context.Context, projectID int64, path string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, err := a.db.ExecContext(ctx, `UPDATE files SET change_count=change_count+1 WHERE project_id=? AND path=?`, projectID, path)
	return err
}

// FileGraph returns every active file keyed by path, for the blast-radius BFS.
func (a *SQLiteAdapter) FileGraph(ctx context.Context, projectID int64) (map[string]*types.File, error) {
	files, err := a.listFiles(ctx, `SELECT `+fileColumns+` FROM files WHERE project_id=? AND archived_at IS NULL`, projectID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*types.File, len(files))
	for _, f := range files {
		out[f.Path] = f
	}
	return out, nil
}

// decayTemperature implements §4.7's shared decay rule for any table carrying
// (temperature, last_referenced_at) columns: cold when never referenced or
// referenced-before-session count exceeds coldThreshold; warm when currently
// hot and that count falls in [warmLow, warmHigh].
func decayTemperature(ctx context.Context, a *SQLiteAdapter, table string, projectID int64, coldThreshold, warmLow, warmHigh int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	q := fmt.Sprintf(`UPDATE %s SET temperature='cold'
		WHERE project_id=? AND (last_referenced_at IS NULL OR
			(SELECT COUNT(*) FROM sessions s WHERE s.project_id=%s.project_id AND s.started_at > %s.last_referenced_at) > ?)`,
		table, table, table)
	if _, err := a.db.ExecContext(ctx, q, projectID, coldThreshold); err != nil {
		return fmt.Errorf("store: decay cold %s: %w", table, err)
	}

	q2 := fmt.Sprintf(`UPDATE %s SET temperature='warm'
		WHERE project_id=? AND temperature='hot' AND last_referenced_at IS NOT NULL AND
			(SELECT COUNT(*) FROM sessions s WHERE s.project_id=%s.project_id AND s.started_at > %s.last_referenced_at) BETWEEN ? AND ?`,
		table, table, table)
	if _, err := a.db.ExecContext(ctx, q2, projectID, warmLow, warmHigh); err != nil {
		return fmt.Errorf("store: decay warm %s: %w", table, err)
	}
	return nil
}
