package store

import (
	"context"
	"fmt"

	"muninn/internal/merrors"
)

// ArchiveKnowledge snapshots one row from any source table into
// archived_knowledge, used directly by callers (e.g. insights, which have no
// dedicated archival sweep of their own) outside the per-table sweeps in
// decisions.go/issues.go/learnings.go.
func (a *SQLiteAdapter) ArchiveKnowledge(ctx context.Context, sourceTable string, sourceID int64, title, content, reason string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, err := a.db.ExecContext(ctx, `INSERT INTO archived_knowledge (source_table, source_id, title, content, reason)
		VALUES (?,?,?,?,?)`, sourceTable, sourceID, title, content, reason)
	if err != nil {
		return fmt.Errorf("%w: archive knowledge: %v", merrors.ErrDBWriteFailed, err)
	}
	return nil
}
