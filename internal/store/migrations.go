package store

import (
	"database/sql"
	"strings"
)

// migration is one idempotent schema change applied to existing databases.
// Mirrors the teacher's migrations.go: ALTER TABLE ... ADD COLUMN, tolerating
// "duplicate column name" so re-running against an already-migrated database
// is a silent no-op (§7: schema evolution must be tolerated silently).
type migration struct {
	name string
	sql  string
}

var migrations = []migration{
	{"files_archived_at", `ALTER TABLE files ADD COLUMN archived_at DATETIME`},
	{"decisions_archived_at", `ALTER TABLE decisions ADD COLUMN archived_at DATETIME`},
	{"learnings_auto_reinforcement_count", `ALTER TABLE learnings ADD COLUMN auto_reinforcement_count INTEGER DEFAULT 0`},
	{"enrichment_metrics_trace_id", `ALTER TABLE enrichment_metrics ADD COLUMN trace_id TEXT`},
}

// runMigrations applies every migration, ignoring "duplicate column" style
// failures so older databases degrade gracefully rather than failing startup.
func runMigrations(db *sql.DB) error {
	for _, m := range migrations {
		if _, err := db.Exec(m.sql); err != nil {
			if isBenignMigrationError(err) {
				continue
			}
			return err
		}
	}
	return nil
}

func isBenignMigrationError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate column") || strings.Contains(msg, "already exists")
}
