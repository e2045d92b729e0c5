package store

import "fmt"

// schemaStatements creates every table named in §6 if it does not already
// exist, following the teacher's table-creation shape in local_core.go
// (plain CREATE TABLE IF NOT EXISTS blocks executed in sequence, indexes
// created alongside their table).
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS files (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id INTEGER NOT NULL,
		path TEXT NOT NULL,
		type TEXT,
		purpose TEXT,
		fragility INTEGER DEFAULT 0,
		fragility_reason TEXT,
		fragility_signals TEXT,
		content_hash TEXT,
		last_analyzed DATETIME,
		dependencies TEXT,
		dependents TEXT,
		velocity_score REAL DEFAULT 0,
		change_count INTEGER DEFAULT 0,
		temperature TEXT DEFAULT 'warm',
		last_referenced_at DATETIME,
		status TEXT DEFAULT 'active',
		archived_at DATETIME,
		UNIQUE(project_id, path)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_files_project ON files(project_id)`,
	`CREATE INDEX IF NOT EXISTS idx_files_fragility ON files(project_id, fragility)`,
	`CREATE INDEX IF NOT EXISTS idx_files_temperature ON files(project_id, temperature)`,

	`CREATE TABLE IF NOT EXISTS decisions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id INTEGER NOT NULL,
		title TEXT NOT NULL,
		decision TEXT,
		reasoning TEXT,
		affects TEXT,
		status TEXT DEFAULT 'active',
		outcome_status TEXT DEFAULT 'pending',
		outcome_notes TEXT DEFAULT '{"positive":0,"negative":0}',
		check_after_sessions INTEGER DEFAULT 5,
		sessions_since INTEGER DEFAULT 0,
		temperature TEXT DEFAULT 'warm',
		last_referenced_at DATETIME,
		archived_at DATETIME,
		decided_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(project_id, title)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_decisions_project ON decisions(project_id)`,
	`CREATE INDEX IF NOT EXISTS idx_decisions_status ON decisions(project_id, status, outcome_status)`,

	`CREATE TABLE IF NOT EXISTS learnings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id INTEGER,
		title TEXT NOT NULL,
		content TEXT,
		context TEXT,
		category TEXT,
		confidence REAL DEFAULT 5,
		times_applied INTEGER DEFAULT 0,
		times_confirmed INTEGER DEFAULT 0,
		last_reinforced_at DATETIME,
		last_applied DATETIME,
		decay_rate REAL DEFAULT 0.05,
		temperature TEXT DEFAULT 'warm',
		review_status TEXT DEFAULT 'pending',
		sessions_since_review INTEGER DEFAULT 0,
		review_after_sessions INTEGER DEFAULT 30,
		foundational INTEGER DEFAULT 0,
		promotion_status TEXT DEFAULT 'not_ready',
		auto_reinforcement_count INTEGER DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		archived_at DATETIME,
		source TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_learnings_project ON learnings(project_id)`,
	`CREATE INDEX IF NOT EXISTS idx_learnings_category ON learnings(project_id, category)`,
	`CREATE VIRTUAL TABLE IF NOT EXISTS fts_learnings USING fts5(title, content, context, content='learnings', content_rowid='id')`,

	`CREATE TABLE IF NOT EXISTS issues (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id INTEGER NOT NULL,
		title TEXT,
		type TEXT,
		severity INTEGER DEFAULT 5,
		status TEXT DEFAULT 'open',
		affected_files TEXT,
		related_symbols TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		resolved_at DATETIME
	)`,
	`CREATE INDEX IF NOT EXISTS idx_issues_project ON issues(project_id, status)`,

	`CREATE TABLE IF NOT EXISTS sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id INTEGER NOT NULL,
		session_number INTEGER NOT NULL,
		goal TEXT,
		outcome TEXT,
		started_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		ended_at DATETIME,
		success INTEGER,
		next_steps TEXT,
		files_read TEXT DEFAULT '[]',
		queries_made TEXT DEFAULT '[]',
		files_touched TEXT DEFAULT '[]',
		decisions_made TEXT DEFAULT '[]',
		issues_found TEXT DEFAULT '[]',
		issues_resolved TEXT DEFAULT '[]',
		learnings TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_project ON sessions(project_id)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_active ON sessions(project_id, ended_at)`,

	`CREATE TABLE IF NOT EXISTS relationships (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id INTEGER NOT NULL,
		source_type TEXT NOT NULL,
		source_id INTEGER NOT NULL,
		relationship TEXT NOT NULL,
		target_type TEXT NOT NULL,
		target_id INTEGER NOT NULL,
		strength REAL DEFAULT 1,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_relationships_source ON relationships(project_id, source_type, source_id)`,
	`CREATE INDEX IF NOT EXISTS idx_relationships_target ON relationships(project_id, target_type, target_id)`,

	`CREATE TABLE IF NOT EXISTS file_correlations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id INTEGER NOT NULL,
		file_a TEXT NOT NULL,
		file_b TEXT NOT NULL,
		cochange_count INTEGER DEFAULT 0,
		last_cochange DATETIME,
		correlation_strength REAL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(project_id, file_a, file_b)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_correlations_project ON file_correlations(project_id)`,

	`CREATE TABLE IF NOT EXISTS blast_radius (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id INTEGER NOT NULL,
		source_file TEXT NOT NULL,
		affected_file TEXT NOT NULL,
		distance INTEGER NOT NULL,
		is_test INTEGER DEFAULT 0,
		UNIQUE(project_id, source_file, affected_file)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_blast_source ON blast_radius(project_id, source_file)`,

	`CREATE TABLE IF NOT EXISTS symbols (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id INTEGER NOT NULL,
		file_path TEXT NOT NULL,
		name TEXT,
		kind TEXT,
		exported_flag INTEGER DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_symbols_file ON symbols(project_id, file_path)`,

	`CREATE TABLE IF NOT EXISTS call_graph (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id INTEGER NOT NULL,
		caller_file TEXT NOT NULL,
		callee_file TEXT NOT NULL,
		caller_name TEXT,
		callee_name TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_callgraph_callee ON call_graph(project_id, callee_file)`,

	`CREATE TABLE IF NOT EXISTS test_source_map (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id INTEGER NOT NULL,
		source_file TEXT NOT NULL,
		test_file TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_testmap_source ON test_source_map(project_id, source_file)`,

	`CREATE TABLE IF NOT EXISTS pending_approvals (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		operation_id TEXT NOT NULL UNIQUE,
		tool TEXT,
		file_path TEXT,
		reason TEXT,
		block_level TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		expires_at DATETIME,
		approved_at DATETIME
	)`,
	`CREATE INDEX IF NOT EXISTS idx_approvals_op ON pending_approvals(operation_id)`,

	`CREATE TABLE IF NOT EXISTS enrichment_metrics (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		trace_id TEXT,
		tool TEXT,
		file_path TEXT,
		latency_ms INTEGER,
		enrichers_used TEXT,
		tokens_injected INTEGER,
		blocked INTEGER DEFAULT 0,
		cache_hits INTEGER DEFAULT 0,
		cache_misses INTEGER DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS insights (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id INTEGER NOT NULL,
		title TEXT NOT NULL,
		type TEXT,
		content TEXT,
		evidence TEXT,
		confidence REAL DEFAULT 0.5,
		status TEXT DEFAULT 'new',
		shown_count INTEGER DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(project_id, title)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_insights_project ON insights(project_id, status)`,

	`CREATE TABLE IF NOT EXISTS archived_knowledge (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source_table TEXT NOT NULL,
		source_id INTEGER NOT NULL,
		title TEXT,
		content TEXT,
		reason TEXT,
		archived_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS learning_versions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		learning_id INTEGER NOT NULL,
		confidence REAL,
		content TEXT,
		snapshotted_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS session_learnings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id INTEGER NOT NULL,
		learning_id INTEGER NOT NULL,
		auto_applied INTEGER DEFAULT 0
	)`,

	`CREATE TABLE IF NOT EXISTS decision_learnings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		decision_id INTEGER NOT NULL,
		learning_id INTEGER NOT NULL,
		contribution TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS workflow_patterns (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id INTEGER NOT NULL,
		name TEXT,
		times_used INTEGER DEFAULT 0,
		last_used_at DATETIME
	)`,

	`CREATE TABLE IF NOT EXISTS observations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id INTEGER NOT NULL,
		content TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS knowledge_freshness (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source_table TEXT NOT NULL,
		source_id INTEGER NOT NULL,
		staleness_score REAL DEFAULT 0,
		flagged_stale INTEGER DEFAULT 0,
		deps_changed_count INTEGER DEFAULT 0,
		UNIQUE(source_table, source_id)
	)`,

	`CREATE TABLE IF NOT EXISTS context_injections (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id INTEGER NOT NULL,
		enricher_name TEXT,
		was_used INTEGER DEFAULT 0,
		relevance REAL DEFAULT 0
	)`,

	`CREATE TABLE IF NOT EXISTS impact_tracking (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		context_injection_id INTEGER NOT NULL,
		classification TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS tool_calls (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id INTEGER NOT NULL,
		files_involved TEXT DEFAULT '[]',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS test_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id INTEGER NOT NULL,
		file_path TEXT,
		passed INTEGER DEFAULT 1,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS open_questions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id INTEGER NOT NULL,
		question TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS global_open_questions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		question TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
}

// createSchema runs every statement, tolerating the absence of FTS5 (some
// sqlite3 builds omit it) by falling back silently -- the learnings enricher
// always has a LIKE-based fallback path (§7 FTS unavailable).
func createSchema(exec func(string) error) error {
	for _, stmt := range schemaStatements {
		if err := exec(stmt); err != nil {
			if isFTSUnavailable(stmt, err) {
				continue
			}
			return fmt.Errorf("store: schema statement failed: %w", err)
		}
	}
	return nil
}

func isFTSUnavailable(stmt string, err error) bool {
	return len(stmt) > 16 && stmt[:16] == "CREATE VIRTUAL " && err != nil
}
