package store

import (
	"context"
	"fmt"

	"muninn/internal/merrors"
)

// RecordContextInjection logs one enrichment packet handed to the agent
// during a session, returning its ID for later impact classification
// (§4.9 impact tracking).
func (a *SQLiteAdapter) RecordContextInjection(ctx context.Context, ci *ContextInjection) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	wasUsed := 0
	if ci.WasUsed {
		wasUsed = 1
	}
	res, err := a.db.ExecContext(ctx, `INSERT INTO context_injections (session_id, enricher_name,
		was_used, relevance) VALUES (?,?,?,?)`, ci.SessionID, ci.EnricherName, wasUsed, ci.Relevance)
	if err != nil {
		return 0, fmt.Errorf("%w: record context injection: %v", merrors.ErrDBWriteFailed, err)
	}
	return res.LastInsertId()
}

// ListContextInjectionsForSession returns every packet injected during a
// session, consumed at session end to classify impact.
func (a *SQLiteAdapter) ListContextInjectionsForSession(ctx context.Context, sessionID int64) ([]ContextInjection, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	rows, err := a.db.QueryContext(ctx, `SELECT id, session_id, enricher_name, was_used, relevance
		FROM context_injections WHERE session_id=?`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("store: list context injections: %w", err)
	}
	defer rows.Close()
	var out []ContextInjection
	for rows.Next() {
		var ci ContextInjection
		var wasUsed int
		if err := rows.Scan(&ci.ID, &ci.SessionID, &ci.EnricherName, &wasUsed, &ci.Relevance); err != nil {
			continue
		}
		ci.WasUsed = wasUsed != 0
		out = append(out, ci)
	}
	return out, rows.Err()
}

// RecordImpact classifies the outcome of one context injection (irrelevant,
// helped, harmful, unknown) per §4.9.
func (a *SQLiteAdapter) RecordImpact(ctx context.Context, impact *ImpactRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, err := a.db.ExecContext(ctx, `INSERT INTO impact_tracking (context_injection_id, classification)
		VALUES (?,?)`, impact.ContextInjectionID, impact.Classification)
	if err != nil {
		return fmt.Errorf("%w: record impact: %v", merrors.ErrDBWriteFailed, err)
	}
	return nil
}
