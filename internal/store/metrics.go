package store

import (
	"context"
	"fmt"

	"muninn/internal/merrors"
	"muninn/internal/types"
)

// RecordMetric persists one enrichment-call measurement. Failures here are
// logged by the caller and never surfaced to the enrichment pipeline itself
// (§4.5: metrics are best-effort, never block a response).
func (a *SQLiteAdapter) RecordMetric(ctx context.Context, m *types.EnrichmentMetric) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	blocked := 0
	if m.Blocked {
		blocked = 1
	}
	_, err := a.db.ExecContext(ctx, `INSERT INTO enrichment_metrics (trace_id, tool, file_path, latency_ms,
		enrichers_used, tokens_injected, blocked, cache_hits, cache_misses) VALUES (?,?,?,?,?,?,?,?,?)`,
		m.TraceID, m.Tool, m.FilePath, m.LatencyMs, toJSON(m.EnrichersUsed), m.TokensInjected, blocked,
		m.CacheHits, m.CacheMisses)
	if err != nil {
		return fmt.Errorf("%w: record metric: %v", merrors.ErrDBWriteFailed, err)
	}
	return nil
}
