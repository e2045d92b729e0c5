package store

import (
	"context"
	"fmt"

	"muninn/internal/merrors"
	"muninn/internal/types"
)

// CreatePendingApproval records a hard-blocked operation awaiting explicit
// approval, time-limited by ExpiresAt (§4.6 approval workflow).
func (a *SQLiteAdapter) CreatePendingApproval(ctx context.Context, ap *types.PendingApproval) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, err := a.db.ExecContext(ctx, `INSERT INTO pending_approvals (operation_id, tool, file_path,
		reason, block_level, created_at, expires_at) VALUES (?,?,?,?,?,?,?)`,
		ap.OperationID, ap.Tool, ap.FilePath, ap.Reason, ap.BlockLevel, ap.CreatedAt, ap.ExpiresAt)
	if err != nil {
		return fmt.Errorf("%w: create pending approval: %v", merrors.ErrDBWriteFailed, err)
	}
	return nil
}

// Approve atomically marks an unexpired, not-yet-approved operation approved.
// The WHERE clause makes a second concurrent call a no-op rather than a
// double-approval (§4.6: approval is idempotent).
func (a *SQLiteAdapter) Approve(ctx context.Context, operationID string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	res, err := a.db.ExecContext(ctx, `UPDATE pending_approvals SET approved_at=CURRENT_TIMESTAMP
		WHERE operation_id=? AND approved_at IS NULL AND expires_at > CURRENT_TIMESTAMP`, operationID)
	if err != nil {
		return false, fmt.Errorf("%w: approve: %v", merrors.ErrDBWriteFailed, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// IsApproved reports whether operationID has a non-expired approval.
func (a *SQLiteAdapter) IsApproved(ctx context.Context, operationID string) (bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var approved int
	err := a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_approvals
		WHERE operation_id=? AND approved_at IS NOT NULL AND expires_at > CURRENT_TIMESTAMP`, operationID).Scan(&approved)
	if err != nil {
		return false, fmt.Errorf("store: is approved: %w", err)
	}
	return approved > 0, nil
}
