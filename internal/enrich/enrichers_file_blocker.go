package enrich

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"muninn/internal/cache"
	"muninn/internal/format"
	"muninn/internal/obslog"
	"muninn/internal/types"
)

// fileKnowledgeEnricher injects per-file fragility/type/purpose/dependents
// (priority 10, §4.5).
func fileKnowledgeEnricher(ctx context.Context, ec *EnrichContext) (string, error) {
	var records []string
	for _, path := range ec.Input.Files {
		f, err := getFileCached(ctx, ec, path)
		if err != nil {
			continue
		}
		records = append(records, format.FileRecord(f.Path, f.Fragility, string(f.Type), f.Purpose, len(f.Dependents)))
	}
	return strings.Join(records, "\n"), nil
}

func getFileCached(ctx context.Context, ec *EnrichContext, path string) (*types.File, error) {
	key := cache.FileKey(ec.Input.ProjectID, path)
	if v, ok := ec.Cache.Get(key); ok {
		if f, ok := v.(*types.File); ok {
			return f, nil
		}
	}
	f, err := ec.DB.GetFile(ctx, ec.Input.ProjectID, path)
	if err != nil {
		return nil, err
	}
	ec.Cache.Set(key, f, ec.Config.Cache.DefaultTTL)
	return f, nil
}

// blockerEnricher computes the max fragility across input files and gates
// the operation warn/soft/hard per configured thresholds (priority 20, §4.5).
// A hard block creates a pending_approvals row.
func blockerEnricher(ctx context.Context, ec *EnrichContext) (string, error) {
	maxFragility := 0
	var worstFile string
	for _, path := range ec.Input.Files {
		f, err := getFileCached(ctx, ec, path)
		if err != nil {
			continue
		}
		if f.Fragility > maxFragility {
			maxFragility = f.Fragility
			worstFile = f.Path
		}
		if f.Status == types.FileStatusDoNotTouch {
			maxFragility = 10
			worstFile = f.Path
		}
	}
	if worstFile == "" {
		return "", nil
	}

	th := ec.Config.Fragility
	switch {
	case maxFragility >= th.HardThreshold:
		now := time.Now()
		opID, err := NewOperationID(now)
		if err != nil {
			obslog.Get(obslog.CategoryEnrich).Warn("operation id generation failed", zap.Error(err))
			return "", nil
		}
		approval := &types.PendingApproval{
			OperationID: opID,
			Tool:        ec.Input.Tool,
			FilePath:    worstFile,
			Reason:      fmt.Sprintf("Fragility %d/10 - This file is critical.", maxFragility),
			BlockLevel:  types.BlockHard,
			CreatedAt:   now,
			ExpiresAt:   now.Add(ec.Config.Approval.TTL),
		}
		if err := ec.DB.CreatePendingApproval(ctx, approval); err != nil {
			obslog.Get(obslog.CategoryEnrich).Warn("create pending approval failed", zap.Error(err))
		}
		return format.BlockMessage(format.BlockKindBlocked, approval.Reason, worstFile, opID), nil
	case maxFragility >= th.SoftThreshold:
		reason := fmt.Sprintf("Fragility %d/10 - explain your approach before proceeding.", maxFragility)
		return format.BlockMessage(format.BlockKindApproval, reason, worstFile, ""), nil
	case maxFragility >= th.WarnThreshold:
		reason := fmt.Sprintf("Fragility %d/10 - proceed with care.", maxFragility)
		return format.BlockMessage(format.BlockKindWarning, reason, worstFile, ""), nil
	}
	return "", nil
}
