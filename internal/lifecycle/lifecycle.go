// Package lifecycle implements the knowledge lifecycle (§4.7): temperature
// decay, confidence reinforcement/reduction, review flagging, promotion and
// the periodic archival sweep. Grounded on the teacher's
// internal/store/learning.go and learning_reflection.go field-mutation shape,
// generalized to the spec's formulas.
package lifecycle

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"muninn/internal/config"
	"muninn/internal/merrors"
	"muninn/internal/obslog"
	"muninn/internal/store"
	"muninn/internal/types"
)

// EffectiveConfidence applies the exponential time-decay kernel from §4.5:
// eff = confidence * exp(-decay_rate * days_since(last_reinforced_at ?? created_at)).
func EffectiveConfidence(l *types.Learning, now time.Time) float64 {
	anchor := l.CreatedAt
	if l.LastReinforcedAt != nil {
		anchor = *l.LastReinforcedAt
	}
	days := now.Sub(anchor).Hours() / 24
	if days < 0 {
		days = 0
	}
	rate := l.DecayRate
	if rate <= 0 {
		rate = types.DefaultDecayRate
	}
	eff := l.Confidence * math.Exp(-rate*days)
	if eff > l.Confidence {
		eff = l.Confidence
	}
	return eff
}

// DecayTemperatures runs §4.7 temperature decay across files, decisions,
// issues and learnings for one project, invoked once per session start.
func DecayTemperatures(ctx context.Context, db store.DatabaseAdapter, cfg config.DecayConfig, projectID int64) error {
	cold, warmLo, warmHi := cfg.ColdSessionThreshold, cfg.WarmSessionRangeLow, cfg.WarmSessionRangeHigh
	if err := db.DecayFileTemperatures(ctx, projectID, cold, warmLo, warmHi); err != nil {
		return fmt.Errorf("lifecycle: decay files: %w", err)
	}
	if err := db.DecayDecisionTemperatures(ctx, projectID, cold, warmLo, warmHi); err != nil {
		return fmt.Errorf("lifecycle: decay decisions: %w", err)
	}
	if err := db.DecayIssueTemperatures(ctx, projectID, cold, warmLo, warmHi); err != nil {
		return fmt.Errorf("lifecycle: decay issues: %w", err)
	}
	if err := db.DecayLearningTemperatures(ctx, projectID, cold, warmLo, warmHi); err != nil {
		return fmt.Errorf("lifecycle: decay learnings: %w", err)
	}
	return nil
}

// HeatFile marks a file hot and bumps last_referenced_at (§4.7 heat()).
func HeatFile(ctx context.Context, db store.DatabaseAdapter, projectID int64, path string) error {
	return db.HeatFile(ctx, projectID, path)
}

// ReinforceLearning applies §4.7 confidence reinforcement to the one learning
// it is given: snapshot the learning's prior state then bump confidence
// (capped at 10), times_applied and temperature to warm.
func ReinforceLearning(ctx context.Context, db store.DatabaseAdapter, learningID int64) error {
	l, err := db.GetLearning(ctx, learningID)
	if err != nil {
		return fmt.Errorf("lifecycle: reinforce learning %d: %w", learningID, err)
	}
	if err := db.InsertLearningVersion(ctx, l); err != nil {
		return fmt.Errorf("lifecycle: snapshot learning %d: %w", learningID, err)
	}
	now := time.Now()
	l.Confidence = min10(l.Confidence + 0.5)
	l.TimesApplied++
	l.LastApplied = &now
	l.LastReinforcedAt = &now
	l.Temperature = types.TemperatureWarm
	return db.SaveLearning(ctx, l)
}

// ReduceLearningConfidence applies §4.7 confidence reduction on a failed
// decision outcome: snapshot, then confidence = max(1, confidence-1),
// temperature = cold.
func ReduceLearningConfidence(ctx context.Context, db store.DatabaseAdapter, learningID int64) error {
	l, err := db.GetLearning(ctx, learningID)
	if err != nil {
		return fmt.Errorf("lifecycle: reduce learning %d: %w", learningID, err)
	}
	if err := db.InsertLearningVersion(ctx, l); err != nil {
		return fmt.Errorf("lifecycle: snapshot learning %d: %w", learningID, err)
	}
	l.Confidence = max1(l.Confidence - 1)
	l.Temperature = types.TemperatureCold
	return db.SaveLearning(ctx, l)
}

// FlagForReview applies §4.7 review flagging on a "revised" decision outcome.
func FlagForReview(ctx context.Context, db store.DatabaseAdapter, learningID int64) error {
	l, err := db.GetLearning(ctx, learningID)
	if err != nil {
		return fmt.Errorf("lifecycle: flag learning %d: %w", learningID, err)
	}
	l.ReviewStatus = types.ReviewStatusPending
	l.SessionsSinceReview = l.ReviewAfterSessions
	return db.SaveLearning(ctx, l)
}

// PromotionCheck applies the §4.1 promotion transition: a foundational
// learning becomes a "candidate" once confidence>=8, times_confirmed>=3,
// times_applied>=5 and it is not archived.
func PromotionCheck(l *types.Learning, cfg config.DecayConfig) types.PromotionStatus {
	if !l.Foundational || l.ArchivedAt != nil {
		return l.PromotionStatus
	}
	if l.Confidence >= cfg.PromotionMinConfidence &&
		l.TimesConfirmed >= cfg.PromotionMinConfirmed &&
		l.TimesApplied >= cfg.PromotionMinApplied {
		return types.PromotionCandidate
	}
	return l.PromotionStatus
}

// ConfirmFoundational applies the §4.1 promotion lifecycle's confirm step:
// confidence += 1 (capped 10), times_confirmed++, review_after_sessions grows
// by +10 capped at 120, review_status goes back to pending for the next
// cycle, and the promotion transition is evaluated.
func ConfirmFoundational(ctx context.Context, db store.DatabaseAdapter, cfg config.DecayConfig, learningID int64) error {
	l, err := db.GetLearning(ctx, learningID)
	if err != nil {
		return fmt.Errorf("lifecycle: confirm learning %d: %w", learningID, err)
	}
	l.Confidence = min10(l.Confidence + 1)
	l.TimesConfirmed++
	l.ReviewAfterSessions = minInt(cfg.ReviewAfterSessionsCap, l.ReviewAfterSessions+cfg.ReviewAfterSessionsStep)
	l.SessionsSinceReview = 0
	l.ReviewStatus = types.ReviewStatusPending
	l.PromotionStatus = PromotionCheck(l, cfg)
	return db.SaveLearning(ctx, l)
}

// DemoteOnRevision applies the §4.1 demotion rule: revising a promoted
// learning demotes it (promoted->demoted, anything else->not_ready), resets
// review_after_sessions to 30 and times_confirmed to 0.
func DemoteOnRevision(ctx context.Context, db store.DatabaseAdapter, cfg config.DecayConfig, learningID int64) error {
	l, err := db.GetLearning(ctx, learningID)
	if err != nil {
		return fmt.Errorf("lifecycle: demote learning %d: %w", learningID, err)
	}
	if l.PromotionStatus == types.PromotionPromoted {
		l.PromotionStatus = types.PromotionDemoted
	} else {
		l.PromotionStatus = types.PromotionNotReady
	}
	l.ReviewAfterSessions = cfg.ReviewAfterSessionsReset
	l.TimesConfirmed = 0
	l.ReviewStatus = types.ReviewStatusRevised
	l.SessionsSinceReview = 0
	return db.SaveLearning(ctx, l)
}

// ArchivalResult tallies how many rows each sweep archived (§4.7).
type ArchivalResult struct {
	Learnings int
	Decisions int
	Issues    int
}

// RunArchivalSweep archives stale or low-confidence learnings, failed
// decisions past their review window, and long-resolved issues (§4.7).
func RunArchivalSweep(ctx context.Context, db store.DatabaseAdapter, cfg config.DecayConfig, projectID int64) (ArchivalResult, error) {
	var res ArchivalResult
	log := obslog.Get(obslog.CategoryLifecycle)

	n, err := db.ArchiveStaleLearnings(ctx, projectID, cfg.ArchiveConfidenceAgeDays, cfg.ArchiveStaleAgeDays)
	if err != nil {
		return res, fmt.Errorf("lifecycle: archive learnings: %w", err)
	}
	res.Learnings = n

	n, err = db.ArchiveFailedDecisionsOlderThan(ctx, projectID, cfg.ArchiveStaleAgeDays)
	if err != nil {
		return res, fmt.Errorf("lifecycle: archive decisions: %w", err)
	}
	res.Decisions = n

	n, err = db.ArchiveResolvedIssuesOlderThan(ctx, projectID, cfg.ArchiveStaleAgeDays)
	if err != nil {
		return res, fmt.Errorf("lifecycle: archive issues: %w", err)
	}
	res.Issues = n

	log.Info("archival sweep complete",
		zap.Int("learnings", res.Learnings), zap.Int("decisions", res.Decisions), zap.Int("issues", res.Issues))
	return res, nil
}

// restoreWhitelist enforces §4.7's restore whitelist: only learnings and
// decisions may be restored, defending against dynamic table-name injection.
var restoreWhitelist = map[string]bool{"learnings": true, "decisions": true}

// Restore un-archives a row from a whitelisted table.
func Restore(ctx context.Context, db store.DatabaseAdapter, sourceTable string, id int64) error {
	if !restoreWhitelist[sourceTable] {
		return fmt.Errorf("lifecycle: restore %s/%d: %w", sourceTable, id, merrors.ErrRestoreNotWhitelisted)
	}
	switch sourceTable {
	case "learnings":
		return db.RestoreLearning(ctx, id)
	case "decisions":
		return db.RestoreDecision(ctx, id)
	}
	return nil
}

func min10(v float64) float64 {
	if v > 10 {
		return 10
	}
	return v
}

func max1(v float64) float64 {
	if v < 1 {
		return 1
	}
	return v
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
