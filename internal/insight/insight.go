// Package insight implements the C10 pattern detectors (§4.10): a due-check
// gating five independent scans over co-change correlations, fragility
// trends, decision outcomes, workflow usage and scope creep, each upserting
// one advisory insight row. Grounded on the teacher's
// internal/store/learning_candidates.go upsert shape and
// internal/store/reflection_worker.go's periodic-scan-with-threshold pattern.
package insight

import (
	"context"
	"fmt"
	"path"

	"go.uber.org/zap"

	"muninn/internal/config"
	"muninn/internal/obslog"
	"muninn/internal/store"
	"muninn/internal/types"
)

// ShouldGenerate applies the §4.10 due-check: never generated, or any one of
// the three activity thresholds has been crossed since the last generation.
func ShouldGenerate(ctx context.Context, db store.DatabaseAdapter, cfg config.InsightConfig, projectID int64) (bool, error) {
	last, err := db.LastInsightGeneratedAt(ctx, projectID)
	if err != nil {
		return false, fmt.Errorf("insight: last generated: %w", err)
	}
	if last == nil {
		return true, nil
	}

	sessions, err := db.CountEndedSessionsSince(ctx, projectID, last)
	if err != nil {
		return false, fmt.Errorf("insight: ended sessions since: %w", err)
	}
	if sessions >= cfg.SessionsSinceDue {
		return true, nil
	}

	correlations, err := db.CountCorrelationUpdatesSince(ctx, projectID, *last)
	if err != nil {
		return false, fmt.Errorf("insight: correlation updates since: %w", err)
	}
	if correlations >= cfg.CorrelationUpdatesDue {
		return true, nil
	}

	decisions, err := db.CountNewDecisionsSince(ctx, projectID, last)
	if err != nil {
		return false, fmt.Errorf("insight: new decisions since: %w", err)
	}
	return decisions >= cfg.NewDecisionsDue, nil
}

// GenerateIfDue runs every detector when ShouldGenerate reports true, then
// auto-dismisses stale "new" insights regardless (§4.10).
func GenerateIfDue(ctx context.Context, db store.DatabaseAdapter, cfg config.InsightConfig, projectID int64) error {
	due, err := ShouldGenerate(ctx, db, cfg, projectID)
	if err != nil {
		return err
	}
	if !due {
		return nil
	}

	log := obslog.Get(obslog.CategoryInsight)
	detectors := []func(context.Context, store.DatabaseAdapter, config.InsightConfig, int64) (int, error){
		detectCochange,
		detectFragilityTrends,
		detectDecisionOutcomes,
		detectWorkflowDeviations,
		detectScopeCreep,
	}
	total := 0
	for _, d := range detectors {
		n, derr := d(ctx, db, cfg, projectID)
		if derr != nil {
			log.Warn("insight detector failed", zap.Error(derr))
			continue
		}
		total += n
	}

	dismissed, err := db.AutoDismissStaleInsights(ctx, projectID, types.AutoDismissShownCount)
	if err != nil {
		return fmt.Errorf("insight: auto-dismiss: %w", err)
	}
	log.Info("insight generation complete", zap.Int("upserted", total), zap.Int("dismissed", dismissed))
	return nil
}

// detectCochange finds file pairs co-changed at least CochangeMinCount times
// that live in different directories (§4.10 co-change detector).
func detectCochange(ctx context.Context, db store.DatabaseAdapter, cfg config.InsightConfig, projectID int64) (int, error) {
	pairs, err := db.CorrelationsAboveThreshold(ctx, projectID, cfg.CochangeMinCount)
	if err != nil {
		return 0, fmt.Errorf("cochange: %w", err)
	}
	n := 0
	for _, p := range pairs {
		if path.Dir(p.FileA) == path.Dir(p.FileB) {
			continue
		}
		confidence := 0.5 + 0.05*float64(p.CochangeCount)
		if confidence > 0.9 {
			confidence = 0.9
		}
		i := &types.Insight{
			ProjectID:  projectID,
			Title:      fmt.Sprintf("%s and %s change together", p.FileA, p.FileB),
			Type:       types.InsightCorrelation,
			Content:    fmt.Sprintf("co-changed %d times across directories", p.CochangeCount),
			Evidence:   []string{p.FileA, p.FileB},
			Confidence: confidence,
			Status:     types.InsightStatusNew,
		}
		if err := db.UpsertInsight(ctx, i); err != nil {
			return n, fmt.Errorf("cochange upsert: %w", err)
		}
		n++
	}
	return n, nil
}

// detectFragilityTrends flags files whose velocity_score exceeds 0.5 as an
// anomaly (high fragility) or a recommendation (high change volume without
// high fragility yet), §4.10.
func detectFragilityTrends(ctx context.Context, db store.DatabaseAdapter, cfg config.InsightConfig, projectID int64) (int, error) {
	files, err := db.ListAllFragileFiles(ctx, projectID, 0)
	if err != nil {
		return 0, fmt.Errorf("fragility trends: %w", err)
	}
	n := 0
	for _, f := range files {
		if f.VelocityScore <= 0.5 {
			continue
		}
		var i *types.Insight
		switch {
		case f.Fragility >= 7:
			i = &types.Insight{Title: fmt.Sprintf("%s is trending fragile", f.Path), Type: types.InsightAnomaly,
				Content: fmt.Sprintf("fragility=%d, velocity=%.2f", f.Fragility, f.VelocityScore), Confidence: 0.8}
		case f.ChangeCount >= 10:
			i = &types.Insight{Title: fmt.Sprintf("%s changes frequently", f.Path), Type: types.InsightRecommendation,
				Content: fmt.Sprintf("change_count=%d, velocity=%.2f", f.ChangeCount, f.VelocityScore), Confidence: 0.6}
		default:
			continue
		}
		i.ProjectID = projectID
		i.Evidence = []string{f.Path}
		i.Status = types.InsightStatusNew
		if err := db.UpsertInsight(ctx, i); err != nil {
			return n, fmt.Errorf("fragility trend upsert: %w", err)
		}
		n++
	}
	return n, nil
}

// detectDecisionOutcomes reports on the project's overall decision
// track-record once at least three decisions have been reviewed (§4.10).
func detectDecisionOutcomes(ctx context.Context, db store.DatabaseAdapter, cfg config.InsightConfig, projectID int64) (int, error) {
	succeeded, failed, reviewed, err := db.ReviewedDecisionOutcomeCounts(ctx, projectID)
	if err != nil {
		return 0, fmt.Errorf("decision outcomes: %w", err)
	}
	if reviewed < 3 {
		return 0, nil
	}

	n := 0
	if failed >= 2 {
		i := &types.Insight{ProjectID: projectID, Title: "decisions have an elevated failure rate",
			Type: types.InsightPattern, Content: fmt.Sprintf("%d of %d reviewed decisions failed", failed, reviewed),
			Confidence: 0.7, Status: types.InsightStatusNew}
		if err := db.UpsertInsight(ctx, i); err != nil {
			return n, fmt.Errorf("decision failure upsert: %w", err)
		}
		n++
	}
	rate := float64(succeeded) / float64(reviewed)
	if succeeded >= 3 && rate >= 0.8 {
		i := &types.Insight{ProjectID: projectID, Title: "decisions have a strong track record",
			Type: types.InsightPattern, Content: fmt.Sprintf("%d of %d reviewed decisions succeeded (%.0f%%)", succeeded, reviewed, rate*100),
			Confidence: 0.7, Status: types.InsightStatusNew}
		if err := db.UpsertInsight(ctx, i); err != nil {
			return n, fmt.Errorf("decision track record upsert: %w", err)
		}
		n++
	}
	return n, nil
}

// detectWorkflowDeviations flags workflow patterns that have fallen out of
// use (§4.10).
func detectWorkflowDeviations(ctx context.Context, db store.DatabaseAdapter, cfg config.InsightConfig, projectID int64) (int, error) {
	names, err := db.WorkflowsStaleOrUnused(ctx, projectID, cfg.WorkflowStaleDays, cfg.WorkflowMinUses)
	if err != nil {
		return 0, fmt.Errorf("workflow deviations: %w", err)
	}
	n := 0
	for _, name := range names {
		i := &types.Insight{ProjectID: projectID, Title: fmt.Sprintf("workflow %q may be stale", name),
			Type: types.InsightRecommendation, Content: "unused or under-used relative to its historical pattern",
			Evidence: []string{name}, Confidence: 0.5, Status: types.InsightStatusNew}
		if err := db.UpsertInsight(ctx, i); err != nil {
			return n, fmt.Errorf("workflow deviation upsert: %w", err)
		}
		n++
	}
	return n, nil
}

// detectScopeCreep reports on sessions touching unusually many files over
// the trailing window, weighting toward sessions that also surfaced issues
// (§4.10).
func detectScopeCreep(ctx context.Context, db store.DatabaseAdapter, cfg config.InsightConfig, projectID int64) (int, error) {
	files, hasIssues, err := db.RecentSessionsTouchedFiles(ctx, projectID, cfg.ScopeCreepSessionWindow)
	if err != nil {
		return 0, fmt.Errorf("scope creep: %w", err)
	}
	broad, broadWithIssues := 0, 0
	for idx, touched := range files {
		if len(touched) < cfg.ScopeCreepFileThreshold {
			continue
		}
		broad++
		if idx < len(hasIssues) && hasIssues[idx] {
			broadWithIssues++
		}
	}
	if broad == 0 || broadWithIssues < 2 {
		return 0, nil
	}

	rate := float64(broadWithIssues) / float64(broad)
	i := &types.Insight{
		ProjectID: projectID,
		Title:     "sessions touching many files tend to surface issues",
		Type:      types.InsightPattern,
		Content:   fmt.Sprintf("%d of %d broad-scope sessions also found issues (%.0f%%)", broadWithIssues, broad, rate*100),
		Confidence: 0.6,
		Status:     types.InsightStatusNew,
	}
	if err := db.UpsertInsight(ctx, i); err != nil {
		return 0, fmt.Errorf("scope creep upsert: %w", err)
	}
	return 1, nil
}
