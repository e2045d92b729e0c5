package lifecycle_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"muninn/internal/config"
	"muninn/internal/lifecycle"
	"muninn/internal/store"
	"muninn/internal/types"
)

func openTestDB(t *testing.T) *store.SQLiteAdapter {
	t.Helper()
	db, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestEffectiveConfidenceDecaysOverTime(t *testing.T) {
	now := time.Now()
	l := &types.Learning{
		Confidence: 10,
		DecayRate:  types.DefaultDecayRate,
		CreatedAt:  now.Add(-30 * 24 * time.Hour),
	}
	eff := lifecycle.EffectiveConfidence(l, now)
	require.Less(t, eff, 10.0)
	require.Greater(t, eff, 0.0)
}

func TestEffectiveConfidenceNoDecayAtCreation(t *testing.T) {
	now := time.Now()
	l := &types.Learning{Confidence: 7, DecayRate: types.DefaultDecayRate, CreatedAt: now}
	require.InDelta(t, 7.0, lifecycle.EffectiveConfidence(l, now), 0.01)
}

func TestReinforceLearningBumpsConfidenceAndWarms(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	l := &types.Learning{Title: "t1", Content: "c1", Category: types.LearningCategoryPattern,
		Confidence: 5, DecayRate: types.DefaultDecayRate, Temperature: types.TemperatureCold}
	require.NoError(t, db.SaveLearning(ctx, l))

	require.NoError(t, lifecycle.ReinforceLearning(ctx, db, l.ID))

	got, err := db.GetLearning(ctx, l.ID)
	require.NoError(t, err)
	require.InDelta(t, 5.5, got.Confidence, 0.01)
	require.Equal(t, 1, got.TimesApplied)
	require.Equal(t, types.TemperatureWarm, got.Temperature)
	require.NotNil(t, got.LastReinforcedAt)
}

func TestReinforceLearningCapsAtTen(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	l := &types.Learning{Title: "t2", Content: "c2", Category: types.LearningCategoryGotcha,
		Confidence: 9.8, DecayRate: types.GotchaDecayRate}
	require.NoError(t, db.SaveLearning(ctx, l))
	require.NoError(t, lifecycle.ReinforceLearning(ctx, db, l.ID))

	got, err := db.GetLearning(ctx, l.ID)
	require.NoError(t, err)
	require.Equal(t, 10.0, got.Confidence)
}

func TestReduceLearningConfidenceFloorsAtOne(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	l := &types.Learning{Title: "t3", Content: "c3", Category: types.LearningCategoryPattern, Confidence: 1}
	require.NoError(t, db.SaveLearning(ctx, l))
	require.NoError(t, lifecycle.ReduceLearningConfidence(ctx, db, l.ID))

	got, err := db.GetLearning(ctx, l.ID)
	require.NoError(t, err)
	require.Equal(t, 1.0, got.Confidence)
	require.Equal(t, types.TemperatureCold, got.Temperature)
}

func TestPromotionCheckRequiresAllThresholds(t *testing.T) {
	cfg := config.Default().Decay
	l := &types.Learning{Foundational: true, Confidence: 8, TimesConfirmed: 3, TimesApplied: 5,
		PromotionStatus: types.PromotionNotReady}
	require.Equal(t, types.PromotionCandidate, lifecycle.PromotionCheck(l, cfg))

	l.TimesApplied = 4
	require.Equal(t, types.PromotionNotReady, lifecycle.PromotionCheck(l, cfg))
}

func TestPromotionCheckIgnoresArchivedOrNonFoundational(t *testing.T) {
	cfg := config.Default().Decay
	now := time.Now()
	l := &types.Learning{Foundational: true, Confidence: 10, TimesConfirmed: 10, TimesApplied: 10,
		ArchivedAt: &now, PromotionStatus: types.PromotionNotReady}
	require.Equal(t, types.PromotionNotReady, lifecycle.PromotionCheck(l, cfg))

	l2 := &types.Learning{Foundational: false, Confidence: 10, TimesConfirmed: 10, TimesApplied: 10,
		PromotionStatus: types.PromotionNotReady}
	require.Equal(t, types.PromotionNotReady, lifecycle.PromotionCheck(l2, cfg))
}

func TestDemoteOnRevisionFromPromoted(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	cfg := config.Default().Decay

	l := &types.Learning{Title: "t4", Content: "c4", Category: types.LearningCategoryArchitecture,
		Foundational: true, PromotionStatus: types.PromotionPromoted, TimesConfirmed: 5, ReviewAfterSessions: 90}
	require.NoError(t, db.SaveLearning(ctx, l))

	require.NoError(t, lifecycle.DemoteOnRevision(ctx, db, cfg, l.ID))

	got, err := db.GetLearning(ctx, l.ID)
	require.NoError(t, err)
	require.Equal(t, types.PromotionDemoted, got.PromotionStatus)
	require.Equal(t, 0, got.TimesConfirmed)
	require.Equal(t, cfg.ReviewAfterSessionsReset, got.ReviewAfterSessions)
	require.Equal(t, types.ReviewStatusRevised, got.ReviewStatus)
}

func TestRestoreRejectsNonWhitelistedTable(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	err := lifecycle.Restore(ctx, db, "issues", 1)
	require.Error(t, err)
}

func TestRunArchivalSweepIsIdempotentOnEmptyDB(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	cfg := config.Default().Decay
	res, err := lifecycle.RunArchivalSweep(ctx, db, cfg, 1)
	require.NoError(t, err)
	require.Equal(t, 0, res.Learnings)
	require.Equal(t, 0, res.Decisions)
	require.Equal(t, 0, res.Issues)
}

func TestDecayTemperaturesRunsCleanOnEmptyDB(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	cfg := config.Default().Decay
	require.NoError(t, lifecycle.DecayTemperatures(ctx, db, cfg, 1))
}
