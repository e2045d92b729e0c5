package insight_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"muninn/internal/config"
	"muninn/internal/insight"
	"muninn/internal/relate"
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

func TestShouldGenerateTrueWhenNeverGenerated(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	due, err := insight.ShouldGenerate(ctx, db, config.Default().Insight, 1)
	require.NoError(t, err)
	require.True(t, due)
}

func TestGenerateIfDueUpsertsCochangeInsight(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	cfg := config.Default()

	for i := 0; i < cfg.Insight.CochangeMinCount; i++ {
		require.NoError(t, relate.RecordCochange(ctx, db, 1, []string{"pkg/a/a.go", "pkg/b/b.go"}))
	}

	require.NoError(t, insight.GenerateIfDue(ctx, db, cfg.Insight, 1))

	found, err := db.ListNewInsights(ctx, 1)
	require.NoError(t, err)
	require.NotEmpty(t, found)
	require.Equal(t, types.InsightCorrelation, found[0].Type)
}

func TestGenerateIfDueUpsertsFragilityAnomaly(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	cfg := config.Default()

	require.NoError(t, db.SaveFile(ctx, &types.File{ProjectID: 1, Path: "hot.go", Fragility: 8, VelocityScore: 0.9}))

	require.NoError(t, insight.GenerateIfDue(ctx, db, cfg.Insight, 1))

	found, err := db.ListNewInsights(ctx, 1)
	require.NoError(t, err)
	require.NotEmpty(t, found)
}

func TestGenerateIfDueSkipsWhenNotDue(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	cfg := config.Default()

	require.NoError(t, db.UpsertInsight(ctx, &types.Insight{ProjectID: 1, Title: "seed", Type: types.InsightPattern, Status: types.InsightStatusNew}))

	due, err := insight.ShouldGenerate(ctx, db, cfg.Insight, 1)
	require.NoError(t, err)
	require.False(t, due)
}

func TestGenerateIfDueAutoDismissesStaleInsights(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	cfg := config.Default().Insight
	cfg.SessionsSinceDue = 0 // force due regardless of same-second timestamp granularity

	i := &types.Insight{ProjectID: 1, Title: "stale", Type: types.InsightPattern, Status: types.InsightStatusNew}
	require.NoError(t, db.UpsertInsight(ctx, i))
	for n := 0; n < types.AutoDismissShownCount; n++ {
		require.NoError(t, db.UpsertInsight(ctx, i))
	}

	require.NoError(t, insight.GenerateIfDue(ctx, db, cfg, 1))

	found, err := db.ListNewInsights(ctx, 1)
	require.NoError(t, err)
	for _, ins := range found {
		require.NotEqual(t, "stale", ins.Title)
	}
}
