package relate_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"muninn/internal/config"
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

func TestRecordCochangeRequiresAtLeastTwoFiles(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	require.NoError(t, relate.RecordCochange(ctx, db, 1, []string{"a.go"}))

	rows, err := db.CorrelationsAboveThreshold(ctx, 1, 0)
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestRecordCochangeUpsertsUnorderedPairs(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	require.NoError(t, relate.RecordCochange(ctx, db, 1, []string{"b.go", "a.go"}))

	rows, err := db.CorrelationsAboveThreshold(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "a.go", rows[0].FileA)
	require.Equal(t, "b.go", rows[0].FileB)
	require.Equal(t, 1, rows[0].CochangeCount)
}

func TestComputeBlastRadiusWalksDependentsBFS(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	require.NoError(t, db.SaveFile(ctx, &types.File{ProjectID: 1, Path: "core.go", Dependents: []string{"handler.go"}}))
	require.NoError(t, db.SaveFile(ctx, &types.File{ProjectID: 1, Path: "handler.go", Dependents: []string{"handler_test.go"}, Type: types.FileTypeService}))
	require.NoError(t, db.SaveFile(ctx, &types.File{ProjectID: 1, Path: "handler_test.go", Type: types.FileTypeTest}))

	cfg := config.Default().BlastRadius
	require.NoError(t, relate.ComputeBlastRadius(ctx, db, cfg, 1))

	summary, err := relate.Summarize(ctx, db, cfg, 1, "core.go")
	require.NoError(t, err)
	require.Equal(t, 1, summary.DirectDependents)
	require.Equal(t, 1, summary.TransitiveDependents)
	require.Equal(t, 1, summary.AffectedTests)
	require.Equal(t, cfg.DirectWeight+cfg.TransitiveWeight+cfg.TestsWeight, summary.BlastScore)
}

func TestBlastScoreClampsAtHundred(t *testing.T) {
	cfg := config.Default().BlastRadius
	s := &types.BlastSummary{DirectDependents: 100}
	require.Equal(t, 100, relate.Score(s, cfg))
}

func TestDeriveSessionRelationshipsInsertsEdges(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	s := &types.Session{ID: 1, ProjectID: 1, DecisionsMade: []int64{10}, IssuesFound: []int64{20}, IssuesResolved: []int64{30}}
	require.NoError(t, relate.DeriveSessionRelationships(ctx, db, s, []int64{40}))
}
