package session_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"muninn/internal/config"
	"muninn/internal/session"
	"muninn/internal/store"
	"muninn/internal/types"
)

// TestMain ensures session's background insight-generation goroutine never
// outlives the test run.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func openTestDB(t *testing.T) *store.SQLiteAdapter {
	t.Helper()
	db, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestStartAssignsIncrementingSessionNumbers(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	eng := session.New(db, config.Default(), nil)

	first, err := eng.Start(ctx, 1, "first goal")
	require.NoError(t, err)
	require.Equal(t, 1, first.SessionNumber)

	_, err = eng.End(ctx, 1, session.EndParams{Outcome: "done", Success: 2})
	require.NoError(t, err)

	second, err := eng.Start(ctx, 1, "second goal")
	require.NoError(t, err)
	require.Equal(t, 2, second.SessionNumber)
}

func TestTrackFileReadIsSetSemantics(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	eng := session.New(db, config.Default(), nil)

	_, err := eng.Start(ctx, 1, "goal")
	require.NoError(t, err)

	require.NoError(t, eng.TrackFileRead(ctx, 1, "a.go"))
	require.NoError(t, eng.TrackFileRead(ctx, 1, "a.go"))
	require.NoError(t, eng.TrackFileRead(ctx, 1, "b.go"))

	active, err := db.GetActiveSession(ctx, 1)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"a.go", "b.go"}, active.FilesRead)
}

func TestEndPromotesHighConfidenceLearningsOnly(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	eng := session.New(db, config.Default(), nil)

	_, err := eng.Start(ctx, 1, "refactor the parser")
	require.NoError(t, err)

	result, err := eng.End(ctx, 1, session.EndParams{
		Outcome: "refactored cleanly",
		Files:   []string{"parser.go"},
		Success: 2,
		Learnings: []session.ExtractedLearning{
			{Title: "confident pattern", Content: "do X before Y", Category: types.LearningCategoryPattern, Confidence: 0.9},
			{Title: "shaky guess", Content: "maybe Z matters", Category: types.LearningCategoryPattern, Confidence: 0.2},
		},
	})
	require.NoError(t, err)
	require.Len(t, result.LearningIDs, 1)
}

func TestEndRequiresAnActiveSession(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	eng := session.New(db, config.Default(), nil)

	_, err := eng.End(ctx, 1, session.EndParams{Outcome: "nothing to end", Success: 0})
	require.Error(t, err)
}

func TestEndRecordsCochangeBetweenTouchedFiles(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	eng := session.New(db, config.Default(), nil)

	_, err := eng.Start(ctx, 1, "goal")
	require.NoError(t, err)
	_, err = eng.End(ctx, 1, session.EndParams{
		Outcome: "done",
		Files:   []string{"a.go", "b.go"},
		Success: 2,
	})
	require.NoError(t, err)

	rows, err := db.CorrelationsAboveThreshold(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}
