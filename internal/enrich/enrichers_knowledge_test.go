package enrich_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"muninn/internal/cache"
	"muninn/internal/config"
	"muninn/internal/enrich"
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

func newEngine(t *testing.T, db store.DatabaseAdapter) *enrich.Engine {
	t.Helper()
	return enrich.New(db, cache.New(100), config.Default())
}

func TestEnrichSurfacesLearningsAndGotcha(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	require.NoError(t, db.SaveFile(ctx, &types.File{ProjectID: 1, Path: "internal/auth/login.go", Fragility: 2, Type: types.FileTypeService}))
	require.NoError(t, db.SaveFile(ctx, &types.File{ProjectID: 1, Path: "internal/auth/handler.go", Dependents: []string{"internal/auth/login.go"}}))

	require.NoError(t, db.SaveLearning(ctx, &types.Learning{
		ProjectID: 1, Title: "auth retries", Content: "retry login on 429", Context: "rate limit",
		Category: types.LearningCategoryPattern, Confidence: 8, DecayRate: 0.05, Temperature: types.TemperatureHot,
		CreatedAt: time.Now(),
	}))
	require.NoError(t, db.SaveLearning(ctx, &types.Learning{
		ProjectID: 1, Title: "login gotcha", Content: "never log the raw token", Context: "security",
		Category: types.LearningCategoryGotcha, Confidence: 9, DecayRate: 0.02, Temperature: types.TemperatureWarm,
		CreatedAt: time.Now(),
	}))

	cfg := config.Default()
	require.NoError(t, db.SaveFile(ctx, &types.File{ProjectID: 1, Path: "internal/auth/handler_test.go", Type: types.FileTypeTest}))
	require.NoError(t, db.SaveFile(ctx, &types.File{ProjectID: 1, Path: "internal/auth/login.go", Fragility: 2, Dependents: []string{"internal/auth/handler_test.go"}}))

	e := enrich.New(db, cache.New(100), cfg)
	result, err := e.Enrich(ctx, 1, "/repo", "Edit", map[string]any{
		"file_path": "internal/auth/login.go",
	})
	require.NoError(t, err)
	require.Contains(t, result.Context, "login gotcha")
	require.Contains(t, result.EnrichersUsed, "learnings")
}

func TestEnrichEmptyForNoFilesNoPatternNoCommand(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	e := newEngine(t, db)

	result, err := e.Enrich(ctx, 1, "/repo", "Read", map[string]any{})
	require.NoError(t, err)
	require.Equal(t, "", result.Context)
}

func TestEnrichHardBlockOnCriticalFragility(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	require.NoError(t, db.SaveFile(ctx, &types.File{ProjectID: 1, Path: "internal/core/engine.go", Fragility: 9}))

	e := newEngine(t, db)
	result, err := e.Enrich(ctx, 1, "/repo", "Edit", map[string]any{"file_path": "internal/core/engine.go"})
	require.NoError(t, err)
	require.NotNil(t, result.Blocked)
	require.Equal(t, types.BlockHard, result.Blocked.Level)
	require.NotEmpty(t, result.Blocked.OperationID)
	require.Contains(t, result.Context, "muninn approve "+result.Blocked.OperationID)
}

func TestEnrichOrdersIssuesBySeverityDescending(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	require.NoError(t, db.SaveFile(ctx, &types.File{ProjectID: 1, Path: "internal/jobs/worker.go"}))
	require.NoError(t, db.SaveIssue(ctx, &types.Issue{ProjectID: 1, Title: "minor lint", Type: types.IssueTypeBug, Severity: 2, Status: types.IssueStatusOpen, AffectedFiles: []string{"internal/jobs/worker.go"}}))
	require.NoError(t, db.SaveIssue(ctx, &types.Issue{ProjectID: 1, Title: "data race", Type: types.IssueTypeBug, Severity: 7, Status: types.IssueStatusOpen, AffectedFiles: []string{"internal/jobs/worker.go"}}))

	e := newEngine(t, db)
	result, err := e.Enrich(ctx, 1, "/repo", "Edit", map[string]any{"file_path": "internal/jobs/worker.go"})
	require.NoError(t, err)
	require.True(t, strIndex(result.Context, "data race") < strIndex(result.Context, "minor lint"))
}

func strIndex(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}
