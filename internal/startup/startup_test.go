package startup_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"muninn/internal/config"
	"muninn/internal/session"
	"muninn/internal/startup"
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

type fakeGitProbe struct {
	diff string
	err  error
}

func (f fakeGitProbe) Diff(ctx context.Context, projectPath string) (string, error) {
	return f.diff, f.err
}

func (f fakeGitProbe) LsRemote(ctx context.Context, projectPath string) (string, error) {
	return "", nil
}

type fakeUpdateProbe struct {
	available bool
	version   string
}

func (f fakeUpdateProbe) CheckForUpdate(ctx context.Context) (bool, string, error) {
	return f.available, f.version, nil
}

func TestStartupClassifiesGoodWithNoIssues(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	cfg := config.Default()
	p := startup.New(db, cfg, session.New(db, cfg, nil), fakeGitProbe{}, fakeUpdateProbe{})

	result, err := p.Start(ctx, 1, "/repo", "ship the thing")
	require.NoError(t, err)
	require.Equal(t, startup.HealthGood, result.SmartStatus)
	require.Contains(t, result.ResumeMarkdown, "No prior session recorded.")
	require.Contains(t, result.ResumeMarkdown, "Start the next session when ready.")
	require.True(t, result.SessionID > 0)
}

func TestStartupClassifiesCriticalOnCriticalIssue(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	require.NoError(t, db.SaveIssue(ctx, &types.Issue{ProjectID: 1, Title: "prod outage", Type: types.IssueTypeBug, Severity: 9, Status: types.IssueStatusOpen}))

	cfg := config.Default()
	p := startup.New(db, cfg, session.New(db, cfg, nil), fakeGitProbe{}, fakeUpdateProbe{})

	result, err := p.Start(ctx, 1, "/repo", "")
	require.NoError(t, err)
	require.Equal(t, startup.HealthCritical, result.SmartStatus)
}

func TestStartupClassifiesAttentionOnStaleFiles(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	cfg := config.Default()
	for i := 0; i < cfg.Startup.StaleFilesAttentionThreshold+1; i++ {
		require.NoError(t, db.SaveFile(ctx, &types.File{ProjectID: 1, Path: pathFor(i)}))
	}
	p := startup.New(db, cfg, session.New(db, cfg, nil), fakeGitProbe{}, fakeUpdateProbe{})

	result, err := p.Start(ctx, 1, "/repo", "")
	require.NoError(t, err)
	require.Equal(t, startup.HealthAttention, result.SmartStatus)
}

func TestStartupSurfacesResumePointFromLastEndedSession(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	cfg := config.Default()
	eng := session.New(db, cfg, nil)

	_, err := eng.Start(ctx, 1, "build the thing")
	require.NoError(t, err)
	_, err = eng.End(ctx, 1, session.EndParams{Outcome: "shipped v1", Files: []string{"a.go", "b.go"}, NextSteps: "write tests", Success: 2})
	require.NoError(t, err)

	p := startup.New(db, cfg, eng, fakeGitProbe{}, fakeUpdateProbe{})
	result, err := p.Start(ctx, 1, "/repo", "continue the work")
	require.NoError(t, err)
	require.Contains(t, result.ResumeMarkdown, "shipped v1")
	require.Contains(t, result.ResumeMarkdown, "a.go, b.go")
	require.Contains(t, result.ResumeMarkdown, "write tests")
}

func TestStartupSurfacesUpdateAvailable(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	cfg := config.Default()
	p := startup.New(db, cfg, session.New(db, cfg, nil), fakeGitProbe{}, fakeUpdateProbe{available: true, version: "v2.0.0"})

	result, err := p.Start(ctx, 1, "/repo", "")
	require.NoError(t, err)
	require.True(t, result.UpdateAvailable)
	require.Equal(t, "v2.0.0", result.UpdateVersion)
}

func pathFor(i int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	return "internal/pkg/" + string(letters[i%len(letters)]) + ".go"
}
