// Package store defines the DatabaseAdapter contract the rest of Muninn's core
// is built against (§1: "the schema-migration and SQLite/WAL setup" are a given
// collaborator) and ships one concrete SQLite-backed implementation of it,
// because the module needs something that actually runs.
//
// Every method is safe to call concurrently; SQLiteAdapter serializes access
// with a single *sql.DB configured for one connection (§5: the database is the
// serialization point, WAL + busy-timeout handle retries).
package store

import (
	"context"
	"time"

	"muninn/internal/types"
)

// DatabaseAdapter is the full surface the enrichment pipeline, knowledge
// lifecycle, session engine and startup planner are written against.
type DatabaseAdapter interface {
	Close() error

	// Files
	GetFile(ctx context.Context, projectID int64, path string) (*types.File, error)
	SaveFile(ctx context.Context, f *types.File) error
	ListFragileHotFiles(ctx context.Context, projectID int64, minFragility int) ([]*types.File, error)
	ListAllFragileFiles(ctx context.Context, projectID int64, minFragility int) ([]*types.File, error)
	CountStaleFiles(ctx context.Context, projectID int64, staleDays int) (int, error)
	CountHighFragility(ctx context.Context, projectID int64, minFragility int) (int, error)
	DecayFileTemperatures(ctx context.Context, projectID int64, coldThreshold, warmLow, warmHigh int) error
	HeatFile(ctx context.Context, projectID int64, path string) error
	IncrementFileChangeCount(ctx context.Context, projectID int64, path string) error
	FileGraph(ctx context.Context, projectID int64) (map[string]*types.File, error)

	// Decisions
	GetDecisionByTitle(ctx context.Context, projectID int64, title string) (*types.Decision, error)
	SaveDecision(ctx context.Context, d *types.Decision) error
	ListActiveDecisionsAffecting(ctx context.Context, projectID int64, paths []string, limit int) ([]*types.Decision, error)
	ListDecisionsDue(ctx context.Context, projectID int64) ([]*types.Decision, error)
	IncrementSessionsSinceOnPendingDecisions(ctx context.Context, projectID int64) error
	UpdateDecisionOutcome(ctx context.Context, id int64, notes types.OutcomeNotes, status types.OutcomeStatus, checkAfterSessions int) error
	DecayDecisionTemperatures(ctx context.Context, projectID int64, coldThreshold, warmLow, warmHigh int) error
	ArchiveFailedDecisionsOlderThan(ctx context.Context, projectID int64, days int) (int, error)
	RestoreDecision(ctx context.Context, id int64) error

	// Test results
	RecordTestResult(ctx context.Context, sessionID int64, filePath string, passed bool) error
	FailedTestFilesForSession(ctx context.Context, sessionID int64) ([]string, error)

	// Issues
	SaveIssue(ctx context.Context, i *types.Issue) error
	ListOpenIssuesForFiles(ctx context.Context, projectID int64, paths []string, limit int) ([]*types.Issue, error)
	CountOpenIssues(ctx context.Context, projectID int64) (int, error)
	CountCriticalIssues(ctx context.Context, projectID int64, minSeverity int) (int, error)
	ArchiveResolvedIssuesOlderThan(ctx context.Context, projectID int64, days int) (int, error)
	DecayIssueTemperatures(ctx context.Context, projectID int64, coldThreshold, warmLow, warmHigh int) error

	// Learnings
	SaveLearning(ctx context.Context, l *types.Learning) error
	GetLearning(ctx context.Context, id int64) (*types.Learning, error)
	SearchLearnings(ctx context.Context, projectID int64, terms []string, limit int) ([]*types.Learning, error)
	GetGotchaLearnings(ctx context.Context, projectID int64, limit int) ([]*types.Learning, error)
	ListFoundationalDue(ctx context.Context, projectID int64) ([]*types.Learning, error)
	ReinforceLearning(ctx context.Context, id int64) error
	ReduceLearningConfidence(ctx context.Context, id int64) error
	FlagLearningForReview(ctx context.Context, id int64, reviewAfterSessions int) error
	ConfirmFoundationalLearning(ctx context.Context, id int64, reviewAfterCap, reviewAfterStep int) error
	DemoteOnRevision(ctx context.Context, id int64, reviewAfterReset int) error
	InsertLearningVersion(ctx context.Context, l *types.Learning) error
	DecayLearningTemperatures(ctx context.Context, projectID int64, coldThreshold, warmLow, warmHigh int) error
	ArchiveStaleLearnings(ctx context.Context, projectID int64, confidenceAgeDays, staleAgeDays int) (int, error)
	RestoreLearning(ctx context.Context, id int64) error
	IncrementSessionsSinceReviewOnFoundational(ctx context.Context, projectID int64) error

	// Sessions
	NextSessionNumber(ctx context.Context, projectID int64) (int, error)
	InsertSession(ctx context.Context, s *types.Session) (int64, error)
	GetActiveSession(ctx context.Context, projectID int64) (*types.Session, error)
	GetSession(ctx context.Context, id int64) (*types.Session, error)
	GetLastSession(ctx context.Context, projectID int64) (*types.Session, error)
	GetLastEndedSession(ctx context.Context, projectID int64) (*types.Session, error)
	UpdateSessionTracking(ctx context.Context, s *types.Session) error
	EndSession(ctx context.Context, s *types.Session) error
	LinkSessionLearning(ctx context.Context, sessionID, learningID int64, autoApplied bool) error
	LinkDecisionLearning(ctx context.Context, decisionID, learningID int64, contribution string) error
	ListInfluencedLearnings(ctx context.Context, decisionID int64) ([]int64, error)
	ToolCallFilesInvolved(ctx context.Context, sessionID int64) ([]string, error)

	// Relationships & correlations
	InsertRelationship(ctx context.Context, r *types.Relationship) error
	UpsertFileCorrelation(ctx context.Context, projectID int64, fileA, fileB string) error
	TopCorrelatedFiles(ctx context.Context, projectID int64, files []string, limit int) ([]string, error)
	CorrelationsAboveThreshold(ctx context.Context, projectID int64, threshold int) ([]*types.FileCorrelation, error)
	CountCorrelationUpdatesSince(ctx context.Context, projectID int64, since time.Time) (int, error)

	// Blast radius
	SaveBlastRadius(ctx context.Context, projectID int64, rows []*types.BlastRadius) error
	GetBlastSummary(ctx context.Context, projectID int64, file string) (*types.BlastSummary, error)
	TestEdgeFor(ctx context.Context, projectID int64, file string) (string, bool, error)
	BlastTestFiles(ctx context.Context, projectID int64, file string, limit int) ([]string, error)

	// Code intel (externally populated, read-only per §1 Non-goals)
	SymbolExportCount(ctx context.Context, projectID int64, file string) (int, error)
	CallerStats(ctx context.Context, projectID int64, file string) (callerCount int, callerFiles []string, err error)
	MappedTestCount(ctx context.Context, projectID int64, file string) (int, error)

	// Pending approvals
	CreatePendingApproval(ctx context.Context, a *types.PendingApproval) error
	Approve(ctx context.Context, operationID string) (bool, error)
	IsApproved(ctx context.Context, operationID string) (bool, error)

	// Enrichment metrics
	RecordMetric(ctx context.Context, m *types.EnrichmentMetric) error

	// Insights
	UpsertInsight(ctx context.Context, i *types.Insight) error
	ListNewInsights(ctx context.Context, projectID int64) ([]*types.Insight, error)
	AutoDismissStaleInsights(ctx context.Context, projectID int64, shownCountThreshold int) (int, error)
	LastInsightGeneratedAt(ctx context.Context, projectID int64) (*time.Time, error)
	CountEndedSessionsSince(ctx context.Context, projectID int64, since *time.Time) (int, error)
	CountNewDecisionsSince(ctx context.Context, projectID int64, since *time.Time) (int, error)
	RecentSessionsTouchedFiles(ctx context.Context, projectID int64, limit int) ([][]string, []bool, error)
	WorkflowsStaleOrUnused(ctx context.Context, projectID int64, staleDays, minUses int) ([]string, error)
	ReviewedDecisionOutcomeCounts(ctx context.Context, projectID int64) (succeeded, failed, reviewed int, err error)

	// Archival
	ArchiveKnowledge(ctx context.Context, sourceTable string, sourceID int64, title, content, reason string) error

	// Context injection / impact tracking
	ListContextInjectionsForSession(ctx context.Context, sessionID int64) ([]ContextInjection, error)
	RecordImpact(ctx context.Context, impact *ImpactRecord) error
	RecordContextInjection(ctx context.Context, ci *ContextInjection) (int64, error)

	// Misc reads used by the startup planner
	CountOngoingSession(ctx context.Context, projectID int64) (bool, error)
	RecentObservations(ctx context.Context, projectID int64, limit int) ([]string, error)
	TechDebtList(ctx context.Context, projectID int64, limit int) ([]*types.Issue, error)
}

// ContextInjection is a read/write row tracking one enrichment packet injected
// during a session, consumed at session end for impact classification (§4.9).
type ContextInjection struct {
	ID         int64
	SessionID  int64
	EnricherName string
	WasUsed    bool
	Relevance  float64
}

// ImpactRecord is one classified outcome of a context injection (§4.9).
type ImpactRecord struct {
	ContextInjectionID int64
	Classification      string // irrelevant|helped|harmful|unknown
}
