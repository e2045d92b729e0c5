// Package session implements the session engine (§4.9): start/track/end for
// one unit of developer work, learning extraction, the decision-outcome
// auto-tracker and context-injection impact classification. Grounded on the
// teacher's internal/store/local_session.go (session_history CRUD, the
// INSERT-OR-IGNORE idempotency idiom generalized here to append-without-
// duplicate tracking lists).
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"muninn/internal/config"
	"muninn/internal/insight"
	"muninn/internal/lifecycle"
	"muninn/internal/merrors"
	"muninn/internal/obslog"
	"muninn/internal/relate"
	"muninn/internal/store"
	"muninn/internal/types"
)

// learningConfidenceThreshold is the §4.9 cutoff: extracted learnings at or
// above this become first-class learnings; below it they are only linked in
// session_learnings with auto_applied=false.
const learningConfidenceThreshold = 0.7

// maxTranscriptTail is the §6 cap on the transcript slice sent to the analyzer.
const maxTranscriptTail = 12 * 1024

// ExtractedLearning is one candidate surfaced by learning extraction, either
// from the analyzer's JSON response or supplied directly by the caller (§6
// transcript-analysis prompt format).
type ExtractedLearning struct {
	Title      string
	Content    string
	Category   types.LearningCategory
	Confidence float64
}

// AnalyzeRequest is what gets sent to the external LLM collaborator (§6).
type AnalyzeRequest struct {
	Goal          string
	FilesModified []string
	TranscriptTail string
}

// AnalyzeResult is the external LLM's parsed response (§6).
type AnalyzeResult struct {
	Goal      string
	Outcome   string
	Learnings []ExtractedLearning
	NextSteps string
}

// Analyzer is the external transcript-analysis collaborator (§6); the core
// never talks to a network itself. A nil Analyzer makes Engine treat every
// End call as unanalyzed, falling back to caller-supplied learnings.
type Analyzer interface {
	Analyze(ctx context.Context, req AnalyzeRequest) (AnalyzeResult, error)
}

// Engine runs the session lifecycle for one project.
type Engine struct {
	DB       store.DatabaseAdapter
	Config   config.Config
	Analyzer Analyzer
}

// New builds a session engine. analyzer may be nil.
func New(db store.DatabaseAdapter, cfg config.Config, analyzer Analyzer) *Engine {
	return &Engine{DB: db, Config: cfg, Analyzer: analyzer}
}

// Start opens a new session (§4.9 Start): decays temperatures, inserts the
// session row, assigns session_number, increments the review/check counters
// on pending knowledge, and fires insight generation in the background if due.
func (e *Engine) Start(ctx context.Context, projectID int64, goal string) (*types.Session, error) {
	if err := lifecycle.DecayTemperatures(ctx, e.DB, e.Config.Decay, projectID); err != nil {
		return nil, fmt.Errorf("session: start decay: %w", err)
	}

	num, err := e.DB.NextSessionNumber(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("session: next session number: %w", err)
	}

	s := &types.Session{ProjectID: projectID, SessionNumber: num, Goal: goal, StartedAt: time.Now()}
	id, err := e.DB.InsertSession(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("session: insert: %w", err)
	}
	s.ID = id

	if err := e.DB.IncrementSessionsSinceOnPendingDecisions(ctx, projectID); err != nil {
		return nil, fmt.Errorf("session: increment decisions_since: %w", err)
	}
	if err := e.DB.IncrementSessionsSinceReviewOnFoundational(ctx, projectID); err != nil {
		return nil, fmt.Errorf("session: increment foundational review: %w", err)
	}

	e.fireInsightGeneration(projectID)
	return s, nil
}

// fireInsightGeneration launches insight generation in the background,
// detached from the caller's context (§4.9/§5: "launched but not awaited").
func (e *Engine) fireInsightGeneration(projectID int64) {
	db, cfg := e.DB, e.Config.Insight
	go func() {
		if err := insight.GenerateIfDue(context.Background(), db, cfg, projectID); err != nil {
			obslog.Get(obslog.CategorySession).Warn("background insight generation failed", zap.Error(err))
		}
	}()
}

// currentSession resolves the active session, passing through the store's
// merrors.ErrNoActiveSession when there is none (§4.9 tracking resolves the
// latest open session).
func (e *Engine) currentSession(ctx context.Context, projectID int64) (*types.Session, error) {
	s, err := e.DB.GetActiveSession(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// TrackFileRead appends path to files_read (set semantics, §4.9 tracking).
func (e *Engine) TrackFileRead(ctx context.Context, projectID int64, path string) error {
	return e.track(ctx, projectID, func(s *types.Session) {
		s.FilesRead = appendUniqueStr(s.FilesRead, path)
	})
}

// TrackQuery appends query to queries_made, a bounded FIFO of 50 (§4.9, §5 backpressure).
func (e *Engine) TrackQuery(ctx context.Context, projectID int64, query string) error {
	return e.track(ctx, projectID, func(s *types.Session) {
		s.QueriesMade = append(s.QueriesMade, query)
		if len(s.QueriesMade) > types.MaxQueriesMade {
			s.QueriesMade = s.QueriesMade[len(s.QueriesMade)-types.MaxQueriesMade:]
		}
	})
}

// TrackFileTouched appends path to files_touched (set semantics, §4.9 tracking).
func (e *Engine) TrackFileTouched(ctx context.Context, projectID int64, path string) error {
	return e.track(ctx, projectID, func(s *types.Session) {
		s.FilesTouched = appendUniqueStr(s.FilesTouched, path)
	})
}

// TrackDecisionMade appends decisionID to decisions_made (§4.9 tracking).
func (e *Engine) TrackDecisionMade(ctx context.Context, projectID int64, decisionID int64) error {
	return e.track(ctx, projectID, func(s *types.Session) {
		s.DecisionsMade = appendUniqueID(s.DecisionsMade, decisionID)
	})
}

// TrackIssueFound appends issueID to issues_found (§4.9 tracking).
func (e *Engine) TrackIssueFound(ctx context.Context, projectID int64, issueID int64) error {
	return e.track(ctx, projectID, func(s *types.Session) {
		s.IssuesFound = appendUniqueID(s.IssuesFound, issueID)
	})
}

// TrackIssueResolved appends issueID to issues_resolved (§4.9 tracking).
func (e *Engine) TrackIssueResolved(ctx context.Context, projectID int64, issueID int64) error {
	return e.track(ctx, projectID, func(s *types.Session) {
		s.IssuesResolved = appendUniqueID(s.IssuesResolved, issueID)
	})
}

// track resolves the active session, applies mutate, and persists the
// tracking lists; it no-ops (not an error to the caller's caller) when there
// is no active session, per §4.9.
func (e *Engine) track(ctx context.Context, projectID int64, mutate func(*types.Session)) error {
	s, err := e.currentSession(ctx, projectID)
	if err != nil {
		if errors.Is(err, merrors.ErrNoActiveSession) {
			return nil
		}
		return err
	}
	mutate(s)
	return e.DB.UpdateSessionTracking(ctx, s)
}

// EndParams is the §4.9 session_end payload.
type EndParams struct {
	Outcome        string
	Files          []string
	Learnings      []ExtractedLearning
	NextSteps      string
	Success        int // 0, 1 or 2
	Analyze        bool
	TranscriptTail string
}

// EndResult summarizes what session end produced.
type EndResult struct {
	Session      *types.Session
	LearningIDs  []int64
	DecisionsHit int
	Impacts      int
}

// End closes the active session (§4.9 End): updates the session row, updates
// file correlations, derives relationship edges, runs learning extraction,
// runs the decision-outcome auto-tracker, and classifies context-injection
// impact. Write failures here are surfaced, never swallowed (§7).
func (e *Engine) End(ctx context.Context, projectID int64, p EndParams) (*EndResult, error) {
	s, err := e.DB.GetActiveSession(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("session: end: %w", err)
	}

	for _, f := range p.Files {
		s.FilesTouched = appendUniqueStr(s.FilesTouched, f)
	}
	s.Outcome = p.Outcome
	s.NextSteps = p.NextSteps
	success := p.Success
	s.Success = &success

	candidates := p.Learnings
	analyzed := false
	if p.Analyze && e.Analyzer != nil {
		tail := p.TranscriptTail
		if len(tail) > maxTranscriptTail {
			tail = tail[len(tail)-maxTranscriptTail:]
		}
		result, aerr := e.Analyzer.Analyze(ctx, AnalyzeRequest{Goal: s.Goal, FilesModified: s.FilesTouched, TranscriptTail: tail})
		if aerr != nil {
			obslog.Get(obslog.CategorySession).Warn("transcript analysis failed", zap.Error(aerr))
		} else {
			if result.Outcome != "" {
				s.Outcome = result.Outcome
			}
			if result.NextSteps != "" {
				s.NextSteps = result.NextSteps
			}
			candidates = result.Learnings
			analyzed = true
		}
	}
	_ = analyzed

	learningIDs, err := e.processLearnings(ctx, s, candidates)
	if err != nil {
		return nil, fmt.Errorf("session: learning extraction: %w", err)
	}
	if len(learningIDs) > 0 {
		titles := make([]string, 0, len(learningIDs))
		for _, c := range candidates {
			if c.Confidence >= learningConfidenceThreshold {
				titles = append(titles, c.Title)
			}
		}
		s.Learnings = strings.Join(titles, "; ")
	}

	if err := e.DB.UpdateSessionTracking(ctx, s); err != nil {
		return nil, fmt.Errorf("%w: session: persist tracking before end: %v", merrors.ErrDBWriteFailed, err)
	}
	if err := e.DB.EndSession(ctx, s); err != nil {
		return nil, fmt.Errorf("%w: session: end: %v", merrors.ErrDBWriteFailed, err)
	}

	if err := relate.RecordCochange(ctx, e.DB, projectID, s.FilesTouched); err != nil {
		return nil, fmt.Errorf("session: record cochange: %w", err)
	}
	if err := relate.DeriveSessionRelationships(ctx, e.DB, s, learningIDs); err != nil {
		return nil, fmt.Errorf("session: derive relationships: %w", err)
	}

	decisionsHit, err := e.trackDecisionOutcomes(ctx, projectID, s)
	if err != nil {
		return nil, fmt.Errorf("session: decision outcome tracking: %w", err)
	}

	impacts, err := e.classifyImpact(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("session: impact classification: %w", err)
	}

	return &EndResult{Session: s, LearningIDs: learningIDs, DecisionsHit: decisionsHit, Impacts: impacts}, nil
}

// processLearnings applies §4.9 learning extraction: every titled candidate is
// saved as a learning (source session:{id}) and linked in session_learnings,
// whose learning_id is NOT NULL. auto_applied is true only for
// confidence>=0.7, and only those learnings' IDs are returned.
func (e *Engine) processLearnings(ctx context.Context, s *types.Session, candidates []ExtractedLearning) ([]int64, error) {
	var confident []int64
	for _, c := range candidates {
		if c.Title == "" {
			continue
		}
		l := &types.Learning{
			ProjectID:  s.ProjectID,
			Title:      c.Title,
			Content:    c.Content,
			Category:   c.Category,
			Confidence: c.Confidence,
			DecayRate:  decayRateFor(c.Category),
			Source:     fmt.Sprintf("session:%d", s.ID),
		}
		if err := e.DB.SaveLearning(ctx, l); err != nil {
			return nil, fmt.Errorf("save extracted learning %q: %w", c.Title, err)
		}
		autoApplied := c.Confidence >= learningConfidenceThreshold
		if err := e.DB.LinkSessionLearning(ctx, s.ID, l.ID, autoApplied); err != nil {
			return nil, fmt.Errorf("link session learning %q: %w", c.Title, err)
		}
		if autoApplied {
			confident = append(confident, l.ID)
		}
	}
	return confident, nil
}

func decayRateFor(cat types.LearningCategory) float64 {
	if cat == types.LearningCategoryGotcha {
		return types.GotchaDecayRate
	}
	return types.DefaultDecayRate
}

// trackDecisionOutcomes applies the §4.9 decision-outcome auto-tracker: every
// active decision in {pending, needs_review} whose affects intersects the
// session's touched files accumulates a positive/negative signal.
func (e *Engine) trackDecisionOutcomes(ctx context.Context, projectID int64, s *types.Session) (int, error) {
	if len(s.FilesTouched) == 0 {
		return 0, nil
	}
	decisions, err := e.DB.ListActiveDecisionsAffecting(ctx, projectID, s.FilesTouched, 0)
	if err != nil {
		return 0, fmt.Errorf("list active decisions: %w", err)
	}
	failedFiles, err := e.DB.FailedTestFilesForSession(ctx, s.ID)
	if err != nil {
		return 0, fmt.Errorf("failed test files: %w", err)
	}

	cfg := e.Config.Decay
	hits := 0
	for _, d := range decisions {
		if d.OutcomeStatus != types.OutcomeStatusPending && d.OutcomeStatus != types.OutcomeStatusNeedsReview {
			continue
		}
		hits++
		notes := d.OutcomeNotes
		if s.Success != nil && *s.Success == 2 {
			notes.Positive += intersectionCount(d.Affects, s.FilesTouched)
		}
		if overlapsAny(d.Affects, failedFiles) {
			notes.Negative++
		}

		status := d.OutcomeStatus
		checkAfter := d.CheckAfterSessions
		switch {
		case notes.Positive >= 3 && notes.Negative == 0:
			status = types.OutcomeStatusSucceeded
			checkAfter = cfg.CheckAfterSessionsReset
		case notes.Negative >= 2:
			status = types.OutcomeStatusNeedsReview
			checkAfter = cfg.CheckAfterSessionsReset
		}
		if err := e.DB.UpdateDecisionOutcome(ctx, d.ID, notes, status, checkAfter); err != nil {
			return hits, fmt.Errorf("update decision outcome %d: %w", d.ID, err)
		}
	}
	return hits, nil
}

// classifyImpact applies §4.9 impact classification to every context
// injection recorded during the session.
func (e *Engine) classifyImpact(ctx context.Context, s *types.Session) (int, error) {
	injections, err := e.DB.ListContextInjectionsForSession(ctx, s.ID)
	if err != nil {
		return 0, fmt.Errorf("list context injections: %w", err)
	}
	success := 1
	if s.Success != nil {
		success = *s.Success
	}
	for _, ci := range injections {
		classification := classify(ci, success)
		if err := e.DB.RecordImpact(ctx, &store.ImpactRecord{ContextInjectionID: ci.ID, Classification: classification}); err != nil {
			return 0, fmt.Errorf("record impact %d: %w", ci.ID, err)
		}
	}
	return len(injections), nil
}

func classify(ci store.ContextInjection, success int) string {
	switch {
	case !ci.WasUsed:
		return "irrelevant"
	case success == 2:
		return "helped"
	case success == 0:
		return "harmful"
	case success == 1 && ci.Relevance >= 0.5:
		return "helped"
	default:
		return "unknown"
	}
}

// overlapsAny reports whether any of haystack appears (by exact or prefix
// match, mirroring store's decision-affects matching) in needles.
func overlapsAny(haystack, needles []string) bool {
	for _, h := range haystack {
		for _, n := range needles {
			if h == n || strings.HasPrefix(n, h) || strings.HasPrefix(h, n) {
				return true
			}
		}
	}
	return false
}

// intersectionCount reports |haystack ∩ needles| (§8: a success=2 session
// touching files F must bump a decision's outcome_notes.positive by exactly
// |affects ∩ F|, not by 1 per decision). Each needle (a touched file) counts
// once if it overlaps any haystack (affects) entry, using the same exact/
// prefix matching as overlapsAny.
func intersectionCount(haystack, needles []string) int {
	n := 0
	for _, needle := range needles {
		for _, h := range haystack {
			if h == needle || strings.HasPrefix(needle, h) || strings.HasPrefix(h, needle) {
				n++
				break
			}
		}
	}
	return n
}

func appendUniqueStr(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}

func appendUniqueID(list []int64, v int64) []int64 {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}
