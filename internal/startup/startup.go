// Package startup implements the C11 startup planner (§4.11): a single
// Start call fans out every independent resume-query read concurrently under
// a hard budget, then sequentially bootstraps a fresh session, producing a
// ranked "required actions" resume packet and a coarse health classification.
// Grounded on the teacher's internal/tools/registry.go Execute timing idiom,
// generalized with errgroup the same way internal/enrich's engine fans out
// enrichers -- no single teacher file performs this exact read fan-out.
package startup

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"muninn/internal/config"
	"muninn/internal/obslog"
	"muninn/internal/session"
	"muninn/internal/store"
	"muninn/internal/types"
)

// Health is the §4.11 coarse project-health classification.
type Health string

const (
	HealthGood      Health = "good"
	HealthAttention Health = "attention"
	HealthCritical  Health = "critical"
)

// criticalIssueSeverity is the minimum severity that counts as "critical" for
// both the resume digest and the health classification.
const criticalIssueSeverity = 8

// Result is the single-pass §4.11 return contract.
type Result struct {
	ResumeMarkdown   string
	SmartStatus      Health
	SessionID        int64
	UpdateAvailable  bool
	UpdateVersion    string
	Warnings         []string
}

// Planner runs the startup sequence for one project. GitProbe and
// UpdateProbe are optional external collaborators (§1 out of scope,
// §5 explicit subprocess timeouts); a nil value degrades that one field to
// empty/fail-open without failing the whole call.
type Planner struct {
	DB            store.DatabaseAdapter
	Config        config.Config
	Session       *session.Engine
	GitProbe      types.GitProbe
	UpdateProbe   types.UpdateProbe
	updateCacheMu sync.Mutex
	lastUpdateAt  time.Time
	lastUpdate    updateCacheEntry
}

type updateCacheEntry struct {
	available bool
	version   string
}

// New builds a startup planner from its collaborators.
func New(db store.DatabaseAdapter, cfg config.Config, sessionEngine *session.Engine, git types.GitProbe, update types.UpdateProbe) *Planner {
	return &Planner{DB: db, Config: cfg, Session: sessionEngine, GitProbe: git, UpdateProbe: update}
}

// reads is the snapshot every concurrent query fills in; zero values are the
// fail-open default for any read that errors or times out (§7 SubprocessFailure/Timeout).
type reads struct {
	lastSession        *types.Session
	decisionsDue       []*types.Decision
	newInsights        []*types.Insight
	foundationalDue    []*types.Learning
	fragileHotFiles    []*types.File
	criticalIssueCount int
	ongoingSession     bool
	allFragileFiles    []*types.File
	lastEndedSession   *types.Session
	techDebt           []*types.Issue
	openIssueCount     int
	highFragilityCount int
	recentObs          []string
	staleFileCount     int
	gitDiff            string
	updateAvailable    bool
	updateVersion      string
}

// Start runs the full §4.11 sequence: parallel resume-query fan-out under the
// configured hard budget, then sequential temperature decay + session
// bootstrap, with insight generation launched but not awaited.
func (p *Planner) Start(ctx context.Context, projectID int64, projectPath, goal string) (*Result, error) {
	budgetCtx, cancel := context.WithTimeout(ctx, p.Config.Startup.Budget)
	defer cancel()

	r, warnings := p.fanOutReads(budgetCtx, projectID, projectPath)

	s, err := p.Session.Start(ctx, projectID, goal)
	if err != nil {
		return nil, fmt.Errorf("startup: session bootstrap: %w", err)
	}

	health := classify(r, p.Config.Startup)
	md := renderResume(r, s, health)

	return &Result{
		ResumeMarkdown:  md,
		SmartStatus:     health,
		SessionID:       s.ID,
		UpdateAvailable: r.updateAvailable,
		UpdateVersion:   r.updateVersion,
		Warnings:        warnings,
	}, nil
}

// fanOutReads issues every independent read concurrently (§4.11, §5: each is
// an I/O-bound task that may suspend at its own SQL call or subprocess).
// Every individual failure is isolated: it degrades that one field and is
// surfaced as a warning, never aborting the rest of the plan.
func (p *Planner) fanOutReads(ctx context.Context, projectID int64, projectPath string) (*reads, []string) {
	r := &reads{}
	var mu sync.Mutex
	var warnings []string
	warn := func(field string, err error) {
		mu.Lock()
		warnings = append(warnings, fmt.Sprintf("%s: %v", field, err))
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		v, err := p.DB.GetLastSession(gctx, projectID)
		if err != nil {
			warn("last session", err)
			return nil
		}
		mu.Lock()
		r.lastSession = v
		mu.Unlock()
		return nil
	})
	g.Go(func() error {
		v, err := p.DB.ListDecisionsDue(gctx, projectID)
		if err != nil {
			warn("decisions due", err)
			return nil
		}
		mu.Lock()
		r.decisionsDue = v
		mu.Unlock()
		return nil
	})
	g.Go(func() error {
		v, err := p.DB.ListNewInsights(gctx, projectID)
		if err != nil {
			warn("new insights", err)
			return nil
		}
		mu.Lock()
		r.newInsights = v
		mu.Unlock()
		return nil
	})
	g.Go(func() error {
		v, err := p.DB.ListFoundationalDue(gctx, projectID)
		if err != nil {
			warn("foundational due", err)
			return nil
		}
		mu.Lock()
		r.foundationalDue = v
		mu.Unlock()
		return nil
	})
	g.Go(func() error {
		v, err := p.DB.ListFragileHotFiles(gctx, projectID, p.Config.Fragility.WarnThreshold)
		if err != nil {
			warn("fragile hot files", err)
			return nil
		}
		mu.Lock()
		r.fragileHotFiles = v
		mu.Unlock()
		return nil
	})
	g.Go(func() error {
		v, err := p.DB.CountCriticalIssues(gctx, projectID, criticalIssueSeverity)
		if err != nil {
			warn("critical issues", err)
			return nil
		}
		mu.Lock()
		r.criticalIssueCount = v
		mu.Unlock()
		return nil
	})
	g.Go(func() error {
		v, err := p.DB.CountOngoingSession(gctx, projectID)
		if err != nil {
			warn("ongoing session", err)
			return nil
		}
		mu.Lock()
		r.ongoingSession = v
		mu.Unlock()
		return nil
	})
	g.Go(func() error {
		v, err := p.DB.ListAllFragileFiles(gctx, projectID, p.Config.Fragility.WarnThreshold)
		if err != nil {
			warn("all fragile files", err)
			return nil
		}
		mu.Lock()
		r.allFragileFiles = v
		mu.Unlock()
		return nil
	})
	g.Go(func() error {
		v, err := p.DB.GetLastEndedSession(gctx, projectID)
		if err != nil {
			warn("last ended session", err)
			return nil
		}
		mu.Lock()
		r.lastEndedSession = v
		mu.Unlock()
		return nil
	})
	g.Go(func() error {
		v, err := p.DB.TechDebtList(gctx, projectID, 10)
		if err != nil {
			warn("tech debt", err)
			return nil
		}
		mu.Lock()
		r.techDebt = v
		mu.Unlock()
		return nil
	})
	g.Go(func() error {
		v, err := p.DB.CountOpenIssues(gctx, projectID)
		if err != nil {
			warn("open issue count", err)
			return nil
		}
		mu.Lock()
		r.openIssueCount = v
		mu.Unlock()
		return nil
	})
	g.Go(func() error {
		v, err := p.DB.CountHighFragility(gctx, projectID, p.Config.Fragility.SoftThreshold)
		if err != nil {
			warn("high fragility count", err)
			return nil
		}
		mu.Lock()
		r.highFragilityCount = v
		mu.Unlock()
		return nil
	})
	g.Go(func() error {
		v, err := p.DB.RecentObservations(gctx, projectID, 5)
		if err != nil {
			warn("recent observations", err)
			return nil
		}
		mu.Lock()
		r.recentObs = v
		mu.Unlock()
		return nil
	})
	g.Go(func() error {
		v, err := p.DB.CountStaleFiles(gctx, projectID, 90)
		if err != nil {
			warn("stale file count", err)
			return nil
		}
		mu.Lock()
		r.staleFileCount = v
		mu.Unlock()
		return nil
	})
	g.Go(func() error {
		diff := p.probeGitDiff(gctx, projectPath)
		mu.Lock()
		r.gitDiff = diff
		mu.Unlock()
		return nil
	})
	g.Go(func() error {
		available, version := p.probeUpdate(gctx)
		mu.Lock()
		r.updateAvailable = available
		r.updateVersion = version
		mu.Unlock()
		return nil
	})

	_ = g.Wait()
	return r, warnings
}

// probeGitDiff runs `git diff` (via the injected collaborator) with the
// configured timeout; a timeout or missing probe yields an empty diff, never
// a failure of the wrapping call (§5, §7 SubprocessFailure/Timeout).
func (p *Planner) probeGitDiff(ctx context.Context, projectPath string) string {
	if p.GitProbe == nil {
		return ""
	}
	cctx, cancel := context.WithTimeout(ctx, p.Config.Startup.GitTimeout)
	defer cancel()
	diff, err := p.GitProbe.Diff(cctx, projectPath)
	if err != nil {
		obslog.Get(obslog.CategoryStartup).Debug("git diff probe failed", zap.Error(err))
		return ""
	}
	return diff
}

// probeUpdate checks for a newer release, cached for Config.Startup.UpdateCheckCache
// and fail-open on any error (§4.11, §5).
func (p *Planner) probeUpdate(ctx context.Context) (bool, string) {
	if p.UpdateProbe == nil {
		return false, ""
	}
	p.updateCacheMu.Lock()
	if !p.lastUpdateAt.IsZero() && time.Since(p.lastUpdateAt) < p.Config.Startup.UpdateCheckCache {
		cached := p.lastUpdate
		p.updateCacheMu.Unlock()
		return cached.available, cached.version
	}
	p.updateCacheMu.Unlock()

	available, version, err := p.UpdateProbe.CheckForUpdate(ctx)
	if err != nil {
		obslog.Get(obslog.CategoryStartup).Debug("update check failed", zap.Error(err))
		return false, ""
	}

	p.updateCacheMu.Lock()
	p.lastUpdateAt = time.Now()
	p.lastUpdate = updateCacheEntry{available: available, version: version}
	p.updateCacheMu.Unlock()
	return available, version
}

// classify applies the §4.11 health rule: critical if any critical issues;
// else attention if open issues / stale files / high fragility exceed their
// configured thresholds; else good.
func classify(r *reads, cfg config.StartupConfig) Health {
	if r.criticalIssueCount > 0 {
		return HealthCritical
	}
	if r.openIssueCount > cfg.OpenIssuesAttentionThreshold ||
		r.staleFileCount > cfg.StaleFilesAttentionThreshold ||
		r.highFragilityCount > cfg.HighFragilityAttentionThreshold {
		return HealthAttention
	}
	return HealthGood
}

// renderResume assembles the §4.11 resume markdown: a required-actions
// section when anything is due, a fragile-hot-files warning block, a resume
// point summarizing the last session, and a trailing start-next-session cue.
func renderResume(r *reads, s *types.Session, health Health) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Muninn Resume (session #%d, status: %s)\n\n", s.SessionNumber, health)

	if len(r.decisionsDue) > 0 || len(r.newInsights) > 0 || len(r.foundationalDue) > 0 {
		b.WriteString("## Required actions\n")
		for _, d := range r.decisionsDue {
			fmt.Fprintf(&b, "- Review decision outcome: %s (%s)\n", d.Title, d.OutcomeStatus)
		}
		for _, i := range r.newInsights {
			fmt.Fprintf(&b, "- New insight: %s (%s, conf %.2f)\n", i.Title, i.Type, i.Confidence)
		}
		for _, l := range r.foundationalDue {
			fmt.Fprintf(&b, "- Foundational learning due review: %s\n", l.Title)
		}
		b.WriteString("\n")
	}

	if len(r.fragileHotFiles) > 0 {
		b.WriteString("## Warnings\n")
		sort.Slice(r.fragileHotFiles, func(i, j int) bool { return r.fragileHotFiles[i].Fragility > r.fragileHotFiles[j].Fragility })
		for _, f := range r.fragileHotFiles {
			fmt.Fprintf(&b, "- %s is hot and fragility %d/10\n", f.Path, f.Fragility)
		}
		b.WriteString("\n")
	}

	if r.ongoingSession {
		b.WriteString("## Note\nAn unended session was found from a prior run.\n\n")
	}

	b.WriteString("## Resume point\n")
	if r.lastEndedSession != nil {
		fmt.Fprintf(&b, "Last session #%d goal: %s\n", r.lastEndedSession.SessionNumber, r.lastEndedSession.Goal)
		if r.lastEndedSession.Outcome != "" {
			fmt.Fprintf(&b, "Outcome: %s\n", r.lastEndedSession.Outcome)
		}
		if len(r.lastEndedSession.FilesTouched) > 0 {
			fmt.Fprintf(&b, "Files touched: %s\n", strings.Join(r.lastEndedSession.FilesTouched, ", "))
		}
		if r.lastEndedSession.NextSteps != "" {
			b.WriteString("Next steps:\n")
			for _, step := range strings.Split(r.lastEndedSession.NextSteps, "\n") {
				step = strings.TrimSpace(step)
				if step == "" {
					continue
				}
				fmt.Fprintf(&b, "- %s\n", step)
			}
		}
	} else {
		b.WriteString("No prior session recorded.\n")
	}

	if len(r.recentObs) > 0 {
		b.WriteString("\nRecent observations:\n")
		for _, o := range r.recentObs {
			fmt.Fprintf(&b, "- %s\n", o)
		}
	}

	if len(r.techDebt) > 0 {
		b.WriteString("\nOpen tech debt:\n")
		for _, i := range r.techDebt {
			fmt.Fprintf(&b, "- #%d %s (sev %d)\n", i.ID, i.Title, i.Severity)
		}
	}

	if r.gitDiff != "" {
		b.WriteString("\nUncommitted changes detected.\n")
	}

	b.WriteString(fmt.Sprintf("\nTracked fragile files: %d, stale files: %d, high-fragility files: %d, open issues: %d.\n",
		len(r.allFragileFiles), r.staleFileCount, r.highFragilityCount, r.openIssueCount))

	b.WriteString("\nStart the next session when ready.\n")
	return b.String()
}
