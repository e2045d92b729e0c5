package enrich

import (
	"context"
	"math"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"muninn/internal/cache"
	"muninn/internal/format"
	"muninn/internal/relate"
	"muninn/internal/types"
)

// temperatureRank orders the three-valued recency class for sort tiebreaking
// (hot < warm < cold, §4.5 learnings/decisions ordering).
func temperatureRank(t types.Temperature) int {
	switch t {
	case types.TemperatureHot:
		return 0
	case types.TemperatureWarm:
		return 1
	default:
		return 2
	}
}

// effectiveConfidence applies the §4.5 decay kernel:
// eff = confidence * exp(-decay_rate * days_since(last_reinforced_at ?? created_at)).
func effectiveConfidence(l *types.Learning) float64 {
	since := l.CreatedAt
	if l.LastReinforcedAt != nil {
		since = *l.LastReinforcedAt
	}
	days := time.Since(since).Hours() / 24
	if days < 0 {
		days = 0
	}
	return l.Confidence * math.Exp(-l.DecayRate*days)
}

// searchTerms derives FTS/LIKE search terms from path segments (length >= 3)
// plus basenames, per §4.5 the learnings enricher.
func searchTerms(paths []string) []string {
	seen := map[string]bool{}
	var terms []string
	add := func(s string) {
		s = strings.ToLower(strings.TrimSpace(s))
		if len(s) < 3 || seen[s] {
			return
		}
		seen[s] = true
		terms = append(terms, s)
	}
	for _, p := range paths {
		base := filepath.Base(p)
		add(strings.TrimSuffix(base, filepath.Ext(base)))
		for _, seg := range strings.FieldsFunc(p, func(r rune) bool {
			return r == '/' || r == '.' || r == '_' || r == '-'
		}) {
			add(seg)
		}
	}
	return terms
}

// learningsEnricher injects up to 5 relevant learnings, always including up
// to 2 gotchas, ordered by temperature then effective confidence, capping
// cold items so hot/warm take priority (priority 30, §4.5).
func learningsEnricher(ctx context.Context, ec *EnrichContext) (string, error) {
	terms := searchTerms(ec.Input.Files)
	if ec.Input.Pattern != "" {
		terms = append(terms, searchTerms([]string{ec.Input.Pattern})...)
	}

	cacheKey := cache.LearningKey(ec.Input.ProjectID, strings.Join(terms, ","))
	var matched []*types.Learning
	if v, ok := ec.Cache.Get(cacheKey); ok {
		if ls, ok := v.([]*types.Learning); ok {
			matched = ls
		}
	} else {
		ls, err := ec.DB.SearchLearnings(ctx, ec.Input.ProjectID, terms, 20)
		if err == nil {
			matched = ls
			ec.Cache.Set(cacheKey, ls, ec.Config.Cache.DefaultTTL)
		}
	}

	gotchas, err := ec.DB.GetGotchaLearnings(ctx, ec.Input.ProjectID, 2)
	if err != nil {
		gotchas = nil
	}

	byID := make(map[int64]*types.Learning)
	for _, l := range matched {
		byID[l.ID] = l
	}
	for _, l := range gotchas {
		byID[l.ID] = l
	}
	var all []*types.Learning
	for _, l := range byID {
		all = append(all, l)
	}

	sort.SliceStable(all, func(i, j int) bool {
		ti, tj := temperatureRank(all[i].Temperature), temperatureRank(all[j].Temperature)
		if ti != tj {
			return ti < tj
		}
		return effectiveConfidence(all[i]) > effectiveConfidence(all[j])
	})

	const maxTotal = 5
	var chosen []*types.Learning
	coldBudget := 2 // cap cold items so hot/warm get priority
	for _, l := range all {
		if len(chosen) >= maxTotal {
			break
		}
		if temperatureRank(l.Temperature) == 2 {
			if coldBudget <= 0 {
				continue
			}
			coldBudget--
		}
		chosen = append(chosen, l)
	}

	var records []string
	for _, l := range chosen {
		records = append(records, format.LearningRecord(string(l.Category), []string{l.Title}, "", l.Content, l.Context, effectiveConfidence(l)))
	}
	return strings.Join(records, "\n"), nil
}

// issuesEnricher injects up to 3 open issues per file ordered by severity
// descending (priority 40, §4.5).
func issuesEnricher(ctx context.Context, ec *EnrichContext) (string, error) {
	issues, err := ec.DB.ListOpenIssuesForFiles(ctx, ec.Input.ProjectID, ec.Input.Files, 20)
	if err != nil || len(issues) == 0 {
		return "", nil
	}
	sort.SliceStable(issues, func(i, j int) bool { return issues[i].Severity > issues[j].Severity })
	if len(issues) > 3 {
		issues = issues[:3]
	}
	var records []string
	for _, i := range issues {
		records = append(records, format.IssueRecord(i.ID, i.Severity, string(i.Type), i.Title))
	}
	return strings.Join(records, "\n"), nil
}

// decisionsEnricher injects up to 3 active decisions affecting any input
// file, failed outcomes first, then temperature, then decided_at desc
// (priority 50, §4.5).
func decisionsEnricher(ctx context.Context, ec *EnrichContext) (string, error) {
	decisions, err := ec.DB.ListActiveDecisionsAffecting(ctx, ec.Input.ProjectID, ec.Input.Files, 20)
	if err != nil || len(decisions) == 0 {
		return "", nil
	}
	sort.SliceStable(decisions, func(i, j int) bool {
		fi, fj := decisions[i].OutcomeStatus == types.OutcomeStatusFailed, decisions[j].OutcomeStatus == types.OutcomeStatusFailed
		if fi != fj {
			return fi
		}
		ti, tj := temperatureRank(decisions[i].Temperature), temperatureRank(decisions[j].Temperature)
		if ti != tj {
			return ti < tj
		}
		return decisions[i].DecidedAt.After(decisions[j].DecidedAt)
	})
	if len(decisions) > 3 {
		decisions = decisions[:3]
	}
	var records []string
	for _, d := range decisions {
		why := d.Reasoning
		if d.OutcomeStatus == types.OutcomeStatusFailed {
			why = format.Truncate(why, format.ContentCap-20) +
				" notes:pos=" + strconv.Itoa(d.OutcomeNotes.Positive) + ",neg=" + strconv.Itoa(d.OutcomeNotes.Negative)
		}
		records = append(records, format.DecisionRecord(d.Title, d.Decision, "", why, decisionConfidence(d), string(d.OutcomeStatus)))
	}
	return strings.Join(records, "\n"), nil
}

// decisionConfidence derives the §4.3 D[...] conf field from the outcome
// signal the decision has accumulated so far: pending decisions read as
// neutral (5), each positive signal raises it, each negative lowers it,
// clamped to [1,10]. Decisions carry no stored confidence field of their own
// (unlike learnings) -- this is a display-time derivation, not a persisted value.
func decisionConfidence(d *types.Decision) float64 {
	v := 5 + d.OutcomeNotes.Positive - 2*d.OutcomeNotes.Negative
	if v < 1 {
		v = 1
	}
	if v > 10 {
		v = 10
	}
	return float64(v)
}

// blastRadiusEnricher emits the blast-radius record for each edited file with
// a non-zero score, appending a fragility-signal explanation when available
// (priority 60, §4.5).
func blastRadiusEnricher(ctx context.Context, ec *EnrichContext) (string, error) {
	var records []string
	for _, path := range ec.Input.Files {
		key := cache.BlastKey(ec.Input.ProjectID, path)
		var summary *types.BlastSummary
		if v, ok := ec.Cache.Get(key); ok {
			if s, ok := v.(*types.BlastSummary); ok {
				summary = s
			}
		}
		if summary == nil {
			s, err := relate.Summarize(ctx, ec.DB, ec.Config.BlastRadius, ec.Input.ProjectID, path)
			if err != nil {
				continue
			}
			summary = s
			ec.Cache.Set(key, summary, ec.Config.Cache.DefaultTTL)
		}
		if summary.BlastScore <= 0 {
			continue
		}
		rec := format.BlastRecord(summary.BlastScore, summary.DirectDependents, summary.TransitiveDependents,
			summary.AffectedTests, summary.AffectedRoutes, string(summary.Risk()))
		if f, err := getFileCached(ctx, ec, path); err == nil && f.FragilitySignals != nil {
			rec += " " + fragilitySignalLine(f.FragilitySignals)
		}
		records = append(records, rec)
	}
	return strings.Join(records, "\n"), nil
}

func fragilitySignalLine(s *types.FragilitySignals) string {
	return format.Escape("signals: deps=" + strconv.Itoa(s.DependentCount) +
		" cov=" + strconv.FormatFloat(s.TestCoverage, 'f', 2, 64) +
		" errs=" + strconv.Itoa(s.ErrorCount) + " exports=" + strconv.Itoa(s.ExportCount))
}

// codeIntelEnricher shows export/caller/test counts sourced from the
// externally-populated symbols/call_graph/test_source_map tables, suppressed
// when everything is zero (priority 65, §4.5).
func codeIntelEnricher(ctx context.Context, ec *EnrichContext) (string, error) {
	var records []string
	for _, path := range ec.Input.Files {
		exports, err := ec.DB.SymbolExportCount(ctx, ec.Input.ProjectID, path)
		if err != nil {
			continue
		}
		callers, callerFiles, err := ec.DB.CallerStats(ctx, ec.Input.ProjectID, path)
		if err != nil {
			continue
		}
		tests, err := ec.DB.MappedTestCount(ctx, ec.Input.ProjectID, path)
		if err != nil {
			continue
		}
		if exports == 0 && callers == 0 && tests == 0 {
			continue
		}
		top := uniqueBasenames(callerFiles, 3)
		records = append(records, format.CodeIntelRecord(path, exports, callers, len(uniqueStrings(callerFiles)), tests, top))
	}
	return strings.Join(records, "\n"), nil
}

func uniqueStrings(in []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func uniqueBasenames(in []string, limit int) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range in {
		b := filepath.Base(s)
		if seen[b] {
			continue
		}
		seen[b] = true
		out = append(out, b)
		if len(out) >= limit {
			break
		}
	}
	return out
}

// correlationsEnricher surfaces the top-3 co-changed files across all input
// files, excluding the inputs themselves (priority 70, §4.5).
func correlationsEnricher(ctx context.Context, ec *EnrichContext) (string, error) {
	if len(ec.Input.Files) == 0 {
		return "", nil
	}
	cochangers, err := ec.DB.TopCorrelatedFiles(ctx, ec.Input.ProjectID, ec.Input.Files, 3)
	if err != nil || len(cochangers) == 0 {
		return "", nil
	}
	var tests []string
	for _, path := range ec.Input.Files {
		if t, ok, err := ec.DB.TestEdgeFor(ctx, ec.Input.ProjectID, path); err == nil && ok {
			tests = append(tests, t)
		}
	}
	return format.CorrelationRecord(cochangers, tests), nil
}

var testPathPatterns = []string{".test.", ".spec.", "/tests/", "/__tests__/"}

// testsEnricher resolves the test file mapped to each input source file via
// (a) a tests relationship edge, (b) blast_radius is_test rows, (c) heuristic
// path patterns, top 3 (priority 80, §4.5).
func testsEnricher(ctx context.Context, ec *EnrichContext) (string, error) {
	var tests []string
	seen := map[string]bool{}
	add := func(t string) {
		if t == "" || seen[t] {
			return
		}
		seen[t] = true
		tests = append(tests, t)
	}

	for _, path := range ec.Input.Files {
		if t, ok, err := ec.DB.TestEdgeFor(ctx, ec.Input.ProjectID, path); err == nil && ok {
			add(t)
			continue
		}
		if blastTests, err := ec.DB.BlastTestFiles(ctx, ec.Input.ProjectID, path, 3); err == nil && len(blastTests) > 0 {
			for _, t := range blastTests {
				add(t)
			}
			continue
		}
		if heuristicLooksLikeTest(path) {
			add(path)
		}
	}
	if len(tests) > 3 {
		tests = tests[:3]
	}
	if len(tests) == 0 {
		return "", nil
	}
	return format.CorrelationRecord(nil, tests), nil
}

func heuristicLooksLikeTest(path string) bool {
	lower := strings.ToLower(path)
	for _, p := range testPathPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
