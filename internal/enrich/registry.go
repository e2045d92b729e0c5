// Package enrich implements the enricher registry (§4.4), the nine
// enrichers (§4.5), the enrichment engine (§4.6) and the pending-approval
// gating flow that hard blocks create.
package enrich

import (
	"context"
	"sort"

	"muninn/internal/cache"
	"muninn/internal/config"
	"muninn/internal/store"
	"muninn/internal/types"
)

// EnrichContext is the read-only collaborator set every enricher closure
// receives (§4.5: cache-by-path, fall back to SQL).
type EnrichContext struct {
	DB     store.DatabaseAdapter
	Cache  *cache.Cache
	Config config.Config
	Input  types.ToolInput
}

// EnrichFunc produces one formatted record, or ("", nil) when the enricher
// has nothing to say about this input.
type EnrichFunc func(ctx context.Context, ec *EnrichContext) (string, error)

// Enricher is one registered enrichment source (§4.4).
type Enricher struct {
	Name           string
	Priority       int
	SupportedTools map[types.Tool]bool
	TokenBudget    int
	Enabled        bool
	CanEnrich      func(types.ToolInput) bool
	Run            EnrichFunc
}

func supports(tools ...types.Tool) map[types.Tool]bool {
	m := make(map[types.Tool]bool, len(tools))
	for _, t := range tools {
		m[t] = true
	}
	return m
}

func hasFiles(input types.ToolInput) bool { return len(input.Files) > 0 }

// Registry holds the registered enrichers, config overrides applied at
// registration time (§4.4: enabled/priority/budget merged per-name).
type Registry struct {
	enrichers []*Enricher
}

// NewRegistry builds the registry with the nine built-in enrichers, applying
// cfg.Enrichers.Overrides by name.
func NewRegistry(cfg config.Config) *Registry {
	r := &Registry{}
	for _, e := range builtins(cfg) {
		if override, ok := cfg.Enrichers.Overrides[e.Name]; ok {
			if override.Enabled != nil {
				e.Enabled = *override.Enabled
			}
			if override.Priority != nil {
				e.Priority = *override.Priority
			}
			if override.Budget != nil {
				e.TokenBudget = *override.Budget
			}
		}
		r.enrichers = append(r.enrichers, e)
	}
	return r
}

// GetApplicable returns enabled enrichers whose SupportedTools contains
// input.Tool or ToolAny, filtered by CanEnrich, sorted ascending by priority.
func (r *Registry) GetApplicable(input types.ToolInput) []*Enricher {
	var out []*Enricher
	for _, e := range r.enrichers {
		if !e.Enabled {
			continue
		}
		if !e.SupportedTools[types.ToolAny] && !e.SupportedTools[input.Tool] {
			continue
		}
		if e.CanEnrich != nil && !e.CanEnrich(input) {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}

func builtins(cfg config.Config) []*Enricher {
	budget := cfg.Enrichers.DefaultTokenBudget
	return []*Enricher{
		{Name: "file-knowledge", Priority: 10, SupportedTools: supports(types.ToolAny), TokenBudget: budget, Enabled: true, CanEnrich: hasFiles, Run: fileKnowledgeEnricher},
		{Name: "blocker", Priority: 20, SupportedTools: supports(types.ToolEdit, types.ToolWrite), TokenBudget: budget, Enabled: true, CanEnrich: hasFiles, Run: blockerEnricher},
		{Name: "learnings", Priority: 30, SupportedTools: supports(types.ToolAny), TokenBudget: budget, Enabled: true, Run: learningsEnricher},
		{Name: "issues", Priority: 40, SupportedTools: supports(types.ToolAny), TokenBudget: budget, Enabled: true, CanEnrich: hasFiles, Run: issuesEnricher},
		{Name: "decisions", Priority: 50, SupportedTools: supports(types.ToolAny), TokenBudget: budget, Enabled: true, CanEnrich: hasFiles, Run: decisionsEnricher},
		{Name: "blast-radius", Priority: 60, SupportedTools: supports(types.ToolEdit, types.ToolWrite), TokenBudget: budget, Enabled: true, CanEnrich: hasFiles, Run: blastRadiusEnricher},
		{Name: "code-intel", Priority: 65, SupportedTools: supports(types.ToolEdit, types.ToolWrite), TokenBudget: budget, Enabled: true, CanEnrich: hasFiles, Run: codeIntelEnricher},
		{Name: "correlations", Priority: 70, SupportedTools: supports(types.ToolEdit, types.ToolWrite), TokenBudget: budget, Enabled: true, CanEnrich: hasFiles, Run: correlationsEnricher},
		{Name: "tests", Priority: 80, SupportedTools: supports(types.ToolEdit, types.ToolWrite), TokenBudget: budget, Enabled: true, CanEnrich: hasFiles, Run: testsEnricher},
	}
}
