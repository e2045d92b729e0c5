package enrich

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"muninn/internal/cache"
	"muninn/internal/config"
	"muninn/internal/format"
	"muninn/internal/obslog"
	"muninn/internal/parse"
	"muninn/internal/store"
	"muninn/internal/types"
)

// BlockInfo summarizes a gating decision surfaced by the blocker enricher
// (§4.6 approval flow).
type BlockInfo struct {
	Level       types.BlockLevel
	Message     string
	OperationID string
}

// Result is the engine's return contract (§4.6 item 7).
type Result struct {
	Context       string
	TotalTokens   int
	EnrichersUsed []string
	Blocked       *BlockInfo
	Metrics       *types.EnrichmentMetric
}

// Engine orchestrates parse -> filter -> cache -> fan-out -> assemble ->
// record metrics -> return (§4.6).
type Engine struct {
	DB       store.DatabaseAdapter
	Cache    *cache.Cache
	Config   config.Config
	Registry *Registry
}

// New builds an engine from its collaborators.
func New(db store.DatabaseAdapter, c *cache.Cache, cfg config.Config) *Engine {
	return &Engine{DB: db, Cache: c, Config: cfg, Registry: NewRegistry(cfg)}
}

// Enrich runs the full pipeline for one tool-hook invocation (§4.6).
func (e *Engine) Enrich(ctx context.Context, projectID int64, projectPath string, toolName string, rawInput any) (Result, error) {
	start := time.Now()
	log := obslog.Get(obslog.CategoryEnrich)

	input, err := parse.Parse(toolName, rawInput, projectID, projectPath)
	if err != nil {
		return Result{}, err
	}

	input.Files = parse.FilterSkipped(input.Files, e.Config.Skip.Patterns)
	if len(input.Files) == 0 && input.Pattern == "" && input.Command == "" {
		return Result{}, nil
	}

	statsBefore := e.Cache.Stats()

	applicable := e.Registry.GetApplicable(input)

	ec := &EnrichContext{DB: e.DB, Cache: e.Cache, Config: e.Config, Input: input}

	outputs := make([]string, len(applicable))
	var mu sync.Mutex
	var isolatedErrs error
	g, gctx := errgroup.WithContext(ctx)
	for i, enricher := range applicable {
		i, enricher := i, enricher
		g.Go(func() error {
			out, runErr := runIsolated(gctx, enricher, ec)
			outputs[i] = out
			if runErr != nil {
				mu.Lock()
				isolatedErrs = multierr.Append(isolatedErrs, runErr)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	if isolatedErrs != nil {
		log.Warn("one or more enrichers failed (isolated)", zap.Error(isolatedErrs))
	}

	var block *BlockInfo
	var blockMsg string
	var used []string
	var records []string
	for i, enricher := range applicable {
		out := outputs[i]
		if out == "" {
			continue
		}
		used = append(used, enricher.Name)
		if kind, opID, ok := parseBlockKind(out); ok {
			if block == nil {
				block = &BlockInfo{Level: blockLevelForKind(kind), Message: out, OperationID: opID}
				blockMsg = out
			}
			continue
		}
		records = append(records, out)
	}

	context, totalTokens := format.Assemble(blockMsg, records)

	statsAfter := e.Cache.Stats()
	metric := &types.EnrichmentMetric{
		TraceID:        uuid.NewString(),
		Tool:           input.Tool,
		LatencyMs:      time.Since(start).Milliseconds(),
		EnrichersUsed:  used,
		TokensInjected: totalTokens,
		Blocked:        block != nil,
		CacheHits:      int(statsAfter.Hits - statsBefore.Hits),
		CacheMisses:    int(statsAfter.Misses - statsBefore.Misses),
		CreatedAt:      time.Now(),
	}
	if len(input.Files) > 0 {
		metric.FilePath = input.Files[0]
	}
	if err := e.DB.RecordMetric(ctx, metric); err != nil {
		log.Warn("record enrichment metric failed", zap.Error(err))
	}

	return Result{
		Context:       context,
		TotalTokens:   totalTokens,
		EnrichersUsed: used,
		Blocked:       block,
		Metrics:       metric,
	}, nil
}

// runIsolated runs one enricher, catching panics and returning its output and
// error separately so the caller can aggregate errors for logging without
// letting any single enricher's failure abort packet assembly (§4.6 item 4,
// §7 EnricherFailure: the enricher's output becomes null, nothing propagates).
func runIsolated(ctx context.Context, enricher *Enricher, ec *EnrichContext) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: panic: %v", enricher.Name, r)
			out = ""
		}
	}()
	result, runErr := enricher.Run(ctx, ec)
	if runErr != nil {
		return "", fmt.Errorf("%s: %w", enricher.Name, runErr)
	}
	return result, nil
}

func parseBlockKind(s string) (format.BlockKind, string, bool) {
	for _, kind := range []format.BlockKind{format.BlockKindBlocked, format.BlockKindApproval, format.BlockKindWarning} {
		prefix := string(kind) + ":"
		if strings.HasPrefix(s, prefix) {
			return kind, extractOperationID(s), true
		}
	}
	return "", "", false
}

func extractOperationID(s string) string {
	const marker = "muninn approve "
	idx := strings.Index(s, marker)
	if idx < 0 {
		return ""
	}
	rest := s[idx+len(marker):]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[:nl]
	}
	return strings.TrimSpace(rest)
}

func blockLevelForKind(kind format.BlockKind) types.BlockLevel {
	switch kind {
	case format.BlockKindBlocked:
		return types.BlockHard
	case format.BlockKindApproval:
		return types.BlockSoft
	default:
		return types.BlockWarn
	}
}
