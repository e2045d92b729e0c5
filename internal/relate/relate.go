// Package relate implements the relationship graph operations of §4.8:
// co-change correlation bookkeeping, typed relationship-edge derivation at
// session end, and the bounded blast-radius BFS. Grounded on the teacher's
// internal/store/local_graph.go traversal shape, generalized to Muninn's
// weighted blast score.
package relate

import (
	"context"
	"fmt"
	"sort"

	"muninn/internal/config"
	"muninn/internal/obslog"
	"muninn/internal/store"
	"muninn/internal/types"

	"go.uber.org/zap"
)

// RecordCochange bumps the pairwise co-change correlation for every unordered
// pair in files and their individual change counters (§4.8: requires at
// least two files touched in one session, files sorted lexicographically
// before pairing so (a,b) and (b,a) always collapse to one row).
func RecordCochange(ctx context.Context, db store.DatabaseAdapter, projectID int64, files []string) error {
	if len(files) < 2 {
		return nil
	}
	sorted := append([]string(nil), files...)
	sort.Strings(sorted)

	for i := 0; i < len(sorted); i++ {
		if err := db.IncrementFileChangeCount(ctx, projectID, sorted[i]); err != nil {
			return fmt.Errorf("relate: increment change count %s: %w", sorted[i], err)
		}
		for j := i + 1; j < len(sorted); j++ {
			if err := db.UpsertFileCorrelation(ctx, projectID, sorted[i], sorted[j]); err != nil {
				return fmt.Errorf("relate: correlate %s/%s: %w", sorted[i], sorted[j], err)
			}
		}
	}
	return nil
}

// DeriveSessionRelationships records the typed edges a completed session
// produces (§3, §4.8): made (session->decision), found (session->issue),
// resolved (session->issue), learned (session->learning).
func DeriveSessionRelationships(ctx context.Context, db store.DatabaseAdapter, s *types.Session, learningIDs []int64) error {
	edge := func(rel types.RelationshipType, targetType string, targetID int64) error {
		return db.InsertRelationship(ctx, &types.Relationship{
			ProjectID: s.ProjectID, SourceType: "session", SourceID: s.ID,
			Relationship: rel, TargetType: targetType, TargetID: targetID, Strength: 1,
		})
	}
	for _, id := range s.DecisionsMade {
		if err := edge(types.RelationshipMade, "decision", id); err != nil {
			return err
		}
	}
	for _, id := range s.IssuesFound {
		if err := edge(types.RelationshipFound, "issue", id); err != nil {
			return err
		}
	}
	for _, id := range s.IssuesResolved {
		if err := edge(types.RelationshipResolved, "issue", id); err != nil {
			return err
		}
	}
	for _, id := range learningIDs {
		if err := edge(types.RelationshipLearned, "learning", id); err != nil {
			return err
		}
	}
	return nil
}

// bfsEdge is one step of the blast-radius traversal.
type bfsEdge struct {
	path     string
	distance int
}

// ComputeBlastRadius rebuilds one project's blast_radius edges wholesale
// (§4.8: precomputed, not derived on read). For each file it walks the
// dependents graph breadth-first up to cfg.MaxDepth hops, a cycle-safe
// visited set preventing runaway traversal on circular dependency graphs
// (§9 cycle-risk mitigation).
func ComputeBlastRadius(ctx context.Context, db store.DatabaseAdapter, cfg config.BlastRadiusConfig, projectID int64) error {
	graph, err := db.FileGraph(ctx, projectID)
	if err != nil {
		return fmt.Errorf("relate: load file graph: %w", err)
	}

	var rows []*types.BlastRadius
	for path := range graph {
		rows = append(rows, blastEdgesFrom(graph, path, cfg.MaxDepth)...)
	}

	if err := db.SaveBlastRadius(ctx, projectID, rows); err != nil {
		return fmt.Errorf("relate: save blast radius: %w", err)
	}
	obslog.Get(obslog.CategoryRelate).Info("blast radius recomputed",
		zap.Int("files", len(graph)), zap.Int("edges", len(rows)))
	return nil
}

func blastEdgesFrom(graph map[string]*types.File, source string, maxDepth int) []*types.BlastRadius {
	visited := map[string]bool{source: true}
	queue := []bfsEdge{{path: source, distance: 0}}
	var out []*types.BlastRadius

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.distance >= maxDepth {
			continue
		}
		f, ok := graph[cur.path]
		if !ok {
			continue
		}
		for _, dep := range f.Dependents {
			if visited[dep] {
				continue
			}
			visited[dep] = true
			dist := cur.distance + 1
			isTest := false
			if df, ok := graph[dep]; ok {
				isTest = df.Type == types.FileTypeTest
			}
			out = append(out, &types.BlastRadius{SourceFile: source, AffectedFile: dep, Distance: dist, IsTest: isTest})
			queue = append(queue, bfsEdge{path: dep, distance: dist})
		}
	}
	return out
}

// Score applies the §9 Open Question resolution for blast scoring:
// 4*direct + 2*transitive + 5*tests + 3*routes, clamped to [0,100].
func Score(s *types.BlastSummary, cfg config.BlastRadiusConfig) int {
	score := cfg.DirectWeight*s.DirectDependents + cfg.TransitiveWeight*s.TransitiveDependents +
		cfg.TestsWeight*s.AffectedTests + cfg.RoutesWeight*s.AffectedRoutes
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// Summarize fetches the raw blast-radius counts for file and applies Score.
func Summarize(ctx context.Context, db store.DatabaseAdapter, cfg config.BlastRadiusConfig, projectID int64, file string) (*types.BlastSummary, error) {
	s, err := db.GetBlastSummary(ctx, projectID, file)
	if err != nil {
		return nil, fmt.Errorf("relate: blast summary %s: %w", file, err)
	}
	s.BlastScore = Score(s, cfg)
	return s, nil
}
