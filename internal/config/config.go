// Package config loads Muninn's own tunables from a single YAML document,
// following the teacher's config package shape (one root struct, nested
// per-subsystem structs, yaml tags, defaulting after unmarshal).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is Muninn's root configuration document.
type Config struct {
	Cache      CacheConfig      `yaml:"cache"`
	Fragility  FragilityConfig  `yaml:"fragility"`
	Decay      DecayConfig      `yaml:"decay"`
	BlastRadius BlastRadiusConfig `yaml:"blast_radius"`
	Insight    InsightConfig    `yaml:"insight"`
	Enrichers  EnrichersConfig  `yaml:"enrichers"`
	Skip       SkipConfig       `yaml:"skip"`
	Approval   ApprovalConfig   `yaml:"approval"`
	Startup    StartupConfig    `yaml:"startup"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// CacheConfig tunes the C1 in-memory cache.
type CacheConfig struct {
	Capacity   int           `yaml:"capacity"`
	DefaultTTL time.Duration `yaml:"default_ttl"`
}

// FragilityConfig holds the blocker enricher's warn/soft/hard thresholds (§4.5/§8).
type FragilityConfig struct {
	WarnThreshold int `yaml:"warn_threshold"`
	SoftThreshold int `yaml:"soft_threshold"`
	HardThreshold int `yaml:"hard_threshold"`
}

// DecayConfig holds lifecycle decay/promotion tunables (§4.7).
type DecayConfig struct {
	DefaultLearningDecayRate float64 `yaml:"default_learning_decay_rate"`
	GotchaDecayRate          float64 `yaml:"gotcha_decay_rate"`
	ColdSessionThreshold     int     `yaml:"cold_session_threshold"` // >10
	WarmSessionRangeLow      int     `yaml:"warm_session_range_low"` // 3
	WarmSessionRangeHigh     int     `yaml:"warm_session_range_high"` // 10
	ReviewAfterSessionsCap   int     `yaml:"review_after_sessions_cap"` // 120
	ReviewAfterSessionsStep  int     `yaml:"review_after_sessions_step"` // +10
	ReviewAfterSessionsReset int     `yaml:"review_after_sessions_reset"` // 30 on revision
	CheckAfterSessionsMin    int     `yaml:"check_after_sessions_min"` // 3 (spec) / tests use 3..100
	CheckAfterSessionsMax    int     `yaml:"check_after_sessions_max"` // 100
	CheckAfterSessionsReset  int     `yaml:"check_after_sessions_reset"` // 5 on revision
	ArchiveConfidenceAgeDays int     `yaml:"archive_confidence_age_days"` // 60
	ArchiveStaleAgeDays      int     `yaml:"archive_stale_age_days"`      // 90
	PromotionMinConfidence   float64 `yaml:"promotion_min_confidence"`    // 8
	PromotionMinConfirmed    int     `yaml:"promotion_min_confirmed"`     // 3
	PromotionMinApplied      int     `yaml:"promotion_min_applied"`       // 5
}

// BlastRadiusConfig holds the BFS bound and scoring weights (§4.8, §9 Open Question).
type BlastRadiusConfig struct {
	MaxDepth      int `yaml:"max_depth"` // default 4
	DirectWeight  int `yaml:"direct_weight"`
	TransitiveWeight int `yaml:"transitive_weight"`
	TestsWeight   int `yaml:"tests_weight"`
	RoutesWeight  int `yaml:"routes_weight"`
	CochangeThreshold int `yaml:"cochange_threshold"` // default 3, relationship edge derivation
}

// InsightConfig holds the C10 detector thresholds (§4.10).
type InsightConfig struct {
	SessionsSinceDue      int `yaml:"sessions_since_due"`      // >=3
	CorrelationUpdatesDue int `yaml:"correlation_updates_due"` // >=5
	NewDecisionsDue       int `yaml:"new_decisions_due"`       // >=2
	CochangeMinCount      int `yaml:"cochange_min_count"`      // >=8
	ScopeCreepFileThreshold int `yaml:"scope_creep_file_threshold"` // >=5
	ScopeCreepSessionWindow int `yaml:"scope_creep_session_window"` // last 20
	WorkflowStaleDays     int `yaml:"workflow_stale_days"`      // >30d
	WorkflowMinUses       int `yaml:"workflow_min_uses"`        // >=3
}

// EnrichersConfig holds per-enricher defaults and overrides (§4.4).
type EnrichersConfig struct {
	DefaultTokenBudget int                       `yaml:"default_token_budget"`
	Overrides          map[string]EnricherOverride `yaml:"overrides"`
}

// EnricherOverride is a configuration-time override merged at registration.
type EnricherOverride struct {
	Enabled  *bool `yaml:"enabled"`
	Priority *int  `yaml:"priority"`
	Budget   *int  `yaml:"budget"`
}

// SkipConfig holds the input-parser skip filter (§4.2).
type SkipConfig struct {
	Patterns []string `yaml:"patterns"`
}

// ApprovalConfig tunes the pending-approval workflow (§4.6).
type ApprovalConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

// StartupConfig tunes the C11 startup planner.
type StartupConfig struct {
	Budget            time.Duration `yaml:"budget"` // ~1.5s hard budget
	GitTimeout        time.Duration `yaml:"git_timeout"`
	UpdateCheckCache  time.Duration `yaml:"update_check_cache"` // 6h
	OpenIssuesAttentionThreshold int `yaml:"open_issues_attention_threshold"` // >5
	StaleFilesAttentionThreshold int `yaml:"stale_files_attention_threshold"` // >10
	HighFragilityAttentionThreshold int `yaml:"high_fragility_attention_threshold"` // >5
}

// LoggingConfig gates verbose logging.
type LoggingConfig struct {
	Verbose bool `yaml:"verbose"`
}

// Default returns Muninn's baked-in defaults, matching every numeric constant
// named in spec.md.
func Default() Config {
	return Config{
		Cache: CacheConfig{
			Capacity:   1000,
			DefaultTTL: 5 * time.Minute,
		},
		Fragility: FragilityConfig{
			WarnThreshold: 7,
			SoftThreshold: 8,
			HardThreshold: 9,
		},
		Decay: DecayConfig{
			DefaultLearningDecayRate: 0.05,
			GotchaDecayRate:          0.02,
			ColdSessionThreshold:     10,
			WarmSessionRangeLow:      3,
			WarmSessionRangeHigh:     10,
			ReviewAfterSessionsCap:   120,
			ReviewAfterSessionsStep:  10,
			ReviewAfterSessionsReset: 30,
			CheckAfterSessionsMin:    3,
			CheckAfterSessionsMax:    100,
			CheckAfterSessionsReset:  5,
			ArchiveConfidenceAgeDays: 60,
			ArchiveStaleAgeDays:      90,
			PromotionMinConfidence:   8,
			PromotionMinConfirmed:    3,
			PromotionMinApplied:      5,
		},
		BlastRadius: BlastRadiusConfig{
			MaxDepth:          4,
			DirectWeight:      4,
			TransitiveWeight:  2,
			TestsWeight:       5,
			RoutesWeight:      3,
			CochangeThreshold: 3,
		},
		Insight: InsightConfig{
			SessionsSinceDue:        3,
			CorrelationUpdatesDue:   5,
			NewDecisionsDue:         2,
			CochangeMinCount:        8,
			ScopeCreepFileThreshold: 5,
			ScopeCreepSessionWindow: 20,
			WorkflowStaleDays:       30,
			WorkflowMinUses:         3,
		},
		Enrichers: EnrichersConfig{
			DefaultTokenBudget: 200,
			Overrides:          map[string]EnricherOverride{},
		},
		Skip: SkipConfig{
			Patterns: []string{"node_modules", ".git", "dist", "build", ".next", "coverage", "*.lock"},
		},
		Approval: ApprovalConfig{
			TTL: 30 * time.Minute,
		},
		Startup: StartupConfig{
			Budget:                          1500 * time.Millisecond,
			GitTimeout:                      5 * time.Second,
			UpdateCheckCache:                6 * time.Hour,
			OpenIssuesAttentionThreshold:    5,
			StaleFilesAttentionThreshold:    10,
			HighFragilityAttentionThreshold: 5,
		},
		Logging: LoggingConfig{Verbose: false},
	}
}

// Load reads a YAML config file at path, overlaying it onto Default(). A
// missing file is not an error: Muninn runs fine on defaults alone.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}
