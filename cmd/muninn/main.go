// Package main implements the muninn CLI: the thin cobra wiring that turns
// the enrichment pipeline, knowledge lifecycle, session engine and startup
// planner into a set of commands a coding agent's tool hooks can shell out
// to. CLI argument parsing and the DatabaseAdapter's construction (store.Open,
// which also creates the schema and runs migrations) are the only pieces this
// file owns; everything else is the core packages under internal/.
//
// # File Index
//
//   - main.go          - Entry point, rootCmd, global flags, collaborator wiring
//   - cmd_enrich.go    - enrichCmd: runs the C6 pipeline for one tool hook
//   - cmd_approve.go   - approveCmd: resolves a pending approval
//   - cmd_session.go   - sessionCmd: start/end subcommands
//   - cmd_startup.go   - startupCmd: C11 resume planning
//   - probes.go        - gitProbe/updateProbe concrete collaborators
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"muninn/internal/cache"
	"muninn/internal/config"
	"muninn/internal/enrich"
	"muninn/internal/obslog"
	"muninn/internal/merrors"
	"muninn/internal/session"
	"muninn/internal/startup"
	"muninn/internal/store"
)

var (
	// Global flags
	verbose    bool
	workspace  string
	configFile string
	dbFile     string
	projectID  int64
	timeout    time.Duration

	// Collaborators, wired in PersistentPreRunE and torn down in
	// PersistentPostRun (teacher's cmd/nerd/main.go cleanup-chain shape).
	cfg          config.Config
	db           *store.SQLiteAdapter
	cacheStore   *cache.Cache
	engine       *enrich.Engine
	sessionEng   *session.Engine
	startupPlan  *startup.Planner
)

// rootCmd is the base command.
var rootCmd = &cobra.Command{
	Use:   "muninn",
	Short: "Muninn - context-intelligence layer for LLM coding agents",
	Long: `Muninn enriches a coding agent's tool calls with file history, open
decisions, learnings, blast radius and code intelligence, gates risky edits
behind an approval workflow, and tracks sessions across a project's lifetime.

It has no opinions about which agent drives it; it is invoked per tool hook
and reads/writes a single project-scoped SQLite knowledge base.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := obslog.Init(verbose); err != nil {
			return fmt.Errorf("init logging: %w", err)
		}

		ws := workspace
		if ws == "" {
			var err error
			ws, err = os.Getwd()
			if err != nil {
				return fmt.Errorf("resolve workspace: %w", err)
			}
		} else if abs, err := filepath.Abs(ws); err == nil {
			ws = abs
		}
		workspace = ws

		if configFile == "" {
			configFile = filepath.Join(workspace, ".muninn", "config.yaml")
		}
		loaded, err := config.Load(configFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if verbose {
			loaded.Logging.Verbose = true
		}
		cfg = loaded

		if dbFile == "" {
			dbFile = filepath.Join(workspace, ".muninn", "knowledge.db")
		}
		db, err = store.Open(dbFile)
		if err != nil {
			return fmt.Errorf("open knowledge database: %w", err)
		}

		cacheStore = cache.New(cfg.Cache.Capacity)
		engine = enrich.New(db, cacheStore, cfg)
		sessionEng = session.New(db, cfg, nil)
		startupPlan = startup.New(db, cfg, sessionEng, gitProbe{}, updateProbe{})
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		obslog.Sync()
		if db != nil {
			_ = db.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Project directory (default: current)")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config.yaml (default: <workspace>/.muninn/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbFile, "db", "", "Path to knowledge database (default: <workspace>/.muninn/knowledge.db)")
	rootCmd.PersistentFlags().Int64Var(&projectID, "project-id", 1, "Project identifier scoping all rows")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "Operation timeout")

	rootCmd.AddCommand(enrichCmd, approveCmd, sessionCmd, startupCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps a sentinel error surfaced by a command to its §6 process
// exit code, falling back to merrors.ExitCode's generic 1.
func exitCodeFor(err error) int {
	return merrors.ExitCode(err)
}
