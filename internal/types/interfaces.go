package types

import "context"

// ToolInput is the normalized result of parsing one tool-hook invocation (§4.2).
type ToolInput struct {
	Tool      Tool
	RawInput  any // either a structured map[string]any or a free-form string
	Files     []string
	Command   string
	Pattern   string
	ProjectID int64
	ProjectPath string
}

// Symbol is a read-only row from the externally-populated `symbols` table
// (§1 Non-goals: Muninn never parses source itself, only reads this table).
type Symbol struct {
	ID        int64
	ProjectID int64
	FilePath  string
	Name      string
	Kind      string
	ExportedFlag bool
}

// CallEdge is a read-only row from `call_graph`.
type CallEdge struct {
	CallerFile string
	CalleeFile string
	CallerName string
	CalleeName string
}

// TestMapping is a read-only row from `test_source_map`.
type TestMapping struct {
	SourceFile string
	TestFile   string
}

// GitProbe exercises bounded external git subprocesses (§5 timeouts). A nil
// result/empty string on timeout or failure is expected and never propagated
// as an error to the caller (§7 SubprocessFailure/Timeout).
type GitProbe interface {
	Diff(ctx context.Context, projectPath string) (string, error)
	LsRemote(ctx context.Context, projectPath string) (string, error)
}

// UpdateProbe checks for a newer Muninn release, cached and fail-open (§4.11).
type UpdateProbe interface {
	CheckForUpdate(ctx context.Context) (available bool, version string, err error)
}
