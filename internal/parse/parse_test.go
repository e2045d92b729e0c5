package parse

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"muninn/internal/merrors"
	"muninn/internal/types"
)

func TestParseReadExtractsFilePath(t *testing.T) {
	in, err := Parse("Read", map[string]any{"file_path": "src/foo.go"}, 1, "/repo")
	require.NoError(t, err)
	assert.Equal(t, types.ToolRead, in.Tool)
	assert.Equal(t, []string{"src/foo.go"}, in.Files)
}

func TestParseBashExtractsRedirectAndReadTargets(t *testing.T) {
	in, err := Parse("Bash", map[string]any{"command": "cat src/foo.go > out/bar.txt"}, 1, "/repo")
	require.NoError(t, err)
	assert.Contains(t, in.Files, "src/foo.go")
	assert.Contains(t, in.Files, "out/bar.txt")
}

func TestParseBashSkipsFlagsOnFileOps(t *testing.T) {
	in, err := Parse("Bash", map[string]any{"command": "rm -rf tmp/old.log"}, 1, "/repo")
	require.NoError(t, err)
	assert.Equal(t, []string{"tmp/old.log"}, in.Files)
}

func TestParseFreeStringRejectsURLsAndVersions(t *testing.T) {
	in, err := Parse("*", "see https://example.com/a.go and v1.2.3 but also src/main.go", 1, "/repo")
	require.NoError(t, err)
	assert.Equal(t, []string{"src/main.go"}, in.Files)
}

func TestParseUnknownToolDefaultsToAny(t *testing.T) {
	in, err := Parse("SomethingElse", map[string]any{}, 1, "/repo")
	require.NoError(t, err)
	assert.Equal(t, types.ToolAny, in.Tool)
}

func TestParseRejectsOversizedInput(t *testing.T) {
	huge := strings.Repeat("a", MaxRawInputBytes+1)
	_, err := Parse("*", huge, 1, "/repo")
	require.Error(t, err)
	assert.ErrorIs(t, err, merrors.ErrOversizedInput)
}

func TestFilterSkippedExtensionPattern(t *testing.T) {
	out := FilterSkipped([]string{"a.lock", "b.go"}, []string{"*.lock"})
	assert.Equal(t, []string{"b.go"}, out)
}

func TestFilterSkippedSubstringPattern(t *testing.T) {
	out := FilterSkipped([]string{"src/main.go", "node_modules/pkg/index.js"}, DefaultSkipPatterns)
	assert.Equal(t, []string{"src/main.go"}, out)
}

func TestParseGlobExtractsPatternAndPath(t *testing.T) {
	in, err := Parse("Glob", map[string]any{"pattern": "**/*.go", "path": "internal"}, 1, "/repo")
	require.NoError(t, err)

	want := types.ToolInput{
		Tool:        types.ToolGlob,
		RawInput:    map[string]any{"pattern": "**/*.go", "path": "internal"},
		Files:       []string{"internal"},
		Pattern:     "**/*.go",
		ProjectID:   1,
		ProjectPath: "/repo",
	}
	if diff := cmp.Diff(want, in); diff != "" {
		t.Errorf("Parse(Glob) mismatch (-want +got):\n%s", diff)
	}
}
