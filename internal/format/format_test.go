package format

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEscapePrefixesDelimiters(t *testing.T) {
	in := `a|b[c]d\e`
	escaped := Escape(in)
	assert.Equal(t, `a\|b\[c\]d\\e`, escaped)
}

func TestEstimateTokensCeilsToFour(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("abc"))
	assert.Equal(t, 1, EstimateTokens("abcd"))
	assert.Equal(t, 2, EstimateTokens("abcde"))
}

func TestTruncateAddsEllipsisOnlyWhenCut(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "ab…", Truncate("abcdef", 3))
}

func TestFileRecordShape(t *testing.T) {
	rec := FileRecord("src/main.go", 7, "service", "entry point", 3)
	assert.True(t, strings.HasPrefix(rec, "F["))
	assert.Contains(t, rec, "frag:7")
	assert.Contains(t, rec, "deps:3")
}

func TestDecisionRecordFailedPrefix(t *testing.T) {
	rec := DecisionRecord("Use SQLite", "embedded db", "postgres", "single binary", 8, "failed")
	assert.True(t, strings.HasPrefix(rec, "⚠️ FAILED: D["))
}

func TestDecisionRecordSucceededHasNoPrefix(t *testing.T) {
	rec := DecisionRecord("Use SQLite", "embedded db", "postgres", "single binary", 8, "succeeded")
	assert.True(t, strings.HasPrefix(rec, "D["))
}

func TestBlockMessageIncludesApprovalInstruction(t *testing.T) {
	msg := BlockMessage(BlockKindApproval, "fragility 9", "src/core.go", "op_abc_123")
	assert.Contains(t, msg, "!APPROVAL REQUIRED: fragility 9")
	assert.Contains(t, msg, "File: src/core.go")
	assert.Contains(t, msg, "muninn approve op_abc_123")
}

func TestAssembleEmptyReturnsEmptyPacket(t *testing.T) {
	ctx, tokens := Assemble("", nil)
	assert.Equal(t, "", ctx)
	assert.Equal(t, 0, tokens)
}

func TestAssembleWrapsWithHeader(t *testing.T) {
	ctx, tokens := Assemble("", []string{"F[a.go|frag:1|type:util|purpose:x|deps:0]"})
	assert.True(t, strings.HasPrefix(ctx, "## Muninn Context (auto-injected)\n"))
	assert.Greater(t, tokens, 0)
}
