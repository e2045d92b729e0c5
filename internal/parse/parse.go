// Package parse turns one raw tool-hook invocation into a normalized
// types.ToolInput (§4.2), and filters out paths the operator never wants
// enriched (§4.2 skip filter).
package parse

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"muninn/internal/merrors"
	"muninn/internal/types"
)

// MaxRawInputBytes is the §4.2 hard cap on serialized raw_input size.
const MaxRawInputBytes = 1 << 20 // 1 MiB

var knownTools = map[string]types.Tool{
	"Read":  types.ToolRead,
	"Edit":  types.ToolEdit,
	"Write": types.ToolWrite,
	"Bash":  types.ToolBash,
	"Glob":  types.ToolGlob,
	"Grep":  types.ToolGrep,
	"*":     types.ToolAny,
}

// normalizeTool maps an arbitrary tool name string onto the known Tool set,
// defaulting to ToolAny for anything unrecognized.
func normalizeTool(name string) types.Tool {
	if t, ok := knownTools[name]; ok {
		return t
	}
	return types.ToolAny
}

// Parse normalizes (toolName, rawInput) into a ToolInput. rawInput may be a
// map[string]any (structured) or a string (free-form). Inputs whose
// serialized size exceeds MaxRawInputBytes are rejected with ErrOversizedInput.
func Parse(toolName string, rawInput any, projectID int64, projectPath string) (types.ToolInput, error) {
	if err := checkSize(rawInput); err != nil {
		return types.ToolInput{}, err
	}

	tool := normalizeTool(toolName)
	input := types.ToolInput{
		Tool:        tool,
		RawInput:    rawInput,
		ProjectID:   projectID,
		ProjectPath: projectPath,
	}

	switch v := rawInput.(type) {
	case map[string]any:
		extractStructured(tool, v, &input)
	case string:
		input.Command = v
		extractFreeString(v, &input)
	}

	return input, nil
}

func checkSize(rawInput any) error {
	var size int
	switch v := rawInput.(type) {
	case string:
		size = len(v)
	default:
		b, err := json.Marshal(v)
		if err == nil {
			size = len(b)
		}
	}
	if size > MaxRawInputBytes {
		return fmt.Errorf("%w: raw input is %d bytes", merrors.ErrOversizedInput, size)
	}
	return nil
}

func extractStructured(tool types.Tool, raw map[string]any, input *types.ToolInput) {
	switch tool {
	case types.ToolRead, types.ToolEdit, types.ToolWrite:
		if path, ok := raw["file_path"].(string); ok && path != "" {
			input.Files = append(input.Files, path)
		}
	case types.ToolBash:
		if cmd, ok := raw["command"].(string); ok {
			input.Command = cmd
			input.Files = append(input.Files, extractBashPaths(cmd)...)
		}
	case types.ToolGlob:
		if pattern, ok := raw["pattern"].(string); ok {
			input.Pattern = pattern
		}
		if path, ok := raw["path"].(string); ok && path != "" {
			input.Files = append(input.Files, path)
		}
	case types.ToolGrep:
		if pattern, ok := raw["pattern"].(string); ok {
			input.Pattern = pattern
		}
		if path, ok := raw["path"].(string); ok && path != "" {
			input.Files = append(input.Files, path)
		}
	}
}

var bashReadCmdRe = regexp.MustCompile(`(?:cat|head|tail|less|more|vim|nano|code|edit)\s+([^\s|><&;]+)`)
var bashRedirectRe = regexp.MustCompile(`[<>]{1,2}\s*([^\s|><&;]+)`)
var bashFileOpRe = regexp.MustCompile(`(?:rm|cp|mv|touch|mkdir)\s+((?:-\S+\s+)*)([^\s|><&;]+)`)

// extractBashPaths applies the §4.2 heuristic extraction rules to a shell
// command string: paths following known read commands, after redirection,
// and after file-manipulation commands (skipping leading flags).
func extractBashPaths(cmd string) []string {
	var out []string
	seen := map[string]bool{}
	add := func(p string) {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			return
		}
		seen[p] = true
		out = append(out, p)
	}

	for _, m := range bashReadCmdRe.FindAllStringSubmatch(cmd, -1) {
		add(m[1])
	}
	for _, m := range bashRedirectRe.FindAllStringSubmatch(cmd, -1) {
		add(m[1])
	}
	for _, m := range bashFileOpRe.FindAllStringSubmatch(cmd, -1) {
		add(m[2])
	}
	return out
}

var pathLikeRe = regexp.MustCompile(`(?:\.{1,2}/|/)?[\w./\-]+\.[A-Za-z0-9]{1,8}`)
var urlRe = regexp.MustCompile(`^(https?://|www\.)`)
var versionRe = regexp.MustCompile(`^v?\d+\.\d+\.\d+`)

// extractFreeString applies the §4.2 fallback regex extraction to a raw
// command/free-form string, rejecting URLs and version-like tokens.
func extractFreeString(s string, input *types.ToolInput) {
	seen := map[string]bool{}
	for _, tok := range strings.Fields(s) {
		bare := strings.TrimLeft(tok, "\"'`([<{")
		if urlRe.MatchString(bare) || versionRe.MatchString(bare) {
			continue
		}
		for _, m := range pathLikeRe.FindAllString(tok, -1) {
			if urlRe.MatchString(m) || versionRe.MatchString(m) {
				continue
			}
			if !strings.ContainsAny(m, "/") && !strings.Contains(m, ".") {
				continue
			}
			if seen[m] {
				continue
			}
			seen[m] = true
			input.Files = append(input.Files, m)
		}
	}
}
