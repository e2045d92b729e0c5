package main

import (
	"context"
	"os/exec"
	"strings"
)

// gitProbe shells out to git under the caller's context deadline; it sets no
// timeout of its own (the startup planner bounds Diff with its configured git
// timeout, 5s by default). A failure or timeout yields an empty string, never an
// error the caller has to handle (§7 SubprocessFailure/Timeout).
type gitProbe struct{}

func (gitProbe) Diff(ctx context.Context, projectPath string) (string, error) {
	out, err := runGit(ctx, projectPath, "diff", "--stat")
	if err != nil {
		return "", nil
	}
	return out, nil
}

func (gitProbe) LsRemote(ctx context.Context, projectPath string) (string, error) {
	out, err := runGit(ctx, projectPath, "ls-remote", "--heads", "origin")
	if err != nil {
		return "", nil
	}
	return out, nil
}

func runGit(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// updateProbe is a deliberate no-op: update-check plumbing is an external
// collaborator the core leaves unspecified. A real CLI distribution would
// point this at its release feed; until then it fails open, same as a
// timed-out network probe would.
type updateProbe struct{}

func (updateProbe) CheckForUpdate(ctx context.Context) (bool, string, error) {
	return false, "", nil
}
