// Package gitops wraps the git CLI operations the harness needs.
package gitops

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

type Git struct {
	Dir string
}

func New(dir string) *Git {
	return &Git{Dir: dir}
}

func (g *Git) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = g.Dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s: %s: %w", strings.Join(args, " "), strings.TrimSpace(string(out)), err)
	}
	return strings.TrimSpace(string(out)), nil
}

func (g *Git) Init(ctx context.Context) error {
	_, err := g.run(ctx, "init")
	return err
}

func (g *Git) AddRemote(ctx context.Context, name, url string) error {
	if err := validateArg("remote url", url); err != nil {
		return err
	}
	_, err := g.run(ctx, "remote", "add", name, url)
	return err
}

func (g *Git) RemoteURL(ctx context.Context, name string) (string, error) {
	return g.run(ctx, "remote", "get-url", name)
}

// Fetch fetches a single revision from origin without history, falling back
// to a full fetch for servers that refuse to serve a bare commit id.
func (g *Git) Fetch(ctx context.Context, revision string) error {
	if err := validateArg("revision", revision); err != nil {
		return err
	}
	if _, err := g.run(ctx, "fetch", "--depth", "1", "origin", revision); err == nil {
		return nil
	}
	_, err := g.run(ctx, "fetch", "origin")
	return err
}

// HasRevision reports whether revision resolves to a commit locally.
func (g *Git) HasRevision(ctx context.Context, revision string) bool {
	if validateArg("revision", revision) != nil {
		return false
	}
	_, err := g.run(ctx, "rev-parse", "--verify", "--quiet", revision+"^{commit}")
	return err == nil
}

// WorktreeAdd creates a detached worktree at path checked out to revision.
func (g *Git) WorktreeAdd(ctx context.Context, path, revision string) error {
	if err := validateArg("revision", revision); err != nil {
		return err
	}
	_, err := g.run(ctx, "worktree", "add", "--force", "--detach", path, revision)
	return err
}

func (g *Git) WorktreeRemove(ctx context.Context, path string) error {
	_, err := g.run(ctx, "worktree", "remove", "--force", path)
	return err
}

func (g *Git) WorktreePrune(ctx context.Context) error {
	_, err := g.run(ctx, "worktree", "prune")
	return err
}

func (g *Git) HeadCommit(ctx context.Context) (string, error) {
	return g.run(ctx, "rev-parse", "HEAD")
}

// CaptureChanges stages all changes (including untracked files) and returns the diff.
func (g *Git) CaptureChanges(ctx context.Context) ([]byte, error) {
	if _, err := g.run(ctx, "add", "-A"); err != nil {
		return nil, err
	}
	diff := exec.CommandContext(ctx, "git", "diff", "--cached")
	diff.Dir = g.Dir
	out, err := diff.Output()
	if err != nil {
		return nil, fmt.Errorf("git diff --cached: %w", err)
	}
	return out, nil
}

// CurrentCommit returns HEAD of the repository containing dir, or "" when it
// cannot be determined.
func CurrentCommit(ctx context.Context, dir string) string {
	commit, err := New(dir).HeadCommit(ctx)
	if err != nil {
		return ""
	}
	return commit
}

func validateArg(what, v string) error {
	if v == "" {
		return fmt.Errorf("empty %s", what)
	}
	if strings.HasPrefix(v, "-") {
		return fmt.Errorf("invalid %s %q: must not start with '-'", what, v)
	}
	if strings.ContainsAny(v, " \t\n") {
		return fmt.Errorf("invalid %s %q: contains whitespace", what, v)
	}
	if what == "revision" && strings.Contains(v, "..") {
		return fmt.Errorf("invalid %s %q", what, v)
	}
	return nil
}
