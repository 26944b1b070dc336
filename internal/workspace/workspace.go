// Package workspace checks out each instance's worktree from the shared
// repository cache.
package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/signalnine/gauntlet/internal/example"
	"github.com/signalnine/gauntlet/internal/gitops"
	"github.com/signalnine/gauntlet/internal/repocache"
	"github.com/signalnine/gauntlet/internal/result"
)

type Preparer struct {
	Repos *repocache.Cache
}

func NewPreparer(repos *repocache.Cache) *Preparer {
	return &Preparer{Repos: repos}
}

// Setup fetches the instance's revision if needed, replaces any previous
// worktree at its path and writes the prompt into the output directory.
func (p *Preparer) Setup(ctx context.Context, inst *example.Instance) error {
	repo := gitops.New(p.Repos.Path(inst.Base.URL))
	rev := inst.Base.Revision

	if !repo.HasRevision(ctx, rev) {
		if err := repo.Fetch(ctx, rev); err != nil {
			return fmt.Errorf("fetching %s: %w", rev, err)
		}
	}

	worktree, err := filepath.Abs(inst.WorktreeDir)
	if err != nil {
		return fmt.Errorf("resolving worktree path: %w", err)
	}
	if _, err := os.Stat(worktree); err == nil {
		// Not necessarily registered with this repository, so removal
		// falls back to deleting the directory.
		_ = repo.WorktreeRemove(ctx, worktree)
		if err := os.RemoveAll(worktree); err != nil {
			return fmt.Errorf("removing stale worktree: %w", err)
		}
	}
	if err := repo.WorktreePrune(ctx); err != nil {
		return fmt.Errorf("pruning worktrees: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(worktree), 0o755); err != nil {
		return fmt.Errorf("creating worktrees dir: %w", err)
	}
	if err := repo.WorktreeAdd(ctx, worktree, rev); err != nil {
		return fmt.Errorf("adding worktree: %w", err)
	}

	if err := os.MkdirAll(inst.OutputDir, 0o755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(inst.OutputDir, result.PromptFile), []byte(inst.Prompt), 0o644); err != nil {
		return fmt.Errorf("writing prompt: %w", err)
	}
	return nil
}
