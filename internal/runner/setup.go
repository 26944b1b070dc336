package runner

import (
	"context"
	"fmt"
	"io"

	"github.com/signalnine/gauntlet/internal/example"
)

// SetupAll prepares instances one at a time, in order. The first failure
// aborts the whole invocation.
func SetupAll(ctx context.Context, p Preparer, instances []*example.Instance, w io.Writer) error {
	for _, inst := range instances {
		fmt.Fprintf(w, "%sSetting up worktree\n", inst.LogPrefix())
		if err := p.Setup(ctx, inst); err != nil {
			return fmt.Errorf("setting up %s: %w", inst.Name, err)
		}
	}
	return nil
}
