// Package repocache prepares the shared local repositories examples are
// checked out from. Each distinct URL is prepared or verified exactly once per run.
package repocache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/signalnine/gauntlet/internal/gitops"
	"golang.org/x/sync/errgroup"
)

// ErrOriginMismatch is returned when a cached repository's origin is not the
// URL it is cached under.
var ErrOriginMismatch = errors.New("remote origin mismatch")

// Status describes what Prepare did for one URL.
type Status int

const (
	Initialized Status = iota
	Verified
)

func (s Status) String() string {
	if s == Verified {
		return "already cloned"
	}
	return "cloning"
}

// Operations performs the git work behind Prepare. gitOperations is the real
// implementation; tests substitute counters.
type Operations interface {
	// Exists reports whether path already holds a prepared repository.
	Exists(path string) bool
	// Init creates the repository at path and registers url as origin.
	Init(ctx context.Context, path, url string) error
	// Origin returns the origin URL registered at path.
	Origin(ctx context.Context, path string) (string, error)
}

type Cache struct {
	Root string
	Ops  Operations
	// Notify is called once per URL before its operation starts.
	Notify func(url string, status Status)
}

func New(root string) *Cache {
	return &Cache{Root: root, Ops: gitOperations{}}
}

// PathForURL maps a repository URL to its directory under root. The readable
// part is lossy, so a hash of the full URL keeps distinct URLs apart.
func PathForURL(root, url string) string {
	name := url
	if i := strings.Index(name, "://"); i >= 0 {
		name = name[i+3:]
	}
	name = strings.TrimSuffix(strings.TrimSuffix(name, "/"), ".git")
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	sum := sha256.Sum256([]byte(url))
	return filepath.Join(root, b.String()+"-"+hex.EncodeToString(sum[:6]))
}

func (c *Cache) Path(url string) string {
	return PathForURL(c.Root, url)
}

// DistinctURLs returns urls with duplicates removed, first occurrence first.
func DistinctURLs(urls []string) []string {
	seen := make(map[string]bool, len(urls))
	var out []string
	for _, u := range urls {
		if !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}
	return out
}

// Prepare initializes every repository that does not exist yet and verifies
// the origin of every one that does. Operations for distinct URLs run
// concurrently; Prepare returns only after all of them finished, with the
// first error. A failing URL does not cancel the others.
func (c *Cache) Prepare(ctx context.Context, urls []string) error {
	if err := os.MkdirAll(c.Root, 0o755); err != nil {
		return fmt.Errorf("creating repos dir: %w", err)
	}

	var g errgroup.Group
	for _, url := range DistinctURLs(urls) {
		path := c.Path(url)
		if c.Ops.Exists(path) {
			c.notify(url, Verified)
			g.Go(func() error {
				actual, err := c.Ops.Origin(ctx, path)
				if err != nil {
					return fmt.Errorf("reading origin of %s: %w", path, err)
				}
				if actual != url {
					return fmt.Errorf("%w: %s does not match expected origin %s", ErrOriginMismatch, actual, url)
				}
				return nil
			})
			continue
		}
		c.notify(url, Initialized)
		g.Go(func() error {
			if err := c.Ops.Init(ctx, path, url); err != nil {
				return fmt.Errorf("initializing %s: %w", url, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (c *Cache) notify(url string, status Status) {
	if c.Notify != nil {
		c.Notify(url, status)
	}
}

type gitOperations struct{}

func (gitOperations) Exists(path string) bool {
	info, err := os.Stat(filepath.Join(path, ".git"))
	return err == nil && info.IsDir()
}

// Init leaves nothing behind on failure, so a half-initialized repository
// is never mistaken for a prepared one.
func (gitOperations) Init(ctx context.Context, path, url string) (err error) {
	_, statErr := os.Stat(path)
	created := errors.Is(statErr, os.ErrNotExist)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return err
	}
	defer func() {
		if err == nil {
			return
		}
		if created {
			os.RemoveAll(path)
		} else {
			os.RemoveAll(filepath.Join(path, ".git"))
		}
	}()
	g := gitops.New(path)
	if err := g.Init(ctx); err != nil {
		return err
	}
	return g.AddRemote(ctx, "origin", url)
}

func (gitOperations) Origin(ctx context.Context, path string) (string, error) {
	return gitops.New(path).RemoteURL(ctx, "origin")
}
