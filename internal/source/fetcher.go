// Package source materializes component sources before a build. Local paths
// pass through untouched; git URLs are cloned into the work directory.
package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	git "github.com/go-git/go-git/v5"
	"github.com/rs/zerolog"
)

// Fetcher clones remote component sources into a local work directory.
type Fetcher struct {
	workDir string
	logger  zerolog.Logger
}

// NewFetcher creates a fetcher rooted at workDir.
func NewFetcher(workDir string, logger zerolog.Logger) *Fetcher {
	return &Fetcher{
		workDir: workDir,
		logger:  logger.With().Str("component", "source").Logger(),
	}
}

// IsRemote reports whether a component path refers to a git remote rather
// than a local directory.
func IsRemote(path string) bool {
	return strings.HasPrefix(path, "http://") ||
		strings.HasPrefix(path, "https://") ||
		strings.HasPrefix(path, "git@")
}

// Ensure returns a local directory containing the component source. Remote
// paths are cloned once per run; an existing checkout is reused.
func (f *Fetcher) Ensure(ctx context.Context, component, path string) (string, error) {
	if !IsRemote(path) {
		return path, nil
	}

	dest := filepath.Join(f.workDir, component)
	if _, err := os.Stat(filepath.Join(dest, ".git")); err == nil {
		f.logger.Debug().Str("component", component).Str("dest", dest).Msg("Reusing existing checkout")
		return dest, nil
	}

	f.logger.Info().
		Str("component", component).
		Str("url", path).
		Str("dest", dest).
		Msg("Cloning component source")

	if err := os.MkdirAll(f.workDir, 0755); err != nil {
		return "", fmt.Errorf("create work dir: %w", err)
	}

	_, err := git.PlainCloneContext(ctx, dest, false, &git.CloneOptions{
		URL:   path,
		Depth: 1,
	})
	if err != nil {
		return "", fmt.Errorf("clone %s: %w", path, err)
	}

	return dest, nil
}
