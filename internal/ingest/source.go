package ingest

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/lodestone-ai/codegraph/internal/model"
)

// materialize turns a Source into a readable directory. Remote git sources
// are shallow-cloned into a temp dir removed by the returned cleanup.
func (ing *Ingestor) materialize(ctx context.Context, src Source) (string, func(), error) {
	switch src.Type {
	case model.SourceDirectory, model.SourceGitLocal:
		info, err := os.Stat(src.Path)
		if err != nil {
			return "", nil, fmt.Errorf("source path: %w", err)
		}
		if !info.IsDir() {
			return "", nil, fmt.Errorf("source path %s is not a directory", src.Path)
		}
		return src.Path, nil, nil

	case model.SourceGitRemote:
		if src.RemoteURL == "" {
			return "", nil, fmt.Errorf("git_remote source needs a remote URL")
		}
		dir, err := os.MkdirTemp("", "codegraph-clone-*")
		if err != nil {
			return "", nil, fmt.Errorf("clone dir: %w", err)
		}
		cleanup := func() { os.RemoveAll(dir) }

		cmd := exec.CommandContext(ctx, "git", "clone", "--depth", "1", src.RemoteURL, dir)
		if out, err := cmd.CombinedOutput(); err != nil {
			cleanup()
			return "", nil, fmt.Errorf("git clone %s: %w: %s", src.RemoteURL, err, out)
		}
		ing.log.Info("ingest.cloned", "url", src.RemoteURL)
		return dir, cleanup, nil

	default:
		return "", nil, fmt.Errorf("unknown source type %q", src.Type)
	}
}

// headCommit reads HEAD for git-backed sources. A plain directory, or a git
// failure, yields an empty hash.
func headCommit(ctx context.Context, repoPath string, srcType model.SourceType) string {
	if srcType == model.SourceDirectory {
		return ""
	}
	cmd := exec.CommandContext(ctx, "git", "-C", repoPath, "rev-parse", "HEAD")
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
