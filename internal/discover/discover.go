// Package discover walks a repository root and classifies source files.
package discover

import (
	"context"
	"encoding/hex"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
	"github.com/zeebo/xxh3"

	"github.com/lodestone-ai/codegraph/internal/lang"
)

// ignoreDirs are directory names skipped during the walk.
var ignoreDirs = map[string]bool{
	".cache": true, ".eggs": true, ".env": true, ".git": true,
	".gradle": true, ".hg": true, ".idea": true, ".mypy_cache": true,
	".nox": true, ".npm": true, ".nyc_output": true, ".pnpm-store": true,
	".pytest_cache": true, ".ruff_cache": true, ".svn": true, ".tox": true,
	".venv": true, ".vs": true, ".vscode": true, ".yarn": true,
	"__pycache__": true, "bower_components": true, "build": true,
	"coverage": true, "dist": true, "env": true, "htmlcov": true,
	"node_modules": true, "site-packages": true, "target": true,
	"vendor": true, "venv": true,
}

// ignoreSuffixes are file suffixes skipped during the walk.
var ignoreSuffixes = []string{
	".tmp", "~", ".pyc", ".pyo", ".o", ".a", ".so", ".dll",
	".class", ".min.js", ".map",
}

// FileInfo is one classified source file. Content is not read here; callers
// load bytes per file and use Hash/CountLines.
type FileInfo struct {
	Path     string // absolute path
	RelPath  string // relative to repo root, forward-slash separated
	Language lang.Language
	Size     int64
	IsTest   bool
	// Oversize files are indexed but never parsed.
	Oversize bool
}

// Options configures classification.
type Options struct {
	// MaxFileSize in bytes; files above it are flagged Oversize. 0 disables
	// the cap.
	MaxFileSize int64
	// Log receives walk-error warnings when set.
	Log *slog.Logger
}

// Classify walks repoPath and returns every supported source file. Ignore
// rules come from the built-in dir/suffix lists plus the repo's .gitignore
// when present.
func Classify(ctx context.Context, repoPath string, opts *Options) ([]FileInfo, error) {
	repoPath, err := filepath.Abs(repoPath)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var ign *gitignore.GitIgnore
	if compiled, err := gitignore.CompileIgnoreFile(filepath.Join(repoPath, ".gitignore")); err == nil {
		ign = compiled
	}

	var maxSize int64
	if opts != nil {
		maxSize = opts.MaxFileSize
	}

	var files []FileInfo
	err = filepath.Walk(repoPath, func(path string, info os.FileInfo, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			if opts != nil && opts.Log != nil {
				opts.Log.Warn("discover.walk_error", "path", path, "error", walkErr)
			}
			return skipOnError(info)
		}

		rel, _ := filepath.Rel(repoPath, path)
		rel = filepath.ToSlash(rel)

		if info.IsDir() {
			if path != repoPath && (ignoreDirs[info.Name()] || (ign != nil && ign.MatchesPath(rel+"/"))) {
				return filepath.SkipDir
			}
			return nil
		}

		for _, suffix := range ignoreSuffixes {
			if strings.HasSuffix(path, suffix) {
				return nil
			}
		}
		if ign != nil && ign.MatchesPath(rel) {
			return nil
		}

		l, ok := lang.LanguageForExtension(filepath.Ext(path))
		if !ok {
			return nil
		}

		files = append(files, FileInfo{
			Path:     path,
			RelPath:  rel,
			Language: l,
			Size:     info.Size(),
			IsTest:   isTestFile(rel, l),
			Oversize: maxSize > 0 && info.Size() > maxSize,
		})
		return nil
	})

	return files, err
}

// skipOnError scopes a walk error to the entry it hit: an unreadable
// directory drops its subtree, anything else drops only that entry so
// sibling files still get classified.
func skipOnError(info os.FileInfo) error {
	if info != nil && info.IsDir() {
		return filepath.SkipDir
	}
	return nil
}

// isTestFile applies per-language filename conventions.
func isTestFile(rel string, l lang.Language) bool {
	base := filepath.Base(rel)
	if strings.Contains(rel, "__tests__/") {
		return true
	}
	switch l {
	case lang.Python:
		return strings.HasPrefix(base, "test_") ||
			strings.HasSuffix(base, "_test.py") ||
			base == "conftest.py"
	case lang.Go:
		return strings.HasSuffix(base, "_test.go")
	default:
		// JS family: foo.test.ts, foo.spec.jsx, etc.
		name := strings.TrimSuffix(base, filepath.Ext(base))
		return strings.HasSuffix(name, ".test") || strings.HasSuffix(name, ".spec")
	}
}

// Hash returns the hex xxh3-128 digest of file content.
func Hash(data []byte) string {
	sum := xxh3.Hash128(data).Bytes()
	return hex.EncodeToString(sum[:])
}

// CountLines counts newline-terminated lines, counting a trailing partial
// line as one.
func CountLines(data []byte) int {
	if len(data) == 0 {
		return 0
	}
	n := 0
	for _, b := range data {
		if b == '\n' {
			n++
		}
	}
	if data[len(data)-1] != '\n' {
		n++
	}
	return n
}
