package discover

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/lodestone-ai/codegraph/internal/lang"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func classify(t *testing.T, root string, opts *Options) map[string]FileInfo {
	t.Helper()
	files, err := Classify(context.Background(), root, opts)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	byRel := make(map[string]FileInfo, len(files))
	for _, f := range files {
		byRel[f.RelPath] = f
	}
	return byRel
}

func TestClassifyLanguagesAndIgnores(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/app.py", "print('hi')\n")
	writeFile(t, root, "src/util.ts", "export const x = 1;\n")
	writeFile(t, root, "main.go", "package main\n")
	writeFile(t, root, "README.md", "# hi\n")
	writeFile(t, root, "node_modules/lib/index.js", "module.exports = {};\n")
	writeFile(t, root, "__pycache__/app.cpython-311.pyc", "x")
	writeFile(t, root, "src/app.min.js", "var a=1;\n")

	byRel := classify(t, root, nil)

	if len(byRel) != 3 {
		t.Fatalf("got %d files, want 3: %v", len(byRel), byRel)
	}
	if byRel["src/app.py"].Language != lang.Python {
		t.Errorf("app.py language = %s", byRel["src/app.py"].Language)
	}
	if byRel["src/util.ts"].Language != lang.TypeScript {
		t.Errorf("util.ts language = %s", byRel["src/util.ts"].Language)
	}
	if _, ok := byRel["node_modules/lib/index.js"]; ok {
		t.Error("node_modules was not skipped")
	}
}

func TestClassifyGitignore(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".gitignore", "generated/\n*.gen.py\n")
	writeFile(t, root, "app.py", "x = 1\n")
	writeFile(t, root, "schema.gen.py", "y = 2\n")
	writeFile(t, root, "generated/client.py", "z = 3\n")

	byRel := classify(t, root, nil)

	if _, ok := byRel["app.py"]; !ok {
		t.Error("app.py missing")
	}
	if _, ok := byRel["schema.gen.py"]; ok {
		t.Error("*.gen.py not ignored")
	}
	if _, ok := byRel["generated/client.py"]; ok {
		t.Error("generated/ not ignored")
	}
}

func TestClassifyOversize(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "big.py", "x = 1\nx = 2\nx = 3\n")
	writeFile(t, root, "small.py", "x = 1\n")

	byRel := classify(t, root, &Options{MaxFileSize: 10})

	if !byRel["big.py"].Oversize {
		t.Error("big.py not flagged oversize")
	}
	if byRel["small.py"].Oversize {
		t.Error("small.py flagged oversize")
	}
}

func TestSkipOnErrorScope(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.py", "x = 1\n")

	dirInfo, err := os.Stat(root)
	if err != nil {
		t.Fatal(err)
	}
	fileInfo, err := os.Stat(filepath.Join(root, "a.py"))
	if err != nil {
		t.Fatal(err)
	}

	if got := skipOnError(dirInfo); got != filepath.SkipDir {
		t.Errorf("directory error = %v, want SkipDir", got)
	}
	// A failing file drops only itself; its siblings must still be walked.
	if got := skipOnError(fileInfo); got != nil {
		t.Errorf("file error = %v, want nil", got)
	}
	// Walk passes nil info when lstat itself failed on an entry.
	if got := skipOnError(nil); got != nil {
		t.Errorf("nil-info error = %v, want nil", got)
	}
}

func TestClassifySkipsUnreadableDirOnly(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("directory permissions are not enforced for root")
	}
	root := t.TempDir()
	writeFile(t, root, "blocked/hidden.py", "x = 1\n")
	writeFile(t, root, "visible.py", "y = 2\n")

	blocked := filepath.Join(root, "blocked")
	if err := os.Chmod(blocked, 0o000); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chmod(blocked, 0o755) })

	byRel := classify(t, root, nil)

	if _, ok := byRel["visible.py"]; !ok {
		t.Error("unreadable sibling directory dropped visible.py")
	}
	if _, ok := byRel["blocked/hidden.py"]; ok {
		t.Error("file inside unreadable directory was classified")
	}
}

func TestIsTestFile(t *testing.T) {
	cases := []struct {
		rel  string
		l    lang.Language
		want bool
	}{
		{"tests/test_app.py", lang.Python, true},
		{"app_test.py", lang.Python, true},
		{"conftest.py", lang.Python, true},
		{"app.py", lang.Python, false},
		{"store_test.go", lang.Go, true},
		{"store.go", lang.Go, false},
		{"src/app.test.ts", lang.TypeScript, true},
		{"src/app.spec.jsx", lang.JavaScript, true},
		{"src/__tests__/app.js", lang.JavaScript, true},
		{"src/app.ts", lang.TypeScript, false},
	}
	for _, tc := range cases {
		if got := isTestFile(tc.rel, tc.l); got != tc.want {
			t.Errorf("isTestFile(%q, %s) = %v, want %v", tc.rel, tc.l, got, tc.want)
		}
	}
}

func TestHashAndCountLines(t *testing.T) {
	a := Hash([]byte("hello"))
	b := Hash([]byte("hello"))
	c := Hash([]byte("world"))
	if a != b {
		t.Error("hash not deterministic")
	}
	if a == c {
		t.Error("distinct content hashed equal")
	}
	if len(a) != 32 {
		t.Errorf("hash hex length = %d, want 32", len(a))
	}

	if got := CountLines(nil); got != 0 {
		t.Errorf("CountLines(nil) = %d", got)
	}
	if got := CountLines([]byte("one\ntwo\n")); got != 2 {
		t.Errorf("CountLines = %d, want 2", got)
	}
	if got := CountLines([]byte("one\ntwo")); got != 2 {
		t.Errorf("CountLines no trailing newline = %d, want 2", got)
	}
}
