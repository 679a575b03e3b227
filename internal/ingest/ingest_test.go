package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lodestone-ai/codegraph/internal/config"
	"github.com/lodestone-ai/codegraph/internal/embed"
	"github.com/lodestone-ai/codegraph/internal/model"
	"github.com/lodestone-ai/codegraph/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFixture(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}
	return root
}

var pythonFixture = map[string]string{
	"src/util.py": `def read_lines(path):
    return open(path).readlines()
`,
	"src/parser.py": `from src.util import read_lines


def parse_file(path):
    lines = read_lines(path)
    return len(lines)
`,
}

func newTestIngestor(t *testing.T, batcher *embed.Batcher) (*Ingestor, *store.Store) {
	t.Helper()
	st, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return New(discardLogger(), st, config.Default(), batcher), st
}

func TestIngestDirectory(t *testing.T) {
	root := writeFixture(t, pythonFixture)
	ing, st := newTestIngestor(t, nil)

	snap, err := ing.Ingest(context.Background(), Source{
		Name: "fixture", Type: model.SourceDirectory, Path: root,
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if snap.Status != model.SnapshotCompleted {
		t.Fatalf("status = %q, want completed", snap.Status)
	}
	if snap.LangProfile["python"] != 2 {
		t.Fatalf("lang profile = %v, want python:2", snap.LangProfile)
	}

	parseSyms, err := st.SymbolsByName(snap.ID, "parse_file")
	if err != nil {
		t.Fatalf("SymbolsByName: %v", err)
	}
	if len(parseSyms) != 1 {
		t.Fatalf("got %d parse_file symbols", len(parseSyms))
	}
	readSyms, err := st.SymbolsByName(snap.ID, "read_lines")
	if err != nil {
		t.Fatalf("SymbolsByName: %v", err)
	}
	if len(readSyms) != 1 {
		t.Fatalf("got %d read_lines symbols", len(readSyms))
	}

	// Call resolution linked parse_file -> read_lines across files.
	callers, err := st.Callers(readSyms[0].ID)
	if err != nil {
		t.Fatalf("Callers: %v", err)
	}
	if len(callers) != 1 || callers[0].Name != "parse_file" {
		t.Fatalf("callers of read_lines = %+v", callers)
	}

	// The absolute import produced a file-level edge.
	parserFile, err := st.FileByPath(snap.ID, "src/parser.py")
	if err != nil {
		t.Fatalf("FileByPath: %v", err)
	}
	deps, err := st.FileImports(parserFile.ID)
	if err != nil {
		t.Fatalf("FileImports: %v", err)
	}
	if len(deps) != 1 || deps[0].Path != "src/util.py" {
		t.Fatalf("parser.py imports = %+v", deps)
	}
	if parserFile.LOC == 0 || parserFile.Hash == "" {
		t.Fatalf("file stats missing: %+v", parserFile)
	}

	// Builtin calls (open, len, readlines) stay unresolved markers.
	unresolved, err := st.UnresolvedCallSites(snap.ID)
	if err != nil {
		t.Fatalf("UnresolvedCallSites: %v", err)
	}
	if len(unresolved) == 0 {
		t.Fatal("expected unresolved builtin call sites")
	}

	// Chunks were indexed for lexical search.
	hits, err := st.LexicalSearch(snap.ID, "parse_file", 10)
	if err != nil {
		t.Fatalf("LexicalSearch: %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("no lexical hits after ingestion")
	}
}

func TestIngestDuplicateDefinition(t *testing.T) {
	// A module-level name defined twice (import fallback pattern) must not
	// break the snapshot: symbols collapse to the last definition before
	// call sites and chunks reference them.
	files := map[string]string{
		"codec.py": `try:
    import fastjson

    def loads(s):
        return fastjson.loads(s)
except ImportError:
    import json

    def loads(s):
        return json.loads(s)
`,
		"app.py": `from codec import loads


def handle(raw):
    return loads(raw)
`,
	}
	root := writeFixture(t, files)
	ing, st := newTestIngestor(t, nil)

	snap, err := ing.Ingest(context.Background(), Source{
		Name: "dupes", Type: model.SourceDirectory, Path: root,
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if snap.Status != model.SnapshotCompleted {
		t.Fatalf("status = %q, want completed", snap.Status)
	}

	syms, err := st.SymbolsByName(snap.ID, "loads")
	if err != nil {
		t.Fatalf("SymbolsByName: %v", err)
	}
	if len(syms) != 1 {
		t.Fatalf("got %d loads symbols, want 1", len(syms))
	}

	// Cross-file resolution still reaches the surviving definition.
	callers, err := st.Callers(syms[0].ID)
	if err != nil {
		t.Fatalf("Callers: %v", err)
	}
	found := false
	for _, c := range callers {
		if c.Name == "handle" {
			found = true
		}
	}
	if !found {
		t.Fatalf("handle missing from callers of loads: %+v", callers)
	}
}

func TestIngestOversizeFile(t *testing.T) {
	files := map[string]string{
		"small.py": "def tiny():\n    pass\n",
		// Over the 2 MB default cap.
		"huge.py": "# filler\n" + strings.Repeat("x = 1\n", 400_000),
	}
	root := writeFixture(t, files)
	ing, st := newTestIngestor(t, nil)

	snap, err := ing.Ingest(context.Background(), Source{
		Name: "big", Type: model.SourceDirectory, Path: root,
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if snap.LangProfile["large_files"] != 1 {
		t.Fatalf("lang profile = %v, want large_files:1", snap.LangProfile)
	}

	huge, err := st.FileByPath(snap.ID, "huge.py")
	if err != nil {
		t.Fatalf("FileByPath: %v", err)
	}
	if len(huge.Tags) != 1 || huge.Tags[0] != "large_file" {
		t.Fatalf("huge.py tags = %v", huge.Tags)
	}
	if huge.LOC != 0 {
		t.Fatalf("oversize file loc = %d, want 0 (never read)", huge.LOC)
	}
	if syms, _ := st.SymbolsByName(snap.ID, "x"); len(syms) != 0 {
		t.Fatal("oversize file was parsed")
	}
}

// lenEmbedder embeds each text as [len, 1, 0].
type lenEmbedder struct{}

func (lenEmbedder) Dimension() int { return 3 }

func (lenEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, txt := range texts {
		out[i] = []float32{float32(len(txt)), 1, 0}
	}
	return out, nil
}

type failingEmbedder struct{}

func (failingEmbedder) Dimension() int { return 3 }

func (failingEmbedder) Embed(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("provider down")
}

func TestIngestWithEmbedder(t *testing.T) {
	root := writeFixture(t, pythonFixture)
	cfg := config.Default()
	batcher := embed.NewBatcher(discardLogger(), lenEmbedder{}, cfg.Embed)
	ing, st := newTestIngestor(t, batcher)

	snap, err := ing.Ingest(context.Background(), Source{
		Name: "embedded", Type: model.SourceDirectory, Path: root,
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	hits, err := st.VectorSearch(snap.ID, []float32{100, 1, 0}, 10)
	if err != nil {
		t.Fatalf("VectorSearch: %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("no vector hits; embeddings were not persisted")
	}
}

func TestIngestCompletesWhenEmbeddingFails(t *testing.T) {
	root := writeFixture(t, pythonFixture)
	cfg := config.Default()
	batcher := embed.NewBatcher(discardLogger(), failingEmbedder{}, cfg.Embed)
	ing, st := newTestIngestor(t, batcher)

	snap, err := ing.Ingest(context.Background(), Source{
		Name: "degraded", Type: model.SourceDirectory, Path: root,
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if snap.Status != model.SnapshotCompleted {
		t.Fatalf("status = %q, want completed despite embed failure", snap.Status)
	}

	// Zero vectors have no direction, so vector search returns nothing while
	// lexical search still works.
	vhits, err := st.VectorSearch(snap.ID, []float32{1, 0, 0}, 10)
	if err != nil {
		t.Fatalf("VectorSearch: %v", err)
	}
	if len(vhits) != 0 {
		t.Fatalf("zero-vector chunks surfaced: %v", vhits)
	}
	lhits, err := st.LexicalSearch(snap.ID, "read_lines", 10)
	if err != nil {
		t.Fatalf("LexicalSearch: %v", err)
	}
	if len(lhits) == 0 {
		t.Fatal("lexical search degraded too")
	}
}

func TestIngestMissingPath(t *testing.T) {
	ing, _ := newTestIngestor(t, nil)
	_, err := ing.Ingest(context.Background(), Source{
		Name: "nope", Type: model.SourceDirectory, Path: "/does/not/exist",
	})
	if err == nil {
		t.Fatal("expected error for missing source path")
	}
}
