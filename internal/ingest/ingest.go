// Package ingest orchestrates one snapshot build: discover files, extract
// entities in parallel, resolve cross-file references, chunk and embed, then
// persist the whole graph in one transaction.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/lodestone-ai/codegraph/internal/chunk"
	"github.com/lodestone-ai/codegraph/internal/config"
	"github.com/lodestone-ai/codegraph/internal/discover"
	"github.com/lodestone-ai/codegraph/internal/embed"
	"github.com/lodestone-ai/codegraph/internal/extract"
	"github.com/lodestone-ai/codegraph/internal/model"
	"github.com/lodestone-ai/codegraph/internal/resolve"
	"github.com/lodestone-ai/codegraph/internal/store"
)

// Source names the codebase to ingest.
type Source struct {
	Name      string
	Type      model.SourceType
	Path      string // directory or local clone root
	RemoteURL string // required for git_remote
}

// Ingestor builds snapshots. A nil batcher skips embeddings; lexical and
// graph retrieval still work on such snapshots.
type Ingestor struct {
	log     *slog.Logger
	store   *store.Store
	cfg     *config.Config
	batcher *embed.Batcher
}

func New(log *slog.Logger, st *store.Store, cfg *config.Config, batcher *embed.Batcher) *Ingestor {
	return &Ingestor{log: log, store: st, cfg: cfg, batcher: batcher}
}

// fileWork carries one file through the pipeline: the record, its source
// text and the extraction output. Slots stay zero-valued for oversize or
// unparseable files.
type fileWork struct {
	info    discover.FileInfo
	file    model.File
	content []byte
	result  *extract.Result
}

// Ingest runs the full pipeline and returns the completed snapshot. The
// snapshot row is created up front so a failure partway leaves a visible
// failed record.
func (ing *Ingestor) Ingest(ctx context.Context, src Source) (*model.Snapshot, error) {
	repoPath, cleanup, err := ing.materialize(ctx, src)
	if err != nil {
		return nil, err
	}
	if cleanup != nil {
		defer cleanup()
	}

	repo := model.Repo{
		ID:         model.NewID(),
		Name:       src.Name,
		SourceType: src.Type,
		RemoteURL:  src.RemoteURL,
	}
	snap := model.Snapshot{
		ID:         model.NewID(),
		RepoID:     repo.ID,
		CommitHash: headCommit(ctx, repoPath, src.Type),
		Status:     model.SnapshotPending,
	}
	if err := ing.store.CreateRepo(&repo); err != nil {
		return nil, err
	}
	if err := ing.store.CreateSnapshot(&snap); err != nil {
		return nil, err
	}
	if err := ing.store.SetSnapshotStatus(snap.ID, model.SnapshotProcessing, nil); err != nil {
		return nil, err
	}

	if err := ing.build(ctx, &snap, repoPath); err != nil {
		if statusErr := ing.store.SetSnapshotStatus(snap.ID, model.SnapshotFailed, nil); statusErr != nil {
			ing.log.Error("ingest.fail_status", "snapshot", snap.ID, "error", statusErr)
		}
		return nil, err
	}
	return ing.store.GetSnapshot(snap.ID)
}

func (ing *Ingestor) build(ctx context.Context, snap *model.Snapshot, repoPath string) error {
	infos, err := discover.Classify(ctx, repoPath, &discover.Options{
		MaxFileSize: int64(ing.cfg.Ingest.MaxFileSizeMB) * 1024 * 1024,
		Log:         ing.log,
	})
	if err != nil {
		return fmt.Errorf("discover: %w", err)
	}
	ing.log.Info("ingest.discovered", "snapshot", snap.ID, "files", len(infos))

	works := ing.extractAll(ctx, snap.ID, infos)
	if err := ctx.Err(); err != nil {
		return err
	}

	// Aggregate across files. Resolution needs the complete file and symbol
	// sets, so nothing below starts until every extractor has finished.
	var (
		files     []model.File
		symbols   []model.Symbol
		imports   []model.Import
		calls     []model.CallSite
		types     []model.TypeAnnotation
		endpoints []model.Endpoint
		edges     []model.Edge
	)
	for i := range works {
		w := &works[i]
		files = append(files, w.file)
		if w.result == nil {
			continue
		}
		symbols = append(symbols, w.result.Symbols...)
		imports = append(imports, w.result.Imports...)
		calls = append(calls, w.result.Calls...)
		types = append(types, w.result.Types...)
		endpoints = append(endpoints, w.result.Endpoints...)
		for _, sym := range w.result.Symbols {
			edges = append(edges, model.Edge{SourceID: w.file.ID, TargetID: sym.ID, Type: model.EdgeDefines})
		}
		for _, ep := range w.result.Endpoints {
			if ep.SymbolID != "" {
				edges = append(edges, model.Edge{SourceID: ep.ID, TargetID: ep.SymbolID, Type: model.EdgeHandles})
			}
		}
	}

	importEdges := resolve.NewImportResolver(ing.log, files).Resolve(imports)
	callEdges, resolvedIDs := resolve.NewCallResolver(ing.log, symbols).Resolve(calls)
	edges = append(edges, importEdges...)
	edges = append(edges, callEdges...)

	chunks := ing.chunkAll(works)
	for _, ch := range chunks {
		edges = append(edges, model.Edge{SourceID: ch.SymbolID, TargetID: ch.ID, Type: model.EdgeHasChunk})
	}
	ing.embedAll(ctx, chunks)

	err = ing.store.WithTransaction(func(tx *store.Store) error {
		if err := tx.UpsertFiles(files); err != nil {
			return err
		}
		if err := tx.UpsertSymbols(symbols); err != nil {
			return err
		}
		if err := tx.UpsertImports(imports); err != nil {
			return err
		}
		if err := tx.UpsertCallSites(calls); err != nil {
			return err
		}
		if err := tx.UpsertTypes(types); err != nil {
			return err
		}
		if err := tx.UpsertEndpoints(endpoints); err != nil {
			return err
		}
		if err := tx.UpsertChunks(chunks); err != nil {
			return err
		}
		if err := tx.UpsertEdges(snap.ID, edges); err != nil {
			return err
		}
		if err := tx.MarkCallSitesResolved(resolvedIDs); err != nil {
			return err
		}
		return tx.IndexSnapshotChunks(snap.ID)
	})
	if err != nil {
		return fmt.Errorf("persist snapshot: %w", err)
	}

	profile := langProfile(works)
	ing.log.Info("ingest.completed", "snapshot", snap.ID,
		"files", len(files), "symbols", len(symbols), "chunks", len(chunks),
		"resolved_calls", len(resolvedIDs))
	return ing.store.SetSnapshotStatus(snap.ID, model.SnapshotCompleted, profile)
}

// extractAll reads and parses every file concurrently. A file that fails to
// read or parse still produces its File record with empty extraction output.
func (ing *Ingestor) extractAll(ctx context.Context, snapshotID string, infos []discover.FileInfo) []fileWork {
	works := make([]fileWork, len(infos))

	workers := ing.cfg.Ingest.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range infos {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			works[i] = ing.extractOne(snapshotID, infos[i])
			return nil
		})
	}
	_ = g.Wait()
	return works
}

func (ing *Ingestor) extractOne(snapshotID string, info discover.FileInfo) fileWork {
	w := fileWork{info: info}
	w.file = model.File{
		ID:         model.NewID(),
		SnapshotID: snapshotID,
		Path:       info.RelPath,
		Language:   string(info.Language),
		IsTest:     info.IsTest,
	}

	if info.Oversize {
		w.file.Tags = []string{"large_file"}
		return w
	}

	content, err := os.ReadFile(info.Path)
	if err != nil {
		ing.log.Warn("ingest.read_failed", "path", info.RelPath, "error", err)
		return w
	}
	w.content = content
	w.file.Hash = discover.Hash(content)
	w.file.LOC = discover.CountLines(content)

	extractor, ok := extract.ForLanguage(info.Language)
	if !ok {
		return w
	}
	result, err := extractor.Extract(content, w.file.ID, snapshotID)
	if err != nil {
		ing.log.Warn("ingest.parse_failed", "path", info.RelPath, "error", err)
		return w
	}
	w.result = result
	return w
}

func (ing *Ingestor) chunkAll(works []fileWork) []model.Chunk {
	chunker := chunk.New(ing.cfg.Ingest.ContextLines)
	var chunks []model.Chunk
	for i := range works {
		w := &works[i]
		if w.result == nil || len(w.result.Symbols) == 0 {
			continue
		}
		chunks = append(chunks, chunker.ChunkFile(w.result.Symbols, string(w.content))...)
	}
	return chunks
}

// embedAll fills chunk embeddings in place. With no batcher configured,
// chunks stay unembedded and vector search skips them.
func (ing *Ingestor) embedAll(ctx context.Context, chunks []model.Chunk) {
	if ing.batcher == nil || len(chunks) == 0 {
		return
	}
	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = chunks[i].Content
	}
	vectors := ing.batcher.EmbedAll(ctx, texts)
	for i := range chunks {
		chunks[i].Embedding = vectors[i]
	}
}

// langProfile counts files per language, with oversize files also tallied
// under the large_files pseudo-language.
func langProfile(works []fileWork) map[string]int {
	profile := map[string]int{}
	for i := range works {
		profile[works[i].file.Language]++
		if works[i].info.Oversize {
			profile["large_files"]++
		}
	}
	return profile
}
