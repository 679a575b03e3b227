package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/lodestone-ai/codegraph/internal/model"
)

// maxSQLVars is SQLite's bound-parameter ceiling; batches stay under it.
const maxSQLVars = 999

func batchSize(cols int) int {
	return (maxSQLVars - 1) / cols
}

func timeText(t time.Time) string {
	if t.IsZero() {
		return Now()
	}
	return t.UTC().Format(time.RFC3339)
}

// CreateRepo inserts a repo record.
func (s *Store) CreateRepo(r *model.Repo) error {
	_, err := s.q.Exec(`
		INSERT INTO repos (id, name, source_type, remote_url, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name=excluded.name`,
		r.ID, r.Name, string(r.SourceType), r.RemoteURL, timeText(r.CreatedAt))
	if err != nil {
		return fmt.Errorf("create repo: %w", err)
	}
	return nil
}

// CreateSnapshot inserts a snapshot record in its initial status.
func (s *Store) CreateSnapshot(snap *model.Snapshot) error {
	_, err := s.q.Exec(`
		INSERT INTO snapshots (id, repo_id, commit_hash, status, lang_profile, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		snap.ID, snap.RepoID, snap.CommitHash, string(snap.Status),
		marshalJSON(snap.LangProfile), timeText(snap.CreatedAt))
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	return nil
}

// SetSnapshotStatus transitions a snapshot's lifecycle status, updating the
// language profile when one is given.
func (s *Store) SetSnapshotStatus(id string, status model.SnapshotStatus, langProfile map[string]int) error {
	var err error
	if langProfile != nil {
		_, err = s.q.Exec(`UPDATE snapshots SET status=?, lang_profile=? WHERE id=?`,
			string(status), marshalJSON(langProfile), id)
	} else {
		_, err = s.q.Exec(`UPDATE snapshots SET status=? WHERE id=?`, string(status), id)
	}
	if err != nil {
		return fmt.Errorf("set snapshot status: %w", err)
	}
	return nil
}

// GetSnapshot fetches one snapshot by id.
func (s *Store) GetSnapshot(id string) (*model.Snapshot, error) {
	row := s.q.QueryRow(`
		SELECT id, repo_id, commit_hash, status, lang_profile, created_at
		FROM snapshots WHERE id=?`, id)

	var snap model.Snapshot
	var status, profile, created string
	if err := row.Scan(&snap.ID, &snap.RepoID, &snap.CommitHash, &status, &profile, &created); err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	snap.Status = model.SnapshotStatus(status)
	snap.LangProfile = unmarshalJSON[map[string]int](profile)
	snap.CreatedAt, _ = time.Parse(time.RFC3339, created)
	return &snap, nil
}

// UpsertFiles batch-inserts file records, idempotent by id.
func (s *Store) UpsertFiles(files []model.File) error {
	const cols = 8
	for start := 0; start < len(files); start += batchSize(cols) {
		end := min(len(files), start+batchSize(cols))
		batch := files[start:end]

		placeholders := make([]string, 0, len(batch))
		args := make([]any, 0, len(batch)*cols)
		for _, f := range batch {
			placeholders = append(placeholders, "(?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args, f.ID, f.SnapshotID, f.Path, f.Language, f.Hash,
				f.LOC, boolInt(f.IsTest), marshalJSON(f.Tags))
		}
		_, err := s.q.Exec(`
			INSERT INTO files (id, snapshot_id, path, language, hash, loc, is_test, tags)
			VALUES `+strings.Join(placeholders, ", ")+`
			ON CONFLICT(id) DO UPDATE SET
				hash=excluded.hash, loc=excluded.loc, tags=excluded.tags`, args...)
		if err != nil {
			return fmt.Errorf("upsert files: %w", err)
		}
	}
	return nil
}

// UpsertSymbols batch-inserts symbols. The (file_id, qual_name) constraint
// collapses duplicate qualified names within one file.
func (s *Store) UpsertSymbols(symbols []model.Symbol) error {
	const cols = 10
	for start := 0; start < len(symbols); start += batchSize(cols) {
		end := min(len(symbols), start+batchSize(cols))
		batch := symbols[start:end]

		placeholders := make([]string, 0, len(batch))
		args := make([]any, 0, len(batch)*cols)
		for _, sym := range batch {
			placeholders = append(placeholders, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args, sym.ID, sym.SnapshotID, sym.FileID, string(sym.Kind),
				sym.Name, sym.QualName, sym.Signature, sym.StartLine, sym.EndLine,
				marshalJSON(sym.Meta))
		}
		_, err := s.q.Exec(`
			INSERT INTO symbols (id, snapshot_id, file_id, kind, name, qual_name, signature, start_line, end_line, meta)
			VALUES `+strings.Join(placeholders, ", ")+`
			ON CONFLICT(file_id, qual_name) DO UPDATE SET
				signature=excluded.signature, start_line=excluded.start_line,
				end_line=excluded.end_line, meta=excluded.meta`, args...)
		if err != nil {
			return fmt.Errorf("upsert symbols: %w", err)
		}
	}
	return nil
}

// UpsertImports batch-inserts import statements.
func (s *Store) UpsertImports(imports []model.Import) error {
	const cols = 8
	for start := 0; start < len(imports); start += batchSize(cols) {
		end := min(len(imports), start+batchSize(cols))
		batch := imports[start:end]

		placeholders := make([]string, 0, len(batch))
		args := make([]any, 0, len(batch)*cols)
		for _, imp := range batch {
			placeholders = append(placeholders, "(?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args, imp.ID, imp.SnapshotID, imp.FileID, imp.Module,
				marshalJSON(imp.Names), imp.Alias, imp.RelativeDepth, imp.Line)
		}
		_, err := s.q.Exec(`
			INSERT INTO imports (id, snapshot_id, file_id, module, names, alias, relative_depth, line)
			VALUES `+strings.Join(placeholders, ", ")+`
			ON CONFLICT(id) DO NOTHING`, args...)
		if err != nil {
			return fmt.Errorf("upsert imports: %w", err)
		}
	}
	return nil
}

// UpsertCallSites batch-inserts call sites. The resolved flag only moves
// forward: a re-run cannot flip a resolved site back.
func (s *Store) UpsertCallSites(calls []model.CallSite) error {
	const cols = 7
	for start := 0; start < len(calls); start += batchSize(cols) {
		end := min(len(calls), start+batchSize(cols))
		batch := calls[start:end]

		placeholders := make([]string, 0, len(batch))
		args := make([]any, 0, len(batch)*cols)
		for _, c := range batch {
			placeholders = append(placeholders, "(?, ?, ?, ?, ?, ?, ?)")
			args = append(args, c.ID, c.SnapshotID, c.CallerSymbolID, c.CalleeName,
				string(c.Kind), c.Line, boolInt(c.Resolved))
		}
		_, err := s.q.Exec(`
			INSERT INTO call_sites (id, snapshot_id, caller_symbol_id, callee_name, kind, line, resolved)
			VALUES `+strings.Join(placeholders, ", ")+`
			ON CONFLICT(id) DO UPDATE SET
				resolved=MAX(call_sites.resolved, excluded.resolved)`, args...)
		if err != nil {
			return fmt.Errorf("upsert call sites: %w", err)
		}
	}
	return nil
}

// MarkCallSitesResolved flips the resolved flag for the given ids in one
// batch phase, avoiding per-record read-modify-write.
func (s *Store) MarkCallSitesResolved(ids []string) error {
	for start := 0; start < len(ids); start += maxSQLVars - 1 {
		end := min(len(ids), start+maxSQLVars-1)
		batch := ids[start:end]

		placeholders := make([]string, len(batch))
		args := make([]any, len(batch))
		for i, id := range batch {
			placeholders[i] = "?"
			args[i] = id
		}
		_, err := s.q.Exec(`UPDATE call_sites SET resolved=1 WHERE id IN (`+
			strings.Join(placeholders, ", ")+`)`, args...)
		if err != nil {
			return fmt.Errorf("mark call sites resolved: %w", err)
		}
	}
	return nil
}

// UpsertTypes batch-inserts type annotations.
func (s *Store) UpsertTypes(types []model.TypeAnnotation) error {
	const cols = 7
	for start := 0; start < len(types); start += batchSize(cols) {
		end := min(len(types), start+batchSize(cols))
		batch := types[start:end]

		placeholders := make([]string, 0, len(batch))
		args := make([]any, 0, len(batch)*cols)
		for _, ta := range batch {
			placeholders = append(placeholders, "(?, ?, ?, ?, ?, ?, ?)")
			args = append(args, ta.ID, ta.SnapshotID, ta.SymbolID, ta.TypeName,
				string(ta.Category), boolInt(ta.Optional), boolInt(ta.IsArray))
		}
		_, err := s.q.Exec(`
			INSERT INTO type_annotations (id, snapshot_id, symbol_id, type_name, category, optional, is_array)
			VALUES `+strings.Join(placeholders, ", ")+`
			ON CONFLICT(id) DO NOTHING`, args...)
		if err != nil {
			return fmt.Errorf("upsert types: %w", err)
		}
	}
	return nil
}

// UpsertChunks batch-inserts chunks with their embeddings.
func (s *Store) UpsertChunks(chunks []model.Chunk) error {
	const cols = 12
	for start := 0; start < len(chunks); start += batchSize(cols) {
		end := min(len(chunks), start+batchSize(cols))
		batch := chunks[start:end]

		placeholders := make([]string, 0, len(batch))
		args := make([]any, 0, len(batch)*cols)
		for _, ch := range batch {
			placeholders = append(placeholders, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args, ch.ID, ch.SnapshotID, ch.FileID, ch.SymbolID,
				ch.ParentChunkID, string(ch.Type), ch.Content, ch.StartLine, ch.EndLine,
				boolInt(ch.HasImports), boolInt(ch.HasDocstring), encodeEmbedding(ch.Embedding))
		}
		_, err := s.q.Exec(`
			INSERT INTO chunks (id, snapshot_id, file_id, symbol_id, parent_chunk_id, type, content, start_line, end_line, has_imports, has_docstring, embedding)
			VALUES `+strings.Join(placeholders, ", ")+`
			ON CONFLICT(id) DO UPDATE SET
				content=excluded.content, embedding=excluded.embedding`, args...)
		if err != nil {
			return fmt.Errorf("upsert chunks: %w", err)
		}
	}
	return nil
}

// UpsertEndpoints batch-inserts endpoint records.
func (s *Store) UpsertEndpoints(endpoints []model.Endpoint) error {
	const cols = 8
	for start := 0; start < len(endpoints); start += batchSize(cols) {
		end := min(len(endpoints), start+batchSize(cols))
		batch := endpoints[start:end]

		placeholders := make([]string, 0, len(batch))
		args := make([]any, 0, len(batch)*cols)
		for _, ep := range batch {
			placeholders = append(placeholders, "(?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args, ep.ID, ep.SnapshotID, ep.FileID, ep.SymbolID,
				ep.Method, ep.Path, marshalJSON(ep.Tags), ep.Framework)
		}
		_, err := s.q.Exec(`
			INSERT INTO endpoints (id, snapshot_id, file_id, symbol_id, method, path, tags, framework)
			VALUES `+strings.Join(placeholders, ", ")+`
			ON CONFLICT(id) DO NOTHING`, args...)
		if err != nil {
			return fmt.Errorf("upsert endpoints: %w", err)
		}
	}
	return nil
}

// UpsertEdges batch-inserts edges. The (source, target, type, module) key
// makes re-running a resolution phase a no-op.
func (s *Store) UpsertEdges(snapshotID string, edges []model.Edge) error {
	const cols = 5
	for start := 0; start < len(edges); start += batchSize(cols) {
		end := min(len(edges), start+batchSize(cols))
		batch := edges[start:end]

		placeholders := make([]string, 0, len(batch))
		args := make([]any, 0, len(batch)*cols)
		for _, e := range batch {
			placeholders = append(placeholders, "(?, ?, ?, ?, ?)")
			args = append(args, snapshotID, e.SourceID, e.TargetID, e.Type, e.Module)
		}
		_, err := s.q.Exec(`
			INSERT INTO edges (snapshot_id, source_id, target_id, type, module)
			VALUES `+strings.Join(placeholders, ", ")+`
			ON CONFLICT(source_id, target_id, type, module) DO NOTHING`, args...)
		if err != nil {
			return fmt.Errorf("upsert edges: %w", err)
		}
	}
	return nil
}

// IndexSnapshotChunks rebuilds the FTS rows for one snapshot from the
// persisted chunks, symbols and files.
func (s *Store) IndexSnapshotChunks(snapshotID string) error {
	if _, err := s.q.Exec(`DELETE FROM chunks_fts WHERE snapshot_id=?`, snapshotID); err != nil {
		return fmt.Errorf("clear fts: %w", err)
	}
	_, err := s.q.Exec(`
		INSERT INTO chunks_fts (content, symbol_name, signature, file_path, chunk_id, snapshot_id)
		SELECT c.content, sym.name, sym.signature, f.path, c.id, c.snapshot_id
		FROM chunks c
		JOIN symbols sym ON sym.id = c.symbol_id
		JOIN files f ON f.id = c.file_id
		WHERE c.snapshot_id = ?`, snapshotID)
	if err != nil {
		return fmt.Errorf("index chunks: %w", err)
	}
	return nil
}
