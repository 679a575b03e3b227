package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/lodestone-ai/codegraph/internal/model"
)

const symbolCols = "id, snapshot_id, file_id, kind, name, qual_name, signature, start_line, end_line, meta"

func scanSymbols(rows *sql.Rows) ([]model.Symbol, error) {
	var out []model.Symbol
	for rows.Next() {
		var sym model.Symbol
		var kind, meta string
		if err := rows.Scan(&sym.ID, &sym.SnapshotID, &sym.FileID, &kind, &sym.Name,
			&sym.QualName, &sym.Signature, &sym.StartLine, &sym.EndLine, &meta); err != nil {
			return nil, err
		}
		sym.Kind = model.SymbolKind(kind)
		sym.Meta = unmarshalJSON[model.SymbolMeta](meta)
		out = append(out, sym)
	}
	return out, rows.Err()
}

// SymbolsByName returns a snapshot's symbols whose short or qualified name
// matches exactly.
func (s *Store) SymbolsByName(snapshotID, name string) ([]model.Symbol, error) {
	rows, err := s.q.Query(`
		SELECT `+symbolCols+` FROM symbols
		WHERE snapshot_id=? AND (name=? OR qual_name=?)
		ORDER BY qual_name`, snapshotID, name, name)
	if err != nil {
		return nil, fmt.Errorf("symbols by name: %w", err)
	}
	defer rows.Close()
	return scanSymbols(rows)
}

// Callers returns the symbols whose resolved call sites target the given
// symbol.
func (s *Store) Callers(symbolID string) ([]model.Symbol, error) {
	rows, err := s.q.Query(`
		SELECT DISTINCT `+prefixCols("sym", symbolCols)+`
		FROM edges e
		JOIN call_sites cs ON cs.id = e.source_id
		JOIN symbols sym ON sym.id = cs.caller_symbol_id
		WHERE e.target_id = ? AND e.type = ?
		ORDER BY sym.qual_name`, symbolID, model.EdgeResolvesTo)
	if err != nil {
		return nil, fmt.Errorf("callers: %w", err)
	}
	defer rows.Close()
	return scanSymbols(rows)
}

// Callees returns the symbols targeted by the given symbol's resolved call
// sites.
func (s *Store) Callees(symbolID string) ([]model.Symbol, error) {
	rows, err := s.q.Query(`
		SELECT DISTINCT `+prefixCols("sym", symbolCols)+`
		FROM call_sites cs
		JOIN edges e ON e.source_id = cs.id AND e.type = ?
		JOIN symbols sym ON sym.id = e.target_id
		WHERE cs.caller_symbol_id = ?
		ORDER BY sym.qual_name`, model.EdgeResolvesTo, symbolID)
	if err != nil {
		return nil, fmt.Errorf("callees: %w", err)
	}
	defer rows.Close()
	return scanSymbols(rows)
}

// TraverseCallees walks the resolved call graph from a symbol, following
// callee edges up to maxDepth hops, bounded by limit.
func (s *Store) TraverseCallees(symbolID string, maxDepth, limit int) ([]model.Symbol, error) {
	rows, err := s.q.Query(`
		WITH RECURSIVE calls(src, dst) AS (
			SELECT cs.caller_symbol_id, e.target_id
			FROM call_sites cs
			JOIN edges e ON e.source_id = cs.id AND e.type = ?
		),
		walk(id, depth) AS (
			SELECT dst, 1 FROM calls WHERE src = ?
			UNION
			SELECT c.dst, w.depth + 1 FROM calls c
			JOIN walk w ON c.src = w.id
			WHERE w.depth < ?
		)
		SELECT DISTINCT `+prefixCols("sym", symbolCols)+`
		FROM walk
		JOIN symbols sym ON sym.id = walk.id
		LIMIT ?`, model.EdgeResolvesTo, symbolID, maxDepth, limit)
	if err != nil {
		return nil, fmt.Errorf("traverse callees: %w", err)
	}
	defer rows.Close()
	return scanSymbols(rows)
}

// CallNeighborChunks returns chunk ids owned by symbols one CALLS hop away
// (callers and callees) from any of the given symbols, in stable discovery
// order, bounded by limit.
func (s *Store) CallNeighborChunks(symbolIDs []string, limit int) ([]string, error) {
	if len(symbolIDs) == 0 || limit <= 0 {
		return nil, nil
	}

	placeholders := make([]string, len(symbolIDs))
	args := make([]any, 0, 2*len(symbolIDs)+3)
	args = append(args, model.EdgeResolvesTo)
	for i, id := range symbolIDs {
		placeholders[i] = "?"
		args = append(args, id)
	}
	in := strings.Join(placeholders, ", ")
	for _, id := range symbolIDs {
		args = append(args, id)
	}
	args = append(args, limit)

	rows, err := s.q.Query(`
		WITH calls(src, dst) AS (
			SELECT cs.caller_symbol_id, e.target_id
			FROM call_sites cs
			JOIN edges e ON e.source_id = cs.id AND e.type = ?
		),
		neighbors(id) AS (
			SELECT dst FROM calls WHERE src IN (`+in+`)
			UNION
			SELECT src FROM calls WHERE dst IN (`+in+`)
		)
		SELECT c.id FROM chunks c
		JOIN neighbors n ON n.id = c.symbol_id
		ORDER BY c.rowid
		LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("call neighbor chunks: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetChunksByIDs fetches chunks keyed by id, batched under the SQL variable
// limit.
func (s *Store) GetChunksByIDs(ids []string) (map[string]model.Chunk, error) {
	result := make(map[string]model.Chunk, len(ids))
	for start := 0; start < len(ids); start += maxSQLVars {
		end := min(len(ids), start+maxSQLVars)
		batch := ids[start:end]

		placeholders := make([]string, len(batch))
		args := make([]any, len(batch))
		for i, id := range batch {
			placeholders[i] = "?"
			args[i] = id
		}
		rows, err := s.q.Query(`
			SELECT id, snapshot_id, file_id, symbol_id, parent_chunk_id, type, content,
			       start_line, end_line, has_imports, has_docstring, embedding
			FROM chunks WHERE id IN (`+strings.Join(placeholders, ", ")+`)`, args...)
		if err != nil {
			return nil, fmt.Errorf("get chunks: %w", err)
		}
		for rows.Next() {
			var ch model.Chunk
			var chunkType string
			var hasImports, hasDocstring int
			var blob []byte
			if err := rows.Scan(&ch.ID, &ch.SnapshotID, &ch.FileID, &ch.SymbolID,
				&ch.ParentChunkID, &chunkType, &ch.Content, &ch.StartLine, &ch.EndLine,
				&hasImports, &hasDocstring, &blob); err != nil {
				rows.Close()
				return nil, err
			}
			ch.Type = model.ChunkType(chunkType)
			ch.HasImports = hasImports != 0
			ch.HasDocstring = hasDocstring != 0
			ch.Embedding = decodeEmbedding(blob)
			result[ch.ID] = ch
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return result, nil
}

// FileByPath looks up one file of a snapshot by its slash-normalized path.
func (s *Store) FileByPath(snapshotID, path string) (*model.File, error) {
	row := s.q.QueryRow(`
		SELECT id, snapshot_id, path, language, hash, loc, is_test, tags
		FROM files WHERE snapshot_id=? AND path=?`, snapshotID, path)
	return scanFileRow(row)
}

func scanFileRow(row *sql.Row) (*model.File, error) {
	var f model.File
	var isTest int
	var tags string
	if err := row.Scan(&f.ID, &f.SnapshotID, &f.Path, &f.Language, &f.Hash,
		&f.LOC, &isTest, &tags); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}
	f.IsTest = isTest != 0
	f.Tags = unmarshalJSON[[]string](tags)
	return &f, nil
}

func (s *Store) filesByEdge(fileID, selectCol, whereCol string) ([]model.File, error) {
	rows, err := s.q.Query(`
		SELECT f.id, f.snapshot_id, f.path, f.language, f.hash, f.loc, f.is_test, f.tags
		FROM edges e
		JOIN files f ON f.id = e.`+selectCol+`
		WHERE e.`+whereCol+` = ? AND e.type = ?
		ORDER BY f.path`, fileID, model.EdgeImports)
	if err != nil {
		return nil, fmt.Errorf("files by edge: %w", err)
	}
	defer rows.Close()

	var out []model.File
	for rows.Next() {
		var f model.File
		var isTest int
		var tags string
		if err := rows.Scan(&f.ID, &f.SnapshotID, &f.Path, &f.Language, &f.Hash,
			&f.LOC, &isTest, &tags); err != nil {
			return nil, err
		}
		f.IsTest = isTest != 0
		f.Tags = unmarshalJSON[[]string](tags)
		out = append(out, f)
	}
	return out, rows.Err()
}

// FileImports returns the files a file imports (outgoing IMPORTS edges).
func (s *Store) FileImports(fileID string) ([]model.File, error) {
	return s.filesByEdge(fileID, "target_id", "source_id")
}

// ReverseDependencies returns the files importing the given file.
func (s *Store) ReverseDependencies(fileID string) ([]model.File, error) {
	return s.filesByEdge(fileID, "source_id", "target_id")
}

// EndpointsByTag groups a snapshot's endpoints by tag. Untagged endpoints
// land under the empty key.
func (s *Store) EndpointsByTag(snapshotID string) (map[string][]model.Endpoint, error) {
	rows, err := s.q.Query(`
		SELECT id, snapshot_id, file_id, symbol_id, method, path, tags, framework
		FROM endpoints WHERE snapshot_id=? ORDER BY path, method`, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("endpoints: %w", err)
	}
	defer rows.Close()

	grouped := map[string][]model.Endpoint{}
	for rows.Next() {
		var ep model.Endpoint
		var tags string
		if err := rows.Scan(&ep.ID, &ep.SnapshotID, &ep.FileID, &ep.SymbolID,
			&ep.Method, &ep.Path, &tags, &ep.Framework); err != nil {
			return nil, err
		}
		ep.Tags = unmarshalJSON[[]string](tags)
		if len(ep.Tags) == 0 {
			grouped[""] = append(grouped[""], ep)
			continue
		}
		for _, tag := range ep.Tags {
			grouped[tag] = append(grouped[tag], ep)
		}
	}
	return grouped, rows.Err()
}

// TypeCount is one type name with its occurrence count.
type TypeCount struct {
	TypeName string
	Category model.TypeCategory
	Count    int
}

// TypeUsageStats returns per-category counts and the most used type names of
// a snapshot.
func (s *Store) TypeUsageStats(snapshotID string, topN int) (map[model.TypeCategory]int, []TypeCount, error) {
	rows, err := s.q.Query(`
		SELECT category, COUNT(*) FROM type_annotations
		WHERE snapshot_id=? GROUP BY category`, snapshotID)
	if err != nil {
		return nil, nil, fmt.Errorf("type stats: %w", err)
	}
	byCategory := map[model.TypeCategory]int{}
	for rows.Next() {
		var cat string
		var n int
		if err := rows.Scan(&cat, &n); err != nil {
			rows.Close()
			return nil, nil, err
		}
		byCategory[model.TypeCategory(cat)] = n
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, nil, err
	}
	rows.Close()

	rows, err = s.q.Query(`
		SELECT type_name, category, COUNT(*) AS n FROM type_annotations
		WHERE snapshot_id=? GROUP BY type_name, category
		ORDER BY n DESC, type_name
		LIMIT ?`, snapshotID, topN)
	if err != nil {
		return nil, nil, fmt.Errorf("type stats: %w", err)
	}
	defer rows.Close()

	var top []TypeCount
	for rows.Next() {
		var tc TypeCount
		var cat string
		if err := rows.Scan(&tc.TypeName, &cat, &tc.Count); err != nil {
			return nil, nil, err
		}
		tc.Category = model.TypeCategory(cat)
		top = append(top, tc)
	}
	return byCategory, top, rows.Err()
}

// SymbolsByTypeName returns the symbols annotated with an exact type name.
func (s *Store) SymbolsByTypeName(snapshotID, typeName string) ([]model.Symbol, error) {
	rows, err := s.q.Query(`
		SELECT DISTINCT `+prefixCols("sym", symbolCols)+`
		FROM type_annotations ta
		JOIN symbols sym ON sym.id = ta.symbol_id
		WHERE ta.snapshot_id=? AND ta.type_name=?
		ORDER BY sym.qual_name`, snapshotID, typeName)
	if err != nil {
		return nil, fmt.Errorf("symbols by type: %w", err)
	}
	defer rows.Close()
	return scanSymbols(rows)
}

// UnresolvedCallSites returns a snapshot's call sites still awaiting
// resolution.
func (s *Store) UnresolvedCallSites(snapshotID string) ([]model.CallSite, error) {
	rows, err := s.q.Query(`
		SELECT id, snapshot_id, caller_symbol_id, callee_name, kind, line, resolved
		FROM call_sites WHERE snapshot_id=? AND resolved=0`, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("unresolved call sites: %w", err)
	}
	defer rows.Close()

	var out []model.CallSite
	for rows.Next() {
		var c model.CallSite
		var kind string
		var resolved int
		if err := rows.Scan(&c.ID, &c.SnapshotID, &c.CallerSymbolID, &c.CalleeName,
			&kind, &c.Line, &resolved); err != nil {
			return nil, err
		}
		c.Kind = model.CallKind(kind)
		c.Resolved = resolved != 0
		out = append(out, c)
	}
	return out, rows.Err()
}

// LatestCompletedSnapshot returns the most recently created completed
// snapshot, or nil when none exists.
func (s *Store) LatestCompletedSnapshot() (*model.Snapshot, error) {
	row := s.q.QueryRow(`
		SELECT id FROM snapshots WHERE status=?
		ORDER BY created_at DESC, rowid DESC LIMIT 1`, model.SnapshotCompleted)
	var id string
	if err := row.Scan(&id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("latest snapshot: %w", err)
	}
	return s.GetSnapshot(id)
}

// prefixCols qualifies a comma-separated column list with a table alias.
func prefixCols(alias, cols string) string {
	parts := strings.Split(cols, ", ")
	for i, p := range parts {
		parts[i] = alias + "." + p
	}
	return strings.Join(parts, ", ")
}
