package store

import (
	"fmt"
	"strings"
)

// Hit is one scored chunk id from a single search signal. Higher is better.
type Hit struct {
	ChunkID string
	Score   float64
}

// LexicalSearch runs an FTS5 query over chunk content, symbol names,
// signatures and file paths, returning bm25-ranked hits. bm25 is
// smaller-is-better and negative, so the score is negated.
func (s *Store) LexicalSearch(snapshotID, query string, limit int) ([]Hit, error) {
	match := ftsQuery(query)
	if match == "" {
		return nil, nil
	}

	rows, err := s.q.Query(`
		SELECT chunk_id, -bm25(chunks_fts) AS score
		FROM chunks_fts
		WHERE chunks_fts MATCH ? AND snapshot_id = ?
		ORDER BY score DESC
		LIMIT ?`, match, snapshotID, limit)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.ChunkID, &h.Score); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// ftsQuery quotes each term so user input cannot break FTS5 syntax. Terms
// are OR-ed; bm25 still ranks conjunctive matches higher.
func ftsQuery(query string) string {
	fields := strings.Fields(query)
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.ReplaceAll(f, `"`, `""`)
		terms = append(terms, `"`+f+`"`)
	}
	return strings.Join(terms, " OR ")
}
