package store

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

// Embeddings are stored as little-endian float32 BLOBs; similarity runs in
// Go over the snapshot's chunk set. Zero vectors (failed embedding batches)
// have no norm and are skipped.

func encodeEmbedding(vec []float32) []byte {
	if len(vec) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

func decodeEmbedding(buf []byte) []float32 {
	if len(buf) == 0 || len(buf)%4 != 0 {
		return nil
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return vec
}

// cosineSimilarity returns 0 when either vector has zero norm or the
// dimensions differ.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// VectorSearch returns the top-k chunks of a snapshot by cosine similarity
// to the query vector.
func (s *Store) VectorSearch(snapshotID string, query []float32, limit int) ([]Hit, error) {
	if len(query) == 0 {
		return nil, nil
	}

	rows, err := s.q.Query(`
		SELECT id, embedding FROM chunks
		WHERE snapshot_id = ? AND embedding IS NOT NULL`, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, err
		}
		score := cosineSimilarity(query, decodeEmbedding(blob))
		if score <= 0 {
			continue
		}
		hits = append(hits, Hit{ChunkID: id, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}
