package retrieve

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/lodestone-ai/codegraph/internal/config"
	"github.com/lodestone-ai/codegraph/internal/model"
	"github.com/lodestone-ai/codegraph/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeIndex struct {
	lexHits   []store.Hit
	lexErr    error
	vecHits   []store.Hit
	vecErr    error
	neighbors []string
	chunks    map[string]model.Chunk

	lexCalls      int
	vecCalls      int
	neighborCalls int
}

func (f *fakeIndex) LexicalSearch(_, _ string, _ int) ([]store.Hit, error) {
	f.lexCalls++
	return f.lexHits, f.lexErr
}

func (f *fakeIndex) VectorSearch(_ string, _ []float32, _ int) ([]store.Hit, error) {
	f.vecCalls++
	return f.vecHits, f.vecErr
}

func (f *fakeIndex) CallNeighborChunks(_ []string, _ int) ([]string, error) {
	f.neighborCalls++
	return f.neighbors, nil
}

func (f *fakeIndex) GetChunksByIDs(ids []string) (map[string]model.Chunk, error) {
	out := map[string]model.Chunk{}
	for _, id := range ids {
		if ch, ok := f.chunks[id]; ok {
			out[id] = ch
		}
	}
	return out, nil
}

type fixedEmbedder struct{ vec []float32 }

func (f fixedEmbedder) Dimension() int { return len(f.vec) }

func (f fixedEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = f.vec
	}
	return out, nil
}

func mkChunks(ids ...string) map[string]model.Chunk {
	out := map[string]model.Chunk{}
	for _, id := range ids {
		out[id] = model.Chunk{ID: id, SymbolID: "sym-" + id, Content: "chunk " + id}
	}
	return out
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestLexicalOnlyMatchesLexicalRanking(t *testing.T) {
	idx := &fakeIndex{
		lexHits: []store.Hit{{ChunkID: "c1", Score: 5}, {ChunkID: "c2", Score: 3}, {ChunkID: "c3", Score: 1}},
		chunks:  mkChunks("c1", "c2", "c3"),
	}
	r := New(discardLogger(), idx, nil, config.SearchConfig{
		TopK: 10, LexicalWeight: 1, VectorWeight: 0, GraphWeight: 0,
	})

	results, err := r.Retrieve(context.Background(), Request{SnapshotID: "s", Query: "q"})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	for i, want := range []string{"c1", "c2", "c3"} {
		if results[i].Chunk.ID != want {
			t.Fatalf("result %d = %s, want %s", i, results[i].Chunk.ID, want)
		}
	}
	// Top lexical contribution normalizes to exactly 1.
	if !approx(results[0].Lexical, 1) || !approx(results[0].Score, 1) {
		t.Fatalf("top result lexical=%f score=%f, want 1", results[0].Lexical, results[0].Score)
	}
	if !approx(results[1].Score, 3.0/5.0) {
		t.Fatalf("second score = %f, want 0.6", results[1].Score)
	}
	if idx.vecCalls != 0 {
		t.Fatal("vector signal ran with zero weight")
	}
}

func TestWeightedFusionMergesByChunk(t *testing.T) {
	idx := &fakeIndex{
		lexHits: []store.Hit{{ChunkID: "c1", Score: 4}, {ChunkID: "c2", Score: 2}},
		vecHits: []store.Hit{{ChunkID: "c2", Score: 0.8}, {ChunkID: "c3", Score: 0.4}},
		chunks:  mkChunks("c1", "c2", "c3"),
	}
	r := New(discardLogger(), idx, fixedEmbedder{vec: []float32{1}}, config.SearchConfig{
		TopK: 10, LexicalWeight: 0.3, VectorWeight: 0.5, GraphWeight: 0,
	})

	results, err := r.Retrieve(context.Background(), Request{SnapshotID: "s", Query: "q"})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}

	// c2 appears in both lists: 0.3*0.5 + 0.5*1.0 = 0.65.
	if results[0].Chunk.ID != "c2" || !approx(results[0].Score, 0.65) {
		t.Fatalf("top = %s score %f, want c2 at 0.65", results[0].Chunk.ID, results[0].Score)
	}
	if results[1].Chunk.ID != "c1" || !approx(results[1].Score, 0.3) {
		t.Fatalf("second = %s score %f, want c1 at 0.3", results[1].Chunk.ID, results[1].Score)
	}
	if results[2].Chunk.ID != "c3" || !approx(results[2].Score, 0.25) {
		t.Fatalf("third = %s score %f, want c3 at 0.25", results[2].Chunk.ID, results[2].Score)
	}
}

func TestGraphExpansionAddsNewChunksOnly(t *testing.T) {
	idx := &fakeIndex{
		lexHits:   []store.Hit{{ChunkID: "c1", Score: 2}, {ChunkID: "c2", Score: 1}},
		neighbors: []string{"c3", "c1"}, // c1 already scored by text
		chunks:    mkChunks("c1", "c2", "c3"),
	}
	r := New(discardLogger(), idx, nil, config.SearchConfig{
		TopK: 10, LexicalWeight: 0.5, VectorWeight: 0, GraphWeight: 0.2,
	})

	results, err := r.Retrieve(context.Background(), Request{SnapshotID: "s", Query: "q"})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if results[0].Chunk.ID != "c1" || !approx(results[0].Score, 0.5) {
		t.Fatalf("top = %s score %f", results[0].Chunk.ID, results[0].Score)
	}
	last := results[2]
	if last.Chunk.ID != "c3" || !approx(last.Score, 0.2) || !approx(last.Graph, 1) {
		t.Fatalf("graph result = %s score %f graph %f, want c3 at flat 0.2",
			last.Chunk.ID, last.Score, last.Graph)
	}
	// c1 keeps its text score; expansion never rescores existing candidates.
	if !approx(results[0].Graph, 0) {
		t.Fatal("existing candidate picked up a graph contribution")
	}
}

func TestGraphExpansionSkippedWithoutCandidates(t *testing.T) {
	idx := &fakeIndex{chunks: mkChunks()}
	r := New(discardLogger(), idx, nil, config.SearchConfig{
		TopK: 10, LexicalWeight: 1, GraphWeight: 0.2,
	})

	results, err := r.Retrieve(context.Background(), Request{SnapshotID: "s", Query: "q"})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("got %d results from empty signals", len(results))
	}
	if idx.neighborCalls != 0 {
		t.Fatal("graph expansion ran without seed candidates")
	}
}

func TestTieBreakIsDiscoveryOrder(t *testing.T) {
	idx := &fakeIndex{
		lexHits: []store.Hit{{ChunkID: "c1", Score: 2}, {ChunkID: "c2", Score: 2}},
		chunks:  mkChunks("c1", "c2"),
	}
	r := New(discardLogger(), idx, nil, config.SearchConfig{TopK: 10, LexicalWeight: 1})

	results, err := r.Retrieve(context.Background(), Request{SnapshotID: "s", Query: "q"})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if results[0].Chunk.ID != "c1" || results[1].Chunk.ID != "c2" {
		t.Fatalf("tie order = %s, %s; want lexical discovery order",
			results[0].Chunk.ID, results[1].Chunk.ID)
	}
}

func TestSignalFailureDegrades(t *testing.T) {
	idx := &fakeIndex{
		lexErr:  errors.New("fts corrupt"),
		vecHits: []store.Hit{{ChunkID: "c1", Score: 0.9}},
		chunks:  mkChunks("c1"),
	}
	r := New(discardLogger(), idx, fixedEmbedder{vec: []float32{1}}, config.SearchConfig{
		TopK: 10, LexicalWeight: 0.3, VectorWeight: 0.5,
	})

	results, err := r.Retrieve(context.Background(), Request{SnapshotID: "s", Query: "q"})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(results) != 1 || results[0].Chunk.ID != "c1" {
		t.Fatalf("results = %+v, want vector-only c1", results)
	}
	if !approx(results[0].Score, 0.5) {
		t.Fatalf("score = %f, want 0.5 from vector alone", results[0].Score)
	}
}

func TestTopKCut(t *testing.T) {
	idx := &fakeIndex{
		lexHits: []store.Hit{
			{ChunkID: "c1", Score: 4}, {ChunkID: "c2", Score: 3},
			{ChunkID: "c3", Score: 2}, {ChunkID: "c4", Score: 1},
		},
		chunks: mkChunks("c1", "c2", "c3", "c4"),
	}
	r := New(discardLogger(), idx, nil, config.SearchConfig{TopK: 10, LexicalWeight: 1})

	results, err := r.Retrieve(context.Background(), Request{SnapshotID: "s", Query: "q", TopK: 2})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Chunk.ID != "c1" || results[1].Chunk.ID != "c2" {
		t.Fatalf("cut kept %s, %s", results[0].Chunk.ID, results[1].Chunk.ID)
	}
}

func TestVectorWeightMonotonic(t *testing.T) {
	mkRetriever := func(vectorWeight float64) (*Retriever, *fakeIndex) {
		idx := &fakeIndex{
			lexHits: []store.Hit{{ChunkID: "lex", Score: 3}},
			vecHits: []store.Hit{{ChunkID: "vec", Score: 0.9}},
			chunks:  mkChunks("lex", "vec"),
		}
		return New(discardLogger(), idx, fixedEmbedder{vec: []float32{1}}, config.SearchConfig{
			TopK: 10, LexicalWeight: 0.3, VectorWeight: vectorWeight,
		}), idx
	}
	scoreOf := func(results []Result, id string) float64 {
		for _, res := range results {
			if res.Chunk.ID == id {
				return res.Score
			}
		}
		t.Fatalf("chunk %s missing from results", id)
		return 0
	}

	low, _ := mkRetriever(0.2)
	high, _ := mkRetriever(0.8)
	lowResults, err := low.Retrieve(context.Background(), Request{SnapshotID: "s", Query: "q"})
	if err != nil {
		t.Fatalf("Retrieve low: %v", err)
	}
	highResults, err := high.Retrieve(context.Background(), Request{SnapshotID: "s", Query: "q"})
	if err != nil {
		t.Fatalf("Retrieve high: %v", err)
	}

	// Raising the vector weight lifts the vector-matched chunk and leaves the
	// lexical-only chunk untouched.
	if scoreOf(highResults, "vec") < scoreOf(lowResults, "vec") {
		t.Fatal("vector-matched chunk score decreased with higher vector weight")
	}
	if !approx(scoreOf(highResults, "lex"), scoreOf(lowResults, "lex")) {
		t.Fatal("lexical-only chunk score changed with vector weight")
	}
	if highResults[0].Chunk.ID != "vec" || lowResults[0].Chunk.ID != "lex" {
		t.Fatalf("orderings = high:%s low:%s", highResults[0].Chunk.ID, lowResults[0].Chunk.ID)
	}
}

func TestRequestWeightOverrides(t *testing.T) {
	idx := &fakeIndex{
		lexHits:   []store.Hit{{ChunkID: "c1", Score: 2}},
		neighbors: []string{"c2"},
		chunks:    mkChunks("c1", "c2"),
	}
	r := New(discardLogger(), idx, nil, config.SearchConfig{
		TopK: 10, LexicalWeight: 0.3, VectorWeight: 0.5, GraphWeight: 0.2,
	})

	results, err := r.Retrieve(context.Background(), Request{
		SnapshotID: "s", Query: "q",
		Weights: &Weights{Lexical: 1, Graph: 0.5},
	})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results", len(results))
	}
	if !approx(results[0].Score, 1) || !approx(results[1].Score, 0.5) {
		t.Fatalf("override scores = %f, %f", results[0].Score, results[1].Score)
	}

	// NoExpand suppresses the graph signal entirely.
	results, err = r.Retrieve(context.Background(), Request{
		SnapshotID: "s", Query: "q", NoExpand: true,
	})
	if err != nil {
		t.Fatalf("Retrieve no-expand: %v", err)
	}
	if len(results) != 1 || results[0].Chunk.ID != "c1" {
		t.Fatalf("no-expand results = %+v", results)
	}
}

func TestResultCache(t *testing.T) {
	idx := &fakeIndex{
		lexHits: []store.Hit{{ChunkID: "c1", Score: 1}},
		chunks:  mkChunks("c1"),
	}
	r := New(discardLogger(), idx, nil, config.SearchConfig{
		TopK: 10, LexicalWeight: 1, CacheSize: 8, CacheTTLSecs: 60,
	})

	for i := 0; i < 3; i++ {
		results, err := r.Retrieve(context.Background(), Request{SnapshotID: "s", Query: "same"})
		if err != nil {
			t.Fatalf("Retrieve %d: %v", i, err)
		}
		if len(results) != 1 {
			t.Fatalf("got %d results", len(results))
		}
	}
	if idx.lexCalls != 1 {
		t.Fatalf("lexical search ran %d times, want 1 with cache", idx.lexCalls)
	}

	// A different query misses the cache.
	if _, err := r.Retrieve(context.Background(), Request{SnapshotID: "s", Query: "other"}); err != nil {
		t.Fatalf("Retrieve other: %v", err)
	}
	if idx.lexCalls != 2 {
		t.Fatalf("lexical search ran %d times, want 2", idx.lexCalls)
	}
}
