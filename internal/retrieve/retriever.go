// Package retrieve ranks code chunks for a query by fusing lexical,
// vector and call-graph signals.
package retrieve

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/zeebo/xxh3"

	"github.com/lodestone-ai/codegraph/internal/config"
	"github.com/lodestone-ai/codegraph/internal/embed"
	"github.com/lodestone-ai/codegraph/internal/model"
	"github.com/lodestone-ai/codegraph/internal/store"
)

const (
	// graphSeedChunks is how many fused top chunks seed graph expansion.
	graphSeedChunks = 5
	// graphChunkLimit bounds how many neighbor chunks expansion may add.
	graphChunkLimit = 20
)

// Index is the store surface the retriever needs.
type Index interface {
	LexicalSearch(snapshotID, query string, limit int) ([]store.Hit, error)
	VectorSearch(snapshotID string, query []float32, limit int) ([]store.Hit, error)
	CallNeighborChunks(symbolIDs []string, limit int) ([]string, error)
	GetChunksByIDs(ids []string) (map[string]model.Chunk, error)
}

// Weights are the per-signal fusion coefficients.
type Weights struct {
	Lexical float64
	Vector  float64
	Graph   float64
}

// Request is one retrieval call. TopK of 0 uses the configured default; nil
// Weights use the configured defaults; NoExpand suppresses graph expansion.
type Request struct {
	SnapshotID string
	Query      string
	TopK       int
	Weights    *Weights
	NoExpand   bool
}

// Result is one ranked chunk with its fused score and the per-signal
// normalized contributions.
type Result struct {
	Chunk   model.Chunk
	Score   float64
	Lexical float64
	Vector  float64
	Graph   float64
}

// Retriever runs hybrid retrieval over one store.
type Retriever struct {
	log      *slog.Logger
	index    Index
	embedder embed.Embedder
	cfg      config.SearchConfig
	cache    *expirable.LRU[string, []Result]
}

// New builds a Retriever. A nil embedder disables the vector signal. The
// result cache is disabled when the configured size is zero.
func New(log *slog.Logger, index Index, embedder embed.Embedder, cfg config.SearchConfig) *Retriever {
	r := &Retriever{log: log, index: index, embedder: embedder, cfg: cfg}
	if cfg.CacheSize > 0 {
		r.cache = expirable.NewLRU[string, []Result](
			cfg.CacheSize, nil, time.Duration(cfg.CacheTTLSecs)*time.Second)
	}
	return r
}

// candidate accumulates a chunk's per-signal scores. order is the discovery
// position (lexical hits first, then vector, then graph) and breaks score
// ties so results are deterministic.
type candidate struct {
	id      string
	lexical float64
	vector  float64
	graph   float64
	score   float64
	order   int
}

// Retrieve returns the top chunks for a query. Signal failures degrade to an
// empty contribution from that signal; the call only errors when the final
// chunk fetch fails.
func (r *Retriever) Retrieve(ctx context.Context, req Request) ([]Result, error) {
	topK := req.TopK
	if topK <= 0 {
		topK = r.cfg.TopK
	}
	w := Weights{
		Lexical: r.cfg.LexicalWeight,
		Vector:  r.cfg.VectorWeight,
		Graph:   r.cfg.GraphWeight,
	}
	if req.Weights != nil {
		w = *req.Weights
	}
	if req.NoExpand {
		w.Graph = 0
	}

	key := r.cacheKey(req.SnapshotID, req.Query, topK, w)
	if r.cache != nil {
		if cached, ok := r.cache.Get(key); ok {
			return cached, nil
		}
	}

	// Each signal over-fetches so fusion has candidates beyond the cut.
	fetch := 2 * topK
	lexHits, vecHits := r.gatherSignals(ctx, req.SnapshotID, req.Query, fetch, w)
	normalize(lexHits)
	normalize(vecHits)

	byID := map[string]*candidate{}
	var ordered []*candidate
	lookup := func(id string) *candidate {
		if c, ok := byID[id]; ok {
			return c
		}
		c := &candidate{id: id, order: len(ordered)}
		byID[id] = c
		ordered = append(ordered, c)
		return c
	}
	for _, h := range lexHits {
		c := lookup(h.ChunkID)
		c.lexical = max(c.lexical, h.Score)
	}
	for _, h := range vecHits {
		c := lookup(h.ChunkID)
		c.vector = max(c.vector, h.Score)
	}
	for _, c := range ordered {
		c.score = w.Lexical*c.lexical + w.Vector*c.vector
	}

	if w.Graph > 0 && len(ordered) > 0 {
		r.expandGraph(byID, &ordered, lookup, w.Graph)
	}

	sortCandidates(ordered)
	if len(ordered) > topK {
		ordered = ordered[:topK]
	}

	results, err := r.materialize(ordered)
	if err != nil {
		return nil, err
	}
	if r.cache != nil {
		r.cache.Add(key, results)
	}
	return results, nil
}

// gatherSignals runs the lexical and vector legs concurrently. Either leg's
// failure is logged and yields no hits.
func (r *Retriever) gatherSignals(ctx context.Context, snapshotID, query string, fetch int, w Weights) (lexHits, vecHits []store.Hit) {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		if w.Lexical == 0 {
			return
		}
		hits, err := r.index.LexicalSearch(snapshotID, query, fetch)
		if err != nil {
			r.log.Warn("retrieve.lexical_failed", "error", err)
			return
		}
		lexHits = hits
	}()

	go func() {
		defer wg.Done()
		if r.embedder == nil || w.Vector == 0 {
			return
		}
		vectors, err := r.embedder.Embed(ctx, []string{query})
		if err != nil || len(vectors) != 1 {
			r.log.Warn("retrieve.embed_failed", "error", err)
			return
		}
		hits, err := r.index.VectorSearch(snapshotID, vectors[0], fetch)
		if err != nil {
			r.log.Warn("retrieve.vector_failed", "error", err)
			return
		}
		vecHits = hits
	}()

	wg.Wait()
	return lexHits, vecHits
}

// expandGraph takes the current fused top seeds, walks one call-graph hop
// from their symbols and admits new chunks at a flat graph score.
func (r *Retriever) expandGraph(byID map[string]*candidate, ordered *[]*candidate, lookup func(string) *candidate, graphWeight float64) {
	seeds := make([]*candidate, len(*ordered))
	copy(seeds, *ordered)
	sortCandidates(seeds)
	if len(seeds) > graphSeedChunks {
		seeds = seeds[:graphSeedChunks]
	}

	seedIDs := make([]string, len(seeds))
	for i, c := range seeds {
		seedIDs[i] = c.id
	}
	seedChunks, err := r.index.GetChunksByIDs(seedIDs)
	if err != nil {
		r.log.Warn("retrieve.graph_failed", "error", err)
		return
	}

	var symbolIDs []string
	seen := map[string]bool{}
	for _, id := range seedIDs {
		ch, ok := seedChunks[id]
		if !ok || seen[ch.SymbolID] {
			continue
		}
		seen[ch.SymbolID] = true
		symbolIDs = append(symbolIDs, ch.SymbolID)
	}

	neighborIDs, err := r.index.CallNeighborChunks(symbolIDs, graphChunkLimit)
	if err != nil {
		r.log.Warn("retrieve.graph_failed", "error", err)
		return
	}
	for _, id := range neighborIDs {
		if _, exists := byID[id]; exists {
			// Already scored by text signals; expansion only adds chunks.
			continue
		}
		c := lookup(id)
		c.graph = 1
		c.score = graphWeight
	}
}

func (r *Retriever) materialize(ordered []*candidate) ([]Result, error) {
	ids := make([]string, len(ordered))
	for i, c := range ordered {
		ids[i] = c.id
	}
	chunks, err := r.index.GetChunksByIDs(ids)
	if err != nil {
		return nil, fmt.Errorf("fetch result chunks: %w", err)
	}

	results := make([]Result, 0, len(ordered))
	for _, c := range ordered {
		ch, ok := chunks[c.id]
		if !ok {
			continue
		}
		results = append(results, Result{
			Chunk:   ch,
			Score:   c.score,
			Lexical: c.lexical,
			Vector:  c.vector,
			Graph:   c.graph,
		})
	}
	return results, nil
}

// normalize scales hits to [0,1] by the list's own maximum. A non-positive
// maximum leaves the list untouched.
func normalize(hits []store.Hit) {
	var maxScore float64
	for _, h := range hits {
		maxScore = max(maxScore, h.Score)
	}
	if maxScore <= 0 {
		return
	}
	for i := range hits {
		hits[i].Score /= maxScore
	}
}

func sortCandidates(cs []*candidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		if cs[i].score != cs[j].score {
			return cs[i].score > cs[j].score
		}
		return cs[i].order < cs[j].order
	})
}

func (r *Retriever) cacheKey(snapshotID, query string, topK int, w Weights) string {
	h := xxh3.HashString(fmt.Sprintf("%s|%s|%d|%g|%g|%g",
		snapshotID, query, topK, w.Lexical, w.Vector, w.Graph))
	return strconv.FormatUint(h, 16)
}
