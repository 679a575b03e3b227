// Package embed turns chunk text into fixed-dimension vectors through an
// OpenAI-compatible embeddings endpoint.
package embed

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/lodestone-ai/codegraph/internal/config"
)

// Embedder produces one vector per input text, all of Dimension() length.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Batcher splits large inputs into provider-sized batches and embeds them
// concurrently. A failed batch degrades to zero vectors so ingestion can
// finish; lexical search still covers the affected chunks.
type Batcher struct {
	log         *slog.Logger
	embedder    Embedder
	batchSize   int
	concurrency int
}

// NewBatcher wires a Batcher from config. Batch size and concurrency fall
// back to safe minimums when unset.
func NewBatcher(log *slog.Logger, embedder Embedder, cfg config.EmbedConfig) *Batcher {
	return &Batcher{
		log:         log,
		embedder:    embedder,
		batchSize:   max(cfg.BatchSize, 1),
		concurrency: max(cfg.Concurrency, 1),
	}
}

// EmbedAll returns one vector per input text, in input order. It does not
// fail: batches that error come back as zero vectors of the embedder's
// dimension.
func (b *Batcher) EmbedAll(ctx context.Context, texts []string) [][]float32 {
	vectors := make([][]float32, len(texts))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for start := 0; start < len(texts); start += b.batchSize {
		end := min(len(texts), start+b.batchSize)
		g.Go(func() error {
			batch, err := b.embedder.Embed(ctx, texts[start:end])
			if err != nil || len(batch) != end-start {
				b.log.Warn("embed.batch_failed",
					"start", start, "size", end-start, "error", err)
				for i := start; i < end; i++ {
					vectors[i] = make([]float32, b.embedder.Dimension())
				}
				return nil
			}
			copy(vectors[start:end], batch)
			return nil
		})
	}
	_ = g.Wait()
	return vectors
}
