package client

import (
	"context"

	"github.com/stokry/vectra/backend"
	"github.com/stokry/vectra/batch"
	"go.uber.org/zap"
)

// BatchUpsertResult totals of an UpsertBatch run
type BatchUpsertResult struct {
	UpsertedCount int
	Result        *batch.Result[*backend.UpsertResult]
}

// UpsertBatch splits vectors into chunks and upserts them concurrently, each
// chunk going through the full Upsert path. The error joins every failed chunk;
// the result always reports what did succeed.
func (c *Client) UpsertBatch(ctx context.Context, index, namespace string, vectors []backend.Vector, onProgress batch.ProgressFunc) (*BatchUpsertResult, error) {
	if err := backend.ValidateVectors(vectors, 0); err != nil {
		return nil, err
	}

	processor, err := batch.New[backend.Vector, *backend.UpsertResult](c.batch, batch.WithLogger(c.logger))
	if err != nil {
		return nil, err
	}

	res := processor.Run(ctx, vectors, func(ctx context.Context, chunk []backend.Vector) (*backend.UpsertResult, error) {
		return c.Upsert(ctx, index, namespace, chunk)
	}, onProgress)

	out := &BatchUpsertResult{Result: res}
	for _, v := range res.Values() {
		if v != nil {
			out.UpsertedCount += v.UpsertedCount
		}
	}

	c.logger.InfoCtx(ctx, "📦 [Client] batch upsert finished",
		zap.String("index", index),
		zap.Int("vectors", len(vectors)),
		zap.Int("upserted", out.UpsertedCount),
		zap.Int("failed_chunks", res.Failed))
	return out, res.Err()
}
