// Package batch splits work into ordered chunks and runs them on a bounded
// worker pool. A failing chunk never cancels its siblings.
package batch

import (
	"context"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/stokry/vectra/logger"
	"go.uber.org/zap"
)

// Op processes one chunk
type Op[I, R any] func(ctx context.Context, chunk []I) (R, error)

// Processor runs batches with a fixed chunk size and concurrency
type Processor[I, R any] struct {
	config Config
	logger *logger.CtxZapLogger
}

// Option configures a Processor
type Option func(*options)

type options struct {
	logger *logger.CtxZapLogger
}

// WithLogger sets the logger
func WithLogger(l *logger.CtxZapLogger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// New creates a processor; zero config fields take defaults
func New[I, R any](cfg Config, opts ...Option) (*Processor[I, R], error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{logger: logger.GetLogger("vectra")}
	for _, opt := range opts {
		opt(&o)
	}
	return &Processor[I, R]{config: cfg, logger: o.logger}, nil
}

// Config returns the processor configuration
func (p *Processor[I, R]) Config() Config {
	return p.config
}

// Chunks splits items into consecutive slices of at most size items
func Chunks[I any](items []I, size int) [][]I {
	if size < 1 {
		size = 1
	}
	chunks := make([][]I, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		chunks = append(chunks, items[start:end:end])
	}
	return chunks
}

// run is the per-batch state shared by the worker tasks
type run[R any] struct {
	mu        sync.Mutex
	outcomes  []Outcome[R]
	finished  []bool
	sealed    bool
	processed int
	succeeded int
	failed    int
	total     int

	onProgress ProgressFunc
}

// finish records a chunk outcome unless the batch was already sealed by the drain timeout
func (r *run[R]) finish(o Outcome[R]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed || r.finished[o.Index] {
		return
	}
	r.finished[o.Index] = true
	r.outcomes[o.Index] = o
	r.processed += o.Size
	if o.Err == nil {
		r.succeeded++
	} else {
		r.failed++
	}

	if r.onProgress != nil {
		r.onProgress(Progress{
			Processed:   r.processed,
			Total:       r.total,
			Percentage:  percentage(r.processed, r.total),
			ChunkIndex:  o.Index,
			TotalChunks: len(r.outcomes),
			Succeeded:   r.succeeded,
			Failed:      r.failed,
		})
	}
}

// seal fills every unfinished chunk with err and freezes the outcomes
func (r *run[R]) seal(err error) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	pending := 0
	for i, done := range r.finished {
		if !done {
			r.outcomes[i].Err = err
			r.failed++
			pending++
		}
	}
	r.sealed = true
	return pending
}

// Run executes op for every chunk of items and always returns a Result.
// Chunk errors and panics are recorded in their Outcome. When ctx ends,
// chunks not yet submitted fail with ErrNotSubmitted; chunks already running
// are not interrupted. Waiting for submitted chunks is bounded by
// Config.DrainTimeout, after which unfinished chunks fail with ErrDrainTimeout.
func (p *Processor[I, R]) Run(ctx context.Context, items []I, op Op[I, R], onProgress ProgressFunc) *Result[R] {
	start := time.Now()
	chunks := Chunks(items, p.config.ChunkSize)

	r := &run[R]{
		outcomes:   make([]Outcome[R], len(chunks)),
		finished:   make([]bool, len(chunks)),
		total:      len(items),
		onProgress: onProgress,
	}
	for i, c := range chunks {
		r.outcomes[i] = Outcome[R]{Index: i, Size: len(c)}
	}

	result := &Result[R]{Total: len(items), TotalChunks: len(chunks)}
	if len(chunks) == 0 {
		return result
	}

	workers, err := ants.NewPool(min(p.config.Concurrency, len(chunks)))
	if err != nil {
		r.seal(ErrNotSubmitted.Wrap(err))
		p.collect(result, r, start)
		return result
	}

	p.logger.DebugCtx(ctx, "📦 [Batch] run started",
		zap.Int("items", len(items)),
		zap.Int("chunks", len(chunks)),
		zap.Int("concurrency", p.config.Concurrency))

	var wg sync.WaitGroup
	for i, chunk := range chunks {
		if ctx.Err() != nil {
			r.finish(Outcome[R]{Index: i, Size: len(chunk), Err: ErrNotSubmitted.Wrap(ctx.Err())})
			continue
		}

		wg.Add(1)
		err := workers.Submit(func() {
			defer wg.Done()
			r.finish(p.execute(ctx, i, chunk, op))
		})
		if err != nil {
			wg.Done()
			r.finish(Outcome[R]{Index: i, Size: len(chunk), Err: ErrNotSubmitted.Wrap(err)})
		}
	}

	deadline := time.Now().Add(p.config.DrainTimeout)
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(p.config.DrainTimeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		pending := r.seal(ErrDrainTimeout.WithMsgf("chunk did not finish within %s", p.config.DrainTimeout))
		result.DrainErr = ErrDrainTimeout.
			WithMsgf("%d chunks still running after %s", pending, p.config.DrainTimeout).
			WithData("pending", pending)
		p.logger.WarnCtx(ctx, "⏱️ [Batch] drain timed out", zap.Int("pending", pending))
	}

	if err := workers.ReleaseTimeout(max(time.Until(deadline), time.Millisecond)); err != nil && result.DrainErr == nil {
		result.DrainErr = ErrDrainTimeout.WithMsg("worker pool did not release in time").Wrap(err)
	}

	p.collect(result, r, start)
	p.logger.DebugCtx(ctx, "📦 [Batch] run finished",
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed),
		zap.Duration("duration", result.Duration))
	return result
}

// execute runs op for one chunk and converts a panic into the chunk error
func (p *Processor[I, R]) execute(ctx context.Context, index int, chunk []I, op Op[I, R]) (o Outcome[R]) {
	o = Outcome[R]{Index: index, Size: len(chunk)}
	defer func() {
		if rec := recover(); rec != nil {
			p.logger.ErrorCtx(ctx, "💥 [Batch] chunk panicked", zap.Int("chunk", index), zap.Any("panic", rec))
			o.Err = ErrChunkPanic.WithMsgf("chunk %d panicked: %v", index, rec).WithData("chunk", index)
		}
	}()

	value, err := op(ctx, chunk)
	if err != nil {
		p.logger.DebugCtx(ctx, "❌ [Batch] chunk failed", zap.Int("chunk", index), zap.Error(err))
		o.Err = err
		return o
	}
	o.Value = value
	return o
}

func (p *Processor[I, R]) collect(result *Result[R], r *run[R], start time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
	result.Outcomes = r.outcomes
	result.Succeeded = r.succeeded
	result.Failed = r.failed
	result.Duration = time.Since(start)
}
