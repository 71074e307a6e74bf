package batch

import (
	"errors"
	"math"
	"time"

	"github.com/stokry/vectra/errcode"
)

var (
	// ErrChunkPanic a chunk operation panicked
	ErrChunkPanic = errcode.Register(errcode.New(errcode.ModuleBatch, 1, "batch", "error.batch.panic", "batch chunk panicked", errcode.KindServer))

	// ErrDrainTimeout chunks were still running when the drain timeout passed
	ErrDrainTimeout = errcode.Register(errcode.New(errcode.ModuleBatch, 2, "batch", "error.batch.drain_timeout", "batch drain timed out", errcode.KindTimeout))

	// ErrNotSubmitted a chunk was never started because submission stopped
	ErrNotSubmitted = errcode.Register(errcode.New(errcode.ModuleBatch, 3, "batch", "error.batch.not_submitted", "batch chunk not submitted"))
)

// Progress is reported after every finished chunk
type Progress struct {
	Processed   int     // items in finished chunks
	Total       int     // items in the batch
	Percentage  float64 // Processed/Total*100, two decimals
	ChunkIndex  int     // chunk that just finished
	TotalChunks int
	Succeeded   int // chunks
	Failed      int // chunks
}

// ProgressFunc receives progress snapshots; calls are serialized
type ProgressFunc func(Progress)

// Outcome is the result of one chunk
type Outcome[R any] struct {
	Index int
	Size  int
	Value R
	Err   error
}

// OK reports whether the chunk succeeded
func (o Outcome[R]) OK() bool {
	return o.Err == nil
}

// Result aggregates a batch. Outcomes are ordered by chunk index.
type Result[R any] struct {
	Outcomes    []Outcome[R]
	Total       int
	TotalChunks int
	Succeeded   int
	Failed      int
	Duration    time.Duration

	// DrainErr is set when the worker pool did not drain in time
	DrainErr error
}

// Errors returns the chunk errors in chunk order
func (r *Result[R]) Errors() []error {
	var errs []error
	for _, o := range r.Outcomes {
		if o.Err != nil {
			errs = append(errs, o.Err)
		}
	}
	return errs
}

// Err joins every chunk error and the drain error; nil when all chunks succeeded
func (r *Result[R]) Err() error {
	errs := r.Errors()
	if r.DrainErr != nil {
		errs = append(errs, r.DrainErr)
	}
	return errors.Join(errs...)
}

// Values returns the successful chunk values in chunk order
func (r *Result[R]) Values() []R {
	values := make([]R, 0, r.Succeeded)
	for _, o := range r.Outcomes {
		if o.Err == nil {
			values = append(values, o.Value)
		}
	}
	return values
}

func percentage(processed, total int) float64 {
	if total == 0 {
		return 100
	}
	return math.Round(float64(processed)/float64(total)*10000) / 100
}
