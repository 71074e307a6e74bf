package batch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stokry/vectra/errcode"
	"github.com/stokry/vectra/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProcessor[I, R any](t *testing.T, cfg Config) *Processor[I, R] {
	t.Helper()
	p, err := New[I, R](cfg, WithLogger(logger.NewNop()))
	require.NoError(t, err)
	return p
}

func seq(n int) []int {
	items := make([]int, n)
	for i := range items {
		items[i] = i
	}
	return items
}

func sum(ctx context.Context, chunk []int) (int, error) {
	total := 0
	for _, v := range chunk {
		total += v
	}
	return total, nil
}

func TestChunks(t *testing.T) {
	tests := []struct {
		n, size int
		want    []int
	}{
		{0, 3, []int{}},
		{1, 3, []int{1}},
		{6, 3, []int{3, 3}},
		{7, 3, []int{3, 3, 1}},
		{5, 10, []int{5}},
	}
	for _, tt := range tests {
		chunks := Chunks(seq(tt.n), tt.size)
		sizes := make([]int, 0, len(chunks))
		for _, c := range chunks {
			sizes = append(sizes, len(c))
		}
		assert.Equal(t, tt.want, sizes, "n=%d size=%d", tt.n, tt.size)
	}
}

func TestRun_CompletenessAndOrder(t *testing.T) {
	p := newTestProcessor[int, int](t, Config{ChunkSize: 3, Concurrency: 4})

	var calls atomic.Int32
	res := p.Run(context.Background(), seq(10), func(ctx context.Context, chunk []int) (int, error) {
		calls.Add(1)
		// later chunks finish first
		time.Sleep(time.Duration(10-chunk[0]) * time.Millisecond)
		return sum(ctx, chunk)
	}, nil)

	assert.Equal(t, int32(4), calls.Load())
	require.Len(t, res.Outcomes, 4)
	for i, o := range res.Outcomes {
		assert.Equal(t, i, o.Index)
		assert.True(t, o.OK())
	}
	assert.Equal(t, []int{0 + 1 + 2, 3 + 4 + 5, 6 + 7 + 8, 9}, res.Values())
	assert.Equal(t, 4, res.Succeeded)
	assert.Zero(t, res.Failed)
	assert.Equal(t, 10, res.Total)
	assert.Equal(t, 4, res.TotalChunks)
	assert.NoError(t, res.Err())
	assert.Empty(t, res.Errors())
}

func TestRun_FailuresAreIsolated(t *testing.T) {
	p := newTestProcessor[int, int](t, Config{ChunkSize: 2, Concurrency: 2})
	boom := errcode.ErrServer.WithMsg("upsert rejected")

	var calls atomic.Int32
	res := p.Run(context.Background(), seq(8), func(ctx context.Context, chunk []int) (int, error) {
		calls.Add(1)
		if chunk[0] == 2 {
			return 0, boom
		}
		if chunk[0] == 4 {
			panic("adapter bug")
		}
		return sum(ctx, chunk)
	}, nil)

	assert.Equal(t, int32(4), calls.Load(), "every chunk attempted")
	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, 2, res.Failed)
	assert.Same(t, boom, res.Outcomes[1].Err)
	assert.ErrorIs(t, res.Outcomes[2].Err, ErrChunkPanic)
	assert.Len(t, res.Errors(), 2)
	assert.ErrorIs(t, res.Err(), boom)
	assert.Equal(t, []int{1, 13}, res.Values())
}

func TestRun_Progress(t *testing.T) {
	p := newTestProcessor[int, int](t, Config{ChunkSize: 4, Concurrency: 3})

	var (
		mu      sync.Mutex
		reports []Progress
	)
	res := p.Run(context.Background(), seq(10), func(ctx context.Context, chunk []int) (int, error) {
		if chunk[0] == 4 {
			return 0, errors.New("bad chunk")
		}
		return sum(ctx, chunk)
	}, func(pr Progress) {
		mu.Lock()
		reports = append(reports, pr)
		mu.Unlock()
	})

	require.Len(t, reports, 3)
	for i := 1; i < len(reports); i++ {
		assert.Greater(t, reports[i].Processed, reports[i-1].Processed)
	}
	last := reports[2]
	assert.Equal(t, 10, last.Processed)
	assert.Equal(t, 10, last.Total)
	assert.Equal(t, 100.0, last.Percentage)
	assert.Equal(t, 3, last.TotalChunks)
	assert.Equal(t, 2, last.Succeeded)
	assert.Equal(t, 1, last.Failed)
	assert.Equal(t, 1, res.Failed)
}

func TestRun_ConcurrencyBound(t *testing.T) {
	p := newTestProcessor[int, struct{}](t, Config{ChunkSize: 1, Concurrency: 3})

	var inFlight, peak atomic.Int32
	res := p.Run(context.Background(), seq(20), func(ctx context.Context, chunk []int) (struct{}, error) {
		n := inFlight.Add(1)
		for {
			m := peak.Load()
			if n <= m || peak.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		inFlight.Add(-1)
		return struct{}{}, nil
	}, nil)

	assert.Equal(t, 20, res.Succeeded)
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestRun_Empty(t *testing.T) {
	p := newTestProcessor[int, int](t, Config{})
	res := p.Run(context.Background(), nil, sum, nil)
	assert.Empty(t, res.Outcomes)
	assert.Zero(t, res.TotalChunks)
	assert.NoError(t, res.Err())
}

func TestRun_DrainTimeout(t *testing.T) {
	p := newTestProcessor[int, int](t, Config{ChunkSize: 1, Concurrency: 2, DrainTimeout: 50 * time.Millisecond})

	release := make(chan struct{})
	defer close(release)

	start := time.Now()
	res := p.Run(context.Background(), seq(2), func(ctx context.Context, chunk []int) (int, error) {
		if chunk[0] == 1 {
			<-release
		}
		return 1, nil
	}, nil)

	assert.Less(t, time.Since(start), 2*time.Second)
	require.Error(t, res.DrainErr)
	assert.ErrorIs(t, res.DrainErr, ErrDrainTimeout)
	assert.Equal(t, errcode.KindTimeout, errcode.KindOf(res.DrainErr))
	assert.True(t, res.Outcomes[0].OK())
	assert.ErrorIs(t, res.Outcomes[1].Err, ErrDrainTimeout)
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
}

func TestRun_CancelledContextStopsSubmission(t *testing.T) {
	p := newTestProcessor[int, int](t, Config{ChunkSize: 1, Concurrency: 1})
	ctx, cancel := context.WithCancel(context.Background())

	var calls atomic.Int32
	res := p.Run(ctx, seq(5), func(ctx context.Context, chunk []int) (int, error) {
		calls.Add(1)
		cancel()
		return 1, nil
	}, nil)

	assert.Len(t, res.Outcomes, 5)
	assert.Less(t, calls.Load(), int32(5))
	assert.Equal(t, 5, res.Succeeded+res.Failed)
	for _, o := range res.Outcomes {
		if !o.OK() {
			assert.ErrorIs(t, o.Err, ErrNotSubmitted)
			assert.ErrorIs(t, o.Err, context.Canceled)
		}
	}
}

func TestConfig_Validate(t *testing.T) {
	_, err := New[int, int](Config{ChunkSize: -1})
	assert.ErrorIs(t, err, errcode.ErrValidation)

	p := newTestProcessor[int, int](t, Config{})
	assert.Equal(t, DefaultConfig(), p.Config())
}
