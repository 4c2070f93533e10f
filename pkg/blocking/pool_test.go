package blocking

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunReturnsValue(t *testing.T) {
	p := New(2)
	defer p.Close()

	v, err := Run(context.Background(), p, func(context.Context) (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestRunReturnsError(t *testing.T) {
	p := New(1)
	defer p.Close()

	boom := errors.New("boom")
	_, err := Run(context.Background(), p, func(context.Context) (string, error) { return "", boom })
	assert.ErrorIs(t, err, boom)
}

func TestRunRepanics(t *testing.T) {
	p := New(1)
	defer p.Close()

	assert.PanicsWithValue(t, "kaput", func() {
		_, _ = Run(context.Background(), p, func(context.Context) (int, error) { panic("kaput") })
	})

	// The worker survives a panicking job.
	v, err := Run(context.Background(), p, func(context.Context) (int, error) { return 1, nil })
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestWorkerCountBoundsConcurrency(t *testing.T) {
	p := New(3)
	defer p.Close()

	var running, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = Run(context.Background(), p, func(context.Context) (bool, error) {
				n := atomic.AddInt32(&running, 1)
				for {
					old := atomic.LoadInt32(&peak)
					if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&running, -1)
				return true, nil
			})
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(3))
}

func TestCancelledJobIsSkipped(t *testing.T) {
	p := New(1)
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran int32
	res := <-p.Submit(ctx, func(context.Context) (interface{}, error) {
		atomic.StoreInt32(&ran, 1)
		return nil, nil
	})
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Zero(t, atomic.LoadInt32(&ran))
}

func TestSubmitAfterClose(t *testing.T) {
	p := New(1)
	p.Close()
	p.Close()

	res := <-p.Submit(context.Background(), func(context.Context) (interface{}, error) { return nil, nil })
	assert.ErrorIs(t, res.Err, ErrClosed)
}

func TestCloseDrainsQueuedJobs(t *testing.T) {
	p := New(1)
	var done int32
	var results []<-chan Result
	for i := 0; i < 5; i++ {
		results = append(results, p.Submit(context.Background(), func(context.Context) (interface{}, error) {
			atomic.AddInt32(&done, 1)
			return nil, nil
		}))
	}
	p.Close()
	assert.Equal(t, int32(5), atomic.LoadInt32(&done))
	for _, ch := range results {
		res := <-ch
		assert.NoError(t, res.Err)
	}
}

func TestRunWaitsForCancelledJob(t *testing.T) {
	p := New(1)
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	var finished int32
	go func() {
		<-started
		cancel()
	}()

	_, err := Run(ctx, p, func(ctx context.Context) (int, error) {
		close(started)
		<-ctx.Done()
		time.Sleep(5 * time.Millisecond)
		atomic.StoreInt32(&finished, 1)
		return 0, ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(1), atomic.LoadInt32(&finished))
}
