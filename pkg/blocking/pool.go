package blocking

import (
	"context"
	stderrors "errors"
	"runtime"
	"sync"
)

// ErrClosed is returned for jobs submitted after Close.
var ErrClosed = stderrors.New("blocking pool is closed")

// Result is the outcome of one job. Panic holds the recovered value when
// the job panicked.
type Result struct {
	Value interface{}
	Err   error
	Panic interface{}
}

type job struct {
	ctx context.Context
	fn  func(context.Context) (interface{}, error)
	out chan Result
}

// Pool is a fixed-size worker pool.
type Pool struct {
	jobs chan job
	wg   sync.WaitGroup

	mu     sync.RWMutex
	closed bool
	once   sync.Once
}

// New starts a pool with n workers; n <= 0 means runtime.NumCPU().
func New(n int) *Pool {
	if n <= 0 {
		n = runtime.NumCPU()
	}
	p := &Pool{jobs: make(chan job, n)}
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go p.work()
	}
	return p
}

func (p *Pool) work() {
	defer p.wg.Done()
	for j := range p.jobs {
		if err := j.ctx.Err(); err != nil {
			j.out <- Result{Err: err}
			continue
		}
		j.out <- run(j)
	}
}

func run(j job) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{Panic: r}
		}
	}()
	v, err := j.fn(j.ctx)
	return Result{Value: v, Err: err}
}

// Submit queues fn. The returned channel receives exactly one Result. A job
// whose context is done by the time a worker picks it up does not run and
// reports the context error.
func (p *Pool) Submit(ctx context.Context, fn func(context.Context) (interface{}, error)) <-chan Result {
	out := make(chan Result, 1)

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		out <- Result{Err: ErrClosed}
		return out
	}

	select {
	case p.jobs <- job{ctx: ctx, fn: fn, out: out}:
	case <-ctx.Done():
		out <- Result{Err: ctx.Err()}
	}
	return out
}

// Close stops accepting jobs and waits for queued ones to finish.
func (p *Pool) Close() {
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.jobs)
		p.mu.Unlock()
		p.wg.Wait()
	})
}

// Run submits fn and waits for it to finish. Cancelling ctx reaches fn
// through its argument; Run still waits so that nothing fn touches is
// released under it. A panic in fn is raised again on the calling
// goroutine.
func Run[T any](ctx context.Context, p *Pool, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	res := <-p.Submit(ctx, func(ctx context.Context) (interface{}, error) {
		return fn(ctx)
	})
	if res.Panic != nil {
		panic(res.Panic)
	}
	if res.Err != nil {
		return zero, res.Err
	}
	v, _ := res.Value.(T)
	return v, nil
}
