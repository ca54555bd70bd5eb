package dispatch

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Pool runs jobs on a fixed number of workers.
type Pool struct {
	workers int
}

func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{workers: workers}
}

func (p *Pool) Workers() int { return p.workers }

// Run starts at most p.workers jobs at a time and streams results as they
// finish. Jobs are independent: fn reports its outcome in R, never as an
// error. The channel is closed once every started job has produced a result;
// jobs not yet started when ctx is cancelled are dropped.
func Run[J, R any](ctx context.Context, p *Pool, jobs []J, fn func(context.Context, J) R) <-chan R {
	out := make(chan R, len(jobs))

	go func() {
		defer close(out)
		var g errgroup.Group
		g.SetLimit(p.workers)
		for _, j := range jobs {
			if ctx.Err() != nil {
				break
			}
			j := j
			g.Go(func() error {
				out <- fn(ctx, j)
				return nil
			})
		}
		_ = g.Wait()
	}()
	return out
}
