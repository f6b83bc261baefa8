package service

import (
	"context"
	"errors"
	"sync"

	"github.com/nemanja-m/inferq/internal/worker/core"
)

// Pool runs several worker loops in one process.
type Pool struct {
	workers []core.WorkerService
	wg      sync.WaitGroup
}

func NewPool(size int, newWorker func(i int) core.WorkerService) *Pool {
	workers := make([]core.WorkerService, 0, size)
	for i := range size {
		workers = append(workers, newWorker(i))
	}
	return &Pool{workers: workers}
}

// Run blocks until every worker has stopped.
func (p *Pool) Run(ctx context.Context) error {
	errs := make([]error, len(p.workers))
	for i, w := range p.workers {
		p.wg.Go(func() {
			errs[i] = w.Run(ctx)
		})
	}
	p.wg.Wait()
	return errors.Join(errs...)
}

func (p *Pool) States() []core.State {
	states := make([]core.State, len(p.workers))
	for i, w := range p.workers {
		states[i] = w.State()
	}
	return states
}

func (p *Pool) Size() int {
	return len(p.workers)
}
