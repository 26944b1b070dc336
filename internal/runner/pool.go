package runner

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

type Job func(ctx context.Context) error

// RunPool executes jobs with at most maxWorkers concurrently. Jobs start in
// slice order. The returned errors are index-aligned with jobs; a job that
// never started because ctx was done reports ctx's error.
func RunPool(ctx context.Context, maxWorkers int, jobs []Job) []error {
	if maxWorkers < 1 {
		maxWorkers = 1
	}

	errs := make([]error, len(jobs))
	sem := semaphore.NewWeighted(int64(maxWorkers))
	var wg sync.WaitGroup

	for i, job := range jobs {
		if err := sem.Acquire(ctx, 1); err != nil {
			for j := i; j < len(jobs); j++ {
				errs[j] = err
			}
			break
		}
		wg.Add(1)
		go func(i int, j Job) {
			defer wg.Done()
			defer sem.Release(1)
			errs[i] = j(ctx)
		}(i, job)
	}
	wg.Wait()
	return errs
}
