package service

import (
	"context"
	"sync"
)

// Tasks runs background work on goroutines that can be drained on shutdown.
// Its Go method is an AsyncRunner.
type Tasks struct {
	wg sync.WaitGroup
}

func (t *Tasks) Go(task func()) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		task()
	}()
}

// Wait blocks until every started task has returned or ctx is done.
func (t *Tasks) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
