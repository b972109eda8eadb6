package workerpool

import (
	"context"
	"fmt"
	"sync"

	"salon-chat/internal/metrics"
	"salon-chat/pkg/logger"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Task is one unit of persistence work.
type Task func(ctx context.Context)

// Pool runs tasks with bounded concurrency. Tasks run on a context detached
// from the submitter's cancellation, so accepted work completes after the
// submitter goes away.
type Pool struct {
	sem *semaphore.Weighted
	wg  sync.WaitGroup
	log *logger.Logger
}

func New(size int, log *logger.Logger) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size)), log: log}
}

// Submit blocks until a slot is free or ctx is done. The task starts on its
// own goroutine.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	metrics.WorkerPoolWaiting.Inc()
	err := p.sem.Acquire(ctx, 1)
	metrics.WorkerPoolWaiting.Dec()
	if err != nil {
		return err
	}

	taskCtx := context.WithoutCancel(ctx)
	p.wg.Add(1)
	metrics.WorkerPoolInflight.Inc()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				p.log.WithContext(taskCtx).Error("worker task panicked", zap.String("panic", fmt.Sprint(r)))
			}
			metrics.WorkerPoolInflight.Dec()
			p.sem.Release(1)
			p.wg.Done()
		}()
		task(taskCtx)
	}()
	return nil
}

// Wait blocks until every submitted task has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}
