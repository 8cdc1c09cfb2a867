package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/reusedev/shot-hub/internal/modules/logs"
)

var (
	ErrQueueClosed = errors.New("task queue closed")
	ErrQueueFull   = errors.New("task queue full")
)

type Task interface {
	Name() string
	Execute(ctx context.Context) error
}

type TaskQueue struct {
	tasks  chan Task
	mu     sync.RWMutex
	closed bool
}

func NewTaskQueue(size int) *TaskQueue {
	return &TaskQueue{tasks: make(chan Task, size)}
}

// Push never blocks.
func (q *TaskQueue) Push(task Task) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.tasks <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *TaskQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.tasks)
}

// Start runs every pushed task in its own goroutine until ctx is done. Tasks
// still buffered at shutdown run with the cancelled ctx; wg covers all of them.
func (q *TaskQueue) Start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go q.consume(ctx, wg)
}

func (q *TaskQueue) consume(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	done := ctx.Done()
	for {
		select {
		case task, ok := <-q.tasks:
			if !ok {
				return
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := task.Execute(ctx); err != nil {
					logs.Logger.Warn().Err(err).Str("task", task.Name()).Msg("queue task failed")
				}
			}()
		case <-done:
			q.close()
			logs.Logger.Info().Msg("task queue closed")
			done = nil
		}
	}
}
