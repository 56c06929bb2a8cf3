// Package worker 提供同步等待的任务提交：把工作单元交给工作协程执行，
// 提交方通过 Task.Wait 阻塞到完成，并原样拿到结果或错误。
package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"remoting/internal/utils"
)

// Unit 工作单元
type Unit func(ctx context.Context) (any, error)

// Task 已提交工作单元的句柄
type Task struct {
	done   chan struct{}
	result any
	err    error
}

func newTask() *Task {
	return &Task{done: make(chan struct{})}
}

func (t *Task) complete(result any, err error) {
	t.result, t.err = result, err
	close(t.done)
}

// Wait 阻塞直到工作单元完成，返回其结果或错误
func (t *Task) Wait() (any, error) {
	<-t.done
	return t.result, t.err
}

// Done 工作单元完成时关闭
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Stats 工作池统计信息
type Stats struct {
	Workers   int
	Busy      int64
	Queued    int64
	Completed uint64
	Panics    uint64
}

type job struct {
	ctx  context.Context
	unit Unit
	task *Task
}

// Pool 固定数量工作协程的工作池
type Pool struct {
	workers int
	queue   chan job
	group   errgroup.Group
	logger  utils.Logger

	mu     sync.RWMutex
	closed bool

	busy      atomic.Int64
	queued    atomic.Int64
	completed atomic.Uint64
	panics    atomic.Uint64
}

// Option 工作池选项
type Option func(*Pool)

// WithLogger 设置日志器
func WithLogger(logger utils.Logger) Option {
	return func(p *Pool) {
		p.logger = logger
	}
}

// NewPool 创建并启动工作池
func NewPool(workers, queueSize int, opts ...Option) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}

	p := &Pool{
		workers: workers,
		queue:   make(chan job, queueSize),
		logger:  utils.DefaultLogger,
	}
	for _, opt := range opts {
		opt(p)
	}

	for i := 0; i < workers; i++ {
		p.group.Go(func() error {
			for j := range p.queue {
				p.queued.Add(-1)
				p.execute(j)
			}
			return nil
		})
	}

	return p
}

// Submit 提交工作单元，队列满时阻塞；工作池关闭后返回的任务立即以 UNAVAILABLE 失败
func (p *Pool) Submit(ctx context.Context, unit Unit) *Task {
	task := newTask()

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		task.complete(nil, utils.NewError(utils.ErrCodeUnavailable, "worker pool closed"))
		return task
	}

	p.queued.Add(1)
	p.queue <- job{ctx: ctx, unit: unit, task: task}
	return task
}

func (p *Pool) execute(j job) {
	p.busy.Add(1)
	defer p.busy.Add(-1)

	var (
		result any
		err    error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				p.panics.Add(1)
				p.logger.Error("worker unit panic", utils.String("panic", fmt.Sprintf("%v", r)))
				result, err = nil, utils.NewErrorf(utils.ErrCodeInternal, "worker unit panic: %v", r)
			}
		}()
		result, err = j.unit(j.ctx)
	}()

	p.completed.Add(1)
	j.task.complete(result, err)
}

// Close 停止接收新任务，等待已排队的任务执行完
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	err := p.group.Wait()
	p.logger.Debug("worker pool closed", utils.Int("workers", p.workers))
	return err
}

// Stats 获取统计信息
func (p *Pool) Stats() Stats {
	return Stats{
		Workers:   p.workers,
		Busy:      p.busy.Load(),
		Queued:    p.queued.Load(),
		Completed: p.completed.Load(),
		Panics:    p.panics.Load(),
	}
}
