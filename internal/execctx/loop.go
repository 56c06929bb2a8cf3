package execctx

import (
	"context"
	"errors"
	"sync"
)

// ErrLoopClosed 事件循环已关闭
var ErrLoopClosed = errors.New("event loop closed")

// Loop 单协程事件循环，在其中执行的函数拿到的 ctx 都带有特权上下文标识
type Loop struct {
	token  Token
	tasks  chan func()
	done   chan struct{}
	once   sync.Once
	mu     sync.RWMutex
	closed bool
}

// NewLoop 创建并启动事件循环
func NewLoop() *Loop {
	l := &Loop{
		token: NewToken(),
		tasks: make(chan func()),
		done:  make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Loop) run() {
	defer close(l.done)
	for task := range l.tasks {
		task()
	}
}

// Token 返回事件循环的执行上下文标识
func (l *Loop) Token() Token {
	return l.token
}

// Detector 返回以本事件循环为特权上下文的检测器
func (l *Loop) Detector() *Detector {
	return NewDetector(l.token)
}

// Sync 在事件循环上执行 fn 并等待其返回，已在事件循环上时直接执行
func (l *Loop) Sync(ctx context.Context, fn func(ctx context.Context)) error {
	if tok, ok := TokenFrom(ctx); ok && tok == l.token {
		fn(ctx)
		return nil
	}
	finished := make(chan struct{})
	if err := l.post(func() {
		defer close(finished)
		fn(WithToken(ctx, l.token))
	}); err != nil {
		return err
	}
	<-finished
	return nil
}

func (l *Loop) post(task func()) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return ErrLoopClosed
	}
	l.tasks <- task
	return nil
}

// Close 停止接收新任务，等待已投递的任务执行完，不能在事件循环上调用
func (l *Loop) Close() {
	l.once.Do(func() {
		l.mu.Lock()
		l.closed = true
		close(l.tasks)
		l.mu.Unlock()
		<-l.done
	})
}
