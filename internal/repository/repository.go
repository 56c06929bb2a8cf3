// Package repository 按远程位置管理一组服务代理
package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"remoting/internal/proxy"
	"remoting/internal/types"
	"remoting/internal/utils"
)

var (
	ErrAlreadyRegistered = errors.New("service proxy already registered")
	ErrServiceNotFound   = errors.New("service proxy not found")
	ErrLocationMismatch  = errors.New("service proxy targets another location")
	ErrRepositoryClosed  = errors.New("repository closed")
)

// Repository 一个远程位置上的全部服务代理，按服务名索引
type Repository struct {
	mu       sync.RWMutex
	location types.RemoteLocation
	proxies  map[string]*proxy.Proxy
	watchers []chan Event
	logger   utils.Logger
	closed   bool
	done     chan struct{}
}

// Option 仓库选项
type Option func(*Repository)

// WithLogger 设置日志器
func WithLogger(logger utils.Logger) Option {
	return func(r *Repository) {
		r.logger = logger
	}
}

// New 创建仓库
func New(location types.RemoteLocation, opts ...Option) *Repository {
	r := &Repository{
		location: location,
		proxies:  make(map[string]*proxy.Proxy),
		logger:   utils.DefaultLogger,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Location 仓库对应的远程位置
func (r *Repository) Location() types.RemoteLocation {
	return r.location
}

// Register 登记代理，服务名不能重复
func (r *Repository) Register(p *proxy.Proxy) error {
	if p == nil {
		return fmt.Errorf("proxy cannot be nil")
	}
	if p.Location() != r.location {
		return fmt.Errorf("%w: %s (repository %s)", ErrLocationMismatch, p.Location(), r.location)
	}
	service := p.Service()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRepositoryClosed
	}
	if _, exists := r.proxies[service]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, service)
	}
	r.proxies[service] = p

	r.logger.Info("service proxy registered",
		utils.String("service", service),
		utils.String("address", p.Address()))
	r.notify(Event{Type: EventRegister, Service: service, Address: p.Address(), Timestamp: time.Now()})
	return nil
}

// Deregister 移除代理
func (r *Repository) Deregister(service string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, exists := r.proxies[service]
	if !exists {
		return fmt.Errorf("%w: %s", ErrServiceNotFound, service)
	}
	delete(r.proxies, service)

	r.notify(Event{Type: EventDeregister, Service: service, Address: p.Address(), Timestamp: time.Now()})
	return nil
}

// Lookup 按服务名查找代理
func (r *Repository) Lookup(service string) (*proxy.Proxy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, exists := r.proxies[service]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrServiceNotFound, service)
	}
	return p, nil
}

// Services 已登记的服务名，按字母排序
func (r *Repository) Services() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	services := make([]string, 0, len(r.proxies))
	for name := range r.proxies {
		services = append(services, name)
	}
	sort.Strings(services)
	return services
}

// Rebind 为每个代理重新创建转发句柄，任一失败时不替换任何句柄
func (r *Repository) Rebind(factory func(address string) (types.Handle, error)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	handles := make(map[string]types.Handle, len(r.proxies))
	for name, p := range r.proxies {
		h, err := factory(p.Address())
		if err != nil {
			return fmt.Errorf("rebind %s: %w", name, err)
		}
		handles[name] = h
	}

	for name, h := range handles {
		p := r.proxies[name]
		p.Rebind(h)
		r.notify(Event{Type: EventRebind, Service: name, Address: p.Address(), Timestamp: time.Now()})
	}
	return nil
}

// Watch 监听仓库变化，ctx 结束或仓库关闭时通道关闭
func (r *Repository) Watch(ctx context.Context) (<-chan Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrRepositoryClosed
	}
	ch := make(chan Event, 10)
	r.watchers = append(r.watchers, ch)

	go func() {
		select {
		case <-ctx.Done():
		case <-r.done:
			// Close 已关闭全部通道
			return
		}
		r.mu.Lock()
		defer r.mu.Unlock()
		for i, w := range r.watchers {
			if w == ch {
				r.watchers = append(r.watchers[:i], r.watchers[i+1:]...)
				close(ch)
				return
			}
		}
	}()

	return ch, nil
}

// Close 关闭所有监听
func (r *Repository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	close(r.done)
	for _, ch := range r.watchers {
		close(ch)
	}
	r.watchers = nil
	return nil
}

// notify 调用方持有锁
func (r *Repository) notify(event Event) {
	for _, ch := range r.watchers {
		select {
		case ch <- event:
		default:
			r.logger.Warn("watcher channel full, dropping event",
				utils.String("service", event.Service),
				utils.String("event", event.Type.String()))
		}
	}
}
