package mathimg

import (
	"context"
	"errors"
	"runtime"
	"sync"
)

// Pool sizing constants.
const (
	// MinPoolSize ensures at least one session is available.
	MinPoolSize = 1

	// MaxPoolSize caps browser instances to limit memory (~200MB each).
	MaxPoolSize = 8

	// cpuDivisor leaves headroom for Chrome child processes.
	cpuDivisor = 2
)

// ServicePool manages a fixed-size pool of Service instances for parallel
// rendering. Each service has its own browser session, so acquired services
// never share an execution context. Services are created lazily on first
// acquire to avoid startup delay.
type ServicePool struct {
	size    int
	opts    []Option
	sem     chan *Service
	mu      sync.Mutex
	created int
	closed  bool
}

// NewServicePool creates a pool with capacity for n Service instances,
// each built with the given options. Services are created lazily when
// acquired, not at pool creation.
func NewServicePool(n int, opts ...Option) *ServicePool {
	if n < 1 {
		n = 1
	}

	return &ServicePool{
		size: n,
		opts: opts,
		sem:  make(chan *Service, n),
	}
}

// Acquire gets a service from the pool, creating one if the pool has not
// reached capacity. Blocks until a service is released or ctx is done.
// An acquired service is owned exclusively by the caller until Release.
func (p *ServicePool) Acquire(ctx context.Context) (*Service, error) {
	// Try to get an idle service (non-blocking)
	select {
	case svc, ok := <-p.sem:
		if !ok {
			return nil, ErrPoolClosed
		}
		return svc, nil
	default:
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	if p.created < p.size {
		p.created++
		p.mu.Unlock()
		return New(p.opts...), nil
	}
	p.mu.Unlock()

	// All slots created, wait for a release
	select {
	case svc, ok := <-p.sem:
		if !ok {
			return nil, ErrPoolClosed
		}
		return svc, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release returns a service to the pool. A service whose session degraded
// mid-render (crash, timeout) is discarded instead of reused: its slot is
// freed and a fresh service is created lazily on the next Acquire.
func (p *ServicePool) Release(svc *Service) {
	if svc == nil {
		return
	}
	if !svc.Healthy() {
		p.Discard(svc)
		return
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		_ = svc.Close()
		return
	}
	// Never blocks: sem capacity equals the maximum number of services
	// that can exist, so holding the lock across the send is safe.
	p.sem <- svc
	p.mu.Unlock()
}

// Discard closes a known-bad service and frees its pool slot. The service
// is never handed out again.
func (p *ServicePool) Discard(svc *Service) {
	if svc == nil {
		return
	}
	_ = svc.Close()

	p.mu.Lock()
	if !p.closed && p.created > 0 {
		p.created--
	}
	p.mu.Unlock()
}

// Close releases all idle services and marks the pool closed. In-flight
// services are closed by their holders via Release after Close.
// Returns an aggregated error if multiple services fail to close.
func (p *ServicePool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.sem)
	p.mu.Unlock()

	var errs []error
	for svc := range p.sem {
		if err := svc.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Size returns the pool capacity.
func (p *ServicePool) Size() int {
	return p.size
}

// ResolvePoolSize determines the pool size. An explicit positive value wins;
// otherwise the size derives from GOMAXPROCS (adjusted by automaxprocs in
// containers), clamped to [MinPoolSize, MaxPoolSize].
func ResolvePoolSize(workers int) int {
	if workers > 0 {
		return workers
	}

	n := runtime.GOMAXPROCS(0) / cpuDivisor

	if n < MinPoolSize {
		return MinPoolSize
	}
	if n > MaxPoolSize {
		return MaxPoolSize
	}
	return n
}
