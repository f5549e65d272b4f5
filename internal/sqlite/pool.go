package sqlite

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/strongbox-db/strongbox/pkg/types"
)

// grant is what a queued caller receives: a live connection handed over by
// a releaser, permission to open a fresh one (the slot is already reserved
// on the grantee's behalf), or a terminal error.
type grant struct {
	conn *Connection
	dial bool
	err  error
}

// waiter is one queued Acquire call. The channel is buffered so a releaser
// never blocks handing a grant to a caller that is timing out.
type waiter struct {
	ch chan grant
}

// pool is a bounded cache of connections to one store file. Callers take
// exclusive ownership via Acquire and must call Release exactly once.
// When the pool is at capacity, callers queue and are served in arrival
// order as connections come back.
type pool struct {
	path           string
	busyTimeoutMS  int
	size           int
	acquireTimeout time.Duration

	mu       sync.Mutex
	cond     *sync.Cond // signalled when a lent connection comes home
	idle     []*Connection
	open     int // total existing connections, idle + lent
	waiters  []*waiter
	draining bool
	closed   bool
}

func newPool(path string, cfg types.Config) *pool {
	p := &pool{
		path:           path,
		busyTimeoutMS:  cfg.BusyTimeoutMS,
		size:           cfg.PoolSize,
		acquireTimeout: time.Duration(cfg.AcquireTimeoutMS) * time.Millisecond,
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Acquire returns an idle connection, opens a new one while under
// capacity, or blocks in FIFO order until one is released. It fails with
// types.ErrPoolExhausted once the acquire timeout elapses, and with the
// context error if ctx is cancelled first.
func (p *pool) Acquire(ctx context.Context) (*Connection, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, types.ErrStoreClosed
	}

	// Fast path only when nobody is queued ahead of us and no drain is
	// in progress; otherwise we join the queue to keep arrival order.
	if !p.draining && len(p.waiters) == 0 {
		if n := len(p.idle); n > 0 {
			conn := p.idle[n-1]
			p.idle = p.idle[:n-1]
			p.mu.Unlock()
			return conn, nil
		}
		if p.open < p.size {
			p.open++
			p.mu.Unlock()
			return p.dial()
		}
	}

	w := &waiter{ch: make(chan grant, 1)}
	p.waiters = append(p.waiters, w)
	p.mu.Unlock()

	timer := time.NewTimer(p.acquireTimeout)
	defer timer.Stop()

	select {
	case g := <-w.ch:
		return p.redeem(g)
	case <-ctx.Done():
		return nil, p.abandon(w, ctx.Err())
	case <-timer.C:
		return nil, p.abandon(w, fmt.Errorf("%w: no connection released within %s",
			types.ErrPoolExhausted, p.acquireTimeout))
	}
}

// redeem turns a grant into a usable connection.
func (p *pool) redeem(g grant) (*Connection, error) {
	if g.err != nil {
		return nil, g.err
	}
	if !g.dial {
		return g.conn, nil
	}
	return p.dial()
}

// dial opens a connection for a slot already counted in p.open. On failure
// the slot is returned and the next waiter woken, so a flaky disk does not
// strand queued callers.
func (p *pool) dial() (*Connection, error) {
	conn, err := openConnection(p.path, p.busyTimeoutMS)
	if err != nil {
		p.mu.Lock()
		p.open--
		p.promote()
		p.cond.Broadcast()
		p.mu.Unlock()
		return nil, err
	}
	return conn, nil
}

// abandon removes w from the queue after a timeout or cancellation. A
// grant may already be in flight; if so it is recycled rather than leaked.
func (p *pool) abandon(w *waiter, cause error) error {
	p.mu.Lock()
	for i, q := range p.waiters {
		if q == w {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			p.mu.Unlock()
			return cause
		}
	}
	p.mu.Unlock()

	// Not in the queue: a grant raced our timeout. Take it and put it back.
	g := <-w.ch
	switch {
	case g.err != nil:
		// Terminal grant; nothing to recycle.
	case g.dial:
		p.mu.Lock()
		p.open--
		p.promote()
		p.cond.Broadcast()
		p.mu.Unlock()
	default:
		p.Release(g.conn)
	}
	return cause
}

// Release returns a connection to the pool. It must be called exactly once
// per successful Acquire. The connection goes to the oldest waiter if any,
// back to the idle set below capacity, and is closed otherwise.
func (p *pool) Release(conn *Connection) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		conn.Close()
		return
	}

	if p.draining {
		// Maintenance is waiting for every connection to come home.
		p.idle = append(p.idle, conn)
		p.cond.Broadcast()
		p.mu.Unlock()
		return
	}

	if len(p.waiters) > 0 {
		w := p.waiters[0]
		p.waiters = p.waiters[1:]
		p.mu.Unlock()
		w.ch <- grant{conn: conn}
		return
	}

	if len(p.idle) < p.size {
		p.idle = append(p.idle, conn)
		p.mu.Unlock()
		return
	}

	p.mu.Unlock()
	conn.Close()
}

// promote hands dial grants to queued waiters while slots are free. Caller
// must hold p.mu.
func (p *pool) promote() {
	for len(p.waiters) > 0 && !p.draining && p.open < p.size {
		w := p.waiters[0]
		p.waiters = p.waiters[1:]
		p.open++
		w.ch <- grant{dial: true}
	}
}

// Drain stops granting connections, waits for every lent connection to be
// released, then closes all of them. The store file is untouched by any
// handle afterwards, which restore and migration require. Callers arriving
// during a drain queue up and are served after Resume.
func (p *pool) Drain() {
	p.mu.Lock()
	p.draining = true
	for len(p.idle) < p.open {
		p.cond.Wait()
	}
	for _, conn := range p.idle {
		conn.Close()
	}
	p.idle = nil
	p.open = 0
	p.mu.Unlock()
}

// Resume re-enables grants after a drain and serves queued callers in
// arrival order.
func (p *pool) Resume() {
	p.mu.Lock()
	p.draining = false
	p.promote()
	p.mu.Unlock()
}

// Close drains the pool and rejects all future acquires. Queued waiters
// are failed with types.ErrStoreClosed.
func (p *pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.draining = true
	for len(p.idle) < p.open {
		p.cond.Wait()
	}
	for _, conn := range p.idle {
		conn.Close()
	}
	p.idle = nil
	p.open = 0
	p.closed = true
	waiters := p.waiters
	p.waiters = nil
	p.mu.Unlock()

	for _, w := range waiters {
		w.ch <- grant{err: types.ErrStoreClosed}
	}
}

// Stats reports the pool's current occupancy, for logs and tests.
func (p *pool) Stats() (open, idle, queued int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.open, len(p.idle), len(p.waiters)
}
