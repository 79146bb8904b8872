// ABOUTME: Bounded pool of open tenant databases with LRU and idle eviction
// ABOUTME: Entries are reference counted so eviction never closes a store mid-statement

package tenantdb

import (
	"container/list"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/jmoiron/sqlx"
)

// poolEntry is one open tenant database.
type poolEntry struct {
	tenantID string
	db       *sqlx.DB
	refs     int
	lastUsed time.Time
	element  *list.Element
	evicted  bool
}

// pool keeps up to maxSize tenant databases open. Uses a doubly-linked list
// ordered by last use (least recent at front) for O(1) eviction.
type pool struct {
	mu          sync.Mutex
	entries     map[string]*poolEntry
	order       *list.List
	maxSize     int
	idleTimeout time.Duration
	onSize      func(int)
	done        chan struct{}
	closed      bool
}

// newPool creates a pool. A background goroutine closes entries that have
// been idle for longer than idleTimeout.
func newPool(maxSize int, idleTimeout time.Duration, onSize func(int)) *pool {
	if onSize == nil {
		onSize = func(int) {}
	}
	p := &pool{
		entries:     make(map[string]*poolEntry),
		order:       list.New(),
		maxSize:     maxSize,
		idleTimeout: idleTimeout,
		onSize:      onSize,
		done:        make(chan struct{}),
	}
	if idleTimeout > 0 {
		go p.cleanup()
	}
	return p
}

// acquire returns the pooled database for tenantID, opening it with open if
// needed. The caller must call release with the returned entry.
func (p *pool) acquire(tenantID string, open func() (*sqlx.DB, error)) (*poolEntry, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	if e, ok := p.entries[tenantID]; ok {
		e.refs++
		e.lastUsed = time.Now()
		p.order.MoveToBack(e.element)
		p.mu.Unlock()
		return e, nil
	}
	p.mu.Unlock()

	// Open outside the lock; another goroutine may race us to it.
	db, err := open()
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		_ = db.Close()
		return nil, ErrClosed
	}
	if e, ok := p.entries[tenantID]; ok {
		_ = db.Close()
		e.refs++
		e.lastUsed = time.Now()
		p.order.MoveToBack(e.element)
		return e, nil
	}

	if len(p.entries) >= p.maxSize {
		p.evictOldestLocked()
	}

	e := &poolEntry{tenantID: tenantID, db: db, refs: 1, lastUsed: time.Now()}
	e.element = p.order.PushBack(e)
	p.entries[tenantID] = e
	p.onSize(len(p.entries))
	return e, nil
}

// release returns an entry acquired with acquire.
func (p *pool) release(e *poolEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()

	e.refs--
	e.lastUsed = time.Now()
	if e.evicted && e.refs == 0 {
		_ = e.db.Close()
	}
}

// evict removes tenantID from the pool and closes its database once idle.
func (p *pool) evict(tenantID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.entries[tenantID]
	if !ok {
		return nil
	}
	return p.removeLocked(e)
}

// removeLocked detaches e from the pool. Must be called with mu held.
func (p *pool) removeLocked(e *poolEntry) error {
	p.order.Remove(e.element)
	delete(p.entries, e.tenantID)
	e.evicted = true
	p.onSize(len(p.entries))
	if e.refs == 0 {
		return e.db.Close()
	}
	return nil
}

// evictOldestLocked drops the least recently used entry. Must be called with mu held.
func (p *pool) evictOldestLocked() {
	front := p.order.Front()
	if front == nil {
		return
	}
	e, _ := front.Value.(*poolEntry)
	_ = p.removeLocked(e)
}

// size returns the number of pooled entries.
func (p *pool) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// cleanup runs in a background goroutine, periodically closing idle entries.
func (p *pool) cleanup() {
	interval := p.idleTimeout / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.evictIdle(time.Now())
		case <-p.done:
			return
		}
	}
}

// evictIdle closes unreferenced entries last used before now-idleTimeout.
func (p *pool) evictIdle(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for elem := p.order.Front(); elem != nil; {
		next := elem.Next()
		e, _ := elem.Value.(*poolEntry)
		if e.refs == 0 && now.Sub(e.lastUsed) > p.idleTimeout {
			_ = p.removeLocked(e)
		}
		elem = next
	}
}

// close stops the cleanup goroutine and closes every entry. It is safe to call multiple times.
func (p *pool) close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	close(p.done)

	var result *multierror.Error
	for _, e := range p.entries {
		p.order.Remove(e.element)
		e.evicted = true
		if e.refs == 0 {
			if err := e.db.Close(); err != nil {
				result = multierror.Append(result, err)
			}
		}
	}
	p.entries = make(map[string]*poolEntry)
	p.onSize(0)
	return result.ErrorOrNil()
}
