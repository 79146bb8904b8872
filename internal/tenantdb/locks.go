// ABOUTME: Per-tenant reader/writer locks, created on demand and dropped when unused
// ABOUTME: Provision and destroy hold the write side; statements hold the read side

package tenantdb

import "sync"

type tenantLock struct {
	sync.RWMutex
	refs int
}

// tenantLocks hands out one RWMutex per tenant id so that lifecycle changes on
// one tenant never block statements against another.
type tenantLocks struct {
	mu    sync.Mutex
	locks map[string]*tenantLock
}

func newTenantLocks() *tenantLocks {
	return &tenantLocks{locks: make(map[string]*tenantLock)}
}

func (l *tenantLocks) get(tenantID string) *tenantLock {
	l.mu.Lock()
	defer l.mu.Unlock()

	lk, ok := l.locks[tenantID]
	if !ok {
		lk = &tenantLock{}
		l.locks[tenantID] = lk
	}
	lk.refs++
	return lk
}

func (l *tenantLocks) put(tenantID string, lk *tenantLock) {
	l.mu.Lock()
	defer l.mu.Unlock()

	lk.refs--
	if lk.refs == 0 {
		delete(l.locks, tenantID)
	}
}

// rlock takes the read side for tenantID and returns its release func.
func (l *tenantLocks) rlock(tenantID string) func() {
	lk := l.get(tenantID)
	lk.RLock()
	return func() {
		lk.RUnlock()
		l.put(tenantID, lk)
	}
}

// lock takes the write side for tenantID and returns its release func.
func (l *tenantLocks) lock(tenantID string) func() {
	lk := l.get(tenantID)
	lk.Lock()
	return func() {
		lk.Unlock()
		l.put(tenantID, lk)
	}
}

// pendingProvisions counts, per tenant, Provision calls whose shared attempt
// has not finished. Destroy waits for the count to reach zero.
type pendingProvisions struct {
	mu    sync.Mutex
	cond  *sync.Cond
	count map[string]int
}

func newPendingProvisions() *pendingProvisions {
	p := &pendingProvisions{count: make(map[string]int)}
	p.cond = sync.NewCond(&p.mu)
	return p
}

func (p *pendingProvisions) add(tenantID string) {
	p.mu.Lock()
	p.count[tenantID]++
	p.mu.Unlock()
}

func (p *pendingProvisions) done(tenantID string) {
	p.mu.Lock()
	p.count[tenantID]--
	if p.count[tenantID] <= 0 {
		delete(p.count, tenantID)
	}
	p.mu.Unlock()
	p.cond.Broadcast()
}

func (p *pendingProvisions) wait(tenantID string) {
	p.mu.Lock()
	for p.count[tenantID] > 0 {
		p.cond.Wait()
	}
	p.mu.Unlock()
}
