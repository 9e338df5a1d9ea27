package ledger

import "sync"

// accountLocks hands out one mutex per (tenant, holder) key so read-modify-
// write cycles on a balance are serialized across call sites. Locks are never
// evicted; the population is bounded by the number of accounts, which are
// themselves never deleted.
type accountLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newAccountLocks() *accountLocks {
	return &accountLocks{locks: make(map[string]*sync.Mutex)}
}

func (l *accountLocks) get(tenantID, holderID string) *sync.Mutex {
	key := tenantID + "\x00" + holderID

	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	return m
}

// lockPair acquires both accounts' locks in a stable key order so two
// transfers touching the same pair cannot deadlock.
func (l *accountLocks) lockPair(tenantID, holderA, holderB string) func() {
	if holderA == holderB {
		m := l.get(tenantID, holderA)
		m.Lock()
		return m.Unlock
	}

	first, second := holderA, holderB
	if second < first {
		first, second = second, first
	}
	m1 := l.get(tenantID, first)
	m2 := l.get(tenantID, second)
	m1.Lock()
	m2.Lock()
	return func() {
		m2.Unlock()
		m1.Unlock()
	}
}
