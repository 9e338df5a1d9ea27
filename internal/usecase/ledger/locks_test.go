package ledger

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAccountLocks_SameKeyReturnsSameMutex(t *testing.T) {
	locks := newAccountLocks()
	assert.Same(t, locks.get("guild-1", "alice"), locks.get("guild-1", "alice"))
	assert.NotSame(t, locks.get("guild-1", "alice"), locks.get("guild-1", "bob"))
	assert.NotSame(t, locks.get("guild-1", "alice"), locks.get("guild-2", "alice"))
}

func TestAccountLocks_LockPairOrderIndependent(t *testing.T) {
	locks := newAccountLocks()

	// Opposite acquisition orders on the same pair must not deadlock.
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			unlock := locks.lockPair("guild-1", "alice", "bob")
			unlock()
		}()
		go func() {
			defer wg.Done()
			unlock := locks.lockPair("guild-1", "bob", "alice")
			unlock()
		}()
	}
	wg.Wait()
}

func TestAccountLocks_LockPairSelf(t *testing.T) {
	locks := newAccountLocks()
	unlock := locks.lockPair("guild-1", "alice", "alice")
	unlock()
	// Reusable afterwards.
	m := locks.get("guild-1", "alice")
	m.Lock()
	m.Unlock()
}
