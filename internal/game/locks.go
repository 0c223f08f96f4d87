package game

import "sync"

// CorpLocks serializes every mutation path for a corporation: trades,
// governance resolution and turn accrual all take the same lock, so none of
// them can interleave for one corporation while others run in parallel.
type CorpLocks struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func NewCorpLocks() *CorpLocks {
	return &CorpLocks{locks: make(map[int64]*sync.Mutex)}
}

func (c *CorpLocks) Lock(corpID int64) {
	c.get(corpID).Lock()
}

func (c *CorpLocks) Unlock(corpID int64) {
	c.get(corpID).Unlock()
}

func (c *CorpLocks) get(corpID int64) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.locks[corpID]
	if !ok {
		m = &sync.Mutex{}
		c.locks[corpID] = m
	}
	return m
}
