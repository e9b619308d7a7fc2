package application

import (
	"sync"

	"github.com/google/btree"
)

type replayKey struct {
	sender   string
	intentId string
}

type replayItem struct {
	expiry int64
	key    replayKey
}

func (i replayItem) Less(than btree.Item) bool {
	other := than.(replayItem)
	if i.expiry != other.expiry {
		return i.expiry < other.expiry
	}
	if i.key.sender != other.key.sender {
		return i.key.sender < other.key.sender
	}
	return i.key.intentId < other.key.intentId
}

// replayCache remembers the intents seen per sender until they expire.
// Expired intents are rejected before reaching the cache, so forgetting them
// after their expiry does not open a replay window.
type replayCache struct {
	lock     sync.RWMutex
	seen     map[replayKey]int64
	byExpiry *btree.BTree
}

func newReplayCache() *replayCache {
	return &replayCache{
		seen:     make(map[replayKey]int64),
		byExpiry: btree.New(32),
	}
}

func (c *replayCache) contains(sender, intentId string) bool {
	c.lock.RLock()
	defer c.lock.RUnlock()
	_, ok := c.seen[replayKey{sender, intentId}]
	return ok
}

// add records the intent, it returns false if it was already seen.
func (c *replayCache) add(sender, intentId string, expiry int64) bool {
	if c.contains(sender, intentId) {
		return false
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	key := replayKey{sender, intentId}
	if _, ok := c.seen[key]; ok {
		return false
	}
	c.seen[key] = expiry
	c.byExpiry.ReplaceOrInsert(replayItem{expiry, key})
	return true
}

// prune forgets the intents that expired at or before now.
func (c *replayCache) prune(now int64) int {
	c.lock.Lock()
	defer c.lock.Unlock()

	count := 0
	for c.byExpiry.Len() > 0 {
		oldest := c.byExpiry.Min().(replayItem)
		if oldest.expiry > now {
			break
		}
		c.byExpiry.DeleteMin()
		delete(c.seen, oldest.key)
		count++
	}
	return count
}

func (c *replayCache) len() int {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return len(c.seen)
}
