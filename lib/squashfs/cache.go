// Copyright 2026 The Squashfs Tools Authors
// SPDX-License-Identifier: Apache-2.0

package squashfs

import (
	"log/slog"
	"sync"
)

// fetchFunc fills dst with one decompressed block read from the
// image. offset locates the block on disk; length carries the data
// block length word for fragment reads and is zero for metadata
// blocks, which carry their own inline header. It returns the
// decompressed length and, for metadata blocks, the disk offset of
// the block that follows.
type fetchFunc func(dst []byte, offset int64, length uint32) (n int, next int64, err error)

// blockCache holds a small fixed number of decompressed blocks keyed
// by disk offset. The volume keeps one for metadata blocks and, when
// the image has fragments, one for fragment blocks.
//
// Entries are refcounted: get pins an entry and put releases it, so
// concurrent readers can use different entries while a miss is being
// fetched. Only one fetch per offset is ever in flight; goroutines
// asking for an offset someone else is fetching wait for that fetch.
// Replacement picks the least recently used unpinned slot.
type blockCache struct {
	name  string
	log   *slog.Logger
	fetch fetchFunc

	mu      sync.Mutex
	filling *sync.Cond // signaled when a fetch settles or a pin drops
	entries []*cacheEntry
	stamp   uint64
	hits    uint64
	misses  uint64
	closed  bool

	// releases counts release calls. The release path must run
	// exactly once per cache; tests assert on this.
	releases int
}

// cacheEntry is one cache slot. All fields are guarded by the cache
// mutex except data, which is written only while the slot is marked
// pending and read only while pinned.
type cacheEntry struct {
	offset  int64 // disk offset of the cached block; -1 when empty
	length  int   // decompressed payload length
	next    int64 // offset of the following metadata block
	data    []byte
	refs    int
	pending bool
	stamp   uint64
}

// newBlockCache creates a cache of capacity entries, each holding up
// to entrySize decompressed bytes, reading misses through fetch.
func newBlockCache(name string, capacity, entrySize int, log *slog.Logger, fetch fetchFunc) *blockCache {
	c := &blockCache{
		name:    name,
		log:     log,
		fetch:   fetch,
		entries: make([]*cacheEntry, capacity),
	}
	c.filling = sync.NewCond(&c.mu)
	for i := range c.entries {
		c.entries[i] = &cacheEntry{offset: -1, data: make([]byte, entrySize)}
	}
	return c
}

// get returns the cached block at offset, fetching it on a miss, with
// the entry pinned. Every successful get must be paired with a put.
// length is passed through to the fetch function (see fetchFunc).
func (c *blockCache) get(offset int64, length uint32) (*cacheEntry, error) {
	c.mu.Lock()
	for {
		if c.closed {
			c.mu.Unlock()
			return nil, ErrClosed
		}

		if e := c.lookup(offset); e != nil {
			if e.pending {
				// Someone else is fetching this block. When the
				// fetch fails the slot empties again, so re-run the
				// lookup rather than assuming success.
				c.filling.Wait()
				continue
			}
			c.hits++
			e.refs++
			c.stamp++
			e.stamp = c.stamp
			c.mu.Unlock()
			return e, nil
		}

		e := c.victim()
		if e == nil {
			// Every slot is pinned or mid-fetch.
			c.filling.Wait()
			continue
		}

		// Claim the slot and fetch outside the lock. The pending
		// flag keeps lookups off the entry while data is written.
		c.misses++
		e.offset = offset
		e.pending = true
		c.mu.Unlock()

		n, next, err := c.fetch(e.data, offset, length)

		c.mu.Lock()
		e.pending = false
		if err != nil {
			e.offset = -1
			c.filling.Broadcast()
			c.mu.Unlock()
			return nil, err
		}
		e.length = n
		e.next = next
		e.refs = 1
		c.stamp++
		e.stamp = c.stamp
		c.filling.Broadcast()
		c.mu.Unlock()
		return e, nil
	}
}

// put unpins an entry returned by get.
func (c *blockCache) put(e *cacheEntry) {
	c.mu.Lock()
	e.refs--
	if e.refs == 0 {
		c.filling.Broadcast()
	}
	c.mu.Unlock()
}

// lookup finds the slot caching offset, if any. Linear scan: the
// cache has at most a handful of slots.
func (c *blockCache) lookup(offset int64) *cacheEntry {
	for _, e := range c.entries {
		if e.offset == offset {
			return e
		}
	}
	return nil
}

// victim picks the least recently used slot that is neither pinned
// nor mid-fetch, preferring empty slots.
func (c *blockCache) victim() *cacheEntry {
	var oldest *cacheEntry
	for _, e := range c.entries {
		if e.refs > 0 || e.pending {
			continue
		}
		if e.offset == -1 {
			return e
		}
		if oldest == nil || e.stamp < oldest.stamp {
			oldest = e
		}
	}
	return oldest
}

// release shuts the cache down. Blocked getters wake up and fail with
// ErrClosed, as do all later gets. Idempotence is the volume's job:
// it drops its reference after the first call.
func (c *blockCache) release() {
	c.mu.Lock()
	c.closed = true
	c.releases++
	c.filling.Broadcast()
	hits, misses := c.hits, c.misses
	c.mu.Unlock()
	c.log.Debug("block cache released", "cache", c.name, "hits", hits, "misses", misses)
}
