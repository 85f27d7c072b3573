// Package cache implements the ordered, identity-preserving collection that
// the entry-table and FAT layers use to give a loaded on-disk section a
// single in-memory identity: two lookups for the same LBA return the same
// *Entry, so mutations are shared rather than duplicated.
//
// The shape is a singly-linked list with a head/tail pair and an
// owner-supplied free callback, generalized to Go generics from the
// teacher's non-generic PrefixTable pattern (pkg/table) so the same cache
// type serves both the entry-table cache and the FAT cache.
package cache

// Entry is one node of the cache's linked list.
type Entry[K comparable, V any] struct {
	Key  K
	Data V

	next *Entry[K, V]
}

// FreeFunc is invoked on eviction: sync-then-deallocate for entry-table and
// FAT sections, per spec.
type FreeFunc[K comparable, V any] func(key K, data V)

// Cache is an insertion-ordered map with a linear Find and an owner-driven
// Free callback. It performs no proactive eviction: entries live until
// Destroy, matching the "no eviction policy" design of the source cache.
type Cache[K comparable, V any] struct {
	head, tail *Entry[K, V]
	index      map[K]*Entry[K, V]
	free       FreeFunc[K, V]
}

// New creates an empty cache with the given free callback.
func New[K comparable, V any](free FreeFunc[K, V]) *Cache[K, V] {
	return &Cache[K, V]{
		index: make(map[K]*Entry[K, V]),
		free:  free,
	}
}

// Get returns the cached value for key and true, or the zero value and
// false if key is not cached.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	e, ok := c.index[key]
	if !ok {
		var zero V
		return zero, false
	}
	return e.Data, true
}

// Add appends a new (key, data) pair at the tail. The caller must ensure key
// is not already present; Add does not check for duplicates, matching the
// source cache's unconditional append.
func (c *Cache[K, V]) Add(key K, data V) {
	e := &Entry[K, V]{Key: key, Data: data}
	if c.tail == nil {
		c.head, c.tail = e, e
	} else {
		c.tail.next = e
		c.tail = e
	}
	c.index[key] = e
}

// Find performs a linear scan, returning the first entry for which match
// returns true.
func (c *Cache[K, V]) Find(match func(key K, data V) bool) (V, bool) {
	for e := c.head; e != nil; e = e.next {
		if match(e.Key, e.Data) {
			return e.Data, true
		}
	}
	var zero V
	return zero, false
}

// Remove unlinks the entry for key and invokes the free callback on it.
func (c *Cache[K, V]) Remove(key K) bool {
	return c.remove(key, true)
}

// RemoveData unlinks the entry for key without invoking the free callback,
// used when the caller already owns the data and will free it itself.
func (c *Cache[K, V]) RemoveData(key K) bool {
	return c.remove(key, false)
}

func (c *Cache[K, V]) remove(key K, callFree bool) bool {
	target, ok := c.index[key]
	if !ok {
		return false
	}

	var prev *Entry[K, V]
	for e := c.head; e != nil; e = e.next {
		if e == target {
			break
		}
		prev = e
	}

	if prev == nil {
		c.head = target.next
	} else {
		prev.next = target.next
	}
	if target == c.tail {
		c.tail = prev
	}
	delete(c.index, key)

	if callFree && c.free != nil {
		c.free(target.Key, target.Data)
	}
	return true
}

// Len returns the number of cached entries.
func (c *Cache[K, V]) Len() int { return len(c.index) }

// Destroy walks the whole list invoking the free callback on every entry,
// then clears the cache.
func (c *Cache[K, V]) Destroy() {
	for e := c.head; e != nil; {
		next := e.next
		if c.free != nil {
			c.free(e.Key, e.Data)
		}
		e = next
	}
	c.head, c.tail = nil, nil
	c.index = make(map[K]*Entry[K, V])
}
