package validator

import "container/list"

// signatureCache is a bounded, least-recently-used cache mapping block id →
// last-known signature validity. It exists purely to avoid re-running
// elliptic-curve verification for a block a Node has already checked; it
// is never consulted as the sole authority (spec §4.3).
type signatureCache struct {
	capacity int
	entries  map[string]*list.Element
	order    *list.List
}

type cacheEntry struct {
	id    string
	valid bool
}

func newSignatureCache(capacity int) *signatureCache {
	return &signatureCache{
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

func (c *signatureCache) get(id string) (bool, bool) {
	if c.capacity <= 0 {
		return false, false
	}
	el, ok := c.entries[id]
	if !ok {
		return false, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*cacheEntry).valid, true
}

func (c *signatureCache) put(id string, valid bool) {
	if c.capacity <= 0 {
		return
	}
	if el, ok := c.entries[id]; ok {
		el.Value.(*cacheEntry).valid = valid
		c.order.MoveToFront(el)
		return
	}
	el := c.order.PushFront(&cacheEntry{id: id, valid: valid})
	c.entries[id] = el
	if c.order.Len() > c.capacity {
		back := c.order.Back()
		if back != nil {
			c.order.Remove(back)
			delete(c.entries, back.Value.(*cacheEntry).id)
		}
	}
}
