package gzstream

import "container/list"

// defaultCookieLimit bounds the number of live seek cookies per text
// handle.
const defaultCookieLimit = 1000

// textCheckpoint is the complete restart state behind one text seek
// cookie: the binary offset to reposition the byte layer at, the
// decoder carry at that offset, and text already decoded but not yet
// returned to the caller.
type textCheckpoint struct {
	binOff     int64
	pending    []byte
	trailingCR bool
	text       string
}

type cookieEntry struct {
	cookie int64
	cp     textCheckpoint
}

// cookieCache maps seek cookies to checkpoints with LRU eviction.
// Seeking to an evicted cookie fails hard; silently resuming from a
// nearby position would return text from the wrong offset.
type cookieCache struct {
	limit int
	ll    *list.List
	index map[int64]*list.Element
}

func newCookieCache(limit int) *cookieCache {
	if limit <= 0 {
		limit = defaultCookieLimit
	}
	return &cookieCache{
		limit: limit,
		ll:    list.New(),
		index: make(map[int64]*list.Element),
	}
}

func (c *cookieCache) get(cookie int64) (textCheckpoint, bool) {
	el, ok := c.index[cookie]
	if !ok {
		return textCheckpoint{}, false
	}
	c.ll.MoveToFront(el)
	return el.Value.(*cookieEntry).cp, true
}

// put records or refreshes a checkpoint, evicting the least recently
// used entry when over the limit.
func (c *cookieCache) put(cookie int64, cp textCheckpoint) {
	if el, ok := c.index[cookie]; ok {
		el.Value.(*cookieEntry).cp = cp
		c.ll.MoveToFront(el)
		return
	}
	c.index[cookie] = c.ll.PushFront(&cookieEntry{cookie: cookie, cp: cp})
	if c.ll.Len() > c.limit {
		last := c.ll.Back()
		c.ll.Remove(last)
		delete(c.index, last.Value.(*cookieEntry).cookie)
	}
}

// putIfAbsent records a checkpoint only when the cookie is new, so a
// checkpoint issued by Tell is never clobbered by a later passive
// recording at the same cookie.
func (c *cookieCache) putIfAbsent(cookie int64, cp textCheckpoint) {
	if _, ok := c.index[cookie]; ok {
		return
	}
	c.put(cookie, cp)
}

func (c *cookieCache) len() int { return c.ll.Len() }

func (c *cookieCache) clear() {
	c.ll.Init()
	clear(c.index)
}
