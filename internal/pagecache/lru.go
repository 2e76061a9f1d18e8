package pagecache

import "container/list"

// LruIndex is the authoritative set of resident pages: a container/list
// ordered by recency (front = most-recently-touched) with a map side-index
// for O(1) lookup, grounded on the same container/list-plus-map shape as
// mdcache's l1 cache, but with MoveToFront semantics instead of
// MoveToBack, since here the front (not the back) is the MRU end.
//
// Like InFlightMap, this is only ever touched by the Cache actor goroutine,
// so no lock guards it.
type LruIndex struct {
	m map[PageKey]*list.Element
	l *list.List // Element.Value is *Page
}

func newLruIndex() *LruIndex {
	return &LruIndex{
		m: make(map[PageKey]*list.Element),
		l: list.New(),
	}
}

// Get returns the resident page for key, if any. It does not touch it.
func (idx *LruIndex) Get(key PageKey) (*Page, bool) {
	e, ok := idx.m[key]
	if !ok {
		return nil, false
	}
	return e.Value.(*Page), true
}

// Touch moves the page for key to the front. No-op if key is not resident.
func (idx *LruIndex) Touch(key PageKey) {
	if e, ok := idx.m[key]; ok {
		idx.l.MoveToFront(e)
	}
}

// InsertFront installs a new page at the front. It is a bug to call this
// for a key that is already resident.
func (idx *LruIndex) InsertFront(p *Page) {
	e := idx.l.PushFront(p)
	idx.m[p.key] = e
}

// PopBack removes and returns the least-recently-used page.
func (idx *LruIndex) PopBack() (*Page, bool) {
	e := idx.l.Back()
	if e == nil {
		return nil, false
	}
	p := e.Value.(*Page)
	idx.l.Remove(e)
	delete(idx.m, p.key)
	return p, true
}

// Remove evicts key from the index without returning the page, if present.
func (idx *LruIndex) Remove(key PageKey) {
	if e, ok := idx.m[key]; ok {
		idx.l.Remove(e)
		delete(idx.m, key)
	}
}

func (idx *LruIndex) Len() int { return idx.l.Len() }

func (idx *LruIndex) IsEmpty() bool { return idx.l.Len() == 0 }
