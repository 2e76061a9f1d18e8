package pagecache

// Page is a fixed-size buffer plus a logical length and a dirty flag. It is
// exclusively owned at any instant by one of: the LRU index, the orphan
// sink, or a local variable during transfer between the two — never
// referenced from two places at once.
//
// length is the high-water mark of valid leading bytes: bytes [0, length)
// are defined, [length, size) are unspecified. A page that has only ever
// been written (never fetched from the transport) has length equal to the
// highest offset written within it.
type Page struct {
	key    PageKey
	buf    []byte
	length int
	dirty  bool
}

func newPage(key PageKey, pageSize int) *Page {
	return &Page{key: key, buf: make([]byte, pageSize)}
}

// newPageFromFetch builds a page whose buffer already holds n bytes read
// from the transport, e.g. a short read at end-of-file.
func newPageFromFetch(key PageKey, buf []byte, n int) *Page {
	return &Page{key: key, buf: buf, length: n}
}

// Read copies min(length-offset, len(dst)) bytes from the page at offset
// into dst and returns the count. Precondition: offset <= length.
func (p *Page) Read(dst []byte, offset int) int {
	if offset >= p.length {
		return 0
	}
	n := copy(dst, p.buf[offset:p.length])
	return n
}

// Write copies all of src into the buffer at offset and advances length to
// cover it. It does not touch the dirty flag; callers set that explicitly.
// Precondition: offset+len(src) <= Size().
func (p *Page) Write(src []byte, offset int) int {
	n := copy(p.buf[offset:], src)
	if end := offset + n; end > p.length {
		p.length = end
	}
	return n
}

// Size returns the page's capacity in bytes (the configured page size).
func (p *Page) Size() int { return len(p.buf) }

// Length returns the logical high-water mark of valid bytes.
func (p *Page) Length() int { return p.length }

func (p *Page) IsDirty() bool { return p.dirty }

func (p *Page) SetDirty(dirty bool) { p.dirty = dirty }

func (p *Page) Key() PageKey { return p.key }

// Bytes returns the page's valid leading bytes ([0, Length())). Used by a
// host draining TakeOrphans to write an evicted dirty page back out.
func (p *Page) Bytes() []byte { return p.buf[:p.length] }
