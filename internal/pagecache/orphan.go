package pagecache

// OrphanSink is an unordered bag of pages that were dirty at eviction time.
// Every page held here has dirty == true; once a key is resident again
// there is no sink entry left for it. Drained by the host via TakeOrphans,
// which transfers ownership out so the host can flush them through its own
// transport binding.
type OrphanSink struct {
	m map[PageKey]*Page
}

func newOrphanSink() *OrphanSink {
	return &OrphanSink{m: make(map[PageKey]*Page)}
}

func (s *OrphanSink) Add(p *Page) {
	s.m[p.key] = p
}

func (s *OrphanSink) Len() int { return len(s.m) }

func (s *OrphanSink) HasOrphans() bool { return len(s.m) > 0 }

// Take transfers ownership of every orphaned page out of the sink.
func (s *OrphanSink) Take() []*Page {
	if len(s.m) == 0 {
		return nil
	}
	out := make([]*Page, 0, len(s.m))
	for key, p := range s.m {
		out = append(out, p)
		delete(s.m, key)
	}
	return out
}
