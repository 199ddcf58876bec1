package scan

// SizeIndex buckets walked files by exact byte size. A file whose size is
// globally unique cannot have a byte-identical twin, so only multi-member
// buckets survive into the hashing stage.
type SizeIndex struct {
	buckets map[int64][]string
	total   int
}

func NewSizeIndex() *SizeIndex {
	return &SizeIndex{buckets: make(map[int64][]string)}
}

func (s *SizeIndex) Add(m FileMeta) {
	s.buckets[m.Size] = append(s.buckets[m.Size], m.Path)
	s.total++
}

// Total returns the number of files indexed so far.
func (s *SizeIndex) Total() int {
	return s.total
}

// Candidates returns every file that shares its byte size with at least one
// other indexed file. These are the only files worth hashing.
func (s *SizeIndex) Candidates() []FileMeta {
	var out []FileMeta
	for size, paths := range s.buckets {
		if len(paths) < 2 {
			continue
		}
		for _, p := range paths {
			out = append(out, FileMeta{Path: p, Size: size})
		}
	}
	return out
}
