package protocol

import (
	"strconv"
	"sync"
)

// Fingerprint identifies one receipt delivery. The server may deliver the
// same receipt more than once around reconnects; filename plus server
// timestamp distinguishes a re-delivery from a genuinely new upload of the
// same name.
func Fingerprint(filename string, timestamp int64) string {
	return filename + "|" + strconv.FormatInt(timestamp, 10)
}

// SeenSet is a bounded set of fingerprints with FIFO eviction. Once full,
// remembering a new fingerprint forgets the oldest one.
type SeenSet struct {
	mu    sync.Mutex
	limit int
	order []string
	set   map[string]struct{}
}

// NewSeenSet creates a set that remembers at most limit fingerprints.
func NewSeenSet(limit int) *SeenSet {
	if limit < 1 {
		limit = 1
	}
	return &SeenSet{
		limit: limit,
		set:   make(map[string]struct{}, limit),
	}
}

// Add records fp and reports whether it was new. Previously seen
// fingerprints return false without modifying the set.
func (s *SeenSet) Add(fp string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.set[fp]; ok {
		return false
	}
	if len(s.order) >= s.limit {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.set, oldest)
	}
	s.set[fp] = struct{}{}
	s.order = append(s.order, fp)
	return true
}

// Len returns the number of remembered fingerprints.
func (s *SeenSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.set)
}
