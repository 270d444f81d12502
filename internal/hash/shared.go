package hash

import (
	"sync"

	"github.com/j6k1/nnshogi/internal/shogi"
)

// SharedBoolMap is the proof cache shared between workers: readers on
// lookup, a single writer on insert. Critical sections are short; contention
// stays low because cache keys are path dependent.
type SharedBoolMap struct {
	mu sync.RWMutex
	m  *KyokumenMap[bool]
}

// NewSharedBoolMap creates an empty shared cache.
func NewSharedBoolMap() *SharedBoolMap {
	return &SharedBoolMap{m: NewKyokumenMap[bool]()}
}

// Get looks up a cached verdict.
func (s *SharedBoolMap) Get(c shogi.Color, h DualHash) (bool, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.m.Get(c, h)
}

// Insert stores a verdict, replacing any previous one.
func (s *SharedBoolMap) Insert(c shogi.Color, h DualHash, v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m.Insert(c, h, v)
}

// InsertIfAbsent stores a verdict only when the key is not yet present.
func (s *SharedBoolMap) InsertIfAbsent(c shogi.Color, h DualHash, v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m.Get(c, h); !ok {
		s.m.Insert(c, h, v)
	}
}
