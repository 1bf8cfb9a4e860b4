// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package manifest

// WantedSet is an insertion-ordered set of identity keys. It is built once
// from a manifest and read-only afterwards.
type WantedSet struct {
	keys  []string
	index map[string]struct{}
}

// NewWantedSet returns a set holding keys in order, skipping duplicates and
// empty keys.
func NewWantedSet(keys ...string) *WantedSet {
	s := &WantedSet{index: make(map[string]struct{}, len(keys))}
	for _, k := range keys {
		s.Add(k)
	}
	return s
}

// Add inserts key and reports whether it was new.
func (s *WantedSet) Add(key string) bool {
	if key == "" {
		return false
	}
	if _, ok := s.index[key]; ok {
		return false
	}
	s.index[key] = struct{}{}
	s.keys = append(s.keys, key)
	return true
}

// Contains reports whether key is in the set.
func (s *WantedSet) Contains(key string) bool {
	_, ok := s.index[key]
	return ok
}

// Len returns the number of keys.
func (s *WantedSet) Len() int {
	return len(s.keys)
}

// Keys returns the keys in insertion order. The slice is a copy.
func (s *WantedSet) Keys() []string {
	out := make([]string, len(s.keys))
	copy(out, s.keys)
	return out
}
