package state

import "encoding/json"

// RefSet is an insertion-ordered set of references. Membership is O(1);
// removal keeps the order of the remaining entries. The zero value is an
// empty set ready to use. It encodes as a plain JSON array.
type RefSet[K comparable] struct {
	items []K
	index map[K]int
}

func NewRefSet[K comparable](items ...K) RefSet[K] {
	var s RefSet[K]
	for _, k := range items {
		s.Add(k)
	}
	return s
}

// Add appends k if absent and reports whether it was added.
func (s *RefSet[K]) Add(k K) bool {
	if s.index == nil {
		s.index = make(map[K]int)
	}
	if _, ok := s.index[k]; ok {
		return false
	}
	s.index[k] = len(s.items)
	s.items = append(s.items, k)
	return true
}

// Remove deletes k if present and reports whether it was removed.
func (s *RefSet[K]) Remove(k K) bool {
	i, ok := s.index[k]
	if !ok {
		return false
	}
	delete(s.index, k)
	s.items = append(s.items[:i], s.items[i+1:]...)
	for j := i; j < len(s.items); j++ {
		s.index[s.items[j]] = j
	}
	return true
}

func (s *RefSet[K]) Contains(k K) bool {
	_, ok := s.index[k]
	return ok
}

func (s *RefSet[K]) Len() int {
	return len(s.items)
}

// Items returns a copy of the entries in insertion order.
func (s *RefSet[K]) Items() []K {
	out := make([]K, len(s.items))
	copy(out, s.items)
	return out
}

func (s RefSet[K]) MarshalJSON() ([]byte, error) {
	if s.items == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.items)
}

func (s *RefSet[K]) UnmarshalJSON(data []byte) error {
	var items []K
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	*s = NewRefSet(items...)
	return nil
}
