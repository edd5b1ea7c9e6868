package compcache

import (
	"bytes"
	"slices"

	"github.com/google/uuid"
)

// IdentitySet is the set of module version IDs a composition graph was
// built from. Two sets are equal when they hold the same IDs in any order.
type IdentitySet struct {
	ids map[uuid.UUID]struct{}
}

// NewIdentitySet returns a set holding ids. Repeated IDs collapse.
func NewIdentitySet(ids ...uuid.UUID) IdentitySet {
	s := IdentitySet{ids: make(map[uuid.UUID]struct{}, len(ids))}
	for _, id := range ids {
		s.ids[id] = struct{}{}
	}
	return s
}

// Len returns the number of distinct IDs.
func (s IdentitySet) Len() int {
	return len(s.ids)
}

// Contains reports whether id is in the set.
func (s IdentitySet) Contains(id uuid.UUID) bool {
	_, ok := s.ids[id]
	return ok
}

// Equal reports set equality.
func (s IdentitySet) Equal(other IdentitySet) bool {
	if len(s.ids) != len(other.ids) {
		return false
	}
	for id := range s.ids {
		if _, ok := other.ids[id]; !ok {
			return false
		}
	}
	return true
}

// IDs returns the IDs in byte order.
func (s IdentitySet) IDs() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	slices.SortFunc(out, func(a, b uuid.UUID) int {
		return bytes.Compare(a[:], b[:])
	})
	return out
}

// MarshalCBOR encodes the set as a sorted array of 16-byte strings.
func (s IdentitySet) MarshalCBOR() ([]byte, error) {
	return marshal(s.IDs())
}

// UnmarshalCBOR replaces the set's contents.
func (s *IdentitySet) UnmarshalCBOR(data []byte) error {
	var ids []uuid.UUID
	if err := decMode.Unmarshal(data, &ids); err != nil {
		return err
	}
	*s = NewIdentitySet(ids...)
	return nil
}
