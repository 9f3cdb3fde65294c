// Package epgm is the extended property graph model: vertices, edges and graph
// heads that carry the set of graphs they belong to, and the logical graphs
// and graph collections built from them.
package epgm

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// ID identifies a vertex, an edge or a graph.
type ID int64

// NewID returns a fresh positive ID built from the random bits of a UUID.
func NewID() ID {
	u := uuid.New()
	return ID(binary.BigEndian.Uint64(u[:8]) &^ (1 << 63))
}

// IDSet is a set of graph IDs. The zero value (nil) is an empty set that
// cannot be added to; use NewIDSet for a mutable one.
type IDSet map[ID]struct{}

func NewIDSet(ids ...ID) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s IDSet) Add(id ID) {
	s[id] = struct{}{}
}

func (s IDSet) AddAll(other IDSet) {
	for id := range other {
		s[id] = struct{}{}
	}
}

func (s IDSet) Contains(id ID) bool {
	_, ok := s[id]
	return ok
}

func (s IDSet) Len() int {
	return len(s)
}

func (s IDSet) Clone() IDSet {
	c := make(IDSet, len(s))
	c.AddAll(s)
	return c
}

// Union returns a new set with the elements of both sets.
func (s IDSet) Union(other IDSet) IDSet {
	u := make(IDSet, len(s)+len(other))
	u.AddAll(s)
	u.AddAll(other)
	return u
}

// Intersect returns a new set with the elements present in both sets.
func (s IDSet) Intersect(other IDSet) IDSet {
	small, large := s, other
	if len(large) < len(small) {
		small, large = large, small
	}
	i := make(IDSet)
	for id := range small {
		if large.Contains(id) {
			i.Add(id)
		}
	}
	return i
}

func (s IDSet) IsSubsetOf(other IDSet) bool {
	if len(s) > len(other) {
		return false
	}
	for id := range s {
		if !other.Contains(id) {
			return false
		}
	}
	return true
}

func (s IDSet) Equal(other IDSet) bool {
	return len(s) == len(other) && s.IsSubsetOf(other)
}

// Sorted returns the elements in ascending order.
func (s IDSet) Sorted() []ID {
	ids := make([]ID, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s IDSet) String() string {
	parts := make([]string, 0, len(s))
	for _, id := range s.Sorted() {
		parts = append(parts, fmt.Sprint(int64(id)))
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// Int64s and IDSetFromInt64s convert to and from the storage representation.
func (s IDSet) Int64s() []int64 {
	ids := s.Sorted()
	res := make([]int64, len(ids))
	for i, id := range ids {
		res[i] = int64(id)
	}
	return res
}

func IDSetFromInt64s(ids []int64) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s.Add(ID(id))
	}
	return s
}

// IDSets are sorted JSON arrays on the wire.
func (s IDSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Int64s())
}

func (s *IDSet) UnmarshalJSON(data []byte) error {
	var ids []int64
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*s = IDSetFromInt64s(ids)
	return nil
}
