// Package expansion holds the result of one automatic query expansion: an
// ordered, weighted list of candidate terms derived from relevance feedback,
// plus an estimate of how many terms an unbounded expansion would have
// produced.
//
// A ResultSet is a cheap value handle over immutable backing data. Copies
// share the same entries, and cursors keep the entries alive for as long as
// they are held. A completed expansion never changes; each new run of the
// expansion algorithm produces a new set.
package expansion

import "fmt"

// Entry is one candidate expansion term with its relevance weight.
type Entry struct {
	Term   string  `json:"term"`
	Weight float64 `json:"weight"`
}

// store is the backing data shared by every handle and cursor derived from
// one expansion. Populated once by New, read-only afterwards.
type store struct {
	entries []Entry
	bound   int
}

func (s *store) size() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

func (s *store) entryAt(i int) Entry {
	return s.entries[i]
}

// ResultSet is a handle to one completed expansion result. The zero value
// is the empty set. Copying a ResultSet is O(1) and shares the backing
// entries; the entries are released once no handle or cursor references
// them anymore.
type ResultSet struct {
	s *store
}

// New builds a ResultSet from entries already ordered by descending rank
// (index 0 = strongest candidate) and a bound, the estimated number of
// terms a full untruncated expansion would have surfaced. The input slice
// is copied, so the caller may reuse it afterwards.
//
// A bound smaller than len(entries) is raised to len(entries): the bound
// is an estimate, the entry count is ground truth. Term contents and
// weight ranges are not inspected; ordering and well-formedness are the
// producer's responsibility.
func New(entries []Entry, bound int) ResultSet {
	if len(entries) == 0 && bound <= 0 {
		return ResultSet{}
	}
	s := &store{
		entries: append([]Entry(nil), entries...),
		bound:   bound,
	}
	if s.bound < len(s.entries) {
		s.bound = len(s.entries)
	}
	return ResultSet{s: s}
}

// Size returns the number of expansion terms held by the set.
func (rs ResultSet) Size() int {
	return rs.s.size()
}

// Empty reports whether the set holds no terms.
func (rs ResultSet) Empty() bool {
	return rs.Size() == 0
}

// Bound returns the estimate of how many terms satisfied the selection
// criteria overall. Bound() >= Size() always holds; the two differ when
// the producer truncated the expansion to a top-K list.
func (rs ResultSet) Bound() int {
	if rs.s == nil {
		return 0
	}
	return rs.s.bound
}

// Begin returns a cursor on the highest-ranked term. For an empty set it
// equals End().
func (rs ResultSet) Begin() Cursor {
	return Cursor{set: rs, fromEnd: rs.Size()}
}

// End returns the one-past-last cursor. It is never dereferenceable.
func (rs ResultSet) End() Cursor {
	return Cursor{set: rs}
}

// At returns a cursor on the term at index i, counting forward from the
// highest-ranked term. It panics unless 0 <= i < Size().
func (rs ResultSet) At(i int) Cursor {
	if i < 0 || i >= rs.Size() {
		panic(fmt.Sprintf("expansion: index %d out of range in set of %d", i, rs.Size()))
	}
	return Cursor{set: rs, fromEnd: rs.Size() - i}
}

// Back returns a cursor on the lowest-ranked term. It panics when the set
// is empty.
func (rs ResultSet) Back() Cursor {
	if rs.Size() == 0 {
		panic("expansion: Back on empty result set")
	}
	return Cursor{set: rs, fromEnd: 1}
}

// Swap exchanges the backing data of two handles without copying entries.
func (rs *ResultSet) Swap(other *ResultSet) {
	rs.s, other.s = other.s, rs.s
}

// String returns a short diagnostic summary of the set. The format is not
// stable and must not be parsed.
func (rs ResultSet) String() string {
	return fmt.Sprintf("ResultSet(terms=%d, bound=%d)", rs.Size(), rs.Bound())
}
