package expansion

// Cursor is a position within a ResultSet, movable in both directions and
// cheap to copy. Each cursor carries its own handle to the set, so the
// backing entries stay alive while any cursor derived from them exists.
// The zero value is an unpositioned sentinel: it compares equal to End()
// and cannot be dereferenced or advanced.
//
// The position is stored as the distance back from the one-past-last
// position rather than as a forward index. That keeps End() at the
// constant offset zero regardless of the set it came from or when it was
// obtained, and makes stepping backward off End() onto the last entry
// plain arithmetic instead of a special case.
type Cursor struct {
	set     ResultSet
	fromEnd int
}

// onEntry reports whether the cursor is positioned on an entry, as
// opposed to End() or the unpositioned zero value.
func (c Cursor) onEntry() bool {
	return c.fromEnd > 0 && c.fromEnd <= c.set.Size()
}

// index converts the backward offset to a forward entry index.
func (c Cursor) index() int {
	return c.set.Size() - c.fromEnd
}

// Term returns the candidate term under the cursor. It panics when the
// cursor is at End() or unpositioned.
func (c Cursor) Term() string {
	if !c.onEntry() {
		panic("expansion: dereference of cursor not on an entry")
	}
	return c.set.s.entryAt(c.index()).Term
}

// Weight returns the relevance weight under the cursor, with the same
// validity requirement as Term.
func (c Cursor) Weight() float64 {
	if !c.onEntry() {
		panic("expansion: dereference of cursor not on an entry")
	}
	return c.set.s.entryAt(c.index()).Weight
}

// Entry returns the (term, weight) pair under the cursor, with the same
// validity requirement as Term.
func (c Cursor) Entry() Entry {
	if !c.onEntry() {
		panic("expansion: dereference of cursor not on an entry")
	}
	return c.set.s.entryAt(c.index())
}

// Next moves the cursor one position toward End(). Advancing a cursor
// already at End() panics; positions are never clamped.
func (c *Cursor) Next() {
	if c.fromEnd == 0 {
		panic("expansion: cursor advanced past end")
	}
	c.fromEnd--
}

// Prev moves the cursor one position toward Begin(). Stepping backward
// off End() onto the last entry is valid; retreating a cursor already at
// Begin(), or any cursor of an empty set, panics.
func (c *Cursor) Prev() {
	if c.fromEnd >= c.set.Size() {
		panic("expansion: cursor retreated before first entry")
	}
	c.fromEnd++
}

// Equal reports whether two cursors sit at the same position. Positions
// are compared by distance from End() alone: cursors derived from
// different sets compare equal whenever those distances match.
func (c Cursor) Equal(other Cursor) bool {
	return c.fromEnd == other.fromEnd
}
