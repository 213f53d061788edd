package expansion

import "testing"

func threeTermSet() ResultSet {
	return New([]Entry{
		{Term: "feline", Weight: 3.2},
		{Term: "kitten", Weight: 2.0},
		{Term: "tabby", Weight: 0.7},
	}, 9)
}

func TestBeginEndEquality(t *testing.T) {
	var empty ResultSet
	if !empty.Begin().Equal(empty.End()) {
		t.Error("empty set: Begin() != End()")
	}

	rs := threeTermSet()
	if rs.Begin().Equal(rs.End()) {
		t.Error("non-empty set: Begin() == End()")
	}
}

func TestAtMatchesAdvancedBegin(t *testing.T) {
	rs := threeTermSet()

	for i := 0; i < rs.Size(); i++ {
		walked := rs.Begin()
		for n := 0; n < i; n++ {
			walked.Next()
		}

		direct := rs.At(i)
		if !direct.Equal(walked) {
			t.Errorf("At(%d) position differs from Begin() advanced %d times", i, i)
		}
		if direct.Term() != walked.Term() || direct.Weight() != walked.Weight() {
			t.Errorf("At(%d) reads %q/%v, walked cursor reads %q/%v",
				i, direct.Term(), direct.Weight(), walked.Term(), walked.Weight())
		}
	}
}

func TestBackEqualsEndRetreated(t *testing.T) {
	rs := threeTermSet()

	retreated := rs.End()
	retreated.Prev()

	if !rs.Back().Equal(retreated) {
		t.Error("Back() != End() retreated once")
	}
	if got, want := retreated.Term(), "tabby"; got != want {
		t.Errorf("retreated End().Term() = %q, want %q", got, want)
	}
}

func TestNextPrevRoundTrip(t *testing.T) {
	rs := threeTermSet()

	// From every entry position, Next followed by Prev restores the
	// position and the entry underneath it.
	for i := 0; i < rs.Size(); i++ {
		c := rs.At(i)
		before := c.Entry()

		c.Next()
		c.Prev()

		if !c.Equal(rs.At(i)) {
			t.Errorf("position %d: Next/Prev round trip moved the cursor", i)
		}
		if c.Entry() != before {
			t.Errorf("position %d: entry changed across round trip", i)
		}
	}
}

func TestForwardTraversal(t *testing.T) {
	rs := threeTermSet()
	want := []string{"feline", "kitten", "tabby"}

	var got []string
	for c := rs.Begin(); !c.Equal(rs.End()); c.Next() {
		got = append(got, c.Term())
	}

	if len(got) != len(want) {
		t.Fatalf("traversal visited %d terms, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestBackwardTraversal(t *testing.T) {
	rs := threeTermSet()
	want := []string{"tabby", "kitten", "feline"}

	var got []string
	c := rs.End()
	for !c.Equal(rs.Begin()) {
		c.Prev()
		got = append(got, c.Term())
	}

	if len(got) != len(want) {
		t.Fatalf("traversal visited %d terms, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestCursorCopiesAreIndependent(t *testing.T) {
	rs := threeTermSet()

	orig := rs.Begin()
	copied := orig
	copied.Next()

	if got := orig.Term(); got != "feline" {
		t.Errorf("original cursor moved: Term() = %q, want %q", got, "feline")
	}
	if got := copied.Term(); got != "kitten" {
		t.Errorf("copied cursor Term() = %q, want %q", got, "kitten")
	}
}

func TestDereferencePanics(t *testing.T) {
	rs := threeTermSet()
	end := rs.End()
	var unpositioned Cursor

	mustPanic(t, "End().Term()", func() { end.Term() })
	mustPanic(t, "End().Weight()", func() { end.Weight() })
	mustPanic(t, "End().Entry()", func() { end.Entry() })
	mustPanic(t, "zero cursor Term()", func() { unpositioned.Term() })
	mustPanic(t, "zero cursor Weight()", func() { unpositioned.Weight() })
}

func TestMovePanics(t *testing.T) {
	rs := threeTermSet()

	end := rs.End()
	mustPanic(t, "Next() at End()", func() { end.Next() })

	begin := rs.Begin()
	mustPanic(t, "Prev() at Begin()", func() { begin.Prev() })

	var unpositioned Cursor
	mustPanic(t, "Next() on zero cursor", func() { unpositioned.Next() })
	mustPanic(t, "Prev() on zero cursor", func() { unpositioned.Prev() })

	var empty ResultSet
	emptyEnd := empty.End()
	mustPanic(t, "Prev() on empty set", func() { emptyEnd.Prev() })
}

func TestEqualComparesPositionOnly(t *testing.T) {
	a := threeTermSet()
	b := New([]Entry{{Term: "canine", Weight: 1.5}, {Term: "hound", Weight: 0.4}, {Term: "mutt", Weight: 0.1}}, 3)

	// Same distance from the end, different sets: equal by contract.
	if !a.Begin().Equal(b.Begin()) {
		t.Error("Begin() cursors of equal-sized sets compare unequal")
	}
	if !a.End().Equal(b.End()) {
		t.Error("End() cursors compare unequal")
	}
	if !a.Back().Equal(b.Back()) {
		t.Error("Back() cursors of equal-sized sets compare unequal")
	}

	// The zero cursor sits at the end position.
	var unpositioned Cursor
	if !unpositioned.Equal(a.End()) {
		t.Error("zero cursor != End()")
	}
}

func TestConcurrentReads(t *testing.T) {
	rs := threeTermSet()

	done := make(chan struct{})
	for g := 0; g < 8; g++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for n := 0; n < 1000; n++ {
				local := rs
				var terms int
				for c := local.Begin(); !c.Equal(local.End()); c.Next() {
					_ = c.Term()
					_ = c.Weight()
					terms++
				}
				if terms != 3 {
					t.Errorf("traversal saw %d terms, want 3", terms)
					return
				}
			}
		}()
	}
	for g := 0; g < 8; g++ {
		<-done
	}
}
