package session

import "testing"

func TestWhitelistEntryCoversLines(t *testing.T) {
	e := &WhitelistEntry{ReadAt: []ReadRange{{Start: 1, End: 10}, {Start: 20, End: 30}}}

	if !e.CoversLines(1, 10) {
		t.Fatalf("expected [1,10] covered")
	}
	if !e.CoversLines(5, 8) {
		t.Fatalf("expected [5,8] covered")
	}
	if e.CoversLines(5, 15) {
		t.Fatalf("expected [5,15] not covered (gap at 11-19)")
	}
	if e.CoversLines(25, 25) != true {
		t.Fatalf("expected [25,25] covered")
	}

	whole := &WhitelistEntry{WholeFile: true}
	if !whole.CoversLines(1, 1_000_000) {
		t.Fatalf("expected WholeFile entry to cover any range")
	}
}

func TestWhitelistEntryCoversOpenEndedRange(t *testing.T) {
	e := &WhitelistEntry{ReadAt: []ReadRange{{Start: 1, End: 0}}}
	if !e.CoversLines(1, 99999) {
		t.Fatalf("expected open-ended range (End=0) to cover any line past Start")
	}
}

func TestStateWhitelistAndInvalidate(t *testing.T) {
	s := NewState("t1")
	hash := HashContent([]byte("hello"))
	s.Whitelist("a.txt", hash, stampTime(), 5, ReadRange{Start: 1, End: 1}, false)

	entry, ok := s.WhitelistEntryFor("a.txt")
	if !ok {
		t.Fatalf("expected whitelist entry for a.txt")
	}
	if !entry.CoversLines(1, 1) {
		t.Fatalf("expected line 1 covered")
	}

	s.InvalidateWhitelist("a.txt")
	if _, ok := s.WhitelistEntryFor("a.txt"); ok {
		t.Fatalf("expected whitelist entry removed after invalidate")
	}
}

func TestStateReplaceWhitelistAfterWrite(t *testing.T) {
	s := NewState("t1")
	s.ReplaceWhitelistAfterWrite("b.txt", HashContent([]byte("x")), stampTime(), 1)
	entry, ok := s.WhitelistEntryFor("b.txt")
	if !ok || !entry.WholeFile {
		t.Fatalf("expected whole-file whitelist entry after write")
	}
}

func TestStateNextSeqMonotonic(t *testing.T) {
	s := NewState("t1")
	a := s.NextSeq()
	b := s.NextSeq()
	if b != a+1 {
		t.Fatalf("expected monotonic sequence, got %d then %d", a, b)
	}
}
