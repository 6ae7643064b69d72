package edit

import "testing"

func TestParseBlocks_Single(t *testing.T) {
	raw := "<<<<<<< SEARCH\nfoo\n=======\nbar\n>>>>>>> REPLACE\n"
	blocks, opErr := ParseBlocks(raw)
	if opErr != nil {
		t.Fatalf("ParseBlocks: %v", opErr)
	}
	if len(blocks) != 1 {
		t.Fatalf("len(blocks) = %d, want 1", len(blocks))
	}
	if blocks[0].Search != "foo" || blocks[0].Replace != "bar" {
		t.Errorf("block = %+v", blocks[0])
	}
}

func TestParseBlocks_Multiple(t *testing.T) {
	raw := "<<<<<<< SEARCH\na\n=======\nb\n>>>>>>> REPLACE\n" +
		"<<<<<<< SEARCH\nc\n=======\nd\n>>>>>>> REPLACE\n"
	blocks, opErr := ParseBlocks(raw)
	if opErr != nil {
		t.Fatalf("ParseBlocks: %v", opErr)
	}
	if len(blocks) != 2 {
		t.Fatalf("len(blocks) = %d, want 2", len(blocks))
	}
}

func TestParseBlocks_MissingDivider(t *testing.T) {
	raw := "<<<<<<< SEARCH\nfoo\n>>>>>>> REPLACE\n"
	_, opErr := ParseBlocks(raw)
	if opErr == nil {
		t.Fatal("expected InvalidBlockFormat, got nil")
	}
}

func TestParseBlocks_NoBlocks(t *testing.T) {
	_, opErr := ParseBlocks("just some text, no markers")
	if opErr == nil {
		t.Fatal("expected InvalidBlockFormat, got nil")
	}
}

func TestParseBlocks_MultilineFragments(t *testing.T) {
	raw := "<<<<<<< SEARCH\nline1\nline2\n=======\nreplacement1\nreplacement2\nreplacement3\n>>>>>>> REPLACE\n"
	blocks, opErr := ParseBlocks(raw)
	if opErr != nil {
		t.Fatalf("ParseBlocks: %v", opErr)
	}
	if blocks[0].Search != "line1\nline2" {
		t.Errorf("Search = %q", blocks[0].Search)
	}
	if blocks[0].Replace != "replacement1\nreplacement2\nreplacement3" {
		t.Errorf("Replace = %q", blocks[0].Replace)
	}
}
