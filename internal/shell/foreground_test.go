package shell

import "testing"

func TestParsePSOutput(t *testing.T) {
	out := "  PID COMMAND\n" +
		"  123 bash\n" +
		"  456 sleep 10\n"
	procs := parsePSOutput(out)
	if len(procs) != 2 {
		t.Fatalf("expected 2 processes, got %d", len(procs))
	}
	if procs[0].PID != 123 || procs[0].Command != "bash" {
		t.Fatalf("unexpected first process: %+v", procs[0])
	}
	if procs[1].Command != "sleep 10" {
		t.Fatalf("unexpected second process command: %q", procs[1].Command)
	}
}

func TestParsePSOutputHeaderOnly(t *testing.T) {
	procs := parsePSOutput("  PID COMMAND\n")
	if procs != nil {
		t.Fatalf("expected nil for header-only output, got %#v", procs)
	}
}

func TestResolveSpecialKeyKnownAndUnknown(t *testing.T) {
	if seq, err := ResolveSpecialKey("Enter"); err != nil || seq != "\r" {
		t.Fatalf("expected Enter to resolve to CR, got %q err=%v", seq, err)
	}
	if _, err := ResolveSpecialKey("Not-A-Key"); err == nil {
		t.Fatalf("expected an error for an unknown key name")
	}
}

func TestAsciiToBytes(t *testing.T) {
	bs, err := AsciiToBytes([]int{104, 105})
	if err != nil {
		t.Fatalf("AsciiToBytes: %v", err)
	}
	if string(bs) != "hi" {
		t.Fatalf("expected %q, got %q", "hi", string(bs))
	}
	if _, err := AsciiToBytes([]int{256}); err == nil {
		t.Fatalf("expected error for out-of-range ascii code")
	}
}
