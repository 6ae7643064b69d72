package edit

import "testing"

func TestCheckSyntax_NewGoError(t *testing.T) {
	before := []byte("package main\nfunc f() {}\n")
	after := []byte("package main\nfunc f() {\n")
	warning, isNew := CheckSyntax("x.go", before, after)
	if !isNew || warning == "" {
		t.Fatalf("isNew = %v, warning = %q, want a new-error warning", isNew, warning)
	}
}

func TestCheckSyntax_PreexistingErrorIsNotNew(t *testing.T) {
	before := []byte("package main\nfunc f() {\n")
	after := []byte("package main\nfunc f() {\nfoo\n")
	_, isNew := CheckSyntax("x.go", before, after)
	if isNew {
		t.Error("isNew = true, want false: the file was already broken before this edit")
	}
}

func TestCheckSyntax_CleanGoFileNoWarning(t *testing.T) {
	before := []byte("package main\n")
	after := []byte("package main\nfunc f() {}\n")
	_, isNew := CheckSyntax("x.go", before, after)
	if isNew {
		t.Error("isNew = true, want false for syntactically valid after content")
	}
}

func TestCheckSyntax_UnwiredExtensionNeverWarns(t *testing.T) {
	_, isNew := CheckSyntax("x.py", []byte("def f():"), []byte("def f("))
	if isNew {
		t.Error("isNew = true, want false: .py has no wired checker")
	}
}
