package edit

import (
	"encoding/json"
	"fmt"
	"go/parser"
	"go/token"
	"path/filepath"
)

// CheckSyntax runs an optional post-write sanity check for the languages
// the examples pack demonstrates parsers for. It never blocks the write — a
// non-empty warning is advisory only, and is only surfaced when the parse
// error is new: present in after but absent from before. An already-broken
// file being edited for something unrelated does not generate noise.
// Extensions with no wired checker report (_, false) — nothing new to warn
// about — rather than a fabricated warning.
func CheckSyntax(path string, before, after []byte) (warning string, isNew bool) {
	afterErr := parseError(path, after)
	if afterErr == nil {
		return "", false
	}
	beforeErr := parseError(path, before)
	if beforeErr != nil {
		return "", false // already broken before this edit; not a new error
	}
	return afterErr.Error(), true
}

// parseError runs the wired checker for path's extension, or nil if none is
// wired or the content parses cleanly.
func parseError(path string, content []byte) error {
	switch filepath.Ext(path) {
	case ".go":
		fset := token.NewFileSet()
		if _, err := parser.ParseFile(fset, path, content, parser.AllErrors); err != nil {
			return fmt.Errorf("go syntax: %w", err)
		}
		return nil
	case ".json":
		var v any
		if err := json.Unmarshal(content, &v); err != nil {
			return fmt.Errorf("json syntax: %w", err)
		}
		return nil
	default:
		return nil
	}
}
