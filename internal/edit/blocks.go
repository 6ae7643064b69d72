// Package edit implements the SEARCH/REPLACE block parser, the five-level
// match tolerance ladder, atomic file writes, optional syntax sanity
// checks, and the diff summary report for the edit engine.
package edit

import (
	"strings"

	"wcgw/internal/ops"
)

const (
	searchMarker  = "<<<<<<< SEARCH"
	dividerMarker = "======="
	replaceMarker = ">>>>>>> REPLACE"
)

// Block is one parsed SEARCH/REPLACE pair, in the order it appeared in the
// edit text.
type Block struct {
	Search  string
	Replace string
}

// ParseBlocks splits raw edit text into an ordered list of Blocks. A block
// whose divider or REPLACE marker is missing, or text with no block at all,
// is reported as InvalidBlockFormat; lines outside any block are skipped.
func ParseBlocks(raw string) ([]Block, *ops.Error) {
	lines := strings.Split(raw, "\n")

	var blocks []Block
	i := 0
	for i < len(lines) {
		if strings.TrimRight(lines[i], "\r") != searchMarker {
			i++
			continue
		}
		start := i
		i++
		var search []string
		for i < len(lines) && strings.TrimRight(lines[i], "\r") != dividerMarker {
			search = append(search, lines[i])
			i++
		}
		if i >= len(lines) {
			return nil, formatError(start)
		}
		i++ // skip divider
		var replace []string
		for i < len(lines) && strings.TrimRight(lines[i], "\r") != replaceMarker {
			replace = append(replace, lines[i])
			i++
		}
		if i >= len(lines) {
			return nil, formatError(start)
		}
		i++ // skip replace marker

		blocks = append(blocks, Block{
			Search:  strings.Join(search, "\n"),
			Replace: strings.Join(replace, "\n"),
		})
	}

	if len(blocks) == 0 {
		return nil, ops.New(ops.InvalidBlockFormat, ops.ComponentEdit, "no SEARCH/REPLACE blocks found")
	}
	return blocks, nil
}

func formatError(lineNo int) *ops.Error {
	return ops.New(ops.InvalidBlockFormat, ops.ComponentEdit,
		"malformed SEARCH/REPLACE block starting at line %d: missing %s or %s marker", lineNo+1, dividerMarker, replaceMarker).
		WithSuggestion("every block needs exactly %q, %q, and %q on their own lines", searchMarker, dividerMarker, replaceMarker)
}
