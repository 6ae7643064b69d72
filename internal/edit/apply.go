package edit

import (
	"strings"

	"wcgw/internal/ops"
)

// AppliedBlock records where and how confidently each Block was matched,
// for the diff report. OrigStartLine/OrigEndLine are the match's line span
// translated back into the pre-edit file's coordinates (1-based, inclusive),
// used to check whitelist coverage before any write commits.
type AppliedBlock struct {
	Block
	Match         Match
	OrigStartLine int
	OrigEndLine   int
}

// ApplyBlocks applies blocks to content in order, enforcing the ordering
// invariant: each block must match at or after the line where the previous
// block's match ended, so a SEARCH text that appears earlier in the file
// than where a prior block already edited can never be selected by
// mistake.
func ApplyBlocks(content string, blocks []Block, fuzzyThreshold float64) (string, []AppliedBlock, *ops.Error) {
	lines := strings.Split(content, "\n")
	applied := make([]AppliedBlock, 0, len(blocks))
	cursor := 0
	offset := 0 // lines inserted minus removed by prior blocks, to map back to original coordinates

	for idx, b := range blocks {
		m, ok := FindMatch(lines, b.Search, cursor, fuzzyThreshold)
		if !ok {
			return "", nil, ops.New(ops.SearchBlockUnmatched, ops.ComponentEdit,
				"block %d's SEARCH text was not found at or after line %d", idx+1, cursor+1).
				WithSuggestion("re-read the file and issue a fresh SEARCH block; edits apply strictly in order")
		}

		replaceLines := strings.Split(b.Replace, "\n")
		if m.Level == LevelReindented {
			replaceLines = reindentReplace(replaceLines, strings.Split(b.Search, "\n")[0], lines[m.StartLine])
		}

		newLines := make([]string, 0, len(lines)-(m.EndLine-m.StartLine)+len(replaceLines))
		newLines = append(newLines, lines[:m.StartLine]...)
		newLines = append(newLines, replaceLines...)
		newLines = append(newLines, lines[m.EndLine:]...)

		applied = append(applied, AppliedBlock{
			Block:         b,
			Match:         m,
			OrigStartLine: m.StartLine - offset + 1,
			OrigEndLine:   m.EndLine - offset,
		})

		offset += len(replaceLines) - (m.EndLine - m.StartLine)
		cursor = m.StartLine + len(replaceLines)
		lines = newLines
	}

	return strings.Join(lines, "\n"), applied, nil
}

// leadingWhitespace returns the run of spaces/tabs at the start of s.
func leadingWhitespace(s string) string {
	i := 0
	for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
		i++
	}
	return s[:i]
}

// reindentReplace shifts every replacement line by the difference between
// the file's indentation at the match site and the SEARCH block's own
// indentation, the tolerance-level-4 behavior SPEC_FULL.md requires: a
// uniform indentation prefix difference doesn't block the match, and the
// replacement is re-indented to fit where it landed.
func reindentReplace(replaceLines []string, searchFirstLine, matchedFirstLine string) []string {
	searchIndent := leadingWhitespace(searchFirstLine)
	matchIndent := leadingWhitespace(matchedFirstLine)
	if searchIndent == matchIndent {
		return replaceLines
	}
	out := make([]string, len(replaceLines))
	for i, line := range replaceLines {
		trimmed := strings.TrimPrefix(line, searchIndent)
		out[i] = matchIndent + trimmed
	}
	return out
}
