package edit

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// ToleranceLevel names which rung of the matching ladder found a block.
type ToleranceLevel int

const (
	LevelExact ToleranceLevel = iota + 1
	LevelTrailingWhitespace
	LevelCollapsedWhitespace
	LevelReindented
	LevelFuzzy
)

func (l ToleranceLevel) String() string {
	switch l {
	case LevelExact:
		return "exact"
	case LevelTrailingWhitespace:
		return "trailing-whitespace-normalized"
	case LevelCollapsedWhitespace:
		return "collapsed-whitespace"
	case LevelReindented:
		return "indentation-shifted"
	case LevelFuzzy:
		return "fuzzy"
	default:
		return "unknown"
	}
}

// Match is the location and confidence of a found SEARCH block.
type Match struct {
	StartLine int // 0-indexed, inclusive
	EndLine   int // 0-indexed, exclusive
	Level     ToleranceLevel
	Score     float64 // 1.0 for exact, similarity ratio for fuzzy
}

var dmp = diffmatchpatch.New()

// FindMatch locates search within the lines of content, walking the
// tolerance ladder from exact to fuzzy and stopping at the first rung that
// succeeds. minLine restricts the search to lines >= minLine, enforcing the
// ordering invariant (later blocks must match after earlier ones).
func FindMatch(contentLines []string, search string, minLine int, fuzzyThreshold float64) (Match, bool) {
	searchLines := strings.Split(search, "\n")
	n := len(searchLines)
	if n == 0 || len(contentLines) == 0 {
		return Match{}, false
	}

	exactNeedle := searchLines
	if m, ok := slideWindow(contentLines, exactNeedle, minLine, linesEqual); ok {
		return Match{StartLine: m, EndLine: m + n, Level: LevelExact, Score: 1.0}, true
	}

	trimmedNeedle := mapLines(searchLines, func(s string) string { return strings.TrimRight(s, " \t\r") })
	if m, ok := slideWindow(contentLines, trimmedNeedle, minLine, func(a, b []string) bool {
		return linesEqual(mapLines(a, func(s string) string { return strings.TrimRight(s, " \t\r") }), b)
	}); ok {
		return Match{StartLine: m, EndLine: m + n, Level: LevelTrailingWhitespace, Score: 1.0}, true
	}

	collapsedNeedle := mapLines(searchLines, collapseWhitespace)
	if m, ok := slideWindow(contentLines, collapsedNeedle, minLine, func(a, b []string) bool {
		return linesEqual(mapLines(a, collapseWhitespace), b)
	}); ok {
		return Match{StartLine: m, EndLine: m + n, Level: LevelCollapsedWhitespace, Score: 1.0}, true
	}

	reindentedNeedle := mapLines(searchLines, strings.TrimSpace)
	if m, ok := slideWindow(contentLines, reindentedNeedle, minLine, func(a, b []string) bool {
		return linesEqual(mapLines(a, strings.TrimSpace), b)
	}); ok {
		return Match{StartLine: m, EndLine: m + n, Level: LevelReindented, Score: 1.0}, true
	}

	if m, score, ok := bestFuzzyWindow(contentLines, searchLines, minLine, fuzzyThreshold); ok {
		return Match{StartLine: m, EndLine: m + n, Level: LevelFuzzy, Score: score}, true
	}

	return Match{}, false
}

func mapLines(in []string, f func(string) string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = f(s)
	}
	return out
}

func linesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// collapseWhitespace trims trailing whitespace and replaces every remaining
// run of ASCII whitespace with a single space. Leading indentation collapses
// to one space rather than vanishing, so a block whose indentation differs
// from the file's falls through to the reindent level.
func collapseWhitespace(s string) string {
	s = strings.TrimRight(s, " \t\r\v\f")
	var b strings.Builder
	inSpace := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == ' ' || c == '\t' || c == '\r' || c == '\v' || c == '\f' {
			if !inSpace {
				b.WriteByte(' ')
			}
			inSpace = true
			continue
		}
		inSpace = false
		b.WriteByte(c)
	}
	return b.String()
}

// slideWindow tries every window of len(needle) lines starting at >= minLine
// and returns the first (lowest) starting index where eq reports a match.
func slideWindow(content, needle []string, minLine int, eq func(window, needle []string) bool) (int, bool) {
	n := len(needle)
	if n == 0 || n > len(content) {
		return 0, false
	}
	start := minLine
	if start < 0 {
		start = 0
	}
	for i := start; i+n <= len(content); i++ {
		if eq(content[i:i+n], needle) {
			return i, true
		}
	}
	return 0, false
}

// bestFuzzyWindow scores every candidate window by line-level Levenshtein
// similarity via go-diff and returns the best-scoring window at or above
// threshold.
func bestFuzzyWindow(content, needle []string, minLine int, threshold float64) (int, float64, bool) {
	n := len(needle)
	if n == 0 || n > len(content) {
		return 0, 0, false
	}
	start := minLine
	if start < 0 {
		start = 0
	}

	needleText := strings.Join(needle, "\n")
	bestIdx, bestScore := -1, 0.0
	for i := start; i+n <= len(content); i++ {
		windowText := strings.Join(content[i:i+n], "\n")
		score := similarity(windowText, needleText)
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	if bestIdx < 0 || bestScore < threshold {
		return 0, bestScore, false
	}
	return bestIdx, bestScore, true
}

// similarity computes 1 - (Levenshtein(a,b) / max(len(a),len(b))) using
// go-diff's DiffMain + DiffLevenshtein, the metric SPEC_FULL.md fixes for
// the fuzzy tolerance level.
func similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 1.0
	}
	diffs := dmp.DiffMain(a, b, false)
	dist := dmp.DiffLevenshtein(diffs)
	return 1.0 - float64(dist)/float64(maxLen)
}
