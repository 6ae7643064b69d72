package edit

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// DiffSummary is the line-level added/removed/changed tally plus a
// human-readable unified-style report.
type DiffSummary struct {
	Added   int
	Removed int
	Changed int
	Report  string
}

// Diff computes a line-level diff report between before and after, using
// go-diff's line-mode diff so a single changed line counts as one changed
// line rather than one removed plus one added.
func Diff(before, after string) DiffSummary {
	a, b, lineArray := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)
	diffs = dmp.DiffCleanupSemantic(diffs)

	var summary DiffSummary
	var report strings.Builder

	i := 0
	for i < len(diffs) {
		d := diffs[i]
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			writeContextLines(&report, d.Text, ' ')
			i++

		case diffmatchpatch.DiffDelete:
			delLines := countLines(d.Text)
			var insText string
			insLines := 0
			if i+1 < len(diffs) && diffs[i+1].Type == diffmatchpatch.DiffInsert {
				insText = diffs[i+1].Text
				insLines = countLines(insText)
				i++
			}
			changed := minInt(delLines, insLines)
			summary.Changed += changed
			summary.Removed += delLines - changed
			summary.Added += insLines - changed
			writeContextLines(&report, d.Text, '-')
			writeContextLines(&report, insText, '+')
			i++

		case diffmatchpatch.DiffInsert:
			summary.Added += countLines(d.Text)
			writeContextLines(&report, d.Text, '+')
			i++
		}
	}

	summary.Report = report.String()
	return summary
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func countLines(text string) int {
	if text == "" {
		return 0
	}
	n := strings.Count(text, "\n")
	if !strings.HasSuffix(text, "\n") {
		n++
	}
	return n
}

func writeContextLines(b *strings.Builder, text string, prefix byte) {
	if text == "" {
		return
	}
	for _, line := range strings.Split(strings.TrimSuffix(text, "\n"), "\n") {
		fmt.Fprintf(b, "%c%s\n", prefix, line)
	}
}
