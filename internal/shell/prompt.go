package shell

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// newNonce mints an 8 hex-char per-session nonce, the way egg.NewServer
// mints its grpc auth token, so two nested shells can't be confused by a
// prompt sentinel that collides with one rendered by an inner shell.
func newNonce() (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("mint nonce: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// promptSentinel builds the PS1 string for cwd, embedding nonce so the
// rendered prompt line cannot plausibly appear in ordinary command output.
func promptSentinel(cwd, nonce string) string {
	return fmt.Sprintf("◉ %s[%s]──➤ ", cwd, nonce)
}

// exitTagPattern returns the tag prefix that wrapWithExitTag's printf emits
// ahead of $?, harvesting the exit status without a second round-trip: the
// tagged text is parsed out of the rendered tail and never shown to the caller.
func exitTagPattern(nonce string) string {
	return fmt.Sprintf("\x01WCGW-EC-%s:", nonce)
}

// wrapWithExitTag wraps a user command so its exit status is captured and
// surfaced as a parseable tagged line, bash/zsh only per the Open Questions
// resolution in SPEC_FULL.md.
func wrapWithExitTag(cmd, nonce string) string {
	return fmt.Sprintf("{ %s\n} ; printf '%s%%d\\x01' $?\n", cmd, exitTagPattern(nonce))
}

// extractExitCode finds the tagged exit-status line in rendered output,
// returning the cleaned output (tag stripped) and the parsed code. ok is
// false if no tag was found yet (command still running, or tag was
// truncated by the output cap).
func extractExitCode(output, nonce string) (cleaned string, code int, ok bool) {
	tag := exitTagPattern(nonce)
	idx := strings.Index(output, tag)
	if idx < 0 {
		return output, 0, false
	}
	rest := output[idx+len(tag):]
	end := strings.IndexByte(rest, '\x01')
	if end < 0 {
		return output, 0, false
	}
	codeStr := rest[:end]
	n, err := strconv.Atoi(codeStr)
	if err != nil {
		return output, 0, false
	}
	cleaned = output[:idx] + rest[end+1:]
	return cleaned, n, true
}

// lastLine splits s into everything before the final line and that line
// itself, trailing newline ignored.
func lastLine(s string) (rest, last string) {
	trimmed := strings.TrimRight(s, "\n")
	idx := strings.LastIndexByte(trimmed, '\n')
	if idx < 0 {
		return "", trimmed
	}
	return trimmed[:idx], trimmed[idx+1:]
}

// findPromptSentinel reports whether the rendered tail ends with the
// session's prompt sentinel, meaning the shell has returned to idle at
// column 0 and reprinted its prompt. The exit tag alone only proves the
// wrapper's trailing printf ran; the shell can still be mid-redraw of the
// next prompt line when that happens, so completion waits for this too.
func findPromptSentinel(tail, sentinel string) bool {
	_, last := lastLine(tail)
	return strings.Contains(last, sentinel)
}

// stripTrailingSentinel removes the shell's reprinted prompt line from the
// end of tail once findPromptSentinel has confirmed it's there, so callers
// never see the raw prompt sentinel in a command's output.
func stripTrailingSentinel(tail, sentinel string) string {
	rest, last := lastLine(tail)
	if !strings.Contains(last, sentinel) {
		return tail
	}
	return rest
}
