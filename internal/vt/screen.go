// Package vt wraps the charmbracelet terminal emulator into the small,
// testable surface the shell engine needs: feed PTY bytes in, read back a
// plain-text tail of the screen plus scrollback, and track cursor position
// for prompt detection.
package vt

import (
	"regexp"
	"sync"

	uv "github.com/charmbracelet/ultraviolet"
	"github.com/charmbracelet/x/vt"
)

// DefaultScrollback matches the teacher's maxScrollbackLines: generous, not
// tuned — this is terminal history the caller actually wants back.
const DefaultScrollback = 50000

// Screen is a thread-safe VT100/xterm emulator wrapper. Callbacks fire
// inside Write, so mu is already held when they run.
type Screen struct {
	emu        *vt.Emulator
	scrollback []string
	sbHead     int
	sbLen      int

	// totalScrolled counts every line ever pushed into scrollback, never
	// reset and never capped by the ring buffer — it lets RenderSince find
	// the boundary between lines retained and lines already evicted.
	totalScrolled int

	mu           sync.Mutex
	altScreen    bool
	cursorHidden bool
	cols, rows   int
}

// NewScreen creates a Screen with the given dimensions and scrollback
// capacity. scrollback <= 0 uses DefaultScrollback.
func NewScreen(cols, rows, scrollback int) *Screen {
	if scrollback <= 0 {
		scrollback = DefaultScrollback
	}
	s := &Screen{
		emu:        vt.NewEmulator(cols, rows),
		scrollback: make([]string, scrollback),
		cols:       cols,
		rows:       rows,
	}
	s.emu.SetCallbacks(vt.Callbacks{
		ScrollOut: func(lines []uv.Line) {
			if s.altScreen {
				return
			}
			for _, line := range lines {
				rendered := stripANSI(line.Render())
				if s.sbLen == len(s.scrollback) {
					s.scrollback[s.sbHead] = ""
				}
				s.scrollback[s.sbHead] = rendered
				s.sbHead = (s.sbHead + 1) % len(s.scrollback)
				if s.sbLen < len(s.scrollback) {
					s.sbLen++
				}
				s.totalScrolled++
			}
		},
		ScrollbackClear: func() {
			for i := range s.scrollback {
				s.scrollback[i] = ""
			}
			s.sbLen = 0
			s.sbHead = 0
		},
		AltScreen: func(on bool) {
			s.altScreen = on
		},
		CursorVisibility: func(visible bool) {
			s.cursorHidden = !visible
		},
	})
	return s
}

// Write feeds PTY output to the emulator.
func (s *Screen) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.emu.Write(p)
}

// Resize changes the terminal dimensions.
func (s *Screen) Resize(cols, rows int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emu.Resize(cols, rows)
	s.cols = cols
	s.rows = rows
}

// Clear drops all scrollback and resets the emulator's visible grid, used
// when a session wants a clean screen without tearing down the PTY.
func (s *Screen) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.scrollback {
		s.scrollback[i] = ""
	}
	s.sbLen, s.sbHead = 0, 0
	s.emu.Resize(s.cols, s.rows)
}

// CursorPosition returns the emulator's current cursor row/col, 0-indexed.
func (s *Screen) CursorPosition() (row, col int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos := s.emu.CursorPosition()
	return pos.Y, pos.X
}

// AtLineStart reports whether the cursor sits in column 0, the necessary
// (not sufficient) condition prompt detection checks before testing the
// rendered line against the sentinel.
func (s *Screen) AtLineStart() bool {
	_, col := s.CursorPosition()
	return col == 0
}

// RenderTail returns up to maxLines of ANSI-stripped text: the tail of
// scrollback followed by the current visible grid, oldest first. maxLines
// <= 0 means "no limit".
func (s *Screen) RenderTail(maxLines int) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	scrollback := s.scrollbackLinesLocked()
	grid := stripANSI(s.emu.Render())
	gridLines := splitLines(grid)

	all := make([]string, 0, len(scrollback)+len(gridLines))
	all = append(all, scrollback...)
	all = append(all, gridLines...)

	if maxLines > 0 && len(all) > maxLines {
		all = all[len(all)-maxLines:]
	}
	return joinLines(all)
}

// Mark returns a token identifying the current render position. Pair it with
// RenderSince to isolate the output one command produces from everything the
// shell printed before it started.
func (s *Screen) Mark() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalScrolled
}

// RenderSince returns ANSI-stripped text produced after mark: scrollback
// lines scrolled out since mark, followed by the current visible grid. A
// mark older than the retained scrollback window is clamped to its start,
// the same truncation RenderTail applies when the caller asks for more
// history than is kept.
func (s *Screen) RenderSince(mark int) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	scrollback := s.scrollbackLinesLocked()
	newSince := s.totalScrolled - mark
	if newSince < 0 {
		newSince = 0
	}
	if newSince > len(scrollback) {
		newSince = len(scrollback)
	}
	relevant := scrollback[len(scrollback)-newSince:]

	grid := stripANSI(s.emu.Render())
	gridLines := splitLines(grid)

	all := make([]string, 0, len(relevant)+len(gridLines))
	all = append(all, relevant...)
	all = append(all, gridLines...)
	return joinLines(all)
}

// ScrollbackLen returns the number of scrollback lines currently stored.
func (s *Screen) ScrollbackLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sbLen
}

// Close releases the emulator's resources.
func (s *Screen) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.emu.Close()
}

// scrollbackLinesLocked returns all scrollback lines oldest-first. Must be
// called with mu held.
func (s *Screen) scrollbackLinesLocked() []string {
	if s.sbLen == 0 {
		return nil
	}
	lines := make([]string, s.sbLen)
	start := (s.sbHead - s.sbLen + len(s.scrollback)) % len(s.scrollback)
	for i := 0; i < s.sbLen; i++ {
		lines[i] = s.scrollback[(start+i)%len(s.scrollback)]
	}
	return lines
}

var ansiSeq = regexp.MustCompile(`\x1b(\[[0-9;?]*[a-zA-Z]|\][^\x07\x1b]*(\x07|\x1b\\)|[()][AB012])`)

// stripANSI removes CSI/OSC escape sequences so RenderTail returns plain
// text suitable for a prompt-sentinel substring search.
func stripANSI(s string) string {
	return ansiSeq.ReplaceAllString(s, "")
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			line := s[start:i]
			line = trimCR(line)
			lines = append(lines, line)
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, trimCR(s[start:]))
	}
	return lines
}

func trimCR(s string) string {
	if len(s) > 0 && s[len(s)-1] == '\r' {
		return s[:len(s)-1]
	}
	return s
}

func joinLines(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	total := 0
	for _, l := range lines {
		total += len(l) + 1
	}
	buf := make([]byte, 0, total)
	for i, l := range lines {
		if i > 0 {
			buf = append(buf, '\n')
		}
		buf = append(buf, l...)
	}
	return string(buf)
}
