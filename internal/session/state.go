package session

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// ReadRange records one previously-served read of a file, by line range, so
// the edit engine can enforce "edit only what has been read" (the
// EditCoversUnreadLines invariant).
type ReadRange struct {
	Start int // 1-indexed, inclusive
	End   int // 1-indexed, inclusive; 0 means "end of file at read time"
}

// WhitelistEntry is one file the session has read (or written) and is
// therefore permitted to edit, gated on the content hash still matching.
type WhitelistEntry struct {
	Path      string
	Hash      string // sha256 of file contents at the time it was whitelisted
	ModTime   time.Time
	Size      int64
	ReadAt    []ReadRange
	WholeFile bool // true once any read covered the entire file
}

// CoversLines reports whether the union of ReadAt ranges covers [start,end].
func (w *WhitelistEntry) CoversLines(start, end int) bool {
	if w.WholeFile {
		return true
	}
	for line := start; line <= end; line++ {
		covered := false
		for _, r := range w.ReadAt {
			if line >= r.Start && (r.End == 0 || line <= r.End) {
				covered = true
				break
			}
		}
		if !covered {
			return false
		}
	}
	return true
}

// HashContent is the canonical whitelist content hash function.
func HashContent(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// State is one thread's live, in-memory session: mode policy, workspace,
// and the read whitelist that gates edits. It holds no shell engine; the
// dispatcher keeps those keyed by thread id. It is the C1
// component per the component dependency order (C1 is a leaf).
type State struct {
	mu sync.Mutex

	ThreadID  string
	Mode      ModePolicy
	Workspace string

	OperationSeq int64

	whitelist map[string]*WhitelistEntry

	// Initialized is false until Initialize has succeeded; every other
	// operation on an un-initialized session returns NotInitialized.
	Initialized bool

	// Poisoned is set once a ShellDied error has been observed; every
	// operation other than Initialize then refuses with NotInitialized
	// until the caller re-initializes the session.
	Poisoned bool
}

// NewState constructs an empty, un-initialized session for threadID.
func NewState(threadID string) *State {
	return &State{
		ThreadID:  threadID,
		whitelist: make(map[string]*WhitelistEntry),
	}
}

// NextSeq returns the next monotonic operation sequence number, used only to
// order audit-log rows; it carries no invariant weight.
func (s *State) NextSeq() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.OperationSeq++
	return s.OperationSeq
}

// Whitelist records or extends a file's read whitelist entry.
func (s *State) Whitelist(path, hash string, modTime time.Time, size int64, rng ReadRange, wholeFile bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.whitelist[path]
	if !ok || entry.Hash != hash {
		entry = &WhitelistEntry{Path: path, Hash: hash, ModTime: modTime, Size: size}
		s.whitelist[path] = entry
	}
	entry.ReadAt = append(entry.ReadAt, rng)
	if wholeFile {
		entry.WholeFile = true
	}
}

// WhitelistEntryFor returns the current whitelist entry for path, if any.
func (s *State) WhitelistEntryFor(path string) (*WhitelistEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.whitelist[path]
	return e, ok
}

// InvalidateWhitelist drops path's whitelist entry; the workspace watcher
// calls it on an fsnotify-observed change. Successful edits instead install a
// fresh entry via ReplaceWhitelistAfterWrite.
func (s *State) InvalidateWhitelist(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.whitelist, path)
}

// ReplaceWhitelistAfterWrite installs a fresh whitelist entry covering the
// whole file immediately after an edit or overwrite commits, so the file
// remains editable without a fresh read.
func (s *State) ReplaceWhitelistAfterWrite(path, hash string, modTime time.Time, size int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.whitelist[path] = &WhitelistEntry{
		Path: path, Hash: hash, ModTime: modTime, Size: size,
		ReadAt: []ReadRange{{Start: 1, End: 0}}, WholeFile: true,
	}
}
