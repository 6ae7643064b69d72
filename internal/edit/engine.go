package edit

import (
	"os"

	"wcgw/internal/ops"
	"wcgw/internal/session"
)

// Config bundles the EngineConfig knobs this package reads.
type Config struct {
	FuzzyThreshold float64 // 0 uses DefaultFuzzyThreshold
	CheckSyntax    bool
}

const DefaultFuzzyThreshold = 0.85

func (c Config) threshold() float64 {
	if c.FuzzyThreshold <= 0 {
		return DefaultFuzzyThreshold
	}
	return c.FuzzyThreshold
}

// Result is what FileWriteOrEdit reports back for one file.
type Result struct {
	Path          string
	Diff          DiffSummary
	SyntaxWarning string
	AppliedBlocks []AppliedBlock
}

// Engine applies SEARCH/REPLACE edits against a session's whitelist and
// commits them atomically.
type Engine struct {
	cfg Config
}

// NewEngine builds an Engine with the given config.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Edit parses rawBlocks, checks the pre-flight whitelist+hash invariants
// for path, applies the blocks in order, and atomically writes the result.
func (e *Engine) Edit(state *session.State, path, rawBlocks string) (Result, *ops.Error) {
	blocks, opErr := ParseBlocks(rawBlocks)
	if opErr != nil {
		return Result{}, opErr
	}

	before, entry, opErr := e.preflight(state, path)
	if opErr != nil {
		return Result{}, opErr
	}

	after, applied, opErr := ApplyBlocks(before, blocks, e.cfg.threshold())
	if opErr != nil {
		return Result{}, opErr
	}

	for _, a := range applied {
		if !entry.CoversLines(a.OrigStartLine, a.OrigEndLine) {
			return Result{}, ops.New(ops.EditCoversUnreadLines, ops.ComponentEdit,
				"%s lines %d-%d have not been read in this session", path, a.OrigStartLine, a.OrigEndLine).
				WithSuggestion("read_files %s:%d-%d before editing those lines", path, a.OrigStartLine, a.OrigEndLine)
		}
	}

	return e.commit(state, path, before, after, applied)
}

// Overwrite replaces path's entire contents, used by FileWriteOrEdit's
// whole-file-write form. It still runs the pre-flight check (a write to an
// existing whitelisted file must match the hash on record) but skips block
// matching entirely.
func (e *Engine) Overwrite(state *session.State, path, content string) (Result, *ops.Error) {
	before := ""
	if _, ok := state.WhitelistEntryFor(path); ok {
		var opErr *ops.Error
		before, _, opErr = e.preflight(state, path)
		if opErr != nil {
			return Result{}, opErr
		}
	} else if _, err := os.Stat(path); err == nil {
		return Result{}, ops.New(ops.EditCoversUnreadLines, ops.ComponentEdit,
			"%s exists but has not been read in this session", path).
			WithSuggestion("read the file first, or confirm you intend to create a new file at a fresh path")
	}

	return e.commit(state, path, before, content, nil)
}

// preflight enforces FileChangedOnDisk: the file must still match the hash
// recorded when it was whitelisted. It returns the entry alongside the
// content so callers can check per-block line coverage before writing.
func (e *Engine) preflight(state *session.State, path string) (string, *session.WhitelistEntry, *ops.Error) {
	entry, ok := state.WhitelistEntryFor(path)
	if !ok {
		return "", nil, ops.New(ops.EditCoversUnreadLines, ops.ComponentEdit,
			"%s has not been read in this session", path).
			WithSuggestion("call ReadFiles on %s before editing it", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, ops.New(ops.PathNotFound, ops.ComponentEdit, "read %s: %v", path, err)
	}

	hash := session.HashContent(data)
	if hash != entry.Hash {
		return "", nil, ops.New(ops.FileChangedOnDisk, ops.ComponentEdit,
			"%s has changed on disk since it was last read", path).
			WithSuggestion("re-read %s to refresh the whitelist before editing", path)
	}

	return string(data), entry, nil
}

// commit writes after to path atomically, runs the optional syntax check,
// refreshes the whitelist, and builds the diff report.
func (e *Engine) commit(state *session.State, path, before, after string, applied []AppliedBlock) (Result, *ops.Error) {
	if err := AtomicWrite(path, []byte(after), 0o644); err != nil {
		return Result{}, ops.New(ops.PathDenied, ops.ComponentEdit, "write %s: %v", path, err)
	}

	var warning string
	if e.cfg.CheckSyntax {
		if w, isNew := CheckSyntax(path, []byte(before), []byte(after)); isNew {
			warning = w
		}
	}

	info, err := os.Stat(path)
	if err == nil {
		state.ReplaceWhitelistAfterWrite(path, session.HashContent([]byte(after)), info.ModTime(), info.Size())
	}

	return Result{
		Path:          path,
		Diff:          Diff(before, after),
		SyntaxWarning: warning,
		AppliedBlocks: applied,
	}, nil
}
