package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// Checkpoint is the on-disk representation of a State, written by Snapshot
// and consumed by Restore. It omits the live shell/PTY handle entirely —
// only the bookkeeping needed to resume bash-state tracking survives a
// process restart.
type Checkpoint struct {
	ThreadID     string                      `json:"thread_id"`
	ModeKind     ModeKind                    `json:"mode_kind"`
	WriteGlobs   []string                    `json:"write_globs,omitempty"`
	CommandsAll  bool                        `json:"commands_all,omitempty"`
	Commands     []string                    `json:"commands,omitempty"`
	Workspace    string                      `json:"workspace"`
	OperationSeq int64                       `json:"operation_seq"`
	Whitelist    map[string]*WhitelistEntry  `json:"whitelist"`
	SavedAt      time.Time                   `json:"saved_at"`
}

// StateDir resolves the persistence root: $XDG_STATE_HOME/wcgw/bash_state
// falling back to ~/.wcgw/bash_state, per SPEC_FULL.md §6.
func StateDir() (string, error) {
	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		return filepath.Join(xdg, "wcgw", "bash_state"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve state dir: %w", err)
	}
	return filepath.Join(home, ".wcgw", "bash_state"), nil
}

func checkpointPath(threadID string) (string, error) {
	dir, err := StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, threadID+"_bash_state.json"), nil
}

// Snapshot writes s's checkpoint to disk, guarded by an advisory lock so two
// processes racing to own the same thread id fail fast instead of
// corrupting the file (§5 "Shared resource policy").
func (s *State) Snapshot() error {
	s.mu.Lock()
	cp := Checkpoint{
		ThreadID:     s.ThreadID,
		ModeKind:     s.Mode.Kind,
		WriteGlobs:   s.Mode.WriteGlobs,
		CommandsAll:  s.Mode.Commands.All,
		Commands:     s.Mode.Commands.Prefixes,
		Workspace:    s.Workspace,
		OperationSeq: s.OperationSeq,
		Whitelist:    s.whitelist,
	}
	s.mu.Unlock()

	path, err := checkpointPath(s.ThreadID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("lock checkpoint: %w", err)
	}
	if !locked {
		return fmt.Errorf("checkpoint %s is locked by another process", path)
	}
	defer lock.Unlock()

	cp.SavedAt = stampTime()

	tmp, err := os.CreateTemp(filepath.Dir(path), ".checkpoint-*")
	if err != nil {
		return fmt.Errorf("create temp checkpoint: %w", err)
	}
	defer os.Remove(tmp.Name())

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(cp); err != nil {
		tmp.Close()
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp checkpoint: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename checkpoint: %w", err)
	}
	return nil
}

// Restore loads threadID's checkpoint from disk, if one exists. It returns
// (nil, nil) when no checkpoint is present — callers treat that as "start
// fresh", not an error.
func Restore(threadID string) (*State, error) {
	path, err := checkpointPath(threadID)
	if err != nil {
		return nil, err
	}

	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock checkpoint: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("checkpoint %s is locked by another process", path)
	}
	defer lock.Unlock()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}

	mode, err := ParseMode(string(cp.ModeKind), cp.WriteGlobs, CommandScope{All: cp.CommandsAll, Prefixes: cp.Commands})
	if err != nil {
		return nil, fmt.Errorf("restore mode: %w", err)
	}

	s := NewState(cp.ThreadID)
	s.Mode = mode
	s.Workspace = cp.Workspace
	s.OperationSeq = cp.OperationSeq
	if cp.Whitelist != nil {
		s.whitelist = cp.Whitelist
	}
	s.Initialized = true
	return s, nil
}

// stampTime is the sole timestamp source in this package, isolated so tests
// can substitute a fixed clock without reaching into unrelated code.
var stampTime = time.Now
