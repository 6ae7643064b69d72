package ops

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"wcgw/internal/audit"
	"wcgw/internal/config"
	"wcgw/internal/edit"
	"wcgw/internal/fileio"
	"wcgw/internal/session"
	"wcgw/internal/shell"
)

// Dispatcher wires Session State (C1), the Shell Engine (C3), and the
// File I/O / Edit stack (C4/C5) behind the six operations named in
// SPEC_FULL.md §6. Operation dispatch is serialized per thread id by the
// caller (the wire-framing loop in cmd/wcgwd reads one request at a time);
// the Dispatcher itself only needs to protect the shell-engine registry,
// which outlives any single operation call.
type Dispatcher struct {
	log *slog.Logger
	cfg config.EngineConfig

	sessions *session.Manager
	reader   *fileio.Reader
	editor   *edit.Engine

	// audit is nil-safe: every method below no-ops when it is nil, per
	// SPEC_FULL.md §10 ("every invariant holds with the audit log entirely
	// absent").
	audit *audit.Store

	shellMu sync.Mutex
	shells  map[string]*shell.Engine

	watchMu  sync.Mutex
	watchers map[string]*session.Watcher
}

// New builds a Dispatcher. auditStore may be nil to disable the operation
// history log entirely.
func New(log *slog.Logger, cfg config.EngineConfig, auditStore *audit.Store) *Dispatcher {
	return &Dispatcher{
		log:      log,
		cfg:      cfg,
		sessions: session.NewManager(),
		reader:   fileio.NewReader(fileio.Config{MmapThreshold: cfg.MmapThresholdBytes, MaxFileSize: cfg.MaxFileSizeBytes, CacheCapacity: cfg.CacheCapacity}),
		editor:   edit.NewEngine(edit.Config{FuzzyThreshold: cfg.FuzzyThreshold, CheckSyntax: cfg.CheckSyntax}),
		audit:    auditStore,
		shells:   make(map[string]*shell.Engine),
		watchers: make(map[string]*session.Watcher),
	}
}

func (d *Dispatcher) shellConfig() shell.Config {
	return shell.Config{
		Cols: d.cfg.Cols, Rows: d.cfg.Rows, Scrollback: d.cfg.Scrollback,
		OutputCap: d.cfg.OutputCapBytes, PendingAfter: d.cfg.PendingAfter,
		SoftCancelWait: d.cfg.SoftCancelWait, HardCancelWait: d.cfg.HardCancelWait,
	}
}

func (d *Dispatcher) record(threadID, op, summary string, seq int64, outcome error) {
	if d.audit == nil {
		return
	}
	status := "ok"
	if outcome != nil {
		status = outcome.Error()
	}
	if err := d.audit.AppendOperation(threadID, op, summary, status, seq); err != nil {
		d.log.Warn("audit append failed", "op", op, "err", err)
	}
}

// requireSession resolves a live, non-poisoned session for threadID.
func (d *Dispatcher) requireSession(threadID string) (*session.State, *Error) {
	st, ok := d.sessions.Get(threadID)
	if !ok || !st.Initialized {
		return nil, New(NotInitialized, ComponentSession, "no session for thread %q", threadID).
			WithSuggestion("call Initialize first")
	}
	if st.Poisoned {
		return nil, New(NotInitialized, ComponentSession, "shell for thread %q has died", threadID).
			WithSuggestion("call Initialize to start a new shell")
	}
	return st, nil
}

// ---- Initialize ----------------------------------------------------------

// InitializeRequest is §6's Initialize payload.
type InitializeRequest struct {
	Type             string   `json:"type"`
	ThreadID         string   `json:"thread_id,omitempty"`
	WorkspacePath    string   `json:"workspace_path,omitempty"`
	CreateIfMissing  bool     `json:"create_if_missing,omitempty"`
	Mode             string   `json:"mode"`
	WriteGlobs       []string `json:"write_globs,omitempty"`
	CommandsAll      bool     `json:"commands_all,omitempty"`
	CommandPrefixes  []string `json:"command_prefixes,omitempty"`
	InitialFiles     []string `json:"initial_files,omitempty"`
	Resume           bool     `json:"resume,omitempty"`
}

// InitializeResponse is §6's Initialize result.
type InitializeResponse struct {
	ResolvedDir     string             `json:"resolved_dir"`
	ModeSummary     string             `json:"mode_summary"`
	RepoTree        string             `json:"repo_tree"`
	InitialContents []fileio.FileResult `json:"initial_contents"`
	ResumeNote      string             `json:"resume_note,omitempty"`
	ThreadID        string             `json:"thread_id"`
}

// Initialize implements §4.1's initialize operation.
func (d *Dispatcher) Initialize(req InitializeRequest) (InitializeResponse, *Error) {
	threadID := req.ThreadID
	if threadID == "" {
		threadID = uuid.NewString()
	}

	dir, err := resolveWorkspace(req.WorkspacePath, req.CreateIfMissing)
	if err != nil {
		return InitializeResponse{}, New(PathNotFound, ComponentSession, "%v", err)
	}

	mode, err := session.ParseMode(req.Mode, req.WriteGlobs, session.CommandScope{All: req.CommandsAll, Prefixes: req.CommandPrefixes})
	if err != nil {
		return InitializeResponse{}, New(ModeDenied, ComponentSession, "%v", err)
	}

	existedBefore := false
	if req.Resume {
		if cp, _ := session.Restore(threadID); cp != nil {
			existedBefore = true
		}
	}

	st, err := d.sessions.Initialize(threadID, dir, mode, req.Resume)
	if err != nil {
		return InitializeResponse{}, New(NotInitialized, ComponentSession, "%v", err)
	}
	// A fresh (non-resumed) Initialize call always uses the requested mode
	// and workspace even if a checkpoint existed but resume wasn't set.
	if !req.Resume {
		st.Mode = mode
		st.Workspace = dir
	}

	var resumeNote string
	if req.Resume && existedBefore {
		resumeNote = fmt.Sprintf("resumed session %s: whitelist restored", threadID)
	} else if req.Resume {
		resumeNote = "resume requested but no prior checkpoint was found; starting fresh"
	}

	var initial []fileio.FileResult
	if len(req.InitialFiles) > 0 {
		results, errs := d.reader.ReadFiles(st, req.InitialFiles)
		initial = results
		for _, e := range errs {
			d.log.Warn("initial file read failed", "err", e)
		}
	}

	if err := st.Snapshot(); err != nil {
		d.log.Warn("checkpoint snapshot failed", "thread_id", threadID, "err", err)
	}

	d.startWatch(threadID, dir, st)

	d.record(threadID, "Initialize", fmt.Sprintf("mode=%s dir=%s", req.Mode, dir), st.NextSeq(), nil)

	return InitializeResponse{
		ResolvedDir:     dir,
		ModeSummary:     mode.Summary(),
		RepoTree:        buildRepoTree(dir, d.cfg.RepoTreeCap),
		InitialContents: initial,
		ResumeNote:      resumeNote,
		ThreadID:        threadID,
	}, nil
}

// startWatch (re)installs threadID's fsnotify watch, replacing any watch
// left over from a prior Initialize call on the same thread id.
func (d *Dispatcher) startWatch(threadID, dir string, st *session.State) {
	d.watchMu.Lock()
	defer d.watchMu.Unlock()
	if old, ok := d.watchers[threadID]; ok {
		old.Close()
	}
	d.watchers[threadID] = session.WatchWorkspace(d.log, dir, st)
}

func resolveWorkspace(path string, createIfMissing bool) (string, error) {
	if path == "" {
		return os.Getwd()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve workspace path: %w", err)
	}
	info, err := os.Stat(abs)
	if os.IsNotExist(err) {
		if !createIfMissing {
			return "", fmt.Errorf("workspace %s does not exist", abs)
		}
		if err := os.MkdirAll(abs, 0o755); err != nil {
			return "", fmt.Errorf("create workspace %s: %w", abs, err)
		}
		return abs, nil
	}
	if err != nil {
		return "", fmt.Errorf("stat workspace %s: %w", abs, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("workspace %s is not a directory", abs)
	}
	return abs, nil
}

// buildRepoTree renders a shallow, depth-bounded directory listing capped at
// maxChars. This is explicitly the trivial "repository-tree summarization"
// helper spec.md §1 excludes from the core subject — just enough glue for
// Initialize's response contract, not a principal component.
func buildRepoTree(root string, maxChars int) string {
	if maxChars <= 0 {
		maxChars = 4000
	}
	const maxDepth = 3
	var b strings.Builder
	var walk func(dir string, depth int, prefix string)
	walk = func(dir string, depth int, prefix string) {
		if depth > maxDepth || b.Len() >= maxChars {
			return
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			return
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
		for _, e := range entries {
			if strings.HasPrefix(e.Name(), ".") {
				continue
			}
			if b.Len() >= maxChars {
				b.WriteString(prefix + "... [truncated]\n")
				return
			}
			fmt.Fprintf(&b, "%s%s\n", prefix, e.Name())
			if e.IsDir() {
				walk(filepath.Join(dir, e.Name()), depth+1, prefix+"  ")
			}
		}
	}
	walk(root, 0, "")
	out := b.String()
	if len(out) > maxChars {
		out = out[:maxChars] + "\n... [truncated]\n"
	}
	return out
}

// ---- BashCommand ----------------------------------------------------------

// BashActionKind tags the ShellCommand action variant (§3).
type BashActionKind string

const (
	ActionCommand       BashActionKind = "command"
	ActionStatusCheck   BashActionKind = "status_check"
	ActionSendText      BashActionKind = "send_text"
	ActionSendSpecials  BashActionKind = "send_specials"
	ActionSendAscii     BashActionKind = "send_ascii"
)

// BashCommandRequest is §6's BashCommand payload.
type BashCommandRequest struct {
	ThreadID      string         `json:"thread_id"`
	Action        BashActionKind `json:"action"`
	CommandText   string         `json:"command_text,omitempty"`
	Text          string         `json:"text,omitempty"`
	SpecialKeys   []string       `json:"special_keys,omitempty"`
	AsciiCodes    []int          `json:"ascii_codes,omitempty"`
	WaitForSeconds float64       `json:"wait_for_seconds,omitempty"`
}

// BashCommandResponse is §6's BashCommand result.
type BashCommandResponse struct {
	Status              string                    `json:"status"`
	Output              string                    `json:"output"`
	ExitCode            *int                      `json:"exit_code,omitempty"`
	ForegroundProcesses []shell.ForegroundProcess `json:"foreground_processes,omitempty"`
	Prompt              string                    `json:"prompt"`
	Cwd                 string                    `json:"cwd"`
}

// BashCommand implements §4.3's operation surface.
func (d *Dispatcher) BashCommand(req BashCommandRequest) (BashCommandResponse, *Error) {
	st, opErr := d.requireSession(req.ThreadID)
	if opErr != nil {
		return BashCommandResponse{}, opErr
	}

	if req.Action == ActionCommand {
		if err := st.Mode.CheckCommand(req.CommandText); err != nil {
			return BashCommandResponse{}, New(ModeDenied, ComponentSession, "%v", err)
		}
	}

	engine, opErr := d.shellFor(st)
	if opErr != nil {
		return BashCommandResponse{}, opErr
	}

	wait := waitDuration(req.WaitForSeconds)

	var res shell.Result
	var shErr *Error
	switch req.Action {
	case ActionCommand:
		res, shErr = engine.Command(req.CommandText, wait...)
	case ActionStatusCheck:
		res, shErr = engine.StatusCheck(wait...)
	case ActionSendText:
		if err := engine.SendText(req.Text); err != nil {
			shErr = New(ShellDied, ComponentShell, "send text: %v", err)
		} else {
			res, shErr = engine.StatusCheck(wait...)
		}
	case ActionSendSpecials:
		if containsCancelKey(req.SpecialKeys) {
			// Ctrl-c/Ctrl-z interrupt the running command through the
			// shell engine's soft/hard cancel ladder rather than a raw
			// byte write, so a program ignoring SIGINT still escalates
			// to SIGTERM/SIGKILL per §4.3/§5.
			if err := engine.Cancel(); err != nil {
				shErr = New(ShellDied, ComponentShell, "cancel: %v", err)
			} else {
				res, shErr = engine.StatusCheck(wait...)
			}
		} else if err := engine.SendSpecials(req.SpecialKeys); err != nil {
			shErr = New(InvalidBlockFormat, ComponentShell, "%v", err)
		} else {
			res, shErr = engine.StatusCheck(wait...)
		}
	case ActionSendAscii:
		if err := engine.SendAscii(req.AsciiCodes); err != nil {
			shErr = New(InvalidBlockFormat, ComponentShell, "%v", err)
		} else {
			res, shErr = engine.StatusCheck(wait...)
		}
	default:
		return BashCommandResponse{}, New(InvalidBlockFormat, ComponentShell, "unknown bash action %q", req.Action)
	}

	if shErr != nil {
		if shErr.Fatal() {
			d.poisonShell(req.ThreadID, st)
		}
		d.record(req.ThreadID, "BashCommand", string(req.Action), st.NextSeq(), shErr)
		return BashCommandResponse{}, shErr
	}

	var fg []shell.ForegroundProcess
	if res.Status == shell.Pending {
		if info, err := engine.Foreground(); err == nil {
			fg = info.Processes
		}
	}

	d.record(req.ThreadID, "BashCommand", string(req.Action), st.NextSeq(), nil)

	return BashCommandResponse{
		Status:              string(res.Status),
		Output:              res.Output,
		ExitCode:            res.ExitCode,
		ForegroundProcesses: fg,
		Prompt:              promptHint(res.Status),
		Cwd:                 st.Workspace,
	}, nil
}

// waitDuration converts §6's optional wait_for_seconds into the variadic
// override shell.Engine.Command/StatusCheck accept; zero or absent means
// "use the engine's configured default".
func waitDuration(seconds float64) []time.Duration {
	if seconds <= 0 {
		return nil
	}
	return []time.Duration{time.Duration(seconds * float64(time.Second))}
}

// containsCancelKey reports whether keys asks to interrupt the foreground
// command rather than just send ordinary control characters.
func containsCancelKey(keys []string) bool {
	for _, k := range keys {
		if k == "Ctrl-c" || k == "Ctrl-z" {
			return true
		}
	}
	return false
}

func promptHint(status shell.Status) string {
	if status == shell.Idle {
		return "ready"
	}
	return "busy"
}

// shellFor returns (creating if necessary) the live shell engine for st.
func (d *Dispatcher) shellFor(st *session.State) (*shell.Engine, *Error) {
	d.shellMu.Lock()
	defer d.shellMu.Unlock()

	if e, ok := d.shells[st.ThreadID]; ok {
		if e.Alive() {
			return e, nil
		}
		delete(d.shells, st.ThreadID)
		st.Poisoned = true
		return nil, New(ShellDied, ComponentShell, "shell for thread %q has exited", st.ThreadID).
			WithSuggestion("call Initialize to start a new shell")
	}

	e, err := shell.New(d.log, st.Workspace, d.shellConfig())
	if err != nil {
		st.Poisoned = true
		return nil, New(ShellDied, ComponentShell, "start shell: %v", err)
	}
	d.shells[st.ThreadID] = e
	return e, nil
}

func (d *Dispatcher) poisonShell(threadID string, st *session.State) {
	d.shellMu.Lock()
	if e, ok := d.shells[threadID]; ok {
		e.Close()
		delete(d.shells, threadID)
	}
	d.shellMu.Unlock()
	st.Poisoned = true
}

// ---- ReadFiles --------------------------------------------------------

// ReadFilesRequest is §6's ReadFiles payload.
type ReadFilesRequest struct {
	ThreadID              string   `json:"thread_id"`
	FilePaths             []string `json:"file_paths"`
	ShowLineNumbersReason string   `json:"show_line_numbers_reason,omitempty"`
}

// ReadFilesResponse is §6's ReadFiles result.
type ReadFilesResponse struct {
	Files  []fileio.FileResult `json:"files"`
	Errors []*Error            `json:"errors,omitempty"`
}

// ReadFiles implements §4.4's read_files operation. Reads are permitted in
// every mode, including Architect (§4.1: "read/list allowed").
func (d *Dispatcher) ReadFiles(req ReadFilesRequest) (ReadFilesResponse, *Error) {
	st, opErr := d.requireSession(req.ThreadID)
	if opErr != nil {
		return ReadFilesResponse{}, opErr
	}

	results, errs := d.reader.ReadFiles(st, req.FilePaths)
	if req.ShowLineNumbersReason != "" {
		for i := range results {
			results[i].Content = addLineNumbers(results[i].Content, results[i].StartLine)
		}
	}

	if err := st.Snapshot(); err != nil {
		d.log.Warn("checkpoint snapshot failed", "thread_id", req.ThreadID, "err", err)
	}

	d.record(req.ThreadID, "ReadFiles", strings.Join(req.FilePaths, ","), st.NextSeq(), nil)

	return ReadFilesResponse{Files: results, Errors: errs}, nil
}

func addLineNumbers(content string, startLine int) string {
	lines := strings.Split(content, "\n")
	var b strings.Builder
	for i, line := range lines {
		fmt.Fprintf(&b, "%6d\t%s\n", startLine+i, line)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// ---- FileWriteOrEdit ----------------------------------------------------

// FileWriteOrEditRequest is §6's FileWriteOrEdit payload.
type FileWriteOrEditRequest struct {
	ThreadID              string  `json:"thread_id"`
	FilePath              string  `json:"file_path"`
	PercentageToChange    float64 `json:"percentage_to_change"`
	TextOrSearchReplace   string  `json:"text_or_search_replace_blocks"`
}

// FileWriteOrEditResponse is §6's FileWriteOrEdit result.
type FileWriteOrEditResponse struct {
	Applied     bool            `json:"applied"`
	DiffSummary edit.DiffSummary `json:"diff_summary"`
	Warnings    []string        `json:"warnings,omitempty"`
}

// FileWriteOrEdit implements §4.5's dispatch rule: >50% is a full rewrite,
// otherwise an ordered SEARCH/REPLACE block sequence.
func (d *Dispatcher) FileWriteOrEdit(req FileWriteOrEditRequest) (FileWriteOrEditResponse, *Error) {
	st, opErr := d.requireSession(req.ThreadID)
	if opErr != nil {
		return FileWriteOrEditResponse{}, opErr
	}

	abs := req.FilePath
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(st.Workspace, abs)
	}

	if err := st.Mode.CheckWrite(abs); err != nil {
		return FileWriteOrEditResponse{}, New(PathDenied, ComponentSession, "%v", err)
	}

	var result edit.Result
	var editErr *Error
	if req.PercentageToChange > 50 {
		result, editErr = d.editor.Overwrite(st, abs, req.TextOrSearchReplace)
	} else {
		result, editErr = d.editor.Edit(st, abs, req.TextOrSearchReplace)
	}
	if editErr != nil {
		d.record(req.ThreadID, "FileWriteOrEdit", abs, st.NextSeq(), editErr)
		return FileWriteOrEditResponse{}, editErr
	}

	if err := st.Snapshot(); err != nil {
		d.log.Warn("checkpoint snapshot failed", "thread_id", req.ThreadID, "err", err)
	}

	var warnings []string
	if result.SyntaxWarning != "" {
		warnings = append(warnings, result.SyntaxWarning)
	}

	d.record(req.ThreadID, "FileWriteOrEdit", abs, st.NextSeq(), nil)

	return FileWriteOrEditResponse{Applied: true, DiffSummary: result.Diff, Warnings: warnings}, nil
}

// ---- ContextSave --------------------------------------------------------

// ContextSaveRequest is §6's ContextSave payload.
type ContextSaveRequest struct {
	ID                string   `json:"id"`
	ThreadID          string   `json:"thread_id"`
	ProjectRootPath   string   `json:"project_root_path"`
	Description       string   `json:"description"`
	RelevantFileGlobs []string `json:"relevant_file_globs,omitempty"`
}

// ContextSaveResponse is §6's ContextSave result.
type ContextSaveResponse struct {
	SavedPath string `json:"saved_path"`
}

// ContextSave writes a self-contained text file recording the task context
// into a "contexts" directory beside the state dir, and (when an audit store
// is configured) indexes it for later listing by project root.
func (d *Dispatcher) ContextSave(req ContextSaveRequest) (ContextSaveResponse, *Error) {
	stateDir, err := d.cfg.StateDirOrDefault()
	if err != nil {
		return ContextSaveResponse{}, New(PathDenied, ComponentSession, "%v", err)
	}
	contextsDir := filepath.Join(filepath.Dir(stateDir), "contexts")
	if err := os.MkdirAll(contextsDir, 0o755); err != nil {
		return ContextSaveResponse{}, New(PathDenied, ComponentSession, "create contexts dir: %v", err)
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	savedPath := filepath.Join(contextsDir, id+".txt")

	var b strings.Builder
	fmt.Fprintf(&b, "id: %s\n", id)
	fmt.Fprintf(&b, "thread_id: %s\n", req.ThreadID)
	fmt.Fprintf(&b, "project_root: %s\n", req.ProjectRootPath)
	fmt.Fprintf(&b, "saved_at: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(&b, "relevant_file_globs: %s\n", strings.Join(req.RelevantFileGlobs, ", "))
	b.WriteString("\n")
	b.WriteString(req.Description)
	b.WriteString("\n")

	if err := edit.AtomicWrite(savedPath, []byte(b.String()), 0o644); err != nil {
		return ContextSaveResponse{}, New(PathDenied, ComponentSession, "write context: %v", err)
	}

	if d.audit != nil {
		globsCSV := strings.Join(req.RelevantFileGlobs, ",")
		if err := d.audit.RecordContextSave(id, req.ThreadID, req.ProjectRootPath, req.Description, globsCSV, savedPath); err != nil {
			d.log.Warn("record context save failed", "err", err)
		}
	}

	d.record(req.ThreadID, "ContextSave", req.ProjectRootPath, 0, nil)

	return ContextSaveResponse{SavedPath: savedPath}, nil
}

// ---- ReadImage ------------------------------------------------------------

// ReadImageRequest is §6's ReadImage payload.
type ReadImageRequest struct {
	ThreadID string `json:"thread_id"`
	FilePath string `json:"file_path"`
}

// ReadImageResponse is §6's ReadImage result.
type ReadImageResponse struct {
	Mime   string `json:"mime"`
	Base64 string `json:"base64"`
}

// ReadImage implements §4.4's read_image operation.
func (d *Dispatcher) ReadImage(req ReadImageRequest) (ReadImageResponse, *Error) {
	if _, opErr := d.requireSession(req.ThreadID); opErr != nil {
		return ReadImageResponse{}, opErr
	}

	img, opErr := d.reader.ReadImage(req.FilePath, d.cfg.MaxImageSizeBytes)
	if opErr != nil {
		return ReadImageResponse{}, opErr
	}
	return ReadImageResponse{Mime: img.MimeType, Base64: img.Base64}, nil
}

// Shutdown closes every live shell engine and fsnotify watch, used when the
// process exits.
func (d *Dispatcher) Shutdown() {
	d.shellMu.Lock()
	for id, e := range d.shells {
		e.Close()
		delete(d.shells, id)
	}
	d.shellMu.Unlock()

	d.watchMu.Lock()
	for id, w := range d.watchers {
		w.Close()
		delete(d.watchers, id)
	}
	d.watchMu.Unlock()
}
