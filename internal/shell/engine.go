// Package shell owns the PTY-backed child shell and the command dispatch
// state machine described by the shell engine component: Idle, Running,
// Pending, and Interrupted, with prompt-sentinel detection driving the
// Running -> Idle transition and a soft/hard cancellation ladder.
package shell

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"

	"wcgw/internal/ops"
	"wcgw/internal/vt"
)

// Status is the command lifecycle state.
type Status string

const (
	Idle        Status = "idle"
	Running     Status = "running"
	Pending     Status = "pending"
	Interrupted Status = "interrupted"
)

// Config bundles the EngineConfig knobs this package reads.
type Config struct {
	Cols, Rows      int
	Scrollback      int
	OutputCap       int // bytes; 0 means DefaultOutputCap
	PendingAfter    time.Duration
	SoftCancelWait  time.Duration
	HardCancelWait  time.Duration
}

// DefaultOutputCap matches the order of magnitude the teacher's replay
// buffer trims at: large enough for real command output, small enough to
// keep a runaway `yes` from growing a response without bound.
const DefaultOutputCap = 1 << 20 // 1 MiB

func (c Config) outputCap() int {
	if c.OutputCap <= 0 {
		return DefaultOutputCap
	}
	return c.OutputCap
}

func (c Config) pendingAfter() time.Duration {
	if c.PendingAfter <= 0 {
		return 30 * time.Second
	}
	return c.PendingAfter
}

func (c Config) softCancelWait() time.Duration {
	if c.SoftCancelWait <= 0 {
		return 3 * time.Second
	}
	return c.SoftCancelWait
}

func (c Config) hardCancelWait() time.Duration {
	if c.HardCancelWait <= 0 {
		return 2 * time.Second
	}
	return c.HardCancelWait
}

// Engine owns one PTY-backed bash/zsh child and its command lifecycle.
type Engine struct {
	log *slog.Logger
	cfg Config

	mu       sync.Mutex
	ptmx     *os.File
	cmd      *exec.Cmd
	screen   *vt.Screen
	cwd      string
	nonce    string
	sentinel string
	status   Status

	// cmdMark is the screen.Mark() taken when the current command was
	// dispatched, so renderedOutput/checkCompletion only ever see output
	// produced since then, never an earlier command's leftovers.
	cmdMark int

	died   bool
	dieErr error
	done   chan struct{}

	runningSince time.Time
}

// New starts a bash child on a fresh PTY, sized cols x rows, with its
// working directory set to cwd and a session-unique prompt sentinel
// installed as PS1.
func New(log *slog.Logger, cwd string, cfg Config) (*Engine, error) {
	nonce, err := newNonce()
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(context.Background(), "bash", "--noprofile", "--norc")
	cmd.Dir = cwd
	cmd.Env = append(os.Environ(), "PS1="+promptSentinel(cwd, nonce), "TERM=xterm-256color")
	cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGTERM) }
	cmd.WaitDelay = 5 * time.Second

	size := &pty.Winsize{Cols: uint16(cfg.Cols), Rows: uint16(cfg.Rows)}
	ptmx, err := pty.StartWithSize(cmd, size)
	if err != nil {
		return nil, fmt.Errorf("start pty: %w", err)
	}

	e := &Engine{
		log:      log,
		cfg:      cfg,
		ptmx:     ptmx,
		cmd:      cmd,
		screen:   vt.NewScreen(cfg.Cols, cfg.Rows, cfg.Scrollback),
		cwd:      cwd,
		nonce:    nonce,
		sentinel: promptSentinel(cwd, nonce),
		status:   Idle,
		done:     make(chan struct{}),
	}

	go e.readLoop()
	go e.waitLoop()

	return e, nil
}

func (e *Engine) readLoop() {
	buf := make([]byte, 32*1024)
	for {
		n, err := e.ptmx.Read(buf)
		if n > 0 {
			e.mu.Lock()
			e.screen.Write(buf[:n])
			e.mu.Unlock()
		}
		if err != nil {
			return
		}
	}
}

func (e *Engine) waitLoop() {
	err := e.cmd.Wait()
	e.mu.Lock()
	e.died = true
	e.dieErr = err
	e.mu.Unlock()
	close(e.done)
	e.log.Warn("shell exited", "err", err)
}

// Alive reports whether the child shell process is still running.
func (e *Engine) Alive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.died
}

// Resize changes the PTY and emulator dimensions.
func (e *Engine) Resize(cols, rows int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := pty.Setsize(e.ptmx, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)}); err != nil {
		return fmt.Errorf("resize pty: %w", err)
	}
	e.screen.Resize(cols, rows)
	e.cfg.Cols, e.cfg.Rows = cols, rows
	return nil
}

// Result is what a Command/StatusCheck call reports back.
type Result struct {
	Output   string
	Status   Status
	ExitCode *int
}

// Command dispatches cmdText to the shell. If the prompt sentinel (and
// harvested exit tag) appears within cfg.pendingAfter, the command is
// considered complete and Status is Idle; otherwise the call returns with
// Status Pending and the caller is expected to poll via StatusCheck. An
// optional wait overrides cfg.pendingAfter for this call only, the §6
// wire contract's wait_for_seconds.
func (e *Engine) Command(cmdText string, wait ...time.Duration) (Result, *ops.Error) {
	e.mu.Lock()
	if e.died {
		e.mu.Unlock()
		return Result{}, ops.New(ops.ShellDied, ops.ComponentShell, "shell process has exited: %v", e.dieErr)
	}
	if e.status == Running || e.status == Pending {
		e.mu.Unlock()
		return Result{}, ops.New(ops.CommandAlreadyRunning, ops.ComponentShell, "a command is already running")
	}
	e.status = Running
	e.runningSince = time.Now()
	e.cmdMark = e.screen.Mark()
	nonce := e.nonce
	e.mu.Unlock()

	wrapped := wrapWithExitTag(cmdText, nonce)
	if _, err := e.ptmx.Write([]byte(wrapped)); err != nil {
		e.mu.Lock()
		e.status = Idle
		e.mu.Unlock()
		return Result{}, ops.New(ops.ShellDied, ops.ComponentShell, "write to pty: %v", err)
	}

	return e.awaitCompletion(firstWait(wait, e.cfg.pendingAfter()))
}

// firstWait returns wait[0] when provided and positive, otherwise fallback.
func firstWait(wait []time.Duration, fallback time.Duration) time.Duration {
	if len(wait) > 0 && wait[0] > 0 {
		return wait[0]
	}
	return fallback
}

// awaitCompletion polls the rendered tail for the exit-tag/prompt sentinel
// up to pendingFor, then returns Pending if the command is still running.
func (e *Engine) awaitCompletion(pendingFor time.Duration) (Result, *ops.Error) {
	deadline := time.Now().Add(pendingFor)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if res, done := e.checkCompletion(); done {
			return res, nil
		}
		if time.Now().After(deadline) {
			e.mu.Lock()
			e.status = Pending
			out := e.renderedOutput()
			e.mu.Unlock()
			return Result{Output: out, Status: Pending}, nil
		}
		select {
		case <-e.done:
			e.mu.Lock()
			out := e.renderedOutput()
			e.mu.Unlock()
			return Result{Output: out, Status: Idle}, ops.New(ops.ShellDied, ops.ComponentShell, "shell process exited mid-command: %v", e.dieErr)
		case <-ticker.C:
		}
	}
}

// checkCompletion reports the rendered output produced since the current
// command was dispatched and whether it has finished. Completion requires
// both the harvested exit tag (the wrapper's trailing printf ran) and the
// cursor sitting at column 0 on a freshly reprinted prompt sentinel line
// (the shell has actually returned to idle) — the tag alone only proves the
// command itself exited, not that the shell finished redrawing its prompt.
func (e *Engine) checkCompletion() (Result, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rendered := e.screen.RenderSince(e.cmdMark)
	cleaned, code, ok := extractExitCode(rendered, e.nonce)
	if !ok {
		return Result{}, false
	}
	if !e.screen.AtLineStart() || !findPromptSentinel(cleaned, e.sentinel) {
		return Result{}, false
	}

	e.status = Idle
	out := capOutput(stripTrailingSentinel(cleaned, e.sentinel), e.cfg.outputCap())
	return Result{Output: out, Status: Idle, ExitCode: &code}, true
}

// StatusCheck reports the engine's current status without dispatching a new
// command, used to poll a Pending command. An optional wait re-polls for up
// to that long before giving up, the same wait_for_seconds override Command
// accepts; with no wait it reports the current status immediately.
func (e *Engine) StatusCheck(wait ...time.Duration) (Result, *ops.Error) {
	if res, done := e.checkCompletion(); done {
		return res, nil
	}
	if len(wait) > 0 && wait[0] > 0 {
		return e.awaitCompletion(wait[0])
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.died {
		return Result{}, ops.New(ops.ShellDied, ops.ComponentShell, "shell process has exited: %v", e.dieErr)
	}
	return Result{Output: e.renderedOutput(), Status: e.status}, nil
}

// renderedOutput must be called with mu held. It reports the ANSI-stripped
// tail since the current command started, same rendering path checkCompletion
// uses — raw PTY bytes are never surfaced to a caller.
func (e *Engine) renderedOutput() string {
	return capOutput(e.screen.RenderSince(e.cmdMark), e.cfg.outputCap())
}

func capOutput(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	const marker = "\n... [output truncated] ...\n"
	return marker + s[len(s)-limit:]
}

// SendText writes raw text (no trailing Enter implied) to the PTY, used for
// interactive prompts (e.g. a password prompt) that don't go through
// Command's exit-tag wrapping.
func (e *Engine) SendText(text string) error {
	_, err := e.ptmx.Write([]byte(text))
	return err
}

// SendSpecials writes a sequence of special keys by wire name.
func (e *Engine) SendSpecials(names []string) error {
	for _, name := range names {
		seq, err := ResolveSpecialKey(name)
		if err != nil {
			return err
		}
		if _, err := e.ptmx.Write([]byte(seq)); err != nil {
			return err
		}
	}
	return nil
}

// SendAscii writes literal ASCII codes to the PTY.
func (e *Engine) SendAscii(codes []int) error {
	bs, err := AsciiToBytes(codes)
	if err != nil {
		return err
	}
	_, err = e.ptmx.Write(bs)
	return err
}

// Foreground reports what's running in the PTY's foreground process group.
func (e *Engine) Foreground() (*ForegroundInfo, error) {
	return foregroundGroup(int(e.ptmx.Fd()))
}

// Cancel interrupts the running command with a soft/hard ladder: SIGINT to
// the foreground process group, then (if it survives softCancelWait)
// SIGTERM to the child, then (if it survives hardCancelWait) SIGKILL.
func (e *Engine) Cancel() error {
	e.mu.Lock()
	if e.status != Running && e.status != Pending {
		e.mu.Unlock()
		return nil
	}
	pid := e.cmd.Process.Pid
	fd := int(e.ptmx.Fd())
	e.status = Interrupted
	e.mu.Unlock()

	pgid := pid
	if fg, err := unix.IoctlGetInt(fd, unix.TIOCGPGRP); err == nil && fg > 0 {
		pgid = fg
	}
	if err := syscall.Kill(-pgid, syscall.SIGINT); err != nil {
		e.log.Warn("sigint foreground group failed", "err", err)
	}

	select {
	case <-e.done:
		return nil
	case <-time.After(e.cfg.softCancelWait()):
	}

	if err := e.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		e.log.Warn("sigterm failed", "err", err)
	}

	select {
	case <-e.done:
		return nil
	case <-time.After(e.cfg.hardCancelWait()):
	}

	return e.cmd.Process.Kill()
}

// Close tears down the PTY and emulator. It sends no signal to the child:
// the command is built on context.Background(), so its SIGTERM Cancel hook
// never fires; Close only releases local resources.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.screen.Close()
	return e.ptmx.Close()
}
