// Package ops defines the operation contracts (request/response payloads and
// error kinds) shared by every component, and the dispatcher that wires
// session state, the shell engine, and the file/edit stack together.
package ops

import "fmt"

// Kind enumerates the error kinds from the error handling design.
type Kind string

const (
	NotInitialized       Kind = "not_initialized"
	ModeDenied           Kind = "mode_denied"
	CommandAlreadyRunning Kind = "command_already_running"
	ShellDied            Kind = "shell_died"
	PathDenied           Kind = "path_denied"
	PathNotFound         Kind = "path_not_found"
	PathIsBinary         Kind = "path_is_binary"
	FileTooLarge         Kind = "file_too_large"
	FileChangedOnDisk    Kind = "file_changed_on_disk"
	EditCoversUnreadLines Kind = "edit_covers_unread_lines"
	SearchBlockUnmatched  Kind = "search_block_unmatched"
	InvalidBlockFormat   Kind = "invalid_block_format"
	Timeout              Kind = "timeout"
)

// Component identifies which subsystem raised an Error. It is carried purely
// for log correlation and is not part of the required wire contract.
type Component string

const (
	ComponentSession Component = "session"
	ComponentShell   Component = "shell"
	ComponentFileIO  Component = "fileio"
	ComponentEdit    Component = "edit"
)

// Error is the structured, non-fatal error every operation reports inline
// instead of failing the whole response. ShellDied is the one kind that also
// poisons the session and requires re-Initialize.
type Error struct {
	Kind       Kind
	Component  Component
	Message    string
	Suggestion string
}

func (e *Error) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Suggestion)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// New builds an Error with the given kind/component/message.
func New(kind Kind, component Component, message string, args ...any) *Error {
	return &Error{Kind: kind, Component: component, Message: fmt.Sprintf(message, args...)}
}

// WithSuggestion attaches a remedial suggestion and returns the same Error for chaining.
func (e *Error) WithSuggestion(suggestion string, args ...any) *Error {
	e.Suggestion = fmt.Sprintf(suggestion, args...)
	return e
}

// Fatal reports whether this error kind poisons the session.
func (e *Error) Fatal() bool {
	return e.Kind == ShellDied
}
