package session

import (
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ModeKind tags the three ModePolicy variants.
type ModeKind string

const (
	ModeWcgw       ModeKind = "wcgw"
	ModeArchitect  ModeKind = "architect"
	ModeCodeWriter ModeKind = "code_writer"
)

// CommandScope is either "all" or a whole-token prefix allow-list, resolving
// spec.md's Open Question in favor of whole-token matching (a leading token
// must equal a configured prefix exactly, never merely share a string prefix).
type CommandScope struct {
	All      bool
	Prefixes []string
}

// UnmarshalYAML accepts either the scalar "all" or a list of prefixes,
// mirroring the teacher's NetworkField/EnvField scalar-or-list fields.
func (c *CommandScope) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		if value.Value == "all" {
			c.All = true
			return nil
		}
		c.Prefixes = []string{value.Value}
		return nil
	}
	var list []string
	if err := value.Decode(&list); err != nil {
		return err
	}
	c.Prefixes = list
	return nil
}

// ModePolicy is the tagged variant governing command execution and file
// writes for the lifetime of a session. It is immutable once constructed.
type ModePolicy struct {
	Kind ModeKind

	// CodeWriter-only fields.
	WriteGlobs []string
	Commands   CommandScope
}

// Wcgw returns the unrestricted policy.
func Wcgw() ModePolicy { return ModePolicy{Kind: ModeWcgw} }

// Architect returns the read-only policy.
func Architect() ModePolicy { return ModePolicy{Kind: ModeArchitect} }

// CodeWriter returns the glob/prefix-restricted policy.
func CodeWriter(writeGlobs []string, commands CommandScope) ModePolicy {
	return ModePolicy{Kind: ModeCodeWriter, WriteGlobs: writeGlobs, Commands: commands}
}

// ParseMode builds a ModePolicy from its wire name plus the CodeWriter
// extras (ignored for the other two kinds).
func ParseMode(name string, writeGlobs []string, commands CommandScope) (ModePolicy, error) {
	switch ModeKind(strings.ToLower(name)) {
	case ModeWcgw:
		return Wcgw(), nil
	case ModeArchitect:
		return Architect(), nil
	case ModeCodeWriter:
		return CodeWriter(writeGlobs, commands), nil
	default:
		return ModePolicy{}, fmt.Errorf("unknown mode %q", name)
	}
}

// Summary returns the human-readable banner fragment for Initialize's response.
func (m ModePolicy) Summary() string {
	switch m.Kind {
	case ModeWcgw:
		return "wcgw mode: unrestricted shell and file access"
	case ModeArchitect:
		return "architect mode: read-only, no commands or file writes"
	case ModeCodeWriter:
		scope := "all commands"
		if !m.Commands.All {
			scope = "commands: " + strings.Join(m.Commands.Prefixes, ", ")
		}
		return fmt.Sprintf("code-writer mode: writes limited to %s; %s", strings.Join(m.WriteGlobs, ", "), scope)
	default:
		return "unknown mode"
	}
}

// shellSeparatorsReplacer rewrites &&, || and | to ; so that splitting on ;
// yields one segment per sequenced command, each with its own leading token.
var shellSeparatorsReplacer = strings.NewReplacer(
	"&&", ";",
	"||", ";",
	"|", ";",
)

// CheckCommand implements §4.1's check_command_allowed rules.
func (m ModePolicy) CheckCommand(cmd string) error {
	switch m.Kind {
	case ModeWcgw:
		return nil
	case ModeArchitect:
		return fmt.Errorf("read-only mode: commands are not allowed")
	case ModeCodeWriter:
		if m.Commands.All {
			return nil
		}
		normalized := shellSeparatorsReplacer.Replace(cmd)
		for _, segment := range strings.Split(normalized, ";") {
			segment = strings.TrimSpace(segment)
			if segment == "" {
				continue
			}
			fields := strings.Fields(segment)
			leading := fields[0]
			if !m.matchesPrefix(leading) {
				return fmt.Errorf("command %q is not in the allowed prefix list", leading)
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown mode")
	}
}

func (m ModePolicy) matchesPrefix(token string) bool {
	token = strings.TrimSuffix(token, "/")
	for _, p := range m.Commands.Prefixes {
		if token == strings.TrimSuffix(p, "/") {
			return true
		}
	}
	return false
}

// CheckWrite implements §4.1's check_write_allowed rules.
func (m ModePolicy) CheckWrite(path string) error {
	switch m.Kind {
	case ModeWcgw:
		return nil
	case ModeArchitect:
		return fmt.Errorf("read-only mode: file writes are not allowed")
	case ModeCodeWriter:
		clean := filepath.Clean(path)
		for _, g := range m.WriteGlobs {
			if ok, _ := filepath.Match(g, clean); ok {
				return nil
			}
			// Also allow globs anchored at a directory: "src/**" style via
			// prefix match on the directory component, since filepath.Match
			// has no "**" semantics.
			if strings.HasSuffix(g, "/**") {
				dir := strings.TrimSuffix(g, "/**")
				if strings.HasPrefix(clean, dir+string(filepath.Separator)) || clean == dir {
					return nil
				}
			}
		}
		return fmt.Errorf("path %q does not match any allowed write glob", path)
	default:
		return fmt.Errorf("unknown mode")
	}
}
