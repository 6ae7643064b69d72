package shell

import "fmt"

// specialKeys maps the wire names from §6 "External Interfaces" to the byte
// sequence the PTY's line discipline / the child's terminal driver expects.
var specialKeys = map[string]string{
	"Enter":     "\r",
	"Tab":       "\t",
	"Backspace": "\x7f",
	"Delete":    "\x1b[3~",
	"Escape":    "\x1b",
	"Key-up":    "\x1b[A",
	"Key-down":  "\x1b[B",
	"Key-right": "\x1b[C",
	"Key-left":  "\x1b[D",
	"Home":      "\x1b[H",
	"End":       "\x1b[F",
	"Page-up":   "\x1b[5~",
	"Page-down": "\x1b[6~",
}

// init fills in the full Ctrl-a..Ctrl-z table: terminal line discipline maps
// each to its position in the alphabet (Ctrl-a is 0x01, Ctrl-z is 0x1a).
func init() {
	for c := byte('a'); c <= 'z'; c++ {
		name := "Ctrl-" + string(c)
		specialKeys[name] = string([]byte{name[5] - 'a' + 1})
	}
}

// ResolveSpecialKey translates a wire key name into the bytes to write to
// the PTY, or reports that the name is unknown.
func ResolveSpecialKey(name string) (string, error) {
	seq, ok := specialKeys[name]
	if !ok {
		return "", fmt.Errorf("unknown special key %q", name)
	}
	return seq, nil
}

// AsciiToBytes converts a list of decimal ASCII codes (the SendAscii wire
// form) into the literal byte sequence to write to the PTY.
func AsciiToBytes(codes []int) ([]byte, error) {
	out := make([]byte, 0, len(codes))
	for _, c := range codes {
		if c < 0 || c > 255 {
			return nil, fmt.Errorf("ascii code %d out of byte range", c)
		}
		out = append(out, byte(c))
	}
	return out, nil
}
