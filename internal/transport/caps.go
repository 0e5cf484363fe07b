package transport

import (
	"fmt"
	"strings"
)

// Caps is the subset of OSD capabilities the embedded backends enforce.
type Caps struct {
	Read  bool
	Write bool
}

// FullCaps grants everything.
var FullCaps = Caps{Read: true, Write: true}

// ParseCaps understands "allow r", "allow rw", "allow rwx" and "allow *".
// An empty string grants full access.
func ParseCaps(s string) (Caps, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return FullCaps, nil
	}
	fields := strings.Fields(s)
	if len(fields) != 2 || fields[0] != "allow" {
		return Caps{}, Errorf(StatusInvalid, "parse caps", fmt.Errorf("unsupported caps %q", s))
	}
	if fields[1] == "*" {
		return FullCaps, nil
	}
	var c Caps
	for _, r := range fields[1] {
		switch r {
		case 'r':
			c.Read = true
		case 'w':
			c.Write = true
		case 'x':
		default:
			return Caps{}, Errorf(StatusInvalid, "parse caps", fmt.Errorf("unknown capability %q in %q", r, s))
		}
	}
	return c, nil
}

// CheckRead fails with StatusPerm when reads are not allowed.
func (c Caps) CheckRead(op string) error {
	if !c.Read {
		return Errorf(StatusPerm, op, fmt.Errorf("client lacks read capability"))
	}
	return nil
}

// CheckWrite fails with StatusPerm when mutations are not allowed.
func (c Caps) CheckWrite(op string) error {
	if !c.Write {
		return Errorf(StatusPerm, op, fmt.Errorf("client lacks write capability"))
	}
	return nil
}
