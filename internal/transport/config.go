package transport

import (
	"fmt"
	"strconv"
	"strings"
)

// Config is the frozen option map a cluster is dialled with.
// Keys are normalized option names (see conf.NormalizeKey).
type Config map[string]string

// Standard option keys shared by all backends.
const (
	OptTransport = "transport"
	OptName      = "name" // client.<id>
	OptCaps      = "caps"
	OptFSID      = "fsid"
)

// String returns the value for key, or def when unset or empty.
func (c Config) String(key, def string) string {
	if v, ok := c[key]; ok && v != "" {
		return v
	}
	return def
}

// Bool parses key as a boolean.
func (c Config) Bool(key string, def bool) (bool, error) {
	v, ok := c[key]
	if !ok || v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, Errorf(StatusInvalid, "config "+key, fmt.Errorf("not a boolean: %q", v))
	}
	return b, nil
}

// Uint64 parses key as an unsigned integer.
func (c Config) Uint64(key string, def uint64) (uint64, error) {
	v, ok := c[key]
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return def, Errorf(StatusInvalid, "config "+key, fmt.Errorf("not an unsigned integer: %q", v))
	}
	return n, nil
}

// List splits a comma or space separated value.
func (c Config) List(key string, def []string) []string {
	v, ok := c[key]
	if !ok {
		return def
	}
	fields := strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ' ' || r == ';' })
	if len(fields) == 0 {
		return def
	}
	return fields
}

// Clone returns a copy that callers may mutate.
func (c Config) Clone() Config {
	out := make(Config, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}
