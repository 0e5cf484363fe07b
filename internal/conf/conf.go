// Package conf loads client configuration files into flat key/value maps.
//
// Two formats are understood. Ceph-style INI files:
//
//	[global]
//	mon host = 10.0.0.1
//	transport = badger
//
//	[client.admin]
//	keyring = /etc/ceph/$cluster.$name.keyring
//
// and YAML files whose top-level keys are the same section names:
//
//	global:
//	  mon_host: 10.0.0.1
//	client.admin:
//	  keyring: /etc/ceph/$cluster.$name.keyring
//
// Sections are merged in the order the caller asks for, later sections
// overriding earlier ones. Keys are normalized with NormalizeKey.
package conf

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/koustreak/radosgo/internal/errs"
)

// GlobalSection is the section every client reads first.
const GlobalSection = "global"

// ReadFile parses the file at path and merges the named sections into one map.
// An unreadable file is an ErrKindIO error and malformed content an
// ErrKindConfigParse error.
func ReadFile(path string, sections ...string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindIO, "cannot read config file "+path, err)
	}

	var parsed map[string]map[string]string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		parsed, err = parseYAML(data)
	default:
		parsed, err = parseINI(data)
	}
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConfigParse, "malformed config file "+path, err)
	}

	if len(sections) == 0 {
		sections = []string{GlobalSection}
	}

	out := make(map[string]string)
	for _, name := range sections {
		for k, v := range parsed[name] {
			out[k] = v
		}
	}
	return out, nil
}

// NormalizeKey folds an option name the way ceph does: case-insensitive,
// with spaces, dashes and underscores treated as the same separator.
func NormalizeKey(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	var b strings.Builder
	b.Grow(len(key))
	prevSep := false
	for _, r := range key {
		if r == ' ' || r == '-' || r == '_' || r == '\t' {
			if !prevSep {
				b.WriteByte('_')
			}
			prevSep = true
			continue
		}
		prevSep = false
		b.WriteRune(r)
	}
	return b.String()
}

// Expand replaces $var and ${var} metavariables in every value using vars.
// Unknown variables are left untouched, braces included.
func Expand(values map[string]string, vars map[string]string) {
	for k, v := range values {
		if strings.Contains(v, "$") {
			values[k] = expand(v, vars)
		}
	}
}

func expand(s string, vars map[string]string) string {
	var b strings.Builder
	for i := 0; i < len(s); {
		if s[i] != '$' {
			b.WriteByte(s[i])
			i++
			continue
		}
		var name, raw string
		if strings.HasPrefix(s[i+1:], "{") {
			end := strings.IndexByte(s[i+2:], '}')
			if end < 0 {
				b.WriteString(s[i:])
				break
			}
			name = s[i+2 : i+2+end]
			raw = s[i : i+3+end]
		} else {
			j := i + 1
			for j < len(s) && isNameByte(s[j]) {
				j++
			}
			name = s[i+1 : j]
			raw = s[i:j]
		}
		if val, ok := vars[name]; ok && name != "" {
			b.WriteString(val)
		} else {
			b.WriteString(raw)
		}
		i += len(raw)
	}
	return b.String()
}

func isNameByte(c byte) bool {
	return c == '_' || '0' <= c && c <= '9' || 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z'
}

// SearchPaths returns the locations a client looks at when no explicit
// configuration file is given, most specific first.
func SearchPaths() []string {
	var paths []string
	if env := os.Getenv("CEPH_CONF"); env != "" {
		paths = append(paths, env)
	}
	paths = append(paths, "/etc/ceph/ceph.conf")
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".ceph", "config"))
	}
	return append(paths, "ceph.conf")
}
