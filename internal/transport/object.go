package transport

import (
	"fmt"
	"sort"
	"strings"
)

// Limits enforced identically by every backend.
const (
	MaxObjectSize = 128 << 20 // bytes
	MaxOidLength  = 2048
	MaxNameLength = 255 // pool and snapshot names
)

// ValidateOid rejects identifiers the cluster would refuse.
func ValidateOid(op, oid string) error {
	if oid == "" {
		return Errorf(StatusInvalid, op, fmt.Errorf("empty object id"))
	}
	if len(oid) > MaxOidLength {
		return Errorf(StatusNameTooLong, op, fmt.Errorf("object id longer than %d bytes", MaxOidLength))
	}
	return nil
}

// ValidateName rejects pool and snapshot names the cluster would refuse.
func ValidateName(op, name string) error {
	if name == "" || len(name) > MaxNameLength || strings.ContainsAny(name, "/\x00") {
		return Errorf(StatusInvalid, op, fmt.Errorf("invalid name %q", name))
	}
	return nil
}

// WriteAt returns a new buffer holding old with data written at off.
// Bytes between the old end and off are zero. old is never modified.
func WriteAt(op string, old, data []byte, off uint64) ([]byte, error) {
	end := off + uint64(len(data))
	if end < off || end > MaxObjectSize {
		return nil, Errorf(StatusTooBig, op, fmt.Errorf("write end %d exceeds max object size", end))
	}
	size := uint64(len(old))
	if end > size {
		size = end
	}
	out := make([]byte, size)
	copy(out, old)
	copy(out[off:], data)
	return out, nil
}

// Resize returns a new buffer of exactly size bytes, keeping the prefix of old
// and zero-extending when it grows.
func Resize(op string, old []byte, size uint64) ([]byte, error) {
	if size > MaxObjectSize {
		return nil, Errorf(StatusTooBig, op, fmt.Errorf("size %d exceeds max object size", size))
	}
	out := make([]byte, size)
	copy(out, old)
	return out, nil
}

// ReadAt copies data[off:] into buf and returns the number of bytes copied.
// Reading at or past the end returns 0.
func ReadAt(data, buf []byte, off uint64) int {
	if off >= uint64(len(data)) {
		return 0
	}
	return copy(buf, data[off:])
}

// Page selects up to max identifiers strictly after the cursor from a sorted
// slice. max <= 0 means no limit.
func Page(sorted []string, after Cursor, max int) []string {
	i := 0
	if after != Start {
		i = sort.Search(len(sorted), func(j int) bool { return sorted[j] > string(after) })
	}
	rest := sorted[i:]
	if max > 0 && len(rest) > max {
		rest = rest[:max]
	}
	out := make([]string, len(rest))
	copy(out, rest)
	return out
}

// KiB rounds a byte count up to kibibytes.
func KiB(bytes uint64) uint64 {
	return (bytes + 1023) / 1024
}
