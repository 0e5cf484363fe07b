package badger

import (
	"encoding/binary"
	"time"

	"github.com/koustreak/radosgo/internal/transport"
)

// Key layout
//
//	meta:fsid                          cluster fsid
//	seq:pool, seq:instance             badger sequences
//	pn:<name>                          pool id (8 bytes BE)
//	pi:<pool>                          poolRecord (JSON)
//	o:<pool><oid>                      live object (mtime + data)
//	s:<pool><snap>                     snapRecord (JSON)
//	sn:<pool><name>                    snap id (8 bytes BE)
//	so:<pool><snap><oid>               object as it was at snap (mtime + data)
//
// <pool> and <snap> are 8-byte big-endian integers, so prefix iteration
// visits pools, snapshots and object ids in ascending byte order.
const (
	prefixPoolName   = "pn:"
	prefixPoolID     = "pi:"
	prefixObject     = "o:"
	prefixSnap       = "s:"
	prefixSnapName   = "sn:"
	prefixSnapObject = "so:"
)

var (
	keyFSID        = []byte("meta:fsid")
	keyPoolSeq     = []byte("seq:pool")
	keyInstanceSeq = []byte("seq:instance")
)

func be64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func join(parts ...[]byte) []byte {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func poolNameKey(name string) []byte {
	return join([]byte(prefixPoolName), []byte(name))
}

func poolIDKey(id int64) []byte {
	return join([]byte(prefixPoolID), be64(uint64(id)))
}

func objectPrefix(pool int64) []byte {
	return join([]byte(prefixObject), be64(uint64(pool)))
}

func objectKey(pool int64, oid string) []byte {
	return join(objectPrefix(pool), []byte(oid))
}

func snapPrefix(pool int64) []byte {
	return join([]byte(prefixSnap), be64(uint64(pool)))
}

func snapKey(pool int64, snap transport.SnapID) []byte {
	return join(snapPrefix(pool), be64(uint64(snap)))
}

func snapNamePrefix(pool int64) []byte {
	return join([]byte(prefixSnapName), be64(uint64(pool)))
}

func snapNameKey(pool int64, name string) []byte {
	return join(snapNamePrefix(pool), []byte(name))
}

func snapObjectPoolPrefix(pool int64) []byte {
	return join([]byte(prefixSnapObject), be64(uint64(pool)))
}

func snapObjectPrefix(pool int64, snap transport.SnapID) []byte {
	return join(snapObjectPoolPrefix(pool), be64(uint64(snap)))
}

func snapObjectKey(pool int64, snap transport.SnapID, oid string) []byte {
	return join(snapObjectPrefix(pool, snap), []byte(oid))
}

// --- values ---

type poolRecord struct {
	Name    string `json:"name"`
	Auid    uint64 `json:"auid"`
	SnapSeq uint64 `json:"snap_seq"`
}

type snapRecord struct {
	Name  string    `json:"name"`
	Stamp time.Time `json:"stamp"`
}

const objectHeader = 8

func encodeObject(data []byte, mtime time.Time) []byte {
	out := make([]byte, objectHeader+len(data))
	binary.BigEndian.PutUint64(out, uint64(mtime.UnixNano()))
	copy(out[objectHeader:], data)
	return out
}

// decodeObject splits a stored value. data aliases val.
func decodeObject(val []byte) (data []byte, mtime time.Time) {
	if len(val) < objectHeader {
		return nil, time.Time{}
	}
	ns := int64(binary.BigEndian.Uint64(val))
	return val[objectHeader:], time.Unix(0, ns)
}

func decodeID(b []byte) uint64 {
	if len(b) < 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}
