// Package transport defines the cluster-access layer the rados client calls
// into. A backend (memory, badger, minio, sql) implements Cluster and Pool;
// the client never imports a backend package directly and only sees the
// status-coded errors described in status.go.
//
// Usage:
//
//	cluster, err := transport.Dial(ctx, "memory", transport.Config{"mon_host": "local"})
//	if err != nil { ... }
//	defer cluster.Close()
//
//	pool, err := cluster.OpenPool(ctx, "data")
package transport

import (
	"context"
	"math"
	"time"
)

// SnapID identifies a pool snapshot.
type SnapID uint64

// SnapHead addresses the live (non-snapshot) state of objects.
const SnapHead SnapID = math.MaxUint64 - 1

// Cursor is an opaque position in a pool's object keyspace. The empty cursor
// is the start of the keyspace. Backends return identifiers strictly after the
// cursor in byte-wise order, so the last identifier of a page is the next cursor.
type Cursor string

// Start is the cursor positioned before the first object.
const Start Cursor = ""

// ClusterStat is the cluster-wide usage summary.
type ClusterStat struct {
	Kb         uint64
	KbUsed     uint64
	KbAvail    uint64
	NumObjects uint64
}

// PoolStat is the usage summary of a single pool.
type PoolStat struct {
	NumObjects uint64
	NumBytes   uint64
	NumKb      uint64
	NumSnaps   uint64
}

// ObjectStat describes a single object.
type ObjectStat struct {
	Oid     string
	Size    uint64
	ModTime time.Time
}

// SnapInfo describes a single snapshot.
type SnapInfo struct {
	ID    SnapID
	Name  string
	Stamp time.Time
}

// Cluster is one authenticated session to a cluster.
// Implementations must be safe for concurrent use.
type Cluster interface {
	// FSID returns the cluster's unique identifier.
	FSID(ctx context.Context) (string, error)

	// Stat returns cluster-wide usage.
	Stat(ctx context.Context) (ClusterStat, error)

	// InstanceID returns the id this session was given by the cluster (> 0).
	InstanceID() uint64

	// ListPools returns pool names in a stable order.
	ListPools(ctx context.Context) ([]string, error)

	LookupPool(ctx context.Context, name string) (int64, error)
	ReverseLookupPool(ctx context.Context, id int64) (string, error)
	CreatePool(ctx context.Context, name string) error
	DeletePool(ctx context.Context, name string) error

	// OpenPool returns a handle scoped to the named pool.
	// The caller owns the handle and must Close it.
	OpenPool(ctx context.Context, name string) (Pool, error)

	// Close ends the session. Pools opened from it become unusable.
	Close() error
}

// Pool is a pool-scoped handle obtained from Cluster.OpenPool.
type Pool interface {
	ID() int64
	Name() string

	Auid(ctx context.Context) (uint64, error)
	SetAuid(ctx context.Context, auid uint64) error

	// Write stores data at off, zero-filling any gap and keeping the tail.
	Write(ctx context.Context, oid string, data []byte, off uint64) error
	// WriteFull replaces the whole object with data.
	WriteFull(ctx context.Context, oid string, data []byte) error
	// Append adds data at the end of the object, creating it if absent.
	Append(ctx context.Context, oid string, data []byte) error
	// Truncate discards or zero-extends the object to size.
	Truncate(ctx context.Context, oid string, size uint64) error
	// Read fills buf from off as the object was at snap.
	Read(ctx context.Context, oid string, snap SnapID, buf []byte, off uint64) (int, error)
	Stat(ctx context.Context, oid string, snap SnapID) (ObjectStat, error)
	Remove(ctx context.Context, oid string) error

	// Usage returns pool-level aggregates.
	Usage(ctx context.Context) (PoolStat, error)

	// List returns up to max live object identifiers after the cursor.
	// max <= 0 means no limit. An empty result means the keyspace is exhausted.
	List(ctx context.Context, after Cursor, max int) ([]string, error)

	CreateSnap(ctx context.Context, name string) (SnapID, error)
	RemoveSnap(ctx context.Context, name string) error
	LookupSnap(ctx context.Context, name string) (SnapID, error)
	SnapInfo(ctx context.Context, id SnapID) (SnapInfo, error)
	ListSnaps(ctx context.Context) ([]SnapID, error)
	// Rollback restores oid to its state at snap, removing it if it did not exist.
	Rollback(ctx context.Context, oid string, snap SnapID) error

	// Close releases the handle. It does not affect the pool's data.
	Close() error
}
