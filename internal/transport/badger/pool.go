package badger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/koustreak/radosgo/internal/transport"
)

// Pool is a handle to one pool of a badger-backed cluster.
type Pool struct {
	client *Client
	id     int64
	name   string
	closed atomic.Bool
}

func (p *Pool) ID() int64 {
	return p.id
}

func (p *Pool) Name() string {
	return p.name
}

func (p *Pool) check(ctx context.Context, op string, write bool) error {
	if p.closed.Load() {
		return transport.Errorf(transport.StatusNotConnected, op, fmt.Errorf("pool handle closed"))
	}
	if err := p.client.check(ctx, op); err != nil {
		return err
	}
	if write {
		return p.client.caps.CheckWrite(op)
	}
	return p.client.caps.CheckRead(op)
}

// record loads the pool record, failing with StatusNotFound once the pool
// has been deleted.
func (p *Pool) record(txn *badgerdb.Txn, op string) (*poolRecord, error) {
	var rec poolRecord
	err := getJSON(txn, poolIDKey(p.id), &rec)
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, transport.Errorf(transport.StatusNotFound, op, fmt.Errorf("pool %q was deleted", p.name))
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (p *Pool) view(ctx context.Context, op string, fn func(txn *badgerdb.Txn) error) error {
	if err := p.check(ctx, op, false); err != nil {
		return err
	}
	return p.client.s.view(ctx, op, func(txn *badgerdb.Txn) error {
		if _, err := p.record(txn, op); err != nil {
			return err
		}
		return fn(txn)
	})
}

func (p *Pool) update(ctx context.Context, op string, fn func(txn *badgerdb.Txn, rec *poolRecord) error) error {
	if err := p.check(ctx, op, true); err != nil {
		return err
	}
	return p.client.s.update(ctx, op, func(txn *badgerdb.Txn) error {
		rec, err := p.record(txn, op)
		if err != nil {
			return err
		}
		return fn(txn, rec)
	})
}

func (p *Pool) Auid(ctx context.Context) (uint64, error) {
	var auid uint64
	err := p.view(ctx, "get auid", func(txn *badgerdb.Txn) error {
		rec, err := p.record(txn, "get auid")
		if err != nil {
			return err
		}
		auid = rec.Auid
		return nil
	})
	return auid, err
}

func (p *Pool) SetAuid(ctx context.Context, auid uint64) error {
	return p.update(ctx, "set auid", func(txn *badgerdb.Txn, rec *poolRecord) error {
		rec.Auid = auid
		return setJSON(txn, poolIDKey(p.id), rec)
	})
}

// load returns a copy of the live object and whether it exists.
func load(txn *badgerdb.Txn, key []byte) ([]byte, time.Time, bool, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, time.Time{}, false, nil
	}
	if err != nil {
		return nil, time.Time{}, false, err
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return nil, time.Time{}, false, err
	}
	data, mtime := decodeObject(val)
	return data, mtime, true, nil
}

// modify applies fn to the current content of oid and stores the result.
func (p *Pool) modify(ctx context.Context, op, oid string, fn func(old []byte, exists bool) ([]byte, error)) error {
	if err := transport.ValidateOid(op, oid); err != nil {
		return err
	}
	return p.update(ctx, op, func(txn *badgerdb.Txn, _ *poolRecord) error {
		key := objectKey(p.id, oid)
		old, _, exists, err := load(txn, key)
		if err != nil {
			return err
		}
		out, err := fn(old, exists)
		if err != nil {
			return err
		}
		return txn.Set(key, encodeObject(out, time.Now()))
	})
}

func (p *Pool) Write(ctx context.Context, oid string, data []byte, off uint64) error {
	return p.modify(ctx, "write", oid, func(old []byte, _ bool) ([]byte, error) {
		return transport.WriteAt("write", old, data, off)
	})
}

func (p *Pool) WriteFull(ctx context.Context, oid string, data []byte) error {
	return p.modify(ctx, "write full", oid, func([]byte, bool) ([]byte, error) {
		return transport.WriteAt("write full", nil, data, 0)
	})
}

func (p *Pool) Append(ctx context.Context, oid string, data []byte) error {
	return p.modify(ctx, "append", oid, func(old []byte, _ bool) ([]byte, error) {
		return transport.WriteAt("append", old, data, uint64(len(old)))
	})
}

// Truncate creates a missing object, as the OSD does.
func (p *Pool) Truncate(ctx context.Context, oid string, size uint64) error {
	return p.modify(ctx, "truncate", oid, func(old []byte, _ bool) ([]byte, error) {
		return transport.Resize("truncate", old, size)
	})
}

// readKey resolves the key oid is stored under at snap.
func (p *Pool) readKey(txn *badgerdb.Txn, op, oid string, snap transport.SnapID) ([]byte, error) {
	if snap == transport.SnapHead {
		return objectKey(p.id, oid), nil
	}
	if _, err := txn.Get(snapKey(p.id, snap)); errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, transport.Errorf(transport.StatusNotFound, op, fmt.Errorf("snapshot %d", snap))
	} else if err != nil {
		return nil, err
	}
	return snapObjectKey(p.id, snap, oid), nil
}

func (p *Pool) get(ctx context.Context, op, oid string, snap transport.SnapID) ([]byte, time.Time, error) {
	if err := transport.ValidateOid(op, oid); err != nil {
		return nil, time.Time{}, err
	}
	var (
		data  []byte
		mtime time.Time
	)
	err := p.view(ctx, op, func(txn *badgerdb.Txn) error {
		key, err := p.readKey(txn, op, oid, snap)
		if err != nil {
			return err
		}
		var exists bool
		data, mtime, exists, err = load(txn, key)
		if err != nil {
			return err
		}
		if !exists {
			return transport.Errorf(transport.StatusNotFound, op, fmt.Errorf("object %q", oid))
		}
		return nil
	})
	return data, mtime, err
}

func (p *Pool) Read(ctx context.Context, oid string, snap transport.SnapID, buf []byte, off uint64) (int, error) {
	data, _, err := p.get(ctx, "read", oid, snap)
	if err != nil {
		return 0, err
	}
	return transport.ReadAt(data, buf, off), nil
}

func (p *Pool) Stat(ctx context.Context, oid string, snap transport.SnapID) (transport.ObjectStat, error) {
	data, mtime, err := p.get(ctx, "stat", oid, snap)
	if err != nil {
		return transport.ObjectStat{}, err
	}
	return transport.ObjectStat{Oid: oid, Size: uint64(len(data)), ModTime: mtime}, nil
}

func (p *Pool) Remove(ctx context.Context, oid string) error {
	if err := transport.ValidateOid("remove", oid); err != nil {
		return err
	}
	return p.update(ctx, "remove", func(txn *badgerdb.Txn, _ *poolRecord) error {
		key := objectKey(p.id, oid)
		if _, err := txn.Get(key); errors.Is(err, badgerdb.ErrKeyNotFound) {
			return transport.Errorf(transport.StatusNotFound, "remove", fmt.Errorf("object %q", oid))
		} else if err != nil {
			return err
		}
		return txn.Delete(key)
	})
}

func (p *Pool) Usage(ctx context.Context) (transport.PoolStat, error) {
	var st transport.PoolStat
	err := p.view(ctx, "pool stat", func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = objectPrefix(p.id)
		it := txn.NewIterator(opts)
		for it.Rewind(); it.Valid(); it.Next() {
			st.NumObjects++
			st.NumBytes += uint64(it.Item().ValueSize() - objectHeader)
		}
		it.Close()

		opts.Prefix = snapPrefix(p.id)
		it = txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			st.NumSnaps++
		}
		return nil
	})
	st.NumKb = transport.KiB(st.NumBytes)
	return st, err
}

func (p *Pool) List(ctx context.Context, after transport.Cursor, max int) ([]string, error) {
	var ids []string
	err := p.view(ctx, "list", func(txn *badgerdb.Txn) error {
		prefix := objectPrefix(p.id)
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		start := prefix
		if after != transport.Start {
			start = objectKey(p.id, string(after))
		}
		for it.Seek(start); it.Valid(); it.Next() {
			key := it.Item().Key()
			if after != transport.Start && bytes.Equal(key, start) {
				continue
			}
			ids = append(ids, string(key[len(prefix):]))
			if max > 0 && len(ids) >= max {
				break
			}
		}
		return nil
	})
	return ids, err
}

// --- snapshots ---

func lookupSnap(txn *badgerdb.Txn, pool int64, op, name string) (transport.SnapID, error) {
	item, err := txn.Get(snapNameKey(pool, name))
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return 0, transport.Errorf(transport.StatusNotFound, op, fmt.Errorf("snapshot %q", name))
	}
	if err != nil {
		return 0, err
	}
	var id transport.SnapID
	err = item.Value(func(val []byte) error {
		id = transport.SnapID(decodeID(val))
		return nil
	})
	return id, err
}

// CreateSnap reserves a snapshot id, copies every live object under it in
// write batches and only then publishes the snapshot records. The copy reads
// from a single read transaction, so it reflects the pool at one instant
// however large the pool is. A failed copy leaves no visible snapshot.
func (p *Pool) CreateSnap(ctx context.Context, name string) (transport.SnapID, error) {
	if err := transport.ValidateName("snap create", name); err != nil {
		return 0, err
	}
	var id transport.SnapID
	err := p.update(ctx, "snap create", func(txn *badgerdb.Txn, rec *poolRecord) error {
		if err := snapNameFree(txn, p.id, name); err != nil {
			return err
		}
		rec.SnapSeq++
		id = transport.SnapID(rec.SnapSeq)
		return setJSON(txn, poolIDKey(p.id), rec)
	})
	if err != nil {
		return 0, err
	}

	if err := p.copySnap(ctx, id); err != nil {
		_ = p.client.s.deletePrefixes(context.Background(), "snap create", snapObjectPrefix(p.id, id))
		return 0, err
	}

	err = p.update(ctx, "snap create", func(txn *badgerdb.Txn, _ *poolRecord) error {
		if err := snapNameFree(txn, p.id, name); err != nil {
			return err
		}
		if err := setJSON(txn, snapKey(p.id, id), &snapRecord{Name: name, Stamp: time.Now()}); err != nil {
			return err
		}
		return txn.Set(snapNameKey(p.id, name), be64(uint64(id)))
	})
	if err != nil {
		_ = p.client.s.deletePrefixes(context.Background(), "snap create", snapObjectPrefix(p.id, id))
		return 0, err
	}
	return id, nil
}

// snapNameFree fails with StatusExists when name is taken in pool.
func snapNameFree(txn *badgerdb.Txn, pool int64, name string) error {
	_, err := txn.Get(snapNameKey(pool, name))
	if err == nil {
		return transport.Errorf(transport.StatusExists, "snap create", fmt.Errorf("snapshot %q", name))
	}
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil
	}
	return err
}

// copySnapCheckEvery is how many objects are copied between context checks.
const copySnapCheckEvery = 1024

// copySnap writes the so: copies of every live object of the pool. The
// write batch splits the copy into as many transactions as it needs.
func (p *Pool) copySnap(ctx context.Context, id transport.SnapID) error {
	const op = "snap create"
	txn := p.client.s.db.NewTransaction(false)
	defer txn.Discard()

	if _, err := p.record(txn, op); err != nil {
		return mapError(err, op)
	}

	wb := p.client.s.db.NewWriteBatch()
	if err := p.fillSnap(ctx, txn, wb, id); err != nil {
		wb.Cancel()
		return err
	}
	return mapError(wb.Flush(), op)
}

func (p *Pool) fillSnap(ctx context.Context, txn *badgerdb.Txn, wb *badgerdb.WriteBatch, id transport.SnapID) error {
	const op = "snap create"
	prefix := objectPrefix(p.id)
	opts := badgerdb.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	n := 0
	for it.Rewind(); it.Valid(); it.Next() {
		if n++; n%copySnapCheckEvery == 0 {
			if err := transport.CheckContext(ctx, op); err != nil {
				return err
			}
		}
		item := it.Item()
		val, err := item.ValueCopy(nil)
		if err != nil {
			return mapError(err, op)
		}
		oid := string(item.Key()[len(prefix):])
		if err := wb.Set(snapObjectKey(p.id, id, oid), val); err != nil {
			return mapError(err, op)
		}
	}
	return nil
}

func (p *Pool) RemoveSnap(ctx context.Context, name string) error {
	var id transport.SnapID
	err := p.update(ctx, "snap remove", func(txn *badgerdb.Txn, _ *poolRecord) error {
		var err error
		if id, err = lookupSnap(txn, p.id, "snap remove", name); err != nil {
			return err
		}
		if err := txn.Delete(snapNameKey(p.id, name)); err != nil {
			return err
		}
		return txn.Delete(snapKey(p.id, id))
	})
	if err != nil {
		return err
	}
	return p.client.s.deletePrefixes(ctx, "snap remove", snapObjectPrefix(p.id, id))
}

func (p *Pool) LookupSnap(ctx context.Context, name string) (transport.SnapID, error) {
	var id transport.SnapID
	err := p.view(ctx, "snap lookup", func(txn *badgerdb.Txn) error {
		var err error
		id, err = lookupSnap(txn, p.id, "snap lookup", name)
		return err
	})
	return id, err
}

func (p *Pool) SnapInfo(ctx context.Context, id transport.SnapID) (transport.SnapInfo, error) {
	var rec snapRecord
	err := p.view(ctx, "snap info", func(txn *badgerdb.Txn) error {
		err := getJSON(txn, snapKey(p.id, id), &rec)
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return transport.Errorf(transport.StatusNotFound, "snap info", fmt.Errorf("snapshot %d", id))
		}
		return err
	})
	if err != nil {
		return transport.SnapInfo{}, err
	}
	return transport.SnapInfo{ID: id, Name: rec.Name, Stamp: rec.Stamp}, nil
}

func (p *Pool) ListSnaps(ctx context.Context) ([]transport.SnapID, error) {
	var ids []transport.SnapID
	err := p.view(ctx, "snap list", func(txn *badgerdb.Txn) error {
		prefix := snapPrefix(p.id)
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			ids = append(ids, transport.SnapID(decodeID(it.Item().Key()[len(prefix):])))
		}
		return nil
	})
	return ids, err
}

func (p *Pool) Rollback(ctx context.Context, oid string, snap transport.SnapID) error {
	if err := transport.ValidateOid("rollback", oid); err != nil {
		return err
	}
	return p.update(ctx, "rollback", func(txn *badgerdb.Txn, _ *poolRecord) error {
		key, err := p.readKey(txn, "rollback", oid, snap)
		if err != nil {
			return err
		}
		data, _, existed, err := load(txn, key)
		if err != nil {
			return err
		}
		live := objectKey(p.id, oid)
		if !existed {
			if err := txn.Delete(live); err != nil {
				return err
			}
			return nil
		}
		return txn.Set(live, encodeObject(data, time.Now()))
	})
}

// Close releases the handle.
func (p *Pool) Close() error {
	p.closed.Store(true)
	return nil
}
