package memory

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/koustreak/radosgo/internal/transport"
)

// Pool is a handle to one pool of an in-process cluster.
type Pool struct {
	client *Client
	p      *pool
	closed atomic.Bool
}

func (h *Pool) ID() int64 {
	return h.p.id
}

func (h *Pool) Name() string {
	return h.p.name
}

// begin validates the handle and takes the cluster lock. The returned
// function releases it.
func (h *Pool) begin(ctx context.Context, op string, write bool) (func(), error) {
	if h.closed.Load() {
		return nil, transport.Errorf(transport.StatusNotConnected, op, fmt.Errorf("pool handle closed"))
	}
	if err := h.client.check(ctx, op); err != nil {
		return nil, err
	}
	if write {
		if err := h.client.caps.CheckWrite(op); err != nil {
			return nil, err
		}
		h.client.c.mu.Lock()
	} else {
		if err := h.client.caps.CheckRead(op); err != nil {
			return nil, err
		}
		h.client.c.mu.RLock()
	}
	unlock := h.client.c.mu.RUnlock
	if write {
		unlock = h.client.c.mu.Unlock
	}
	if h.p.deleted {
		unlock()
		return nil, transport.Errorf(transport.StatusNotFound, op, fmt.Errorf("pool %q was deleted", h.p.name))
	}
	return unlock, nil
}

func (h *Pool) Auid(ctx context.Context) (uint64, error) {
	done, err := h.begin(ctx, "get auid", false)
	if err != nil {
		return 0, err
	}
	defer done()
	return h.p.auid, nil
}

func (h *Pool) SetAuid(ctx context.Context, auid uint64) error {
	done, err := h.begin(ctx, "set auid", true)
	if err != nil {
		return err
	}
	defer done()
	h.p.auid = auid
	return nil
}

func (h *Pool) current(oid string) []byte {
	if o, ok := h.p.objects[oid]; ok {
		return o.data
	}
	return nil
}

func (h *Pool) Write(ctx context.Context, oid string, data []byte, off uint64) error {
	if err := transport.ValidateOid("write", oid); err != nil {
		return err
	}
	done, err := h.begin(ctx, "write", true)
	if err != nil {
		return err
	}
	defer done()
	out, err := transport.WriteAt("write", h.current(oid), data, off)
	if err != nil {
		return err
	}
	h.p.put(oid, out)
	return nil
}

func (h *Pool) WriteFull(ctx context.Context, oid string, data []byte) error {
	if err := transport.ValidateOid("write full", oid); err != nil {
		return err
	}
	done, err := h.begin(ctx, "write full", true)
	if err != nil {
		return err
	}
	defer done()
	out, err := transport.WriteAt("write full", nil, data, 0)
	if err != nil {
		return err
	}
	h.p.put(oid, out)
	return nil
}

func (h *Pool) Append(ctx context.Context, oid string, data []byte) error {
	if err := transport.ValidateOid("append", oid); err != nil {
		return err
	}
	done, err := h.begin(ctx, "append", true)
	if err != nil {
		return err
	}
	defer done()
	old := h.current(oid)
	out, err := transport.WriteAt("append", old, data, uint64(len(old)))
	if err != nil {
		return err
	}
	h.p.put(oid, out)
	return nil
}

func (h *Pool) Truncate(ctx context.Context, oid string, size uint64) error {
	if err := transport.ValidateOid("truncate", oid); err != nil {
		return err
	}
	done, err := h.begin(ctx, "truncate", true)
	if err != nil {
		return err
	}
	defer done()
	// Truncating a missing object creates it, as the OSD does.
	o, ok := h.p.objects[oid]
	if ok && uint64(len(o.data)) == size {
		return nil
	}
	out, err := transport.Resize("truncate", h.current(oid), size)
	if err != nil {
		return err
	}
	h.p.put(oid, out)
	return nil
}

// lookup resolves oid at snap. Callers hold the cluster lock.
func (h *Pool) lookup(op, oid string, snap transport.SnapID) (*object, error) {
	objects := h.p.objects
	if snap != transport.SnapHead {
		s, ok := h.p.snaps[snap]
		if !ok {
			return nil, transport.Errorf(transport.StatusNotFound, op, fmt.Errorf("snapshot %d", snap))
		}
		objects = s.objects
	}
	o, ok := objects[oid]
	if !ok {
		return nil, transport.Errorf(transport.StatusNotFound, op, fmt.Errorf("object %q", oid))
	}
	return o, nil
}

func (h *Pool) Read(ctx context.Context, oid string, snap transport.SnapID, buf []byte, off uint64) (int, error) {
	if err := transport.ValidateOid("read", oid); err != nil {
		return 0, err
	}
	done, err := h.begin(ctx, "read", false)
	if err != nil {
		return 0, err
	}
	defer done()
	o, err := h.lookup("read", oid, snap)
	if err != nil {
		return 0, err
	}
	return transport.ReadAt(o.data, buf, off), nil
}

func (h *Pool) Stat(ctx context.Context, oid string, snap transport.SnapID) (transport.ObjectStat, error) {
	if err := transport.ValidateOid("stat", oid); err != nil {
		return transport.ObjectStat{}, err
	}
	done, err := h.begin(ctx, "stat", false)
	if err != nil {
		return transport.ObjectStat{}, err
	}
	defer done()
	o, err := h.lookup("stat", oid, snap)
	if err != nil {
		return transport.ObjectStat{}, err
	}
	return transport.ObjectStat{Oid: oid, Size: uint64(len(o.data)), ModTime: o.mtime}, nil
}

func (h *Pool) Remove(ctx context.Context, oid string) error {
	if err := transport.ValidateOid("remove", oid); err != nil {
		return err
	}
	done, err := h.begin(ctx, "remove", true)
	if err != nil {
		return err
	}
	defer done()
	if _, ok := h.p.objects[oid]; !ok {
		return transport.Errorf(transport.StatusNotFound, "remove", fmt.Errorf("object %q", oid))
	}
	h.p.del(oid)
	return nil
}

func (h *Pool) Usage(ctx context.Context) (transport.PoolStat, error) {
	done, err := h.begin(ctx, "pool stat", false)
	if err != nil {
		return transport.PoolStat{}, err
	}
	defer done()
	var bytes uint64
	for _, o := range h.p.objects {
		bytes += uint64(len(o.data))
	}
	return transport.PoolStat{
		NumObjects: uint64(len(h.p.objects)),
		NumBytes:   bytes,
		NumKb:      transport.KiB(bytes),
		NumSnaps:   uint64(len(h.p.snaps)),
	}, nil
}

func (h *Pool) List(ctx context.Context, after transport.Cursor, max int) ([]string, error) {
	done, err := h.begin(ctx, "list", false)
	if err != nil {
		return nil, err
	}
	defer done()
	return transport.Page(h.p.keys(), after, max), nil
}

// --- snapshots ---

func (h *Pool) snapByName(op, name string) (*snapshot, error) {
	for _, s := range h.p.snaps {
		if s.info.Name == name {
			return s, nil
		}
	}
	return nil, transport.Errorf(transport.StatusNotFound, op, fmt.Errorf("snapshot %q", name))
}

func (h *Pool) CreateSnap(ctx context.Context, name string) (transport.SnapID, error) {
	if err := transport.ValidateName("snap create", name); err != nil {
		return 0, err
	}
	done, err := h.begin(ctx, "snap create", true)
	if err != nil {
		return 0, err
	}
	defer done()
	if _, err := h.snapByName("snap create", name); err == nil {
		return 0, transport.Errorf(transport.StatusExists, "snap create", fmt.Errorf("snapshot %q", name))
	}

	h.p.snapSeq++
	id := transport.SnapID(h.p.snapSeq)
	frozen := make(map[string]*object, len(h.p.objects))
	for oid, o := range h.p.objects {
		frozen[oid] = o
	}
	h.p.snaps[id] = &snapshot{
		info:    transport.SnapInfo{ID: id, Name: name, Stamp: time.Now()},
		objects: frozen,
	}
	return id, nil
}

func (h *Pool) RemoveSnap(ctx context.Context, name string) error {
	done, err := h.begin(ctx, "snap remove", true)
	if err != nil {
		return err
	}
	defer done()
	s, err := h.snapByName("snap remove", name)
	if err != nil {
		return err
	}
	delete(h.p.snaps, s.info.ID)
	return nil
}

func (h *Pool) LookupSnap(ctx context.Context, name string) (transport.SnapID, error) {
	done, err := h.begin(ctx, "snap lookup", false)
	if err != nil {
		return 0, err
	}
	defer done()
	s, err := h.snapByName("snap lookup", name)
	if err != nil {
		return 0, err
	}
	return s.info.ID, nil
}

func (h *Pool) SnapInfo(ctx context.Context, id transport.SnapID) (transport.SnapInfo, error) {
	done, err := h.begin(ctx, "snap info", false)
	if err != nil {
		return transport.SnapInfo{}, err
	}
	defer done()
	s, ok := h.p.snaps[id]
	if !ok {
		return transport.SnapInfo{}, transport.Errorf(transport.StatusNotFound, "snap info", fmt.Errorf("snapshot %d", id))
	}
	return s.info, nil
}

func (h *Pool) ListSnaps(ctx context.Context) ([]transport.SnapID, error) {
	done, err := h.begin(ctx, "snap list", false)
	if err != nil {
		return nil, err
	}
	defer done()
	ids := make([]transport.SnapID, 0, len(h.p.snaps))
	for id := range h.p.snaps {
		ids = append(ids, id)
	}
	return ids, nil
}

func (h *Pool) Rollback(ctx context.Context, oid string, snap transport.SnapID) error {
	if err := transport.ValidateOid("rollback", oid); err != nil {
		return err
	}
	done, err := h.begin(ctx, "rollback", true)
	if err != nil {
		return err
	}
	defer done()
	s, ok := h.p.snaps[snap]
	if !ok {
		return transport.Errorf(transport.StatusNotFound, "rollback", fmt.Errorf("snapshot %d", snap))
	}
	o, existed := s.objects[oid]
	if !existed {
		if _, live := h.p.objects[oid]; live {
			h.p.del(oid)
		}
		return nil
	}
	h.p.put(oid, o.data)
	return nil
}

// Close releases the handle.
func (h *Pool) Close() error {
	h.closed.Store(true)
	return nil
}
