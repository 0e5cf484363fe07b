package minio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/koustreak/radosgo/internal/transport"
	miniogo "github.com/minio/minio-go/v7"
)

const contentType = "application/octet-stream"

// Pool is a bucket-scoped handle.
type Pool struct {
	d      *Driver
	id     int64
	bucket string
	closed atomic.Bool
}

func (p *Pool) ID() int64 {
	return p.id
}

func (p *Pool) Name() string {
	return p.bucket
}

func (p *Pool) check(ctx context.Context, op string) error {
	if p.closed.Load() {
		return transport.Errorf(transport.StatusNotConnected, op, fmt.Errorf("pool handle closed"))
	}
	return p.d.check(ctx, op)
}

// fetch downloads the whole object. found is false when it does not exist.
func (p *Pool) fetch(ctx context.Context, op, key string) (data []byte, found bool, err error) {
	obj, err := p.d.client.GetObject(ctx, p.bucket, key, miniogo.GetObjectOptions{})
	if err != nil {
		return nil, false, mapError(err, op)
	}
	defer obj.Close()

	data, err = io.ReadAll(obj)
	if err != nil {
		mapped := mapError(err, op)
		if transport.StatusOf(mapped) == transport.StatusNotFound {
			return nil, false, nil
		}
		return nil, false, mapped
	}
	return data, true, nil
}

func (p *Pool) store(ctx context.Context, op, key string, data []byte) error {
	_, err := p.d.client.PutObject(ctx, p.bucket, key, bytes.NewReader(data), int64(len(data)),
		miniogo.PutObjectOptions{ContentType: contentType})
	return mapError(err, op)
}

func (p *Pool) Auid(ctx context.Context) (uint64, error) {
	if err := p.check(ctx, "get auid"); err != nil {
		return 0, err
	}
	b, _, err := p.fetch(ctx, "get auid", keyAuid)
	if err != nil {
		return 0, err
	}
	auid, err := parseAuid(b)
	if err != nil {
		return 0, transport.Errorf(transport.StatusIO, "get auid", err)
	}
	return auid, nil
}

func (p *Pool) SetAuid(ctx context.Context, auid uint64) error {
	if err := p.check(ctx, "set auid"); err != nil {
		return err
	}
	return p.store(ctx, "set auid", keyAuid, []byte(strconv.FormatUint(auid, 10)))
}

// modify applies fn to the current content of oid and uploads the result.
func (p *Pool) modify(ctx context.Context, op, oid string, fn func(old []byte) ([]byte, error)) error {
	if err := validateOid(op, oid); err != nil {
		return err
	}
	if err := p.check(ctx, op); err != nil {
		return err
	}
	old, _, err := p.fetch(ctx, op, oid)
	if err != nil {
		return err
	}
	out, err := fn(old)
	if err != nil {
		return err
	}
	return p.store(ctx, op, oid, out)
}

func (p *Pool) Write(ctx context.Context, oid string, data []byte, off uint64) error {
	return p.modify(ctx, "write", oid, func(old []byte) ([]byte, error) {
		return transport.WriteAt("write", old, data, off)
	})
}

func (p *Pool) WriteFull(ctx context.Context, oid string, data []byte) error {
	if err := validateOid("write full", oid); err != nil {
		return err
	}
	if err := p.check(ctx, "write full"); err != nil {
		return err
	}
	out, err := transport.WriteAt("write full", nil, data, 0)
	if err != nil {
		return err
	}
	return p.store(ctx, "write full", oid, out)
}

func (p *Pool) Append(ctx context.Context, oid string, data []byte) error {
	return p.modify(ctx, "append", oid, func(old []byte) ([]byte, error) {
		return transport.WriteAt("append", old, data, uint64(len(old)))
	})
}

func (p *Pool) Truncate(ctx context.Context, oid string, size uint64) error {
	return p.modify(ctx, "truncate", oid, func(old []byte) ([]byte, error) {
		return transport.Resize("truncate", old, size)
	})
}

// readKey resolves the key oid is stored under at snap.
func (p *Pool) readKey(ctx context.Context, op, oid string, snap transport.SnapID) (string, error) {
	if snap == transport.SnapHead {
		return oid, nil
	}
	reg, err := p.registry(ctx, op)
	if err != nil {
		return "", err
	}
	if _, ok := reg.get(snap); !ok {
		return "", transport.Errorf(transport.StatusNotFound, op, fmt.Errorf("snapshot %d", snap))
	}
	return snapObjectKey(snap, oid), nil
}

func (p *Pool) Read(ctx context.Context, oid string, snap transport.SnapID, buf []byte, off uint64) (int, error) {
	if err := validateOid("read", oid); err != nil {
		return 0, err
	}
	if err := p.check(ctx, "read"); err != nil {
		return 0, err
	}
	key, err := p.readKey(ctx, "read", oid, snap)
	if err != nil {
		return 0, err
	}
	data, found, err := p.fetch(ctx, "read", key)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, transport.Errorf(transport.StatusNotFound, "read", fmt.Errorf("object %q", oid))
	}
	return transport.ReadAt(data, buf, off), nil
}

func (p *Pool) Stat(ctx context.Context, oid string, snap transport.SnapID) (transport.ObjectStat, error) {
	if err := validateOid("stat", oid); err != nil {
		return transport.ObjectStat{}, err
	}
	if err := p.check(ctx, "stat"); err != nil {
		return transport.ObjectStat{}, err
	}
	key, err := p.readKey(ctx, "stat", oid, snap)
	if err != nil {
		return transport.ObjectStat{}, err
	}
	info, err := p.d.client.StatObject(ctx, p.bucket, key, miniogo.StatObjectOptions{})
	if err != nil {
		return transport.ObjectStat{}, mapError(err, "stat")
	}
	return transport.ObjectStat{Oid: oid, Size: uint64(info.Size), ModTime: info.LastModified}, nil
}

// Remove stats first because S3 deletes of missing keys succeed.
func (p *Pool) Remove(ctx context.Context, oid string) error {
	if err := validateOid("remove", oid); err != nil {
		return err
	}
	if err := p.check(ctx, "remove"); err != nil {
		return err
	}
	if _, err := p.d.client.StatObject(ctx, p.bucket, oid, miniogo.StatObjectOptions{}); err != nil {
		return mapError(err, "remove")
	}
	return mapError(p.d.client.RemoveObject(ctx, p.bucket, oid, miniogo.RemoveObjectOptions{}), "remove")
}

func (p *Pool) Usage(ctx context.Context) (transport.PoolStat, error) {
	if err := p.check(ctx, "pool stat"); err != nil {
		return transport.PoolStat{}, err
	}
	st, err := p.d.usage(ctx, p.bucket)
	if err != nil {
		return transport.PoolStat{}, err
	}
	reg, err := p.registry(ctx, "pool stat")
	if err != nil {
		return transport.PoolStat{}, err
	}
	st.NumSnaps = uint64(len(reg.Snaps))
	return st, nil
}

// usage sums the live objects of bucket.
func (d *Driver) usage(ctx context.Context, bucket string) (transport.PoolStat, error) {
	listCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var st transport.PoolStat
	for obj := range d.client.ListObjects(listCtx, bucket, miniogo.ListObjectsOptions{Recursive: true}) {
		if obj.Err != nil {
			return transport.PoolStat{}, mapError(obj.Err, "pool stat")
		}
		if isReserved(obj.Key) {
			continue
		}
		st.NumObjects++
		st.NumBytes += uint64(obj.Size)
	}
	st.NumKb = transport.KiB(st.NumBytes)
	return st, nil
}

// List relies on S3 returning keys in ascending UTF-8 byte order.
func (p *Pool) List(ctx context.Context, after transport.Cursor, max int) ([]string, error) {
	if err := p.check(ctx, "list"); err != nil {
		return nil, err
	}
	listCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	opts := miniogo.ListObjectsOptions{Recursive: true, StartAfter: string(after)}
	var ids []string
	for obj := range p.d.client.ListObjects(listCtx, p.bucket, opts) {
		if obj.Err != nil {
			return nil, mapError(obj.Err, "list")
		}
		if isReserved(obj.Key) || obj.Key <= string(after) {
			continue
		}
		ids = append(ids, obj.Key)
		if max > 0 && len(ids) >= max {
			break
		}
	}
	return ids, nil
}

// --- snapshots ---

func (p *Pool) registry(ctx context.Context, op string) (*registry, error) {
	b, _, err := p.fetch(ctx, op, keySnaps)
	if err != nil {
		return nil, err
	}
	reg, err := decodeRegistry(b)
	if err != nil {
		return nil, transport.Errorf(transport.StatusIO, op, fmt.Errorf("corrupt snapshot registry: %w", err))
	}
	return reg, nil
}

func (p *Pool) saveRegistry(ctx context.Context, op string, reg *registry) error {
	b, err := reg.encode()
	if err != nil {
		return transport.Errorf(transport.StatusIO, op, err)
	}
	return p.store(ctx, op, keySnaps, b)
}

// CreateSnap copies every live object under the snapshot's prefix, then
// records it in the registry.
func (p *Pool) CreateSnap(ctx context.Context, name string) (transport.SnapID, error) {
	if err := transport.ValidateName("snap create", name); err != nil {
		return 0, err
	}
	if err := p.check(ctx, "snap create"); err != nil {
		return 0, err
	}
	reg, err := p.registry(ctx, "snap create")
	if err != nil {
		return 0, err
	}
	if _, ok := reg.lookup(name); ok {
		return 0, transport.Errorf(transport.StatusExists, "snap create", fmt.Errorf("snapshot %q", name))
	}
	id := reg.add(name, time.Now())

	oids, err := p.List(ctx, transport.Start, 0)
	if err != nil {
		return 0, err
	}
	for _, oid := range oids {
		if err := p.copy(ctx, "snap create", oid, snapObjectKey(id, oid)); err != nil {
			_ = p.d.removePrefix(ctx, "snap create", p.bucket, snapPrefix(id))
			return 0, err
		}
	}
	if err := p.saveRegistry(ctx, "snap create", reg); err != nil {
		_ = p.d.removePrefix(ctx, "snap create", p.bucket, snapPrefix(id))
		return 0, err
	}
	return id, nil
}

func (p *Pool) copy(ctx context.Context, op, from, to string) error {
	_, err := p.d.client.CopyObject(ctx,
		miniogo.CopyDestOptions{Bucket: p.bucket, Object: to},
		miniogo.CopySrcOptions{Bucket: p.bucket, Object: from},
	)
	return mapError(err, op)
}

func (p *Pool) RemoveSnap(ctx context.Context, name string) error {
	if err := p.check(ctx, "snap remove"); err != nil {
		return err
	}
	reg, err := p.registry(ctx, "snap remove")
	if err != nil {
		return err
	}
	id, ok := reg.lookup(name)
	if !ok {
		return transport.Errorf(transport.StatusNotFound, "snap remove", fmt.Errorf("snapshot %q", name))
	}
	reg.remove(id)
	if err := p.saveRegistry(ctx, "snap remove", reg); err != nil {
		return err
	}
	return p.d.removePrefix(ctx, "snap remove", p.bucket, snapPrefix(id))
}

func (p *Pool) LookupSnap(ctx context.Context, name string) (transport.SnapID, error) {
	if err := p.check(ctx, "snap lookup"); err != nil {
		return 0, err
	}
	reg, err := p.registry(ctx, "snap lookup")
	if err != nil {
		return 0, err
	}
	id, ok := reg.lookup(name)
	if !ok {
		return 0, transport.Errorf(transport.StatusNotFound, "snap lookup", fmt.Errorf("snapshot %q", name))
	}
	return id, nil
}

func (p *Pool) SnapInfo(ctx context.Context, id transport.SnapID) (transport.SnapInfo, error) {
	if err := p.check(ctx, "snap info"); err != nil {
		return transport.SnapInfo{}, err
	}
	reg, err := p.registry(ctx, "snap info")
	if err != nil {
		return transport.SnapInfo{}, err
	}
	e, ok := reg.get(id)
	if !ok {
		return transport.SnapInfo{}, transport.Errorf(transport.StatusNotFound, "snap info", fmt.Errorf("snapshot %d", id))
	}
	return transport.SnapInfo{ID: id, Name: e.Name, Stamp: e.Stamp}, nil
}

func (p *Pool) ListSnaps(ctx context.Context) ([]transport.SnapID, error) {
	if err := p.check(ctx, "snap list"); err != nil {
		return nil, err
	}
	reg, err := p.registry(ctx, "snap list")
	if err != nil {
		return nil, err
	}
	return reg.ids(), nil
}

func (p *Pool) Rollback(ctx context.Context, oid string, snap transport.SnapID) error {
	if err := validateOid("rollback", oid); err != nil {
		return err
	}
	if err := p.check(ctx, "rollback"); err != nil {
		return err
	}
	key, err := p.readKey(ctx, "rollback", oid, snap)
	if err != nil {
		return err
	}
	_, err = p.d.client.StatObject(ctx, p.bucket, key, miniogo.StatObjectOptions{})
	if transport.StatusOf(mapError(err, "rollback")) == transport.StatusNotFound {
		err = p.d.client.RemoveObject(ctx, p.bucket, oid, miniogo.RemoveObjectOptions{})
		return mapError(err, "rollback")
	}
	if err != nil {
		return mapError(err, "rollback")
	}
	return p.copy(ctx, "rollback", key, oid)
}

// Close releases the handle.
func (p *Pool) Close() error {
	p.closed.Store(true)
	return nil
}
