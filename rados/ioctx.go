package rados

import (
	"context"
	"fmt"
	"sync"

	"github.com/koustreak/radosgo/internal/errs"
	"github.com/koustreak/radosgo/internal/logger"
	"github.com/koustreak/radosgo/internal/transport"
)

// IOContext is a handle scoping operations to one pool.
//
// Object I/O on different objects may be issued concurrently. SetAuid and
// SetReadSnap must be synchronized by the caller.
type IOContext struct {
	conn *Conn // not owned; checked before every call
	pool transport.Pool
	log  *logger.Logger

	id   int64
	name string

	mu       sync.Mutex // guards closed, readSnap, cursors
	closed   bool
	readSnap transport.SnapID
	cursors  map[*ListCtx]struct{}
}

func newIOContext(c *Conn, p transport.Pool) *IOContext {
	return &IOContext{
		conn:     c,
		pool:     p,
		log:      c.log.With().Str("pool", p.Name()).Int64("pool_id", p.ID()).Logger(),
		id:       p.ID(),
		name:     p.Name(),
		readSnap: transport.SnapHead,
		cursors:  make(map[*ListCtx]struct{}),
	}
}

// acquire checks that the context and its Conn are usable and returns the
// read snapshot in effect. release must be called when the call is done.
func (io *IOContext) acquire(op string) (transport.SnapID, func(), error) {
	io.mu.Lock()
	closed, snap := io.closed, io.readSnap
	io.mu.Unlock()
	if closed {
		return 0, nil, errs.Newf(errs.ErrKindInvalidState, "%s on closed io context for pool %q", op, io.name)
	}
	_, release, err := io.conn.session(op)
	if err != nil {
		return 0, nil, err
	}
	return snap, release, nil
}

// mutate is acquire for writes, which are refused while a read snapshot is set.
func (io *IOContext) mutate(op string) (func(), error) {
	snap, release, err := io.acquire(op)
	if err != nil {
		return nil, err
	}
	if snap != transport.SnapHead {
		release()
		return nil, errs.WithStatus(errs.ErrKindInvalidState,
			fmt.Sprintf("%s while reading from snapshot %d", op, snap), transport.StatusReadOnly, nil)
	}
	return release, nil
}

func checkOid(oid string) error {
	if oid == "" {
		return errInvalidArgument("object id is empty")
	}
	return nil
}

// GetPoolID returns the id of the pool.
func (io *IOContext) GetPoolID() int64 {
	return io.id
}

// GetPoolName returns the name of the pool.
func (io *IOContext) GetPoolName() string {
	return io.name
}

// GetAuid returns the pool's associated user id.
func (io *IOContext) GetAuid(ctx context.Context) (uint64, error) {
	_, release, err := io.acquire("get auid")
	if err != nil {
		return 0, err
	}
	defer release()
	auid, err := io.pool.Auid(ctx)
	if err != nil {
		return 0, mapError(err, "get auid failed")
	}
	return auid, nil
}

// SetAuid changes the pool's associated user id.
func (io *IOContext) SetAuid(ctx context.Context, auid uint64) error {
	release, err := io.mutate("set auid")
	if err != nil {
		return err
	}
	defer release()
	return mapError(io.pool.SetAuid(ctx, auid), "set auid failed")
}

// Write stores data at offset, creating the object if needed. Bytes beyond
// the written range are kept; use WriteFull to replace the whole object.
func (io *IOContext) Write(ctx context.Context, oid string, data []byte, offset uint64) error {
	if err := checkOid(oid); err != nil {
		return err
	}
	release, err := io.mutate("write")
	if err != nil {
		return err
	}
	defer release()
	return mapError(io.pool.Write(ctx, oid, data, offset), fmt.Sprintf("write %q failed", oid))
}

// WriteFull replaces the object with exactly data. Pass data[:n] to write a
// prefix of a buffer.
func (io *IOContext) WriteFull(ctx context.Context, oid string, data []byte) error {
	if err := checkOid(oid); err != nil {
		return err
	}
	release, err := io.mutate("write full")
	if err != nil {
		return err
	}
	defer release()
	return mapError(io.pool.WriteFull(ctx, oid, data), fmt.Sprintf("write full %q failed", oid))
}

// Append adds data to the end of the object, creating it if absent.
func (io *IOContext) Append(ctx context.Context, oid string, data []byte) error {
	if err := checkOid(oid); err != nil {
		return err
	}
	release, err := io.mutate("append")
	if err != nil {
		return err
	}
	defer release()
	return mapError(io.pool.Append(ctx, oid, data), fmt.Sprintf("append %q failed", oid))
}

// Truncate sets the object size, discarding the tail or zero-extending.
func (io *IOContext) Truncate(ctx context.Context, oid string, size uint64) error {
	if err := checkOid(oid); err != nil {
		return err
	}
	release, err := io.mutate("truncate")
	if err != nil {
		return err
	}
	defer release()
	return mapError(io.pool.Truncate(ctx, oid, size), fmt.Sprintf("truncate %q failed", oid))
}

// Read reads up to len(buf) bytes from offset and returns the number read,
// which is short at the end of the object.
func (io *IOContext) Read(ctx context.Context, oid string, buf []byte, offset uint64) (int, error) {
	if err := checkOid(oid); err != nil {
		return 0, err
	}
	snap, release, err := io.acquire("read")
	if err != nil {
		return 0, err
	}
	defer release()
	n, err := io.pool.Read(ctx, oid, snap, buf, offset)
	if err != nil {
		return 0, mapError(err, fmt.Sprintf("read %q failed", oid))
	}
	return n, nil
}

// Stat returns the size and modification time of the object.
func (io *IOContext) Stat(ctx context.Context, oid string) (ObjectStat, error) {
	if err := checkOid(oid); err != nil {
		return ObjectStat{}, err
	}
	snap, release, err := io.acquire("stat")
	if err != nil {
		return ObjectStat{}, err
	}
	defer release()
	st, err := io.pool.Stat(ctx, oid, snap)
	if err != nil {
		return ObjectStat{}, mapError(err, fmt.Sprintf("stat %q failed", oid))
	}
	return st, nil
}

// Delete removes the object.
func (io *IOContext) Delete(ctx context.Context, oid string) error {
	if err := checkOid(oid); err != nil {
		return err
	}
	release, err := io.mutate("delete")
	if err != nil {
		return err
	}
	defer release()
	return mapError(io.pool.Remove(ctx, oid), fmt.Sprintf("delete %q failed", oid))
}

// GetPoolStats returns pool-level usage.
func (io *IOContext) GetPoolStats(ctx context.Context) (PoolStat, error) {
	_, release, err := io.acquire("get pool stats")
	if err != nil {
		return PoolStat{}, err
	}
	defer release()
	st, err := io.pool.Usage(ctx)
	if err != nil {
		return PoolStat{}, mapError(err, "get pool stats failed")
	}
	return st, nil
}

// ListObjects returns every object id in the pool. Use ListObjectsPartial for
// large pools.
func (io *IOContext) ListObjects(ctx context.Context) ([]string, error) {
	l, err := io.openCursor(0)
	if err != nil {
		return nil, err
	}
	defer l.Close()

	var all []string
	for {
		n, err := l.NextN(ctx, 0)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return all, nil
		}
		all = append(all, l.batch...)
	}
}

// ListObjectsPartial returns a cursor that lists the pool chunkSize ids at a
// time. The caller should Close it when done.
func (io *IOContext) ListObjectsPartial(chunkSize int) (*ListCtx, error) {
	if chunkSize <= 0 {
		return nil, errs.Newf(errs.ErrKindInvalidArgument, "chunk size must be positive, got %d", chunkSize)
	}
	return io.openCursor(chunkSize)
}

func (io *IOContext) openCursor(chunk int) (*ListCtx, error) {
	io.mu.Lock()
	defer io.mu.Unlock()
	if io.closed {
		return nil, errs.Newf(errs.ErrKindInvalidState, "list on closed io context for pool %q", io.name)
	}
	if !io.conn.alive() {
		return nil, errInvalidState("list requires a connected session")
	}
	l := &ListCtx{io: io, chunk: chunk, pos: transport.Start}
	io.cursors[l] = struct{}{}
	return l, nil
}

func (io *IOContext) dropCursor(l *ListCtx) {
	io.mu.Lock()
	delete(io.cursors, l)
	io.mu.Unlock()
}

// SetReadSnap makes Read and Stat observe objects as they were at snapshot
// id. SnapHead restores reads of the live state. Writes fail while a
// snapshot is set.
func (io *IOContext) SetReadSnap(id SnapID) error {
	io.mu.Lock()
	defer io.mu.Unlock()
	if io.closed {
		return errs.Newf(errs.ErrKindInvalidState, "set read snap on closed io context for pool %q", io.name)
	}
	io.readSnap = id
	return nil
}

// ReadSnap returns the snapshot reads are served from.
func (io *IOContext) ReadSnap() SnapID {
	io.mu.Lock()
	defer io.mu.Unlock()
	return io.readSnap
}

// Close releases the context. Cursors opened from it are invalidated and
// every later call fails with InvalidState. Close is idempotent.
func (io *IOContext) Close() error {
	io.mu.Lock()
	if io.closed {
		io.mu.Unlock()
		return nil
	}
	io.closed = true
	for l := range io.cursors {
		l.invalidate()
	}
	io.cursors = nil
	io.mu.Unlock()

	io.conn.forget(io)
	err := io.pool.Close()
	io.log.Debug("io context closed")
	return mapError(err, "close io context failed")
}
