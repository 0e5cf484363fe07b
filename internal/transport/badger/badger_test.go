package badger

import (
	"context"
	"fmt"
	"testing"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/koustreak/radosgo/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, extra transport.Config) transport.Cluster {
	t.Helper()
	cfg := transport.Config{OptCluster: t.Name()}
	for k, v := range extra {
		cfg[k] = v
	}
	c, err := Dial(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func openPool(t *testing.T, c transport.Cluster, name string) transport.Pool {
	t.Helper()
	p, err := c.OpenPool(context.Background(), name)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestDial_SeedsPools(t *testing.T) {
	ctx := context.Background()
	c := dial(t, transport.Config{OptPools: "alpha,beta", transport.OptFSID: "fixed-fsid"})

	pools, err := c.ListPools(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, pools)

	fsid, err := c.FSID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "fixed-fsid", fsid)
	assert.Greater(t, c.InstanceID(), uint64(0))
}

func TestDial_SharesStore(t *testing.T) {
	ctx := context.Background()
	a := dial(t, nil)
	b := dial(t, nil)
	assert.NotEqual(t, a.InstanceID(), b.InstanceID())

	require.NoError(t, openPool(t, a, "data").WriteFull(ctx, "shared", []byte("abc")))
	st, err := openPool(t, b, "data").Stat(ctx, "shared", transport.SnapHead)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), st.Size)
}

func TestPersistsOnDisk(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	c, err := Dial(ctx, transport.Config{OptPath: dir})
	require.NoError(t, err)
	p, err := c.OpenPool(ctx, "data")
	require.NoError(t, err)
	require.NoError(t, p.WriteFull(ctx, "kept", []byte("on disk")))
	fsid, _ := c.FSID(ctx)
	require.NoError(t, p.Close())
	require.NoError(t, c.Close())

	c, err = Dial(ctx, transport.Config{OptPath: dir})
	require.NoError(t, err)
	defer c.Close()
	again, _ := c.FSID(ctx)
	assert.Equal(t, fsid, again)

	p = openPool(t, c, "data")
	buf := make([]byte, 32)
	n, err := p.Read(ctx, "kept", transport.SnapHead, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "on disk", string(buf[:n]))
}

func TestPoolLifecycle(t *testing.T) {
	ctx := context.Background()
	c := dial(t, nil)

	require.NoError(t, c.CreatePool(ctx, "extra"))
	assert.Equal(t, transport.StatusExists, transport.StatusOf(c.CreatePool(ctx, "extra")))

	id, err := c.LookupPool(ctx, "extra")
	require.NoError(t, err)
	name, err := c.ReverseLookupPool(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "extra", name)

	p := openPool(t, c, "extra")
	require.NoError(t, p.WriteFull(ctx, "obj", []byte("x")))
	require.NoError(t, c.DeletePool(ctx, "extra"))

	_, err = p.Stat(ctx, "obj", transport.SnapHead)
	assert.Equal(t, transport.StatusNotFound, transport.StatusOf(err))
	_, err = c.LookupPool(ctx, "extra")
	assert.Equal(t, transport.StatusNotFound, transport.StatusOf(err))

	require.NoError(t, c.CreatePool(ctx, "extra"))
	newID, err := c.LookupPool(ctx, "extra")
	require.NoError(t, err)
	assert.NotEqual(t, id, newID)
	ids, err := openPool(t, c, "extra").List(ctx, transport.Start, 0)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestObjectOps(t *testing.T) {
	ctx := context.Background()
	p := openPool(t, dial(t, nil), "data")

	require.NoError(t, p.Write(ctx, "obj", []byte("abc"), 2))
	buf := make([]byte, 16)
	n, err := p.Read(ctx, "obj", transport.SnapHead, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 'a', 'b', 'c'}, buf[:n])

	require.NoError(t, p.Append(ctx, "obj", []byte("de")))
	require.NoError(t, p.Truncate(ctx, "obj", 4))
	st, err := p.Stat(ctx, "obj", transport.SnapHead)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), st.Size)

	require.NoError(t, p.WriteFull(ctx, "obj", []byte("z")))
	n, err = p.Read(ctx, "obj", transport.SnapHead, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "z", string(buf[:n]))

	usage, err := p.Usage(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), usage.NumObjects)
	assert.Equal(t, uint64(1), usage.NumBytes)

	require.NoError(t, p.Remove(ctx, "obj"))
	assert.Equal(t, transport.StatusNotFound, transport.StatusOf(p.Remove(ctx, "obj")))
	_, err = p.Read(ctx, "obj", transport.SnapHead, buf, 0)
	assert.Equal(t, transport.StatusNotFound, transport.StatusOf(err))
}

func TestList_ResumesAfterCursor(t *testing.T) {
	ctx := context.Background()
	p := openPool(t, dial(t, nil), "data")
	for i := 0; i < 12; i++ {
		require.NoError(t, p.WriteFull(ctx, fmt.Sprintf("k%02d", i), nil))
	}

	first, err := p.List(ctx, transport.Start, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"k00", "k01", "k02", "k03", "k04"}, first)

	rest, err := p.List(ctx, transport.Cursor(first[len(first)-1]), 0)
	require.NoError(t, err)
	assert.Len(t, rest, 7)
	assert.Equal(t, "k05", rest[0])

	done, err := p.List(ctx, transport.Cursor(rest[len(rest)-1]), 5)
	require.NoError(t, err)
	assert.Empty(t, done)
}

func TestSnapshots(t *testing.T) {
	ctx := context.Background()
	p := openPool(t, dial(t, nil), "data")

	require.NoError(t, p.WriteFull(ctx, "doc", []byte("old")))
	id, err := p.CreateSnap(ctx, "before")
	require.NoError(t, err)
	require.NoError(t, p.WriteFull(ctx, "doc", []byte("newer")))
	require.NoError(t, p.WriteFull(ctx, "later", []byte("l")))

	st, err := p.Stat(ctx, "doc", id)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), st.Size)

	info, err := p.SnapInfo(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "before", info.Name)

	got, err := p.LookupSnap(ctx, "before")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	require.NoError(t, p.Rollback(ctx, "doc", id))
	require.NoError(t, p.Rollback(ctx, "later", id))
	buf := make([]byte, 8)
	n, err := p.Read(ctx, "doc", transport.SnapHead, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "old", string(buf[:n]))
	_, err = p.Stat(ctx, "later", transport.SnapHead)
	assert.Equal(t, transport.StatusNotFound, transport.StatusOf(err))

	require.NoError(t, p.RemoveSnap(ctx, "before"))
	_, err = p.Stat(ctx, "doc", id)
	assert.Equal(t, transport.StatusNotFound, transport.StatusOf(err))
	again, err := p.CreateSnap(ctx, "before")
	require.NoError(t, err)
	assert.Greater(t, uint64(again), uint64(id))

	ids, err := p.ListSnaps(ctx)
	require.NoError(t, err)
	assert.Equal(t, []transport.SnapID{again}, ids)
}

func countKeys(t *testing.T, p transport.Pool, prefix []byte) int {
	t.Helper()
	n := 0
	err := p.(*Pool).client.s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	require.NoError(t, err)
	return n
}

func TestCreateSnap_LargePool(t *testing.T) {
	ctx := context.Background()
	p := openPool(t, dial(t, nil), "data")

	const objects = 340 // 340 x 64 KiB > 21 MiB
	payload := make([]byte, 64<<10)
	for i := 0; i < objects; i++ {
		payload[0] = byte(i)
		require.NoError(t, p.WriteFull(ctx, fmt.Sprintf("blob-%04d", i), payload))
	}

	id, err := p.CreateSnap(ctx, "big")
	require.NoError(t, err)
	assert.Equal(t, objects, countKeys(t, p, snapObjectPrefix(p.ID(), id)))

	require.NoError(t, p.WriteFull(ctx, "blob-0007", []byte("changed")))
	st, err := p.Stat(ctx, "blob-0007", id)
	require.NoError(t, err)
	assert.Equal(t, uint64(64<<10), st.Size)

	buf := make([]byte, 1)
	last := objects - 1
	_, err = p.Read(ctx, fmt.Sprintf("blob-%04d", last), id, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, byte(last), buf[0])

	usage, err := p.Usage(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), usage.NumSnaps)
}

func TestCreateSnap_ManySmallObjects(t *testing.T) {
	ctx := context.Background()
	p := openPool(t, dial(t, nil), "data")

	const objects = 120000
	wb := p.(*Pool).client.s.db.NewWriteBatch()
	for i := 0; i < objects; i++ {
		require.NoError(t, wb.Set(objectKey(p.ID(), fmt.Sprintf("o%06d", i)), encodeObject([]byte{1}, time.Now())))
	}
	require.NoError(t, wb.Flush())

	id, err := p.CreateSnap(ctx, "wide")
	require.NoError(t, err)
	assert.Equal(t, objects, countKeys(t, p, snapObjectPrefix(p.ID(), id)))

	ids, err := p.ListSnaps(ctx)
	require.NoError(t, err)
	assert.Equal(t, []transport.SnapID{id}, ids)
}

func TestCreateSnap_CanceledContext(t *testing.T) {
	p := openPool(t, dial(t, nil), "data")
	require.NoError(t, p.WriteFull(context.Background(), "doc", []byte("x")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.CreateSnap(ctx, "gone")
	assert.Equal(t, transport.StatusTimedOut, transport.StatusOf(err))

	_, err = p.LookupSnap(context.Background(), "gone")
	assert.Equal(t, transport.StatusNotFound, transport.StatusOf(err))
	assert.Zero(t, countKeys(t, p, snapObjectPoolPrefix(p.ID())))
}

func TestReadOnlyCaps(t *testing.T) {
	ctx := context.Background()
	dial(t, nil)
	reader := dial(t, transport.Config{transport.OptCaps: "allow r"})

	assert.Equal(t, transport.StatusPerm, transport.StatusOf(reader.CreatePool(ctx, "nope")))
	p := openPool(t, reader, "data")
	assert.Equal(t, transport.StatusPerm, transport.StatusOf(p.WriteFull(ctx, "x", nil)))
	_, err := p.List(ctx, transport.Start, 0)
	assert.NoError(t, err)
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"key not found", badgerdb.ErrKeyNotFound, transport.StatusNotFound},
		{"conflict", badgerdb.ErrConflict, transport.StatusAgain},
		{"canceled", context.Canceled, transport.StatusTimedOut},
		{"other", fmt.Errorf("disk on fire"), transport.StatusIO},
		{"status passes through", transport.Errorf(transport.StatusExists, "x", nil), transport.StatusExists},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, transport.StatusOf(mapError(tt.err, "op")))
		})
	}
	assert.NoError(t, mapError(nil, "op"))
}
