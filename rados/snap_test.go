package rados

import (
	"context"
	"testing"
	"time"

	"github.com/koustreak/radosgo/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshots_Lifecycle(t *testing.T) {
	eachTransport(t, func(t *testing.T, c *Conn) {
		ctx := context.Background()
		io := openIOContext(t, c, "data")

		before := time.Now()
		require.NoError(t, io.CreateSnap(ctx, "nightly"))
		assert.True(t, IsAlreadyExists(io.CreateSnap(ctx, "nightly")))

		id, err := io.LookupSnap(ctx, "nightly")
		require.NoError(t, err)

		name, err := io.GetSnapName(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "nightly", name)

		stamp, err := io.GetSnapStamp(ctx, id)
		require.NoError(t, err)
		assert.WithinDuration(t, before, stamp, 5*time.Second)

		ids, err := io.ListSnaps(ctx)
		require.NoError(t, err)
		assert.Equal(t, []SnapID{id}, ids)

		require.NoError(t, io.RemoveSnap(ctx, "nightly"))
		_, err = io.LookupSnap(ctx, "nightly")
		assert.True(t, IsNotFound(err))
		_, err = io.GetSnapName(ctx, id)
		assert.True(t, IsNotFound(err))
		assert.True(t, IsNotFound(io.RemoveSnap(ctx, "nightly")))

		require.NoError(t, io.CreateSnap(ctx, "nightly"))
		again, err := io.LookupSnap(ctx, "nightly")
		require.NoError(t, err)
		assert.NotEqual(t, id, again, "snapshot ids are not reused")
	})
}

func TestSnapshots_ReadSnap(t *testing.T) {
	eachTransport(t, func(t *testing.T, c *Conn) {
		ctx := context.Background()
		io := openIOContext(t, c, "data")

		require.NoError(t, io.WriteFull(ctx, "obj", []byte("v1")))
		require.NoError(t, io.CreateSnap(ctx, "s1"))
		require.NoError(t, io.WriteFull(ctx, "obj", []byte("version two")))
		require.NoError(t, io.WriteFull(ctx, "later", []byte("x")))

		id, err := io.LookupSnap(ctx, "s1")
		require.NoError(t, err)
		require.NoError(t, io.SetReadSnap(id))
		assert.Equal(t, id, io.ReadSnap())

		assert.Equal(t, []byte("v1"), readAll(t, io, "obj"))
		_, err = io.Stat(ctx, "later")
		assert.True(t, IsNotFound(err), "objects created after the snapshot are absent")

		err = io.WriteFull(ctx, "obj", []byte("nope"))
		assert.True(t, IsInvalidState(err))
		assert.Equal(t, transport.StatusReadOnly, StatusOf(err))

		require.NoError(t, io.SetReadSnap(SnapHead))
		assert.Equal(t, []byte("version two"), readAll(t, io, "obj"))
	})
}

func TestSnapshots_ReadMissingSnap(t *testing.T) {
	eachTransport(t, func(t *testing.T, c *Conn) {
		ctx := context.Background()
		io := openIOContext(t, c, "data")
		require.NoError(t, io.WriteFull(ctx, "obj", []byte("x")))

		require.NoError(t, io.SetReadSnap(SnapID(9999)))
		_, err := io.Read(ctx, "obj", make([]byte, 1), 0)
		assert.True(t, IsNotFound(err))
	})
}

func TestRollback(t *testing.T) {
	eachTransport(t, func(t *testing.T, c *Conn) {
		ctx := context.Background()
		io := openIOContext(t, c, "data")

		require.NoError(t, io.WriteFull(ctx, "kept", []byte("original")))
		require.NoError(t, io.CreateSnap(ctx, "base"))
		require.NoError(t, io.WriteFull(ctx, "kept", []byte("clobbered")))
		require.NoError(t, io.WriteFull(ctx, "added", []byte("new")))

		require.NoError(t, io.Rollback(ctx, "kept", "base"))
		assert.Equal(t, []byte("original"), readAll(t, io, "kept"))

		require.NoError(t, io.Rollback(ctx, "added", "base"))
		_, err := io.Stat(ctx, "added")
		assert.True(t, IsNotFound(err), "rollback removes objects absent at the snapshot")

		assert.True(t, IsNotFound(io.Rollback(ctx, "kept", "missing")))
		assert.True(t, IsInvalidArgument(io.Rollback(ctx, "kept", "")))
	})
}

func TestSnapshots_IndependentPools(t *testing.T) {
	eachTransport(t, func(t *testing.T, c *Conn) {
		ctx := context.Background()
		data := openIOContext(t, c, "data")
		meta := openIOContext(t, c, "metadata")

		require.NoError(t, data.CreateSnap(ctx, "s"))
		_, err := meta.LookupSnap(ctx, "s")
		assert.True(t, IsNotFound(err))
		require.NoError(t, meta.CreateSnap(ctx, "s"))
	})
}
