package rados

import (
	"context"
	"testing"
	"time"

	"github.com/koustreak/radosgo/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, io *IOContext, oid string) []byte {
	t.Helper()
	st, err := io.Stat(context.Background(), oid)
	require.NoError(t, err)
	buf := make([]byte, st.Size+16)
	n, err := io.Read(context.Background(), oid, buf, 0)
	require.NoError(t, err)
	return buf[:n]
}

func TestIOContext_Identity(t *testing.T) {
	eachTransport(t, func(t *testing.T, c *Conn) {
		io := openIOContext(t, c, "metadata")

		id, err := c.LookupPool(context.Background(), "metadata")
		require.NoError(t, err)
		assert.Equal(t, id, io.GetPoolID())
		assert.Equal(t, "metadata", io.GetPoolName())
	})
}

func TestWriteFull_Truncates(t *testing.T) {
	eachTransport(t, func(t *testing.T, c *Conn) {
		ctx := context.Background()
		io := openIOContext(t, c, "data")

		require.NoError(t, io.WriteFull(ctx, "obj", []byte("a much longer value")))
		require.NoError(t, io.WriteFull(ctx, "obj", []byte("short")))
		assert.Equal(t, []byte("short"), readAll(t, io, "obj"))

		buf := []byte("prefix-and-garbage")
		require.NoError(t, io.WriteFull(ctx, "obj", buf[:6]))
		assert.Equal(t, []byte("prefix"), readAll(t, io, "obj"))
	})
}

func TestWrite_AtOffset(t *testing.T) {
	eachTransport(t, func(t *testing.T, c *Conn) {
		ctx := context.Background()
		io := openIOContext(t, c, "data")

		require.NoError(t, io.Write(ctx, "obj", []byte("hello world"), 0))
		require.NoError(t, io.Write(ctx, "obj", []byte("WORLD"), 6))
		assert.Equal(t, []byte("hello WORLD"), readAll(t, io, "obj"))

		require.NoError(t, io.Write(ctx, "sparse", []byte("x"), 3))
		assert.Equal(t, []byte{0, 0, 0, 'x'}, readAll(t, io, "sparse"))
	})
}

func TestAppend_Accumulates(t *testing.T) {
	eachTransport(t, func(t *testing.T, c *Conn) {
		ctx := context.Background()
		io := openIOContext(t, c, "data")

		for _, part := range []string{"a", "bc", "def"} {
			require.NoError(t, io.Append(ctx, "log", []byte(part)))
		}
		assert.Equal(t, []byte("abcdef"), readAll(t, io, "log"))
	})
}

func TestTruncate(t *testing.T) {
	eachTransport(t, func(t *testing.T, c *Conn) {
		ctx := context.Background()
		io := openIOContext(t, c, "data")
		require.NoError(t, io.WriteFull(ctx, "obj", []byte("0123456789")))

		require.NoError(t, io.Truncate(ctx, "obj", 10))
		assert.Equal(t, []byte("0123456789"), readAll(t, io, "obj"), "same size is a no-op")

		require.NoError(t, io.Truncate(ctx, "obj", 4))
		assert.Equal(t, []byte("0123"), readAll(t, io, "obj"))

		require.NoError(t, io.Truncate(ctx, "obj", 6))
		assert.Equal(t, []byte("0123\x00\x00"), readAll(t, io, "obj"))

		require.NoError(t, io.Truncate(ctx, "fresh", 3))
		assert.Equal(t, []byte{0, 0, 0}, readAll(t, io, "fresh"), "truncate creates a missing object")
	})
}

func TestRead_Bounds(t *testing.T) {
	eachTransport(t, func(t *testing.T, c *Conn) {
		ctx := context.Background()
		io := openIOContext(t, c, "data")
		require.NoError(t, io.WriteFull(ctx, "obj", []byte("abcdef")))

		buf := make([]byte, 4)
		n, err := io.Read(ctx, "obj", buf, 4)
		require.NoError(t, err)
		assert.Equal(t, "ef", string(buf[:n]))

		n, err = io.Read(ctx, "obj", buf, 100)
		require.NoError(t, err)
		assert.Zero(t, n)

		n, err = io.Read(ctx, "obj", nil, 0)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestStat(t *testing.T) {
	eachTransport(t, func(t *testing.T, c *Conn) {
		ctx := context.Background()
		io := openIOContext(t, c, "data")
		before := time.Now().Add(-time.Second)
		require.NoError(t, io.WriteFull(ctx, "obj", []byte("12345")))

		st, err := io.Stat(ctx, "obj")
		require.NoError(t, err)
		assert.Equal(t, uint64(5), st.Size)
		assert.True(t, st.ModTime.After(before))
	})
}

func TestMissingObject(t *testing.T) {
	eachTransport(t, func(t *testing.T, c *Conn) {
		ctx := context.Background()
		io := openIOContext(t, c, "data")

		_, err := io.Stat(ctx, "ghost")
		assert.True(t, IsNotFound(err))
		assert.Equal(t, transport.StatusNotFound, StatusOf(err))

		_, err = io.Read(ctx, "ghost", make([]byte, 8), 0)
		assert.True(t, IsNotFound(err))

		assert.True(t, IsNotFound(io.Delete(ctx, "ghost")))
	})
}

func TestDelete(t *testing.T) {
	eachTransport(t, func(t *testing.T, c *Conn) {
		ctx := context.Background()
		io := openIOContext(t, c, "data")
		require.NoError(t, io.WriteFull(ctx, "obj", []byte("x")))
		require.NoError(t, io.Delete(ctx, "obj"))
		_, err := io.Stat(ctx, "obj")
		assert.True(t, IsNotFound(err))
	})
}

func TestInvalidArguments(t *testing.T) {
	eachTransport(t, func(t *testing.T, c *Conn) {
		ctx := context.Background()
		io := openIOContext(t, c, "data")

		assert.True(t, IsInvalidArgument(io.WriteFull(ctx, "", []byte("x"))))
		assert.True(t, IsInvalidArgument(io.Append(ctx, "", nil)))
		_, err := io.Read(ctx, "", nil, 0)
		assert.True(t, IsInvalidArgument(err))
		_, err = io.ListObjectsPartial(0)
		assert.True(t, IsInvalidArgument(err))
		assert.True(t, IsInvalidArgument(io.CreateSnap(ctx, "")))

		err = io.Write(ctx, "big", []byte("x"), transport.MaxObjectSize)
		assert.True(t, IsInvalidArgument(err))
		assert.Equal(t, transport.StatusTooBig, StatusOf(err))
	})
}

func TestAuid(t *testing.T) {
	eachTransport(t, func(t *testing.T, c *Conn) {
		ctx := context.Background()
		io := openIOContext(t, c, "data")
		require.NoError(t, io.SetAuid(ctx, 42))
		auid, err := io.GetAuid(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(42), auid)
	})
}

func TestPoolStats(t *testing.T) {
	eachTransport(t, func(t *testing.T, c *Conn) {
		ctx := context.Background()
		io := openIOContext(t, c, "data")
		require.NoError(t, io.WriteFull(ctx, "a", []byte("abc")))
		require.NoError(t, io.WriteFull(ctx, "b", []byte("de")))
		require.NoError(t, io.CreateSnap(ctx, "s"))

		st, err := io.GetPoolStats(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(2), st.NumObjects)
		assert.Equal(t, uint64(5), st.NumBytes)
		assert.Equal(t, uint64(1), st.NumKb)
		assert.Equal(t, uint64(1), st.NumSnaps)
	})
}

func TestClosedIOContext(t *testing.T) {
	eachTransport(t, func(t *testing.T, c *Conn) {
		ctx := context.Background()
		io, err := c.OpenIOContext(ctx, "data")
		require.NoError(t, err)
		require.NoError(t, io.Close())
		require.NoError(t, io.Close(), "close is idempotent")

		assert.True(t, IsInvalidState(io.WriteFull(ctx, "obj", []byte("x"))))
		_, err = io.Read(ctx, "obj", make([]byte, 1), 0)
		assert.True(t, IsInvalidState(err))
		_, err = io.Stat(ctx, "obj")
		assert.True(t, IsInvalidState(err))
		_, err = io.ListObjects(ctx)
		assert.True(t, IsInvalidState(err))
		assert.True(t, IsInvalidState(io.CreateSnap(ctx, "s")))
		assert.True(t, IsInvalidState(io.SetReadSnap(SnapHead)))
	})
}

func TestDeletedPool(t *testing.T) {
	eachTransport(t, func(t *testing.T, c *Conn) {
		ctx := context.Background()
		require.NoError(t, c.MakePool(ctx, "doomed"))
		io := openIOContext(t, c, "doomed")
		require.NoError(t, c.DeletePool(ctx, "doomed"))

		assert.True(t, IsNotFound(io.WriteFull(ctx, "obj", []byte("x"))))
	})
}

func TestConcurrentWriters(t *testing.T) {
	eachTransport(t, func(t *testing.T, c *Conn) {
		ctx := context.Background()
		io := openIOContext(t, c, "data")

		done := make(chan error, 8)
		for i := 0; i < 8; i++ {
			go func(i int) {
				done <- io.Append(ctx, "shared", []byte{byte('a' + i)})
			}(i)
		}
		for i := 0; i < 8; i++ {
			require.NoError(t, <-done)
		}
		assert.Len(t, readAll(t, io, "shared"), 8)
	})
}
