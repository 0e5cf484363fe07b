package sqldb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/koustreak/radosgo/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRebind(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{`SELECT 1`, `SELECT 1`},
		{`SELECT a FROM t WHERE x = ? AND y = ?`, `SELECT a FROM t WHERE x = $1 AND y = $2`},
		{`SELECT '?' FROM t WHERE x = ?`, `SELECT '?' FROM t WHERE x = $1`},
		{`SELECT "a?b" FROM t WHERE x = ? LIMIT ?`, `SELECT "a?b" FROM t WHERE x = $1 LIMIT $2`},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, rebind(tc.in))
	}

	assert.Equal(t, `x = $1`, postgresDialect.q(`x = ?`))
	assert.Equal(t, `x = ?`, mysqlDialect.q(`x = ?`))
}

func TestDialectFor(t *testing.T) {
	d, ok := dialectFor(DriverPostgres)
	require.True(t, ok)
	assert.True(t, d.numbered)
	assert.Len(t, d.schema, 4)

	d, ok = dialectFor(DriverMySQL)
	require.True(t, ok)
	assert.False(t, d.numbered)

	_, ok = dialectFor("sqlite")
	assert.False(t, ok)
}

func TestMapError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"no rows", sql.ErrNoRows, transport.StatusNotFound},
		{"wrapped no rows", fmt.Errorf("scan: %w", sql.ErrNoRows), transport.StatusNotFound},
		{"deadline", context.DeadlineExceeded, transport.StatusTimedOut},
		{"conn done", sql.ErrConnDone, transport.StatusShutdown},
		{"bad conn", driver.ErrBadConn, transport.StatusRefused},
		{"mysql invalid conn", gomysql.ErrInvalidConn, transport.StatusRefused},
		{"pg unique", &pgconn.PgError{Code: "23505"}, transport.StatusExists},
		{"pg deadlock", &pgconn.PgError{Code: "40P01"}, transport.StatusAgain},
		{"pg auth", &pgconn.PgError{Code: "28P01"}, transport.StatusPerm},
		{"pg connection class", &pgconn.PgError{Code: "08006"}, transport.StatusRefused},
		{"pg too many conns", &pgconn.PgError{Code: "53300"}, transport.StatusBusy},
		{"pg other", &pgconn.PgError{Code: "42601"}, transport.StatusIO},
		{"mysql duplicate", &gomysql.MySQLError{Number: 1062}, transport.StatusExists},
		{"mysql deadlock", &gomysql.MySQLError{Number: 1213}, transport.StatusAgain},
		{"mysql access", &gomysql.MySQLError{Number: 1045}, transport.StatusPerm},
		{"mysql too long", &gomysql.MySQLError{Number: 1406}, transport.StatusNameTooLong},
		{"mysql unknown db", &gomysql.MySQLError{Number: 1049}, transport.StatusRefused},
		{"mysql other", &gomysql.MySQLError{Number: 1064}, transport.StatusIO},
		{"passthrough", transport.Errorf(transport.StatusPerm, "inner", nil), transport.StatusPerm},
		{"plain", errors.New("boom"), transport.StatusIO},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, transport.StatusOf(mapError(tc.err, "op")))
		})
	}
	assert.NoError(t, mapError(nil, "op"))
}

func TestConfigFrom(t *testing.T) {
	_, err := ConfigFrom(DriverPostgres, transport.Config{})
	assert.Equal(t, transport.StatusInvalid, transport.StatusOf(err))

	c, err := ConfigFrom(DriverMySQL, transport.Config{
		OptDSN:            "rados:rados@tcp(localhost:3306)/rados",
		OptMaxConns:       "4",
		OptMinConns:       "1",
		OptConnectTimeout: "3",
		OptPools:          "a,b",
	})
	require.NoError(t, err)
	assert.Equal(t, DriverMySQL, c.Driver)
	assert.Equal(t, int32(4), c.MaxConns)
	assert.Equal(t, int32(1), c.MinConns)
	assert.Equal(t, 3*time.Second, c.ConnectTimeout)
	assert.Equal(t, []string{"a", "b"}, c.Pools)
	assert.Equal(t, defaultCapacityKb, c.CapacityKb)

	_, err = ConfigFrom(DriverPostgres, transport.Config{OptDSN: "x", OptMinConns: "9", OptMaxConns: "2"})
	assert.Equal(t, transport.StatusInvalid, transport.StatusOf(err))

	_, err = ConfigFrom(DriverPostgres, transport.Config{OptDSN: "x", OptMaxConns: "lots"})
	assert.Error(t, err)
}

func TestNew_UnknownDriver(t *testing.T) {
	_, err := New(context.Background(), DefaultConfig("sqlite", "file::memory:"), "")
	assert.Equal(t, transport.StatusInvalid, transport.StatusOf(err))
}

// TestLive runs the backend against real servers named by
// RADOS_TEST_POSTGRES_DSN and RADOS_TEST_MYSQL_DSN.
func TestLive(t *testing.T) {
	for driverName, env := range map[string]string{
		DriverPostgres: "RADOS_TEST_POSTGRES_DSN",
		DriverMySQL:    "RADOS_TEST_MYSQL_DSN",
	} {
		t.Run(driverName, func(t *testing.T) {
			dsn := os.Getenv(env)
			if dsn == "" {
				t.Skip(env + " not set")
			}
			runLive(t, driverName, dsn)
		})
	}
}

func runLive(t *testing.T, driverName, dsn string) {
	ctx := context.Background()
	c, err := Dial(ctx, driverName, transport.Config{OptDSN: dsn})
	require.NoError(t, err)
	defer c.Close()

	pool := "t-" + uuid.NewString()[:8]
	require.NoError(t, c.CreatePool(ctx, pool))
	defer func() { _ = c.DeletePool(ctx, pool) }()
	assert.Equal(t, transport.StatusExists, transport.StatusOf(c.CreatePool(ctx, pool)))

	p, err := c.OpenPool(ctx, pool)
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.WriteFull(ctx, "b", []byte("hello")))
	require.NoError(t, p.Write(ctx, "b", []byte("XY"), 7))
	buf := make([]byte, 16)
	n, err := p.Read(ctx, "b", transport.SnapHead, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello\x00\x00XY"), buf[:n])

	snap, err := p.CreateSnap(ctx, "s1")
	require.NoError(t, err)
	require.NoError(t, p.WriteFull(ctx, "a", []byte("new")))
	require.NoError(t, p.Truncate(ctx, "b", 2))

	ids, err := p.List(ctx, transport.Start, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids)
	ids, err = p.List(ctx, transport.Cursor("a"), 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids)

	require.NoError(t, p.Rollback(ctx, "a", snap))
	require.NoError(t, p.Rollback(ctx, "b", snap))
	_, err = p.Stat(ctx, "a", transport.SnapHead)
	assert.Equal(t, transport.StatusNotFound, transport.StatusOf(err))
	st, err := p.Stat(ctx, "b", transport.SnapHead)
	require.NoError(t, err)
	assert.Equal(t, uint64(9), st.Size)

	assert.Equal(t, transport.StatusNotFound, transport.StatusOf(p.Remove(ctx, "a")))
	require.NoError(t, p.RemoveSnap(ctx, "s1"))
	_, err = p.LookupSnap(ctx, "s1")
	assert.Equal(t, transport.StatusNotFound, transport.StatusOf(err))
}
