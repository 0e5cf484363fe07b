package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/radosgo/internal/transport/memory"
	"github.com/koustreak/radosgo/rados"
)

// cli runs radosctl invocations against one in-process cluster.
type cli struct {
	t    *testing.T
	host string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	host := "radosctl-" + t.Name()
	t.Cleanup(func() { memory.Drop(host) })
	return &cli{t: t, host: host}
}

func (c *cli) args(args ...string) []string {
	return append([]string{"--transport", "memory", "--option", "mon_host=" + c.host}, args...)
}

func (c *cli) exec(stdin string, args ...string) (string, error) {
	c.t.Helper()
	rootCmd, cleanup := newRootCmd()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(c.args(args...))

	err := rootCmd.ExecuteContext(context.Background())
	require.NoError(c.t, cleanup())
	return out.String(), err
}

func (c *cli) run(args ...string) string {
	c.t.Helper()
	out, err := c.exec("", args...)
	require.NoError(c.t, err, "radosctl %s", strings.Join(args, " "))
	return out
}

func TestParseOptions(t *testing.T) {
	got := parseOptions([]string{"a=1", " b =x=y", "novalue", "=empty", "c="})
	assert.Equal(t, map[string]string{"a": "1", "b": "x=y", "c": ""}, got)
	assert.Nil(t, parseOptions(nil))
}

func TestPools(t *testing.T) {
	c := newCLI(t)

	assert.Equal(t, "data\nmetadata\nrbd\n", c.run("lspools"))

	assert.Contains(t, c.run("mkpool", "images"), "successfully created pool images")
	assert.Equal(t, "data\nmetadata\nrbd\nimages\n", c.run("lspools"))

	_, err := c.exec("", "mkpool", "images")
	assert.True(t, rados.IsAlreadyExists(err))

	_, err = c.exec("", "rmpool", "images")
	assert.Error(t, err, "rmpool requires confirmation")

	c.run("rmpool", "images", "--yes-i-really-mean-it")
	assert.Equal(t, "data\nmetadata\nrbd\n", c.run("lspools"))
}

func TestObjects(t *testing.T) {
	c := newCLI(t)

	_, err := c.exec("hello", "-p", "data", "put", "greeting", "-")
	require.NoError(t, err)
	_, err = c.exec(", world", "-p", "data", "append", "greeting", "-")
	require.NoError(t, err)

	assert.Equal(t, "hello, world", c.run("-p", "data", "get", "greeting"))
	assert.Contains(t, c.run("-p", "data", "stat", "greeting"), "data/greeting mtime")
	assert.Contains(t, c.run("-p", "data", "stat", "greeting"), "size 12")

	_, err = c.exec("J", "-p", "data", "put", "--offset", "0", "greeting", "-")
	require.NoError(t, err)
	assert.Equal(t, "Jello, world", c.run("-p", "data", "get", "greeting"))

	c.run("-p", "data", "truncate", "greeting", "5")
	assert.Equal(t, "Jello", c.run("-p", "data", "get", "greeting"))

	_, err = c.exec("", "-p", "data", "truncate", "greeting", "five")
	assert.Error(t, err)

	c.run("-p", "data", "rm", "greeting")
	_, err = c.exec("", "-p", "data", "get", "greeting")
	assert.True(t, rados.IsNotFound(err))
}

func TestObjects_Files(t *testing.T) {
	c := newCLI(t)
	dir := t.TempDir()

	src := filepath.Join(dir, "in.bin")
	require.NoError(t, os.WriteFile(src, []byte{0, 1, 2, 3}, 0o644))
	c.run("-p", "rbd", "put", "blob", src)

	dst := filepath.Join(dir, "out.bin")
	c.run("-p", "rbd", "get", "blob", dst)
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 1, 2, 3}, got)

	_, err = c.exec("", "-p", "rbd", "put", "blob", filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestLs(t *testing.T) {
	c := newCLI(t)
	for _, oid := range []string{"c", "a", "b"} {
		_, err := c.exec(oid, "-p", "data", "put", oid, "-")
		require.NoError(t, err)
	}

	out := c.run("-p", "data", "ls", "--chunk", "2")
	lines := strings.Fields(out)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, lines)

	assert.Empty(t, c.run("-p", "metadata", "ls"))
}

func TestNoPool(t *testing.T) {
	c := newCLI(t)
	_, err := c.exec("", "ls")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no pool given")
}

func TestSnaps(t *testing.T) {
	c := newCLI(t)

	_, err := c.exec("v1", "-p", "data", "put", "doc", "-")
	require.NoError(t, err)
	assert.Contains(t, c.run("-p", "data", "mksnap", "before"), "created pool data snap before")

	_, err = c.exec("v2", "-p", "data", "put", "doc", "-")
	require.NoError(t, err)
	assert.Equal(t, "v2", c.run("-p", "data", "get", "doc"))

	out := c.run("-p", "data", "lssnap")
	assert.Contains(t, out, "\tbefore\t")
	assert.Contains(t, out, "1 snaps")

	c.run("-p", "data", "rollback", "doc", "before")
	assert.Equal(t, "v1", c.run("-p", "data", "get", "doc"))

	_, err = c.exec("", "-p", "data", "mksnap", "before")
	assert.True(t, rados.IsAlreadyExists(err))

	c.run("-p", "data", "rmsnap", "before")
	assert.Contains(t, c.run("-p", "data", "lssnap"), "0 snaps")

	_, err = c.exec("", "-p", "data", "rollback", "doc", "before")
	assert.True(t, rados.IsNotFound(err))
}

func TestDf(t *testing.T) {
	c := newCLI(t)
	_, err := c.exec(strings.Repeat("x", 2048), "-p", "data", "put", "big", "-")
	require.NoError(t, err)

	out := c.run("df")
	assert.Contains(t, out, "POOL")
	assert.Regexp(t, `data\s+2\s+1\s+0`, out)
	assert.Contains(t, out, "1 objects")
}

func TestConfFile(t *testing.T) {
	host := "radosctl-" + t.Name()
	t.Cleanup(func() { memory.Drop(host) })

	path := filepath.Join(t.TempDir(), "ceph.conf")
	content := "[global]\ntransport = memory\nmon_host = " + host + "\nmemory_pools = alpha, beta\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	rootCmd, cleanup := newRootCmd()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"--conf", path, "lspools"})
	require.NoError(t, rootCmd.ExecuteContext(context.Background()))
	require.NoError(t, cleanup())
	assert.Equal(t, "alpha\nbeta\n", out.String())
}

func TestRun_ExitCodes(t *testing.T) {
	c := newCLI(t)
	ctx := context.Background()

	assert.Equal(t, 0, run(ctx, c.args("-p", "data", "truncate", "obj", "3")))
	assert.Equal(t, 2, run(ctx, c.args("-p", "data", "stat", "missing")))
	assert.Equal(t, 1, run(ctx, c.args("-p", "data", "truncate", "obj", "-1")))
	assert.Equal(t, 1, run(ctx, c.args("mkpool", "data")))
}
