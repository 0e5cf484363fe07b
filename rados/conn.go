// Package rados is a client library for a pool-organized object storage
// cluster.
//
// A Conn is one session to the cluster. It is configured while unconnected,
// then connected, and IOContexts are opened from it, one per pool. Object
// I/O, snapshots and listing all go through an IOContext. Resources are
// released in the reverse order they were acquired:
//
//	conn, err := rados.NewConn("admin")
//	if err != nil { ... }
//	if err := conn.ReadDefaultConfigFile(); err != nil && !rados.IsNotFound(err) { ... }
//	if err := conn.Connect(ctx); err != nil { ... }
//	defer conn.Shutdown()
//
//	ioctx, err := conn.OpenIOContext(ctx, "data")
//	if err != nil { ... }
//	defer ioctx.Close()
//
//	err = ioctx.WriteFull(ctx, "greeting", []byte("hello"))
//
// The cluster is reached through a pluggable transport selected by the
// "transport" option. The in-process "memory" transport is the default.
package rados

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/koustreak/radosgo/internal/conf"
	"github.com/koustreak/radosgo/internal/errs"
	"github.com/koustreak/radosgo/internal/logger"
	"github.com/koustreak/radosgo/internal/transport"

	// Registered transports.
	_ "github.com/koustreak/radosgo/internal/transport/badger"
	_ "github.com/koustreak/radosgo/internal/transport/memory"
	_ "github.com/koustreak/radosgo/internal/transport/minio"
	_ "github.com/koustreak/radosgo/internal/transport/sqldb"
)

// Options read by the client itself rather than by a transport.
const (
	OptTransport = transport.OptTransport
	OptLogLevel  = "log_level"
	OptLogFormat = "log_format"
	OptCluster   = "cluster"

	// DefaultTransport is dialled when the transport option is unset.
	DefaultTransport = "memory"
)

type (
	ClusterStat = transport.ClusterStat
	PoolStat    = transport.PoolStat
	ObjectStat  = transport.ObjectStat
	SnapID      = transport.SnapID
)

// SnapHead selects the live state of objects in SetReadSnap.
const SnapHead = transport.SnapHead

type connState int

const (
	stateUnconnected connState = iota
	stateConnected
	stateDestroyed
)

func (s connState) String() string {
	switch s {
	case stateUnconnected:
		return "unconnected"
	case stateConnected:
		return "connected"
	case stateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// Conn is a session to the cluster.
//
// SetConfigOption, Connect and Shutdown must not race with each other or with
// OpenIOContext. Every other method is safe for concurrent use.
type Conn struct {
	id string

	mu      sync.RWMutex // guards state, options, cluster, log
	state   connState
	options map[string]string
	cluster transport.Cluster
	log     *logger.Logger

	ctxMu  sync.Mutex
	ioctxs map[*IOContext]struct{}
}

// NewConn returns an unconnected session for client id, for example "admin".
func NewConn(id string) (*Conn, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errInvalidArgument("client id is empty")
	}
	return &Conn{
		id:      id,
		options: make(map[string]string),
		log:     logger.Global().With().Str("client", "client."+id).Logger(),
		ioctxs:  make(map[*IOContext]struct{}),
	}, nil
}

// ID returns the client id the Conn was created with.
func (c *Conn) ID() string {
	return c.id
}

// Name returns the entity name, "client.<id>".
func (c *Conn) Name() string {
	return "client." + c.id
}

// SetConfigOption sets a configuration option. Keys are normalized, so
// "mon host", "mon-host" and "mon_host" are the same option.
//
// Options set after Connect are recorded but do not affect the live session.
func (c *Conn) SetConfigOption(key, value string) error {
	k := conf.NormalizeKey(key)
	if k == "" {
		return errInvalidArgument("config option name is empty")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == stateDestroyed {
		return errInvalidState("cannot set config option on a shut down connection")
	}
	c.options[k] = value
	return nil
}

// GetConfigOption returns the value of a configuration option, or a NotFound
// error when it was never set.
func (c *Conn) GetConfigOption(key string) (string, error) {
	k := conf.NormalizeKey(key)
	if k == "" {
		return "", errInvalidArgument("config option name is empty")
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state == stateDestroyed {
		return "", errInvalidState("cannot read config option of a shut down connection")
	}
	if k == transport.OptName {
		return c.Name(), nil
	}
	v, ok := c.options[k]
	if !ok {
		return "", errs.Newf(errs.ErrKindNotFound, "config option %q is not set", k)
	}
	return v, nil
}

// ReadConfigFile merges the global, client and client.<id> sections of the
// file at path into the configuration. The $id, $name and $cluster
// metavariables in values are expanded.
func (c *Conn) ReadConfigFile(path string) error {
	values, err := conf.ReadFile(path, conf.GlobalSection, "client", c.Name())
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == stateDestroyed {
		return errInvalidState("cannot read config file into a shut down connection")
	}

	cluster := values[OptCluster]
	if cluster == "" {
		cluster = c.options[OptCluster]
	}
	if cluster == "" {
		cluster = "ceph"
	}
	conf.Expand(values, map[string]string{
		"id":      c.id,
		"name":    c.Name(),
		"cluster": cluster,
	})
	for k, v := range values {
		c.options[k] = v
	}
	c.log.DebugWith("read config file", map[string]interface{}{"path": path, "options": len(values)})
	return nil
}

// ReadDefaultConfigFile reads the first file that exists among $CEPH_CONF,
// /etc/ceph/ceph.conf, ~/.ceph/config and ./ceph.conf. It returns a NotFound
// error when none exists.
func (c *Conn) ReadDefaultConfigFile() error {
	for _, path := range conf.SearchPaths() {
		if _, err := os.Stat(path); err == nil {
			return c.ReadConfigFile(path)
		}
	}
	return errs.New(errs.ErrKindNotFound, "no config file found in "+strings.Join(conf.SearchPaths(), ", "))
}

// Connect opens the session using the current configuration. On failure the
// Conn stays unconnected and Connect may be retried after reconfiguring.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case stateConnected:
		return errInvalidState("already connected")
	case stateDestroyed:
		return errInvalidState("cannot connect a shut down connection")
	}

	cfg := transport.Config(c.options).Clone()
	cfg[transport.OptName] = c.Name()
	name := cfg.String(OptTransport, DefaultTransport)

	log := c.newLogger(cfg).With().Str("transport", name).Logger()

	cluster, err := transport.Dial(ctx, name, cfg)
	if err != nil {
		log.WarnWith("connect failed", err, nil)
		return errs.WithStatus(errs.ErrKindConnection,
			fmt.Sprintf("connect to %s cluster failed", name), transport.StatusOf(err), err)
	}

	c.cluster = cluster
	c.log = log.With().Uint64("instance", cluster.InstanceID()).Logger()
	c.state = stateConnected
	c.log.Debug("connected")
	return nil
}

func (c *Conn) newLogger(cfg transport.Config) *logger.Logger {
	level := cfg[OptLogLevel]
	format := cfg[OptLogFormat]
	if level == "" && format == "" {
		return c.log
	}
	lc := logger.DefaultConfig()
	if level != "" {
		lc.Level = level
	}
	if format != "" {
		lc.Format = format
	}
	return logger.New(lc).With().Str("client", c.Name()).Logger()
}

// session returns the live cluster and holds the read lock until release is
// called, so Shutdown waits for in-flight calls.
func (c *Conn) session(op string) (transport.Cluster, func(), error) {
	c.mu.RLock()
	if c.state != stateConnected {
		state := c.state
		c.mu.RUnlock()
		return nil, nil, errs.Newf(errs.ErrKindInvalidState, "%s requires a connected session (state %s)", op, state)
	}
	return c.cluster, c.mu.RUnlock, nil
}

// GetFSID returns the cluster's unique identifier.
func (c *Conn) GetFSID(ctx context.Context) (string, error) {
	cluster, release, err := c.session("get fsid")
	if err != nil {
		return "", err
	}
	defer release()
	fsid, err := cluster.FSID(ctx)
	if err != nil {
		return "", mapError(err, "get fsid failed")
	}
	return fsid, nil
}

// GetClusterStats returns cluster-wide usage.
func (c *Conn) GetClusterStats(ctx context.Context) (ClusterStat, error) {
	cluster, release, err := c.session("get cluster stats")
	if err != nil {
		return ClusterStat{}, err
	}
	defer release()
	st, err := cluster.Stat(ctx)
	if err != nil {
		return ClusterStat{}, mapError(err, "get cluster stats failed")
	}
	return st, nil
}

// ListPools returns the names of all pools, ordered by pool id.
func (c *Conn) ListPools(ctx context.Context) ([]string, error) {
	cluster, release, err := c.session("list pools")
	if err != nil {
		return nil, err
	}
	defer release()
	names, err := cluster.ListPools(ctx)
	if err != nil {
		return nil, mapError(err, "list pools failed")
	}
	return names, nil
}

// LookupPool returns the id of the named pool.
func (c *Conn) LookupPool(ctx context.Context, name string) (int64, error) {
	cluster, release, err := c.session("lookup pool")
	if err != nil {
		return 0, err
	}
	defer release()
	id, err := cluster.LookupPool(ctx, name)
	if err != nil {
		return 0, mapError(err, fmt.Sprintf("lookup pool %q failed", name))
	}
	return id, nil
}

// ReverseLookupPool returns the name of the pool with the given id.
func (c *Conn) ReverseLookupPool(ctx context.Context, id int64) (string, error) {
	cluster, release, err := c.session("reverse lookup pool")
	if err != nil {
		return "", err
	}
	defer release()
	name, err := cluster.ReverseLookupPool(ctx, id)
	if err != nil {
		return "", mapError(err, fmt.Sprintf("reverse lookup pool %d failed", id))
	}
	return name, nil
}

// MakePool creates a pool.
func (c *Conn) MakePool(ctx context.Context, name string) error {
	cluster, release, err := c.session("make pool")
	if err != nil {
		return err
	}
	defer release()
	if err := cluster.CreatePool(ctx, name); err != nil {
		return mapError(err, fmt.Sprintf("make pool %q failed", name))
	}
	c.log.DebugWith("pool created", map[string]interface{}{"pool": name})
	return nil
}

// DeletePool deletes a pool and all its objects and snapshots.
func (c *Conn) DeletePool(ctx context.Context, name string) error {
	cluster, release, err := c.session("delete pool")
	if err != nil {
		return err
	}
	defer release()
	if err := cluster.DeletePool(ctx, name); err != nil {
		return mapError(err, fmt.Sprintf("delete pool %q failed", name))
	}
	c.log.DebugWith("pool deleted", map[string]interface{}{"pool": name})
	return nil
}

// GetInstanceID returns the id the cluster assigned to this session.
func (c *Conn) GetInstanceID() (uint64, error) {
	cluster, release, err := c.session("get instance id")
	if err != nil {
		return 0, err
	}
	defer release()
	return cluster.InstanceID(), nil
}

// OpenIOContext opens an IOContext on the named pool. The caller must Close
// it before shutting the Conn down.
func (c *Conn) OpenIOContext(ctx context.Context, pool string) (*IOContext, error) {
	cluster, release, err := c.session("open io context")
	if err != nil {
		return nil, err
	}
	defer release()

	p, err := cluster.OpenPool(ctx, pool)
	if err != nil {
		return nil, mapError(err, fmt.Sprintf("open io context on pool %q failed", pool))
	}

	io := newIOContext(c, p)
	c.ctxMu.Lock()
	c.ioctxs[io] = struct{}{}
	c.ctxMu.Unlock()

	io.log.Debug("io context opened")
	return io, nil
}

func (c *Conn) forget(io *IOContext) {
	c.ctxMu.Lock()
	delete(c.ioctxs, io)
	c.ctxMu.Unlock()
}

// Shutdown ends the session. Every IOContext opened from the Conn must be
// closed first; otherwise Shutdown fails with an InvalidState error and the
// session stays up. After Shutdown every method fails with InvalidState.
func (c *Conn) Shutdown() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == stateDestroyed {
		return errInvalidState("connection already shut down")
	}

	c.ctxMu.Lock()
	live := len(c.ioctxs)
	c.ctxMu.Unlock()
	if live > 0 {
		return errs.Newf(errs.ErrKindInvalidState, "cannot shut down with %d open io context(s)", live)
	}

	var err error
	if c.cluster != nil {
		err = c.cluster.Close()
		c.cluster = nil
	}
	c.state = stateDestroyed
	c.log.Debug("shut down")
	if err != nil {
		return mapError(err, "shutdown failed")
	}
	return nil
}

// alive reports whether the Conn is still connected.
func (c *Conn) alive() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state == stateConnected
}
