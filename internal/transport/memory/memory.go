// Package memory provides an in-process implementation of transport.Cluster.
//
// Sessions dialled with the same mon_host share one cluster, so several
// clients in a process (or in a test) see each other's writes. Data lives
// only as long as the process.
//
// Usage:
//
//	cluster, err := transport.Dial(ctx, "memory", transport.Config{"mon_host": "unit-test"})
//	if err != nil { ... }
//	defer cluster.Close()
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/koustreak/radosgo/internal/transport"
)

// Option keys understood by this backend.
const (
	OptCluster    = "mon_host"
	OptPools      = "memory_pools"
	OptCapacityKb = "memory_capacity_kb"
)

// Name is the transport name this backend registers under.
const Name = "memory"

var (
	defaultPools      = []string{"data", "metadata", "rbd"}
	defaultCapacityKb = uint64(1 << 30) // 1 TiB
)

func init() {
	transport.Register(Name, Dial)
}

var (
	clustersMu sync.Mutex
	clusters   = make(map[string]*cluster)

	instanceSeq atomic.Uint64
)

// --- cluster state shared by all sessions ---

type object struct {
	data  []byte // never modified after the object is stored
	mtime time.Time
}

type snapshot struct {
	info    transport.SnapInfo
	objects map[string]*object
}

type pool struct {
	id      int64
	name    string
	auid    uint64
	objects map[string]*object
	sortMu  sync.Mutex
	sorted  []string // cached sorted keys, nil when stale
	snaps   map[transport.SnapID]*snapshot
	snapSeq uint64
	deleted bool
}

func newPool(id int64, name string) *pool {
	return &pool{
		id:      id,
		name:    name,
		objects: make(map[string]*object),
		snaps:   make(map[transport.SnapID]*snapshot),
	}
}

// keys returns the object ids in order. Callers hold the cluster lock for
// reading at least; sortMu serializes concurrent rebuilds of the cache.
func (p *pool) keys() []string {
	p.sortMu.Lock()
	defer p.sortMu.Unlock()
	if p.sorted == nil {
		p.sorted = make([]string, 0, len(p.objects))
		for oid := range p.objects {
			p.sorted = append(p.sorted, oid)
		}
		sort.Strings(p.sorted)
	}
	return p.sorted
}

func (p *pool) put(oid string, data []byte) {
	if _, ok := p.objects[oid]; !ok {
		p.sorted = nil
	}
	p.objects[oid] = &object{data: data, mtime: time.Now()}
}

func (p *pool) del(oid string) {
	delete(p.objects, oid)
	p.sorted = nil
}

type cluster struct {
	mu         sync.RWMutex
	fsid       string
	capacityKb uint64
	pools      map[string]*pool
	byID       map[int64]*pool
	poolSeq    int64
}

func (c *cluster) createPool(name string) *pool {
	c.poolSeq++
	p := newPool(c.poolSeq, name)
	c.pools[name] = p
	c.byID[p.id] = p
	return p
}

func getCluster(name string, cfg transport.Config) (*cluster, error) {
	clustersMu.Lock()
	defer clustersMu.Unlock()

	if c, ok := clusters[name]; ok {
		return c, nil
	}

	capacity, err := cfg.Uint64(OptCapacityKb, defaultCapacityKb)
	if err != nil {
		return nil, err
	}

	c := &cluster{
		fsid:       cfg.String(transport.OptFSID, uuid.NewString()),
		capacityKb: capacity,
		pools:      make(map[string]*pool),
		byID:       make(map[int64]*pool),
	}
	for _, poolName := range cfg.List(OptPools, defaultPools) {
		if err := transport.ValidateName("seed pool", poolName); err != nil {
			return nil, err
		}
		if _, dup := c.pools[poolName]; !dup {
			c.createPool(poolName)
		}
	}
	clusters[name] = c
	return c, nil
}

// Drop forgets the named in-process cluster. Sessions already dialled keep
// working against the dropped state; new sessions start from scratch.
func Drop(name string) {
	clustersMu.Lock()
	defer clustersMu.Unlock()
	delete(clusters, name)
}

// --- transport.Cluster implementation ---

// Client is a session to an in-process cluster.
type Client struct {
	c        *cluster
	caps     transport.Caps
	instance uint64
	closed   atomic.Bool
}

// Dial opens a session to the in-process cluster named by mon_host,
// creating it on first use.
func Dial(ctx context.Context, cfg transport.Config) (transport.Cluster, error) {
	if err := transport.CheckContext(ctx, "dial"); err != nil {
		return nil, err
	}
	caps, err := transport.ParseCaps(cfg[transport.OptCaps])
	if err != nil {
		return nil, err
	}
	c, err := getCluster(cfg.String(OptCluster, "localhost"), cfg)
	if err != nil {
		return nil, err
	}
	return &Client{
		c:        c,
		caps:     caps,
		instance: 4100 + instanceSeq.Add(1),
	}, nil
}

func (cl *Client) check(ctx context.Context, op string) error {
	if cl.closed.Load() {
		return transport.Errorf(transport.StatusNotConnected, op, nil)
	}
	return transport.CheckContext(ctx, op)
}

func (cl *Client) FSID(ctx context.Context) (string, error) {
	if err := cl.check(ctx, "fsid"); err != nil {
		return "", err
	}
	return cl.c.fsid, nil
}

func (cl *Client) Stat(ctx context.Context) (transport.ClusterStat, error) {
	if err := cl.check(ctx, "cluster stat"); err != nil {
		return transport.ClusterStat{}, err
	}
	cl.c.mu.RLock()
	defer cl.c.mu.RUnlock()

	var bytes, objects uint64
	for _, p := range cl.c.pools {
		for _, o := range p.objects {
			bytes += uint64(len(o.data))
		}
		objects += uint64(len(p.objects))
	}
	used := transport.KiB(bytes)
	avail := uint64(0)
	if used < cl.c.capacityKb {
		avail = cl.c.capacityKb - used
	}
	return transport.ClusterStat{
		Kb:         cl.c.capacityKb,
		KbUsed:     used,
		KbAvail:    avail,
		NumObjects: objects,
	}, nil
}

func (cl *Client) InstanceID() uint64 {
	return cl.instance
}

func (cl *Client) ListPools(ctx context.Context) ([]string, error) {
	if err := cl.check(ctx, "list pools"); err != nil {
		return nil, err
	}
	cl.c.mu.RLock()
	defer cl.c.mu.RUnlock()

	ids := make([]int64, 0, len(cl.c.byID))
	for id := range cl.c.byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = cl.c.byID[id].name
	}
	return names, nil
}

func (cl *Client) LookupPool(ctx context.Context, name string) (int64, error) {
	if err := cl.check(ctx, "pool lookup"); err != nil {
		return 0, err
	}
	cl.c.mu.RLock()
	defer cl.c.mu.RUnlock()
	p, ok := cl.c.pools[name]
	if !ok {
		return 0, transport.Errorf(transport.StatusNotFound, "pool lookup", fmt.Errorf("pool %q", name))
	}
	return p.id, nil
}

func (cl *Client) ReverseLookupPool(ctx context.Context, id int64) (string, error) {
	if err := cl.check(ctx, "pool reverse lookup"); err != nil {
		return "", err
	}
	cl.c.mu.RLock()
	defer cl.c.mu.RUnlock()
	p, ok := cl.c.byID[id]
	if !ok {
		return "", transport.Errorf(transport.StatusNotFound, "pool reverse lookup", fmt.Errorf("pool id %d", id))
	}
	return p.name, nil
}

func (cl *Client) CreatePool(ctx context.Context, name string) error {
	if err := cl.check(ctx, "pool create"); err != nil {
		return err
	}
	if err := transport.ValidateName("pool create", name); err != nil {
		return err
	}
	if err := cl.caps.CheckWrite("pool create"); err != nil {
		return err
	}
	cl.c.mu.Lock()
	defer cl.c.mu.Unlock()
	if _, ok := cl.c.pools[name]; ok {
		return transport.Errorf(transport.StatusExists, "pool create", fmt.Errorf("pool %q", name))
	}
	cl.c.createPool(name)
	return nil
}

func (cl *Client) DeletePool(ctx context.Context, name string) error {
	if err := cl.check(ctx, "pool delete"); err != nil {
		return err
	}
	if err := cl.caps.CheckWrite("pool delete"); err != nil {
		return err
	}
	cl.c.mu.Lock()
	defer cl.c.mu.Unlock()
	p, ok := cl.c.pools[name]
	if !ok {
		return transport.Errorf(transport.StatusNotFound, "pool delete", fmt.Errorf("pool %q", name))
	}
	p.deleted = true
	delete(cl.c.pools, name)
	delete(cl.c.byID, p.id)
	return nil
}

func (cl *Client) OpenPool(ctx context.Context, name string) (transport.Pool, error) {
	if err := cl.check(ctx, "open pool"); err != nil {
		return nil, err
	}
	cl.c.mu.RLock()
	defer cl.c.mu.RUnlock()
	p, ok := cl.c.pools[name]
	if !ok {
		return nil, transport.Errorf(transport.StatusNotFound, "open pool", fmt.Errorf("pool %q", name))
	}
	return &Pool{client: cl, p: p}, nil
}

// Close ends the session. The shared cluster state is untouched.
func (cl *Client) Close() error {
	cl.closed.Store(true)
	return nil
}
