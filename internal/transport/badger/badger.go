// Package badger provides a transport.Cluster persisted in an embedded
// BadgerDB.
//
// Usage:
//
//	cluster, err := transport.Dial(ctx, "badger", transport.Config{"badger_path": "/var/lib/rados"})
//	if err != nil { ... }
//	defer cluster.Close()
//
// Sessions dialled with the same badger_path in one process share a single
// database. An empty badger_path keeps everything in memory; such sessions
// are shared by mon_host instead.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/koustreak/radosgo/internal/logger"
	"github.com/koustreak/radosgo/internal/transport"
)

// Name is the transport name this backend registers under.
const Name = "badger"

// Option keys understood by this backend.
const (
	OptPath       = "badger_path"
	OptCapacityKb = "badger_capacity_kb"
	OptPools      = "badger_pools"
	OptCluster    = "mon_host"
)

var (
	defaultPools      = []string{"data", "metadata", "rbd"}
	defaultCapacityKb = uint64(1 << 30)
)

// maxRetries bounds the retries of a transaction that hit ErrConflict.
const maxRetries = 10

func init() {
	transport.Register(Name, Dial)
}

// store is a database shared by every session dialled against it.
type store struct {
	key        string
	db         *badgerdb.DB
	poolSeq    *badgerdb.Sequence
	instSeq    *badgerdb.Sequence
	fsid       string
	capacityKb uint64
	refs       int
}

var (
	storesMu sync.Mutex
	stores   = make(map[string]*store)
)

func acquireStore(ctx context.Context, cfg transport.Config) (*store, error) {
	path := cfg.String(OptPath, "")
	key := path
	if key == "" {
		key = "memory:" + cfg.String(OptCluster, "localhost")
	}

	storesMu.Lock()
	defer storesMu.Unlock()

	if s, ok := stores[key]; ok {
		s.refs++
		return s, nil
	}

	capacity, err := cfg.Uint64(OptCapacityKb, defaultCapacityKb)
	if err != nil {
		return nil, err
	}

	opts := badgerdb.DefaultOptions(path).
		WithLogger(newBadgerLogger(logger.Global())).
		WithLoggingLevel(badgerdb.WARNING)
	if path == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, mapError(err, "open badger "+key)
	}

	s := &store{key: key, db: db, capacityKb: capacity, refs: 1}
	if err := s.init(ctx, cfg); err != nil {
		_ = s.shutdown()
		return nil, err
	}
	stores[key] = s
	return s, nil
}

// init loads the fsid and sequences, seeding a fresh database with its
// fsid and default pools.
func (s *store) init(ctx context.Context, cfg transport.Config) error {
	var err error
	if s.poolSeq, err = s.db.GetSequence(keyPoolSeq, 1); err != nil {
		return mapError(err, "pool sequence")
	}
	if s.instSeq, err = s.db.GetSequence(keyInstanceSeq, 16); err != nil {
		return mapError(err, "instance sequence")
	}

	fresh := false
	err = s.update(ctx, "init", func(txn *badgerdb.Txn) error {
		item, err := txn.Get(keyFSID)
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			fresh = true
			s.fsid = cfg.String(transport.OptFSID, uuid.NewString())
			return txn.Set(keyFSID, []byte(s.fsid))
		}
		if err != nil {
			return err
		}
		fsid, err := item.ValueCopy(nil)
		s.fsid = string(fsid)
		return err
	})
	if err != nil || !fresh {
		return err
	}

	for _, name := range cfg.List(OptPools, defaultPools) {
		err := s.createPool(ctx, name)
		if err != nil && transport.StatusOf(err) != transport.StatusExists {
			return err
		}
	}
	return nil
}

func (s *store) shutdown() error {
	if s.poolSeq != nil {
		_ = s.poolSeq.Release()
	}
	if s.instSeq != nil {
		_ = s.instSeq.Release()
	}
	return mapError(s.db.Close(), "close badger")
}

func releaseStore(s *store) error {
	storesMu.Lock()
	defer storesMu.Unlock()
	s.refs--
	if s.refs > 0 {
		return nil
	}
	delete(stores, s.key)
	return s.shutdown()
}

// update runs fn in a read-write transaction, retrying on conflicts.
func (s *store) update(ctx context.Context, op string, fn func(txn *badgerdb.Txn) error) error {
	for attempt := 0; ; attempt++ {
		if err := transport.CheckContext(ctx, op); err != nil {
			return err
		}
		err := s.db.Update(fn)
		if errors.Is(err, badgerdb.ErrConflict) && attempt < maxRetries {
			continue
		}
		return mapError(err, op)
	}
}

func (s *store) view(ctx context.Context, op string, fn func(txn *badgerdb.Txn) error) error {
	if err := transport.CheckContext(ctx, op); err != nil {
		return err
	}
	return mapError(s.db.View(fn), op)
}

// deletePrefixes removes every key under the given prefixes in write
// batches. Callers first remove the records that make those keys reachable.
func (s *store) deletePrefixes(ctx context.Context, op string, prefixes ...[]byte) error {
	for _, prefix := range prefixes {
		var keys [][]byte
		err := s.view(ctx, op, func(txn *badgerdb.Txn) error {
			opts := badgerdb.DefaultIteratorOptions
			opts.PrefetchValues = false
			opts.Prefix = prefix
			it := txn.NewIterator(opts)
			defer it.Close()
			for it.Rewind(); it.Valid(); it.Next() {
				keys = append(keys, it.Item().KeyCopy(nil))
			}
			return nil
		})
		if err != nil {
			return err
		}
		if len(keys) == 0 {
			continue
		}

		wb := s.db.NewWriteBatch()
		for _, key := range keys {
			if err := wb.Delete(key); err != nil {
				wb.Cancel()
				return mapError(err, op)
			}
		}
		if err := wb.Flush(); err != nil {
			return mapError(err, op)
		}
	}
	return nil
}

func getJSON(txn *badgerdb.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func setJSON(txn *badgerdb.Txn, key []byte, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, b)
}

func (s *store) createPool(ctx context.Context, name string) error {
	if err := transport.ValidateName("pool create", name); err != nil {
		return err
	}
	return s.update(ctx, "pool create", func(txn *badgerdb.Txn) error {
		if _, err := txn.Get(poolNameKey(name)); err == nil {
			return transport.Errorf(transport.StatusExists, "pool create", fmt.Errorf("pool %q", name))
		} else if !errors.Is(err, badgerdb.ErrKeyNotFound) {
			return err
		}
		n, err := s.poolSeq.Next()
		if err != nil {
			return err
		}
		id := int64(n + 1)
		if err := txn.Set(poolNameKey(name), be64(uint64(id))); err != nil {
			return err
		}
		return setJSON(txn, poolIDKey(id), &poolRecord{Name: name})
	})
}

func lookupPool(txn *badgerdb.Txn, op, name string) (int64, error) {
	item, err := txn.Get(poolNameKey(name))
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return 0, transport.Errorf(transport.StatusNotFound, op, fmt.Errorf("pool %q", name))
	}
	if err != nil {
		return 0, err
	}
	var id int64
	err = item.Value(func(val []byte) error {
		id = int64(decodeID(val))
		return nil
	})
	return id, err
}

// --- transport.Cluster implementation ---

// Client is a session to a badger-backed cluster.
type Client struct {
	s        *store
	caps     transport.Caps
	instance uint64
	closed   atomic.Bool
}

// Dial opens the database named by badger_path, creating it on first use.
func Dial(ctx context.Context, cfg transport.Config) (transport.Cluster, error) {
	caps, err := transport.ParseCaps(cfg[transport.OptCaps])
	if err != nil {
		return nil, err
	}
	s, err := acquireStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	n, err := s.instSeq.Next()
	if err != nil {
		_ = releaseStore(s)
		return nil, mapError(err, "instance id")
	}
	return &Client{s: s, caps: caps, instance: n + 1}, nil
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
	return cl.s.fsid, nil
}

func (cl *Client) Stat(ctx context.Context) (transport.ClusterStat, error) {
	if err := cl.check(ctx, "cluster stat"); err != nil {
		return transport.ClusterStat{}, err
	}
	var bytes, objects uint64
	err := cl.s.view(ctx, "cluster stat", func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefixObject)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			bytes += uint64(it.Item().ValueSize() - objectHeader)
			objects++
		}
		return nil
	})
	if err != nil {
		return transport.ClusterStat{}, err
	}
	used := transport.KiB(bytes)
	avail := uint64(0)
	if used < cl.s.capacityKb {
		avail = cl.s.capacityKb - used
	}
	return transport.ClusterStat{Kb: cl.s.capacityKb, KbUsed: used, KbAvail: avail, NumObjects: objects}, nil
}

func (cl *Client) InstanceID() uint64 {
	return cl.instance
}

func (cl *Client) ListPools(ctx context.Context) ([]string, error) {
	if err := cl.check(ctx, "list pools"); err != nil {
		return nil, err
	}
	var names []string
	err := cl.s.view(ctx, "list pools", func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(prefixPoolID)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var rec poolRecord
			if err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, &rec) }); err != nil {
				return err
			}
			names = append(names, rec.Name)
		}
		return nil
	})
	return names, err
}

func (cl *Client) LookupPool(ctx context.Context, name string) (int64, error) {
	if err := cl.check(ctx, "pool lookup"); err != nil {
		return 0, err
	}
	var id int64
	err := cl.s.view(ctx, "pool lookup", func(txn *badgerdb.Txn) error {
		var err error
		id, err = lookupPool(txn, "pool lookup", name)
		return err
	})
	return id, err
}

func (cl *Client) ReverseLookupPool(ctx context.Context, id int64) (string, error) {
	if err := cl.check(ctx, "pool reverse lookup"); err != nil {
		return "", err
	}
	var rec poolRecord
	err := cl.s.view(ctx, "pool reverse lookup", func(txn *badgerdb.Txn) error {
		err := getJSON(txn, poolIDKey(id), &rec)
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return transport.Errorf(transport.StatusNotFound, "pool reverse lookup", fmt.Errorf("pool id %d", id))
		}
		return err
	})
	return rec.Name, err
}

func (cl *Client) CreatePool(ctx context.Context, name string) error {
	if err := cl.check(ctx, "pool create"); err != nil {
		return err
	}
	if err := cl.caps.CheckWrite("pool create"); err != nil {
		return err
	}
	return cl.s.createPool(ctx, name)
}

// DeletePool removes the pool records atomically, then drops the pool's
// objects and snapshots.
func (cl *Client) DeletePool(ctx context.Context, name string) error {
	if err := cl.check(ctx, "pool delete"); err != nil {
		return err
	}
	if err := cl.caps.CheckWrite("pool delete"); err != nil {
		return err
	}
	var id int64
	err := cl.s.update(ctx, "pool delete", func(txn *badgerdb.Txn) error {
		var err error
		if id, err = lookupPool(txn, "pool delete", name); err != nil {
			return err
		}
		if err := txn.Delete(poolNameKey(name)); err != nil {
			return err
		}
		return txn.Delete(poolIDKey(id))
	})
	if err != nil {
		return err
	}
	return cl.s.deletePrefixes(ctx, "pool delete",
		objectPrefix(id), snapPrefix(id), snapNamePrefix(id), snapObjectPoolPrefix(id))
}

func (cl *Client) OpenPool(ctx context.Context, name string) (transport.Pool, error) {
	if err := cl.check(ctx, "open pool"); err != nil {
		return nil, err
	}
	id, err := cl.LookupPool(ctx, name)
	if err != nil {
		return nil, err
	}
	return &Pool{client: cl, id: id, name: name}, nil
}

// Close ends the session, closing the database when it was the last one.
func (cl *Client) Close() error {
	if cl.closed.Swap(true) {
		return nil
	}
	return releaseStore(cl.s)
}
