// Package minio provides a transport.Cluster on top of an S3-compatible
// object store reached through minio-go.
//
// Each bucket is a pool. A pool id is derived from the bucket name alone, so
// it survives the removal of other buckets and agrees across clients.
// ListPools orders buckets by creation date, then name. Keys under the reserved
// ".rados/" prefix hold the pool's auid, its snapshot registry and the copies
// taken by each snapshot, and are hidden from listings.
//
// Usage:
//
//	cluster, err := transport.Dial(ctx, "minio", transport.Config{
//		"minio_endpoint":   "localhost:9000",
//		"minio_access_key": "minioadmin",
//		"minio_secret_key": "minioadmin",
//	})
//	if err != nil { ... }
//	defer cluster.Close()
//
// S3 has no partial writes, so Write, Append and Truncate read the whole
// object, modify it and store it again. Concurrent writers to one object may
// lose updates.
package minio

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/koustreak/radosgo/internal/transport"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/s3utils"
)

// Name is the transport name this backend registers under.
const Name = "minio"

var instanceSeq atomic.Uint64

func init() {
	transport.Register(Name, Dial)
}

// Driver is a session to an S3-compatible store.
// It is safe for concurrent use by multiple goroutines.
type Driver struct {
	client   *miniogo.Client
	cfg      *Config
	fsid     string
	instance uint64
	closed   atomic.Bool
}

// Dial reads the minio_* options and connects.
func Dial(ctx context.Context, cfg transport.Config) (transport.Cluster, error) {
	c, err := ConfigFrom(cfg)
	if err != nil {
		return nil, err
	}
	d, err := New(ctx, c)
	if err != nil {
		return nil, err
	}
	if fsid := cfg.String(transport.OptFSID, ""); fsid != "" {
		d.fsid = fsid
	}
	return d, nil
}

// New connects using the provided Config and returns a Driver.
// It calls Ping to validate the connection before returning.
func New(ctx context.Context, cfg *Config) (*Driver, error) {
	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, transport.Errorf(transport.StatusInvalid, "minio client", err)
	}

	d := &Driver{
		client:   client,
		cfg:      cfg,
		fsid:     FSIDFor(cfg.Endpoint),
		instance: uint64(4096) + instanceSeq.Add(1),
	}

	if err := d.Ping(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

// FSIDFor derives a stable cluster id from the endpoint.
func FSIDFor(endpoint string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("s3://"+endpoint)).String()
}

// Ping verifies the server is reachable by listing buckets.
func (d *Driver) Ping(ctx context.Context) error {
	if _, err := d.client.ListBuckets(ctx); err != nil {
		return mapError(err, "ping")
	}
	return nil
}

func (d *Driver) check(ctx context.Context, op string) error {
	if d.closed.Load() {
		return transport.Errorf(transport.StatusNotConnected, op, nil)
	}
	return transport.CheckContext(ctx, op)
}

func (d *Driver) FSID(ctx context.Context) (string, error) {
	if err := d.check(ctx, "fsid"); err != nil {
		return "", err
	}
	return d.fsid, nil
}

func (d *Driver) InstanceID() uint64 {
	return d.instance
}

// buckets returns bucket names ordered by creation date.
func (d *Driver) buckets(ctx context.Context, op string) ([]string, error) {
	if err := d.check(ctx, op); err != nil {
		return nil, err
	}
	raw, err := d.client.ListBuckets(ctx)
	if err != nil {
		return nil, mapError(err, op)
	}
	return poolOrder(raw), nil
}

// poolOrder sorts buckets by creation date, then name.
func poolOrder(raw []miniogo.BucketInfo) []string {
	sorted := make([]miniogo.BucketInfo, len(raw))
	copy(sorted, raw)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].CreationDate.Equal(sorted[j].CreationDate) {
			return sorted[i].CreationDate.Before(sorted[j].CreationDate)
		}
		return sorted[i].Name < sorted[j].Name
	})
	names := make([]string, len(sorted))
	for i, b := range sorted {
		names[i] = b.Name
	}
	return names
}

func (d *Driver) Stat(ctx context.Context) (transport.ClusterStat, error) {
	names, err := d.buckets(ctx, "cluster stat")
	if err != nil {
		return transport.ClusterStat{}, err
	}
	var st transport.ClusterStat
	var bytes uint64
	for _, name := range names {
		usage, err := d.usage(ctx, name)
		if err != nil {
			return transport.ClusterStat{}, err
		}
		bytes += usage.NumBytes
		st.NumObjects += usage.NumObjects
	}
	st.Kb = d.cfg.CapacityKb
	st.KbUsed = transport.KiB(bytes)
	if st.KbUsed < st.Kb {
		st.KbAvail = st.Kb - st.KbUsed
	}
	return st, nil
}

func (d *Driver) ListPools(ctx context.Context) ([]string, error) {
	return d.buckets(ctx, "list pools")
}

// poolID maps a bucket name to its pool id, a positive 62-bit hash.
func poolID(bucket string) int64 {
	return int64(xxhash.Sum64String(bucket)>>2) + 1
}

func (d *Driver) LookupPool(ctx context.Context, name string) (int64, error) {
	if err := d.check(ctx, "pool lookup"); err != nil {
		return 0, err
	}
	if s3utils.CheckValidBucketName(name) != nil {
		return 0, transport.Errorf(transport.StatusNotFound, "pool lookup", fmt.Errorf("bucket %q", name))
	}
	ok, err := d.client.BucketExists(ctx, name)
	if err != nil {
		return 0, mapError(err, "pool lookup")
	}
	if !ok {
		return 0, transport.Errorf(transport.StatusNotFound, "pool lookup", fmt.Errorf("bucket %q", name))
	}
	return poolID(name), nil
}

func (d *Driver) ReverseLookupPool(ctx context.Context, id int64) (string, error) {
	names, err := d.buckets(ctx, "pool reverse lookup")
	if err != nil {
		return "", err
	}
	for _, n := range names {
		if poolID(n) == id {
			return n, nil
		}
	}
	return "", transport.Errorf(transport.StatusNotFound, "pool reverse lookup", fmt.Errorf("pool id %d", id))
}

func (d *Driver) CreatePool(ctx context.Context, name string) error {
	if err := d.check(ctx, "pool create"); err != nil {
		return err
	}
	if err := transport.ValidateName("pool create", name); err != nil {
		return err
	}
	err := d.client.MakeBucket(ctx, name, miniogo.MakeBucketOptions{Region: d.cfg.Region})
	return mapError(err, "pool create")
}

// DeletePool empties the bucket, reserved keys included, and removes it.
func (d *Driver) DeletePool(ctx context.Context, name string) error {
	if err := d.check(ctx, "pool delete"); err != nil {
		return err
	}
	if err := d.removePrefix(ctx, "pool delete", name, ""); err != nil {
		return err
	}
	return mapError(d.client.RemoveBucket(ctx, name), "pool delete")
}

// removePrefix deletes every key under prefix in bucket.
func (d *Driver) removePrefix(ctx context.Context, op, bucket, prefix string) error {
	listCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	objects := d.client.ListObjects(listCtx, bucket, miniogo.ListObjectsOptions{Prefix: prefix, Recursive: true})
	for rerr := range d.client.RemoveObjects(ctx, bucket, objects, miniogo.RemoveObjectsOptions{}) {
		if rerr.Err != nil {
			return mapError(rerr.Err, op)
		}
	}
	return nil
}

func (d *Driver) OpenPool(ctx context.Context, name string) (transport.Pool, error) {
	id, err := d.LookupPool(ctx, name)
	if err != nil {
		return nil, err
	}
	return &Pool{d: d, id: id, bucket: name}, nil
}

// Close is a no-op for the server; the SDK client holds no persistent
// connections. Later calls fail with StatusNotConnected.
func (d *Driver) Close() error {
	d.closed.Store(true)
	return nil
}
