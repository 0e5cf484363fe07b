package rados

import (
	"context"
	"fmt"
	"time"
)

// CreateSnap takes a snapshot of the whole pool.
func (io *IOContext) CreateSnap(ctx context.Context, name string) error {
	if name == "" {
		return errInvalidArgument("snapshot name is empty")
	}
	release, err := io.mutate("create snap")
	if err != nil {
		return err
	}
	defer release()
	id, err := io.pool.CreateSnap(ctx, name)
	if err != nil {
		return mapError(err, fmt.Sprintf("create snap %q failed", name))
	}
	io.log.DebugWith("snapshot created", map[string]interface{}{"snap": name, "snap_id": uint64(id)})
	return nil
}

// RemoveSnap removes the named snapshot.
func (io *IOContext) RemoveSnap(ctx context.Context, name string) error {
	if name == "" {
		return errInvalidArgument("snapshot name is empty")
	}
	release, err := io.mutate("remove snap")
	if err != nil {
		return err
	}
	defer release()
	if err := io.pool.RemoveSnap(ctx, name); err != nil {
		return mapError(err, fmt.Sprintf("remove snap %q failed", name))
	}
	io.log.DebugWith("snapshot removed", map[string]interface{}{"snap": name})
	return nil
}

// LookupSnap returns the id of the named snapshot.
func (io *IOContext) LookupSnap(ctx context.Context, name string) (SnapID, error) {
	if name == "" {
		return 0, errInvalidArgument("snapshot name is empty")
	}
	_, release, err := io.acquire("lookup snap")
	if err != nil {
		return 0, err
	}
	defer release()
	id, err := io.pool.LookupSnap(ctx, name)
	if err != nil {
		return 0, mapError(err, fmt.Sprintf("lookup snap %q failed", name))
	}
	return id, nil
}

// GetSnapName returns the name of snapshot id.
func (io *IOContext) GetSnapName(ctx context.Context, id SnapID) (string, error) {
	_, release, err := io.acquire("get snap name")
	if err != nil {
		return "", err
	}
	defer release()
	info, err := io.pool.SnapInfo(ctx, id)
	if err != nil {
		return "", mapError(err, fmt.Sprintf("get name of snap %d failed", id))
	}
	return info.Name, nil
}

// GetSnapStamp returns the creation time of snapshot id.
func (io *IOContext) GetSnapStamp(ctx context.Context, id SnapID) (time.Time, error) {
	_, release, err := io.acquire("get snap stamp")
	if err != nil {
		return time.Time{}, err
	}
	defer release()
	info, err := io.pool.SnapInfo(ctx, id)
	if err != nil {
		return time.Time{}, mapError(err, fmt.Sprintf("get stamp of snap %d failed", id))
	}
	return info.Stamp, nil
}

// ListSnaps returns the ids of all live snapshots, in no particular order.
func (io *IOContext) ListSnaps(ctx context.Context) ([]SnapID, error) {
	_, release, err := io.acquire("list snaps")
	if err != nil {
		return nil, err
	}
	defer release()
	ids, err := io.pool.ListSnaps(ctx)
	if err != nil {
		return nil, mapError(err, "list snaps failed")
	}
	return ids, nil
}

// Rollback restores oid to its content at the named snapshot. An object that
// did not exist at the snapshot is removed.
func (io *IOContext) Rollback(ctx context.Context, oid, snapName string) error {
	if err := checkOid(oid); err != nil {
		return err
	}
	if snapName == "" {
		return errInvalidArgument("snapshot name is empty")
	}
	release, err := io.mutate("rollback")
	if err != nil {
		return err
	}
	defer release()
	id, err := io.pool.LookupSnap(ctx, snapName)
	if err != nil {
		return mapError(err, fmt.Sprintf("rollback %q: lookup snap %q failed", oid, snapName))
	}
	return mapError(io.pool.Rollback(ctx, oid, id), fmt.Sprintf("rollback %q to %q failed", oid, snapName))
}
