package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/koustreak/radosgo/internal/transport"
)

// Pool is a handle to one row of rados_pools.
type Pool struct {
	drv    *Driver
	id     int64
	name   string
	closed atomic.Bool
}

func (p *Pool) ID() int64 {
	return p.id
}

func (p *Pool) Name() string {
	return p.name
}

func (p *Pool) check(ctx context.Context, op string, write bool) error {
	if p.closed.Load() {
		return transport.Errorf(transport.StatusNotConnected, op, fmt.Errorf("pool handle closed"))
	}
	if err := p.drv.check(ctx, op); err != nil {
		return err
	}
	if write {
		return p.drv.caps.CheckWrite(op)
	}
	return p.drv.caps.CheckRead(op)
}

func (p *Pool) q(query string) string {
	return p.drv.d.q(query)
}

func (p *Pool) deleted(op string) error {
	return transport.Errorf(transport.StatusNotFound, op, fmt.Errorf("pool %q was deleted", p.name))
}

// lock takes the pool row lock inside tx and returns the snapshot sequence.
func (p *Pool) lock(ctx context.Context, tx *sql.Tx, op string) (int64, error) {
	var seq int64
	err := tx.QueryRowContext(ctx, p.q(`SELECT snap_seq FROM rados_pools WHERE id = ? FOR UPDATE`), p.id).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, p.deleted(op)
	}
	return seq, err
}

// exists fails with StatusNotFound once the pool is gone.
func (p *Pool) exists(ctx context.Context, op string) error {
	var one int
	err := p.drv.db.QueryRowContext(ctx, p.q(`SELECT 1 FROM rados_pools WHERE id = ?`), p.id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return p.deleted(op)
	}
	return mapError(err, op)
}

// update runs fn in a transaction that holds the pool row lock.
func (p *Pool) update(ctx context.Context, op string, fn func(tx *sql.Tx, seq int64) error) error {
	if err := p.check(ctx, op, true); err != nil {
		return err
	}
	return p.drv.tx(ctx, op, func(tx *sql.Tx) error {
		seq, err := p.lock(ctx, tx, op)
		if err != nil {
			return err
		}
		return fn(tx, seq)
	})
}

func (p *Pool) put(ctx context.Context, tx *sql.Tx, oid string, data []byte) error {
	if data == nil {
		data = []byte{}
	}
	_, err := tx.ExecContext(ctx, p.q(p.drv.d.putObject), p.id, []byte(oid), data, time.Now().UnixNano())
	return err
}

func (p *Pool) Auid(ctx context.Context) (uint64, error) {
	if err := p.check(ctx, "get auid", false); err != nil {
		return 0, err
	}
	var auid int64
	err := p.drv.db.QueryRowContext(ctx, p.q(`SELECT auid FROM rados_pools WHERE id = ?`), p.id).Scan(&auid)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, p.deleted("get auid")
	}
	if err != nil {
		return 0, mapError(err, "get auid")
	}
	return uint64(auid), nil
}

func (p *Pool) SetAuid(ctx context.Context, auid uint64) error {
	return p.update(ctx, "set auid", func(tx *sql.Tx, _ int64) error {
		_, err := tx.ExecContext(ctx, p.q(`UPDATE rados_pools SET auid = ? WHERE id = ?`), int64(auid), p.id)
		return err
	})
}

// modify applies fn to the head content of oid under the pool lock.
func (p *Pool) modify(ctx context.Context, op, oid string, fn func(old []byte) ([]byte, error)) error {
	if err := transport.ValidateOid(op, oid); err != nil {
		return err
	}
	return p.update(ctx, op, func(tx *sql.Tx, _ int64) error {
		var old []byte
		err := tx.QueryRowContext(ctx,
			p.q(`SELECT data FROM rados_objects WHERE pool_id = ? AND snap_id = 0 AND obj_name = ?`),
			p.id, []byte(oid)).Scan(&old)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		out, err := fn(old)
		if err != nil {
			return err
		}
		return p.put(ctx, tx, oid, out)
	})
}

func (p *Pool) Write(ctx context.Context, oid string, data []byte, off uint64) error {
	return p.modify(ctx, "write", oid, func(old []byte) ([]byte, error) {
		return transport.WriteAt("write", old, data, off)
	})
}

func (p *Pool) WriteFull(ctx context.Context, oid string, data []byte) error {
	if err := transport.ValidateOid("write full", oid); err != nil {
		return err
	}
	out, err := transport.WriteAt("write full", nil, data, 0)
	if err != nil {
		return err
	}
	return p.update(ctx, "write full", func(tx *sql.Tx, _ int64) error {
		return p.put(ctx, tx, oid, out)
	})
}

func (p *Pool) Append(ctx context.Context, oid string, data []byte) error {
	return p.modify(ctx, "append", oid, func(old []byte) ([]byte, error) {
		return transport.WriteAt("append", old, data, uint64(len(old)))
	})
}

func (p *Pool) Truncate(ctx context.Context, oid string, size uint64) error {
	return p.modify(ctx, "truncate", oid, func(old []byte) ([]byte, error) {
		return transport.Resize("truncate", old, size)
	})
}

// snapRow maps a snapshot id onto the snap_id column, where 0 is the head.
func (p *Pool) snapRow(ctx context.Context, op string, snap transport.SnapID) (int64, error) {
	if snap == transport.SnapHead {
		return 0, nil
	}
	var one int
	err := p.drv.db.QueryRowContext(ctx,
		p.q(`SELECT 1 FROM rados_snaps WHERE pool_id = ? AND snap_id = ?`), p.id, int64(snap)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, transport.Errorf(transport.StatusNotFound, op, fmt.Errorf("snapshot %d", snap))
	}
	if err != nil {
		return 0, mapError(err, op)
	}
	return int64(snap), nil
}

func (p *Pool) Read(ctx context.Context, oid string, snap transport.SnapID, buf []byte, off uint64) (int, error) {
	if err := transport.ValidateOid("read", oid); err != nil {
		return 0, err
	}
	if err := p.check(ctx, "read", false); err != nil {
		return 0, err
	}
	if err := p.exists(ctx, "read"); err != nil {
		return 0, err
	}
	sid, err := p.snapRow(ctx, "read", snap)
	if err != nil {
		return 0, err
	}
	var data []byte
	err = p.drv.db.QueryRowContext(ctx,
		p.q(`SELECT data FROM rados_objects WHERE pool_id = ? AND snap_id = ? AND obj_name = ?`),
		p.id, sid, []byte(oid)).Scan(&data)
	if err != nil {
		return 0, mapError(err, "read")
	}
	return transport.ReadAt(data, buf, off), nil
}

func (p *Pool) Stat(ctx context.Context, oid string, snap transport.SnapID) (transport.ObjectStat, error) {
	if err := transport.ValidateOid("stat", oid); err != nil {
		return transport.ObjectStat{}, err
	}
	if err := p.check(ctx, "stat", false); err != nil {
		return transport.ObjectStat{}, err
	}
	if err := p.exists(ctx, "stat"); err != nil {
		return transport.ObjectStat{}, err
	}
	sid, err := p.snapRow(ctx, "stat", snap)
	if err != nil {
		return transport.ObjectStat{}, err
	}
	var size, mtime int64
	err = p.drv.db.QueryRowContext(ctx,
		p.q(`SELECT LENGTH(data), mtime FROM rados_objects WHERE pool_id = ? AND snap_id = ? AND obj_name = ?`),
		p.id, sid, []byte(oid)).Scan(&size, &mtime)
	if err != nil {
		return transport.ObjectStat{}, mapError(err, "stat")
	}
	return transport.ObjectStat{Oid: oid, Size: uint64(size), ModTime: time.Unix(0, mtime)}, nil
}

func (p *Pool) Remove(ctx context.Context, oid string) error {
	if err := transport.ValidateOid("remove", oid); err != nil {
		return err
	}
	return p.update(ctx, "remove", func(tx *sql.Tx, _ int64) error {
		res, err := tx.ExecContext(ctx,
			p.q(`DELETE FROM rados_objects WHERE pool_id = ? AND snap_id = 0 AND obj_name = ?`),
			p.id, []byte(oid))
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return transport.Errorf(transport.StatusNotFound, "remove", fmt.Errorf("object %q", oid))
		}
		return nil
	})
}

func (p *Pool) Usage(ctx context.Context) (transport.PoolStat, error) {
	if err := p.check(ctx, "pool stat", false); err != nil {
		return transport.PoolStat{}, err
	}
	if err := p.exists(ctx, "pool stat"); err != nil {
		return transport.PoolStat{}, err
	}
	var objects, bytes, snaps int64
	err := p.drv.db.QueryRowContext(ctx,
		p.q(`SELECT COUNT(*), COALESCE(SUM(LENGTH(data)), 0) FROM rados_objects WHERE pool_id = ? AND snap_id = 0`),
		p.id).Scan(&objects, &bytes)
	if err != nil {
		return transport.PoolStat{}, mapError(err, "pool stat")
	}
	err = p.drv.db.QueryRowContext(ctx, p.q(`SELECT COUNT(*) FROM rados_snaps WHERE pool_id = ?`), p.id).Scan(&snaps)
	if err != nil {
		return transport.PoolStat{}, mapError(err, "pool stat")
	}
	return transport.PoolStat{
		NumObjects: uint64(objects),
		NumBytes:   uint64(bytes),
		NumKb:      transport.KiB(uint64(bytes)),
		NumSnaps:   uint64(snaps),
	}, nil
}

// List pages with a keyset query on the primary key.
func (p *Pool) List(ctx context.Context, after transport.Cursor, max int) ([]string, error) {
	if err := p.check(ctx, "list", false); err != nil {
		return nil, err
	}
	if err := p.exists(ctx, "list"); err != nil {
		return nil, err
	}
	query := `SELECT obj_name FROM rados_objects
		WHERE pool_id = ? AND snap_id = 0 AND obj_name > ?
		ORDER BY obj_name`
	args := []any{p.id, []byte(after)}
	if max > 0 {
		query += ` LIMIT ?`
		args = append(args, max)
	}

	rows, err := p.drv.db.QueryContext(ctx, p.q(query), args...)
	if err != nil {
		return nil, mapError(err, "list")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var name []byte
		if err := rows.Scan(&name); err != nil {
			return nil, mapError(err, "list")
		}
		ids = append(ids, string(name))
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "list")
	}
	return ids, nil
}

// --- snapshots ---

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (p *Pool) lookupSnap(ctx context.Context, q queryer, op, name string) (transport.SnapID, error) {
	var id int64
	err := q.QueryRowContext(ctx, p.q(`SELECT snap_id FROM rados_snaps WHERE pool_id = ? AND name = ?`), p.id, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, transport.Errorf(transport.StatusNotFound, op, fmt.Errorf("snapshot %q", name))
	}
	if err != nil {
		return 0, err
	}
	return transport.SnapID(id), nil
}

// CreateSnap copies every head row of the pool under the new snapshot id.
func (p *Pool) CreateSnap(ctx context.Context, name string) (transport.SnapID, error) {
	if err := transport.ValidateName("snap create", name); err != nil {
		return 0, err
	}
	var id transport.SnapID
	err := p.update(ctx, "snap create", func(tx *sql.Tx, seq int64) error {
		if _, err := p.lookupSnap(ctx, tx, "snap create", name); err == nil {
			return transport.Errorf(transport.StatusExists, "snap create", fmt.Errorf("snapshot %q", name))
		} else if transport.StatusOf(err) != transport.StatusNotFound {
			return err
		}
		next := seq + 1
		stmts := []struct {
			query string
			args  []any
		}{
			{`UPDATE rados_pools SET snap_seq = ? WHERE id = ?`, []any{next, p.id}},
			{`INSERT INTO rados_snaps (pool_id, snap_id, name, stamp) VALUES (?, ?, ?, ?)`,
				[]any{p.id, next, name, time.Now().UnixNano()}},
			{`INSERT INTO rados_objects (pool_id, snap_id, obj_name, data, mtime)
				SELECT pool_id, ?, obj_name, data, mtime FROM rados_objects
				WHERE pool_id = ? AND snap_id = 0`, []any{next, p.id}},
		}
		for _, s := range stmts {
			if _, err := tx.ExecContext(ctx, p.q(s.query), s.args...); err != nil {
				return err
			}
		}
		id = transport.SnapID(next)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (p *Pool) RemoveSnap(ctx context.Context, name string) error {
	return p.update(ctx, "snap remove", func(tx *sql.Tx, _ int64) error {
		id, err := p.lookupSnap(ctx, tx, "snap remove", name)
		if err != nil {
			return err
		}
		for _, stmt := range []string{
			`DELETE FROM rados_objects WHERE pool_id = ? AND snap_id = ?`,
			`DELETE FROM rados_snaps WHERE pool_id = ? AND snap_id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, p.q(stmt), p.id, int64(id)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (p *Pool) LookupSnap(ctx context.Context, name string) (transport.SnapID, error) {
	if err := p.check(ctx, "snap lookup", false); err != nil {
		return 0, err
	}
	id, err := p.lookupSnap(ctx, p.drv.db, "snap lookup", name)
	if err != nil {
		return 0, mapError(err, "snap lookup")
	}
	return id, nil
}

func (p *Pool) SnapInfo(ctx context.Context, id transport.SnapID) (transport.SnapInfo, error) {
	if err := p.check(ctx, "snap info", false); err != nil {
		return transport.SnapInfo{}, err
	}
	var (
		name  string
		stamp int64
	)
	err := p.drv.db.QueryRowContext(ctx,
		p.q(`SELECT name, stamp FROM rados_snaps WHERE pool_id = ? AND snap_id = ?`),
		p.id, int64(id)).Scan(&name, &stamp)
	if errors.Is(err, sql.ErrNoRows) {
		return transport.SnapInfo{}, transport.Errorf(transport.StatusNotFound, "snap info", fmt.Errorf("snapshot %d", id))
	}
	if err != nil {
		return transport.SnapInfo{}, mapError(err, "snap info")
	}
	return transport.SnapInfo{ID: id, Name: name, Stamp: time.Unix(0, stamp)}, nil
}

func (p *Pool) ListSnaps(ctx context.Context) ([]transport.SnapID, error) {
	if err := p.check(ctx, "snap list", false); err != nil {
		return nil, err
	}
	rows, err := p.drv.db.QueryContext(ctx,
		p.q(`SELECT snap_id FROM rados_snaps WHERE pool_id = ? ORDER BY snap_id`), p.id)
	if err != nil {
		return nil, mapError(err, "snap list")
	}
	defer rows.Close()

	var ids []transport.SnapID
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, mapError(err, "snap list")
		}
		ids = append(ids, transport.SnapID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "snap list")
	}
	return ids, nil
}

// Rollback restores the head row from the snapshot copy, or removes the head
// when the object did not exist at the snapshot.
func (p *Pool) Rollback(ctx context.Context, oid string, snap transport.SnapID) error {
	if err := transport.ValidateOid("rollback", oid); err != nil {
		return err
	}
	return p.update(ctx, "rollback", func(tx *sql.Tx, _ int64) error {
		var one int
		err := tx.QueryRowContext(ctx,
			p.q(`SELECT 1 FROM rados_snaps WHERE pool_id = ? AND snap_id = ?`), p.id, int64(snap)).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return transport.Errorf(transport.StatusNotFound, "rollback", fmt.Errorf("snapshot %d", snap))
		}
		if err != nil {
			return err
		}

		var data []byte
		err = tx.QueryRowContext(ctx,
			p.q(`SELECT data FROM rados_objects WHERE pool_id = ? AND snap_id = ? AND obj_name = ?`),
			p.id, int64(snap), []byte(oid)).Scan(&data)
		if errors.Is(err, sql.ErrNoRows) {
			_, err = tx.ExecContext(ctx,
				p.q(`DELETE FROM rados_objects WHERE pool_id = ? AND snap_id = 0 AND obj_name = ?`),
				p.id, []byte(oid))
			return err
		}
		if err != nil {
			return err
		}
		return p.put(ctx, tx, oid, data)
	})
}

// Close releases the handle.
func (p *Pool) Close() error {
	p.closed.Store(true)
	return nil
}
