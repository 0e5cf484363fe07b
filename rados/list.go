package rados

import (
	"context"
	"sync/atomic"

	"github.com/koustreak/radosgo/internal/errs"
	"github.com/koustreak/radosgo/internal/transport"
)

// ListCtx is a resumable cursor over a pool's object ids.
//
// Each advance replaces the current batch with the next ids after the
// cursor's position, so memory stays bounded by the chunk size. Ids come back
// in byte-wise order and every id present when listing started is returned
// exactly once. A ListCtx must only be used by one goroutine.
type ListCtx struct {
	io    *IOContext
	chunk int // 0 means unbounded
	pos   transport.Cursor
	batch []string

	closed  bool
	invalid atomic.Bool // set when the IOContext is closed
}

// Size returns the number of ids in the current batch.
func (l *ListCtx) Size() int {
	return len(l.batch)
}

// Objects returns a copy of the current batch.
func (l *ListCtx) Objects() []string {
	out := make([]string, len(l.batch))
	copy(out, l.batch)
	return out
}

// ChunkSize returns the batch size Next fetches.
func (l *ListCtx) ChunkSize() int {
	return l.chunk
}

// Next fetches up to ChunkSize ids and returns how many were fetched.
// It returns 0 once the pool is exhausted or the cursor is closed.
func (l *ListCtx) Next(ctx context.Context) (int, error) {
	return l.NextN(ctx, l.chunk)
}

// NextN fetches up to n ids. n <= 0 fetches every remaining id.
func (l *ListCtx) NextN(ctx context.Context, n int) (int, error) {
	return l.advance(ctx, 0, n)
}

// SkipNext discards the next skip ids and then fetches one chunk.
func (l *ListCtx) SkipNext(ctx context.Context, skip int) (int, error) {
	if skip < 0 {
		return 0, errs.Newf(errs.ErrKindInvalidArgument, "skip must not be negative, got %d", skip)
	}
	return l.advance(ctx, skip, l.chunk)
}

// advance commits the new batch and position only when every fetch succeeded.
func (l *ListCtx) advance(ctx context.Context, skip, n int) (int, error) {
	if l.closed {
		l.batch = nil
		return 0, nil
	}
	if l.invalid.Load() {
		return 0, errInvalidState("list cursor used after its io context was closed")
	}
	_, release, err := l.io.acquire("list")
	if err != nil {
		return 0, err
	}
	defer release()

	pos := l.pos
	if skip > 0 {
		skipped, err := l.io.pool.List(ctx, pos, skip)
		if err != nil {
			return 0, mapError(err, "list objects failed")
		}
		if len(skipped) > 0 {
			pos = transport.Cursor(skipped[len(skipped)-1])
		}
		if len(skipped) < skip {
			l.pos, l.batch = pos, nil
			return 0, nil
		}
	}

	ids, err := l.io.pool.List(ctx, pos, n)
	if err != nil {
		return 0, mapError(err, "list objects failed")
	}
	if len(ids) > 0 {
		pos = transport.Cursor(ids[len(ids)-1])
	}
	l.pos, l.batch = pos, ids
	return len(ids), nil
}

// Close releases the cursor. Later advances return 0. Close is idempotent.
func (l *ListCtx) Close() error {
	if l.closed {
		return nil
	}
	l.closed = true
	l.batch = nil
	if !l.invalid.Load() {
		l.io.dropCursor(l)
		l.io.log.Debug("list cursor closed")
	}
	return nil
}

func (l *ListCtx) invalidate() {
	l.invalid.Store(true)
}
