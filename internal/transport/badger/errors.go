package badger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/koustreak/radosgo/internal/logger"
	"github.com/koustreak/radosgo/internal/transport"
)

// mapError translates a badger error into a *transport.StatusError.
// Errors that already carry a status pass through.
func mapError(err error, op string) error {
	if err == nil {
		return nil
	}

	var se *transport.StatusError
	if errors.As(err, &se) {
		return err
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return transport.Errorf(transport.StatusTimedOut, op, err)
	case errors.Is(err, badgerdb.ErrKeyNotFound):
		return transport.Errorf(transport.StatusNotFound, op, err)
	case errors.Is(err, badgerdb.ErrConflict):
		return transport.Errorf(transport.StatusAgain, op, err)
	case errors.Is(err, badgerdb.ErrTxnTooBig):
		return transport.Errorf(transport.StatusTooBig, op, err)
	case errors.Is(err, badgerdb.ErrDBClosed):
		return transport.Errorf(transport.StatusShutdown, op, err)
	case errors.Is(err, badgerdb.ErrEmptyKey), errors.Is(err, badgerdb.ErrInvalidKey):
		return transport.Errorf(transport.StatusInvalid, op, err)
	}

	return transport.Errorf(transport.StatusIO, op, err)
}

// badgerLogger routes badger's internal logging onto the client logger.
type badgerLogger struct {
	log *logger.Logger
}

func newBadgerLogger(l *logger.Logger) badgerLogger {
	return badgerLogger{log: l.With().Str("component", "badger").Logger()}
}

func line(format string, args ...interface{}) string {
	return strings.TrimSpace(fmt.Sprintf(format, args...))
}

func (b badgerLogger) Errorf(format string, args ...interface{}) {
	b.log.Error(line(format, args...))
}

func (b badgerLogger) Warningf(format string, args ...interface{}) {
	b.log.Warn(line(format, args...))
}

func (b badgerLogger) Infof(format string, args ...interface{}) {
	b.log.Info(line(format, args...))
}

func (b badgerLogger) Debugf(format string, args ...interface{}) {
	b.log.Debug(line(format, args...))
}
