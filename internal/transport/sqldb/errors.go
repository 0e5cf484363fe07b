package sqldb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"strings"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/koustreak/radosgo/internal/transport"
)

// PostgreSQL SQLSTATE error codes
// Full list: https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	pgErrUniqueViolation      = "23505"
	pgErrSerializationFailure = "40001"
	pgErrDeadlockDetected     = "40P01"
	pgErrInvalidPassword      = "28P01"
	pgErrInvalidAuthorization = "28000"
	pgErrInsufficientPriv     = "42501"
	pgErrTooManyConnections   = "53300"
	pgErrStringTooLong        = "22001"
	pgErrProgramLimit         = "54000"
	pgErrAdminShutdown        = "57P01"
)

// MySQL error numbers
// Full list: https://dev.mysql.com/doc/mysql-errors/8.0/en/server-error-reference.html
const (
	errDuplicateEntry    = 1062
	errLockWaitTimeout   = 1205
	errLockDeadlock      = 1213
	errAccessDenied      = 1045
	errDBAccessDenied    = 1044
	errTableAccessDenied = 1142
	errUnknownDatabase   = 1049
	errTooManyConns      = 1040
	errDataTooLong       = 1406
	errPacketTooLarge    = 1153
	errConnRefused       = 2003
)

// mapError converts a database/sql, pgx or MySQL driver error into a
// *transport.StatusError. Errors that already carry a status pass through.
func mapError(err error, op string) error {
	if err == nil {
		return nil
	}

	var se *transport.StatusError
	if errors.As(err, &se) {
		return err
	}

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return transport.Errorf(transport.StatusNotFound, op, err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return transport.Errorf(transport.StatusTimedOut, op, err)
	case errors.Is(err, sql.ErrConnDone), errors.Is(err, sql.ErrTxDone):
		return transport.Errorf(transport.StatusShutdown, op, err)
	case errors.Is(err, driver.ErrBadConn), errors.Is(err, gomysql.ErrInvalidConn):
		return transport.Errorf(transport.StatusRefused, op, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return transport.Errorf(pgStatus(pgErr.Code), op, err)
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return transport.Errorf(transport.StatusRefused, op, err)
	}

	var mysqlErr *gomysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return transport.Errorf(mysqlStatus(mysqlErr.Number), op, err)
	}

	return transport.Errorf(transport.StatusIO, op, err)
}

func pgStatus(code string) int {
	switch code {
	case pgErrUniqueViolation:
		return transport.StatusExists
	case pgErrSerializationFailure, pgErrDeadlockDetected:
		return transport.StatusAgain
	case pgErrInvalidPassword, pgErrInvalidAuthorization, pgErrInsufficientPriv:
		return transport.StatusPerm
	case pgErrTooManyConnections:
		return transport.StatusBusy
	case pgErrStringTooLong:
		return transport.StatusNameTooLong
	case pgErrProgramLimit:
		return transport.StatusTooBig
	case pgErrAdminShutdown:
		return transport.StatusShutdown
	}
	// Class 08: connection exception
	if strings.HasPrefix(code, "08") {
		return transport.StatusRefused
	}
	return transport.StatusIO
}

func mysqlStatus(number uint16) int {
	switch number {
	case errDuplicateEntry:
		return transport.StatusExists
	case errLockWaitTimeout, errLockDeadlock:
		return transport.StatusAgain
	case errAccessDenied, errDBAccessDenied, errTableAccessDenied:
		return transport.StatusPerm
	case errTooManyConns:
		return transport.StatusBusy
	case errDataTooLong:
		return transport.StatusNameTooLong
	case errPacketTooLarge:
		return transport.StatusTooBig
	case errUnknownDatabase, errConnRefused:
		return transport.StatusRefused
	}
	return transport.StatusIO
}
