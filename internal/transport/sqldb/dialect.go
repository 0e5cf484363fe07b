package sqldb

import (
	"strconv"
	"strings"
)

// dialect holds the statements that differ between engines. Every query in
// this package is written with '?' placeholders and passed through q.
type dialect struct {
	name       string
	numbered   bool // $1, $2 ... placeholders
	schema     []string
	putObject  string
	insertMeta string
}

var postgresDialect = dialect{
	name:     DriverPostgres,
	numbered: true,
	schema: []string{
		`CREATE TABLE IF NOT EXISTS rados_meta (
			k VARCHAR(64) PRIMARY KEY,
			v VARCHAR(255) NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS rados_pools (
			id       BIGSERIAL PRIMARY KEY,
			name     VARCHAR(255) COLLATE "C" NOT NULL UNIQUE,
			auid     BIGINT NOT NULL DEFAULT 0,
			snap_seq BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS rados_objects (
			pool_id  BIGINT NOT NULL,
			snap_id  BIGINT NOT NULL,
			obj_name BYTEA  NOT NULL,
			data     BYTEA  NOT NULL,
			mtime    BIGINT NOT NULL,
			PRIMARY KEY (pool_id, snap_id, obj_name)
		)`,
		`CREATE TABLE IF NOT EXISTS rados_snaps (
			pool_id BIGINT NOT NULL,
			snap_id BIGINT NOT NULL,
			name    VARCHAR(255) COLLATE "C" NOT NULL,
			stamp   BIGINT NOT NULL,
			PRIMARY KEY (pool_id, snap_id),
			UNIQUE (pool_id, name)
		)`,
	},
	putObject: `INSERT INTO rados_objects (pool_id, snap_id, obj_name, data, mtime)
		VALUES (?, 0, ?, ?, ?)
		ON CONFLICT (pool_id, snap_id, obj_name)
		DO UPDATE SET data = EXCLUDED.data, mtime = EXCLUDED.mtime`,
	insertMeta: `INSERT INTO rados_meta (k, v) VALUES (?, ?) ON CONFLICT (k) DO NOTHING`,
}

var mysqlDialect = dialect{
	name: DriverMySQL,
	schema: []string{
		`CREATE TABLE IF NOT EXISTS rados_meta (
			k VARCHAR(64) PRIMARY KEY,
			v VARCHAR(255) NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS rados_pools (
			id       BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
			name     VARBINARY(255) NOT NULL UNIQUE,
			auid     BIGINT NOT NULL DEFAULT 0,
			snap_seq BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS rados_objects (
			pool_id  BIGINT NOT NULL,
			snap_id  BIGINT NOT NULL,
			obj_name VARBINARY(2048) NOT NULL,
			data     LONGBLOB NOT NULL,
			mtime    BIGINT NOT NULL,
			PRIMARY KEY (pool_id, snap_id, obj_name)
		)`,
		`CREATE TABLE IF NOT EXISTS rados_snaps (
			pool_id BIGINT NOT NULL,
			snap_id BIGINT NOT NULL,
			name    VARBINARY(255) NOT NULL,
			stamp   BIGINT NOT NULL,
			PRIMARY KEY (pool_id, snap_id),
			UNIQUE KEY pool_snap_name (pool_id, name)
		)`,
	},
	putObject: `INSERT INTO rados_objects (pool_id, snap_id, obj_name, data, mtime)
		VALUES (?, 0, ?, ?, ?)
		ON DUPLICATE KEY UPDATE data = VALUES(data), mtime = VALUES(mtime)`,
	insertMeta: `INSERT IGNORE INTO rados_meta (k, v) VALUES (?, ?)`,
}

func dialectFor(driver string) (dialect, bool) {
	switch driver {
	case DriverPostgres:
		return postgresDialect, true
	case DriverMySQL:
		return mysqlDialect, true
	}
	return dialect{}, false
}

// q rewrites '?' placeholders for the engine.
func (d dialect) q(query string) string {
	if !d.numbered {
		return query
	}
	return rebind(query)
}

// rebind turns '?' into $1, $2 ... outside of quoted literals.
func rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	var quote byte
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '?':
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}
