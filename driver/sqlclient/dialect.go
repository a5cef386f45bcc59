package sqlclient

import (
	"fmt"
	"regexp"
	"strings"
)

// dialect holds the SQL differences between the supported databases.
type dialect struct {
	name       string
	sqlDriver  string
	positional bool
	schema     string
	upsert     string
}

var dialects = map[string]dialect{
	"sqlite": {
		name:      "sqlite",
		sqlDriver: "sqlite",
		schema:    "CREATE TABLE IF NOT EXISTS %s (k TEXT PRIMARY KEY, v BLOB NOT NULL, ea INTEGER NOT NULL)",
		upsert:    "INSERT INTO %s (k, v, ea) VALUES (%s, %s, %s) ON CONFLICT(k) DO UPDATE SET v = excluded.v, ea = excluded.ea",
	},
	"postgres": {
		name:       "postgres",
		sqlDriver:  "pgx",
		positional: true,
		schema:     "CREATE TABLE IF NOT EXISTS %s (k TEXT PRIMARY KEY, v BYTEA NOT NULL, ea BIGINT NOT NULL)",
		upsert:     "INSERT INTO %s (k, v, ea) VALUES (%s, %s, %s) ON CONFLICT (k) DO UPDATE SET v = EXCLUDED.v, ea = EXCLUDED.ea",
	},
	"mysql": {
		name:      "mysql",
		sqlDriver: "mysql",
		schema:    "CREATE TABLE IF NOT EXISTS %s (k VARBINARY(255) PRIMARY KEY, v LONGBLOB NOT NULL, ea BIGINT NOT NULL) ENGINE=InnoDB",
		upsert:    "INSERT INTO %s (k, v, ea) VALUES (%s, %s, %s) ON DUPLICATE KEY UPDATE v = VALUES(v), ea = VALUES(ea)",
	},
}

// dialectFor maps a database/sql driver name, or a dialect alias, to its dialect.
func dialectFor(driverName string) (dialect, error) {
	switch strings.ToLower(driverName) {
	case "sqlite", "sqlite3":
		return dialects["sqlite"], nil
	case "postgres", "postgresql", "pgx":
		return dialects["postgres"], nil
	case "mysql", "mariadb":
		return dialects["mysql"], nil
	default:
		return dialect{}, fmt.Errorf("sql: unsupported driver %q", driverName)
	}
}

func (d dialect) ph(i int) string {
	if d.positional {
		return fmt.Sprintf("$%d", i)
	}
	return "?"
}

// placeholders returns n comma separated placeholders starting at from.
func (d dialect) placeholders(from, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = d.ph(from + i)
	}
	return strings.Join(parts, ", ")
}

func (d dialect) schemaSQL(table string) string {
	return fmt.Sprintf(d.schema, table)
}

func (d dialect) upsertSQL(table string) string {
	return fmt.Sprintf(d.upsert, table, d.ph(1), d.ph(2), d.ph(3))
}

func (d dialect) getSQL(table string) string {
	return fmt.Sprintf("SELECT v, ea FROM %s WHERE k = %s", table, d.ph(1))
}

func (d dialect) getManySQL(table string, n int) string {
	return fmt.Sprintf("SELECT k, v, ea FROM %s WHERE k IN (%s)", table, d.placeholders(1, n))
}

func (d dialect) deleteSQL(table string) string {
	return fmt.Sprintf("DELETE FROM %s WHERE k = %s", table, d.ph(1))
}

// expireSQL deletes a key only while its row is expired, so a row rewritten
// by a concurrent Set survives.
func (d dialect) expireSQL(table string) string {
	return fmt.Sprintf("DELETE FROM %s WHERE k = %s AND ea < %s", table, d.ph(1), d.ph(2))
}

// flushSQL deletes rows whose key starts with a LIKE pattern escaped with '!'.
func (d dialect) flushSQL(table string) string {
	return fmt.Sprintf("DELETE FROM %s WHERE k LIKE %s ESCAPE '!'", table, d.ph(1))
}

func likePrefix(prefix string) string {
	r := strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")
	return r.Replace(prefix) + "%"
}

var identPartRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func validateTableName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("sql: table name is required")
	}
	for _, part := range strings.Split(name, ".") {
		if !identPartRE.MatchString(part) {
			return fmt.Errorf("sql: invalid table name %q", name)
		}
	}
	return nil
}
