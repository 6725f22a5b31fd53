package sqlstore

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

type dialect struct {
	name   string
	driver string
	goose  string
}

var (
	dialectSQLite   = dialect{name: "sqlite", driver: "sqlite", goose: "sqlite3"}
	dialectPostgres = dialect{name: "postgres", driver: "pgx", goose: "pgx"}
)

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (d dialect) rebind(query string) string {
	if d.name != dialectPostgres.name {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (d dialect) boolArg(v bool) any {
	if d.name == dialectPostgres.name {
		return v
	}
	if v {
		return 1
	}
	return 0
}

const sqlitePragmas = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

// parseURL maps a DATABASE_URL to a dialect and driver DSN.
//
//	sqlite:///posts.db          relative file
//	sqlite:////var/lib/blog.db  absolute file
//	sqlite:// or sqlite:///:memory:
//	postgres://..., postgresql+psycopg2://...
//	file:...  or a bare path    SQLite
func parseURL(raw string) (dialect, string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return dialect{}, "", fmt.Errorf("empty database url")
	}

	scheme, rest, hasScheme := strings.Cut(raw, "://")
	if !hasScheme || strings.HasPrefix(raw, "file:") {
		return dialectSQLite, sqliteDSN(raw), nil
	}
	scheme, _, _ = strings.Cut(strings.ToLower(scheme), "+")

	switch scheme {
	case "sqlite", "sqlite3":
		path := strings.TrimPrefix(rest, "/")
		if path == "" || path == ":memory:" {
			return dialectSQLite, sqliteDSN("file:inkpost?mode=memory&cache=shared"), nil
		}
		return dialectSQLite, sqliteDSN(path), nil
	case "postgres", "postgresql":
		u, err := url.Parse("postgres://" + rest)
		if err != nil {
			return dialect{}, "", fmt.Errorf("parse database url: %w", err)
		}
		return dialectPostgres, u.String(), nil
	default:
		return dialect{}, "", fmt.Errorf("unsupported database scheme %q", scheme)
	}
}

func sqliteDSN(path string) string {
	if !strings.HasPrefix(path, "file:") {
		path = "file:" + path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	dsn := path + sep + sqlitePragmas
	if !strings.Contains(path, "mode=memory") {
		dsn += "&_pragma=journal_mode(WAL)"
	}
	return dsn
}
