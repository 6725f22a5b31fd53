package sqlstore

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/alphabot-ai/inkpost/internal/store"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// uniqueViolation reports the constraint behind a unique violation: the
// "table.column" text for SQLite, the constraint name for PostgreSQL.
func uniqueViolation(err error) (string, bool) {
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
			return liteErr.Error(), true
		}
		return "", false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return pgErr.ConstraintName, true
	}
	return "", false
}

// foreignKeyViolation reports an insert that referenced a missing row, such as
// a comment on a post deleted by a concurrent transaction.
func foreignKeyViolation(err error) bool {
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation
}

func mapWriteError(err error) error {
	if err == nil {
		return nil
	}
	if foreignKeyViolation(err) {
		return errors.Join(store.ErrNotFound, err)
	}
	constraint, ok := uniqueViolation(err)
	if !ok {
		return err
	}
	switch {
	case strings.Contains(constraint, "email"):
		return errors.Join(store.ErrDuplicateIdentity, err)
	case strings.Contains(constraint, "title"):
		return errors.Join(store.ErrDuplicateTitle, err)
	case strings.Contains(constraint, "admin"):
		return errors.Join(store.ErrDuplicateAdmin, err)
	}
	return err
}

func mapReadError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}
