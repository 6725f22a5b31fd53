// Package sqlstore implements store.Store on database/sql for SQLite
// (modernc.org/sqlite) and PostgreSQL (pgx).
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pressly/goose/v3"

	"github.com/alphabot-ai/inkpost/internal/logging"
	"github.com/alphabot-ai/inkpost/internal/store"
	"github.com/alphabot-ai/inkpost/internal/store/sqlstore/migrations"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

type Store struct {
	*repo
	db  *sql.DB
	log *slog.Logger
}

var _ store.Store = (*Store)(nil)

// Open connects to the database named by a DATABASE_URL-style string and
// applies pending migrations.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	s, err := Connect(databaseURL)
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Connect opens the pool without touching the schema.
func Connect(databaseURL string) (*Store, error) {
	d, dsn, err := parseURL(databaseURL)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, err
	}
	if d.name == dialectSQLite.name {
		// One writer at a time; concurrent transactions queue on the pool.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect %s: %w", d.name, err)
	}
	return newStore(db, d), nil
}

func newStore(db *sql.DB, d dialect) *Store {
	return &Store{
		repo: &repo{q: db, dialect: d},
		db:   db,
		log:  logging.GetLogger("store.sqlstore").With("dialect", d.name),
	}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, r store.Repository) error) error {
	return store.WithTx(ctx, s.db, nil, func(ctx context.Context, tx store.DBTX) error {
		return fn(ctx, &repo{q: tx, dialect: s.dialect})
	})
}

// goose keeps its base FS and dialect in package globals.
var gooseMu sync.Mutex

func (s *Store) Migrate(ctx context.Context) error {
	fsys, err := migrations.For(s.dialect.name)
	if err != nil {
		return err
	}

	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(fsys)
	goose.SetLogger(gooseLogger{s.log})
	if err := goose.SetDialect(s.dialect.goose); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, s.db, "."); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	version, err := goose.GetDBVersionContext(ctx, s.db)
	if err != nil {
		return err
	}
	s.log.DebugContext(ctx, "schema up to date", "version", version)
	return nil
}

type gooseLogger struct {
	log *slog.Logger
}

func (g gooseLogger) Printf(format string, v ...any) {
	g.log.Debug(fmt.Sprintf(format, v...))
}

func (g gooseLogger) Fatalf(format string, v ...any) {
	g.log.Error(fmt.Sprintf(format, v...))
}

// repo runs queries against either the pool or a transaction.
type repo struct {
	q       store.DBTX
	dialect dialect
}

func (r *repo) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return r.q.ExecContext(ctx, r.dialect.rebind(query), args...)
}

func (r *repo) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return r.q.QueryContext(ctx, r.dialect.rebind(query), args...)
}

func (r *repo) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return r.q.QueryRowContext(ctx, r.dialect.rebind(query), args...)
}
