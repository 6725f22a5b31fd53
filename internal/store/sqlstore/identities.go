package sqlstore

import (
	"context"
	"time"

	"github.com/alphabot-ai/inkpost/internal/model"
)

const identityColumns = `id, email, password, name, is_admin, created_at`

func (r *repo) CreateIdentity(ctx context.Context, identity *model.Identity) (int64, error) {
	if identity.CreatedAt.IsZero() {
		identity.CreatedAt = time.Now()
	}
	var id int64
	err := r.queryRow(ctx, `
INSERT INTO users (email, password, name, is_admin, created_at)
VALUES (?, ?, ?, ?, ?)
RETURNING id
`, identity.Email, identity.PasswordHash, identity.Name, r.dialect.boolArg(identity.IsAdmin), identity.CreatedAt.Unix()).Scan(&id)
	if err != nil {
		return 0, mapWriteError(err)
	}
	identity.ID = id
	return id, nil
}

func (r *repo) GetIdentity(ctx context.Context, id int64) (model.Identity, error) {
	row := r.queryRow(ctx, `SELECT `+identityColumns+` FROM users WHERE id = ?`, id)
	return scanIdentity(row)
}

func (r *repo) GetIdentityByEmail(ctx context.Context, email string) (model.Identity, error) {
	row := r.queryRow(ctx, `SELECT `+identityColumns+` FROM users WHERE email = ?`, email)
	return scanIdentity(row)
}

func (r *repo) HasAdmin(ctx context.Context) (bool, error) {
	var n int64
	if err := r.queryRow(ctx, `SELECT COUNT(*) FROM users WHERE is_admin = ?`, r.dialect.boolArg(true)).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

func scanIdentity(row rowScanner) (model.Identity, error) {
	var (
		ident     model.Identity
		createdAt int64
	)
	if err := row.Scan(&ident.ID, &ident.Email, &ident.PasswordHash, &ident.Name, &ident.IsAdmin, &createdAt); err != nil {
		return model.Identity{}, mapReadError(err)
	}
	ident.CreatedAt = time.Unix(createdAt, 0)
	return ident, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}
