package sqlstore

import (
	"context"
	"time"

	"github.com/alphabot-ai/inkpost/internal/model"
)

func (r *repo) CreateSession(ctx context.Context, session model.Session) error {
	_, err := r.exec(ctx, `
INSERT INTO sessions (id, user_id, created_at, expires_at)
VALUES (?, ?, ?, ?)
`, session.ID, session.IdentityID, session.CreatedAt.Unix(), session.ExpiresAt.Unix())
	return err
}

func (r *repo) GetSession(ctx context.Context, id string) (model.Session, error) {
	var (
		s                    model.Session
		createdAt, expiresAt int64
	)
	err := r.queryRow(ctx, `SELECT id, user_id, created_at, expires_at FROM sessions WHERE id = ?`, id).
		Scan(&s.ID, &s.IdentityID, &createdAt, &expiresAt)
	if err != nil {
		return model.Session{}, mapReadError(err)
	}
	s.CreatedAt = time.Unix(createdAt, 0)
	s.ExpiresAt = time.Unix(expiresAt, 0)
	return s, nil
}

// DeleteSession is a no-op for unknown IDs.
func (r *repo) DeleteSession(ctx context.Context, id string) error {
	_, err := r.exec(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	return err
}

func (r *repo) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.exec(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, now.Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
