package sqlstore

import (
	"context"
	"time"

	"github.com/alphabot-ai/inkpost/internal/model"
	"github.com/alphabot-ai/inkpost/internal/store"
)

const postSelect = `
SELECT p.id, p.title, p.subtitle, p.body, p.img_url, p.date, p.author_id, COALESCE(u.name, ''), p.created_at, p.updated_at
FROM blog_posts p
LEFT JOIN users u ON u.id = p.author_id
`

func (r *repo) CreatePost(ctx context.Context, post *model.Post) (int64, error) {
	now := time.Now()
	if post.CreatedAt.IsZero() {
		post.CreatedAt = now
	}
	post.UpdatedAt = post.CreatedAt
	var id int64
	err := r.queryRow(ctx, `
INSERT INTO blog_posts (author_id, title, subtitle, date, body, img_url, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
RETURNING id
`, post.AuthorID, post.Title, post.Subtitle, post.Date, post.Body, post.ImgURL, post.CreatedAt.Unix(), post.UpdatedAt.Unix()).Scan(&id)
	if err != nil {
		return 0, mapWriteError(err)
	}
	post.ID = id
	return id, nil
}

func (r *repo) GetPost(ctx context.Context, id int64) (model.Post, error) {
	return scanPost(r.queryRow(ctx, postSelect+`WHERE p.id = ?`, id))
}

func (r *repo) ListPosts(ctx context.Context) ([]model.Post, error) {
	rows, err := r.query(ctx, postSelect+`ORDER BY p.id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []model.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

// UpdatePost overwrites the editable fields. The author is left untouched.
func (r *repo) UpdatePost(ctx context.Context, post *model.Post) error {
	post.UpdatedAt = time.Now()
	res, err := r.exec(ctx, `
UPDATE blog_posts SET title = ?, subtitle = ?, body = ?, img_url = ?, updated_at = ?
WHERE id = ?
`, post.Title, post.Subtitle, post.Body, post.ImgURL, post.UpdatedAt.Unix(), post.ID)
	if err != nil {
		return mapWriteError(err)
	}
	return requireAffected(res)
}

func (r *repo) DeletePost(ctx context.Context, id int64) error {
	res, err := r.exec(ctx, `DELETE FROM blog_posts WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func scanPost(row rowScanner) (model.Post, error) {
	var (
		p                    model.Post
		createdAt, updatedAt int64
	)
	if err := row.Scan(&p.ID, &p.Title, &p.Subtitle, &p.Body, &p.ImgURL, &p.Date, &p.AuthorID, &p.AuthorName, &createdAt, &updatedAt); err != nil {
		return model.Post{}, mapReadError(err)
	}
	p.CreatedAt = time.Unix(createdAt, 0)
	p.UpdatedAt = time.Unix(updatedAt, 0)
	return p, nil
}

func requireAffected(res interface{ RowsAffected() (int64, error) }) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
