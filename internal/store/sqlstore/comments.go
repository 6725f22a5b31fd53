package sqlstore

import (
	"context"
	"time"

	"github.com/alphabot-ai/inkpost/internal/model"
)

func (r *repo) CreateComment(ctx context.Context, comment *model.Comment) (int64, error) {
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = time.Now()
	}
	var id int64
	err := r.queryRow(ctx, `
INSERT INTO comments (post_id, author_id, text, created_at)
VALUES (?, ?, ?, ?)
RETURNING id
`, comment.PostID, comment.AuthorID, comment.Text, comment.CreatedAt.Unix()).Scan(&id)
	if err != nil {
		return 0, mapWriteError(err)
	}
	comment.ID = id
	return id, nil
}

func (r *repo) ListCommentsByPost(ctx context.Context, postID int64) ([]model.Comment, error) {
	rows, err := r.query(ctx, `
SELECT c.id, c.post_id, c.text, c.author_id, COALESCE(u.name, ''), COALESCE(u.email, ''), c.created_at
FROM comments c
LEFT JOIN users u ON u.id = c.author_id
WHERE c.post_id = ?
ORDER BY c.id ASC
`, postID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var comments []model.Comment
	for rows.Next() {
		var (
			c         model.Comment
			createdAt int64
		)
		if err := rows.Scan(&c.ID, &c.PostID, &c.Text, &c.AuthorID, &c.AuthorName, &c.AuthorEmail, &createdAt); err != nil {
			return nil, err
		}
		c.CreatedAt = time.Unix(createdAt, 0)
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

func (r *repo) DeleteCommentsByPost(ctx context.Context, postID int64) (int64, error) {
	res, err := r.exec(ctx, `DELETE FROM comments WHERE post_id = ?`, postID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
