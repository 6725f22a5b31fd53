package store

import (
	"context"
	"errors"
	"time"

	"github.com/alphabot-ai/inkpost/internal/model"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicateIdentity = errors.New("an account with that e-mail already exists")
	ErrDuplicateTitle    = errors.New("a post with that title already exists")
	// ErrDuplicateAdmin is returned when a second identity is inserted with the admin flag.
	ErrDuplicateAdmin = errors.New("an admin account already exists")
)

// Repository is the full set of queries, bound to either a pool or a transaction.
type Repository interface {
	IdentityStore
	PostStore
	CommentStore
	SessionStore
}

// Store owns the connection pool and hands out repositories bound to it.
type Store interface {
	Repository
	// InTx runs fn with a repository bound to a single transaction.
	InTx(ctx context.Context, fn func(ctx context.Context, r Repository) error) error
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

type IdentityStore interface {
	CreateIdentity(ctx context.Context, identity *model.Identity) (int64, error)
	GetIdentity(ctx context.Context, id int64) (model.Identity, error)
	GetIdentityByEmail(ctx context.Context, email string) (model.Identity, error)
	HasAdmin(ctx context.Context) (bool, error)
}

type PostStore interface {
	CreatePost(ctx context.Context, post *model.Post) (int64, error)
	GetPost(ctx context.Context, id int64) (model.Post, error)
	ListPosts(ctx context.Context) ([]model.Post, error)
	UpdatePost(ctx context.Context, post *model.Post) error
	DeletePost(ctx context.Context, id int64) error
}

type CommentStore interface {
	CreateComment(ctx context.Context, comment *model.Comment) (int64, error)
	ListCommentsByPost(ctx context.Context, postID int64) ([]model.Comment, error)
	DeleteCommentsByPost(ctx context.Context, postID int64) (int64, error)
}

type SessionStore interface {
	CreateSession(ctx context.Context, session model.Session) error
	GetSession(ctx context.Context, id string) (model.Session, error)
	DeleteSession(ctx context.Context, id string) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}
