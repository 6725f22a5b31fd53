// Package content implements post and comment operations. Every mutation
// passes the access gate and then runs in a single transaction.
package content

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/alphabot-ai/inkpost/internal/access"
	"github.com/alphabot-ai/inkpost/internal/logging"
	"github.com/alphabot-ai/inkpost/internal/metrics"
	"github.com/alphabot-ai/inkpost/internal/model"
	"github.com/alphabot-ai/inkpost/internal/store"
)

var (
	ErrNotFound       = store.ErrNotFound
	ErrDuplicateTitle = store.ErrDuplicateTitle
)

// PostInput holds the editable fields of a post.
type PostInput struct {
	Title    string `json:"title"`
	Subtitle string `json:"subtitle"`
	ImgURL   string `json:"img_url"`
	Body     string `json:"body"`
}

func (in PostInput) normalize() PostInput {
	return PostInput{
		Title:    strings.TrimSpace(in.Title),
		Subtitle: strings.TrimSpace(in.Subtitle),
		ImgURL:   strings.TrimSpace(in.ImgURL),
		Body:     strings.TrimSpace(in.Body),
	}
}

func (in PostInput) validate() error {
	var v model.ValidationError
	v.Required(map[string]string{
		"title":    in.Title,
		"subtitle": in.Subtitle,
		"img_url":  in.ImgURL,
		"body":     in.Body,
	})
	if in.ImgURL != "" && !validURL(in.ImgURL) {
		v.Add("img_url", "Invalid URL.")
	}
	return v.Err()
}

func validURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" && !strings.ContainsAny(raw, " \t\n")
}

type Service struct {
	store   store.Store
	metrics *metrics.Metrics
	now     func() time.Time
	log     *slog.Logger
}

func NewService(st store.Store, m *metrics.Metrics) *Service {
	return &Service{
		store:   st,
		metrics: m,
		now:     time.Now,
		log:     logging.GetLogger("content"),
	}
}

func (s *Service) CreatePost(ctx context.Context, caller *model.Identity, in PostInput) (model.Post, error) {
	var post model.Post
	err := s.guard(ctx, access.CreatePost, caller, func() error {
		in = in.normalize()
		if err := in.validate(); err != nil {
			return err
		}
		now := s.now()
		post = model.Post{
			Title:      in.Title,
			Subtitle:   in.Subtitle,
			Body:       in.Body,
			ImgURL:     in.ImgURL,
			Date:       now.Format(model.PostDateLayout),
			AuthorID:   caller.ID,
			AuthorName: caller.Name,
			CreatedAt:  now,
		}
		return s.store.InTx(ctx, func(ctx context.Context, r store.Repository) error {
			_, err := r.CreatePost(ctx, &post)
			return err
		})
	})
	if err != nil {
		return model.Post{}, err
	}
	s.log.InfoContext(ctx, "post created", "post_id", post.ID, "title", post.Title)
	return post, nil
}

// EditPost overwrites title, subtitle, image URL and body. The author is kept.
// A missing post is reported before any input problem.
func (s *Service) EditPost(ctx context.Context, caller *model.Identity, id int64, in PostInput) (model.Post, error) {
	var post model.Post
	err := s.guard(ctx, access.EditPost, caller, func() error {
		in = in.normalize()
		return s.store.InTx(ctx, func(ctx context.Context, r store.Repository) error {
			var err error
			post, err = r.GetPost(ctx, id)
			if err != nil {
				return err
			}
			if err := in.validate(); err != nil {
				return err
			}
			post.Title = in.Title
			post.Subtitle = in.Subtitle
			post.ImgURL = in.ImgURL
			post.Body = in.Body
			return r.UpdatePost(ctx, &post)
		})
	})
	if err != nil {
		return model.Post{}, err
	}
	s.log.InfoContext(ctx, "post edited", "post_id", post.ID)
	return post, nil
}

// DeletePost removes a post together with its comments.
func (s *Service) DeletePost(ctx context.Context, caller *model.Identity, id int64) error {
	var removed int64
	err := s.guard(ctx, access.DeletePost, caller, func() error {
		return s.store.InTx(ctx, func(ctx context.Context, r store.Repository) error {
			if _, err := r.GetPost(ctx, id); err != nil {
				return err
			}
			var err error
			if removed, err = r.DeleteCommentsByPost(ctx, id); err != nil {
				return err
			}
			return r.DeletePost(ctx, id)
		})
	})
	if err != nil {
		return err
	}
	s.log.InfoContext(ctx, "post deleted", "post_id", id, "comments_removed", removed)
	return nil
}

func (s *Service) CreateComment(ctx context.Context, caller *model.Identity, postID int64, text string) (model.Comment, error) {
	var comment model.Comment
	err := s.guard(ctx, access.CreateComment, caller, func() error {
		text = strings.TrimSpace(text)
		comment = model.Comment{
			PostID:      postID,
			Text:        text,
			AuthorID:    caller.ID,
			AuthorName:  caller.Name,
			AuthorEmail: caller.Email,
			CreatedAt:   s.now(),
		}
		return s.store.InTx(ctx, func(ctx context.Context, r store.Repository) error {
			if _, err := r.GetPost(ctx, postID); err != nil {
				return err
			}
			if text == "" {
				var v model.ValidationError
				v.Add("text", "This field is required.")
				return v.Err()
			}
			_, err := r.CreateComment(ctx, &comment)
			return err
		})
	})
	if err != nil {
		return model.Comment{}, err
	}
	return comment, nil
}

func (s *Service) ListPosts(ctx context.Context) ([]model.Post, error) {
	return s.store.ListPosts(ctx)
}

// GetPost returns a post with its comments in posting order.
func (s *Service) GetPost(ctx context.Context, id int64) (model.Post, []model.Comment, error) {
	post, err := s.store.GetPost(ctx, id)
	if err != nil {
		return model.Post{}, nil, err
	}
	comments, err := s.store.ListCommentsByPost(ctx, id)
	if err != nil {
		return model.Post{}, nil, fmt.Errorf("list comments: %w", err)
	}
	return post, comments, nil
}

// guard runs fn behind the access gate and records the outcome.
func (s *Service) guard(ctx context.Context, op access.Operation, caller *model.Identity, fn func() error) error {
	err := access.Guard(op, caller, fn)
	if errors.Is(err, access.ErrAccessDenied) || errors.Is(err, access.ErrLoginRequired) {
		reason := access.Decide(op, caller).Reason.String()
		s.metrics.AccessDenied(op.String(), reason)
		s.log.WarnContext(ctx, "operation denied", "operation", op.String(), "reason", reason)
		return err
	}
	s.metrics.ContentOp(op.String(), result(err))
	return err
}

func result(err error) string {
	var ve *model.ValidationError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &ve):
		return "invalid"
	case errors.Is(err, store.ErrNotFound):
		return "not_found"
	case errors.Is(err, store.ErrDuplicateTitle):
		return "duplicate"
	default:
		return "error"
	}
}
