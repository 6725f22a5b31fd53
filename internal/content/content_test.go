package content

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alphabot-ai/inkpost/internal/access"
	"github.com/alphabot-ai/inkpost/internal/auth"
	"github.com/alphabot-ai/inkpost/internal/model"
	"github.com/alphabot-ai/inkpost/internal/store/sqlstore"
)

type fixture struct {
	st      *sqlstore.Store
	auth    *auth.Service
	content *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	st, err := sqlstore.Open(context.Background(), fmt.Sprintf("file:content_%s?mode=memory&cache=shared", name))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	hasher, err := auth.NewHasher(auth.HasherConfig{Iterations: 1000})
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}
	return &fixture{
		st:      st,
		auth:    auth.NewService(st, hasher, "secret", time.Hour, nil),
		content: NewService(st, nil),
	}
}

func (f *fixture) register(t *testing.T, name string) *model.Identity {
	t.Helper()
	ident, err := f.auth.Register(context.Background(), name, strings.ToLower(name)+"@example.com", "pw")
	if err != nil {
		t.Fatalf("register %s: %v", name, err)
	}
	return &ident
}

func post(title string) PostInput {
	return PostInput{Title: title, Subtitle: "A subtitle", ImgURL: "https://images.example.com/cover.jpg", Body: "<p>Body</p>"}
}

func TestAdminEditsAndOthersAreDenied(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "A")
	b := f.register(t, "B")

	hello, err := f.content.CreatePost(ctx, a, post("Hello"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if hello.Date != time.Now().Format(model.PostDateLayout) {
		t.Fatalf("unexpected date %q", hello.Date)
	}

	edited, err := f.content.EditPost(ctx, a, hello.ID, post("Hello2"))
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if edited.Title != "Hello2" || edited.AuthorID != a.ID {
		t.Fatalf("unexpected edited post %+v", edited)
	}

	if _, err := f.content.EditPost(ctx, b, hello.ID, post("Hijack")); !errors.Is(err, access.ErrAccessDenied) {
		t.Fatalf("expected B's edit to be denied, got %v", err)
	}
	if err := f.content.DeletePost(ctx, b, hello.ID); !errors.Is(err, access.ErrAccessDenied) {
		t.Fatalf("expected B's delete to be denied, got %v", err)
	}

	got, _, err := f.content.GetPost(ctx, hello.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "Hello2" {
		t.Fatalf("post changed by denied caller: %+v", got)
	}
}

func TestNonAdminsCannotMutatePosts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "A")
	b := f.register(t, "B")
	p, err := f.content.CreatePost(ctx, a, post("Existing"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	for _, caller := range []*model.Identity{nil, b} {
		if _, err := f.content.CreatePost(ctx, caller, post("New")); !errors.Is(err, access.ErrAccessDenied) {
			t.Fatalf("create: expected denial for %v, got %v", caller, err)
		}
		if _, err := f.content.EditPost(ctx, caller, p.ID, post("New")); !errors.Is(err, access.ErrAccessDenied) {
			t.Fatalf("edit: expected denial for %v, got %v", caller, err)
		}
		if err := f.content.DeletePost(ctx, caller, p.ID); !errors.Is(err, access.ErrAccessDenied) {
			t.Fatalf("delete: expected denial for %v, got %v", caller, err)
		}
	}

	posts, _ := f.content.ListPosts(ctx)
	if len(posts) != 1 {
		t.Fatalf("expected only the admin's post, got %d", len(posts))
	}
}

func TestCreatePostValidation(t *testing.T) {
	f := newFixture(t)
	a := f.register(t, "A")

	_, err := f.content.CreatePost(context.Background(), a, PostInput{Title: "T", ImgURL: "not a url"})
	var ve *model.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	for _, field := range []string{"subtitle", "body", "img_url"} {
		if _, ok := ve.Fields[field]; !ok {
			t.Fatalf("expected %s error, got %v", field, ve.Fields)
		}
	}
	if ve.Fields["img_url"] != "Invalid URL." {
		t.Fatalf("unexpected img_url message %q", ve.Fields["img_url"])
	}

	for _, bad := range []string{"ftp://example.com/a.png", "https://", "/relative.png"} {
		in := post("T")
		in.ImgURL = bad
		if _, err := f.content.CreatePost(context.Background(), a, in); !errors.As(err, &ve) {
			t.Fatalf("expected %q to be rejected, got %v", bad, err)
		}
	}
}

func TestDuplicateTitle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "A")

	if _, err := f.content.CreatePost(ctx, a, post("X")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.content.CreatePost(ctx, a, post("X")); !errors.Is(err, ErrDuplicateTitle) {
		t.Fatalf("expected ErrDuplicateTitle, got %v", err)
	}

	y, err := f.content.CreatePost(ctx, a, post("Y"))
	if err != nil {
		t.Fatalf("create y: %v", err)
	}
	if _, err := f.content.EditPost(ctx, a, y.ID, post("X")); !errors.Is(err, ErrDuplicateTitle) {
		t.Fatalf("expected rename onto X to fail, got %v", err)
	}
	if _, err := f.content.EditPost(ctx, a, y.ID, post("Y")); err != nil {
		t.Fatalf("keeping the same title must succeed: %v", err)
	}
}

func TestConcurrentCreatePostSameTitle(t *testing.T) {
	f := newFixture(t)
	a := f.register(t, "A")

	var (
		wg   sync.WaitGroup
		errs [2]error
	)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.content.CreatePost(context.Background(), a, post("X"))
		}(i)
	}
	wg.Wait()

	var ok, dup int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrDuplicateTitle):
			dup++
		default:
			t.Fatalf("unexpected error %v", err)
		}
	}
	if ok != 1 || dup != 1 {
		t.Fatalf("expected one success and one DuplicateTitle, got ok=%d dup=%d", ok, dup)
	}
}

func TestEditAndDeleteMissingPost(t *testing.T) {
	f := newFixture(t)
	a := f.register(t, "A")

	if _, err := f.content.EditPost(context.Background(), a, 404, post("Z")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on edit, got %v", err)
	}
	if err := f.content.DeletePost(context.Background(), a, 404); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on delete, got %v", err)
	}
}

func TestMissingPostWinsOverInvalidInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "A")
	b := f.register(t, "B")

	if _, err := f.content.EditPost(ctx, a, 404, PostInput{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for invalid edit of a missing post, got %v", err)
	}
	if _, err := f.content.CreateComment(ctx, b, 404, "   "); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for blank comment on a missing post, got %v", err)
	}

	p, err := f.content.CreatePost(ctx, a, post("Present"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	var ve *model.ValidationError
	if _, err := f.content.EditPost(ctx, a, p.ID, PostInput{}); !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for invalid edit of an existing post, got %v", err)
	}
}

func TestComments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "A")
	b := f.register(t, "B")
	p, err := f.content.CreatePost(ctx, a, post("Hello"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	for _, caller := range []*model.Identity{a, b} {
		if _, err := f.content.CreateComment(ctx, caller, p.ID, "nice post"); err != nil {
			t.Fatalf("comment by %s: %v", caller.Name, err)
		}
	}
	if _, err := f.content.CreateComment(ctx, b, 404, "lost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	var ve *model.ValidationError
	if _, err := f.content.CreateComment(ctx, b, p.ID, "  "); !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	if _, err := f.content.CreateComment(ctx, nil, p.ID, "anon"); !errors.Is(err, access.ErrLoginRequired) {
		t.Fatalf("expected ErrLoginRequired for anonymous comment, got %v", err)
	}

	_, comments, err := f.content.GetPost(ctx, p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(comments) != 2 || comments[1].AuthorName != "B" || comments[1].AuthorEmail != "b@example.com" {
		t.Fatalf("unexpected comments %+v", comments)
	}
}

func TestDeleteCascadesComments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "A")
	b := f.register(t, "B")
	p, _ := f.content.CreatePost(ctx, a, post("Doomed"))
	if _, err := f.content.CreateComment(ctx, b, p.ID, "bye"); err != nil {
		t.Fatalf("comment: %v", err)
	}

	if err := f.content.DeletePost(ctx, a, p.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, _, err := f.content.GetPost(ctx, p.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected post gone, got %v", err)
	}
	comments, err := f.st.ListCommentsByPost(ctx, p.ID)
	if err != nil || len(comments) != 0 {
		t.Fatalf("expected no comments left, got %d %v", len(comments), err)
	}
}
