package httpapp_test

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/alphabot-ai/inkpost/internal/auth"
	"github.com/alphabot-ai/inkpost/internal/client"
	"github.com/alphabot-ai/inkpost/internal/config"
	"github.com/alphabot-ai/inkpost/internal/content"
	httpapp "github.com/alphabot-ai/inkpost/internal/http"
	"github.com/alphabot-ai/inkpost/internal/metrics"
	"github.com/alphabot-ai/inkpost/internal/rate"
	"github.com/alphabot-ai/inkpost/internal/store/sqlstore"
)

func TestEndToEndServer(t *testing.T) {
	st, err := sqlstore.Open(context.Background(), "file:e2e_test?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	cfg := config.Default()
	cfg.Addr = ":0"
	cfg.SecretKey = "e2e-secret"
	cfg.RateLimits = config.RateLimits{LoginPerMinute: 1000, RegisterPerMinute: 1000, CommentPerMinute: 1000}

	hasher, err := auth.NewHasher(auth.HasherConfig{Method: auth.MethodBcrypt, SaltLength: 8, BcryptCost: 4})
	if err != nil {
		t.Fatalf("new hasher: %v", err)
	}
	m := metrics.New()
	authSvc := auth.NewService(st, hasher, cfg.SecretKey, time.Hour, m)
	server, err := httpapp.NewServer(content.NewService(st, m), authSvc, st, rate.NewMemory(), m, cfg)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer listener.Close()

	httpServer := &http.Server{Handler: server}
	go func() {
		_ = httpServer.Serve(listener)
	}()
	defer httpServer.Close()

	baseURL := "http://" + listener.Addr().String()
	helper := client.NewTestHelper(baseURL)

	admin, err := helper.CreateAuthenticatedClient("e2e-admin")
	if err != nil {
		t.Fatalf("create admin: %v", err)
	}
	me, err := admin.Me()
	if err != nil {
		t.Fatalf("me: %v", err)
	}
	if !me.IsAdmin {
		t.Fatalf("expected first account to be admin")
	}

	post, err := admin.CreatePost(client.PostInput{
		Title:    "E2E Post",
		Subtitle: "End to end",
		ImgURL:   "https://images.example.com/e2e.jpg",
		Body:     "<p>hello</p>",
	})
	if err != nil {
		t.Fatalf("create post: %v", err)
	}

	reader, err := helper.CreateAuthenticatedClient("e2e-reader")
	if err != nil {
		t.Fatalf("create reader: %v", err)
	}
	if _, err := reader.CreateComment(post.ID, "Great read"); err != nil {
		t.Fatalf("comment: %v", err)
	}
	if _, err := reader.CreatePost(client.PostInput{Title: "Nope"}); client.StatusOf(err) != http.StatusForbidden {
		t.Fatalf("expected 403 for reader post, got %v", err)
	}

	// Logging in again with the same name reuses the account.
	again, err := helper.CreateAuthenticatedClient("e2e-reader")
	if err != nil {
		t.Fatalf("re-login reader: %v", err)
	}
	if again.Token == reader.Token {
		t.Fatalf("expected a fresh session token")
	}

	got, comments, err := client.New(baseURL).GetPost(post.ID)
	if err != nil {
		t.Fatalf("get post: %v", err)
	}
	if got.Title != "E2E Post" || got.AuthorName != "e2e-admin" {
		t.Fatalf("unexpected post %+v", got)
	}
	if len(comments) != 1 || comments[0].AuthorName != "e2e-reader" {
		t.Fatalf("unexpected comments %+v", comments)
	}

	if err := reader.Logout(); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if err := admin.DeletePost(post.ID); err != nil {
		t.Fatalf("delete post: %v", err)
	}
	if _, _, err := admin.GetPost(post.ID); client.StatusOf(err) != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %v", err)
	}
	posts, err := admin.ListPosts()
	if err != nil {
		t.Fatalf("list posts: %v", err)
	}
	if len(posts) != 0 {
		t.Fatalf("expected no posts, got %d", len(posts))
	}
}
