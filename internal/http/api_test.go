package httpapp

import (
	"bytes"
	"encoding/json"
	"net/http"
	"sync"
	"testing"
)

type apiSession struct {
	Token    string `json:"token"`
	Identity struct {
		ID      int64 `json:"id"`
		IsAdmin bool  `json:"is_admin"`
	} `json:"identity"`
}

func (c *testClient) apiRegister(t *testing.T, name string) apiSession {
	t.Helper()
	resp := c.postJSON(t, http.MethodPost, "/api/register", map[string]string{
		"name":     name,
		"email":    name + "@example.com",
		"password": "pw-" + name,
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register %s: status %d: %s", name, resp.StatusCode, readBody(t, resp))
	}
	var sess apiSession
	decodeJSON(t, resp, &sess)
	if sess.Token == "" {
		t.Fatalf("expected token for %s", name)
	}
	return sess
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func expectStatus(t *testing.T, resp *http.Response, want int, what string) {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("%s: expected %d, got %d: %s", what, want, resp.StatusCode, readBody(t, resp))
	}
	resp.Body.Close()
}

var helloPost = map[string]string{
	"title":    "Hello",
	"subtitle": "First post",
	"img_url":  "https://images.example.com/hello.jpg",
	"body":     "<p>hi</p>",
}

func TestAPIPostScenario(t *testing.T) {
	tc := newTestClient(t)
	a := tc.apiRegister(t, "ada")
	b := tc.as(t).apiRegister(t, "bob")
	if !a.Identity.IsAdmin || b.Identity.IsAdmin {
		t.Fatalf("expected only the first account to be admin: a=%v b=%v", a.Identity.IsAdmin, b.Identity.IsAdmin)
	}
	anon := tc.as(t)

	resp := anon.postJSON(t, http.MethodPost, "/api/posts", helloPost, bearer(a.Token))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create post: %d %s", resp.StatusCode, readBody(t, resp))
	}
	var post struct {
		ID       int64  `json:"id"`
		Title    string `json:"title"`
		Date     string `json:"date"`
		AuthorID int64  `json:"author_id"`
	}
	decodeJSON(t, resp, &post)
	if post.ID == 0 || post.AuthorID != a.Identity.ID || post.Date == "" {
		t.Fatalf("unexpected post %+v", post)
	}

	edit := map[string]string{}
	for k, v := range helloPost {
		edit[k] = v
	}
	edit["title"] = "Hello2"
	expectStatus(t, anon.postJSON(t, http.MethodPut, "/api/posts/1", edit, bearer(a.Token)), http.StatusOK, "admin edit")
	expectStatus(t, anon.postJSON(t, http.MethodPut, "/api/posts/1", helloPost, bearer(b.Token)), http.StatusForbidden, "member edit")
	expectStatus(t, anon.postJSON(t, http.MethodDelete, "/api/posts/1", nil, bearer(b.Token)), http.StatusForbidden, "member delete")
	expectStatus(t, anon.postJSON(t, http.MethodPost, "/api/posts", helloPost, bearer(b.Token)), http.StatusForbidden, "member create")
	expectStatus(t, anon.postJSON(t, http.MethodPost, "/api/posts", helloPost, nil), http.StatusForbidden, "anonymous create")

	expectStatus(t, anon.postJSON(t, http.MethodPost, "/api/posts/1/comments", map[string]string{"text": "nice"}, bearer(b.Token)), http.StatusCreated, "member comment")
	expectStatus(t, anon.postJSON(t, http.MethodPost, "/api/posts/1/comments", map[string]string{"text": "anon"}, nil), http.StatusUnauthorized, "anonymous comment")
	expectStatus(t, anon.postJSON(t, http.MethodPost, "/api/posts/99/comments", map[string]string{"text": "lost"}, bearer(b.Token)), http.StatusNotFound, "comment on missing post")

	var detail struct {
		Post struct {
			Title string `json:"title"`
		} `json:"post"`
		Comments []struct {
			Text       string `json:"text"`
			AuthorName string `json:"author_name"`
		} `json:"comments"`
	}
	decodeJSON(t, anon.get(t, "/api/posts/1", nil), &detail)
	if detail.Post.Title != "Hello2" {
		t.Fatalf("expected edited title, got %q", detail.Post.Title)
	}
	if len(detail.Comments) != 1 || detail.Comments[0].AuthorName != "bob" {
		t.Fatalf("expected bob's comment only, got %+v", detail.Comments)
	}

	expectStatus(t, anon.postJSON(t, http.MethodDelete, "/api/posts/1", nil, bearer(a.Token)), http.StatusOK, "admin delete")
	expectStatus(t, anon.get(t, "/api/posts/1", nil), http.StatusNotFound, "deleted post")
	expectStatus(t, anon.postJSON(t, http.MethodDelete, "/api/posts/1", nil, bearer(a.Token)), http.StatusNotFound, "delete twice")

	var list struct {
		Posts []any `json:"posts"`
	}
	decodeJSON(t, anon.get(t, "/api/posts", nil), &list)
	if list.Posts == nil || len(list.Posts) != 0 {
		t.Fatalf("expected empty post list, got %v", list.Posts)
	}
}

func TestAPISessions(t *testing.T) {
	tc := newTestClient(t)
	a := tc.apiRegister(t, "ada")
	anon := tc.as(t)

	expectStatus(t, anon.get(t, "/api/me", nil), http.StatusUnauthorized, "anonymous me")
	expectStatus(t, anon.get(t, "/api/me", bearer(a.Token)), http.StatusOK, "me")

	expectStatus(t, anon.postJSON(t, http.MethodPost, "/api/register", map[string]string{
		"name": "again", "email": "ada@example.com", "password": "x",
	}, nil), http.StatusConflict, "duplicate register")
	expectStatus(t, anon.postJSON(t, http.MethodPost, "/api/login", map[string]string{
		"email": "ada@example.com", "password": "wrong",
	}, nil), http.StatusUnauthorized, "bad password")
	expectStatus(t, anon.postJSON(t, http.MethodPost, "/api/login", map[string]string{
		"email": "ghost@example.com", "password": "x",
	}, nil), http.StatusUnauthorized, "unknown email")

	resp := anon.postJSON(t, http.MethodPost, "/api/login", map[string]string{
		"email": "ada@example.com", "password": "pw-ada",
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: %d %s", resp.StatusCode, readBody(t, resp))
	}
	var second apiSession
	decodeJSON(t, resp, &second)

	expectStatus(t, anon.postJSON(t, http.MethodPost, "/api/logout", nil, bearer(a.Token)), http.StatusOK, "logout")
	expectStatus(t, anon.get(t, "/api/me", bearer(a.Token)), http.StatusUnauthorized, "me after logout")
	expectStatus(t, anon.get(t, "/api/me", bearer(second.Token)), http.StatusOK, "other session survives")
	expectStatus(t, anon.postJSON(t, http.MethodPost, "/api/logout", nil, bearer(a.Token)), http.StatusOK, "logout twice")
	expectStatus(t, anon.postJSON(t, http.MethodPost, "/api/logout", nil, nil), http.StatusOK, "logout anonymous")
}

func TestAPIValidationErrors(t *testing.T) {
	tc := newTestClient(t)
	a := tc.apiRegister(t, "ada")

	resp := tc.postJSON(t, http.MethodPost, "/api/posts", map[string]string{"title": "Only a title"}, bearer(a.Token))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	var body struct {
		Error  string            `json:"error"`
		Fields map[string]string `json:"fields"`
	}
	decodeJSON(t, resp, &body)
	for _, f := range []string{"subtitle", "img_url", "body"} {
		if body.Fields[f] == "" {
			t.Fatalf("expected field error for %s, got %v", f, body.Fields)
		}
	}

	expectStatus(t, tc.postJSON(t, http.MethodPost, "/api/posts", map[string]string{"unknown": "x"}, bearer(a.Token)), http.StatusBadRequest, "unknown field")
	expectStatus(t, tc.postJSON(t, http.MethodPost, "/api/register", map[string]string{"name": "x"}, nil), http.StatusBadRequest, "register missing fields")
}

func TestAPIConcurrentDuplicateTitle(t *testing.T) {
	tc := newTestClient(t)
	a := tc.apiRegister(t, "ada")
	post := map[string]string{
		"title":    "X",
		"subtitle": "race",
		"img_url":  "https://images.example.com/x.jpg",
		"body":     "<p>x</p>",
	}

	payload, _ := json.Marshal(post)
	var wg sync.WaitGroup
	codes := make([]int, 2)
	for i := range codes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req, _ := http.NewRequest(http.MethodPost, tc.server.URL+"/api/posts", bytes.NewReader(payload))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", "Bearer "+a.Token)
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Errorf("post: %v", err)
				return
			}
			codes[i] = resp.StatusCode
			resp.Body.Close()
		}(i)
	}
	wg.Wait()

	if !(codes[0] == http.StatusCreated && codes[1] == http.StatusConflict) &&
		!(codes[0] == http.StatusConflict && codes[1] == http.StatusCreated) {
		t.Fatalf("expected one 201 and one 409, got %v", codes)
	}
}
