// Package client provides a Go client for the Inkpost JSON API.
package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"
)

// Client is an Inkpost API client.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Token      string
	TokenExp   time.Time
}

// New creates a new Inkpost client.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

var (
	ErrAlreadyRegistered = errors.New("already registered")
	ErrNotLoggedIn       = errors.New("not logged in")
)

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string            `json:"error"`
	Fields  map[string]string `json:"fields"`
}

func (e *APIError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("%s (%d)", e.Message, e.Status)
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return fmt.Sprintf("%s (%d): %s", e.Message, e.Status, strings.Join(parts, "; "))
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// Identity is an account as reported by the API.
type Identity struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
}

// Post represents a blog post from the API.
type Post struct {
	ID         int64     `json:"id"`
	Title      string    `json:"title"`
	Subtitle   string    `json:"subtitle"`
	Body       string    `json:"body"`
	ImgURL     string    `json:"img_url"`
	Date       string    `json:"date"`
	AuthorID   int64     `json:"author_id"`
	AuthorName string    `json:"author_name"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// PostInput is the editable part of a post.
type PostInput struct {
	Title    string `json:"title"`
	Subtitle string `json:"subtitle"`
	ImgURL   string `json:"img_url"`
	Body     string `json:"body"`
}

// Comment represents a comment from the API.
type Comment struct {
	ID         int64     `json:"id"`
	PostID     int64     `json:"post_id"`
	Text       string    `json:"text"`
	AuthorID   int64     `json:"author_id"`
	AuthorName string    `json:"author_name"`
	CreatedAt  time.Time `json:"created_at"`
}

type session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Identity  Identity  `json:"identity"`
}

// Register creates an account and keeps the session it returns.
func (c *Client) Register(name, email, password string) (*Identity, error) {
	var sess session
	err := c.do(http.MethodPost, "/api/register", map[string]string{
		"name":     name,
		"email":    email,
		"password": password,
	}, &sess)
	if err != nil {
		if StatusOf(err) == http.StatusConflict {
			return nil, fmt.Errorf("%w: %v", ErrAlreadyRegistered, err)
		}
		return nil, err
	}
	c.Token, c.TokenExp = sess.Token, sess.ExpiresAt
	return &sess.Identity, nil
}

// Login exchanges credentials for a session token.
func (c *Client) Login(email, password string) (*Identity, error) {
	var sess session
	err := c.do(http.MethodPost, "/api/login", map[string]string{
		"email":    email,
		"password": password,
	}, &sess)
	if err != nil {
		return nil, err
	}
	c.Token, c.TokenExp = sess.Token, sess.ExpiresAt
	return &sess.Identity, nil
}

// Logout ends the server-side session and forgets the token.
func (c *Client) Logout() error {
	if c.Token == "" {
		return nil
	}
	err := c.do(http.MethodPost, "/api/logout", nil, nil)
	c.Token, c.TokenExp = "", time.Time{}
	return err
}

// IsAuthenticated returns true if the client has an unexpired token.
func (c *Client) IsAuthenticated() bool {
	return c.Token != "" && time.Now().Before(c.TokenExp)
}

func (c *Client) Me() (*Identity, error) {
	if c.Token == "" {
		return nil, ErrNotLoggedIn
	}
	var ident Identity
	if err := c.do(http.MethodGet, "/api/me", nil, &ident); err != nil {
		return nil, err
	}
	return &ident, nil
}

func (c *Client) ListPosts() ([]Post, error) {
	var result struct {
		Posts []Post `json:"posts"`
	}
	if err := c.do(http.MethodGet, "/api/posts", nil, &result); err != nil {
		return nil, err
	}
	return result.Posts, nil
}

// GetPost fetches a post and its comments.
func (c *Client) GetPost(id int64) (*Post, []Comment, error) {
	var result struct {
		Post     Post      `json:"post"`
		Comments []Comment `json:"comments"`
	}
	if err := c.do(http.MethodGet, fmt.Sprintf("/api/posts/%d", id), nil, &result); err != nil {
		return nil, nil, err
	}
	return &result.Post, result.Comments, nil
}

func (c *Client) CreatePost(in PostInput) (*Post, error) {
	var post Post
	if err := c.do(http.MethodPost, "/api/posts", in, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

func (c *Client) EditPost(id int64, in PostInput) (*Post, error) {
	var post Post
	if err := c.do(http.MethodPut, fmt.Sprintf("/api/posts/%d", id), in, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

// DeletePost removes a post together with its comments.
func (c *Client) DeletePost(id int64) error {
	return c.do(http.MethodDelete, fmt.Sprintf("/api/posts/%d", id), nil, nil)
}

func (c *Client) CreateComment(postID int64, text string) (*Comment, error) {
	var comment Comment
	err := c.do(http.MethodPost, fmt.Sprintf("/api/posts/%d/comments", postID), map[string]string{"text": text}, &comment)
	if err != nil {
		return nil, err
	}
	return &comment, nil
}

// doRequest performs an authenticated HTTP request.
func (c *Client) doRequest(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, c.BaseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	return c.HTTPClient.Do(req)
}

// do sends the request and decodes a 2xx body into out. Other statuses come
// back as *APIError.
func (c *Client) do(method, path string, body, out any) error {
	resp, err := c.doRequest(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{Status: resp.StatusCode}
		if json.Unmarshal(raw, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(raw))
			if apiErr.Message == "" {
				apiErr.Message = http.StatusText(resp.StatusCode)
			}
		}
		return apiErr
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// TestHelper provides utilities for creating authenticated clients in tests.
type TestHelper struct {
	BaseURL string
}

// NewTestHelper creates a new test helper for the given base URL.
func NewTestHelper(baseURL string) *TestHelper {
	return &TestHelper{BaseURL: baseURL}
}

// CreateAuthenticatedClient registers name@example.com (or logs in if the
// account exists) and returns a client holding its session.
func (h *TestHelper) CreateAuthenticatedClient(name string) (*Client, error) {
	c := New(h.BaseURL)
	email := name + "@example.com"
	password := "password-" + name
	if _, err := c.Register(name, email, password); err != nil {
		if !errors.Is(err, ErrAlreadyRegistered) {
			return nil, fmt.Errorf("register: %w", err)
		}
		if _, err := c.Login(email, password); err != nil {
			return nil, fmt.Errorf("login: %w", err)
		}
	}
	return c, nil
}

// GetToken creates an account (if needed) and returns its session token.
func (h *TestHelper) GetToken(name string) (string, error) {
	c, err := h.CreateAuthenticatedClient(name)
	if err != nil {
		return "", err
	}
	return c.Token, nil
}
