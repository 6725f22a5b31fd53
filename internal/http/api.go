package httpapp

import (
	"errors"
	"net/http"
	"time"

	"github.com/alphabot-ai/inkpost/internal/access"
	"github.com/alphabot-ai/inkpost/internal/auth"
	"github.com/alphabot-ai/inkpost/internal/content"
	"github.com/alphabot-ai/inkpost/internal/model"
)

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type commentRequest struct {
	Text string `json:"text"`
}

type sessionResponse struct {
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expires_at"`
	Identity  model.Identity `json:"identity"`
}

type postResponse struct {
	Post     model.Post      `json:"post"`
	Comments []model.Comment `json:"comments"`
}

func sessionPayload(sess auth.Session) sessionResponse {
	return sessionResponse{Token: sess.Token, ExpiresAt: sess.ExpiresAt, Identity: sess.Identity}
}

func badJSON(w http.ResponseWriter) {
	writeError(w, http.StatusBadRequest, errors.New("invalid json"))
}

func (s *Server) apiRegister(w http.ResponseWriter, r *http.Request) {
	if !s.allowRateLimit(w, r, "register", s.cfg.RateLimits.RegisterPerMinute) {
		return
	}
	var req registerRequest
	if err := readJSON(r.Body, &req); err != nil {
		badJSON(w)
		return
	}
	ident, err := s.auth.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	sess, err := s.startSession(w, r, ident)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionPayload(sess))
}

func (s *Server) apiLogin(w http.ResponseWriter, r *http.Request) {
	if !s.allowRateLimit(w, r, "login", s.cfg.RateLimits.LoginPerMinute) {
		return
	}
	var req loginRequest
	if err := readJSON(r.Body, &req); err != nil {
		badJSON(w)
		return
	}
	ident, err := s.auth.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	sess, err := s.startSession(w, r, ident)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionPayload(sess))
}

func (s *Server) apiLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.EndSession(r.Context(), currentToken(r)); err != nil {
		s.fail(w, r, err)
		return
	}
	s.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) apiMe(w http.ResponseWriter, r *http.Request) {
	ident := currentIdentity(r)
	if ident == nil {
		s.fail(w, r, access.ErrLoginRequired)
		return
	}
	writeJSON(w, http.StatusOK, ident)
}

func (s *Server) apiListPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := s.content.ListPosts(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if posts == nil {
		posts = []model.Post{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"posts": posts})
}

func (s *Server) apiGetPost(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		notFound(w)
		return
	}
	post, comments, err := s.content.GetPost(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if comments == nil {
		comments = []model.Comment{}
	}
	writeJSON(w, http.StatusOK, postResponse{Post: post, Comments: comments})
}

func (s *Server) apiCreatePost(w http.ResponseWriter, r *http.Request) {
	var in content.PostInput
	if err := readJSON(r.Body, &in); err != nil {
		badJSON(w)
		return
	}
	post, err := s.content.CreatePost(r.Context(), currentIdentity(r), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, post)
}

func (s *Server) apiEditPost(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		notFound(w)
		return
	}
	var in content.PostInput
	if err := readJSON(r.Body, &in); err != nil {
		badJSON(w)
		return
	}
	post, err := s.content.EditPost(r.Context(), currentIdentity(r), id, in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

func (s *Server) apiDeletePost(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		notFound(w)
		return
	}
	if err := s.content.DeletePost(r.Context(), currentIdentity(r), id); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) apiCreateComment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		notFound(w)
		return
	}
	if !s.allowRateLimit(w, r, "comment", s.cfg.RateLimits.CommentPerMinute) {
		return
	}
	var req commentRequest
	if err := readJSON(r.Body, &req); err != nil {
		badJSON(w)
		return
	}
	comment, err := s.content.CreateComment(r.Context(), currentIdentity(r), id, req.Text)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, comment)
}
