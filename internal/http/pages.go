package httpapp

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/alphabot-ai/inkpost/internal/access"
	"github.com/alphabot-ai/inkpost/internal/auth"
	"github.com/alphabot-ai/inkpost/internal/content"
	"github.com/alphabot-ai/inkpost/internal/model"
)

const (
	flashCommentLogin    = "Only registered users can comment. Please log in."
	flashUnknownEmail    = "Invalid e-mail, please register."
	flashAlreadyRegister = "You've already signed up with that e-mail, log in instead!"
	msgIncorrectPassword = "Incorrect password, please try again."
	msgDuplicateTitle    = "A post with that title already exists."
)

func (s *Server) pageData(w http.ResponseWriter, r *http.Request, title string) map[string]any {
	ident := currentIdentity(r)
	data := map[string]any{
		"Title":       title,
		"LoggedIn":    ident != nil,
		"CurrentUser": ident,
		"IsAdmin":     ident != nil && ident.IsAdmin,
		"Flash":       s.popFlash(w, r),
		"Form":        map[string]string{},
		"Errors":      map[string]string{},
	}
	return data
}

// render executes page into a buffer so a template failure still yields a
// clean 500. Callers that asked for JSON get the page data instead.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, page string, data map[string]any) {
	if wantsJSON(r) {
		writeJSON(w, status, data)
		return
	}
	t, ok := s.templates.Lookup(page)
	if !ok {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("unknown page %q", page))
		return
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		s.log.ErrorContext(r.Context(), "render page", "page", page, "error", err)
		writeError(w, http.StatusInternalServerError, errors.New("internal server error"))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (s *Server) renderError(w http.ResponseWriter, r *http.Request, status int, message string) {
	if isAPI(r) {
		writeError(w, status, errors.New(message))
		return
	}
	data := s.pageData(w, r, http.StatusText(status))
	data["Status"] = status
	data["Message"] = message
	s.render(w, r, status, pageError, data)
}

// redirect finishes a form submission. JSON callers get payload instead of a
// redirect.
func (s *Server) redirect(w http.ResponseWriter, r *http.Request, to string, status int, payload any) {
	if wantsJSON(r) {
		if payload == nil {
			payload = map[string]any{"ok": true, "redirect": to}
		}
		writeJSON(w, status, payload)
		return
	}
	http.Redirect(w, r, to, http.StatusSeeOther)
}

// htmlFail renders err for a browser. A login-required denial becomes a
// flash plus a redirect to the login page.
func (s *Server) htmlFail(w http.ResponseWriter, r *http.Request, err error, loginFlash string) {
	if wantsJSON(r) {
		s.fail(w, r, err)
		return
	}
	switch status := statusFor(err); {
	case errors.Is(err, access.ErrLoginRequired):
		s.flash(w, loginFlash)
		http.Redirect(w, r, "/login", http.StatusSeeOther)
	case status == http.StatusInternalServerError:
		s.log.ErrorContext(r.Context(), "request failed", "error", err)
		s.renderError(w, r, status, "Something went wrong on our side.")
	case status == http.StatusForbidden:
		s.renderError(w, r, status, "You are not allowed to do that.")
	case status == http.StatusNotFound:
		s.renderError(w, r, status, "The page you were looking for does not exist.")
	default:
		s.renderError(w, r, status, err.Error())
	}
}

// authorize runs the access gate for pages that only display a form.
func (s *Server) authorize(r *http.Request, op access.Operation) error {
	d := access.Decide(op, currentIdentity(r))
	if !d.Permit {
		s.metrics.AccessDenied(op.String(), d.Reason.String())
		s.log.WarnContext(r.Context(), "page denied", "operation", op.String(), "reason", d.Reason.String())
	}
	return d.Err()
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	posts, err := s.content.ListPosts(r.Context())
	if err != nil {
		s.htmlFail(w, r, err, "")
		return
	}
	data := s.pageData(w, r, "Inkpost")
	data["Posts"] = posts
	s.render(w, r, http.StatusOK, pageIndex, data)
}

func (s *Server) handleStatic(page, title string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.render(w, r, http.StatusOK, page, s.pageData(w, r, title))
	}
}

func (s *Server) handleShowPost(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		s.handleNotFound(w, r)
		return
	}
	s.showPost(w, r, http.StatusOK, id, nil, nil)
}

func (s *Server) showPost(w http.ResponseWriter, r *http.Request, status int, id int64, form, fieldErrs map[string]string) {
	post, comments, err := s.content.GetPost(r.Context(), id)
	if err != nil {
		s.htmlFail(w, r, err, "")
		return
	}
	data := s.pageData(w, r, post.Title)
	data["Post"] = post
	data["Comments"] = comments
	if form != nil {
		data["Form"] = form
	}
	if fieldErrs != nil {
		data["Errors"] = fieldErrs
	}
	s.render(w, r, status, pagePost, data)
}

func (s *Server) handleCommentForm(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		s.handleNotFound(w, r)
		return
	}
	if !s.allowRateLimit(w, r, "comment", s.cfg.RateLimits.CommentPerMinute) {
		return
	}
	if err := r.ParseForm(); err != nil {
		s.renderError(w, r, http.StatusBadRequest, "Malformed form submission.")
		return
	}
	text := r.PostFormValue("comment")
	comment, err := s.content.CreateComment(r.Context(), currentIdentity(r), id, text)
	var verr *model.ValidationError
	switch {
	case err == nil:
		s.redirect(w, r, fmt.Sprintf("/post/%d", id), http.StatusCreated, comment)
	case errors.As(err, &verr) && !wantsJSON(r):
		s.showPost(w, r, http.StatusBadRequest, id, map[string]string{"comment": text}, map[string]string{"comment": verr.Fields["text"]})
	default:
		s.htmlFail(w, r, err, flashCommentLogin)
	}
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		s.render(w, r, http.StatusOK, pageLogin, s.pageData(w, r, "Log In"))
		return
	}
	if !s.allowRateLimit(w, r, "login", s.cfg.RateLimits.LoginPerMinute) {
		return
	}
	if err := r.ParseForm(); err != nil {
		s.renderError(w, r, http.StatusBadRequest, "Malformed form submission.")
		return
	}
	email := strings.TrimSpace(r.PostFormValue("email"))
	ident, err := s.auth.Authenticate(r.Context(), email, r.PostFormValue("password"))
	if err != nil {
		if wantsJSON(r) {
			s.fail(w, r, err)
			return
		}
		data := s.pageData(w, r, "Log In")
		data["Form"] = map[string]string{"email": email}
		var verr *model.ValidationError
		switch {
		case errors.Is(err, auth.ErrUnknownIdentity):
			s.flash(w, flashUnknownEmail)
			http.Redirect(w, r, "/register", http.StatusSeeOther)
		case errors.Is(err, auth.ErrInvalidCredential):
			data["Flash"] = msgIncorrectPassword
			s.render(w, r, http.StatusUnauthorized, pageLogin, data)
		case errors.As(err, &verr):
			data["Errors"] = verr.Fields
			s.render(w, r, http.StatusBadRequest, pageLogin, data)
		default:
			s.htmlFail(w, r, err, "")
		}
		return
	}
	sess, err := s.startSession(w, r, ident)
	if err != nil {
		s.htmlFail(w, r, err, "")
		return
	}
	s.redirect(w, r, "/", http.StatusOK, sessionPayload(sess))
}

func (s *Server) handleLogoutPage(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.EndSession(r.Context(), currentToken(r)); err != nil {
		s.log.ErrorContext(r.Context(), "end session", "error", err)
	}
	s.clearSessionCookie(w)
	s.redirect(w, r, "/", http.StatusOK, nil)
}

func (s *Server) handleRegisterPage(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		s.render(w, r, http.StatusOK, pageRegister, s.pageData(w, r, "Register"))
		return
	}
	if !s.allowRateLimit(w, r, "register", s.cfg.RateLimits.RegisterPerMinute) {
		return
	}
	if err := r.ParseForm(); err != nil {
		s.renderError(w, r, http.StatusBadRequest, "Malformed form submission.")
		return
	}
	name := strings.TrimSpace(r.PostFormValue("name"))
	email := strings.TrimSpace(r.PostFormValue("email"))
	ident, err := s.auth.Register(r.Context(), name, email, r.PostFormValue("password"))
	if err != nil {
		if wantsJSON(r) {
			s.fail(w, r, err)
			return
		}
		var verr *model.ValidationError
		switch {
		case errors.Is(err, auth.ErrDuplicateIdentity):
			s.flash(w, flashAlreadyRegister)
			http.Redirect(w, r, "/login", http.StatusSeeOther)
		case errors.As(err, &verr):
			data := s.pageData(w, r, "Register")
			data["Form"] = map[string]string{"name": name, "email": email}
			data["Errors"] = verr.Fields
			s.render(w, r, http.StatusBadRequest, pageRegister, data)
		default:
			s.htmlFail(w, r, err, "")
		}
		return
	}
	sess, err := s.startSession(w, r, ident)
	if err != nil {
		s.htmlFail(w, r, err, "")
		return
	}
	s.redirect(w, r, "/", http.StatusCreated, sessionPayload(sess))
}

func (s *Server) handleNewPost(w http.ResponseWriter, r *http.Request) {
	if err := s.authorize(r, access.CreatePost); err != nil {
		s.htmlFail(w, r, err, "")
		return
	}
	if r.Method == http.MethodGet {
		s.renderPostForm(w, r, http.StatusOK, "New Post", "/new-post", nil, nil)
		return
	}
	if err := r.ParseForm(); err != nil {
		s.renderError(w, r, http.StatusBadRequest, "Malformed form submission.")
		return
	}
	in := postInputFromForm(r)
	post, err := s.content.CreatePost(r.Context(), currentIdentity(r), in)
	if err != nil {
		s.postFormFail(w, r, err, "New Post", "/new-post", in)
		return
	}
	s.redirect(w, r, "/", http.StatusCreated, post)
}

func (s *Server) handleEditPost(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		s.handleNotFound(w, r)
		return
	}
	if err := s.authorize(r, access.EditPost); err != nil {
		s.htmlFail(w, r, err, "")
		return
	}
	action := fmt.Sprintf("/edit-post/%d", id)
	if r.Method == http.MethodGet {
		post, _, err := s.content.GetPost(r.Context(), id)
		if err != nil {
			s.htmlFail(w, r, err, "")
			return
		}
		s.renderPostForm(w, r, http.StatusOK, "Edit Post", action, formFromInput(content.PostInput{
			Title:    post.Title,
			Subtitle: post.Subtitle,
			ImgURL:   post.ImgURL,
			Body:     post.Body,
		}), nil)
		return
	}
	if err := r.ParseForm(); err != nil {
		s.renderError(w, r, http.StatusBadRequest, "Malformed form submission.")
		return
	}
	in := postInputFromForm(r)
	post, err := s.content.EditPost(r.Context(), currentIdentity(r), id, in)
	if err != nil {
		s.postFormFail(w, r, err, "Edit Post", action, in)
		return
	}
	s.redirect(w, r, fmt.Sprintf("/post/%d", post.ID), http.StatusOK, post)
}

func (s *Server) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		s.handleNotFound(w, r)
		return
	}
	if err := s.content.DeletePost(r.Context(), currentIdentity(r), id); err != nil {
		s.htmlFail(w, r, err, "")
		return
	}
	s.redirect(w, r, "/", http.StatusOK, nil)
}

func (s *Server) renderPostForm(w http.ResponseWriter, r *http.Request, status int, heading, action string, form, fieldErrs map[string]string) {
	data := s.pageData(w, r, heading)
	data["Heading"] = heading
	data["Action"] = action
	if form != nil {
		data["Form"] = form
	}
	if fieldErrs != nil {
		data["Errors"] = fieldErrs
	}
	s.render(w, r, status, pageMakePost, data)
}

func (s *Server) postFormFail(w http.ResponseWriter, r *http.Request, err error, heading, action string, in content.PostInput) {
	if wantsJSON(r) {
		s.fail(w, r, err)
		return
	}
	var verr *model.ValidationError
	switch {
	case errors.As(err, &verr):
		s.renderPostForm(w, r, http.StatusBadRequest, heading, action, formFromInput(in), verr.Fields)
	case errors.Is(err, content.ErrDuplicateTitle):
		s.renderPostForm(w, r, http.StatusConflict, heading, action, formFromInput(in), map[string]string{"title": msgDuplicateTitle})
	default:
		s.htmlFail(w, r, err, "")
	}
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request, ident model.Identity) (auth.Session, error) {
	sess, err := s.auth.IssueSession(r.Context(), ident)
	if err != nil {
		return auth.Session{}, err
	}
	s.setSessionCookie(w, sess)
	return sess, nil
}

func postInputFromForm(r *http.Request) content.PostInput {
	return content.PostInput{
		Title:    r.PostFormValue("title"),
		Subtitle: r.PostFormValue("subtitle"),
		ImgURL:   r.PostFormValue("img_url"),
		Body:     r.PostFormValue("body"),
	}
}

func formFromInput(in content.PostInput) map[string]string {
	return map[string]string{
		"title":    in.Title,
		"subtitle": in.Subtitle,
		"img_url":  in.ImgURL,
		"body":     in.Body,
	}
}
