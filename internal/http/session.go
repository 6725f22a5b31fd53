package httpapp

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alphabot-ai/inkpost/internal/auth"
	"github.com/alphabot-ai/inkpost/internal/model"
)

const (
	sessionCookie = "inkpost_session"
	flashCookie   = "inkpost_flash"
)

type callerKey struct{}

// caller is the resolved identity of a request and the token it presented.
type caller struct {
	identity *model.Identity
	token    string
}

// withCaller resolves the session token from the bearer header or the session
// cookie. Requests without a valid session continue anonymously.
func (s *Server) withCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, fromCookie := sessionToken(r)
		c := &caller{token: token}
		if token != "" {
			ident, err := s.auth.Resolve(r.Context(), token)
			switch {
			case err == nil:
				c.identity = &ident
			case errors.Is(err, auth.ErrInvalidSession):
				if fromCookie {
					s.clearSessionCookie(w)
				}
			default:
				s.log.ErrorContext(r.Context(), "resolve session", "error", err)
			}
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), callerKey{}, c)))
	})
}

func sessionToken(r *http.Request) (token string, fromCookie bool) {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer ")), false
	}
	if c, err := r.Cookie(sessionCookie); err == nil && c.Value != "" {
		return c.Value, true
	}
	return "", false
}

// currentIdentity returns the logged-in identity, or nil for anonymous callers.
func currentIdentity(r *http.Request) *model.Identity {
	if c, ok := r.Context().Value(callerKey{}).(*caller); ok {
		return c.identity
	}
	return nil
}

func currentToken(r *http.Request) string {
	if c, ok := r.Context().Value(callerKey{}).(*caller); ok {
		return c.token
	}
	token, _ := sessionToken(r)
	return token
}

func (s *Server) setSessionCookie(w http.ResponseWriter, sess auth.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		MaxAge:   int(time.Until(sess.ExpiresAt).Seconds()),
		HttpOnly: true,
		Secure:   s.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// flash queues a one-shot message for the next rendered page.
func (s *Server) flash(w http.ResponseWriter, msg string) {
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookie,
		Value:    url.QueryEscape(msg),
		Path:     "/",
		HttpOnly: true,
		Secure:   s.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// popFlash returns the pending flash message and clears it.
func (s *Server) popFlash(w http.ResponseWriter, r *http.Request) string {
	c, err := r.Cookie(flashCookie)
	if err != nil || c.Value == "" {
		return ""
	}
	http.SetCookie(w, &http.Cookie{Name: flashCookie, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
	msg, err := url.QueryUnescape(c.Value)
	if err != nil {
		return ""
	}
	return msg
}
