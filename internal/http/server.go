package httpapp

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/alphabot-ai/inkpost/internal/access"
	"github.com/alphabot-ai/inkpost/internal/auth"
	"github.com/alphabot-ai/inkpost/internal/config"
	"github.com/alphabot-ai/inkpost/internal/content"
	"github.com/alphabot-ai/inkpost/internal/logging"
	"github.com/alphabot-ai/inkpost/internal/metrics"
	"github.com/alphabot-ai/inkpost/internal/model"
	"github.com/alphabot-ai/inkpost/internal/rate"
	"github.com/alphabot-ai/inkpost/internal/store"
)

//go:embed static/openapi.yaml
var openapiYAML []byte

// Pinger reports whether the backing database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	content   *content.Service
	auth      *auth.Service
	db        Pinger
	limiter   rate.Limiter
	metrics   *metrics.Metrics
	cfg       config.Config
	templates *Templates
	handler   http.Handler
	log       *slog.Logger
}

func NewServer(contentSvc *content.Service, authSvc *auth.Service, db Pinger, limiter rate.Limiter, m *metrics.Metrics, cfg config.Config) (*Server, error) {
	tmpl, err := loadTemplates(cfg.Gravatar)
	if err != nil {
		return nil, err
	}
	s := &Server{
		content:   contentSvc,
		auth:      authSvc,
		db:        db,
		limiter:   limiter,
		metrics:   m,
		cfg:       cfg,
		templates: tmpl,
		log:       logging.GetLogger("http"),
	}
	s.handler = s.withRequestID(s.accessLog(s.recoverer(s.routes())))
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(s.handleNotFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		methodNotAllowed(w)
	})
	r.Use(s.routeLabel, s.withCaller)

	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/post/{id:[0-9]+}", s.handleShowPost).Methods(http.MethodGet)
	r.HandleFunc("/post/{id:[0-9]+}", s.handleCommentForm).Methods(http.MethodPost)
	r.HandleFunc("/about", s.handleStatic(pageAbout, "About")).Methods(http.MethodGet)
	r.HandleFunc("/contact", s.handleStatic(pageContact, "Contact")).Methods(http.MethodGet)
	r.HandleFunc("/login", s.handleLoginPage).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/logout", s.handleLogoutPage).Methods(http.MethodGet)
	r.HandleFunc("/register", s.handleRegisterPage).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/new-post", s.handleNewPost).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/edit-post/{id:[0-9]+}", s.handleEditPost).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/delete/{id:[0-9]+}", s.handleDeletePost).Methods(http.MethodPost)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/register", s.apiRegister).Methods(http.MethodPost)
	api.HandleFunc("/login", s.apiLogin).Methods(http.MethodPost)
	api.HandleFunc("/logout", s.apiLogout).Methods(http.MethodPost)
	api.HandleFunc("/me", s.apiMe).Methods(http.MethodGet)
	api.HandleFunc("/posts", s.apiListPosts).Methods(http.MethodGet)
	api.HandleFunc("/posts", s.apiCreatePost).Methods(http.MethodPost)
	api.HandleFunc("/posts/{id:[0-9]+}", s.apiGetPost).Methods(http.MethodGet)
	api.HandleFunc("/posts/{id:[0-9]+}", s.apiEditPost).Methods(http.MethodPut)
	api.HandleFunc("/posts/{id:[0-9]+}", s.apiDeletePost).Methods(http.MethodDelete)
	api.HandleFunc("/posts/{id:[0-9]+}/comments", s.apiCreateComment).Methods(http.MethodPost)

	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/openapi.yaml", serveOpenAPIYAML).Methods(http.MethodGet)
	r.PathPrefix("/docs/").Handler(httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))
	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.Ping(ctx); err != nil {
			s.log.ErrorContext(r.Context(), "health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func serveOpenAPIYAML(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(openapiYAML)
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	if isAPI(r) {
		notFound(w)
		return
	}
	s.renderError(w, r, http.StatusNotFound, "The page you were looking for does not exist.")
}

// statusFor maps the domain error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	var verr *model.ValidationError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrDuplicateIdentity), errors.Is(err, store.ErrDuplicateTitle):
		return http.StatusConflict
	case errors.Is(err, auth.ErrUnknownIdentity),
		errors.Is(err, auth.ErrInvalidCredential),
		errors.Is(err, auth.ErrInvalidSession),
		errors.Is(err, access.ErrLoginRequired):
		return http.StatusUnauthorized
	case errors.Is(err, access.ErrAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err as a JSON error body with its mapped status.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.log.ErrorContext(r.Context(), "request failed", "error", err)
		writeError(w, status, errors.New("internal server error"))
		return
	}
	body := map[string]any{"error": err.Error()}
	var verr *model.ValidationError
	if errors.As(err, &verr) {
		body["error"] = "validation failed"
		body["fields"] = verr.Fields
	}
	writeJSON(w, status, body)
}

func (s *Server) allowRateLimit(w http.ResponseWriter, r *http.Request, action string, limit int) bool {
	if limit <= 0 || s.limiter == nil {
		return true
	}
	key := fmt.Sprintf("%s:ip:%s", action, s.clientIP(r))
	if ok, retry := s.limiter.Allow(key, limit, time.Minute); !ok {
		s.metrics.RateLimited(action)
		s.log.WarnContext(r.Context(), "rate limited", "bucket", action, "retry_after", retry)
		writeRateLimit(w, r, retry)
		return false
	}
	return true
}

// clientIP is the peer address. X-Forwarded-For is honoured only when the
// server is configured to sit behind a trusted proxy.
func (s *Server) clientIP(r *http.Request) string {
	if s.cfg.TrustProxy {
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			first, _, _ := strings.Cut(forwarded, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func isAPI(r *http.Request) bool {
	return strings.HasPrefix(r.URL.Path, "/api/") || wantsJSON(r)
}

func wantsJSON(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "application/json")
}

func readJSON(body io.ReadCloser, dest any) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dest)
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id, err == nil && id > 0
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeRateLimit(w http.ResponseWriter, r *http.Request, retry time.Duration) {
	seconds := int(retry.Seconds())
	if seconds < 1 {
		seconds = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(seconds))
	if !isAPI(r) {
		http.Error(w, "Too many requests, please slow down.", http.StatusTooManyRequests)
		return
	}
	writeJSON(w, http.StatusTooManyRequests, map[string]any{
		"error":       "rate limit exceeded",
		"retry_after": seconds,
	})
}

func notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, errors.New("not found"))
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}
