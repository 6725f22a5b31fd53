// Package auth registers and authenticates identities and manages their
// login sessions.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/alphabot-ai/inkpost/internal/logging"
	"github.com/alphabot-ai/inkpost/internal/metrics"
	"github.com/alphabot-ai/inkpost/internal/model"
	"github.com/alphabot-ai/inkpost/internal/store"
)

var (
	ErrDuplicateIdentity = store.ErrDuplicateIdentity
	ErrUnknownIdentity   = errors.New("no account with that e-mail")
	ErrInvalidCredential = errors.New("incorrect password")
	ErrInvalidSession    = errors.New("invalid or expired session")
)

type Service struct {
	store      store.Store
	hasher     *Hasher
	secret     []byte
	sessionTTL time.Duration
	metrics    *metrics.Metrics
	now        func() time.Time
	log        *slog.Logger
}

func NewService(st store.Store, hasher *Hasher, secret string, sessionTTL time.Duration, m *metrics.Metrics) *Service {
	return &Service{
		store:      st,
		hasher:     hasher,
		secret:     []byte(secret),
		sessionTTL: sessionTTL,
		metrics:    m,
		now:        time.Now,
		log:        logging.GetLogger("auth"),
	}
}

// Register creates an identity. The first identity registered while no admin
// exists becomes the admin.
func (s *Service) Register(ctx context.Context, name, email, password string) (model.Identity, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)

	var v model.ValidationError
	v.Required(map[string]string{"name": name, "email": email, "password": password})
	if email != "" {
		if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
			v.Add("email", "Invalid e-mail address.")
		}
	}
	if err := v.Err(); err != nil {
		return model.Identity{}, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return model.Identity{}, fmt.Errorf("hash password: %w", err)
	}
	ident := model.Identity{Name: name, Email: email, PasswordHash: hash, CreatedAt: s.now()}

	err = s.create(ctx, &ident, true)
	if errors.Is(err, store.ErrDuplicateAdmin) {
		// Lost the race for the admin slot to a concurrent registration.
		err = s.create(ctx, &ident, false)
	}
	if err != nil {
		if errors.Is(err, store.ErrDuplicateIdentity) {
			s.metrics.AuthEvent("register_duplicate")
			return model.Identity{}, ErrDuplicateIdentity
		}
		return model.Identity{}, err
	}

	s.metrics.AuthEvent("register")
	s.log.InfoContext(ctx, "identity registered", "identity_id", ident.ID, "admin", ident.IsAdmin)
	return ident, nil
}

func (s *Service) create(ctx context.Context, ident *model.Identity, claimAdmin bool) error {
	return s.store.InTx(ctx, func(ctx context.Context, r store.Repository) error {
		if _, err := r.GetIdentityByEmail(ctx, ident.Email); err == nil {
			return store.ErrDuplicateIdentity
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		ident.IsAdmin = false
		if claimAdmin {
			hasAdmin, err := r.HasAdmin(ctx)
			if err != nil {
				return err
			}
			ident.IsAdmin = !hasAdmin
		}
		_, err := r.CreateIdentity(ctx, ident)
		return err
	})
}

func (s *Service) Authenticate(ctx context.Context, email, password string) (model.Identity, error) {
	email = strings.TrimSpace(email)

	var v model.ValidationError
	v.Required(map[string]string{"email": email, "password": password})
	if err := v.Err(); err != nil {
		return model.Identity{}, err
	}

	ident, err := s.store.GetIdentityByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.metrics.AuthEvent("login_unknown")
			return model.Identity{}, ErrUnknownIdentity
		}
		return model.Identity{}, err
	}
	if !s.hasher.Verify(ident.PasswordHash, password) {
		s.metrics.AuthEvent("login_bad_password")
		s.log.WarnContext(ctx, "bad password", "identity_id", ident.ID)
		return model.Identity{}, ErrInvalidCredential
	}

	s.metrics.AuthEvent("login")
	return ident, nil
}

// Identity loads an identity by ID.
func (s *Service) Identity(ctx context.Context, id int64) (model.Identity, error) {
	return s.store.GetIdentity(ctx, id)
}
