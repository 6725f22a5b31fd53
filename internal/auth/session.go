package auth

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/alphabot-ai/inkpost/internal/model"
	"github.com/alphabot-ai/inkpost/internal/store"
)

// Session is an issued login: the signed token handed to the client and the
// identity it resolves to.
type Session struct {
	Token     string
	ExpiresAt time.Time
	Identity  model.Identity
}

// IssueSession records a server-side session for ident and signs a token for it.
func (s *Service) IssueSession(ctx context.Context, ident model.Identity) (Session, error) {
	now := s.now()
	rec := model.Session{
		ID:         uuid.NewString(),
		IdentityID: ident.ID,
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.sessionTTL),
	}
	if err := s.store.CreateSession(ctx, rec); err != nil {
		return Session{}, err
	}

	claims := jwt.RegisteredClaims{
		ID:        rec.ID,
		Subject:   strconv.FormatInt(ident.ID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(rec.ExpiresAt),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return Session{}, err
	}

	if n, err := s.PruneSessions(ctx); err != nil {
		s.log.WarnContext(ctx, "prune sessions", "error", err)
	} else if n > 0 {
		s.log.DebugContext(ctx, "pruned expired sessions", "count", n)
	}
	return Session{Token: token, ExpiresAt: rec.ExpiresAt, Identity: ident}, nil
}

// Resolve returns the identity behind a session token.
func (s *Service) Resolve(ctx context.Context, token string) (model.Identity, error) {
	claims, err := s.parse(token, true)
	if err != nil {
		return model.Identity{}, ErrInvalidSession
	}
	rec, err := s.store.GetSession(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.Identity{}, ErrInvalidSession
		}
		return model.Identity{}, err
	}
	if rec.Expired(s.now()) || strconv.FormatInt(rec.IdentityID, 10) != claims.Subject {
		return model.Identity{}, ErrInvalidSession
	}
	ident, err := s.store.GetIdentity(ctx, rec.IdentityID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.Identity{}, ErrInvalidSession
		}
		return model.Identity{}, err
	}
	return ident, nil
}

// EndSession revokes the session behind token. Ending an absent, malformed
// or already ended session is a no-op.
func (s *Service) EndSession(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	claims, err := s.parse(token, false)
	if err != nil {
		return nil
	}
	if err := s.store.DeleteSession(ctx, claims.ID); err != nil {
		return err
	}
	s.metrics.AuthEvent("logout")
	return nil
}

func (s *Service) PruneSessions(ctx context.Context) (int64, error) {
	return s.store.DeleteExpiredSessions(ctx, s.now())
}

func (s *Service) parse(token string, validateClaims bool) (*jwt.RegisteredClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	}
	if !validateClaims {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(claims.ID); err != nil {
		return nil, err
	}
	return claims, nil
}
