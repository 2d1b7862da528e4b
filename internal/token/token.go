// Package token issues and verifies the service's HS256 bearer tokens and handles refresh-token
// rotation and revocation.
package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/and161185/notekeeper/internal/errs"
	"github.com/and161185/notekeeper/internal/metrics"
	"github.com/and161185/notekeeper/internal/model"
)

// Default lifetimes.
const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// UserLookup loads token subjects.
type UserLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
}

// RevocationStore records revoked token ids.
type RevocationStore interface {
	MarkRevoked(ctx context.Context, jti string, ttl time.Duration) (bool, error)
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// Config holds signing and lifetime settings.
type Config struct {
	Secret     []byte
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// Rotate makes every refresh issue a new refresh token and revoke the old one.
	Rotate bool
}

// Service implements issue/verify/refresh/revoke.
type Service struct {
	cfg     Config
	users   UserLookup
	revoked RevocationStore
	log     *zap.Logger
	now     func() time.Time
}

// NewService constructs a token service.
func NewService(cfg Config, users UserLookup, revoked RevocationStore, log *zap.Logger) (*Service, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("token: empty signing secret")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{cfg: cfg, users: users, revoked: revoked, log: log, now: time.Now}, nil
}

type jwtClaims struct {
	jwt.RegisteredClaims
	Kind model.TokenKind `json:"kind"`
}

// Issue signs a fresh access/refresh pair for u. The two tokens never share a jti.
func (s *Service) Issue(_ context.Context, u *model.User) (model.TokenPair, error) {
	now := s.now()
	access, accessExp, err := s.sign(u.ID, model.AccessToken, now)
	if err != nil {
		return model.TokenPair{}, err
	}
	refresh, refreshExp, err := s.sign(u.ID, model.RefreshToken, now)
	if err != nil {
		return model.TokenPair{}, err
	}
	return model.TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (s *Service) sign(sub uuid.UUID, kind model.TokenKind, now time.Time) (string, time.Time, error) {
	jti, err := uuid.NewV4()
	if err != nil {
		return "", time.Time{}, err
	}
	ttl := s.cfg.AccessTTL
	if kind == model.RefreshToken {
		ttl = s.cfg.RefreshTTL
	}
	exp := now.Add(ttl)
	c := jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			Subject:   sub.String(),
			ID:        jti.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Kind: kind,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.cfg.Secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Verify checks raw as a token of the given kind and returns its active principal.
// Checks run in order: signature, structure, kind, expiry, revocation.
func (s *Service) Verify(ctx context.Context, raw string, kind model.TokenKind) (*model.User, error) {
	c, err := s.check(ctx, raw, kind)
	if err != nil {
		s.observe(err)
		return nil, err
	}
	u, err := s.principal(ctx, c)
	s.observe(err)
	return u, err
}

// Claims verifies raw like Verify but returns the claims without loading the principal.
func (s *Service) Claims(ctx context.Context, raw string, kind model.TokenKind) (model.Claims, error) {
	return s.check(ctx, raw, kind)
}

// Refresh exchanges a refresh token for a new access token. With rotation enabled it also
// returns a new refresh token and revokes the presented one; of two concurrent refreshes with
// the same token only one succeeds.
func (s *Service) Refresh(ctx context.Context, raw string) (model.TokenPair, error) {
	c, err := s.check(ctx, raw, model.RefreshToken)
	if err != nil {
		return model.TokenPair{}, err
	}
	u, err := s.principal(ctx, c)
	if err != nil {
		return model.TokenPair{}, err
	}

	now := s.now()
	if s.cfg.Rotate {
		claimed, err := s.revoked.MarkRevoked(ctx, c.ID, c.ExpiresAt.Sub(now))
		if err != nil {
			return model.TokenPair{}, errs.Auth(errs.TokenRevoked, err)
		}
		if !claimed {
			return model.TokenPair{}, errs.Auth(errs.TokenRevoked, errors.New("refresh token already used"))
		}
		return s.Issue(ctx, u)
	}

	access, exp, err := s.sign(u.ID, model.AccessToken, now)
	if err != nil {
		return model.TokenPair{}, err
	}
	return model.TokenPair{AccessToken: access, AccessExpiresAt: exp}, nil
}

// Revoke marks a refresh token revoked for the rest of its lifetime. Revoking a token that is
// already revoked succeeds. When the revocation cannot be recorded the token is reported as
// not revocable, so logout fails closed as an authentication error.
func (s *Service) Revoke(ctx context.Context, raw string) error {
	c, err := s.parse(raw, model.RefreshToken)
	if err != nil {
		return err
	}
	left := c.ExpiresAt.Sub(s.now())
	if left <= 0 {
		revoked, rerr := s.revoked.IsRevoked(ctx, c.ID)
		if rerr == nil && revoked {
			return nil
		}
		return errs.Auth(errs.TokenExpired, nil)
	}
	if _, err := s.revoked.MarkRevoked(ctx, c.ID, left); err != nil {
		return errs.Auth(errs.TokenRevoked, fmt.Errorf("revoke %s: %w", c.ID, err))
	}
	s.log.Debug("token revoked", zap.String("jti", c.ID), zap.Duration("ttl", left))
	return nil
}

// check runs every token check including the revocation lookup.
func (s *Service) check(ctx context.Context, raw string, kind model.TokenKind) (model.Claims, error) {
	c, err := s.parse(raw, kind)
	if err != nil {
		var ae *errs.AuthError
		if errors.As(err, &ae) && ae.Kind == errs.TokenExpired {
			// a revoked token stays revoked after it expires
			if revoked, rerr := s.revoked.IsRevoked(ctx, c.ID); rerr == nil && revoked {
				return model.Claims{}, errs.Auth(errs.TokenRevoked, nil)
			}
		}
		return model.Claims{}, err
	}
	revoked, err := s.revoked.IsRevoked(ctx, c.ID)
	if err != nil {
		return model.Claims{}, errs.Auth(errs.TokenRevoked, err)
	}
	if revoked {
		return model.Claims{}, errs.Auth(errs.TokenRevoked, nil)
	}
	return c, nil
}

// parse runs checks (a)-(d). On TokenExpired the returned claims are still filled in.
func (s *Service) parse(raw string, kind model.TokenKind) (model.Claims, error) {
	var jc jwtClaims
	_, err := jwt.ParseWithClaims(raw, &jc, func(*jwt.Token) (any, error) {
		return s.cfg.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithoutClaimsValidation())
	if err != nil {
		return model.Claims{}, errs.Auth(errs.MalformedToken, err)
	}

	sub, err := uuid.FromString(jc.Subject)
	if err != nil || jc.ID == "" || jc.IssuedAt == nil || jc.ExpiresAt == nil {
		return model.Claims{}, errs.Auth(errs.MalformedToken, errors.New("missing or invalid claims"))
	}
	if jc.Kind != model.AccessToken && jc.Kind != model.RefreshToken {
		return model.Claims{}, errs.Auth(errs.MalformedToken, fmt.Errorf("unknown kind %q", jc.Kind))
	}
	if jc.Kind != kind {
		return model.Claims{}, errs.Auth(errs.MalformedToken, fmt.Errorf("want %s token, got %s", kind, jc.Kind))
	}
	c := model.Claims{
		Subject:   sub,
		ID:        jc.ID,
		Kind:      jc.Kind,
		IssuedAt:  jc.IssuedAt.Time,
		ExpiresAt: jc.ExpiresAt.Time,
	}
	if !s.now().Before(c.ExpiresAt) {
		return c, errs.Auth(errs.TokenExpired, nil)
	}
	return c, nil
}

func (s *Service) principal(ctx context.Context, c model.Claims) (*model.User, error) {
	u, err := s.users.GetByID(ctx, c.Subject)
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return nil, errs.Auth(errs.MalformedToken, errors.New("unknown subject"))
	case err != nil:
		return nil, fmt.Errorf("load principal: %w", err)
	case !u.Active:
		return nil, errs.Auth(errs.InactiveAccount, nil)
	}
	return u, nil
}

func (s *Service) observe(err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
		if kind, ok := errs.AuthKindOf(err); ok {
			outcome = string(kind)
		}
	}
	metrics.TokenVerifications.WithLabelValues(outcome).Inc()
}
