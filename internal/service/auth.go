package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	pkgcrypto "github.com/and161185/notekeeper/internal/crypto"
	"github.com/and161185/notekeeper/internal/errs"
	"github.com/and161185/notekeeper/internal/events"
	"github.com/and161185/notekeeper/internal/limiter"
	"github.com/and161185/notekeeper/internal/model"
	"github.com/and161185/notekeeper/internal/repository"
)

// AuthService defines account and session operations.
type AuthService interface {
	// Signup creates an account and its protected default category.
	Signup(ctx context.Context, email, password string) (*model.User, error)
	// Signin checks credentials for (email, client ip) and issues a token pair.
	Signin(ctx context.Context, email, password, ip string) (model.TokenPair, error)
	// Refresh exchanges a refresh token.
	Refresh(ctx context.Context, refreshToken string) (model.TokenPair, error)
	// Logout revokes a refresh token.
	Logout(ctx context.Context, refreshToken string) error
	// Me returns the account of an authenticated principal.
	Me(ctx context.Context, id uuid.UUID) (*model.User, error)
}

type AuthServiceImpl struct {
	users      repository.UserRepository
	categories repository.CategoryRepository
	tokens     Tokens
	guard      limiter.SigninGuard
	counts     Counts
	events     events.Publisher
	log        *zap.Logger
}

var _ AuthService = (*AuthServiceImpl)(nil)

// NewAuthService constructs AuthService with required dependencies. A nil publisher discards events.
func NewAuthService(
	users repository.UserRepository,
	categories repository.CategoryRepository,
	tokens Tokens,
	guard limiter.SigninGuard,
	counts Counts,
	pub events.Publisher,
	log *zap.Logger,
) *AuthServiceImpl {
	if pub == nil {
		pub = events.Noop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthServiceImpl{
		users:      users,
		categories: categories,
		tokens:     tokens,
		guard:      guard,
		counts:     counts,
		events:     pub,
		log:        log.Named("auth"),
	}
}

func validateCredentials(email, password string) error {
	if email == "" || password == "" {
		return errs.Validationf("email and password are required")
	}
	if len(email) > MaxEmail {
		return errs.Validationf("email is too long")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return errs.Validationf("enter a valid email address")
	}
	if len(password) < MinPassword {
		return errs.Validationf("password must be at least %d characters", MinPassword)
	}
	if strings.Trim(password, "0123456789") == "" {
		return errs.Validationf("password cannot be entirely numeric")
	}
	return nil
}

// Signup registers a user. The email is normalized before the uniqueness check; the default
// category and its counter are created in the same flow.
func (s *AuthServiceImpl) Signup(ctx context.Context, email, password string) (_ *model.User, err error) {
	ctx, span := tracer.Start(ctx, "AuthService.Signup")
	defer func() { endSpan(span, err) }()

	email = NormalizeEmail(email)
	if err := validateCredentials(email, password); err != nil {
		return nil, err
	}
	hash, err := pkgcrypto.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	u := &model.User{ID: id, Email: email, PwdHash: hash, Active: true}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, errs.ErrAlreadyExists) {
			return nil, fmt.Errorf("%w: a user with this email already exists", errs.ErrAlreadyExists)
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	span.SetAttributes(attribute.String("user.id", id.String()))

	s.createDefaultCategory(ctx, id)
	s.publish(ctx, events.Event{Type: events.UserRegistered, OwnerID: id})
	s.log.Info("user registered", zap.String("user_id", id.String()))
	return u, nil
}

// createDefaultCategory gives a new owner the protected "Random Thoughts" category. Failures
// are logged; notes then fall back to the owner's other categories or none.
func (s *AuthServiceImpl) createDefaultCategory(ctx context.Context, owner uuid.UUID) {
	c := &model.Category{
		Name:      model.DefaultCategoryName,
		Color:     model.DefaultCategoryColor,
		Protected: true,
	}
	if err := repository.Scope(owner, s.categories, nil).CreateCategory(ctx, c); err != nil {
		s.log.Error("create default category", zap.String("user_id", owner.String()), zap.Error(err))
		return
	}
	s.counts.Init(ctx, c.ID)
	s.publish(ctx, events.Event{Type: events.CategoryCreated, OwnerID: owner, CategoryID: &c.ID})
}

// Signin authenticates with lockout by (email, ip). Unknown emails and wrong passwords are
// reported alike.
func (s *AuthServiceImpl) Signin(ctx context.Context, email, password, ip string) (_ model.TokenPair, err error) {
	ctx, span := tracer.Start(ctx, "AuthService.Signin")
	defer func() { endSpan(span, err) }()

	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return model.TokenPair{}, errs.Validationf("email and password are required")
	}
	ipHash := limiter.HashIP(ip)

	allowed, retry, err := s.guard.Allow(ctx, email, ipHash)
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("signin guard: %w", err)
	}
	if !allowed {
		return model.TokenPair{}, &errs.RateLimitError{RetryAfter: retry}
	}

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		return model.TokenPair{}, fmt.Errorf("load user: %w", err)
	}
	if u == nil || !s.passwordMatches(password, u.PwdHash) {
		blocked, retry, ferr := s.guard.Failure(ctx, email, ipHash)
		if ferr != nil {
			s.log.Warn("record signin failure", zap.Error(ferr))
		} else if blocked {
			return model.TokenPair{}, &errs.RateLimitError{RetryAfter: retry}
		}
		return model.TokenPair{}, errs.Auth(errs.InvalidCredentials, nil)
	}
	if !u.Active {
		return model.TokenPair{}, errs.Auth(errs.InactiveAccount, nil)
	}

	if err := s.guard.Success(ctx, email, ipHash); err != nil {
		s.log.Warn("reset signin failures", zap.Error(err))
	}
	span.SetAttributes(attribute.String("user.id", u.ID.String()))
	return s.tokens.Issue(ctx, u)
}

func (s *AuthServiceImpl) passwordMatches(password, hash string) bool {
	ok, err := pkgcrypto.VerifyPassword(password, hash)
	if err != nil {
		s.log.Error("verify password", zap.Error(err))
		return false
	}
	return ok
}

// Refresh delegates to the token service.
func (s *AuthServiceImpl) Refresh(ctx context.Context, refreshToken string) (_ model.TokenPair, err error) {
	ctx, span := tracer.Start(ctx, "AuthService.Refresh")
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(refreshToken) == "" {
		return model.TokenPair{}, errs.Validationf("refresh_token is required")
	}
	return s.tokens.Refresh(ctx, refreshToken)
}

// Logout revokes the refresh token for the rest of its lifetime.
func (s *AuthServiceImpl) Logout(ctx context.Context, refreshToken string) (err error) {
	ctx, span := tracer.Start(ctx, "AuthService.Logout")
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(refreshToken) == "" {
		return errs.Validationf("refresh_token is required")
	}
	return s.tokens.Revoke(ctx, refreshToken)
}

// Me loads the principal's account.
func (s *AuthServiceImpl) Me(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return s.users.GetByID(ctx, id)
}

func (s *AuthServiceImpl) publish(ctx context.Context, ev events.Event) {
	publish(ctx, s.events, s.log, ev)
}

// publish sends ev without letting the request wait on, or fail because of, the broker.
func publish(ctx context.Context, pub events.Publisher, log *zap.Logger, ev events.Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	ctx = context.WithoutCancel(ctx)
	if err := pub.Publish(ctx, ev); err != nil {
		log.Warn("publish event", zap.String("type", ev.Type), zap.Error(err))
	}
}
