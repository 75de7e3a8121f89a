// Package issuer is the auth service: it registers accounts, verifies
// credentials and mints RS256 access tokens whose public key is published
// as a JWKS document.
package issuer

import (
	"context"
	"log/slog"
	"time"

	"github.com/bytebites/bytebites-core/pkg/auth"
	sserr "github.com/bytebites/bytebites-core/pkg/errors"
	"github.com/bytebites/bytebites-core/pkg/ratelimit"
	"github.com/bytebites/bytebites-core/pkg/users"
)

// TokenTypeBearer is the token type reported in login responses.
const TokenTypeBearer = "Bearer"

// LoginResponse is the body of a successful login.
type LoginResponse struct {
	Token        string  `json:"token"`
	TokenType    string  `json:"tokenType"`
	RefreshToken *string `json:"refreshToken"`
	ExpiresIn    int64   `json:"expiresIn"`
	Role         string  `json:"role"`
}

// Deps are the collaborators of a Service. Limiter, Metrics, Logger and Now
// are optional.
type Deps struct {
	Tokens    *TokenIssuer
	Verifier  *CredentialVerifier
	Registrar *Registrar
	Limiter   ratelimit.Limiter
	Metrics   *Metrics
	Logger    *slog.Logger
	Now       func() time.Time
}

// Service implements the login and registration operations.
type Service struct {
	Deps
}

// NewService returns a Service.
func NewService(d Deps) *Service {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Service{Deps: d}
}

// Register creates an account with role. Self-service registration passes
// [auth.DefaultRole]; the owner path passes [auth.RoleRestaurantOwner].
func (s *Service) Register(ctx context.Context, email, password string, role auth.Role) (*users.User, error) {
	u, err := s.Registrar.Register(ctx, email, password, auth.RoleSet{role})
	switch {
	case err == nil:
		s.Metrics.registration(ResultSuccess)
		s.Logger.InfoContext(ctx, "user registered", "user_id", u.ID, "role", string(role))
		return u, nil
	case sserr.HasCode(err, sserr.CodeDuplicateIdentity):
		s.Metrics.registration(ResultDuplicate)
	case sserr.IsValidation(err):
		s.Metrics.registration(ResultInvalid)
	default:
		s.Metrics.registration(ResultError)
		s.Logger.ErrorContext(ctx, "registration failed", "code", sserr.GetCode(err), "error", err)
	}
	return nil, err
}

// Login verifies credentials and issues a token. Attempts are counted per
// email before the user store is consulted; a successful login clears the
// count.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	key := "login:" + users.NormalizeEmail(email)
	if s.Limiter != nil {
		d, err := s.Limiter.Allow(ctx, key)
		switch {
		case err != nil:
			// An unavailable limiter does not lock everyone out.
			s.Logger.WarnContext(ctx, "login rate limiter failed", "code", sserr.GetCode(err), "error", err)
		case !d.Allowed:
			s.Metrics.login(ResultRateLimited)
			s.Logger.WarnContext(ctx, "login rate limited", "limit", d.Limit)
			return nil, ratelimit.Exceeded(d, s.Now())
		}
	}

	id, err := s.Verifier.Verify(ctx, email, password)
	if err != nil {
		if sserr.HasCode(err, sserr.CodeInvalidCredentials) {
			s.Metrics.login(ResultInvalidCredentials)
		} else {
			s.Metrics.login(ResultError)
			s.Logger.ErrorContext(ctx, "credential check failed", "code", sserr.GetCode(err), "error", err)
		}
		return nil, err
	}

	tok, err := s.Tokens.Issue(id)
	if err != nil {
		s.Metrics.login(ResultError)
		return nil, err
	}
	if s.Limiter != nil {
		if err := s.Limiter.Reset(ctx, key); err != nil {
			s.Logger.WarnContext(ctx, "login rate limiter reset failed", "error", err)
		}
	}
	s.Metrics.login(ResultSuccess)

	var role string
	if primary := id.Roles.Primary(); primary != "" {
		role = primary.Authority()
	}
	return &LoginResponse{
		Token:     tok.Value,
		TokenType: TokenTypeBearer,
		ExpiresIn: int64(s.Tokens.Lifetime() / time.Second),
		Role:      role,
	}, nil
}
