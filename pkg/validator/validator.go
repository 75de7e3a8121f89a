// Package validator verifies bearer tokens for the edge gateway.
//
// Validation runs in a fixed order and each step has its own failure code:
//
//  1. structure: a three-part JWS with a JSON payload (AUTH_003)
//  2. key: resolve the verification key (AUTH_006)
//  3. signature: verify with an allowed algorithm (AUTH_004)
//  4. expiry: exp must be after now (AUTH_005)
//  5. claims: sub must be present (AUTH_003)
//
// Two strategies implement [auth.TokenValidator]: [StaticValidator] holds a
// configured HMAC secret or RSA public key, and [JWKSValidator] resolves keys
// from the auth service's key set endpoint through a shared cache. [New]
// builds whichever one the configuration selects.
package validator

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bytebites/bytebites-core/pkg/auth"
	sserr "github.com/bytebites/bytebites-core/pkg/errors"
)

const tracerName = "github.com/bytebites/bytebites-core/pkg/validator"

// DefaultRolesClaim is the claim carrying the role list.
const DefaultRolesClaim = "roles"

// maxTokenSize bounds the bearer token length.
const maxTokenSize = 8192

// HTTPClient fetches the key set. *http.Client satisfies it.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Option customizes a validator.
type Option func(*options)

type options struct {
	client HTTPClient
	now    func() time.Time
	logger *slog.Logger
	tracer trace.Tracer
}

// WithHTTPClient sets the client used for key set fetches.
func WithHTTPClient(c HTTPClient) Option { return func(o *options) { o.client = c } }

// WithClock sets the time source for expiry checks and cache ages.
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// WithTracer sets the tracer.
func WithTracer(t trace.Tracer) Option { return func(o *options) { o.tracer = t } }

func buildOptions(opts []Option) options {
	o := options{
		client: &http.Client{},
		now:    time.Now,
		logger: slog.Default(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// New returns the validator selected by cfg.Mode.
func New(cfg Config, opts ...Option) (auth.TokenValidator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Mode == ModeStatic {
		return NewStatic(cfg, opts...)
	}
	return NewJWKS(cfg, opts...)
}

// core is the parse step shared by both strategies.
type core struct {
	mode       string
	methods    []string
	rolesClaim string
	issuer     string
	now        func() time.Time
	tracer     trace.Tracer
}

func (c *core) validate(ctx context.Context, token string, keyFunc func(ctx context.Context) jwt.Keyfunc) (*auth.Claims, error) {
	ctx, span := c.tracer.Start(ctx, "validator.Validate",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("validator.mode", c.mode)),
	)
	defer span.End()

	claims, err := c.parse(ctx, token, keyFunc)
	if err != nil {
		span.SetAttributes(attribute.String("validator.error_code", string(sserr.GetCode(err))))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("validator.kid", claims.KeyID))
	span.SetStatus(codes.Ok, "")
	return claims, nil
}

func (c *core) parse(ctx context.Context, token string, keyFunc func(ctx context.Context) jwt.Keyfunc) (*auth.Claims, error) {
	if token == "" || len(token) > maxTokenSize || strings.Count(token, ".") != 2 {
		return nil, sserr.MalformedToken(nil)
	}

	now := c.now()
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods(c.methods),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	}
	if c.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(c.issuer))
	}

	mc := jwt.MapClaims{}
	tok, err := jwt.NewParser(parserOpts...).ParseWithClaims(token, mc, keyFunc(ctx))
	if err != nil {
		return nil, classify(err)
	}

	exp, err := mc.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, sserr.MalformedToken(err)
	}
	if !exp.After(now) {
		return nil, sserr.TokenExpired(nil)
	}
	sub, err := mc.GetSubject()
	if err != nil || strings.TrimSpace(sub) == "" {
		return nil, sserr.MalformedToken(err)
	}
	roles, err := rolesFromClaim(mc[c.rolesClaim])
	if err != nil {
		return nil, sserr.MalformedToken(err)
	}

	claims := &auth.Claims{Subject: sub, Roles: roles, ExpiresAt: exp.Time}
	if iat, err := mc.GetIssuedAt(); err == nil && iat != nil {
		claims.IssuedAt = iat.Time
	}
	claims.KeyID, _ = tok.Header["kid"].(string)
	return claims, nil
}

// rolesFromClaim accepts a JSON array of strings or a comma-joined string.
// A missing claim is an empty set.
func rolesFromClaim(v any) (auth.RoleSet, error) {
	switch roles := v.(type) {
	case nil:
		return auth.RoleSet{}, nil
	case string:
		return auth.ParseRoles(roles), nil
	case []any:
		names := make([]string, 0, len(roles))
		for _, r := range roles {
			s, ok := r.(string)
			if !ok {
				return nil, errInvalidRoles
			}
			names = append(names, s)
		}
		return auth.NewRoleSet(names...), nil
	default:
		return nil, errInvalidRoles
	}
}

var errInvalidRoles = errors.New("roles claim must be a string or an array of strings")

// classify maps jwt/v5 errors onto the token rejection codes. Coded errors
// from key resolution pass through.
func classify(err error) error {
	if e, ok := sserr.AsError(err); ok {
		return e
	}
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return sserr.SignatureInvalid(err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return sserr.TokenExpired(err)
	default:
		return sserr.MalformedToken(err)
	}
}
