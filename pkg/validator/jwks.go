package validator

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/bytebites/bytebites-core/pkg/auth"
	sserr "github.com/bytebites/bytebites-core/pkg/errors"
	"github.com/bytebites/bytebites-core/pkg/keys"
)

// maxKeySetSize bounds the key set response body.
const maxKeySetSize = 1 << 20

// JWKSValidator verifies RS256 tokens against keys published at a JWKS
// endpoint, so the gateway never holds key material of its own.
//
// Key resolution follows these rules:
//   - Keys are cached for the configured TTL and looked up by the token's
//     kid header. A token without a kid resolves only when the cached set
//     holds exactly one key.
//   - A kid missing from the cache triggers at most one refresh per
//     MinRefreshInterval, so invented kids cost at most one fetch per
//     interval.
//   - Concurrent refreshes collapse into a single fetch.
//   - A fetch that fails with an outage or timeout is retried once.
//
// If the endpoint cannot be reached the validator fails closed with
// UnknownKey. A key that was cached before the failure keeps working until
// the endpoint recovers.
//
// A JWKSValidator is safe for concurrent use.
type JWKSValidator struct {
	core
	cache *keySetCache
}

// NewJWKS builds a JWKSValidator. No request is made until the first
// validation or [JWKSValidator.Warm].
func NewJWKS(cfg Config, opts ...Option) (*JWKSValidator, error) {
	if cfg.JWKSURI == "" {
		return nil, sserr.New(sserr.CodeValidationRequired, "validator: JWKS_URI is required")
	}
	o := buildOptions(opts)
	rolesClaim := cfg.RolesClaim
	if rolesClaim == "" {
		rolesClaim = DefaultRolesClaim
	}
	return &JWKSValidator{
		core: core{
			mode:       ModeJWKS,
			methods:    []string{jwt.SigningMethodRS256.Alg()},
			rolesClaim: rolesClaim,
			issuer:     cfg.Issuer,
			now:        o.now,
			tracer:     o.tracer,
		},
		cache: &keySetCache{
			uri:          cfg.JWKSURI,
			client:       o.client,
			ttl:          positive(cfg.CacheTTL, 5*time.Minute),
			minRefresh:   cfg.MinRefreshInterval,
			fetchTimeout: positive(cfg.FetchTimeout, 5*time.Second),
			retryBackoff: cfg.RetryBackoff,
			now:          o.now,
			logger:       o.logger,
			tracer:       o.tracer,
		},
	}, nil
}

func positive(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}

// Validate implements [auth.TokenValidator].
func (v *JWKSValidator) Validate(ctx context.Context, token string) (*auth.Claims, error) {
	return v.validate(ctx, token, func(ctx context.Context) jwt.Keyfunc {
		return func(t *jwt.Token) (any, error) {
			kid, _ := t.Header["kid"].(string)
			return v.cache.key(ctx, kid)
		}
	})
}

// Warm fetches the key set now. Gateways call it at startup so the first
// request does not pay for the fetch.
func (v *JWKSValidator) Warm(ctx context.Context) error {
	_, err := v.cache.refresh(ctx)
	return err
}

// Fetches returns the number of HTTP requests made to the JWKS endpoint.
func (v *JWKSValidator) Fetches() int64 { return v.cache.fetches.Load() }

var _ auth.TokenValidator = (*JWKSValidator)(nil)

type keySetCache struct {
	uri          string
	client       HTTPClient
	ttl          time.Duration
	minRefresh   time.Duration
	fetchTimeout time.Duration
	retryBackoff time.Duration
	now          func() time.Time
	logger       *slog.Logger
	tracer       trace.Tracer

	group   singleflight.Group
	fetches atomic.Int64

	mu          sync.RWMutex
	keys        map[string]*rsa.PublicKey
	fetchedAt   time.Time
	lastAttempt time.Time
}

func (c *keySetCache) snapshot() (set map[string]*rsa.PublicKey, fetchedAt, lastAttempt time.Time) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.keys, c.fetchedAt, c.lastAttempt
}

// lookup finds kid in set. A token without a kid matches only when the set
// holds exactly one key.
func lookup(set map[string]*rsa.PublicKey, kid string) (*rsa.PublicKey, bool) {
	if kid == "" && len(set) == 1 {
		for _, pub := range set {
			return pub, true
		}
	}
	pub, ok := set[kid]
	return pub, ok
}

func (c *keySetCache) key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	set, fetchedAt, lastAttempt := c.snapshot()
	now := c.now()
	fresh := !fetchedAt.IsZero() && now.Sub(fetchedAt) < c.ttl

	pub, found := lookup(set, kid)
	if found && fresh {
		return pub, nil
	}
	if !lastAttempt.IsZero() && now.Sub(lastAttempt) < c.minRefresh {
		if found {
			return pub, nil
		}
		return nil, sserr.UnknownKey(kid, nil)
	}

	refreshed, err := c.refresh(ctx)
	if err != nil {
		c.logger.WarnContext(ctx, "jwks refresh failed",
			"uri", c.uri, "kid", kid, "code", sserr.GetCode(err), "error", err)
		if found {
			return pub, nil
		}
		return nil, sserr.UnknownKey(kid, err)
	}
	if pub, ok := lookup(refreshed, kid); ok {
		return pub, nil
	}
	return nil, sserr.UnknownKey(kid, nil)
}

// refresh joins or starts a fetch. The fetch runs detached from ctx so that
// one caller giving up does not fail the others; the caller still stops
// waiting when ctx ends.
func (c *keySetCache) refresh(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	ch := c.group.DoChan("jwks", func() (any, error) {
		return c.fetch(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return nil, sserr.Wrap(ctx.Err(), sserr.CodeTimeoutDependency, "validator: gave up waiting for key set")
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(map[string]*rsa.PublicKey), nil
	}
}

func (c *keySetCache) fetch(ctx context.Context) (_ map[string]*rsa.PublicKey, err error) {
	ctx, span := c.tracer.Start(ctx, "validator.FetchKeySet",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("jwks.uri", c.uri)),
	)
	defer func() {
		c.mu.Lock()
		c.lastAttempt = c.now()
		c.mu.Unlock()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	var set map[string]*rsa.PublicKey
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			if err := sleepWithContext(ctx, c.retryBackoff); err != nil {
				return nil, err
			}
		}
		set, err = c.fetchOnce(ctx)
		if err == nil || !sserr.IsRetryable(err) {
			break
		}
	}
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.keys = set
	c.fetchedAt = c.now()
	c.mu.Unlock()
	span.SetAttributes(attribute.Int("jwks.keys", len(set)))
	c.logger.DebugContext(ctx, "jwks refreshed", "uri", c.uri, "keys", len(set))
	return set, nil
}

func (c *keySetCache) fetchOnce(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	c.fetches.Add(1)
	ctx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.uri, nil)
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeInternalConfiguration, "validator: invalid JWKS request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		var ne net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
			return nil, sserr.Wrap(err, sserr.CodeTimeoutDependency, "validator: JWKS fetch timed out")
		}
		return nil, sserr.Wrap(err, sserr.CodeUnavailableDependency, "validator: JWKS endpoint unreachable")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxKeySetSize))
		return nil, sserr.New(sserr.CodeUnavailableDependency, "validator: JWKS endpoint unavailable").
			WithDetail("status", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, sserr.New(sserr.CodeInternal, "validator: unexpected JWKS response").
			WithDetail("status", resp.StatusCode)
	}

	var doc keys.KeySet
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxKeySetSize)).Decode(&doc); err != nil {
		return nil, sserr.Wrap(err, sserr.CodeInternal, "validator: malformed JWKS document")
	}

	set := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, jwk := range doc.Keys {
		if jwk.Alg != "" && jwk.Alg != jwt.SigningMethodRS256.Alg() {
			continue
		}
		pub, err := jwk.RSAPublicKey()
		if err != nil {
			c.logger.DebugContext(ctx, "skipping jwk", "kid", jwk.Kid, "error", err)
			continue
		}
		set[jwk.Kid] = pub
	}
	if len(set) == 0 {
		return nil, sserr.New(sserr.CodeInternal, "validator: JWKS document has no usable keys")
	}
	return set, nil
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
