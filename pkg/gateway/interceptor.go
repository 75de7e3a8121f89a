package gateway

import (
	"log/slog"
	"net/http"

	"github.com/bytebites/bytebites-core/internal/httpio"
	"github.com/bytebites/bytebites-core/pkg/auth"
	sserr "github.com/bytebites/bytebites-core/pkg/errors"
)

// unauthenticated is the only body a rejected client sees.
var unauthenticated = httpio.ErrorBody{
	Code:    string(sserr.CodeAuthentication),
	Message: "unauthenticated",
}

// Option configures an Interceptor or a Router.
type Option func(*options)

type options struct {
	logger  *slog.Logger
	metrics *Metrics
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

func buildOptions(opts []Option) options {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// Interceptor authenticates every request before handing it to next.
//
// Each request passes through these steps in order:
//  1. X-Auth-User, X-Auth-Roles and X-Caller-Service are removed, whatever
//     the path. Clients can never assert an identity themselves.
//  2. A path on the open list is forwarded unchanged. Matching is exact
//     and requests with a percent-encoded path never match.
//  3. The bearer token is extracted from Authorization and validated.
//  4. The trusted headers are rewritten from the token claims and the
//     request is forwarded.
//
// Every rejection gets the same 401 body and a WWW-Authenticate header.
// The specific error code is only logged and counted.
//
// An Interceptor holds no per-request state and is safe for concurrent use.
type Interceptor struct {
	validator auth.TokenValidator
	open      map[string]struct{}
	next      http.Handler
	logger    *slog.Logger
	metrics   *Metrics
}

// NewInterceptor returns an interceptor in front of next. open lists the
// exact paths that bypass validation.
func NewInterceptor(v auth.TokenValidator, open []string, next http.Handler, opts ...Option) *Interceptor {
	o := buildOptions(opts)
	set := make(map[string]struct{}, len(open))
	for _, p := range open {
		set[p] = struct{}{}
	}
	return &Interceptor{
		validator: v,
		open:      set,
		next:      next,
		logger:    o.logger,
		metrics:   o.metrics,
	}
}

// ServeHTTP implements http.Handler.
func (i *Interceptor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	out := r.Clone(ctx)
	for _, h := range auth.TrustedHeaders {
		out.Header.Del(h)
	}

	if i.isOpen(out) {
		i.metrics.decision(OutcomeOpen, "")
		i.next.ServeHTTP(w, out)
		return
	}

	token := auth.ExtractBearerToken(out.Header.Get(auth.HeaderAuthorization))
	if token == "" {
		i.reject(w, out, sserr.MissingAuthHeader())
		return
	}

	claims, err := i.validator.Validate(ctx, token)
	if err != nil {
		i.reject(w, out, err)
		return
	}
	id := claims.Identity()
	if !id.Valid() {
		i.reject(w, out, sserr.MalformedToken(nil))
		return
	}

	for k, v := range auth.IdentityHeaders(id) {
		out.Header.Set(k, v)
	}
	i.metrics.decision(OutcomeAllowed, "")
	i.next.ServeHTTP(w, out.WithContext(auth.ContextWithIdentity(ctx, id)))
}

// isOpen matches the decoded path exactly. Requests whose raw path was
// percent-encoded never match.
func (i *Interceptor) isOpen(r *http.Request) bool {
	if r.URL.RawPath != "" {
		return false
	}
	_, ok := i.open[r.URL.Path]
	return ok
}

func (i *Interceptor) reject(w http.ResponseWriter, r *http.Request, err error) {
	code := sserr.GetCode(err)
	if code == "" {
		code = sserr.CodeInternal
	}
	i.logger.WarnContext(r.Context(), "gateway: request rejected",
		"method", r.Method,
		"path", r.URL.Path,
		"code", string(code),
		"error", err,
	)
	i.metrics.decision(OutcomeRejected, string(code))
	w.Header().Set("WWW-Authenticate", `Bearer realm="bytebites"`)
	httpio.WriteJSON(w, http.StatusUnauthorized, unauthenticated)
}
